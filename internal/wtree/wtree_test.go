// Copyright 2026 The Together authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wtree

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// item is a weighted test element; zero weight models a tombstone.
type item struct {
	id uint32
	w  uint64
}

func weigh(it item) uint64 { return it.w }

func collect(t *Tree[item]) []item {
	var out []item
	t.Ascend(0, func(_ int, it item) bool {
		out = append(out, it)
		return true
	})
	return out
}

func checkAgainstModel(t *testing.T, tr *Tree[item], model []item) {
	t.Helper()
	if got, want := tr.Len(), len(model); got != want {
		t.Fatalf("Len: got %d, want %d", got, want)
	}
	var weight uint64
	for _, it := range model {
		weight += it.w
	}
	if got := tr.Weight(); got != weight {
		t.Fatalf("Weight: got %d, want %d", got, weight)
	}
	if diff := cmp.Diff(model, collect(tr), cmp.AllowUnexported(item{})); diff != "" {
		t.Fatalf("contents diff (-want +got):\n%s", diff)
	}
	for i, it := range model {
		if got := tr.Get(i); got != it {
			t.Fatalf("Get(%d): got %+v, want %+v", i, got, it)
		}
	}
}

func TestRandomizedAgainstModel(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tr := New(weigh)
	var model []item
	nextID := uint32(0)

	for step := 0; step < 4000; step++ {
		switch op := rng.Intn(10); {
		case op < 6 || len(model) == 0:
			i := rng.Intn(len(model) + 1)
			it := item{id: nextID, w: uint64(rng.Intn(5))}
			nextID++
			tr.Insert(i, it)
			model = append(model, item{})
			copy(model[i+1:], model[i:])
			model[i] = it
		case op < 8:
			i := rng.Intn(len(model))
			got := tr.Remove(i)
			if got != model[i] {
				t.Fatalf("step %d: Remove(%d): got %+v, want %+v", step, i, got, model[i])
			}
			model = append(model[:i], model[i+1:]...)
		default:
			i := rng.Intn(len(model))
			it := model[i]
			it.w = uint64(rng.Intn(5))
			tr.Set(i, it)
			model[i] = it
		}
	}
	checkAgainstModel(t, tr, model)
}

func TestFind(t *testing.T) {
	tr := New(weigh)
	// Mixed weights with zero-weight items sprinkled between.
	items := []item{
		{id: 0, w: 3},
		{id: 1, w: 0},
		{id: 2, w: 2},
		{id: 3, w: 0},
		{id: 4, w: 1},
	}
	for i, it := range items {
		tr.Insert(i, it)
	}
	for _, test := range []struct {
		w       uint64
		wantIdx int
		wantOff uint64
	}{
		{w: 0, wantIdx: 0, wantOff: 0},
		{w: 2, wantIdx: 0, wantOff: 2},
		{w: 3, wantIdx: 2, wantOff: 0},
		{w: 4, wantIdx: 2, wantOff: 1},
		{w: 5, wantIdx: 4, wantOff: 0},
		{w: 6, wantIdx: 5, wantOff: 0},
		{w: 99, wantIdx: 5, wantOff: 0},
	} {
		idx, off := tr.Find(test.w)
		if idx != test.wantIdx || off != test.wantOff {
			t.Errorf("Find(%d): got (%d, %d), want (%d, %d)", test.w, idx, off, test.wantIdx, test.wantOff)
		}
	}
}

func TestFindDeepTree(t *testing.T) {
	tr := New(weigh)
	n := 5000
	for i := 0; i < n; i++ {
		tr.Insert(i, item{id: uint32(i), w: 2})
	}
	for _, w := range []uint64{0, 1, 2, 999, 2 * uint64(n-1), 2*uint64(n) - 1} {
		idx, off := tr.Find(w)
		if wantIdx, wantOff := int(w/2), w%2; idx != wantIdx || off != wantOff {
			t.Errorf("Find(%d): got (%d, %d), want (%d, %d)", w, idx, off, wantIdx, wantOff)
		}
	}
}

func TestAscendFrom(t *testing.T) {
	tr := New(weigh)
	for i := 0; i < 100; i++ {
		tr.Insert(i, item{id: uint32(i), w: 1})
	}
	var got []uint32
	tr.Ascend(97, func(i int, it item) bool {
		if i != int(it.id) {
			t.Errorf("Ascend index %d does not match item %d", i, it.id)
		}
		got = append(got, it.id)
		return true
	})
	if diff := cmp.Diff([]uint32{97, 98, 99}, got); diff != "" {
		t.Errorf("Ascend(97) diff (-want +got):\n%s", diff)
	}

	count := 0
	tr.Ascend(0, func(int, item) bool {
		count++
		return count < 5
	})
	if count != 5 {
		t.Errorf("early stop: visited %d items, want 5", count)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	tr := New(weigh)
	for i := 0; i < 200; i++ {
		tr.Insert(i, item{id: uint32(i), w: 1})
	}
	before := collect(tr)
	snap := tr.Snapshot()

	// Mutate the live tree heavily.
	for i := 0; i < 100; i++ {
		tr.Remove(0)
	}
	for i := 0; i < 50; i++ {
		tr.Insert(i, item{id: 1000 + uint32(i), w: 3})
	}
	tr.Set(0, item{id: 9999, w: 7})

	if got, want := snap.Len(), 200; got != want {
		t.Fatalf("snapshot Len: got %d, want %d", got, want)
	}
	if got, want := snap.Weight(), uint64(200); got != want {
		t.Fatalf("snapshot Weight: got %d, want %d", got, want)
	}
	var after []item
	snap.Ascend(0, func(_ int, it item) bool {
		after = append(after, it)
		return true
	})
	if diff := cmp.Diff(before, after, cmp.AllowUnexported(item{})); diff != "" {
		t.Fatalf("snapshot changed under mutation (-want +got):\n%s", diff)
	}
	if idx, off := snap.Find(150); idx != 150 || off != 0 {
		t.Fatalf("snapshot Find(150): got (%d, %d), want (150, 0)", idx, off)
	}
}

func TestSnapshotChain(t *testing.T) {
	tr := New(weigh)
	var snaps []*Snapshot[item]
	for i := 0; i < 60; i++ {
		tr.Insert(i, item{id: uint32(i), w: 1})
		snaps = append(snaps, tr.Snapshot())
	}
	for i, s := range snaps {
		if got, want := s.Len(), i+1; got != want {
			t.Fatalf("snapshot %d: Len got %d, want %d", i, got, want)
		}
		last := s.Get(i)
		if last.id != uint32(i) {
			t.Fatalf("snapshot %d: tail item %d, want %d", i, last.id, i)
		}
	}
}
