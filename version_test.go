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

package together

import (
	"errors"
	"testing"
)

func TestVersionIsStable(t *testing.T) {
	alice, bob := twoAuthors(t)
	doc := New()
	mustInsert(t, doc, alice, 0, "first draft")
	v1 := doc.Version()

	mustDelete(t, doc, 0, 5)
	mustInsert(t, doc, bob, 0, "final")
	mustInsert(t, doc, alice, doc.Len(), " (edited)")
	v2 := doc.Version()

	if got, want := v1.String(), "first draft"; got != want {
		t.Errorf("v1.String: got %q, want %q", got, want)
	}
	if got, want := v1.Len(), len("first draft"); got != want {
		t.Errorf("v1.Len: got %d, want %d", got, want)
	}
	if got, want := v2.String(), doc.String(); got != want {
		t.Errorf("v2.String: got %q, want %q", got, want)
	}
	if got, want := doc.StringAt(v1), "first draft"; got != want {
		t.Errorf("StringAt(v1): got %q, want %q", got, want)
	}
	if got, want := doc.LenAt(v1), len("first draft"); got != want {
		t.Errorf("LenAt(v1): got %d, want %d", got, want)
	}
}

func TestVersionSlice(t *testing.T) {
	alice, _ := twoAuthors(t)
	doc := New()
	mustInsert(t, doc, alice, 0, "hello world")
	mustDelete(t, doc, 2, 2)
	v := doc.Version()
	want := doc.String()
	mustInsert(t, doc, alice, 0, "noise ")

	for start := 0; start <= len(want); start++ {
		for end := start; end <= len(want); end++ {
			got, err := v.Slice(start, end)
			if err != nil {
				t.Fatalf("Slice(%d, %d): %v", start, end, err)
			}
			if got != want[start:end] {
				t.Fatalf("Slice(%d, %d): got %q, want %q", start, end, got, want[start:end])
			}
		}
	}
	if _, err := v.Slice(0, len(want)+1); !errors.Is(err, ErrPositionOutOfBounds) {
		t.Errorf("Slice past end: got %v, want ErrPositionOutOfBounds", err)
	}
	if got, err := doc.SliceAt(v, 0, 3); err != nil || got != want[:3] {
		t.Errorf("SliceAt: got (%q, %v), want (%q, nil)", got, err, want[:3])
	}
}

func TestManyVersions(t *testing.T) {
	alice, _ := twoAuthors(t)
	doc := New()
	var versions []Version
	var wants []string
	text := "abcdefghijklmnopqrstuvwxyz"
	for i := 0; i < len(text); i++ {
		mustInsert(t, doc, alice, i, string(text[i]))
		versions = append(versions, doc.Version())
		wants = append(wants, doc.String())
	}
	mustDelete(t, doc, 0, 10)
	for i, v := range versions {
		if got := v.String(); got != wants[i] {
			t.Fatalf("version %d: got %q, want %q", i, got, wants[i])
		}
	}
}
