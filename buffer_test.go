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

// TestBackspaceInBuffer covers the S2 shape: a typo fixed before the
// buffer flushes reaches the document as a single clean insert.
func TestBackspaceInBuffer(t *testing.T) {
	alice, _ := twoAuthors(t)
	b := NewBuf(New())
	if err := b.Insert(alice, 0, []byte("helllo")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := b.Delete(3, 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err := b.String()
	if err != nil {
		t.Fatalf("String: %v", err)
	}
	if want := "hello"; got != want {
		t.Errorf("String: got %q, want %q", got, want)
	}
	ops := b.Operations()
	if len(ops) != 1 || ops[0].Kind != OpInsert {
		t.Fatalf("got %d ops, want exactly one insert", len(ops))
	}
	if gotC, want := string(ops[0].Content), "hello"; gotC != want {
		t.Errorf("insert content: got %q, want %q", gotC, want)
	}
	inner, err := b.Inner()
	if err != nil {
		t.Fatalf("Inner: %v", err)
	}
	if got, want := inner.SpanCount(), 1; got != want {
		t.Errorf("SpanCount: got %d, want %d", got, want)
	}
}

func TestBufferExtendsAdjacentInserts(t *testing.T) {
	alice, _ := twoAuthors(t)
	b := NewBuf(New())
	for i, c := range []byte("typing fast") {
		if err := b.Insert(alice, i, []byte{c}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	got, err := b.String()
	if err != nil {
		t.Fatalf("String: %v", err)
	}
	if want := "typing fast"; got != want {
		t.Errorf("String: got %q, want %q", got, want)
	}
	if ops := b.Operations(); len(ops) != 1 {
		t.Errorf("got %d ops, want 1", len(ops))
	}
}

func TestBufferFlushOnNonAdjacentEdit(t *testing.T) {
	alice, _ := twoAuthors(t)
	b := NewBuf(New())
	if err := b.Insert(alice, 0, []byte("world")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	// Jumping to position 0 is not adjacent to the pending tail.
	if err := b.Insert(alice, 0, []byte("hello ")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := b.String()
	if err != nil {
		t.Fatalf("String: %v", err)
	}
	if want := "hello world"; got != want {
		t.Errorf("String: got %q, want %q", got, want)
	}
	if ops := b.Operations(); len(ops) != 2 {
		t.Errorf("got %d ops, want 2", len(ops))
	}
}

func TestBufferExtendsDeletes(t *testing.T) {
	alice, _ := twoAuthors(t)
	b := NewBuf(New())
	if err := b.Insert(alice, 0, []byte("abcdefgh")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	// Backspace three times from position 5: each delete ends where the
	// pending delete starts.
	for _, pos := range []int{4, 3, 2} {
		if err := b.Delete(pos, 1); err != nil {
			t.Fatalf("Delete(%d): %v", pos, err)
		}
	}
	got, err := b.String()
	if err != nil {
		t.Fatalf("String: %v", err)
	}
	if want := "abfgh"; got != want {
		t.Errorf("String: got %q, want %q", got, want)
	}
}

func TestBufferForwardDeletes(t *testing.T) {
	alice, _ := twoAuthors(t)
	b := NewBuf(New())
	if err := b.Insert(alice, 0, []byte("abcdefgh")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := b.Delete(2, 1); err != nil {
			t.Fatalf("Delete: %v", err)
		}
	}
	got, err := b.String()
	if err != nil {
		t.Fatalf("String: %v", err)
	}
	if want := "abfgh"; got != want {
		t.Errorf("String: got %q, want %q", got, want)
	}
}

func TestBufferLimitForcesFlush(t *testing.T) {
	alice, _ := twoAuthors(t)
	doc := New()
	b := NewBuf(doc, WithBufferLimit(4))
	if err := b.Insert(alice, 0, []byte("abcdef")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	// The oversized insert flushed straight through.
	if got, want := doc.String(), "abcdef"; got != want {
		t.Errorf("document: got %q, want %q", got, want)
	}
}

func TestBufferMatchesUnbuffered(t *testing.T) {
	alice, bob := twoAuthors(t)
	type edit struct {
		insert bool
		pos    int
		text   string
		length int
	}
	edits := []edit{
		{insert: true, pos: 0, text: "hello world"},
		{insert: true, pos: 11, text: "!"},
		{insert: false, pos: 3, length: 2},
		{insert: true, pos: 3, text: "p me"},
		{insert: false, pos: 0, length: 1},
		{insert: true, pos: 0, text: "y"},
	}
	plain := New()
	buf := NewBuf(New())
	for _, e := range edits {
		who := alice
		if len(e.text)%2 == 0 {
			who = bob
		}
		if e.insert {
			if _, err := plain.Insert(who, e.pos, []byte(e.text)); err != nil {
				t.Fatalf("plain Insert: %v", err)
			}
			if err := buf.Insert(who, e.pos, []byte(e.text)); err != nil {
				t.Fatalf("buffered Insert: %v", err)
			}
		} else {
			if _, err := plain.Delete(e.pos, e.length); err != nil {
				t.Fatalf("plain Delete: %v", err)
			}
			if err := buf.Delete(e.pos, e.length); err != nil {
				t.Fatalf("buffered Delete: %v", err)
			}
		}
	}
	got, err := buf.String()
	if err != nil {
		t.Fatalf("String: %v", err)
	}
	if want := plain.String(); got != want {
		t.Errorf("buffered %q, unbuffered %q", got, want)
	}
}

func TestBufferPositionErrors(t *testing.T) {
	alice, _ := twoAuthors(t)
	b := NewBuf(New())
	if err := b.Insert(alice, 0, []byte("abc")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := b.Insert(alice, 7, []byte("x")); !errors.Is(err, ErrPositionOutOfBounds) {
		t.Errorf("Insert past effective end: got %v, want ErrPositionOutOfBounds", err)
	}
	if err := b.Delete(2, 5); !errors.Is(err, ErrPositionOutOfBounds) {
		t.Errorf("Delete past effective end: got %v, want ErrPositionOutOfBounds", err)
	}
}
