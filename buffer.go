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
	"fmt"

	"github.com/slightknack/together/keys"
)

// defaultBufferLimit bounds the pending insert before a flush is forced.
const defaultBufferLimit = 1024

// BufOptions holds construction-time settings for an RgaBuf.
type BufOptions struct {
	// Limit is the pending-insert size that forces a flush.
	Limit int
}

// WithBufferLimit overrides the pending-insert size bound.
func WithBufferLimit(n int) func(*BufOptions) {
	return func(o *BufOptions) {
		o.Limit = n
	}
}

type pendKind uint8

const (
	pendNone pendKind = iota
	pendInsert
	pendDelete
)

// RgaBuf wraps a document with a single-operation edit buffer that
// coalesces sequential typing and backspace before they reach the CRDT.
// A run of adjacent inserts becomes one pending insert; a backspace into
// the pending insert trims bytes that never existed as far as the
// document is concerned; adjacent deletes grow one pending delete
// range. Anything else — a non-adjacent edit, a read, an export, or the
// size bound — flushes first.
//
// The buffer is purely a latency hider: after a flush the document state
// is exactly what the same calls would have produced going straight to
// the Rga. Operations emitted by flushes are queued; drain them with
// Operations.
type RgaBuf struct {
	rga   *Rga
	limit int

	kind   pendKind
	author keys.AuthorKey
	pos    int
	bytes  []byte
	start  int
	dlen   int

	queued []Operation
}

// NewBuf wraps rga in an edit buffer.
func NewBuf(rga *Rga, opts ...func(*BufOptions)) *RgaBuf {
	o := BufOptions{Limit: defaultBufferLimit}
	for _, opt := range opts {
		opt(&o)
	}
	return &RgaBuf{rga: rga, limit: o.Limit}
}

// effectiveLen is the visible length including the pending operation.
func (b *RgaBuf) effectiveLen() int {
	switch b.kind {
	case pendInsert:
		return b.rga.Len() + len(b.bytes)
	case pendDelete:
		return b.rga.Len() - b.dlen
	}
	return b.rga.Len()
}

// Flush installs the pending operation into the document and returns
// all operations queued since the last drain.
func (b *RgaBuf) Flush() ([]Operation, error) {
	if err := b.flush(); err != nil {
		return nil, err
	}
	ops := b.queued
	b.queued = nil
	return ops, nil
}

func (b *RgaBuf) flush() error {
	switch b.kind {
	case pendInsert:
		op, err := b.rga.Insert(b.author, b.pos, b.bytes)
		if err != nil {
			return err
		}
		if len(b.bytes) > 0 {
			b.queued = append(b.queued, op)
		}
	case pendDelete:
		ops, err := b.rga.Delete(b.start, b.dlen)
		if err != nil {
			return err
		}
		b.queued = append(b.queued, ops...)
	}
	b.kind = pendNone
	b.bytes = nil
	return nil
}

// Insert places bytes at pos on behalf of author, buffering when the
// edit extends the pending insert.
func (b *RgaBuf) Insert(author keys.AuthorKey, pos int, bytes []byte) error {
	if pos < 0 || pos > b.effectiveLen() {
		return fmt.Errorf("%w: insert at %d of %d", ErrPositionOutOfBounds, pos, b.effectiveLen())
	}
	if len(bytes) == 0 {
		return nil
	}
	if b.kind == pendInsert && author == b.author && pos == b.pos+len(b.bytes) && len(b.bytes)+len(bytes) <= b.limit {
		b.bytes = append(b.bytes, bytes...)
		return nil
	}
	if err := b.flush(); err != nil {
		return err
	}
	b.kind = pendInsert
	b.author = author
	b.pos = pos
	b.bytes = append([]byte(nil), bytes...)
	if len(b.bytes) >= b.limit {
		return b.flush()
	}
	return nil
}

// Delete removes length visible bytes at pos, trimming the pending
// insert when the deletion falls entirely within it (the backspace fast
// path: those bytes never reach the document).
func (b *RgaBuf) Delete(pos, length int) error {
	if pos < 0 || length < 0 || pos+length > b.effectiveLen() {
		return fmt.Errorf("%w: delete [%d, %d) of %d", ErrPositionOutOfBounds, pos, pos+length, b.effectiveLen())
	}
	if length == 0 {
		return nil
	}
	if b.kind == pendInsert && pos >= b.pos && pos+length <= b.pos+len(b.bytes) {
		at := pos - b.pos
		b.bytes = append(b.bytes[:at], b.bytes[at+length:]...)
		if len(b.bytes) == 0 {
			b.kind = pendNone
			b.bytes = nil
		}
		return nil
	}
	if b.kind == pendDelete {
		switch {
		case pos == b.start:
			// Forward delete at the same spot.
			b.dlen += length
			return nil
		case pos+length == b.start:
			// Backspace walking left.
			b.start = pos
			b.dlen += length
			return nil
		}
	}
	if err := b.flush(); err != nil {
		return err
	}
	b.kind = pendDelete
	b.start = pos
	b.dlen = length
	return nil
}

// Len returns the visible length after flushing.
func (b *RgaBuf) Len() (int, error) {
	if err := b.flush(); err != nil {
		return 0, err
	}
	return b.rga.Len(), nil
}

// String returns the document contents after flushing.
func (b *RgaBuf) String() (string, error) {
	if err := b.flush(); err != nil {
		return "", err
	}
	return b.rga.String(), nil
}

// Slice returns the visible bytes in [start, end) after flushing.
func (b *RgaBuf) Slice(start, end int) (string, error) {
	if err := b.flush(); err != nil {
		return "", err
	}
	return b.rga.Slice(start, end)
}

// SpanCount returns the document's span count after flushing.
func (b *RgaBuf) SpanCount() (int, error) {
	if err := b.flush(); err != nil {
		return 0, err
	}
	return b.rga.SpanCount(), nil
}

// Apply flushes and forwards a remote operation to the document.
func (b *RgaBuf) Apply(op Operation) (bool, error) {
	if err := b.flush(); err != nil {
		return false, err
	}
	return b.rga.Apply(op)
}

// Merge flushes and merges another document into this one.
func (b *RgaBuf) Merge(other *Rga) error {
	if err := b.flush(); err != nil {
		return err
	}
	return b.rga.Merge(other)
}

// Version flushes and captures a persistent snapshot.
func (b *RgaBuf) Version() (Version, error) {
	if err := b.flush(); err != nil {
		return Version{}, err
	}
	return b.rga.Version(), nil
}

// ExportOperations flushes and exports the document history.
func (b *RgaBuf) ExportOperations() ([]Operation, error) {
	if err := b.flush(); err != nil {
		return nil, err
	}
	return b.rga.ExportOperations(), nil
}

// Operations drains the operations emitted by flushes so far.
func (b *RgaBuf) Operations() []Operation {
	ops := b.queued
	b.queued = nil
	return ops
}

// Inner flushes and returns the wrapped document.
func (b *RgaBuf) Inner() (*Rga, error) {
	if err := b.flush(); err != nil {
		return nil, err
	}
	return b.rga, nil
}
