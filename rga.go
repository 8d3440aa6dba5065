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

// Package together implements an authenticated collaborative text
// document: a replicated growable array (RGA) of run-length encoded
// character spans with dual-origin conflict resolution, position lookups
// through a weighted tree, stable anchors, persistent versions, and a
// causal operation stream suitable for feeding a signed log.
//
// A document is single-threaded by design: one instance is owned by one
// logical task, mutations are synchronous total functions, and
// multi-replica concurrency is expressed entirely through operation
// exchange (Apply) and state-based Merge. Two replicas that exchange
// their operations converge to the same sequence of visible characters
// at the same item positions.
package together

import (
	"fmt"
	"math"
	"strings"

	"github.com/slightknack/together/internal/wtree"
	"github.com/slightknack/together/keys"
)

// Options holds construction-time settings for a document.
type Options struct {
	// Epoch seeds the document's epoch counter. Spans record the epoch
	// current at their insertion; merges advance it past both inputs.
	Epoch uint32
}

// WithEpoch seeds the document's epoch counter.
func WithEpoch(e uint32) func(*Options) {
	return func(o *Options) {
		o.Epoch = e
	}
}

// cursorCache remembers the result of the most recent position lookup.
// It is a pure optimization: any mutation that could shift the cached
// leaf invalidates it, and sequential typing refreshes it so that the
// next keystroke resolves without descending the tree.
type cursorCache struct {
	valid bool
	pos   uint64
	idx   int
	off   uint64
}

// Rga is a collaborative text document. The zero value is not usable;
// construct instances with New.
type Rga struct {
	authors authorTable
	tree    *wtree.Tree[span]
	epoch   uint32
	cursor  cursorCache
	origins originIndex
	pending []Operation
}

// New creates an empty document.
func New(opts ...func(*Options)) *Rga {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return &Rga{
		authors: newAuthorTable(),
		tree:    wtree.New(span.visible),
		epoch:   o.Epoch,
		origins: make(originIndex),
	}
}

// Len returns the number of visible bytes in the document.
func (r *Rga) Len() int {
	return int(r.tree.Weight())
}

// SpanCount returns the number of leaf spans, tombstones included.
func (r *Rga) SpanCount() int {
	return r.tree.Len()
}

// String materializes the visible document contents.
func (r *Rga) String() string {
	var b strings.Builder
	b.Grow(r.Len())
	r.tree.Ascend(0, func(_ int, s span) bool {
		if !s.deleted {
			col := r.authors.cols[s.author]
			b.Write(col[s.off : s.off+s.length])
		}
		return true
	})
	return b.String()
}

// Slice returns the visible bytes in [start, end).
func (r *Rga) Slice(start, end int) (string, error) {
	if start < 0 || end < start || end > r.Len() {
		return "", fmt.Errorf("%w: slice [%d, %d) of %d", ErrPositionOutOfBounds, start, end, r.Len())
	}
	if start == end {
		return "", nil
	}
	idx, off := r.tree.Find(uint64(start))
	var b strings.Builder
	b.Grow(end - start)
	remaining := end - start
	skip := off
	r.tree.Ascend(idx, func(_ int, s span) bool {
		if s.deleted {
			return true
		}
		col := r.authors.cols[s.author]
		chunk := col[s.off+uint32(skip) : s.off+s.length]
		if len(chunk) > remaining {
			chunk = chunk[:remaining]
		}
		b.Write(chunk)
		remaining -= len(chunk)
		skip = 0
		return remaining > 0
	})
	return b.String(), nil
}

// findVisible resolves a visible position to (leaf index, offset within
// the leaf), consulting the cursor cache first.
func (r *Rga) findVisible(pos uint64) (int, uint64) {
	if r.cursor.valid && r.cursor.pos == pos {
		return r.cursor.idx, r.cursor.off
	}
	idx, off := r.tree.Find(pos)
	r.cursor = cursorCache{valid: true, pos: pos, idx: idx, off: off}
	return idx, off
}

// invalidateCursor drops the cached lookup. Called on any mutation that
// could shift leaf indices or weights.
func (r *Rga) invalidateCursor() {
	r.cursor.valid = false
}

// findItem locates the leaf covering the given character, returning its
// tree index. The scan is linear in the span count.
//
// TODO: maintain a per-author index of span positions so remote applies
// of large histories avoid the linear scan.
func (r *Rga) findItem(ref itemRef) (int, span, bool) {
	foundIdx, found := -1, span{}
	r.tree.Ascend(0, func(i int, s span) bool {
		if s.covers(ref) {
			foundIdx, found = i, s
			return false
		}
		return true
	})
	return foundIdx, found, foundIdx >= 0
}

// hasItem reports whether the given character exists in the document.
func (r *Rga) hasItem(ref itemRef) bool {
	_, _, ok := r.findItem(ref)
	return ok
}

// splitLeaf splits the leaf at idx before character offset at, leaving
// the left half at idx and the right half at idx+1. No-op when at is 0
// or the span length.
func (r *Rga) splitLeaf(idx int, at uint32) {
	s := r.tree.Get(idx)
	if at == 0 || at >= s.length {
		return
	}
	left, right := s.split(at)
	r.tree.Set(idx, left)
	r.tree.Insert(idx+1, right)
}

// tryCoalesce merges the leaves at idx and idx+1 when the coalesce
// predicate holds, reporting whether a merge happened.
func (r *Rga) tryCoalesce(idx int) bool {
	if idx < 0 || idx+1 >= r.tree.Len() {
		return false
	}
	l, rt := r.tree.Get(idx), r.tree.Get(idx+1)
	if !canCoalesce(l, rt) {
		return false
	}
	r.origins.dropSibling(rt)
	r.tree.Remove(idx + 1)
	r.tree.Set(idx, coalesce(l, rt))
	return true
}

// coalesceAround runs the coalesce pass across a window of leaves that a
// mutation may have affected.
func (r *Rga) coalesceAround(from, to int) {
	if from < 0 {
		from = 0
	}
	for i := from; i <= to && i < r.tree.Len(); {
		if !r.tryCoalesce(i) {
			i++
		} else if to > from {
			to--
		}
	}
}

// originAt returns the reference of the visible character at pos, or
// noRef past the end.
func (r *Rga) originAt(pos uint64) itemRef {
	if pos >= r.tree.Weight() {
		return noRef
	}
	idx, off := r.tree.Find(pos)
	s := r.tree.Get(idx)
	return itemRef{author: s.author, seq: s.seqStart + uint32(off)}
}

// Insert places bytes at the visible position pos on behalf of author,
// returning the operation that reproduces the edit on another replica.
// Inserting zero bytes is a no-op returning the zero Operation.
func (r *Rga) Insert(author keys.AuthorKey, pos int, bytes []byte) (Operation, error) {
	if pos < 0 || pos > r.Len() {
		return Operation{}, fmt.Errorf("%w: insert at %d of %d", ErrPositionOutOfBounds, pos, r.Len())
	}
	if len(bytes) == 0 {
		return Operation{}, nil
	}
	aidx, err := r.authors.intern(author)
	if err != nil {
		return Operation{}, err
	}
	col := r.authors.cols[aidx]
	if uint64(len(col))+uint64(len(bytes)) > math.MaxUint32 {
		return Operation{}, fmt.Errorf("%w: author column full", ErrCapacityExceeded)
	}
	seqStart := uint32(len(col))
	length := uint32(len(bytes))

	// Dual origins: the visible characters flanking the insertion point.
	var originLeft, originRight itemRef
	var leftIdx int
	var leftOff uint64
	if pos == 0 {
		originLeft = noRef
		leftIdx = -1
	} else {
		leftIdx, leftOff = r.findVisible(uint64(pos - 1))
		ls := r.tree.Get(leftIdx)
		originLeft = itemRef{author: ls.author, seq: ls.seqStart + uint32(leftOff)}
	}
	originRight = r.originAt(uint64(pos))

	op := Operation{
		Kind:    OpInsert,
		Author:  author,
		Seq:     seqStart,
		Content: append([]byte(nil), bytes...),
	}
	op.OriginLeft = r.publicRef(originLeft)
	op.OriginRight = r.publicRef(originRight)

	// Coalescing fast path: extending the span that ends at pos-1, when
	// the insertion point sits hard against its end (no tombstones in
	// between that placement could order us around) and the right
	// context matches.
	if leftIdx >= 0 {
		ls := r.tree.Get(leftIdx)
		if ls.author == aidx && !ls.deleted && ls.epoch == r.epoch &&
			ls.seqEnd() == seqStart && ls.off+ls.length == seqStart &&
			uint32(leftOff) == ls.length-1 &&
			originRight == ls.originRight &&
			r.nextLeafStartsWith(leftIdx, originRight) {
			r.authors.cols[aidx] = append(col, bytes...)
			ls.length += length
			r.tree.Set(leftIdx, ls)
			r.cursor = cursorCache{valid: true, pos: uint64(pos) + uint64(length) - 1, idx: leftIdx, off: uint64(ls.length) - 1}
			return op, nil
		}
	}

	r.invalidateCursor()
	r.authors.cols[aidx] = append(col, bytes...)
	s := span{
		author:      aidx,
		seqStart:    seqStart,
		length:      length,
		off:         seqStart,
		originLeft:  originLeft,
		originRight: originRight,
		epoch:       r.epoch,
	}
	r.place(s)
	return op, nil
}

// nextLeafStartsWith reports whether the leaf after idx either does not
// exist and right is absent, or begins with the character right. Used to
// rule out intervening tombstones before extending a span in place.
func (r *Rga) nextLeafStartsWith(idx int, right itemRef) bool {
	if idx+1 >= r.tree.Len() {
		return right.none()
	}
	if right.none() {
		return false
	}
	n := r.tree.Get(idx + 1)
	return n.head() == right
}

// publicRef widens an internal reference to a public ItemID, or nil for
// the absent reference.
func (r *Rga) publicRef(ref itemRef) *ItemID {
	if ref.none() {
		return nil
	}
	return &ItemID{Author: r.authors.key(ref.author), Seq: ref.seq}
}

// internRef narrows a public ItemID to an internal reference, interning
// the author if needed.
func (r *Rga) internRef(id *ItemID) (itemRef, error) {
	if id == nil {
		return noRef, nil
	}
	aidx, err := r.authors.intern(id.Author)
	if err != nil {
		return noRef, err
	}
	return itemRef{author: aidx, seq: id.Seq}, nil
}

// Delete tombstones length visible bytes starting at pos, returning the
// operations that reproduce the edit elsewhere. Content is retained;
// only visibility changes.
func (r *Rga) Delete(pos, length int) ([]Operation, error) {
	if pos < 0 || length < 0 || pos+length > r.Len() {
		return nil, fmt.Errorf("%w: delete [%d, %d) of %d", ErrPositionOutOfBounds, pos, pos+length, r.Len())
	}
	if length == 0 {
		return nil, nil
	}
	r.invalidateCursor()

	var ops []Operation
	firstIdx := -1
	lastIdx := -1
	remaining := uint32(length)
	for remaining > 0 {
		idx, off := r.tree.Find(uint64(pos))
		r.splitLeaf(idx, uint32(off))
		if off > 0 {
			idx++
		}
		s := r.tree.Get(idx)
		take := s.length
		if take > remaining {
			r.splitLeaf(idx, remaining)
			s = r.tree.Get(idx)
			take = remaining
		}
		s.deleted = true
		r.tree.Set(idx, s)
		ops = appendDelete(ops, r.authors.key(s.author), s.seqStart, take)
		if firstIdx < 0 {
			firstIdx = idx
		}
		lastIdx = idx
		remaining -= take
	}
	r.coalesceAround(firstIdx-1, lastIdx+1)
	return ops, nil
}

// appendDelete extends the previous delete operation when target ranges
// are contiguous, otherwise appends a new one.
func appendDelete(ops []Operation, author keys.AuthorKey, seq, length uint32) []Operation {
	if n := len(ops); n > 0 {
		prev := &ops[n-1]
		if prev.Kind == OpDelete && prev.Author == author && prev.Seq+prev.Length == seq {
			prev.Length += length
			return ops
		}
	}
	return append(ops, Operation{Kind: OpDelete, Author: author, Seq: seq, Length: length})
}
