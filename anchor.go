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

import "fmt"

// Bias orients an anchor relative to its character: a Before anchor
// resolves to the character's position, an After anchor to the position
// just past it.
type Bias uint8

const (
	// Before anchors to the left edge of the character.
	Before Bias = iota
	// After anchors to the right edge of the character.
	After
)

// Anchor is a stable reference into the sequence: it names a character
// by identity rather than position, so it survives edits elsewhere in
// the document. Anchors at the document edges are represented
// explicitly so an empty document can still be anchored.
type Anchor struct {
	item ItemID
	bias Bias
	// edge is -1 for the document start, +1 for the document end, 0 for
	// an item anchor.
	edge int8
}

// Item returns the anchored item and false for edge anchors.
func (a Anchor) Item() (ItemID, bool) {
	return a.item, a.edge == 0
}

// AnchorAt creates an anchor at the visible position pos. A Before
// anchor attaches to the character at pos (or the document end when pos
// is the length); an After anchor attaches to the character at pos-1
// (or the document start when pos is zero).
func (r *Rga) AnchorAt(pos int, bias Bias) (Anchor, error) {
	if pos < 0 || pos > r.Len() {
		return Anchor{}, fmt.Errorf("%w: anchor at %d of %d", ErrPositionOutOfBounds, pos, r.Len())
	}
	switch bias {
	case Before:
		if pos == r.Len() {
			return Anchor{bias: bias, edge: +1}, nil
		}
		ref := r.originAt(uint64(pos))
		return Anchor{item: *r.publicRef(ref), bias: bias}, nil
	default:
		if pos == 0 {
			return Anchor{bias: bias, edge: -1}, nil
		}
		ref := r.originAt(uint64(pos - 1))
		return Anchor{item: *r.publicRef(ref), bias: bias}, nil
	}
}

// posOfItem returns the visible position of the given character and its
// deletion state. Found is false when the item is unknown.
func (r *Rga) posOfItem(ref itemRef) (pos int, deleted, found bool) {
	acc := 0
	r.tree.Ascend(0, func(_ int, s span) bool {
		if s.covers(ref) {
			found = true
			deleted = s.deleted
			pos = acc + int(ref.seq-s.seqStart)
			return false
		}
		acc += int(s.visible())
		return true
	})
	return pos, deleted, found
}

// ResolveAnchor returns the current visible position of the anchor. The
// second result is false when the anchored character has been deleted or
// is not present in this document; callers wanting a nearest-neighbor
// fallback implement it themselves.
func (r *Rga) ResolveAnchor(a Anchor) (int, bool) {
	switch a.edge {
	case -1:
		return 0, true
	case +1:
		return r.Len(), true
	}
	aidx, ok := r.authors.lookup(a.item.Author)
	if !ok {
		return 0, false
	}
	pos, deleted, found := r.posOfItem(itemRef{author: aidx, seq: a.item.Seq})
	if !found || deleted {
		return 0, false
	}
	if a.bias == After {
		pos++
	}
	return pos, true
}

// AnchorRange is a pair of anchors delimiting [Start, End). The
// endpoint biases are chosen so that concurrent inserts at either edge
// fall inside the range.
type AnchorRange struct {
	Start Anchor
	End   Anchor
}

// AnchorRangeAt anchors the visible range [start, end). The start is
// held by an After anchor on the character before it and the end by a
// Before anchor on the character at it, so edits arriving exactly at an
// endpoint expand the range rather than escaping it.
func (r *Rga) AnchorRangeAt(start, end int) (AnchorRange, error) {
	if start < 0 || end < start || end > r.Len() {
		return AnchorRange{}, fmt.Errorf("%w: range [%d, %d) of %d", ErrPositionOutOfBounds, start, end, r.Len())
	}
	s, err := r.AnchorAt(start, After)
	if err != nil {
		return AnchorRange{}, err
	}
	e, err := r.AnchorAt(end, Before)
	if err != nil {
		return AnchorRange{}, err
	}
	return AnchorRange{Start: s, End: e}, nil
}

// SliceAnchored returns the current contents of the anchored range. The
// second result is false when either endpoint no longer resolves.
func (r *Rga) SliceAnchored(rng AnchorRange) (string, bool) {
	start, ok := r.ResolveAnchor(rng.Start)
	if !ok {
		return "", false
	}
	end, ok := r.ResolveAnchor(rng.End)
	if !ok {
		return "", false
	}
	if end < start {
		end = start
	}
	s, err := r.Slice(start, end)
	if err != nil {
		return "", false
	}
	return s, true
}
