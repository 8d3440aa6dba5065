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

// Placement of a new span among the children of its left origin follows
// the dual-origin (Fugue / YATA-Max) rules:
//
//   - A span never moves past its right origin: the scan stops when it
//     reaches the character that was immediately right at insert time.
//   - Among siblings sharing a left origin, order is decided first by
//     right origin (an absent right origin is unbounded and orders last;
//     between two bounded siblings the higher right-origin item comes
//     earlier), then by the span's own item identifier, descending.
//   - A losing comparison skips not just the sibling but its whole
//     subtree: every span whose origin chain descends into it.
//
// Epochs are carried on spans but deliberately take no part in these
// comparisons: the epoch tag is not part of the wire format, so replicas
// can disagree about it, and any epoch-first ordering would have to agree
// with the rules above anyway to converge.

// originIndexThreshold is the sibling count at which an origin's
// children are worth indexing; below it a linear sweep wins.
const originIndexThreshold = 8

// sibEntry records one sibling of an indexed origin: the head of the
// span as created, and its right origin. Entries are kept in document
// order. Placement is first-win and a right origin can end a scan early,
// so that order need not agree with pairwise sibBefore comparisons; the
// entry list is therefore searched linearly.
type sibEntry struct {
	head  itemRef
	right itemRef
}

// originIndex maps an origin to the ordered set of its sibling spans.
// Populated lazily: an entry appears only once a placement scan has
// enumerated at least originIndexThreshold siblings, and is dropped
// whenever structural churn (a coalesce absorbing a sibling head) would
// make it unreliable.
type originIndex map[itemRef][]sibEntry

// build installs the enumerated sibling list for an origin.
func (oi originIndex) build(origin itemRef, sibs []sibEntry) {
	oi[origin] = append([]sibEntry(nil), sibs...)
}

// add registers a newly placed sibling at its sorted slot, if the origin
// is indexed.
func (oi originIndex) add(origin itemRef, slot int, e sibEntry) {
	entries, ok := oi[origin]
	if !ok {
		return
	}
	if slot < 0 || slot > len(entries) {
		return
	}
	entries = append(entries, sibEntry{})
	copy(entries[slot+1:], entries[slot:])
	entries[slot] = e
	oi[origin] = entries
}

// dropSibling invalidates the index entry covering a span that is being
// absorbed by a coalesce, since its head will no longer start a leaf.
func (oi originIndex) dropSibling(s span) {
	delete(oi, s.originLeft)
}

// sibBefore reports whether a sibling with (aRight, aHead) precedes one
// with (bRight, bHead) among children of the same left origin.
func (r *Rga) sibBefore(aRight, aHead, bRight, bHead itemRef) bool {
	if aRight != bRight {
		if aRight.none() {
			// a is unbounded on the right and orders after anything
			// bounded.
			return false
		}
		if bRight.none() {
			return true
		}
		// The higher right origin arrived later and comes earlier.
		return r.authors.compareRefs(aRight, bRight) > 0
	}
	return r.authors.compareRefs(aHead, bHead) > 0
}

// skipSet tracks the seq ranges of spans passed over during a placement
// scan: winning siblings and their descendants. A span whose left origin
// lands inside the set belongs to a skipped subtree.
type skipSet []seqRange

type seqRange struct {
	author   uint16
	seqStart uint32
	seqEnd   uint32
}

func (b *skipSet) add(s span) {
	*b = append(*b, seqRange{author: s.author, seqStart: s.seqStart, seqEnd: s.seqEnd()})
}

func (b skipSet) contains(ref itemRef) bool {
	for _, rg := range b {
		if rg.author == ref.author && ref.seq >= rg.seqStart && ref.seq < rg.seqEnd {
			return true
		}
	}
	return false
}

// place installs s into the tree at the position the ordering rules
// dictate, splitting boundary spans as needed and re-coalescing around
// the insertion point. The caller guarantees both origins (when present)
// exist in the tree.
func (r *Rga) place(s span) {
	scanStart := 0
	if !s.originLeft.none() {
		idx, ls, ok := r.findItem(s.originLeft)
		if !ok {
			panic("together: place called with absent left origin")
		}
		r.splitLeaf(idx, s.originLeft.seq-ls.seqStart+1)
		scanStart = idx + 1
	}
	if !s.originRight.none() {
		idx, rs, ok := r.findItem(s.originRight)
		if !ok {
			panic("together: place called with absent right origin")
		}
		r.splitLeaf(idx, s.originRight.seq-rs.seqStart)
	}

	chosen, slot := r.scanPlacement(s, scanStart)
	r.tree.Insert(chosen, s)
	r.origins.add(s.originLeft, slot, sibEntry{head: s.head(), right: s.originRight})
	if r.tryCoalesce(chosen - 1) {
		chosen--
	}
	r.tryCoalesce(chosen)
}

// scanPlacement returns the tree index where s belongs, along with s's
// ordinal slot among its siblings in document order (for index
// maintenance).
//
// When the origin's siblings are indexed, the comparisons run over the
// contiguous entry list instead of tree leaves, and the tree walk
// reduces to locating the chosen sibling's head: no subtree bookkeeping
// is needed because everything between two sibling heads belongs to the
// earlier sibling's subtree. Otherwise the full sweep classifies each
// leaf as peer, descendant, or region end.
func (r *Rga) scanPlacement(s span, scanStart int) (int, int) {
	if entries, ok := r.origins[s.originLeft]; ok {
		// First sibling, in document order, that s precedes. The first
		// winning comparison decides, exactly as in the leaf sweep.
		slot := len(entries)
		for k, e := range entries {
			if r.sibBefore(s.originRight, s.head(), e.right, e.head) {
				slot = k
				break
			}
		}
		if slot < len(entries) {
			target := entries[slot].head
			i := scanStart
			n := r.tree.Len()
			passed := 0
			for i < n {
				o := r.tree.Get(i)
				if !s.originRight.none() && o.head() == s.originRight {
					break
				}
				if o.head() == target {
					break
				}
				if passed < slot && o.head() == entries[passed].head {
					passed++
				}
				i++
			}
			return i, passed
		}
		// s orders after every indexed sibling; sweep on to find the
		// end of the children region.
	}

	pos, complete, sibs := r.scanRegion(s, scanStart, func(o span) bool {
		return r.sibBefore(s.originRight, s.head(), o.originRight, o.head())
	})
	if _, ok := r.origins[s.originLeft]; !ok && complete && len(sibs) >= originIndexThreshold {
		// The sweep enumerated every sibling of this origin; later
		// placements among them can compare against the index instead
		// of re-deriving siblings from leaves.
		r.origins.build(s.originLeft, sibs)
	}
	return pos, len(sibs)
}

// scanRegion sweeps the children region of s's left origin starting at
// scanStart. placeBefore decides, for each peer sibling encountered,
// whether s precedes it. The sweep returns the chosen tree index,
// whether the region was fully traversed (rather than cut short by a
// winning comparison), and the siblings passed over, in order.
func (r *Rga) scanRegion(s span, scanStart int, placeBefore func(o span) bool) (int, bool, []sibEntry) {
	var blocks skipSet
	var sibs []sibEntry
	i := scanStart
	n := r.tree.Len()
	for i < n {
		o := r.tree.Get(i)
		// Reaching the right origin ends the region: s was inserted
		// immediately before it and can never order past it.
		if !s.originRight.none() && o.head() == s.originRight {
			return i, true, sibs
		}
		if o.originLeft == s.originLeft {
			if placeBefore(o) {
				return i, false, sibs
			}
			blocks.add(o)
			sibs = append(sibs, sibEntry{head: o.head(), right: o.originRight})
			i++
			continue
		}
		if !o.originLeft.none() && blocks.contains(o.originLeft) {
			// o descends from a sibling we already passed; its whole
			// span rides along.
			blocks.add(o)
			i++
			continue
		}
		// o belongs to an enclosing context: the children region ends
		// here.
		return i, true, sibs
	}
	return i, true, sibs
}
