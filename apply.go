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
	"math"

	"k8s.io/klog/v2"
)

// Apply integrates a remote operation. It is idempotent: replaying an
// operation that already took effect returns (false, nil) and changes
// nothing. An operation whose origins or targets have not arrived yet is
// retained and reattempted after each later successful apply; such calls
// return (false, *DeferredError).
func (r *Rga) Apply(op Operation) (bool, error) {
	applied, err := r.applyOne(op)
	if err != nil {
		if IsDeferred(err) {
			r.pending = append(r.pending, op)
			klog.V(1).Infof("apply: deferred op %v:%d (%d pending)", op.Author, op.Seq, len(r.pending))
		}
		return false, err
	}
	if applied {
		r.retryPending()
	}
	return applied, err
}

// applyOne attempts a single operation without touching the pending
// buffer.
func (r *Rga) applyOne(op Operation) (bool, error) {
	switch op.Kind {
	case OpInsert:
		return r.applyInsert(op)
	case OpDelete:
		return r.applyDelete(op)
	}
	return false, fmt.Errorf("%w: unknown operation kind 0x%02x", ErrMalformed, byte(op.Kind))
}

func (r *Rga) applyInsert(op Operation) (bool, error) {
	if len(op.Content) == 0 {
		return false, nil
	}
	aidx, err := r.authors.intern(op.Author)
	if err != nil {
		return false, err
	}

	// Skip any already-present prefix of the run. Sub-runs of one insert
	// always arrive left to right (their naturalized origins force it),
	// so the present portion is a prefix: either the whole run was seen
	// before, or a suffix remains to integrate as the continuation of
	// the last present character.
	endSeq := op.Seq + uint32(len(op.Content))
	k := op.Seq
	for k < endSeq {
		_, s, ok := r.findItem(itemRef{author: aidx, seq: k})
		if !ok {
			break
		}
		k = min(s.seqEnd(), endSeq)
	}
	if k == endSeq {
		return false, nil
	}

	var left itemRef
	if k > op.Seq {
		left = itemRef{author: aidx, seq: k - 1}
	} else {
		left, err = r.internRef(op.OriginLeft)
		if err != nil {
			return false, err
		}
	}
	right, err := r.internRef(op.OriginRight)
	if err != nil {
		return false, err
	}
	var missing []ItemID
	if !left.none() && !r.hasItem(left) {
		missing = append(missing, *op.OriginLeft)
	}
	if !right.none() && !r.hasItem(right) {
		missing = append(missing, *op.OriginRight)
	}
	if len(missing) > 0 {
		return false, &DeferredError{Missing: missing}
	}
	content := op.Content[k-op.Seq:]
	col := r.authors.cols[aidx]
	if uint64(len(col))+uint64(len(content)) > math.MaxUint32 {
		return false, fmt.Errorf("%w: author column full", ErrCapacityExceeded)
	}
	r.invalidateCursor()
	off := uint32(len(col))
	r.authors.cols[aidx] = append(col, content...)
	r.place(span{
		author:      aidx,
		seqStart:    k,
		length:      uint32(len(content)),
		off:         off,
		originLeft:  left,
		originRight: right,
		epoch:       r.epoch,
	})
	return true, nil
}

func (r *Rga) applyDelete(op Operation) (bool, error) {
	if op.Length == 0 {
		return false, nil
	}
	aidx, err := r.authors.intern(op.Author)
	if err != nil {
		return false, err
	}
	end := op.Seq + op.Length

	// All targets must exist before any is tombstoned; a partial delete
	// would not be replayable.
	var missing []ItemID
	for seq := op.Seq; seq < end; {
		_, s, ok := r.findItem(itemRef{author: aidx, seq: seq})
		if !ok {
			missing = append(missing, ItemID{Author: op.Author, Seq: seq})
			seq++
			continue
		}
		seq = s.seqEnd()
	}
	if len(missing) > 0 {
		return false, &DeferredError{Missing: missing}
	}

	changed := false
	for seq := op.Seq; seq < end; {
		idx, s, _ := r.findItem(itemRef{author: aidx, seq: seq})
		if s.deleted {
			seq = min(s.seqEnd(), end)
			continue
		}
		if seq > s.seqStart {
			r.splitLeaf(idx, seq-s.seqStart)
			idx++
			s = r.tree.Get(idx)
		}
		if end < s.seqEnd() {
			r.splitLeaf(idx, end-s.seqStart)
			s = r.tree.Get(idx)
		}
		s.deleted = true
		r.tree.Set(idx, s)
		changed = true
		seq = s.seqEnd()
		if r.tryCoalesce(idx - 1) {
			idx--
		}
		r.tryCoalesce(idx)
	}
	if changed {
		r.invalidateCursor()
	}
	return changed, nil
}

// retryPending reattempts deferred operations until none makes progress.
// Each successful apply may unblock others, so the sweep loops to a
// fixpoint.
func (r *Rga) retryPending() {
	for {
		progress := false
		kept := r.pending[:0]
		for _, op := range r.pending {
			if _, err := r.applyOne(op); err != nil {
				if IsDeferred(err) {
					kept = append(kept, op)
					continue
				}
				klog.V(1).Infof("apply: dropping pending op %v:%d: %v", op.Author, op.Seq, err)
			}
			progress = true
		}
		r.pending = kept
		if !progress {
			return
		}
		if len(r.pending) == 0 {
			return
		}
	}
}

// PendingOperations returns the operations currently deferred on missing
// dependencies, in arrival order.
func (r *Rga) PendingOperations() []Operation {
	return append([]Operation(nil), r.pending...)
}

// MissingDependencies lists the items the deferred operations are
// waiting for.
func (r *Rga) MissingDependencies() []ItemID {
	var missing []ItemID
	seen := make(map[ItemID]bool)
	for _, op := range r.pending {
		var deps []*ItemID
		switch op.Kind {
		case OpInsert:
			deps = []*ItemID{op.OriginLeft, op.OriginRight}
		case OpDelete:
			for seq := op.Seq; seq < op.Seq+op.Length; seq++ {
				id := ItemID{Author: op.Author, Seq: seq}
				deps = append(deps, &id)
			}
		}
		for _, id := range deps {
			if id == nil || seen[*id] {
				continue
			}
			aidx, ok := r.authors.lookup(id.Author)
			if ok && r.hasItem(itemRef{author: aidx, seq: id.Seq}) {
				continue
			}
			seen[*id] = true
			missing = append(missing, *id)
		}
	}
	return missing
}

// Merge integrates every character of other into r by replaying other's
// exported operations. Afterwards r contains every item of both
// documents and the epoch counter moves past both inputs. Merge is
// commutative, associative, and idempotent in its effect on the visible
// text.
func (r *Rga) Merge(other *Rga) error {
	for _, op := range other.ExportOperations() {
		if _, err := r.Apply(op); err != nil && !IsDeferred(err) {
			return fmt.Errorf("merge: %w", err)
		}
	}
	if other.epoch > r.epoch {
		r.epoch = other.epoch
	}
	r.epoch++
	return nil
}
