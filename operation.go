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
	"encoding/binary"
	"fmt"

	"github.com/slightknack/together/keys"
)

// OpKind discriminates the two operation kinds.
type OpKind uint8

const (
	// OpInsert introduces a run of characters with their dual origins.
	OpInsert OpKind = 0x01
	// OpDelete tombstones a contiguous run of one author's characters.
	OpDelete OpKind = 0x02
)

// Operation is the replicable form of a single edit. Insert operations
// carry the content and the origins captured at insertion time; delete
// operations name the target run by author and seq range.
type Operation struct {
	Kind   OpKind
	Author keys.AuthorKey
	// Seq is the first seq of the inserted run, or the first targeted
	// seq for a delete.
	Seq uint32
	// OriginLeft and OriginRight are the items flanking the insertion
	// point at insertion time; nil at the document edges. Insert only.
	OriginLeft  *ItemID
	OriginRight *ItemID
	// Content is the inserted bytes. Insert only.
	Content []byte
	// Length is the number of targeted seqs. Delete only.
	Length uint32
}

const opAuthorLen = keys.AuthorKeySize

// Encode serializes the operation:
//
//	Insert: 0x01 || author(32) || seq(u32 LE) || oid(left) || oid(right) || varint(len) || content
//	Delete: 0x02 || author(32) || seq(u32 LE) || len(u32 LE)
//	oid:    0x00  |  0x01 || author(32) || seq(u32 LE)
func (op Operation) Encode() []byte {
	buf := make([]byte, 0, 1+opAuthorLen+4+2*(1+opAuthorLen+4)+binary.MaxVarintLen64+len(op.Content))
	buf = append(buf, byte(op.Kind))
	buf = append(buf, op.Author[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, op.Seq)
	switch op.Kind {
	case OpInsert:
		buf = appendOptID(buf, op.OriginLeft)
		buf = appendOptID(buf, op.OriginRight)
		buf = binary.AppendUvarint(buf, uint64(len(op.Content)))
		buf = append(buf, op.Content...)
	case OpDelete:
		buf = binary.LittleEndian.AppendUint32(buf, op.Length)
	}
	return buf
}

func appendOptID(buf []byte, id *ItemID) []byte {
	if id == nil {
		return append(buf, 0x00)
	}
	buf = append(buf, 0x01)
	buf = append(buf, id.Author[:]...)
	return binary.LittleEndian.AppendUint32(buf, id.Seq)
}

// DecodeOperation parses a single encoded operation, rejecting trailing
// bytes: operations are framed externally (one per log block).
func DecodeOperation(raw []byte) (Operation, error) {
	var op Operation
	if len(raw) < 1+opAuthorLen+4 {
		return op, fmt.Errorf("%w: %d bytes", ErrMalformed, len(raw))
	}
	op.Kind = OpKind(raw[0])
	copy(op.Author[:], raw[1:1+opAuthorLen])
	op.Seq = binary.LittleEndian.Uint32(raw[1+opAuthorLen:])
	rest := raw[1+opAuthorLen+4:]
	switch op.Kind {
	case OpInsert:
		var err error
		if op.OriginLeft, rest, err = decodeOptID(rest); err != nil {
			return op, err
		}
		if op.OriginRight, rest, err = decodeOptID(rest); err != nil {
			return op, err
		}
		length, n := binary.Uvarint(rest)
		if n <= 0 {
			return op, fmt.Errorf("%w: bad content length", ErrMalformed)
		}
		rest = rest[n:]
		if uint64(len(rest)) != length {
			return op, fmt.Errorf("%w: content is %d bytes, want %d", ErrMalformed, len(rest), length)
		}
		op.Content = append([]byte(nil), rest...)
	case OpDelete:
		if len(rest) != 4 {
			return op, fmt.Errorf("%w: delete body is %d bytes, want 4", ErrMalformed, len(rest))
		}
		op.Length = binary.LittleEndian.Uint32(rest)
		if op.Length == 0 {
			return op, fmt.Errorf("%w: empty delete", ErrMalformed)
		}
	default:
		return op, fmt.Errorf("%w: unknown kind 0x%02x", ErrMalformed, raw[0])
	}
	return op, nil
}

func decodeOptID(raw []byte) (*ItemID, []byte, error) {
	if len(raw) < 1 {
		return nil, nil, fmt.Errorf("%w: truncated origin", ErrMalformed)
	}
	switch raw[0] {
	case 0x00:
		return nil, raw[1:], nil
	case 0x01:
		if len(raw) < 1+opAuthorLen+4 {
			return nil, nil, fmt.Errorf("%w: truncated origin id", ErrMalformed)
		}
		id := &ItemID{}
		copy(id.Author[:], raw[1:1+opAuthorLen])
		id.Seq = binary.LittleEndian.Uint32(raw[1+opAuthorLen:])
		return id, raw[1+opAuthorLen+4:], nil
	}
	return nil, nil, fmt.Errorf("%w: bad origin marker 0x%02x", ErrMalformed, raw[0])
}

// ExportOperations emits the document's history in causal order: every
// insert in document order (runs that continue one another are merged
// back into single operations), followed by the deletes. Replaying the
// result with FromOperations reproduces the visible text and, up to
// coalescing, the span layout.
func (r *Rga) ExportOperations() []Operation {
	var ops []Operation
	var run span
	haveRun := false
	flush := func() {
		if !haveRun {
			return
		}
		col := r.authors.cols[run.author]
		ops = append(ops, Operation{
			Kind:        OpInsert,
			Author:      r.authors.key(run.author),
			Seq:         run.seqStart,
			OriginLeft:  r.publicRef(run.originLeft),
			OriginRight: r.publicRef(run.originRight),
			Content:     append([]byte(nil), col[run.off:run.off+run.length]...),
		})
		haveRun = false
	}
	r.tree.Ascend(0, func(_ int, s span) bool {
		// Merge natural continuations regardless of deletion state or
		// epoch: tombstoning and merge bumps split spans for bookkeeping
		// reasons, but the underlying insert run is one operation.
		if haveRun &&
			s.author == run.author &&
			s.seqStart == run.seqEnd() &&
			s.off == run.off+run.length &&
			s.originLeft == run.last() &&
			s.originRight == run.originRight {
			run.length += s.length
			return true
		}
		flush()
		run = s
		haveRun = true
		return true
	})
	flush()

	r.tree.Ascend(0, func(_ int, s span) bool {
		if s.deleted {
			ops = appendDelete(ops, r.authors.key(s.author), s.seqStart, s.length)
		}
		return true
	})
	return ops
}

// FromOperations builds a document by replaying an exported operation
// stream. Operations whose dependencies arrive later in the stream are
// deferred and retried automatically; if dependencies are still missing
// once the stream is exhausted, the partially built document is returned
// along with a DeferredError naming them.
func FromOperations(ops []Operation) (*Rga, error) {
	r := New()
	for _, op := range ops {
		if _, err := r.Apply(op); err != nil && !IsDeferred(err) {
			return r, err
		}
	}
	if missing := r.MissingDependencies(); len(missing) > 0 {
		return r, &DeferredError{Missing: missing}
	}
	return r, nil
}
