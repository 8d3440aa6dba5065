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

	"k8s.io/klog/v2"

	"github.com/slightknack/together/keys"
)

// ItemID identifies a single inserted character, document-wide and
// replica-independent: the author's public key and the author's
// per-character sequence number.
//
// ItemIDs are totally ordered by (author key bytes ascending, seq
// ascending). Author indices are never used for ordering: they are a
// process-local compression and differ between replicas.
type ItemID struct {
	Author keys.AuthorKey
	Seq    uint32
}

// Compare returns -1, 0, or +1 ordering a against b in the global total
// order.
func (a ItemID) Compare(b ItemID) int {
	if c := a.Author.Compare(b.Author); c != 0 {
		return c
	}
	switch {
	case a.Seq < b.Seq:
		return -1
	case a.Seq > b.Seq:
		return +1
	}
	return 0
}

func (a ItemID) String() string {
	return fmt.Sprintf("%v:%d", a.Author, a.Seq)
}

// noAuthor is the author-index sentinel marking an absent item
// reference. The author table caps out below it.
const noAuthor = ^uint16(0)

// itemRef is the compact in-tree form of an optional ItemID: a dense
// author index plus the sequence number. The zero-origin case ("no item")
// is the sentinel author index.
type itemRef struct {
	author uint16
	seq    uint32
}

var noRef = itemRef{author: noAuthor}

func (r itemRef) none() bool { return r.author == noAuthor }

// maxAuthors bounds the author table. One index is reserved for the
// no-item sentinel, and the spec promises at least 65534 authors.
const maxAuthors = 65534

// authorTable is the bidirectional AuthorKey <-> AuthorIndex mapping,
// and owns the per-author append-only content columns. Indices are dense
// from zero and never reused.
type authorTable struct {
	keys  []keys.AuthorKey
	cols  [][]byte
	index map[keys.AuthorKey]uint16
}

func newAuthorTable() authorTable {
	return authorTable{index: make(map[keys.AuthorKey]uint16)}
}

func (t *authorTable) lookup(k keys.AuthorKey) (uint16, bool) {
	i, ok := t.index[k]
	return i, ok
}

// intern returns the index for k, allocating one if needed.
func (t *authorTable) intern(k keys.AuthorKey) (uint16, error) {
	if i, ok := t.index[k]; ok {
		return i, nil
	}
	if len(t.keys) >= maxAuthors {
		return 0, fmt.Errorf("%w: %d authors", ErrTooManyAuthors, len(t.keys))
	}
	i := uint16(len(t.keys))
	t.keys = append(t.keys, k)
	t.cols = append(t.cols, nil)
	t.index[k] = i
	klog.V(2).Infof("author table: interned %v as index %d", k, i)
	return i, nil
}

func (t *authorTable) key(i uint16) keys.AuthorKey {
	return t.keys[i]
}

// compareRefs orders two present itemRefs in the global total order,
// resolving author indices through the table.
func (t *authorTable) compareRefs(a, b itemRef) int {
	if c := t.keys[a.author].Compare(t.keys[b.author]); c != 0 {
		return c
	}
	switch {
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return +1
	}
	return 0
}
