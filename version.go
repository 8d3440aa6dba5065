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
	"strings"

	"github.com/slightknack/together/internal/wtree"
)

// Version is a persistent snapshot of the document: a shared view of the
// span tree plus the content column headers captured at snapshot time.
// Taking a version is O(1); the snapshot shares storage with the live
// document until the live document mutates the shared leaves, which are
// then copied on write. Columns are append-only, so the captured headers
// never observe later content.
//
// A Version is an immutable value. It may be read from other goroutines
// once the originating document is no longer being mutated.
type Version struct {
	snap *wtree.Snapshot[span]
	cols [][]byte
}

// Version captures the current document state as a persistent snapshot.
func (r *Rga) Version() Version {
	cols := make([][]byte, len(r.authors.cols))
	for i, c := range r.authors.cols {
		cols[i] = c[:len(c):len(c)]
	}
	return Version{snap: r.tree.Snapshot(), cols: cols}
}

// Len returns the number of visible bytes in the snapshot.
func (v Version) Len() int {
	return int(v.snap.Weight())
}

// String materializes the snapshot contents.
func (v Version) String() string {
	var b strings.Builder
	b.Grow(v.Len())
	v.snap.Ascend(0, func(_ int, s span) bool {
		if !s.deleted {
			col := v.cols[s.author]
			b.Write(col[s.off : s.off+s.length])
		}
		return true
	})
	return b.String()
}

// Slice returns the snapshot bytes in [start, end).
func (v Version) Slice(start, end int) (string, error) {
	if start < 0 || end < start || end > v.Len() {
		return "", fmt.Errorf("%w: slice [%d, %d) of %d", ErrPositionOutOfBounds, start, end, v.Len())
	}
	if start == end {
		return "", nil
	}
	idx, off := v.snap.Find(uint64(start))
	var b strings.Builder
	b.Grow(end - start)
	remaining := end - start
	skip := off
	v.snap.Ascend(idx, func(_ int, s span) bool {
		if s.deleted {
			return true
		}
		col := v.cols[s.author]
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

// LenAt returns the document length at the given version.
func (r *Rga) LenAt(v Version) int { return v.Len() }

// StringAt returns the document contents at the given version.
func (r *Rga) StringAt(v Version) string { return v.String() }

// SliceAt returns the bytes in [start, end) at the given version.
func (r *Rga) SliceAt(v Version, start, end int) (string, error) {
	return v.Slice(start, end)
}
