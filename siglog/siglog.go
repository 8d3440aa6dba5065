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

// Package siglog implements a signed append-only log: a per-author
// sequence of opaque blocks aggregated into a bounded-arity BLAKE3 Merkle
// forest, with a single signature covering the current length and roots.
//
// Blocks are hashed 16-at-a-time into parent nodes until at most 16 roots
// remain, so a log of any length up to 2^64 is summarized by a fixed-size
// signed snapshot. Per-block membership is established with a Proof: the
// sibling hashes needed to recompute the block's ancestor root.
//
// Leaf, internal, and root hashes use distinct domain tags to rule out
// cross-domain preimage games.
package siglog

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"k8s.io/klog/v2"

	"github.com/slightknack/together/keys"
)

var (
	// ErrIndexOutOfBounds is returned when a block or proof is requested
	// for a position at or past the end of the log.
	ErrIndexOutOfBounds = errors.New("siglog: index out of bounds")
	// ErrInvalidSignature is returned when a signed artifact fails
	// signature verification during parsing.
	ErrInvalidSignature = errors.New("siglog: invalid signature")
	// ErrMalformed is returned when a serialized snapshot cannot be
	// decoded.
	ErrMalformed = errors.New("siglog: malformed encoding")
)

const (
	// arity is the number of children aggregated into each internal node.
	arity = 16

	leafTag     = 0x00
	internalTag = 0x01
	rootTag     = 0x02

	defaultNodeCacheSize = 4096
)

// LogOptions holds instantiation-time settings for a Log.
type LogOptions struct {
	// NodeCacheSize bounds the number of memoized internal node hashes.
	NodeCacheSize int
}

// WithNodeCacheSize overrides the size of the internal node hash cache.
// Larger caches make repeated Sign/Proof calls on a growing log cheaper.
func WithNodeCacheSize(n int) func(*LogOptions) {
	return func(o *LogOptions) {
		o.NodeCacheSize = n
	}
}

// nodeKey addresses an internal node of the aggregation. The number of
// leaves beneath the node is part of the key: nodes on the rightmost path
// of each level gain descendants as the log grows, sometimes without
// gaining direct children, so a hash cached for fewer leaves simply goes
// stale in place and is never served for the grown node.
type nodeKey struct {
	level  uint8
	index  uint64
	leaves uint64
}

// Log is an append-only sequence of opaque blocks owned by a single
// author keypair. It is not safe for concurrent use.
type Log struct {
	kp     keys.KeyPair
	blocks [][]byte
	// leaves memoizes the leaf hash of each block; blocks are immutable
	// once appended, so entries are never invalidated.
	leaves []keys.Hash
	nodes  *lru.Cache[nodeKey, keys.Hash]
}

// New creates an empty log owned by kp.
func New(kp keys.KeyPair, opts ...func(*LogOptions)) *Log {
	o := LogOptions{NodeCacheSize: defaultNodeCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	nodes, err := lru.New[nodeKey, keys.Hash](o.NodeCacheSize)
	if err != nil {
		// Only reachable with a non-positive size option.
		klog.Exitf("siglog: node cache: %v", err)
	}
	return &Log{kp: kp, nodes: nodes}
}

// Author returns the public key owning this log.
func (l *Log) Author() keys.AuthorKey {
	return l.kp.Public()
}

// Len returns the number of blocks appended so far.
func (l *Log) Len() uint64 {
	return uint64(len(l.blocks))
}

// Append adds a block to the end of the log and returns its index. The
// block bytes are retained by the log and must not be mutated afterwards.
func (l *Log) Append(block []byte) uint64 {
	i := uint64(len(l.blocks))
	l.blocks = append(l.blocks, block)
	l.leaves = append(l.leaves, leafHash(block))
	return i
}

// Block returns the block at index i.
func (l *Log) Block(i uint64) ([]byte, error) {
	if i >= uint64(len(l.blocks)) {
		return nil, fmt.Errorf("%w: block %d of %d", ErrIndexOutOfBounds, i, len(l.blocks))
	}
	return l.blocks[i], nil
}

func leafHash(block []byte) keys.Hash {
	buf := make([]byte, 0, 1+len(block))
	buf = append(buf, leafTag)
	buf = append(buf, block...)
	return keys.Sum256(buf)
}

// levelCount returns the number of nodes at the given aggregation level
// for a log of n leaves. Level 0 is the leaves themselves.
func levelCount(n uint64, level int) uint64 {
	for ; level > 0; level-- {
		n = (n + arity - 1) / arity
	}
	return n
}

// depth returns the number of reductions needed before at most arity
// roots remain for a log of n leaves.
func depth(n uint64) int {
	d := 0
	for levelCount(n, d) > arity {
		d++
	}
	return d
}

// childWidth returns how many children the node (level, index) currently
// has, given n leaves. level must be at least 1.
func childWidth(n uint64, level int, index uint64) int {
	below := levelCount(n, level-1)
	first := index * arity
	if first+arity <= below {
		return arity
	}
	return int(below - first)
}

// nodeHash computes (or recalls) the hash of the aggregation node at
// (level, index). Level 0 is the leaf layer.
func (l *Log) nodeHash(level int, index uint64) keys.Hash {
	if level == 0 {
		return l.leaves[index]
	}
	n := uint64(len(l.blocks))
	width := childWidth(n, level, index)
	first := index << (4 * uint(level))
	leaves := min(n-first, uint64(1)<<(4*uint(level)))
	key := nodeKey{level: uint8(level), index: index, leaves: leaves}
	if h, ok := l.nodes.Get(key); ok {
		return h
	}
	buf := make([]byte, 0, 1+width*len(keys.Hash{}))
	buf = append(buf, internalTag)
	for j := 0; j < width; j++ {
		h := l.nodeHash(level-1, index*arity+uint64(j))
		buf = append(buf, h[:]...)
	}
	h := keys.Sum256(buf)
	l.nodes.Add(key, h)
	return h
}

// roots returns the current root hashes: the nodes of the topmost
// aggregation level, at most arity of them.
func (l *Log) roots() []keys.Hash {
	n := uint64(len(l.blocks))
	d := depth(n)
	count := levelCount(n, d)
	rs := make([]keys.Hash, 0, count)
	for j := uint64(0); j < count; j++ {
		rs = append(rs, l.nodeHash(d, j))
	}
	return rs
}

// Sign captures the current length and roots of the log under a single
// signature, producing a snapshot that can be verified independently of
// the log itself.
func (l *Log) Sign() SignedLog {
	s := SignedLog{
		Author: l.kp.Public(),
		Length: uint64(len(l.blocks)),
		Roots:  l.roots(),
	}
	s.Signature = l.kp.Sign(s.signingInput())
	return s
}

// ProofStep carries the sibling hashes of one aggregation level: the
// hashes of every child of the parent node except the one on the path,
// whose position within the parent is Pos.
type ProofStep struct {
	Pos      int
	Siblings []keys.Hash
}

// Proof is the membership path for a single block: one step per
// aggregation level between the leaf layer and the root layer.
type Proof struct {
	Index uint64
	Steps []ProofStep
}

// Proof builds the membership proof for the block at index i against the
// log's current state. The proof is only meaningful alongside a SignedLog
// captured at the same length.
func (l *Log) Proof(i uint64) (Proof, error) {
	n := uint64(len(l.blocks))
	if i >= n {
		return Proof{}, fmt.Errorf("%w: proof for %d of %d", ErrIndexOutOfBounds, i, n)
	}
	d := depth(n)
	p := Proof{Index: i}
	idx := i
	for level := 0; level < d; level++ {
		parent := idx / arity
		pos := int(idx % arity)
		width := childWidth(n, level+1, parent)
		step := ProofStep{Pos: pos, Siblings: make([]keys.Hash, 0, width-1)}
		for j := 0; j < width; j++ {
			if j == pos {
				continue
			}
			step.Siblings = append(step.Siblings, l.nodeHash(level, parent*arity+uint64(j)))
		}
		p.Steps = append(p.Steps, step)
		idx = parent
	}
	return p, nil
}

// SignedLog is a verifiable snapshot of a log: the author, the length,
// the aggregation roots at that length, and a signature over all three.
type SignedLog struct {
	Author    keys.AuthorKey
	Length    uint64
	Roots     []keys.Hash
	Signature keys.Signature
}

// signingInput produces the canonical byte string the signature covers:
// author, length as big-endian u64, then the concatenated roots.
func (s SignedLog) signingInput() []byte {
	buf := make([]byte, 0, len(s.Author)+8+len(s.Roots)*32)
	buf = append(buf, s.Author[:]...)
	buf = binary.BigEndian.AppendUint64(buf, s.Length)
	for _, r := range s.Roots {
		buf = append(buf, r[:]...)
	}
	return buf
}

// Verify reports whether the snapshot's signature is valid over its
// canonical encoding.
func (s SignedLog) Verify() bool {
	return keys.Verify(s.Author, s.signingInput(), s.Signature)
}

// VerifyProof reports whether block sits at position i of the log this
// snapshot was captured from. It recomputes the block's ancestor root
// from the leaf hash and the proof's sibling hashes, insisting on the
// node widths and path positions implied by the snapshot length, then
// compares against the corresponding root.
func (s SignedLog) VerifyProof(i uint64, block []byte, p Proof) bool {
	if i >= s.Length || p.Index != i {
		return false
	}
	d := depth(s.Length)
	if len(p.Steps) != d {
		return false
	}
	if uint64(len(s.Roots)) != levelCount(s.Length, d) {
		return false
	}
	cur := leafHash(block)
	idx := i
	for level, step := range p.Steps {
		parent := idx / arity
		pos := int(idx % arity)
		width := childWidth(s.Length, level+1, parent)
		if step.Pos != pos || len(step.Siblings) != width-1 {
			return false
		}
		buf := make([]byte, 0, 1+width*32)
		buf = append(buf, internalTag)
		sib := 0
		for j := 0; j < width; j++ {
			if j == pos {
				buf = append(buf, cur[:]...)
				continue
			}
			buf = append(buf, step.Siblings[sib][:]...)
			sib++
		}
		cur = keys.Sum256(buf)
		idx = parent
	}
	root := i >> (4 * uint(d))
	if root >= uint64(len(s.Roots)) {
		return false
	}
	return bytes.Equal(cur[:], s.Roots[root][:])
}

// rootDigest condenses the root set into a single hash under the root
// domain tag. Checkpoints commit to this value.
func (s SignedLog) rootDigest() keys.Hash {
	buf := make([]byte, 0, 1+len(s.Roots)*32)
	buf = append(buf, rootTag)
	for _, r := range s.Roots {
		buf = append(buf, r[:]...)
	}
	return keys.Sum256(buf)
}

// Marshal serializes the snapshot:
//
//	author(32) || length(u64 LE) || root_count(varint) || root(32)* || signature(64)
func (s SignedLog) Marshal() []byte {
	buf := make([]byte, 0, 32+8+binary.MaxVarintLen64+len(s.Roots)*32+64)
	buf = append(buf, s.Author[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, s.Length)
	buf = binary.AppendUvarint(buf, uint64(len(s.Roots)))
	for _, r := range s.Roots {
		buf = append(buf, r[:]...)
	}
	buf = append(buf, s.Signature[:]...)
	return buf
}

// Unmarshal parses a serialized snapshot. It validates structure only;
// call Verify to check the signature.
func Unmarshal(raw []byte) (SignedLog, error) {
	var s SignedLog
	if len(raw) < 32+8 {
		return s, fmt.Errorf("%w: truncated header", ErrMalformed)
	}
	copy(s.Author[:], raw[:32])
	s.Length = binary.LittleEndian.Uint64(raw[32:40])
	rest := raw[40:]
	count, n := binary.Uvarint(rest)
	if n <= 0 {
		return s, fmt.Errorf("%w: bad root count", ErrMalformed)
	}
	rest = rest[n:]
	if count > arity {
		return s, fmt.Errorf("%w: %d roots, max %d", ErrMalformed, count, arity)
	}
	if uint64(len(rest)) != count*32+64 {
		return s, fmt.Errorf("%w: body is %d bytes, want %d", ErrMalformed, len(rest), count*32+64)
	}
	s.Roots = make([]keys.Hash, count)
	for j := range s.Roots {
		copy(s.Roots[j][:], rest[j*32:])
	}
	copy(s.Signature[:], rest[count*32:])
	return s, nil
}
