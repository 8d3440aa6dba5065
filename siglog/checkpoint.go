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

package siglog

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strconv"

	"golang.org/x/mod/sumdb/note"
)

// Checkpoint is the parsed form of a checkpoint note body: the log origin
// line, the log size, and a digest condensing the aggregation roots.
type Checkpoint struct {
	Origin string
	Size   uint64
	Digest [32]byte
}

// Marshal emits the checkpoint body in the conventional three-line form:
// origin, decimal size, base64 digest.
func (c Checkpoint) Marshal() []byte {
	return []byte(fmt.Sprintf("%s\n%d\n%s\n", c.Origin, c.Size, base64.StdEncoding.EncodeToString(c.Digest[:])))
}

// Checkpoint publishes the current log state as a note-signed checkpoint.
// This is the textual interop surface for ecosystems that exchange signed
// tree heads as notes; the binary SignedLog form remains the canonical
// snapshot for per-block proofs.
func (l *Log) Checkpoint(origin string, s note.Signer) ([]byte, error) {
	signed := l.Sign()
	body := Checkpoint{
		Origin: origin,
		Size:   signed.Length,
		Digest: signed.rootDigest(),
	}
	n, err := note.Sign(&note.Note{Text: string(body.Marshal())}, s)
	if err != nil {
		return nil, fmt.Errorf("note.Sign: %w", err)
	}
	return n, nil
}

// ParseCheckpoint opens a note-signed checkpoint, insisting on a valid
// signature from v and the expected origin line.
func ParseCheckpoint(raw []byte, origin string, v note.Verifier) (Checkpoint, error) {
	n, err := note.Open(raw, note.VerifierList(v))
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	parts := bytes.SplitN([]byte(n.Text), []byte{'\n'}, 4)
	if len(parts) < 3 {
		return Checkpoint{}, fmt.Errorf("%w: checkpoint has %d lines, want 3", ErrMalformed, len(parts))
	}
	c := Checkpoint{Origin: string(parts[0])}
	if c.Origin != origin {
		return Checkpoint{}, fmt.Errorf("%w: origin %q, want %q", ErrMalformed, c.Origin, origin)
	}
	c.Size, err = strconv.ParseUint(string(parts[1]), 10, 64)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: bad size line %q", ErrMalformed, parts[1])
	}
	digest, err := base64.StdEncoding.DecodeString(string(parts[2]))
	if err != nil || len(digest) != 32 {
		return Checkpoint{}, fmt.Errorf("%w: bad digest line", ErrMalformed)
	}
	copy(c.Digest[:], digest)
	return c, nil
}
