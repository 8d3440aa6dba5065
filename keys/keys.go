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

// Package keys provides the small set of cryptographic primitives the rest
// of the module depends on: ed25519 signatures for author identity,
// X25519 key agreement, XChaCha20-Poly1305 authenticated encryption, and
// BLAKE3 hashing.
//
// Nothing here is novel cryptography; the package exists so that every
// consumer names keys and hashes with the same fixed-size types, and so
// that failure modes (bad tag, bad signature, broken RNG) surface as
// errors rather than panics.
package keys

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"lukechampine.com/blake3"
)

var (
	// ErrAuthentication is returned by Open when a ciphertext fails tag
	// verification. No plaintext is ever returned alongside it.
	ErrAuthentication = errors.New("keys: message authentication failed")
	// ErrCryptoFailure indicates a catastrophic primitive failure, e.g.
	// the system RNG refusing to produce bytes.
	ErrCryptoFailure = errors.New("keys: crypto primitive failure")
)

const (
	// AuthorKeySize is the size of an author's public signing key.
	AuthorKeySize = 32
	// SignatureSize is the size of a detached ed25519 signature.
	SignatureSize = ed25519.SignatureSize
	// NonceSize is the AEAD nonce size. XChaCha20-Poly1305 uses extended
	// 24-byte nonces, large enough to be chosen at random.
	NonceSize = chacha20poly1305.NonceSizeX
)

// AuthorKey is a 32-byte ed25519 public key identifying an author.
//
// AuthorKeys have a global total order (lexicographic on the raw bytes)
// which the document layer uses to break ties between concurrent edits.
type AuthorKey [AuthorKeySize]byte

// Compare returns -1, 0, or +1 ordering a against b lexicographically.
func (a AuthorKey) Compare(b AuthorKey) int {
	return bytes.Compare(a[:], b[:])
}

// String returns a short hex prefix of the key, for logs and test output.
func (a AuthorKey) String() string {
	return fmt.Sprintf("%x", a[:4])
}

// ExchangeKey is a 32-byte X25519 public key used for key agreement.
type ExchangeKey [32]byte

// SharedSecret is the 32-byte output of a Diffie-Hellman exchange, used
// directly as an AEAD key.
type SharedSecret [32]byte

// Signature is a detached 64-byte ed25519 signature.
type Signature [SignatureSize]byte

// Hash is a 32-byte BLAKE3 digest.
type Hash [32]byte

// KeyPair holds an author's signing key and the X25519 exchange scalar
// derived from it. The zero KeyPair is not usable; obtain one via Generate.
type KeyPair struct {
	priv     ed25519.PrivateKey
	pub      AuthorKey
	exchPriv [32]byte
	exchPub  ExchangeKey
}

// Generate creates a fresh KeyPair from rng, or from crypto/rand when rng
// is nil. Two calls never return the same pair; an exhausted or failing
// RNG is surfaced as ErrCryptoFailure.
func Generate(rng io.Reader) (KeyPair, error) {
	if rng == nil {
		rng = rand.Reader
	}
	pub, priv, err := ed25519.GenerateKey(rng)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}
	kp := KeyPair{priv: priv}
	copy(kp.pub[:], pub)

	// The exchange scalar is derived from the signing seed so that a
	// KeyPair round-tripped through its seed always agrees with itself.
	scalar := blake3.Sum256(append([]byte("together/x25519-scalar"), priv.Seed()...))
	kp.exchPriv = scalar
	ep, err := curve25519.X25519(kp.exchPriv[:], curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}
	copy(kp.exchPub[:], ep)
	return kp, nil
}

// Public returns the author's public signing key.
func (kp KeyPair) Public() AuthorKey {
	return kp.pub
}

// ExchangePublic returns the X25519 public key peers use to agree on a
// shared secret with this author.
func (kp KeyPair) ExchangePublic() ExchangeKey {
	return kp.exchPub
}

// Sign produces a detached signature over msg.
func (kp KeyPair) Sign(msg []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(kp.priv, msg))
	return sig
}

// Verify reports whether sig is a valid signature over msg by pub.
func Verify(pub AuthorKey, msg []byte, sig Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig[:])
}

// DiffieHellman computes the shared secret between kp and a peer's
// exchange key. DiffieHellman(a, B) == DiffieHellman(b, A) for any two
// pairs a, b with exchange publics A, B.
func DiffieHellman(kp KeyPair, theirs ExchangeKey) (SharedSecret, error) {
	out, err := curve25519.X25519(kp.exchPriv[:], theirs[:])
	if err != nil {
		return SharedSecret{}, fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}
	var s SharedSecret
	copy(s[:], out)
	return s, nil
}

// Seal encrypts and authenticates plaintext under the shared secret with
// the given 24-byte nonce, returning the ciphertext with appended tag.
func Seal(shared SharedSecret, nonce *[NonceSize]byte, plaintext []byte) []byte {
	aead, err := chacha20poly1305.NewX(shared[:])
	if err != nil {
		// NewX only fails on a bad key length, which the SharedSecret
		// type rules out.
		panic(fmt.Sprintf("keys: NewX: %v", err))
	}
	return aead.Seal(nil, nonce[:], plaintext, nil)
}

// Open authenticates and decrypts a ciphertext produced by Seal. Any
// modification of the ciphertext, nonce, or key yields ErrAuthentication
// and no plaintext.
func Open(shared SharedSecret, nonce *[NonceSize]byte, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(shared[:])
	if err != nil {
		panic(fmt.Sprintf("keys: NewX: %v", err))
	}
	pt, err := aead.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return pt, nil
}

// Sum256 returns the BLAKE3 digest of data.
func Sum256(data []byte) Hash {
	return blake3.Sum256(data)
}
