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

package keys

import (
	"bytes"
	"errors"
	"testing"
)

func TestGenerateDistinct(t *testing.T) {
	a, err := Generate(nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := Generate(nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if a.Public() == b.Public() {
		t.Fatalf("two generated keypairs share public key %v", a.Public())
	}
}

func TestGenerateBrokenRNG(t *testing.T) {
	if _, err := Generate(failingReader{}); !errors.Is(err, ErrCryptoFailure) {
		t.Fatalf("Generate with broken RNG: got %v, want ErrCryptoFailure", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func TestSignVerify(t *testing.T) {
	kp, err := Generate(nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	other, err := Generate(nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	msg := []byte("signed log snapshot")
	sig := kp.Sign(msg)

	for _, test := range []struct {
		desc string
		pub  AuthorKey
		msg  []byte
		sig  Signature
		want bool
	}{
		{desc: "valid", pub: kp.Public(), msg: msg, sig: sig, want: true},
		{desc: "wrong key", pub: other.Public(), msg: msg, sig: sig, want: false},
		{desc: "wrong message", pub: kp.Public(), msg: []byte("tampered"), sig: sig, want: false},
		{desc: "wrong signature", pub: kp.Public(), msg: msg, sig: flipBit(sig), want: false},
	} {
		t.Run(test.desc, func(t *testing.T) {
			if got := Verify(test.pub, test.msg, test.sig); got != test.want {
				t.Errorf("Verify: got %t, want %t", got, test.want)
			}
		})
	}
}

func flipBit(sig Signature) Signature {
	sig[0] ^= 0x01
	return sig
}

func TestDiffieHellmanSymmetry(t *testing.T) {
	a, err := Generate(nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := Generate(nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	ab, err := DiffieHellman(a, b.ExchangePublic())
	if err != nil {
		t.Fatalf("DiffieHellman(a, B): %v", err)
	}
	ba, err := DiffieHellman(b, a.ExchangePublic())
	if err != nil {
		t.Fatalf("DiffieHellman(b, A): %v", err)
	}
	if ab != ba {
		t.Fatalf("shared secrets differ: %x vs %x", ab, ba)
	}
	c, err := Generate(nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	ac, err := DiffieHellman(a, c.ExchangePublic())
	if err != nil {
		t.Fatalf("DiffieHellman(a, C): %v", err)
	}
	if ab == ac {
		t.Fatalf("distinct peers produced the same shared secret")
	}
}

func TestSealOpen(t *testing.T) {
	a, err := Generate(nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := Generate(nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	shared, err := DiffieHellman(a, b.ExchangePublic())
	if err != nil {
		t.Fatalf("DiffieHellman: %v", err)
	}
	nonce := [NonceSize]byte{1, 2, 3}
	plaintext := []byte("concurrent edits are hard")
	ct := Seal(shared, &nonce, plaintext)

	got, err := Open(shared, &nonce, ct)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("Open: got %q, want %q", got, plaintext)
	}

	t.Run("tampered ciphertext", func(t *testing.T) {
		bad := append([]byte(nil), ct...)
		bad[len(bad)/2] ^= 0x01
		if pt, err := Open(shared, &nonce, bad); !errors.Is(err, ErrAuthentication) {
			t.Fatalf("Open(tampered): got (%q, %v), want ErrAuthentication", pt, err)
		}
	})
	t.Run("wrong nonce", func(t *testing.T) {
		wrong := [NonceSize]byte{9}
		if pt, err := Open(shared, &wrong, ct); !errors.Is(err, ErrAuthentication) {
			t.Fatalf("Open(wrong nonce): got (%q, %v), want ErrAuthentication", pt, err)
		}
	})
	t.Run("wrong key", func(t *testing.T) {
		c, err := Generate(nil)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		other, err := DiffieHellman(a, c.ExchangePublic())
		if err != nil {
			t.Fatalf("DiffieHellman: %v", err)
		}
		if pt, err := Open(other, &nonce, ct); !errors.Is(err, ErrAuthentication) {
			t.Fatalf("Open(wrong key): got (%q, %v), want ErrAuthentication", pt, err)
		}
	})
}

func TestSum256(t *testing.T) {
	h1 := Sum256([]byte("block"))
	h2 := Sum256([]byte("block"))
	if h1 != h2 {
		t.Fatalf("Sum256 not deterministic")
	}
	if h1 == Sum256([]byte("clock")) {
		t.Fatalf("distinct inputs collided")
	}
}
