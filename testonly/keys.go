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

// Package testonly provides deterministic fixtures for tests: keypairs
// with a known ordering.
package testonly

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/slightknack/together/keys"
)

// KeyPairs returns n deterministic keypairs sorted by public key bytes
// ascending, so KeyPairs(t, 2) yields an "alice" whose key orders before
// "bob".
func KeyPairs(t *testing.T, n int) []keys.KeyPair {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	kps := make([]keys.KeyPair, n)
	for i := range kps {
		kp, err := keys.Generate(rng)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		kps[i] = kp
	}
	sort.Slice(kps, func(i, j int) bool {
		a, b := kps[i].Public(), kps[j].Public()
		return a.Compare(b) < 0
	})
	return kps
}
