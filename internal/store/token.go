// Copyright 2025 Arion Yau
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

package store

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// TokenHasher hashes slave registration tokens with Argon2id
type TokenHasher struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
}

// NewTokenHasher creates a hasher with the default Argon2 settings
func NewTokenHasher() *TokenHasher {
	return &TokenHasher{
		memory:      64 * 1024, // 64 MB
		iterations:  3,
		parallelism: 2,
		saltLength:  16,
		keyLength:   32,
	}
}

// NewFastTokenHasher uses small parameters, for tests only
func NewFastTokenHasher() *TokenHasher {
	return &TokenHasher{memory: 1024, iterations: 1, parallelism: 1, saltLength: 16, keyLength: 32}
}

// Hash returns the encoded Argon2 hash of token
func (h *TokenHasher) Hash(token []byte) (string, error) {
	salt := make([]byte, h.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := argon2.IDKey(token, salt, h.iterations, h.memory, h.parallelism, h.keyLength)

	// Format: $argon2id$v=19$m=65536,t=3,p=2$salt$hash
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%x$%x",
		argon2.Version, h.memory, h.iterations, h.parallelism, salt, hash), nil
}

// Verify checks token against an encoded hash
func (h *TokenHasher) Verify(token []byte, encoded string) (bool, error) {
	var version int
	var memory, iterations uint32
	var parallelism uint8
	var salt, hash []byte

	n, err := fmt.Sscanf(encoded, "$argon2id$v=%d$m=%d,t=%d,p=%d$%x$%x",
		&version, &memory, &iterations, &parallelism, &salt, &hash)
	if err != nil || n != 6 {
		return false, fmt.Errorf("invalid hash format")
	}
	if version != argon2.Version {
		return false, fmt.Errorf("incompatible version")
	}

	computed := argon2.IDKey(token, salt, iterations, memory, parallelism, uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, computed) == 1, nil
}
