// Package credential derives the storable digest of a password.
package credential

import (
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/argon2"
)

// Params tunes the argon2id derivation. Changing them invalidates every
// stored digest.
type Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
}

// DefaultParams follows the OWASP minimum for argon2id.
var DefaultParams = Params{Time: 1, Memory: 19 * 1024, Threads: 1, KeyLen: 32}

// Codec digests passwords with a single process-wide salt. The output is
// deterministic so the same digest is used both to store and to look up.
type Codec struct {
	salt   []byte
	params Params
}

// New returns a Codec. Zero fields in params fall back to DefaultParams.
func New(salt string, params Params) *Codec {
	if params.Time == 0 {
		params.Time = DefaultParams.Time
	}
	if params.Memory == 0 {
		params.Memory = DefaultParams.Memory
	}
	if params.Threads == 0 {
		params.Threads = DefaultParams.Threads
	}
	if params.KeyLen == 0 {
		params.KeyLen = DefaultParams.KeyLen
	}
	return &Codec{salt: []byte(salt), params: params}
}

// Digest returns the hex encoded digest of plaintext. Empty input is allowed.
func (c *Codec) Digest(plaintext string) string {
	key := argon2.IDKey([]byte(plaintext), c.salt, c.params.Time, c.params.Memory, c.params.Threads, c.params.KeyLen)
	return hex.EncodeToString(key)
}

// Verify reports whether plaintext produces digest.
func (c *Codec) Verify(digest, plaintext string) bool {
	return subtle.ConstantTimeCompare([]byte(digest), []byte(c.Digest(plaintext))) == 1
}
