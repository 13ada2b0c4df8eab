package types

import (
	"crypto/sha512"
	"hash"
	"sort"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// HashAlgorithm names the digest shared with the dispatcher for box keys.
type HashAlgorithm string

const (
	HashSHA512_256  HashAlgorithm = "sha512_256"
	HashSHA3_256    HashAlgorithm = "sha3_256"
	HashBlake2b_256 HashAlgorithm = "blake2b_256"
)

// DefaultHashAlgorithm is the dispatcher's box naming digest.
const DefaultHashAlgorithm = HashSHA512_256

var hashers = map[HashAlgorithm]func() hash.Hash{
	HashSHA512_256: sha512.New512_256,
	HashSHA3_256:   sha3.New256,
	HashBlake2b_256: func() hash.Hash {
		h, _ := blake2b.New256(nil)
		return h
	},
}

// HashAlgorithms lists the supported names in sorted order.
func HashAlgorithms() []string {
	names := make([]string, 0, len(hashers))
	for name := range hashers {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

func (a HashAlgorithm) Validate() error {
	if _, ok := hashers[a]; !ok {
		return ErrUnknownHashAlgorithm.Wrapf("%q, supported: %v", string(a), HashAlgorithms())
	}
	return nil
}

// Sum hashes the concatenation of parts. Every supported digest is 32 bytes wide.
func (a HashAlgorithm) Sum(parts ...[]byte) ([32]byte, error) {
	var out [32]byte

	newHash, ok := hashers[a]
	if !ok {
		return out, a.Validate()
	}

	h := newHash()
	for _, p := range parts {
		h.Write(p)
	}
	copy(out[:], h.Sum(nil))

	return out, nil
}
