package hash

import (
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Supported key hash algorithms.
const (
	AlgoSHA1   = "sha1"
	AlgoSHA256 = "sha256"
	AlgoXXHash = "xxhash"
)

// KeyHasher maps a key onto the identifier ring.
type KeyHasher interface {
	// Hash returns the ring position of key, always in [0, M).
	Hash(key string) uint64
}

// HasherFunc adapts a plain function to KeyHasher. The result is not reduced;
// callers must return values inside the ring.
type HasherFunc func(key string) uint64

// Hash calls f(key).
func (f HasherFunc) Hash(key string) uint64 {
	return f(key)
}

type digestHasher struct {
	mod    *big.Int
	digest func([]byte) []byte
}

// Hash reduces the full digest modulo M so every bit of the digest
// contributes to the ring position.
func (h *digestHasher) Hash(key string) uint64 {
	sum := h.digest([]byte(key))
	n := new(big.Int).SetBytes(sum)
	return n.Mod(n, h.mod).Uint64()
}

// SHA1 hashes keys with SHA-1 reduced modulo M.
func SHA1(space *Space) KeyHasher {
	return &digestHasher{
		mod: new(big.Int).SetUint64(space.Modulus()),
		digest: func(b []byte) []byte {
			sum := sha1.Sum(b)
			return sum[:]
		},
	}
}

// SHA256 hashes keys with SHA-256 reduced modulo M.
func SHA256(space *Space) KeyHasher {
	return &digestHasher{
		mod: new(big.Int).SetUint64(space.Modulus()),
		digest: func(b []byte) []byte {
			sum := sha256.Sum256(b)
			return sum[:]
		},
	}
}

type xxHasher struct {
	space *Space
}

func (h *xxHasher) Hash(key string) uint64 {
	return h.space.Reduce(xxhash.Sum64String(key))
}

// XXHash hashes keys with 64-bit xxhash reduced modulo M. It is not
// cryptographic but distributes uniformly and is much cheaper.
func XXHash(space *Space) KeyHasher {
	return &xxHasher{space: space}
}

// NewKeyHasher returns the hasher registered under algo.
func NewKeyHasher(algo string, space *Space) (KeyHasher, error) {
	if space == nil {
		return nil, fmt.Errorf("space cannot be nil")
	}
	switch strings.ToLower(algo) {
	case "", AlgoSHA1:
		return SHA1(space), nil
	case AlgoSHA256:
		return SHA256(space), nil
	case AlgoXXHash:
		return XXHash(space), nil
	default:
		return nil, fmt.Errorf("unsupported key hash %q", algo)
	}
}
