package hash

import (
	"fmt"
	"math/bits"
)

const (
	// DefaultModulus is the size of the identifier ring used by the simulator.
	DefaultModulus = 100

	// MinModulus is the smallest ring that can hold two distinct nodes.
	MinModulus = 2
)

// Space is a circular identifier space of Modulus positions [0, M).
// All methods are pure and total for inputs already reduced into the ring;
// larger inputs are reduced first.
type Space struct {
	m uint64
}

// NewSpace creates an identifier space with the given modulus.
func NewSpace(m uint64) (*Space, error) {
	if m < MinModulus {
		return nil, fmt.Errorf("modulus must be at least %d, got %d", MinModulus, m)
	}
	return &Space{m: m}, nil
}

// MustSpace is like NewSpace but panics on an invalid modulus.
// Only meant for package-level test fixtures.
func MustSpace(m uint64) *Space {
	s, err := NewSpace(m)
	if err != nil {
		panic(err)
	}
	return s
}

// Modulus returns M.
func (s *Space) Modulus() uint64 {
	return s.m
}

// Contains reports whether id is a valid identifier in [0, M).
func (s *Space) Contains(id uint64) bool {
	return id < s.m
}

// Reduce maps an arbitrary integer into [0, M).
func (s *Space) Reduce(x uint64) uint64 {
	return x % s.m
}

// ForwardDistance is the clockwise distance from a to b: (b - a) mod M.
func (s *Space) ForwardDistance(a, b uint64) uint64 {
	a, b = a%s.m, b%s.m
	if b >= a {
		return b - a
	}
	return s.m - a + b
}

// CircularDistance is the shorter of the two walks between a and b.
func (s *Space) CircularDistance(a, b uint64) uint64 {
	return min(s.ForwardDistance(a, b), s.ForwardDistance(b, a))
}

// IsBetween reports whether x lies in the half-open clockwise interval (a, b].
// The interval wraps when a > b. When a == b the interval is the whole ring
// except a itself.
//
// Examples (M = 100):
//   - IsBetween(3, 5, 7)   = true
//   - IsBetween(3, 3, 7)   = false   // start is exclusive
//   - IsBetween(3, 7, 7)   = true    // end is inclusive
//   - IsBetween(80, 90, 0) = true    // wraps past 99
//   - IsBetween(80, 0, 0)  = true
//   - IsBetween(40, 40, 40) = false
func (s *Space) IsBetween(a, x, b uint64) bool {
	a, x, b = a%s.m, x%s.m, b%s.m
	switch {
	case a < b:
		return x > a && x <= b
	case a > b:
		return x > a || x <= b
	default:
		return x != a
	}
}

// Between reports whether x lies in the open clockwise interval (a, b).
// When a == b the interval is the whole ring except a.
func (s *Space) Between(a, x, b uint64) bool {
	a, x, b = a%s.m, x%s.m, b%s.m
	switch {
	case a < b:
		return x > a && x < b
	case a > b:
		return x > a || x < b
	default:
		return x != a
	}
}

// AddPowerOfTwo computes (n + 2^i) mod M, the start of finger i.
func (s *Space) AddPowerOfTwo(n uint64, i int) uint64 {
	if i < 0 || i >= 64 {
		return n % s.m
	}
	offset := (uint64(1) << uint(i)) % s.m
	return (n%s.m + offset) % s.m
}

// Bits returns the number of finger entries needed to span the ring,
// i.e. the smallest b with 2^b >= M.
func (s *Space) Bits() int {
	return bits.Len64(s.m - 1)
}
