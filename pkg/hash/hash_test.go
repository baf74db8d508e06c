package hash

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ring100 = MustSpace(DefaultModulus)

func TestNewSpace(t *testing.T) {
	tests := []struct {
		name    string
		m       uint64
		wantErr bool
	}{
		{name: "default modulus", m: DefaultModulus},
		{name: "smallest ring", m: MinModulus},
		{name: "power of two", m: 1 << 16},
		{name: "zero", m: 0, wantErr: true},
		{name: "single slot", m: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSpace(tt.m)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.m, s.Modulus())
		})
	}
}

func TestForwardDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     uint64
		expected uint64
	}{
		{name: "forward", a: 3, b: 7, expected: 4},
		{name: "zero", a: 5, b: 5, expected: 0},
		{name: "wraparound", a: 80, b: 10, expected: 30},
		{name: "one behind", a: 10, b: 9, expected: 99},
		{name: "unreduced input", a: 103, b: 7, expected: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ring100.ForwardDistance(tt.a, tt.b))
		})
	}
}

func TestCircularDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     uint64
		expected uint64
	}{
		{name: "short forward", a: 3, b: 7, expected: 4},
		{name: "short backward", a: 7, b: 3, expected: 4},
		{name: "across zero", a: 95, b: 5, expected: 10},
		{name: "opposite", a: 0, b: 50, expected: 50},
		{name: "same", a: 42, b: 42, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ring100.CircularDistance(tt.a, tt.b))
			assert.Equal(t, ring100.CircularDistance(tt.b, tt.a), ring100.CircularDistance(tt.a, tt.b))
		})
	}
}

func TestIsBetween(t *testing.T) {
	tests := []struct {
		name     string
		a, x, b  uint64
		expected bool
	}{
		{name: "inside", a: 3, x: 5, b: 7, expected: true},
		{name: "start exclusive", a: 3, x: 3, b: 7, expected: false},
		{name: "end inclusive", a: 3, x: 7, b: 7, expected: true},
		{name: "outside", a: 3, x: 10, b: 7, expected: false},
		{name: "wrap after start", a: 80, x: 90, b: 10, expected: true},
		{name: "wrap before end", a: 80, x: 5, b: 10, expected: true},
		{name: "wrap at zero", a: 80, x: 0, b: 10, expected: true},
		{name: "wrap at end", a: 80, x: 10, b: 10, expected: true},
		{name: "wrap outside", a: 80, x: 50, b: 10, expected: false},
		{name: "single node ring", a: 40, x: 7, b: 40, expected: true},
		{name: "single node ring self", a: 40, x: 40, b: 40, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ring100.IsBetween(tt.a, tt.x, tt.b))
		})
	}
}

func TestBetween(t *testing.T) {
	tests := []struct {
		name     string
		a, x, b  uint64
		expected bool
	}{
		{name: "inside", a: 3, x: 5, b: 7, expected: true},
		{name: "start exclusive", a: 3, x: 3, b: 7, expected: false},
		{name: "end exclusive", a: 3, x: 7, b: 7, expected: false},
		{name: "wraparound", a: 80, x: 1, b: 3, expected: true},
		{name: "start equals end", a: 3, x: 5, b: 3, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ring100.Between(tt.a, tt.x, tt.b))
		})
	}
}

// Exhaustive cross-check against a clockwise walk.
func TestIsBetweenMatchesWalk(t *testing.T) {
	s := MustSpace(16)
	walk := func(a, x, b uint64) bool {
		cur := a
		for {
			cur = (cur + 1) % s.Modulus()
			if cur == x {
				return true
			}
			if cur == b {
				return false
			}
		}
	}

	for a := uint64(0); a < s.Modulus(); a++ {
		for b := uint64(0); b < s.Modulus(); b++ {
			for x := uint64(0); x < s.Modulus(); x++ {
				if x == a && a == b {
					continue
				}
				require.Equal(t, walk(a, x, b), s.IsBetween(a, x, b), fmt.Sprintf("a=%d x=%d b=%d", a, x, b))
			}
		}
	}
}

func TestAddPowerOfTwo(t *testing.T) {
	tests := []struct {
		name     string
		n        uint64
		i        int
		expected uint64
	}{
		{name: "2^0", n: 0, i: 0, expected: 1},
		{name: "2^3", n: 10, i: 3, expected: 18},
		{name: "wraps", n: 90, i: 4, expected: 6},
		{name: "2^6 from 60", n: 60, i: 6, expected: 24},
		{name: "negative exponent", n: 10, i: -1, expected: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ring100.AddPowerOfTwo(tt.n, tt.i))
		})
	}
}

func TestBits(t *testing.T) {
	assert.Equal(t, 7, ring100.Bits())
	assert.Equal(t, 4, MustSpace(16).Bits())
	assert.Equal(t, 5, MustSpace(17).Bits())
	assert.Equal(t, 1, MustSpace(2).Bits())
}

func TestContains(t *testing.T) {
	assert.True(t, ring100.Contains(0))
	assert.True(t, ring100.Contains(99))
	assert.False(t, ring100.Contains(100))
}
