// Package phimath provides the deterministic math underlying Φ-consensus:
// exact Fibonacci numbers, Fibonacci values under a modulus, and the golden
// ratio rendered at a fixed decimal precision.
//
// All operations are pure and reproducible across nodes. Fibonacci values are
// exact math/big integers; nothing here touches floating point except the
// φ^n validator weight, which is fixed once at registration and never
// recomputed.
package phimath

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"
)

const (
	// DefaultMaxIndex is the default upper bound on Fibonacci indices the
	// cache will compute. Bounded so a malformed height cannot force the
	// node to materialize an arbitrarily large integer.
	DefaultMaxIndex = 100000

	// MinMaxIndex is the smallest allowed bound; selection needs at least
	// fib(height mod 100).
	MinMaxIndex = 100

	// DefaultPhiDecimals is the number of decimal digits used when φ is
	// bound into a block's integrity hash.
	DefaultPhiDecimals = 15

	// smallTableLimit caps the dense memo table. Indices below this are
	// served in O(1) after first computation.
	smallTableLimit = 256
)

// ErrIndexOutOfRange is returned when a Fibonacci index exceeds the cache's
// configured maximum.
var ErrIndexOutOfRange = errors.New("fibonacci index out of range")

// FibCache computes exact Fibonacci numbers iteratively, memoizing a dense
// table for small indices and a moving frontier pair for large ones. Heights
// normally increase, so repeated calls are amortized O(1) in the common case.
type FibCache struct {
	mu  sync.Mutex
	max uint64

	// Dense memo: small[i] = F(i), extended lazily up to smallTableLimit.
	small []*big.Int

	// Frontier: hiA = F(hiN), hiB = F(hiN+1).
	hiN      uint64
	hiA, hiB *big.Int
}

// NewFibCache creates a cache serving indices 0..max. A max of zero selects
// DefaultMaxIndex; values below MinMaxIndex are raised to it.
func NewFibCache(max uint64) *FibCache {
	if max == 0 {
		max = DefaultMaxIndex
	}
	if max < MinMaxIndex {
		max = MinMaxIndex
	}
	return &FibCache{
		max:   max,
		small: []*big.Int{big.NewInt(0), big.NewInt(1)},
		hiN:   0,
		hiA:   big.NewInt(0),
		hiB:   big.NewInt(1),
	}
}

// MaxIndex returns the largest index this cache will compute.
func (c *FibCache) MaxIndex() uint64 {
	return c.max
}

// Fib returns F(n) exactly. The returned value is a copy the caller owns.
func (c *FibCache) Fib(n uint64) (*big.Int, error) {
	if n > c.max {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrIndexOutOfRange, n, c.max)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if n < smallTableLimit {
		for uint64(len(c.small)) <= n {
			k := len(c.small)
			c.small = append(c.small, new(big.Int).Add(c.small[k-1], c.small[k-2]))
		}
		return new(big.Int).Set(c.small[n]), nil
	}

	if n >= c.hiN {
		// Advance the frontier in place.
		for c.hiN < n {
			c.hiA, c.hiB = c.hiB, c.hiA.Add(c.hiA, c.hiB)
			c.hiN++
		}
		return new(big.Int).Set(c.hiA), nil
	}

	// Behind the frontier and above the dense table: recompute forward from
	// the top of the dense table without disturbing the frontier.
	for len(c.small) < smallTableLimit {
		k := len(c.small)
		c.small = append(c.small, new(big.Int).Add(c.small[k-1], c.small[k-2]))
	}
	i := uint64(smallTableLimit - 1)
	a := new(big.Int).Set(c.small[smallTableLimit-2]) // F(i-1)
	b := new(big.Int).Set(c.small[smallTableLimit-1]) // F(i)
	for i < n {
		a, b = b, a.Add(a, b)
		i++
	}
	return new(big.Int).Set(b), nil
}

// FibMod returns F(n) mod m without materializing F(n). Iterative over the
// residues, so it stays cheap even when F(n) itself would be enormous.
// Panics if m is zero; callers guard the validator count themselves.
func FibMod(n, m uint64) uint64 {
	if m == 0 {
		panic("phimath: FibMod modulus must be positive")
	}
	if m == 1 {
		return 0
	}
	a, b := uint64(0), uint64(1)
	for i := uint64(0); i < n; i++ {
		a, b = b%m, (a+b)%m
	}
	return a % m
}

// Phi renders the golden ratio (1+√5)/2 with the given number of decimal
// digits, e.g. Phi(15) == "1.618033988749895". Non-positive decimals select
// DefaultPhiDecimals.
func Phi(decimals int) string {
	if decimals <= 0 {
		decimals = DefaultPhiDecimals
	}
	// ~3.33 bits per decimal digit; headroom avoids rounding artifacts.
	prec := uint(decimals)*4 + 64
	five := new(big.Float).SetPrec(prec).SetInt64(5)
	sqrt5 := new(big.Float).SetPrec(prec).Sqrt(five)
	phi := new(big.Float).SetPrec(prec).Add(big.NewFloat(1).SetPrec(prec), sqrt5)
	phi.Quo(phi, new(big.Float).SetPrec(prec).SetInt64(2))
	return phi.Text('f', decimals)
}

// PhiBytes is Phi rendered as bytes, the form concatenated into the
// integrity-hash preimage.
func PhiBytes(decimals int) []byte {
	return []byte(Phi(decimals))
}

// Weight is the validator weight φ^entryIndex. Computed once at registration
// and stored; float64 precision is sufficient for the priority ordering it
// feeds (weights are compared, never accumulated across rounds).
func Weight(entryIndex uint64) float64 {
	return math.Pow(math.Phi, float64(entryIndex))
}
