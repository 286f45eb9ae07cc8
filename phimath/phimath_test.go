package phimath

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFibSmallValues(t *testing.T) {
	c := NewFibCache(0)

	want := []int64{0, 1, 1, 2, 3, 5, 8, 13, 21, 34, 55, 89, 144}
	for n, w := range want {
		got, err := c.Fib(uint64(n))
		require.NoError(t, err)
		require.Equal(t, big.NewInt(w), got, "F(%d)", n)
	}
}

func TestFibExactBeyondUint64(t *testing.T) {
	c := NewFibCache(0)

	// F(100) overflows uint64; the exact value is well known.
	got, err := c.Fib(100)
	require.NoError(t, err)

	want, ok := new(big.Int).SetString("354224848179261915075", 10)
	require.True(t, ok)
	require.Zero(t, want.Cmp(got))
}

func TestFibOutOfRange(t *testing.T) {
	c := NewFibCache(200)

	_, err := c.Fib(201)
	require.ErrorIs(t, err, ErrIndexOutOfRange)

	// Bound is clamped up to MinMaxIndex.
	c = NewFibCache(10)
	_, err = c.Fib(MinMaxIndex)
	require.NoError(t, err)
}

func TestFibBehindFrontier(t *testing.T) {
	c := NewFibCache(0)

	// Push the frontier forward, then ask for an earlier large index.
	hi, err := c.Fib(2000)
	require.NoError(t, err)

	lo, err := c.Fib(1500)
	require.NoError(t, err)

	// Re-asking must return identical values (pure function).
	hi2, err := c.Fib(2000)
	require.NoError(t, err)
	require.Zero(t, hi.Cmp(hi2))

	lo2, err := c.Fib(1500)
	require.NoError(t, err)
	require.Zero(t, lo.Cmp(lo2))
}

func TestFibReturnsCopies(t *testing.T) {
	c := NewFibCache(0)

	a, err := c.Fib(50)
	require.NoError(t, err)
	a.SetInt64(-1) // caller scribbles on the result

	b, err := c.Fib(50)
	require.NoError(t, err)
	require.Equal(t, int64(12586269025), b.Int64())
}

func TestFibModMatchesBigFib(t *testing.T) {
	c := NewFibCache(0)

	for _, m := range []uint64{1, 2, 3, 7, 10, 97} {
		for n := uint64(0); n <= 300; n += 13 {
			f, err := c.Fib(n)
			require.NoError(t, err)
			want := new(big.Int).Mod(f, new(big.Int).SetUint64(m)).Uint64()
			require.Equal(t, want, FibMod(n, m), "F(%d) mod %d", n, m)
		}
	}
}

func TestFibModPanicsOnZeroModulus(t *testing.T) {
	require.Panics(t, func() { FibMod(10, 0) })
}

func TestPhiDigits(t *testing.T) {
	require.Equal(t, "1.618033988749895", Phi(15))
	require.Equal(t, "1.6180339887", Phi(10))
	// Non-positive precision falls back to the default.
	require.Equal(t, Phi(DefaultPhiDecimals), Phi(0))
}

func TestWeightLadder(t *testing.T) {
	require.InDelta(t, 1.0, Weight(0), 1e-12)
	require.InDelta(t, 1.6180339887, Weight(1), 1e-9)
	require.InDelta(t, 2.6180339887, Weight(2), 1e-9)

	// φ^n satisfies the Fibonacci-like recurrence φ^n = φ^(n-1) + φ^(n-2).
	for n := uint64(2); n < 40; n++ {
		require.InDelta(t, Weight(n), Weight(n-1)+Weight(n-2), 1e-6)
	}
}
