package hashingtest

import (
	"bytes"
	"testing"

	"github.com/Layr-Labs/flat-merkle-go/pkg/hashing"
	"github.com/stretchr/testify/require"
)

// TestAlgorithmCompliance checks the properties the Merkle tree relies on:
// fixed output length, determinism, and HashPair being the digest of the
// plain concatenation of its inputs.
func TestAlgorithmCompliance(t *testing.T, a hashing.Algorithm) {
	t.Run("output length is fixed", func(t *testing.T) {
		t.Parallel()

		require.Positive(t, a.OutputLen())
		for _, in := range [][]byte{nil, {}, []byte("x"), bytes.Repeat([]byte("long input "), 100)} {
			require.Len(t, a.Hash(in), a.OutputLen())
		}
		require.Len(t, a.HashPair([]byte("left"), []byte("right")), a.OutputLen())
	})

	t.Run("hash is deterministic", func(t *testing.T) {
		t.Parallel()

		require.Equal(t, a.Hash([]byte("deterministic_data")), a.Hash([]byte("deterministic_data")))
		require.NotEqual(t, a.Hash([]byte("one")), a.Hash([]byte("two")))
	})

	t.Run("pair is concatenation", func(t *testing.T) {
		t.Parallel()

		left := a.Hash([]byte("left"))
		right := a.Hash([]byte("right"))

		concat := append(append([]byte{}, left...), right...)
		require.Equal(t, a.Hash(concat), a.HashPair(left, right))
	})

	t.Run("pair respects order", func(t *testing.T) {
		t.Parallel()

		left := a.Hash([]byte("one"))
		right := a.Hash([]byte("two"))
		require.NotEqual(t, a.HashPair(left, right), a.HashPair(right, left))
	})

	t.Run("inputs are not modified", func(t *testing.T) {
		t.Parallel()

		left := []byte("left input")
		right := []byte("right input")
		_ = a.HashPair(left[:4], right)
		require.Equal(t, []byte("left input"), left)
		require.Equal(t, []byte("right input"), right)
	})
}
