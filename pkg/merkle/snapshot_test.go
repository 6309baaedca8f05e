package merkle

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/flat-merkle-go/pkg/hashing"
)

func TestSnapshotRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3, 5, 8, 13} {
		tree := NewMerkleTree(createTestValues(n), hashing.Keccak256)

		snap := tree.Snapshot()
		require.Equal(t, hashing.NameKeccak256, snap.Algorithm)
		require.Equal(t, n, snap.LeafCount)
		require.Equal(t, tree.Height(), snap.Height)

		restored, err := FromSnapshot(snap, hashing.Keccak256)
		require.NoError(t, err)
		require.Equal(t, tree.Root(), restored.Root())
		require.Equal(t, tree.NodeCount(), restored.NodeCount())
		require.Equal(t, tree.Height(), restored.Height())

		for _, v := range createTestValues(n) {
			proof, ok := restored.BuildProofString(v)
			require.True(t, ok)
			require.True(t, tree.Validate(proof))
		}
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tree := NewMerkleTree(createTestValues(4), hashing.Default())
	snap := tree.Snapshot()
	snap.Digests[0] ^= 0xff

	_, ok := tree.BuildProofString("value-0")
	require.True(t, ok)
}

func TestFromSnapshotErrors(t *testing.T) {
	tree := NewMerkleTree(createTestValues(5), hashing.SHA256)

	testCases := []struct {
		name     string
		mutate   func(s *Snapshot)
		algo     hashing.Algorithm
		expected error
	}{
		{
			name:     "Algorithm mismatch",
			mutate:   func(s *Snapshot) {},
			algo:     hashing.SHA512,
			expected: ErrAlgorithmMismatch,
		},
		{
			name:     "Negative leaf count",
			mutate:   func(s *Snapshot) { s.LeafCount = -1 },
			expected: ErrCorruptSnapshot,
		},
		{
			name:     "Leaf count larger than store",
			mutate:   func(s *Snapshot) { s.LeafCount = math.MaxInt },
			expected: ErrCorruptSnapshot,
		},
		{
			name:     "Wrong height",
			mutate:   func(s *Snapshot) { s.Height = 3 },
			expected: ErrCorruptSnapshot,
		},
		{
			name:     "Truncated store",
			mutate:   func(s *Snapshot) { s.Digests = s.Digests[:len(s.Digests)-1] },
			expected: ErrCorruptSnapshot,
		},
		{
			name:     "Flipped root byte",
			mutate:   func(s *Snapshot) { s.Digests[len(s.Digests)-1] ^= 0x01 },
			expected: ErrCorruptSnapshot,
		},
		{
			name:     "Flipped inner byte",
			mutate:   func(s *Snapshot) { s.Digests[6*32] ^= 0x01 },
			expected: ErrCorruptSnapshot,
		},
		{
			name:     "Wrong padding digest",
			mutate:   func(s *Snapshot) { s.Digests[5*32] ^= 0x01 },
			expected: ErrCorruptSnapshot,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			snap := tree.Snapshot()
			tc.mutate(snap)

			algo := tc.algo
			if algo == nil {
				algo = hashing.SHA256
			}
			_, err := FromSnapshot(snap, algo)
			require.ErrorIs(t, err, tc.expected)
		})
	}

	_, err := FromSnapshot(nil, hashing.SHA256)
	require.ErrorIs(t, err, ErrCorruptSnapshot)

	_, err = FromSnapshot(tree.Snapshot(), nil)
	require.Error(t, err)
}
