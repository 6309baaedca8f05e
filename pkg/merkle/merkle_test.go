package merkle

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/flat-merkle-go/pkg/hashing"
)

// createTestValues creates n distinct test values
func createTestValues(n int) []string {
	values := make([]string, n)
	for i := 0; i < n; i++ {
		values[i] = fmt.Sprintf("value-%d", i)
	}
	return values
}

func pair(algo hashing.Algorithm, left, right []byte) []byte {
	return algo.HashPair(left, right)
}

// TestNewMerkleTree tests tree construction with various numbers of values
func TestNewMerkleTree(t *testing.T) {
	testCases := []struct {
		name           string
		numValues      int
		expectedHeight int
		expectedNodes  int
	}{
		{"Single value", 1, 2, 3},
		{"Two values", 2, 2, 3},
		{"Three values", 3, 3, 7},
		{"Four values (power of 2)", 4, 3, 7},
		{"Five values", 5, 4, 13},
		{"Seven values", 7, 4, 15},
		{"Eight values (power of 2)", 8, 4, 15},
		{"Nine values", 9, 5, 10 + 6 + 4 + 2 + 1},
		{"Sixteen values (power of 2)", 16, 5, 31},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			algo := hashing.Default()
			tree := NewMerkleTree(createTestValues(tc.numValues), algo)

			require.False(t, tree.IsEmpty())
			require.Equal(t, tc.numValues, tree.LeafCount())
			require.Equal(t, tc.expectedHeight, tree.Height())
			require.Equal(t, tc.expectedNodes, tree.NodeCount())
			require.Equal(t, tc.expectedNodes*algo.OutputLen(), tree.DataSize())

			// Root is the last digest of the store
			digests := tree.Digests()
			require.Equal(t, digests[len(digests)-algo.OutputLen():], tree.Root())
		})
	}
}

// TestNewMerkleTreeEmpty tests that an empty list yields an empty tree
func TestNewMerkleTreeEmpty(t *testing.T) {
	tree := NewMerkleTree([]string{}, hashing.Default())

	require.True(t, tree.IsEmpty())
	require.Equal(t, 0, tree.Height())
	require.Equal(t, 0, tree.NodeCount())
	require.Equal(t, 0, tree.LeafCount())
	require.Equal(t, 0, tree.DataSize())
	require.Empty(t, tree.Root())

	proof, ok := tree.BuildProofString("one")
	require.False(t, ok)
	require.Nil(t, proof)

	require.False(t, tree.Validate(&Proof{Leaf: make([]byte, 64), Siblings: [][]byte{make([]byte, 64)}}))

	var nilValues []string
	require.True(t, NewMerkleTree(nilValues, hashing.Default()).IsEmpty())
}

// TestNewMerkleTreeNilAlgorithm tests that a missing algorithm is a programming error
func TestNewMerkleTreeNilAlgorithm(t *testing.T) {
	require.Panics(t, func() {
		NewMerkleTree([]string{"one"}, nil)
	})
}

// TestDeterminism tests that the same input always yields the same root
func TestDeterminism(t *testing.T) {
	for _, name := range hashing.Names() {
		t.Run(name, func(t *testing.T) {
			algo, err := hashing.ByName(name)
			require.NoError(t, err)

			values := createTestValues(11)
			tree1 := NewMerkleTree(values, algo)
			tree2 := NewMerkleTree(values, algo)

			require.Equal(t, tree1.Root(), tree2.Root())
			require.Equal(t, tree1.Digests(), tree2.Digests())
			require.Len(t, tree1.Root(), algo.OutputLen())
		})
	}
}

// TestStringAndBytesAgree tests that string and byte inputs hash identically
func TestStringAndBytesAgree(t *testing.T) {
	strs := []string{"one", "two", "three"}
	bs := [][]byte{[]byte("one"), []byte("two"), []byte("three")}

	require.Equal(t,
		NewMerkleTree(strs, hashing.SHA256).Root(),
		NewMerkleTree(bs, hashing.SHA256).Root(),
	)
}

// TestOrderSensitivity tests that permuting the leaves changes the root
func TestOrderSensitivity(t *testing.T) {
	algo := hashing.Default()
	tree1 := NewMerkleTree([]string{"one", "two"}, algo)
	tree2 := NewMerkleTree([]string{"two", "one"}, algo)

	require.NotEqual(t, tree1.Root(), tree2.Root())
}

// TestDuplicateValues tests the root of a tree made of one repeated value
func TestDuplicateValues(t *testing.T) {
	algo := hashing.Default()
	tree := NewMerkleTree([]string{"one", "one", "one", "one"}, algo)

	h := algo.Hash([]byte("one"))
	hh := pair(algo, h, h)
	expected := pair(algo, hh, hh)

	require.Equal(t, expected, tree.Root())

	// Every duplicate resolves to the first occurrence
	proof, ok := tree.BuildProofString("one")
	require.True(t, ok)
	require.Equal(t, 0, proof.Index)
	require.True(t, tree.Validate(proof))
}

// TestOddLeafPadding tests that an odd level duplicates its last digest
func TestOddLeafPadding(t *testing.T) {
	algo := hashing.Default()
	tree := NewMerkleTree([]string{"one", "two", "three"}, algo)

	require.Equal(t, 3, tree.Height())
	require.Equal(t, 7, tree.NodeCount())

	h0 := algo.Hash([]byte("one"))
	h1 := algo.Hash([]byte("two"))
	h2 := algo.Hash([]byte("three"))
	expected := pair(algo, pair(algo, h0, h1), pair(algo, h2, h2))
	require.Equal(t, expected, tree.Root())

	leaves, err := tree.Level(0)
	require.NoError(t, err)
	require.Len(t, leaves, 4)
	require.Equal(t, h2, leaves[3])
}

// TestSingleValue tests the single leaf convention: the leaf is paired with itself
func TestSingleValue(t *testing.T) {
	algo := hashing.Default()
	tree := NewMerkleTree([]string{"one"}, algo)

	h := algo.Hash([]byte("one"))
	require.Equal(t, pair(algo, h, h), tree.Root())
	require.Equal(t, 2, tree.Height())
	require.Equal(t, 3, tree.NodeCount())

	proof, ok := tree.BuildProofString("one")
	require.True(t, ok)
	require.Equal(t, 1, proof.Len())
	require.Equal(t, h, proof.Siblings[0])
	require.True(t, tree.Validate(proof))
}

// TestFourValues tests the four leaf scenario end to end
func TestFourValues(t *testing.T) {
	values := []string{"one", "two", "three", "four"}
	tree := NewMerkleTree(values, hashing.Default())

	require.Equal(t, 3, tree.Height())
	require.Equal(t, 7, tree.NodeCount())

	for i, v := range values {
		proof, ok := tree.BuildProofString(v)
		require.True(t, ok, "value %q should be in the tree", v)
		require.Equal(t, i, proof.Index)
		require.Equal(t, 2, proof.Len())
		require.True(t, tree.Validate(proof), "proof for %q should be valid", v)
	}

	proof, ok := tree.BuildProofString("five")
	require.False(t, ok)
	require.Nil(t, proof)
}

// TestProofRoundTrip tests that every leaf of many tree sizes proves and validates
func TestProofRoundTrip(t *testing.T) {
	for n := 1; n <= 33; n++ {
		t.Run(fmt.Sprintf("Values_%d", n), func(t *testing.T) {
			values := createTestValues(n)
			tree := NewMerkleTree(values, hashing.SHA256)

			for i, v := range values {
				proof, ok := tree.BuildProofString(v)
				require.True(t, ok)
				require.Equal(t, i, proof.Index)
				require.Equal(t, tree.Height()-1, proof.Len())
				require.True(t, tree.Validate(proof), "proof for leaf %d should be valid", i)
				require.True(t, VerifyProof(hashing.SHA256, proof, tree.Root()))

				byIndex, err := tree.ProofAt(i)
				require.NoError(t, err)
				require.Equal(t, proof, byIndex)
			}

			_, ok := tree.BuildProofString("not-a-value")
			require.False(t, ok)
		})
	}
}

// TestLeftmostProofMatchesFold tests that the leftmost proof is the plain left-to-right fold
func TestLeftmostProofMatchesFold(t *testing.T) {
	algo := hashing.Default()
	tree := NewMerkleTree(createTestValues(8), algo)

	proof, ok := tree.BuildProofString("value-0")
	require.True(t, ok)

	path := proof.Path()
	require.Len(t, path, 4)

	seed := pair(algo, path[0], path[1])
	for _, s := range path[2:] {
		seed = pair(algo, seed, s)
	}
	require.Equal(t, tree.Root(), seed)
}

// TestTamperedProof tests that modified proofs do not validate
func TestTamperedProof(t *testing.T) {
	algo := hashing.Default()
	tree := NewMerkleTree([]string{"one", "two", "three", "four"}, algo)

	t.Run("Substituted sibling", func(t *testing.T) {
		proof, ok := tree.BuildProofString("one")
		require.True(t, ok)
		proof = proof.Detach()
		proof.Siblings[0] = algo.Hash([]byte("five"))
		require.False(t, tree.Validate(proof))
	})

	t.Run("Substituted leaf", func(t *testing.T) {
		proof, ok := tree.BuildProofString("two")
		require.True(t, ok)
		proof = proof.Detach()
		proof.Leaf = algo.Hash([]byte("five"))
		require.False(t, tree.Validate(proof))
	})

	t.Run("Wrong index", func(t *testing.T) {
		proof, ok := tree.BuildProofString("two")
		require.True(t, ok)
		proof = proof.Detach()
		proof.Index = 0
		require.False(t, tree.Validate(proof))
	})

	t.Run("Index beyond tree", func(t *testing.T) {
		proof, ok := tree.BuildProofString("one")
		require.True(t, ok)
		proof = proof.Detach()
		proof.Index = 4
		require.False(t, tree.Validate(proof))
	})

	t.Run("Index on padding slot", func(t *testing.T) {
		odd := NewMerkleTree([]string{"a", "b", "c", "d", "e"}, algo)
		proof, err := odd.ProofAt(4)
		require.NoError(t, err)
		proof = proof.Detach()
		require.True(t, odd.Validate(proof))

		// Slot 5 holds a copy of leaf 4, so the path still reaches the root.
		proof.Index = 5
		require.True(t, VerifyProof(algo, proof, odd.Root()))
		require.False(t, odd.Validate(proof))
	})

	t.Run("Truncated digest", func(t *testing.T) {
		proof, ok := tree.BuildProofString("one")
		require.True(t, ok)
		proof = proof.Detach()
		proof.Siblings[1] = proof.Siblings[1][:10]
		require.False(t, tree.Validate(proof))
	})

	t.Run("Nil and empty proofs", func(t *testing.T) {
		require.False(t, tree.Validate(nil))
		require.False(t, tree.Validate(&Proof{}))
	})

	t.Run("Other tree", func(t *testing.T) {
		other := NewMerkleTree([]string{"one", "two", "three", "five"}, algo)
		proof, ok := tree.BuildProofString("four")
		require.True(t, ok)
		require.False(t, other.Validate(proof))
	})
}

// TestValidateDoesNotMutate tests that validation leaves proof and tree unchanged
func TestValidateDoesNotMutate(t *testing.T) {
	tree := NewMerkleTree(createTestValues(6), hashing.Default())
	before := tree.Digests()

	proof, ok := tree.BuildProofString("value-5")
	require.True(t, ok)
	snapshot := proof.Detach()

	require.True(t, tree.Validate(proof))
	require.Equal(t, snapshot, proof)
	require.Equal(t, before, tree.Digests())
}

// TestProofDetach tests that a detached proof does not share memory with the tree
func TestProofDetach(t *testing.T) {
	tree := NewMerkleTree(createTestValues(4), hashing.Default())
	proof, ok := tree.BuildProofString("value-2")
	require.True(t, ok)

	detached := proof.Detach()
	require.Equal(t, proof, detached)

	detached.Leaf[0] ^= 0xff
	detached.Siblings[0][0] ^= 0xff
	require.NotEqual(t, proof.Leaf, detached.Leaf)
	require.True(t, tree.Validate(proof))

	require.Nil(t, (*Proof)(nil).Detach())
	require.Nil(t, (*Proof)(nil).Path())
	require.Equal(t, 0, (*Proof)(nil).Len())
}

// TestProofAtOutOfRange tests index bounds on ProofAt and Leaf
func TestProofAtOutOfRange(t *testing.T) {
	tree := NewMerkleTree(createTestValues(3), hashing.Default())

	for _, idx := range []int{-1, 3, 4, 100} {
		_, err := tree.ProofAt(idx)
		require.ErrorIs(t, err, ErrIndexOutOfRange)

		_, err = tree.Leaf(idx)
		require.ErrorIs(t, err, ErrIndexOutOfRange)
	}

	_, err := tree.Level(3)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = tree.Level(-1)
	require.ErrorIs(t, err, ErrIndexOutOfRange)

	root, err := tree.Level(2)
	require.NoError(t, err)
	require.Equal(t, [][]byte{tree.Root()}, root)
}

// TestLevels tests the stored width of every level
func TestLevels(t *testing.T) {
	tree := NewMerkleTree(createTestValues(5), hashing.SHA256)

	widths := []int{}
	for k := 0; k < tree.Height(); k++ {
		level, err := tree.Level(k)
		require.NoError(t, err)
		widths = append(widths, len(level))
	}
	require.Equal(t, []int{6, 4, 2, 1}, widths)

	leaf, err := tree.Leaf(4)
	require.NoError(t, err)
	require.Equal(t, hashing.SHA256.Hash([]byte("value-4")), leaf)
}

// TestDigestsIsCopy tests that the store returned by Digests is independent
func TestDigestsIsCopy(t *testing.T) {
	tree := NewMerkleTree(createTestValues(4), hashing.Default())
	root := bytes.Clone(tree.Root())

	d := tree.Digests()
	for i := range d {
		d[i] = 0
	}
	require.Equal(t, root, tree.Root())
}

// TestLookupCache tests that cached lookups return the same proofs
func TestLookupCache(t *testing.T) {
	values := append(createTestValues(20), "value-3")
	plain := NewMerkleTree(values, hashing.Default())
	cached := NewMerkleTree(values, hashing.Default(), WithLookupCache(4))
	require.NotNil(t, cached.lookup)
	require.Equal(t, plain.Root(), cached.Root())

	for round := 0; round < 2; round++ {
		for _, v := range values {
			want, ok := plain.BuildProofString(v)
			require.True(t, ok)
			got, ok := cached.BuildProofString(v)
			require.True(t, ok)
			assert.Equal(t, want, got)
		}
	}

	_, ok := cached.BuildProofString("missing")
	require.False(t, ok)

	disabled := NewMerkleTree(values, hashing.Default(), WithLookupCache(0))
	require.Nil(t, disabled.lookup)
}

// TestConcurrentReaders tests that proofs can be generated and validated in parallel
func TestConcurrentReaders(t *testing.T) {
	values := createTestValues(64)
	tree := NewMerkleTree(values, hashing.Default(), WithLookupCache(16))

	var wg sync.WaitGroup
	errs := make(chan string, len(values))
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < len(values); i += 8 {
				proof, ok := tree.BuildProofString(values[i])
				if !ok || !tree.Validate(proof) {
					errs <- values[i]
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for v := range errs {
		t.Errorf("proof for %s failed under concurrency", v)
	}
}

// TestParentIndex tests the pair and climb rule against plain halving
func TestParentIndex(t *testing.T) {
	for i := 0; i < 1000; i++ {
		require.Equal(t, i/2, parentIndex(i))
		require.Equal(t, i^1, siblingIndex(i))
	}
}

// TestPlanLevels tests the offsets table
func TestPlanLevels(t *testing.T) {
	require.Nil(t, planLevels(0))
	require.Equal(t, []level{{0, 1, 2}, {2, 1, 1}}, planLevels(1))
	require.Equal(t, []level{{0, 3, 4}, {4, 2, 2}, {6, 1, 1}}, planLevels(3))
	require.Equal(t, []level{{0, 5, 6}, {6, 3, 4}, {10, 2, 2}, {12, 1, 1}}, planLevels(5))
}
