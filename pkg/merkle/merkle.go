package merkle

import (
	"bytes"
	"fmt"

	"github.com/Layr-Labs/flat-merkle-go/pkg/hashing"
)

// NewMerkleTree builds a tree from the ordered values using algo.
//
// Every value is hashed into a leaf. Levels are then built bottom-up;
// if a level has an odd number of digests its last digest is duplicated
// before pairing, and each parent is algo.HashPair(left, right).
//
// An empty list produces an empty tree, not an error.
func NewMerkleTree[T Value](values []T, algo hashing.Algorithm, opts ...Option) *MerkleTree {
	if algo == nil {
		panic(fmt.Errorf("BUG: merkle tree requires a hash algorithm"))
	}

	t := &MerkleTree{
		leafCount: len(values),
		algo:      algo,
	}
	for _, opt := range opts {
		opt(t)
	}

	if len(values) == 0 {
		return t
	}

	t.levels = planLevels(len(values))
	t.digests = make([]byte, 0, nodeCount(t.levels)*algo.OutputLen())

	// Hash all leaves
	for _, v := range values {
		t.digests = append(t.digests, algo.Hash([]byte(v))...)
	}

	t.buildLevels()
	return t
}

// planLevels computes the offsets table for a tree with leafCount leaves.
// A single leaf is still paired (with itself), so every non-empty tree
// has at least two levels.
func planLevels(leafCount int) []level {
	if leafCount <= 0 {
		return nil
	}

	levels := make([]level, 0, 2)
	start, count := 0, leafCount
	for {
		if count == 1 && len(levels) > 0 {
			return append(levels, level{start: start, count: 1, width: 1})
		}

		width := count + count&1
		levels = append(levels, level{start: start, count: count, width: width})

		start += width
		count = width / 2
	}
}

// nodeCount returns the number of stored digests described by levels.
func nodeCount(levels []level) int {
	n := 0
	for _, l := range levels {
		n += l.width
	}
	return n
}

// buildLevels fills in every level above the leaves.
// The leaf digests must already be in t.digests.
func (t *MerkleTree) buildLevels() {
	for k := 0; k < len(t.levels)-1; k++ {
		l := t.levels[k]

		// Previous level has an odd number of children; duplicate the last one
		if l.count < l.width {
			t.digests = append(t.digests, t.digest(l.start+l.count-1)...)
		}

		for i := 0; i < l.width; i += 2 {
			parent := t.algo.HashPair(t.digest(l.start+i), t.digest(l.start+i+1))
			t.digests = append(t.digests, parent...)
		}
	}
}

// digest returns a capacity-limited view of the digest at unit index i.
func (t *MerkleTree) digest(i int) []byte {
	size := t.algo.OutputLen()
	start := i * size
	end := start + size
	return t.digests[start:end:end]
}

// BuildProof returns the membership proof for value.
// If the value is not among the leaves, it returns nil and false.
// When the same value appears more than once, the proof refers to its first occurrence.
func (t *MerkleTree) BuildProof(value []byte) (*Proof, bool) {
	if t.IsEmpty() {
		return nil, false
	}

	idx, ok := t.findLeaf(t.algo.Hash(value))
	if !ok {
		return nil, false
	}
	return t.proofAt(idx), true
}

// BuildProofString is BuildProof for string values.
func (t *MerkleTree) BuildProofString(value string) (*Proof, bool) {
	return t.BuildProof([]byte(value))
}

// ProofAt returns the membership proof for the leaf at index.
func (t *MerkleTree) ProofAt(index int) (*Proof, error) {
	if index < 0 || index >= t.leafCount {
		return nil, fmt.Errorf("leaf index %d out of bounds (tree has %d leaves): %w", index, t.leafCount, ErrIndexOutOfRange)
	}
	return t.proofAt(index), nil
}

// findLeaf scans the leaf level for the first digest equal to leaf.
func (t *MerkleTree) findLeaf(leaf []byte) (int, bool) {
	key := string(leaf)
	if t.lookup != nil {
		if idx, ok := t.lookup.Get(key); ok {
			return idx, true
		}
	}

	// linear search over the unpadded leaves
	for i := 0; i < t.leafCount; i++ {
		if bytes.Equal(leaf, t.digest(i)) {
			if t.lookup != nil {
				t.lookup.Add(key, i)
			}
			return i, true
		}
	}
	return -1, false
}

// proofAt walks from the leaf at index up to the level below the root,
// collecting the sibling at each level.
func (t *MerkleTree) proofAt(index int) *Proof {
	siblings := make([][]byte, 0, len(t.levels)-1)

	idx := index
	for _, l := range t.levels[:len(t.levels)-1] {
		siblings = append(siblings, t.digest(l.start+siblingIndex(idx)))
		idx = parentIndex(idx)
	}

	return &Proof{
		Index:    index,
		Leaf:     t.digest(index),
		Siblings: siblings,
	}
}

// siblingIndex implements the "2i 2i+1" schema.
func siblingIndex(index int) int {
	if index&1 == 0 {
		return index + 1
	}
	return index - 1
}

// parentIndex returns the position of the parent of index in the next level.
func parentIndex(index int) int {
	return (index+1+((index+1)&1))/2 - 1
}

// Validate reports whether proof leads to this tree's root.
// A mismatch is a normal answer, not an error.
func (t *MerkleTree) Validate(proof *Proof) bool {
	if t.IsEmpty() || proof == nil {
		return false
	}
	// Padding slots hash like the leaf they copy; they are not leaves.
	if proof.Index >= t.leafCount {
		return false
	}
	return VerifyProof(t.algo, proof, t.Root())
}

// VerifyProof recomputes a root from proof with algo and compares it to root.
//
// The path [Leaf, Siblings...] is folded left to right. At each level the
// running digest goes on the left when the position bit is 0 and on the
// right when it is 1, so for the leftmost leaf this is
// H(H(path[0]||path[1])||path[2])...
//
// Without the tree the leaf count is unknown, so an index that points at a
// padding slot (the copy of an odd level's last leaf) still verifies. Use
// Validate when positions past the last leaf must be rejected.
func VerifyProof(algo hashing.Algorithm, proof *Proof, root []byte) bool {
	if algo == nil || proof == nil || proof.Index < 0 || len(proof.Siblings) == 0 {
		return false
	}

	size := algo.OutputLen()
	if len(root) != size || len(proof.Leaf) != size {
		return false
	}

	seed := proof.Leaf
	idx := proof.Index
	for _, sibling := range proof.Siblings {
		if len(sibling) != size {
			return false
		}
		if idx&1 == 0 {
			seed = algo.HashPair(seed, sibling)
		} else {
			seed = algo.HashPair(sibling, seed)
		}
		idx >>= 1
	}

	// The position has to fit in a tree of this height.
	if idx != 0 {
		return false
	}

	return bytes.Equal(seed, root)
}

// IsEmpty reports whether the tree has no digests.
func (t *MerkleTree) IsEmpty() bool {
	return t.NodeCount() == 0
}

// Root returns the root digest, or nil for an empty tree.
// The returned slice must not be modified.
func (t *MerkleTree) Root() []byte {
	if t.IsEmpty() {
		return nil
	}
	return t.digest(t.NodeCount() - 1) // Last item
}

// NodeCount returns the number of stored digests, padding included.
func (t *MerkleTree) NodeCount() int {
	return len(t.digests) / t.algo.OutputLen()
}

// LeafCount returns the number of values the tree was built from.
func (t *MerkleTree) LeafCount() int {
	return t.leafCount
}

// DataSize returns the size of the digest store in bytes.
func (t *MerkleTree) DataSize() int {
	return len(t.digests)
}

// Height returns the number of levels, leaves and root included.
// It is 0 for an empty tree and at least 2 otherwise.
func (t *MerkleTree) Height() int {
	return len(t.levels)
}

// LevelCount returns the number of entries in the offsets table.
// It always equals Height.
func (t *MerkleTree) LevelCount() int {
	return len(t.levels)
}

// Algorithm returns the hash algorithm the tree was built with.
func (t *MerkleTree) Algorithm() hashing.Algorithm {
	return t.algo
}

// Leaf returns the digest of the value at index.
func (t *MerkleTree) Leaf(index int) ([]byte, error) {
	if index < 0 || index >= t.leafCount {
		return nil, fmt.Errorf("leaf index %d out of bounds (tree has %d leaves): %w", index, t.leafCount, ErrIndexOutOfRange)
	}
	return t.digest(index), nil
}

// Level returns the stored digests of level k, padding included.
// Level 0 is the leaf level and level Height()-1 holds only the root.
func (t *MerkleTree) Level(k int) ([][]byte, error) {
	if k < 0 || k >= len(t.levels) {
		return nil, fmt.Errorf("level %d out of bounds (tree has %d levels): %w", k, len(t.levels), ErrIndexOutOfRange)
	}

	l := t.levels[k]
	out := make([][]byte, l.width)
	for i := range out {
		out[i] = t.digest(l.start + i)
	}
	return out, nil
}

// Digests returns a copy of the whole digest store.
func (t *MerkleTree) Digests() []byte {
	return bytes.Clone(t.digests)
}
