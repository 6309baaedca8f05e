package merkle

import (
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Layr-Labs/flat-merkle-go/pkg/hashing"
)

var (
	// ErrIndexOutOfRange is returned when a leaf or level position does not exist.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrCorruptSnapshot is returned when a snapshot does not describe a valid tree.
	ErrCorruptSnapshot = errors.New("corrupt tree snapshot")

	// ErrAlgorithmMismatch is returned when a snapshot is restored with a
	// different hash algorithm than the one it was built with.
	ErrAlgorithmMismatch = errors.New("hash algorithm mismatch")
)

// Value is any input that is already its own byte serialization.
type Value interface {
	~string | ~[]byte
}

// MerkleTree is a binary merkle tree stored in one flat byte slice.
//
// For example, four values are kept as
//
//	[h0 h1 h2 h3 | h01 h23 | root]
//
// and three values as
//
//	[h0 h1 h2 h2 | h01 h22 | root]
//
// where the last leaf is duplicated to make the level even.
// The tree is immutable once built and safe for concurrent readers.
type MerkleTree struct {
	// digests holds every level back to back, leaves first, root last.
	digests []byte

	// levels holds the position of each level in digests, in digest units.
	// levels[0] = leaves, levels[len-1] = root
	levels []level

	leafCount int

	algo hashing.Algorithm

	// lookup optionally maps a leaf digest to its first position.
	lookup *lru.Cache[string, int]
}

// level is one horizontal slice of the digest store.
type level struct {
	// start is the index of the first digest of the level.
	start int

	// count is the number of digests computed for the level.
	count int

	// width is count rounded up to even, or 1 for the root level.
	width int
}

// Proof is a membership proof for one leaf.
//
// Leaf and Siblings are views into the tree's digest store; they must not
// be modified, and they keep the tree's memory alive. Call Detach for a
// copy that is independent of the tree.
type Proof struct {
	// Index is the position of the proven leaf among the tree's leaves.
	Index int

	// Leaf is the digest of the proven value.
	Leaf []byte

	// Siblings contains the sibling digests from the leaf level upwards,
	// excluding the root. Siblings[0] is the sibling of the leaf.
	Siblings [][]byte
}

// Snapshot is the frozen state of a tree, suitable for persistence.
type Snapshot struct {
	Algorithm string
	LeafCount int
	Height    int
	Digests   []byte
}

// Option configures optional tree behavior.
type Option func(*MerkleTree)

// WithLookupCache keeps up to size leaf positions in an LRU cache,
// so repeated proofs for the same value skip the linear leaf scan.
// A non-positive size disables the cache.
func WithLookupCache(size int) Option {
	return func(t *MerkleTree) {
		if size <= 0 {
			return
		}
		// lru.New only fails for non-positive sizes
		c, _ := lru.New[string, int](size)
		t.lookup = c
	}
}
