package merkle

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/Layr-Labs/flat-merkle-go/pkg/hashing"
)

// Snapshot captures the tree in a form that can be stored and restored.
// The digest store is copied.
func (t *MerkleTree) Snapshot() *Snapshot {
	return &Snapshot{
		Algorithm: t.algo.Name(),
		LeafCount: t.leafCount,
		Height:    t.Height(),
		Digests:   t.Digests(),
	}
}

// FromSnapshot restores a tree. The upper levels are recomputed from the
// stored leaves with algo and must match the snapshot byte for byte,
// otherwise ErrCorruptSnapshot is returned.
func FromSnapshot(s *Snapshot, algo hashing.Algorithm, opts ...Option) (*MerkleTree, error) {
	if s == nil {
		return nil, errors.Wrap(ErrCorruptSnapshot, "snapshot is nil")
	}
	if algo == nil {
		return nil, errors.New("hash algorithm is required")
	}
	if s.Algorithm != algo.Name() {
		return nil, errors.Wrapf(ErrAlgorithmMismatch, "snapshot uses %q, got %q", s.Algorithm, algo.Name())
	}
	if s.LeafCount < 0 {
		return nil, errors.Wrapf(ErrCorruptSnapshot, "negative leaf count %d", s.LeafCount)
	}

	size := algo.OutputLen()
	if s.LeafCount > len(s.Digests)/size {
		return nil, errors.Wrapf(ErrCorruptSnapshot, "%d leaves do not fit in %d bytes", s.LeafCount, len(s.Digests))
	}

	levels := planLevels(s.LeafCount)
	if s.Height != len(levels) {
		return nil, errors.Wrapf(ErrCorruptSnapshot, "height %d does not match %d leaves (expected %d)", s.Height, s.LeafCount, len(levels))
	}

	if want := nodeCount(levels) * size; len(s.Digests) != want {
		return nil, errors.Wrapf(ErrCorruptSnapshot, "digest store is %d bytes, expected %d", len(s.Digests), want)
	}

	t := &MerkleTree{
		levels:    levels,
		leafCount: s.LeafCount,
		algo:      algo,
	}
	for _, opt := range opts {
		opt(t)
	}
	if s.LeafCount == 0 {
		return t, nil
	}

	leaves := s.Digests[:s.LeafCount*size]
	t.digests = make([]byte, 0, len(s.Digests))
	t.digests = append(t.digests, leaves...)
	t.buildLevels()

	if !bytes.Equal(t.digests, s.Digests) {
		return nil, errors.Wrap(ErrCorruptSnapshot, "recomputed levels do not match stored digests")
	}
	return t, nil
}
