package persistence

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"

	"github.com/Layr-Labs/flat-merkle-go/pkg/merkle"
)

// TreeRecord is the persisted form of a merkle tree.
// It carries the full digest store so the tree can be restored without the original values.
type TreeRecord struct {
	// ID uniquely identifies this record, independent of the root.
	ID uuid.UUID `json:"id"`

	// Root is the 0x-prefixed hex encoding of the root digest.
	// This serves as the primary key for tree storage.
	Root string `json:"root"`

	// Algorithm is the registry name of the hash algorithm, e.g. "sha512".
	Algorithm string `json:"algorithm"`

	// LeafCount is the number of values the tree was built from.
	LeafCount int `json:"leafCount"`

	// Height is the number of levels, leaves and root included.
	Height int `json:"height"`

	// Digests is the flat digest store, leaves first, root last.
	Digests []byte `json:"digests"`

	// CreatedAt is the Unix timestamp in nanoseconds when the record was created.
	CreatedAt int64 `json:"createdAt"`
}

// NewTreeRecord creates a record for tree with a fresh ID and the current time.
func NewTreeRecord(tree *merkle.MerkleTree) (*TreeRecord, error) {
	if tree == nil {
		return nil, fmt.Errorf("cannot create record for nil tree")
	}
	if tree.IsEmpty() {
		return nil, fmt.Errorf("cannot create record for empty tree")
	}

	snap := tree.Snapshot()
	return &TreeRecord{
		ID:        uuid.New(),
		Root:      RootKey(tree.Root()),
		Algorithm: snap.Algorithm,
		LeafCount: snap.LeafCount,
		Height:    snap.Height,
		Digests:   snap.Digests,
		CreatedAt: time.Now().UnixNano(),
	}, nil
}

// Snapshot converts the record back into a tree snapshot.
func (r *TreeRecord) Snapshot() *merkle.Snapshot {
	return &merkle.Snapshot{
		Algorithm: r.Algorithm,
		LeafCount: r.LeafCount,
		Height:    r.Height,
		Digests:   bytes.Clone(r.Digests),
	}
}

// RootBytes decodes Root.
func (r *TreeRecord) RootBytes() ([]byte, error) {
	root, err := hexutil.Decode(r.Root)
	if err != nil {
		return nil, fmt.Errorf("invalid root %q: %w", r.Root, err)
	}
	return root, nil
}

// Copy returns a deep copy of the record.
func (r *TreeRecord) Copy() *TreeRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Digests = bytes.Clone(r.Digests)
	return &c
}

// RootKey is the canonical storage key for a root digest.
func RootKey(root []byte) string {
	return hexutil.Encode(root)
}

// SortTreeRecords orders records by creation time (ascending), then by root.
func SortTreeRecords(records []*TreeRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt < records[j].CreatedAt
		}
		return records[i].Root < records[j].Root
	})
}
