// Package persistencetest contains behaviour tests shared by every
// persistence.ITreePersistence backend.
package persistencetest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/flat-merkle-go/pkg/hashing"
	"github.com/Layr-Labs/flat-merkle-go/pkg/merkle"
	"github.com/Layr-Labs/flat-merkle-go/pkg/persistence"
)

// Factory opens a fresh, empty backend for a single subtest.
type Factory func(t *testing.T) persistence.ITreePersistence

// NewRecord builds a tree from n values derived from tag and returns its record.
func NewRecord(t *testing.T, tag string, n int) *persistence.TreeRecord {
	t.Helper()

	values := make([]string, n)
	for i := range values {
		values[i] = fmt.Sprintf("%s-%d", tag, i)
	}
	record, err := persistence.NewTreeRecord(merkle.NewMerkleTree(values, hashing.SHA256))
	require.NoError(t, err)
	return record
}

func mustRoot(t *testing.T, r *persistence.TreeRecord) []byte {
	t.Helper()
	root, err := r.RootBytes()
	require.NoError(t, err)
	return root
}

// TestTreePersistence runs the shared behaviour tests against backends from newStore.
func TestTreePersistence(t *testing.T, newStore Factory) {
	t.Run("SaveAndLoad", func(t *testing.T) {
		store := newStore(t)
		record := NewRecord(t, "save", 5)

		require.NoError(t, store.SaveTree(record))

		loaded, err := store.LoadTree(mustRoot(t, record))
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, record, loaded)

		// Loaded record restores the original tree
		tree, err := merkle.FromSnapshot(loaded.Snapshot(), hashing.SHA256)
		require.NoError(t, err)
		assert.Equal(t, mustRoot(t, record), tree.Root())
	})

	t.Run("LoadNotFound", func(t *testing.T) {
		store := newStore(t)

		loaded, err := store.LoadTree([]byte{0xde, 0xad, 0xbe, 0xef})
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("SaveNil", func(t *testing.T) {
		store := newStore(t)
		require.Error(t, store.SaveTree(nil))
	})

	t.Run("SaveInvalidRoot", func(t *testing.T) {
		store := newStore(t)
		record := NewRecord(t, "invalid", 2)
		record.Root = "zz"
		require.Error(t, store.SaveTree(record))
	})

	t.Run("SaveIdempotent", func(t *testing.T) {
		store := newStore(t)
		record := NewRecord(t, "idem", 3)

		require.NoError(t, store.SaveTree(record))
		require.NoError(t, store.SaveTree(record))

		trees, err := store.ListTrees()
		require.NoError(t, err)
		assert.Len(t, trees, 1)
	})

	t.Run("Delete", func(t *testing.T) {
		store := newStore(t)
		record := NewRecord(t, "delete", 4)
		root := mustRoot(t, record)

		require.NoError(t, store.SaveTree(record))
		require.NoError(t, store.DeleteTree(root))

		loaded, err := store.LoadTree(root)
		require.NoError(t, err)
		assert.Nil(t, loaded)

		trees, err := store.ListTrees()
		require.NoError(t, err)
		assert.Empty(t, trees)
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.DeleteTree([]byte{0x01}))
	})

	t.Run("ListSortedByCreation", func(t *testing.T) {
		store := newStore(t)

		records := []*persistence.TreeRecord{
			NewRecord(t, "list-a", 1),
			NewRecord(t, "list-b", 2),
			NewRecord(t, "list-c", 3),
		}
		records[0].CreatedAt = 300
		records[1].CreatedAt = 100
		records[2].CreatedAt = 200

		for _, r := range records {
			require.NoError(t, store.SaveTree(r))
		}

		trees, err := store.ListTrees()
		require.NoError(t, err)
		require.Len(t, trees, 3)
		assert.Equal(t, records[1].Root, trees[0].Root)
		assert.Equal(t, records[2].Root, trees[1].Root)
		assert.Equal(t, records[0].Root, trees[2].Root)
	})

	t.Run("ListEmpty", func(t *testing.T) {
		store := newStore(t)

		trees, err := store.ListTrees()
		require.NoError(t, err)
		assert.NotNil(t, trees)
		assert.Empty(t, trees)
	})

	t.Run("ActiveRootTracking", func(t *testing.T) {
		store := newStore(t)

		// Initially no active root
		active, err := store.GetActiveRoot()
		require.NoError(t, err)
		assert.Nil(t, active)

		record := NewRecord(t, "active", 2)
		require.NoError(t, store.SetActiveRoot(mustRoot(t, record)))

		active, err = store.GetActiveRoot()
		require.NoError(t, err)
		assert.Equal(t, mustRoot(t, record), active)

		// Clearing
		require.NoError(t, store.SetActiveRoot(nil))
		active, err = store.GetActiveRoot()
		require.NoError(t, err)
		assert.Nil(t, active)
	})

	t.Run("Close", func(t *testing.T) {
		store := newStore(t)
		record := NewRecord(t, "close", 2)
		root := mustRoot(t, record)

		require.NoError(t, store.Close())

		assert.Error(t, store.SaveTree(record))
		_, err := store.LoadTree(root)
		assert.Error(t, err)
		_, err = store.ListTrees()
		assert.Error(t, err)
		assert.Error(t, store.DeleteTree(root))
		assert.Error(t, store.SetActiveRoot(root))
		_, err = store.GetActiveRoot()
		assert.Error(t, err)
		assert.Error(t, store.HealthCheck())

		// Idempotent
		require.NoError(t, store.Close())
	})

	t.Run("HealthCheck", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.HealthCheck())
	})

	t.Run("ThreadSafety", func(t *testing.T) {
		store := newStore(t)

		var wg sync.WaitGroup
		numGoroutines := 8
		numOperations := 20

		records := make([][]*persistence.TreeRecord, numGoroutines)
		for i := range records {
			for j := 0; j < numOperations; j++ {
				records[i] = append(records[i], NewRecord(t, fmt.Sprintf("thread-%d-%d", i, j), 1+j%4))
			}
		}

		// Concurrent writes
		for i := 0; i < numGoroutines; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				for _, r := range records[id] {
					assert.NoError(t, store.SaveTree(r))
				}
			}(i)
		}

		// Concurrent reads
		for i := 0; i < numGoroutines; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				for _, r := range records[id] {
					root, err := r.RootBytes()
					assert.NoError(t, err)
					_, err = store.LoadTree(root)
					assert.NoError(t, err)
				}
			}(i)
		}

		// Concurrent lists
		for i := 0; i < numGoroutines; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 5; j++ {
					_, err := store.ListTrees()
					assert.NoError(t, err)
				}
			}()
		}

		wg.Wait()

		trees, err := store.ListTrees()
		require.NoError(t, err)
		assert.Len(t, trees, numGoroutines*numOperations)
	})
}
