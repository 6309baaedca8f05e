package badger

import (
	"testing"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Layr-Labs/flat-merkle-go/pkg/hashing"
	"github.com/Layr-Labs/flat-merkle-go/pkg/logger"
	"github.com/Layr-Labs/flat-merkle-go/pkg/merkle"
	"github.com/Layr-Labs/flat-merkle-go/pkg/persistence"
	"github.com/Layr-Labs/flat-merkle-go/pkg/persistence/persistencetest"
)

func TestBadgerPersistence(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	persistencetest.TestTreePersistence(t, func(t *testing.T) persistence.ITreePersistence {
		bp, err := NewBadgerPersistence(t.TempDir(), testLogger)
		require.NoError(t, err)
		t.Cleanup(func() { _ = bp.Close() })
		return bp
	})
}

func TestBadgerPersistence_Persistence_AcrossRestarts(t *testing.T) {
	tmpDir := t.TempDir()
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	// First instance - save data
	bp1, err := NewBadgerPersistence(tmpDir, testLogger)
	require.NoError(t, err)

	record := persistencetest.NewRecord(t, "restart", 7)
	root, err := record.RootBytes()
	require.NoError(t, err)

	err = bp1.SaveTree(record)
	require.NoError(t, err)

	err = bp1.SetActiveRoot(root)
	require.NoError(t, err)

	// Close first instance
	err = bp1.Close()
	require.NoError(t, err)

	// Second instance - verify data persisted
	bp2, err := NewBadgerPersistence(tmpDir, testLogger)
	require.NoError(t, err)
	defer func() { _ = bp2.Close() }()

	loaded, err := bp2.LoadTree(root)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, record, loaded)

	// Verify the restored tree still proves its values
	tree, err := merkle.FromSnapshot(loaded.Snapshot(), hashing.SHA256)
	require.NoError(t, err)
	proof, ok := tree.BuildProofString("restart-6")
	require.True(t, ok)
	assert.True(t, tree.Validate(proof))

	// Verify active root
	active, err := bp2.GetActiveRoot()
	require.NoError(t, err)
	assert.Equal(t, root, active)
}

func TestBadgerPersistence_SchemaVersionMismatch(t *testing.T) {
	tmpDir := t.TempDir()

	// Write a foreign schema version directly
	opts := badgerdb.DefaultOptions(tmpDir).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	require.NoError(t, err)
	err = db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(keySchemaVersion), []byte("v0"))
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = NewBadgerPersistence(tmpDir, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported schema version")
}

func TestBadgerPersistence_SkipsCorruptRecords(t *testing.T) {
	bp, err := NewBadgerPersistence(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = bp.Close() }()

	require.NoError(t, bp.SaveTree(persistencetest.NewRecord(t, "good", 2)))
	err = bp.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(treeKey("0xbad"), []byte("{not json"))
	})
	require.NoError(t, err)

	trees, err := bp.ListTrees()
	require.NoError(t, err)
	assert.Len(t, trees, 1)
}

func TestBadgerPersistence_GCLoopStopsOnClose(t *testing.T) {
	bp, err := NewBadgerPersistenceWithGCInterval(t.TempDir(), 10*time.Millisecond, nil)
	require.NoError(t, err)

	require.NoError(t, bp.SaveTree(persistencetest.NewRecord(t, "gc", 3)))
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		_ = bp.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return; GC goroutine still running")
	}
}

func TestBadgerLoggerAdapter(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	adapter := &badgerLoggerAdapter{logger: zap.New(core)}

	adapter.Errorf("error %d", 1)
	adapter.Warningf("warn %d", 2)
	adapter.Infof("info %d", 3)
	adapter.Debugf("debug %d", 4)

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, "error 1", entries[0].Message)
	assert.Equal(t, zap.ErrorLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, zap.DebugLevel, entries[2].Level)
	assert.Equal(t, "info 3", entries[2].Message)
	assert.Equal(t, zap.DebugLevel, entries[3].Level)
	assert.Equal(t, "badger", entries[0].ContextMap()["component"])
}
