package badger

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/Layr-Labs/flat-merkle-go/pkg/persistence"
)

// Key prefixes for namespacing
const (
	keyPrefixTree        = "tree:"
	keyActiveRoot        = "active:root"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"
)

// defaultGCInterval is how often the value log is garbage collected.
const defaultGCInterval = 5 * time.Minute

// BadgerPersistence is a production-ready persistence implementation using Badger.
// Provides durable, disk-based storage with ACID guarantees.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewBadgerPersistence creates a new Badger-backed persistence layer.
// The database is opened at the specified path with SyncWrites enabled for durability.
// A background goroutine is started for garbage collection.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	return NewBadgerPersistenceWithGCInterval(dataPath, defaultGCInterval, logger)
}

// NewBadgerPersistenceWithGCInterval is NewBadgerPersistence with a custom value log GC interval.
func NewBadgerPersistenceWithGCInterval(dataPath string, gcInterval time.Duration, logger *zap.Logger) (*BadgerPersistence, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gcInterval <= 0 {
		gcInterval = defaultGCInterval
	}

	// Convert to absolute path
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	// Configure Badger for production use
	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.SyncWrites = true // Ensure durability (fsync on every write)
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1 // Trees are immutable; old versions are never read

	// Open database
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	// Initialize schema version
	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Start background GC
	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx, gcInterval)

	logger.Sugar().Infow("Badger persistence initialized", "path", absPath, "gcInterval", gcInterval)

	return bp, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			// First time setup - set schema version
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		// Validate existing schema version
		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}

		return nil
	})
}

// runGC runs periodic garbage collection in the background
func (b *BadgerPersistence) runGC(ctx context.Context, interval time.Duration) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Run value log GC with 0.5 discard ratio
			err := b.db.RunValueLogGC(0.5)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func treeKey(root string) []byte {
	return []byte(keyPrefixTree + root)
}

// SaveTree persists a tree record
func (b *BadgerPersistence) SaveTree(record *persistence.TreeRecord) error {
	if err := persistence.ValidateTreeRecord(record); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	// Serialize to JSON
	data, err := persistence.MarshalTreeRecord(record)
	if err != nil {
		return fmt.Errorf("failed to marshal TreeRecord: %w", err)
	}

	// Store in Badger
	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(treeKey(record.Root), data)
	})
}

// LoadTree retrieves a tree record
func (b *BadgerPersistence) LoadTree(root []byte) (*persistence.TreeRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	data, err := b.get(treeKey(persistence.RootKey(root)))
	if err != nil {
		return nil, fmt.Errorf("failed to load TreeRecord: %w", err)
	}

	if data == nil {
		return nil, nil // Not found
	}

	// Deserialize from JSON
	record, err := persistence.UnmarshalTreeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal TreeRecord: %w", err)
	}

	return record, nil
}

// get returns a copy of the value at key, or nil if the key does not exist.
func (b *BadgerPersistence) get(key []byte) ([]byte, error) {
	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if err == badgerdb.ErrKeyNotFound {
			return nil // Not found is not an error
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...) // Copy value
			return nil
		})
	})
	return data, err
}

// ListTrees returns all tree records sorted by creation time
func (b *BadgerPersistence) ListTrees() ([]*persistence.TreeRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	records := []*persistence.TreeRecord{}

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixTree)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			var data []byte
			err := item.Value(func(val []byte) error {
				data = append([]byte{}, val...) // Copy value
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			record, err := persistence.UnmarshalTreeRecord(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal TreeRecord, skipping",
					"key", string(item.Key()), "error", err)
				continue
			}

			records = append(records, record)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list TreeRecords: %w", err)
	}

	persistence.SortTreeRecords(records)

	return records, nil
}

// DeleteTree removes a tree record
func (b *BadgerPersistence) DeleteTree(root []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(treeKey(persistence.RootKey(root)))
	})
}

// SetActiveRoot stores the active tree root
func (b *BadgerPersistence) SetActiveRoot(root []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		if len(root) == 0 {
			return txn.Delete([]byte(keyActiveRoot))
		}
		return txn.Set([]byte(keyActiveRoot), bytes.Clone(root))
	})
}

// GetActiveRoot retrieves the active tree root
func (b *BadgerPersistence) GetActiveRoot() ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	root, err := b.get([]byte(keyActiveRoot))
	if err != nil {
		return nil, fmt.Errorf("failed to get active root: %w", err)
	}
	return root, nil
}

// Close shuts down the persistence layer
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil // Already closed, idempotent
	}
	b.closed = true
	b.mu.Unlock()

	// Stop GC goroutine
	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	// Close database
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	// Try a simple read operation to verify database is accessible
	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}

var _ persistence.ITreePersistence = (*BadgerPersistence)(nil)
