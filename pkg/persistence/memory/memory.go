package memory

import (
	"bytes"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Layr-Labs/flat-merkle-go/pkg/persistence"
)

// MemoryPersistence is an in-memory implementation of ITreePersistence.
// This implementation is intended for TESTING ONLY.
//
// All data is stored in memory and will be lost when the process exits.
// Thread-safe using sync.RWMutex for concurrent access.
// Deep copies data to prevent external mutation.
type MemoryPersistence struct {
	mu sync.RWMutex

	// Tree storage: root key -> TreeRecord
	trees map[string]*persistence.TreeRecord

	// Active root tracking
	activeRoot []byte

	// Closed flag
	closed bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
// Logs a loud warning since this should only be used for testing.
func NewMemoryPersistence(logger *zap.Logger) *MemoryPersistence {
	if logger != nil {
		logger.Sugar().Warnw("Using in-memory persistence - ALL TREES WILL BE LOST ON RESTART",
			"hint", "set MERKLE_PERSISTENCE_TYPE=badger or redis for durable storage")
	}

	return &MemoryPersistence{
		trees: make(map[string]*persistence.TreeRecord),
	}
}

// SaveTree persists a tree record.
func (m *MemoryPersistence) SaveTree(record *persistence.TreeRecord) error {
	if err := persistence.ValidateTreeRecord(record); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	// Deep copy to prevent external mutation
	m.trees[record.Root] = record.Copy()

	return nil
}

// LoadTree retrieves a tree record by root.
func (m *MemoryPersistence) LoadTree(root []byte) (*persistence.TreeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	record, exists := m.trees[persistence.RootKey(root)]
	if !exists {
		return nil, nil // Not found is not an error
	}

	// Deep copy to prevent external mutation
	return record.Copy(), nil
}

// ListTrees returns all tree records sorted by creation time.
func (m *MemoryPersistence) ListTrees() ([]*persistence.TreeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	result := make([]*persistence.TreeRecord, 0, len(m.trees))
	for _, record := range m.trees {
		result = append(result, record.Copy())
	}
	persistence.SortTreeRecords(result)

	return result, nil
}

// DeleteTree removes a tree record.
func (m *MemoryPersistence) DeleteTree(root []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	delete(m.trees, persistence.RootKey(root))
	return nil
}

// SetActiveRoot stores the root of the active tree.
func (m *MemoryPersistence) SetActiveRoot(root []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	if len(root) == 0 {
		m.activeRoot = nil
		return nil
	}
	m.activeRoot = bytes.Clone(root)
	return nil
}

// GetActiveRoot retrieves the root of the active tree.
func (m *MemoryPersistence) GetActiveRoot() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	if m.activeRoot == nil {
		return nil, nil
	}
	return bytes.Clone(m.activeRoot), nil
}

// Close shuts down the persistence layer.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the persistence layer is operational.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	return nil
}

// Len returns the number of stored trees.
func (m *MemoryPersistence) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.trees)
}

var _ persistence.ITreePersistence = (*MemoryPersistence)(nil)
