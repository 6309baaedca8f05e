package persistence

// ITreePersistence defines the interface for persisting tree snapshots across restarts.
// All implementations must be thread-safe as TreeManager operations are concurrent.
//
// The interface supports:
// - Tree record management (save, load, list, delete), keyed by root digest
// - Active root tracking (which tree is currently served by default)
// - Lifecycle management (close, health check)
type ITreePersistence interface {
	// Tree Management

	// SaveTree persists a tree record indexed by its root.
	// Returns error only on storage failure, not if the tree already exists (idempotent).
	SaveTree(record *TreeRecord) error

	// LoadTree retrieves a tree record by root digest.
	// Returns nil if the tree doesn't exist, error only on storage failure.
	LoadTree(root []byte) (*TreeRecord, error)

	// ListTrees returns all persisted tree records sorted by creation time (ascending).
	// Returns empty slice if no trees exist, error only on storage failure.
	ListTrees() ([]*TreeRecord, error)

	// DeleteTree removes a tree record by root digest.
	// Idempotent - returns nil if the tree doesn't exist.
	// Returns error only on storage failure.
	DeleteTree(root []byte) error

	// Active Root Tracking

	// SetActiveRoot stores which tree is currently active.
	// Setting a nil or empty root clears the active tree.
	SetActiveRoot(root []byte) error

	// GetActiveRoot returns the root of the active tree.
	// Returns nil if no active tree is set (first run).
	// Returns error only on storage failure.
	GetActiveRoot() ([]byte, error)

	// Lifecycle Management

	// Close cleanly shuts down the persistence layer.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations should return errors.
	Close() error

	// HealthCheck verifies the persistence layer is operational.
	// Returns nil if healthy, error describing the problem if not.
	HealthCheck() error
}
