package treeManager

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Layr-Labs/flat-merkle-go/pkg/config"
	"github.com/Layr-Labs/flat-merkle-go/pkg/hashing"
	"github.com/Layr-Labs/flat-merkle-go/pkg/logger"
	"github.com/Layr-Labs/flat-merkle-go/pkg/merkle"
	"github.com/Layr-Labs/flat-merkle-go/pkg/metrics"
	"github.com/Layr-Labs/flat-merkle-go/pkg/persistence"
	"github.com/Layr-Labs/flat-merkle-go/pkg/persistence/factory"
)

var (
	// ErrTreeNotFound is returned when no tree with the requested root is known.
	ErrTreeNotFound = errors.New("tree not found")

	// ErrNoActiveTree is returned by Active before any tree was activated.
	ErrNoActiveTree = errors.New("no active tree")

	// ErrEmptyTree is returned by Build for an empty value list; an empty
	// tree has no root to register it under.
	ErrEmptyTree = errors.New("cannot register an empty tree")
)

// TreeManager builds trees, keeps them addressable by root and persists
// their snapshots. Trees not held in memory are restored from the store on
// first use. It is safe for concurrent use.
type TreeManager struct {
	mu sync.RWMutex

	// activeMu serializes Activate and Delete so a tree cannot be removed
	// between its existence check and the active root being persisted.
	activeMu sync.Mutex

	// trees maps root key -> tree
	trees  map[string]*merkle.MerkleTree
	active []byte

	algo            hashing.Algorithm
	lookupCacheSize int

	store   persistence.ITreePersistence
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewTreeManager creates a manager from a validated configuration.
// m may be nil to disable metrics.
func NewTreeManager(cfg *config.Config, store persistence.ITreePersistence, m *metrics.Metrics, logger *zap.Logger) (*TreeManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("persistence store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	algo, err := cfg.HashAlgorithm()
	if err != nil {
		return nil, err
	}

	// Pick up the active tree from a previous run
	active, err := store.GetActiveRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to read active root: %w", err)
	}

	tm := &TreeManager{
		trees:           make(map[string]*merkle.MerkleTree),
		active:          active,
		algo:            algo,
		lookupCacheSize: cfg.LookupCacheSize,
		store:           store,
		metrics:         m,
		logger:          logger,
	}

	logger.Sugar().Infow("Tree manager initialized",
		"algorithm", algo.Name(),
		"lookupCacheSize", cfg.LookupCacheSize,
		"activeRoot", rootOrNone(active),
	)
	return tm, nil
}

// NewTreeManagerFromConfig builds the logger, the persistence backend and
// the metrics described by cfg and returns a manager that owns them.
// reg may be nil to leave the collectors unregistered.
func NewTreeManagerFromConfig(cfg *config.Config, reg prometheus.Registerer) (*TreeManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	m, err := metrics.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	store, err := factory.NewPersistence(&cfg.Persistence, l)
	if err != nil {
		return nil, err
	}

	tm, err := NewTreeManager(cfg, store, m, l)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return tm, nil
}

func rootOrNone(root []byte) string {
	if len(root) == 0 {
		return "none"
	}
	return persistence.RootKey(root)
}

// Algorithm returns the algorithm new trees are built with.
func (tm *TreeManager) Algorithm() hashing.Algorithm {
	return tm.algo
}

// Build builds a tree from values with the configured algorithm, persists
// its snapshot and registers it under its root.
func (tm *TreeManager) Build(values [][]byte) (*merkle.MerkleTree, error) {
	if len(values) == 0 {
		return nil, ErrEmptyTree
	}

	start := time.Now()
	tree := merkle.NewMerkleTree(values, tm.algo, merkle.WithLookupCache(tm.lookupCacheSize))
	tm.metrics.ObserveBuild(tm.algo.Name(), tree.LeafCount(), time.Since(start))

	record, err := persistence.NewTreeRecord(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to create tree record: %w", err)
	}
	if err := tm.store.SaveTree(record); err != nil {
		return nil, fmt.Errorf("failed to persist tree %s: %w", record.Root, err)
	}

	tm.mu.Lock()
	tm.trees[record.Root] = tree
	loaded := len(tm.trees)
	tm.mu.Unlock()
	tm.metrics.SetTreesLoaded(loaded)

	tm.logger.Sugar().Infow("Built tree",
		"root", record.Root,
		"id", record.ID,
		"leaves", tree.LeafCount(),
		"height", tree.Height(),
		"algorithm", tm.algo.Name(),
	)
	return tree, nil
}

// Get returns the tree with the given root, restoring it from the store if needed.
func (tm *TreeManager) Get(root []byte) (*merkle.MerkleTree, error) {
	key := persistence.RootKey(root)

	tm.mu.RLock()
	tree, ok := tm.trees[key]
	tm.mu.RUnlock()
	if ok {
		return tree, nil
	}

	record, err := tm.store.LoadTree(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load tree %s: %w", key, err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", ErrTreeNotFound, key)
	}

	// Stored trees keep the algorithm they were built with
	algo, err := hashing.ByName(record.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("tree %s: %w", key, err)
	}
	tree, err = merkle.FromSnapshot(record.Snapshot(), algo, merkle.WithLookupCache(tm.lookupCacheSize))
	if err != nil {
		return nil, fmt.Errorf("failed to restore tree %s: %w", key, err)
	}
	if !bytes.Equal(tree.Root(), root) {
		return nil, fmt.Errorf("%w: tree stored under %s has root %s", merkle.ErrCorruptSnapshot, key, persistence.RootKey(tree.Root()))
	}

	tm.mu.Lock()
	// Another caller may have restored it concurrently; keep the first.
	if existing, ok := tm.trees[key]; ok {
		tree = existing
	} else {
		tm.trees[key] = tree
	}
	loaded := len(tm.trees)
	tm.mu.Unlock()
	tm.metrics.SetTreesLoaded(loaded)

	tm.logger.Sugar().Debugw("Restored tree from store", "root", key, "leaves", tree.LeafCount())
	return tree, nil
}

// Prove returns a detached membership proof for value in the tree with the given root.
// A value that is not in the tree yields (nil, false, nil).
func (tm *TreeManager) Prove(root []byte, value []byte) (*merkle.Proof, bool, error) {
	tree, err := tm.Get(root)
	if err != nil {
		return nil, false, err
	}

	proof, ok := tree.BuildProof(value)
	tm.metrics.ObserveProof(ok)
	if !ok {
		return nil, false, nil
	}
	return proof.Detach(), true, nil
}

// Verify validates proof against the tree with the given root.
func (tm *TreeManager) Verify(root []byte, proof *merkle.Proof) (bool, error) {
	tree, err := tm.Get(root)
	if err != nil {
		return false, err
	}

	valid := tree.Validate(proof)
	tm.metrics.ObserveValidation(valid)
	return valid, nil
}

// List returns the records of every persisted tree, oldest first.
func (tm *TreeManager) List() ([]*persistence.TreeRecord, error) {
	return tm.store.ListTrees()
}

// Delete forgets the tree with the given root. Deleting an unknown root is not an error.
// If the tree was active, no tree is active afterwards.
func (tm *TreeManager) Delete(root []byte) error {
	tm.activeMu.Lock()
	defer tm.activeMu.Unlock()

	if err := tm.store.DeleteTree(root); err != nil {
		return fmt.Errorf("failed to delete tree %s: %w", persistence.RootKey(root), err)
	}

	tm.mu.Lock()
	delete(tm.trees, persistence.RootKey(root))
	loaded := len(tm.trees)
	wasActive := bytes.Equal(tm.active, root)
	tm.mu.Unlock()
	tm.metrics.SetTreesLoaded(loaded)

	if wasActive {
		if err := tm.setActive(nil); err != nil {
			return err
		}
	}

	tm.logger.Sugar().Infow("Deleted tree", "root", persistence.RootKey(root), "wasActive", wasActive)
	return nil
}

// Activate marks the tree with the given root as the active tree.
func (tm *TreeManager) Activate(root []byte) error {
	tm.activeMu.Lock()
	defer tm.activeMu.Unlock()

	if _, err := tm.Get(root); err != nil {
		return err
	}
	if err := tm.setActive(root); err != nil {
		return err
	}

	tm.logger.Sugar().Infow("Activated tree", "root", persistence.RootKey(root))
	return nil
}

func (tm *TreeManager) setActive(root []byte) error {
	if err := tm.store.SetActiveRoot(root); err != nil {
		return fmt.Errorf("failed to persist active root: %w", err)
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()
	if len(root) == 0 {
		tm.active = nil
	} else {
		tm.active = bytes.Clone(root)
	}
	return nil
}

// Active returns the active tree.
func (tm *TreeManager) Active() (*merkle.MerkleTree, error) {
	tm.mu.RLock()
	active := tm.active
	tm.mu.RUnlock()

	if len(active) == 0 {
		return nil, ErrNoActiveTree
	}
	return tm.Get(active)
}

// Close closes the underlying store.
func (tm *TreeManager) Close() error {
	return tm.store.Close()
}
