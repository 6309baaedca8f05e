package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Layr-Labs/flat-merkle-go/pkg/persistence"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixTree        = "merkle:tree:"
	keyActiveRoot        = "merkle:active:root"
	keySchemaVersion     = "merkle:metadata:schema_version"
	currentSchemaVersion = "v1"

	// Key set for listing operations (Redis doesn't support prefix iteration natively)
	keySetTrees = "merkle:trees:index"
)

const defaultTimeout = 5 * time.Second

// RedisPersistence is a production-ready persistence implementation using Redis.
// Provides durable, distributed storage suitable for cloud-native deployments.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string // Custom prefix for all keys
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional custom prefix for all keys (for multi-tenant setups).
	// If set, this prefix is prepended to all keys, e.g., "myapp:" would result in
	// keys like "myapp:merkle:tree:0x...". If empty, keys use the default "merkle:" prefix.
	KeyPrefix string
}

// NewRedisPersistence creates a new Redis-backed persistence layer.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	// Create Redis client
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	// Initialize schema version
	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)

	return rp, nil
}

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisPersistence) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

func (r *RedisPersistence) treeKey(root string) string {
	return r.prefixKey(keyPrefixTree + root)
}

// initSchema initializes or validates the schema version
func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	// Check if schema version exists
	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		// First time setup - set schema version
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	// Validate existing schema version
	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}

	return nil
}

// SaveTree persists a tree record
func (r *RedisPersistence) SaveTree(record *persistence.TreeRecord) error {
	if err := persistence.ValidateTreeRecord(record); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	// Serialize to JSON
	data, err := persistence.MarshalTreeRecord(record)
	if err != nil {
		return fmt.Errorf("failed to marshal TreeRecord: %w", err)
	}

	// Store in Redis using a transaction pipeline for atomicity
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.treeKey(record.Root), data, 0)
	pipe.SAdd(ctx, r.prefixKey(keySetTrees), record.Root) // Add to index set
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save TreeRecord: %w", err)
	}

	return nil
}

// LoadTree retrieves a tree record
func (r *RedisPersistence) LoadTree(root []byte) (*persistence.TreeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.treeKey(persistence.RootKey(root))).Bytes()
	if err == redis.Nil {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load TreeRecord: %w", err)
	}

	// Deserialize from JSON
	record, err := persistence.UnmarshalTreeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal TreeRecord: %w", err)
	}

	return record, nil
}

// ListTrees returns all tree records sorted by creation time
func (r *RedisPersistence) ListTrees() ([]*persistence.TreeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	indexKey := r.prefixKey(keySetTrees)

	// Get all roots from the index set
	roots, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tree roots: %w", err)
	}

	if len(roots) == 0 {
		return []*persistence.TreeRecord{}, nil
	}

	// Build keys for all trees
	keys := make([]string, len(roots))
	for i, root := range roots {
		keys[i] = r.treeKey(root)
	}

	// Fetch all values using MGET
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch TreeRecords: %w", err)
	}

	records := make([]*persistence.TreeRecord, 0, len(values))
	for i, val := range values {
		if val == nil {
			// Key was in index but doesn't exist - clean up index
			r.client.SRem(ctx, indexKey, roots[i])
			continue
		}

		data, ok := val.(string)
		if !ok {
			r.logger.Sugar().Warnw("Unexpected value type for TreeRecord", "key", keys[i])
			continue
		}

		record, err := persistence.UnmarshalTreeRecord([]byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal TreeRecord, skipping",
				"key", keys[i], "error", err)
			continue
		}

		records = append(records, record)
	}

	persistence.SortTreeRecords(records)

	return records, nil
}

// DeleteTree removes a tree record
func (r *RedisPersistence) DeleteTree(root []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	rootKey := persistence.RootKey(root)

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.treeKey(rootKey))
	pipe.SRem(ctx, r.prefixKey(keySetTrees), rootKey) // Remove from index set
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete TreeRecord: %w", err)
	}
	return nil
}

// SetActiveRoot stores the active tree root
func (r *RedisPersistence) SetActiveRoot(root []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	key := r.prefixKey(keyActiveRoot)
	if len(root) == 0 {
		return r.client.Del(ctx, key).Err()
	}
	return r.client.Set(ctx, key, root, 0).Err()
}

// GetActiveRoot retrieves the active tree root
func (r *RedisPersistence) GetActiveRoot() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	root, err := r.client.Get(ctx, r.prefixKey(keyActiveRoot)).Bytes()
	if err == redis.Nil {
		return nil, nil // No active root set yet
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active root: %w", err)
	}
	return root, nil
}

// Close shuts down the persistence layer
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil // Already closed, idempotent
	}
	r.closed = true
	r.mu.Unlock()

	// Close Redis client
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	// Ping Redis to check connectivity
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	// Verify schema version exists
	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if err == redis.Nil {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	return nil
}

var _ persistence.ITreePersistence = (*RedisPersistence)(nil)
