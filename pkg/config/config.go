package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/Layr-Labs/flat-merkle-go/pkg/hashing"
)

// Environment variable names for tree service configuration
const (
	EnvMerkleAlgorithm       = "MERKLE_ALGORITHM"
	EnvMerkleLookupCacheSize = "MERKLE_LOOKUP_CACHE_SIZE"
	EnvMerkleDebug           = "MERKLE_DEBUG"
	EnvMerklePersistenceType = "MERKLE_PERSISTENCE_TYPE"
	EnvMerkleDataPath        = "MERKLE_DATA_PATH"
	EnvMerkleRedisAddress    = "MERKLE_REDIS_ADDRESS"
	EnvMerkleRedisPassword   = "MERKLE_REDIS_PASSWORD"
	EnvMerkleRedisDB         = "MERKLE_REDIS_DB"
	EnvMerkleRedisKeyPrefix  = "MERKLE_REDIS_KEY_PREFIX"
)

type PersistenceType string

func (p PersistenceType) String() string {
	return string(p)
}

const (
	PersistenceTypeMemory PersistenceType = "memory"
	PersistenceTypeBadger PersistenceType = "badger"
	PersistenceTypeRedis  PersistenceType = "redis"
)

// GetSupportedPersistenceTypes returns all supported persistence backends
func GetSupportedPersistenceTypes() []PersistenceType {
	return []PersistenceType{
		PersistenceTypeMemory,
		PersistenceTypeBadger,
		PersistenceTypeRedis,
	}
}

const (
	DefaultDataPath       = "./data/trees"
	DefaultRedisAddress   = "localhost:6379"
	DefaultRedisKeyPrefix = ""
)

type RedisConfig struct {
	Address   string `json:"address" yaml:"address"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"keyPrefix" yaml:"keyPrefix"`
}

type PersistenceConfig struct {
	Type     PersistenceType `json:"type" yaml:"type"`
	DataPath string          `json:"dataPath" yaml:"dataPath"` // Badger directory
	Redis    RedisConfig     `json:"redis" yaml:"redis"`
}

// Config represents the complete configuration for a tree service
type Config struct {
	// Hash algorithm registry name, e.g. "sha512"
	Algorithm string `json:"algorithm" yaml:"algorithm"`

	// LookupCacheSize bounds the per-tree leaf lookup cache; 0 disables it
	LookupCacheSize int `json:"lookupCacheSize" yaml:"lookupCacheSize"`

	// Operational settings
	Debug bool `json:"debug" yaml:"debug"`

	Persistence PersistenceConfig `json:"persistence" yaml:"persistence"`
}

// NewDefaultConfig returns a configuration using sha512 and in-memory persistence
func NewDefaultConfig() *Config {
	return &Config{
		Algorithm: hashing.Default().Name(),
		Persistence: PersistenceConfig{
			Type:     PersistenceTypeMemory,
			DataPath: DefaultDataPath,
			Redis: RedisConfig{
				Address:   DefaultRedisAddress,
				KeyPrefix: DefaultRedisKeyPrefix,
			},
		},
	}
}

// LoadConfig reads a YAML file on top of the defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML bytes on top of the defaults
func ParseConfig(data []byte) (*Config, error) {
	cfg := NewDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from MERKLE_* environment variables
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var allErrors field.ErrorList

	if v, ok := lookup(EnvMerkleAlgorithm); ok {
		c.Algorithm = v
	}
	if v, ok := lookup(EnvMerkleLookupCacheSize); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath(EnvMerkleLookupCacheSize), v, "must be an integer"))
		} else {
			c.LookupCacheSize = n
		}
	}
	if v, ok := lookup(EnvMerkleDebug); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath(EnvMerkleDebug), v, "must be a boolean"))
		} else {
			c.Debug = b
		}
	}
	if v, ok := lookup(EnvMerklePersistenceType); ok {
		c.Persistence.Type = PersistenceType(strings.ToLower(strings.TrimSpace(v)))
	}
	if v, ok := lookup(EnvMerkleDataPath); ok {
		c.Persistence.DataPath = v
	}
	if v, ok := lookup(EnvMerkleRedisAddress); ok {
		c.Persistence.Redis.Address = v
	}
	if v, ok := lookup(EnvMerkleRedisPassword); ok {
		c.Persistence.Redis.Password = v
	}
	if v, ok := lookup(EnvMerkleRedisDB); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath(EnvMerkleRedisDB), v, "must be an integer"))
		} else {
			c.Persistence.Redis.DB = n
		}
	}
	if v, ok := lookup(EnvMerkleRedisKeyPrefix); ok {
		c.Persistence.Redis.KeyPrefix = v
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var allErrors field.ErrorList

	if _, err := hashing.ByName(c.Algorithm); err != nil {
		allErrors = append(allErrors, field.NotSupported(field.NewPath("algorithm"), c.Algorithm, hashing.Names()))
	}
	if c.LookupCacheSize < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("lookupCacheSize"), c.LookupCacheSize, "must not be negative"))
	}

	allErrors = append(allErrors, c.Persistence.validate(field.NewPath("persistence"))...)

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

func (pc *PersistenceConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList

	switch pc.Type {
	case PersistenceTypeMemory:
	case PersistenceTypeBadger:
		if pc.DataPath == "" {
			allErrors = append(allErrors, field.Required(path.Child("dataPath"), "dataPath is required for badger persistence"))
		}
	case PersistenceTypeRedis:
		if pc.Redis.Address == "" {
			allErrors = append(allErrors, field.Required(path.Child("redis", "address"), "address is required for redis persistence"))
		}
		if pc.Redis.DB < 0 || pc.Redis.DB > 15 {
			allErrors = append(allErrors, field.Invalid(path.Child("redis", "db"), pc.Redis.DB, "must be between 0-15"))
		}
	default:
		supported := make([]string, 0, 3)
		for _, t := range GetSupportedPersistenceTypes() {
			supported = append(supported, t.String())
		}
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), pc.Type, supported))
	}

	return allErrors
}

// HashAlgorithm resolves the configured algorithm from the registry
func (c *Config) HashAlgorithm() (hashing.Algorithm, error) {
	return hashing.ByName(c.Algorithm)
}
