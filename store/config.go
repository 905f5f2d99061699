package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultRegion      = "eu-west-1"
	DefaultTableName   = "EcommerceData"
	DefaultIndexName   = "GSI1"
	DefaultShardCount  = 5
	DefaultMaxDepth    = 32
	DefaultBatchPause  = 100 * time.Millisecond
	DefaultMaxAttempts = 5
	DefaultBaseBackoff = 50 * time.Millisecond

	maxShardCount = 256
)

// Config holds configuration shared by the adapters and the core packages.
type Config struct {
	// Region is the AWS region of the table.
	// Default: "eu-west-1"
	Region string `yaml:"region"`

	// Endpoint overrides the DynamoDB endpoint (DynamoDB Local, LocalStack).
	Endpoint string `yaml:"endpoint"`

	// TableName is the single adjacency-list table.
	// Default: "EcommerceData"
	TableName string `yaml:"table_name"`

	// IndexName is the secondary index used for inverse traversal.
	// Default: "GSI1"
	IndexName string `yaml:"index_name"`

	// ShardCount is the number of partitions a hot entity's append stream is
	// spread over. Reads fan out to every shard, so each extra shard costs
	// one more round trip per read.
	// Default: 5
	// Max: 256
	ShardCount int `yaml:"shard_count"`

	// MaxDepth bounds ancestor path length.
	// Default: 32
	MaxDepth int `yaml:"max_depth"`

	// BatchSize is the chunk size used by PutAll and DeleteAll.
	// Default: 25 (also the maximum)
	BatchSize int `yaml:"batch_size"`

	// BatchPause is the yield between consecutive batches.
	// Default: 100ms
	BatchPause time.Duration `yaml:"batch_pause"`

	// MaxAttempts is the total number of tries for a throttled request.
	// Default: 5
	MaxAttempts int `yaml:"max_attempts"`

	// BaseBackoff is the first retry delay; later delays grow exponentially.
	// Default: 50ms
	BaseBackoff time.Duration `yaml:"base_backoff"`

	// AccessKeyID and SecretAccessKey select static credentials. When empty
	// the default AWS credential chain is used.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// DefaultConfig returns the defaults of the e-commerce table.
func DefaultConfig() Config {
	return Config{
		Region:      DefaultRegion,
		TableName:   DefaultTableName,
		IndexName:   DefaultIndexName,
		ShardCount:  DefaultShardCount,
		MaxDepth:    DefaultMaxDepth,
		BatchSize:   MaxBatchSize,
		BatchPause:  DefaultBatchPause,
		MaxAttempts: DefaultMaxAttempts,
		BaseBackoff: DefaultBaseBackoff,
	}
}

// LoadConfig builds a Config from defaults, a .env file in the working
// directory (if any), the YAML file at path (if non-empty) and ARBOR_*
// environment variables, in that order of precedence from lowest to highest.
func LoadConfig(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.validate()
	return cfg, nil
}

// WithDefaults returns a copy of c with out-of-range values clamped and
// empty values defaulted.
func (c Config) WithDefaults() Config {
	c.validate()
	return c
}

// RetryPolicy derives the retry budget of c.
func (c Config) RetryPolicy() RetryPolicy {
	c.validate()
	return RetryPolicy{MaxAttempts: c.MaxAttempts, BaseBackoff: c.BaseBackoff}
}

// BatchOptions derives the batch writer settings of c.
func (c Config) BatchOptions() BatchOptions {
	c.validate()
	return BatchOptions{Size: c.BatchSize, Pause: c.BatchPause}
}

func (c *Config) applyEnv() error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = n
		return nil
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = d
		return nil
	}

	str("AWS_REGION", &c.Region)
	str("ARBOR_REGION", &c.Region)
	str("ARBOR_ENDPOINT", &c.Endpoint)
	str("ARBOR_TABLE_NAME", &c.TableName)
	str("ARBOR_INDEX_NAME", &c.IndexName)
	str("ARBOR_ACCESS_KEY_ID", &c.AccessKeyID)
	str("ARBOR_SECRET_ACCESS_KEY", &c.SecretAccessKey)

	return errors.Join(
		num("ARBOR_SHARD_COUNT", &c.ShardCount),
		num("ARBOR_MAX_DEPTH", &c.MaxDepth),
		num("ARBOR_BATCH_SIZE", &c.BatchSize),
		num("ARBOR_MAX_ATTEMPTS", &c.MaxAttempts),
		dur("ARBOR_BATCH_PAUSE", &c.BatchPause),
		dur("ARBOR_BASE_BACKOFF", &c.BaseBackoff),
	)
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.TableName == "" {
		c.TableName = DefaultTableName
	}
	if c.IndexName == "" {
		c.IndexName = DefaultIndexName
	}
	if c.ShardCount < 1 {
		c.ShardCount = DefaultShardCount
	}
	if c.ShardCount > maxShardCount {
		c.ShardCount = maxShardCount
	}
	if c.MaxDepth < 1 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.BatchSize < 1 || c.BatchSize > MaxBatchSize {
		c.BatchSize = MaxBatchSize
	}
	if c.BatchPause < 0 {
		c.BatchPause = 0
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = DefaultBaseBackoff
	}
}
