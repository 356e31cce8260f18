package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Query backends
const (
	BackendResourceExplorer = "resource-explorer"
	BackendTaggingAPI       = "tagging-api"
)

// Persistence stores
const (
	StoreDynamoDB = "dynamodb"
	StoreDuckDB   = "duckdb"
	StoreMemory   = "memory"
)

// MaxBatchSize is the BatchWriteItem request limit
const MaxBatchSize = 25

type Config struct {
	RequiredTag    string           `yaml:"required_tag"`
	TableName      string           `yaml:"table_name"`
	TTLSeconds     int64            `yaml:"ttl_seconds"`
	BatchSize      int              `yaml:"batch_size"`
	PageSize       int              `yaml:"page_size"`
	Regions        []string         `yaml:"regions"`
	Backend        string           `yaml:"backend"`
	ExplorerRegion string           `yaml:"explorer_region"`
	ViewARN        string           `yaml:"view_arn"`
	Store          string           `yaml:"store"`
	DuckDBPath     string           `yaml:"duckdb_path"`
	Concurrency    int              `yaml:"concurrency"`
	PagesPerSecond float64          `yaml:"pages_per_second"`
	DeadLetter     DeadLetterConfig `yaml:"dead_letter"`
}

type DeadLetterConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// Enabled reports whether failed batches are kept in S3
func (d DeadLetterConfig) Enabled() bool {
	return d.Bucket != ""
}

// TTL returns the record lifetime
func (c *Config) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		RequiredTag:    "Foobar",
		TableName:      "UntaggedResources",
		TTLSeconds:     86400,
		BatchSize:      MaxBatchSize,
		PageSize:       100,
		Regions:        []string{"Global", "us-east-1", "us-east-2"},
		Backend:        BackendResourceExplorer,
		ExplorerRegion: "us-east-1",
		Store:          StoreDynamoDB,
		DuckDBPath:     "tagsweep.duckdb",
		Concurrency:    1,
		DeadLetter: DeadLetterConfig{
			Prefix: "tagsweep/dead-letter",
		},
	}
}

// Load builds the configuration from defaults, the config file and the environment.
// path may be empty, in which case the standard locations are searched.
func Load(path string) (*Config, error) {
	// Priority order: CLI args > env vars > config file > defaults
	cfg := Default()

	if err := loadFromFile(cfg, path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	if path == "" {
		path = os.Getenv("TAGSWEEP_CONFIG_FILE")
	}
	if path != "" {
		return loadConfigFile(cfg, path)
	}

	locations := []string{
		"tagsweep.yaml",
		"tagsweep.yml",
		".tagsweep.yaml",
		filepath.Join(os.Getenv("HOME"), ".tagsweep", "config.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loadConfigFile(cfg, loc)
		}
	}

	return os.ErrNotExist
}

func loadConfigFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Unmarshal over the defaults so keys missing from the file keep them
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DESIRED_TAG"); v != "" {
		cfg.RequiredTag = v
	}
	if v := os.Getenv("DDB_TABLE_NAME"); v != "" {
		cfg.TableName = v
	}
	if v := os.Getenv("SCAN_REGIONS"); v != "" {
		cfg.Regions = SplitList(v)
	}
	if v := os.Getenv("TAGSWEEP_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("TAGSWEEP_EXPLORER_REGION"); v != "" {
		cfg.ExplorerRegion = v
	}
	if v := os.Getenv("TAGSWEEP_VIEW_ARN"); v != "" {
		cfg.ViewARN = v
	}
	if v := os.Getenv("TAGSWEEP_STORE"); v != "" {
		cfg.Store = v
	}
	if v := os.Getenv("TAGSWEEP_DUCKDB_PATH"); v != "" {
		cfg.DuckDBPath = v
	}
	if v := os.Getenv("TAGSWEEP_DEAD_LETTER_BUCKET"); v != "" {
		cfg.DeadLetter.Bucket = v
	}
	if v := os.Getenv("TAGSWEEP_DEAD_LETTER_PREFIX"); v != "" {
		cfg.DeadLetter.Prefix = v
	}

	ints := []struct {
		env string
		set func(int64)
	}{
		{"TTL_SECONDS", func(n int64) { cfg.TTLSeconds = n }},
		{"BATCH_SIZE", func(n int64) { cfg.BatchSize = int(n) }},
		{"PAGE_SIZE", func(n int64) { cfg.PageSize = int(n) }},
		{"TAGSWEEP_CONCURRENCY", func(n int64) { cfg.Concurrency = int(n) }},
	}
	for _, o := range ints {
		v := os.Getenv(o.env)
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, o.env, v)
		}
		o.set(n)
	}

	if v := os.Getenv("TAGSWEEP_PAGES_PER_SECOND"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: TAGSWEEP_PAGES_PER_SECOND=%q is not a number", ErrInvalidConfig, v)
		}
		cfg.PagesPerSecond = f
	}

	return nil
}

// Validate checks the configuration and returns an error wrapping ErrInvalidConfig
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.RequiredTag) == "" {
		return invalid("required tag must not be empty")
	}
	if c.Store == StoreDynamoDB && c.TableName == "" {
		return invalid("table name must not be empty")
	}
	if c.TTLSeconds <= 0 {
		return invalid("ttl_seconds must be positive, got %d", c.TTLSeconds)
	}
	if c.BatchSize < 1 || c.BatchSize > MaxBatchSize {
		return invalid("batch_size must be between 1 and %d, got %d", MaxBatchSize, c.BatchSize)
	}

	switch c.Backend {
	case BackendResourceExplorer:
		if c.PageSize < 1 || c.PageSize > 1000 {
			return invalid("page_size must be between 1 and 1000, got %d", c.PageSize)
		}
	case BackendTaggingAPI:
		if c.PageSize < 1 || c.PageSize > 100 {
			return invalid("page_size must be between 1 and 100 for %s, got %d", BackendTaggingAPI, c.PageSize)
		}
	default:
		return invalid("unknown backend %q", c.Backend)
	}

	switch c.Store {
	case StoreDynamoDB, StoreMemory:
	case StoreDuckDB:
		if c.DuckDBPath == "" {
			return invalid("duckdb_path must not be empty")
		}
	default:
		return invalid("unknown store %q", c.Store)
	}

	if len(c.Regions) == 0 {
		return invalid("at least one region is required")
	}
	for _, r := range c.Regions {
		if strings.TrimSpace(r) == "" {
			return invalid("region names must not be empty")
		}
	}
	if c.Concurrency < 1 {
		return invalid("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.PagesPerSecond < 0 {
		return invalid("pages_per_second must not be negative")
	}

	return nil
}

// SplitList splits a comma separated list, dropping blanks
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// InitializeConfigFile writes an example configuration to path
func InitializeConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists at %s", path)
	}

	exampleConfig := `# tagsweep configuration
# Resources missing this tag key are recorded
required_tag: Foobar

# DynamoDB table with TTL enabled on ExpireAt
table_name: UntaggedResources
ttl_seconds: 86400

# BatchWriteItem accepts at most 25 items
batch_size: 25
page_size: 100

# "Global" covers IAM, Route 53 and other non-regional resources.
# Use "all" to expand to every enabled region.
regions:
  - Global
  - us-east-1
  - us-east-2

# resource-explorer or tagging-api
backend: resource-explorer
explorer_region: us-east-1

# dynamodb, duckdb or memory
store: dynamodb
duckdb_path: tagsweep.duckdb

concurrency: 1
pages_per_second: 0

# Keep records from failed batch writes in S3
dead_letter:
  bucket: ""
  prefix: tagsweep/dead-letter
`

	if err := os.WriteFile(path, []byte(exampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	return nil
}
