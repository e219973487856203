// Package config loads the process-wide searchkit settings.
//
// Settings are read once at startup and never reloaded. Precedence, lowest
// first: built-in defaults, the project file (.searchkit.yaml), then
// SEARCHKIT_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	serrors "github.com/Aman-CERP/searchkit/internal/errors"
)

// Lock backends.
const (
	LockBackendAuto   = "auto"
	LockBackendMemory = "memory"
	LockBackendFile   = "file"
)

// FileName is the project configuration file name.
const FileName = ".searchkit.yaml"

// Config is the complete searchkit configuration.
type Config struct {
	Writer   WriterConfig   `yaml:"writer" json:"writer"`
	Searcher SearcherConfig `yaml:"searcher" json:"searcher"`
	Sweep    SweepConfig    `yaml:"sweep" json:"sweep"`
	Engine   EngineConfig   `yaml:"engine" json:"engine"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
}

// WriterConfig controls the writer lifecycle manager.
type WriterConfig struct {
	// Cache keeps one write handle open per location for the process lifetime.
	// When false, every release closes the handle (shared-storage mode).
	Cache bool `yaml:"cache" json:"cache"`

	// MaxLockAge is the age after which a held lock is presumed abandoned and
	// cleared. Empty disables staleness eviction. Only valid with Cache off.
	MaxLockAge string `yaml:"max_lock_age" json:"max_lock_age"`

	// LockWaitSleep is the sleep between lock checks while waiting, for
	// writers and for readers of an index another process has open.
	LockWaitSleep string `yaml:"lock_wait_sleep" json:"lock_wait_sleep"`

	// MaxRetries bounds lock-race retries while waiting. 0 means unbounded.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// LockBackend selects the lock record implementation: auto, memory or file.
	LockBackend string `yaml:"lock_backend" json:"lock_backend"`
}

// SearcherConfig controls the read handle cache.
type SearcherConfig struct {
	// ReopenInterval is the minimum time between read handle refreshes.
	ReopenInterval string `yaml:"reopen_interval" json:"reopen_interval"`

	// Watch marks read handles stale when the index directory changes.
	Watch bool `yaml:"watch" json:"watch"`
}

// SweepConfig controls bulk reindex sweeps.
type SweepConfig struct {
	PageSize int `yaml:"page_size" json:"page_size"`
	Workers  int `yaml:"workers" json:"workers"`
}

// EngineConfig controls the underlying full-text engine.
type EngineConfig struct {
	// Analyzer names the analyzer for tokenized fields and analyzed predicates.
	Analyzer string `yaml:"analyzer" json:"analyzer"`

	// BoltTimeout is how long opening an index waits on a held engine file lock.
	BoltTimeout string `yaml:"bolt_timeout" json:"bolt_timeout"`

	// TokenCacheSize is the number of cached analyzed-text tokenizations.
	TokenCacheSize int `yaml:"token_cache_size" json:"token_cache_size"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// MetricsConfig controls Prometheus instrumentation.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Writer: WriterConfig{
			Cache:         true,
			LockWaitSleep: "1s",
			LockBackend:   LockBackendAuto,
		},
		Searcher: SearcherConfig{
			ReopenInterval: "30s",
		},
		Sweep: SweepConfig{
			PageSize: 10000,
			Workers:  4,
		},
		Engine: EngineConfig{
			Analyzer:       "standard",
			BoltTimeout:    "2s",
			TokenCacheSize: 1024,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load builds the configuration for dir: defaults, then dir/.searchkit.yaml,
// then environment overrides. The result is validated.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile is Load with an explicit file path. A missing file is an error.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML overlays the keys present in the file onto c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return serrors.New(serrors.ErrCodeConfigNotFound,
			fmt.Sprintf("failed to read config file %s", path), err)
	}

	// Decode into a copy so a type error leaves c untouched.
	parsed := *c
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return serrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
	}

	*c = parsed
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SEARCHKIT_WRITER_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Writer.Cache = b
		}
	}
	if v, ok := os.LookupEnv("SEARCHKIT_MAX_LOCK_AGE"); ok {
		c.Writer.MaxLockAge = v
	}
	if v := os.Getenv("SEARCHKIT_LOCK_WAIT_SLEEP"); v != "" {
		c.Writer.LockWaitSleep = v
	}
	if v := os.Getenv("SEARCHKIT_LOCK_BACKEND"); v != "" {
		c.Writer.LockBackend = strings.ToLower(v)
	}
	if v := os.Getenv("SEARCHKIT_REOPEN_INTERVAL"); v != "" {
		c.Searcher.ReopenInterval = v
	}
	if v := os.Getenv("SEARCHKIT_SWEEP_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Sweep.PageSize = n
		}
	}
	if v := os.Getenv("SEARCHKIT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration and reports every problem at once.
// Combining writer caching with a max lock age is rejected: staleness
// eviction only makes sense when handles are closed after each operation.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Writer.Cache && c.Writer.MaxLockAge != "" {
		result = multierror.Append(result,
			fmt.Errorf("writer.max_lock_age requires writer.cache=false"))
	}
	if c.Writer.MaxLockAge != "" {
		if d, err := time.ParseDuration(c.Writer.MaxLockAge); err != nil || d <= 0 {
			result = multierror.Append(result,
				fmt.Errorf("writer.max_lock_age must be a positive duration, got %q", c.Writer.MaxLockAge))
		}
	}
	if d, err := time.ParseDuration(c.Writer.LockWaitSleep); err != nil || d <= 0 {
		result = multierror.Append(result,
			fmt.Errorf("writer.lock_wait_sleep must be a positive duration, got %q", c.Writer.LockWaitSleep))
	}
	if c.Writer.MaxRetries < 0 {
		result = multierror.Append(result,
			fmt.Errorf("writer.max_retries must be non-negative, got %d", c.Writer.MaxRetries))
	}
	switch c.Writer.LockBackend {
	case LockBackendAuto, LockBackendMemory, LockBackendFile:
	default:
		result = multierror.Append(result,
			fmt.Errorf("writer.lock_backend must be 'auto', 'memory' or 'file', got %q", c.Writer.LockBackend))
	}

	if d, err := time.ParseDuration(c.Searcher.ReopenInterval); err != nil || d < 0 {
		result = multierror.Append(result,
			fmt.Errorf("searcher.reopen_interval must be a duration, got %q", c.Searcher.ReopenInterval))
	}

	if c.Sweep.PageSize <= 0 {
		result = multierror.Append(result,
			fmt.Errorf("sweep.page_size must be positive, got %d", c.Sweep.PageSize))
	}
	if c.Sweep.Workers <= 0 {
		result = multierror.Append(result,
			fmt.Errorf("sweep.workers must be positive, got %d", c.Sweep.Workers))
	}

	if c.Engine.Analyzer == "" {
		result = multierror.Append(result, fmt.Errorf("engine.analyzer must be set"))
	}
	if d, err := time.ParseDuration(c.Engine.BoltTimeout); err != nil || d <= 0 {
		result = multierror.Append(result,
			fmt.Errorf("engine.bolt_timeout must be a positive duration, got %q", c.Engine.BoltTimeout))
	}
	if c.Engine.TokenCacheSize < 0 {
		result = multierror.Append(result,
			fmt.Errorf("engine.token_cache_size must be non-negative, got %d", c.Engine.TokenCacheSize))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		result = multierror.Append(result,
			fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level))
	}

	if err := result.ErrorOrNil(); err != nil {
		return serrors.ConfigError("invalid configuration", err)
	}
	return nil
}

// MaxLockAgeDuration returns the staleness threshold, or 0 when disabled.
func (c *Config) MaxLockAgeDuration() time.Duration {
	d, _ := time.ParseDuration(c.Writer.MaxLockAge)
	return d
}

// LockWaitSleepDuration returns the wait loop sleep interval.
func (c *Config) LockWaitSleepDuration() time.Duration {
	d, err := time.ParseDuration(c.Writer.LockWaitSleep)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// ReopenIntervalDuration returns the read handle refresh interval.
func (c *Config) ReopenIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.Searcher.ReopenInterval)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// BoltTimeoutDuration returns the engine open timeout.
func (c *Config) BoltTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Engine.BoltTimeout)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// ResolvedLockBackend maps "auto" to memory when caching and file otherwise.
func (c *Config) ResolvedLockBackend() string {
	if c.Writer.LockBackend != "" && c.Writer.LockBackend != LockBackendAuto {
		return c.Writer.LockBackend
	}
	if c.Writer.Cache {
		return LockBackendMemory
	}
	return LockBackendFile
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
