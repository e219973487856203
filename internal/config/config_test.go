package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/Aman-CERP/searchkit/internal/errors"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0o644))
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: defaults match the historical settings
	assert.True(t, cfg.Writer.Cache)
	assert.Equal(t, "", cfg.Writer.MaxLockAge)
	assert.Equal(t, time.Second, cfg.LockWaitSleepDuration())
	assert.Equal(t, 0, cfg.Writer.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.ReopenIntervalDuration())
	assert.Equal(t, 10000, cfg.Sweep.PageSize)
	assert.Equal(t, "standard", cfg.Engine.Analyzer)
	assert.Equal(t, 2*time.Second, cfg.BoltTimeoutDuration())
	assert.Equal(t, time.Duration(0), cfg.MaxLockAgeDuration())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)
}

func TestLoad_FileOverridesOnlyPresentKeys(t *testing.T) {
	// Given: a file that turns caching off and sets a lock age
	dir := t.TempDir()
	writeConfig(t, dir, `
writer:
  cache: false
  max_lock_age: 10m
searcher:
  reopen_interval: 5s
`)

	// When: loading
	cfg, err := Load(dir)

	// Then: present keys are applied and absent keys keep their defaults
	require.NoError(t, err)
	assert.False(t, cfg.Writer.Cache)
	assert.Equal(t, 10*time.Minute, cfg.MaxLockAgeDuration())
	assert.Equal(t, 5*time.Second, cfg.ReopenIntervalDuration())
	assert.Equal(t, "1s", cfg.Writer.LockWaitSleep)
	assert.Equal(t, 10000, cfg.Sweep.PageSize)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "writer: [not, a, map")

	_, err := Load(dir)

	require.Error(t, err)
	assert.Equal(t, serrors.ErrCodeConfigInvalid, serrors.GetCode(err))
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "sweep:\n  page_size: 50\n")
	t.Setenv("SEARCHKIT_SWEEP_PAGE_SIZE", "75")
	t.Setenv("SEARCHKIT_WRITER_CACHE", "false")
	t.Setenv("SEARCHKIT_MAX_LOCK_AGE", "90s")
	t.Setenv("SEARCHKIT_LOG_LEVEL", "debug")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 75, cfg.Sweep.PageSize)
	assert.False(t, cfg.Writer.Cache)
	assert.Equal(t, 90*time.Second, cfg.MaxLockAgeDuration())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate_CacheWithMaxLockAgeIsInvalid(t *testing.T) {
	// Given: caching on and a staleness threshold set
	cfg := NewConfig()
	cfg.Writer.MaxLockAge = "10m"

	// When: validating
	err := cfg.Validate()

	// Then: InvalidConfiguration, fatal and not retryable
	require.Error(t, err)
	assert.Equal(t, serrors.ErrCodeConfigInvalid, serrors.GetCode(err))
	assert.True(t, serrors.IsFatal(err))
	assert.Contains(t, err.(*serrors.SearchError).Cause.Error(), "writer.max_lock_age requires writer.cache=false")
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := NewConfig()
	cfg.Writer.LockWaitSleep = "soon"
	cfg.Writer.LockBackend = "zookeeper"
	cfg.Sweep.PageSize = 0
	cfg.Logging.Level = "loud"

	err := cfg.Validate()

	require.Error(t, err)
	msg := err.(*serrors.SearchError).Cause.Error()
	assert.Contains(t, msg, "writer.lock_wait_sleep")
	assert.Contains(t, msg, "writer.lock_backend")
	assert.Contains(t, msg, "sweep.page_size")
	assert.Contains(t, msg, "logging.level")
}

func TestResolvedLockBackend(t *testing.T) {
	tests := []struct {
		name    string
		cache   bool
		backend string
		want    string
	}{
		{"auto cached", true, LockBackendAuto, LockBackendMemory},
		{"auto uncached", false, LockBackendAuto, LockBackendFile},
		{"explicit file while cached", true, LockBackendFile, LockBackendFile},
		{"explicit memory while uncached", false, LockBackendMemory, LockBackendMemory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			cfg.Writer.Cache = tt.cache
			cfg.Writer.LockBackend = tt.backend
			assert.Equal(t, tt.want, cfg.ResolvedLockBackend())
		})
	}
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Writer.Cache = false
	cfg.Writer.MaxLockAge = "2m"

	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, FileName)))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))

	require.Error(t, err)
	assert.Equal(t, serrors.ErrCodeConfigNotFound, serrors.GetCode(err))
}
