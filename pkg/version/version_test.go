package version

import (
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_ReflectsInjectedValues(t *testing.T) {
	// Given: values injected as the linker would
	oldV, oldC, oldD := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = oldV, oldC, oldD })
	Version, Commit, Date = "v0.4.0", "abc1234", "2026-01-02T03:04:05Z"

	// When
	info := Get()

	// Then
	assert.Equal(t, "v0.4.0", info.Version)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.Equal(t, "searchkit v0.4.0 (commit abc1234, built 2026-01-02T03:04:05Z, "+
		runtime.Version()+" "+info.Platform+")", info.String())
}

func TestBuildInfo_JSON(t *testing.T) {
	data, err := json.Marshal(Get())
	require.NoError(t, err)

	var fields map[string]string
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{"version", "commit", "date", "go_version", "platform"} {
		assert.Contains(t, fields, key)
	}
}
