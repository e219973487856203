package lock

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/Aman-CERP/searchkit/internal/errors"
)

func backends(t *testing.T) map[string]Locker {
	t.Helper()
	return map[string]Locker{
		BackendMemory: NewMemoryLocker(),
		BackendFile:   NewFileLocker(),
	}
}

func TestLocker_ObtainIsExclusive(t *testing.T) {
	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			loc := filepath.Join(t.TempDir(), "idx")

			// Given: a free lock
			locked, err := l.IsLocked(loc)
			require.NoError(t, err)
			assert.False(t, locked)

			// When: obtaining twice
			first, err := l.Obtain(loc)
			require.NoError(t, err)
			second, err := l.Obtain(loc)
			require.NoError(t, err)

			// Then: only the first succeeds
			assert.True(t, first)
			assert.False(t, second)
			locked, err = l.IsLocked(loc)
			require.NoError(t, err)
			assert.True(t, locked)
		})
	}
}

func TestLocker_ReleaseFreesLock(t *testing.T) {
	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			loc := filepath.Join(t.TempDir(), "idx")

			ok, err := l.Obtain(loc)
			require.NoError(t, err)
			require.True(t, ok)

			require.NoError(t, l.Release(loc))
			require.NoError(t, l.Release(loc), "releasing a free lock is a no-op")

			ok, err = l.Obtain(loc)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestLocker_ConcurrentObtainHasOneWinner(t *testing.T) {
	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			loc := filepath.Join(t.TempDir(), "idx")

			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := l.Obtain(loc)
					assert.NoError(t, err)
					if ok {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(1), wins.Load())
		})
	}
}

func TestLocker_ForceClearComparesTimestamp(t *testing.T) {
	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			loc := filepath.Join(t.TempDir(), "idx")

			ok, err := l.Obtain(loc)
			require.NoError(t, err)
			require.True(t, ok)

			at, held, err := l.LockedAt(loc)
			require.NoError(t, err)
			require.True(t, held)

			// A stale observation does not clear the current holder.
			cleared, err := l.ForceClear(loc, at.Add(-time.Hour))
			require.NoError(t, err)
			assert.False(t, cleared)

			// The matching observation clears it.
			cleared, err = l.ForceClear(loc, at)
			require.NoError(t, err)
			assert.True(t, cleared)

			locked, err := l.IsLocked(loc)
			require.NoError(t, err)
			assert.False(t, locked)
		})
	}
}

func TestLocker_ForceClearUnconditional(t *testing.T) {
	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			loc := filepath.Join(t.TempDir(), "idx")
			_, err := l.Obtain(loc)
			require.NoError(t, err)

			cleared, err := l.ForceClear(loc, time.Time{})
			require.NoError(t, err)
			assert.True(t, cleared)

			cleared, err = l.ForceClear(loc, time.Time{})
			require.NoError(t, err)
			assert.False(t, cleared, "nothing left to clear")
		})
	}
}

func TestMemoryLocker_LockedAtUsesClock(t *testing.T) {
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	clk := testclock.NewClock(start)
	l := NewMemoryLocker(WithClock(clk))

	_, err := l.Obtain("/idx")
	require.NoError(t, err)
	clk.Advance(time.Minute)

	at, ok, err := l.LockedAt("/idx")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, start, at)
}

func TestFileLocker_SentinelLayout(t *testing.T) {
	loc := filepath.Join(t.TempDir(), "nested", "idx")
	l := NewFileLocker()

	// Given: a location that does not exist yet
	ok, err := l.Obtain(loc)

	// Then: the directory and sentinel are created
	require.NoError(t, err)
	assert.True(t, ok)
	data, err := os.ReadFile(Path(loc))
	require.NoError(t, err)
	assert.Contains(t, string(data), "pid=")
}

func TestFileLocker_LockedAtReflectsMtime(t *testing.T) {
	loc := t.TempDir()
	l := NewFileLocker()
	_, err := l.Obtain(loc)
	require.NoError(t, err)

	old := time.Now().Add(-2 * time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(Path(loc), old, old))

	at, ok, err := l.LockedAt(loc)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, at.Equal(old))
}

func TestFileLocker_RegularFileWhereDirectoryExpected(t *testing.T) {
	loc := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(loc, []byte("x"), 0o644))

	_, err := NewFileLocker().Obtain(loc)

	require.Error(t, err)
	assert.Equal(t, serrors.ErrCodeIOFailure, serrors.GetCode(err))
}

func TestNew_SelectsBackend(t *testing.T) {
	l, err := New(BackendMemory)
	require.NoError(t, err)
	assert.IsType(t, &MemoryLocker{}, l)

	l, err = New(BackendFile)
	require.NoError(t, err)
	assert.IsType(t, &FileLocker{}, l)

	_, err = New("etcd")
	assert.Equal(t, serrors.ErrCodeConfigInvalid, serrors.GetCode(err))
}
