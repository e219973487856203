package lock

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	serrors "github.com/Aman-CERP/searchkit/internal/errors"
)

// LockFileName is the sentinel created inside an index location while a
// writer holds it.
const LockFileName = "write.lock"

// guardFileName serializes ForceClear between processes on the same host.
const guardFileName = "write.lock.guard"

// FileLocker implements the lock record as a sentinel file created with
// create-if-absent semantics. It works on shared filesystems where kernel
// byte-range locks are unreliable, at the cost of leaving the sentinel
// behind if the holder dies.
type FileLocker struct {
	logger *slog.Logger
}

var _ Locker = (*FileLocker)(nil)

// NewFileLocker creates a FileLocker.
func NewFileLocker(opts ...Option) *FileLocker {
	o := applyOptions(opts)
	return &FileLocker{logger: o.logger}
}

// Path returns the sentinel path for location.
func Path(location string) string {
	return filepath.Join(location, LockFileName)
}

func (f *FileLocker) Obtain(location string) (bool, error) {
	if err := ensureDir(location); err != nil {
		return false, err
	}

	file, err := os.OpenFile(Path(location), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, serrors.IOError("failed to create lock file", err).
			WithDetail("path", Path(location))
	}

	host, _ := os.Hostname()
	_, _ = fmt.Fprintf(file, "pid=%d host=%s\n", os.Getpid(), host)
	if err := file.Close(); err != nil {
		return false, serrors.IOError("failed to close lock file", err).
			WithDetail("path", Path(location))
	}
	return true, nil
}

func (f *FileLocker) Release(location string) error {
	err := os.Remove(Path(location))
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return serrors.New(serrors.ErrCodeLockRelease, "failed to delete lock file", err).
		WithDetail("path", Path(location))
}

func (f *FileLocker) IsLocked(location string) (bool, error) {
	_, ok, err := f.LockedAt(location)
	return ok, err
}

func (f *FileLocker) LockedAt(location string) (time.Time, bool, error) {
	info, err := os.Stat(Path(location))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, serrors.IOError("failed to stat lock file", err).
			WithDetail("path", Path(location))
	}
	return info.ModTime(), true, nil
}

func (f *FileLocker) ForceClear(location string, observed time.Time) (bool, error) {
	guard := flock.New(filepath.Join(location, guardFileName))
	if err := guard.Lock(); err != nil {
		// Some network filesystems refuse flock; fall back to an unguarded clear.
		f.logger.Warn("lock_guard_unavailable",
			slog.String("location", location),
			slog.String("error", err.Error()))
	} else {
		defer func() {
			_ = guard.Unlock()
		}()
	}

	at, ok, err := f.LockedAt(location)
	if err != nil || !ok {
		return false, err
	}
	if !observed.IsZero() && !at.Equal(observed) {
		return false, nil
	}

	if err := os.Remove(Path(location)); err != nil && !os.IsNotExist(err) {
		return false, serrors.New(serrors.ErrCodeLockRelease, "failed to delete stale lock file", err).
			WithDetail("path", Path(location))
	}
	return true, nil
}

func ensureDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case err == nil && !info.IsDir():
		return serrors.IOError("found regular file where directory expected", nil).
			WithDetail("path", dir)
	case err == nil:
		return nil
	case !os.IsNotExist(err):
		return serrors.IOError("failed to stat index directory", err).WithDetail("path", dir)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return serrors.IOError("cannot create directory", err).WithDetail("path", dir)
	}
	return nil
}
