package searcher

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/searchkit/internal/engine"
)

// storeWatcher calls onChange with the index location whenever files under
// its engine store directory are created, written, removed or renamed.
type storeWatcher struct {
	fs       *fsnotify.Watcher
	onChange func(location string)
	logger   *slog.Logger

	mu    sync.Mutex
	roots map[string]string // store dir -> location
	done  chan struct{}
}

func newStoreWatcher(onChange func(string), logger *slog.Logger) (*storeWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &storeWatcher{
		fs:       fsw,
		onChange: onChange,
		logger:   logger,
		roots:    make(map[string]string),
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// add watches every directory under the store of location.
func (w *storeWatcher) add(location string) error {
	root, err := filepath.Abs(filepath.Join(location, engine.StoreDir))
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.roots[root] = location
	w.mu.Unlock()

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return w.fs.Add(path)
		}
		return nil
	})
}

func (w *storeWatcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("searcher_watch_error", slog.String("error", err.Error()))
		}
	}
}

func (w *storeWatcher) handle(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.fs.Add(event.Name)
		}
	}

	location, ok := w.locationOf(event.Name)
	if !ok {
		return
	}
	w.onChange(location)
}

func (w *storeWatcher) locationOf(path string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for dir := filepath.Dir(path); ; dir = filepath.Dir(dir) {
		if loc, ok := w.roots[dir]; ok {
			return loc, true
		}
		if parent := filepath.Dir(dir); parent == dir {
			return "", false
		}
	}
}

func (w *storeWatcher) close() error {
	err := w.fs.Close()
	<-w.done
	return err
}
