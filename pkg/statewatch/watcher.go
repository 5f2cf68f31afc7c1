package statewatch

import (
	"context"
	"crypto/sha256"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDelay = 300 * time.Millisecond

// Watcher reports state files that change on disk behind the running
// process. The process stays the source of truth: the next save overwrites
// whatever was edited.
type Watcher struct {
	dir     string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	onDrift func(path string)

	mu       sync.Mutex
	known    map[string][sha256.Size]byte
	debounce map[string]*time.Timer
}

func New(dir string) *Watcher {
	return &Watcher{
		dir:      dir,
		known:    make(map[string][sha256.Size]byte),
		debounce: make(map[string]*time.Timer),
	}
}

func (w *Watcher) SetLogger(logger *slog.Logger) {
	w.logger = logger
}

// OnDrift registers fn to be called for every externally modified file.
func (w *Watcher) OnDrift(fn func(path string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onDrift = fn
}

// Observe records data as the expected content of path. Wire it to the
// store's save hook so the process's own writes are not reported.
func (w *Watcher) Observe(path string, data []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.known[filepath.Clean(path)] = sha256.Sum256(data)
}

func (w *Watcher) Start(ctx context.Context) error {
	if err := w.snapshot(); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher
	if err := w.watcher.Add(w.dir); err != nil {
		_ = w.watcher.Close()
		return err
	}
	w.logInfo("state_watch_started", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			w.stopTimers()
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if isStateFile(event.Name) && shouldCheck(event) {
				w.scheduleCheck(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logError("state_watch_error", "error", err)
		}
	}
}

// snapshot records the current contents of every state file.
func (w *Watcher) snapshot() error {
	matches, err := filepath.Glob(filepath.Join(w.dir, "*.json"))
	if err != nil {
		return err
	}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		w.Observe(path, data)
	}
	return nil
}

func isStateFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, ".json") && !strings.HasPrefix(base, ".")
}

func shouldCheck(event fsnotify.Event) bool {
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}

func (w *Watcher) scheduleCheck(path string) {
	path = filepath.Clean(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.debounce[path]; ok {
		timer.Stop()
	}
	w.debounce[path] = time.AfterFunc(debounceDelay, func() {
		w.mu.Lock()
		delete(w.debounce, path)
		w.mu.Unlock()
		w.check(path)
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.debounce {
		timer.Stop()
		delete(w.debounce, path)
	}
}

// check compares path against the last observed content and reports drift.
func (w *Watcher) check(path string) bool {
	path = filepath.Clean(path)
	data, err := os.ReadFile(path)
	removed := errors.Is(err, fs.ErrNotExist)
	if err != nil && !removed {
		w.logError("state_watch_read_failed", "path", path, "error", err)
		return false
	}

	w.mu.Lock()
	want, known := w.known[path]
	drifted := false
	switch {
	case removed:
		drifted = known
	case !known:
		drifted = true
	default:
		drifted = sha256.Sum256(data) != want
	}
	notify := w.onDrift
	w.mu.Unlock()

	if !drifted {
		return false
	}
	if removed {
		w.logWarn("state_file_removed_externally", "path", path)
	} else {
		w.logWarn("state_file_modified_externally", "path", path)
	}
	if notify != nil {
		notify(path)
	}
	return true
}

func (w *Watcher) logInfo(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Info(msg, args...)
	}
}

func (w *Watcher) logWarn(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Warn(msg, args...)
	}
}

func (w *Watcher) logError(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Error(msg, args...)
	}
}
