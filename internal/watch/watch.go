// Package watch reports exposure files that appear in a directory.
package watch

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultSettle is how long a file must stay unchanged before it is reported.
const DefaultSettle = 500 * time.Millisecond

// Watcher emits the path of every new or rewritten file matching Pattern
// once writes to it have settled.
type Watcher struct {
	watcher *fsnotify.Watcher
	dirs    []string
	pattern string
	settle  time.Duration
	logger  zerolog.Logger

	Files chan string

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a watcher over dirs. pattern is a filepath.Match pattern on
// the base name; empty means "*.cbor".
func New(dirs []string, pattern string, settle time.Duration, logger zerolog.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		pattern = "*.cbor"
	}
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Watcher{
		watcher: watcher,
		dirs:    dirs,
		pattern: pattern,
		settle:  settle,
		logger:  logger.With().Str("component", "watch").Logger(),
		Files:   make(chan string, 100),
		pending: make(map[string]*time.Timer),
	}, nil
}

// Run watches until ctx is done, then closes Files.
func (w *Watcher) Run(ctx context.Context) error {
	for _, dir := range w.dirs {
		if err := w.watcher.Add(dir); err != nil {
			_ = w.watcher.Close()
			close(w.Files)
			return err
		}
		w.logger.Info().Str("dir", dir).Str("pattern", w.pattern).Msg("watching directory")
	}

	defer func() {
		w.mu.Lock()
		for path, timer := range w.pending {
			timer.Stop()
			delete(w.pending, path)
		}
		// Hold the lock so no timer callback sends after close.
		close(w.Files)
		w.mu.Unlock()
		_ = w.watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					w.cancel(event.Name)
				}
				continue
			}
			if !w.matches(event.Name) {
				continue
			}
			w.schedule(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("filesystem watcher error")
		}
	}
}

func (w *Watcher) matches(path string) bool {
	base := filepath.Base(path)
	if strings.HasSuffix(base, ".tmp") || strings.HasPrefix(base, ".") {
		return false
	}
	ok, err := filepath.Match(w.pattern, base)
	return err == nil && ok
}

// schedule (re)starts the settle timer of path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if _, ok := w.pending[path]; !ok {
			return
		}
		delete(w.pending, path)
		select {
		case w.Files <- path:
		default:
			w.logger.Warn().Str("path", path).Msg("file queue full, dropping")
		}
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok {
		timer.Stop()
		delete(w.pending, path)
	}
}
