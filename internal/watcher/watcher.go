// Package watcher observes a drop folder for newly arrived files and holds
// each one back until it has been quiescent for a stabilization window, so
// partially written files copied from cameras or card readers are never
// dispatched downstream.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"

	"github.com/snapframe/snapframe/internal/logging"
)

// FileFilter determines if an arriving file should be tracked.
type FileFilter func(path string) bool

// Handler receives a file path once it has stabilized. Called at most once
// per tracked arrival.
type Handler func(path string)

// FileWatcher watches a single directory and dispatches stabilized files.
// Files already present when watching starts are not treated as arrivals;
// only creation notifications observed after Watch begin tracking.
type FileWatcher struct {
	watcher       *fsnotify.Watcher
	clock         clockwork.Clock
	stabilization time.Duration
	poll          time.Duration
	logger        logging.Logger

	filters []FileFilter
	handler Handler

	pending map[string]struct{}
	mutex   sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// Options configures a FileWatcher.
type Options struct {
	// Stabilization is the quiescence window before a file is dispatched.
	Stabilization time.Duration
	// Poll is the interval at which a tracked file's size is re-checked.
	Poll time.Duration
	// Clock defaults to the real clock; tests inject a fake one.
	Clock clockwork.Clock
	// Logger defaults to a no-op logger.
	Logger logging.Logger
}

// New creates a file watcher. The fsnotify handle is allocated here so that
// resource failures surface before any state transitions happen.
func New(opts Options) (*FileWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if opts.Stabilization <= 0 {
		opts.Stabilization = 2 * time.Second
	}
	if opts.Poll <= 0 {
		opts.Poll = 100 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}

	return &FileWatcher{
		watcher:       fsw,
		clock:         opts.Clock,
		stabilization: opts.Stabilization,
		poll:          opts.Poll,
		logger:        opts.Logger.WithComponent("watcher"),
		filters:       make([]FileFilter, 0),
		pending:       make(map[string]struct{}),
		done:          make(chan struct{}),
	}, nil
}

// AddFilter adds a file filter. All filters must pass for a file to be tracked.
func (w *FileWatcher) AddFilter(filter FileFilter) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.filters = append(w.filters, filter)
}

// SetHandler sets the dispatch handler for stabilized files.
func (w *FileWatcher) SetHandler(handler Handler) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.handler = handler
}

// Watch registers the directory and starts the event loop.
func (w *FileWatcher) Watch(ctx context.Context, dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.watchLoop(ctx)

	return nil
}

// Stop tears down the watch. After Stop returns no further handler calls are
// made: the fsnotify handle is closed and every in-flight stabilizer has
// finished or been cancelled.
func (w *FileWatcher) Stop() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}

// PendingCount returns the number of files currently stabilizing.
func (w *FileWatcher) PendingCount() int {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return len(w.pending)
}

func (w *FileWatcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Log error but continue watching
			w.logger.Warn(ctx, err, "watch error")
		}
	}
}

func (w *FileWatcher) handleEvent(event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) {
		// Writes to a tracked file are observed by its poller; everything
		// else is irrelevant here.
		return
	}

	w.mutex.Lock()
	filters := w.filters
	w.mutex.Unlock()

	for _, filter := range filters {
		if !filter(event.Name) {
			return
		}
	}

	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return
	}

	// Coalesce: a notification for a file already stabilizing is not a new job.
	w.mutex.Lock()
	if _, tracked := w.pending[event.Name]; tracked {
		w.mutex.Unlock()
		return
	}
	w.pending[event.Name] = struct{}{}
	w.mutex.Unlock()

	w.wg.Add(1)
	go w.stabilize(event.Name)
}

// stabilize polls the file's size until it has not changed for the full
// stabilization window, then dispatches it exactly once. The wait is timer
// based, never a blocking sleep of the event loop: each tracked file runs
// its own stabilizer and new arrivals keep being accepted meanwhile.
func (w *FileWatcher) stabilize(path string) {
	defer w.wg.Done()
	defer w.untrack(path)

	var lastSize int64 = -1
	var quiet time.Duration

	for {
		select {
		case <-w.done:
			return
		case <-w.clock.After(w.poll):
		}

		info, err := os.Stat(path)
		if err != nil {
			// File vanished before settling, drop it silently
			return
		}

		if info.Size() != lastSize {
			lastSize = info.Size()
			quiet = 0
			continue
		}

		quiet += w.poll
		if quiet < w.stabilization {
			continue
		}

		w.mutex.Lock()
		handler := w.handler
		w.mutex.Unlock()

		if handler != nil {
			handler(path)
		}
		return
	}
}

func (w *FileWatcher) untrack(path string) {
	w.mutex.Lock()
	delete(w.pending, path)
	w.mutex.Unlock()
}

// Common file filters

// NoDotfileFilter rejects dotfiles and files inside dot directories.
func NoDotfileFilter(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return false
		}
	}
	return true
}
