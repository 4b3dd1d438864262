// Package ingest drives photo ingestion: it owns the watch state machine,
// wires the stabilizing directory watcher to the photo processor, and runs
// manual scans. One pipeline instance owns one watched root path.
package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/snapframe/snapframe/internal/classify"
	"github.com/snapframe/snapframe/internal/config"
	bootherrors "github.com/snapframe/snapframe/internal/errors"
	"github.com/snapframe/snapframe/internal/events"
	"github.com/snapframe/snapframe/internal/logging"
	"github.com/snapframe/snapframe/internal/processor"
	"github.com/snapframe/snapframe/internal/watcher"
)

// State is the pipeline's watch state.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateWatching
)

// String returns the string representation of the State
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateWatching:
		return "watching"
	default:
		return "unknown"
	}
}

// WatchState is the externally visible pipeline status.
type WatchState struct {
	IsWatching   bool       `json:"isWatching"`
	WatchPath    string     `json:"watchPath"`
	LastScanTime *time.Time `json:"lastScanTime"`
	LastError    string     `json:"lastError,omitempty"`
}

// Pipeline watches the configured drop folder and hands stabilized, eligible,
// not-yet-processed files to the photo processor.
type Pipeline struct {
	cfg        config.WatchConfig
	classifier *classify.Classifier
	processor  *processor.Processor
	bus        events.Publisher
	logger     logging.Logger
	clock      clockwork.Clock

	mutex    sync.Mutex
	state    State
	watcher  *watcher.FileWatcher
	lastScan *time.Time
	lastErr  error
}

// New creates a pipeline. Nothing is watched until Start.
func New(cfg config.WatchConfig, classifier *classify.Classifier, proc *processor.Processor, bus events.Publisher, clock clockwork.Clock, logger logging.Logger) *Pipeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		cfg:        cfg,
		classifier: classifier,
		processor:  proc,
		bus:        bus,
		logger:     logger.WithComponent("ingest"),
		clock:      clock,
		state:      StateStopped,
	}
}

// Start transitions Stopped -> Starting -> Watching. Starting a pipeline
// that is already watching is a no-op. A bad watch path keeps the pipeline
// Stopped, records the condition in the status, and returns a configuration
// error.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.state != StateStopped {
		return nil
	}

	if err := validateWatchPath(p.cfg.Path); err != nil {
		p.lastErr = err
		p.logger.Warn(ctx, err, "watch not started")
		return err
	}

	p.state = StateStarting

	w, err := watcher.New(watcher.Options{
		Stabilization: p.cfg.Stabilization(),
		Poll:          p.cfg.Poll(),
		Clock:         p.clock,
		Logger:        p.logger,
	})
	if err != nil {
		p.state = StateStopped
		p.lastErr = err
		return bootherrors.NewInternalError(bootherrors.ErrCodeInternalError, "failed to create watcher", err)
	}

	w.AddFilter(watcher.NoDotfileFilter)
	w.AddFilter(p.classifier.IsEligible)
	w.SetHandler(p.handleArrival)

	if err := w.Watch(ctx, p.cfg.Path); err != nil {
		_ = w.Stop()
		p.state = StateStopped
		p.lastErr = err
		return bootherrors.ErrWatchPathInvalid(p.cfg.Path)
	}

	p.watcher = w
	p.state = StateWatching
	p.lastErr = nil

	p.logger.Info(ctx, "watching directory", "path", p.cfg.Path)
	if p.bus != nil {
		p.bus.Publish(events.EventWatchStatusChanged, events.WatchStatusChanged{
			IsWatching: true,
			Path:       p.cfg.Path,
		})
	}

	return nil
}

// Stop tears down the watch. Stopping an already stopped pipeline is a
// no-op. After Stop returns, no further arrivals are dispatched.
func (p *Pipeline) Stop() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.state != StateWatching {
		return
	}

	if err := p.watcher.Stop(); err != nil {
		p.logger.Warn(context.Background(), err, "watcher teardown reported an error")
	}
	p.watcher = nil
	p.state = StateStopped

	p.logger.Info(context.Background(), "watching stopped", "path", p.cfg.Path)
	if p.bus != nil {
		p.bus.Publish(events.EventWatchStatusChanged, events.WatchStatusChanged{
			IsWatching: false,
		})
	}
}

// SetPath changes the watched drop folder. It does not move an active
// watch; stop and restart the pipeline for the new path to take effect.
func (p *Pipeline) SetPath(path string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.cfg.Path = path
}

// Scan lists the watch directory once and synchronously processes every
// eligible file whose base filename is not in the processed store yet.
// It may run whether or not the continuous watch is active, updates the
// last-scan time even when nothing new is found, and returns how many new
// photos were processed. A processing failure for one file does not abort
// the sweep.
func (p *Pipeline) Scan(ctx context.Context) (int, error) {
	p.mutex.Lock()
	watchPath := p.cfg.Path
	p.mutex.Unlock()

	if err := validateWatchPath(watchPath); err != nil {
		return 0, err
	}

	entries, err := os.ReadDir(watchPath)
	if err != nil {
		return 0, bootherrors.NewStorageError(bootherrors.ErrCodeStorageFailed, "failed to list watch directory", err)
	}

	newPhotos := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !watcher.NoDotfileFilter(name) || !p.classifier.IsEligible(name) {
			continue
		}
		if p.processor.Exists(name) {
			continue
		}

		if _, err := p.processor.Process(filepath.Join(watchPath, name)); err != nil {
			// Failure isolation: log and keep sweeping
			p.logger.Warn(ctx, err, "scan failed to process file", "filename", name)
			continue
		}
		newPhotos++
	}

	now := p.clock.Now()
	p.mutex.Lock()
	p.lastScan = &now
	p.mutex.Unlock()

	p.logger.Info(ctx, "manual scan complete", "new_photos", newPhotos)

	return newPhotos, nil
}

// Status returns the current watch state.
func (p *Pipeline) Status() WatchState {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	status := WatchState{
		IsWatching:   p.state == StateWatching,
		WatchPath:    p.cfg.Path,
		LastScanTime: p.lastScan,
	}
	if p.lastErr != nil {
		status.LastError = p.lastErr.Error()
	}
	return status
}

// handleArrival processes a single stabilized file. Called by the watcher,
// possibly concurrently for different files.
func (p *Pipeline) handleArrival(path string) {
	name := filepath.Base(path)

	// A same-named arrival overwrites the previous record: last-write-wins
	// is the accepted re-ingestion semantics.
	if _, err := p.processor.Process(path); err != nil {
		p.logger.Warn(context.Background(), err, "failed to process arrival", "filename", name)
	}
}

func validateWatchPath(path string) error {
	if path == "" {
		return bootherrors.ErrWatchPathInvalid(path)
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return bootherrors.ErrWatchPathInvalid(path)
	}
	return nil
}
