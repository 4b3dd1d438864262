package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/snapframe/snapframe/internal/classify"
	"github.com/snapframe/snapframe/internal/compositor"
	"github.com/snapframe/snapframe/internal/config"
	"github.com/snapframe/snapframe/internal/events"
	"github.com/snapframe/snapframe/internal/export"
	"github.com/snapframe/snapframe/internal/frames"
	"github.com/snapframe/snapframe/internal/ingest"
	"github.com/snapframe/snapframe/internal/logging"
	"github.com/snapframe/snapframe/internal/processor"
)

// booth bundles the wired components every subcommand works with.
type booth struct {
	cfg        *config.Config
	logger     logging.Logger
	bus        *events.Bus
	pipeline   *ingest.Pipeline
	processor  *processor.Processor
	store      *frames.Store
	compositor *compositor.Compositor
	exporter   *export.Exporter
}

// newBooth loads and validates configuration and wires the component graph.
func newBooth(logger logging.Logger) (*booth, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	result := config.Validate(cfg)
	for _, warning := range result.Warnings {
		logger.Warn(context.Background(), nil, "configuration warning", "field", warning.Field, "detail", warning.Message)
	}
	if result.HasErrors() {
		return nil, fmt.Errorf("invalid configuration:\n%s", result.String())
	}

	bus := events.NewBus()
	classifier := classify.New(cfg.Watch.FileTypes)
	clock := clockwork.NewRealClock()

	proc, err := processor.New(cfg.Storage, classifier, bus, logger)
	if err != nil {
		return nil, err
	}

	store, err := frames.Load(cfg.Frames.Dir, logger)
	if err != nil {
		return nil, err
	}

	return &booth{
		cfg:        cfg,
		logger:     logger,
		bus:        bus,
		pipeline:   ingest.New(cfg.Watch, classifier, proc, bus, clock, logger),
		processor:  proc,
		store:      store,
		compositor: compositor.New(cfg.Frames.Dir, cfg.Storage.ProcessedDir, logger),
		exporter: export.New(cfg.Exports.Dir, cfg.Storage.ProcessedDir, cfg.Frames.Dir,
			time.Duration(cfg.Exports.TTLHours)*time.Hour, clock, logger),
	}, nil
}
