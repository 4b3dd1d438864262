// Package server exposes the photobooth over HTTP: REST endpoints mirroring
// the browser frontend's API, static serving of processed photos and frame
// assets, and a websocket that fans out ingestion lifecycle events.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/snapframe/snapframe/internal/compositor"
	"github.com/snapframe/snapframe/internal/config"
	"github.com/snapframe/snapframe/internal/events"
	"github.com/snapframe/snapframe/internal/export"
	"github.com/snapframe/snapframe/internal/frames"
	"github.com/snapframe/snapframe/internal/ingest"
	"github.com/snapframe/snapframe/internal/logging"
	"github.com/snapframe/snapframe/internal/processor"
)

// exportJanitorInterval is how often expired export archives are reclaimed.
const exportJanitorInterval = time.Hour

// BoothServer serves the photobooth API with live event fan-out.
type BoothServer struct {
	config     *config.Config
	logger     logging.Logger
	pipeline   *ingest.Pipeline
	processor  *processor.Processor
	store      *frames.Store
	compositor *compositor.Compositor
	exporter   *export.Exporter
	bus        *events.Bus

	httpServer  *http.Server
	serverMutex sync.RWMutex

	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *websocket.Conn

	shutdownOnce sync.Once
}

// Client represents a connected websocket client.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *BoothServer
}

// New wires the server around already constructed components.
func New(cfg *config.Config, pipeline *ingest.Pipeline, proc *processor.Processor, store *frames.Store, comp *compositor.Compositor, exporter *export.Exporter, bus *events.Bus, logger logging.Logger) *BoothServer {
	return &BoothServer{
		config:     cfg,
		logger:     logger.WithComponent("server"),
		pipeline:   pipeline,
		processor:  proc,
		store:      store,
		compositor: comp,
		exporter:   exporter,
		bus:        bus,
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
	}
}

// Start runs the HTTP server until it fails or Shutdown is called. When
// auto-scan is configured the ingestion pipeline is started first.
func (s *BoothServer) Start(ctx context.Context) error {
	if s.config.Watch.AutoScan {
		if err := s.pipeline.Start(ctx); err != nil {
			s.logger.Warn(ctx, err, "pipeline not started")
		}
	}

	go s.runHub(ctx)
	go s.pumpEvents(ctx)
	go s.runExportJanitor(ctx)

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "server listening",
		"addr", addr,
		"processed_dir", s.config.Storage.ProcessedDir,
		"watch_path", s.config.Watch.Path)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Handler builds the route table.
func (s *BoothServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/photos", s.handlePhotos)
	mux.HandleFunc("/api/photos/", s.handlePhoto)
	mux.HandleFunc("/api/frames/import", s.handleFrameImport)
	mux.HandleFunc("/api/frames/", s.handleFrameAsset)
	mux.HandleFunc("/api/templates", s.handleTemplates)
	mux.HandleFunc("/api/templates/", s.handleTemplate)
	mux.HandleFunc("/api/save-frame-mapping", s.handleSaveFrameMapping)
	mux.HandleFunc("/api/current-template", s.handleCurrentTemplate)
	mux.HandleFunc("/api/create-photobooth", s.handleCreatePhotobooth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/settings", s.handleSettings)
	mux.HandleFunc("/api/scan", s.handleScan)
	mux.HandleFunc("/api/toggle-watch", s.handleToggleWatch)
	mux.HandleFunc("/api/export", s.handleExport)
	mux.HandleFunc("/api/exports/", s.handleExportDownload)
	return mux
}

// Shutdown stops the pipeline, disconnects clients and drains the HTTP
// server. Safe to call more than once.
func (s *BoothServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.pipeline.Stop()

		s.clientsMutex.Lock()
		for conn, client := range s.clients {
			delete(s.clients, conn)
			close(client.send)
			conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		s.clientsMutex.Unlock()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()
		if server != nil {
			err = server.Shutdown(ctx)
		}
	})
	return err
}

// runExportJanitor periodically removes export archives past their TTL.
func (s *BoothServer) runExportJanitor(ctx context.Context) {
	ticker := time.NewTicker(exportJanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.exporter.CleanupExpired(); err != nil {
				s.logger.Warn(ctx, err, "export cleanup failed")
			}
		}
	}
}
