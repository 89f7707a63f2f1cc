package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/mqtap/mqtap/internal/archive"
	"github.com/mqtap/mqtap/internal/capture"
	"github.com/mqtap/mqtap/internal/config"
	"github.com/mqtap/mqtap/internal/export"
	"github.com/mqtap/mqtap/internal/logger"
	"github.com/mqtap/mqtap/internal/rewrite"
	"github.com/mqtap/mqtap/internal/web"
	"github.com/mqtap/mqtap/internal/websocket"
)

const version = "0.1.0"

// Server represents the main HTTP API server
type Server struct {
	config    *config.Config
	logger    *logger.Logger
	engine    *rewrite.Engine
	store     *capture.Store
	archive   *archive.Store
	exporter  *export.Exporter
	router    *mux.Router
	server    *http.Server
	wsHub     *websocket.Hub
	startedAt time.Time
}

// New creates a new API server instance
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	// Create replacement engine
	engine := rewrite.New(cfg.Replace, log.WithComponent("rewrite"))

	// Create capture store
	store := capture.New(cfg.Capture, log.WithComponent("capture"))

	// Create WebSocket hub
	wsHub := websocket.NewHub(cfg.WebSocket, log.WithComponent("websocket").Logger)

	// Open the event archive when configured
	var archiveStore *archive.Store
	if cfg.Archive.Enabled {
		var err error
		archiveStore, err = archive.NewStore(cfg.Archive, log.WithComponent("archive").Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open event archive: %w", err)
		}
	}

	// Create router
	router := mux.NewRouter()

	// Create server
	server := &Server{
		config:    cfg,
		logger:    log.WithComponent("server"),
		engine:    engine,
		store:     store,
		archive:   archiveStore,
		exporter:  export.New(log.WithComponent("export").Logger),
		router:    router,
		wsHub:     wsHub,
		startedAt: time.Now(),
	}

	// Setup routes
	server.setupRoutes()

	// Create HTTP server
	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return server, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Info endpoint
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	// Dashboard endpoint - embedded HTML
	s.router.HandleFunc("/", web.ServeDashboard).Methods("GET")
	s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods("GET")

	// WebSocket endpoint for dashboard
	if s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.handleWebSocket).Methods("GET")
	}

	// REST API endpoints
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.loggingMiddleware)
	api.HandleFunc("/events", s.handleListEvents).Methods("GET")
	api.HandleFunc("/events", s.handleClearEvents).Methods("DELETE")
	api.HandleFunc("/events/{id}", s.handleGetEvent).Methods("GET")
	api.HandleFunc("/events/{id}/paths", s.handleEventPaths).Methods("GET")
	api.HandleFunc("/paths", s.handlePaths).Methods("POST")
	api.HandleFunc("/echo", s.handleEcho).Methods("POST")
	api.HandleFunc("/rules", s.handleRules).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/export", s.handleExport).Methods("POST")
	api.HandleFunc("/loadtest", s.handleLoadTest).Methods("POST")
	api.HandleFunc("/archive/events", s.handleArchiveEvents).Methods("GET")
	api.HandleFunc("/archive/stats", s.handleArchiveStats).Methods("GET")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting mqtap API server",
		zap.Int("port", s.config.Server.Port),
		zap.Bool("websocket_enabled", s.config.WebSocket.Enabled),
		zap.Bool("archive_enabled", s.config.Archive.Enabled),
	)

	// Start WebSocket hub in a separate goroutine
	go s.wsHub.Run()

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server and closes the archive
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping mqtap API server")

	err := s.server.Shutdown(ctx)

	if s.archive != nil {
		if closeErr := s.archive.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}

	return err
}

// handleWebSocket handles WebSocket connections for the dashboard
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.wsHub.HandleWebSocket(w, r)
}

// GetWebSocketHub returns the WebSocket hub for broadcasting events
func (s *Server) GetWebSocketHub() *websocket.Hub {
	return s.wsHub
}

// GetEngine returns the replacement engine shared with the consumer
func (s *Server) GetEngine() *rewrite.Engine {
	return s.engine
}

// GetStore returns the capture store shared with the consumer
func (s *Server) GetStore() *capture.Store {
	return s.store
}

// GetArchive returns the event archive, nil when archiving is disabled
func (s *Server) GetArchive() *archive.Store {
	return s.archive
}
