package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/mqtap/mqtap/internal/export"
	"github.com/mqtap/mqtap/internal/jsontree"
	"github.com/mqtap/mqtap/internal/loadtest"
	"github.com/mqtap/mqtap/internal/rewrite"
)

// writeJSON writes a JSON response with the given status code
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// parseLimit reads the limit query parameter, falling back to def
func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return def
	}
	return limit
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":            "mqtap",
		"version":         version,
		"broker_mode":     s.config.Broker.Mode,
		"replace_enabled": s.engine.Enabled(),
		"rules_count":     len(s.engine.Rules()),
		"archive_enabled": s.archive != nil,
	})
}

// handleListEvents returns buffered events, newest first
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events := s.store.Recent(parseLimit(r, 0))
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// handleClearEvents drops all buffered events
func (s *Server) handleClearEvents(w http.ResponseWriter, r *http.Request) {
	s.store.Clear()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// handleGetEvent returns one buffered event by ID
func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	event, ok := s.store.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "event not found")
		return
	}
	s.writeJSON(w, http.StatusOK, event)
}

// handleEventPaths returns the dotted JSON paths of one buffered event
func (s *Server) handleEventPaths(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	event, ok := s.store.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "event not found")
		return
	}

	paths := jsontree.PathsOf(event.Body)
	if paths == nil {
		paths = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":      id,
		"is_json": event.IsJSON,
		"paths":   paths,
		"count":   len(paths),
	})
}

// handlePaths returns the dotted JSON paths of the request body. Bodies
// that do not parse as JSON yield an empty list
func (s *Server) handlePaths(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}

	text := string(body)
	paths := jsontree.PathsOf(text)
	if paths == nil {
		paths = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"is_json": rewrite.LooksLikeJSON(text),
		"paths":   paths,
		"count":   len(paths),
	})
}

// handleEcho runs the request body through the replacement engine and
// returns the processed text. Generated load test plans target this
// endpoint by default
func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}

	text := string(body)
	result := s.engine.Process(text, rewrite.LooksLikeJSON(text))

	s.logger.WithRequestID(getRequestID(r.Context())).Debug("Echo processed",
		zap.Int("bytes", len(text)),
		zap.Int("replacements", len(result.Applied)),
	)

	contentType := "text/plain; charset=utf-8"
	if rewrite.LooksLikeJSON(result.Output) {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Mqtap-Replacements", strconv.Itoa(len(result.Applied)))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(result.Output))
}

// handleRules returns the configured replacement rules
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	rules := s.engine.Rules()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"enabled": s.engine.Enabled(),
		"count":   len(rules),
		"rules":   rules,
	})
}

// handleStats returns runtime counters from all components
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
		"capture":   s.store.GetStats(),
		"websocket": s.wsHub.GetStats(),
	}

	if s.archive != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if archiveStats, err := s.archive.GetStats(ctx); err == nil {
			stats["archive"] = archiveStats
		} else {
			s.logger.Warn("Failed to read archive stats", zap.Error(err))
		}
	}

	s.writeJSON(w, http.StatusOK, stats)
}

type exportRequest struct {
	Format string `json:"format"`
	Limit  int    `json:"limit"`
	Path   string `json:"path"`
}

// handleExport writes buffered events to a CSV, JSON lines or Parquet file
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ext, ok := extensionForFormat(req.Format)
	if !ok {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", req.Format))
		return
	}

	events := s.store.Recent(req.Limit)
	if len(events) == 0 {
		s.writeError(w, http.StatusBadRequest, "no events to export")
		return
	}

	path := req.Path
	if path == "" {
		path = filepath.Join("exports", fmt.Sprintf("mqtap-%s%s", time.Now().Format("20060102-150405"), ext))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to create export directory")
		return
	}

	result, err := s.exporter.Export(path, export.FromEvents(events))
	if err != nil {
		s.logger.Error("Export failed", zap.String("path", path), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// extensionForFormat maps a requested export format to a file extension
func extensionForFormat(format string) (string, bool) {
	switch strings.ToLower(format) {
	case "", "csv":
		return ".csv", true
	case "json", "jsonl":
		return ".jsonl", true
	case "parquet":
		return ".parquet", true
	}
	return "", false
}

type loadTestRequest struct {
	Name          string `json:"name"`
	Limit         int    `json:"limit"`
	Source        string `json:"source"`
	Threads       int    `json:"threads"`
	RampUpSeconds int    `json:"ramp_up_seconds"`
	LoopCount     int    `json:"loop_count"`
}

// handleLoadTest generates a JMeter plan from buffered events. Thread
// group settings default from config and can be overridden per request
func (s *Server) handleLoadTest(w http.ResponseWriter, r *http.Request) {
	var req loadTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		req.Name = "captured"
	}

	cfg := s.config.LoadTest
	if req.Threads > 0 {
		cfg.Threads = req.Threads
	}
	if req.RampUpSeconds > 0 {
		cfg.RampUpSeconds = req.RampUpSeconds
	}
	if req.LoopCount > 0 {
		cfg.LoopCount = req.LoopCount
	}

	events := s.store.Recent(req.Limit)
	if req.Source != "" {
		filtered := events[:0]
		for _, event := range events {
			if event.Source == req.Source {
				filtered = append(filtered, event)
			}
		}
		events = filtered
	}

	generator := loadtest.New(cfg, s.logger.Logger)
	path, err := generator.WritePlan(req.Name, events)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"path":   path,
		"events": len(events),
	})
}

// handleArchiveEvents returns recent events from the archive database
func (s *Server) handleArchiveEvents(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.writeError(w, http.StatusServiceUnavailable, "event archive is disabled")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	events, err := s.archive.Recent(ctx, parseLimit(r, 50))
	if err != nil {
		s.logger.Error("Failed to read archived events", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read archive")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// handleArchiveStats returns archive row counts and timestamps
func (s *Server) handleArchiveStats(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.writeError(w, http.StatusServiceUnavailable, "event archive is disabled")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	stats, err := s.archive.GetStats(ctx)
	if err != nil {
		s.logger.Error("Failed to read archive stats", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read archive")
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}
