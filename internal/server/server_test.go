package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mqtap/mqtap/internal/capture"
	"github.com/mqtap/mqtap/internal/config"
	"github.com/mqtap/mqtap/internal/logger"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.GetDefaults()
	cfg.Replace.Rules = []config.ReplaceRule{
		{JSONPath: "UserId", Placeholder: "{user_id}", Enabled: true},
	}
	cfg.LoadTest.OutputDir = filepath.Join(t.TempDir(), "plans")

	srv, err := New(cfg, &logger.Logger{Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return srv
}

func doRequest(srv *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func seedEvent(srv *Server, id, body string) {
	srv.GetStore().Add(capture.Event{
		ID:         id,
		Source:     "orders",
		MessageID:  "m-" + id,
		Body:       body,
		RawBody:    body,
		IsJSON:     strings.HasPrefix(body, "{") || strings.HasPrefix(body, "["),
		Applied:    []string{},
		ReceivedAt: time.Now(),
	})
}

// TestHandleHealth verifies the health endpoint
func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(srv, "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("Expected healthy status, got %q", rec.Body.String())
	}
}

// TestHandleInfo verifies the info endpoint reports engine state
func TestHandleInfo(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(srv, "GET", "/info", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["name"] != "mqtap" {
		t.Errorf("Expected name mqtap, got %v", body["name"])
	}
	if body["replace_enabled"] != true {
		t.Errorf("Expected replace_enabled true, got %v", body["replace_enabled"])
	}
	if body["rules_count"] != float64(1) {
		t.Errorf("Expected rules_count 1, got %v", body["rules_count"])
	}
}

// TestHandleEcho verifies bodies pass through the replacement engine
func TestHandleEcho(t *testing.T) {
	t.Run("JSON body rewritten", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doRequest(srv, "POST", "/api/echo", []byte(`{"UserId":"u-1"}`))
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		want := "{\n  \"UserId\": \"{user_id}\"\n}"
		if rec.Body.String() != want {
			t.Errorf("Expected %q, got %q", want, rec.Body.String())
		}
		if got := rec.Header().Get("X-Mqtap-Replacements"); got != "1" {
			t.Errorf("Expected 1 replacement, got %q", got)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected application/json, got %q", ct)
		}
	})

	t.Run("non-JSON body passes through", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doRequest(srv, "POST", "/api/echo", []byte("hello broker"))
		if rec.Body.String() != "hello broker" {
			t.Errorf("Expected passthrough, got %q", rec.Body.String())
		}
		if got := rec.Header().Get("X-Mqtap-Replacements"); got != "0" {
			t.Errorf("Expected 0 replacements, got %q", got)
		}
	})
}

// TestEventEndpoints verifies the buffered event API
func TestEventEndpoints(t *testing.T) {
	srv := newTestServer(t)
	seedEvent(srv, "e1", `{"a":{"b":1}}`)
	seedEvent(srv, "e2", "not json")

	t.Run("list with limit", func(t *testing.T) {
		rec := doRequest(srv, "GET", "/api/events?limit=1", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["count"] != float64(1) {
			t.Errorf("Expected count 1, got %v", body["count"])
		}
	})

	t.Run("get by id", func(t *testing.T) {
		rec := doRequest(srv, "GET", "/api/events/e1", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["id"] != "e1" {
			t.Errorf("Expected event e1, got %v", body["id"])
		}
	})

	t.Run("get missing id", func(t *testing.T) {
		rec := doRequest(srv, "GET", "/api/events/nope", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rec.Code)
		}
	})

	t.Run("paths of JSON event", func(t *testing.T) {
		rec := doRequest(srv, "GET", "/api/events/e1/paths", nil)
		body := decodeBody(t, rec)
		paths, ok := body["paths"].([]interface{})
		if !ok {
			t.Fatalf("Expected paths array, got %v", body["paths"])
		}
		if len(paths) != 2 || paths[0] != "a" || paths[1] != "a.b" {
			t.Errorf("Expected [a a.b], got %v", paths)
		}
	})

	t.Run("paths of non-JSON event", func(t *testing.T) {
		rec := doRequest(srv, "GET", "/api/events/e2/paths", nil)
		body := decodeBody(t, rec)
		if body["count"] != float64(0) {
			t.Errorf("Expected 0 paths, got %v", body["count"])
		}
	})

	t.Run("clear", func(t *testing.T) {
		rec := doRequest(srv, "DELETE", "/api/events", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if srv.GetStore().Len() != 0 {
			t.Errorf("Expected empty store after clear, got %d", srv.GetStore().Len())
		}
	})
}

// TestHandlePaths verifies path listing for arbitrary bodies
func TestHandlePaths(t *testing.T) {
	srv := newTestServer(t)

	t.Run("JSON body", func(t *testing.T) {
		rec := doRequest(srv, "POST", "/api/paths", []byte(`{"a":{"b":1},"c":[2]}`))
		body := decodeBody(t, rec)
		if body["is_json"] != true {
			t.Errorf("Expected is_json true, got %v", body["is_json"])
		}
		paths, _ := body["paths"].([]interface{})
		if len(paths) != 4 {
			t.Errorf("Expected 4 paths, got %v", paths)
		}
	})

	t.Run("non-JSON body", func(t *testing.T) {
		rec := doRequest(srv, "POST", "/api/paths", []byte("plain"))
		body := decodeBody(t, rec)
		if body["is_json"] != false {
			t.Errorf("Expected is_json false, got %v", body["is_json"])
		}
		if body["count"] != float64(0) {
			t.Errorf("Expected 0 paths, got %v", body["count"])
		}
	})
}

// TestHandleRules verifies the rules endpoint
func TestHandleRules(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(srv, "GET", "/api/rules", nil)
	body := decodeBody(t, rec)
	if body["enabled"] != true {
		t.Errorf("Expected enabled true, got %v", body["enabled"])
	}
	rules, _ := body["rules"].([]interface{})
	if len(rules) != 1 {
		t.Fatalf("Expected 1 rule, got %d", len(rules))
	}
	rule, _ := rules[0].(map[string]interface{})
	if rule["json_path"] != "UserId" {
		t.Errorf("Expected json_path UserId, got %v", rule["json_path"])
	}
}

// TestHandleStats verifies the stats endpoint aggregates components
func TestHandleStats(t *testing.T) {
	srv := newTestServer(t)
	seedEvent(srv, "e1", `{"a":1}`)

	rec := doRequest(srv, "GET", "/api/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)

	captureStats, ok := body["capture"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected capture stats, got %v", body["capture"])
	}
	if captureStats["total_events"] != float64(1) {
		t.Errorf("Expected 1 event, got %v", captureStats["total_events"])
	}
	if _, ok := body["websocket"].(map[string]interface{}); !ok {
		t.Errorf("Expected websocket stats, got %v", body["websocket"])
	}
	if _, ok := body["archive"]; ok {
		t.Error("Expected no archive stats when archiving is disabled")
	}
}

// TestHandleExport verifies export request handling
func TestHandleExport(t *testing.T) {
	t.Run("export buffered events", func(t *testing.T) {
		srv := newTestServer(t)
		seedEvent(srv, "e1", `{"a":1}`)

		path := filepath.Join(t.TempDir(), "out.jsonl")
		reqBody, _ := json.Marshal(map[string]interface{}{"format": "jsonl", "path": path})
		rec := doRequest(srv, "POST", "/api/export", reqBody)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		body := decodeBody(t, rec)
		if body["records"] != float64(1) {
			t.Errorf("Expected 1 record, got %v", body["records"])
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Expected export file at %s: %v", path, err)
		}
	})

	t.Run("no events", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doRequest(srv, "POST", "/api/export", []byte(`{"format":"csv"}`))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("unsupported format", func(t *testing.T) {
		srv := newTestServer(t)
		seedEvent(srv, "e1", `{"a":1}`)
		rec := doRequest(srv, "POST", "/api/export", []byte(`{"format":"xlsx"}`))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})
}

// TestHandleLoadTest verifies plan generation over the API
func TestHandleLoadTest(t *testing.T) {
	t.Run("plan from buffered events", func(t *testing.T) {
		srv := newTestServer(t)
		seedEvent(srv, "e1", `{"a":1}`)

		rec := doRequest(srv, "POST", "/api/loadtest", []byte(`{"name":"api"}`))
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		body := decodeBody(t, rec)
		path, _ := body["path"].(string)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Expected plan file at %s: %v", path, err)
		}
	})

	t.Run("source filter and overrides", func(t *testing.T) {
		srv := newTestServer(t)
		seedEvent(srv, "e1", `{"a":1}`)
		other := capture.Event{ID: "e2", Source: "billing", MessageID: "m-e2", Body: `{"b":2}`, ReceivedAt: time.Now()}
		srv.GetStore().Add(other)

		reqBody := []byte(`{"name":"orders-only","source":"orders","threads":42}`)
		rec := doRequest(srv, "POST", "/api/loadtest", reqBody)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		body := decodeBody(t, rec)
		if body["events"] != float64(1) {
			t.Errorf("Expected 1 filtered event, got %v", body["events"])
		}

		data, err := os.ReadFile(body["path"].(string))
		if err != nil {
			t.Fatalf("Failed to read plan: %v", err)
		}
		if !strings.Contains(string(data), `<stringProp name="ThreadGroup.num_threads">42</stringProp>`) {
			t.Error("Expected thread override in generated plan")
		}
	})

	t.Run("no events", func(t *testing.T) {
		srv := newTestServer(t)
		rec := doRequest(srv, "POST", "/api/loadtest", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})
}

// TestArchiveEndpointsDisabled verifies archive endpoints without a database
func TestArchiveEndpointsDisabled(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/api/archive/events", "/api/archive/stats"} {
		rec := doRequest(srv, "GET", path, nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected 503 for %s, got %d", path, rec.Code)
		}
	}
}
