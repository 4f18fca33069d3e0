package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AGENTHIVE/internal/orchestrator"
	"github.com/AGENTHIVE/internal/types"
)

func startServer(t *testing.T, busPort int) (*Server, func()) {
	t.Helper()

	cfg := types.DefaultConfig()
	cfg.Bus.Port = busPort
	cfg.Priority.MaxQueueSize = 5

	orch, err := orchestrator.New(cfg)
	if err != nil {
		t.Fatalf("orchestrator init failed: %v", err)
	}

	s := New(cfg.Server, orch)
	return s, func() { orch.Stop() }
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode failed: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSubmitTask(t *testing.T) {
	s, cleanup := startServer(t, 14391)
	defer cleanup()

	rec := doJSON(t, s.Router(), http.MethodPost, "/api/tasks", types.SubmitTaskRequest{
		Name:                 "analyze",
		RequiredCapabilities: []string{"complex_analysis"},
		Parameters:           map[string]interface{}{"urgency": 80},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp types.SubmitTaskResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.TaskID == "" {
		t.Error("expected a task id")
	}
}

func TestSubmitTaskValidation(t *testing.T) {
	s, cleanup := startServer(t, 14392)
	defer cleanup()

	rec := doJSON(t, s.Router(), http.MethodPost, "/api/tasks", types.SubmitTaskRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty name, got %d", rec.Code)
	}
}

func TestSubmitTaskQueueFull(t *testing.T) {
	s, cleanup := startServer(t, 14393)
	defer cleanup()

	for i := 0; i < 5; i++ {
		rec := doJSON(t, s.Router(), http.MethodPost, "/api/tasks", types.SubmitTaskRequest{
			Name: "filler", RequiredCapabilities: []string{"task_execution"},
		})
		if rec.Code != http.StatusAccepted {
			t.Fatalf("fill %d: expected 202, got %d", i, rec.Code)
		}
	}

	rec := doJSON(t, s.Router(), http.MethodPost, "/api/tasks", types.SubmitTaskRequest{
		Name: "overflow", RequiredCapabilities: []string{"task_execution"},
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 queue full, got %d", rec.Code)
	}

	var errResp types.ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &errResp)
	if errResp.Code != "queue_full" {
		t.Errorf("expected queue_full code, got %s", errResp.Code)
	}
}

func TestCancelTask(t *testing.T) {
	s, cleanup := startServer(t, 14394)
	defer cleanup()

	rec := doJSON(t, s.Router(), http.MethodPost, "/api/tasks", types.SubmitTaskRequest{
		Name: "cancel-me", RequiredCapabilities: []string{"task_execution"},
	})
	var resp types.SubmitTaskResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)

	rec = doJSON(t, s.Router(), http.MethodDelete, "/api/tasks/"+resp.TaskID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 on cancel, got %d", rec.Code)
	}

	rec = doJSON(t, s.Router(), http.MethodDelete, "/api/tasks/"+resp.TaskID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on double cancel, got %d", rec.Code)
	}
}

func TestRegisterAndDeregisterAgent(t *testing.T) {
	s, cleanup := startServer(t, 14395)
	defer cleanup()

	rec := doJSON(t, s.Router(), http.MethodPost, "/api/agents", types.RegisterAgentRequest{
		Name: "external-analyzer", Layer: "specialist", Role: "specialized",
		Capabilities: []string{"complex_analysis"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp types.RegisterAgentResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)

	// Duplicate registration conflicts
	rec = doJSON(t, s.Router(), http.MethodPost, "/api/agents", types.RegisterAgentRequest{
		Name: "external-analyzer", Layer: "specialist", Role: "specialized",
		Capabilities: []string{"complex_analysis"},
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 on duplicate, got %d", rec.Code)
	}

	rec = doJSON(t, s.Router(), http.MethodDelete, "/api/agents/"+resp.AgentID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 on deregister, got %d", rec.Code)
	}

	rec = doJSON(t, s.Router(), http.MethodDelete, "/api/agents/"+resp.AgentID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on repeat deregister, got %d", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s, cleanup := startServer(t, 14396)
	defer cleanup()

	rec := doJSON(t, s.Router(), http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var status types.StatusReport
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if status.HOOTLPhase != "idle" {
		t.Errorf("expected idle hootl phase, got %s", status.HOOTLPhase)
	}
}

func TestHealthzAndHeaders(t *testing.T) {
	s, cleanup := startServer(t, 14397)
	defer cleanup()

	rec := doJSON(t, s.Router(), http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Server"); got != "AGENTHIVE" {
		t.Errorf("expected masked server header, got %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, cleanup := startServer(t, 14398)
	defer cleanup()

	rec := doJSON(t, s.Router(), http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from metrics, got %d", rec.Code)
	}
}
