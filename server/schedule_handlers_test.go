package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/flowgraph/graphengine/store"
)

func TestHandleCreateScheduleAndList(t *testing.T) {
	srv, repo := testServer(t)
	seedDiamond(t, srv)

	w := doJSON(t, srv, http.MethodPost, "/graph/schedules", map[string]any{
		"graph_id":    "g1",
		"cron_expr":   "*/5 * * * *",
		"root_inputs": map[string]any{"A": map[string]any{"x": 1}},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}

	var created scheduleResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.ScheduleID == "" {
		t.Fatal("schedule_id is empty")
	}

	sched, found, err := repo.GetSchedule(t.Context(), created.ScheduleID)
	if err != nil {
		t.Fatalf("GetSchedule() error = %v", err)
	}
	if !found {
		t.Fatal("GetSchedule() found = false")
	}
	if !sched.Enabled {
		t.Fatal("schedule should default to enabled")
	}
	if sched.NextRunAt.IsZero() {
		t.Fatal("NextRunAt should be populated")
	}

	w = doJSON(t, srv, http.MethodGet, "/graph/schedules/g1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusOK)
	}
	var listed []store.RunSchedule
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("got %d schedules, want 1", len(listed))
	}
}

func TestHandleCreateScheduleUnknownGraph(t *testing.T) {
	srv, _ := testServer(t)
	w := doJSON(t, srv, http.MethodPost, "/graph/schedules", map[string]any{
		"graph_id":  "missing",
		"cron_expr": "* * * * *",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleCreateScheduleInvalidCron(t *testing.T) {
	srv, _ := testServer(t)
	seedDiamond(t, srv)
	w := doJSON(t, srv, http.MethodPost, "/graph/schedules", map[string]any{
		"graph_id":  "g1",
		"cron_expr": "not a cron expression",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleDeleteSchedule(t *testing.T) {
	srv, repo := testServer(t)
	seedDiamond(t, srv)

	w := doJSON(t, srv, http.MethodPost, "/graph/schedules", map[string]any{
		"graph_id":  "g1",
		"cron_expr": "* * * * *",
	})
	var created scheduleResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	w = doJSON(t, srv, http.MethodDelete, "/graph/schedules/"+created.ScheduleID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusNoContent)
	}

	_, found, err := repo.GetSchedule(t.Context(), created.ScheduleID)
	if err != nil {
		t.Fatalf("GetSchedule() error = %v", err)
	}
	if found {
		t.Fatal("schedule should have been deleted")
	}
}

func TestHandleDeleteScheduleNotFound(t *testing.T) {
	srv, _ := testServer(t)
	w := doJSON(t, srv, http.MethodDelete, "/graph/schedules/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusNotFound)
	}
}
