package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/yegors/tracon-sim/internal/aircraft"
	"github.com/yegors/tracon-sim/internal/simtest"
	"github.com/yegors/tracon-sim/internal/simulation"
	"github.com/yegors/tracon-sim/internal/storage/sqlite"
	"github.com/yegors/tracon-sim/internal/weather"
	"github.com/yegors/tracon-sim/pkg/logger"
)

type testServer struct {
	*httptest.Server
	engine *simulation.Engine
	store  *sqlite.Store
}

func newTestServer(t *testing.T, withStore bool) *testServer {
	t.Helper()
	cfg := simulation.DefaultConfig()
	cfg.TickInterval = 10 * time.Millisecond
	e, err := simulation.NewEngine(cfg, simulation.World{
		Airport:     simtest.Airport(),
		Performance: simtest.Table(),
		Wind:        weather.Calm(),
	}, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	var history History
	ts := &testServer{engine: e}
	if withStore {
		store, err := sqlite.Open(filepath.Join(t.TempDir(), "sessions.db"), logger.NewNop())
		if err != nil {
			t.Fatal(err)
		}
		ts.store = store
		history = store
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	router := NewRouter(NewHandler(e, history, logger.NewNop()), nil, nil, logger.NewNop())
	ts.Server = httptest.NewServer(router.Routes())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
		if ts.store != nil {
			ts.store.Close()
		}
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func spawnRequest(callsign, typ string) simulation.SpawnRequest {
	pos := simtest.At(15, 0)
	return simulation.SpawnRequest{Callsign: callsign, Type: typ, Position: &pos, AltitudeFt: 6000, HeadingDeg: 270, IAS: 250}
}

func TestAircraftEndpoints(t *testing.T) {
	ts := newTestServer(t, false)

	resp, body := ts.do(t, http.MethodPost, "/api/v1/aircraft", spawnRequest("UAL1", "B738"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create = %d %s", resp.StatusCode, body)
	}
	var created aircraft.Aircraft
	if err := json.Unmarshal(body, &created); err != nil || created.ID == "" || created.Callsign != "UAL1" {
		t.Fatalf("created = %+v, %v", created, err)
	}

	createErrors := []struct {
		name string
		body any
		want int
	}{
		{"invalid json", "{", http.StatusBadRequest},
		{"unknown type", spawnRequest("UAL2", "ZZZZ"), http.StatusUnprocessableEntity},
		{"duplicate callsign", spawnRequest("UAL1", "B738"), http.StatusBadRequest},
	}
	for _, tt := range createErrors {
		t.Run(tt.name, func(t *testing.T) {
			if resp, body := ts.do(t, http.MethodPost, "/api/v1/aircraft", tt.body); resp.StatusCode != tt.want {
				t.Errorf("status = %d %s, want %d", resp.StatusCode, body, tt.want)
			}
		})
	}

	if resp, _ := ts.do(t, http.MethodGet, "/api/v1/aircraft/"+created.ID, nil); resp.StatusCode != http.StatusOK {
		t.Errorf("get = %d", resp.StatusCode)
	}
	if resp, _ := ts.do(t, http.MethodGet, "/api/v1/aircraft/AC9999", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("get unknown = %d", resp.StatusCode)
	}
	resp, body = ts.do(t, http.MethodGet, "/api/v1/aircraft", nil)
	var all []aircraft.Aircraft
	if err := json.Unmarshal(body, &all); err != nil || resp.StatusCode != http.StatusOK || len(all) != 1 {
		t.Errorf("list = %d %s", resp.StatusCode, body)
	}

	commands := []struct {
		name       string
		id         string
		body       any
		wantCode   int
		wantStatus string
	}{
		{"accepted", created.ID, map[string]any{"kind": "heading", "heading": 90}, http.StatusOK, "accepted"},
		{"rejected", created.ID, map[string]any{"kind": "speed", "speed": 400}, http.StatusUnprocessableEntity, "rejected"},
		{"stale", "AC9999", map[string]any{"kind": "heading", "heading": 90}, http.StatusOK, "dropped"},
		{"no kind", created.ID, map[string]any{"heading": 90}, http.StatusBadRequest, ""},
		{"invalid json", created.ID, "heading 090", http.StatusBadRequest, ""},
	}
	for _, tt := range commands {
		t.Run("command "+tt.name, func(t *testing.T) {
			resp, body := ts.do(t, http.MethodPost, "/api/v1/aircraft/"+tt.id+"/commands", tt.body)
			if resp.StatusCode != tt.wantCode {
				t.Fatalf("status = %d %s, want %d", resp.StatusCode, body, tt.wantCode)
			}
			if tt.wantStatus == "" {
				return
			}
			var out struct {
				Result struct {
					Status string `json:"status"`
				} `json:"result"`
			}
			if err := json.Unmarshal(body, &out); err != nil || out.Result.Status != tt.wantStatus {
				t.Errorf("result = %s", body)
			}
		})
	}

	if resp, _ := ts.do(t, http.MethodDelete, "/api/v1/aircraft/"+created.ID, nil); resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete = %d", resp.StatusCode)
	}
	if resp, _ := ts.do(t, http.MethodDelete, "/api/v1/aircraft/"+created.ID, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete = %d", resp.StatusCode)
	}
}

func TestSessionControl(t *testing.T) {
	ts := newTestServer(t, false)

	steps := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"health", http.MethodGet, "/api/v1/health", nil, http.StatusOK},
		{"pause", http.MethodPost, "/api/v1/session/pause", nil, http.StatusOK},
		{"resume", http.MethodPost, "/api/v1/session/resume", nil, http.StatusOK},
		{"time scale", http.MethodPut, "/api/v1/session/time-scale", map[string]any{"time_scale": 4}, http.StatusOK},
		{"time scale out of range", http.MethodPut, "/api/v1/session/time-scale", map[string]any{"time_scale": 0}, http.StatusBadRequest},
		{"time scale missing", http.MethodPut, "/api/v1/session/time-scale", map[string]any{}, http.StatusBadRequest},
		{"score", http.MethodGet, "/api/v1/score", nil, http.StatusOK},
		{"snapshot", http.MethodGet, "/api/v1/snapshot", nil, http.StatusOK},
		{"sessions without storage", http.MethodGet, "/api/v1/sessions", nil, http.StatusServiceUnavailable},
		{"cors preflight", http.MethodOptions, "/api/v1/session/pause", nil, http.StatusNoContent},
		{"end", http.MethodPost, "/api/v1/session/end", nil, http.StatusOK},
		{"end twice", http.MethodPost, "/api/v1/session/end", nil, http.StatusConflict},
		{"pause after end", http.MethodPost, "/api/v1/session/pause", nil, http.StatusConflict},
		{"spawn after end", http.MethodPost, "/api/v1/aircraft", spawnRequest("UAL9", "B738"), http.StatusConflict},
	}
	for _, tt := range steps {
		resp, body := ts.do(t, tt.method, tt.path, tt.body)
		if resp.StatusCode != tt.want {
			t.Errorf("%s: status = %d %s, want %d", tt.name, resp.StatusCode, body, tt.want)
		}
	}

	s := ts.engine.Snapshot()
	if !s.Ended || s.TimeScale != 4 || s.Paused {
		t.Errorf("session state = ended %v scale %.0f paused %v", s.Ended, s.TimeScale, s.Paused)
	}
	if !s.Score.Final {
		t.Error("score not final after end")
	}
}

func TestSessionHistory(t *testing.T) {
	ts := newTestServer(t, true)
	id, err := ts.store.CreateSession("api-test", "KTST", time.Now())
	if err != nil {
		t.Fatal(err)
	}

	resp, body := ts.do(t, http.MethodGet, "/api/v1/sessions", nil)
	var sessions []sqlite.SessionRecord
	if err := json.Unmarshal(body, &sessions); err != nil || resp.StatusCode != http.StatusOK || len(sessions) != 1 || sessions[0].ID != id {
		t.Fatalf("sessions = %d %s", resp.StatusCode, body)
	}

	tests := []struct {
		name string
		path string
		want int
	}{
		{"alerts", "/api/v1/sessions/1/alerts", http.StatusOK},
		{"unknown session", "/api/v1/sessions/42/alerts", http.StatusNotFound},
		{"bad id", "/api/v1/sessions/one/alerts", http.StatusBadRequest},
		{"bad limit", "/api/v1/sessions?limit=-1", http.StatusBadRequest},
		{"page", "/api/v1/sessions?limit=1&offset=1", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp, body := ts.do(t, http.MethodGet, tt.path, nil); resp.StatusCode != tt.want {
				t.Errorf("status = %d %s, want %d", resp.StatusCode, body, tt.want)
			}
		})
	}

	_, body = ts.do(t, http.MethodGet, "/api/v1/sessions/1/alerts", nil)
	if string(bytes.TrimSpace(body)) != "[]" {
		t.Errorf("alerts body = %s", body)
	}
}
