package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/tracon-sim/internal/command"
	"github.com/yegors/tracon-sim/internal/perf"
	"github.com/yegors/tracon-sim/internal/procedure"
	"github.com/yegors/tracon-sim/internal/scoring"
	"github.com/yegors/tracon-sim/internal/simulation"
	"github.com/yegors/tracon-sim/internal/storage/sqlite"
	"github.com/yegors/tracon-sim/pkg/logger"
)

// Session is the running simulation the API controls
type Session interface {
	Snapshot() *simulation.Snapshot
	Spawn(req simulation.SpawnRequest) (string, error)
	Remove(id string) error
	ApplyCommand(ctx context.Context, id string, cmd command.Command) (command.Result, error)
	Pause() error
	Resume() error
	SetTimeScale(scale float64) error
	End() (scoring.Metrics, error)
}

// History is the store of past and current sessions
type History interface {
	ListSessions(limit, offset int) ([]*sqlite.SessionRecord, error)
	GetSession(id int64) (*sqlite.SessionRecord, error)
	GetAlerts(sessionID int64) ([]*sqlite.AlertRecord, error)
}

// Handler contains the API handlers
type Handler struct {
	session Session
	history History // nil when storage is disabled
	started time.Time
	logger  *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(session Session, history History, log *logger.Logger) *Handler {
	return &Handler{
		session: session,
		history: history,
		started: time.Now(),
		logger:  log.Named("api-handler"),
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// WriteError writes a JSON error body
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps a session error onto an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, simulation.ErrUnknownAircraft), errors.Is(err, sqlite.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, simulation.ErrSessionEnded):
		return http.StatusConflict
	case errors.Is(err, simulation.ErrTooManyAircraft):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, perf.ErrUnknownType), errors.Is(err, procedure.ErrUnknownProcedure),
		errors.Is(err, procedure.ErrUnknownFix):
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}

// GetHealth returns the health status of the API
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	s := h.session.Snapshot()
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime":         time.Since(h.started).Round(time.Second).String(),
		"tick":           s.Tick,
		"paused":         s.Paused,
		"ended":          s.Ended,
		"aircraft_count": len(s.Aircraft),
		"storage":        h.history != nil,
	})
}

// GetSnapshot returns the latest session state
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.session.Snapshot())
}

// GetAllAircraft returns every active aircraft
func (h *Handler) GetAllAircraft(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.session.Snapshot().Aircraft)
}

// GetAircraft returns one aircraft by id
func (h *Handler) GetAircraft(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ac, ok := h.session.Snapshot().Find(id)
	if !ok {
		WriteError(w, http.StatusNotFound, "aircraft "+id+" not found")
		return
	}
	WriteJSON(w, http.StatusOK, ac)
}

// CreateAircraft spawns a flight
func (h *Handler) CreateAircraft(w http.ResponseWriter, r *http.Request) {
	var req simulation.SpawnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	id, err := h.session.Spawn(req)
	if err != nil {
		WriteError(w, statusFor(err), err.Error())
		return
	}

	h.logger.Info("Created aircraft via API",
		logger.String("id", id),
		logger.String("callsign", req.Callsign))

	ac, _ := h.session.Snapshot().Find(id)
	WriteJSON(w, http.StatusCreated, ac)
}

// RemoveAircraft takes an aircraft out of the session
func (h *Handler) RemoveAircraft(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.session.Remove(id); err != nil {
		WriteError(w, statusFor(err), err.Error())
		return
	}
	h.logger.Info("Removed aircraft via API", logger.String("id", id))
	w.WriteHeader(http.StatusNoContent)
}

// IssueCommand applies a clearance and waits for the tick that applies it.
// A command for an aircraft that has left is answered as dropped, not as an
// error.
func (h *Handler) IssueCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var cmd command.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if cmd.Kind == "" {
		WriteError(w, http.StatusBadRequest, "command kind is required")
		return
	}

	res, err := h.session.ApplyCommand(r.Context(), id, cmd)
	if err != nil {
		WriteError(w, statusFor(err), err.Error())
		return
	}

	status := http.StatusOK
	if res.Status == command.Rejected {
		status = http.StatusUnprocessableEntity
	}
	h.logger.Debug("Command issued via API",
		logger.String("id", id),
		logger.String("command", cmd.String()),
		logger.String("status", string(res.Status)))
	WriteJSON(w, status, map[string]any{
		"aircraft_id": id,
		"command":     cmd.String(),
		"result":      res,
	})
}

// PauseSession freezes simulated time
func (h *Handler) PauseSession(w http.ResponseWriter, r *http.Request) {
	h.control(w, h.session.Pause)
}

// ResumeSession restarts simulated time
func (h *Handler) ResumeSession(w http.ResponseWriter, r *http.Request) {
	h.control(w, h.session.Resume)
}

func (h *Handler) control(w http.ResponseWriter, fn func() error) {
	if err := fn(); err != nil {
		WriteError(w, statusFor(err), err.Error())
		return
	}
	s := h.session.Snapshot()
	WriteJSON(w, http.StatusOK, map[string]any{"paused": s.Paused, "time_scale": s.TimeScale})
}

// EndSession finalizes the score
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	m, err := h.session.End()
	if err != nil {
		WriteError(w, statusFor(err), err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, m)
}

// SetTimeScale changes the simulated seconds per wall second
func (h *Handler) SetTimeScale(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TimeScale *float64 `json:"time_scale"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TimeScale == nil {
		WriteError(w, http.StatusBadRequest, "time_scale is required")
		return
	}
	h.control(w, func() error { return h.session.SetTimeScale(*req.TimeScale) })
}

// GetScore returns the current metrics
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.session.Snapshot().Score)
}

// GetSessions lists recorded sessions
func (h *Handler) GetSessions(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		WriteError(w, http.StatusServiceUnavailable, "session storage is disabled")
		return
	}
	limit, offset, err := paging(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	sessions, err := h.history.ListSessions(limit, offset)
	if err != nil {
		h.logger.Error("Failed to list sessions", logger.Error(err))
		WriteError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*sqlite.SessionRecord{}
	}
	WriteJSON(w, http.StatusOK, sessions)
}

// GetSessionAlerts returns the alerts raised in one session
func (h *Handler) GetSessionAlerts(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		WriteError(w, http.StatusServiceUnavailable, "session storage is disabled")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	if _, err := h.history.GetSession(id); err != nil {
		WriteError(w, statusFor(err), err.Error())
		return
	}
	alerts, err := h.history.GetAlerts(id)
	if err != nil {
		h.logger.Error("Failed to load alerts", logger.Int64("session_id", id), logger.Error(err))
		WriteError(w, http.StatusInternalServerError, "failed to load alerts")
		return
	}
	if alerts == nil {
		alerts = []*sqlite.AlertRecord{}
	}
	WriteJSON(w, http.StatusOK, alerts)
}

func paging(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, errors.New("invalid limit")
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, errors.New("invalid offset")
		}
	}
	return limit, offset, nil
}
