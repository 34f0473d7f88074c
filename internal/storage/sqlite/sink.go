package sqlite

import (
	"time"

	"github.com/yegors/tracon-sim/internal/simulation"
	"github.com/yegors/tracon-sim/pkg/logger"
)

// SessionLog persists one running session. It is a simulation.Sink.
type SessionLog struct {
	store  *Store
	id     int64
	logger *logger.Logger
}

// StartSession creates the session row and returns a sink for its frames
func (s *Store) StartSession(name, airport string, startedAt time.Time) (*SessionLog, error) {
	id, err := s.CreateSession(name, airport, startedAt)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Session started",
		logger.Int64("session_id", id),
		logger.String("name", name),
		logger.String("airport", airport))
	return &SessionLog{store: s, id: id, logger: s.logger.With(logger.Int64("session_id", id))}, nil
}

// ID returns the session row id
func (l *SessionLog) ID() int64 { return l.id }

// Consume stores the frame's events. A failed write is logged and the frame is
// lost; the session carries on.
func (l *SessionLog) Consume(f simulation.Frame) {
	if err := l.store.AppendFrame(l.id, f); err != nil {
		l.logger.Error("Failed to persist frame", logger.Error(err))
	}
	if f.Final == nil {
		return
	}
	ended := time.Now().UTC()
	if f.Snapshot != nil && !f.Snapshot.WallTime.IsZero() {
		ended = f.Snapshot.WallTime
	}
	if err := l.store.FinishSession(l.id, ended, *f.Final); err != nil {
		l.logger.Error("Failed to persist final score", logger.Error(err))
		return
	}
	l.logger.Info("Session finished",
		logger.Float64("score", f.Final.Score),
		logger.String("grade", f.Final.Grade))
}
