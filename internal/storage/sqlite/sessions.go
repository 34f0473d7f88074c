package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yegors/tracon-sim/internal/conflict"
	"github.com/yegors/tracon-sim/internal/scoring"
	"github.com/yegors/tracon-sim/internal/simulation"
)

// SessionRecord is one row of the sessions table
type SessionRecord struct {
	ID        int64            `json:"id"`
	Name      string           `json:"name"`
	Airport   string           `json:"airport"`
	StartedAt time.Time        `json:"started_at"`
	EndedAt   *time.Time       `json:"ended_at,omitempty"`
	Score     *scoring.Metrics `json:"score,omitempty"`
}

// AlertRecord is an alert as it was raised during a session
type AlertRecord struct {
	ID        int64         `json:"id"`
	SessionID int64         `json:"session_id"`
	AlertID   uint64        `json:"alert_id"`
	Kind      string        `json:"kind"`
	Severity  string        `json:"severity"`
	Aircraft  []string      `json:"aircraft"`
	Subject   string        `json:"subject,omitempty"`
	Message   string        `json:"message"`
	SimTime   time.Duration `json:"sim_time"`
	Predicted bool          `json:"predicted,omitempty"`
}

// CommandRecord is a command as it was applied during a session
type CommandRecord struct {
	ID          int64         `json:"id"`
	SessionID   int64         `json:"session_id"`
	AircraftID  string        `json:"aircraft_id"`
	Kind        string        `json:"kind"`
	Phraseology string        `json:"phraseology"`
	Payload     string        `json:"payload"`
	Status      string        `json:"status"`
	Reason      string        `json:"reason,omitempty"`
	SimTime     time.Duration `json:"sim_time"`
}

// CreateSession inserts a session row and returns its id
func (s *Store) CreateSession(name, airport string, startedAt time.Time) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO sessions (name, airport, started_at) VALUES (?, ?, ?)`,
		name, airport, startedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert session: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

// FinishSession stores the final score and end time
func (s *Store) FinishSession(id int64, endedAt time.Time, m scoring.Metrics) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal score: %w", err)
	}
	result, err := s.db.Exec(
		`UPDATE sessions SET ended_at = ?, score = ?, grade = ?, metrics = ? WHERE id = ?`,
		endedAt.UTC().Format(time.RFC3339Nano), m.Score, m.Grade, string(payload), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update session %d: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("session %d: %w", id, ErrNotFound)
	}
	return nil
}

const sessionColumns = `id, name, airport, started_at, ended_at, metrics`

func scanSession(row interface{ Scan(...any) error }) (*SessionRecord, error) {
	var (
		rec     SessionRecord
		started string
		ended   sql.NullString
		metrics sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Airport, &started, &ended, &metrics); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return nil, fmt.Errorf("invalid started_at for session %d: %w", rec.ID, err)
	}
	rec.StartedAt = t
	if ended.Valid {
		t, err := time.Parse(time.RFC3339Nano, ended.String)
		if err != nil {
			return nil, fmt.Errorf("invalid ended_at for session %d: %w", rec.ID, err)
		}
		rec.EndedAt = &t
	}
	if metrics.Valid {
		var m scoring.Metrics
		if err := json.Unmarshal([]byte(metrics.String), &m); err != nil {
			return nil, fmt.Errorf("invalid score for session %d: %w", rec.ID, err)
		}
		rec.Score = &m
	}
	return &rec, nil
}

// GetSession returns one session
func (s *Store) GetSession(id int64) (*SessionRecord, error) {
	rec, err := scanSession(s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session %d: %w", id, err)
	}
	return rec, nil
}

// ListSessions returns sessions, newest first
func (s *Store) ListSessions(limit, offset int) ([]*SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT `+sessionColumns+` FROM sessions ORDER BY id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var records []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetAlerts returns a session's alerts in the order they were raised
func (s *Store) GetAlerts(sessionID int64) ([]*AlertRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, alert_id, kind, severity, aircraft, subject, message, sim_time_ms, predicted
		FROM alerts WHERE session_id = ? ORDER BY sim_time_ms, alert_id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var records []*AlertRecord
	for rows.Next() {
		var (
			rec       AlertRecord
			aircraft  string
			subject   sql.NullString
			simTimeMS int64
			predicted int
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.AlertID, &rec.Kind, &rec.Severity,
			&aircraft, &subject, &rec.Message, &simTimeMS, &predicted); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		if aircraft != "" {
			rec.Aircraft = strings.Split(aircraft, ",")
		}
		rec.Subject = subject.String
		rec.SimTime = time.Duration(simTimeMS) * time.Millisecond
		rec.Predicted = predicted != 0
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// GetCommands returns a session's command log in the order it was applied
func (s *Store) GetCommands(sessionID int64) ([]*CommandRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, aircraft_id, kind, phraseology, payload, status, reason, sim_time_ms
		FROM commands WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query commands: %w", err)
	}
	defer rows.Close()

	var records []*CommandRecord
	for rows.Next() {
		var (
			rec       CommandRecord
			reason    sql.NullString
			simTimeMS int64
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.AircraftID, &rec.Kind, &rec.Phraseology,
			&rec.Payload, &rec.Status, &reason, &simTimeMS); err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		rec.Reason = reason.String
		rec.SimTime = time.Duration(simTimeMS) * time.Millisecond
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// CountDepartures returns how many flights left the session, and how many of
// those missed their handoff
func (s *Store) CountDepartures(sessionID int64) (total, missed int, err error) {
	err = s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(missed_handoff), 0) FROM departures WHERE session_id = ?`,
		sessionID,
	).Scan(&total, &missed)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count departures: %w", err)
	}
	return total, missed, nil
}

// AppendFrame writes a tick's alerts, commands and departures in one
// transaction
func (s *Store) AppendFrame(sessionID int64, f simulation.Frame) error {
	if len(f.Raised) == 0 && len(f.Commands) == 0 && len(f.Removed) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, a := range f.Raised {
		if err := insertAlert(tx, sessionID, a); err != nil {
			return err
		}
	}
	for _, c := range f.Commands {
		payload, err := json.Marshal(c.Command)
		if err != nil {
			return fmt.Errorf("failed to marshal command: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO commands (session_id, aircraft_id, kind, phraseology, payload, status, reason, sim_time_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID, c.AircraftID, string(c.Command.Kind), c.Command.String(), string(payload),
			string(c.Result.Status), c.Result.Reason, c.SimTime.Milliseconds(),
		); err != nil {
			return fmt.Errorf("failed to insert command: %w", err)
		}
	}
	for _, d := range f.Removed {
		if _, err := tx.Exec(
			`INSERT INTO departures (session_id, aircraft_id, callsign, status, sim_time_ms, delay_seconds, missed_handoff)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sessionID, d.AircraftID, d.Callsign, d.Status.String(), d.SimTime.Milliseconds(),
			d.DelaySeconds, boolToInt(d.MissedHandoff),
		); err != nil {
			return fmt.Errorf("failed to insert departure: %w", err)
		}
	}
	return tx.Commit()
}

func insertAlert(tx *sql.Tx, sessionID int64, a conflict.Alert) error {
	_, err := tx.Exec(
		`INSERT INTO alerts (session_id, alert_id, kind, severity, aircraft, subject, message, sim_time_ms, predicted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, a.ID, string(a.Kind), a.Severity.String(), strings.Join(a.Aircraft, ","),
		a.Subject, a.Message, a.SimTime.Milliseconds(), boolToInt(a.Predicted),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert %d: %w", a.ID, err)
	}
	return nil
}
