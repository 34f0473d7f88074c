package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yegors/tracon-sim/pkg/logger"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a session does not exist
var ErrNotFound = errors.New("not found")

// Store is the SQLite database holding session history
type Store struct {
	db     *sql.DB
	logger *logger.Logger
}

// Open opens or creates the database at dbPath and applies the schema
func Open(dbPath string, log *logger.Logger) (*Store, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite storage",
		logger.String("path", dbPath))

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := initDatabase(db, storageLogger); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, logger: storageLogger}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the database connection
func (s *Store) DB() *sql.DB {
	return s.db
}

// initDatabase initializes the database schema
func initDatabase(db *sql.DB, log *logger.Logger) error {
	log.Info("Initializing database schema")

	tables := []struct {
		name string
		ddl  string
	}{
		{"sessions", `
			CREATE TABLE IF NOT EXISTS sessions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				airport TEXT NOT NULL,
				started_at TEXT NOT NULL,
				ended_at TEXT,
				score REAL,
				grade TEXT,
				metrics TEXT            -- final scoring.Metrics as JSON
			)`},
		{"alerts", `
			CREATE TABLE IF NOT EXISTS alerts (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id INTEGER NOT NULL,
				alert_id INTEGER NOT NULL,
				kind TEXT NOT NULL,
				severity TEXT NOT NULL,
				aircraft TEXT NOT NULL, -- comma separated aircraft ids
				subject TEXT,
				message TEXT NOT NULL,
				sim_time_ms INTEGER NOT NULL,
				predicted INTEGER NOT NULL DEFAULT 0,
				FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
			)`},
		{"commands", `
			CREATE TABLE IF NOT EXISTS commands (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id INTEGER NOT NULL,
				aircraft_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				phraseology TEXT NOT NULL,
				payload TEXT NOT NULL,  -- command.Command as JSON
				status TEXT NOT NULL,
				reason TEXT,
				sim_time_ms INTEGER NOT NULL,
				FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
			)`},
		{"departures", `
			CREATE TABLE IF NOT EXISTS departures (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id INTEGER NOT NULL,
				aircraft_id TEXT NOT NULL,
				callsign TEXT NOT NULL,
				status TEXT NOT NULL,
				sim_time_ms INTEGER NOT NULL,
				delay_seconds REAL NOT NULL,
				missed_handoff INTEGER NOT NULL DEFAULT 0,
				FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
			)`},
	}
	for _, t := range tables {
		if _, err := db.Exec(t.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.name, err)
		}
	}

	for _, idx := range []string{
		`CREATE INDEX IF NOT EXISTS idx_alerts_session ON alerts(session_id, sim_time_ms)`,
		`CREATE INDEX IF NOT EXISTS idx_commands_session ON commands(session_id, sim_time_ms)`,
		`CREATE INDEX IF NOT EXISTS idx_departures_session ON departures(session_id)`,
	} {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
