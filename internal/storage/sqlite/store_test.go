package sqlite

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/yegors/tracon-sim/internal/aircraft"
	"github.com/yegors/tracon-sim/internal/command"
	"github.com/yegors/tracon-sim/internal/conflict"
	"github.com/yegors/tracon-sim/internal/scoring"
	"github.com/yegors/tracon-sim/internal/simulation"
	"github.com/yegors/tracon-sim/pkg/logger"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "sessions.db"), logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionLifecycle(t *testing.T) {
	s := openStore(t)
	started := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

	log, err := s.StartSession("ktst-morning", "KTST", started)
	if err != nil {
		t.Fatal(err)
	}

	log.Consume(simulation.Frame{
		Snapshot: &simulation.Snapshot{Tick: 12},
		Raised: []conflict.Alert{
			{ID: 1, Kind: conflict.KindConflict, Severity: conflict.Caution, Aircraft: []string{"AC0001", "AC0002"},
				Message: "predicted conflict", SimTime: 12 * time.Second, Predicted: true},
			{ID: 2, Kind: conflict.KindMSAW, Severity: conflict.Warning, Aircraft: []string{"AC0003"},
				Subject: "WEST", Message: "low altitude", SimTime: 12 * time.Second},
		},
		Commands: []simulation.CommandRecord{
			{AircraftID: "AC0001", Command: command.Command{Kind: command.Altitude, AltitudeFt: 5000},
				Result: command.Result{Status: command.Accepted}, SimTime: 11 * time.Second},
			{AircraftID: "AC0002", Command: command.Command{Kind: command.Speed, SpeedKts: 400},
				Result: command.Result{Status: command.Rejected, Reason: "above maximum speed"}, SimTime: 11 * time.Second},
		},
	})
	log.Consume(simulation.Frame{
		Snapshot: &simulation.Snapshot{Tick: 40},
		Removed: []simulation.Departure{
			{AircraftID: "AC0001", Callsign: "UAL1", Status: aircraft.StatusLanded, SimTime: 40 * time.Second, DelaySeconds: 12},
			{AircraftID: "AC0003", Callsign: "DAL2", Status: aircraft.StatusExited, SimTime: 40 * time.Second, MissedHandoff: true},
		},
	})

	final := scoring.Metrics{Counters: scoring.Counters{AircraftHandled: 2}, Score: 72, Grade: "C", Final: true}
	ended := started.Add(20 * time.Minute)
	log.Consume(simulation.Frame{Snapshot: &simulation.Snapshot{Tick: 41, WallTime: ended}, Final: &final})

	alerts, err := s.GetAlerts(log.ID())
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 2 {
		t.Fatalf("alerts = %d, want 2", len(alerts))
	}
	if a := alerts[0]; a.Kind != "conflict" || a.Severity != "caution" || len(a.Aircraft) != 2 || !a.Predicted || a.SimTime != 12*time.Second {
		t.Errorf("first alert = %+v", a)
	}
	if a := alerts[1]; a.Subject != "WEST" || a.Predicted || a.Aircraft[0] != "AC0003" {
		t.Errorf("second alert = %+v", a)
	}

	cmds, err := s.GetCommands(log.ID())
	if err != nil {
		t.Fatal(err)
	}
	if len(cmds) != 2 || cmds[0].Phraseology != "maintain 5000" || cmds[1].Status != "rejected" || cmds[1].Reason == "" {
		t.Errorf("commands = %+v", cmds)
	}

	total, missed, err := s.CountDepartures(log.ID())
	if err != nil || total != 2 || missed != 1 {
		t.Errorf("departures = %d/%d, %v", total, missed, err)
	}

	rec, err := s.GetSession(log.ID())
	if err != nil {
		t.Fatal(err)
	}
	if !rec.StartedAt.Equal(started) || rec.EndedAt == nil || !rec.EndedAt.Equal(ended) {
		t.Errorf("session times = %v %v", rec.StartedAt, rec.EndedAt)
	}
	if rec.Score == nil || rec.Score.Grade != "C" || rec.Score.AircraftHandled != 2 {
		t.Errorf("score = %+v", rec.Score)
	}
}

func TestListSessions(t *testing.T) {
	s := openStore(t)
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, name := range []string{"first", "second", "third"} {
		if _, err := s.CreateSession(name, "KTST", start.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name          string
		limit, offset int
		want          []string
	}{
		{"all newest first", 10, 0, []string{"third", "second", "first"}},
		{"page", 1, 1, []string{"second"}},
		{"default limit", 0, 0, []string{"third", "second", "first"}},
		{"past the end", 10, 5, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListSessions(tt.limit, tt.offset)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d sessions, want %d", len(got), len(tt.want))
			}
			for i, rec := range got {
				if rec.Name != tt.want[i] || rec.EndedAt != nil || rec.Score != nil {
					t.Errorf("session %d = %+v", i, rec)
				}
			}
		})
	}
}

func TestMissingSession(t *testing.T) {
	s := openStore(t)
	if _, err := s.GetSession(99); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSession = %v", err)
	}
	if err := s.FinishSession(99, time.Now(), scoring.Metrics{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("FinishSession = %v", err)
	}
	alerts, err := s.GetAlerts(99)
	if err != nil || len(alerts) != 0 {
		t.Errorf("GetAlerts = %v, %v", alerts, err)
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := Open(path, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.CreateSession("persisted", "KTST", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(path, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	rec, err := s.GetSession(id)
	if err != nil || rec.Name != "persisted" {
		t.Errorf("reopened session = %+v, %v", rec, err)
	}
}
