package scenario

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yegors/tracon-sim/internal/aircraft"
	"github.com/yegors/tracon-sim/internal/refdata"
	"github.com/yegors/tracon-sim/internal/simulation"
	"github.com/yegors/tracon-sim/internal/weather"
	"github.com/yegors/tracon-sim/pkg/logger"
)

type fakeSpawner struct {
	spawned []string
	fail    map[string]bool
}

func (f *fakeSpawner) Spawn(req simulation.SpawnRequest) (string, error) {
	if f.fail[req.Callsign] {
		return "", errors.New("rejected")
	}
	f.spawned = append(f.spawned, req.Callsign)
	return "id-" + req.Callsign, nil
}

func frameAt(d time.Duration) simulation.Frame {
	return simulation.Frame{Snapshot: &simulation.Snapshot{SimTime: d}}
}

func TestLoadSample(t *testing.T) {
	sc, err := Load("../../data/scenario.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if sc.Name != "ktst-morning" || len(sc.Spawns) != 5 {
		t.Fatalf("scenario = %s with %d spawns", sc.Name, len(sc.Spawns))
	}
	dep := sc.Spawns[1]
	if dep.At != 30*time.Second || dep.Category != aircraft.Departure || dep.Runway != "27" || dep.Position != nil {
		t.Errorf("departure entry = %+v", dep)
	}
	if last := sc.Spawns[4]; last.At != 5*time.Minute || last.Callsign != "JBU77" {
		t.Errorf("last entry = %+v", last)
	}
}

func TestLoadRejectsBadTimetables(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", "name: x\nspawns:\n  - {at: 0s, callsign: A1, type: B738, heading: 90}\n"},
		{"no type", "name: x\nspawns:\n  - {at: 0s, callsign: A1}\n"},
		{"duplicate callsign", "name: x\nspawns:\n  - {at: 0s, callsign: A1, type: B738}\n  - {at: 5s, callsign: A1, type: B738}\n"},
		{"negative offset", "name: x\nspawns:\n  - {at: -5s, callsign: A1, type: B738}\n"},
		{"bad category", "name: x\nspawns:\n  - {at: 0s, callsign: A1, type: B738, category: cargo}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "scenario.yaml")
			if err := os.WriteFile(path, []byte(tt.body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("scenario accepted")
			}
		})
	}
}

func TestRunnerReleasesInOrder(t *testing.T) {
	sc := &Scenario{Name: "t", Spawns: []Entry{
		{At: 20 * time.Second, SpawnRequest: simulation.SpawnRequest{Callsign: "C", Type: "B738"}},
		{At: 0, SpawnRequest: simulation.SpawnRequest{Callsign: "A", Type: "B738"}},
		{At: 10 * time.Second, SpawnRequest: simulation.SpawnRequest{Callsign: "B", Type: "B738"}},
		{At: 10 * time.Second, SpawnRequest: simulation.SpawnRequest{Callsign: "X", Type: "B738"}},
	}}
	if err := sc.Validate(); err != nil {
		t.Fatal(err)
	}
	sp := &fakeSpawner{fail: map[string]bool{"X": true}}
	r := NewRunner(sc, sp, logger.NewNop())

	steps := []struct {
		at        time.Duration
		spawned   int
		remaining int
	}{
		{0, 1, 3},
		{5 * time.Second, 1, 3},
		{15 * time.Second, 2, 1},
		{15 * time.Second, 2, 1},
		{time.Minute, 3, 0},
	}
	for _, s := range steps {
		r.Consume(frameAt(s.at))
		if len(sp.spawned) != s.spawned || r.Remaining() != s.remaining {
			t.Errorf("at %s: spawned %v, remaining %d", s.at, sp.spawned, r.Remaining())
		}
	}
	if sp.spawned[0] != "A" || sp.spawned[1] != "B" || sp.spawned[2] != "C" {
		t.Errorf("order = %v", sp.spawned)
	}

	r2 := NewRunner(sc, &fakeSpawner{}, logger.NewNop())
	r2.Consume(simulation.Frame{Snapshot: &simulation.Snapshot{SimTime: time.Hour, Ended: true}})
	if r2.Remaining() != len(sc.Spawns) {
		t.Error("ended session released spawns")
	}
}

func TestSampleScenarioAgainstEngine(t *testing.T) {
	table, err := refdata.LoadPerformance("../../data/performance.yaml")
	if err != nil {
		t.Fatal(err)
	}
	ap, _, err := refdata.LoadAirport("../../data/airport.yaml")
	if err != nil {
		t.Fatal(err)
	}
	sc, err := Load("../../data/scenario.yaml")
	if err != nil {
		t.Fatal(err)
	}
	e, err := simulation.NewEngine(simulation.DefaultConfig(), simulation.World{
		Airport: ap, Performance: table, Wind: weather.Calm(),
	}, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	r := NewRunner(sc, e, logger.NewNop())
	r.Consume(simulation.Frame{Snapshot: e.Snapshot()})
	for i := 0; i < 300; i++ {
		s, _ := e.Advance(1)
		r.Consume(simulation.Frame{Snapshot: s})
	}
	if r.Remaining() != 0 {
		t.Errorf("%d entries never released", r.Remaining())
	}
	if n := len(e.Snapshot().Aircraft); n != len(sc.Spawns) {
		t.Errorf("%d aircraft in the arena, want %d", n, len(sc.Spawns))
	}
}
