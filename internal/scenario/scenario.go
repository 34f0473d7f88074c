// Package scenario drives traffic from a YAML timetable: each entry is a spawn
// request released once simulated time reaches its offset.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yegors/tracon-sim/internal/simulation"
	"github.com/yegors/tracon-sim/pkg/logger"
)

// Entry is one timetabled flight
type Entry struct {
	At                      time.Duration `yaml:"at"`
	simulation.SpawnRequest `yaml:",inline"`
}

// Scenario is a named, time-ordered list of entries
type Scenario struct {
	Name   string  `yaml:"name"`
	Spawns []Entry `yaml:"spawns"`
}

// Load reads and validates a scenario file
func Load(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	defer f.Close()

	var sc Scenario
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scenario %s: %w", path, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &sc, nil
}

// Validate checks every entry and sorts the timetable
func (s *Scenario) Validate() error {
	var errs []error
	seen := map[string]bool{}
	for i, e := range s.Spawns {
		switch {
		case e.At < 0:
			errs = append(errs, fmt.Errorf("entry %d: negative offset %s", i+1, e.At))
		case e.Callsign == "":
			errs = append(errs, fmt.Errorf("entry %d: callsign is required", i+1))
		case e.Type == "":
			errs = append(errs, fmt.Errorf("entry %d (%s): type is required", i+1, e.Callsign))
		case seen[e.Callsign]:
			errs = append(errs, fmt.Errorf("entry %d: duplicate callsign %s", i+1, e.Callsign))
		}
		seen[e.Callsign] = true
	}
	sort.SliceStable(s.Spawns, func(i, j int) bool { return s.Spawns[i].At < s.Spawns[j].At })
	return errors.Join(errs...)
}

// Spawner is the engine surface the runner needs
type Spawner interface {
	Spawn(simulation.SpawnRequest) (string, error)
}

// Runner releases entries as frames report simulated time passing. It is a
// simulation.Sink; a dropped frame only delays spawns to the next one.
type Runner struct {
	scenario *Scenario
	spawner  Spawner
	logger   *logger.Logger

	mu   sync.Mutex
	next int
}

// NewRunner creates a runner positioned at the start of the timetable
func NewRunner(sc *Scenario, spawner Spawner, log *logger.Logger) *Runner {
	return &Runner{scenario: sc, spawner: spawner, logger: log.Named("scenario")}
}

// Due returns the entries whose offset is at or before simTime and advances
// past them
func (r *Runner) Due(simTime time.Duration) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	start := r.next
	for r.next < len(r.scenario.Spawns) && r.scenario.Spawns[r.next].At <= simTime {
		r.next++
	}
	return r.scenario.Spawns[start:r.next]
}

// Remaining is the number of entries not yet released
func (r *Runner) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scenario.Spawns) - r.next
}

// Consume spawns every entry that has come due. A rejected spawn is logged
// and skipped.
func (r *Runner) Consume(f simulation.Frame) {
	if f.Snapshot == nil || f.Snapshot.Ended {
		return
	}
	for _, e := range r.Due(f.Snapshot.SimTime) {
		id, err := r.spawner.Spawn(e.SpawnRequest)
		if err != nil {
			r.logger.Warn("Scenario spawn rejected",
				logger.String("scenario", r.scenario.Name),
				logger.String("callsign", e.Callsign),
				logger.Error(err),
			)
			continue
		}
		r.logger.Info("Scenario spawn",
			logger.String("id", id),
			logger.String("callsign", e.Callsign),
			logger.Duration("at", e.At),
		)
	}
}
