package simulation

import (
	"time"

	"github.com/mohae/deepcopy"

	"github.com/yegors/tracon-sim/internal/aircraft"
	"github.com/yegors/tracon-sim/internal/command"
	"github.com/yegors/tracon-sim/internal/conflict"
	"github.com/yegors/tracon-sim/internal/scoring"
)

// Snapshot is an immutable copy of the session state after a tick. Nothing
// in it aliases engine state.
type Snapshot struct {
	Tick      uint64              `json:"tick" msgpack:"tick"`
	SimTime   time.Duration       `json:"sim_time" msgpack:"sim_time"`
	WallTime  time.Time           `json:"wall_time" msgpack:"wall_time"`
	Paused    bool                `json:"paused" msgpack:"paused"`
	Ended     bool                `json:"ended" msgpack:"ended"`
	TimeScale float64             `json:"time_scale" msgpack:"time_scale"`
	Aircraft  []aircraft.Aircraft `json:"aircraft" msgpack:"aircraft"`
	Alerts    []conflict.Alert    `json:"alerts" msgpack:"alerts"`
	Score     scoring.Metrics     `json:"score" msgpack:"score"`
}

// Find returns the aircraft with the given id
func (s *Snapshot) Find(id string) (aircraft.Aircraft, bool) {
	for _, ac := range s.Aircraft {
		if ac.ID == id {
			return ac, true
		}
	}
	return aircraft.Aircraft{}, false
}

// CommandRecord is a command applied during a tick
type CommandRecord struct {
	AircraftID string          `json:"aircraft_id"`
	Command    command.Command `json:"command"`
	Result     command.Result  `json:"result"`
	SimTime    time.Duration   `json:"sim_time"`
}

// Departure records an aircraft leaving the session
type Departure struct {
	AircraftID    string          `json:"aircraft_id"`
	Callsign      string          `json:"callsign"`
	Status        aircraft.Status `json:"status"`
	SimTime       time.Duration   `json:"sim_time"`
	DelaySeconds  float64         `json:"delay_seconds"`
	MissedHandoff bool            `json:"missed_handoff"`
}

// Frame is everything a tick produced, handed to the sinks
type Frame struct {
	Snapshot *Snapshot
	Raised   []conflict.Alert
	Commands []CommandRecord
	Removed  []Departure
	Final    *scoring.Metrics // set once, when the session ends
}

// buildSnapshot copies the arena. Callers hold e.mu.
func (e *Engine) buildSnapshot() *Snapshot {
	s := &Snapshot{
		Tick:      e.tick,
		SimTime:   e.simTime,
		WallTime:  time.Now().UTC(),
		Paused:    e.paused,
		Ended:     e.ended,
		TimeScale: e.timeScale,
		Aircraft:  make([]aircraft.Aircraft, 0, len(e.order)),
		Alerts:    deepcopy.Copy(e.active).([]conflict.Alert),
		Score:     e.score.Metrics(),
	}
	for _, id := range e.order {
		s.Aircraft = append(s.Aircraft, deepcopy.Copy(*e.arena[id]).(aircraft.Aircraft))
	}
	return s
}
