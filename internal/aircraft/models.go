// Package aircraft holds the mutable per-flight state the simulation owns: its
// kinematics, its three guidance slots and its command history.
package aircraft

import (
	"fmt"
	"time"

	"github.com/yegors/tracon-sim/internal/perf"
	"github.com/yegors/tracon-sim/internal/physics"
	"github.com/yegors/tracon-sim/internal/procedure"
)

// Category separates arrivals from departures
type Category int

const (
	Arrival Category = iota
	Departure
)

func (c Category) String() string {
	if c == Departure {
		return "departure"
	}
	return "arrival"
}

func (c Category) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Category) UnmarshalText(b []byte) error {
	switch string(b) {
	case "arrival":
		*c = Arrival
	case "departure":
		*c = Departure
	default:
		return fmt.Errorf("unknown category %q", b)
	}
	return nil
}

// Status is the lifecycle state of a flight
type Status int

const (
	StatusActive Status = iota
	StatusLanded
	StatusExited
	StatusRemoved
)

var statusNames = []string{"active", "landed", "exited", "removed"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	for i, name := range statusNames {
		if name == string(b) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

// Terminal reports whether the flight no longer accepts commands
func (s Status) Terminal() bool { return s != StatusActive }

// Mode selects which source is authoritative for one guidance axis
type Mode int

const (
	ModeProcedure Mode = iota // the active procedure leg
	ModeManual                // the last controller-assigned target
)

func (m Mode) String() string {
	if m == ModeManual {
		return "manual"
	}
	return "procedure"
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "procedure":
		*m = ModeProcedure
	case "manual":
		*m = ModeManual
	default:
		return fmt.Errorf("unknown mode %q", b)
	}
	return nil
}

// Lateral is the lateral guidance slot
type Lateral struct {
	Mode       Mode                    `json:"mode"`
	HeadingDeg float64                 `json:"heading_deg"` // true heading held in manual mode
	Turn       procedure.TurnDirection `json:"turn"`        // turn direction for the assigned heading
}

// Vertical is the vertical guidance slot
type Vertical struct {
	Mode       Mode    `json:"mode"`
	AltitudeFt float64 `json:"altitude_ft"` // assigned altitude, or the last procedure target
}

// Speed is the speed guidance slot
type Speed struct {
	Mode Mode    `json:"mode"`
	IAS  float64 `json:"ias"` // assigned speed, or the last procedure target
}

// HoldPhase is the current segment of a racetrack
type HoldPhase int

const (
	HoldEntry HoldPhase = iota
	HoldOutbound
	HoldInbound
)

// Hold tracks progress around a holding pattern
type Hold struct {
	Phase    HoldPhase `json:"phase"`
	Elapsed  float64   `json:"elapsed"` // seconds in the current phase
	Circuits int       `json:"circuits"`
}

// Route is the procedure the aircraft is bound to and its progress along it
type Route struct {
	Procedure  string          `json:"procedure,omitempty"`
	Kind       procedure.Kind  `json:"kind"`
	Transition string          `json:"transition,omitempty"`
	Runway     string          `json:"runway,omitempty"`
	TopFt      float64         `json:"top_ft,omitempty"` // SID top altitude
	Legs       []procedure.Leg `json:"legs,omitempty"`
	Index      int             `json:"index"` // active leg; len(Legs) once exhausted

	LegEntry   physics.LatLon `json:"leg_entry"`   // position when the active leg began
	LegElapsed float64        `json:"leg_elapsed"` // seconds on the active leg
	Hold       Hold           `json:"hold"`
}

// Active returns the current leg, or false when the sequence is exhausted
func (r *Route) Active() (procedure.Leg, bool) {
	if r.Index < 0 || r.Index >= len(r.Legs) {
		return procedure.Leg{}, false
	}
	return r.Legs[r.Index], true
}

// Next returns the leg after the active one
func (r *Route) Next() (procedure.Leg, bool) {
	if r.Index+1 >= len(r.Legs) {
		return procedure.Leg{}, false
	}
	return r.Legs[r.Index+1], true
}

// Remaining returns the active leg and everything after it
func (r *Route) Remaining() []procedure.Leg {
	if r.Index >= len(r.Legs) {
		return nil
	}
	return r.Legs[r.Index:]
}

// Exhausted reports whether every leg has been flown
func (r *Route) Exhausted() bool { return r.Index >= len(r.Legs) }

// Advance moves to the next leg. It never moves backwards.
func (r *Route) Advance(pos physics.LatLon) {
	if r.Index < len(r.Legs) {
		r.Index++
	}
	r.LegEntry = pos
	r.LegElapsed = 0
	r.Hold = Hold{}
}

// Bind replaces the route with a new leg sequence starting at its first leg.
// The assigned runway is kept.
func (r *Route) Bind(p *procedure.Procedure, transition string, legs []procedure.Leg, pos physics.LatLon) {
	rwy := r.Runway
	if p.Kind == procedure.Approach && p.Runway != "" {
		rwy = p.Runway
	}
	*r = Route{
		Procedure:  p.Name,
		Kind:       p.Kind,
		Transition: transition,
		Runway:     rwy,
		TopFt:      p.TopAltitudeFt,
		Legs:       legs,
		LegEntry:   pos,
	}
}

// Flags are the boolean clearance and lifecycle markers
type Flags struct {
	ClearedApproach   bool               `json:"cleared_approach"`
	HandedOff         bool               `json:"handed_off"`
	HandoffMissed     bool               `json:"handoff_missed"`
	ProcedureComplete bool               `json:"procedure_complete"`
	Config            perf.Configuration `json:"config"`
	LastGoodHeading   float64            `json:"last_good_heading"` // fallback when a leg cannot be resolved
}

// Guidance is everything a clearance may change. Commands are applied to a
// copy of it and committed only if the whole command validates.
type Guidance struct {
	Lateral  Lateral  `json:"lateral"`
	Vertical Vertical `json:"vertical"`
	Speed    Speed    `json:"speed"`
	Route    Route    `json:"route"`
	Flags    Flags    `json:"flags"`
}

// Targets are the per-tick outputs of navigation consumed by the integrator
type Targets struct {
	HeadingDeg float64                 `json:"heading_deg"`
	Turn       procedure.TurnDirection `json:"turn"`
	AltitudeFt float64                 `json:"altitude_ft"`
	IAS        float64                 `json:"ias"`
	// PathFPM is the descent rate needed to stay on a vertical path. Altitude
	// capture never slows the aircraft below it.
	PathFPM float64 `json:"path_fpm,omitempty"`
}

// HistoryEntry records one command as issued, whatever its outcome
type HistoryEntry struct {
	SimTime time.Duration `json:"sim_time"`
	Command string        `json:"command"`
	Outcome string        `json:"outcome"`
	Reason  string        `json:"reason,omitempty"`
}

// Aircraft is the state of one active flight
type Aircraft struct {
	ID       string            `json:"id"`
	Callsign string            `json:"callsign"`
	TypeCode string            `json:"type"`
	Wake     perf.WakeCategory `json:"wake"`
	Category Category          `json:"category"`
	Status   Status            `json:"status"`

	Position    physics.LatLon `json:"position"`
	AltitudeFt  float64        `json:"altitude_ft"`
	HeadingDeg  float64        `json:"heading_deg"` // true
	TrackDeg    float64        `json:"track_deg"`   // true
	IAS         float64        `json:"ias"`
	TAS         float64        `json:"tas"`
	GS          float64        `json:"gs"`
	VerticalFPM float64        `json:"vertical_fpm"`
	BankDeg     float64        `json:"bank_deg"`

	Nav     Guidance `json:"nav"`
	Targets Targets  `json:"targets"`

	History []HistoryEntry `json:"history,omitempty"`

	SpawnedAt      time.Duration `json:"spawned_at"`            // sim time
	NominalSeconds float64       `json:"nominal_seconds"`       // unimpeded time to fly the assigned route
	Destination    string        `json:"destination,omitempty"` // exit fix for departures, runway for arrivals

	perf *perf.AircraftType
}

// New creates an active aircraft of the given type
func New(id, callsign string, at *perf.AircraftType, category Category) *Aircraft {
	return &Aircraft{
		ID:       id,
		Callsign: callsign,
		TypeCode: at.Designator,
		Wake:     at.Wake,
		Category: category,
		perf:     at,
	}
}

// Perf returns the performance envelope. Snapshot copies do not carry it.
func (a *Aircraft) Perf() *perf.AircraftType { return a.perf }

// RecordCommand appends to the command history
func (a *Aircraft) RecordCommand(simTime time.Duration, command, outcome, reason string) {
	a.History = append(a.History, HistoryEntry{SimTime: simTime, Command: command, Outcome: outcome, Reason: reason})
}

// Velocity returns the ground velocity in knots, X east and Y north
func (a *Aircraft) Velocity() physics.Vector2D {
	return physics.HeadingToVector(a.TrackDeg, a.GS)
}
