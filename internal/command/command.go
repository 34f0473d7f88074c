// Package command applies structured controller clearances to an aircraft's
// guidance slots.
package command

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/brunoga/deep"

	"github.com/yegors/tracon-sim/internal/aircraft"
	"github.com/yegors/tracon-sim/internal/procedure"
)

var (
	// ErrInvalidClearance is returned for a command outside the physical or procedural envelope
	ErrInvalidClearance = errors.New("invalid clearance")
	// ErrStaleCommand is returned for a command addressed to an aircraft or session that is gone
	ErrStaleCommand = errors.New("stale command")
)

// Kind names a clearance
type Kind string

const (
	Heading          Kind = "heading"
	Altitude         Kind = "altitude"
	Speed            Kind = "speed"
	ClearedApproach  Kind = "cleared_approach"
	Contact          Kind = "contact"
	ClimbVia         Kind = "climb_via"
	DescendVia       Kind = "descend_via"
	Direct           Kind = "direct"
	ResumeNavigation Kind = "resume_navigation"
	ResumeSpeed      Kind = "resume_speed"
)

// Command is one structured clearance
type Command struct {
	Kind       Kind    `json:"kind"`
	HeadingDeg float64 `json:"heading,omitempty"` // magnetic
	Turn       string  `json:"turn,omitempty"`    // left, right or empty for shortest
	AltitudeFt float64 `json:"altitude,omitempty"`
	SpeedKts   float64 `json:"speed,omitempty"`
	Approach   string  `json:"approach,omitempty"`
	Frequency  string  `json:"frequency,omitempty"`
	Fix        string  `json:"fix,omitempty"`
}

func (c Command) String() string {
	switch c.Kind {
	case Heading:
		if c.Turn != "" {
			return fmt.Sprintf("turn %s heading %03.0f", c.Turn, c.HeadingDeg)
		}
		return fmt.Sprintf("fly heading %03.0f", c.HeadingDeg)
	case Altitude:
		return fmt.Sprintf("maintain %.0f", c.AltitudeFt)
	case Speed:
		return fmt.Sprintf("maintain %.0f knots", c.SpeedKts)
	case ClearedApproach:
		return "cleared " + c.Approach + " approach"
	case Contact:
		return "contact " + c.Frequency
	case ClimbVia:
		return "climb via SID"
	case DescendVia:
		return "descend via STAR"
	case Direct:
		return "proceed direct " + c.Fix
	case ResumeNavigation:
		return "resume own navigation"
	case ResumeSpeed:
		return "resume normal speed"
	}
	return string(c.Kind)
}

// Status is the outcome class of a command
type Status string

const (
	Accepted Status = "accepted"
	Rejected Status = "rejected"
	Dropped  Status = "dropped"
)

// Result is returned for every command
type Result struct {
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
	Err    error  `json:"-"`
}

// Interpreter validates and applies commands against one airport
type Interpreter struct {
	airport *procedure.Airport
}

// NewInterpreter creates an interpreter for the airport's procedures
func NewInterpreter(airport *procedure.Airport) *Interpreter {
	return &Interpreter{airport: airport}
}

// Apply validates cmd against ac and, if it is acceptable, commits it to the
// aircraft's guidance. The guidance is modified on a copy, so a rejected
// command leaves it untouched. Every command reaching an active aircraft is
// recorded in its history whatever the outcome.
func (in *Interpreter) Apply(ac *aircraft.Aircraft, cmd Command, simTime time.Duration) Result {
	if ac == nil || ac.Status.Terminal() {
		return Result{Status: Dropped, Err: ErrStaleCommand}
	}

	g, err := deep.Copy(ac.Nav)
	if err != nil {
		return in.record(ac, cmd, simTime, Result{Status: Rejected, Reason: err.Error(), Err: err})
	}
	if err := in.apply(ac, &g, cmd); err != nil {
		return in.record(ac, cmd, simTime, Result{Status: Rejected, Reason: err.Error(), Err: err})
	}
	ac.Nav = g
	return in.record(ac, cmd, simTime, Result{Status: Accepted})
}

func (in *Interpreter) record(ac *aircraft.Aircraft, cmd Command, simTime time.Duration, res Result) Result {
	ac.RecordCommand(simTime, cmd.String(), string(res.Status), res.Reason)
	return res
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidClearance, fmt.Sprintf(format, args...))
}

func (in *Interpreter) apply(ac *aircraft.Aircraft, g *aircraft.Guidance, cmd Command) error {
	at := ac.Perf()
	if at == nil {
		return invalid("aircraft %s has no performance data", ac.ID)
	}

	switch cmd.Kind {
	case Heading:
		if !finite(cmd.HeadingDeg) || cmd.HeadingDeg <= 0 || cmd.HeadingDeg > 360 {
			return invalid("heading %.0f out of range", cmd.HeadingDeg)
		}
		turn, err := procedure.ParseTurnDirection(cmd.Turn)
		if err != nil {
			return invalid("%v", err)
		}
		hdg := cmd.HeadingDeg
		if in.airport != nil {
			hdg = in.airport.MagneticToTrue(hdg)
		}
		g.Lateral = aircraft.Lateral{Mode: aircraft.ModeManual, HeadingDeg: hdg, Turn: turn}

	case Altitude:
		if !finite(cmd.AltitudeFt) || cmd.AltitudeFt <= 0 || cmd.AltitudeFt > at.CeilingFt {
			return invalid("altitude %.0f outside %s envelope (ceiling %.0f)", cmd.AltitudeFt, at.Designator, at.CeilingFt)
		}
		g.Vertical = aircraft.Vertical{Mode: aircraft.ModeManual, AltitudeFt: cmd.AltitudeFt}

	case Speed:
		lo, hi := at.MinSpeed(g.Flags.Config), at.SpeedLimit(ac.AltitudeFt)
		if !finite(cmd.SpeedKts) || cmd.SpeedKts < lo || cmd.SpeedKts > hi {
			return invalid("speed %.0f outside %s envelope %.0f-%.0f", cmd.SpeedKts, at.Designator, lo, hi)
		}
		g.Speed = aircraft.Speed{Mode: aircraft.ModeManual, IAS: cmd.SpeedKts}

	case ClearedApproach:
		return in.clearApproach(ac, g, cmd.Approach)

	case Contact:
		if strings.TrimSpace(cmd.Frequency) == "" {
			return invalid("contact requires a frequency")
		}
		g.Flags.HandedOff = true

	case ClimbVia, DescendVia:
		r := &g.Route
		if r.Exhausted() {
			return invalid("no procedure to %s", cmd)
		}
		if cmd.Kind == ClimbVia && r.Kind != procedure.SID {
			return invalid("climb via requires a SID, aircraft is on %s %s", r.Kind, r.Procedure)
		}
		if cmd.Kind == DescendVia && r.Kind == procedure.SID {
			return invalid("descend via requires a STAR or approach, aircraft is on SID %s", r.Procedure)
		}
		g.Vertical.Mode = aircraft.ModeProcedure
		g.Speed.Mode = aircraft.ModeProcedure

	case Direct:
		return directTo(ac, g, cmd.Fix)

	case ResumeNavigation:
		if g.Route.Exhausted() {
			return invalid("no procedure to resume")
		}
		g.Lateral.Mode = aircraft.ModeProcedure
		g.Lateral.Turn = procedure.TurnEither

	case ResumeSpeed:
		g.Speed.Mode = aircraft.ModeProcedure

	default:
		return invalid("unknown command %q", cmd.Kind)
	}
	return nil
}

// clearApproach binds all three axes to the named approach, entering at the
// transition that matches the aircraft's position or on vectors to final
func (in *Interpreter) clearApproach(ac *aircraft.Aircraft, g *aircraft.Guidance, name string) error {
	if in.airport == nil {
		return invalid("no approaches loaded")
	}
	p, err := in.airport.Procedure(procedure.Approach, name)
	if err != nil {
		return invalid("%v", err)
	}
	at := ac.Perf()
	if hasArc(p) && !at.Capabilities.RNP {
		return invalid("%s requires RNP, %s is not equipped", p.Name, at.Designator)
	}

	legs, transition := p.ApproachSequence(ac.Position, ac.TrackDeg)
	g.Route.Bind(p, transition, legs, ac.Position)
	g.Lateral = aircraft.Lateral{Mode: aircraft.ModeProcedure, HeadingDeg: g.Lateral.HeadingDeg}
	g.Vertical.Mode = aircraft.ModeProcedure
	g.Speed.Mode = aircraft.ModeProcedure
	g.Flags.ClearedApproach = true
	g.Flags.ProcedureComplete = false
	return nil
}

func hasArc(p *procedure.Procedure) bool {
	check := func(legs []procedure.Leg) bool {
		for _, l := range legs {
			if l.Kind == procedure.LegRF {
				return true
			}
		}
		return false
	}
	if check(p.Common) {
		return true
	}
	for _, t := range p.EnrouteTransitions {
		if check(t.Legs) {
			return true
		}
	}
	return false
}

// directTo skips the route ahead to the named fix and flies direct to it
func directTo(ac *aircraft.Aircraft, g *aircraft.Guidance, fix string) error {
	r := &g.Route
	for i := r.Index; i < len(r.Legs); i++ {
		leg := r.Legs[i]
		if !leg.Kind.HasFix() || !strings.EqualFold(leg.Fix, fix) {
			continue
		}
		if !leg.Resolved {
			return invalid("fix %s cannot be resolved", fix)
		}
		leg.Kind = procedure.LegDF
		r.Legs[i] = leg
		r.Index = i
		r.LegEntry = ac.Position
		r.LegElapsed = 0
		r.Hold = aircraft.Hold{}
		g.Lateral = aircraft.Lateral{Mode: aircraft.ModeProcedure, HeadingDeg: g.Lateral.HeadingDeg}
		g.Flags.ProcedureComplete = false
		return nil
	}
	return invalid("%s is not on the route", fix)
}
