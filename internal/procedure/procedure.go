// Package procedure is the immutable procedure graph of one airport: fixes,
// runways, airspace geometry and the SID/STAR/approach leg sequences that
// aircraft fly. Once an Airport is linked nothing in it is modified again, and
// every aircraft flying a procedure shares the same legs.
package procedure

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/yegors/tracon-sim/internal/physics"
)

var (
	// ErrUnknownFix marks a reference to a fix that is not in the airport
	ErrUnknownFix = errors.New("unknown fix")
	// ErrUnknownProcedure marks a reference to a procedure or transition that does not exist
	ErrUnknownProcedure = errors.New("unknown procedure")
)

// Kind distinguishes the three procedure types
type Kind int

const (
	SID Kind = iota
	STAR
	Approach
)

func (k Kind) String() string {
	switch k {
	case SID:
		return "SID"
	case STAR:
		return "STAR"
	case Approach:
		return "approach"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Transition is a named branch of legs
type Transition struct {
	Name string `json:"name"`
	Legs []Leg  `json:"legs"`
}

// Procedure is a published SID, STAR or instrument approach.
//
// Legs are assembled from the common route plus one runway transition and one
// enroute transition:
//
//	SID:      runway transition, common, enroute transition
//	STAR:     enroute transition, common, runway transition
//	Approach: approach transition (from an IAF), common final segment
type Procedure struct {
	Name               string                `json:"name"`
	Kind               Kind                  `json:"kind"`
	Runway             string                `json:"runway,omitempty"` // approach runway
	Common             []Leg                 `json:"common"`
	RunwayTransitions  map[string]Transition `json:"runway_transitions,omitempty"`
	EnrouteTransitions map[string]Transition `json:"enroute_transitions,omitempty"`
	TopAltitudeFt      float64               `json:"top_altitude_ft,omitempty"` // SID top altitude
}

// Sequence returns the ordered legs for the given runway and enroute transition.
// An empty name skips that branch. The returned slice is a fresh copy.
func (p *Procedure) Sequence(runway, transition string) ([]Leg, error) {
	var rwy, enr []Leg
	if runway != "" && len(p.RunwayTransitions) > 0 {
		t, ok := p.RunwayTransitions[runway]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no runway transition %s", ErrUnknownProcedure, p.Name, runway)
		}
		rwy = t.Legs
	}
	if transition != "" {
		t, ok := p.EnrouteTransitions[transition]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no transition %s", ErrUnknownProcedure, p.Name, transition)
		}
		enr = t.Legs
	}

	var parts [][]Leg
	switch p.Kind {
	case SID:
		parts = [][]Leg{rwy, p.Common, enr}
	case STAR:
		parts = [][]Leg{enr, p.Common, rwy}
	case Approach:
		parts = [][]Leg{enr, p.Common}
	}
	return joinLegs(parts...), nil
}

// joinLegs concatenates leg slices. Where one branch ends on the fix the next
// begins with, the two legs are merged: the path of the earlier leg is kept when
// the later one is only an initial fix, and constraints carry over from either.
func joinLegs(parts ...[]Leg) []Leg {
	var out []Leg
	for _, part := range parts {
		for i, leg := range part {
			if i == 0 && len(out) > 0 && leg.Fix != "" && leg.Fix == out[len(out)-1].Fix {
				out[len(out)-1] = mergeLegs(out[len(out)-1], leg)
				continue
			}
			out = append(out, leg)
		}
	}
	return out
}

func mergeLegs(prev, next Leg) Leg {
	merged, other := next, prev
	if next.Kind == LegIF {
		merged, other = prev, next
		if next.Altitude.IsSet() {
			merged.Altitude = next.Altitude
		}
		if next.Speed.IsSet() {
			merged.Speed = next.Speed
		}
	}
	if !merged.Altitude.IsSet() {
		merged.Altitude = other.Altitude
	}
	if !merged.Speed.IsSet() {
		merged.Speed = other.Speed
	}
	merged.Flyover = prev.Flyover || next.Flyover
	return merged
}

// Approach entry selection limits
const (
	maxEntryDistanceNM = 30
	maxEntryBearingDeg = 60
)

// ApproachSequence returns the legs an aircraft at pos on trackDeg flies when
// cleared for this approach. When an approach transition begins at a fix ahead of
// the aircraft and closer than the start of the final segment, that transition
// is used. Otherwise the aircraft is assumed to be on vectors: the initial fix
// of the final segment is dropped and a heading-to-intercept leg on the current
// track is put in front of it.
func (p *Procedure) ApproachSequence(pos physics.LatLon, trackDeg float64) (legs []Leg, transition string) {
	finalStart := math.Inf(1)
	if len(p.Common) > 0 && p.Common[0].Resolved {
		finalStart = physics.DistanceNM(pos, p.Common[0].Position)
	}

	names := make([]string, 0, len(p.EnrouteTransitions))
	for name := range p.EnrouteTransitions {
		names = append(names, name)
	}
	sort.Strings(names)

	best, bestDist := "", math.Min(finalStart, maxEntryDistanceNM)
	for _, name := range names {
		t := p.EnrouteTransitions[name]
		if len(t.Legs) == 0 || !t.Legs[0].Resolved {
			continue
		}
		entry := t.Legs[0].Position
		d := physics.DistanceNM(pos, entry)
		ahead := math.Abs(physics.HeadingDifference(trackDeg, physics.BearingDeg(pos, entry))) <= maxEntryBearingDeg
		if ahead && d < bestDist {
			best, bestDist = name, d
		}
	}

	if best != "" {
		seq, _ := p.Sequence("", best)
		return seq, best
	}

	final := p.Common
	for len(final) > 1 && final[0].Kind == LegIF {
		final = final[1:]
	}
	intercept := Leg{Kind: LegVI, Course: trackDeg, Resolved: true}
	return joinLegs([]Leg{intercept}, final), ""
}

// Validate checks every leg in the procedure
func (p *Procedure) Validate() error {
	var errs []error
	check := func(branch string, legs []Leg) {
		for i, leg := range legs {
			if err := leg.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("%s %s leg %d: %w", p.Name, branch, i+1, err))
			}
		}
	}
	check("common", p.Common)
	for name, t := range p.RunwayTransitions {
		check("runway transition "+name, t.Legs)
	}
	for name, t := range p.EnrouteTransitions {
		check("transition "+name, t.Legs)
	}
	if p.Kind == Approach && len(p.Common) == 0 {
		errs = append(errs, fmt.Errorf("%s: approach has no final segment", p.Name))
	}
	return errors.Join(errs...)
}

// RouteLengthNM returns the along-route length of a leg sequence starting at from
func RouteLengthNM(from physics.LatLon, legs []Leg) float64 {
	total := 0.0
	prev := from
	for _, leg := range legs {
		if !leg.Kind.HasFix() || !leg.Resolved {
			continue
		}
		total += physics.DistanceNM(prev, leg.Position)
		prev = leg.Position
	}
	return total
}
