package procedure

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/yegors/tracon-sim/internal/physics"
)

// Fix is a named navigation point
type Fix struct {
	Name     string         `json:"name"`
	Position physics.LatLon `json:"position"`
}

// RunwayEnd is one landing/takeoff direction of a physical runway
type RunwayEnd struct {
	ID          string         `json:"id" yaml:"id"` // e.g. "27L"
	Threshold   physics.LatLon `json:"threshold" yaml:"threshold"`
	ElevationFt float64        `json:"elevation_ft" yaml:"elevation_ft"`
}

// Runway is a physical strip with two ends
type Runway struct {
	Ends [2]RunwayEnd `json:"ends"`
}

// Name returns the conventional "09R/27L" form
func (r *Runway) Name() string {
	return r.Ends[0].ID + "/" + r.Ends[1].ID
}

// LengthNM is the distance between the thresholds
func (r *Runway) LengthNM() float64 {
	return physics.DistanceNM(r.Ends[0].Threshold, r.Ends[1].Threshold)
}

// HeadingDeg returns the true heading when using the given end (0 or 1)
func (r *Runway) HeadingDeg(end int) float64 {
	return physics.BearingDeg(r.Ends[end].Threshold, r.Ends[1-end].Threshold)
}

// RunwayZone sizes the protected volume around a runway
type RunwayZone struct {
	ExtensionNM  float64 // beyond each threshold along the centreline
	HalfWidthNM  float64
	CeilingAGLFt float64
}

// InZone reports whether a position lies in the runway's protected volume: the
// strip itself extended by the zone length off both ends.
func (r *Runway) InZone(pos physics.LatLon, altFt float64, z RunwayZone) bool {
	elev := math.Max(r.Ends[0].ElevationFt, r.Ends[1].ElevationFt)
	if altFt > elev+z.CeilingAGLFt {
		return false
	}
	origin := r.Ends[0].Threshold
	course := r.HeadingDeg(0)
	along := physics.AlongTrackNM(origin, course, pos)
	if along < -z.ExtensionNM || along > r.LengthNM()+z.ExtensionNM {
		return false
	}
	return math.Abs(physics.CrossTrackNM(origin, course, pos)) <= z.HalfWidthNM
}

// Airport is the complete, linked reference data for one TRACON
type Airport struct {
	ICAO        string         `json:"icao"`
	Reference   physics.LatLon `json:"reference"`
	ElevationFt float64        `json:"elevation_ft"`
	MagVarDeg   float64        `json:"mag_var_deg"` // east positive

	Fixes      map[string]Fix        `json:"fixes"`
	Runways    []Runway              `json:"runways"`
	SIDs       map[string]*Procedure `json:"sids"`
	STARs      map[string]*Procedure `json:"stars"`
	Approaches map[string]*Procedure `json:"approaches"`
	Airspace   Airspace              `json:"airspace"`

	linked bool
}

// ThresholdFixName is the pseudo-fix name legs use for a runway threshold
func ThresholdFixName(runwayEnd string) string { return "RW" + runwayEnd }

// LookupFix resolves a fix or a runway threshold pseudo-fix
func (a *Airport) LookupFix(name string) (physics.LatLon, error) {
	if f, ok := a.Fixes[strings.ToUpper(name)]; ok {
		return f.Position, nil
	}
	if id, ok := strings.CutPrefix(strings.ToUpper(name), "RW"); ok {
		if rwy, end, ok := a.RunwayEnd(id); ok {
			return rwy.Ends[end].Threshold, nil
		}
	}
	return physics.LatLon{}, fmt.Errorf("%w: %s", ErrUnknownFix, name)
}

// RunwayEnd finds the runway and end index for a runway end id such as "27L"
func (a *Airport) RunwayEnd(id string) (*Runway, int, bool) {
	for i := range a.Runways {
		for e := range a.Runways[i].Ends {
			if strings.EqualFold(a.Runways[i].Ends[e].ID, id) {
				return &a.Runways[i], e, true
			}
		}
	}
	return nil, 0, false
}

// IsThreshold reports whether a fix name is a runway threshold pseudo-fix and
// returns that end's elevation
func (a *Airport) IsThreshold(fix string) (elevationFt float64, ok bool) {
	id, found := strings.CutPrefix(strings.ToUpper(fix), "RW")
	if !found {
		return 0, false
	}
	if _, isFix := a.Fixes[strings.ToUpper(fix)]; isFix {
		return 0, false
	}
	rwy, end, found := a.RunwayEnd(id)
	if !found {
		return 0, false
	}
	return rwy.Ends[end].ElevationFt, true
}

// Procedure looks up a procedure by kind and name
func (a *Airport) Procedure(kind Kind, name string) (*Procedure, error) {
	var set map[string]*Procedure
	switch kind {
	case SID:
		set = a.SIDs
	case STAR:
		set = a.STARs
	case Approach:
		set = a.Approaches
	}
	if p, ok := set[strings.ToUpper(name)]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s %s", ErrUnknownProcedure, kind, name)
}

// MagneticToTrue converts a magnetic heading to true using the airport variation
func (a *Airport) MagneticToTrue(hdg float64) float64 {
	return physics.NormalizeHeading(hdg + a.MagVarDeg)
}

// TrueToMagnetic is the inverse of MagneticToTrue
func (a *Airport) TrueToMagnetic(hdg float64) float64 {
	return physics.NormalizeHeading(hdg - a.MagVarDeg)
}

// Link resolves every fix reference in every procedure and converts published
// magnetic courses to true. It returns one error per unresolved reference;
// those legs are marked unresolved and the rest of the airport stays usable.
// Linking twice is a no-op.
func (a *Airport) Link() []error {
	if a.linked {
		return nil
	}
	a.linked = true

	var warnings []error
	for _, set := range []map[string]*Procedure{a.SIDs, a.STARs, a.Approaches} {
		names := make([]string, 0, len(set))
		for name := range set {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			p := set[name]
			if p.Kind == Approach && p.Runway != "" {
				if _, _, ok := a.RunwayEnd(p.Runway); !ok {
					warnings = append(warnings, fmt.Errorf("%w: approach %s runway %s", ErrUnknownFix, p.Name, p.Runway))
				}
			}
			a.linkLegs(p.Name, p.Common, &warnings)
			for _, t := range p.RunwayTransitions {
				a.linkLegs(p.Name+"."+t.Name, t.Legs, &warnings)
			}
			for _, t := range p.EnrouteTransitions {
				a.linkLegs(p.Name+"."+t.Name, t.Legs, &warnings)
			}
		}
	}
	return warnings
}

func (a *Airport) linkLegs(owner string, legs []Leg, warnings *[]error) {
	for i := range legs {
		leg := &legs[i]
		leg.Resolved = true
		if leg.Kind.HasFix() {
			pos, err := a.LookupFix(leg.Fix)
			if err != nil {
				*warnings = append(*warnings, fmt.Errorf("%s leg %d: %w", owner, i+1, err))
				leg.Resolved = false
			}
			leg.Position = pos
		}
		if leg.Center != "" {
			pos, err := a.LookupFix(leg.Center)
			if err != nil {
				*warnings = append(*warnings, fmt.Errorf("%s leg %d centre: %w", owner, i+1, err))
				leg.Resolved = false
			}
			leg.CenterPos = pos
			if leg.Resolved && leg.RadiusNM <= 0 {
				leg.RadiusNM = physics.DistanceNM(leg.CenterPos, leg.Position)
			}
		}
		if usesCourse(leg.Kind) {
			leg.Course = a.MagneticToTrue(leg.Course)
		}
	}
}

func usesCourse(k LegKind) bool {
	switch k {
	case LegIF, LegTF, LegDF, LegRF, LegAF:
		return false
	}
	return true
}

// Validate checks the airport's static geometry and procedures
func (a *Airport) Validate() error {
	var errs []error
	if a.ICAO == "" {
		errs = append(errs, errors.New("airport icao is required"))
	}
	if len(a.Runways) == 0 {
		errs = append(errs, errors.New("airport has no runways"))
	}
	if err := a.Airspace.Validate(); err != nil {
		errs = append(errs, err)
	}
	for _, set := range []map[string]*Procedure{a.SIDs, a.STARs, a.Approaches} {
		for _, p := range set {
			if err := p.Validate(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
