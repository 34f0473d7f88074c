package refdata

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yegors/tracon-sim/internal/physics"
	"github.com/yegors/tracon-sim/internal/procedure"
)

// airportFile is the on-disk airport layout. Courses are magnetic; the
// variation is computed from the world magnetic model at the reference point
// when the file does not give one.
type airportFile struct {
	ICAO        string                    `yaml:"icao"`
	Reference   physics.LatLon            `yaml:"reference"`
	ElevationFt float64                   `yaml:"elevation_ft"`
	MagVarDeg   *float64                  `yaml:"magvar_deg"`
	MagVarDate  string                    `yaml:"magvar_date"` // YYYY-MM-DD, defaults to today
	Fixes       map[string]physics.LatLon `yaml:"fixes"`
	Runways     []runwayFile              `yaml:"runways"`
	Airspace    airspaceFile              `yaml:"airspace"`
	SIDs        map[string]procedureFile  `yaml:"sids"`
	STARs       map[string]procedureFile  `yaml:"stars"`
	Approaches  map[string]procedureFile  `yaml:"approaches"`
}

type runwayFile struct {
	Ends [2]procedure.RunwayEnd `yaml:"ends"`
}

type polygonArea struct {
	Name      string           `yaml:"name"`
	FloorFt   float64          `yaml:"floor_ft"`
	CeilingFt float64          `yaml:"ceiling_ft"`
	Polygon   []physics.LatLon `yaml:"polygon"`
}

type airspaceFile struct {
	Center     *physics.LatLon `yaml:"center"` // defaults to the airport reference
	RadiusNM   float64         `yaml:"radius_nm"`
	FloorFt    float64         `yaml:"floor_ft"`
	CeilingFt  float64         `yaml:"ceiling_ft"`
	MSA        []polygonArea   `yaml:"msa"`
	Restricted []polygonArea   `yaml:"restricted"`
}

type procedureFile struct {
	Runway             string               `yaml:"runway"` // approaches
	TopAltitudeFt      float64              `yaml:"top_altitude_ft"`
	Common             []legFile            `yaml:"common"`
	RunwayTransitions  map[string][]legFile `yaml:"runway_transitions"`
	EnrouteTransitions map[string][]legFile `yaml:"transitions"`
}

type legFile struct {
	Kind         string  `yaml:"kind"`
	Fix          string  `yaml:"fix"`
	Course       float64 `yaml:"course"`
	DistanceNM   float64 `yaml:"distance_nm"`
	Center       string  `yaml:"center"`
	RadiusNM     float64 `yaml:"radius_nm"`
	Altitude     string  `yaml:"altitude"`
	Speed        string  `yaml:"speed"`
	Turn         string  `yaml:"turn"`
	Flyover      bool    `yaml:"flyover"`
	GlidePathDeg float64 `yaml:"glide_path_deg"`
}

func (f *airportFile) build() (*procedure.Airport, error) {
	ap := &procedure.Airport{
		ICAO:        strings.ToUpper(f.ICAO),
		Reference:   f.Reference,
		ElevationFt: f.ElevationFt,
		Fixes:       make(map[string]procedure.Fix, len(f.Fixes)),
		SIDs:        map[string]*procedure.Procedure{},
		STARs:       map[string]*procedure.Procedure{},
		Approaches:  map[string]*procedure.Procedure{},
	}

	if f.MagVarDeg != nil {
		ap.MagVarDeg = *f.MagVarDeg
	} else {
		date := time.Now().UTC()
		if f.MagVarDate != "" {
			d, err := time.Parse(time.DateOnly, f.MagVarDate)
			if err != nil {
				return nil, fmt.Errorf("invalid magvar_date: %w", err)
			}
			date = d
		}
		ap.MagVarDeg = physics.CalculateMagneticVariation(f.Reference.Lat, f.Reference.Lon, f.ElevationFt, date)
	}

	for name, pos := range f.Fixes {
		name = strings.ToUpper(name)
		ap.Fixes[name] = procedure.Fix{Name: name, Position: pos}
	}
	for _, r := range f.Runways {
		ap.Runways = append(ap.Runways, procedure.Runway{Ends: r.Ends})
	}

	ap.Airspace = procedure.Airspace{
		Center:    f.Reference,
		RadiusNM:  f.Airspace.RadiusNM,
		FloorFt:   f.Airspace.FloorFt,
		CeilingFt: f.Airspace.CeilingFt,
	}
	if f.Airspace.Center != nil {
		ap.Airspace.Center = *f.Airspace.Center
	}
	for _, c := range f.Airspace.MSA {
		ap.Airspace.MSA = append(ap.Airspace.MSA, procedure.MSACell{Name: c.Name, Polygon: c.Polygon, FloorFt: c.FloorFt})
	}
	for _, r := range f.Airspace.Restricted {
		ap.Airspace.Restricted = append(ap.Airspace.Restricted, procedure.RestrictedArea{
			Name: r.Name, Polygon: r.Polygon, FloorFt: r.FloorFt, CeilingFt: r.CeilingFt,
		})
	}

	var errs []error
	for _, set := range []struct {
		kind procedure.Kind
		in   map[string]procedureFile
		out  map[string]*procedure.Procedure
	}{
		{procedure.SID, f.SIDs, ap.SIDs},
		{procedure.STAR, f.STARs, ap.STARs},
		{procedure.Approach, f.Approaches, ap.Approaches},
	} {
		for name, pf := range set.in {
			p, err := pf.build(strings.ToUpper(name), set.kind)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			set.out[p.Name] = p
		}
	}
	return ap, errors.Join(errs...)
}

func (f procedureFile) build(name string, kind procedure.Kind) (*procedure.Procedure, error) {
	p := &procedure.Procedure{
		Name:          name,
		Kind:          kind,
		Runway:        f.Runway,
		TopAltitudeFt: f.TopAltitudeFt,
	}
	var err error
	if p.Common, err = buildLegs(name, f.Common); err != nil {
		return nil, err
	}
	if p.RunwayTransitions, err = buildTransitions(name, f.RunwayTransitions); err != nil {
		return nil, err
	}
	if p.EnrouteTransitions, err = buildTransitions(name, f.EnrouteTransitions); err != nil {
		return nil, err
	}
	return p, nil
}

func buildTransitions(owner string, in map[string][]legFile) (map[string]procedure.Transition, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]procedure.Transition, len(in))
	for name, legs := range in {
		name = strings.ToUpper(name)
		built, err := buildLegs(owner+"."+name, legs)
		if err != nil {
			return nil, err
		}
		out[name] = procedure.Transition{Name: name, Legs: built}
	}
	return out, nil
}

func buildLegs(owner string, in []legFile) ([]procedure.Leg, error) {
	legs := make([]procedure.Leg, 0, len(in))
	for i, lf := range in {
		leg, err := lf.build()
		if err != nil {
			return nil, fmt.Errorf("%s leg %d: %w", owner, i+1, err)
		}
		legs = append(legs, leg)
	}
	return legs, nil
}

func (lf legFile) build() (procedure.Leg, error) {
	kind, err := procedure.ParseLegKind(lf.Kind)
	if err != nil {
		return procedure.Leg{}, err
	}
	turn, err := procedure.ParseTurnDirection(lf.Turn)
	if err != nil {
		return procedure.Leg{}, err
	}
	alt, err := procedure.ParseConstraint(lf.Altitude)
	if err != nil {
		return procedure.Leg{}, fmt.Errorf("altitude: %w", err)
	}
	spd, err := procedure.ParseConstraint(lf.Speed)
	if err != nil {
		return procedure.Leg{}, fmt.Errorf("speed: %w", err)
	}
	return procedure.Leg{
		Kind:         kind,
		Fix:          strings.ToUpper(lf.Fix),
		Course:       lf.Course,
		DistanceNM:   lf.DistanceNM,
		Center:       strings.ToUpper(lf.Center),
		RadiusNM:     lf.RadiusNM,
		Altitude:     alt,
		Speed:        spd,
		Turn:         turn,
		Flyover:      lf.Flyover,
		GlidePathDeg: lf.GlidePathDeg,
	}, nil
}
