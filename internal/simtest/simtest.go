// Package simtest provides a small linked airport, a performance table and
// aircraft builders for tests across the simulation packages.
//
// KTST sits at 40N 75W with a single runway 09/27. Arrivals come from the
// north on the NRTH1 STAR to MERGE and fly the I27 ILS; departures fly the
// WEST1 SID out past WESTR. Positions are given in nm east/north of the
// airport reference.
package simtest

import (
	"fmt"
	"math"

	"github.com/yegors/tracon-sim/internal/aircraft"
	"github.com/yegors/tracon-sim/internal/perf"
	"github.com/yegors/tracon-sim/internal/physics"
	"github.com/yegors/tracon-sim/internal/procedure"
)

// Reference is the KTST airport reference point
var Reference = physics.LatLon{Lat: 40, Lon: -75}

// ElevationFt is the KTST field elevation
const ElevationFt = 100

// Offset returns the point eastNM east and northNM north of ref
func Offset(ref physics.LatLon, eastNM, northNM float64) physics.LatLon {
	return physics.LatLon{
		Lat: ref.Lat + northNM/60,
		Lon: ref.Lon + eastNM/(60*math.Cos(ref.Lat*math.Pi/180)),
	}
}

// At is Offset from the airport reference
func At(eastNM, northNM float64) physics.LatLon { return Offset(Reference, eastNM, northNM) }

func square(x0, y0, x1, y1 float64) procedure.Polygon {
	return procedure.Polygon{At(x0, y0), At(x1, y0), At(x1, y1), At(x0, y1)}
}

// Airport returns a freshly linked KTST
func Airport() *procedure.Airport {
	fixes := map[string]procedure.Fix{}
	for name, p := range map[string][2]float64{
		"NRTHR": {13, 36},
		"BRAVO": {13, 21},
		"MERGE": {13, 6},
		"INTRM": {13, 0},
		"FINAL": {6, 0},
		"WESTR": {-15, 0},
		"EXITW": {-45, 0},
	} {
		fixes[name] = procedure.Fix{Name: name, Position: At(p[0], p[1])}
	}

	ap := &procedure.Airport{
		ICAO:        "KTST",
		Reference:   Reference,
		ElevationFt: ElevationFt,
		Fixes:       fixes,
		Runways: []procedure.Runway{{Ends: [2]procedure.RunwayEnd{
			{ID: "09", Threshold: At(-1, 0), ElevationFt: ElevationFt},
			{ID: "27", Threshold: At(1, 0), ElevationFt: ElevationFt},
		}}},
		STARs: map[string]*procedure.Procedure{
			"NRTH1": {
				Name: "NRTH1",
				Kind: procedure.STAR,
				Common: []procedure.Leg{
					{Kind: procedure.LegTF, Fix: "BRAVO", Altitude: procedure.AtOrAboveValue(8000), Speed: procedure.AtOrBelowValue(250)},
					{Kind: procedure.LegTF, Fix: "MERGE", Altitude: procedure.AtValue(6000), Speed: procedure.AtOrBelowValue(220)},
				},
				EnrouteTransitions: map[string]procedure.Transition{
					"NRTHR": {Name: "NRTHR", Legs: []procedure.Leg{
						{Kind: procedure.LegIF, Fix: "NRTHR", Altitude: procedure.AtOrBelowValue(13000)},
						{Kind: procedure.LegTF, Fix: "BRAVO"},
					}},
				},
			},
		},
		Approaches: map[string]*procedure.Procedure{
			"I27": {
				Name:   "I27",
				Kind:   procedure.Approach,
				Runway: "27",
				Common: []procedure.Leg{
					{Kind: procedure.LegIF, Fix: "INTRM", Altitude: procedure.AtOrAboveValue(3000)},
					{Kind: procedure.LegCF, Fix: "FINAL", Course: 270, Altitude: procedure.AtValue(1800)},
					{Kind: procedure.LegCF, Fix: "RW27", Course: 270, GlidePathDeg: 3},
				},
				EnrouteTransitions: map[string]procedure.Transition{
					"MERGE": {Name: "MERGE", Legs: []procedure.Leg{
						{Kind: procedure.LegIF, Fix: "MERGE"},
						{Kind: procedure.LegTF, Fix: "INTRM"},
					}},
				},
			},
		},
		SIDs: map[string]*procedure.Procedure{
			"WEST1": {
				Name:          "WEST1",
				Kind:          procedure.SID,
				TopAltitudeFt: 10000,
				RunwayTransitions: map[string]procedure.Transition{
					"27": {Name: "27", Legs: []procedure.Leg{
						{Kind: procedure.LegVA, Course: 270, Altitude: procedure.AtOrAboveValue(1500)},
					}},
				},
				Common: []procedure.Leg{
					{Kind: procedure.LegDF, Fix: "WESTR", Altitude: procedure.AtOrAboveValue(5000)},
					{Kind: procedure.LegTF, Fix: "EXITW"},
				},
			},
		},
		Airspace: procedure.Airspace{
			Center:    Reference,
			RadiusNM:  40,
			FloorFt:   0,
			CeilingFt: 17000,
			MSA: []procedure.MSACell{
				{Name: "EAST", Polygon: square(0, -40, 40, 40), FloorFt: 1000},
				{Name: "WEST", Polygon: square(-40, -40, 0, 40), FloorFt: 2000},
			},
			Restricted: []procedure.RestrictedArea{
				{Name: "R-1", Polygon: square(-10, -15, -5, -10), FloorFt: 0, CeilingFt: 8000},
			},
		},
	}
	if errs := ap.Link(); len(errs) > 0 {
		panic(fmt.Sprintf("simtest airport does not link: %v", errs))
	}
	return ap
}

func jet(designator string, wake perf.WakeCategory) *perf.AircraftType {
	at := &perf.AircraftType{Designator: designator, Wake: wake, CeilingFt: 41000}
	at.Speed.StallClean = 140
	at.Speed.StallFlaps = 110
	at.Speed.Approach = 150
	at.Speed.VMO = 340
	at.Speed.MMO = 0.82
	at.Speed.CruiseIAS = 290
	at.Speed.CruiseMach = 0.78
	at.Speed.Departure = 200
	at.Climb = []perf.ClimbBand{{AltitudeFt: 0, RateFPM: 3000}, {AltitudeFt: 20000, RateFPM: 2000}, {AltitudeFt: 35000, RateFPM: 1000}}
	at.Descent.StandardFPM = 1800
	at.Descent.MaxFPM = 3500
	at.Accel.AccelerateKtsPerSec = 2
	at.Accel.DecelerateKtsPerSec = 1.5
	at.Turn.MaxBankDeg = 25
	at.Capabilities.RNAV, at.Capabilities.ILS = true, true
	return at
}

// Types returns one type per wake category: C208 (L), B738 (M), B744 (H), A388 (J)
func Types() []*perf.AircraftType {
	c208 := jet("C208", perf.WakeLight)
	c208.CeilingFt = 25000
	c208.Speed.StallClean, c208.Speed.StallFlaps = 70, 60
	c208.Speed.Approach = 90
	c208.Speed.VMO, c208.Speed.MMO = 175, 0
	c208.Speed.CruiseIAS = 160
	c208.Speed.CruiseMach = 0
	c208.Speed.MaxBelow10k = 175
	c208.Speed.Departure = 110
	c208.Climb = []perf.ClimbBand{{AltitudeFt: 0, RateFPM: 1000}, {AltitudeFt: 15000, RateFPM: 500}}
	c208.Descent.StandardFPM, c208.Descent.MaxFPM = 800, 1500
	c208.Accel.AccelerateKtsPerSec, c208.Accel.DecelerateKtsPerSec = 1, 1

	b744 := jet("B744", perf.WakeHeavy)
	b744.Speed.StallClean, b744.Speed.StallFlaps = 150, 120
	b744.Speed.VMO, b744.Speed.MMO = 365, 0.92

	a388 := jet("A388", perf.WakeSuper)
	a388.Speed.StallClean, a388.Speed.StallFlaps = 150, 115

	return []*perf.AircraftType{c208, jet("B738", perf.WakeMedium), b744, a388}
}

// Table returns the validated performance table of Types
func Table() *perf.Table {
	t, err := perf.NewTable(Types())
	if err != nil {
		panic(err)
	}
	return t
}

// Type looks a designator up in a fresh Table
func Type(designator string) *perf.AircraftType {
	at, err := Table().Lookup(designator)
	if err != nil {
		panic(err)
	}
	return at
}

// Flying returns an active aircraft in level flight with all three axes in
// manual mode holding the given state
func Flying(id, designator string, pos physics.LatLon, altFt, hdg, ias float64) *aircraft.Aircraft {
	return FlyingType(id, Type(designator), pos, altFt, hdg, ias)
}

// FlyingType is Flying for an aircraft type outside the test table
func FlyingType(id string, at *perf.AircraftType, pos physics.LatLon, altFt, hdg, ias float64) *aircraft.Aircraft {
	ac := aircraft.New(id, id, at, aircraft.Arrival)
	ac.Position = pos
	ac.AltitudeFt = altFt
	ac.HeadingDeg, ac.TrackDeg = hdg, hdg
	ac.IAS = ias
	ac.TAS = physics.IASToTAS(ias, altFt)
	ac.GS = ac.TAS
	ac.Nav.Lateral = aircraft.Lateral{Mode: aircraft.ModeManual, HeadingDeg: hdg}
	ac.Nav.Vertical = aircraft.Vertical{Mode: aircraft.ModeManual, AltitudeFt: altFt}
	ac.Nav.Speed = aircraft.Speed{Mode: aircraft.ModeManual, IAS: ias}
	ac.Nav.Flags.LastGoodHeading = hdg
	ac.Targets = aircraft.Targets{HeadingDeg: hdg, AltitudeFt: altFt, IAS: ias}
	return ac
}
