package nav

import (
	"math"
	"testing"

	"github.com/yegors/tracon-sim/internal/aircraft"
	"github.com/yegors/tracon-sim/internal/dynamics"
	"github.com/yegors/tracon-sim/internal/physics"
	"github.com/yegors/tracon-sim/internal/procedure"
	"github.com/yegors/tracon-sim/internal/simtest"
	"github.com/yegors/tracon-sim/internal/weather"
)

func testEnv() Env {
	return Env{Airport: simtest.Airport(), Wind: weather.Calm()}
}

func onProcedure(ac *aircraft.Aircraft) {
	ac.Nav.Lateral.Mode = aircraft.ModeProcedure
	ac.Nav.Vertical.Mode = aircraft.ModeProcedure
	ac.Nav.Speed.Mode = aircraft.ModeProcedure
}

func bindLegs(ac *aircraft.Aircraft, legs ...procedure.Leg) {
	ac.Nav.Route = aircraft.Route{Kind: procedure.STAR, Legs: legs, LegEntry: ac.Position}
	ac.Nav.Lateral.Mode = aircraft.ModeProcedure
}

// fly runs guidance and dynamics at 1 s ticks until done returns true
func fly(ac *aircraft.Aircraft, e Env, seconds float64, done func(Result) bool) (Result, float64, bool) {
	const dt = 1.0
	for t := 0.0; t < seconds; t += dt {
		res := Guide(ac, e, dt)
		if done != nil && done(res) {
			return res, t, true
		}
		dynamics.Step(ac, e.Wind.WindAt(ac.Position, ac.AltitudeFt), dt)
	}
	return Result{}, seconds, false
}

func TestWindowTarget(t *testing.T) {
	leg := func(c procedure.Constraint) procedure.Leg { return procedure.Leg{Kind: procedure.LegTF, Altitude: c} }
	tests := []struct {
		name             string
		legs             []procedure.Leg
		current, desired float64
		want             float64
	}{
		{"no constraints", nil, 8000, 100, 100},
		{"at or above while descending", []procedure.Leg{leg(procedure.AtOrAboveValue(5000))}, 8000, 100, 5000},
		{"at or below while climbing", []procedure.Leg{leg(procedure.AtOrBelowValue(7000))}, 2000, 10000, 7000},
		{"window stops at conflicting constraint",
			[]procedure.Leg{leg(procedure.AtOrAboveValue(8000)), leg(procedure.AtValue(6000))}, 11000, 100, 8000},
		{"window narrows",
			[]procedure.Leg{leg(procedure.AtOrBelowValue(13000)), leg(procedure.AtValue(6000))}, 11000, 100, 6000},
		{"at stops the scan",
			[]procedure.Leg{leg(procedure.AtValue(9000)), leg(procedure.AtOrBelowValue(4000))}, 11000, 100, 9000},
		{"leading between outside band", []procedure.Leg{leg(procedure.BetweenValues(4000, 6000))}, 9000, 100, 5000},
		{"leading between inside band", []procedure.Leg{leg(procedure.BetweenValues(4000, 6000))}, 4500, 100, 4500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WindowTarget(tt.legs, tt.current, tt.desired); got != tt.want {
				t.Errorf("WindowTarget = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDescendViaStar(t *testing.T) {
	e := testEnv()
	star, _ := e.Airport.Procedure(procedure.STAR, "NRTH1")
	legs, err := star.Sequence("", "NRTHR")
	if err != nil {
		t.Fatal(err)
	}

	ac := simtest.Flying("AAL1", "B738", simtest.At(13, 36), 11000, 180, 250)
	onProcedure(ac)
	ac.Nav.Route.Bind(star, "NRTHR", legs, ac.Position)

	merge := e.Airport.Fixes["MERGE"].Position
	lastIndex := 0
	_, _, done := fly(ac, e, 900, func(res Result) bool {
		if ac.Nav.Route.Index < lastIndex {
			t.Fatalf("route index went backwards: %d -> %d", lastIndex, ac.Nav.Route.Index)
		}
		if res.Advanced && lastIndex == 1 {
			// just sequenced BRAVO
			if ac.AltitudeFt < 8000-altitudeTolFt {
				t.Errorf("BRAVO crossed at %.0f ft, constraint 8000+", ac.AltitudeFt)
			}
		}
		lastIndex = ac.Nav.Route.Index
		return res.Completed
	})
	if !done {
		t.Fatalf("STAR not completed, route index %d at %v", ac.Nav.Route.Index, ac.Position)
	}
	if d := physics.DistanceNM(ac.Position, merge); d > 0.5 {
		t.Errorf("completed %.2f nm from MERGE", d)
	}
	if math.Abs(ac.AltitudeFt-6000) > 100 {
		t.Errorf("altitude at MERGE = %.0f, want 6000", ac.AltitudeFt)
	}
	if xtk := physics.CrossTrackNM(merge, 180, ac.Position); math.Abs(xtk) > 0.2 {
		t.Errorf("cross-track at MERGE = %.2f nm", xtk)
	}
	if !ac.Nav.Flags.ProcedureComplete {
		t.Errorf("procedure complete flag not set")
	}

	// exhausted: every axis holds its last target
	hdg, alt := ac.Nav.Lateral.HeadingDeg, ac.Nav.Vertical.AltitudeFt
	Guide(ac, e, 1)
	if ac.Targets.HeadingDeg != hdg || ac.Targets.AltitudeFt != alt {
		t.Errorf("targets changed after completion: %+v", ac.Targets)
	}
}

func TestClimbViaSid(t *testing.T) {
	e := testEnv()
	sid, _ := e.Airport.Procedure(procedure.SID, "WEST1")
	legs, err := sid.Sequence("27", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(legs) != 3 || legs[0].Kind != procedure.LegVA {
		t.Fatalf("legs = %v", legs)
	}

	ac := simtest.Flying("DAL2", "B738", simtest.At(1, 0), simtest.ElevationFt, 270, 200)
	ac.Category = aircraft.Departure
	onProcedure(ac)
	ac.Nav.Route.Bind(sid, "", legs, ac.Position)

	res, _, ok := fly(ac, e, 120, func(r Result) bool { return r.Advanced })
	if !ok || res.Completed {
		t.Fatalf("VA leg did not terminate")
	}
	if ac.AltitudeFt < 1500-altitudeTolFt || ac.AltitudeFt > 1700 {
		t.Errorf("VA terminated at %.0f ft, want 1500", ac.AltitudeFt)
	}
	if ac.Targets.AltitudeFt != 10000 {
		t.Errorf("climb target = %.0f, want the SID top altitude", ac.Targets.AltitudeFt)
	}

	westr := e.Airport.Fixes["WESTR"].Position
	_, _, ok = fly(ac, e, 600, func(r Result) bool { return r.Advanced })
	if !ok {
		t.Fatalf("WESTR not sequenced")
	}
	if d := physics.DistanceNM(ac.Position, westr); d > 0.5 {
		t.Errorf("WESTR sequenced %.2f nm away", d)
	}
	if ac.AltitudeFt < 5000-altitudeTolFt {
		t.Errorf("WESTR crossed at %.0f ft, constraint 5000+", ac.AltitudeFt)
	}
}

func TestTurnAnticipation(t *testing.T) {
	a := simtest.At(0, 0)
	b := simtest.At(20, 0)
	for _, flyover := range []bool{false, true} {
		name := "fly-by"
		if flyover {
			name = "flyover"
		}
		t.Run(name, func(t *testing.T) {
			e := testEnv()
			ac := simtest.Flying("N1", "B738", simtest.At(0, 20), 5000, 180, 250)
			bindLegs(ac,
				procedure.Leg{Kind: procedure.LegTF, Fix: "A", Position: a, Flyover: flyover, Resolved: true},
				procedure.Leg{Kind: procedure.LegTF, Fix: "B", Position: b, Resolved: true},
			)
			_, _, ok := fly(ac, e, 600, func(r Result) bool { return r.Advanced })
			if !ok {
				t.Fatal("A never sequenced")
			}
			d := physics.DistanceNM(ac.Position, a)
			if flyover {
				if d > 0.3 {
					t.Errorf("flyover sequenced %.2f nm before the fix", d)
				}
				return
			}
			radius := physics.TurnRadiusNM(ac.GS, math.Min(physics.TurnRate(25, ac.GS), 3))
			// 90 degree turn: lead = R·tan(45°) = R
			if math.Abs(d-radius) > 0.15 {
				t.Errorf("fly-by sequenced %.2f nm before the fix, want %.2f", d, radius)
			}
		})
	}
}

func TestVectorsToInterceptFinal(t *testing.T) {
	e := testEnv()
	ils, _ := e.Airport.Procedure(procedure.Approach, "I27")
	ac := simtest.Flying("UAL3", "B738", simtest.At(20, -6), 5000, 300, 210)
	legs, trans := ils.ApproachSequence(ac.Position, ac.TrackDeg)
	if trans != "" || legs[0].Kind != procedure.LegVI {
		t.Fatalf("expected vectors to final, got %q %v", trans, legs)
	}
	onProcedure(ac)
	ac.Nav.Vertical.Mode = aircraft.ModeManual
	ac.Nav.Flags.ClearedApproach = true
	ac.Nav.Route.Bind(ils, trans, legs, ac.Position)

	final := e.Airport.Fixes["FINAL"].Position
	_, _, ok := fly(ac, e, 400, func(r Result) bool { return r.Advanced })
	if !ok {
		t.Fatal("never established")
	}
	if xtk := physics.CrossTrackNM(final, 270, ac.Position); math.Abs(xtk) > establishedNM+0.05 {
		t.Errorf("established %.2f nm off the final course", xtk)
	}

	_, _, ok = fly(ac, e, 400, func(r Result) bool { return r.Advanced })
	if !ok {
		t.Fatal("FINAL never sequenced")
	}
	if xtk := physics.CrossTrackNM(final, 270, ac.Position); math.Abs(xtk) > 0.1 {
		t.Errorf("cross-track at FINAL = %.2f nm", xtk)
	}
}

func TestHolds(t *testing.T) {
	bravo := simtest.At(13, 21)
	tests := []struct {
		kind      procedure.LegKind
		completes bool
	}{
		{procedure.LegHF, true},
		{procedure.LegHM, false},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			e := testEnv()
			ac := simtest.Flying("N2", "B738", simtest.At(13, 31), 6000, 180, 220)
			bindLegs(ac,
				procedure.Leg{Kind: tt.kind, Fix: "BRAVO", Position: bravo, Course: 180, Turn: procedure.TurnRight, Resolved: true},
				procedure.Leg{Kind: procedure.LegTF, Fix: "MERGE", Position: simtest.At(13, 6), Resolved: true},
			)
			_, elapsed, ok := fly(ac, e, 900, func(r Result) bool { return r.Advanced })
			if ok != tt.completes {
				t.Fatalf("completed = %v, want %v (phase %d)", ok, tt.completes, ac.Nav.Route.Hold.Phase)
			}
			if !tt.completes {
				return
			}
			// direct to the fix, a minute outbound, two turns and back inbound
			if elapsed < 240 {
				t.Errorf("hold finished after only %.0f s", elapsed)
			}
			if d := physics.DistanceNM(ac.Position, bravo); d > 0.6 {
				t.Errorf("hold finished %.2f nm from the fix", d)
			}
		})
	}
}

func TestHoldToAltitude(t *testing.T) {
	e := testEnv()
	bravo := simtest.At(13, 21)
	ac := simtest.Flying("N3", "B738", simtest.At(13, 31), 9000, 180, 220)
	bindLegs(ac,
		procedure.Leg{Kind: procedure.LegHA, Fix: "BRAVO", Position: bravo, Course: 180, Altitude: procedure.AtValue(7000), Resolved: true},
		procedure.Leg{Kind: procedure.LegTF, Fix: "MERGE", Position: simtest.At(13, 6), Resolved: true},
	)
	ac.Nav.Vertical = aircraft.Vertical{Mode: aircraft.ModeProcedure}

	_, _, ok := fly(ac, e, 1500, func(r Result) bool { return r.Advanced })
	if !ok {
		t.Fatal("HA never completed")
	}
	if math.Abs(ac.AltitudeFt-7000) > altitudeTolFt {
		t.Errorf("HA completed at %.0f ft", ac.AltitudeFt)
	}
}

func TestRadiusToFix(t *testing.T) {
	e := testEnv()
	center := simtest.At(0, 0)
	end := simtest.At(5, 0)
	ac := simtest.Flying("N4", "B738", simtest.At(0, 5), 3000, 90, 200)
	bindLegs(ac, procedure.Leg{
		Kind: procedure.LegRF, Fix: "ARCE", Position: end,
		CenterPos: center, RadiusNM: 5, Turn: procedure.TurnRight, Resolved: true,
	})

	maxDev := 0.0
	_, _, ok := fly(ac, e, 400, func(r Result) bool {
		maxDev = math.Max(maxDev, math.Abs(physics.DistanceNM(center, ac.Position)-5))
		return r.Completed
	})
	if !ok {
		t.Fatal("RF leg never completed")
	}
	if maxDev > 0.5 {
		t.Errorf("strayed %.2f nm from the arc", maxDev)
	}
	if d := physics.DistanceNM(ac.Position, end); d > 0.5 {
		t.Errorf("RF completed %.2f nm from its fix", d)
	}
}

func TestUnknownFixRevertsToHeadingHold(t *testing.T) {
	e := testEnv()
	ac := simtest.Flying("N5", "B738", simtest.At(0, 10), 5000, 123, 250)
	bindLegs(ac, procedure.Leg{Kind: procedure.LegTF, Fix: "GHOST"})

	res := Guide(ac, e, 1)
	if res.UnknownFix != "GHOST" {
		t.Errorf("UnknownFix = %q", res.UnknownFix)
	}
	if ac.Nav.Lateral.Mode != aircraft.ModeManual || ac.Nav.Lateral.HeadingDeg != 123 {
		t.Errorf("lateral = %+v, want heading hold on 123", ac.Nav.Lateral)
	}
	if ac.Targets.HeadingDeg != 123 {
		t.Errorf("target heading = %.0f", ac.Targets.HeadingDeg)
	}
}

func TestAxesAreIndependent(t *testing.T) {
	e := testEnv()
	star, _ := e.Airport.Procedure(procedure.STAR, "NRTH1")
	legs, _ := star.Sequence("", "NRTHR")

	ac := simtest.Flying("N6", "B738", simtest.At(13, 30), 11000, 90, 250)
	ac.Nav.Route.Bind(star, "NRTHR", legs, ac.Position)
	ac.Nav.Route.Index = 1
	ac.Nav.Vertical.Mode = aircraft.ModeProcedure // lateral stays on vectors

	fly(ac, e, 60, nil)
	if ac.Nav.Route.Index != 1 {
		t.Errorf("route advanced to %d while on vectors", ac.Nav.Route.Index)
	}
	if ac.Targets.HeadingDeg != 90 {
		t.Errorf("heading target = %.0f, want the assigned 090", ac.Targets.HeadingDeg)
	}
	if ac.Targets.AltitudeFt != 8000 {
		t.Errorf("altitude target = %.0f, want the procedure 8000", ac.Targets.AltitudeFt)
	}
	if ac.AltitudeFt >= 11000 {
		t.Errorf("aircraft did not descend via while on vectors")
	}
}

func TestSpeedSchedule(t *testing.T) {
	e := testEnv()
	tests := []struct {
		name  string
		alt   float64
		leg   procedure.Leg
		setup func(*aircraft.Aircraft)
		want  float64
	}{
		{"below 10000", 8000, procedure.Leg{Kind: procedure.LegTF, Fix: "X", Resolved: true}, nil, 250},
		{"leg constraint", 8000, procedure.Leg{Kind: procedure.LegTF, Fix: "X", Speed: procedure.AtOrBelowValue(220), Resolved: true}, nil, 220},
		{"cleared approach", 4000, procedure.Leg{Kind: procedure.LegCF, Fix: "X", Course: 270, Resolved: true},
			func(ac *aircraft.Aircraft) { ac.Nav.Flags.ClearedApproach = true }, approachSpeedCap},
		{"final approach", 1500, procedure.Leg{Kind: procedure.LegCF, Fix: "RW27", Course: 270, GlidePathDeg: 3, Resolved: true},
			func(ac *aircraft.Aircraft) { ac.Nav.Flags.ClearedApproach = true }, 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ac := simtest.Flying("N7", "B738", simtest.At(20, 0), tt.alt, 270, 230)
			tt.leg.Position = simtest.At(1, 0)
			bindLegs(ac, tt.leg)
			ac.Nav.Speed.Mode = aircraft.ModeProcedure
			if tt.setup != nil {
				tt.setup(ac)
			}
			Guide(ac, e, 1)
			if ac.Targets.IAS != tt.want {
				t.Errorf("speed target = %.0f, want %.0f", ac.Targets.IAS, tt.want)
			}
		})
	}
}
