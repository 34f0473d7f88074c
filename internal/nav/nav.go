// Package nav is the per-aircraft guidance state machine. Each tick it decides,
// independently for the lateral, vertical and speed axes, whether the active
// procedure leg or the controller's manual target is authoritative, sequences
// legs as their termination conditions are met and writes the resulting
// targets for the integrator.
package nav

import (
	"math"

	"github.com/yegors/tracon-sim/internal/aircraft"
	"github.com/yegors/tracon-sim/internal/physics"
	"github.com/yegors/tracon-sim/internal/procedure"
	"github.com/yegors/tracon-sim/internal/weather"
)

// Env is the read-only world navigation consults
type Env struct {
	Airport *procedure.Airport
	Wind    weather.Provider
}

// Result reports what changed on the route this tick
type Result struct {
	Advanced   bool   // a leg was sequenced
	Completed  bool   // the last leg was sequenced
	Landed     bool   // the final approach leg ended at the threshold
	UnknownFix string // the active leg could not be flown; lateral reverted to heading hold
}

// Guidance limits
const (
	maxInterceptDeg   = 30   // cross-track correction clamp
	interceptGain     = 20   // degrees of correction per nm off course
	establishedNM     = 0.3  // intercept established tolerance
	maxLeadNM         = 5    // turn anticipation cap
	flyoverETASeconds = 2    // flyover legs sequence this close to the fix
	maxAnticipateBank = 25   // bank used for turn anticipation
	maxAnticipateRate = 3.0  // deg/s
	holdLegSeconds    = 60   // racetrack leg time when no distance is published
	holdFixNM         = 0.5  // hold fix passage tolerance
	altitudeTolFt     = 50   // altitude-terminated legs
	landingHeightFt   = 300  // at or below this height over the threshold counts as landed
	thresholdCrossFt  = 50   // glide path threshold crossing height
	approachSpeedCap  = 210  // cleared for approach, outside the final approach fix
	passedBehindNM    = 0.05 // fix counts as passed once this far behind
)

type guide struct {
	ac    *aircraft.Aircraft
	env   Env
	dt    float64
	wind  physics.Wind
	route *aircraft.Route
}

// Guide resolves all three axis targets for one tick. It mutates only the
// aircraft's guidance slots, its route progress and its Targets; kinematic
// state is left to the integrator.
func Guide(ac *aircraft.Aircraft, env Env, dt float64) Result {
	g := &guide{ac: ac, env: env, dt: dt, route: &ac.Nav.Route}
	if env.Wind != nil {
		g.wind = env.Wind.WindAt(ac.Position, ac.AltitudeFt)
	}

	var res Result
	if ac.Nav.Lateral.Mode == aircraft.ModeProcedure {
		res = g.lateralProcedure()
	} else {
		ac.Targets.HeadingDeg = ac.Nav.Lateral.HeadingDeg
		ac.Targets.Turn = ac.Nav.Lateral.Turn
	}

	ac.Targets.AltitudeFt, ac.Targets.PathFPM = g.verticalTarget()
	ac.Targets.IAS = g.speedTarget()
	g.route.LegElapsed += dt
	return res
}

// lateralProcedure evaluates the active leg's termination, advances at most
// one leg, and targets the heading of whatever leg is then active.
func (g *guide) lateralProcedure() Result {
	var res Result
	nav := &g.ac.Nav

	leg, ok := g.route.Active()
	if !ok {
		g.holdLastHeading()
		if len(g.route.Legs) > 0 {
			nav.Flags.ProcedureComplete = true
		}
		return res
	}
	if !leg.Resolved {
		g.revertToHeadingHold(leg, &res)
		return res
	}

	out := g.resolveLeg(leg)
	if out.complete {
		last := g.route.Index == len(g.route.Legs)-1
		g.route.Advance(g.ac.Position)
		res.Advanced = true
		if last {
			res.Completed = true
			nav.Flags.ProcedureComplete = true
			res.Landed = g.landed(leg)
		} else if next, ok := g.route.Active(); ok {
			if !next.Resolved {
				g.revertToHeadingHold(next, &res)
				return res
			}
			// the new leg steers this tick but is not sequenced until the next one
			out = g.resolveLeg(next)
		}
	}

	nav.Lateral.HeadingDeg = out.headingDeg
	nav.Lateral.Turn = out.turn
	nav.Flags.LastGoodHeading = out.headingDeg
	g.ac.Targets.HeadingDeg = out.headingDeg
	g.ac.Targets.Turn = out.turn
	return res
}

func (g *guide) holdLastHeading() {
	nav := &g.ac.Nav
	g.ac.Targets.HeadingDeg = nav.Lateral.HeadingDeg
	g.ac.Targets.Turn = procedure.TurnEither
}

func (g *guide) revertToHeadingHold(leg procedure.Leg, res *Result) {
	nav := &g.ac.Nav
	res.UnknownFix = leg.Fix
	if res.UnknownFix == "" {
		res.UnknownFix = leg.Center
	}
	nav.Lateral = aircraft.Lateral{Mode: aircraft.ModeManual, HeadingDeg: nav.Flags.LastGoodHeading}
	g.ac.Targets.HeadingDeg = nav.Lateral.HeadingDeg
	g.ac.Targets.Turn = procedure.TurnEither
}

// landed reports whether sequencing the final approach leg put the aircraft on the runway
func (g *guide) landed(leg procedure.Leg) bool {
	if g.route.Kind != procedure.Approach || !g.ac.Nav.Flags.ClearedApproach || g.env.Airport == nil {
		return false
	}
	elev, ok := g.env.Airport.IsThreshold(leg.Fix)
	return ok && g.ac.AltitudeFt-elev <= landingHeightFt
}

// previousFix is where the active leg starts from: the prior leg's fix when it
// has one, otherwise the position the leg was entered at
func (g *guide) previousFix() physics.LatLon {
	if i := g.route.Index - 1; i >= 0 && i < len(g.route.Legs) {
		prev := g.route.Legs[i]
		if prev.Kind.HasFix() && prev.Resolved {
			return prev.Position
		}
	}
	return g.route.LegEntry
}

// headingForTrack applies the wind correction angle for the current layer
func (g *guide) headingForTrack(track float64) float64 {
	tas := g.ac.TAS
	if tas <= 0 {
		tas = physics.IASToTAS(g.ac.IAS, g.ac.AltitudeFt)
	}
	return physics.NormalizeHeading(track + physics.WindCorrectionAngle(g.wind, track, tas))
}

// steerOnto returns the track that converges on the course line through origin
func (g *guide) steerOnto(origin physics.LatLon, course float64) float64 {
	xtk := physics.CrossTrackNM(origin, course, g.ac.Position)
	corr := clamp(xtk*interceptGain, -maxInterceptDeg, maxInterceptDeg)
	return physics.NormalizeHeading(course - corr)
}

// turnRadiusNM is the bank-limited turn radius at the current groundspeed
func (g *guide) turnRadiusNM() float64 {
	gs := g.ac.GS
	if gs <= 0 {
		gs = g.ac.TAS
	}
	bank := float64(maxAnticipateBank)
	if at := g.ac.Perf(); at != nil && at.Turn.MaxBankDeg > 0 {
		bank = math.Min(bank, at.Turn.MaxBankDeg)
	}
	rate := math.Min(physics.TurnRate(bank, gs), maxAnticipateRate)
	return physics.TurnRadiusNM(gs, rate)
}

// fixReached decides whether a fix-terminated leg has been sequenced. Fly-by
// legs sequence inside the turn anticipation distance for the turn onto the
// next leg; flyover legs only when over the fix. Both sequence once the fix is
// behind the aircraft along the inbound course.
func (g *guide) fixReached(leg procedure.Leg, inbound float64) bool {
	pos := g.ac.Position
	d := physics.DistanceNM(pos, leg.Position)
	if physics.AlongTrackNM(leg.Position, inbound, pos) > passedBehindNM {
		return true
	}
	if gs := g.ac.GS; gs > 0 && d/gs*3600 <= flyoverETASeconds {
		return true
	}
	if leg.Flyover {
		return false
	}
	return d <= g.turnLeadNM(leg, inbound)
}

// turnLeadNM is R·tan(Δ/2) for the course change onto the next leg
func (g *guide) turnLeadNM(leg procedure.Leg, inbound float64) float64 {
	next, ok := g.route.Next()
	if !ok {
		return 0
	}
	outbound, ok := courseFrom(next, leg.Position)
	if !ok {
		return 0
	}
	delta := math.Abs(physics.HeadingDifference(inbound, outbound))
	lead := g.turnRadiusNM() * math.Tan(delta*math.Pi/360)
	return math.Min(lead, maxLeadNM)
}

// courseFrom returns the initial course of leg when entered at from
func courseFrom(leg procedure.Leg, from physics.LatLon) (float64, bool) {
	switch leg.Kind {
	case procedure.LegIF, procedure.LegTF, procedure.LegDF:
		if !leg.Resolved || physics.DistanceNM(from, leg.Position) < 1e-6 {
			return 0, false
		}
		return physics.BearingDeg(from, leg.Position), true
	case procedure.LegRF, procedure.LegAF:
		if !leg.Resolved {
			return 0, false
		}
		return arcTangent(physics.BearingDeg(leg.CenterPos, from), leg.Turn), true
	case procedure.LegCF, procedure.LegFA, procedure.LegFC, procedure.LegCA, procedure.LegVA,
		procedure.LegCI, procedure.LegVI, procedure.LegFM, procedure.LegVM,
		procedure.LegHA, procedure.LegHF, procedure.LegHM:
		return leg.Course, true
	}
	return 0, false
}

// courseLine is the line an intercept leg captures
func courseLine(leg procedure.Leg) (origin physics.LatLon, course float64, ok bool) {
	switch leg.Kind {
	case procedure.LegCF, procedure.LegFA, procedure.LegFC, procedure.LegFM:
		return leg.Position, leg.Course, leg.Resolved
	}
	return physics.LatLon{}, 0, false
}

func arcTangent(radial float64, turn procedure.TurnDirection) float64 {
	if turn == procedure.TurnLeft {
		return physics.NormalizeHeading(radial - 90)
	}
	return physics.NormalizeHeading(radial + 90)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
