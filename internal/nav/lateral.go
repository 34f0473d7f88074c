package nav

import (
	"math"

	"github.com/yegors/tracon-sim/internal/aircraft"
	"github.com/yegors/tracon-sim/internal/physics"
	"github.com/yegors/tracon-sim/internal/procedure"
)

// lateralTarget is what a leg resolver produces
type lateralTarget struct {
	headingDeg float64
	turn       procedure.TurnDirection
	complete   bool
}

// resolveLeg dispatches to the resolver for the leg's path terminator
func (g *guide) resolveLeg(leg procedure.Leg) lateralTarget {
	switch leg.Kind {
	case procedure.LegIF, procedure.LegDF:
		return g.directToFix(leg)
	case procedure.LegTF:
		return g.trackToFix(leg)
	case procedure.LegCF:
		return g.courseToFix(leg)
	case procedure.LegFA:
		return g.courseFromFixToAltitude(leg)
	case procedure.LegFC:
		return g.courseFromFixForDistance(leg)
	case procedure.LegCA:
		return g.courseToAltitude(leg)
	case procedure.LegVA:
		return g.headingToAltitude(leg)
	case procedure.LegCI:
		return g.courseToIntercept(leg)
	case procedure.LegVI:
		return g.headingToIntercept(leg)
	case procedure.LegFM:
		return g.courseFromFixToManual(leg)
	case procedure.LegVM:
		return g.headingToManual(leg)
	case procedure.LegHA, procedure.LegHF, procedure.LegHM:
		return g.hold(leg)
	case procedure.LegRF, procedure.LegAF:
		return g.arc(leg)
	}
	return lateralTarget{headingDeg: g.ac.HeadingDeg}
}

func (g *guide) directToFix(leg procedure.Leg) lateralTarget {
	entry := g.route.LegEntry
	inbound := physics.BearingDeg(entry, leg.Position)
	if physics.DistanceNM(entry, leg.Position) < 0.1 {
		inbound = g.ac.TrackDeg
	}
	track := physics.BearingDeg(g.ac.Position, leg.Position)
	return lateralTarget{
		headingDeg: g.headingForTrack(track),
		turn:       leg.Turn,
		complete:   g.fixReached(leg, inbound),
	}
}

func (g *guide) trackToFix(leg procedure.Leg) lateralTarget {
	from := g.previousFix()
	if physics.DistanceNM(from, leg.Position) < 0.1 {
		return g.directToFix(leg)
	}
	// course at the fix end of the great circle
	course := physics.NormalizeHeading(physics.BearingDeg(leg.Position, from) + 180)
	track := g.steerOnto(leg.Position, course)
	return lateralTarget{
		headingDeg: g.headingForTrack(track),
		turn:       leg.Turn,
		complete:   g.fixReached(leg, course),
	}
}

func (g *guide) courseToFix(leg procedure.Leg) lateralTarget {
	track := g.steerOnto(leg.Position, leg.Course)
	return lateralTarget{
		headingDeg: g.headingForTrack(track),
		turn:       leg.Turn,
		complete:   g.fixReached(leg, leg.Course),
	}
}

func (g *guide) courseFromFixToAltitude(leg procedure.Leg) lateralTarget {
	track := g.steerOnto(leg.Position, leg.Course)
	return lateralTarget{
		headingDeg: g.headingForTrack(track),
		turn:       leg.Turn,
		complete:   g.altitudeReached(leg),
	}
}

func (g *guide) courseFromFixForDistance(leg procedure.Leg) lateralTarget {
	track := g.steerOnto(leg.Position, leg.Course)
	along := physics.AlongTrackNM(leg.Position, leg.Course, g.ac.Position)
	return lateralTarget{
		headingDeg: g.headingForTrack(track),
		turn:       leg.Turn,
		complete:   along >= leg.DistanceNM,
	}
}

func (g *guide) courseToAltitude(leg procedure.Leg) lateralTarget {
	return lateralTarget{
		headingDeg: g.headingForTrack(leg.Course),
		turn:       leg.Turn,
		complete:   g.altitudeReached(leg),
	}
}

func (g *guide) headingToAltitude(leg procedure.Leg) lateralTarget {
	return lateralTarget{
		headingDeg: leg.Course,
		turn:       leg.Turn,
		complete:   g.altitudeReached(leg),
	}
}

func (g *guide) courseToIntercept(leg procedure.Leg) lateralTarget {
	return lateralTarget{
		headingDeg: g.headingForTrack(leg.Course),
		turn:       leg.Turn,
		complete:   g.established(),
	}
}

func (g *guide) headingToIntercept(leg procedure.Leg) lateralTarget {
	return lateralTarget{
		headingDeg: leg.Course,
		turn:       leg.Turn,
		complete:   g.established(),
	}
}

func (g *guide) courseFromFixToManual(leg procedure.Leg) lateralTarget {
	track := g.steerOnto(leg.Position, leg.Course)
	return lateralTarget{headingDeg: g.headingForTrack(track), turn: leg.Turn}
}

func (g *guide) headingToManual(leg procedure.Leg) lateralTarget {
	return lateralTarget{headingDeg: leg.Course, turn: leg.Turn}
}

// altitudeReached is the termination of FA, CA and VA legs: the first time the
// altitude constraint is satisfied
func (g *guide) altitudeReached(leg procedure.Leg) bool {
	return leg.Altitude.Satisfied(g.ac.AltitudeFt, altitudeTolFt)
}

// established reports whether an intercept leg has captured the next leg's
// course: within tolerance of the line, or across it since the leg began. The
// tolerance widens with the turn needed to roll out on the course.
func (g *guide) established() bool {
	next, ok := g.route.Next()
	if !ok {
		return true
	}
	origin, course, ok := courseLine(next)
	if !ok {
		return true
	}
	pos := g.ac.Position
	xtk := physics.CrossTrackNM(origin, course, pos)
	entry := physics.CrossTrackNM(origin, course, g.route.LegEntry)
	if xtk*entry < 0 {
		return true
	}

	delta := math.Abs(physics.HeadingDifference(g.ac.TrackDeg, course)) * math.Pi / 180
	rollout := g.turnRadiusNM() * (1 - math.Cos(math.Min(delta, math.Pi/2)))
	return math.Abs(xtk) <= math.Max(establishedNM, math.Min(rollout, 2))
}

// hold flies a racetrack at the leg fix: entry direct to the fix, then
// outbound and inbound legs joined by turns in the published direction.
func (g *guide) hold(leg procedure.Leg) lateralTarget {
	h := &g.route.Hold
	inbound := leg.Course
	outbound := physics.NormalizeHeading(inbound + 180)
	turn := leg.Turn
	if turn == procedure.TurnEither {
		turn = procedure.TurnRight
	}
	legSeconds := float64(holdLegSeconds)
	if leg.DistanceNM > 0 && g.ac.GS > 0 {
		legSeconds = leg.DistanceNM / g.ac.GS * 3600
	}

	pos := g.ac.Position
	atFix := func(course float64) bool {
		return physics.DistanceNM(pos, leg.Position) <= holdFixNM ||
			physics.AlongTrackNM(leg.Position, course, pos) > passedBehindNM
	}

	var out lateralTarget
	switch h.Phase {
	case aircraft.HoldEntry:
		entryCourse := physics.BearingDeg(g.route.LegEntry, leg.Position)
		out = lateralTarget{headingDeg: g.headingForTrack(physics.BearingDeg(pos, leg.Position))}
		if atFix(entryCourse) {
			h.Phase, h.Elapsed = aircraft.HoldOutbound, 0
			out.complete = g.holdDone(leg)
		}

	case aircraft.HoldOutbound:
		out = lateralTarget{headingDeg: g.headingForTrack(outbound), turn: turn}
		// outbound timing starts once rolled out
		if math.Abs(physics.HeadingDifference(g.ac.TrackDeg, outbound)) <= 10 {
			h.Elapsed += g.dt
		}
		if h.Elapsed >= legSeconds {
			h.Phase, h.Elapsed = aircraft.HoldInbound, 0
		}

	case aircraft.HoldInbound:
		out = lateralTarget{headingDeg: g.headingForTrack(g.steerOnto(leg.Position, inbound)), turn: turn}
		h.Elapsed += g.dt
		// the turn inbound must be under way before the fix can count as passed
		if h.Elapsed > 10 && math.Abs(physics.HeadingDifference(g.ac.TrackDeg, inbound)) < 90 && atFix(inbound) {
			h.Circuits++
			h.Phase, h.Elapsed = aircraft.HoldOutbound, 0
			out.complete = g.holdDone(leg)
		}
	}
	return out
}

// holdDone is checked each time the hold fix is crossed
func (g *guide) holdDone(leg procedure.Leg) bool {
	switch leg.Kind {
	case procedure.LegHF:
		return g.route.Hold.Circuits >= 1
	case procedure.LegHA:
		return g.altitudeReached(leg)
	}
	return false
}

// arc holds the leg radius about the centre fix, steering the tangent course
// with a correction towards the arc
func (g *guide) arc(leg procedure.Leg) lateralTarget {
	pos := g.ac.Position
	radial := physics.BearingDeg(leg.CenterPos, pos)
	offArc := physics.DistanceNM(leg.CenterPos, pos) - leg.RadiusNM // positive outside
	corr := clamp(offArc*interceptGain, -maxInterceptDeg, maxInterceptDeg)
	track := arcTangent(radial, leg.Turn)
	if leg.Turn == procedure.TurnLeft {
		track = physics.NormalizeHeading(track - corr)
	} else {
		track = physics.NormalizeHeading(track + corr)
	}
	inbound := arcTangent(physics.BearingDeg(leg.CenterPos, leg.Position), leg.Turn)
	return lateralTarget{
		headingDeg: g.headingForTrack(track),
		complete:   g.fixReached(leg, inbound),
	}
}
