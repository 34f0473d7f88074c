// Package dynamics integrates aircraft kinematics over one tick. It is the only
// writer of position, altitude, speed and heading.
package dynamics

import (
	"math"

	"github.com/yegors/tracon-sim/internal/aircraft"
	"github.com/yegors/tracon-sim/internal/physics"
	"github.com/yegors/tracon-sim/internal/procedure"
)

const (
	// descentGradientFt is how far from the target an aircraft must be before
	// the idle descent gradient governs the rate
	descentGradientFt = 2000
	// captureFt is the band above/below the target in which the vertical rate fades
	captureFt = 500
	// captureFloor is the fraction of the rate kept at the very end of a capture
	captureFloor = 0.25
	// turnHintMinDeg is the smallest heading change for which a turn direction
	// hint is honoured instead of the shortest turn
	turnHintMinDeg = 20
)

// Step advances ac by dt seconds towards its Targets in the given wind
func Step(ac *aircraft.Aircraft, wind physics.Wind, dt float64) {
	at := ac.Perf()
	if at == nil || dt <= 0 {
		return
	}
	stepHeading(ac, dt)
	stepAltitude(ac, dt)
	stepSpeed(ac, dt)

	ac.TAS = physics.IASToTAS(ac.IAS, ac.AltitudeFt)
	ac.GS, ac.TrackDeg = physics.GroundVector(ac.HeadingDeg, ac.TAS, wind)
	ac.Position = physics.DestinationPoint(ac.Position, ac.TrackDeg, ac.GS*dt/3600)
}

// TurnRate is the rate the aircraft can turn at: the type's standard rate,
// reduced where it would need more than the maximum bank
func TurnRate(ac *aircraft.Aircraft) float64 {
	at := ac.Perf()
	tas := ac.TAS
	if tas <= 0 {
		tas = physics.IASToTAS(ac.IAS, ac.AltitudeFt)
	}
	return math.Min(at.Turn.StandardRateDegSec, physics.TurnRate(at.Turn.MaxBankDeg, tas))
}

func stepHeading(ac *aircraft.Aircraft, dt float64) {
	target := physics.NormalizeHeading(ac.Targets.HeadingDeg)
	diff := physics.HeadingDifference(ac.HeadingDeg, target)
	if math.Abs(diff) > turnHintMinDeg {
		switch ac.Targets.Turn {
		case procedure.TurnLeft:
			if diff > 0 {
				diff -= 360
			}
		case procedure.TurnRight:
			if diff < 0 {
				diff += 360
			}
		}
	}

	rate := TurnRate(ac)
	maxTurn := rate * dt
	if math.Abs(diff) <= maxTurn {
		ac.HeadingDeg = target
		ac.BankDeg = 0
		return
	}
	sign := math.Copysign(1, diff)
	ac.HeadingDeg = physics.NormalizeHeading(ac.HeadingDeg + sign*maxTurn)

	tas := ac.TAS
	if tas <= 0 {
		tas = physics.IASToTAS(ac.IAS, ac.AltitudeFt)
	}
	bank := math.Min(physics.BankForTurnRate(rate, tas), ac.Perf().Turn.MaxBankDeg)
	ac.BankDeg = sign * bank
}

func stepAltitude(ac *aircraft.Aircraft, dt float64) {
	at := ac.Perf()
	target := math.Min(ac.Targets.AltitudeFt, at.CeilingFt)
	diff := target - ac.AltitudeFt
	if diff == 0 {
		ac.VerticalFPM = 0
		return
	}

	var rate float64
	if diff > 0 {
		rate = at.ClimbRate(ac.AltitudeFt)
	} else {
		rate = at.Descent.StandardFPM
		if -diff > descentGradientFt {
			gs := math.Max(ac.GS, ac.TAS)
			idle := gs * math.Tan(at.Descent.IdleGradientDeg*math.Pi/180) * physics.FeetPerNM / 60
			rate = math.Max(rate, math.Min(idle, at.Descent.MaxFPM))
		}
	}

	if abs := math.Abs(diff); abs < captureFt {
		rate *= math.Max(abs/captureFt, captureFloor)
	}
	// a descending path sets a minimum rate so the aircraft does not fall behind it
	if diff < 0 && ac.Targets.PathFPM > 0 {
		rate = math.Max(rate, math.Min(ac.Targets.PathFPM, at.Descent.MaxFPM))
	}

	step := rate / 60 * dt
	if step >= math.Abs(diff) {
		ac.AltitudeFt = target
	} else {
		ac.AltitudeFt += math.Copysign(step, diff)
	}
	ac.VerticalFPM = math.Copysign(math.Min(rate, math.Abs(diff)*60/dt), diff)
}

func stepSpeed(ac *aircraft.Aircraft, dt float64) {
	at := ac.Perf()
	lo, hi := at.SpeedEnvelope(ac.Nav.Flags.Config, ac.AltitudeFt)
	target := math.Max(lo, math.Min(hi, ac.Targets.IAS))

	diff := target - ac.IAS
	switch {
	case diff > 0:
		ac.IAS += math.Min(diff, at.Accel.AccelerateKtsPerSec*dt)
	case diff < 0:
		ac.IAS -= math.Min(-diff, at.Accel.DecelerateKtsPerSec*dt)
	}
	// the envelope narrows with altitude, so clamp after the change
	ac.IAS = math.Max(lo, math.Min(hi, ac.IAS))
}
