package nav

import (
	"math"

	"github.com/yegors/tracon-sim/internal/aircraft"
	"github.com/yegors/tracon-sim/internal/perf"
)

// speedTarget resolves the speed axis and selects the configuration
func (g *guide) speedTarget() float64 {
	nav := &g.ac.Nav
	at := g.ac.Perf()

	leg, onLeg := g.route.Active()
	finalApproach := onLeg && nav.Flags.ClearedApproach && leg.GlidePathDeg > 0
	if finalApproach {
		nav.Flags.Config = perf.ConfigApproach
	} else {
		nav.Flags.Config = perf.ConfigClean
	}

	s := &nav.Speed
	if s.Mode == aircraft.ModeManual || at == nil || nav.Flags.ProcedureComplete {
		return s.IAS
	}

	alt := g.ac.AltitudeFt
	target := at.CruiseSpeed(alt)
	switch {
	case finalApproach:
		target = at.Speed.Approach
	case nav.Flags.ClearedApproach:
		target = math.Min(target, approachSpeedCap)
	}
	if onLeg && leg.Speed.IsSet() {
		target = leg.Speed.Resolve(g.ac.IAS, target)
	}
	target = clamp(target, at.MinSpeed(nav.Flags.Config), at.SpeedLimit(alt))
	s.IAS = target
	return target
}
