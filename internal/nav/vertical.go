package nav

import (
	"math"

	"github.com/yegors/tracon-sim/internal/aircraft"
	"github.com/yegors/tracon-sim/internal/physics"
	"github.com/yegors/tracon-sim/internal/procedure"
)

// verticalTarget returns the altitude to fly towards and, on a glide path, the
// descent rate that path needs
func (g *guide) verticalTarget() (altFt, pathFPM float64) {
	v := &g.ac.Nav.Vertical
	if v.Mode == aircraft.ModeManual || len(g.route.Legs) == 0 {
		return v.AltitudeFt, 0
	}
	leg, ok := g.route.Active()
	if !ok || leg.Kind.IsIntercept() {
		// exhausted, or not yet established: hold the last target
		return v.AltitudeFt, 0
	}

	if leg.GlidePathDeg > 0 && leg.Resolved {
		alt, fpm := g.glidePath(leg)
		v.AltitudeFt = alt
		return alt, fpm
	}

	target := WindowTarget(g.route.Remaining(), g.ac.AltitudeFt, g.desiredAltitude())
	if at := g.ac.Perf(); at != nil {
		target = math.Min(target, at.CeilingFt)
	}
	v.AltitudeFt = target
	return target, 0
}

// desiredAltitude is where the flow would go without constraints: the field for
// arrivals and approaches, the top altitude for departures
func (g *guide) desiredAltitude() float64 {
	if g.route.Kind == procedure.SID {
		if g.route.TopFt > 0 {
			return g.route.TopFt
		}
		return g.ac.Nav.Vertical.AltitudeFt
	}
	if g.env.Airport != nil {
		return g.env.Airport.ElevationFt
	}
	return 0
}

// WindowTarget resolves the remaining altitude constraints to one target. It
// intersects the constraints in leg order into a feasible window, stopping at
// the first "at" constraint or at any constraint that would empty the window,
// and returns the point of the window nearest desired. A leading "between"
// constraint resolves on its own: current when inside the band, the midpoint
// otherwise.
func WindowTarget(legs []procedure.Leg, current, desired float64) float64 {
	lo, hi := math.Inf(-1), math.Inf(1)
	first := true
	for _, leg := range legs {
		c := leg.Altitude
		if !c.IsSet() {
			continue
		}
		if first && c.Kind == procedure.Between {
			return c.Resolve(current, desired)
		}
		first = false

		clo, chi := c.Bounds()
		nlo, nhi := math.Max(lo, clo), math.Min(hi, chi)
		if nlo > nhi {
			break
		}
		lo, hi = nlo, nhi
		if c.Kind == procedure.At {
			break
		}
	}
	return clamp(desired, lo, hi)
}

// glidePath returns the geometric path altitude over the current position and
// the descent rate that holds it. Below the path the aircraft levels off rather
// than climbing to it.
func (g *guide) glidePath(leg procedure.Leg) (float64, float64) {
	fixAlt := leg.Altitude.Resolve(g.ac.AltitudeFt, g.desiredAltitude())
	if g.env.Airport != nil {
		if elev, ok := g.env.Airport.IsThreshold(leg.Fix); ok {
			fixAlt = elev + thresholdCrossFt
		}
	}
	tanGP := math.Tan(leg.GlidePathDeg * math.Pi / 180)
	d := physics.DistanceNM(g.ac.Position, leg.Position)
	pathAlt := fixAlt + d*tanGP*physics.FeetPerNM

	fpm := g.ac.GS * tanGP * physics.FeetPerNM / 60
	return math.Min(pathAlt, g.ac.AltitudeFt), fpm
}
