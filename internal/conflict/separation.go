package conflict

import (
	"fmt"
	"math"

	"github.com/yegors/tracon-sim/internal/aircraft"
	"github.com/yegors/tracon-sim/internal/perf"
	"github.com/yegors/tracon-sim/internal/physics"
)

// wakeMinimaNM[leader][follower] is the in-trail wake turbulence distance; zero
// where no wake separation applies
var wakeMinimaNM = [4][4]float64{
	perf.WakeLight:  {},
	perf.WakeMedium: {perf.WakeLight: 5},
	perf.WakeHeavy:  {perf.WakeLight: 6, perf.WakeMedium: 5},
	perf.WakeSuper:  {perf.WakeLight: 8, perf.WakeMedium: 7, perf.WakeHeavy: 6},
}

// wakeAboveFt is how far above a leader a follower is still exposed to its wake
const wakeAboveFt = 1000

// behind reports whether b lies ahead of a, within 90 degrees of a's track
func behind(a, b *aircraft.Aircraft) bool {
	brg := physics.BearingDeg(a.Position, b.Position)
	return math.Abs(physics.HeadingDifference(a.TrackDeg, brg)) < 90
}

// leader picks the aircraft the other is following. When both or neither are
// behind the other the heavier one leads. ok is false in that ambiguous case.
func leader(a, b *aircraft.Aircraft) (lead, follow *aircraft.Aircraft, ok bool) {
	ab, ba := behind(a, b), behind(b, a)
	switch {
	case ab && !ba:
		return b, a, true
	case ba && !ab:
		return a, b, true
	}
	if wakeRank(b.Wake) > wakeRank(a.Wake) {
		return b, a, false
	}
	return a, b, false
}

// minima returns the lateral and vertical minima for the pair
func (d *Detector) minima(a, b *aircraft.Aircraft) (lateralNM, verticalFt float64) {
	lead, _, _ := leader(a, b)
	lateralNM = d.cfg.LateralNM[wakeRank(lead.Wake)]
	verticalFt = d.cfg.VerticalFt
	if math.Max(a.AltitudeFt, b.AltitudeFt) >= d.cfg.HighAltitudeFt {
		verticalFt = d.cfg.VerticalHighFt
	}
	return lateralNM, verticalFt
}

func (d *Detector) separation(a, b *aircraft.Aircraft, found findings) {
	lat, vert := d.minima(a, b)
	dist := physics.DistanceNM(a.Position, b.Position)
	dz := math.Abs(a.AltitudeFt - b.AltitudeFt)
	k := pairKey(KindConflict, a.ID, b.ID)

	if dist < lat && dz < vert {
		found.add(k, finding{
			severity: Warning,
			message:  fmt.Sprintf("%s and %s %.1f nm %.0f ft apart", a.Callsign, b.Callsign, dist, dz),
		})
		return
	}
	if t, ok := timeToLoss(a, b, lat, vert, d.cfg.LookAheadSeconds); ok {
		found.add(k, finding{
			severity:  Caution,
			message:   fmt.Sprintf("%s and %s lose separation in %.0f s", a.Callsign, b.Callsign, t),
			predicted: true,
		})
	}
}

// timeToLoss projects both aircraft along their current velocity vectors and
// returns the first time within the window at which both minima are infringed
func timeToLoss(a, b *aircraft.Aircraft, lateralNM, verticalFt, window float64) (float64, bool) {
	r := physics.ToLocalNM(a.Position, b.Position)
	va, vb := a.Velocity(), b.Velocity()
	vx, vy := (vb.X-va.X)/3600, (vb.Y-va.Y)/3600 // nm/s

	hLo, hHi, ok := below(r.X*r.X+r.Y*r.Y-lateralNM*lateralNM, 2*(r.X*vx+r.Y*vy), vx*vx+vy*vy)
	if !ok {
		return 0, false
	}

	dz := b.AltitudeFt - a.AltitudeFt
	dvz := (b.VerticalFPM - a.VerticalFPM) / 60 // ft/s
	vLo, vHi := math.Inf(-1), math.Inf(1)
	if math.Abs(dvz) < 1e-9 {
		if math.Abs(dz) >= verticalFt {
			return 0, false
		}
	} else {
		vLo, vHi = (-verticalFt-dz)/dvz, (verticalFt-dz)/dvz
		if vLo > vHi {
			vLo, vHi = vHi, vLo
		}
	}

	lo := math.Max(0, math.Max(hLo, vLo))
	hi := math.Min(window, math.Min(hHi, vHi))
	if lo >= hi {
		return 0, false
	}
	return lo, true
}

// below returns the interval of t over which c + b*t + a*t*t < 0
func below(c, b, a float64) (lo, hi float64, ok bool) {
	if a < 1e-12 {
		if c < 0 {
			return math.Inf(-1), math.Inf(1), true
		}
		return 0, 0, false
	}
	disc := b*b - 4*a*c
	if disc <= 0 {
		return 0, 0, false
	}
	sq := math.Sqrt(disc)
	return (-b - sq) / (2 * a), (-b + sq) / (2 * a), true
}

// wake raises a caution when a lighter aircraft trails a heavier one too closely
func (d *Detector) wake(a, b *aircraft.Aircraft, found findings) {
	lead, follow, ok := leader(a, b)
	if !ok || wakeRank(follow.Wake) >= wakeRank(lead.Wake) {
		return
	}
	need := wakeMinimaNM[wakeRank(lead.Wake)][wakeRank(follow.Wake)]
	if need == 0 || follow.AltitudeFt > lead.AltitudeFt+wakeAboveFt {
		return
	}
	if dist := physics.DistanceNM(a.Position, b.Position); dist < need {
		found.add(pairKey(KindWake, a.ID, b.ID), finding{
			severity: Caution,
			message: fmt.Sprintf("%s (%s) %.1f nm behind %s (%s), %.0f nm required",
				follow.Callsign, follow.Wake, dist, lead.Callsign, lead.Wake, need),
		})
	}
}
