package conflict

import (
	"fmt"
	"math"

	"github.com/yegors/tracon-sim/internal/aircraft"
	"github.com/yegors/tracon-sim/internal/physics"
)

// cell is a position quantized to the MSA cache grid
type cell struct {
	lat, lon int32
}

func (d *Detector) cellOf(pos physics.LatLon) cell {
	q := d.cfg.MSAQuantumNM / 60
	return cell{lat: int32(math.Floor(pos.Lat / q)), lon: int32(math.Floor(pos.Lon / q))}
}

// bounds returns the south-west and north-east corners of the cell
func (d *Detector) bounds(c cell) (sw, ne physics.LatLon) {
	q := d.cfg.MSAQuantumNM / 60
	sw = physics.LatLon{Lat: float64(c.lat) * q, Lon: float64(c.lon) * q}
	ne = physics.LatLon{Lat: float64(c.lat+1) * q, Lon: float64(c.lon+1) * q}
	return sw, ne
}

// runwayConflicts raises a warning for every pair sharing a runway's protected
// zone and returns the set of aircraft inside any zone
func (d *Detector) runwayConflicts(active []*aircraft.Aircraft, found findings) map[string]bool {
	inZone := make(map[string]bool)
	if d.airport == nil {
		return inZone
	}
	for i := range d.airport.Runways {
		rwy := &d.airport.Runways[i]
		var here []*aircraft.Aircraft
		for _, ac := range active {
			if rwy.InZone(ac.Position, ac.AltitudeFt, d.cfg.RunwayZone) {
				here = append(here, ac)
				inZone[ac.ID] = true
			}
		}
		for j, a := range here {
			for _, b := range here[j+1:] {
				k := pairKey(KindRunway, a.ID, b.ID)
				k.subject = rwy.Name()
				found.add(k, finding{
					severity: Warning,
					message:  fmt.Sprintf("%s and %s both on runway %s", a.Callsign, b.Callsign, rwy.Name()),
				})
			}
		}
	}
	return inZone
}

// msaw raises a warning for an aircraft below the minimum safe altitude of its
// cell. A cell straddling a sector boundary takes the highest floor it touches,
// so the cached value does not depend on which aircraft entered it first.
func (d *Detector) msaw(ac *aircraft.Aircraft, found findings) {
	if d.airport == nil {
		return
	}
	if d.msawInhibited(ac) {
		return
	}
	c := d.cellOf(ac.Position)
	msa, ok := d.msa.Get(c)
	if !ok {
		v, err := d.airport.Airspace.MinimumSafeAltitudeIn(d.bounds(c))
		if err != nil {
			d.geometryError("msa cells", err)
			return
		}
		msa = v
		d.msa.Add(c, msa)
	}
	if ac.AltitudeFt < msa {
		found.add(key{kind: KindMSAW, a: ac.ID}, finding{
			severity: Warning,
			message:  fmt.Sprintf("%s low altitude %.0f, minimum %.0f", ac.Callsign, ac.AltitudeFt, msa),
		})
	}
}

// msawInhibited covers climbing departures near the field and cleared
// arrivals established on a glide path
func (d *Detector) msawInhibited(ac *aircraft.Aircraft) bool {
	if ac.Category == aircraft.Departure && ac.VerticalFPM > 0 &&
		physics.DistanceNM(ac.Position, d.airport.Reference) < d.cfg.DepartureInhibitNM {
		return true
	}
	if !ac.Nav.Flags.ClearedApproach {
		return false
	}
	leg, ok := ac.Nav.Route.Active()
	return ok && leg.GlidePathDeg > 0
}

// airspace checks restricted areas and imminent exits without a handoff
func (d *Detector) airspace(ac *aircraft.Aircraft, found findings) {
	if d.airport == nil {
		return
	}
	as := &d.airport.Airspace
	for _, r := range as.Restricted {
		in, err := r.Polygon.Contains(ac.Position)
		if err != nil {
			d.geometryError(r.Name, err)
			continue
		}
		if in && ac.AltitudeFt >= r.FloorFt && ac.AltitudeFt <= r.CeilingFt {
			found.add(key{kind: KindAirspace, a: ac.ID, subject: r.Name}, finding{
				severity: Warning,
				message:  fmt.Sprintf("%s inside restricted area %s", ac.Callsign, r.Name),
			})
		}
	}

	if ac.Nav.Flags.HandedOff {
		return
	}
	outbound := math.Abs(physics.HeadingDifference(physics.BearingDeg(as.Center, ac.Position), ac.TrackDeg)) < 90
	lateral := outbound && as.BoundaryDistanceNM(ac.Position) < d.cfg.ExitWarningNM
	vertical := ac.VerticalFPM > 0 && as.CeilingFt-ac.AltitudeFt < d.cfg.ExitWarningFt
	if lateral || vertical {
		found.add(key{kind: KindAirspace, a: ac.ID, subject: "exit"}, finding{
			severity: Caution,
			message:  fmt.Sprintf("%s leaving the airspace without a handoff", ac.Callsign),
		})
	}
}
