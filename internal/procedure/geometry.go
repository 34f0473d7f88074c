package procedure

import (
	"errors"
	"fmt"
	"math"

	"github.com/yegors/tracon-sim/internal/physics"
)

// ErrBadPolygon is returned for polygons that cannot be tested for containment
var ErrBadPolygon = errors.New("malformed polygon")

// Polygon is a closed ring of vertices; the closing edge is implicit
type Polygon []physics.LatLon

// Validate checks the ring has at least three finite vertices
func (p Polygon) Validate() error {
	if len(p) < 3 {
		return fmt.Errorf("%w: %d vertices", ErrBadPolygon, len(p))
	}
	for i, v := range p {
		if math.IsNaN(v.Lat) || math.IsNaN(v.Lon) || math.Abs(v.Lat) > 90 || math.Abs(v.Lon) > 180 {
			return fmt.Errorf("%w: vertex %d out of range (%f, %f)", ErrBadPolygon, i, v.Lat, v.Lon)
		}
	}
	return nil
}

// Contains reports whether pos is inside the ring (even-odd rule)
func (p Polygon) Contains(pos physics.LatLon) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}
	inside := false
	for i, j := 0, len(p)-1; i < len(p); j, i = i, i+1 {
		a, b := p[i], p[j]
		if (a.Lat > pos.Lat) != (b.Lat > pos.Lat) {
			x := (b.Lon-a.Lon)*(pos.Lat-a.Lat)/(b.Lat-a.Lat) + a.Lon
			if pos.Lon < x {
				inside = !inside
			}
		}
	}
	return inside, nil
}

// Overlaps reports whether the ring shares any area with the lat/lon box
// spanned by sw and ne.
func (p Polygon) Overlaps(sw, ne physics.LatLon) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}
	for _, v := range p {
		if v.Lat >= sw.Lat && v.Lat <= ne.Lat && v.Lon >= sw.Lon && v.Lon <= ne.Lon {
			return true, nil
		}
	}
	box := [4]physics.LatLon{sw, {Lat: sw.Lat, Lon: ne.Lon}, ne, {Lat: ne.Lat, Lon: sw.Lon}}
	for _, c := range box {
		if in, _ := p.Contains(c); in {
			return true, nil
		}
	}
	for i, j := 0, len(p)-1; i < len(p); j, i = i, i+1 {
		for k := range box {
			if segmentsCross(p[j], p[i], box[k], box[(k+1)%4]) {
				return true, nil
			}
		}
	}
	return false, nil
}

func orient(a, b, c physics.LatLon) float64 {
	return (b.Lon-a.Lon)*(c.Lat-a.Lat) - (b.Lat-a.Lat)*(c.Lon-a.Lon)
}

// segmentsCross reports a proper crossing of segments ab and cd
func segmentsCross(a, b, c, d physics.LatLon) bool {
	d1, d2 := orient(c, d, a), orient(c, d, b)
	d3, d4 := orient(a, b, c), orient(a, b, d)
	return (d1 > 0) != (d2 > 0) && (d3 > 0) != (d4 > 0) && d1 != 0 && d2 != 0 && d3 != 0 && d4 != 0
}

// MSACell is one minimum safe altitude sector
type MSACell struct {
	Name    string  `json:"name"`
	Polygon Polygon `json:"polygon"`
	FloorFt float64 `json:"floor_ft"`
}

// RestrictedArea is airspace no aircraft may enter between its floor and ceiling
type RestrictedArea struct {
	Name      string  `json:"name"`
	Polygon   Polygon `json:"polygon"`
	FloorFt   float64 `json:"floor_ft"`
	CeilingFt float64 `json:"ceiling_ft"`
}

// Airspace is the monitored TRACON volume plus its hazard geometry
type Airspace struct {
	Center     physics.LatLon   `json:"center"`
	RadiusNM   float64          `json:"radius_nm"`
	FloorFt    float64          `json:"floor_ft"`
	CeilingFt  float64          `json:"ceiling_ft"`
	MSA        []MSACell        `json:"msa,omitempty"`
	Restricted []RestrictedArea `json:"restricted,omitempty"`
}

// Contains reports whether the position is inside the TRACON volume
func (a *Airspace) Contains(pos physics.LatLon, altFt float64) bool {
	return physics.DistanceNM(a.Center, pos) <= a.RadiusNM && altFt >= a.FloorFt && altFt <= a.CeilingFt
}

// BoundaryDistanceNM returns how far inside the lateral boundary pos is; negative outside
func (a *Airspace) BoundaryDistanceNM(pos physics.LatLon) float64 {
	return a.RadiusNM - physics.DistanceNM(a.Center, pos)
}

// MinimumSafeAltitude returns the highest floor among the MSA cells containing
// pos. Positions outside every cell fall back to the airspace floor. Cells with
// malformed geometry are skipped and reported in the returned error.
func (a *Airspace) MinimumSafeAltitude(pos physics.LatLon) (float64, error) {
	msa, found := a.FloorFt, false
	var errs []error
	for _, c := range a.MSA {
		in, err := c.Polygon.Contains(pos)
		if err != nil {
			errs = append(errs, fmt.Errorf("msa cell %s: %w", c.Name, err))
			continue
		}
		if in && (!found || c.FloorFt > msa) {
			msa, found = c.FloorFt, true
		}
	}
	return msa, errors.Join(errs...)
}

// MinimumSafeAltitudeIn returns the highest minimum safe altitude anywhere in
// the lat/lon box spanned by sw and ne: the floor of every MSA cell
// overlapping the box, and the airspace floor where the box corners fall
// outside all of them.
func (a *Airspace) MinimumSafeAltitudeIn(sw, ne physics.LatLon) (float64, error) {
	var errs []error
	msa := math.Inf(-1)
	for _, corner := range []physics.LatLon{sw, {Lat: sw.Lat, Lon: ne.Lon}, ne, {Lat: ne.Lat, Lon: sw.Lon}} {
		v, err := a.MinimumSafeAltitude(corner)
		if err != nil {
			errs = append(errs, err)
		}
		msa = math.Max(msa, v)
	}
	for _, c := range a.MSA {
		over, err := c.Polygon.Overlaps(sw, ne)
		if err != nil {
			continue // already reported by MinimumSafeAltitude
		}
		if over {
			msa = math.Max(msa, c.FloorFt)
		}
	}
	return msa, errors.Join(errs...)
}

// Validate checks the airspace limits and all polygons
func (a *Airspace) Validate() error {
	var errs []error
	if a.RadiusNM <= 0 {
		errs = append(errs, fmt.Errorf("airspace radius must be positive: %.1f", a.RadiusNM))
	}
	if a.CeilingFt <= a.FloorFt {
		errs = append(errs, fmt.Errorf("airspace ceiling %.0f must be above floor %.0f", a.CeilingFt, a.FloorFt))
	}
	for _, c := range a.MSA {
		if err := c.Polygon.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("msa cell %s: %w", c.Name, err))
		}
	}
	for _, r := range a.Restricted {
		if err := r.Polygon.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("restricted area %s: %w", r.Name, err))
		}
		if r.CeilingFt <= r.FloorFt {
			errs = append(errs, fmt.Errorf("restricted area %s: ceiling below floor", r.Name))
		}
	}
	return errors.Join(errs...)
}
