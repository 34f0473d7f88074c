package physics

import "math"

const EarthRadiusNM = 3440.065

// LatLon is a geographic position in decimal degrees
type LatLon struct {
	Lat float64 `json:"lat" yaml:"lat" msgpack:"lat"`
	Lon float64 `json:"lon" yaml:"lon" msgpack:"lon"`
}

func toRad(d float64) float64 { return d * math.Pi / 180 }
func toDeg(r float64) float64 { return r * 180 / math.Pi }

// DistanceNM returns the great-circle distance between two points (haversine)
func DistanceNM(a, b LatLon) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusNM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// BearingDeg returns the initial true bearing from a to b
func BearingDeg(a, b LatLon) float64 {
	lat1, lat2 := toRad(a.Lat), toRad(b.Lat)
	dLon := toRad(b.Lon - a.Lon)
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return NormalizeHeading(toDeg(math.Atan2(y, x)))
}

// DestinationPoint returns the point reached travelling distanceNM along bearing from p
func DestinationPoint(p LatLon, bearingDeg, distanceNM float64) LatLon {
	lat1, lon1 := toRad(p.Lat), toRad(p.Lon)
	brng := toRad(bearingDeg)
	d := distanceNM / EarthRadiusNM

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(math.Sin(brng)*math.Sin(d)*math.Cos(lat1), math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))

	return LatLon{Lat: toDeg(lat2), Lon: math.Mod(toDeg(lon2)+540, 360) - 180}
}

// CrossTrackNM returns the signed distance of p from the great circle through
// origin along courseDeg. Positive values are right of course.
func CrossTrackNM(origin LatLon, courseDeg float64, p LatLon) float64 {
	d := DistanceNM(origin, p) / EarthRadiusNM
	b := toRad(BearingDeg(origin, p) - courseDeg)
	return math.Asin(math.Sin(d)*math.Sin(b)) * EarthRadiusNM
}

// AlongTrackNM returns the distance of p's projection onto the course line
// from origin. Negative values are behind origin.
func AlongTrackNM(origin LatLon, courseDeg float64, p LatLon) float64 {
	dist := DistanceNM(origin, p)
	return dist * math.Cos(toRad(BearingDeg(origin, p)-courseDeg))
}

// ToLocalNM projects p onto a flat plane tangent at ref: X east, Y north, in nm.
// Accurate enough for the size of a terminal area.
func ToLocalNM(ref, p LatLon) Vector2D {
	return Vector2D{
		X: (p.Lon - ref.Lon) * 60 * math.Cos(toRad(ref.Lat)),
		Y: (p.Lat - ref.Lat) * 60,
	}
}

// NormalizeHeading maps any angle to [0, 360)
func NormalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// HeadingDifference returns the signed smallest rotation from -> to, in (-180, 180].
// Positive is clockwise (a right turn).
func HeadingDifference(from, to float64) float64 {
	d := math.Mod(to-from, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}
