package physics

import "math"

// Vector2D represents a 2D vector (magnitude, direction)
type Vector2D struct {
	X float64 // East component
	Y float64 // North component
}

// Length returns the magnitude of the vector
func (v Vector2D) Length() float64 {
	return math.Hypot(v.X, v.Y)
}

// Heading returns the compass direction the vector points to
func (v Vector2D) Heading() float64 {
	return NormalizeHeading(90 - math.Atan2(v.Y, v.X)*180/math.Pi)
}

// HeadingToVector converts a heading (degrees) and magnitude to X/Y components
func HeadingToVector(headingDeg float64, magnitude float64) Vector2D {
	rad := (90 - headingDeg) * math.Pi / 180 // Convert compass heading to math angle
	return Vector2D{
		X: magnitude * math.Cos(rad),
		Y: magnitude * math.Sin(rad),
	}
}

// Wind is an air mass motion in meteorological convention: the direction the wind blows FROM
type Wind struct {
	DirectionDeg float64 `json:"direction_deg" yaml:"direction_deg" toml:"direction_deg"`
	SpeedKts     float64 `json:"speed_kts" yaml:"speed_kts" toml:"speed_kts"`
}

// Vector returns the velocity of the air mass in knots
func (w Wind) Vector() Vector2D {
	return HeadingToVector(w.DirectionDeg+180, w.SpeedKts)
}

// WindFromUV builds a Wind from U (+East) and V (+North) components in m/s
func WindFromUV(uMs, vMs float64) Wind {
	v := Vector2D{X: uMs * MsToKnots, Y: vMs * MsToKnots}
	if v.Length() == 0 {
		return Wind{}
	}
	return Wind{DirectionDeg: NormalizeHeading(v.Heading() + 180), SpeedKts: v.Length()}
}

// WindComponents returns the headwind (positive on the nose) and crosswind
// (positive from the right) components for the given track
func WindComponents(w Wind, trackDeg float64) (headwind, crosswind float64) {
	rel := (w.DirectionDeg - trackDeg) * math.Pi / 180
	return w.SpeedKts * math.Cos(rel), w.SpeedKts * math.Sin(rel)
}

// WindCorrectionAngle returns the angle to add to the desired track to obtain the
// heading that holds that track. Returns 0 when the wind exceeds the airspeed.
func WindCorrectionAngle(w Wind, trackDeg, tasKnots float64) float64 {
	if tasKnots <= 0 {
		return 0
	}
	_, xw := WindComponents(w, trackDeg)
	ratio := xw / tasKnots
	if math.Abs(ratio) >= 1 {
		return 0
	}
	return math.Asin(ratio) * 180 / math.Pi
}

// GroundVector adds the wind to the air vector and returns ground speed and track
func GroundVector(headingDeg, tasKnots float64, w Wind) (gsKnots, trackDeg float64) {
	air := HeadingToVector(headingDeg, tasKnots)
	wv := w.Vector()
	ground := Vector2D{X: air.X + wv.X, Y: air.Y + wv.Y}
	if ground.Length() == 0 {
		return 0, headingDeg
	}
	return ground.Length(), ground.Heading()
}

// SolveWindTriangle calculates TAS and True Heading given Ground Speed, Track, and Wind
// Returns: tas (knots), trueHeading (degrees)
func SolveWindTriangle(gsKnots float64, trackDeg float64, w Wind) (float64, float64) {
	ground := HeadingToVector(trackDeg, gsKnots)
	wv := w.Vector()

	// V_ground = V_air + V_wind => V_air = V_ground - V_wind
	air := Vector2D{X: ground.X - wv.X, Y: ground.Y - wv.Y}

	return air.Length(), air.Heading()
}

// TurnRate returns the rate of turn in degrees per second for a coordinated turn
// at the given bank angle and true airspeed
func TurnRate(bankDeg, tasKnots float64) float64 {
	tasMs := tasKnots * KnotsToMs
	if tasMs <= 0 {
		return 0
	}
	return (G * math.Tan(bankDeg*math.Pi/180) / tasMs) * 180 / math.Pi
}

// BankForTurnRate is the inverse of TurnRate
func BankForTurnRate(rateDegPerSec, tasKnots float64) float64 {
	tasMs := tasKnots * KnotsToMs
	return math.Atan(rateDegPerSec*math.Pi/180*tasMs/G) * 180 / math.Pi
}

// TurnRadiusNM returns the radius of a turn flown at the given rate and ground speed
func TurnRadiusNM(gsKnots, rateDegPerSec float64) float64 {
	if rateDegPerSec <= 0 {
		return 0
	}
	rateRad := rateDegPerSec * math.Pi / 180
	return (gsKnots / 3600) / rateRad
}
