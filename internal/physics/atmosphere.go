// Package physics holds the pure atmosphere, airspeed, wind and great-circle
// functions the flight model is built on. Nothing in here keeps state.
package physics

import (
	"math"
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

// Constants
const (
	R           = 287.058  // J/(kg K), dry air
	Gamma       = 1.4      // ratio of specific heats
	G           = 9.80665  // m/s2
	T0          = 288.15   // K at MSL
	P0          = 1013.25  // hPa at MSL
	L           = 0.0065   // K/m below the tropopause
	ZeroCelsius = 273.15
	KnotsToMs   = 0.514444
	MsToKnots   = 1 / KnotsToMs
	FeetToM     = 0.3048
	FeetPerNM   = 6076.12

	// ISA tropopause
	TropopauseAltM    = 11000.0
	TropopauseAltFt   = 36089.2
	StratosphereTempK = 216.65  // isothermal above the tropopause
	TropopausePress   = 226.32  // hPa
)

// ISATemperature returns the standard atmosphere temperature in Kelvin at the given altitude
func ISATemperature(altFt float64) float64 {
	if altFt >= TropopauseAltFt {
		return StratosphereTempK
	}
	return T0 - L*math.Max(altFt, 0)*FeetToM
}

// CalculateSoundSpeed is the speed of sound in m/s at tempK
func CalculateSoundSpeed(tempK float64) float64 {
	if tempK <= 0 {
		return 0
	}
	return math.Sqrt(Gamma * R * tempK)
}

// CalculateMach converts TAS in knots to Mach at tempCelsius
func CalculateMach(tasKnots float64, tempCelsius float64) float64 {
	a := CalculateSoundSpeed(tempCelsius + ZeroCelsius)
	if a == 0 {
		return 0
	}
	return tasKnots * KnotsToMs / a
}

// CalculateTASFromMach converts Mach to TAS in knots at tempCelsius
func CalculateTASFromMach(mach float64, tempCelsius float64) float64 {
	a := CalculateSoundSpeed(tempCelsius + ZeroCelsius)
	return mach * a * MsToKnots
}

// AltitudeToPressure is the ISA static pressure in hPa at a pressure
// altitude, valid to about 20 km
func AltitudeToPressure(altFt float64) float64 {
	altM := math.Max(altFt*FeetToM, 0)

	if altM <= TropopauseAltM {
		exponent := G / (R * L)
		return P0 * math.Pow(1-(L*altM/T0), exponent)
	}

	relAlt := altM - TropopauseAltM
	return TropopausePress * math.Exp(-(G*relAlt)/(R*StratosphereTempK))
}

// Impact pressure and CAS from the Saint-Venant relation for subsonic
// compressible flow. IAS is taken as CAS: instrument and position error are not
// modelled.

// seaLevelSoundKnots is a0, the ISA speed of sound at sea level
var seaLevelSoundKnots = CalculateSoundSpeed(T0) * MsToKnots

// impactPressure is qc in hPa for a Mach number at static pressure pHPa
func impactPressure(mach, pHPa float64) float64 {
	return pHPa * (math.Pow(1+0.2*mach*mach, 3.5) - 1)
}

// CalculateCAS returns calibrated airspeed in knots for a TAS at a pressure
// altitude and outside air temperature
func CalculateCAS(tasKnots, pressAltFt, tempCelsius float64) float64 {
	return machToCAS(CalculateMach(tasKnots, tempCelsius), pressAltFt)
}

func machToCAS(mach, pressAltFt float64) float64 {
	qc := impactPressure(mach, AltitudeToPressure(pressAltFt))
	term := qc/P0 + 1
	if term < 1 {
		return 0
	}
	return seaLevelSoundKnots * math.Sqrt(5*(math.Pow(term, 1/3.5)-1))
}

// casToMach inverts machToCAS: qc from CAS against sea-level pressure, then
// Mach against the static pressure at altitude
func casToMach(casKnots, pressAltFt float64) float64 {
	if casKnots <= 0 {
		return 0
	}
	ratio := casKnots / seaLevelSoundKnots
	qc := impactPressure(ratio, P0)
	term := qc/AltitudeToPressure(pressAltFt) + 1
	return math.Sqrt(5 * (math.Pow(term, 1/3.5) - 1))
}

// IASToTAS converts indicated airspeed to true airspeed in the standard
// atmosphere at the given altitude
func IASToTAS(iasKnots, altFt float64) float64 {
	return CalculateTASFromMach(casToMach(iasKnots, altFt), ISATemperature(altFt)-ZeroCelsius)
}

// TASToIAS is the inverse of IASToTAS
func TASToIAS(tasKnots, altFt float64) float64 {
	return CalculateCAS(tasKnots, altFt, ISATemperature(altFt)-ZeroCelsius)
}

// MachToIAS returns the indicated airspeed that corresponds to a Mach number at altitude
func MachToIAS(mach, altFt float64) float64 {
	return machToCAS(mach, altFt)
}

// IASToMach returns the Mach number flown at the given indicated airspeed and altitude
func IASToMach(iasKnots, altFt float64) float64 {
	return casToMach(iasKnots, altFt)
}

// CalculateMagneticVariation is the WMM declination in degrees, east positive
func CalculateMagneticVariation(lat, lon, altFt float64, date time.Time) float64 {
	loc := egm96.NewLocationGeodetic(lat, lon, altFt*FeetToM)

	mag, err := wmm.CalculateWMMMagneticField(loc, date)
	if err != nil {
		// no model coverage
		return 0.0
	}

	return mag.D()
}
