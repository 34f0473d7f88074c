// Package perf models the static performance envelope of each aircraft type.
//
// An AircraftType is loaded once at startup and treated as read-only for the
// lifetime of the engine. All speeds are indicated airspeed in knots unless
// the field name says otherwise, rates are in feet per minute.
package perf

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/yegors/tracon-sim/internal/physics"
)

// WakeCategory is the size class that governs trailing separation
type WakeCategory int

const (
	WakeLight WakeCategory = iota
	WakeMedium
	WakeHeavy
	WakeSuper
)

var wakeNames = []string{"L", "M", "H", "J"}

func (w WakeCategory) String() string {
	if int(w) < len(wakeNames) {
		return wakeNames[w]
	}
	return fmt.Sprintf("WakeCategory(%d)", int(w))
}

func (w WakeCategory) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

func (w *WakeCategory) UnmarshalText(b []byte) error {
	c, err := ParseWakeCategory(string(b))
	if err != nil {
		return err
	}
	*w = c
	return nil
}

// ParseWakeCategory accepts the ICAO letters L, M, H and J (super)
func ParseWakeCategory(s string) (WakeCategory, error) {
	for i, n := range wakeNames {
		if strings.EqualFold(s, n) {
			return WakeCategory(i), nil
		}
	}
	return WakeMedium, fmt.Errorf("unknown wake category %q", s)
}

// Configuration is the aerodynamic configuration that selects the stall speed in use
type Configuration int

const (
	ConfigClean Configuration = iota
	ConfigApproach
)

// ClimbBand gives the climb rate available from an altitude upward
type ClimbBand struct {
	AltitudeFt float64 `yaml:"altitude_ft"`
	RateFPM    float64 `yaml:"rate_fpm"`
}

// AircraftType is the performance envelope of one type designator
type AircraftType struct {
	Designator string       `yaml:"designator"`
	Wake       WakeCategory `yaml:"wake"`
	CeilingFt  float64      `yaml:"ceiling_ft"`

	Speed struct {
		StallClean   float64 `yaml:"stall_clean"`
		StallFlaps   float64 `yaml:"stall_flaps"`
		Approach     float64 `yaml:"approach"`
		Reference    float64 `yaml:"reference"` // Vref
		MaxBelow10k  float64 `yaml:"max_below_10k"`
		VMO          float64 `yaml:"vmo"`
		MMO          float64 `yaml:"mmo"`
		CruiseIAS    float64 `yaml:"cruise_ias"`
		CruiseMach   float64 `yaml:"cruise_mach"`
		Departure    float64 `yaml:"departure"` // initial climb speed after takeoff
		MinOperating float64 `yaml:"-"`         // derived
	} `yaml:"speed"`

	Climb []ClimbBand `yaml:"climb"`

	Descent struct {
		StandardFPM     float64 `yaml:"standard_fpm"`
		MaxFPM          float64 `yaml:"max_fpm"`
		IdleGradientDeg float64 `yaml:"idle_gradient_deg"`
	} `yaml:"descent"`

	Accel struct {
		AccelerateKtsPerSec float64 `yaml:"accelerate"`
		DecelerateKtsPerSec float64 `yaml:"decelerate"`
	} `yaml:"accel"`

	Turn struct {
		StandardRateDegSec float64 `yaml:"standard_rate"`
		MaxBankDeg         float64 `yaml:"max_bank"`
	} `yaml:"turn"`

	Capabilities struct {
		RNAV bool `yaml:"rnav"`
		RNP  bool `yaml:"rnp"`
		ILS  bool `yaml:"ils"`
	} `yaml:"capabilities"`
}

// Stall margin applied to the stall speed of the current configuration
const stallMargin = 1.3

// Validate checks the envelope for internal consistency and fills derived values
func (t *AircraftType) Validate() error {
	var errs []error
	if t.Designator == "" {
		errs = append(errs, errors.New("designator is required"))
	}
	if t.CeilingFt <= 0 {
		errs = append(errs, fmt.Errorf("ceiling_ft must be positive: %.0f", t.CeilingFt))
	}
	if t.Speed.StallClean <= 0 || t.Speed.StallFlaps <= 0 || t.Speed.StallFlaps > t.Speed.StallClean {
		errs = append(errs, fmt.Errorf("stall speeds must satisfy 0 < flaps (%.0f) <= clean (%.0f)", t.Speed.StallFlaps, t.Speed.StallClean))
	}
	if t.Speed.VMO <= t.Speed.StallClean*stallMargin {
		errs = append(errs, fmt.Errorf("vmo %.0f must exceed the clean minimum speed", t.Speed.VMO))
	}
	if t.Speed.MaxBelow10k <= 0 {
		t.Speed.MaxBelow10k = math.Min(250, t.Speed.VMO)
	}
	if t.Speed.Approach <= 0 {
		t.Speed.Approach = t.Speed.StallFlaps * 1.4
	}
	if t.Speed.Reference <= 0 {
		t.Speed.Reference = t.Speed.StallFlaps * stallMargin
	}
	if t.Speed.Departure <= 0 {
		t.Speed.Departure = t.Speed.MaxBelow10k
	}
	if t.Speed.CruiseIAS <= 0 {
		t.Speed.CruiseIAS = t.Speed.VMO - 20
	}
	if len(t.Climb) == 0 {
		errs = append(errs, errors.New("at least one climb band is required"))
	}
	for _, b := range t.Climb {
		if b.RateFPM <= 0 {
			errs = append(errs, fmt.Errorf("climb rate at %.0f ft must be positive", b.AltitudeFt))
		}
	}
	sort.Slice(t.Climb, func(i, j int) bool { return t.Climb[i].AltitudeFt < t.Climb[j].AltitudeFt })
	if t.Descent.StandardFPM <= 0 || t.Descent.MaxFPM < t.Descent.StandardFPM {
		errs = append(errs, fmt.Errorf("descent rates must satisfy 0 < standard (%.0f) <= max (%.0f)", t.Descent.StandardFPM, t.Descent.MaxFPM))
	}
	if t.Descent.IdleGradientDeg <= 0 {
		t.Descent.IdleGradientDeg = 3
	}
	if t.Accel.AccelerateKtsPerSec <= 0 || t.Accel.DecelerateKtsPerSec <= 0 {
		errs = append(errs, errors.New("accelerate and decelerate must be positive"))
	}
	if t.Turn.MaxBankDeg <= 0 || t.Turn.MaxBankDeg > 45 {
		errs = append(errs, fmt.Errorf("max_bank must be in (0, 45]: %.0f", t.Turn.MaxBankDeg))
	}
	if t.Turn.StandardRateDegSec <= 0 {
		t.Turn.StandardRateDegSec = 3
	}
	t.Speed.MinOperating = t.Speed.StallClean * stallMargin
	if t.CeilingFt > 0 && t.MaxSpeed(t.CeilingFt) < t.Speed.MinOperating {
		errs = append(errs, fmt.Errorf("mmo %.2f gives %.0f kt at the ceiling, below the clean minimum speed %.0f",
			t.Speed.MMO, t.MaxSpeed(t.CeilingFt), t.Speed.MinOperating))
	}

	if len(errs) > 0 {
		return fmt.Errorf("aircraft type %s: %w", t.Designator, errors.Join(errs...))
	}
	return nil
}

// ClimbRate returns the climb rate available at the given altitude, interpolated
// linearly between bands and held constant outside the table.
func (t *AircraftType) ClimbRate(altFt float64) float64 {
	bands := t.Climb
	n := len(bands)
	switch {
	case n == 0:
		return 0
	case altFt <= bands[0].AltitudeFt:
		return bands[0].RateFPM
	case altFt >= bands[n-1].AltitudeFt:
		rate := bands[n-1].RateFPM
		// Taper to zero at the service ceiling
		if t.CeilingFt > bands[n-1].AltitudeFt {
			frac := (t.CeilingFt - altFt) / (t.CeilingFt - bands[n-1].AltitudeFt)
			rate *= math.Max(frac, 0)
		}
		return rate
	}
	i := sort.Search(n, func(i int) bool { return bands[i].AltitudeFt >= altFt })
	lo, hi := bands[i-1], bands[i]
	ratio := (altFt - lo.AltitudeFt) / (hi.AltitudeFt - lo.AltitudeFt)
	return lo.RateFPM + (hi.RateFPM-lo.RateFPM)*ratio
}

// MaxClimbRate is the largest climb rate anywhere in the table
func (t *AircraftType) MaxClimbRate() float64 {
	var m float64
	for _, b := range t.Climb {
		m = math.Max(m, b.RateFPM)
	}
	return m
}

// MinSpeed returns the slowest indicated airspeed permitted in the given configuration
func (t *AircraftType) MinSpeed(cfg Configuration) float64 {
	if cfg == ConfigApproach {
		return t.Speed.StallFlaps * stallMargin
	}
	return t.Speed.MinOperating
}

// MaxSpeed returns the structural speed limit at the given altitude: the lesser
// of Vmo and the IAS equivalent of Mmo.
func (t *AircraftType) MaxSpeed(altFt float64) float64 {
	limit := t.Speed.VMO
	if t.Speed.MMO > 0 {
		limit = math.Min(limit, physics.MachToIAS(t.Speed.MMO, altFt))
	}
	return limit
}

// SpeedEnvelope returns the permitted IAS range in the given configuration and
// altitude. Where the Mmo limit falls below the minimum speed the range
// collapses onto the structural limit.
func (t *AircraftType) SpeedEnvelope(cfg Configuration, altFt float64) (lo, hi float64) {
	lo, hi = t.MinSpeed(cfg), t.MaxSpeed(altFt)
	if lo > hi {
		lo = hi
	}
	return lo, hi
}

// SpeedLimit is MaxSpeed further capped by the 10,000 ft speed limit
func (t *AircraftType) SpeedLimit(altFt float64) float64 {
	limit := t.MaxSpeed(altFt)
	if altFt < 10000 {
		limit = math.Min(limit, t.Speed.MaxBelow10k)
	}
	return limit
}

// CruiseSpeed returns the schedule speed for the given altitude: 250 kt below
// 10,000 ft, the cruise IAS above it, capped by the cruise Mach.
func (t *AircraftType) CruiseSpeed(altFt float64) float64 {
	if altFt < 10000 {
		return t.Speed.MaxBelow10k
	}
	spd := t.Speed.CruiseIAS
	if t.Speed.CruiseMach > 0 {
		spd = math.Min(spd, physics.MachToIAS(t.Speed.CruiseMach, altFt))
	}
	return math.Min(spd, t.SpeedLimit(altFt))
}

// Table is the performance model keyed by type designator
type Table struct {
	types map[string]*AircraftType
}

// ErrUnknownType is returned when a designator is not in the table
var ErrUnknownType = errors.New("unknown aircraft type")

// NewTable validates every type and indexes it by designator
func NewTable(types []*AircraftType) (*Table, error) {
	t := &Table{types: make(map[string]*AircraftType, len(types))}
	for _, at := range types {
		if err := at.Validate(); err != nil {
			return nil, err
		}
		key := strings.ToUpper(at.Designator)
		if _, dup := t.types[key]; dup {
			return nil, fmt.Errorf("duplicate aircraft type %s", key)
		}
		t.types[key] = at
	}
	return t, nil
}

// Lookup returns the envelope for a designator
func (t *Table) Lookup(designator string) (*AircraftType, error) {
	at, ok := t.types[strings.ToUpper(designator)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, designator)
	}
	return at, nil
}

// Designators returns all known designators in sorted order
func (t *Table) Designators() []string {
	out := make([]string, 0, len(t.types))
	for k := range t.types {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
