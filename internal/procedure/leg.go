package procedure

import (
	"fmt"
	"strings"

	"github.com/yegors/tracon-sim/internal/physics"
)

// LegKind is the ARINC-424 path terminator of a leg. The set is closed; every
// consumer switches over all of it.
type LegKind int

const (
	LegIF LegKind = iota // initial fix
	LegTF                // track to fix
	LegCF                // course to fix
	LegDF                // direct to fix
	LegFA                // course from fix to altitude
	LegFC                // course from fix for a distance
	LegCA                // course to altitude
	LegVA                // heading to altitude
	LegCI                // course to intercept
	LegVI                // heading to intercept
	LegFM                // course from fix to manual termination
	LegVM                // heading to manual termination
	LegHA                // hold to altitude
	LegHF                // hold, single circuit
	LegHM                // hold to manual termination
	LegRF                // constant radius arc
	LegAF                // DME arc
	numLegKinds
)

var legKindNames = [...]string{"IF", "TF", "CF", "DF", "FA", "FC", "CA", "VA", "CI", "VI", "FM", "VM", "HA", "HF", "HM", "RF", "AF"}

func (k LegKind) String() string {
	if k >= 0 && k < numLegKinds {
		return legKindNames[k]
	}
	return fmt.Sprintf("LegKind(%d)", int(k))
}

// ParseLegKind converts a two-letter path terminator
func ParseLegKind(s string) (LegKind, error) {
	for i, n := range legKindNames {
		if strings.EqualFold(s, n) {
			return LegKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown path terminator %q", s)
}

// TurnDirection is a turn-direction hint
type TurnDirection int

const (
	TurnEither TurnDirection = iota
	TurnLeft
	TurnRight
)

func (t TurnDirection) String() string {
	switch t {
	case TurnLeft:
		return "left"
	case TurnRight:
		return "right"
	}
	return "either"
}

// ParseTurnDirection accepts left/right/either and the L/R letters
func ParseTurnDirection(s string) (TurnDirection, error) {
	switch strings.ToLower(s) {
	case "", "either", "e":
		return TurnEither, nil
	case "left", "l":
		return TurnLeft, nil
	case "right", "r":
		return TurnRight, nil
	}
	return TurnEither, fmt.Errorf("unknown turn direction %q", s)
}

// Leg is one segment of a procedure. Which fields matter depends on Kind;
// unused fields are zero. Courses and headings are true once the airport is linked.
type Leg struct {
	Kind LegKind `json:"kind"`

	Fix      string         `json:"fix,omitempty"` // terminating or reference fix
	Position physics.LatLon `json:"position"`      // resolved position of Fix

	Course     float64 `json:"course,omitempty"`      // course or heading, degrees
	DistanceNM float64 `json:"distance_nm,omitempty"` // FC distance, hold leg length

	Center    string         `json:"center,omitempty"` // RF/AF arc centre fix
	CenterPos physics.LatLon `json:"center_pos"`
	RadiusNM  float64        `json:"radius_nm,omitempty"`

	Altitude     Constraint    `json:"altitude"`
	Speed        Constraint    `json:"speed"`
	Turn         TurnDirection `json:"turn"`
	Flyover      bool          `json:"flyover,omitempty"`
	GlidePathDeg float64       `json:"glide_path_deg,omitempty"`

	// Resolved is false when Fix or Center could not be found in the airport
	Resolved bool `json:"resolved"`
}

// HasFix reports whether the leg references a fix
func (k LegKind) HasFix() bool {
	switch k {
	case LegIF, LegTF, LegCF, LegDF, LegFA, LegFC, LegFM, LegHA, LegHF, LegHM, LegRF, LegAF:
		return true
	case LegCA, LegVA, LegCI, LegVI, LegVM:
		return false
	}
	return false
}

// FixTerminated reports whether the leg ends when the fix is reached
func (k LegKind) FixTerminated() bool {
	switch k {
	case LegIF, LegTF, LegCF, LegDF, LegRF, LegAF:
		return true
	}
	return false
}

// IsHold reports whether the leg is one of the holding variants
func (k LegKind) IsHold() bool {
	return k == LegHA || k == LegHF || k == LegHM
}

// IsIntercept reports whether the leg ends on interception of the next leg
func (k LegKind) IsIntercept() bool {
	return k == LegCI || k == LegVI
}

// IsHeading reports whether the leg flies a heading rather than a course
func (k LegKind) IsHeading() bool {
	return k == LegVA || k == LegVI || k == LegVM
}

// Validate checks the fields the kind requires
func (l Leg) Validate() error {
	if l.Kind < 0 || l.Kind >= numLegKinds {
		return fmt.Errorf("invalid leg kind %d", l.Kind)
	}
	if l.Kind.HasFix() && l.Fix == "" {
		return fmt.Errorf("%s leg requires a fix", l.Kind)
	}
	switch l.Kind {
	case LegFA, LegCA, LegVA, LegHA:
		if !l.Altitude.IsSet() {
			return fmt.Errorf("%s leg requires an altitude constraint", l.Kind)
		}
	case LegFC:
		if l.DistanceNM <= 0 {
			return fmt.Errorf("FC leg requires a positive distance")
		}
	case LegRF, LegAF:
		if l.Center == "" {
			return fmt.Errorf("%s leg requires an arc centre", l.Kind)
		}
		if l.Turn == TurnEither {
			return fmt.Errorf("%s leg requires a turn direction", l.Kind)
		}
	}
	if err := l.Altitude.Validate(); err != nil {
		return fmt.Errorf("%s %s altitude: %w", l.Kind, l.Fix, err)
	}
	if err := l.Speed.Validate(); err != nil {
		return fmt.Errorf("%s %s speed: %w", l.Kind, l.Fix, err)
	}
	return nil
}

func (l Leg) String() string {
	var sb strings.Builder
	sb.WriteString(l.Kind.String())
	if l.Fix != "" {
		sb.WriteString(" " + l.Fix)
	}
	if l.Altitude.IsSet() {
		sb.WriteString(" A" + l.Altitude.String())
	}
	if l.Speed.IsSet() {
		sb.WriteString(" S" + l.Speed.String())
	}
	return sb.String()
}
