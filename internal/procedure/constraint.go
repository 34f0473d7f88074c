package procedure

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ConstraintKind selects how a Constraint bounds altitude or speed
type ConstraintKind int

const (
	None ConstraintKind = iota
	At
	AtOrAbove
	AtOrBelow
	Between
)

func (k ConstraintKind) String() string {
	switch k {
	case None:
		return "none"
	case At:
		return "at"
	case AtOrAbove:
		return "at-or-above"
	case AtOrBelow:
		return "at-or-below"
	case Between:
		return "between"
	}
	return fmt.Sprintf("ConstraintKind(%d)", int(k))
}

// ParseConstraintKind maps the spellings used in the data files
func ParseConstraintKind(s string) (ConstraintKind, error) {
	switch s {
	case "", "none":
		return None, nil
	case "at", "=":
		return At, nil
	case "at-or-above", "+":
		return AtOrAbove, nil
	case "at-or-below", "-":
		return AtOrBelow, nil
	case "between", "B":
		return Between, nil
	}
	return None, fmt.Errorf("unknown constraint kind %q", s)
}

// Constraint restricts an altitude (feet) or a speed (knots IAS) at a leg.
// At uses Lower, AtOrAbove uses Lower, AtOrBelow uses Upper, Between uses both.
type Constraint struct {
	Kind  ConstraintKind `json:"kind"`
	Lower float64        `json:"lower,omitempty"`
	Upper float64        `json:"upper,omitempty"`
}

// AtValue is shorthand for an "at" constraint
func AtValue(v float64) Constraint { return Constraint{Kind: At, Lower: v, Upper: v} }

// AtOrAboveValue is shorthand for an "at-or-above" constraint
func AtOrAboveValue(v float64) Constraint { return Constraint{Kind: AtOrAbove, Lower: v} }

// AtOrBelowValue is shorthand for an "at-or-below" constraint
func AtOrBelowValue(v float64) Constraint { return Constraint{Kind: AtOrBelow, Upper: v} }

// BetweenValues is shorthand for a "between" constraint
func BetweenValues(lo, hi float64) Constraint { return Constraint{Kind: Between, Lower: lo, Upper: hi} }

// IsSet reports whether the constraint restricts anything
func (c Constraint) IsSet() bool { return c.Kind != None }

// Validate checks the bounds are consistent with the kind
func (c Constraint) Validate() error {
	switch c.Kind {
	case Between:
		if c.Lower > c.Upper {
			return fmt.Errorf("between constraint has lower %.0f above upper %.0f", c.Lower, c.Upper)
		}
	case None, At, AtOrAbove, AtOrBelow:
	default:
		return fmt.Errorf("invalid constraint kind %d", c.Kind)
	}
	return nil
}

// Bounds returns the closed interval the constraint permits
func (c Constraint) Bounds() (lo, hi float64) {
	switch c.Kind {
	case At:
		return c.Lower, c.Lower
	case AtOrAbove:
		return c.Lower, math.Inf(1)
	case AtOrBelow:
		return math.Inf(-1), c.Upper
	case Between:
		return c.Lower, c.Upper
	}
	return math.Inf(-1), math.Inf(1)
}

// Satisfied reports whether v lies within the constraint, allowing tol either side
func (c Constraint) Satisfied(v, tol float64) bool {
	lo, hi := c.Bounds()
	return v >= lo-tol && v <= hi+tol
}

// Resolve returns the single target the constraint implies for an aircraft
// currently at current that would otherwise head for desired. The result is the
// least restrictive value that satisfies the constraint:
//   - at targets the value,
//   - at-or-above / at-or-below clamp desired to the bound,
//   - between holds current when inside the band and targets the midpoint otherwise.
func (c Constraint) Resolve(current, desired float64) float64 {
	switch c.Kind {
	case At:
		return c.Lower
	case AtOrAbove:
		return math.Max(desired, c.Lower)
	case AtOrBelow:
		return math.Min(desired, c.Upper)
	case Between:
		if current < c.Lower || current > c.Upper {
			return (c.Lower + c.Upper) / 2
		}
		return current
	}
	return desired
}

func (c Constraint) String() string {
	switch c.Kind {
	case At:
		return fmt.Sprintf("%.0f", c.Lower)
	case AtOrAbove:
		return fmt.Sprintf("%.0f+", c.Lower)
	case AtOrBelow:
		return fmt.Sprintf("%.0f-", c.Upper)
	case Between:
		return fmt.Sprintf("%.0f-%.0f", c.Lower, c.Upper)
	}
	return ""
}

// ParseConstraint reads the String form back: "6000", "8000+", "13000-" and
// "4000-6000". Altitudes may also be written as flight levels ("FL120+").
// An empty string is no constraint.
func ParseConstraint(s string) (Constraint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Constraint{}, nil
	}
	num := func(v string) (float64, error) {
		scale := 1.0
		if fl, ok := strings.CutPrefix(strings.ToUpper(v), "FL"); ok {
			v, scale = fl, 100
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || f < 0 || math.IsInf(f, 0) {
			return 0, fmt.Errorf("invalid constraint value %q", v)
		}
		return f * scale, nil
	}

	var (
		c   Constraint
		err error
	)
	switch {
	case strings.HasSuffix(s, "+"):
		c.Kind = AtOrAbove
		c.Lower, err = num(s[:len(s)-1])
	case strings.HasSuffix(s, "-"):
		c.Kind = AtOrBelow
		c.Upper, err = num(s[:len(s)-1])
	case strings.Contains(s, "-"):
		lo, hi, _ := strings.Cut(s, "-")
		c.Kind = Between
		if c.Lower, err = num(lo); err == nil {
			c.Upper, err = num(hi)
		}
	default:
		c.Kind = At
		c.Lower, err = num(s)
		c.Upper = c.Lower
	}
	if err != nil {
		return Constraint{}, err
	}
	return c, c.Validate()
}
