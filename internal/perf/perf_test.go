package perf

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func testType() *AircraftType {
	at := &AircraftType{Designator: "B738", Wake: WakeMedium, CeilingFt: 41000}
	at.Speed.StallClean = 140
	at.Speed.StallFlaps = 110
	at.Speed.VMO = 340
	at.Speed.MMO = 0.82
	at.Speed.CruiseIAS = 290
	at.Speed.CruiseMach = 0.78
	at.Climb = []ClimbBand{{AltitudeFt: 20000, RateFPM: 2000}, {AltitudeFt: 0, RateFPM: 3000}, {AltitudeFt: 35000, RateFPM: 1000}}
	at.Descent.StandardFPM = 1800
	at.Descent.MaxFPM = 3500
	at.Accel.AccelerateKtsPerSec = 2
	at.Accel.DecelerateKtsPerSec = 1.5
	at.Turn.MaxBankDeg = 25
	return at
}

func TestValidateFillsDefaults(t *testing.T) {
	at := testType()
	if err := at.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if at.Speed.MaxBelow10k != 250 {
		t.Errorf("MaxBelow10k = %f, want 250", at.Speed.MaxBelow10k)
	}
	if at.Turn.StandardRateDegSec != 3 {
		t.Errorf("StandardRateDegSec = %f, want 3", at.Turn.StandardRateDegSec)
	}
	if at.Climb[0].AltitudeFt != 0 {
		t.Errorf("climb bands not sorted: %+v", at.Climb)
	}
	if math.Abs(at.MinSpeed(ConfigClean)-182) > 1e-9 || math.Abs(at.MinSpeed(ConfigApproach)-143) > 1e-9 {
		t.Errorf("min speeds = %f / %f", at.MinSpeed(ConfigClean), at.MinSpeed(ConfigApproach))
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AircraftType)
	}{
		{"no designator", func(at *AircraftType) { at.Designator = "" }},
		{"no ceiling", func(at *AircraftType) { at.CeilingFt = 0 }},
		{"flaps stall above clean", func(at *AircraftType) { at.Speed.StallFlaps = 150 }},
		{"no climb table", func(at *AircraftType) { at.Climb = nil }},
		{"descent max below standard", func(at *AircraftType) { at.Descent.MaxFPM = 1000 }},
		{"excessive bank", func(at *AircraftType) { at.Turn.MaxBankDeg = 60 }},
		{"mmo below minimum speed at ceiling", func(at *AircraftType) { at.Speed.StallClean = 200 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := testType()
			tt.mutate(at)
			if err := at.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestClimbRate(t *testing.T) {
	at := testType()
	if err := at.Validate(); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		alt, want float64
	}{
		{-100, 3000},
		{0, 3000},
		{10000, 2500},
		{20000, 2000},
		{35000, 1000},
		{38000, 500},
		{41000, 0},
	}
	for _, tt := range tests {
		if got := at.ClimbRate(tt.alt); math.Abs(got-tt.want) > 1e-6 {
			t.Errorf("ClimbRate(%.0f) = %f, want %f", tt.alt, got, tt.want)
		}
	}
	if at.MaxClimbRate() != 3000 {
		t.Errorf("MaxClimbRate = %f", at.MaxClimbRate())
	}
}

func TestSpeedLimits(t *testing.T) {
	at := testType()
	if err := at.Validate(); err != nil {
		t.Fatal(err)
	}
	if got := at.SpeedLimit(5000); got != 250 {
		t.Errorf("SpeedLimit(5000) = %f, want 250", got)
	}
	if got := at.MaxSpeed(5000); got != 340 {
		t.Errorf("MaxSpeed(5000) = %f, want Vmo", got)
	}
	// Mmo governs high up
	if got := at.MaxSpeed(39000); got >= 340 {
		t.Errorf("MaxSpeed(39000) = %f, want Mmo-limited", got)
	}
	if cs := at.CruiseSpeed(35000); cs > at.MaxSpeed(35000) {
		t.Errorf("cruise speed %f above limit", cs)
	}
}

func TestSpeedEnvelope(t *testing.T) {
	at := testType()
	at.Speed.StallClean = 200
	if err := at.Validate(); err == nil || !strings.Contains(err.Error(), "below the clean minimum speed") {
		t.Fatalf("Validate() = %v", err)
	}
	tests := []struct {
		name   string
		alt    float64
		lo, hi float64
	}{
		{"low level", 5000, 260, 340},
		{"ceiling", 41000, at.MaxSpeed(41000), at.MaxSpeed(41000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := at.SpeedEnvelope(ConfigClean, tt.alt)
			if math.Abs(lo-tt.lo) > 1e-9 || math.Abs(hi-tt.hi) > 1e-9 {
				t.Errorf("SpeedEnvelope(%.0f) = [%.1f, %.1f], want [%.1f, %.1f]", tt.alt, lo, hi, tt.lo, tt.hi)
			}
		})
	}
}

func TestTable(t *testing.T) {
	a, b := testType(), testType()
	if _, err := NewTable([]*AircraftType{a, b}); err == nil {
		t.Errorf("expected duplicate designator error")
	}

	table, err := NewTable([]*AircraftType{testType()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := table.Lookup("b738"); err != nil {
		t.Errorf("case-insensitive lookup failed: %v", err)
	}
	if _, err := table.Lookup("A388"); !errors.Is(err, ErrUnknownType) {
		t.Errorf("Lookup(A388) = %v, want ErrUnknownType", err)
	}
}

func TestWakeCategoryText(t *testing.T) {
	var w WakeCategory
	if err := w.UnmarshalText([]byte("h")); err != nil || w != WakeHeavy {
		t.Errorf("UnmarshalText(h) = %v, %v", w, err)
	}
	if err := w.UnmarshalText([]byte("X")); err == nil {
		t.Errorf("expected error for unknown category")
	}
}
