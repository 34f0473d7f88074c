package scoring

import (
	"math"
	"testing"

	"github.com/yegors/tracon-sim/internal/conflict"
)

func TestCompute(t *testing.T) {
	w := DefaultWeights()
	tests := []struct {
		name  string
		c     Counters
		score float64
		grade string
	}{
		{"clean session", Counters{}, 1000, "A"},
		{"clamped high", Counters{AircraftHandled: 20}, 1000, "A"},
		{"one violation", Counters{Violations: 1, ViolationSeconds: 10, ConflictAlerts: 2, AircraftHandled: 5}, 1000 - 100 - 20 - 20 + 50, "A"},
		{"missed handoffs", Counters{MissedHandoffs: 4, AircraftHandled: 4}, 1000 - 200 + 40, "B"},
		{"delay", Counters{AircraftHandled: 2, DelaySeconds: 2 * 600}, 1000 - 50 + 20, "A"},
		{"clamped low", Counters{Violations: 20}, 0, "F"},
		{"grade D", Counters{Violations: 3, ConflictAlerts: 3, ViolationSeconds: 25}, 1000 - 300 - 30 - 50, "D"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Compute(tt.c, w)
			if math.Abs(m.Score-tt.score) > 1e-9 || m.Grade != tt.grade {
				t.Errorf("score %.1f %s, want %.1f %s", m.Score, m.Grade, tt.score, tt.grade)
			}
		})
	}
}

func TestComputeIsIdempotent(t *testing.T) {
	a := NewAggregator(DefaultWeights())
	a.ObserveAlerts(conflict.Result{Raised: []conflict.Alert{{Kind: conflict.KindConflict, Severity: conflict.Warning}}}, 1)
	a.Departed(true, 90)
	a.CommandAccepted()

	first, second := a.Metrics(), a.Metrics()
	if first != second {
		t.Errorf("recomputation differs: %+v vs %+v", first, second)
	}
}

func TestAggregator(t *testing.T) {
	a := NewAggregator(DefaultWeights())
	warning := conflict.Alert{Kind: conflict.KindConflict, Severity: conflict.Warning}
	caution := conflict.Alert{Kind: conflict.KindConflict, Severity: conflict.Caution}
	msaw := conflict.Alert{Kind: conflict.KindMSAW, Severity: conflict.Warning}

	a.ObserveAlerts(conflict.Result{Raised: []conflict.Alert{caution, msaw}, Active: []conflict.Alert{caution, msaw}}, 1)
	a.ObserveAlerts(conflict.Result{Raised: []conflict.Alert{warning}, Active: []conflict.Alert{warning}}, 1)
	a.ObserveAlerts(conflict.Result{Active: []conflict.Alert{warning}}, 1)
	a.Handoff(false)
	a.Handoff(true)
	a.Departed(false, 120)
	a.Departed(true, -30)

	c := a.Counters()
	want := Counters{
		Violations:       1,
		ViolationSeconds: 2,
		ConflictAlerts:   2,
		AircraftHandled:  2,
		MissedHandoffs:   1,
		HandoffCredits:   1,
		DelaySeconds:     120,
	}
	if c != want {
		t.Errorf("counters = %+v, want %+v", c, want)
	}
	m := a.Metrics()
	if m.AverageDelaySeconds != 60 || m.HandoffQuality != 0.5 {
		t.Errorf("derived = %+v", m)
	}

	final := a.Finalize()
	a.CommandAccepted()
	a.Departed(true, 0)
	if a.Counters() != c || !final.Final {
		t.Error("counters changed after finalize")
	}
}
