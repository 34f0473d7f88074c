// Package scoring accumulates session counters and derives the controller's
// score and grade from them.
package scoring

import (
	"math"

	"github.com/yegors/tracon-sim/internal/conflict"
)

// Weights are the points awarded or deducted per counted item
type Weights struct {
	Base               float64 `toml:"base"`
	PerViolation       float64 `toml:"per_violation"`
	PerViolationSecond float64 `toml:"per_violation_second"`
	PerConflictAlert   float64 `toml:"per_conflict_alert"`
	PerMissedHandoff   float64 `toml:"per_missed_handoff"`
	PerDelayMinute     float64 `toml:"per_delay_minute"` // applied to the average delay
	PerHandled         float64 `toml:"per_handled"`
}

// DefaultWeights returns the standard weighting
func DefaultWeights() Weights {
	return Weights{
		Base:               1000,
		PerViolation:       -100,
		PerViolationSecond: -2,
		PerConflictAlert:   -10,
		PerMissedHandoff:   -50,
		PerDelayMinute:     -5,
		PerHandled:         10,
	}
}

const maxScore = 1000

// Counters only ever grow
type Counters struct {
	Violations       int     `json:"violations"`
	ViolationSeconds float64 `json:"violation_seconds"`
	ConflictAlerts   int     `json:"conflict_alerts"`
	AircraftHandled  int     `json:"aircraft_handled"`
	CommandsIssued   int     `json:"commands_issued"`
	MissedHandoffs   int     `json:"missed_handoffs"`
	HandoffCredits   int     `json:"handoff_credits"`
	DelaySeconds     float64 `json:"delay_seconds"`
}

// Metrics are the counters plus the values derived from them
type Metrics struct {
	Counters
	AverageDelaySeconds float64 `json:"average_delay_seconds"`
	HandoffQuality      float64 `json:"handoff_quality"` // fraction of handoffs made on time
	Score               float64 `json:"score"`
	Grade               string  `json:"grade"`
	Final               bool    `json:"final"`
}

// Compute derives the metrics from the counters. It has no other inputs.
func Compute(c Counters, w Weights) Metrics {
	m := Metrics{Counters: c, HandoffQuality: 1}
	if c.AircraftHandled > 0 {
		m.AverageDelaySeconds = c.DelaySeconds / float64(c.AircraftHandled)
	}
	if n := c.HandoffCredits + c.MissedHandoffs; n > 0 {
		m.HandoffQuality = float64(c.HandoffCredits) / float64(n)
	}

	score := w.Base +
		w.PerViolation*float64(c.Violations) +
		w.PerViolationSecond*c.ViolationSeconds +
		w.PerConflictAlert*float64(c.ConflictAlerts) +
		w.PerMissedHandoff*float64(c.MissedHandoffs) +
		w.PerDelayMinute*m.AverageDelaySeconds/60 +
		w.PerHandled*float64(c.AircraftHandled)
	m.Score = math.Max(0, math.Min(maxScore, score))
	m.Grade = Grade(m.Score)
	return m
}

// Grade maps a score to a letter
func Grade(score float64) string {
	switch {
	case score >= 900:
		return "A"
	case score >= 800:
		return "B"
	case score >= 700:
		return "C"
	case score >= 600:
		return "D"
	}
	return "F"
}

// Aggregator owns the counters of one session. It is not safe for concurrent
// use; the engine calls it from inside the tick.
type Aggregator struct {
	weights  Weights
	counters Counters
	final    bool
}

// NewAggregator creates an empty aggregator
func NewAggregator(w Weights) *Aggregator {
	return &Aggregator{weights: w}
}

// ObserveAlerts counts the conflict alerts raised this tick and accrues
// violation time for every pair still in violation
func (a *Aggregator) ObserveAlerts(res conflict.Result, dt float64) {
	if a.final {
		return
	}
	for _, al := range res.Raised {
		if al.Kind != conflict.KindConflict {
			continue
		}
		a.counters.ConflictAlerts++
		if al.Severity == conflict.Warning {
			a.counters.Violations++
		}
	}
	for _, al := range res.Active {
		if al.Kind == conflict.KindConflict && al.Severity == conflict.Warning {
			a.counters.ViolationSeconds += dt
		}
	}
}

// CommandAccepted counts one accepted command
func (a *Aggregator) CommandAccepted() {
	if !a.final {
		a.counters.CommandsIssued++
	}
}

// Handoff credits a handoff made before the aircraft was marked as missed
func (a *Aggregator) Handoff(missed bool) {
	if !a.final && !missed {
		a.counters.HandoffCredits++
	}
}

// Departed records an aircraft leaving the session. missedHandoff is true
// when it left without a correct handoff; delay is how much longer than
// nominal it spent in the airspace.
func (a *Aggregator) Departed(missedHandoff bool, delaySeconds float64) {
	if a.final {
		return
	}
	a.counters.AircraftHandled++
	if missedHandoff {
		a.counters.MissedHandoffs++
	}
	a.counters.DelaySeconds += math.Max(0, delaySeconds)
}

// Counters returns a copy of the raw counters
func (a *Aggregator) Counters() Counters { return a.counters }

// Metrics recomputes the derived values from the counters
func (a *Aggregator) Metrics() Metrics {
	m := Compute(a.counters, a.weights)
	m.Final = a.final
	return m
}

// Finalize freezes the counters
func (a *Aggregator) Finalize() Metrics {
	a.final = true
	return a.Metrics()
}
