// Package conflict scans the traffic picture each tick for loss of separation,
// wake, terrain, runway and airspace hazards and turns them into alerts.
package conflict

import (
	"fmt"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/yegors/tracon-sim/internal/aircraft"
	"github.com/yegors/tracon-sim/internal/perf"
	"github.com/yegors/tracon-sim/internal/procedure"
	"github.com/yegors/tracon-sim/pkg/logger"
)

// Config holds the separation standards and hazard thresholds
type Config struct {
	LookAheadSeconds float64    // predictive conflict window
	VerticalFt       float64    // vertical minimum below HighAltitudeFt
	VerticalHighFt   float64    // vertical minimum at and above HighAltitudeFt
	HighAltitudeFt   float64    // FL290
	LateralNM        [4]float64 // lateral minimum indexed by the leader's wake category

	MSACacheSize       int     // MSA lookups kept
	MSAQuantumNM       float64 // grid the MSA cache is keyed on
	DepartureInhibitNM float64 // climbing departures this close to the field are not checked

	RunwayZone    procedure.RunwayZone
	ExitWarningNM float64 // distance to the lateral boundary that triggers an exit caution
	ExitWarningFt float64 // distance below the ceiling that triggers an exit caution
}

// DefaultConfig returns the standard minima: 3/3/4/5 nm by wake category,
// 1000 ft (2000 ft from FL290) and a two minute look-ahead
func DefaultConfig() Config {
	return Config{
		LookAheadSeconds:   120,
		VerticalFt:         1000,
		VerticalHighFt:     2000,
		HighAltitudeFt:     29000,
		LateralNM:          [4]float64{3, 3, 4, 5},
		MSACacheSize:       4096,
		MSAQuantumNM:       0.25,
		DepartureInhibitNM: 5,
		RunwayZone:         procedure.RunwayZone{ExtensionNM: 2, HalfWidthNM: 0.5, CeilingAGLFt: 700},
		ExitWarningNM:      2,
		ExitWarningFt:      500,
	}
}

// Validate fills zero values from DefaultConfig
func (c *Config) Validate() error {
	def := DefaultConfig()
	if c.LookAheadSeconds < 0 {
		return fmt.Errorf("invalid look-ahead: %.0f s", c.LookAheadSeconds)
	}
	if c.LookAheadSeconds == 0 {
		c.LookAheadSeconds = def.LookAheadSeconds
	}
	if c.VerticalFt <= 0 {
		c.VerticalFt = def.VerticalFt
	}
	if c.VerticalHighFt <= 0 {
		c.VerticalHighFt = def.VerticalHighFt
	}
	if c.HighAltitudeFt <= 0 {
		c.HighAltitudeFt = def.HighAltitudeFt
	}
	for i, v := range c.LateralNM {
		if v <= 0 {
			c.LateralNM[i] = def.LateralNM[i]
		}
	}
	if c.MSACacheSize <= 0 {
		c.MSACacheSize = def.MSACacheSize
	}
	if c.MSAQuantumNM <= 0 {
		c.MSAQuantumNM = def.MSAQuantumNM
	}
	if c.DepartureInhibitNM < 0 {
		c.DepartureInhibitNM = 0
	}
	if c.RunwayZone == (procedure.RunwayZone{}) {
		c.RunwayZone = def.RunwayZone
	}
	if c.ExitWarningNM <= 0 {
		c.ExitWarningNM = def.ExitWarningNM
	}
	if c.ExitWarningFt <= 0 {
		c.ExitWarningFt = def.ExitWarningFt
	}
	return nil
}

// Result is the outcome of one scan
type Result struct {
	Raised []Alert // alerts new this tick, including escalations
	Active []Alert // every unresolved alert
}

// Detector keeps the open conditions between scans so alerts are raised once
// per occurrence
type Detector struct {
	cfg     Config
	airport *procedure.Airport
	logger  *logger.Logger

	msa    *lru.Cache[cell, float64]
	open   map[key]*open
	nextID uint64

	badGeometry map[string]bool
}

// NewDetector creates a detector for the airport's airspace
func NewDetector(airport *procedure.Airport, cfg Config, log *logger.Logger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cache, err := lru.New[cell, float64](cfg.MSACacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create MSA cache: %w", err)
	}
	return &Detector{
		cfg:         cfg,
		airport:     airport,
		logger:      log.Named("conflict"),
		msa:         cache,
		open:        make(map[key]*open),
		badGeometry: make(map[string]bool),
	}, nil
}

// Config returns the detector's thresholds
func (d *Detector) Config() Config { return d.cfg }

// Scan evaluates every active aircraft and pair once
func (d *Detector) Scan(traffic []*aircraft.Aircraft, simTime time.Duration) Result {
	active := make([]*aircraft.Aircraft, 0, len(traffic))
	for _, ac := range traffic {
		if ac != nil && !ac.Status.Terminal() && ac.Perf() != nil {
			active = append(active, ac)
		}
	}

	found := findings{}
	inZone := d.runwayConflicts(active, found)
	for i, a := range active {
		for _, b := range active[i+1:] {
			d.separation(a, b, found)
			d.wake(a, b, found)
		}
		if !inZone[a.ID] {
			d.msaw(a, found)
		}
		d.airspace(a, found)
	}
	return d.resolve(found, simTime)
}

// resolve turns this scan's findings into alerts. An open condition is
// re-raised only when it escalates; one that is absent from the scan closes.
func (d *Detector) resolve(found findings, simTime time.Duration) Result {
	var res Result
	for _, k := range found.sortedKeys() {
		f := found[k]
		o, ok := d.open[k]
		if ok && f.severity <= o.current {
			o.current = f.severity
			continue
		}
		d.nextID++
		a := Alert{
			ID:        d.nextID,
			Kind:      k.kind,
			Severity:  f.severity,
			Aircraft:  k.aircraft(),
			Subject:   k.subject,
			Message:   f.message,
			SimTime:   simTime,
			Predicted: f.predicted,
		}
		d.open[k] = &open{alert: a, current: f.severity}
		res.Raised = append(res.Raised, a)
		d.logger.Debug("Alert raised",
			logger.String("kind", string(a.Kind)),
			logger.String("severity", a.Severity.String()),
			logger.String("message", a.Message))
	}
	for k := range d.open {
		if _, ok := found[k]; !ok {
			delete(d.open, k)
		}
	}

	res.Active = make([]Alert, 0, len(d.open))
	for _, o := range d.open {
		res.Active = append(res.Active, o.alert)
	}
	sort.Slice(res.Active, func(i, j int) bool { return res.Active[i].ID < res.Active[j].ID })
	return res
}

// Lookup returns the open alert of the given kind for a pair, in either order
func (d *Detector) Lookup(kind Kind, a, b string) (Alert, bool) {
	o, ok := d.open[pairKey(kind, a, b)]
	if !ok {
		return Alert{}, false
	}
	return o.alert, true
}

// Reset forgets all open conditions
func (d *Detector) Reset() {
	d.open = make(map[key]*open)
}

// geometryError logs a malformed polygon once and reports that the check is skipped
func (d *Detector) geometryError(name string, err error) {
	if d.badGeometry[name] {
		return
	}
	d.badGeometry[name] = true
	d.logger.Warn("Skipping check with malformed geometry",
		logger.String("area", name),
		logger.Error(err))
}

func wakeRank(w perf.WakeCategory) int {
	if w < perf.WakeLight || w > perf.WakeSuper {
		return int(perf.WakeMedium)
	}
	return int(w)
}
