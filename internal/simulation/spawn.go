package simulation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yegors/tracon-sim/internal/aircraft"
	"github.com/yegors/tracon-sim/internal/physics"
	"github.com/yegors/tracon-sim/internal/procedure"
	"github.com/yegors/tracon-sim/pkg/logger"
)

// SpawnRequest describes a new flight: its type, initial state and assigned
// procedure. Departures with no position start at the runway threshold.
type SpawnRequest struct {
	Callsign   string            `json:"callsign" yaml:"callsign"`
	Type       string            `json:"type" yaml:"type"`
	Category   aircraft.Category `json:"category" yaml:"category"`
	Position   *physics.LatLon   `json:"position,omitempty" yaml:"position,omitempty"`
	AltitudeFt float64           `json:"altitude_ft,omitempty" yaml:"altitude_ft,omitempty"`
	HeadingDeg float64           `json:"heading_deg,omitempty" yaml:"heading_deg,omitempty"` // true
	IAS        float64           `json:"ias,omitempty" yaml:"ias,omitempty"`

	Procedure  string `json:"procedure,omitempty" yaml:"procedure,omitempty"`
	Transition string `json:"transition,omitempty" yaml:"transition,omitempty"`
	Runway     string `json:"runway,omitempty" yaml:"runway,omitempty"`
}

// Spawn adds a flight to the arena and returns its id
func (e *Engine) Spawn(req SpawnRequest) (string, error) {
	at, err := e.world.Performance.Lookup(req.Type)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Callsign) == "" {
		return "", errors.New("callsign is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended {
		return "", ErrSessionEnded
	}
	if len(e.arena) >= e.cfg.MaxAircraft {
		return "", fmt.Errorf("%w: limit %d", ErrTooManyAircraft, e.cfg.MaxAircraft)
	}
	for _, ac := range e.arena {
		if strings.EqualFold(ac.Callsign, req.Callsign) {
			return "", fmt.Errorf("callsign %s already in use", req.Callsign)
		}
	}

	e.nextID++
	ac := aircraft.New(fmt.Sprintf("AC%04d", e.nextID), strings.ToUpper(req.Callsign), at, req.Category)
	if err := e.place(ac, req); err != nil {
		e.nextID--
		return "", err
	}
	if err := e.assign(ac, req); err != nil {
		e.nextID--
		return "", err
	}
	ac.SpawnedAt = e.simTime
	ac.NominalSeconds = e.nominalSeconds(ac)

	e.arena[ac.ID] = ac
	e.order = append(e.order, ac.ID)
	e.snapshot.Store(e.buildSnapshot())

	e.logger.Info("Aircraft spawned",
		logger.String("id", ac.ID),
		logger.String("callsign", ac.Callsign),
		logger.String("type", ac.TypeCode),
		logger.String("category", ac.Category.String()),
		logger.String("procedure", ac.Nav.Route.Procedure),
		logger.Float64("altitude", ac.AltitudeFt),
	)
	return ac.ID, nil
}

// place sets the initial kinematic state
func (e *Engine) place(ac *aircraft.Aircraft, req SpawnRequest) error {
	at := ac.Perf()
	ap := e.world.Airport
	switch {
	case req.Position != nil:
		ac.Position = *req.Position
		ac.AltitudeFt = req.AltitudeFt
		ac.HeadingDeg = req.HeadingDeg
	case ac.Category == aircraft.Departure && req.Runway != "":
		rwy, end, ok := ap.RunwayEnd(req.Runway)
		if !ok {
			return fmt.Errorf("%w: runway %s", procedure.ErrUnknownFix, req.Runway)
		}
		ac.Position = rwy.Ends[end].Threshold
		ac.AltitudeFt = rwy.Ends[end].ElevationFt
		ac.HeadingDeg = rwy.HeadingDeg(end)
	default:
		return errors.New("spawn needs a position or a departure runway")
	}

	ac.IAS = req.IAS
	if ac.IAS <= 0 {
		if ac.Category == aircraft.Departure {
			ac.IAS = at.Speed.Departure
		} else {
			ac.IAS = at.CruiseSpeed(ac.AltitudeFt)
		}
	}
	if ac.AltitudeFt < 0 || ac.AltitudeFt > at.CeilingFt {
		return fmt.Errorf("spawn altitude %.0f outside %s envelope", ac.AltitudeFt, at.Designator)
	}
	ac.HeadingDeg = physics.NormalizeHeading(ac.HeadingDeg)
	ac.TAS = physics.IASToTAS(ac.IAS, ac.AltitudeFt)
	ac.GS, ac.TrackDeg = physics.GroundVector(ac.HeadingDeg, ac.TAS, e.world.Wind.WindAt(ac.Position, ac.AltitudeFt))

	ac.Nav.Lateral = aircraft.Lateral{Mode: aircraft.ModeManual, HeadingDeg: ac.HeadingDeg}
	ac.Nav.Vertical = aircraft.Vertical{Mode: aircraft.ModeManual, AltitudeFt: ac.AltitudeFt}
	ac.Nav.Speed = aircraft.Speed{Mode: aircraft.ModeManual, IAS: ac.IAS}
	ac.Nav.Flags.LastGoodHeading = ac.HeadingDeg
	ac.Targets = aircraft.Targets{HeadingDeg: ac.HeadingDeg, AltitudeFt: ac.AltitudeFt, IAS: ac.IAS}
	return nil
}

// assign binds the requested procedure and puts all three axes on it
func (e *Engine) assign(ac *aircraft.Aircraft, req SpawnRequest) error {
	ac.Nav.Route.Runway = req.Runway
	if req.Procedure == "" {
		return nil
	}
	kind := procedure.STAR
	if ac.Category == aircraft.Departure {
		kind = procedure.SID
	}
	p, err := e.world.Airport.Procedure(kind, req.Procedure)
	if err != nil && kind == procedure.STAR {
		// arrivals may also be spawned straight onto an approach
		var aerr error
		if p, aerr = e.world.Airport.Procedure(procedure.Approach, req.Procedure); aerr == nil {
			err = nil
		}
	}
	if err != nil {
		return err
	}
	legs, err := p.Sequence(req.Runway, req.Transition)
	if err != nil {
		return err
	}

	ac.Nav.Route.Bind(p, req.Transition, legs, ac.Position)
	ac.Nav.Lateral.Mode = aircraft.ModeProcedure
	ac.Nav.Vertical.Mode = aircraft.ModeProcedure
	ac.Nav.Speed.Mode = aircraft.ModeProcedure
	if p.Kind == procedure.Approach {
		ac.Nav.Flags.ClearedApproach = true
	}
	if n := len(legs); n > 0 {
		ac.Destination = legs[n-1].Fix
	}
	return nil
}

// nominalSeconds is the unimpeded time to fly the route at the spawn
// groundspeed: the assigned legs, or straight to the field or the boundary
func (e *Engine) nominalSeconds(ac *aircraft.Aircraft) float64 {
	gs := ac.GS
	if gs <= 0 {
		return 0
	}
	dist := procedure.RouteLengthNM(ac.Position, ac.Nav.Route.Legs)
	if dist == 0 {
		ap := e.world.Airport
		if ac.Category == aircraft.Departure {
			dist = ap.Airspace.BoundaryDistanceNM(ac.Position)
		} else {
			dist = physics.DistanceNM(ac.Position, ap.Reference)
		}
	}
	return dist / gs * 3600
}

// Remove takes an aircraft out of the session by controller action
func (e *Engine) Remove(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended {
		return ErrSessionEnded
	}
	ac, ok := e.arena[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAircraft, id)
	}
	ac.Status = aircraft.StatusRemoved
	d := e.retire(ac)
	e.pending = append(e.pending, d)
	e.snapshot.Store(e.buildSnapshot())

	e.logger.Info("Aircraft removed",
		logger.String("id", id),
		logger.String("callsign", ac.Callsign),
		logger.Bool("missed_handoff", d.MissedHandoff),
	)
	return nil
}
