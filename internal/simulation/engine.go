// Package simulation owns the aircraft arena and drives the tick: commands,
// navigation, dynamics, hazard detection, scoring and membership changes, in
// that order, under a single lock. Readers get immutable snapshots.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yegors/tracon-sim/internal/aircraft"
	"github.com/yegors/tracon-sim/internal/command"
	"github.com/yegors/tracon-sim/internal/conflict"
	"github.com/yegors/tracon-sim/internal/dynamics"
	"github.com/yegors/tracon-sim/internal/nav"
	"github.com/yegors/tracon-sim/internal/perf"
	"github.com/yegors/tracon-sim/internal/procedure"
	"github.com/yegors/tracon-sim/internal/scoring"
	"github.com/yegors/tracon-sim/internal/weather"
	"github.com/yegors/tracon-sim/pkg/logger"
)

var (
	// ErrSessionEnded is returned for any mutation after End
	ErrSessionEnded = errors.New("session ended")
	// ErrUnknownAircraft is returned for an id that is not in the arena
	ErrUnknownAircraft = errors.New("unknown aircraft")
	// ErrTooManyAircraft is returned when the arena is full
	ErrTooManyAircraft = errors.New("too many aircraft")
)

// Config controls the tick loop
type Config struct {
	TickInterval   time.Duration   // wall-clock time between ticks
	TimeScale      float64         // simulated seconds per wall-clock second
	MaxTimeScale   float64         // upper bound for SetTimeScale
	MaxStepSeconds float64         // longest single integration step
	MaxAircraft    int             // arena capacity
	SinkBuffer     int             // frames queued for sinks before dropping
	CommandTimeout time.Duration   // how long ApplyCommand waits for the next tick
	Separation     conflict.Config // hazard thresholds
	Weights        scoring.Weights
}

// DefaultConfig returns a one-second real-time tick
func DefaultConfig() Config {
	return Config{
		TickInterval:   time.Second,
		TimeScale:      1,
		MaxTimeScale:   16,
		MaxStepSeconds: 1,
		MaxAircraft:    50,
		SinkBuffer:     64,
		CommandTimeout: 5 * time.Second,
		Separation:     conflict.DefaultConfig(),
		Weights:        scoring.DefaultWeights(),
	}
}

// World is the read-only reference data a session runs against
type World struct {
	Airport     *procedure.Airport
	Performance *perf.Table
	Wind        weather.Provider
}

type queued struct {
	id    string
	cmd   command.Command
	reply chan command.Result
}

// Engine is one simulation session
type Engine struct {
	cfg    Config
	world  World
	logger *logger.Logger

	interp   *command.Interpreter
	detector *conflict.Detector
	score    *scoring.Aggregator

	mu        sync.Mutex
	arena     map[string]*aircraft.Aircraft
	order     []string
	queue     []queued
	simTime   time.Duration
	tick      uint64
	paused    bool
	ended     bool
	timeScale float64
	nextID    int
	active    []conflict.Alert
	pending   []Departure // removed between ticks

	snapshot atomic.Pointer[Snapshot]

	sinks   []Sink
	frames  chan Frame
	dropped atomic.Int64
}

// NewEngine creates an empty, running session
func NewEngine(cfg Config, world World, log *logger.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if world.Airport == nil || world.Performance == nil {
		return nil, fmt.Errorf("simulation requires an airport and a performance table")
	}
	if world.Wind == nil {
		world.Wind = weather.Calm()
	}
	log = log.Named("simulation")
	detector, err := conflict.NewDetector(world.Airport, cfg.Separation, log)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		world:     world,
		logger:    log,
		interp:    command.NewInterpreter(world.Airport),
		detector:  detector,
		score:     scoring.NewAggregator(cfg.Weights),
		arena:     make(map[string]*aircraft.Aircraft),
		timeScale: cfg.TimeScale,
		frames:    make(chan Frame, cfg.SinkBuffer),
	}
	e.snapshot.Store(e.buildSnapshot())
	return e, nil
}

// Validate fills defaults and rejects impossible settings
func (c *Config) Validate() error {
	def := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.MaxTimeScale <= 0 {
		c.MaxTimeScale = def.MaxTimeScale
	}
	if c.TimeScale == 0 {
		c.TimeScale = def.TimeScale
	}
	if c.TimeScale < 0 || c.TimeScale > c.MaxTimeScale {
		return fmt.Errorf("invalid time scale %.2f: must be in (0, %.0f]", c.TimeScale, c.MaxTimeScale)
	}
	if c.MaxStepSeconds <= 0 {
		c.MaxStepSeconds = def.MaxStepSeconds
	}
	if c.MaxAircraft <= 0 {
		c.MaxAircraft = def.MaxAircraft
	}
	if c.SinkBuffer <= 0 {
		c.SinkBuffer = def.SinkBuffer
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = def.CommandTimeout
	}
	if c.Weights == (scoring.Weights{}) {
		c.Weights = def.Weights
	}
	return c.Separation.Validate()
}

// AddSink registers a frame consumer. Sinks must be added before Run.
func (e *Engine) AddSink(s Sink) {
	e.sinks = append(e.sinks, s)
}

// Run ticks at the configured interval until ctx is cancelled. Frames are
// delivered to the sinks from a separate goroutine.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("Starting simulation",
		logger.Duration("tick_interval", e.cfg.TickInterval),
		logger.Float64("time_scale", e.TimeScale()),
		logger.String("airport", e.world.Airport.ICAO),
	)

	var wg sync.WaitGroup
	sinkCtx, stopSinks := context.WithCancel(context.Background())
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.deliver(sinkCtx)
	}()
	defer func() {
		stopSinks()
		wg.Wait()
		e.logger.Info("Simulation stopped", logger.Int64("dropped_frames", e.dropped.Load()))
	}()

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.Advance(e.cfg.TickInterval.Seconds() * e.TimeScale())
		}
	}
}

// Advance runs one tick of dt simulated seconds and returns the published
// snapshot and the alerts raised during it
func (e *Engine) Advance(dt float64) (*Snapshot, []conflict.Alert) {
	e.mu.Lock()
	f := e.step(dt)
	e.mu.Unlock()

	e.publish(f)
	return f.Snapshot, f.Raised
}

// step is the tick body. It always produces a frame, even after a panic.
func (e *Engine) step(dt float64) (f Frame) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Recovered from panic in tick",
				logger.Any("panic", r),
				logger.Int64("tick", int64(e.tick)),
				logger.String("stack", string(debug.Stack())),
			)
			f.Raised = nil
			f.Snapshot = e.buildSnapshot()
		}
	}()

	if e.ended {
		return Frame{Snapshot: e.buildSnapshot()}
	}

	f.Commands = e.drainCommands()
	if e.paused || dt <= 0 {
		f.Snapshot = e.buildSnapshot()
		return f
	}

	e.tick++
	for remaining := dt; remaining > 1e-9; {
		h := math.Min(remaining, e.cfg.MaxStepSeconds)
		e.simTime += time.Duration(h * float64(time.Second))
		e.integrate(h)
		remaining -= h
	}

	traffic := e.activeAircraft()
	res := e.detector.Scan(traffic, e.simTime)
	e.markMissedHandoffs(res.Raised)
	e.score.ObserveAlerts(res, dt)
	e.active = res.Active

	f.Removed = append(e.pending, e.retireTerminal()...)
	e.pending = nil
	f.Raised = res.Raised
	f.Snapshot = e.buildSnapshot()
	return f
}

// integrate runs navigation and dynamics for every active aircraft
func (e *Engine) integrate(dt float64) {
	env := nav.Env{Airport: e.world.Airport, Wind: e.world.Wind}
	as := &e.world.Airport.Airspace
	for _, id := range e.order {
		ac := e.arena[id]
		if ac.Status.Terminal() {
			continue
		}
		res := nav.Guide(ac, env, dt)
		if res.UnknownFix != "" {
			e.logger.Warn("Reverting to heading hold on unresolved fix",
				logger.String("callsign", ac.Callsign),
				logger.String("fix", res.UnknownFix),
				logger.Float64("heading", ac.Nav.Lateral.HeadingDeg),
			)
		}
		if res.Landed {
			ac.Status = aircraft.StatusLanded
			e.logger.Info("Aircraft landed",
				logger.String("callsign", ac.Callsign),
				logger.String("runway", ac.Nav.Route.Runway),
			)
			continue
		}

		dynamics.Step(ac, e.world.Wind.WindAt(ac.Position, ac.AltitudeFt), dt)
		if as.BoundaryDistanceNM(ac.Position) < 0 || ac.AltitudeFt > as.CeilingFt {
			ac.Status = aircraft.StatusExited
			e.logger.Info("Aircraft left the airspace",
				logger.String("callsign", ac.Callsign),
				logger.Bool("handed_off", ac.Nav.Flags.HandedOff),
			)
		}
	}
}

// drainCommands applies every queued command in arrival order
func (e *Engine) drainCommands() []CommandRecord {
	if len(e.queue) == 0 {
		return nil
	}
	records := make([]CommandRecord, 0, len(e.queue))
	for _, q := range e.queue {
		res := e.applyLocked(q.id, q.cmd)
		q.reply <- res
		records = append(records, CommandRecord{AircraftID: q.id, Command: q.cmd, Result: res, SimTime: e.simTime})
	}
	e.queue = e.queue[:0]
	return records
}

func (e *Engine) applyLocked(id string, cmd command.Command) command.Result {
	ac, ok := e.arena[id]
	if !ok {
		return command.Result{Status: command.Dropped, Err: command.ErrStaleCommand}
	}
	handedOff := ac.Nav.Flags.HandedOff
	res := e.interp.Apply(ac, cmd, e.simTime)
	switch res.Status {
	case command.Accepted:
		e.score.CommandAccepted()
		if cmd.Kind == command.Contact && !handedOff {
			e.score.Handoff(ac.Nav.Flags.HandoffMissed)
		}
		e.logger.Debug("Command accepted", logger.String("callsign", ac.Callsign), logger.String("command", cmd.String()))
	case command.Rejected:
		e.logger.Info("Command rejected",
			logger.String("callsign", ac.Callsign),
			logger.String("command", cmd.String()),
			logger.String("reason", res.Reason),
		)
	}
	return res
}

// markMissedHandoffs flags aircraft that reached the boundary without a handoff
func (e *Engine) markMissedHandoffs(raised []conflict.Alert) {
	for _, al := range raised {
		if al.Kind != conflict.KindAirspace || al.Subject != "exit" {
			continue
		}
		for _, id := range al.Aircraft {
			if ac, ok := e.arena[id]; ok && !ac.Nav.Flags.HandedOff {
				ac.Nav.Flags.HandoffMissed = true
			}
		}
	}
}

// retireTerminal settles and removes every landed or exited aircraft
func (e *Engine) retireTerminal() []Departure {
	var out []Departure
	for _, id := range append([]string(nil), e.order...) {
		if ac := e.arena[id]; ac.Status.Terminal() {
			out = append(out, e.retire(ac))
		}
	}
	return out
}

// retire scores an aircraft leaving the session and drops it from the arena
func (e *Engine) retire(ac *aircraft.Aircraft) Departure {
	if !ac.Nav.Flags.HandedOff {
		ac.Nav.Flags.HandoffMissed = true
	}
	missed := ac.Nav.Flags.HandoffMissed
	inAirspace := (e.simTime - ac.SpawnedAt).Seconds()
	delay := inAirspace - ac.NominalSeconds
	e.score.Departed(missed, delay)

	d := Departure{
		AircraftID:    ac.ID,
		Callsign:      ac.Callsign,
		Status:        ac.Status,
		SimTime:       e.simTime,
		DelaySeconds:  math.Max(0, delay),
		MissedHandoff: missed,
	}
	delete(e.arena, ac.ID)
	for i, id := range e.order {
		if id == ac.ID {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	return d
}

func (e *Engine) activeAircraft() []*aircraft.Aircraft {
	out := make([]*aircraft.Aircraft, 0, len(e.order))
	for _, id := range e.order {
		if ac := e.arena[id]; !ac.Status.Terminal() {
			out = append(out, ac)
		}
	}
	return out
}

// Enqueue queues a command for the start of the next tick. The returned
// channel receives exactly one result.
func (e *Engine) Enqueue(id string, cmd command.Command) <-chan command.Result {
	reply := make(chan command.Result, 1)
	e.mu.Lock()
	defer e.mu.Unlock()

	ac, ok := e.arena[id]
	if e.ended || !ok || ac.Status.Terminal() {
		reply <- command.Result{Status: command.Dropped, Err: command.ErrStaleCommand}
		return reply
	}
	e.queue = append(e.queue, queued{id: id, cmd: cmd, reply: reply})
	return reply
}

// ApplyCommand queues a command and waits for the tick that applies it
func (e *Engine) ApplyCommand(ctx context.Context, id string, cmd command.Command) (command.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.CommandTimeout)
	defer cancel()
	select {
	case res := <-e.Enqueue(id, cmd):
		return res, nil
	case <-ctx.Done():
		return command.Result{}, fmt.Errorf("command for %s not applied: %w", id, ctx.Err())
	}
}

// Snapshot returns the latest published state without blocking on a tick
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

// Pause stops integration and detection from the next tick on. Commands are
// still applied while paused.
func (e *Engine) Pause() error {
	return e.control(func() { e.paused = true }, "Simulation paused")
}

// Resume restarts integration from the next tick on
func (e *Engine) Resume() error {
	return e.control(func() { e.paused = false }, "Simulation resumed")
}

// SetTimeScale changes the simulated seconds per wall-clock second
func (e *Engine) SetTimeScale(scale float64) error {
	if scale <= 0 || scale > e.cfg.MaxTimeScale || math.IsNaN(scale) {
		return fmt.Errorf("invalid time scale %.2f: must be in (0, %.0f]", scale, e.cfg.MaxTimeScale)
	}
	return e.control(func() { e.timeScale = scale }, "Time scale changed")
}

// TimeScale returns the current time scale
func (e *Engine) TimeScale() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timeScale
}

func (e *Engine) control(fn func(), msg string) error {
	e.mu.Lock()
	if e.ended {
		e.mu.Unlock()
		return ErrSessionEnded
	}
	fn()
	snap := e.buildSnapshot()
	e.snapshot.Store(snap)
	e.mu.Unlock()

	e.logger.Info(msg, logger.Bool("paused", snap.Paused), logger.Float64("time_scale", snap.TimeScale))
	return nil
}

// End freezes the session and finalizes the score. Queued commands are
// answered as stale.
func (e *Engine) End() (scoring.Metrics, error) {
	e.mu.Lock()
	if e.ended {
		m := e.score.Metrics()
		e.mu.Unlock()
		return m, ErrSessionEnded
	}
	e.ended = true
	for _, q := range e.queue {
		q.reply <- command.Result{Status: command.Dropped, Err: command.ErrStaleCommand}
	}
	e.queue = nil
	final := e.score.Finalize()
	f := Frame{Snapshot: e.buildSnapshot(), Final: &final}
	e.mu.Unlock()

	e.publish(f)
	e.logger.Info("Session ended",
		logger.Float64("score", final.Score),
		logger.String("grade", final.Grade),
		logger.Int("aircraft_handled", final.AircraftHandled),
	)
	return final, nil
}
