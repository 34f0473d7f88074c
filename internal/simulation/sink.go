package simulation

import (
	"context"

	"github.com/yegors/tracon-sim/pkg/logger"
)

// Sink consumes tick frames: the websocket hub, the recorder, the session
// store and the scenario runner. Consume runs on the delivery goroutine,
// outside the engine lock, and a slow sink delays every sink after it.
type Sink interface {
	Consume(Frame)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(Frame)

// Consume calls f
func (f SinkFunc) Consume(fr Frame) { f(fr) }

// publish stores the frame's snapshot and hands the frame to the sinks
// without blocking the tick. A full buffer drops the frame.
func (e *Engine) publish(f Frame) {
	if f.Snapshot != nil {
		e.snapshot.Store(f.Snapshot)
	}
	if len(e.sinks) == 0 {
		return
	}
	select {
	case e.frames <- f:
	default:
		if n := e.dropped.Add(1); n == 1 || n%100 == 0 {
			e.logger.Warn("Sink buffer full, dropping frame",
				logger.Int64("tick", int64(f.Snapshot.Tick)),
				logger.Int64("dropped_total", n),
			)
		}
	}
}

// deliver fans frames out to the sinks until ctx is done, then flushes what
// is left in the buffer
func (e *Engine) deliver(ctx context.Context) {
	for {
		select {
		case f := <-e.frames:
			e.fanOut(f)
		case <-ctx.Done():
			for {
				select {
				case f := <-e.frames:
					e.fanOut(f)
				default:
					return
				}
			}
		}
	}
}

func (e *Engine) fanOut(f Frame) {
	for _, s := range e.sinks {
		s.Consume(f)
	}
}

// Dropped reports how many frames were discarded because the sinks lagged
func (e *Engine) Dropped() int64 {
	return e.dropped.Load()
}
