package loader

import (
	"context"
	"math"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-boot/errors"
	"github.com/wippyai/wasm-boot/frame"
)

type stats struct {
	frames      atomic.Uint64
	invocations atomic.Uint64
	skipped     atomic.Uint64
	fpsBits     atomic.Uint64
}

// Stats is a snapshot of animate loop activity.
type Stats struct {
	Hook        string
	Frames      uint64
	Invocations uint64
	Skipped     uint64
	FPS         float64
}

// Stats returns the current loop counters. It is safe to call from any
// goroutine.
func (l *Loader) Stats() Stats {
	return Stats{
		Hook:        l.slot.Name(),
		Frames:      l.stats.frames.Load(),
		Invocations: l.stats.invocations.Load(),
		Skipped:     l.stats.skipped.Load(),
		FPS:         math.Float64frombits(l.stats.fpsBits.Load()),
	}
}

// Animate runs the per-frame loop: it ticks once immediately, then once per
// frame delivered by sched. Each tick invokes the published hook exactly
// once, or does nothing when the slot is empty.
//
// The loop has no natural exit. It returns ctx.Err() when ctx is done, the
// scheduler's error when it stops, or a frame-phase trap when the hook
// fails; a failing hook is never rescheduled.
func (l *Loader) Animate(ctx context.Context, sched frame.Scheduler) error {
	meter := frame.NewMeter()
	if err := l.tick(ctx, frame.Frame{}, meter); err != nil {
		return err
	}
	for {
		f, err := sched.Next(ctx)
		if err != nil {
			return err
		}
		if err := l.tick(ctx, f, meter); err != nil {
			return err
		}
	}
}

// rateLogEvery is how many frames pass between frame rate log lines.
const rateLogEvery = 600

func (l *Loader) tick(ctx context.Context, f frame.Frame, meter *frame.Meter) error {
	fps := meter.Observe(f.At)
	if n := l.stats.frames.Add(1); n%rateLogEvery == 0 {
		Logger().Debug("frame rate", zap.Uint64("frames", n), zap.Int("fps", meter.Rounded()))
	}
	l.stats.fpsBits.Store(math.Float64bits(fps))

	fn, name, ok := l.slot.Load()
	l.metrics.Frame(fps, ok)
	if !ok {
		l.stats.skipped.Add(1)
		return nil
	}

	if err := fn(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.metrics.Invoked(err)
		trap := errors.Trap(errors.PhaseFrame, name, err)
		Logger().Error("hook failed; animate loop stopped",
			zap.Uint64("frame", f.Seq),
			zap.Error(trap))
		return trap
	}
	l.metrics.Invoked(nil)
	l.stats.invocations.Add(1)
	return nil
}
