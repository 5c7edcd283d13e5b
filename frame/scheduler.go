package frame

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultFPS is the refresh rate used when none is configured.
const DefaultFPS = 60

// ErrStopped is returned by Next once a scheduler has been stopped.
var ErrStopped = errors.New("frame: scheduler stopped")

// Frame identifies one display refresh.
type Frame struct {
	// Seq counts frames delivered by the scheduler, starting at 1.
	Seq uint64
	// At is the frame time relative to the scheduler's start.
	At time.Duration
}

// Scheduler delivers frame boundaries. Next blocks until the next frame,
// the scheduler stops, or ctx is done.
type Scheduler interface {
	Next(ctx context.Context) (Frame, error)
}

// Ticker is a wall-clock scheduler firing at a fixed rate.
type Ticker struct {
	start    time.Time
	ticker   *time.Ticker
	done     chan struct{}
	seq      uint64
	stopOnce sync.Once
}

// NewTicker returns a scheduler firing fps times per second.
// Non-positive fps selects DefaultFPS.
func NewTicker(fps int) *Ticker {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Ticker{
		start:  time.Now(),
		ticker: time.NewTicker(time.Second / time.Duration(fps)),
		done:   make(chan struct{}),
	}
}

// Next waits for the next tick.
func (t *Ticker) Next(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-t.done:
		return Frame{}, ErrStopped
	case now := <-t.ticker.C:
		t.seq++
		return Frame{Seq: t.seq, At: now.Sub(t.start)}, nil
	}
}

// Stop halts the ticker. Pending and future Next calls return ErrStopped.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}

// Manual is a scheduler advanced explicitly by Step. Each frame is handed
// over synchronously, so Step returns only after the consumer has taken
// every frame.
type Manual struct {
	frames   chan Frame
	done     chan struct{}
	interval time.Duration
	mu       sync.Mutex
	seq      uint64
	stopOnce sync.Once
}

// NewManual returns a manual scheduler whose frames are interval apart.
func NewManual(interval time.Duration) *Manual {
	return &Manual{
		frames:   make(chan Frame),
		done:     make(chan struct{}),
		interval: interval,
	}
}

// Next waits for the next stepped frame.
func (m *Manual) Next(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-m.done:
		return Frame{}, ErrStopped
	case f := <-m.frames:
		return f, nil
	}
}

// Step delivers n frames, blocking until each one is received.
// It returns early with ErrStopped if the scheduler is stopped.
func (m *Manual) Step(n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.seq++
		f := Frame{Seq: m.seq, At: time.Duration(m.seq) * m.interval}
		select {
		case <-m.done:
			return ErrStopped
		case m.frames <- f:
		}
	}
	return nil
}

// Stop ends the frame stream.
func (m *Manual) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}
