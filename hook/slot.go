// Package hook holds the per-frame callback a guest module publishes.
//
// A Slot has a single writer (the module, through the host import table or
// the loader's export fallback) and a single reader (the animate loop).
// Presence is checked before every invocation.
package hook

import (
	"context"
	"sync"
	"sync/atomic"
)

// Func is a published callback. It takes no guest arguments; any values the
// guest returns are discarded by the caller.
type Func func(ctx context.Context) error

type entry struct {
	fn   Func
	name string
}

// Slot is an optional, process-wide callback reference.
type Slot struct {
	ready     chan struct{}
	current   atomic.Pointer[entry]
	readyOnce sync.Once
}

// NewSlot returns an empty slot.
func NewSlot() *Slot {
	return &Slot{ready: make(chan struct{})}
}

// Publish stores fn under name, replacing any previous hook, and fires the
// readiness signal if this is the first publish.
func (s *Slot) Publish(name string, fn Func) {
	if fn == nil {
		s.Clear()
		return
	}
	s.current.Store(&entry{name: name, fn: fn})
	s.readyOnce.Do(func() { close(s.ready) })
}

// Clear empties the slot. The readiness signal stays fired.
func (s *Slot) Clear() {
	s.current.Store(nil)
}

// Load returns the current hook and whether one is present.
func (s *Slot) Load() (Func, string, bool) {
	e := s.current.Load()
	if e == nil {
		return nil, "", false
	}
	return e.fn, e.name, true
}

// Published reports whether a hook is currently present.
func (s *Slot) Published() bool {
	return s.current.Load() != nil
}

// Name returns the name of the current hook, or "" when empty.
func (s *Slot) Name() string {
	if e := s.current.Load(); e != nil {
		return e.name
	}
	return ""
}

// Ready is closed the first time a hook is published.
func (s *Slot) Ready() <-chan struct{} {
	return s.ready
}
