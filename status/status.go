package status

import (
	"sync"
	"time"
)

// DefaultKey is the lookup key of the status element.
const DefaultKey = "status"

// Colors applied to the status text per phase.
const (
	ColorIdle    = "#AAAAAA"
	ColorLoading = "#FFD54F"
	ColorRunning = "#90EE90"
	ColorError   = "#f44336"
)

// Fixed status texts.
const (
	TextLoading = "Loading WebAssembly module..."
	TextRunning = "Running!"
	errorPrefix = "Error: "
)

// Phase is the lifecycle step the indicator reflects.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseRunning
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseRunning:
		return "running"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// State is one snapshot of the indicator.
type State struct {
	At    time.Time
	Err   error
	Text  string
	Color string
	Phase Phase
}

// Sink receives every state the indicator is set to.
// Implementations should be safe for concurrent use.
type Sink interface {
	Show(key string, s State)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(key string, s State)

// Show implements Sink.
func (f SinkFunc) Show(key string, s State) {
	if f == nil {
		return
	}
	f(key, s)
}

// Indicator is the single text-bearing status element. Each lifecycle event
// overwrites its text and color.
type Indicator struct {
	now   func() time.Time
	key   string
	sinks []Sink
	state State
	mu    sync.RWMutex
}

// NewIndicator returns an idle indicator under key. An empty key selects
// DefaultKey.
func NewIndicator(key string, sinks ...Sink) *Indicator {
	if key == "" {
		key = DefaultKey
	}
	ind := &Indicator{
		now:   time.Now,
		key:   key,
		sinks: sinks,
	}
	ind.state = State{Phase: PhaseIdle, Color: ColorIdle, At: ind.now()}
	return ind
}

// Key returns the element's lookup key.
func (i *Indicator) Key() string {
	return i.key
}

// Subscribe adds a sink. The sink is not replayed the current state.
func (i *Indicator) Subscribe(s Sink) {
	i.mu.Lock()
	i.sinks = append(i.sinks, s)
	i.mu.Unlock()
}

// Current returns the latest state.
func (i *Indicator) Current() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// Loading marks the module as being fetched. Empty text selects TextLoading.
func (i *Indicator) Loading(text string) {
	if text == "" {
		text = TextLoading
	}
	i.set(State{Phase: PhaseLoading, Text: text, Color: ColorLoading})
}

// Running marks the module as started. Empty text selects TextRunning.
func (i *Indicator) Running(text string) {
	if text == "" {
		text = TextRunning
	}
	i.set(State{Phase: PhaseRunning, Text: text, Color: ColorRunning})
}

// Fail replaces the text with the error message in the alert color.
func (i *Indicator) Fail(err error) {
	text := errorPrefix + "unknown error"
	if err != nil {
		text = errorPrefix + err.Error()
	}
	i.set(State{Phase: PhaseError, Text: text, Color: ColorError, Err: err})
}

func (i *Indicator) set(s State) {
	s.At = i.now()

	i.mu.Lock()
	i.state = s
	sinks := make([]Sink, len(i.sinks))
	copy(sinks, i.sinks)
	i.mu.Unlock()

	for _, sink := range sinks {
		sink.Show(i.key, s)
	}
}
