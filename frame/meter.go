package frame

import "time"

// Meter estimates the frame rate as an exponential moving average of the
// instantaneous rate, weighted 0.9 old / 0.1 new.
type Meter struct {
	fps     float64
	last    time.Duration
	started bool
}

// NewMeter returns a meter seeded at DefaultFPS.
func NewMeter() *Meter {
	return &Meter{fps: DefaultFPS}
}

// Observe records a frame at time at and returns the smoothed rate.
func (m *Meter) Observe(at time.Duration) float64 {
	if m.started {
		if delta := at - m.last; delta > 0 {
			instant := float64(time.Second) / float64(delta)
			m.fps = m.fps*0.9 + instant*0.1
		}
	}
	m.last = at
	m.started = true
	return m.fps
}

// Rounded returns the smoothed rate rounded to the nearest integer.
func (m *Meter) Rounded() int {
	return int(m.fps + 0.5)
}
