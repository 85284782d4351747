package nebula

import "time"

// Timer tracks per-frame delta time and total elapsed time.
type Timer struct {
	start     time.Time
	lastFrame time.Time
}

func NewTimer() *Timer {
	now := time.Now()
	return &Timer{start: now, lastFrame: now}
}

// Tick returns the seconds since the previous Tick and advances the frame
// marker.
func (t *Timer) Tick() float32 {
	now := time.Now()
	dt := float32(now.Sub(t.lastFrame).Seconds())
	t.lastFrame = now
	return dt
}

func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}
