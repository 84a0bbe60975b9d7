package telemetry

import "time"

// Clock converts wall time into monotonic microseconds since it was created.
// Readings start at 1 so a real timestamp is never mistaken for "never set".
type Clock struct {
	start time.Time
}

// NewClock starts a clock at the current instant.
func NewClock() Clock {
	return Clock{start: time.Now()}
}

// NewClockAt starts a clock at start.
func NewClockAt(start time.Time) Clock {
	return Clock{start: start}
}

// NowUs returns microseconds since the clock started.
func (c Clock) NowUs() uint64 {
	return c.At(time.Now())
}

// At converts t into clock microseconds. Instants before the start map to 1.
func (c Clock) At(t time.Time) uint64 {
	d := t.Sub(c.start)
	if d < 0 {
		return 1
	}
	return uint64(d/time.Microsecond) + 1
}
