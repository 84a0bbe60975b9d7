// Package hysteresis debounces a single boolean signal over a hold time.
// Like the rest of the detector core it has no I/O and takes time as a
// parameter (monotonic microseconds).
package hysteresis

import "time"

// Hysteresis tracks the debounced value of one boolean input.
// The zero value is a pass-through timer with a false output.
type Hysteresis struct {
	// Current debounced output
	state bool
	// Hold time required before leaving false / leaving true
	holdFromFalse time.Duration
	holdFromTrue  time.Duration
	// Open debounce window, if any
	pending      bool
	pendingSince uint64
	pendingHold  time.Duration
}

// New creates a timer whose debounced output starts at initial.
func New(initial bool) *Hysteresis {
	return &Hysteresis{state: initial}
}

// SetHysteresisTime sets the hold time for both edges. Zero disables debouncing.
func (h *Hysteresis) SetHysteresisTime(d time.Duration) {
	h.holdFromFalse = d
	h.holdFromTrue = d
}

// SetHysteresisTimeFrom sets the hold time required before the output may
// leave the given value.
func (h *Hysteresis) SetHysteresisTimeFrom(from bool, d time.Duration) {
	if from {
		h.holdFromTrue = d
	} else {
		h.holdFromFalse = d
	}
}

// Update feeds this cycle's raw value and returns the debounced output.
// An open window keeps the hold time it was opened with.
func (h *Hysteresis) Update(raw bool, nowUs uint64) bool {
	if raw == h.state {
		// Reverted before the hold elapsed: no partial credit
		h.pending = false
		return h.state
	}

	if !h.pending {
		h.pending = true
		h.pendingSince = nowUs
		h.pendingHold = h.holdFrom(h.state)
	}

	if elapsed(h.pendingSince, nowUs) >= h.pendingHold {
		h.state = raw
		h.pending = false
	}
	return h.state
}

// State returns the debounced output.
func (h *Hysteresis) State() bool {
	return h.state
}

// Pending reports whether a change is currently being debounced.
func (h *Hysteresis) Pending() bool {
	return h.pending
}

// Reset forces the output and discards any open window.
func (h *Hysteresis) Reset(state bool) {
	h.state = state
	h.pending = false
}

func (h *Hysteresis) holdFrom(state bool) time.Duration {
	if state {
		return h.holdFromTrue
	}
	return h.holdFromFalse
}

// elapsed returns the time from since to now; a clock running backwards
// counts as no time at all.
func elapsed(since, now uint64) time.Duration {
	if now <= since {
		return 0
	}
	return time.Duration(now-since) * time.Microsecond
}
