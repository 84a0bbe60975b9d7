// Package telemetry holds the timestamped input samples the land detector
// consumes each tick, and decides whether each one is fresh enough to use.
package telemetry

import "time"

// Sample is one timestamped value from a telemetry stream.
type Sample[T any] struct {
	Value T
	// Monotonic receive time in microseconds; zero means never received
	TimestampUs uint64
	// Whether a new value arrived since the previous read
	Updated bool
}

// Initialized reports whether the sample has ever carried a value.
func (s Sample[T]) Initialized() bool {
	return s.TimestampUs != 0
}

// Age returns how old the sample is at nowUs. A sample from the future has
// age zero.
func (s Sample[T]) Age(nowUs uint64) time.Duration {
	if nowUs <= s.TimestampUs {
		return 0
	}
	return time.Duration(nowUs-s.TimestampUs) * time.Microsecond
}

// Fresh reports whether the sample is initialized and no older than maxAge.
func (s Sample[T]) Fresh(nowUs uint64, maxAge time.Duration) bool {
	return s.Initialized() && s.Age(nowUs) <= maxAge
}

// Set stores a new value received at nowUs and marks it updated.
func (s *Sample[T]) Set(v T, nowUs uint64) {
	s.Value = v
	s.TimestampUs = nowUs
	s.Updated = true
}

// Vector3 is a body or NED vector.
type Vector3 struct {
	X, Y, Z float32
}

// TakeoffState mirrors the takeoff state machine of the position controller.
type TakeoffState uint8

const (
	TakeoffUninitialized TakeoffState = iota
	TakeoffDisarmed
	TakeoffSpoolUp
	TakeoffReadyForTakeoff
	TakeoffRampUp
	TakeoffFlight
)

func (s TakeoffState) String() string {
	switch s {
	case TakeoffDisarmed:
		return "DISARMED"
	case TakeoffSpoolUp:
		return "SPOOLUP"
	case TakeoffReadyForTakeoff:
		return "READY_FOR_TAKEOFF"
	case TakeoffRampUp:
		return "RAMPUP"
	case TakeoffFlight:
		return "FLIGHT"
	default:
		return "UNINITIALIZED"
	}
}
