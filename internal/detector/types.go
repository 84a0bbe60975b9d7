// Package detector contains the vehicle-independent land detector: it runs
// a vehicle rule set through per-signal hysteresis once per tick and derives
// the landed state from the debounced results.
// This package has no I/O; time is always passed in as monotonic microseconds.
package detector

import (
	"time"

	"github.com/sweeney/land-detector/internal/params"
	"github.com/sweeney/land-detector/internal/telemetry"
)

// State is the published land detection state, ordered by confidence of
// being on the ground (free-fall aside).
type State uint8

const (
	StateUnknown State = iota
	StateFreefall
	StateFlying
	StateGroundContact
	StateMaybeLanded
	StateLanded
)

func (s State) String() string {
	switch s {
	case StateFreefall:
		return "FREEFALL"
	case StateFlying:
		return "FLYING"
	case StateGroundContact:
		return "GROUND_CONTACT"
	case StateMaybeLanded:
		return "MAYBE_LANDED"
	case StateLanded:
		return "LANDED"
	default:
		return "UNKNOWN"
	}
}

// OnGround reports whether the state asserts at least ground contact.
func (s State) OnGround() bool {
	return s >= StateGroundContact
}

// Flags are the auxiliary booleans a rule set reports alongside the state.
type Flags struct {
	InDescend                   bool
	HasLowThrottle              bool
	HorizontalMovement          bool
	VerticalMovement            bool
	RotationalMovement          bool
	CloseToGroundOrSkippedCheck bool
}

// Output is what the detector publishes every cycle.
type Output struct {
	TimestampUs uint64
	State       State

	Freefall       bool
	GroundContact  bool
	MaybeLanded    bool
	Landed         bool
	InGroundEffect bool

	Flags
}

// Hold is the debounce time for each edge of one signal.
type Hold struct {
	FromFalse time.Duration
	FromTrue  time.Duration
}

// Timing holds the hysteresis of every predicate.
type Timing struct {
	GroundContact Hold
	MaybeLanded   Hold
	Landed        Hold
	Freefall      Hold
	GroundEffect  Hold
}

// LandedGate selects which maybe-landed signal feeds the landed trigger time.
type LandedGate uint8

const (
	// GateDebounced gates on the debounced maybe-landed signal.
	GateDebounced LandedGate = iota
	// GateRaw also requires this cycle's raw maybe-landed, so any raw
	// flicker restarts the trigger time.
	GateRaw
)

// Cycle carries one evaluation through the rule set. Debounced results are
// filled in by the engine as each predicate completes, so a predicate only
// ever sees results of the predicates evaluated before it in this cycle.
type Cycle struct {
	NowUs  uint64
	Params params.Parameters
	Inputs telemetry.View
	Gate   LandedGate

	GroundContact  bool
	MaybeLandedRaw bool
	MaybeLanded    bool
	Landed         bool
	Freefall       bool
}

// RuleSet is the vehicle-specific part of the detector.
// Predicates must not block and must not panic on missing inputs.
type RuleSet interface {
	// Timing returns the hysteresis for the given parameters.
	Timing(p params.Parameters) Timing
	// Prepare derives per-cycle facts from the inputs before any predicate runs.
	Prepare(c *Cycle)

	GroundContact(c *Cycle) bool
	MaybeLanded(c *Cycle) bool
	Landed(c *Cycle) bool
	Freefall(c *Cycle) bool
	GroundEffect(c *Cycle) bool

	// Flags returns the auxiliary flags computed during the last cycle.
	Flags() Flags
}

// InputSource supplies the latest telemetry samples without blocking.
type InputSource interface {
	Latest(dst *telemetry.Snapshot)
}

// ParameterSource supplies the current parameter snapshot without blocking.
type ParameterSource interface {
	Snapshot() params.Parameters
}

// Publisher receives detector output.
type Publisher interface {
	PublishLanded(out Output) error
}

// Stats counts state transitions since startup.
type Stats struct {
	Takeoffs   int
	Landings   int
	Freefalls  int
	FlightTime time.Duration
}
