// Package multicopter implements the land detector rule set for multicopters.
package multicopter

import (
	"math"
	"time"

	"github.com/sweeney/land-detector/internal/detector"
	"github.com/sweeney/land-detector/internal/hysteresis"
	"github.com/sweeney/land-detector/internal/params"
	"github.com/sweeney/land-detector/internal/telemetry"
)

const (
	// FreefallTriggerTime is how long free-fall conditions must hold.
	FreefallTriggerTime = 300 * time.Millisecond

	// DistFromGroundThreshold is the height above ground below which ground
	// contact is possible when a distance measurement is available, m.
	DistFromGroundThreshold = 1.0

	// MinimumThrustHold is how long low throttle must be sustained before
	// the movement checks of maybe-landed are skipped.
	MinimumThrustHold = 8 * time.Second

	// Throttle below which the vehicle counts as unpowered for free-fall
	freefallMaxThrottle = 0.05

	// Fraction of crawl speed that counts as a commanded descent
	descendCrawlFraction = 0.9

	// Vertical velocity threshold widening inside ground effect
	groundEffectVelocityFactor = 1.5

	// Maybe-landed uses this fraction of each movement threshold
	tightMovementFactor = 0.5
)

// Rules is the multicopter rule set. It keeps the facts derived in Prepare
// so the predicates and Flags report on the same cycle.
type Rules struct {
	minimumThrust hysteresis.Hysteresis

	disarmed         bool
	climbRateControl bool
	takeoffState     telemetry.TakeoffState

	throttle      float32
	throttleFresh bool
	lowThrottleAt float32

	velocity      telemetry.Vector3
	velocityFresh bool
	rates         telemetry.Vector3
	ratesFresh    bool

	verticalThreshold float64

	inDescend                   bool
	horizontalMovement          bool
	verticalMovement            bool
	rotationalMovement          bool
	hasLowThrottle              bool
	closeToGroundOrSkippedCheck bool
	belowGndEffectHgt           bool
}

// New creates a multicopter rule set.
func New() *Rules {
	r := &Rules{}
	r.minimumThrust.SetHysteresisTimeFrom(false, MinimumThrustHold)
	return r
}

// Timing implements detector.RuleSet. Rising edges are debounced; falling
// edges are immediate so a takeoff is seen without delay.
func (r *Rules) Timing(p params.Parameters) detector.Timing {
	third := p.TrigTime / 3
	return detector.Timing{
		GroundContact: detector.Hold{FromFalse: third},
		MaybeLanded:   detector.Hold{FromFalse: third},
		Landed:        detector.Hold{FromFalse: p.TrigTime},
		Freefall:      detector.Hold{FromFalse: FreefallTriggerTime},
		GroundEffect:  detector.Hold{},
	}
}

// Prepare implements detector.RuleSet.
func (r *Rules) Prepare(c *detector.Cycle) {
	p := c.Params
	in := c.Inputs

	st, ok := in.TakeoffState()
	if !ok {
		st = telemetry.TakeoffUninitialized
	}
	r.takeoffState = st
	r.disarmed = ok && st == telemetry.TakeoffDisarmed

	// Unknown control mode is treated as climb-rate controlled, which
	// demands an explicit descent setpoint before ground contact.
	enabled, ok := in.ClimbRateControl()
	r.climbRateControl = enabled || !ok

	if r.climbRateControl {
		vz, ok := in.VelocitySetpointZ()
		r.inDescend = ok && isFinite(vz) && vz > descendCrawlFraction*p.CrawlSpeed
	} else {
		r.inDescend = true
	}

	r.throttle, r.throttleFresh = in.Throttle()
	r.lowThrottleAt = r.lowThrottleThreshold(p, in)
	// A stale throttle must not hide a landing
	r.hasLowThrottle = !r.throttleFresh || r.throttle < r.lowThrottleAt

	dist, distOK := in.DistBottom()
	r.closeToGroundOrSkippedCheck = !distOK || dist < DistFromGroundThreshold
	r.belowGndEffectHgt = distOK && p.AltGndEffect > 0 && dist < p.AltGndEffect

	landSpeedThreshold := 0.9 * math.Max(float64(p.LandSpeed), 0.1)
	r.verticalThreshold = math.Min(landSpeedThreshold*0.5, float64(p.ZVelMax))
	if r.belowGndEffectHgt {
		r.verticalThreshold *= groundEffectVelocityFactor
	}

	r.velocity, r.velocityFresh = in.Velocity()
	r.rates, r.ratesFresh = in.AngularRate()

	// Without data the vehicle is assumed to be moving
	r.horizontalMovement = r.horizontalSpeedAbove(float64(p.XYVelMax))
	r.verticalMovement = r.verticalSpeedAbove(r.verticalThreshold)
	r.rotationalMovement = r.rotationAbove(float64(p.RotMax))
}

// lowThrottleThreshold picks the hover-thrust derived threshold when the
// estimate is enabled and fresh, and the configured minimum otherwise.
func (r *Rules) lowThrottleThreshold(p params.Parameters, in telemetry.View) float32 {
	if !r.climbRateControl {
		return p.MinManThrottle
	}
	if p.UseHoverThrustEstimate {
		if hover, ok := in.HoverThrust(); ok && hover > 0 {
			return hover * p.HoverThrustFactor
		}
	}
	return p.MinThrottle
}

// Stale or non-finite motion counts as movement, as does a NaN limit.

func (r *Rules) horizontalSpeedAbove(limit float64) bool {
	if !r.velocityFresh || !isFinite(r.velocity.X) || !isFinite(r.velocity.Y) {
		return true
	}
	return !(math.Hypot(float64(r.velocity.X), float64(r.velocity.Y)) <= limit)
}

func (r *Rules) verticalSpeedAbove(limit float64) bool {
	if !r.velocityFresh || !isFinite(r.velocity.Z) {
		return true
	}
	return !(math.Abs(float64(r.velocity.Z)) <= limit)
}

// rotationAbove compares the roll/pitch rate magnitude with a limit in deg/s.
func (r *Rules) rotationAbove(limitDeg float64) bool {
	if !r.ratesFresh || !isFinite(r.rates.X) || !isFinite(r.rates.Y) {
		return true
	}
	rate := math.Hypot(float64(r.rates.X), float64(r.rates.Y))
	return !(rate <= limitDeg*math.Pi/180)
}

// GroundContact implements detector.RuleSet.
func (r *Rules) GroundContact(c *detector.Cycle) bool {
	if r.disarmed {
		return true
	}
	return r.inDescend &&
		!r.horizontalMovement &&
		!r.verticalMovement &&
		!r.rotationalMovement &&
		r.closeToGroundOrSkippedCheck
}

// MaybeLanded implements detector.RuleSet.
func (r *Rules) MaybeLanded(c *detector.Cycle) bool {
	sustained := r.minimumThrust.Update(r.hasLowThrottle, c.NowUs)
	if r.disarmed {
		return true
	}
	if !c.GroundContact || !r.hasLowThrottle {
		return false
	}
	// After a long time at minimum thrust the movement checks are skipped
	if sustained {
		return true
	}

	p := c.Params
	return !r.horizontalSpeedAbove(float64(p.XYVelMax)*tightMovementFactor) &&
		!r.verticalSpeedAbove(r.verticalThreshold*tightMovementFactor) &&
		!r.rotationAbove(float64(p.RotMax)*tightMovementFactor)
}

// Landed implements detector.RuleSet. The engine's landed hysteresis turns
// this into "maybe-landed held for the trigger time".
func (r *Rules) Landed(c *detector.Cycle) bool {
	if r.disarmed {
		return true
	}
	if c.Gate == detector.GateRaw {
		return c.MaybeLanded && c.MaybeLandedRaw
	}
	return c.MaybeLanded
}

// Freefall implements detector.RuleSet: near-zero thrust while sinking faster
// than the landed vertical speed limit.
func (r *Rules) Freefall(c *detector.Cycle) bool {
	if !r.throttleFresh || !r.velocityFresh {
		return false
	}
	return r.throttle < freefallMaxThrottle && float64(r.velocity.Z) > float64(c.Params.ZVelMax)
}

// GroundEffect implements detector.RuleSet.
func (r *Rules) GroundEffect(c *detector.Cycle) bool {
	return r.belowGndEffectHgt || r.takeoffState == telemetry.TakeoffRampUp
}

// Flags implements detector.RuleSet.
func (r *Rules) Flags() detector.Flags {
	return detector.Flags{
		InDescend:                   r.inDescend,
		HasLowThrottle:              r.hasLowThrottle,
		HorizontalMovement:          r.horizontalMovement,
		VerticalMovement:            r.verticalMovement,
		RotationalMovement:          r.rotationalMovement,
		CloseToGroundOrSkippedCheck: r.closeToGroundOrSkippedCheck,
	}
}

func isFinite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

var _ detector.RuleSet = (*Rules)(nil)
