package telemetry

import "time"

// Snapshot is the set of input samples for one detector tick.
type Snapshot struct {
	// Collective thrust, 0..1
	Throttle Sample[float32]
	// Position/climb-rate controller active
	ClimbRateControl Sample[bool]
	// Hover thrust estimate, 0..1
	HoverThrust Sample[float32]
	TakeoffState Sample[TakeoffState]
	// Commanded vertical velocity, NED (positive down), m/s
	VelocitySetpointZ Sample[float32]
	// Body rates, rad/s
	AngularRate Sample[Vector3]
	// Local velocity, NED, m/s
	Velocity Sample[Vector3]
	// Height above ground from a downward range sensor, m
	DistBottom Sample[float32]
}

// Freshness holds the maximum usable age of each input stream.
type Freshness struct {
	Throttle          time.Duration
	ClimbRateControl  time.Duration
	HoverThrust       time.Duration
	TakeoffState      time.Duration
	VelocitySetpointZ time.Duration
	AngularRate       time.Duration
	Velocity          time.Duration
	DistBottom        time.Duration
}

// DefaultFreshness returns the stock freshness windows.
func DefaultFreshness() Freshness {
	return Freshness{
		Throttle:          500 * time.Millisecond,
		ClimbRateControl:  time.Second,
		HoverThrust:       time.Second,
		TakeoffState:      time.Second,
		VelocitySetpointZ: 500 * time.Millisecond,
		AngularRate:       500 * time.Millisecond,
		Velocity:          500 * time.Millisecond,
		DistBottom:        500 * time.Millisecond,
	}
}

// View evaluates the snapshot against the freshness windows at nowUs.
func (s *Snapshot) View(nowUs uint64, f Freshness) View {
	return View{snap: *s, fresh: f, nowUs: nowUs}
}

// View exposes only the samples that are usable at a given instant.
// Every accessor returns ok=false for stale or never-received samples.
type View struct {
	snap  Snapshot
	fresh Freshness
	nowUs uint64
}

// NowUs returns the instant the view was taken.
func (v View) NowUs() uint64 { return v.nowUs }

// Snapshot returns the raw samples behind the view.
func (v View) Snapshot() Snapshot { return v.snap }

func (v View) Throttle() (float32, bool) {
	return value(v.snap.Throttle, v.nowUs, v.fresh.Throttle)
}

func (v View) ClimbRateControl() (bool, bool) {
	return value(v.snap.ClimbRateControl, v.nowUs, v.fresh.ClimbRateControl)
}

func (v View) HoverThrust() (float32, bool) {
	return value(v.snap.HoverThrust, v.nowUs, v.fresh.HoverThrust)
}

func (v View) TakeoffState() (TakeoffState, bool) {
	return value(v.snap.TakeoffState, v.nowUs, v.fresh.TakeoffState)
}

func (v View) VelocitySetpointZ() (float32, bool) {
	return value(v.snap.VelocitySetpointZ, v.nowUs, v.fresh.VelocitySetpointZ)
}

func (v View) AngularRate() (Vector3, bool) {
	return value(v.snap.AngularRate, v.nowUs, v.fresh.AngularRate)
}

func (v View) Velocity() (Vector3, bool) {
	return value(v.snap.Velocity, v.nowUs, v.fresh.Velocity)
}

func (v View) DistBottom() (float32, bool) {
	return value(v.snap.DistBottom, v.nowUs, v.fresh.DistBottom)
}

func value[T any](s Sample[T], nowUs uint64, maxAge time.Duration) (T, bool) {
	if !s.Fresh(nowUs, maxAge) {
		var zero T
		return zero, false
	}
	return s.Value, true
}
