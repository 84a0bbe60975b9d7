package telemetry

import "sync"

// Store holds the latest sample of every stream. Transports write into it
// from their own goroutines; the detector reads it once per tick.
type Store struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Latest copies the current samples into dst and clears the Updated flags,
// so the next read only reports values that arrived after this one.
func (s *Store) Latest(dst *Snapshot) {
	s.mu.Lock()
	*dst = s.snap
	s.snap.Throttle.Updated = false
	s.snap.ClimbRateControl.Updated = false
	s.snap.HoverThrust.Updated = false
	s.snap.TakeoffState.Updated = false
	s.snap.VelocitySetpointZ.Updated = false
	s.snap.AngularRate.Updated = false
	s.snap.Velocity.Updated = false
	s.snap.DistBottom.Updated = false
	s.mu.Unlock()
}

func (s *Store) SetThrottle(v float32, nowUs uint64) {
	s.mu.Lock()
	s.snap.Throttle.Set(v, nowUs)
	s.mu.Unlock()
}

func (s *Store) SetClimbRateControl(enabled bool, nowUs uint64) {
	s.mu.Lock()
	s.snap.ClimbRateControl.Set(enabled, nowUs)
	s.mu.Unlock()
}

func (s *Store) SetHoverThrust(v float32, nowUs uint64) {
	s.mu.Lock()
	s.snap.HoverThrust.Set(v, nowUs)
	s.mu.Unlock()
}

func (s *Store) SetTakeoffState(st TakeoffState, nowUs uint64) {
	s.mu.Lock()
	s.snap.TakeoffState.Set(st, nowUs)
	s.mu.Unlock()
}

func (s *Store) SetVelocitySetpointZ(vz float32, nowUs uint64) {
	s.mu.Lock()
	s.snap.VelocitySetpointZ.Set(vz, nowUs)
	s.mu.Unlock()
}

func (s *Store) SetAngularRate(v Vector3, nowUs uint64) {
	s.mu.Lock()
	s.snap.AngularRate.Set(v, nowUs)
	s.mu.Unlock()
}

func (s *Store) SetVelocity(v Vector3, nowUs uint64) {
	s.mu.Lock()
	s.snap.Velocity.Set(v, nowUs)
	s.mu.Unlock()
}

func (s *Store) SetDistBottom(d float32, nowUs uint64) {
	s.mu.Lock()
	s.snap.DistBottom.Set(d, nowUs)
	s.mu.Unlock()
}
