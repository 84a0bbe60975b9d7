package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleFreshness(t *testing.T) {
	var s Sample[float32]
	assert.False(t, s.Initialized())
	assert.False(t, s.Fresh(1_000_000, time.Hour), "never-received sample is never fresh")

	s.Set(0.4, 1_000_000)
	assert.True(t, s.Updated)
	assert.True(t, s.Fresh(1_000_000, 0))
	assert.True(t, s.Fresh(1_500_000, 500*time.Millisecond))
	assert.False(t, s.Fresh(1_500_001, 500*time.Millisecond))
	assert.Equal(t, time.Duration(0), s.Age(900_000))
}

func TestViewHidesStaleSamples(t *testing.T) {
	var snap Snapshot
	snap.Throttle.Set(0.3, 1_000_000)
	snap.DistBottom.Set(0.8, 100_000)

	f := DefaultFreshness()
	v := snap.View(1_200_000, f)

	thr, ok := v.Throttle()
	require.True(t, ok)
	assert.InDelta(t, 0.3, thr, 1e-6)

	_, ok = v.DistBottom()
	assert.False(t, ok, "distance is older than its window")

	_, ok = v.Velocity()
	assert.False(t, ok, "velocity was never received")
	assert.Equal(t, uint64(1_200_000), v.NowUs())
}

func TestViewUsesNonUpdatedValueWhileFresh(t *testing.T) {
	var snap Snapshot
	snap.Velocity.Set(Vector3{Z: 0.2}, 1_000_000)
	snap.Velocity.Updated = false

	vel, ok := snap.View(1_100_000, DefaultFreshness()).Velocity()
	require.True(t, ok)
	assert.InDelta(t, 0.2, vel.Z, 1e-6)
}

func TestStoreLatestClearsUpdated(t *testing.T) {
	st := NewStore()
	st.SetThrottle(0.5, 10)
	st.SetTakeoffState(TakeoffFlight, 11)

	var snap Snapshot
	st.Latest(&snap)
	assert.True(t, snap.Throttle.Updated)
	assert.True(t, snap.TakeoffState.Updated)
	assert.Equal(t, TakeoffFlight, snap.TakeoffState.Value)

	st.Latest(&snap)
	assert.False(t, snap.Throttle.Updated, "second read without new data is not an update")
	assert.InDelta(t, 0.5, snap.Throttle.Value, 1e-6, "value survives the read")
	assert.Equal(t, uint64(10), snap.Throttle.TimestampUs)
}

func TestStoreConcurrentWriters(t *testing.T) {
	st := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				st.SetVelocity(Vector3{X: float32(i)}, uint64(j+1))
				st.SetAngularRate(Vector3{Y: float32(j)}, uint64(j+1))
			}
		}(i)
	}

	var snap Snapshot
	for j := 0; j < 50; j++ {
		st.Latest(&snap)
	}
	wg.Wait()

	st.Latest(&snap)
	assert.Equal(t, uint64(100), snap.Velocity.TimestampUs)
}

func TestClockNeverReturnsZero(t *testing.T) {
	c := NewClock()
	assert.Equal(t, uint64(1), c.At(c.start.Add(-time.Second)))
	assert.Equal(t, uint64(1001), c.At(c.start.Add(time.Millisecond)))
	assert.NotZero(t, c.NowUs())
}

func TestTakeoffStateString(t *testing.T) {
	assert.Equal(t, "FLIGHT", TakeoffFlight.String())
	assert.Equal(t, "UNINITIALIZED", TakeoffState(99).String())
}
