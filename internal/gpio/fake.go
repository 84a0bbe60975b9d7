package gpio

import (
	"sync"

	"github.com/sweeney/land-detector/internal/detector"
)

// FakeIndicator records what would have been shown on the LEDs.
type FakeIndicator struct {
	mu sync.Mutex

	// States contains every state passed to Show, in order.
	States []detector.State

	// Landed and Freefall are the current LED levels.
	Landed   bool
	Freefall bool

	// Closed tracks if Close was called
	Closed bool

	// ShowError, if set, will be returned by Show()
	ShowError error
}

// NewFakeIndicator creates a FakeIndicator with both LEDs off.
func NewFakeIndicator() *FakeIndicator {
	return &FakeIndicator{}
}

// Show records s and updates the LED levels.
func (f *FakeIndicator) Show(s detector.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ShowError != nil {
		return f.ShowError
	}
	f.States = append(f.States, s)
	f.Landed, f.Freefall = Lamps(s)
	return nil
}

// Close switches both LEDs off.
func (f *FakeIndicator) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Landed, f.Freefall = false, false
	f.Closed = true
	return nil
}

// Levels returns the current LED levels.
func (f *FakeIndicator) Levels() (landed, freefall bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Landed, f.Freefall
}

var _ Indicator = (*FakeIndicator)(nil)
