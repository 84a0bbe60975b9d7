// Package gpio drives status LEDs with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "github.com/sweeney/land-detector/internal/detector"

// Indicator shows the detector state on hardware.
type Indicator interface {
	// Show updates the indicator for state s.
	Show(s detector.State) error

	// Close switches the indicator off and releases resources.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	PinLanded   = 26 // Landed LED
	PinFreefall = 16 // Free-fall LED
)

// DefaultChip is the GPIO character device used on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// Lamps returns which LEDs are lit for state s. The landed LED is on once
// the vehicle is confirmed landed; the free-fall LED only while falling.
func Lamps(s detector.State) (landed, freefall bool) {
	return s == detector.StateLanded, s == detector.StateFreefall
}
