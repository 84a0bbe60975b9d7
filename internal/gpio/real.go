//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/land-detector/internal/detector"
)

// RealIndicator drives LEDs through the Linux GPIO character device.
type RealIndicator struct {
	chip     *gpiocdev.Chip
	landed   *gpiocdev.Line
	freefall *gpiocdev.Line

	shown bool
	last  detector.State
}

// NewRealIndicator requests the two LED lines on chipName as outputs, off.
func NewRealIndicator(chipName string, pinLanded, pinFreefall int) (*RealIndicator, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	landed, err := chip.RequestLine(pinLanded, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request landed pin %d: %w", pinLanded, err)
	}

	freefall, err := chip.RequestLine(pinFreefall, gpiocdev.AsOutput(0))
	if err != nil {
		landed.Close()
		chip.Close()
		return nil, fmt.Errorf("request freefall pin %d: %w", pinFreefall, err)
	}

	return &RealIndicator{
		chip:     chip,
		landed:   landed,
		freefall: freefall,
	}, nil
}

// Show sets the LEDs for s. Lines are only written when the state changes.
func (r *RealIndicator) Show(s detector.State) error {
	if r.shown && s == r.last {
		return nil
	}
	landed, freefall := Lamps(s)
	if err := r.landed.SetValue(level(landed)); err != nil {
		return fmt.Errorf("set landed pin: %w", err)
	}
	if err := r.freefall.SetValue(level(freefall)); err != nil {
		return fmt.Errorf("set freefall pin: %w", err)
	}
	r.shown = true
	r.last = s
	return nil
}

// Close switches the LEDs off and releases GPIO resources.
// Pins are returned to input with pull-down, matching Pi boot defaults.
func (r *RealIndicator) Close() error {
	var errs []error
	for name, line := range map[string]*gpiocdev.Line{"landed": r.landed, "freefall": r.freefall} {
		if line == nil {
			continue
		}
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear %s pin: %w", name, err))
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", name, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", name, err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	return errors.Join(errs...)
}

func level(on bool) int {
	if on {
		return 1
	}
	return 0
}

var _ Indicator = (*RealIndicator)(nil)
