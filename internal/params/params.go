// Package params holds the tunable thresholds of the land detector and the
// store that hands a consistent snapshot of them to each detector cycle.
package params

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Parameters is an immutable snapshot of detector thresholds.
type Parameters struct {
	// Thrust below which the vehicle is at minimum throttle, 0..1
	MinThrottle float32 `yaml:"min_throttle"`
	// Nominal hover thrust, 0..1; replaced by the estimate when one is in use
	HoverThrottle float32 `yaml:"hover_throttle"`
	// Minimum throttle in manual (non climb-rate controlled) flight, 0..1
	MinManThrottle float32 `yaml:"min_man_throttle"`
	// Derive the low-throttle threshold from the hover thrust estimate
	UseHoverThrustEstimate bool `yaml:"use_hover_thrust_estimate"`
	// Fraction of hover thrust regarded as low throttle, (0, 1]
	HoverThrustFactor float32 `yaml:"hover_thrust_factor"`
	// Nominal landing descent speed, m/s
	LandSpeed float32 `yaml:"land_speed"`
	// Final-approach crawl speed, m/s
	CrawlSpeed float32 `yaml:"crawl_speed"`
	// Time the maybe-landed state must hold before landed
	TrigTime time.Duration `yaml:"trig_time"`
	// Maximum rotation rate while landed, deg/s
	RotMax float32 `yaml:"rot_max"`
	// Maximum horizontal velocity while landed, m/s
	XYVelMax float32 `yaml:"xy_vel_max"`
	// Maximum vertical velocity while landed, m/s
	ZVelMax float32 `yaml:"z_vel_max"`
	// Height below which ground effect is expected, m; <= 0 disables
	AltGndEffect float32 `yaml:"alt_gnd_effect"`
}

// Default returns the stock multicopter thresholds.
func Default() Parameters {
	return Parameters{
		MinThrottle:            0.12,
		HoverThrottle:          0.5,
		MinManThrottle:         0.08,
		UseHoverThrustEstimate: true,
		HoverThrustFactor:      0.3,
		LandSpeed:              0.7,
		CrawlSpeed:             0.3,
		TrigTime:               time.Second,
		RotMax:                 20,
		XYVelMax:               1.5,
		ZVelMax:                0.5,
		AltGndEffect:           2,
	}
}

// Validate checks that every threshold is physically meaningful. Non-finite
// values are rejected outright.
func (p Parameters) Validate() error {
	var errs []error
	for name, v := range map[string]float32{
		"min_throttle":        p.MinThrottle,
		"hover_throttle":      p.HoverThrottle,
		"min_man_throttle":    p.MinManThrottle,
		"hover_thrust_factor": p.HoverThrustFactor,
		"land_speed":          p.LandSpeed,
		"crawl_speed":         p.CrawlSpeed,
		"rot_max":             p.RotMax,
		"xy_vel_max":          p.XYVelMax,
		"z_vel_max":           p.ZVelMax,
		"alt_gnd_effect":      p.AltGndEffect,
	} {
		if f := float64(v); math.IsNaN(f) || math.IsInf(f, 0) {
			errs = append(errs, fmt.Errorf("%s must be finite, got %v", name, v))
		}
	}
	for name, v := range map[string]float32{
		"min_throttle":     p.MinThrottle,
		"hover_throttle":   p.HoverThrottle,
		"min_man_throttle": p.MinManThrottle,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be within 0..1, got %v", name, v))
		}
	}
	if p.HoverThrustFactor <= 0 || p.HoverThrustFactor > 1 {
		errs = append(errs, fmt.Errorf("hover_thrust_factor must be within (0, 1], got %v", p.HoverThrustFactor))
	}
	for name, v := range map[string]float32{
		"land_speed":  p.LandSpeed,
		"crawl_speed": p.CrawlSpeed,
		"rot_max":     p.RotMax,
		"xy_vel_max":  p.XYVelMax,
		"z_vel_max":   p.ZVelMax,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %v", name, v))
		}
	}
	if p.TrigTime <= 0 {
		errs = append(errs, fmt.Errorf("trig_time must be positive, got %v", p.TrigTime))
	}
	return errors.Join(errs...)
}
