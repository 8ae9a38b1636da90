// Package player drives timed key presses for a song
package player

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Speed bounds. Speed is a tempo value where 1000 plays a song at its
// recorded pace.
const (
	MinSpeed     = 100.0
	MaxSpeed     = 1500.0
	DefaultSpeed = 1000.0
)

// DefaultMaxPause is the longest a pause may last before playback is
// resumed automatically.
const DefaultMaxPause = time.Hour

// SpeedPresets are the quick speed choices offered by the front ends
var SpeedPresets = []float64{600, 800, 1000, 1200}

// PressDurationPresets are the quick hold duration choices
var PressDurationPresets = []time.Duration{
	200 * time.Millisecond,
	248 * time.Millisecond,
	300 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// RampPhase moves the speed factor linearly from StartPercentage to
// EndPercentage over Steps notes.
type RampPhase struct {
	Steps           int
	StartPercentage float64
	EndPercentage   float64
}

// RampConfig holds the three ramp phases
type RampConfig struct {
	Begin      RampPhase
	AfterPause RampPhase
	End        RampPhase
}

// Config holds the playback settings for an engine
type Config struct {
	Speed            float64
	PressDuration    time.Duration
	InitialDelay     time.Duration
	PauseResumeDelay time.Duration
	EnableRamping    bool
	Ramp             RampConfig

	// SpeedTransition eases speed changes made during playback over this
	// duration. Zero applies them on the next note.
	SpeedTransition time.Duration

	// MaxPause bounds a single pause. Zero means DefaultMaxPause.
	MaxPause time.Duration
}

// DefaultConfig returns the default playback settings
func DefaultConfig() Config {
	return Config{
		Speed:            DefaultSpeed,
		PressDuration:    100 * time.Millisecond,
		InitialDelay:     800 * time.Millisecond,
		PauseResumeDelay: time.Second,
		EnableRamping:    false,
		Ramp: RampConfig{
			Begin:      RampPhase{Steps: 20, StartPercentage: 50, EndPercentage: 100},
			AfterPause: RampPhase{Steps: 12, StartPercentage: 50, EndPercentage: 100},
			End:        RampPhase{Steps: 16, StartPercentage: 100, EndPercentage: 50},
		},
		MaxPause: DefaultMaxPause,
	}
}

// Validate checks the configuration for values playback cannot use
func (c Config) Validate() error {
	var errs []error
	if math.IsNaN(c.Speed) || math.IsInf(c.Speed, 0) || c.Speed <= 0 {
		errs = append(errs, fmt.Errorf("speed must be positive, got %v", c.Speed))
	}
	if c.PressDuration <= 0 {
		errs = append(errs, fmt.Errorf("press duration must be positive, got %v", c.PressDuration))
	}
	if c.InitialDelay < 0 {
		errs = append(errs, fmt.Errorf("initial delay must not be negative, got %v", c.InitialDelay))
	}
	if c.PauseResumeDelay < 0 {
		errs = append(errs, fmt.Errorf("pause resume delay must not be negative, got %v", c.PauseResumeDelay))
	}
	if c.SpeedTransition < 0 {
		errs = append(errs, fmt.Errorf("speed transition must not be negative, got %v", c.SpeedTransition))
	}
	if c.MaxPause < 0 {
		errs = append(errs, fmt.Errorf("max pause must not be negative, got %v", c.MaxPause))
	}
	for name, p := range map[string]RampPhase{
		"begin":       c.Ramp.Begin,
		"after_pause": c.Ramp.AfterPause,
		"end":         c.Ramp.End,
	} {
		if err := p.validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s ramp: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (p RampPhase) validate() error {
	if p.Steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", p.Steps)
	}
	if p.StartPercentage <= 0 || p.EndPercentage <= 0 {
		return fmt.Errorf("percentages must be positive, got %v and %v", p.StartPercentage, p.EndPercentage)
	}
	return nil
}

// ClampSpeed limits v to [MinSpeed, MaxSpeed]. NaN yields DefaultSpeed.
func ClampSpeed(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return DefaultSpeed
	case v < MinSpeed:
		return MinSpeed
	case v > MaxSpeed:
		return MaxSpeed
	}
	return v
}

// NormalizeSpeed applies the rules for a requested speed. Values that are
// not positive finite numbers become DefaultSpeed and ok is false; anything
// else is clamped.
func NormalizeSpeed(v float64) (speed float64, ok bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return DefaultSpeed, false
	}
	return ClampSpeed(v), true
}
