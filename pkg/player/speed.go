package player

import "time"

// Transition is a smooth change of the base speed in progress
type Transition struct {
	Start     float64
	Target    float64
	StartedAt time.Time
	Duration  time.Duration
}

// At returns the eased speed at now and whether the transition is complete
func (t Transition) At(now time.Time) (float64, bool) {
	if t.Duration <= 0 {
		return t.Target, true
	}
	p := float64(now.Sub(t.StartedAt)) / float64(t.Duration)
	if p >= 1 {
		return t.Target, true
	}
	p = clamp01(p)
	eased := 1 - (1-p)*(1-p)
	return t.Start + (t.Target-t.Start)*eased, false
}

// SpeedController computes the effective speed for each note. It is owned
// by a single playback loop and is not safe for concurrent use.
type SpeedController struct {
	cfg        RampConfig
	ramping    bool
	base       float64
	ramp       RampState
	transition *Transition
	last       float64
}

// NewSpeedController creates a controller for one playback session
func NewSpeedController(base float64, ramping bool, cfg RampConfig) *SpeedController {
	c := &SpeedController{cfg: cfg, ramping: ramping}
	c.Reset(base)
	return c
}

// Reset returns the controller to the start of a song
func (c *SpeedController) Reset(base float64) {
	c.base = ClampSpeed(base)
	c.last = c.base
	c.transition = nil
	c.ramp = RampState{}
	if c.ramping {
		c.ramp = NewRampState()
	}
}

// Base returns the configured base speed, ignoring transitions and ramps
func (c *SpeedController) Base() float64 { return c.base }

// Last returns the effective speed returned by the latest Next call
func (c *SpeedController) Last() float64 { return c.last }

// Transitioning reports whether a continuous transition is in progress
func (c *SpeedController) Transitioning() bool { return c.transition != nil }

// SetBase jumps to a new base speed, cancelling any transition
func (c *SpeedController) SetBase(v float64) {
	c.base = ClampSpeed(v)
	c.transition = nil
}

// StartTransition eases from the current base speed to target over d
func (c *SpeedController) StartTransition(target float64, d time.Duration, now time.Time) {
	target = ClampSpeed(target)
	start := c.currentBase(now)
	if d <= 0 || start == target {
		c.SetBase(target)
		return
	}
	c.transition = &Transition{Start: start, Target: target, StartedAt: now, Duration: d}
}

// currentBase resolves the base speed at now, finishing a completed
// transition.
func (c *SpeedController) currentBase(now time.Time) float64 {
	if c.transition == nil {
		return c.base
	}
	v, done := c.transition.At(now)
	if done {
		c.base = c.transition.Target
		c.transition = nil
		return c.base
	}
	return v
}

// Next returns the effective speed for the note at index out of total and
// advances the ramp phases.
func (c *SpeedController) Next(index, total int, now time.Time) float64 {
	speed := c.currentBase(now)
	if c.ramping {
		var factor float64
		c.ramp, factor = c.ramp.Advance(index, total, c.cfg)
		speed *= factor
	}
	c.last = ClampSpeed(speed)
	return c.last
}

// State returns a snapshot of the ramp state
func (c *SpeedController) State() RampState { return c.ramp }

// Restore replaces the ramp state with a snapshot
func (c *SpeedController) Restore(s RampState) { c.ramp = s }

// StartAfterPause (re)starts the after-pause phase from zero
func (c *SpeedController) StartAfterPause() {
	c.ramp.AfterPause = PhaseState{Active: true}
}
