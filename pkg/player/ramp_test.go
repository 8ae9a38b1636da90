package player

import (
	"math"
	"testing"
	"time"
)

const eps = 1e-9

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestBeginRamp(t *testing.T) {
	cfg := DefaultConfig().Ramp
	cfg.Begin = RampPhase{Steps: 4, StartPercentage: 50, EndPercentage: 100}

	tests := []struct {
		index  int
		factor float64
		active bool
	}{
		{0, 0.5, true},
		{1, 0.625, true},
		{2, 0.75, true},
		{3, 0.875, false},
		{4, 1.0, false},
		{5, 1.0, false},
	}

	st := NewRampState()
	for _, tt := range tests {
		var f float64
		st, f = st.Advance(tt.index, 1000, cfg)
		if !approx(f, tt.factor) {
			t.Errorf("index %d: factor = %v, want %v", tt.index, f, tt.factor)
		}
		if st.Begin.Active != tt.active {
			t.Errorf("index %d: Begin.Active = %v, want %v", tt.index, st.Begin.Active, tt.active)
		}
	}
}

func TestEndRamp(t *testing.T) {
	cfg := DefaultConfig().Ramp
	cfg.End = RampPhase{Steps: 4, StartPercentage: 100, EndPercentage: 50}
	total := 20

	tests := []struct {
		index  int
		factor float64
		active bool
	}{
		{15, 1.0, false},
		{16, 1.0, true},
		{17, 1 - 0.5/3, true},
		{18, 1 - 1.0/3, true},
		{19, 0.5, false},
	}

	var st RampState
	for _, tt := range tests {
		var f float64
		st, f = st.Advance(tt.index, total, cfg)
		if !approx(f, tt.factor) {
			t.Errorf("index %d: factor = %v, want %v", tt.index, f, tt.factor)
		}
		if st.End.Active != tt.active {
			t.Errorf("index %d: End.Active = %v, want %v", tt.index, st.End.Active, tt.active)
		}
	}
}

func TestEndRampActivatesAtStepsRemaining(t *testing.T) {
	cfg := DefaultConfig().Ramp
	total := 40
	steps := cfg.End.Steps

	var st RampState
	for i := 0; i < total; i++ {
		before := st.End.Active
		st, _ = st.Advance(i, total, cfg)
		activated := !before && st.End.Active
		if activated != (total-i == steps) {
			t.Errorf("index %d: activated = %v with %d remaining", i, activated, total-i)
		}
	}
}

func TestEndRampSingleStep(t *testing.T) {
	cfg := DefaultConfig().Ramp
	cfg.End = RampPhase{Steps: 1, StartPercentage: 100, EndPercentage: 40}

	_, f := RampState{}.Advance(9, 10, cfg)
	if !approx(f, 0.4) {
		t.Errorf("factor = %v, want 0.4", f)
	}
}

func TestRampFactorFloor(t *testing.T) {
	p := RampPhase{Steps: 2, StartPercentage: 0.5, EndPercentage: 0.5}
	if f := p.factor(0); f != minRampFactor {
		t.Errorf("factor = %v, want %v", f, minRampFactor)
	}
	q := RampPhase{Steps: 2, StartPercentage: 50, EndPercentage: 100}
	if f := q.factor(7); !approx(f, 1.0) {
		t.Errorf("factor beyond progress 1 = %v, want 1.0", f)
	}
	if f := q.factor(-3); !approx(f, 0.5) {
		t.Errorf("factor below progress 0 = %v, want 0.5", f)
	}
}

func TestPhasesMultiply(t *testing.T) {
	cfg := RampConfig{
		Begin:      RampPhase{Steps: 4, StartPercentage: 50, EndPercentage: 100},
		AfterPause: RampPhase{Steps: 4, StartPercentage: 50, EndPercentage: 100},
		End:        RampPhase{Steps: 4, StartPercentage: 100, EndPercentage: 50},
	}

	st := RampState{Begin: PhaseState{Active: true}, AfterPause: PhaseState{Active: true}}
	_, f := st.Advance(0, 2, cfg)

	end := (100 - 50*(2.0/3)) / 100
	want := 0.5 * 0.5 * end
	if !approx(f, want) {
		t.Errorf("factor = %v, want %v", f, want)
	}
}

func TestAdvanceDoesNotMutate(t *testing.T) {
	st := NewRampState()
	next, _ := st.Advance(0, 100, DefaultConfig().Ramp)
	if st.Begin.Counter != 0 {
		t.Error("Advance modified its receiver")
	}
	if next.Begin.Counter != 1 {
		t.Errorf("next Begin.Counter = %d, want 1", next.Begin.Counter)
	}
}

func TestSpeedControllerRamping(t *testing.T) {
	cfg := DefaultConfig().Ramp
	cfg.Begin = RampPhase{Steps: 3, StartPercentage: 60, EndPercentage: 100}
	now := time.Now()

	c := NewSpeedController(1000, true, cfg)
	if got := c.Next(0, 100, now); !approx(got, 600) {
		t.Errorf("first note speed = %v, want 600", got)
	}
	c.Next(1, 100, now)
	c.Next(2, 100, now)
	if got := c.Next(3, 100, now); !approx(got, 1000) {
		t.Errorf("speed after ramp = %v, want 1000", got)
	}
	if !c.State().Idle() {
		t.Errorf("ramp state = %+v, want idle", c.State())
	}
}

func TestSpeedControllerClamps(t *testing.T) {
	cfg := DefaultConfig().Ramp
	cfg.Begin = RampPhase{Steps: 2, StartPercentage: 5, EndPercentage: 5}

	c := NewSpeedController(1000, true, cfg)
	if got := c.Next(0, 100, time.Now()); got != MinSpeed {
		t.Errorf("speed = %v, want %v", got, MinSpeed)
	}

	c = NewSpeedController(5000, false, cfg)
	if got := c.Next(0, 100, time.Now()); got != MaxSpeed {
		t.Errorf("speed = %v, want %v", got, MaxSpeed)
	}
}

func TestSpeedControllerWithoutRamping(t *testing.T) {
	c := NewSpeedController(800, false, DefaultConfig().Ramp)
	for i := 0; i < 5; i++ {
		if got := c.Next(i, 5, time.Now()); got != 800 {
			t.Errorf("index %d: speed = %v, want 800", i, got)
		}
	}
}

func TestTransitionEasing(t *testing.T) {
	t0 := time.Now()
	c := NewSpeedController(1000, false, DefaultConfig().Ramp)
	c.StartTransition(1400, time.Second, t0)

	if !c.Transitioning() {
		t.Fatal("Transitioning() = false after StartTransition")
	}
	if got := c.Next(0, 10, t0.Add(500*time.Millisecond)); !approx(got, 1300) {
		t.Errorf("midway speed = %v, want 1300", got)
	}
	if got := c.Next(1, 10, t0.Add(time.Second)); !approx(got, 1400) {
		t.Errorf("final speed = %v, want 1400", got)
	}
	if c.Transitioning() {
		t.Error("transition should deactivate once complete")
	}
	if c.Base() != 1400 {
		t.Errorf("Base() = %v, want 1400", c.Base())
	}
}

func TestTransitionRetargetStartsFromCurrentSpeed(t *testing.T) {
	t0 := time.Now()
	c := NewSpeedController(1000, false, DefaultConfig().Ramp)
	c.StartTransition(1400, time.Second, t0)
	c.StartTransition(600, time.Second, t0.Add(500*time.Millisecond))

	if c.transition.Start < 1300-eps || c.transition.Start > 1300+eps {
		t.Errorf("retarget start = %v, want 1300", c.transition.Start)
	}
}

func TestPauseSignal(t *testing.T) {
	var p PauseSignal
	if p.IsSet() {
		t.Fatal("new signal is set")
	}
	if !p.Toggle() || !p.IsSet() {
		t.Error("Toggle() should set the signal")
	}
	if p.Toggle() || p.IsSet() {
		t.Error("second Toggle() should clear the signal")
	}
	p.Set()
	p.Clear()
	if p.IsSet() {
		t.Error("Clear() left the signal set")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero speed", func(c *Config) { c.Speed = 0 }, true},
		{"nan speed", func(c *Config) { c.Speed = math.NaN() }, true},
		{"zero press", func(c *Config) { c.PressDuration = 0 }, true},
		{"negative delay", func(c *Config) { c.InitialDelay = -time.Second }, true},
		{"zero steps", func(c *Config) { c.Ramp.End.Steps = 0 }, true},
		{"zero percentage", func(c *Config) { c.Ramp.Begin.StartPercentage = 0 }, true},
		{"out of range speed", func(c *Config) { c.Speed = 4000 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeSpeed(t *testing.T) {
	tests := []struct {
		in     float64
		want   float64
		wantOK bool
	}{
		{1200, 1200, true},
		{50, MinSpeed, true},
		{5000, MaxSpeed, true},
		{0, DefaultSpeed, false},
		{-300, DefaultSpeed, false},
		{math.NaN(), DefaultSpeed, false},
		{math.Inf(1), DefaultSpeed, false},
	}

	for _, tt := range tests {
		got, ok := NormalizeSpeed(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("NormalizeSpeed(%v) = %v, %v, want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
