package player

// minRampFactor keeps a ramp from stalling playback entirely
const minRampFactor = 0.01

// PhaseState is the progress of one ramp phase
type PhaseState struct {
	Active  bool
	Counter int
}

// RampState tracks the begin, after-pause and end phases. Each phase is
// independent and active phases multiply.
type RampState struct {
	Begin      PhaseState
	AfterPause PhaseState
	End        PhaseState
}

// NewRampState returns the state at the start of a song. Only the begin
// phase starts active.
func NewRampState() RampState {
	return RampState{Begin: PhaseState{Active: true}}
}

// Idle reports whether no phase is active
func (s RampState) Idle() bool {
	return !s.Begin.Active && !s.AfterPause.Active && !s.End.Active
}

// factor interpolates the phase at progress p, clamped to [0, 1]
func (p RampPhase) factor(progress float64) float64 {
	progress = clamp01(progress)
	pct := p.StartPercentage + (p.EndPercentage-p.StartPercentage)*progress
	f := pct / 100
	if f < minRampFactor {
		return minRampFactor
	}
	return f
}

// Advance computes the combined ramp factor for the note at index out of
// total and returns the state for the next note. It does not modify s.
func (s RampState) Advance(index, total int, cfg RampConfig) (RampState, float64) {
	next := s
	factor := 1.0

	if next.Begin.Active {
		var f float64
		next.Begin, f = stepCounter(next.Begin, cfg.Begin)
		factor *= f
	}

	if next.AfterPause.Active {
		var f float64
		next.AfterPause, f = stepCounter(next.AfterPause, cfg.AfterPause)
		factor *= f
	}

	remaining := total - index
	if !next.End.Active && remaining > 0 && remaining <= cfg.End.Steps {
		next.End = PhaseState{Active: true}
	}
	if next.End.Active {
		steps := cfg.End.Steps
		progress := 1.0
		if steps > 1 {
			progress = float64(steps-remaining) / float64(steps-1)
		}
		factor *= cfg.End.factor(progress)
		next.End.Counter = steps - remaining
		if remaining <= 1 {
			next.End.Active = false
		}
	}

	return next, factor
}

// stepCounter applies a counter-driven phase and advances it
func stepCounter(st PhaseState, phase RampPhase) (PhaseState, float64) {
	f := 1.0
	if phase.Steps > 0 {
		f = phase.factor(float64(st.Counter) / float64(phase.Steps))
	}
	st.Counter++
	if st.Counter >= phase.Steps {
		st = PhaseState{}
	}
	return st, f
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
