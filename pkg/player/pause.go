package player

import "sync/atomic"

// PauseSignal is the external pause flag polled by the engine. Any
// goroutine may set or clear it.
type PauseSignal struct {
	paused atomic.Bool
}

// Set requests a pause
func (p *PauseSignal) Set() { p.paused.Store(true) }

// Clear requests a resume
func (p *PauseSignal) Clear() { p.paused.Store(false) }

// IsSet reports whether a pause is requested
func (p *PauseSignal) IsSet() bool { return p.paused.Load() }

// Toggle flips the flag and returns the new value
func (p *PauseSignal) Toggle() bool {
	for {
		old := p.paused.Load()
		if p.paused.CompareAndSwap(old, !old) {
			return !old
		}
	}
}
