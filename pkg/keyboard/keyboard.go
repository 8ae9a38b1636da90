// Package keyboard provides the key press backends driven by playback
package keyboard

import (
	"sync"
	"time"
)

// Key identifies a physical key, such as "y" or "semicolon"
type Key string

// Keyboard presses and releases physical keys. Releasing a key that is not
// held must be a no-op, not an error.
type Keyboard interface {
	Press(key Key) error
	Release(key Key) error
}

// PitchFunc maps a physical key to the MIDI pitch it plays
type PitchFunc func(Key) (uint8, bool)

// Action is the kind of a recorded key event
type Action int

const (
	ActionPress Action = iota
	ActionRelease
)

func (a Action) String() string {
	if a == ActionPress {
		return "press"
	}
	return "release"
}

// Event is a single recorded key event
type Event struct {
	Key    Key
	Action Action
	At     time.Time
}

// heldSet tracks which keys are currently down
type heldSet struct {
	down map[Key]bool
}

func (h *heldSet) press(k Key) {
	if h.down == nil {
		h.down = make(map[Key]bool)
	}
	h.down[k] = true
}

// release reports whether k was held
func (h *heldSet) release(k Key) bool {
	if !h.down[k] {
		return false
	}
	delete(h.down, k)
	return true
}

// Recorder is an in-memory keyboard that records every effective event.
// It backs dry runs and tests.
type Recorder struct {
	mu     sync.Mutex
	held   heldSet
	events []Event
	now    func() time.Time
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// Press records a key press
func (r *Recorder) Press(key Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.held.press(key)
	r.events = append(r.events, Event{Key: key, Action: ActionPress, At: r.now()})
	return nil
}

// Release records a key release if the key is held
func (r *Recorder) Release(key Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.held.release(key) {
		r.events = append(r.events, Event{Key: key, Action: ActionRelease, At: r.now()})
	}
	return nil
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Held reports whether key is currently pressed
func (r *Recorder) Held(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.held.down[key]
}

// HeldCount returns the number of keys currently pressed
func (r *Recorder) HeldCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.held.down)
}

// Reset discards recorded events and held state
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.held = heldSet{}
}
