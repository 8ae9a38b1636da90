package keyboard

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	midiTicksPerQuarter = 480
	midiMicrosPerBeat   = 500000 // 120 bpm
	midiVelocity        = 100
)

// MIDIRecorder captures presses and releases as a standard MIDI file with
// real-time spacing. Keys without a pitch are ignored.
type MIDIRecorder struct {
	mu      sync.Mutex
	pitch   PitchFunc
	channel uint8
	held    heldSet
	events  []Event
	now     func() time.Time
}

// NewMIDIRecorder creates a recorder that maps keys to notes with pitch
func NewMIDIRecorder(pitch PitchFunc) *MIDIRecorder {
	return &MIDIRecorder{pitch: pitch, now: time.Now}
}

// Press records a note on
func (m *MIDIRecorder) Press(key Key) error {
	if _, ok := m.pitch(key); !ok {
		return fmt.Errorf("no MIDI pitch for key %q", key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held.press(key)
	m.events = append(m.events, Event{Key: key, Action: ActionPress, At: m.now()})
	return nil
}

// Release records a note off if the key is held
func (m *MIDIRecorder) Release(key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held.release(key) {
		m.events = append(m.events, Event{Key: key, Action: ActionRelease, At: m.now()})
	}
	return nil
}

// Len returns the number of recorded events
func (m *MIDIRecorder) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// WriteTo writes the recording as a single-track SMF
func (m *MIDIRecorder) WriteTo(w io.Writer) (int64, error) {
	m.mu.Lock()
	events := make([]Event, len(m.events))
	copy(events, m.events)
	m.mu.Unlock()

	if len(events) == 0 {
		return 0, errors.New("nothing recorded")
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(midiTicksPerQuarter)

	var track smf.Track
	tempo := uint32(midiMicrosPerBeat)
	track.Add(0, smf.Message([]byte{
		0xFF, 0x51, 0x03,
		byte(tempo >> 16),
		byte(tempo >> 8),
		byte(tempo),
	}))

	start := events[0].At
	var lastTick uint32
	for _, ev := range events {
		p, ok := m.pitch(ev.Key)
		if !ok {
			continue
		}
		tick := durationToTicks(ev.At.Sub(start))
		if tick < lastTick {
			tick = lastTick
		}
		delta := tick - lastTick
		lastTick = tick
		if ev.Action == ActionPress {
			track.Add(delta, midi.NoteOn(m.channel, p, midiVelocity))
		} else {
			track.Add(delta, midi.NoteOff(m.channel, p))
		}
	}
	track.Close(0)

	if err := s.Add(track); err != nil {
		return 0, fmt.Errorf("failed to add track: %w", err)
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return 0, fmt.Errorf("failed to write MIDI: %w", err)
	}
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// Save writes the recording to a file
func (m *MIDIRecorder) Save(filename string) error {
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return err
	}
	return os.WriteFile(filename, buf.Bytes(), 0644)
}

func durationToTicks(d time.Duration) uint32 {
	if d < 0 {
		return 0
	}
	return uint32(d.Microseconds() * midiTicksPerQuarter / midiMicrosPerBeat)
}
