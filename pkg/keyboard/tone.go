package keyboard

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

const (
	toneSampleRate = beep.SampleRate(48000)
	toneGain       = 0.2
	toneAttack     = 5 * time.Millisecond
	toneDecay      = 60 * time.Millisecond
)

// Tone sounds a sine voice for every held key through the default audio device
type Tone struct {
	mu          sync.Mutex
	pitch       PitchFunc
	mixer       *beep.Mixer
	voices      map[Key]*voice
	initialized bool
}

// NewTone creates a tone keyboard; call Initialize before playback
func NewTone(pitch PitchFunc) *Tone {
	return &Tone{
		pitch:  pitch,
		mixer:  &beep.Mixer{},
		voices: make(map[Key]*voice),
	}
}

// Initialize sets up the audio output
func (t *Tone) Initialize() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.initialized {
		return nil
	}
	if err := speaker.Init(toneSampleRate, toneSampleRate.N(50*time.Millisecond)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	speaker.Play(t.mixer)
	t.initialized = true
	return nil
}

// Press opens the gate of the key's voice, creating it on first use
func (t *Tone) Press(key Key) error {
	p, ok := t.pitch(key)
	if !ok {
		return fmt.Errorf("no pitch for key %q", key)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.voices[key]
	if !ok {
		v = newVoice(toneSampleRate, midiToFreq(p))
		t.voices[key] = v
		if t.initialized {
			speaker.Lock()
			t.mixer.Add(v)
			speaker.Unlock()
		} else {
			t.mixer.Add(v)
		}
	}
	v.gate.Store(true)
	return nil
}

// Release closes the gate of the key's voice
func (t *Tone) Release(key Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.voices[key]; ok {
		v.gate.Store(false)
	}
	return nil
}

// Cleanup silences every voice and detaches them from the mixer
func (t *Tone) Cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, v := range t.voices {
		v.gate.Store(false)
	}
	if t.initialized {
		speaker.Lock()
		t.mixer.Clear()
		speaker.Unlock()
	} else {
		t.mixer.Clear()
	}
	t.voices = make(map[Key]*voice)
	t.initialized = false
}

func midiToFreq(pitch uint8) float64 {
	return 440 * math.Pow(2, (float64(pitch)-69)/12)
}

// voice is a gated sine oscillator with a linear attack/decay envelope.
// It stays in the mixer for its whole life and is silent while closed.
type voice struct {
	gate       atomic.Bool
	phase      float64
	step       float64
	env        float64
	attackStep float64
	decayStep  float64
}

func newVoice(sr beep.SampleRate, freq float64) *voice {
	return &voice{
		step:       freq / float64(sr),
		attackStep: 1 / float64(sr.N(toneAttack)),
		decayStep:  1 / float64(sr.N(toneDecay)),
	}
}

func (v *voice) Stream(samples [][2]float64) (n int, ok bool) {
	open := v.gate.Load()
	for i := range samples {
		if open {
			v.env = math.Min(1, v.env+v.attackStep)
		} else {
			v.env = math.Max(0, v.env-v.decayStep)
		}
		s := 0.0
		if v.env > 0 {
			s = math.Sin(2*math.Pi*v.phase) * v.env * toneGain
		}
		samples[i][0] = s
		samples[i][1] = s
		v.phase += v.step
		if v.phase >= 1 {
			v.phase -= 1
		}
	}
	return len(samples), true
}

func (v *voice) Err() error {
	return nil
}
