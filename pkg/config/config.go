// Package config loads playback settings from a TOML file
package config

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/james-see/lyrica/pkg/keyboard"
	"github.com/james-see/lyrica/pkg/keymap"
	"github.com/james-see/lyrica/pkg/keymap/layouts"
	"github.com/james-see/lyrica/pkg/player"
)

// DefaultPauseKey toggles pause in the terminal front ends
const DefaultPauseKey = "#"

// Settings is everything read from a config file
type Settings struct {
	Player   player.Config
	Layout   string
	PauseKey string
	Keys     map[string]string
}

type rampPhase struct {
	Steps           int     `toml:"steps"`
	StartPercentage float64 `toml:"start_percentage"`
	EndPercentage   float64 `toml:"end_percentage"`
}

type rampFile struct {
	Begin      rampPhase `toml:"begin"`
	AfterPause rampPhase `toml:"after_pause"`
	End        rampPhase `toml:"end"`
}

// file is the on-disk layout. Durations are seconds.
type file struct {
	Speed            float64           `toml:"speed"`
	PressDuration    float64           `toml:"press_duration"`
	InitialDelay     float64           `toml:"initial_delay"`
	PauseResumeDelay float64           `toml:"pause_resume_delay"`
	EnableRamping    bool              `toml:"enable_ramping"`
	SpeedTransition  float64           `toml:"speed_transition"`
	MaxPause         float64           `toml:"max_pause"`
	Layout           string            `toml:"layout"`
	PauseKey         string            `toml:"pause_key"`
	Ramp             rampFile          `toml:"ramp"`
	Keys             map[string]string `toml:"keys"`
}

// Default returns the built-in settings
func Default() Settings {
	return Settings{
		Player:   player.DefaultConfig(),
		Layout:   layouts.NewQWERTY().Name(),
		PauseKey: DefaultPauseKey,
	}
}

// Load reads settings from path. A missing file yields the defaults.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes TOML settings. Keys absent from data keep their defaults.
func Parse(data []byte) (Settings, error) {
	f := toFile(Default())

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Settings{}, fmt.Errorf("unknown config keys: %s", strict.String())
		}
		return Settings{}, fmt.Errorf("invalid config: %w", err)
	}

	s := f.settings()
	if err := s.Player.Validate(); err != nil {
		return Settings{}, err
	}
	if _, err := layouts.Get(s.Layout); err != nil {
		return Settings{}, err
	}
	if s.PauseKey == "" {
		s.PauseKey = DefaultPauseKey
	}
	return s, nil
}

// Marshal encodes settings as TOML
func Marshal(s Settings) ([]byte, error) {
	return toml.Marshal(toFile(s))
}

// KeyMap builds the keymap for the selected layout with any key overrides
func (s Settings) KeyMap() (*keymap.KeyMap, error) {
	l, err := layouts.Get(s.Layout)
	if err != nil {
		return nil, err
	}
	km, err := layouts.KeyMap(l)
	if err != nil {
		return nil, err
	}
	for id, key := range s.Keys {
		if key == "" {
			return nil, fmt.Errorf("empty key for %q", id)
		}
		km.Override(id, keyboard.Key(key))
	}
	return km, nil
}

func seconds(d time.Duration) float64 {
	return d.Seconds()
}

func duration(sec float64) time.Duration {
	return time.Duration(math.Round(sec * float64(time.Second)))
}

func toFile(s Settings) file {
	c := s.Player
	return file{
		Speed:            c.Speed,
		PressDuration:    seconds(c.PressDuration),
		InitialDelay:     seconds(c.InitialDelay),
		PauseResumeDelay: seconds(c.PauseResumeDelay),
		EnableRamping:    c.EnableRamping,
		SpeedTransition:  seconds(c.SpeedTransition),
		MaxPause:         seconds(c.MaxPause),
		Layout:           s.Layout,
		PauseKey:         s.PauseKey,
		Ramp: rampFile{
			Begin:      rampPhase(c.Ramp.Begin),
			AfterPause: rampPhase(c.Ramp.AfterPause),
			End:        rampPhase(c.Ramp.End),
		},
		Keys: s.Keys,
	}
}

func (f file) settings() Settings {
	return Settings{
		Player: player.Config{
			Speed:            f.Speed,
			PressDuration:    duration(f.PressDuration),
			InitialDelay:     duration(f.InitialDelay),
			PauseResumeDelay: duration(f.PauseResumeDelay),
			EnableRamping:    f.EnableRamping,
			SpeedTransition:  duration(f.SpeedTransition),
			MaxPause:         duration(f.MaxPause),
			Ramp: player.RampConfig{
				Begin:      player.RampPhase(f.Ramp.Begin),
				AfterPause: player.RampPhase(f.Ramp.AfterPause),
				End:        player.RampPhase(f.Ramp.End),
			},
		},
		Layout:   f.Layout,
		PauseKey: f.PauseKey,
		Keys:     f.Keys,
	}
}
