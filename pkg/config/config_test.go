package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/james-see/lyrica/pkg/player"
)

func TestParseOverridesDefaults(t *testing.T) {
	data := []byte(`
speed = 1200
press_duration = 0.248
enable_ramping = true
layout = "qwertz"

[ramp.end]
steps = 8

[keys]
key0 = "q"
`)
	s, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	def := player.DefaultConfig()
	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"speed", s.Player.Speed, 1200.0},
		{"press duration", s.Player.PressDuration, 248 * time.Millisecond},
		{"initial delay kept", s.Player.InitialDelay, def.InitialDelay},
		{"ramping", s.Player.EnableRamping, true},
		{"end steps", s.Player.Ramp.End.Steps, 8},
		{"end start kept", s.Player.Ramp.End.StartPercentage, def.Ramp.End.StartPercentage},
		{"begin kept", s.Player.Ramp.Begin, def.Ramp.Begin},
		{"layout", s.Layout, "qwertz"},
		{"pause key", s.PauseKey, DefaultPauseKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	km, err := s.KeyMap()
	if err != nil {
		t.Fatalf("KeyMap() error = %v", err)
	}
	if k, _ := km.Resolve("1Key0"); k != "q" {
		t.Errorf("Resolve(1Key0) = %q, want q", k)
	}
	if k, _ := km.Resolve("key9"); k != "ö" {
		t.Errorf("Resolve(key9) = %q, want ö", k)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"syntax", "speed = ", "invalid config"},
		{"unknown key", "tempo = 3", "unknown config keys"},
		{"bad steps", "[ramp.begin]\nsteps = 0", "begin ramp"},
		{"bad layout", `layout = "colemak"`, "unknown keyboard layout"},
		{"bad speed", "speed = -1", "speed must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("Parse() expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(filepath.Join(dir, "missing.toml"))
	if err != nil {
		t.Fatalf("Load(missing) error = %v", err)
	}
	if s.Player != player.DefaultConfig() {
		t.Error("missing file should yield defaults")
	}

	path := filepath.Join(dir, "lyrica.toml")
	if err := os.WriteFile(path, []byte("pause_resume_delay = 2.5\npause_key = \"p\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	s, err = Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Player.PauseResumeDelay != 2500*time.Millisecond {
		t.Errorf("PauseResumeDelay = %v, want 2.5s", s.Player.PauseResumeDelay)
	}
	if s.PauseKey != "p" {
		t.Errorf("PauseKey = %q, want p", s.PauseKey)
	}

	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("speed = [1"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil || !strings.Contains(err.Error(), bad) {
		t.Errorf("Load(bad) error = %v, want it to name the file", err)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	want := Default()
	want.Player.EnableRamping = true
	want.Player.Speed = 800
	want.Layout = "DVORAK"

	data, err := Marshal(want)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v\n%s", err, data)
	}
	if got.Player != want.Player || got.Layout != want.Layout {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}

func TestKeyMapRejectsEmptyOverride(t *testing.T) {
	s := Default()
	s.Keys = map[string]string{"key3": ""}
	if _, err := s.KeyMap(); err == nil {
		t.Error("KeyMap() expected error for empty override")
	}
}
