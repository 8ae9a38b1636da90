package tui

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/james-see/lyrica/pkg/keyboard"
	"github.com/james-see/lyrica/pkg/keymap/layouts"
	"github.com/james-see/lyrica/pkg/player"
	"github.com/james-see/lyrica/pkg/song"
)

func newTestModel(t *testing.T) Model {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	km, err := layouts.KeyMap(layouts.NewQWERTY())
	if err != nil {
		t.Fatalf("KeyMap() error = %v", err)
	}
	cfg := player.DefaultConfig()
	cfg.InitialDelay = 0
	engine, err := player.New(cfg, km, keyboard.NewRecorder(), nil, player.WithLogger(logger))
	if err != nil {
		t.Fatalf("player.New() error = %v", err)
	}
	t.Cleanup(engine.Close)
	return New(engine, song.NewLibrary(logger), "#")
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return out
}

func TestPlayingKeys(t *testing.T) {
	m := newTestModel(t)
	m.state = StatePlaying

	tests := []struct {
		key   string
		speed float64
	}{
		{"+", 1100},
		{"=", 1200},
		{"-", 1100},
		{"1", player.SpeedPresets[0]},
		{"4", player.SpeedPresets[3]},
	}
	for _, tt := range tests {
		m = press(t, m, runes(tt.key))
		if got := m.engine.CurrentSpeed(); got != tt.speed {
			t.Errorf("after %q speed = %v, want %v", tt.key, got, tt.speed)
		}
	}

	m = press(t, m, runes("#"))
	if !m.engine.PauseSignal().IsSet() {
		t.Error("pause key did not set the pause signal")
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	if m.engine.PauseSignal().IsSet() {
		t.Error("space did not toggle the pause signal off")
	}

	before := m.pressIndex
	m = press(t, m, runes("d"))
	want := player.PressDurationPresets[(before+1)%len(player.PressDurationPresets)]
	if got := m.engine.PressDuration(); got != want {
		t.Errorf("press duration = %v, want %v", got, want)
	}
}

func TestSongLoadError(t *testing.T) {
	m := newTestModel(t)

	m = press(t, m, songLoadedMsg{err: errors.New("bad song")})
	if m.state != StateResult {
		t.Fatalf("state = %v, want result", m.state)
	}
	if !strings.Contains(m.View(), "bad song") {
		t.Error("error not shown in view")
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.state != StateFilePicker {
		t.Errorf("state after enter = %v, want file picker", m.state)
	}
}

func TestPlaybackLifecycle(t *testing.T) {
	m := newTestModel(t)
	s := &song.Song{Title: "Tiny", Notes: []song.Note{song.NewNote(0, "1key0")}}

	next, cmd := m.Update(songLoadedMsg{song: s})
	m = next.(Model)
	if m.state != StatePlaying {
		t.Fatalf("state = %v, want playing", m.state)
	}
	if cmd == nil {
		t.Fatal("no command returned to start playback")
	}
	if !strings.Contains(m.View(), "Tiny") {
		t.Error("playing view does not show the title")
	}

	done := make(chan error, 1)
	go func() { done <- m.engine.Play(s) }()
	select {
	case err := <-done:
		m = press(t, m, playDoneMsg{err: err})
	case <-time.After(2 * time.Second):
		t.Fatal("playback did not finish")
	}

	if m.state != StateResult {
		t.Fatalf("state = %v, want result", m.state)
	}
	view := m.View()
	if !strings.Contains(view, "FINISHED") || !strings.Contains(view, "1 notes") {
		t.Errorf("result view missing stats:\n%s", view)
	}
}

func TestNearestPreset(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int
	}{
		{100 * time.Millisecond, 0},
		{250 * time.Millisecond, 1},
		{time.Second, 4},
		{10 * time.Second, 4},
	}
	for _, tt := range tests {
		if got := nearestPreset(tt.d); got != tt.want {
			t.Errorf("nearestPreset(%v) = %d, want %d", tt.d, got, tt.want)
		}
	}
}
