package hotkey

import (
	"testing"
	"time"
)

func TestRoute(t *testing.T) {
	var got []Action
	l := New("p", func(a Action) { got = append(got, a) }, nil)

	tests := []struct {
		in   byte
		want Action
	}{
		{'p', ActionPause},
		{' ', ActionPause},
		{'#', ActionNone},
		{'q', ActionStop},
		{0x03, ActionStop},
		{0x1b, ActionStop},
		{'+', ActionFaster},
		{'=', ActionFaster},
		{'-', ActionSlower},
		{'x', ActionNone},
	}

	dispatched := 0
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			if a := l.Route(tt.in); a != tt.want {
				t.Errorf("Route(%q) = %v, want %v", tt.in, a, tt.want)
			}
		})
		if tt.want != ActionNone {
			dispatched++
		}
	}

	if len(got) != dispatched {
		t.Errorf("handler called %d times, want %d", len(got), dispatched)
	}
}

func TestDefaultPauseKey(t *testing.T) {
	l := New("", nil, nil)
	if a := l.Route('#'); a != ActionPause {
		t.Errorf("Route('#') = %v, want pause", a)
	}
}

func TestStopWithoutStart(t *testing.T) {
	l := New("#", nil, nil)
	done := make(chan struct{})
	go func() {
		l.Stop()
		l.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop without Start blocked")
	}
}
