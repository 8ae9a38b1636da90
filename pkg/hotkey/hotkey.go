// Package hotkey reads single key presses from a raw terminal to control
// playback from the command line
package hotkey

import (
	"log/slog"
	"sync"

	"golang.org/x/term"
)

// Action is a playback command bound to a key
type Action int

const (
	ActionNone Action = iota
	ActionPause
	ActionStop
	ActionFaster
	ActionSlower
)

func (a Action) String() string {
	switch a {
	case ActionPause:
		return "pause"
	case ActionStop:
		return "stop"
	case ActionFaster:
		return "faster"
	case ActionSlower:
		return "slower"
	default:
		return "none"
	}
}

// ctrlC arrives as a byte in raw mode instead of raising SIGINT
const ctrlC = 0x03

// Listener routes terminal key presses to a handler
type Listener struct {
	pause  byte
	handle func(Action)
	logger *slog.Logger

	stopCh   chan struct{}
	done     chan struct{}
	stopped  sync.Once
	started  bool
	fd       int
	oldState *term.State
	nonblock bool
}

// New creates a listener. pauseKey is the key that toggles pause in
// addition to space; an empty key falls back to '#'.
func New(pauseKey string, handle func(Action), logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	p := byte('#')
	if pauseKey != "" {
		p = pauseKey[0]
	}
	return &Listener{
		pause:  p,
		handle: handle,
		logger: logger.With("component", "hotkey"),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Route maps one input byte to its action and dispatches it
func (l *Listener) Route(b byte) Action {
	var a Action
	switch b {
	case l.pause, ' ':
		a = ActionPause
	case 'q', 'Q', 0x1b, ctrlC:
		a = ActionStop
	case '+', '=':
		a = ActionFaster
	case '-', '_':
		a = ActionSlower
	}
	if a != ActionNone && l.handle != nil {
		l.logger.Debug("hotkey", "action", a)
		l.handle(a)
	}
	return a
}

// IsTerminal reports whether stdin is an interactive terminal
func IsTerminal(fd int) bool {
	return term.IsTerminal(fd)
}

// Stop ends the reader goroutine and restores the terminal. It is safe to
// call without Start.
func (l *Listener) Stop() {
	l.stopped.Do(func() {
		close(l.stopCh)
	})
	if !l.started {
		return
	}
	<-l.done
	l.restore()
}
