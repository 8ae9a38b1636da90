//go:build windows

package hotkey

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/term"
)

// Start puts stdin in raw mode and reads keys in a goroutine. The read
// blocks, so Stop only returns once the next key arrives.
func (l *Listener) Start() error {
	l.started = true
	l.fd = int(os.Stdin.Fd())

	old, err := term.MakeRaw(l.fd)
	if err != nil {
		close(l.done)
		return fmt.Errorf("failed to set raw mode: %w", err)
	}
	l.oldState = old

	go func() {
		defer close(l.done)
		buf := make([]byte, 1)

		for {
			select {
			case <-l.stopCh:
				return
			default:
			}

			n, err := os.Stdin.Read(buf)
			if n > 0 {
				l.Route(buf[0])
			}
			if err != nil {
				l.logger.Warn("stdin read failed", "err", err)
				return
			}
			if n == 0 {
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()
	return nil
}

func (l *Listener) restore() {
	if l.oldState != nil {
		_ = term.Restore(l.fd, l.oldState)
		l.oldState = nil
	}
}
