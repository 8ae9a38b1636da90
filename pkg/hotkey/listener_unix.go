//go:build !windows

package hotkey

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/term"
)

// Start puts stdin in raw non-blocking mode and reads keys in a goroutine.
// Call Stop to restore the terminal.
func (l *Listener) Start() error {
	l.started = true
	l.fd = int(os.Stdin.Fd())

	old, err := term.MakeRaw(l.fd)
	if err != nil {
		close(l.done)
		return fmt.Errorf("failed to set raw mode: %w", err)
	}
	l.oldState = old

	if err := syscall.SetNonblock(l.fd, true); err != nil {
		_ = term.Restore(l.fd, l.oldState)
		l.oldState = nil
		close(l.done)
		return fmt.Errorf("failed to set nonblocking stdin: %w", err)
	}
	l.nonblock = true

	go func() {
		defer close(l.done)
		buf := make([]byte, 1)

		for {
			select {
			case <-l.stopCh:
				return
			default:
			}

			n, err := syscall.Read(l.fd, buf)
			if n > 0 {
				l.Route(buf[0])
			}
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				time.Sleep(5 * time.Millisecond)
				continue
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
	if l.nonblock {
		_ = syscall.SetNonblock(l.fd, false)
		l.nonblock = false
	}
	if l.oldState != nil {
		_ = term.Restore(l.fd, l.oldState)
		l.oldState = nil
	}
}
