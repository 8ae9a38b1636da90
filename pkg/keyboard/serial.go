package keyboard

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.bug.st/serial"
)

// Wire protocol constants for the key actuator board
const (
	SOF0       = 0xAA
	SOF1       = 0x55
	CmdPress   = 0x20
	CmdRelease = 0x21
	MaxKeyLen  = 32
)

// Frame is one key command sent to the actuator board
type Frame struct {
	Cmd byte
	Key Key
	Seq byte
}

// Encode builds the on-wire representation:
//
//	[SOF0][SOF1][LEN][CMD][SEQ][key bytes...][CKS]
//
// LEN counts CMD, SEQ and the key bytes; CKS is the XOR of LEN through the
// last key byte.
func (f Frame) Encode() ([]byte, error) {
	if len(f.Key) == 0 || len(f.Key) > MaxKeyLen {
		return nil, fmt.Errorf("key %q must be 1-%d bytes", f.Key, MaxKeyLen)
	}
	length := byte(len(f.Key) + 2)
	out := make([]byte, 0, len(f.Key)+6)
	out = append(out, SOF0, SOF1, length, f.Cmd, f.Seq)
	out = append(out, string(f.Key)...)

	cks := byte(0)
	for _, b := range out[2:] {
		cks ^= b
	}
	return append(out, cks), nil
}

// Serial drives a key actuator board over a serial line
type Serial struct {
	mu     sync.Mutex
	port   io.WriteCloser
	held   heldSet
	seq    byte
	logger *slog.Logger
}

// NewSerial wraps an already opened port
func NewSerial(port io.WriteCloser, logger *slog.Logger) *Serial {
	if logger == nil {
		logger = slog.Default()
	}
	return &Serial{port: port, logger: logger.With("component", "serial")}
}

// OpenSerial opens the named serial device at the given baud rate
func OpenSerial(name string, baud int, logger *slog.Logger) (*Serial, error) {
	p, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	s := NewSerial(p, logger)
	s.logger.Info("serial: port opened", "device", name, "baud", baud)
	return s, nil
}

// Press sends a press frame
func (s *Serial) Press(key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.send(CmdPress, key); err != nil {
		return err
	}
	s.held.press(key)
	return nil
}

// Release sends a release frame if the key is held
func (s *Serial) Release(key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.held.release(key) {
		return nil
	}
	return s.send(CmdRelease, key)
}

func (s *Serial) send(cmd byte, key Key) error {
	if s.port == nil {
		return errors.New("serial port closed")
	}
	s.seq++
	data, err := Frame{Cmd: cmd, Key: key, Seq: s.seq}.Encode()
	if err != nil {
		return err
	}
	n, err := s.port.Write(data)
	if err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	s.logger.Debug("serial: frame sent", "bytes", n, "seq", s.seq, "cmd", cmd, "key", key)
	return nil
}

// Close releases every held key and closes the port
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	for k := range s.held.down {
		if err := s.send(CmdRelease, k); err != nil {
			s.logger.Error("serial: release on close failed", "key", k, "err", err)
		}
	}
	s.held = heldSet{}
	s.logger.Info("serial: closing port")
	err := s.port.Close()
	s.port = nil
	return err
}
