// Package song provides parsing, caching and conversion of note sequences
package song

import (
	"errors"
	"fmt"
)

// Note represents a single timestamped key event in a song
type Note struct {
	Time int64  // Milliseconds from the start of the song
	Key  string // Lower-cased key id, resolved through a keymap at playback
	ok   bool
}

// NewNote creates a well-formed note
func NewNote(timeMs int64, key string) Note {
	return Note{Time: timeMs, Key: key, ok: true}
}

// Valid reports whether the source entry carried both a time and a key
func (n Note) Valid() bool {
	return n.ok && n.Time >= 0 && n.Key != ""
}

// Song represents a parsed note sequence
type Song struct {
	Title  string
	BPM    int
	Path   string
	Format Format
	Notes  []Note
}

// Duration returns the timestamp of the last well-formed note in milliseconds
func (s *Song) Duration() int64 {
	for i := len(s.Notes) - 1; i >= 0; i-- {
		if s.Notes[i].Valid() {
			return s.Notes[i].Time
		}
	}
	return 0
}

// ValidNotes returns the number of well-formed notes
func (s *Song) ValidNotes() int {
	n := 0
	for _, note := range s.Notes {
		if note.Valid() {
			n++
		}
	}
	return n
}

// ErrUnsupportedFormat is returned when a file is neither JSON nor MIDI
var ErrUnsupportedFormat = errors.New("unsupported song format")

// ParseError describes why a song could not be parsed
type ParseError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := "invalid song format"
	if e.Path != "" {
		msg += " [" + e.Path + "]"
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func parseErr(reason string, err error) *ParseError {
	return &ParseError{Reason: reason, Err: err}
}
