package song

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Library parses song files and caches the results by path. Cached songs
// are shared by pointer and must not be modified.
type Library struct {
	mu     sync.Mutex
	cache  map[string]*Song
	logger *slog.Logger
}

// NewLibrary creates an empty song library
func NewLibrary(logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{
		cache:  make(map[string]*Song),
		logger: logger.With("component", "library"),
	}
}

// Parse returns the song stored at path. The first successful parse of a
// path is cached; later calls return the same *Song without reading the
// file again. Failed parses are never cached.
func (l *Library) Parse(path string) (*Song, error) {
	key := filepath.Clean(path)

	l.mu.Lock()
	if s, ok := l.cache[key]; ok {
		l.mu.Unlock()
		return s, nil
	}
	l.mu.Unlock()

	l.logger.Debug("parsing song", "path", key)
	s, err := l.load(key)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = key
		} else {
			err = &ParseError{Path: key, Reason: "cannot read file", Err: err}
		}
		l.logger.Error("song parse failed", "path", key, "err", err)
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// A concurrent parse of the same path may have won; keep the first entry.
	if existing, ok := l.cache[key]; ok {
		return existing, nil
	}
	l.cache[key] = s
	l.logger.Info("song loaded", "path", key, "title", s.Title, "notes", len(s.Notes))
	return s, nil
}

func (l *Library) load(path string) (*Song, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Decode(path, data)
	if err != nil {
		return nil, err
	}
	s.Path = path
	return s, nil
}

// Decode parses song data, picking the format from the file name and
// falling back to sniffing the content
func Decode(name string, data []byte) (*Song, error) {
	format := DetectFormat(name)
	if format == FormatUnknown {
		format = DetectFormatFromContent(data)
	}

	var s *Song
	var err error
	switch format {
	case FormatJSON:
		s, err = Parse(data)
	case FormatMIDI:
		s, err = ParseMIDI(data)
	default:
		return nil, parseErr(fmt.Sprintf("cannot detect format of %s", filepath.Base(name)), ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, err
	}
	if s.Title == DefaultTitle && format == FormatMIDI && name != "" {
		s.Title = trimExt(filepath.Base(name))
	}
	return s, nil
}

// ClearCache discards every cached song and reports how many were dropped
func (l *Library) ClearCache() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.cache)
	l.cache = make(map[string]*Song)
	l.logger.Info("song cache cleared", "entries", n)
	return n
}

// Len returns the number of cached songs
func (l *Library) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.cache)
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
