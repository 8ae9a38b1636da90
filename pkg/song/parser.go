package song

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	json "github.com/goccy/go-json"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// DefaultTitle is used when a song carries neither a name nor a title
const DefaultTitle = "Unknown"

// Recognized note array fields, in lookup order
var notesFields = []string{"songNotes", "notes", "Notes"}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// textDecoding is one candidate in the encoding fallback chain
type textDecoding struct {
	name   string
	decode func([]byte) ([]byte, error)
}

func decodeWith(enc encoding.Encoding) func([]byte) ([]byte, error) {
	return func(data []byte) ([]byte, error) {
		return enc.NewDecoder().Bytes(data)
	}
}

func decodeUTF8(data []byte) ([]byte, error) {
	if !utf8.Valid(data) {
		return nil, encoding.ErrInvalidUTF8
	}
	return data, nil
}

func decodeUTF16NoBOM(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%2 != 0 {
		return nil, parseErr("odd byte count for UTF-16", nil)
	}
	return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(data)
}

// candidateDecodings returns the decodings to try for data, with any
// byte-order mark already stripped from the returned payload.
func candidateDecodings(data []byte) ([]textDecoding, []byte) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return []textDecoding{{"utf-8", decodeUTF8}}, data[len(bomUTF8):]
	case bytes.HasPrefix(data, bomUTF16LE):
		return []textDecoding{{"utf-16le", decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM))}}, data[2:]
	case bytes.HasPrefix(data, bomUTF16BE):
		return []textDecoding{{"utf-16be", decodeWith(unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM))}}, data[2:]
	}
	return []textDecoding{
		{"utf-8", decodeUTF8},
		{"utf-16le", decodeUTF16NoBOM},
		{"latin-1", decodeWith(charmap.ISO8859_1)},
	}, data
}

// Parse parses JSON song data. The text encoding is detected by trying
// UTF-8, UTF-16 and Latin-1 in that order; the first decoding that yields
// valid JSON is used.
func Parse(data []byte) (*Song, error) {
	decodings, payload := candidateDecodings(data)

	var lastErr error
	decoded := false
	for _, d := range decodings {
		text, err := d.decode(payload)
		if err != nil {
			continue
		}
		decoded = true
		text = bytes.TrimPrefix(text, bomUTF8)

		var v any
		if err := json.Unmarshal(text, &v); err != nil {
			lastErr = fmt.Errorf("%s: %w", d.name, err)
			continue
		}
		return parseDocument(text)
	}

	if !decoded {
		return nil, parseErr("content could not be decoded as UTF-8, UTF-16 or Latin-1", nil)
	}
	return nil, parseErr("content is not valid JSON", lastErr)
}

func parseDocument(doc []byte) (*Song, error) {
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, parseErr("song array is malformed", err)
		}
		if len(items) == 0 {
			return nil, parseErr("song array is empty", nil)
		}
		trimmed = items[0]
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, parseErr("song entry is not an object", err)
	}

	var rawNotes json.RawMessage
	found := false
	for _, name := range notesFields {
		if v, ok := fields[name]; ok {
			rawNotes, found = v, true
			break
		}
	}
	if !found {
		return nil, parseErr("missing songNotes field", nil)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(rawNotes, &items); err != nil {
		return nil, parseErr("notes field is not an array", err)
	}

	s := &Song{
		Title:  stringField(fields, "name", "title"),
		Format: FormatJSON,
		Notes:  make([]Note, 0, len(items)),
	}
	if s.Title == "" {
		s.Title = DefaultTitle
	}
	if v, ok := fields["bpm"]; ok {
		var bpm float64
		if json.Unmarshal(v, &bpm) == nil && bpm > 0 {
			s.BPM = int(math.Round(bpm))
		}
	}

	for _, item := range items {
		s.Notes = append(s.Notes, parseNote(item))
	}
	return s, nil
}

// parseNote decodes one note entry. Entries without a time or key are kept
// in place, marked invalid, so playback can report and skip them.
func parseNote(item json.RawMessage) Note {
	var raw struct {
		Time *float64 `json:"time"`
		Key  *string  `json:"key"`
	}
	if err := json.Unmarshal(item, &raw); err != nil || raw.Time == nil || raw.Key == nil {
		return Note{Time: -1}
	}
	key := strings.ToLower(strings.TrimSpace(*raw.Key))
	return Note{Time: int64(math.Round(*raw.Time)), Key: key, ok: key != ""}
}

func stringField(fields map[string]json.RawMessage, names ...string) string {
	for _, name := range names {
		v, ok := fields[name]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(v, &s) == nil && s != "" {
			return s
		}
	}
	return ""
}

type noteJSON struct {
	Time int64  `json:"time"`
	Key  string `json:"key"`
}

type songJSON struct {
	Name      string     `json:"name"`
	BPM       int        `json:"bpm,omitempty"`
	SongNotes []noteJSON `json:"songNotes"`
}

// GenerateJSON encodes a song as a one-element JSON array. Malformed notes
// are dropped.
func GenerateJSON(s *Song) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("no song to encode")
	}
	out := songJSON{Name: s.Title, BPM: s.BPM, SongNotes: make([]noteJSON, 0, len(s.Notes))}
	for _, n := range s.Notes {
		if n.Valid() {
			out.SongNotes = append(out.SongNotes, noteJSON{Time: n.Time, Key: n.Key})
		}
	}
	return json.MarshalIndent([]songJSON{out}, "", "  ")
}
