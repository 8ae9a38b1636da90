package song

import (
	"path/filepath"
	"strings"
)

// Format represents a song file format
type Format string

const (
	FormatJSON    Format = "json"
	FormatMIDI    Format = "midi"
	FormatUnknown Format = "unknown"
)

// DetectFormat detects the format of a file based on its extension
func DetectFormat(filename string) Format {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".json", ".txt", ".skysheet":
		return FormatJSON
	case ".mid", ".midi":
		return FormatMIDI
	default:
		return FormatUnknown
	}
}

// DetectFormatFromContent detects format from file content
func DetectFormatFromContent(data []byte) Format {
	if len(data) >= 4 && string(data[:4]) == "MThd" {
		return FormatMIDI
	}

	// Skip BOMs and whitespace, JSON songs start with an object or array.
	// UTF-16 text interleaves zero bytes, so those are skipped too.
	for _, b := range data {
		switch b {
		case 0x00, 0xEF, 0xBB, 0xBF, 0xFE, 0xFF, ' ', '\t', '\r', '\n':
			continue
		case '{', '[':
			return FormatJSON
		}
		return FormatUnknown
	}
	return FormatUnknown
}

// GetSupportedConversions returns a list of supported conversion paths
func GetSupportedConversions() []string {
	return []string{
		"json -> midi",
		"midi -> json",
	}
}
