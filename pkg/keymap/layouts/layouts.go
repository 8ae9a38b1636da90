// Package layouts provides the built-in keyboard layouts
package layouts

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/james-see/lyrica/pkg/keyboard"
	"github.com/james-see/lyrica/pkg/keymap"
	"github.com/james-see/lyrica/pkg/song"
)

// ErrUnknownLayout is returned for layout names that are not built in
var ErrUnknownLayout = errors.New("unknown keyboard layout")

// Layout describes which physical keys play the instrument's keys
type Layout interface {
	Name() string
	Description() string
	Keys() [song.InstrumentKeys]keyboard.Key
}

// table implements Layout from a fixed key table
type table struct {
	name        string
	description string
	keys        [song.InstrumentKeys]keyboard.Key
}

func (t *table) Name() string                            { return t.name }
func (t *table) Description() string                     { return t.description }
func (t *table) Keys() [song.InstrumentKeys]keyboard.Key { return t.keys }

// NewQWERTY creates the QWERTY layout
func NewQWERTY() Layout {
	return &table{
		name:        "QWERTY",
		description: "US/UK keyboards",
		keys: [song.InstrumentKeys]keyboard.Key{
			"y", "u", "i", "o", "p",
			"h", "j", "k", "l", ";",
			"n", "m", ",", ".", "/",
		},
	}
}

// NewQWERTZ creates the QWERTZ layout
func NewQWERTZ() Layout {
	return &table{
		name:        "QWERTZ",
		description: "German/Central European keyboards",
		keys: [song.InstrumentKeys]keyboard.Key{
			"z", "u", "i", "o", "p",
			"h", "j", "k", "l", "ö",
			"n", "m", ",", ".", "-",
		},
	}
}

// NewAZERTY creates the AZERTY layout
func NewAZERTY() Layout {
	return &table{
		name:        "AZERTY",
		description: "French/Belgian keyboards",
		keys: [song.InstrumentKeys]keyboard.Key{
			"y", "u", "i", "o", "p",
			"h", "j", "k", "l", "m",
			"n", ",", ";", ":", "!",
		},
	}
}

// NewDVORAK creates the Dvorak layout
func NewDVORAK() Layout {
	return &table{
		name:        "DVORAK",
		description: "Dvorak simplified keyboards",
		keys: [song.InstrumentKeys]keyboard.Key{
			"f", "g", "c", "r", "l",
			"d", "h", "t", "n", "s",
			"b", "m", "w", "v", "z",
		},
	}
}

var builtin = map[string]func() Layout{
	"QWERTY": NewQWERTY,
	"QWERTZ": NewQWERTZ,
	"AZERTY": NewAZERTY,
	"DVORAK": NewDVORAK,
}

// Get returns the built-in layout with the given name (case-insensitive)
func Get(name string) (Layout, error) {
	if name == "" {
		return NewQWERTY(), nil
	}
	ctor, ok := builtin[strings.ToUpper(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLayout, name)
	}
	return ctor(), nil
}

// Names returns the names of all built-in layouts, sorted
func Names() []string {
	names := make([]string, 0, len(builtin))
	for n := range builtin {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// KeyMap builds a keymap for a layout
func KeyMap(l Layout) (*keymap.KeyMap, error) {
	keys := l.Keys()
	return keymap.FromKeys(keys[:])
}
