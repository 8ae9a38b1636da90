// Package keymap resolves song key ids to physical keys
package keymap

import (
	"fmt"
	"sort"
	"strings"

	"github.com/james-see/lyrica/pkg/keyboard"
	"github.com/james-see/lyrica/pkg/song"
)

// Prefixes are the layout variants a song key id may carry, e.g. "1Key5"
var Prefixes = []string{"", "1", "2", "3"}

// Resolver looks up the physical key for a song key id
type Resolver interface {
	Resolve(id string) (keyboard.Key, bool)
}

// KeyMap holds one canonical entry per instrument key. Prefixed ids are
// resolved at lookup time rather than stored.
type KeyMap struct {
	keys    map[string]keyboard.Key
	reverse map[keyboard.Key]string
}

// New builds a keymap from canonical ids ("key0".."key14") to physical keys
func New(mapping map[string]keyboard.Key) (*KeyMap, error) {
	km := &KeyMap{
		keys:    make(map[string]keyboard.Key, len(mapping)),
		reverse: make(map[keyboard.Key]string, len(mapping)),
	}
	for id, key := range mapping {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" || key == "" {
			return nil, fmt.Errorf("empty mapping entry %q -> %q", id, key)
		}
		km.keys[id] = key
		km.reverse[key] = id
	}
	return km, nil
}

// FromKeys builds a keymap where keys[i] plays instrument key i
func FromKeys(keys []keyboard.Key) (*KeyMap, error) {
	mapping := make(map[string]keyboard.Key, len(keys))
	for i, k := range keys {
		mapping[fmt.Sprintf("key%d", i)] = k
	}
	return New(mapping)
}

// Resolve returns the physical key for id, trying each variant prefix
func (km *KeyMap) Resolve(id string) (keyboard.Key, bool) {
	id = strings.ToLower(id)
	if k, ok := km.keys[id]; ok {
		return k, true
	}
	for _, p := range Prefixes {
		if p == "" || !strings.HasPrefix(id, p) {
			continue
		}
		if k, ok := km.keys[id[len(p):]]; ok {
			return k, true
		}
	}
	return "", false
}

// Override replaces the physical key for one canonical id
func (km *KeyMap) Override(id string, key keyboard.Key) {
	id = strings.ToLower(id)
	if old, ok := km.keys[id]; ok {
		delete(km.reverse, old)
	}
	km.keys[id] = key
	km.reverse[key] = id
}

// Pitch returns the MIDI pitch played by a physical key
func (km *KeyMap) Pitch(key keyboard.Key) (uint8, bool) {
	id, ok := km.reverse[key]
	if !ok {
		return 0, false
	}
	return song.PitchForKey(id)
}

// Keys returns every physical key in the map, sorted
func (km *KeyMap) Keys() []keyboard.Key {
	out := make([]keyboard.Key, 0, len(km.keys))
	for _, k := range km.keys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of canonical entries
func (km *KeyMap) Len() int {
	return len(km.keys)
}
