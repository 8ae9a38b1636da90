package song

import (
	"fmt"
	"strconv"
	"strings"
)

// InstrumentKeys is the number of keys on the target instrument
const InstrumentKeys = 15

// BasePitch is the MIDI pitch of key 0 (C4)
const BasePitch = 60

// Semitone offsets of the 15 instrument keys, two octaves of C major plus the top C
var scaleOffsets = [InstrumentKeys]uint8{0, 2, 4, 5, 7, 9, 11, 12, 14, 16, 17, 19, 21, 23, 24}

// KeyID returns the lower-cased key id for instrument key index n
func KeyID(n int) string {
	return fmt.Sprintf("1key%d", n)
}

// KeyIndex extracts the instrument key index from a key id such as
// "1key5", "key12" or "3Key0".
func KeyIndex(id string) (int, bool) {
	id = strings.ToLower(id)
	i := strings.Index(id, "key")
	if i < 0 || i > 1 {
		return 0, false
	}
	n, err := strconv.Atoi(id[i+3:])
	if err != nil || n < 0 || n >= InstrumentKeys {
		return 0, false
	}
	return n, true
}

// PitchForKey returns the MIDI pitch played by a key id
func PitchForKey(id string) (uint8, bool) {
	n, ok := KeyIndex(id)
	if !ok {
		return 0, false
	}
	return BasePitch + scaleOffsets[n], true
}

// KeyForPitch folds a MIDI pitch into the instrument range and returns the
// nearest key at or below it. Accidentals snap down to the scale.
func KeyForPitch(pitch uint8) int {
	p := int(pitch)
	top := BasePitch + int(scaleOffsets[InstrumentKeys-1])
	for p < BasePitch {
		p += 12
	}
	for p > top {
		p -= 12
	}
	idx := 0
	for i, off := range scaleOffsets {
		if BasePitch+int(off) <= p {
			idx = i
		}
	}
	return idx
}
