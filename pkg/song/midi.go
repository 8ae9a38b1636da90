package song

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	exportTicksPerQuarter = 480
	exportTempo           = 120.0
	defaultMicrosPerBeat  = 500000
)

type tempoChange struct {
	tick          int64
	microsPerBeat int64
}

// ParseMIDI converts a standard MIDI file into a song. Note-on events of
// every track are merged in time order and folded onto the instrument keys.
func ParseMIDI(data []byte) (*Song, error) {
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, parseErr("failed to parse MIDI", err)
	}

	ticksPerQuarter := int64(960)
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok {
		ticksPerQuarter = int64(mt.Resolution())
	}

	type noteOn struct {
		tick  int64
		pitch uint8
	}

	var (
		tempos []tempoChange
		events []noteOn
		title  string
	)

	for _, track := range s.Tracks {
		var currentTick int64
		for _, ev := range track {
			currentTick += int64(ev.Delta)
			msg := ev.Message

			// Tempo meta message (FF 51 03 tt tt tt)
			if len(msg) >= 6 && msg[0] == 0xFF && msg[1] == 0x51 && msg[2] == 0x03 {
				mpb := int64(msg[3])<<16 | int64(msg[4])<<8 | int64(msg[5])
				if mpb > 0 {
					tempos = append(tempos, tempoChange{tick: currentTick, microsPerBeat: mpb})
				}
				continue
			}

			// Track name meta message (FF 03 len text)
			if title == "" && len(msg) >= 3 && msg[0] == 0xFF && msg[1] == 0x03 {
				if n := int(msg[2]); len(msg) >= 3+n {
					title = string(msg[3 : 3+n])
				}
				continue
			}

			// Note On (0x90-0x9F) with non-zero velocity
			if len(msg) >= 3 && msg[0] >= 0x90 && msg[0] <= 0x9F && msg[2] > 0 {
				events = append(events, noteOn{tick: currentTick, pitch: msg[1]})
			}
		}
	}

	if len(events) == 0 {
		return nil, parseErr("MIDI file contains no notes", nil)
	}

	sort.SliceStable(tempos, func(i, j int) bool { return tempos[i].tick < tempos[j].tick })
	sort.SliceStable(events, func(i, j int) bool { return events[i].tick < events[j].tick })

	song := &Song{
		Title:  title,
		Format: FormatMIDI,
		Notes:  make([]Note, 0, len(events)),
	}
	if song.Title == "" {
		song.Title = DefaultTitle
	}
	if len(tempos) > 0 {
		song.BPM = int(60000000 / tempos[0].microsPerBeat)
	}

	for _, ev := range events {
		ms := ticksToMillis(ev.tick, ticksPerQuarter, tempos)
		song.Notes = append(song.Notes, NewNote(ms, KeyID(KeyForPitch(ev.pitch))))
	}
	return song, nil
}

// ticksToMillis converts an absolute tick to milliseconds honouring the tempo map
func ticksToMillis(tick, ticksPerQuarter int64, tempos []tempoChange) int64 {
	var (
		micros   int64
		lastTick int64
		mpb      int64 = defaultMicrosPerBeat
	)
	for _, tc := range tempos {
		if tc.tick >= tick {
			break
		}
		micros += (tc.tick - lastTick) * mpb / ticksPerQuarter
		lastTick = tc.tick
		mpb = tc.microsPerBeat
	}
	micros += (tick - lastTick) * mpb / ticksPerQuarter
	return micros / 1000
}

// GenerateMIDI creates a single-track MIDI file from a song. Each note is
// held for hold; notes whose key has no instrument pitch are left out.
func GenerateMIDI(s *Song, hold time.Duration) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil song")
	}
	if hold <= 0 {
		hold = 100 * time.Millisecond
	}

	type event struct {
		tick  uint32
		on    bool
		pitch uint8
	}

	ticksPerMs := float64(exportTicksPerQuarter) / (60000.0 / exportTempo)
	holdTicks := uint32(float64(hold.Milliseconds()) * ticksPerMs)
	if holdTicks == 0 {
		holdTicks = 1
	}

	var events []event
	for _, n := range s.Notes {
		if !n.Valid() {
			continue
		}
		pitch, ok := PitchForKey(n.Key)
		if !ok {
			continue
		}
		start := uint32(float64(n.Time) * ticksPerMs)
		events = append(events,
			event{tick: start, on: true, pitch: pitch},
			event{tick: start + holdTicks, on: false, pitch: pitch},
		)
	}
	if len(events) == 0 {
		return nil, errors.New("song has no exportable notes")
	}

	// Note offs sort before note ons on the same tick so repeated keys retrigger
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		return !events[i].on && events[j].on
	})

	out := smf.New()
	out.TimeFormat = smf.MetricTicks(exportTicksPerQuarter)

	var track smf.Track

	microsecondsPerBeat := uint32(60000000.0 / exportTempo)
	track.Add(0, smf.Message([]byte{
		0xFF, 0x51, 0x03,
		byte(microsecondsPerBeat >> 16),
		byte(microsecondsPerBeat >> 8),
		byte(microsecondsPerBeat),
	}))

	if s.Title != "" {
		name := []byte(s.Title)
		if len(name) > 127 {
			name = name[:127]
		}
		track.Add(0, smf.Message(append([]byte{0xFF, 0x03, byte(len(name))}, name...)))
	}

	channel := uint8(0)
	var currentTick uint32
	for _, ev := range events {
		delta := ev.tick - currentTick
		if ev.on {
			track.Add(delta, midi.NoteOn(channel, ev.pitch, 100))
		} else {
			track.Add(delta, midi.NoteOff(channel, ev.pitch))
		}
		currentTick = ev.tick
	}
	track.Close(0)

	if err := out.Add(track); err != nil {
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	var buf bytes.Buffer
	if _, err := out.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write MIDI: %w", err)
	}
	return buf.Bytes(), nil
}
