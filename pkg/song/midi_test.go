package song

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestKeyForPitch(t *testing.T) {
	tests := []struct {
		pitch uint8
		want  int
	}{
		{60, 0},  // C4
		{62, 1},  // D4
		{61, 0},  // C#4 snaps down
		{72, 7},  // C5
		{84, 14}, // C6
		{48, 0},  // C3 folds up
		{96, 14}, // C7 folds down to C6
		{98, 8},  // D7 folds down to D5
		{86, 8},  // D6 folds to D5
	}

	for _, tt := range tests {
		if got := KeyForPitch(tt.pitch); got != tt.want {
			t.Errorf("KeyForPitch(%d) = %d, want %d", tt.pitch, got, tt.want)
		}
	}
}

func TestKeyIndex(t *testing.T) {
	tests := []struct {
		id   string
		want int
		ok   bool
	}{
		{"1key5", 5, true},
		{"Key14", 14, true},
		{"3KEY0", 0, true},
		{"1key15", 0, false},
		{"a", 0, false},
		{"12key1", 0, false},
	}

	for _, tt := range tests {
		got, ok := KeyIndex(tt.id)
		if got != tt.want || ok != tt.ok {
			t.Errorf("KeyIndex(%q) = %d, %v, want %d, %v", tt.id, got, ok, tt.want, tt.ok)
		}
	}
}

func TestMIDIRoundTrip(t *testing.T) {
	src := &Song{
		Title: "Round Trip",
		Notes: []Note{
			NewNote(0, "1key0"),
			NewNote(500, "1key4"),
			NewNote(500, "1key7"),
			NewNote(1250, "2key14"),
			{Time: -1},
		},
	}

	data, err := GenerateMIDI(src, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("GenerateMIDI() error = %v", err)
	}
	if string(data[:4]) != "MThd" {
		t.Fatalf("output does not start with MThd")
	}

	got, err := ParseMIDI(data)
	if err != nil {
		t.Fatalf("ParseMIDI() error = %v", err)
	}
	if got.Title != "Round Trip" {
		t.Errorf("Title = %q, want %q", got.Title, "Round Trip")
	}
	if got.BPM != 120 {
		t.Errorf("BPM = %d, want 120", got.BPM)
	}

	want := []Note{
		NewNote(0, "1key0"),
		NewNote(500, "1key4"),
		NewNote(500, "1key7"),
		NewNote(1250, "1key14"),
	}
	if len(got.Notes) != len(want) {
		t.Fatalf("len(Notes) = %d, want %d", len(got.Notes), len(want))
	}
	for i := range want {
		if got.Notes[i].Time != want[i].Time || got.Notes[i].Key != want[i].Key {
			t.Errorf("Notes[%d] = {%d %s}, want {%d %s}",
				i, got.Notes[i].Time, got.Notes[i].Key, want[i].Time, want[i].Key)
		}
	}
}

func TestGenerateMIDIRejectsEmptySong(t *testing.T) {
	if _, err := GenerateMIDI(&Song{Notes: []Note{NewNote(0, "zzz")}}, 0); err == nil {
		t.Error("GenerateMIDI() expected error for song without instrument keys")
	}
	if _, err := GenerateMIDI(nil, 0); err == nil {
		t.Error("GenerateMIDI(nil) expected error")
	}
}

func TestParseMIDIRejectsGarbage(t *testing.T) {
	if _, err := ParseMIDI([]byte("MThd garbage")); err == nil {
		t.Error("ParseMIDI() expected error")
	}
}

func TestLibraryLoadsMIDI(t *testing.T) {
	data, err := GenerateMIDI(&Song{Notes: []Note{NewNote(0, "1key2")}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "tune.mid")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	s, err := NewLibrary(nil).Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if s.Format != FormatMIDI {
		t.Errorf("Format = %v, want %v", s.Format, FormatMIDI)
	}
	if s.Title != "tune" {
		t.Errorf("Title = %q, want %q", s.Title, "tune")
	}
}
