package keyboard

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2/smf"
)

func testPitch(k Key) (uint8, bool) {
	switch k {
	case "y":
		return 60, true
	case "u":
		return 62, true
	}
	return 0, false
}

func TestRecorderReleaseIsIdempotent(t *testing.T) {
	r := NewRecorder()

	if err := r.Release("y"); err != nil {
		t.Fatalf("Release() of unheld key error = %v", err)
	}
	_ = r.Press("y")
	if !r.Held("y") {
		t.Error("key should be held after Press()")
	}
	_ = r.Release("y")
	_ = r.Release("y")

	events := r.Events()
	if len(events) != 2 {
		t.Fatalf("len(Events()) = %d, want 2", len(events))
	}
	if events[0].Action != ActionPress || events[1].Action != ActionRelease {
		t.Errorf("actions = %v, %v, want press, release", events[0].Action, events[1].Action)
	}
	if r.HeldCount() != 0 {
		t.Errorf("HeldCount() = %d, want 0", r.HeldCount())
	}

	r.Reset()
	if len(r.Events()) != 0 {
		t.Error("Reset() should discard events")
	}
}

func TestFrameEncode(t *testing.T) {
	data, err := Frame{Cmd: CmdPress, Key: "y", Seq: 7}.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := []byte{SOF0, SOF1, 3, CmdPress, 7, 'y', 3 ^ CmdPress ^ 7 ^ 'y'}
	if !bytes.Equal(data, want) {
		t.Errorf("Encode() = % X, want % X", data, want)
	}

	if _, err := (Frame{Cmd: CmdPress}).Encode(); err == nil {
		t.Error("Encode() with empty key expected error")
	}
}

type fakePort struct {
	bytes.Buffer
	closed  bool
	failing bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.failing {
		return 0, errors.New("line down")
	}
	return p.Buffer.Write(b)
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func TestSerialPressRelease(t *testing.T) {
	port := &fakePort{}
	s := NewSerial(port, nil)

	if err := s.Release("y"); err != nil {
		t.Fatalf("Release() of unheld key error = %v", err)
	}
	if port.Len() != 0 {
		t.Error("Release() of unheld key should not write")
	}

	if err := s.Press("y"); err != nil {
		t.Fatalf("Press() error = %v", err)
	}
	if err := s.Press("u"); err != nil {
		t.Fatalf("Press() error = %v", err)
	}
	if err := s.Release("y"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	// 3 frames of 7 bytes each
	if port.Len() != 21 {
		t.Errorf("bytes written = %d, want 21", port.Len())
	}

	// Close releases "u" before closing
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !port.closed {
		t.Error("port should be closed")
	}
	if port.Len() != 28 {
		t.Errorf("bytes written after Close() = %d, want 28", port.Len())
	}
	if err := s.Press("y"); err == nil {
		t.Error("Press() after Close() expected error")
	}
}

func TestSerialWriteError(t *testing.T) {
	s := NewSerial(&fakePort{failing: true}, nil)
	if err := s.Press("y"); err == nil {
		t.Error("Press() expected error on failing port")
	}
}

func TestMIDIRecorderWritesSMF(t *testing.T) {
	m := NewMIDIRecorder(testPitch)
	base := time.Unix(0, 0)
	offset := time.Duration(0)
	m.now = func() time.Time { return base.Add(offset) }

	if err := m.Press("zz"); err == nil {
		t.Error("Press() of key without pitch expected error")
	}

	_ = m.Press("y")
	offset = 100 * time.Millisecond
	_ = m.Release("y")
	_ = m.Release("y")
	offset = 500 * time.Millisecond
	_ = m.Press("u")
	offset = 600 * time.Millisecond
	_ = m.Release("u")

	if m.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", m.Len())
	}

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}

	s, err := smf.ReadFrom(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("smf.ReadFrom() error = %v", err)
	}
	if len(s.Tracks) != 1 {
		t.Fatalf("tracks = %d, want 1", len(s.Tracks))
	}

	var ons, offs int
	var tick int64
	var secondOnTick int64
	for _, ev := range s.Tracks[0] {
		tick += int64(ev.Delta)
		msg := ev.Message
		if len(msg) < 3 {
			continue
		}
		switch {
		case msg[0]&0xF0 == 0x90 && msg[2] > 0:
			ons++
			if msg[1] == 62 {
				secondOnTick = tick
			}
		case msg[0]&0xF0 == 0x80 || (msg[0]&0xF0 == 0x90 && msg[2] == 0):
			offs++
		}
	}
	if ons != 2 || offs != 2 {
		t.Errorf("note ons/offs = %d/%d, want 2/2", ons, offs)
	}
	// 500ms at 120bpm/480tpq = 480 ticks
	if secondOnTick != 480 {
		t.Errorf("second note on tick = %d, want 480", secondOnTick)
	}
}

func TestMIDIRecorderEmpty(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewMIDIRecorder(testPitch).WriteTo(&buf); err == nil {
		t.Error("WriteTo() with no events expected error")
	}
}

func TestToneVoiceEnvelope(t *testing.T) {
	tone := NewTone(testPitch)
	if err := tone.Press("zz"); err == nil {
		t.Error("Press() of key without pitch expected error")
	}
	if err := tone.Press("y"); err != nil {
		t.Fatalf("Press() error = %v", err)
	}

	v := tone.voices["y"]
	buf := make([][2]float64, toneSampleRate.N(20*time.Millisecond))
	n, ok := v.Stream(buf)
	if n != len(buf) || !ok {
		t.Fatalf("Stream() = %d, %v", n, ok)
	}
	if v.env != 1 {
		t.Errorf("envelope after attack = %v, want 1", v.env)
	}

	_ = tone.Release("y")
	_ = tone.Release("y")
	buf = make([][2]float64, toneSampleRate.N(100*time.Millisecond))
	v.Stream(buf)
	if v.env != 0 {
		t.Errorf("envelope after decay = %v, want 0", v.env)
	}
	if last := buf[len(buf)-1][0]; last != 0 {
		t.Errorf("last sample = %v, want silence", last)
	}

	tone.Cleanup()
	if len(tone.voices) != 0 {
		t.Error("Cleanup() should drop voices")
	}
}
