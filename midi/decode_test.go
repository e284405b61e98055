package midi

import (
	"bytes"
	"testing"
)

func decodeAll(t *testing.T, d *Decoder, data []byte) []Event {
	t.Helper()
	var got []Event
	d.Feed(data, func(e Event) { got = append(got, e) })
	return got
}

func TestDecoder(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []Event
	}{
		{
			name: "note on and off",
			in:   []byte{0x90, 60, 100, 0x80, 60, 64},
			want: []Event{NoteOn(2, 0, 60, 100), NoteOff(2, 0, 60, 64)},
		},
		{
			name: "running status with zero velocity",
			in:   []byte{0x91, 60, 100, 62, 90, 60, 0},
			want: []Event{NoteOn(2, 1, 60, 100), NoteOn(2, 1, 62, 90), NoteOff(2, 1, 60, 0)},
		},
		{
			name: "real-time bytes inside a message",
			in:   []byte{0x90, 0xf8, 60, 0xfe, 100},
			want: []Event{NoteOn(2, 0, 60, 100)},
		},
		{
			name: "sysex",
			in:   []byte{0xf0, 0x7e, 0x7f, 0x09, 0x01, 0xf7},
			want: []Event{Sysex(2, []byte{0xf0, 0x7e, 0x7f, 0x09, 0x01, 0xf7})},
		},
		{
			name: "sysex interrupted by status",
			in:   []byte{0xf0, 0x7e, 0xb0, 7, 90},
			want: []Event{Ctl(2, 0, 7, 90)},
		},
		{
			name: "14-bit bank select",
			in:   []byte{0xb0, 0, 1, 0xb0, 32, 5},
			want: []Event{XCtl(2, 0, 0, 1<<7), XCtl(2, 0, 0, 1<<7|5)},
		},
		{
			name: "lsb without msb",
			in:   []byte{0xb3, 32, 5},
			want: []Event{Ctl(2, 3, 32, 5)},
		},
		{
			name: "bend, program, aftertouch",
			in:   []byte{0xe0, 0, 0x40, 0xc4, 12, 0xd5, 33, 0xa6, 60, 20},
			want: []Event{
				Bend(2, 0, BendCenter),
				PC(2, 4, 12),
				ChanAT(2, 5, 33),
				KeyAT(2, 6, 60, 20),
			},
		},
		{
			name: "data without status is dropped",
			in:   []byte{60, 100, 0x90, 61, 1},
			want: []Event{NoteOn(2, 0, 61, 1)},
		},
		{
			name: "system common kills running status",
			in:   []byte{0x90, 60, 100, 0xf3, 4, 61, 100},
			want: []Event{NoteOn(2, 0, 60, 100)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(2, nil)
			got := decodeAll(t, d, tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if !got[i].Equal(tt.want[i]) {
					t.Errorf("event %d: got %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDecoderSplitFeed(t *testing.T) {
	d := NewDecoder(0, nil)
	var got []Event
	for _, b := range []byte{0x90, 60, 100, 61} {
		d.Feed([]byte{b}, func(e Event) { got = append(got, e) })
	}
	d.Feed([]byte{80}, func(e Event) { got = append(got, e) })
	if len(got) != 2 || !got[1].Equal(NoteOn(0, 0, 61, 80)) {
		t.Fatalf("got %v", got)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	events := []Event{
		NoteOn(0, 1, 60, 100),
		NoteOff(0, 1, 60, 0),
		KeyAT(0, 2, 61, 9),
		Ctl(0, 3, 7, 100),
		PC(0, 5, 17),
		ChanAT(0, 6, 40),
		Bend(0, 7, 100),
		Bend(0, 7, BendCenter),
		Sysex(0, []byte{0xf0, 0x43, 0x10, 0xf7}),
	}
	var wire []byte
	for _, e := range events {
		wire = append(wire, Bytes(e)...)
	}
	got := decodeAll(t, NewDecoder(0, nil), wire)
	if len(got) != len(events) {
		t.Fatalf("got %d events, want %d: %v", len(got), len(events), got)
	}
	for i := range events {
		if !got[i].Equal(events[i]) {
			t.Errorf("event %d: got %v, want %v", i, got[i], events[i])
		}
	}
}

func TestEncodeBytes(t *testing.T) {
	if got := Bytes(XCtl(0, 0, 0, 1<<7|5)); !bytes.Equal(got, []byte{0xb0, 0, 1, 0xb0, 32, 5}) {
		t.Errorf("xctl: % x", got)
	}
	if got := Bytes(Bend(0, 2, BendCenter)); !bytes.Equal(got, []byte{0xe2, 0, 0x40}) {
		t.Errorf("bend: % x", got)
	}
	if got := Bytes(TempoEvent(500000)); len(got) != 0 {
		t.Errorf("tempo has wire bytes: % x", got)
	}
}
