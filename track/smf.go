package track

import (
	"fmt"
	"io"
	"os"

	"gitlab.com/gomidi/midi/v2/smf"

	"midiseq/midi"
)

// DefaultTPQ is the resolution used when writing new files
const DefaultTPQ = 96

// usec24PerMinute is one minute in 24ths of microsecond
const usec24PerMinute = 60 * 24 * 1000000

// TempoOf converts beats per minute to a tick length in 24ths of µs
func TempoOf(bpm float64, tpq uint16) uint32 {
	return uint32(usec24PerMinute / (bpm * float64(tpq)))
}

// BPMOf is the inverse of TempoOf
func BPMOf(tempo uint32, tpq uint16) float64 {
	return usec24PerMinute / (float64(tempo) * float64(tpq))
}

// Song is the content of a standard MIDI file
type Song struct {
	TPQ    uint16
	Tracks []*Track
}

// Track returns track n
func (s *Song) Track(n int) (*Track, error) {
	if n < 0 || n >= len(s.Tracks) {
		return nil, fmt.Errorf("%w: %d of %d", ErrNoTrack, n, len(s.Tracks))
	}
	return s.Tracks[n], nil
}

// ReadSMF decodes a standard MIDI file. Channel events are tagged with
// device unit dev; tempo and meter become meta events.
func ReadSMF(r io.Reader, dev uint8, ctls *midi.CtlTable) (*Song, error) {
	mid, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("read smf: %w", err)
	}
	tpq, ok := mid.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("read smf: SMPTE time format not supported")
	}
	song := &Song{TPQ: uint16(tpq)}
	for n, tr := range mid.Tracks {
		t := New(fmt.Sprintf("track%d", n))
		dec := midi.NewDecoder(dev, ctls)
		var tic int64
		for _, ev := range tr {
			tic += int64(ev.Delta)
			msg := ev.Message
			var bpm float64
			var num, denom uint8
			switch {
			case msg.GetMetaTempo(&bpm):
				t.Append(tic, midi.TempoEvent(TempoOf(bpm, song.TPQ)))
			case msg.GetMetaMeter(&num, &denom):
				if denom == 0 {
					denom = 4
				}
				t.Append(tic, midi.TimeSig(uint16(num), uint16(tpq)*4/uint16(denom)))
			case len(msg) > 0 && msg[0] == 0xff:
				// other meta events are not kept
			default:
				dec.Feed([]byte(msg), func(e midi.Event) { t.Append(tic, e) })
			}
		}
		song.Tracks = append(song.Tracks, t)
	}
	return song, nil
}

// ReadSMFFile is ReadSMF on a file
func ReadSMFFile(path string, dev uint8, ctls *midi.CtlTable) (*Song, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSMF(f, dev, ctls)
}

// WriteSMF encodes the song as a type 1 standard MIDI file
func WriteSMF(w io.Writer, song *Song) error {
	tpq := song.TPQ
	if tpq == 0 {
		tpq = DefaultTPQ
	}
	mid := smf.NewSMF1()
	mid.TimeFormat = smf.MetricTicks(tpq)
	for _, t := range song.Tracks {
		var tr smf.Track
		var last int64
		for _, e := range t.Events {
			for _, msg := range smfMessages(e.Event, tpq) {
				tr.Add(uint32(e.Tic-last), msg)
				last = e.Tic
			}
		}
		tr.Close(0)
		if err := mid.Add(tr); err != nil {
			return fmt.Errorf("write smf: %w", err)
		}
	}
	if _, err := mid.WriteTo(w); err != nil {
		return fmt.Errorf("write smf: %w", err)
	}
	return nil
}

// WriteSMFFile is WriteSMF to a file
func WriteSMFFile(path string, song *Song) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteSMF(f, song); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func smfMessages(e midi.Event, tpq uint16) [][]byte {
	switch e.Kind {
	case midi.KindTempo:
		if e.Tempo == 0 {
			return nil
		}
		return [][]byte{smf.MetaTempo(BPMOf(e.Tempo, tpq))}
	case midi.KindTimeSig:
		if e.Val == 0 {
			return nil
		}
		return [][]byte{smf.MetaMeter(uint8(e.Num), uint8(uint16(tpq)*4/e.Val))}
	}
	var out [][]byte
	for _, m := range midi.Encode(e) {
		out = append(out, m.Bytes())
	}
	return out
}
