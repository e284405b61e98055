package sequencer

import (
	"errors"
	"fmt"
)

// ErrTempoRange is returned for a tempo outside MinTempo..MaxTempo
var ErrTempoRange = errors.New("tempo out of range")

const (
	MinTempo     = 40
	MaxTempo     = 240
	DefaultTempo = 120
	DefaultTPB   = 24
)

const usec24PerMinute = 60 * 24 * 1000000

// Transport converts elapsed time into song ticks
type Transport struct {
	tpb     int
	tickLen uint64 // 24ths of µs per tick
	tic     int64
	acc     uint64 // time elapsed since the current tick started
}

// NewTransport creates a stopped transport at tick 0
func NewTransport(bpm, tpb int) (*Transport, error) {
	if tpb <= 0 {
		tpb = DefaultTPB
	}
	t := &Transport{tpb: tpb}
	if err := t.SetTempo(bpm); err != nil {
		return nil, err
	}
	return t, nil
}

// SetTempo sets the tempo in beats per minute
func (t *Transport) SetTempo(bpm int) error {
	if bpm < MinTempo || bpm > MaxTempo {
		return fmt.Errorf("%w: %d not in %d..%d", ErrTempoRange, bpm, MinTempo, MaxTempo)
	}
	t.tickLen = uint64(usec24PerMinute / (bpm * t.tpb))
	return nil
}

// SetTickLen sets the tick length directly, as tempo events of a song do
func (t *Transport) SetTickLen(usec24 uint64) {
	if usec24 > 0 {
		t.tickLen = usec24
	}
}

// SetTPB changes the resolution, keeping the tempo
func (t *Transport) SetTPB(tpb int) {
	if tpb <= 0 || tpb == t.tpb {
		return
	}
	t.tickLen = t.tickLen * uint64(t.tpb) / uint64(tpb)
	t.tpb = tpb
}

// Tempo returns the tempo in beats per minute, rounded
func (t *Transport) Tempo() int {
	return int((usec24PerMinute + t.tickLen*uint64(t.tpb)/2) / (t.tickLen * uint64(t.tpb)))
}

func (t *Transport) TPB() int        { return t.tpb }
func (t *Transport) TickLen() uint64 { return t.tickLen }
func (t *Transport) Tic() int64      { return t.tic }

// Seek moves to tick tic
func (t *Transport) Seek(tic int64) {
	if tic < 0 {
		tic = 0
	}
	t.tic, t.acc = tic, 0
}

// Advance adds delta 24ths of µs and returns the number of ticks crossed
func (t *Transport) Advance(delta uint64) int {
	t.acc += delta
	n := 0
	for t.acc >= t.tickLen {
		t.acc -= t.tickLen
		t.tic++
		n++
	}
	return n
}
