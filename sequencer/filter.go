package sequencer

import "midiseq/midi"

// Filter transforms normalized input before it reaches the outputs. It
// returns false to drop the event.
type Filter interface {
	Filter(ev midi.Event) (midi.Event, bool)
}

// FilterFunc adapts a function to Filter
type FilterFunc func(midi.Event) (midi.Event, bool)

func (f FilterFunc) Filter(ev midi.Event) (midi.Event, bool) { return f(ev) }

// Passthrough forwards everything unchanged
var Passthrough Filter = FilterFunc(func(ev midi.Event) (midi.Event, bool) { return ev, true })

// ChanMap moves the voice events matching From to device Dev, channel Ch
type ChanMap struct {
	From midi.Spec
	Dev  uint8
	Ch   uint8
}

func (c ChanMap) Filter(ev midi.Event) (midi.Event, bool) {
	if ev.IsVoice() && c.From.Match(ev) {
		ev.Dev, ev.Ch = c.Dev, c.Ch&0x0f
	}
	return ev, true
}

// Drop discards the events matching Spec
type Drop struct {
	Spec midi.Spec
}

func (d Drop) Filter(ev midi.Event) (midi.Event, bool) {
	return ev, !d.Spec.Match(ev)
}

// Chain applies filters in order
type Chain []Filter

func (c Chain) Filter(ev midi.Event) (midi.Event, bool) {
	for _, f := range c {
		var ok bool
		if ev, ok = f.Filter(ev); !ok {
			return ev, false
		}
	}
	return ev, true
}
