// Package norm sanitizes an input event stream: overlapping or malformed
// frames are terminated, frames started while the output was shut are kept
// silent, and continuous controllers are throttled per timer period.
package norm

import (
	"log/slog"

	"midiseq/debug"
	"midiseq/midi"
	"midiseq/state"
)

// State tags
const (
	TagPass    uint32 = 1 << iota // frame is forwarded
	TagPending                    // an update was held back by throttling
)

const (
	// DefaultThrottle is the number of events forwarded per identity and period
	DefaultThrottle = 20
	// Period is one tick at 120 BPM and 24 ticks per beat, in 24ths of µs
	Period = 60 * 24 * 1000000 / (120 * 24)
)

// Putter receives normalized events
type Putter interface {
	Put(midi.Event)
}

// PutFunc adapts a function to Putter
type PutFunc func(midi.Event)

func (f PutFunc) Put(ev midi.Event) { f(ev) }

// Timers schedules one-shot callbacks; delay is in 24ths of µs
type Timers interface {
	Schedule(delay uint64, fn func()) (cancel func())
}

// Normalizer is the input pipeline stage in front of the filter
type Normalizer struct {
	Throttle int

	list   *state.List
	out    Putter
	log    *slog.Logger
	timers Timers
	cancel func()
}

// New creates a normalizer writing to out
func New(out Putter, ctls *midi.CtlTable, log *slog.Logger) *Normalizer {
	return &Normalizer{
		Throttle: DefaultThrottle,
		list:     state.NewList(ctls),
		out:      out,
		log:      debug.Or(log),
	}
}

// Start runs Timeout every Period using t
func (n *Normalizer) Start(t Timers) {
	n.timers = t
	n.schedule()
}

func (n *Normalizer) schedule() {
	if n.timers == nil {
		return
	}
	n.cancel = n.timers.Schedule(Period, func() {
		n.Timeout()
		n.schedule()
	})
}

// States returns the tracked frames
func (n *Normalizer) States() []*state.State {
	return n.list.States()
}

// Put processes one input event
func (n *Normalizer) Put(ev midi.Event) {
	n.PutPhase(ev, midi.PhaseOf(ev, n.list.Ctls))
}

// PutPhase processes an event whose phase mask is known by the caller,
// as for a controller continuation whose frame start was not seen.
func (n *Normalizer) PutPhase(ev midi.Event, mask midi.Phase) {
	if !ev.IsVoice() {
		n.out.Put(ev)
		return
	}

	st := n.list.UpdatePhase(ev, mask)
	if st.Phase&midi.PhaseFirst != 0 {
		if st.Flags&state.FlagNew != 0 {
			st.NEvents = 0
		}
		st.Tag = TagPass
		if st.Flags&(state.FlagBogus|state.FlagNested) != 0 {
			n.log.Debug("norm: malformed frame", "ev", ev.String(), "flags", st.Flags.String())
			n.kill(ev, st)
		}
	}
	if st.Tag&TagPass == 0 {
		return
	}
	if st.NEvents >= n.Throttle &&
		(st.Phase == midi.PhaseNext || st.Phase == midi.PhaseFirst|midi.PhaseLast) {
		st.Tag |= TagPending
		debug.LogEvery(100, "norm", "throttled %v", ev)
		return
	}
	st.Tag &^= TagPending
	n.out.Put(ev)
	st.NEvents++
}

// kill terminates the forwarded frames competing with st: the frame it
// superseded and any other frame of the same class.
func (n *Normalizer) kill(ev midi.Event, st *state.State) {
	if p := st.Prev; p != nil && p.Tag&TagPass != 0 {
		for _, c := range n.list.Cancel(p) {
			n.out.Put(c)
		}
		p.Tag &^= TagPass
	}
	class := midi.ClassSpec(ev)
	for _, o := range n.list.States() {
		if o == st || o.Tag&TagPass == 0 || !o.Open() || !class.Match(o.Ev) {
			continue
		}
		for _, c := range n.list.Cancel(o) {
			n.list.Update(c)
			n.out.Put(c)
		}
		o.Tag &^= TagPass
		debug.Log("norm", "killed %v", o.Ev)
	}
}

// Timeout ends a period: counters restart and held back updates are sent
func (n *Normalizer) Timeout() {
	n.list.Outdate()
	for _, st := range n.list.States() {
		st.NEvents = 0
		if st.Tag&TagPending != 0 {
			st.Tag &^= TagPending
			n.out.Put(st.Ev)
			st.NEvents++
		}
	}
}

// Shut terminates every forwarded frame. Frames stay tracked but silent
// until they end.
func (n *Normalizer) Shut() {
	for _, st := range n.list.States() {
		if st.Tag&TagPass == 0 {
			continue
		}
		for _, c := range n.list.Cancel(st) {
			n.out.Put(c)
		}
		st.Tag &^= TagPass | TagPending
	}
}

// SetOutput shuts the current output and switches to out
func (n *Normalizer) SetOutput(out Putter) {
	n.Shut()
	n.out = out
}

// Stop terminates every forwarded frame, drops all state and stops the timer
func (n *Normalizer) Stop() {
	n.Shut()
	n.list.Clear()
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
	n.timers = nil
}
