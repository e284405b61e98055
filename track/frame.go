package track

import (
	"midiseq/midi"
	"midiseq/state"
)

// synth collects the events fn produces for the open states of l, stamped
// with tic, in state creation order
func synth(l *state.List, tic int64, fn func(*state.State) []midi.Event) []Event {
	var out []Event
	for _, st := range l.States() {
		for _, ev := range fn(st) {
			out = append(out, Event{Tic: tic, Event: ev})
		}
	}
	return out
}

// frame builds the independently playable copy of [start, start+length):
// restores at 0 for frames sounding at start, the events of the range, then
// cancels at length for frames still sounding at the end.
func frame(t *Track, start, length int64, before, after *state.List) *Track {
	f := New(t.Name)
	f.Events = synth(before, 0, before.Restore)
	for _, e := range t.At(start, start+length) {
		e.Tic -= start
		if e.Data != nil {
			e.Data = append([]byte(nil), e.Data...)
		}
		f.Events = append(f.Events, e)
	}
	f.Events = append(f.Events, synth(after, length, after.Cancel)...)
	return f
}

func clip(t *Track, start, length int64, ctls *midi.CtlTable, shift bool) *Track {
	if length <= 0 || start < 0 {
		return New(t.Name)
	}
	before := Replay(t, start, ctls)
	after := Replay(t, start+length, ctls)
	f := frame(t, start, length, before, after)

	resume := start + length
	if shift {
		resume = start
	}
	i, j := t.search(start), t.search(start+length)
	rest := make([]Event, 0, len(t.Events)-(j-i))
	rest = append(rest, t.Events[:i]...)
	rest = append(rest, synth(before, start, before.Cancel)...)
	rest = append(rest, synth(after, resume, after.Restore)...)
	for _, e := range t.Events[j:] {
		if shift {
			e.Tic -= length
		}
		rest = append(rest, e)
	}
	t.Events = rest
	return f
}

// Extract removes [start, start+length) from t and returns it as a frame.
// Frames sounding at start are cancelled there; frames sounding at
// start+length are restored there so the rest of the track plays as before.
func Extract(t *Track, start, length int64, ctls *midi.CtlTable) *Track {
	return clip(t, start, length, ctls, false)
}

// Cut is Extract followed by moving everything after the range back by
// length ticks.
func Cut(t *Track, start, length int64, ctls *midi.CtlTable) *Track {
	return clip(t, start, length, ctls, true)
}

// Copy returns the frame Extract would return, leaving t untouched
func Copy(t *Track, start, length int64, ctls *midi.CtlTable) *Track {
	if length <= 0 || start < 0 {
		return New(t.Name)
	}
	return frame(t, start, length, Replay(t, start, ctls), Replay(t, start+length, ctls))
}

// Erase silences [start, start+length) without moving anything
func Erase(t *Track, start, length int64, ctls *midi.CtlTable) {
	clip(t, start, length, ctls, false)
}

// Insert moves every event at or after start forward by length ticks
func Insert(t *Track, start, length int64) {
	if length <= 0 {
		return
	}
	for i := t.search(start); i < len(t.Events); i++ {
		t.Events[i].Tic += length
	}
}

// Blank inserts length ticks of silence at start. Frames sounding at start
// keep sounding through the gap.
func Blank(t *Track, start, length int64) {
	Insert(t, start, length)
}

// Match counts the frames of t whose opening event satisfies spec
func Match(t *Track, spec midi.Spec, ctls *midi.CtlTable) int {
	l := state.NewList(ctls)
	n := 0
	for _, e := range t.Events {
		st := l.Update(e.Event)
		if st.Phase&midi.PhaseFirst != 0 && st.Flags&state.FlagBogus == 0 && spec.Match(st.First) {
			n++
		}
	}
	return n
}

// Uniq drops the continuation events that repeat the current value of
// their open frame and returns how many were removed
func Uniq(t *Track, ctls *midi.CtlTable) int {
	l := state.NewList(ctls)
	kept := t.Events[:0]
	n := 0
	for _, e := range t.Events {
		if st := l.Lookup(e.Event); st != nil && st.Open() &&
			midi.PhaseOf(e.Event, ctls)&midi.PhaseNext != 0 && e.Event.Equal(st.Ev) {
			n++
			continue
		}
		l.SetTic(e.Tic)
		l.Update(e.Event)
		kept = append(kept, e)
	}
	for i := len(kept); i < len(t.Events); i++ {
		t.Events[i] = Event{}
	}
	t.Events = kept
	return n
}

// Transpose shifts note numbers by halftones, clamped to 0..127
func Transpose(t *Track, halftones int) {
	for i := range t.Events {
		e := &t.Events[i]
		if !e.IsNote() {
			continue
		}
		n := int(e.Num) + halftones
		switch {
		case n < 0:
			n = 0
		case n > midi.NoteMax:
			n = midi.NoteMax
		}
		e.Num = uint16(n)
	}
}

// FrameAt detaches the frame whose first event is t.Events[i]. Ticks of the
// returned frame are relative to that event.
func FrameAt(t *Track, i int, ctls *midi.CtlTable) *Track {
	f := New(t.Name)
	if i < 0 || i >= len(t.Events) {
		return f
	}
	origin := t.Events[i]
	l := state.NewList(ctls)
	taken := make(map[int]bool)
	for j := i; j < len(t.Events); j++ {
		e := t.Events[j]
		if !midi.SameIdentity(e.Event, origin.Event) {
			continue
		}
		st := l.Update(e.Event)
		if j > i && st.Phase&midi.PhaseFirst != 0 {
			break
		}
		taken[j] = true
		e.Tic -= origin.Tic
		f.Events = append(f.Events, e)
		if !st.Open() {
			break
		}
	}
	rest := t.Events[:0]
	for j, e := range t.Events {
		if !taken[j] {
			rest = append(rest, e)
		}
	}
	for j := len(rest); j < len(t.Events); j++ {
		t.Events[j] = Event{}
	}
	t.Events = rest
	return f
}

// Merge adds the events of src to dst, shifted by at ticks. On equal ticks
// the events already in dst come first.
func Merge(dst, src *Track, at int64) {
	out := make([]Event, 0, len(dst.Events)+len(src.Events))
	i, j := 0, 0
	for i < len(dst.Events) || j < len(src.Events) {
		if j == len(src.Events) || (i < len(dst.Events) && dst.Events[i].Tic <= src.Events[j].Tic+at) {
			out = append(out, dst.Events[i])
			i++
			continue
		}
		e := src.Events[j]
		e.Tic += at
		out = append(out, e)
		j++
	}
	dst.Events = out
}
