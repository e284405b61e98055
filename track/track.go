// Package track holds recorded event sequences and the frame algebra used to
// edit them without leaving notes or controllers hanging.
package track

import (
	"errors"
	"fmt"
	"sort"

	"midiseq/midi"
	"midiseq/state"
)

// ErrNoTrack is returned when a requested track does not exist
var ErrNoTrack = errors.New("no such track")

// Event is an event at an absolute tick
type Event struct {
	Tic int64
	midi.Event
}

func (e Event) String() string {
	return fmt.Sprintf("%d %v", e.Tic, e.Event)
}

// Track is a sequence of events ordered by tick. Events sharing a tick keep
// their insertion order.
type Track struct {
	Name   string
	Events []Event
}

// New creates an empty track
func New(name string) *Track {
	return &Track{Name: name}
}

// Len returns the number of events
func (t *Track) Len() int { return len(t.Events) }

// End returns the tick of the last event
func (t *Track) End() int64 {
	if len(t.Events) == 0 {
		return 0
	}
	return t.Events[len(t.Events)-1].Tic
}

// Add inserts ev at tic, after any event already at that tick
func (t *Track) Add(tic int64, ev midi.Event) {
	i := sort.Search(len(t.Events), func(i int) bool { return t.Events[i].Tic > tic })
	t.Events = append(t.Events, Event{})
	copy(t.Events[i+1:], t.Events[i:])
	t.Events[i] = Event{Tic: tic, Event: ev}
}

// Append adds ev at the end; tic must not be before End
func (t *Track) Append(tic int64, ev midi.Event) {
	if tic < t.End() {
		t.Add(tic, ev)
		return
	}
	t.Events = append(t.Events, Event{Tic: tic, Event: ev})
}

// At returns the events whose tick is in [from, to)
func (t *Track) At(from, to int64) []Event {
	i := t.search(from)
	j := t.search(to)
	return t.Events[i:j]
}

// search returns the index of the first event at or after tic
func (t *Track) search(tic int64) int {
	return sort.Search(len(t.Events), func(i int) bool { return t.Events[i].Tic >= tic })
}

// Dup returns a deep copy
func Dup(t *Track) *Track {
	d := &Track{Name: t.Name, Events: make([]Event, len(t.Events))}
	for i, e := range t.Events {
		if e.Data != nil {
			e.Data = append([]byte(nil), e.Data...)
		}
		d.Events[i] = e
	}
	return d
}

// Replay feeds the events before tick end through a fresh state list. The
// result holds the frames sounding at end. State positions index t.Events.
func Replay(t *Track, end int64, ctls *midi.CtlTable) *state.List {
	l := state.NewList(ctls)
	for i, e := range t.Events {
		if e.Tic >= end {
			break
		}
		l.SetTic(e.Tic)
		if st := l.Update(e.Event); st.Phase&midi.PhaseFirst != 0 {
			st.Pos = i
		}
	}
	return l
}
