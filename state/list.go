package state

import (
	"fmt"

	"midiseq/midi"
)

// List holds at most one State per identity. It is not safe for concurrent
// use; the engine mutates it from its loop only.
type List struct {
	Ctls *midi.CtlTable

	states  []*State
	changed bool
	serial  uint64
	tic     int64
}

// NewList creates an empty list; a nil table means the default controllers
func NewList(ctls *midi.CtlTable) *List {
	return &List{Ctls: ctls}
}

// SetTic sets the tick stamped on new states
func (l *List) SetTic(tic int64) { l.tic = tic }

// Tic returns the current tick
func (l *List) Tic() int64 { return l.tic }

// Changed reports whether any state was updated since the last outdate
func (l *List) Changed() bool { return l.changed }

// Serial is incremented on every update
func (l *List) Serial() uint64 { return l.serial }

// Len returns the number of states
func (l *List) Len() int { return len(l.states) }

// Empty reports whether no state is tracked
func (l *List) Empty() bool { return len(l.states) == 0 }

// States returns the states, most recently created last
func (l *List) States() []*State {
	out := make([]*State, len(l.states))
	copy(out, l.states)
	return out
}

func (l *List) index(id midi.Identity) int {
	// recent identities are the likely ones
	for i := len(l.states) - 1; i >= 0; i-- {
		if l.states[i].ID == id {
			return i
		}
	}
	return -1
}

// Lookup returns the state of e's identity, or nil
func (l *List) Lookup(e midi.Event) *State {
	if i := l.index(midi.IdentityOf(e)); i >= 0 {
		return l.states[i]
	}
	return nil
}

// Update advances the state of e's identity using the phase rules of its kind
func (l *List) Update(e midi.Event) *State {
	return l.UpdatePhase(e, midi.PhaseOf(e, l.Ctls))
}

// UpdatePhase advances the state of e's identity with an explicit phase
// mask. A mask with both FIRST and NEXT means NEXT if a frame is open and
// FIRST otherwise.
func (l *List) UpdatePhase(e midi.Event, mask midi.Phase) *State {
	l.changed = true
	l.serial++

	id := midi.IdentityOf(e)
	i := l.index(id)

	if i < 0 || !l.states[i].Open() {
		phase, flags := mask&^midi.PhaseNext, FlagChanged
		if mask&midi.PhaseFirst == 0 {
			// the frame start was lost, make one up
			phase, flags = midi.PhaseFirst|mask&midi.PhaseLast, FlagChanged|FlagBogus
		}
		if i < 0 {
			st := &State{ID: id, Ev: e, First: e, Phase: phase, Flags: flags | FlagNew, Tic: l.tic, Pos: -1}
			l.states = append(l.states, st)
			return st
		}
		// a closed state is reused for the next frame; its counter keeps
		// running until the next outdate
		st := l.states[i]
		st.Ev, st.First, st.Phase, st.Flags = e, e, phase, flags
		st.Tic, st.Pos, st.Prev = l.tic, -1, nil
		return st
	}

	st := l.states[i]
	switch {
	case mask&midi.PhaseNext != 0:
		st.Phase = midi.PhaseNext
	case mask == midi.PhaseLast:
		st.Phase = midi.PhaseLast
	default:
		nested := &State{
			ID:    id,
			Ev:    e,
			First: e,
			Phase: mask,
			Flags: FlagNew | FlagChanged | FlagNested,
			Tic:   l.tic,
			Pos:   -1,
			Prev:  st,
		}
		st.Prev = nil
		l.states[i] = nested
		return nested
	}
	st.Ev = e
	st.Flags = (st.Flags | FlagChanged) &^ FlagNew
	return st
}

// Cancel returns the events terminating the frame of st, nil if it is
// closed or its kind has no inverse
func (l *List) Cancel(st *State) []midi.Event {
	if st == nil || !st.Open() {
		return nil
	}
	if ev, ok := midi.CancelOf(st.Ev, l.Ctls); ok {
		return []midi.Event{ev}
	}
	return nil
}

// Restore returns the events putting an open frame back to its current value
func (l *List) Restore(st *State) []midi.Event {
	if st == nil || !st.Open() {
		return nil
	}
	return midi.RestoreOf(st.Ev, st.First)
}

// Outdate ends the current tick: closed states not updated during it are
// removed, counters of idle states are reset and CHANGED is cleared.
func (l *List) Outdate() {
	kept := l.states[:0]
	for _, st := range l.states {
		st.Prev = nil
		if st.Flags&FlagChanged == 0 {
			if !st.Open() {
				continue
			}
			st.NEvents = 0
		}
		st.Flags &^= FlagChanged
		kept = append(kept, st)
	}
	for i := len(kept); i < len(l.states); i++ {
		l.states[i] = nil
	}
	l.states = kept
	l.changed = false
}

// Remove deletes st from the list
func (l *List) Remove(st *State) {
	for i, s := range l.states {
		if s == st {
			copy(l.states[i:], l.states[i+1:])
			l.states[len(l.states)-1] = nil
			l.states = l.states[:len(l.states)-1]
			return
		}
	}
}

// Clear drops every state
func (l *List) Clear() {
	for i := range l.states {
		l.states[i] = nil
	}
	l.states = l.states[:0]
	l.changed = false
}

// Dup returns a deep copy of the list without nested back-references
func (l *List) Dup() *List {
	d := &List{Ctls: l.Ctls, changed: l.changed, serial: l.serial, tic: l.tic}
	d.states = make([]*State, len(l.states))
	for i, st := range l.states {
		c := *st
		c.Prev = nil
		d.states[i] = &c
	}
	return d
}

// Check verifies that no two states share an identity
func (l *List) Check() error {
	seen := make(map[midi.Identity]bool, len(l.states))
	for _, st := range l.states {
		if seen[st.ID] {
			return fmt.Errorf("duplicate state for %v", st.Ev)
		}
		seen[st.ID] = true
	}
	return nil
}
