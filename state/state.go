// Package state tracks the frames open on a stream of events: one State per
// identity, advanced through FIRST, NEXT and LAST as events arrive.
package state

import (
	"fmt"
	"strings"

	"midiseq/midi"
)

// Flags describe what happened to a State during the current tick
type Flags uint8

const (
	FlagNew     Flags = 1 << iota // created by the last update
	FlagChanged                   // updated since the last outdate
	FlagBogus                     // frame started by a NEXT or LAST event
	FlagNested                    // frame started while another was open
)

func (f Flags) String() string {
	var parts []string
	for _, n := range []struct {
		bit  Flags
		name string
	}{{FlagNew, "new"}, {FlagChanged, "changed"}, {FlagBogus, "bogus"}, {FlagNested, "nested"}} {
		if f&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, ",")
}

// State is the tracked frame of one identity
type State struct {
	ID    midi.Identity
	Ev    midi.Event // latest event
	First midi.Event // event that opened the frame
	Phase midi.Phase
	Flags Flags

	// NEvents counts events forwarded during the current timer period
	NEvents int
	// Tag is owned by the consumer of the list
	Tag uint32
	// Tic is the tick of the frame's first event
	Tic int64
	// Pos is the index of the first event in the track being scanned, -1
	// when the list is not fed from a track
	Pos int

	// Prev is the frame this one superseded (nested frames only). The list
	// no longer holds it; it is dropped at the next outdate.
	Prev *State
}

// Open reports whether the frame has not reached LAST
func (s *State) Open() bool {
	return s.Phase&midi.PhaseLast == 0
}

func (s *State) String() string {
	return fmt.Sprintf("%v %v [%v] tag=%x n=%d", s.Ev, s.Phase, s.Flags, s.Tag, s.NEvents)
}
