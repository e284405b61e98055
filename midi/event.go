package midi

import "fmt"

// Kind identifies what an Event carries.
type Kind uint8

const (
	KindNone Kind = iota
	KindNoteOff
	KindNoteOn
	KindKeyAT // polyphonic (key) aftertouch
	KindCtl   // 7-bit controller
	KindXCtl  // 14-bit controller, MSB/LSB pair merged
	KindPC
	KindChanAT
	KindBend
	KindSysex
	KindTempo
	KindTimeSig
	numKinds
)

// Bend and velocity constants
const (
	BendCenter     = 0x2000
	BendMax        = 0x3fff
	NoteMax        = 127
	DefaultNoteVel = 100
)

// Event is one MIDI occurrence. Events are values; copy them freely but
// never mutate one after it has been handed to another stage.
type Event struct {
	Kind Kind
	Dev  uint8 // device unit
	Ch   uint8 // channel 0-15
	Num  uint16
	Val  uint16

	// Tempo is the tick length in 24ths of microsecond (KindTempo only)
	Tempo uint32
	// Data holds a complete sysex message including F0/F7 (KindSysex only)
	Data []byte
}

// NoteOn returns a note-on event
func NoteOn(dev, ch, num, vel uint8) Event {
	return Event{Kind: KindNoteOn, Dev: dev, Ch: ch, Num: uint16(num), Val: uint16(vel)}
}

// NoteOff returns a note-off event
func NoteOff(dev, ch, num, vel uint8) Event {
	return Event{Kind: KindNoteOff, Dev: dev, Ch: ch, Num: uint16(num), Val: uint16(vel)}
}

// KeyAT returns a key aftertouch event
func KeyAT(dev, ch, num, val uint8) Event {
	return Event{Kind: KindKeyAT, Dev: dev, Ch: ch, Num: uint16(num), Val: uint16(val)}
}

// Ctl returns a 7-bit controller event
func Ctl(dev, ch, num, val uint8) Event {
	return Event{Kind: KindCtl, Dev: dev, Ch: ch, Num: uint16(num), Val: uint16(val)}
}

// XCtl returns a 14-bit controller event, num is the MSB controller number
func XCtl(dev, ch, num uint8, val uint16) Event {
	return Event{Kind: KindXCtl, Dev: dev, Ch: ch, Num: uint16(num), Val: val & 0x3fff}
}

// PC returns a program change event
func PC(dev, ch, prog uint8) Event {
	return Event{Kind: KindPC, Dev: dev, Ch: ch, Num: uint16(prog)}
}

// ChanAT returns a channel aftertouch event
func ChanAT(dev, ch, val uint8) Event {
	return Event{Kind: KindChanAT, Dev: dev, Ch: ch, Val: uint16(val)}
}

// Bend returns a pitch bend event, val is 0..16383 with 8192 at rest
func Bend(dev, ch uint8, val uint16) Event {
	return Event{Kind: KindBend, Dev: dev, Ch: ch, Val: val & BendMax}
}

// Sysex returns a system exclusive event, data must start with F0
func Sysex(dev uint8, data []byte) Event {
	return Event{Kind: KindSysex, Dev: dev, Data: data}
}

// TempoEvent returns a tempo meta event, tempo is the tick length in 24ths of µs
func TempoEvent(tempo uint32) Event {
	return Event{Kind: KindTempo, Tempo: tempo}
}

// TimeSig returns a time signature meta event
func TimeSig(beats, ticsPerBeat uint16) Event {
	return Event{Kind: KindTimeSig, Num: beats, Val: ticsPerBeat}
}

// IsVoice reports whether the event is a channel voice message
func (e Event) IsVoice() bool {
	return opsOf(e.Kind).voice
}

// IsNote reports whether the event belongs to a note frame
func (e Event) IsNote() bool {
	return e.Kind == KindNoteOn || e.Kind == KindNoteOff || e.Kind == KindKeyAT
}

// Equal compares two events, including sysex payloads
func (e Event) Equal(o Event) bool {
	if e.Kind != o.Kind || e.Dev != o.Dev || e.Ch != o.Ch ||
		e.Num != o.Num || e.Val != o.Val || e.Tempo != o.Tempo ||
		len(e.Data) != len(o.Data) {
		return false
	}
	for i := range e.Data {
		if e.Data[i] != o.Data[i] {
			return false
		}
	}
	return true
}

var kindNames = [numKinds]string{
	KindNone:    "none",
	KindNoteOff: "noff",
	KindNoteOn:  "non",
	KindKeyAT:   "kat",
	KindCtl:     "ctl",
	KindXCtl:    "xctl",
	KindPC:      "pc",
	KindChanAT:  "cat",
	KindBend:    "bend",
	KindSysex:   "sysex",
	KindTempo:   "tempo",
	KindTimeSig: "timesig",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

func (e Event) String() string {
	switch e.Kind {
	case KindNoteOff, KindNoteOn, KindKeyAT, KindCtl, KindXCtl:
		return fmt.Sprintf("%s {%d %d} %d %d", e.Kind, e.Dev, e.Ch, e.Num, e.Val)
	case KindPC:
		return fmt.Sprintf("%s {%d %d} %d", e.Kind, e.Dev, e.Ch, e.Num)
	case KindChanAT, KindBend:
		return fmt.Sprintf("%s {%d %d} %d", e.Kind, e.Dev, e.Ch, e.Val)
	case KindSysex:
		return fmt.Sprintf("%s %d % x", e.Kind, e.Dev, e.Data)
	case KindTempo:
		return fmt.Sprintf("%s %d", e.Kind, e.Tempo)
	case KindTimeSig:
		return fmt.Sprintf("%s %d %d", e.Kind, e.Num, e.Val)
	}
	return e.Kind.String()
}
