package midi

import "strings"

// Phase is the position of an event within its frame
type Phase uint8

const (
	PhaseFirst Phase = 1 << iota
	PhaseNext
	PhaseLast
)

// Has reports whether all bits of q are set in p
func (p Phase) Has(q Phase) bool {
	return p&q == q
}

func (p Phase) String() string {
	if p == 0 {
		return "-"
	}
	var parts []string
	if p&PhaseFirst != 0 {
		parts = append(parts, "first")
	}
	if p&PhaseNext != 0 {
		parts = append(parts, "next")
	}
	if p&PhaseLast != 0 {
		parts = append(parts, "last")
	}
	return strings.Join(parts, "|")
}

// Identity correlates the events of one frame
type Identity struct {
	Family Kind // KindNoteOn for all note kinds, otherwise the event kind
	Dev    uint8
	Ch     uint8
	Num    uint16
}

// kindOps is the per-kind behaviour: which fields identify the frame, how the
// phase is derived and how a frame is cancelled or restored.
type kindOps struct {
	family  Kind
	hasDev  bool
	hasCh   bool
	hasNum  bool
	voice   bool
	phase   func(e Event, t *CtlTable) Phase
	cancel  func(last Event, t *CtlTable) (Event, bool)
	restore func(last, first Event) []Event
}

func singleShot(Event, *CtlTable) Phase { return PhaseFirst | PhaseLast }

func noCancel(Event, *CtlTable) (Event, bool) { return Event{}, false }

func resend(last, _ Event) []Event { return []Event{last} }

func cancelNote(last Event, _ *CtlTable) (Event, bool) {
	return NoteOff(last.Dev, last.Ch, uint8(last.Num), 0), true
}

func restoreNote(last, first Event) []Event {
	if last.Kind == KindNoteOn {
		return []Event{last}
	}
	vel := uint8(DefaultNoteVel)
	if first.Kind == KindNoteOn {
		vel = uint8(first.Val)
	}
	on := NoteOn(last.Dev, last.Ch, uint8(last.Num), vel)
	if last.Kind == KindKeyAT {
		return []Event{on, last}
	}
	return []Event{on}
}

func continuous(rest uint16) func(Event, *CtlTable) Phase {
	return func(e Event, _ *CtlTable) Phase {
		if e.Val == rest {
			return PhaseLast
		}
		return PhaseFirst | PhaseNext
	}
}

var ops = [numKinds]kindOps{
	KindNone: {
		phase:   singleShot,
		cancel:  noCancel,
		restore: resend,
	},
	KindNoteOn: {
		family: KindNoteOn, hasDev: true, hasCh: true, hasNum: true, voice: true,
		phase:   func(Event, *CtlTable) Phase { return PhaseFirst },
		cancel:  cancelNote,
		restore: restoreNote,
	},
	KindKeyAT: {
		family: KindNoteOn, hasDev: true, hasCh: true, hasNum: true, voice: true,
		phase:   func(Event, *CtlTable) Phase { return PhaseNext },
		cancel:  cancelNote,
		restore: restoreNote,
	},
	KindNoteOff: {
		family: KindNoteOn, hasDev: true, hasCh: true, hasNum: true, voice: true,
		phase:   func(Event, *CtlTable) Phase { return PhaseLast },
		cancel:  noCancel,
		restore: func(Event, Event) []Event { return nil },
	},
	KindCtl: {
		family: KindCtl, hasDev: true, hasCh: true, hasNum: true, voice: true,
		phase: func(e Event, t *CtlTable) Phase {
			if !t.IsFrame(e.Num) {
				return PhaseFirst | PhaseLast
			}
			if e.Val == t.Default(e.Num) {
				return PhaseLast
			}
			return PhaseFirst | PhaseNext
		},
		cancel: func(last Event, t *CtlTable) (Event, bool) {
			return Ctl(last.Dev, last.Ch, uint8(last.Num), uint8(t.Default(last.Num))), true
		},
		restore: resend,
	},
	KindXCtl: {
		family: KindXCtl, hasDev: true, hasCh: true, hasNum: true, voice: true,
		phase: func(e Event, t *CtlTable) Phase {
			if !t.IsFrame(e.Num) {
				return PhaseFirst | PhaseLast
			}
			if e.Val == t.Default(e.Num)<<7 {
				return PhaseLast
			}
			return PhaseFirst | PhaseNext
		},
		cancel: func(last Event, t *CtlTable) (Event, bool) {
			return XCtl(last.Dev, last.Ch, uint8(last.Num), t.Default(last.Num)<<7), true
		},
		restore: resend,
	},
	KindPC: {
		family: KindPC, hasDev: true, hasCh: true, voice: true,
		phase:   singleShot,
		cancel:  noCancel,
		restore: resend,
	},
	KindChanAT: {
		family: KindChanAT, hasDev: true, hasCh: true, voice: true,
		phase: continuous(0),
		cancel: func(last Event, _ *CtlTable) (Event, bool) {
			return ChanAT(last.Dev, last.Ch, 0), true
		},
		restore: resend,
	},
	KindBend: {
		family: KindBend, hasDev: true, hasCh: true, voice: true,
		phase: continuous(BendCenter),
		cancel: func(last Event, _ *CtlTable) (Event, bool) {
			return Bend(last.Dev, last.Ch, BendCenter), true
		},
		restore: resend,
	},
	KindSysex: {
		family: KindSysex, hasDev: true,
		phase:   singleShot,
		cancel:  noCancel,
		restore: resend,
	},
	KindTempo: {
		family:  KindTempo,
		phase:   singleShot,
		cancel:  noCancel,
		restore: resend,
	},
	KindTimeSig: {
		family:  KindTimeSig,
		phase:   singleShot,
		cancel:  noCancel,
		restore: resend,
	},
}

func opsOf(k Kind) *kindOps {
	if k >= numKinds {
		return &ops[KindNone]
	}
	return &ops[k]
}

// IdentityOf returns the frame identity of e
func IdentityOf(e Event) Identity {
	o := opsOf(e.Kind)
	id := Identity{Family: o.family}
	if o.hasDev {
		id.Dev = e.Dev
	}
	if o.hasCh {
		id.Ch = e.Ch
	}
	if o.hasNum {
		id.Num = e.Num
	}
	return id
}

// SameIdentity reports whether a and b are updates of the same frame
func SameIdentity(a, b Event) bool {
	return IdentityOf(a) == IdentityOf(b)
}

// PhaseOf returns the phase mask of e. Continuous kinds return
// PhaseFirst|PhaseNext: the event starts a frame unless one is open.
func PhaseOf(e Event, t *CtlTable) Phase {
	return opsOf(e.Kind).phase(e, t)
}

// CancelOf returns the event that terminates a frame whose latest event is last
func CancelOf(last Event, t *CtlTable) (Event, bool) {
	return opsOf(last.Kind).cancel(last, t)
}

// RestoreOf returns the events that put a frame back to the value of last.
// first is the event that opened the frame.
func RestoreOf(last, first Event) []Event {
	return opsOf(last.Kind).restore(last, first)
}
