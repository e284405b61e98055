package state

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"midiseq/midi"
)

func TestUpdateFrame(t *testing.T) {
	l := NewList(nil)
	l.SetTic(10)

	st := l.Update(midi.NoteOn(0, 0, 60, 100))
	if st.Phase != midi.PhaseFirst || st.Flags != FlagNew|FlagChanged || st.Tic != 10 {
		t.Fatalf("note on: %v tic %d", st, st.Tic)
	}

	if got := l.Update(midi.KeyAT(0, 0, 60, 5)); got != st || got.Phase != midi.PhaseNext || got.Flags&FlagNew != 0 {
		t.Fatalf("kat: %v", got)
	}
	if got := l.Update(midi.NoteOff(0, 0, 60, 0)); got != st || got.Phase != midi.PhaseLast {
		t.Fatalf("note off: %v", got)
	}
	if l.Lookup(midi.NoteOn(0, 0, 60, 1)) != st {
		t.Fatal("lookup lost the state")
	}

	// closed and changed: kept for one more tick
	l.Outdate()
	if l.Len() != 1 || l.Changed() {
		t.Fatalf("after first outdate: len %d changed %v", l.Len(), l.Changed())
	}
	l.Outdate()
	if !l.Empty() {
		t.Fatalf("closed state not removed: %v", l.States())
	}
}

func TestUpdateContinuous(t *testing.T) {
	l := NewList(nil)
	st := l.Update(midi.Bend(0, 0, 100))
	if st.Phase != midi.PhaseFirst {
		t.Fatalf("first bend: %v", st.Phase)
	}
	if got := l.Update(midi.Bend(0, 0, 200)); got != st || got.Phase != midi.PhaseNext {
		t.Fatalf("second bend: %v", got)
	}
	if got := l.Update(midi.Bend(0, 0, midi.BendCenter)); got.Phase != midi.PhaseLast {
		t.Fatalf("centre: %v", got)
	}
	// a new frame reuses the closed state and keeps its counter
	st.NEvents = 7
	l.SetTic(40)
	got := l.Update(midi.Bend(0, 0, 300))
	if got != st || got.Phase != midi.PhaseFirst || got.Flags != FlagChanged {
		t.Fatalf("restart: %v", got)
	}
	if got.NEvents != 7 || got.Tic != 40 || got.First.Val != 300 {
		t.Fatalf("restart: n=%d tic %d first %v", got.NEvents, got.Tic, got.First)
	}
	if l.Len() != 1 {
		t.Fatalf("len %d", l.Len())
	}
}

func TestNested(t *testing.T) {
	l := NewList(nil)
	first := l.Update(midi.NoteOn(0, 0, 60, 100))
	second := l.Update(midi.NoteOn(0, 0, 60, 90))

	if second == first {
		t.Fatal("nested note reused the state")
	}
	if second.Flags&FlagNested == 0 || second.Phase != midi.PhaseFirst {
		t.Fatalf("second: %v", second)
	}
	if second.Prev != first || first.Ev.Val != 100 {
		t.Fatalf("prev: %v", second.Prev)
	}
	if l.Len() != 1 || l.Lookup(midi.NoteOn(0, 0, 60, 0)) != second {
		t.Fatalf("list: %v", l.States())
	}
	l.Outdate()
	if second.Prev != nil {
		t.Fatal("prev kept after outdate")
	}
}

func TestBogus(t *testing.T) {
	tests := []struct {
		name  string
		ev    midi.Event
		mask  midi.Phase
		phase midi.Phase
	}{
		{"next without first", midi.Ctl(0, 0, 7, 64), midi.PhaseNext, midi.PhaseFirst},
		{"last without first", midi.NoteOff(0, 0, 60, 0), midi.PhaseLast, midi.PhaseFirst | midi.PhaseLast},
		{"kat without note", midi.KeyAT(0, 0, 60, 1), midi.PhaseNext, midi.PhaseFirst},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewList(nil)
			st := l.UpdatePhase(tt.ev, tt.mask)
			if st == nil || st.Flags&FlagBogus == 0 || st.Phase != tt.phase {
				t.Fatalf("got %v", st)
			}
			if l.Len() != 1 {
				t.Fatalf("len %d", l.Len())
			}
		})
	}
}

func TestSingleShotReuse(t *testing.T) {
	l := NewList(nil)
	first := l.Update(midi.PC(0, 0, 1))
	if first.Phase != midi.PhaseFirst|midi.PhaseLast || first.Flags&FlagNew == 0 {
		t.Fatalf("first: %v", first)
	}
	first.NEvents = 1
	for i := 2; i < 10; i++ {
		st := l.Update(midi.PC(0, 0, uint8(i)))
		if st != first || st.Flags&FlagNew != 0 || st.NEvents != 1 {
			t.Fatalf("pc %d: %v", i, st)
		}
	}
	if l.Len() != 1 || first.Ev.Num != 9 {
		t.Fatalf("list: %v", l.States())
	}

	// a continuation arriving on a closed state is still bogus
	l.Update(midi.NoteOn(0, 0, 60, 100))
	l.Update(midi.NoteOff(0, 0, 60, 0))
	if st := l.UpdatePhase(midi.KeyAT(0, 0, 60, 3), midi.PhaseNext); st.Flags&FlagBogus == 0 || st.Phase != midi.PhaseFirst {
		t.Fatalf("kat after off: %v", st)
	}
}

func TestCancelRestore(t *testing.T) {
	l := NewList(nil)
	st := l.Update(midi.NoteOn(0, 2, 64, 80))

	ev := l.Cancel(st)
	if len(ev) != 1 || !ev[0].Equal(midi.NoteOff(0, 2, 64, 0)) {
		t.Fatalf("cancel: %v", ev)
	}
	ev = l.Restore(st)
	if len(ev) != 1 || !ev[0].Equal(midi.NoteOn(0, 2, 64, 80)) {
		t.Fatalf("restore: %v", ev)
	}

	l.Update(midi.NoteOff(0, 2, 64, 0))
	if ev := l.Cancel(st); ev != nil {
		t.Fatalf("cancel of closed frame: %v", ev)
	}
	if ev := l.Restore(st); ev != nil {
		t.Fatalf("restore of closed frame: %v", ev)
	}

	pc := l.Update(midi.PC(0, 0, 5))
	if ev := l.Cancel(pc); ev != nil {
		t.Fatalf("cancel of program change: %v", ev)
	}
}

func TestOutdateCounters(t *testing.T) {
	l := NewList(nil)
	a := l.Update(midi.Bend(0, 0, 1))
	b := l.Update(midi.Bend(0, 1, 1))
	a.NEvents, b.NEvents = 5, 5
	l.Outdate()

	l.Update(midi.Bend(0, 0, 2))
	a.NEvents = 6
	l.Outdate()
	if a.NEvents != 6 || b.NEvents != 0 {
		t.Fatalf("a %d b %d", a.NEvents, b.NEvents)
	}
}

func TestRemoveDup(t *testing.T) {
	l := NewList(nil)
	a := l.Update(midi.NoteOn(0, 0, 60, 100))
	l.Update(midi.NoteOn(0, 0, 61, 100))

	d := l.Dup()
	l.Remove(a)
	if l.Len() != 1 || l.Lookup(midi.NoteOn(0, 0, 60, 1)) != nil {
		t.Fatalf("remove: %v", l.States())
	}
	if d.Len() != 2 || d.Lookup(midi.NoteOn(0, 0, 60, 1)) == a {
		t.Fatal("dup shares states")
	}
	l.Clear()
	if !l.Empty() {
		t.Fatal("clear")
	}
}

// eventGen draws events over a small identity space so collisions happen
func eventGen() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 5),
		gen.IntRange(0, 1),
		gen.IntRange(60, 62),
		gen.IntRange(0, 127),
	).Map(func(v []interface{}) midi.Event {
		ch, num, val := uint8(v[1].(int)), uint8(v[2].(int)), uint8(v[3].(int))
		switch v[0].(int) {
		case 0:
			return midi.NoteOn(0, ch, num, val|1)
		case 1:
			return midi.NoteOff(0, ch, num, 0)
		case 2:
			return midi.KeyAT(0, ch, num, val)
		case 3:
			return midi.Ctl(0, ch, 7, val)
		case 4:
			return midi.Bend(0, ch, uint16(val)<<7)
		}
		return midi.PC(0, ch, val)
	})
}

func TestPropertyUniqueIdentity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("no two states share an identity", prop.ForAll(
		func(events []midi.Event, every int) bool {
			l := NewList(nil)
			for i, e := range events {
				l.Update(e)
				if l.Check() != nil {
					return false
				}
				if i%every == 0 {
					l.Outdate()
					if l.Check() != nil {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(eventGen()),
		gen.IntRange(1, 8),
	))

	properties.Property("lookup finds the state just updated", prop.ForAll(
		func(events []midi.Event) bool {
			l := NewList(nil)
			for _, e := range events {
				if l.Update(e) != l.Lookup(e) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(eventGen()),
	))

	properties.TestingRun(t)
}
