package midi

import (
	gomidi "gitlab.com/gomidi/midi/v2"
)

// Encode converts an event to the wire messages that carry it. Meta events
// have no wire form and yield nil.
func Encode(e Event) []gomidi.Message {
	ch, num := e.Ch&0x0f, uint8(e.Num&0x7f)
	switch e.Kind {
	case KindNoteOn:
		return []gomidi.Message{gomidi.NoteOn(ch, num, uint8(e.Val))}
	case KindNoteOff:
		return []gomidi.Message{gomidi.NoteOffVelocity(ch, num, uint8(e.Val))}
	case KindKeyAT:
		return []gomidi.Message{gomidi.PolyAfterTouch(ch, num, uint8(e.Val))}
	case KindCtl:
		return []gomidi.Message{gomidi.ControlChange(ch, num, uint8(e.Val))}
	case KindXCtl:
		return []gomidi.Message{
			gomidi.ControlChange(ch, num, uint8(e.Val>>7)),
			gomidi.ControlChange(ch, num+32, uint8(e.Val&0x7f)),
		}
	case KindPC:
		return []gomidi.Message{gomidi.ProgramChange(ch, num)}
	case KindChanAT:
		return []gomidi.Message{gomidi.AfterTouch(ch, uint8(e.Val))}
	case KindBend:
		return []gomidi.Message{gomidi.Pitchbend(ch, int16(e.Val)-BendCenter)}
	case KindSysex:
		data := e.Data
		if len(data) > 0 && data[0] == 0xf0 {
			data = data[1:]
		}
		if len(data) > 0 && data[len(data)-1] == 0xf7 {
			data = data[:len(data)-1]
		}
		return []gomidi.Message{gomidi.SysEx(data)}
	}
	return nil
}

// Bytes returns the raw wire bytes of an event
func Bytes(e Event) []byte {
	var out []byte
	for _, m := range Encode(e) {
		out = append(out, m.Bytes()...)
	}
	return out
}
