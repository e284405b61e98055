package midi

import (
	gomidi "gitlab.com/gomidi/midi/v2"
)

// maxSysex bounds the size of an accumulated sysex message
const maxSysex = 64 * 1024

// Decoder turns the raw byte stream of one device into events. It handles
// running status, real-time bytes interleaved anywhere, sysex accumulation
// and 14-bit controller pairs.
type Decoder struct {
	Dev  uint8
	Ctls *CtlTable

	status  byte
	need    int
	buf     [2]byte
	n       int
	sysex   []byte
	inSysex bool
	hi      [16][32]int16 // last MSB of 14-bit controllers, -1 if unknown
}

// NewDecoder creates a decoder for device unit dev
func NewDecoder(dev uint8, ctls *CtlTable) *Decoder {
	d := &Decoder{Dev: dev, Ctls: ctls}
	d.Reset()
	return d
}

// Reset drops any partial message and forgets 14-bit controller context
func (d *Decoder) Reset() {
	d.status = 0
	d.n = 0
	d.sysex = nil
	d.inSysex = false
	for ch := range d.hi {
		for i := range d.hi[ch] {
			d.hi[ch][i] = -1
		}
	}
}

// Feed decodes data and calls emit for every complete event
func (d *Decoder) Feed(data []byte, emit func(Event)) {
	for _, b := range data {
		switch {
		case b >= 0xf8:
			// real-time, no effect on running status
		case b == 0xf0:
			d.inSysex = true
			d.sysex = append(d.sysex[:0], b)
			d.status = 0
		case b == 0xf7:
			if d.inSysex {
				d.sysex = append(d.sysex, b)
				d.decode(gomidi.Message(d.sysex), emit)
				d.sysex = nil
				d.inSysex = false
			}
		case b&0x80 != 0:
			d.inSysex = false
			d.sysex = nil
			d.status = b
			d.n = 0
			d.need = dataLen(b)
			if d.need == 0 {
				d.status = 0
			}
		case d.inSysex:
			if len(d.sysex) < maxSysex {
				d.sysex = append(d.sysex, b)
			}
		case d.status != 0:
			d.buf[d.n] = b
			d.n++
			if d.n < d.need {
				continue
			}
			d.n = 0
			msg := make([]byte, 1+d.need)
			msg[0] = d.status
			copy(msg[1:], d.buf[:d.need])
			if d.status >= 0xf0 {
				// system common messages have no running status
				d.status = 0
				continue
			}
			d.decode(gomidi.Message(msg), emit)
		}
	}
}

func dataLen(status byte) int {
	switch {
	case status < 0xf0:
		switch status & 0xf0 {
		case 0xc0, 0xd0:
			return 1
		}
		return 2
	case status == 0xf1, status == 0xf3:
		return 1
	case status == 0xf2:
		return 2
	}
	return 0
}

func (d *Decoder) decode(msg gomidi.Message, emit func(Event)) {
	var ch, key, vel, val uint8
	var rel int16
	var abs uint16
	var data []byte

	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		emit(NoteOn(d.Dev, ch, key, vel))
	case msg.GetNoteOff(&ch, &key, &vel):
		emit(NoteOff(d.Dev, ch, key, vel))
	case msg.GetNoteEnd(&ch, &key):
		emit(NoteOff(d.Dev, ch, key, 0))
	case msg.GetPolyAfterTouch(&ch, &key, &val):
		emit(KeyAT(d.Dev, ch, key, val))
	case msg.GetControlChange(&ch, &key, &val):
		d.ctl(ch, key, val, emit)
	case msg.GetProgramChange(&ch, &val):
		emit(PC(d.Dev, ch, val))
	case msg.GetAfterTouch(&ch, &val):
		emit(ChanAT(d.Dev, ch, val))
	case msg.GetPitchBend(&ch, &rel, &abs):
		emit(Bend(d.Dev, ch, abs))
	case msg.GetSysEx(&data):
		raw := make([]byte, len(msg))
		copy(raw, msg)
		emit(Sysex(d.Dev, raw))
	}
}

func (d *Decoder) ctl(ch, num, val uint8, emit func(Event)) {
	switch {
	case num < 32 && d.Ctls.IsFine(num):
		d.hi[ch][num] = int16(val)
		emit(XCtl(d.Dev, ch, num, uint16(val)<<7))
		return
	case num >= 32 && num < 64 && d.Ctls.IsFine(num-32):
		if hi := d.hi[ch][num-32]; hi >= 0 {
			emit(XCtl(d.Dev, ch, num-32, uint16(hi)<<7|uint16(val)))
			return
		}
	}
	emit(Ctl(d.Dev, ch, num, val))
}
