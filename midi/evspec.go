package midi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadSpec is returned when an event spec cannot be parsed
var ErrBadSpec = errors.New("bad event spec")

// Spec is a predicate over events: a set of kinds plus device, channel and
// number ranges. Ranges are inclusive.
type Spec struct {
	Kinds  uint32 // bit per Kind
	DevMin uint8
	DevMax uint8
	ChMin  uint8
	ChMax  uint8
	NumMin uint16
	NumMax uint16
}

func kindBit(k Kind) uint32 { return 1 << k }

const noteKinds = 1<<KindNoteOn | 1<<KindNoteOff | 1<<KindKeyAT

var specKinds = map[string]uint32{
	"any":     ^uint32(0) &^ 1,
	"note":    noteKinds,
	"ctl":     kindBit(KindCtl),
	"xctl":    kindBit(KindXCtl),
	"pc":      kindBit(KindPC),
	"cat":     kindBit(KindChanAT),
	"bend":    kindBit(KindBend),
	"sysex":   kindBit(KindSysex),
	"tempo":   kindBit(KindTempo),
	"timesig": kindBit(KindTimeSig),
	"voice": noteKinds | kindBit(KindCtl) | kindBit(KindXCtl) | kindBit(KindPC) |
		kindBit(KindChanAT) | kindBit(KindBend),
}

// AnySpec matches every event
func AnySpec() Spec {
	return Spec{Kinds: specKinds["any"], DevMax: 255, ChMax: 15, NumMax: 0xffff}
}

// Match reports whether e satisfies the spec
func (s Spec) Match(e Event) bool {
	if s.Kinds&kindBit(e.Kind) == 0 {
		return false
	}
	o := opsOf(e.Kind)
	if o.hasDev && (e.Dev < s.DevMin || e.Dev > s.DevMax) {
		return false
	}
	if o.hasCh && (e.Ch < s.ChMin || e.Ch > s.ChMax) {
		return false
	}
	if o.hasNum && (e.Num < s.NumMin || e.Num > s.NumMax) {
		return false
	}
	return true
}

// ClassSpec returns the spec of events competing with e for the same frame
// slot: same kind family, device, channel and number. 7-bit and 14-bit
// controllers on the same number share a class.
func ClassSpec(e Event) Spec {
	o := opsOf(e.Kind)
	s := Spec{DevMax: 255, ChMax: 15, NumMax: 0xffff}
	switch o.family {
	case KindNoteOn:
		s.Kinds = noteKinds
	case KindCtl, KindXCtl:
		s.Kinds = kindBit(KindCtl) | kindBit(KindXCtl)
	default:
		s.Kinds = kindBit(e.Kind)
	}
	if o.hasDev {
		s.DevMin, s.DevMax = e.Dev, e.Dev
	}
	if o.hasCh {
		s.ChMin, s.ChMax = e.Ch, e.Ch
	}
	if o.hasNum {
		s.NumMin, s.NumMax = e.Num, e.Num
	}
	return s
}

// ParseSpec parses "KIND[,KIND] [DEV:CH[..DEV:CH]] [NUM[..NUM]]", for
// instance "note 0:0 60..72", "ctl 0:* 7" or "any".
func ParseSpec(text string) (Spec, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 || len(fields) > 3 {
		return Spec{}, fmt.Errorf("%w: %q", ErrBadSpec, text)
	}
	s := AnySpec()
	s.Kinds = 0
	for _, name := range strings.Split(fields[0], ",") {
		bits, ok := specKinds[name]
		if !ok {
			return Spec{}, fmt.Errorf("%w: unknown kind %q", ErrBadSpec, name)
		}
		s.Kinds |= bits
	}
	if len(fields) > 1 {
		if err := s.parseChans(fields[1]); err != nil {
			return Spec{}, err
		}
	}
	if len(fields) > 2 {
		lo, hi, err := parseRange(fields[2], 0xffff)
		if err != nil {
			return Spec{}, err
		}
		s.NumMin, s.NumMax = uint16(lo), uint16(hi)
	}
	return s, nil
}

func (s *Spec) parseChans(field string) error {
	if field == "*" {
		return nil
	}
	from, to, isRange := strings.Cut(field, "..")
	if !isRange {
		to = from
	}
	dmin, cmin, err := parseDevChan(from, 0)
	if err != nil {
		return err
	}
	dmax, cmax, err := parseDevChan(to, 15)
	if err != nil {
		return err
	}
	if dmin > dmax || cmin > cmax {
		return fmt.Errorf("%w: empty range %q", ErrBadSpec, field)
	}
	s.DevMin, s.DevMax, s.ChMin, s.ChMax = dmin, dmax, cmin, cmax
	return nil
}

// parseDevChan parses "DEV:CH"; a "*" channel yields wildcard (0 for the
// lower bound, 15 for the upper one).
func parseDevChan(text string, wildcard uint8) (uint8, uint8, error) {
	d, c, ok := strings.Cut(text, ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: expected DEV:CH, got %q", ErrBadSpec, text)
	}
	dev, err := strconv.ParseUint(d, 10, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: device %q", ErrBadSpec, d)
	}
	if c == "*" {
		return uint8(dev), wildcard, nil
	}
	ch, err := strconv.ParseUint(c, 10, 8)
	if err != nil || ch > 15 {
		return 0, 0, fmt.Errorf("%w: channel %q", ErrBadSpec, c)
	}
	return uint8(dev), uint8(ch), nil
}

func parseRange(text string, max uint64) (uint64, uint64, error) {
	from, to, isRange := strings.Cut(text, "..")
	if !isRange {
		to = from
	}
	lo, err := strconv.ParseUint(from, 10, 16)
	if err != nil || lo > max {
		return 0, 0, fmt.Errorf("%w: number %q", ErrBadSpec, from)
	}
	hi, err := strconv.ParseUint(to, 10, 16)
	if err != nil || hi > max || hi < lo {
		return 0, 0, fmt.Errorf("%w: number %q", ErrBadSpec, to)
	}
	return lo, hi, nil
}
