package midi

import (
	"fmt"
	"sort"
)

// CtlInfo describes a configured controller
type CtlInfo struct {
	Name    string `json:"name" yaml:"name"`
	Num     uint8  `json:"num" yaml:"num"`
	Default uint8  `json:"default" yaml:"default"`
	Frame   bool   `json:"frame" yaml:"frame"` // values form frames ending at Default
	Fine    bool   `json:"fine" yaml:"fine"`   // 14-bit, paired with Num+32
}

// CtlTable holds the controller configuration. Unconfigured controllers are
// single-shot 7-bit controllers with default 0.
type CtlTable struct {
	ctls [128]*CtlInfo
}

// NewCtlTable returns an empty table
func NewCtlTable() *CtlTable {
	return &CtlTable{}
}

// DefaultCtlTable returns the table used when nothing is configured
func DefaultCtlTable() *CtlTable {
	t := NewCtlTable()
	for _, c := range []CtlInfo{
		{Name: "bank", Num: 0, Fine: true},
		{Name: "mod", Num: 1, Frame: true},
		{Name: "vol", Num: 7, Default: 100, Frame: true},
		{Name: "pan", Num: 10, Default: 64, Frame: true},
		{Name: "expr", Num: 11, Default: 127, Frame: true},
		{Name: "sustain", Num: 64, Frame: true},
	} {
		_ = t.Set(c)
	}
	return t
}

var defaultCtls = DefaultCtlTable()

func orDefault(t *CtlTable) *CtlTable {
	if t == nil {
		return defaultCtls
	}
	return t
}

// Set adds or replaces a controller definition
func (t *CtlTable) Set(c CtlInfo) error {
	if c.Num > 127 || c.Default > 127 {
		return fmt.Errorf("ctl %q: number or default out of range", c.Name)
	}
	if c.Fine && c.Num >= 32 {
		return fmt.Errorf("ctl %q: 14-bit controllers must be below 32", c.Name)
	}
	cc := c
	t.ctls[c.Num] = &cc
	return nil
}

// Unset removes a controller definition
func (t *CtlTable) Unset(num uint8) {
	if num < 128 {
		t.ctls[num] = nil
	}
}

// Lookup returns the definition of a controller, nil if unconfigured
func (t *CtlTable) Lookup(num uint8) *CtlInfo {
	if num > 127 {
		return nil
	}
	return orDefault(t).ctls[num]
}

// ByName finds a controller by its name
func (t *CtlTable) ByName(name string) *CtlInfo {
	for _, c := range orDefault(t).ctls {
		if c != nil && c.Name == name {
			return c
		}
	}
	return nil
}

// IsFrame reports whether values of the controller form frames
func (t *CtlTable) IsFrame(num uint16) bool {
	c := t.Lookup(uint8(num))
	return c != nil && c.Frame
}

// IsFine reports whether the controller is the MSB of a 14-bit pair
func (t *CtlTable) IsFine(num uint8) bool {
	c := t.Lookup(num)
	return c != nil && c.Fine
}

// Default returns the 7-bit rest value of a controller
func (t *CtlTable) Default(num uint16) uint16 {
	if c := t.Lookup(uint8(num)); c != nil {
		return uint16(c.Default)
	}
	return 0
}

// List returns the configured controllers ordered by number
func (t *CtlTable) List() []CtlInfo {
	var out []CtlInfo
	for _, c := range orDefault(t).ctls {
		if c != nil {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Num < out[j].Num })
	return out
}
