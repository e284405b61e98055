package theme

import (
	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

// Symbols used by the monitor
type Symbols struct {
	Open    rune // ● frame sounding
	Closed  rune // ○ frame ended, kept until the next outdate
	Muted   rune // · frame tracked but not forwarded
	Pending rune // ◌ update held back by throttling
	Play    rune // ▶
	Record  rune // ●
	Stop    rune // ■
}

func New(palette *Palette) *Theme {
	if palette == nil {
		palette = Plasma
	}
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			Open:    '●',
			Closed:  '○',
			Muted:   '·',
			Pending: '◌',
			Play:    '▶',
			Record:  '●',
			Stop:    '■',
		},
	}
}

// Color roles mapped to palette positions (0-1)
const (
	RoleBG      = 0.0
	RoleMuted   = 0.2
	RoleFG      = 0.45
	RoleAccent  = 0.55
	RoleActive  = 0.65
	RoleWarning = 0.8
	RoleSuccess = 1.0
)

func (t *Theme) FG() lipgloss.Color      { return t.Color(RoleFG) }
func (t *Theme) Muted() lipgloss.Color   { return t.Color(RoleMuted) }
func (t *Theme) Accent() lipgloss.Color  { return t.Color(RoleAccent) }
func (t *Theme) Active() lipgloss.Color  { return t.Color(RoleActive) }
func (t *Theme) Warning() lipgloss.Color { return t.Color(RoleWarning) }
func (t *Theme) Success() lipgloss.Color { return t.Color(RoleSuccess) }

// Color returns lipgloss color for any normalized value 0-1
func (t *Theme) Color(norm float64) lipgloss.Color {
	return lipgloss.Color(t.Palette.Lookup(norm).Hex())
}

// Level colors a 0..127 controller or velocity value
func (t *Theme) Level(v uint16, max uint16) lipgloss.Color {
	if max == 0 {
		return t.Muted()
	}
	return t.Color(RoleMuted + (RoleSuccess-RoleMuted)*float64(v)/float64(max))
}
