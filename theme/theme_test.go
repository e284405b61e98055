package theme

import (
	"strings"
	"testing"
)

const gpl = `GIMP Palette
Name: duo
Columns: 2
# comment
0 0 0	black
255 255 255	white
`

func TestReadGPL(t *testing.T) {
	p, err := ReadGPL(strings.NewReader(gpl))
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "duo" || len(p.Colors) != 2 {
		t.Fatalf("palette %+v", p)
	}
	if _, err := ReadGPL(strings.NewReader("GIMP Palette\n")); err == nil {
		t.Fatal("empty palette accepted")
	}
}

func TestLookup(t *testing.T) {
	p := &Palette{Colors: []RGB{{0, 0, 0}, {255, 255, 255}}}
	if c := p.Lookup(-1); c != (RGB{0, 0, 0}) {
		t.Fatalf("low %v", c)
	}
	if c := p.Lookup(2); c != (RGB{255, 255, 255}) {
		t.Fatalf("high %v", c)
	}
	mid := p.Lookup(0.5)
	// a Lab blend of black and white is a neutral grey
	if diff(mid[0], mid[1]) > 1 || diff(mid[1], mid[2]) > 1 || mid[0] < 100 || mid[0] > 150 {
		t.Fatalf("mid %v", mid)
	}
	if p.Index(5) != p.Colors[1] || p.Index(-1) != p.Colors[0] {
		t.Fatal("index clamping")
	}
}

func TestThemeColors(t *testing.T) {
	th := New(nil)
	if th.Palette != Plasma {
		t.Fatal("default palette")
	}
	if c := string(th.Color(0)); c != "#0d0887" {
		t.Fatalf("color %s", c)
	}
	if th.Level(0, 0) != th.Muted() {
		t.Fatal("level of empty range")
	}
}

func diff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
