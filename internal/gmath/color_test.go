package gmath

import "testing"

func TestHexRGB(t *testing.T) {
	c := Hex(0xFF0000)
	if c.R != 1 || c.G != 0 || c.B != 0 || c.A != 1 {
		t.Errorf("Hex(0xFF0000) = %v", c)
	}
}

func TestHexRGBA(t *testing.T) {
	c := Hex(0xFF00FF80)
	if c.A < 0.49 || c.A > 0.51 {
		t.Errorf("Hex(0xFF00FF80).A = %v, want ~0.5", c.A)
	}
}

func TestColorLerp(t *testing.T) {
	a := RGB(0, 0, 0)
	b := RGB(1, 1, 1)
	mid := a.Lerp(b, 0.5)
	if mid.R < 0.49 || mid.R > 0.51 {
		t.Errorf("Lerp(0.5).R = %v, want ~0.5", mid.R)
	}
}

func TestColorPremultiply(t *testing.T) {
	c := Color{R: 1, G: 1, B: 1, A: 0.5}
	p := c.Premultiply()
	if p.R != 0.5 || p.G != 0.5 || p.B != 0.5 {
		t.Errorf("Premultiply() = %v, want (0.5, 0.5, 0.5, 0.5)", p)
	}
}

func TestColorWithAlpha(t *testing.T) {
	c := RGB(1, 0, 0).WithAlpha(0.2)
	if c.A != 0.2 {
		t.Errorf("WithAlpha(0.2).A = %v, want 0.2", c.A)
	}
}
