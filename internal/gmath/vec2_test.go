package gmath

import "testing"

func TestVec2Arithmetic(t *testing.T) {
	a := NewVec2(1, 2)
	b := NewVec2(3, 4)

	if got := a.Add(b); got != (Vec2{4, 6}) {
		t.Errorf("Add = %v, want (4, 6)", got)
	}
	if got := b.Sub(a); got != (Vec2{2, 2}) {
		t.Errorf("Sub = %v, want (2, 2)", got)
	}
	if got := a.Mul(2); got != (Vec2{2, 4}) {
		t.Errorf("Mul = %v, want (2, 4)", got)
	}
	if got := a.Dot(b); got != 11 {
		t.Errorf("Dot = %v, want 11", got)
	}
}

func TestVec2Normalize(t *testing.T) {
	v := NewVec2(3, 4)
	n := v.Normalize()
	if got := n.Length(); got < 0.999 || got > 1.001 {
		t.Errorf("Normalize().Length() = %v, want ~1", got)
	}
	if got := Zero2().Normalize(); got != Zero2() {
		t.Errorf("Normalize() of zero vector = %v, want zero", got)
	}
}

func TestVec2Lerp(t *testing.T) {
	a := NewVec2(0, 0)
	b := NewVec2(10, 20)
	if got := a.Lerp(b, 0.5); got != (Vec2{5, 10}) {
		t.Errorf("Lerp = %v, want (5, 10)", got)
	}
}

func TestVec2ClampMinMax(t *testing.T) {
	v := NewVec2(-5, 15)
	clamped := v.Clamp(NewVec2(0, 0), NewVec2(10, 10))
	if clamped != (Vec2{0, 10}) {
		t.Errorf("Clamp = %v, want (0, 10)", clamped)
	}
}

func TestRectIntersects(t *testing.T) {
	tests := []struct {
		name string
		a, b Rect
		want bool
	}{
		{"overlapping", NewRect(0, 0, 10, 10), NewRect(5, 5, 10, 10), true},
		{"disjoint", NewRect(0, 0, 10, 10), NewRect(20, 20, 5, 5), false},
		{"touching edge", NewRect(0, 0, 10, 10), NewRect(10, 0, 10, 10), false},
		{"empty rect", NewRect(0, 0, 0, 10), NewRect(0, 0, 10, 10), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Intersects(tt.b); got != tt.want {
				t.Errorf("Intersects = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRectUnion(t *testing.T) {
	a := NewRect(0, 0, 10, 10)
	b := NewRect(5, 5, 10, 10)
	u := a.Union(b)
	want := NewRect(0, 0, 15, 15)
	if u != want {
		t.Errorf("Union = %v, want %v", u, want)
	}

	empty := Rect{}
	if got := empty.Union(a); got != a {
		t.Errorf("Union with empty = %v, want %v", got, a)
	}
}

func TestRectContains(t *testing.T) {
	r := NewRect(0, 0, 10, 10)
	if !r.Contains(5, 5) {
		t.Error("Contains(5, 5) = false, want true")
	}
	if r.Contains(10, 10) {
		t.Error("Contains(10, 10) = true, want false (exclusive bound)")
	}
}
