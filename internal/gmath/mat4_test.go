package gmath

import "testing"

func TestIdentity4(t *testing.T) {
	id := Identity4()
	v := NewVec4(1, 2, 3, 1)
	if got := id.MulVec4(v); got != v {
		t.Errorf("Identity4().MulVec4(v) = %v, want %v", got, v)
	}
}

func TestTranslation(t *testing.T) {
	m := Translation(5, 6, 7)
	v := NewVec4(1, 1, 1, 1)
	got := m.MulVec4(v)
	want := NewVec4(6, 7, 8, 1)
	if got != want {
		t.Errorf("Translation.MulVec4 = %v, want %v", got, want)
	}
}

func TestScale(t *testing.T) {
	m := Scale(2, 3, 4)
	v := NewVec4(1, 1, 1, 1)
	got := m.MulVec4(v)
	want := NewVec4(2, 3, 4, 1)
	if got != want {
		t.Errorf("Scale.MulVec4 = %v, want %v", got, want)
	}
}

func TestMatMulIdentity(t *testing.T) {
	m := Translation(1, 2, 3)
	if got := m.Mul(Identity4()); got != m {
		t.Errorf("m.Mul(Identity4()) = %v, want %v", got, m)
	}
}

func TestTranspose(t *testing.T) {
	m := NewMat4([16]float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	})
	tr := m.Transpose().Transpose()
	if tr != m {
		t.Errorf("double Transpose = %v, want %v", tr, m)
	}
}

func TestOrthographic(t *testing.T) {
	m := Orthographic(0, 1920, 1080, 0, -1, 1)
	topLeft := m.MulVec4(NewVec4(0, 0, 0, 1))
	if topLeft.X < -1.01 || topLeft.X > -0.99 {
		t.Errorf("Orthographic top-left X = %v, want ~-1", topLeft.X)
	}
}
