package gmath

import (
	"fmt"
	"math"
)

// Mat4 represents a 4x4 matrix in column-major order, matching the
// layout the GPU backend expects for uniform buffers.
type Mat4 [16]float32

// Identity4 returns the identity matrix.
func Identity4() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Zero4x4 returns the zero matrix.
func Zero4x4() Mat4 {
	return Mat4{}
}

// NewMat4 creates a matrix from values in column-major order.
func NewMat4(values [16]float32) Mat4 {
	return Mat4(values)
}

// Translation creates a translation matrix.
func Translation(x, y, z float32) Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		x, y, z, 1,
	}
}

// TranslationVec creates a translation matrix from Vec3.
func TranslationVec(v Vec3) Mat4 {
	return Translation(v.X, v.Y, v.Z)
}

// Scale creates a scaling matrix.
func Scale(x, y, z float32) Mat4 {
	return Mat4{
		x, 0, 0, 0,
		0, y, 0, 0,
		0, 0, z, 0,
		0, 0, 0, 1,
	}
}

// ScaleVec creates a scaling matrix from Vec3.
func ScaleVec(v Vec3) Mat4 {
	return Scale(v.X, v.Y, v.Z)
}

// ScaleUniform creates a uniform scaling matrix.
func ScaleUniform(s float32) Mat4 {
	return Scale(s, s, s)
}

// RotationZ creates a rotation matrix around the Z axis. Surface
// transforms in the compositor are all in-plane, so this is the only
// axis rotation pulled over from the full 3D rotation set.
func RotationZ(radians float32) Mat4 {
	c := float32(math.Cos(float64(radians)))
	s := float32(math.Sin(float64(radians)))
	return Mat4{
		c, s, 0, 0,
		-s, c, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Orthographic creates an orthographic projection matrix mapping
// [left,right]x[bottom,top] to clip space. Used to project output-space
// pixel coordinates into the renderer's NDC space.
func Orthographic(left, right, bottom, top, near, far float32) Mat4 {
	rl := 1 / (right - left)
	tb := 1 / (top - bottom)
	fn := 1 / (far - near)

	return Mat4{
		2 * rl, 0, 0, 0,
		0, 2 * tb, 0, 0,
		0, 0, -2 * fn, 0,
		-(right + left) * rl, -(top + bottom) * tb, -(far + near) * fn, 1,
	}
}

// Mul multiplies two matrices, returning m * other.
func (m Mat4) Mul(other Mat4) Mat4 {
	var result Mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			for k := 0; k < 4; k++ {
				result[j*4+i] += m[k*4+i] * other[j*4+k]
			}
		}
	}
	return result
}

// MulVec4 multiplies matrix by Vec4.
func (m Mat4) MulVec4(v Vec4) Vec4 {
	return Vec4{
		X: m[0]*v.X + m[4]*v.Y + m[8]*v.Z + m[12]*v.W,
		Y: m[1]*v.X + m[5]*v.Y + m[9]*v.Z + m[13]*v.W,
		Z: m[2]*v.X + m[6]*v.Y + m[10]*v.Z + m[14]*v.W,
		W: m[3]*v.X + m[7]*v.Y + m[11]*v.Z + m[15]*v.W,
	}
}

// Transpose returns the transposed matrix.
func (m Mat4) Transpose() Mat4 {
	return Mat4{
		m[0], m[4], m[8], m[12],
		m[1], m[5], m[9], m[13],
		m[2], m[6], m[10], m[14],
		m[3], m[7], m[11], m[15],
	}
}

// String returns a string representation.
func (m Mat4) String() string {
	return fmt.Sprintf("Mat4[\n  %f, %f, %f, %f\n  %f, %f, %f, %f\n  %f, %f, %f, %f\n  %f, %f, %f, %f\n]",
		m[0], m[4], m[8], m[12],
		m[1], m[5], m[9], m[13],
		m[2], m[6], m[10], m[14],
		m[3], m[7], m[11], m[15])
}
