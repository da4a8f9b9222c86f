package render

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/wlcore/compositor/internal/gmath"
)

func TestPushConstantsEncodesTransformAndAlpha(t *testing.T) {
	m := gmath.Translation(1, 2, 3)
	buf := pushConstants(m, 0.5, gmath.NewVec2(0.25, 0.5), gmath.NewVec2(0.5, 0.5))

	if len(buf) != pushConstantSize {
		t.Fatalf("len(buf) = %d, want %d", len(buf), pushConstantSize)
	}
	for i, f := range m {
		got := math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		if got != f {
			t.Errorf("transform[%d] = %v, want %v", i, got, f)
		}
	}
	alpha := math.Float32frombits(binary.LittleEndian.Uint32(buf[64:]))
	if alpha != 0.5 {
		t.Errorf("alpha = %v, want 0.5", alpha)
	}
	uvOffX := math.Float32frombits(binary.LittleEndian.Uint32(buf[80:]))
	uvOffY := math.Float32frombits(binary.LittleEndian.Uint32(buf[84:]))
	uvScaleX := math.Float32frombits(binary.LittleEndian.Uint32(buf[88:]))
	uvScaleY := math.Float32frombits(binary.LittleEndian.Uint32(buf[92:]))
	if uvOffX != 0.25 || uvOffY != 0.5 || uvScaleX != 0.5 || uvScaleY != 0.5 {
		t.Errorf("uv offset/scale = (%v,%v)/(%v,%v), want (0.25,0.5)/(0.5,0.5)", uvOffX, uvOffY, uvScaleX, uvScaleY)
	}
}

func TestQuadVertexBytesCoversUnitSquareCorners(t *testing.T) {
	buf := quadVertexBytes()
	if len(buf) != len(unitQuad)*16 {
		t.Fatalf("len(buf) = %d, want %d", len(buf), len(unitQuad)*16)
	}

	var minX, minY, maxX, maxY float32 = 1, 1, 0, 0
	for i := range unitQuad {
		off := i * 16
		x := math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
		y := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+4:]))
		if x < minX {
			minX = x
		}
		if y < minY {
			minY = y
		}
		if x > maxX {
			maxX = x
		}
		if y > maxY {
			maxY = y
		}
	}
	if minX != 0 || minY != 0 || maxX != 1 || maxY != 1 {
		t.Errorf("unit quad bounds = [%v,%v]-[%v,%v], want [0,0]-[1,1]", minX, minY, maxX, maxY)
	}
}
