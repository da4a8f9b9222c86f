package layout

import (
	"testing"

	"github.com/wlcore/compositor/internal/gmath"
)

func TestMapActivateRaisesToTop(t *testing.T) {
	s := NewSpace(gmath.NewRect(0, 0, 1920, 1080))
	s.Map(1, gmath.Vec2{}, gmath.Vec2{X: 100, Y: 100}, false)
	s.Map(2, gmath.Vec2{}, gmath.Vec2{X: 100, Y: 100}, true)

	windows := s.Windows()
	if len(windows) != 2 {
		t.Fatalf("len(Windows()) = %d, want 2", len(windows))
	}
	if windows[len(windows)-1].SurfaceID != 2 {
		t.Errorf("top window = %d, want 2 (activated)", windows[len(windows)-1].SurfaceID)
	}
}

func TestRaiseLower(t *testing.T) {
	s := NewSpace(gmath.NewRect(0, 0, 1920, 1080))
	s.Map(1, gmath.Vec2{}, gmath.Vec2{X: 10, Y: 10}, true)
	s.Map(2, gmath.Vec2{}, gmath.Vec2{X: 10, Y: 10}, true)

	s.Raise(1)
	windows := s.Windows()
	if windows[len(windows)-1].SurfaceID != 1 {
		t.Errorf("after Raise(1), top = %d, want 1", windows[len(windows)-1].SurfaceID)
	}

	s.Lower(1)
	windows = s.Windows()
	if windows[0].SurfaceID != 1 {
		t.Errorf("after Lower(1), bottom = %d, want 1", windows[0].SurfaceID)
	}
}

func TestUnmap(t *testing.T) {
	s := NewSpace(gmath.NewRect(0, 0, 1920, 1080))
	s.Map(1, gmath.Vec2{}, gmath.Vec2{X: 10, Y: 10}, true)
	s.Unmap(1)
	if len(s.Windows()) != 0 {
		t.Errorf("len(Windows()) = %d after Unmap, want 0", len(s.Windows()))
	}
}

func TestLayerExclusiveZoneReducesUsableArea(t *testing.T) {
	s := NewSpace(gmath.NewRect(0, 0, 1920, 1080))
	s.MapLayer(&LayerSurface{SurfaceID: 10, Layer: LayerTop, Anchor: AnchorTop, ExclusiveZone: 40})

	want := gmath.NewRect(0, 40, 1920, 1040)
	if s.UsableArea != want {
		t.Errorf("UsableArea = %+v, want %+v", s.UsableArea, want)
	}
}

func TestLayerExclusiveZoneBothEdgesIgnored(t *testing.T) {
	// A layer anchored to both top and bottom can't meaningfully reserve
	// an exclusive zone on either edge; it must not shrink usable area.
	s := NewSpace(gmath.NewRect(0, 0, 1920, 1080))
	s.MapLayer(&LayerSurface{SurfaceID: 10, Layer: LayerTop, Anchor: AnchorTop | AnchorBottom, ExclusiveZone: 40})

	if s.UsableArea != s.OutputBounds {
		t.Errorf("UsableArea = %+v, want unchanged %+v", s.UsableArea, s.OutputBounds)
	}
}

func TestUnmapLayerRestoresUsableArea(t *testing.T) {
	s := NewSpace(gmath.NewRect(0, 0, 1920, 1080))
	s.MapLayer(&LayerSurface{SurfaceID: 10, Layer: LayerTop, Anchor: AnchorLeft, ExclusiveZone: 50})
	s.UnmapLayer(10)

	if s.UsableArea != s.OutputBounds {
		t.Errorf("UsableArea = %+v after unmap, want %+v", s.UsableArea, s.OutputBounds)
	}
}

func TestLayersOrderedBackToFront(t *testing.T) {
	s := NewSpace(gmath.NewRect(0, 0, 1920, 1080))
	s.MapLayer(&LayerSurface{SurfaceID: 1, Layer: LayerOverlay})
	s.MapLayer(&LayerSurface{SurfaceID: 2, Layer: LayerBackground})
	s.MapLayer(&LayerSurface{SurfaceID: 3, Layer: LayerTop})

	ordered := s.Layers()
	if ordered[0].SurfaceID != 2 || ordered[len(ordered)-1].SurfaceID != 1 {
		t.Errorf("Layers() order = %v, want background-first overlay-last", ordered)
	}
}
