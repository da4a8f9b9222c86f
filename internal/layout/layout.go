// Package layout tracks the spatial arrangement of windows and layer
// surfaces across outputs: positions, stacking order, and the usable
// area layer surfaces' exclusive zones leave for windows.
package layout

import (
	"sort"

	"github.com/wlcore/compositor/internal/gmath"
	"github.com/wlcore/compositor/internal/surface"
)

// Anchor is a layer-shell anchor edge bitmask.
type Anchor uint8

const (
	AnchorTop Anchor = 1 << iota
	AnchorBottom
	AnchorLeft
	AnchorRight
)

// Layer is one of the four layer-shell stacking layers, back to front.
type Layer uint8

const (
	LayerBackground Layer = iota
	LayerBottom
	LayerTop
	LayerOverlay
)

// Window is a mapped toplevel or popup surface with a position and
// stacking index.
type Window struct {
	SurfaceID surface.ID
	Position  gmath.Vec2
	Size      gmath.Vec2
	// ViewportSrc is the wp_viewporter source crop, in buffer pixels, to
	// sample from when drawing this window's quad. Nil samples the whole
	// buffer.
	ViewportSrc *gmath.Rect
	ZIndex      int
	Visible     bool
	mapped      bool
}

// LayerSurface is a mapped layer-shell surface: anchored to one or more
// output edges, optionally reserving an exclusive zone that windows may
// not occupy.
type LayerSurface struct {
	SurfaceID     surface.ID
	Layer         Layer
	Anchor        Anchor
	ExclusiveZone int32
	Size          gmath.Vec2
	Position      gmath.Vec2
	// ViewportSrc mirrors Window.ViewportSrc for layer surfaces that bind
	// wp_viewporter; nil samples the whole buffer.
	ViewportSrc *gmath.Rect
}

// Space is the layout for a single output: its usable area after
// subtracting layer-surface exclusive zones, and the windows and layer
// surfaces positioned within it.
type Space struct {
	OutputBounds gmath.Rect
	UsableArea   gmath.Rect

	windows []*Window
	layers  []*LayerSurface
	nextZ   int
}

// NewSpace creates a Space covering an output's full bounds.
func NewSpace(bounds gmath.Rect) *Space {
	return &Space{OutputBounds: bounds, UsableArea: bounds}
}

// Map adds a window to the space. If activate is true the window is
// raised to the top of the stack; otherwise it is inserted at the
// bottom.
func (s *Space) Map(id surface.ID, position, size gmath.Vec2, activate bool) *Window {
	w := &Window{SurfaceID: id, Position: position, Size: size, Visible: true, mapped: true}
	if activate {
		s.nextZ++
		w.ZIndex = s.nextZ
	} else {
		w.ZIndex = -s.nextZ - 1
		s.nextZ++
	}
	s.windows = append(s.windows, w)
	s.sortWindows()
	return w
}

// Resize updates an already-mapped window's quad size and viewport crop,
// e.g. after a buffer resize or a wp_viewport set_destination/set_source
// request that takes effect on a commit after the window's initial map.
func (s *Space) Resize(id surface.ID, size gmath.Vec2, viewportSrc *gmath.Rect) {
	for _, w := range s.windows {
		if w.SurfaceID == id {
			w.Size = size
			w.ViewportSrc = viewportSrc
			s.Refresh()
			return
		}
	}
}

// Unmap removes a window from the space.
func (s *Space) Unmap(id surface.ID) {
	for i, w := range s.windows {
		if w.SurfaceID == id {
			s.windows = append(s.windows[:i], s.windows[i+1:]...)
			return
		}
	}
}

// Raise moves a window to the top of the stack.
func (s *Space) Raise(id surface.ID) {
	s.nextZ++
	for _, w := range s.windows {
		if w.SurfaceID == id {
			w.ZIndex = s.nextZ
		}
	}
	s.sortWindows()
}

// Lower moves a window to the bottom of the stack.
func (s *Space) Lower(id surface.ID) {
	for _, w := range s.windows {
		if w.SurfaceID == id {
			w.ZIndex = -s.nextZ - 1
			s.nextZ++
		}
	}
	s.sortWindows()
}

func (s *Space) sortWindows() {
	sort.SliceStable(s.windows, func(i, j int) bool {
		return s.windows[i].ZIndex < s.windows[j].ZIndex
	})
}

// Windows returns the mapped windows back-to-front, the order the
// renderer must draw them in.
func (s *Space) Windows() []*Window { return s.windows }

// MapLayer adds a layer surface and recomputes the usable area.
func (s *Space) MapLayer(ls *LayerSurface) {
	s.layers = append(s.layers, ls)
	s.Refresh()
}

// UnmapLayer removes a layer surface and recomputes the usable area.
func (s *Space) UnmapLayer(id surface.ID) {
	for i, ls := range s.layers {
		if ls.SurfaceID == id {
			s.layers = append(s.layers[:i], s.layers[i+1:]...)
			break
		}
	}
	s.Refresh()
}

// Refresh recomputes the usable area from every layer surface's
// exclusive zone and updates window visibility against the output
// bounds. It must be called after any layer surface or output change.
func (s *Space) Refresh() {
	area := s.OutputBounds
	for _, ls := range s.layers {
		if ls.ExclusiveZone <= 0 {
			continue
		}
		switch {
		case ls.Anchor&AnchorTop != 0 && ls.Anchor&AnchorBottom == 0:
			area.Y += ls.ExclusiveZone
			area.Height -= ls.ExclusiveZone
		case ls.Anchor&AnchorBottom != 0 && ls.Anchor&AnchorTop == 0:
			area.Height -= ls.ExclusiveZone
		case ls.Anchor&AnchorLeft != 0 && ls.Anchor&AnchorRight == 0:
			area.X += ls.ExclusiveZone
			area.Width -= ls.ExclusiveZone
		case ls.Anchor&AnchorRight != 0 && ls.Anchor&AnchorLeft == 0:
			area.Width -= ls.ExclusiveZone
		}
	}
	if area.Width < 0 {
		area.Width = 0
	}
	if area.Height < 0 {
		area.Height = 0
	}
	s.UsableArea = area

	for _, w := range s.windows {
		wr := gmath.NewRect(int32(w.Position.X), int32(w.Position.Y), int32(w.Size.X), int32(w.Size.Y))
		w.Visible = w.mapped && s.OutputBounds.Intersects(wr)
	}
}

// Layers returns the mapped layer surfaces, back (background) to front
// (overlay).
func (s *Space) Layers() []*LayerSurface {
	ordered := make([]*LayerSurface, len(s.layers))
	copy(ordered, s.layers)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Layer < ordered[j].Layer })
	return ordered
}

// OutputID identifies a logical output, stable for its lifetime.
type OutputID uint32

// Manager aggregates one Space per output, so windows and layer surfaces
// can be tracked across output hot-plug (connector add/remove, udev
// events relayed by the session helper) without recreating unrelated
// outputs' state.
type Manager struct {
	spaces map[OutputID]*Space
	order  []OutputID
}

// NewManager creates an empty output manager.
func NewManager() *Manager {
	return &Manager{spaces: make(map[OutputID]*Space)}
}

// AddOutput creates a Space for a newly-enumerated or hot-plugged output.
// A second call for the same id replaces its bounds but keeps mapped
// windows, matching a mode-change rather than a disconnect.
func (m *Manager) AddOutput(id OutputID, bounds gmath.Rect) *Space {
	if sp, ok := m.spaces[id]; ok {
		sp.OutputBounds = bounds
		sp.Refresh()
		return sp
	}
	sp := NewSpace(bounds)
	m.spaces[id] = sp
	m.order = append(m.order, id)
	return sp
}

// RemoveOutput tears down an output's space on disconnect. Windows it
// held are not implicitly remapped elsewhere; the caller decides whether
// to relocate them to a remaining output.
func (m *Manager) RemoveOutput(id OutputID) {
	delete(m.spaces, id)
	for i, o := range m.order {
		if o == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Space returns the space for id, or nil if no such output is tracked.
func (m *Manager) Space(id OutputID) *Space {
	return m.spaces[id]
}

// Outputs returns tracked output ids in the order they were added.
func (m *Manager) Outputs() []OutputID {
	out := make([]OutputID, len(m.order))
	copy(out, m.order)
	return out
}
