package protocol

import (
	"github.com/wlcore/compositor/internal/gmath"
	"github.com/wlcore/compositor/internal/surface"
	"github.com/wlcore/compositor/internal/wire"
)

// xdg_wm_base opcodes.
const (
	wmBaseDestroy           wire.Opcode = 0
	wmBaseCreatePositioner  wire.Opcode = 1
	wmBaseGetXdgSurface     wire.Opcode = 2
	wmBasePong              wire.Opcode = 3
)

const wmBaseEventPing wire.Opcode = 0

// xdg_positioner opcodes.
const (
	positionerDestroy                wire.Opcode = 0
	positionerSetSize                wire.Opcode = 1
	positionerSetAnchorRect          wire.Opcode = 2
	positionerSetAnchor              wire.Opcode = 3
	positionerSetGravity             wire.Opcode = 4
	positionerSetConstraintAdjustment wire.Opcode = 5
	positionerSetOffset              wire.Opcode = 6
)

// xdg_surface opcodes.
const (
	xdgSurfaceDestroy            wire.Opcode = 0
	xdgSurfaceGetToplevel        wire.Opcode = 1
	xdgSurfaceGetPopup           wire.Opcode = 2
	xdgSurfaceSetWindowGeometry  wire.Opcode = 3
	xdgSurfaceAckConfigure       wire.Opcode = 4
)

const xdgSurfaceEventConfigure wire.Opcode = 0

// xdg_toplevel opcodes.
const (
	toplevelDestroy        wire.Opcode = 0
	toplevelSetParent      wire.Opcode = 1
	toplevelSetTitle       wire.Opcode = 2
	toplevelSetAppID       wire.Opcode = 3
	toplevelShowWindowMenu wire.Opcode = 4
	toplevelMove           wire.Opcode = 5
	toplevelResize         wire.Opcode = 6
	toplevelSetMaxSize     wire.Opcode = 7
	toplevelSetMinSize     wire.Opcode = 8
	toplevelSetMaximized   wire.Opcode = 9
	toplevelUnsetMaximized wire.Opcode = 10
	toplevelSetFullscreen  wire.Opcode = 11
	toplevelUnsetFullscreen wire.Opcode = 12
	toplevelSetMinimized   wire.Opcode = 13
)

const (
	toplevelEventConfigure wire.Opcode = 0
	toplevelEventClose     wire.Opcode = 1
)

// xdg_popup opcodes.
const (
	popupDestroy     wire.Opcode = 0
	popupGrab        wire.Opcode = 1
	popupReposition  wire.Opcode = 2
)

const (
	popupEventConfigure  wire.Opcode = 0
	popupEventPopupDone  wire.Opcode = 1
)

// ToplevelState bits mirror the xdg_toplevel.state enum sent in
// configure events.
const (
	ToplevelStateMaximized  int32 = 1
	ToplevelStateFullscreen int32 = 2
	ToplevelStateActivated  int32 = 4
)

// XdgWmBaseGlobal advertises xdg_wm_base, the xdg-shell entry point.
type XdgWmBaseGlobal struct{ name string }

// NewXdgWmBaseGlobal creates the xdg_wm_base global.
func NewXdgWmBaseGlobal(name string) *XdgWmBaseGlobal { return &XdgWmBaseGlobal{name: name} }

func (g *XdgWmBaseGlobal) Interface() string { return "xdg_wm_base" }
func (g *XdgWmBaseGlobal) Version() uint32   { return 6 }
func (g *XdgWmBaseGlobal) Name() string      { return g.name }

func (g *XdgWmBaseGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &wmBaseResource{objID: id})
	return nil
}

type wmBaseResource struct{ objID wire.ObjectID }

func (r *wmBaseResource) Interface() string { return "xdg_wm_base" }

func (r *wmBaseResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case wmBaseDestroy:
		return nil
	case wmBaseCreatePositioner:
		id, err := args.NewID()
		if err != nil {
			return err
		}
		conn.Register(id, &positionerResource{anchorGravity: gravityNone, size: gmath.Vec2{X: 1, Y: 1}})
		return nil
	case wmBaseGetXdgSurface:
		id, err := args.NewID()
		if err != nil {
			return err
		}
		surfID, err := args.Object()
		if err != nil {
			return err
		}
		sres, ok := conn.Lookup(surfID).(*SurfaceResource)
		if !ok {
			return NewError(id, wire.DisplayErrorInvalidObject, "xdg_wm_base.get_xdg_surface: %d is not a wl_surface", surfID)
		}
		xs := &xdgSurfaceResource{objID: id, surface: sres}
		sres.OnCommit = xs.onSurfaceCommit
		conn.Register(id, xs)
		return nil
	case wmBasePong:
		_, _ = args.Uint32()
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "xdg_wm_base: unknown opcode %d", opcode)
	}
}

// Ping sends xdg_wm_base.ping with the given serial; the client must
// reply with pong before the compositor's liveness timeout.
func (r *wmBaseResource) Ping(conn Conn, serial uint32) {
	e := wire.NewEncoder(4)
	e.PutUint32(serial)
	conn.SendEvent(r.objID, wmBaseEventPing, e.Bytes(), nil)
}

type gravity int

const (
	gravityNone gravity = iota
	gravityTop
	gravityBottom
	gravityLeft
	gravityRight
	gravityTopLeft
	gravityBottomLeft
	gravityTopRight
	gravityBottomRight
)

type anchorEdge int

const (
	anchorNone anchorEdge = iota
	anchorTop
	anchorBottom
	anchorLeft
	anchorRight
	anchorTopLeft
	anchorBottomLeft
	anchorTopRight
	anchorBottomRight
)

// positionerResource accumulates an xdg_positioner's constraints and
// computes a popup's position relative to its parent's window geometry,
// per the xdg-shell positioning algorithm (simplified: anchor + gravity
// + offset, constraint adjustment is advisory and not enforced here
// since the compositor has no multi-monitor constraint solver yet).
type positionerResource struct {
	size          gmath.Vec2
	anchorRect    gmath.Rect
	anchor        anchorEdge
	anchorGravity gravity
	offsetX       int32
	offsetY       int32
}

func (r *positionerResource) Interface() string { return "xdg_positioner" }

func (r *positionerResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case positionerDestroy:
		return nil
	case positionerSetSize:
		w, _ := args.Int32()
		h, _ := args.Int32()
		r.size = gmath.NewVec2(float32(w), float32(h))
		return nil
	case positionerSetAnchorRect:
		x, _ := args.Int32()
		y, _ := args.Int32()
		w, _ := args.Int32()
		h, _ := args.Int32()
		r.anchorRect = gmath.NewRect(x, y, w, h)
		return nil
	case positionerSetAnchor:
		v, _ := args.Uint32()
		r.anchor = anchorEdge(v)
		return nil
	case positionerSetGravity:
		v, _ := args.Uint32()
		r.anchorGravity = gravity(v)
		return nil
	case positionerSetConstraintAdjustment:
		_, _ = args.Uint32()
		return nil
	case positionerSetOffset:
		x, _ := args.Int32()
		y, _ := args.Int32()
		r.offsetX, r.offsetY = x, y
		return nil
	default:
		return nil
	}
}

// Position computes the popup's top-left position in parent-local
// coordinates.
func (r *positionerResource) Position() gmath.Vec2 {
	anchorPoint := gmath.NewVec2(float32(r.anchorRect.X), float32(r.anchorRect.Y))
	switch r.anchor {
	case anchorRight, anchorTopRight, anchorBottomRight:
		anchorPoint.X = float32(r.anchorRect.Right())
	case anchorNone:
		anchorPoint.X = float32(r.anchorRect.X) + float32(r.anchorRect.Width)/2
	}
	switch r.anchor {
	case anchorBottom, anchorBottomLeft, anchorBottomRight:
		anchorPoint.Y = float32(r.anchorRect.Bottom())
	case anchorNone:
		anchorPoint.Y = float32(r.anchorRect.Y) + float32(r.anchorRect.Height)/2
	}

	pos := anchorPoint
	switch r.anchorGravity {
	case gravityLeft, gravityTopLeft, gravityBottomLeft:
		pos.X -= r.size.X
	case gravityNone:
		pos.X -= r.size.X / 2
	}
	switch r.anchorGravity {
	case gravityTop, gravityTopLeft, gravityTopRight:
		pos.Y -= r.size.Y
	case gravityNone:
		pos.Y -= r.size.Y / 2
	}
	pos.X += float32(r.offsetX)
	pos.Y += float32(r.offsetY)
	return pos
}

// xdgSurfaceResource is the role-neutral xdg_surface wrapper around a
// wl_surface, implementing the configure/ack serial cycle from §4.6:
// the compositor may send any number of pending configures; the client
// acks the latest it has applied; commits before the first ack are
// buffered without mapping.
type xdgSurfaceResource struct {
	objID    wire.ObjectID
	surface  *SurfaceResource
	toplevel *toplevelResource
	popup    *popupResource

	windowGeometry gmath.Rect

	sentSerials []uint32
	ackedSerial uint32
	everAcked   bool
}

func (r *xdgSurfaceResource) Interface() string { return "xdg_surface" }

func (r *xdgSurfaceResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case xdgSurfaceDestroy:
		return nil
	case xdgSurfaceGetToplevel:
		id, err := args.NewID()
		if err != nil {
			return err
		}
		if err := r.surface.Surface.AssignRole(surface.RoleToplevel); err != nil {
			return NewError(r.objID, wire.DisplayErrorInvalidObject, "%v", err)
		}
		t := &toplevelResource{objID: id, xdgSurface: r}
		r.toplevel = t
		conn.Register(id, t)
		t.Configure(conn, 0, 0, nil)
		return nil
	case xdgSurfaceGetPopup:
		id, err := args.NewID()
		if err != nil {
			return err
		}
		parentID, err := args.Object()
		if err != nil {
			return err
		}
		posID, err := args.Object()
		if err != nil {
			return err
		}
		if err := r.surface.Surface.AssignRole(surface.RolePopup); err != nil {
			return NewError(r.objID, wire.DisplayErrorInvalidObject, "%v", err)
		}
		pos, _ := conn.Lookup(posID).(*positionerResource)
		var parent *xdgSurfaceResource
		if parentID != 0 {
			parent, _ = conn.Lookup(parentID).(*xdgSurfaceResource)
		}
		p := &popupResource{objID: id, xdgSurface: r, parent: parent, positioner: pos}
		r.popup = p
		conn.Register(id, p)
		if pos != nil {
			p.Configure(conn)
		}
		return nil
	case xdgSurfaceSetWindowGeometry:
		x, _ := args.Int32()
		y, _ := args.Int32()
		w, _ := args.Int32()
		h, _ := args.Int32()
		r.windowGeometry = gmath.NewRect(x, y, w, h)
		return nil
	case xdgSurfaceAckConfigure:
		serial, err := args.Uint32()
		if err != nil {
			return err
		}
		found := false
		for i, s := range r.sentSerials {
			if s == serial {
				found = true
				r.sentSerials = r.sentSerials[i+1:]
				break
			}
		}
		if !found {
			return NewError(r.objID, wire.DisplayErrorInvalidObject, "xdg_surface.ack_configure: unknown serial %d", serial)
		}
		r.ackedSerial = serial
		r.everAcked = true
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "xdg_surface: unknown opcode %d", opcode)
	}
}

// sendConfigure emits xdg_surface.configure with a fresh serial and
// records it as outstanding until acked.
func (r *xdgSurfaceResource) sendConfigure(conn Conn) uint32 {
	serial := conn.NextSerial()
	r.sentSerials = append(r.sentSerials, serial)
	e := wire.NewEncoder(4)
	e.PutUint32(serial)
	conn.SendEvent(r.objID, xdgSurfaceEventConfigure, e.Bytes(), nil)
	return serial
}

// onSurfaceCommit reacts to the underlying wl_surface's commit: the
// first commit after the first ack_configure maps the role object
// (toplevel into the layout, popup's grab chain becomes droppable).
// Commits before any ack are buffered (the surface state machine already
// holds them in Current; there is nothing further to apply here).
func (r *xdgSurfaceResource) onSurfaceCommit(conn Conn, result surface.CommitResult) {
	if !r.everAcked {
		return
	}
	switch {
	case r.toplevel != nil:
		r.toplevel.onMappedCommit(conn, result)
	case r.popup != nil:
		r.popup.onMappedCommit(conn, result)
	}
}

// toplevelResource implements xdg_toplevel: the configure/ack cycle
// plus the request set a window manager would normally drive (move,
// resize, maximize). Since this compositor has no window-manager
// policy, move/resize/maximize requests are acknowledged as no-ops that
// simply echo the client's own geometry back.
type toplevelResource struct {
	objID      wire.ObjectID
	xdgSurface *xdgSurfaceResource

	title, appID string
	mapped       bool
	states       int32
}

func (r *toplevelResource) Interface() string { return "xdg_toplevel" }

func (r *toplevelResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case toplevelDestroy:
		if r.mapped {
			unmapToplevel(conn, r)
		}
		return nil
	case toplevelSetParent:
		_, _ = args.Object()
		return nil
	case toplevelSetTitle:
		s, err := args.String()
		if err != nil {
			return err
		}
		r.title = s
		return nil
	case toplevelSetAppID:
		s, err := args.String()
		if err != nil {
			return err
		}
		r.appID = s
		return nil
	case toplevelShowWindowMenu:
		_, _ = args.Object()
		_, _ = args.Uint32()
		_, _ = args.Int32()
		_, _ = args.Int32()
		return nil
	case toplevelMove, toplevelResize:
		_, _ = args.Object()
		_, _ = args.Uint32()
		if opcode == toplevelResize {
			_, _ = args.Uint32()
		}
		return nil
	case toplevelSetMaxSize, toplevelSetMinSize:
		_, _ = args.Int32()
		_, _ = args.Int32()
		return nil
	case toplevelSetMaximized:
		r.states |= ToplevelStateMaximized
		r.Configure(conn, 0, 0, nil)
		return nil
	case toplevelUnsetMaximized:
		r.states &^= ToplevelStateMaximized
		r.Configure(conn, 0, 0, nil)
		return nil
	case toplevelSetFullscreen:
		_, _ = args.Object()
		r.states |= ToplevelStateFullscreen
		r.Configure(conn, 0, 0, nil)
		return nil
	case toplevelUnsetFullscreen:
		r.states &^= ToplevelStateFullscreen
		r.Configure(conn, 0, 0, nil)
		return nil
	case toplevelSetMinimized:
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "xdg_toplevel: unknown opcode %d", opcode)
	}
}

// Configure sends xdg_toplevel.configure followed by xdg_surface.configure,
// per the wire order clients expect. width/height of 0 lets the client
// choose its own size.
func (r *toplevelResource) Configure(conn Conn, width, height int32, states []int32) {
	if states == nil {
		states = encodeStates(r.states)
	}
	e := wire.NewEncoder(16 + len(states)*4)
	e.PutInt32(width)
	e.PutInt32(height)
	packed := make([]byte, len(states)*4)
	for i, s := range states {
		packed[i*4] = byte(s)
		packed[i*4+1] = byte(s >> 8)
		packed[i*4+2] = byte(s >> 16)
		packed[i*4+3] = byte(s >> 24)
	}
	e.PutArray(packed)
	conn.SendEvent(r.objID, toplevelEventConfigure, e.Bytes(), nil)
	r.xdgSurface.sendConfigure(conn)
}

// Close sends xdg_toplevel.close, requesting the client destroy it.
func (r *toplevelResource) Close(conn Conn) {
	conn.SendEvent(r.objID, toplevelEventClose, nil, nil)
}

func encodeStates(bits int32) []int32 {
	var out []int32
	if bits&ToplevelStateMaximized != 0 {
		out = append(out, 1)
	}
	if bits&ToplevelStateFullscreen != 0 {
		out = append(out, 2)
	}
	if bits&ToplevelStateActivated != 0 {
		out = append(out, 4)
	}
	return out
}

// effectiveWindowSize is the logical quad size a mapped window draws at:
// the committed wp_viewporter destination size if one is set, otherwise
// the xdg_surface window geometry, falling back to the raw buffer size
// when neither was set by the client (§6, S6).
func effectiveWindowSize(geom gmath.Rect, bufW, bufH int32, viewportDst *gmath.Vec2) gmath.Vec2 {
	if viewportDst != nil {
		return *viewportDst
	}
	w, h := geom.Width, geom.Height
	if w == 0 {
		w = bufW
	}
	if h == 0 {
		h = bufH
	}
	return gmath.NewVec2(float32(w), float32(h))
}

func (r *toplevelResource) onMappedCommit(conn Conn, result surface.CommitResult) {
	if result.Buffer == nil {
		return
	}
	state := r.xdgSurface.surface.Surface.Current
	size := effectiveWindowSize(r.xdgSurface.windowGeometry, result.Buffer.Width, result.Buffer.Height, state.ViewportDst)
	id := r.xdgSurface.surface.Surface.ID
	if !r.mapped {
		r.mapped = true
		conn.Compositor().mapToplevel(id, size, state.ViewportSrc)
		return
	}
	conn.Compositor().resizeToplevel(id, size, state.ViewportSrc)
}

func unmapToplevel(conn Conn, r *toplevelResource) {
	conn.Compositor().unmapWindow(r.xdgSurface.surface.Surface.ID)
}

// mapToplevel places a newly-mapped toplevel at the origin of the
// primary output's usable area, activated (raised to top). There is no
// window-manager placement policy (per spec Non-goals); this is the
// simplest placement that satisfies "mapped and visible".
func (c *Compositor) mapToplevel(id surface.ID, size gmath.Vec2, viewportSrc *gmath.Rect) {
	outputs := c.Layout.Outputs()
	if len(outputs) == 0 {
		return
	}
	sp := c.Layout.Space(outputs[0])
	sp.Map(id, gmath.Vec2{}, size, true)
	sp.Resize(id, size, viewportSrc)
}

// resizeToplevel updates an already-mapped toplevel's quad size and
// viewport crop, for a commit after the initial map that changes the
// buffer, window geometry or wp_viewport mapping.
func (c *Compositor) resizeToplevel(id surface.ID, size gmath.Vec2, viewportSrc *gmath.Rect) {
	for _, oid := range c.Layout.Outputs() {
		c.Layout.Space(oid).Resize(id, size, viewportSrc)
	}
}

func (c *Compositor) unmapWindow(id surface.ID) {
	for _, oid := range c.Layout.Outputs() {
		c.Layout.Space(oid).Unmap(id)
	}
}

// popupResource implements xdg_popup: grab-chain membership (§4.6's
// popup grab) and the configure/repositioned cycle.
type popupResource struct {
	objID      wire.ObjectID
	xdgSurface *xdgSurfaceResource
	parent     *xdgSurfaceResource
	positioner *positionerResource
	mapped     bool
	grabbed    bool
}

func (r *popupResource) Interface() string { return "xdg_popup" }

func (r *popupResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case popupDestroy:
		if r.mapped {
			conn.Compositor().unmapWindow(r.xdgSurface.surface.Surface.ID)
		}
		return nil
	case popupGrab:
		seat, err := args.Object()
		if err != nil {
			return err
		}
		_, _ = args.Uint32() // serial
		return r.grab(conn, uint32(seat))
	case popupReposition:
		posID, err := args.Object()
		if err != nil {
			return err
		}
		token, err := args.Uint32()
		if err != nil {
			return err
		}
		if pos, ok := conn.Lookup(posID).(*positionerResource); ok {
			r.positioner = pos
		}
		r.Configure(conn)
		e := wire.NewEncoder(4)
		e.PutUint32(token)
		conn.SendEvent(r.objID, 2, e.Bytes(), nil) // repositioned
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "xdg_popup: unknown opcode %d", opcode)
	}
}

// grab establishes or extends the seat's popup grab chain. With no
// active grab, a popup without a parent is a protocol error that
// disconnects the client; otherwise a new chain is rooted at its
// parent. With an active grab, the popup is appended to the chain
// without checking that its parent is the chain's topmost member.
func (r *popupResource) grab(conn Conn, seat uint32) error {
	s := conn.Compositor().Seat
	myID := r.xdgSurface.surface.Surface.ID
	active := s.ActiveGrab()

	if active == nil {
		if r.parent == nil {
			return NewError(r.objID, wire.DisplayErrorInvalidObject, "xdg_popup.grab: root popup must have a toplevel ancestor")
		}
		s.BeginGrab(seat, r.parent.surface.Surface.ID)
	}
	if !s.ExtendGrab(myID) {
		return NewError(r.objID, wire.DisplayErrorInvalidObject, "xdg_popup.grab: nested popup chain broken")
	}
	r.grabbed = true
	return nil
}

// Dismiss tears the popup down in response to input outside its chain,
// sending popup_done and unmapping it.
func (r *popupResource) Dismiss(conn Conn) {
	conn.SendEvent(r.objID, popupEventPopupDone, nil, nil)
	if r.mapped {
		conn.Compositor().unmapWindow(r.xdgSurface.surface.Surface.ID)
	}
}

func (r *popupResource) Configure(conn Conn) {
	if r.positioner == nil {
		return
	}
	pos := r.positioner.Position()
	e := wire.NewEncoder(16)
	e.PutInt32(int32(pos.X))
	e.PutInt32(int32(pos.Y))
	e.PutInt32(int32(r.positioner.size.X))
	e.PutInt32(int32(r.positioner.size.Y))
	conn.SendEvent(r.objID, popupEventConfigure, e.Bytes(), nil)
	r.xdgSurface.sendConfigure(conn)
}

func (r *popupResource) onMappedCommit(conn Conn, result surface.CommitResult) {
	if r.mapped || result.Buffer == nil || r.positioner == nil {
		return
	}
	r.mapped = true
	pos := r.positioner.Position()
	conn.Compositor().mapToplevel(r.xdgSurface.surface.Surface.ID, r.positioner.size, r.xdgSurface.surface.Surface.Current.ViewportSrc)
	// Popups map at the positioner's computed offset, not the origin
	// mapToplevel uses for top-level placement.
	for _, oid := range conn.Compositor().Layout.Outputs() {
		sp := conn.Compositor().Layout.Space(oid)
		for _, w := range sp.Windows() {
			if w.SurfaceID == r.xdgSurface.surface.Surface.ID {
				w.Position = pos
			}
		}
	}
}
