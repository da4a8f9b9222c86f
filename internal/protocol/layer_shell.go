package protocol

import (
	"github.com/wlcore/compositor/internal/gmath"
	"github.com/wlcore/compositor/internal/layout"
	"github.com/wlcore/compositor/internal/surface"
	"github.com/wlcore/compositor/internal/wire"
)

// zwlr_layer_shell_v1 opcodes.
const (
	layerShellGetLayerSurface wire.Opcode = 0
	layerShellDestroy         wire.Opcode = 1
)

// zwlr_layer_surface_v1 opcodes.
const (
	layerSurfaceSetSize               wire.Opcode = 0
	layerSurfaceSetAnchor             wire.Opcode = 1
	layerSurfaceSetExclusiveZone      wire.Opcode = 2
	layerSurfaceSetMargin             wire.Opcode = 3
	layerSurfaceSetKeyboardInteractivity wire.Opcode = 4
	layerSurfaceGetPopup              wire.Opcode = 5
	layerSurfaceAckConfigure          wire.Opcode = 6
	layerSurfaceDestroy               wire.Opcode = 7
	layerSurfaceSetLayer              wire.Opcode = 8
)

const (
	layerSurfaceEventConfigure wire.Opcode = 0
	layerSurfaceEventClosed    wire.Opcode = 1
)

// LayerShellGlobal advertises zwlr_layer_shell_v1: surfaces anchored to
// one of the four layers (§3's LayerSurface, §4.6).
type LayerShellGlobal struct{ name string }

// NewLayerShellGlobal creates the layer-shell global.
func NewLayerShellGlobal(name string) *LayerShellGlobal { return &LayerShellGlobal{name: name} }

func (g *LayerShellGlobal) Interface() string { return "zwlr_layer_shell_v1" }
func (g *LayerShellGlobal) Version() uint32   { return 4 }
func (g *LayerShellGlobal) Name() string      { return g.name }

func (g *LayerShellGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &layerShellResource{objID: id})
	return nil
}

type layerShellResource struct{ objID wire.ObjectID }

func (r *layerShellResource) Interface() string { return "zwlr_layer_shell_v1" }

func (r *layerShellResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case layerShellGetLayerSurface:
		id, err := args.NewID()
		if err != nil {
			return err
		}
		surfID, err := args.Object()
		if err != nil {
			return err
		}
		_, err = args.Object() // output (0 = let compositor choose)
		if err != nil {
			return err
		}
		layerVal, err := args.Uint32()
		if err != nil {
			return err
		}
		namespace, err := args.String()
		if err != nil {
			return err
		}
		sres, ok := conn.Lookup(surfID).(*SurfaceResource)
		if !ok {
			return NewError(id, wire.DisplayErrorInvalidObject, "get_layer_surface: %d is not a wl_surface", surfID)
		}
		if err := sres.Surface.AssignRole(surface.RoleLayer); err != nil {
			return NewError(id, wire.DisplayErrorInvalidObject, "%v", err)
		}
		ls := &layerSurfaceResource{
			objID:     id,
			surface:   sres,
			namespace: namespace,
			layer:     layout.Layer(layerVal),
		}
		sres.OnCommit = ls.onSurfaceCommit
		conn.Register(id, ls)
		return nil
	case layerShellDestroy:
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "zwlr_layer_shell_v1: unknown opcode %d", opcode)
	}
}

type layerSurfaceResource struct {
	objID     wire.ObjectID
	surface   *SurfaceResource
	namespace string
	layer     layout.Layer
	anchor    layout.Anchor
	exclusive int32
	size      gmath.Vec2
	margin    [4]int32 // top, right, bottom, left

	sentSerials []uint32
	everAcked   bool
	mapped      bool
}

func (r *layerSurfaceResource) Interface() string { return "zwlr_layer_surface_v1" }

func (r *layerSurfaceResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case layerSurfaceSetSize:
		w, _ := args.Uint32()
		h, _ := args.Uint32()
		r.size = gmath.NewVec2(float32(w), float32(h))
		return nil
	case layerSurfaceSetAnchor:
		v, err := args.Uint32()
		if err != nil {
			return err
		}
		r.anchor = layout.Anchor(v)
		return nil
	case layerSurfaceSetExclusiveZone:
		z, err := args.Int32()
		if err != nil {
			return err
		}
		r.exclusive = z
		return nil
	case layerSurfaceSetMargin:
		for i := 0; i < 4; i++ {
			v, _ := args.Int32()
			r.margin[i] = v
		}
		return nil
	case layerSurfaceSetKeyboardInteractivity:
		_, _ = args.Uint32()
		return nil
	case layerSurfaceGetPopup:
		_, err := args.Object()
		return err
	case layerSurfaceAckConfigure:
		serial, err := args.Uint32()
		if err != nil {
			return err
		}
		for i, s := range r.sentSerials {
			if s == serial {
				r.sentSerials = r.sentSerials[i+1:]
				r.everAcked = true
				return nil
			}
		}
		return NewError(r.objID, wire.DisplayErrorInvalidObject, "ack_configure: unknown serial %d", serial)
	case layerSurfaceDestroy:
		if r.mapped {
			r.unmap(conn)
		}
		return nil
	case layerSurfaceSetLayer:
		v, err := args.Uint32()
		if err != nil {
			return err
		}
		r.layer = layout.Layer(v)
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "zwlr_layer_surface_v1: unknown opcode %d", opcode)
	}
}

// Configure sends a configure event sizing the surface to its anchor and
// requested size, per the layer-shell negotiation.
func (r *layerSurfaceResource) Configure(conn Conn, width, height uint32) uint32 {
	serial := conn.NextSerial()
	r.sentSerials = append(r.sentSerials, serial)
	e := wire.NewEncoder(12)
	e.PutUint32(serial)
	e.PutUint32(width)
	e.PutUint32(height)
	conn.SendEvent(r.objID, layerSurfaceEventConfigure, e.Bytes(), nil)
	return serial
}

func (r *layerSurfaceResource) onSurfaceCommit(conn Conn, result surface.CommitResult) {
	if r.mapped || !r.everAcked || result.Buffer == nil {
		return
	}
	r.mapped = true
	outputs := conn.Compositor().Layout.Outputs()
	if len(outputs) == 0 {
		return
	}
	sp := conn.Compositor().Layout.Space(outputs[0])
	size := r.size
	if size.X == 0 {
		size.X = float32(result.Buffer.Width)
	}
	if size.Y == 0 {
		size.Y = float32(result.Buffer.Height)
	}
	pos := anchoredPosition(sp.OutputBounds, r.anchor, size, r.margin)
	sp.MapLayer(&layout.LayerSurface{
		SurfaceID:     r.surface.Surface.ID,
		Layer:         r.layer,
		Anchor:        r.anchor,
		ExclusiveZone: r.exclusive,
		Size:          size,
		Position:      pos,
		ViewportSrc:   r.surface.Surface.Current.ViewportSrc,
	})
}

func (r *layerSurfaceResource) unmap(conn Conn) {
	for _, oid := range conn.Compositor().Layout.Outputs() {
		conn.Compositor().Layout.Space(oid).UnmapLayer(r.surface.Surface.ID)
	}
	conn.SendEvent(r.objID, layerSurfaceEventClosed, nil, nil)
}

func anchoredPosition(bounds gmath.Rect, anchor layout.Anchor, size gmath.Vec2, margin [4]int32) gmath.Vec2 {
	x := float32(bounds.X) + (float32(bounds.Width)-size.X)/2
	y := float32(bounds.Y) + (float32(bounds.Height)-size.Y)/2
	if anchor&layout.AnchorLeft != 0 && anchor&layout.AnchorRight == 0 {
		x = float32(bounds.X) + float32(margin[3])
	} else if anchor&layout.AnchorRight != 0 && anchor&layout.AnchorLeft == 0 {
		x = float32(bounds.Right()) - size.X - float32(margin[1])
	}
	if anchor&layout.AnchorTop != 0 && anchor&layout.AnchorBottom == 0 {
		y = float32(bounds.Y) + float32(margin[0])
	} else if anchor&layout.AnchorBottom != 0 && anchor&layout.AnchorTop == 0 {
		y = float32(bounds.Bottom()) - size.Y - float32(margin[2])
	}
	return gmath.NewVec2(x, y)
}
