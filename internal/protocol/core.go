package protocol

import (
	"fmt"

	"github.com/wlcore/compositor/internal/gmath"
	"github.com/wlcore/compositor/internal/surface"
	"github.com/wlcore/compositor/internal/wire"
)

// wl_compositor opcodes.
const (
	compositorCreateSurface wire.Opcode = 0
	compositorCreateRegion  wire.Opcode = 1
)

// wl_surface opcodes.
const (
	surfaceDestroy            wire.Opcode = 0
	surfaceAttach             wire.Opcode = 1
	surfaceDamage             wire.Opcode = 2
	surfaceFrame              wire.Opcode = 3
	surfaceSetOpaqueRegion    wire.Opcode = 4
	surfaceSetInputRegion     wire.Opcode = 5
	surfaceCommit             wire.Opcode = 6
	surfaceSetBufferTransform wire.Opcode = 7
	surfaceSetBufferScale     wire.Opcode = 8
	surfaceDamageBuffer       wire.Opcode = 9
	surfaceOffset             wire.Opcode = 10
)

const (
	surfaceEventEnter wire.Opcode = 0
	surfaceEventLeave wire.Opcode = 1
)

// wl_region opcodes.
const (
	regionDestroy  wire.Opcode = 0
	regionAdd      wire.Opcode = 1
	regionSubtract wire.Opcode = 2
)

// wl_callback event.
const callbackEventDone wire.Opcode = 0

// wl_output opcodes (requests/events).
const (
	outputRelease wire.Opcode = 0
)

const (
	outputEventGeometry wire.Opcode = 0
	outputEventMode     wire.Opcode = 1
	outputEventDone     wire.Opcode = 2
	outputEventScale    wire.Opcode = 3
	outputEventName     wire.Opcode = 4
)

// wl_seat opcodes.
const (
	seatGetPointer  wire.Opcode = 0
	seatGetKeyboard wire.Opcode = 1
	seatGetTouch    wire.Opcode = 2
	seatRelease     wire.Opcode = 3
)

const (
	seatEventCapabilities wire.Opcode = 0
	seatEventName         wire.Opcode = 1
)

const (
	pointerSetCursor wire.Opcode = 0
	pointerRelease   wire.Opcode = 1
)

const (
	pointerEventEnter  wire.Opcode = 0
	pointerEventLeave  wire.Opcode = 1
	pointerEventMotion wire.Opcode = 2
	pointerEventButton wire.Opcode = 3
	pointerEventAxis   wire.Opcode = 4
	pointerEventFrame  wire.Opcode = 5
)

const keyboardRelease wire.Opcode = 0

const (
	keyboardEventKeymap     wire.Opcode = 0
	keyboardEventEnter      wire.Opcode = 1
	keyboardEventLeave      wire.Opcode = 2
	keyboardEventKey        wire.Opcode = 3
	keyboardEventModifiers  wire.Opcode = 4
	keyboardEventRepeatInfo wire.Opcode = 5
)

// CompositorGlobal advertises wl_compositor: the entry point clients use
// to create surfaces and regions.
type CompositorGlobal struct {
	name string
}

// NewCompositorGlobal creates the wl_compositor global under the given
// registry advertisement name.
func NewCompositorGlobal(name string) *CompositorGlobal { return &CompositorGlobal{name: name} }

func (g *CompositorGlobal) Interface() string { return "wl_compositor" }
func (g *CompositorGlobal) Version() uint32   { return 5 }
func (g *CompositorGlobal) Name() string      { return g.name }

func (g *CompositorGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &compositorResource{})
	return nil
}

type compositorResource struct{}

func (r *compositorResource) Interface() string { return "wl_compositor" }

func (r *compositorResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case compositorCreateSurface:
		newID, err := args.NewID()
		if err != nil {
			return err
		}
		sid := conn.Compositor().NewSurfaceID()
		s := surface.New(sid, conn.ClientID())
		conn.Compositor().PutSurface(s)
		conn.Register(newID, &SurfaceResource{Surface: s, objID: newID})
		return nil
	case compositorCreateRegion:
		newID, err := args.NewID()
		if err != nil {
			return err
		}
		conn.Register(newID, &regionResource{})
		return nil
	default:
		return NewError(0, wire.DisplayErrorInvalidMethod, "wl_compositor: unknown opcode %d", opcode)
	}
}

// regionResource unions add rectangles into a single bounding rect;
// subtract rectangles are read and ignored. The compositor only needs
// region bounds (for input and opaque-region hinting), not exact polygon
// shape.
type regionResource struct {
	bounds gmath.Rect
	set    bool
}

func (r *regionResource) Interface() string { return "wl_region" }

func (r *regionResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case regionDestroy:
		return nil
	case regionAdd:
		x, _ := args.Int32()
		y, _ := args.Int32()
		w, _ := args.Int32()
		h, _ := args.Int32()
		rect := gmath.NewRect(x, y, w, h)
		if !r.set {
			r.bounds = rect
			r.set = true
		} else {
			r.bounds = r.bounds.Union(rect)
		}
		return nil
	case regionSubtract:
		_, _ = args.Int32()
		_, _ = args.Int32()
		_, _ = args.Int32()
		_, _ = args.Int32()
		return nil
	default:
		return NewError(0, wire.DisplayErrorInvalidMethod, "wl_region: unknown opcode %d", opcode)
	}
}

// SurfaceResource is the bound wl_surface object: it forwards requests
// into the shared surface.Surface state machine and, on commit, hands
// the result to the texture cache and layout.
type SurfaceResource struct {
	*surface.Surface
	objID wire.ObjectID

	// OnCommit is invoked after every successful wl_surface.commit with
	// the commit result, so role-specific managers (xdg-shell, layer-
	// shell) can react (map a window, latch a configure ack, etc).
	OnCommit func(conn Conn, result surface.CommitResult)
}

func (r *SurfaceResource) Interface() string { return "wl_surface" }

func (r *SurfaceResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case surfaceDestroy:
		r.Surface.Destroy()
		conn.Compositor().RemoveSurface(r.Surface.ID)
		return nil
	case surfaceAttach:
		bufID, err := args.Object()
		if err != nil {
			return err
		}
		_, _ = args.Int32() // x (deprecated since v5, always 0)
		_, _ = args.Int32() // y
		if bufID == 0 {
			r.Surface.Attach(nil)
			return nil
		}
		obj := conn.Lookup(bufID)
		bufRes, ok := obj.(*bufferResource)
		if !ok {
			return NewError(r.objID, wire.DisplayErrorInvalidObject, "wl_surface.attach: %d is not a wl_buffer", bufID)
		}
		r.Surface.Attach(bufRes.buf)
		return nil
	case surfaceDamage:
		x, _ := args.Int32()
		y, _ := args.Int32()
		w, _ := args.Int32()
		h, _ := args.Int32()
		r.Surface.AddDamageSurface(gmath.NewRect(x, y, w, h))
		return nil
	case surfaceDamageBuffer:
		x, _ := args.Int32()
		y, _ := args.Int32()
		w, _ := args.Int32()
		h, _ := args.Int32()
		r.Surface.AddDamageBuffer(gmath.NewRect(x, y, w, h))
		return nil
	case surfaceFrame:
		cbID, err := args.NewID()
		if err != nil {
			return err
		}
		r.Surface.RequestFrameCallback(surface.FrameCallback{ID: uint32(cbID)})
		return nil
	case surfaceSetOpaqueRegion:
		regID, err := args.Object()
		if err != nil {
			return err
		}
		if regID == 0 {
			r.Surface.SetOpaqueRegion(nil)
			return nil
		}
		if reg, ok := conn.Lookup(regID).(*regionResource); ok {
			b := reg.bounds
			r.Surface.SetOpaqueRegion(&b)
		}
		return nil
	case surfaceSetInputRegion:
		regID, err := args.Object()
		if err != nil {
			return err
		}
		if regID == 0 {
			r.Surface.SetInputRegion(nil)
			return nil
		}
		if reg, ok := conn.Lookup(regID).(*regionResource); ok {
			b := reg.bounds
			r.Surface.SetInputRegion(&b)
		}
		return nil
	case surfaceSetBufferTransform:
		t, _ := args.Int32()
		r.Surface.SetBufferTransform(t)
		return nil
	case surfaceSetBufferScale:
		s, _ := args.Int32()
		r.Surface.SetBufferScale(s)
		return nil
	case surfaceOffset:
		_, _ = args.Int32()
		_, _ = args.Int32()
		return nil
	case surfaceCommit:
		result := r.Surface.Commit()
		if result.NewBuffer || result.Buffer != nil {
			warn, err := conn.Compositor().Textures.OnCommit(r.Surface.ID, result.Buffer, result.Generation)
			if err != nil {
				return fmt.Errorf("surface %d commit: %w", r.Surface.ID, err)
			}
			if warn != nil {
				conn.Compositor().Log.Warn().Err(warn).Uint32("surface", uint32(r.Surface.ID)).Msg("surface commit: buffer import fell back to placeholder")
			}
		}
		conn.Compositor().QueueFrameCallbacks(r.Surface.ID, conn.ClientID(), result.FrameCallbacks)
		if r.OnCommit != nil {
			r.OnCommit(conn, result)
		}
		return nil
	default:
		return NewError(uint32AsObjectID(r.objID), wire.DisplayErrorInvalidMethod, "wl_surface: unknown opcode %d", opcode)
	}
}

func uint32AsObjectID(id wire.ObjectID) wire.ObjectID { return id }

// OutputGlobal advertises a single wl_output.
type OutputGlobal struct {
	name   string
	output *Output
}

// NewOutputGlobal creates the wl_output global for an already-registered
// Output record.
func NewOutputGlobal(name string, o *Output) *OutputGlobal {
	return &OutputGlobal{name: name, output: o}
}

func (g *OutputGlobal) Interface() string { return "wl_output" }
func (g *OutputGlobal) Version() uint32   { return 4 }
func (g *OutputGlobal) Name() string      { return g.name }

func (g *OutputGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &outputResource{output: g.output, objID: id})
	sendOutputState(conn, id, g.output)
	return nil
}

type outputResource struct {
	output *Output
	objID  wire.ObjectID
}

func (r *outputResource) Interface() string { return "wl_output" }

func (r *outputResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case outputRelease:
		conn.Unregister(r.objID)
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wl_output: unknown opcode %d", opcode)
	}
}

func sendOutputState(conn Conn, id wire.ObjectID, o *Output) {
	e := wire.NewEncoder(128)
	e.PutInt32(int32(o.Position.X))
	e.PutInt32(int32(o.Position.Y))
	e.PutInt32(int32(o.PhysicalMM.X))
	e.PutInt32(int32(o.PhysicalMM.Y))
	e.PutInt32(o.Subpixel)
	e.PutString("wlcore")
	e.PutString("virtual")
	e.PutInt32(o.Transform)
	conn.SendEvent(id, outputEventGeometry, e.Bytes(), nil)

	e.Reset()
	e.PutUint32(1) // current|preferred
	e.PutInt32(o.Width)
	e.PutInt32(o.Height)
	e.PutInt32(o.RefreshMHz)
	conn.SendEvent(id, outputEventMode, e.Bytes(), nil)

	e.Reset()
	e.PutInt32(o.Scale)
	conn.SendEvent(id, outputEventScale, e.Bytes(), nil)

	e.Reset()
	e.PutString(o.Name)
	conn.SendEvent(id, outputEventName, e.Bytes(), nil)

	e.Reset()
	conn.SendEvent(id, outputEventDone, e.Bytes(), nil)
}

// SeatGlobal advertises wl_seat with the compositor's current input
// capabilities.
type SeatGlobal struct {
	name string
	seat *Seat
}

// NewSeatGlobal creates the wl_seat global.
func NewSeatGlobal(name string, seat *Seat) *SeatGlobal { return &SeatGlobal{name: name, seat: seat} }

func (g *SeatGlobal) Interface() string { return "wl_seat" }
func (g *SeatGlobal) Version() uint32   { return 7 }
func (g *SeatGlobal) Name() string      { return g.name }

func (g *SeatGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &seatResource{objID: id})
	e := wire.NewEncoder(8)
	e.PutUint32(g.seat.Capabilities)
	conn.SendEvent(id, seatEventCapabilities, e.Bytes(), nil)
	e.Reset()
	e.PutString("seat0")
	conn.SendEvent(id, seatEventName, e.Bytes(), nil)
	return nil
}

type seatResource struct{ objID wire.ObjectID }

func (r *seatResource) Interface() string { return "wl_seat" }

func (r *seatResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case seatGetPointer:
		id, err := args.NewID()
		if err != nil {
			return err
		}
		conn.Register(id, &pointerResource{objID: id})
		return nil
	case seatGetKeyboard:
		id, err := args.NewID()
		if err != nil {
			return err
		}
		conn.Register(id, &keyboardResource{objID: id})
		return nil
	case seatGetTouch:
		id, err := args.NewID()
		if err != nil {
			return err
		}
		conn.Register(id, &touchResource{objID: id})
		return nil
	case seatRelease:
		conn.Unregister(r.objID)
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wl_seat: unknown opcode %d", opcode)
	}
}

type pointerResource struct{ objID wire.ObjectID }

func (r *pointerResource) Interface() string { return "wl_pointer" }

func (r *pointerResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case pointerSetCursor:
		serial, _ := args.Uint32()
		surfID, err := args.Object()
		if err != nil {
			return err
		}
		hotX, _ := args.Int32()
		hotY, _ := args.Int32()
		_ = serial
		seat := conn.Compositor().Seat
		if surfID == 0 {
			seat.CursorSurface = nil
			return nil
		}
		if sres, ok := conn.Lookup(surfID).(*SurfaceResource); ok {
			if sres.Surface.Role == surface.RoleUnassigned {
				if err := sres.Surface.AssignRole(surface.RoleCursor); err != nil {
					return NewError(surfID, wire.DisplayErrorInvalidObject, "%v", err)
				}
			} else if sres.Surface.Role != surface.RoleCursor {
				return NewError(surfID, wire.DisplayErrorInvalidObject, "%v", surface.ErrRoleAlreadyAssigned)
			}
			id := sres.Surface.ID
			seat.CursorSurface = &id
			seat.CursorHotspot = gmath.NewVec2(float32(hotX), float32(hotY))
		}
		return nil
	case pointerRelease:
		conn.Unregister(r.objID)
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wl_pointer: unknown opcode %d", opcode)
	}
}

type keyboardResource struct{ objID wire.ObjectID }

func (r *keyboardResource) Interface() string { return "wl_keyboard" }

func (r *keyboardResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case keyboardRelease:
		conn.Unregister(r.objID)
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wl_keyboard: unknown opcode %d", opcode)
	}
}

type touchResource struct{ objID wire.ObjectID }

func (r *touchResource) Interface() string { return "wl_touch" }

func (r *touchResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case 0: // release (v3+)
		conn.Unregister(r.objID)
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wl_touch: unknown opcode %d", opcode)
	}
}

// SendFrameCallbacks dispatches every queued frame callback in cbs with
// timestampMS, per §4.5 step 9. Called by internal/server after a frame
// presents.
func SendFrameCallbacks(conn Conn, cbs []surface.FrameCallback, timestampMS uint32) {
	for _, cb := range cbs {
		e := wire.NewEncoder(4)
		e.PutUint32(timestampMS)
		conn.SendEvent(wire.ObjectID(cb.ID), callbackEventDone, e.Bytes(), nil)
		conn.Unregister(wire.ObjectID(cb.ID))
	}
}
