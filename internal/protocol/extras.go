// extras.go groups the smaller buffer/sync protocols (§4.6's
// "Buffers/sync" category) whose state is a handful of fields rather
// than a full state machine: viewporter, fractional-scale and
// presentation-time.
package protocol

import (
	"github.com/wlcore/compositor/internal/gmath"
	"github.com/wlcore/compositor/internal/wire"
)

// wp_viewporter opcodes.
const (
	viewporterDestroy     wire.Opcode = 0
	viewporterGetViewport wire.Opcode = 1
)

// wp_viewport opcodes.
const (
	viewportDestroy        wire.Opcode = 0
	viewportSetSource      wire.Opcode = 1
	viewportSetDestination wire.Opcode = 2
)

// ViewporterGlobal advertises wp_viewporter: a client-declared crop +
// scale mapping a buffer to a surface's logical size (§4.4, S6).
type ViewporterGlobal struct{ name string }

func NewViewporterGlobal(name string) *ViewporterGlobal { return &ViewporterGlobal{name: name} }

func (g *ViewporterGlobal) Interface() string { return "wp_viewporter" }
func (g *ViewporterGlobal) Version() uint32   { return 1 }
func (g *ViewporterGlobal) Name() string      { return g.name }

func (g *ViewporterGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &viewporterResource{objID: id})
	return nil
}

type viewporterResource struct{ objID wire.ObjectID }

func (r *viewporterResource) Interface() string { return "wp_viewporter" }

func (r *viewporterResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case viewporterDestroy:
		return nil
	case viewporterGetViewport:
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
			return NewError(id, wire.DisplayErrorInvalidObject, "get_viewport: %d is not a wl_surface", surfID)
		}
		conn.Register(id, &viewportResource{objID: id, surface: sres})
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wp_viewporter: unknown opcode %d", opcode)
	}
}

type viewportResource struct {
	objID   wire.ObjectID
	surface *SurfaceResource
}

func (r *viewportResource) Interface() string { return "wp_viewport" }

func (r *viewportResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case viewportDestroy:
		r.surface.Surface.Pending.ViewportSrc = nil
		r.surface.Surface.Pending.ViewportDst = nil
		return nil
	case viewportSetSource:
		x, _ := args.Fixed()
		y, _ := args.Fixed()
		w, _ := args.Fixed()
		h, _ := args.Fixed()
		if x.Int() == -1 {
			r.surface.Surface.Pending.ViewportSrc = nil
			return nil
		}
		src := gmath.NewRect(x.Int(), y.Int(), w.Int(), h.Int())
		r.surface.Surface.Pending.ViewportSrc = &src
		return nil
	case viewportSetDestination:
		w, _ := args.Int32()
		h, _ := args.Int32()
		if w == -1 {
			r.surface.Surface.Pending.ViewportDst = nil
			return nil
		}
		dst := gmath.NewVec2(float32(w), float32(h))
		r.surface.Surface.Pending.ViewportDst = &dst
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wp_viewport: unknown opcode %d", opcode)
	}
}

// wp_fractional_scale_manager_v1 opcodes.
const (
	fracScaleManagerDestroy            wire.Opcode = 0
	fracScaleManagerGetFractionalScale wire.Opcode = 1
)

const fracScaleDestroy wire.Opcode = 0
const fracScaleEventPreferredScale wire.Opcode = 0

// FractionalScaleGlobal advertises wp_fractional_scale_manager_v1. The
// preferred_scale event encodes scale as an integer multiple of 80, so
// a 1.5x output scale reports 120.
type FractionalScaleGlobal struct {
	name  string
	scale func() float64
}

// NewFractionalScaleGlobal creates the fractional-scale global. scale
// returns the output's current fractional scale (e.g. from config).
func NewFractionalScaleGlobal(name string, scale func() float64) *FractionalScaleGlobal {
	return &FractionalScaleGlobal{name: name, scale: scale}
}

func (g *FractionalScaleGlobal) Interface() string { return "wp_fractional_scale_manager_v1" }
func (g *FractionalScaleGlobal) Version() uint32   { return 1 }
func (g *FractionalScaleGlobal) Name() string      { return g.name }

func (g *FractionalScaleGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &fracScaleManagerResource{objID: id, scale: g.scale})
	return nil
}

type fracScaleManagerResource struct {
	objID wire.ObjectID
	scale func() float64
}

func (r *fracScaleManagerResource) Interface() string { return "wp_fractional_scale_manager_v1" }

func (r *fracScaleManagerResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case fracScaleManagerDestroy:
		return nil
	case fracScaleManagerGetFractionalScale:
		id, err := args.NewID()
		if err != nil {
			return err
		}
		if _, err := args.Object(); err != nil { // surface
			return err
		}
		fs := &fracScaleResource{objID: id}
		conn.Register(id, fs)
		fs.sendScale(conn, r.scale())
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wp_fractional_scale_manager_v1: unknown opcode %d", opcode)
	}
}

type fracScaleResource struct{ objID wire.ObjectID }

func (r *fracScaleResource) Interface() string { return "wp_fractional_scale_v1" }

func (r *fracScaleResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	if opcode == fracScaleDestroy {
		return nil
	}
	return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wp_fractional_scale_v1: unknown opcode %d", opcode)
}

func (r *fracScaleResource) sendScale(conn Conn, scale float64) {
	e := wire.NewEncoder(4)
	e.PutUint32(uint32(scale * 80))
	conn.SendEvent(r.objID, fracScaleEventPreferredScale, e.Bytes(), nil)
}

// wp_presentation opcodes.
const (
	presentationDestroy  wire.Opcode = 0
	presentationFeedback wire.Opcode = 1
)

const presentationEventClockID wire.Opcode = 0

const (
	feedbackEventPresented wire.Opcode = 1
	feedbackEventDiscarded wire.Opcode = 2
)

// PresentationGlobal advertises wp_presentation, reporting CLOCK_MONOTONIC
// as the compositor's presentation clock (matching the frame callback
// timestamps §4.5 already uses).
type PresentationGlobal struct{ name string }

func NewPresentationGlobal(name string) *PresentationGlobal { return &PresentationGlobal{name: name} }

func (g *PresentationGlobal) Interface() string { return "wp_presentation" }
func (g *PresentationGlobal) Version() uint32   { return 1 }
func (g *PresentationGlobal) Name() string      { return g.name }

const clockMonotonic = 1

func (g *PresentationGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &presentationResource{objID: id})
	e := wire.NewEncoder(4)
	e.PutUint32(clockMonotonic)
	conn.SendEvent(id, presentationEventClockID, e.Bytes(), nil)
	return nil
}

type presentationResource struct{ objID wire.ObjectID }

func (r *presentationResource) Interface() string { return "wp_presentation" }

func (r *presentationResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case presentationDestroy:
		return nil
	case presentationFeedback:
		if _, err := args.Object(); err != nil { // surface
			return err
		}
		id, err := args.NewID()
		if err != nil {
			return err
		}
		conn.Register(id, &feedbackResource{objID: id})
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wp_presentation: unknown opcode %d", opcode)
	}
}

type feedbackResource struct{ objID wire.ObjectID }

func (r *feedbackResource) Interface() string { return "wp_presentation_feedback" }
func (r *feedbackResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	return nil
}

// Presented emits wp_presentation_feedback.presented with a monotonic
// timestamp split into seconds (hi/lo) and nanoseconds. Nothing in the
// repository calls it, so feedback objects never receive this event.
func (r *feedbackResource) Presented(conn Conn, seq uint64, tvSecHi, tvSecLo, tvNsec, refreshNs uint32) {
	e := wire.NewEncoder(32)
	e.PutUint32(tvSecHi)
	e.PutUint32(tvSecLo)
	e.PutUint32(tvNsec)
	e.PutUint32(refreshNs)
	e.PutUint32(uint32(seq >> 32))
	e.PutUint32(uint32(seq))
	e.PutUint32(0) // flags
	conn.SendEvent(r.objID, feedbackEventPresented, e.Bytes(), nil)
}

// Discarded emits wp_presentation_feedback.discarded for a frame that
// was superseded before it presented. Like Presented, it has no caller.
func (r *feedbackResource) Discarded(conn Conn) {
	conn.SendEvent(r.objID, feedbackEventDiscarded, nil, nil)
}
