// misc.go groups small per-surface buffer attributes that don't carry
// enough state to warrant their own file: content-type hinting,
// per-surface alpha, single-pixel buffers, and explicit-sync fences.
package protocol

import (
	"github.com/wlcore/compositor/internal/surface"
	"github.com/wlcore/compositor/internal/wire"
)

// wp_content_type_manager_v1 opcodes.
const contentTypeManagerGetSurfaceContentType wire.Opcode = 0

// wp_content_type_v1 opcodes.
const (
	contentTypeSetContentType wire.Opcode = 0
	contentTypeDestroy        wire.Opcode = 1
)

// content_type enum values, matching wp_content_type_v1.type.
const (
	ContentTypeNone  uint32 = 0
	ContentTypePhoto uint32 = 1
	ContentTypeVideo uint32 = 2
	ContentTypeGame  uint32 = 3
)

// ContentTypeManagerGlobal advertises wp_content_type_manager_v1. The
// hint is stored on surface.State.ContentType; nothing in internal/render
// reads it, and the compositor never rejects an unrecognized value.
type ContentTypeManagerGlobal struct{ name string }

// NewContentTypeManagerGlobal creates the content-type global.
func NewContentTypeManagerGlobal(name string) *ContentTypeManagerGlobal {
	return &ContentTypeManagerGlobal{name: name}
}

func (g *ContentTypeManagerGlobal) Interface() string { return "wp_content_type_manager_v1" }
func (g *ContentTypeManagerGlobal) Version() uint32   { return 1 }
func (g *ContentTypeManagerGlobal) Name() string      { return g.name }

func (g *ContentTypeManagerGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &contentTypeManagerResource{objID: id})
	return nil
}

type contentTypeManagerResource struct{ objID wire.ObjectID }

func (r *contentTypeManagerResource) Interface() string { return "wp_content_type_manager_v1" }

func (r *contentTypeManagerResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	if opcode != contentTypeManagerGetSurfaceContentType {
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wp_content_type_manager_v1: unknown opcode %d", opcode)
	}
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
		return NewError(id, wire.DisplayErrorInvalidObject, "get_surface_content_type: %d is not a wl_surface", surfID)
	}
	conn.Register(id, &contentTypeResource{objID: id, surface: sres})
	return nil
}

type contentTypeResource struct {
	objID   wire.ObjectID
	surface *SurfaceResource
}

func (r *contentTypeResource) Interface() string { return "wp_content_type_v1" }

func (r *contentTypeResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case contentTypeSetContentType:
		v, err := args.Uint32()
		if err != nil {
			return err
		}
		r.surface.Surface.Pending.ContentType = contentTypeName(v)
		return nil
	case contentTypeDestroy:
		r.surface.Surface.Pending.ContentType = ""
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wp_content_type_v1: unknown opcode %d", opcode)
	}
}

func contentTypeName(v uint32) string {
	switch v {
	case ContentTypePhoto:
		return "photo"
	case ContentTypeVideo:
		return "video"
	case ContentTypeGame:
		return "game"
	default:
		return ""
	}
}

// wp_alpha_modifier_v1 opcodes.
const alphaModifierGetSurface wire.Opcode = 0

// wp_alpha_modifier_surface_v1 opcodes.
const (
	alphaModifierSurfaceSetMultiplier wire.Opcode = 0
	alphaModifierSurfaceDestroy       wire.Opcode = 1
)

// AlphaModifierGlobal advertises wp_alpha_modifier_v1: a per-surface
// alpha multiplier composited on top of the buffer's own alpha channel.
type AlphaModifierGlobal struct{ name string }

// NewAlphaModifierGlobal creates the alpha-modifier global.
func NewAlphaModifierGlobal(name string) *AlphaModifierGlobal {
	return &AlphaModifierGlobal{name: name}
}

func (g *AlphaModifierGlobal) Interface() string { return "wp_alpha_modifier_v1" }
func (g *AlphaModifierGlobal) Version() uint32   { return 1 }
func (g *AlphaModifierGlobal) Name() string      { return g.name }

func (g *AlphaModifierGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &alphaModifierResource{objID: id})
	return nil
}

type alphaModifierResource struct{ objID wire.ObjectID }

func (r *alphaModifierResource) Interface() string { return "wp_alpha_modifier_v1" }

func (r *alphaModifierResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	if opcode != alphaModifierGetSurface {
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wp_alpha_modifier_v1: unknown opcode %d", opcode)
	}
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
		return NewError(id, wire.DisplayErrorInvalidObject, "get_surface: %d is not a wl_surface", surfID)
	}
	conn.Register(id, &alphaModifierSurfaceResource{objID: id, surface: sres})
	return nil
}

type alphaModifierSurfaceResource struct {
	objID   wire.ObjectID
	surface *SurfaceResource
}

func (r *alphaModifierSurfaceResource) Interface() string { return "wp_alpha_modifier_surface_v1" }

func (r *alphaModifierSurfaceResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case alphaModifierSurfaceSetMultiplier:
		factor, err := args.Uint32()
		if err != nil {
			return err
		}
		// factor is a uint32 spanning the full range of a normalized
		// [0, 1] multiplier, per wp_alpha_modifier_surface_v1.
		r.surface.Surface.Pending.Alpha = float32(factor) / float32(0xffffffff)
		return nil
	case alphaModifierSurfaceDestroy:
		r.surface.Surface.Pending.Alpha = 1
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wp_alpha_modifier_surface_v1: unknown opcode %d", opcode)
	}
}

// wp_single_pixel_buffer_manager_v1 opcodes.
const singlePixelBufferManagerCreate wire.Opcode = 0

// SinglePixelBufferManagerGlobal advertises
// wp_single_pixel_buffer_manager_v1, letting a client commit a 1x1
// solid-color buffer without an SHM pool round trip (common for
// backgrounds and cursor placeholders).
type SinglePixelBufferManagerGlobal struct{ name string }

// NewSinglePixelBufferManagerGlobal creates the single-pixel-buffer global.
func NewSinglePixelBufferManagerGlobal(name string) *SinglePixelBufferManagerGlobal {
	return &SinglePixelBufferManagerGlobal{name: name}
}

func (g *SinglePixelBufferManagerGlobal) Interface() string {
	return "wp_single_pixel_buffer_manager_v1"
}
func (g *SinglePixelBufferManagerGlobal) Version() uint32 { return 1 }
func (g *SinglePixelBufferManagerGlobal) Name() string    { return g.name }

func (g *SinglePixelBufferManagerGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &singlePixelBufferManagerResource{objID: id})
	return nil
}

type singlePixelBufferManagerResource struct{ objID wire.ObjectID }

func (r *singlePixelBufferManagerResource) Interface() string {
	return "wp_single_pixel_buffer_manager_v1"
}

func (r *singlePixelBufferManagerResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	if opcode != singlePixelBufferManagerCreate {
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wp_single_pixel_buffer_manager_v1: unknown opcode %d", opcode)
	}
	id, err := args.NewID()
	if err != nil {
		return err
	}
	red, _ := args.Uint32()
	green, _ := args.Uint32()
	blue, _ := args.Uint32()
	alpha, _ := args.Uint32()
	buf := newSolidColorBuffer(red, green, blue, alpha)
	conn.Register(id, &bufferResource{buf: buf, objID: id})
	return nil
}

// newSolidColorBuffer builds a 1x1 RGBA8888 buffer from
// wp_single_pixel_buffer_manager_v1's full-uint32-range color channels,
// downscaled to 8 bits per channel since the renderer's upload path
// only handles byte-packed formats.
func newSolidColorBuffer(red, green, blue, alpha uint32) *surface.Buffer {
	scale := func(v uint32) byte { return byte(v >> 24) }
	return &surface.Buffer{
		Kind:   surface.BufferKindSHM,
		Format: surface.FormatRGBA8888,
		Data:   []byte{scale(red), scale(green), scale(blue), scale(alpha)},
		Stride: 4,
		Width:  1,
		Height: 1,
	}
}

// zwp_linux_drm_syncobj_manager_v1 opcodes.
const syncobjManagerGetSurface wire.Opcode = 1

// zwp_linux_drm_syncobj_surface_v1 opcodes.
const (
	syncobjSurfaceSetAcquirePoint wire.Opcode = 1
	syncobjSurfaceSetReleasePoint wire.Opcode = 2
	syncobjSurfaceDestroy         wire.Opcode = 3
)

// SyncobjManagerGlobal advertises zwp_linux_drm_syncobj_manager_v1:
// explicit per-commit acquire/release fences in place of implicit GPU
// sync. The acquire and release points are parsed and discarded:
// surface.State.AcquireFenceFD is never set to a fence, and no fence is
// waited on or signaled back to the client's timeline.
type SyncobjManagerGlobal struct{ name string }

// NewSyncobjManagerGlobal creates the linux-drm-syncobj global.
func NewSyncobjManagerGlobal(name string) *SyncobjManagerGlobal {
	return &SyncobjManagerGlobal{name: name}
}

func (g *SyncobjManagerGlobal) Interface() string { return "zwp_linux_drm_syncobj_manager_v1" }
func (g *SyncobjManagerGlobal) Version() uint32   { return 1 }
func (g *SyncobjManagerGlobal) Name() string      { return g.name }

func (g *SyncobjManagerGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &syncobjManagerResource{objID: id})
	return nil
}

type syncobjManagerResource struct{ objID wire.ObjectID }

func (r *syncobjManagerResource) Interface() string { return "zwp_linux_drm_syncobj_manager_v1" }

func (r *syncobjManagerResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	if opcode != syncobjManagerGetSurface {
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "zwp_linux_drm_syncobj_manager_v1: unknown opcode %d", opcode)
	}
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
		return NewError(id, wire.DisplayErrorInvalidObject, "get_surface: %d is not a wl_surface", surfID)
	}
	conn.Register(id, &syncobjSurfaceResource{objID: id, surface: sres})
	return nil
}

type syncobjSurfaceResource struct {
	objID   wire.ObjectID
	surface *SurfaceResource
}

func (r *syncobjSurfaceResource) Interface() string { return "zwp_linux_drm_syncobj_surface_v1" }

func (r *syncobjSurfaceResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case syncobjSurfaceSetAcquirePoint:
		if _, err := args.Object(); err != nil { // timeline
			return err
		}
		if _, err := args.Uint32(); err != nil { // point_hi
			return err
		}
		if _, err := args.Uint32(); err != nil { // point_lo
			return err
		}
		return nil
	case syncobjSurfaceSetReleasePoint:
		if _, err := args.Object(); err != nil { // timeline
			return err
		}
		if _, err := args.Uint32(); err != nil { // point_hi
			return err
		}
		if _, err := args.Uint32(); err != nil { // point_lo
			return err
		}
		return nil
	case syncobjSurfaceDestroy:
		r.surface.Surface.Pending.AcquireFenceFD = -1
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "zwp_linux_drm_syncobj_surface_v1: unknown opcode %d", opcode)
	}
}
