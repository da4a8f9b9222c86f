package protocol

import (
	"github.com/wlcore/compositor/internal/surface"
	"github.com/wlcore/compositor/internal/wire"
)

// zwp_linux_dmabuf_v1 opcodes.
const (
	dmabufDestroy            wire.Opcode = 0
	dmabufCreateParams        wire.Opcode = 1
	dmabufGetDefaultFeedback  wire.Opcode = 2
	dmabufGetSurfaceFeedback  wire.Opcode = 3
)

const (
	dmabufEventFormat   wire.Opcode = 0
	dmabufEventModifier wire.Opcode = 1
)

// zwp_linux_buffer_params_v1 opcodes.
const (
	paramsDestroy     wire.Opcode = 0
	paramsAdd         wire.Opcode = 1
	paramsCreate      wire.Opcode = 2
	paramsCreateImmed wire.Opcode = 3
)

const (
	paramsEventCreated wire.Opcode = 0
	paramsEventFailed  wire.Opcode = 1
)

// DMABUFFormat names a (fourcc, modifier) pair the compositor can import
// with no copy. §6 requires at least ARGB8888/XRGB8888 with the linear
// modifier advertised.
type DMABUFFormat struct {
	Fourcc   uint32
	Modifier uint64
}

// Linux DRM fourcc codes for the two mandatory formats (drm_fourcc.h).
const (
	fourccARGB8888 = 0x34325241 // 'AR24'
	fourccXRGB8888 = 0x34325258 // 'XR24'
	modifierLinear = 0x0
)

// DmabufGlobal advertises zwp_linux_dmabuf_v1 and the formats it can
// import (§4.3, §6).
type DmabufGlobal struct {
	name    string
	formats []DMABUFFormat
}

// NewDmabufGlobal creates the dmabuf global advertising at minimum
// ARGB8888 and XRGB8888 with the linear modifier.
func NewDmabufGlobal(name string) *DmabufGlobal {
	return &DmabufGlobal{
		name: name,
		formats: []DMABUFFormat{
			{Fourcc: fourccARGB8888, Modifier: modifierLinear},
			{Fourcc: fourccXRGB8888, Modifier: modifierLinear},
		},
	}
}

func (g *DmabufGlobal) Interface() string { return "zwp_linux_dmabuf_v1" }
func (g *DmabufGlobal) Version() uint32   { return 4 }
func (g *DmabufGlobal) Name() string      { return g.name }

func (g *DmabufGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &dmabufResource{objID: id, formats: g.formats})
	for _, f := range g.formats {
		e := wire.NewEncoder(4)
		e.PutUint32(f.Fourcc)
		conn.SendEvent(id, dmabufEventFormat, e.Bytes(), nil)

		e.Reset()
		e.PutUint32(f.Fourcc)
		e.PutUint32(uint32(f.Modifier >> 32))
		e.PutUint32(uint32(f.Modifier))
		conn.SendEvent(id, dmabufEventModifier, e.Bytes(), nil)
	}
	return nil
}

type dmabufResource struct {
	objID   wire.ObjectID
	formats []DMABUFFormat
}

func (r *dmabufResource) Interface() string { return "zwp_linux_dmabuf_v1" }

func (r *dmabufResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case dmabufDestroy:
		return nil
	case dmabufCreateParams:
		id, err := args.NewID()
		if err != nil {
			return err
		}
		conn.Register(id, &paramsResource{objID: id, supported: r.formats})
		return nil
	case dmabufGetDefaultFeedback, dmabufGetSurfaceFeedback:
		id, err := args.NewID()
		if err != nil {
			return err
		}
		if opcode == dmabufGetSurfaceFeedback {
			_, _ = args.Object()
		}
		// Feedback objects (format/modifier tranches for direct scanout
		// hinting) are advertised with no tranches: the compositor always
		// composites through the renderer rather than direct-scanning out
		// a client buffer, so there is no preferential device/format to
		// report beyond what create_params already advertises.
		conn.Register(id, &noopResource{iface: "zwp_linux_dmabuf_feedback_v1"})
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "zwp_linux_dmabuf_v1: unknown opcode %d", opcode)
	}
}

type planeEntry struct {
	fd                  int
	offset, stride      uint32
	modHi, modLo        uint32
}

// paramsResource accumulates plane descriptors for one dmabuf import,
// per §4.3: only the first plane is consumed; multi-planar formats are
// rejected rather than silently mis-imported.
type paramsResource struct {
	objID     wire.ObjectID
	supported []DMABUFFormat
	planes    []planeEntry
	used      bool
}

func (r *paramsResource) Interface() string { return "zwp_linux_buffer_params_v1" }

func (r *paramsResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case paramsDestroy:
		return nil
	case paramsAdd:
		fd, err := args.FD()
		if err != nil {
			return err
		}
		_, _ = args.Uint32() // plane_idx
		offset, _ := args.Uint32()
		stride, _ := args.Uint32()
		modHi, _ := args.Uint32()
		modLo, _ := args.Uint32()
		r.planes = append(r.planes, planeEntry{fd: fd, offset: offset, stride: stride, modHi: modHi, modLo: modLo})
		return nil
	case paramsCreate, paramsCreateImmed:
		var newID wire.ObjectID
		if opcode == paramsCreateImmed {
			id, err := args.NewID()
			if err != nil {
				return err
			}
			newID = id
		}
		width, _ := args.Int32()
		height, _ := args.Int32()
		format, _ := args.Uint32()
		_, _ = args.Uint32() // flags

		if r.used {
			r.fail(conn, newID, opcode)
			return nil
		}
		r.used = true
		if len(r.planes) != 1 {
			r.fail(conn, newID, opcode)
			return nil
		}
		p := r.planes[0]
		buf := &surface.Buffer{
			Kind:     surface.BufferKindDMABUF,
			Format:   toSurfaceFormat(fourccToShm(format)),
			Width:    width,
			Height:   height,
			Stride:   int32(p.stride),
			FD:       p.fd,
			Modifier: uint64(p.modHi)<<32 | uint64(p.modLo),
			Offset:   int32(p.offset),
		}
		if opcode == paramsCreateImmed {
			conn.Register(newID, &bufferResource{buf: buf, objID: newID})
			return nil
		}
		bufID := conn.AllocServerObjectID()
		conn.Register(bufID, &bufferResource{buf: buf, objID: bufID})
		e := wire.NewEncoder(4)
		e.PutNewID(bufID)
		conn.SendEvent(r.objID, paramsEventCreated, e.Bytes(), nil)
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "zwp_linux_buffer_params_v1: unknown opcode %d", opcode)
	}
}

func (r *paramsResource) fail(conn Conn, newID wire.ObjectID, opcode wire.Opcode) {
	conn.SendEvent(r.objID, paramsEventFailed, nil, nil)
}

// fourccToShm maps the two mandatory DRM fourcc codes back to the
// wl_shm-style format enum toSurfaceFormat understands, so dmabuf and
// shm buffers share one conversion path into surface.BufferFormat.
func fourccToShm(fourcc uint32) uint32 {
	switch fourcc {
	case fourccARGB8888:
		return 0
	case fourccXRGB8888:
		return 1
	default:
		return 0xffffffff
	}
}

// noopResource answers a bound object's requests with "no known
// behavior beyond destroy", for leaf interfaces that only need to exist
// (feedback objects, etc).
type noopResource struct{ iface string }

func (r *noopResource) Interface() string { return r.iface }
func (r *noopResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	return nil
}
