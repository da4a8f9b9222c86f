package protocol

import (
	"github.com/wlcore/compositor/internal/surface"
	"github.com/wlcore/compositor/internal/wire"
)

// wl_shm opcodes.
const shmCreatePool wire.Opcode = 0
const shmEventFormat wire.Opcode = 0

// wl_shm_pool opcodes.
const (
	shmPoolCreateBuffer wire.Opcode = 0
	shmPoolDestroy      wire.Opcode = 1
	shmPoolResize       wire.Opcode = 2
)

// wl_buffer opcodes.
const bufferDestroy wire.Opcode = 0
const bufferEventRelease wire.Opcode = 0

// ShmFormat mirrors the wl_shm.format enum values the compositor
// advertises, per §6's minimum DMA-BUF set plus the SHM formats §4.3
// maps to GPU textures.
type ShmFormat uint32

const (
	ShmFormatARGB8888 ShmFormat = 0
	ShmFormatXRGB8888 ShmFormat = 1
	ShmFormatRGBA8888 ShmFormat = 0x34324152 // 'RA24' - not advertised by default, kept for completeness
)

// ShmGlobal advertises wl_shm and the pixel formats the texture cache's
// SHM upload path understands (§4.3).
type ShmGlobal struct {
	name string
}

// NewShmGlobal creates the wl_shm global.
func NewShmGlobal(name string) *ShmGlobal { return &ShmGlobal{name: name} }

func (g *ShmGlobal) Interface() string { return "wl_shm" }
func (g *ShmGlobal) Version() uint32   { return 1 }
func (g *ShmGlobal) Name() string      { return g.name }

func (g *ShmGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &shmResource{objID: id})
	for _, f := range []uint32{0, 1} { // ARGB8888, XRGB8888
		e := wire.NewEncoder(4)
		e.PutUint32(f)
		conn.SendEvent(id, shmEventFormat, e.Bytes(), nil)
	}
	return nil
}

type shmResource struct{ objID wire.ObjectID }

func (r *shmResource) Interface() string { return "wl_shm" }

func (r *shmResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case shmCreatePool:
		id, err := args.NewID()
		if err != nil {
			return err
		}
		fd, err := args.FD()
		if err != nil {
			return err
		}
		size, err := args.Int32()
		if err != nil {
			return err
		}
		data, err := mapSHMPool(fd, int(size))
		if err != nil {
			return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wl_shm.create_pool: %v", err)
		}
		conn.Register(id, &shmPoolResource{data: data, objID: id})
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wl_shm: unknown opcode %d", opcode)
	}
}

// shmPoolResource mirrors a client's mmap'd shared memory pool. The
// backing mapping is created by platform-specific mapSHMPool (memfd/
// mmap on Linux); buffers created from it are views into the same bytes,
// re-sliced on each create_buffer and resize.
type shmPoolResource struct {
	data  []byte
	objID wire.ObjectID
}

func (r *shmPoolResource) Interface() string { return "wl_shm_pool" }

func (r *shmPoolResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case shmPoolCreateBuffer:
		id, err := args.NewID()
		if err != nil {
			return err
		}
		offset, _ := args.Int32()
		width, _ := args.Int32()
		height, _ := args.Int32()
		stride, _ := args.Int32()
		format, err := args.Uint32()
		if err != nil {
			return err
		}
		end := int(offset) + int(stride)*int(height)
		if offset < 0 || end > len(r.data) {
			return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wl_shm_pool.create_buffer: out of bounds")
		}
		buf := &surface.Buffer{
			Kind:   surface.BufferKindSHM,
			Format: toSurfaceFormat(format),
			Data:   r.data[offset:end],
			Stride: stride,
			Width:  width,
			Height: height,
		}
		conn.Register(id, &bufferResource{buf: buf, objID: id})
		return nil
	case shmPoolDestroy:
		return nil
	case shmPoolResize:
		size, err := args.Int32()
		if err != nil {
			return err
		}
		data, err := growSHMPool(r.data, int(size))
		if err != nil {
			return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wl_shm_pool.resize: %v", err)
		}
		r.data = data
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wl_shm_pool: unknown opcode %d", opcode)
	}
}

func toSurfaceFormat(wireFormat uint32) surface.BufferFormat {
	switch wireFormat {
	case 0:
		return surface.FormatARGB8888
	case 1:
		return surface.FormatXRGB8888
	default:
		return surface.FormatUnknown
	}
}

// bufferResource is the bound wl_buffer object, covering both SHM- and
// DMA-BUF-backed buffers. Release is sent once the compositor's texture
// cache no longer needs the pixels (see SendRelease).
type bufferResource struct {
	buf   *surface.Buffer
	objID wire.ObjectID
}

func (r *bufferResource) Interface() string { return "wl_buffer" }

func (r *bufferResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case bufferDestroy:
		conn.Unregister(r.objID)
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wl_buffer: unknown opcode %d", opcode)
	}
}

// SendRelease emits wl_buffer.release if the buffer has been marked
// released by a surface commit replacing it (surface.Surface.Commit
// sets this when a newer buffer supersedes it). Called once per
// dispatch iteration by internal/server for every live buffer object.
func (r *bufferResource) SendRelease(conn Conn) {
	if r.buf != nil && r.buf.Released() {
		conn.SendEvent(r.objID, bufferEventRelease, nil, nil)
	}
}
