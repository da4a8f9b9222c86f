package protocol

import (
	"github.com/wlcore/compositor/internal/layout"
	"github.com/wlcore/compositor/internal/surface"
	"github.com/wlcore/compositor/internal/wire"
)

// ext_session_lock_manager_v1 opcodes.
const (
	lockManagerDestroy wire.Opcode = 0
	lockManagerLock    wire.Opcode = 1
)

// ext_session_lock_v1 opcodes.
const (
	lockGetLockSurface wire.Opcode = 0
	lockUnlockAndDestroy wire.Opcode = 1
	lockDestroy          wire.Opcode = 2
)

const (
	lockEventLocked   wire.Opcode = 0
	lockEventFinished wire.Opcode = 1
)

// ext_session_lock_surface_v1 opcodes.
const (
	lockSurfaceAckConfigure wire.Opcode = 0
	lockSurfaceDestroy      wire.Opcode = 1
)

const lockSurfaceEventConfigure wire.Opcode = 0

// SessionLockManagerGlobal advertises ext_session_lock_manager_v1. Per
// §4.6, at most one lock may be active at a time: a second lock request
// while already locked is refused with finished rather than queued.
type SessionLockManagerGlobal struct{ name string }

// NewSessionLockManagerGlobal creates the session-lock global.
func NewSessionLockManagerGlobal(name string) *SessionLockManagerGlobal {
	return &SessionLockManagerGlobal{name: name}
}

func (g *SessionLockManagerGlobal) Interface() string { return "ext_session_lock_manager_v1" }
func (g *SessionLockManagerGlobal) Version() uint32   { return 1 }
func (g *SessionLockManagerGlobal) Name() string      { return g.name }

func (g *SessionLockManagerGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &lockManagerResource{objID: id})
	return nil
}

type lockManagerResource struct{ objID wire.ObjectID }

func (r *lockManagerResource) Interface() string { return "ext_session_lock_manager_v1" }

func (r *lockManagerResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case lockManagerDestroy:
		return nil
	case lockManagerLock:
		id, err := args.NewID()
		if err != nil {
			return err
		}
		lr := &lockResource{objID: id}
		conn.Register(id, lr)
		c := conn.Compositor()
		c.mu.Lock()
		alreadyLocked := c.LockState != SessionUnlocked
		if !alreadyLocked {
			c.LockState = SessionLocked
		}
		c.mu.Unlock()
		if alreadyLocked {
			conn.SendEvent(id, lockEventFinished, nil, nil)
			return nil
		}
		lr.locked = true
		conn.SendEvent(id, lockEventLocked, nil, nil)
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "ext_session_lock_manager_v1: unknown opcode %d", opcode)
	}
}

type lockResource struct {
	objID  wire.ObjectID
	locked bool
}

func (r *lockResource) Interface() string { return "ext_session_lock_v1" }

func (r *lockResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case lockGetLockSurface:
		id, err := args.NewID()
		if err != nil {
			return err
		}
		surfID, err := args.Object()
		if err != nil {
			return err
		}
		outputID, err := args.Object()
		if err != nil {
			return err
		}
		sres, ok := conn.Lookup(surfID).(*SurfaceResource)
		if !ok {
			return NewError(id, wire.DisplayErrorInvalidObject, "get_lock_surface: %d is not a wl_surface", surfID)
		}
		if err := sres.Surface.AssignRole(surface.RoleLock); err != nil {
			return NewError(id, wire.DisplayErrorInvalidObject, "%v", err)
		}
		ls := &lockSurfaceResource{objID: id, surface: sres, output: layout.OutputID(outputID), lock: r}
		sres.OnCommit = ls.onSurfaceCommit
		conn.Register(id, ls)
		ls.sendConfigure(conn)
		return nil
	case lockUnlockAndDestroy:
		c := conn.Compositor()
		c.mu.Lock()
		c.LockState = SessionUnlocked
		c.LockSurfaces = make(map[layout.OutputID]surface.ID)
		c.mu.Unlock()
		return nil
	case lockDestroy:
		// Destroying the lock object without unlock_and_destroy leaves
		// the session locked; per §9(c) an abandoned lock does not
		// restore normal content.
		if r.locked {
			c := conn.Compositor()
			c.mu.Lock()
			if c.LockState == SessionLocked {
				c.LockState = SessionLockedOrphaned
			}
			c.mu.Unlock()
		}
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "ext_session_lock_v1: unknown opcode %d", opcode)
	}
}

type lockSurfaceResource struct {
	objID       wire.ObjectID
	surface     *SurfaceResource
	output      layout.OutputID
	lock        *lockResource
	sentSerials []uint32
	everAcked   bool
}

func (r *lockSurfaceResource) Interface() string { return "ext_session_lock_surface_v1" }

func (r *lockSurfaceResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case lockSurfaceAckConfigure:
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
	case lockSurfaceDestroy:
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "ext_session_lock_surface_v1: unknown opcode %d", opcode)
	}
}

func (r *lockSurfaceResource) sendConfigure(conn Conn) {
	c := conn.Compositor()
	c.mu.Lock()
	out, ok := c.Outputs[r.output]
	c.mu.Unlock()
	var w, h int32
	if ok {
		w, h = out.Width, out.Height
	}
	serial := conn.NextSerial()
	r.sentSerials = append(r.sentSerials, serial)
	e := wire.NewEncoder(12)
	e.PutUint32(serial)
	e.PutUint32(uint32(w))
	e.PutUint32(uint32(h))
	conn.SendEvent(r.objID, lockSurfaceEventConfigure, e.Bytes(), nil)
}

func (r *lockSurfaceResource) onSurfaceCommit(conn Conn, result surface.CommitResult) {
	if !r.everAcked || result.Buffer == nil {
		return
	}
	c := conn.Compositor()
	c.mu.Lock()
	c.LockSurfaces[r.output] = r.surface.Surface.ID
	c.mu.Unlock()
}
