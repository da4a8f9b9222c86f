package protocol

import "github.com/wlcore/compositor/internal/wire"

// zwp_idle_inhibit_manager_v1 opcodes.
const (
	idleInhibitManagerDestroy     wire.Opcode = 0
	idleInhibitManagerCreateInhibitor wire.Opcode = 1
)

// zwp_idle_inhibitor_v1 opcodes.
const idleInhibitorDestroy wire.Opcode = 0

// IdleInhibitManagerGlobal advertises zwp_idle_inhibit_manager_v1. Each
// live inhibitor bumps Seat.IdleInhibitors. Nothing reads that counter;
// internal/session runs no DPMS-off timer for it to suppress.
type IdleInhibitManagerGlobal struct{ name string }

// NewIdleInhibitManagerGlobal creates the idle-inhibit global.
func NewIdleInhibitManagerGlobal(name string) *IdleInhibitManagerGlobal {
	return &IdleInhibitManagerGlobal{name: name}
}

func (g *IdleInhibitManagerGlobal) Interface() string { return "zwp_idle_inhibit_manager_v1" }
func (g *IdleInhibitManagerGlobal) Version() uint32   { return 1 }
func (g *IdleInhibitManagerGlobal) Name() string      { return g.name }

func (g *IdleInhibitManagerGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &idleInhibitManagerResource{objID: id})
	return nil
}

type idleInhibitManagerResource struct{ objID wire.ObjectID }

func (r *idleInhibitManagerResource) Interface() string { return "zwp_idle_inhibit_manager_v1" }

func (r *idleInhibitManagerResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case idleInhibitManagerDestroy:
		return nil
	case idleInhibitManagerCreateInhibitor:
		id, err := args.NewID()
		if err != nil {
			return err
		}
		if _, err := args.Object(); err != nil { // surface
			return err
		}
		seat := conn.Compositor().Seat
		seat.mu.Lock()
		seat.IdleInhibitors++
		seat.mu.Unlock()
		conn.Register(id, &idleInhibitorResource{objID: id, seat: seat})
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "zwp_idle_inhibit_manager_v1: unknown opcode %d", opcode)
	}
}

type idleInhibitorResource struct {
	objID    wire.ObjectID
	seat     *Seat
	released bool
}

func (r *idleInhibitorResource) Interface() string { return "zwp_idle_inhibitor_v1" }

func (r *idleInhibitorResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	if opcode != idleInhibitorDestroy {
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "zwp_idle_inhibitor_v1: unknown opcode %d", opcode)
	}
	r.release()
	return nil
}

func (r *idleInhibitorResource) release() {
	if r.released {
		return
	}
	r.released = true
	r.seat.mu.Lock()
	r.seat.IdleInhibitors--
	r.seat.mu.Unlock()
}
