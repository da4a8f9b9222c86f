package protocol

import "github.com/wlcore/compositor/internal/wire"

// zxdg_decoration_manager_v1 opcodes.
const (
	decorationManagerDestroy              wire.Opcode = 0
	decorationManagerGetToplevelDecoration wire.Opcode = 1
)

// zxdg_toplevel_decoration_v1 opcodes.
const (
	toplevelDecorationDestroy   wire.Opcode = 0
	toplevelDecorationSetMode   wire.Opcode = 1
	toplevelDecorationUnsetMode wire.Opcode = 2
)

const toplevelDecorationEventConfigure wire.Opcode = 0

// Decoration modes, matching zxdg_toplevel_decoration_v1.mode.
const (
	DecorationModeClientSide uint32 = 1
	DecorationModeServerSide uint32 = 2
)

// DecorationGlobal advertises zxdg_decoration_manager_v1. Per §4.6, the
// default is server-side; a client requesting client-side is honored,
// but any mode the compositor doesn't recognize falls back to
// server-side with a warning rather than rejecting the request.
type DecorationGlobal struct{ name string }

// NewDecorationGlobal creates the xdg-decoration global.
func NewDecorationGlobal(name string) *DecorationGlobal { return &DecorationGlobal{name: name} }

func (g *DecorationGlobal) Interface() string { return "zxdg_decoration_manager_v1" }
func (g *DecorationGlobal) Version() uint32   { return 1 }
func (g *DecorationGlobal) Name() string      { return g.name }

func (g *DecorationGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &decorationManagerResource{objID: id})
	return nil
}

type decorationManagerResource struct{ objID wire.ObjectID }

func (r *decorationManagerResource) Interface() string { return "zxdg_decoration_manager_v1" }

func (r *decorationManagerResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case decorationManagerDestroy:
		return nil
	case decorationManagerGetToplevelDecoration:
		id, err := args.NewID()
		if err != nil {
			return err
		}
		toplevelID, err := args.Object()
		if err != nil {
			return err
		}
		t, ok := conn.Lookup(toplevelID).(*toplevelResource)
		if !ok {
			return NewError(id, wire.DisplayErrorInvalidObject, "get_toplevel_decoration: %d is not an xdg_toplevel", toplevelID)
		}
		d := &toplevelDecorationResource{objID: id, toplevel: t, mode: DecorationModeServerSide}
		conn.Register(id, d)
		d.sendConfigure(conn)
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "zxdg_decoration_manager_v1: unknown opcode %d", opcode)
	}
}

type toplevelDecorationResource struct {
	objID    wire.ObjectID
	toplevel *toplevelResource
	mode     uint32
}

func (r *toplevelDecorationResource) Interface() string { return "zxdg_toplevel_decoration_v1" }

func (r *toplevelDecorationResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case toplevelDecorationDestroy:
		return nil
	case toplevelDecorationSetMode:
		mode, err := args.Uint32()
		if err != nil {
			return err
		}
		if mode != DecorationModeClientSide && mode != DecorationModeServerSide {
			conn.Compositor().Log.Warn().Uint32("mode", mode).Msg("xdg-decoration: unknown mode, using server-side")
			mode = DecorationModeServerSide
		}
		r.mode = mode
		r.sendConfigure(conn)
		return nil
	case toplevelDecorationUnsetMode:
		r.mode = DecorationModeServerSide
		r.sendConfigure(conn)
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "zxdg_toplevel_decoration_v1: unknown opcode %d", opcode)
	}
}

func (r *toplevelDecorationResource) sendConfigure(conn Conn) {
	e := wire.NewEncoder(4)
	e.PutUint32(r.mode)
	conn.SendEvent(r.objID, toplevelDecorationEventConfigure, e.Bytes(), nil)
}
