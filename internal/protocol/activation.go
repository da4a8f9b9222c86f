package protocol

import (
	"github.com/wlcore/compositor/internal/surface"
	"github.com/wlcore/compositor/internal/wire"
)

// xdg_activation_v1 opcodes.
const (
	activationDestroy          wire.Opcode = 0
	activationGetActivationToken wire.Opcode = 1
	activationActivate          wire.Opcode = 2
)

// xdg_activation_token_v1 opcodes.
const (
	tokenSetSerial   wire.Opcode = 0
	tokenSetAppID    wire.Opcode = 1
	tokenSetSurface  wire.Opcode = 2
	tokenCommit      wire.Opcode = 3
	tokenDestroy     wire.Opcode = 4
)

const tokenEventDone wire.Opcode = 0

// ActivationGlobal advertises xdg_activation_v1: a requesting client
// gets an opaque token, hands it to the surface it wants raised, and
// that surface's owner redeems it via activate. Per §4.6 the token is a
// capability, not a focus grant by itself — activate still goes through
// normal focus policy in internal/server.
type ActivationGlobal struct {
	name    string
	nextSeq uint64
}

// NewActivationGlobal creates the xdg-activation global.
func NewActivationGlobal(name string) *ActivationGlobal { return &ActivationGlobal{name: name} }

func (g *ActivationGlobal) Interface() string { return "xdg_activation_v1" }
func (g *ActivationGlobal) Version() uint32   { return 1 }
func (g *ActivationGlobal) Name() string      { return g.name }

func (g *ActivationGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &activationResource{objID: id, global: g})
	return nil
}

type activationResource struct {
	objID  wire.ObjectID
	global *ActivationGlobal
}

func (r *activationResource) Interface() string { return "xdg_activation_v1" }

func (r *activationResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case activationDestroy:
		return nil
	case activationGetActivationToken:
		id, err := args.NewID()
		if err != nil {
			return err
		}
		conn.Register(id, &tokenResource{objID: id, global: r.global, requester: conn.ClientID()})
		return nil
	case activationActivate:
		token, err := args.String()
		if err != nil {
			return err
		}
		surfID, err := args.Object()
		if err != nil {
			return err
		}
		sres, ok := conn.Lookup(surfID).(*SurfaceResource)
		if !ok {
			return NewError(r.objID, wire.DisplayErrorInvalidObject, "activate: %d is not a wl_surface", surfID)
		}
		conn.Compositor().RedeemActivationToken(token, sres.Surface.ID)
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "xdg_activation_v1: unknown opcode %d", opcode)
	}
}

type tokenResource struct {
	objID     wire.ObjectID
	global    *ActivationGlobal
	requester uint32

	serial  uint32
	appID   string
	surface *surface.ID
	done    bool
}

func (r *tokenResource) Interface() string { return "xdg_activation_token_v1" }

func (r *tokenResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case tokenSetSerial:
		serial, err := args.Uint32()
		if err != nil {
			return err
		}
		if _, err := args.Object(); err != nil { // seat
			return err
		}
		r.serial = serial
		return nil
	case tokenSetAppID:
		appID, err := args.String()
		if err != nil {
			return err
		}
		r.appID = appID
		return nil
	case tokenSetSurface:
		surfID, err := args.Object()
		if err != nil {
			return err
		}
		if sres, ok := conn.Lookup(surfID).(*SurfaceResource); ok {
			id := sres.Surface.ID
			r.surface = &id
		}
		return nil
	case tokenCommit:
		if r.done {
			return NewError(r.objID, wire.DisplayErrorInvalidObject, "xdg_activation_token_v1: already committed")
		}
		r.done = true
		tok := conn.Compositor().NewActivationToken()
		e := wire.NewEncoder(len(tok) + 4)
		e.PutString(tok)
		conn.SendEvent(r.objID, tokenEventDone, e.Bytes(), nil)
		return nil
	case tokenDestroy:
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "xdg_activation_token_v1: unknown opcode %d", opcode)
	}
}
