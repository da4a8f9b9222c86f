package protocol

import (
	"github.com/wlcore/compositor/internal/surface"
	"github.com/wlcore/compositor/internal/wire"
)

// wp_security_context_manager_v1 opcodes.
const securityContextManagerCreateListener wire.Opcode = 0

// wp_security_context_v1 opcodes.
const (
	securityContextSetSandboxEngine wire.Opcode = 0
	securityContextSetAppID         wire.Opcode = 1
	securityContextSetInstanceID    wire.Opcode = 2
	securityContextCommit           wire.Opcode = 3
)

// SecurityContextManagerGlobal advertises
// wp_security_context_manager_v1: a sandbox supervisor (e.g. an
// xdg-desktop-portal) creates a security context before handing the
// listening socket fd to a sandboxed client, restricting which globals
// that connection may bind per Compositor.RestrictedClients.
type SecurityContextManagerGlobal struct{ name string }

// NewSecurityContextManagerGlobal creates the security-context global.
func NewSecurityContextManagerGlobal(name string) *SecurityContextManagerGlobal {
	return &SecurityContextManagerGlobal{name: name}
}

func (g *SecurityContextManagerGlobal) Interface() string {
	return "wp_security_context_manager_v1"
}
func (g *SecurityContextManagerGlobal) Version() uint32 { return 1 }
func (g *SecurityContextManagerGlobal) Name() string    { return g.name }

func (g *SecurityContextManagerGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &securityContextManagerResource{objID: id})
	return nil
}

type securityContextManagerResource struct{ objID wire.ObjectID }

func (r *securityContextManagerResource) Interface() string {
	return "wp_security_context_manager_v1"
}

func (r *securityContextManagerResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	if opcode != securityContextManagerCreateListener {
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wp_security_context_manager_v1: unknown opcode %d", opcode)
	}
	id, err := args.NewID()
	if err != nil {
		return err
	}
	if _, err := args.FD(); err != nil { // listen_fd
		return err
	}
	if _, err := args.FD(); err != nil { // close_fd
		return err
	}
	conn.Register(id, &securityContextResource{objID: id, clientID: conn.ClientID()})
	return nil
}

type securityContextResource struct {
	objID    wire.ObjectID
	clientID uint32
	appID    string
	engine   string
	instance string
	done     bool
}

func (r *securityContextResource) Interface() string { return "wp_security_context_v1" }

func (r *securityContextResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case securityContextSetSandboxEngine:
		v, err := args.String()
		if err != nil {
			return err
		}
		r.engine = v
		return nil
	case securityContextSetAppID:
		v, err := args.String()
		if err != nil {
			return err
		}
		r.appID = v
		return nil
	case securityContextSetInstanceID:
		v, err := args.String()
		if err != nil {
			return err
		}
		r.instance = v
		return nil
	case securityContextCommit:
		if r.done {
			return NewError(r.objID, wire.DisplayErrorInvalidObject, "wp_security_context_v1: already committed")
		}
		r.done = true
		conn.Compositor().RestrictToCore(r.clientID)
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wp_security_context_v1: unknown opcode %d", opcode)
	}
}

// zwp_keyboard_shortcuts_inhibit_manager_v1 opcodes.
const keyboardShortcutsInhibitManagerInhibitShortcuts wire.Opcode = 0

// KeyboardShortcutsInhibitManagerGlobal advertises
// zwp_keyboard_shortcuts_inhibit_manager_v1, letting a fullscreen app
// (a remote-desktop client, a game) request that compositor-reserved
// shortcuts pass through instead of being intercepted. Inhibitor
// objects are created on request; nothing in internal/server consults
// them.
type KeyboardShortcutsInhibitManagerGlobal struct{ name string }

// NewKeyboardShortcutsInhibitManagerGlobal creates the global.
func NewKeyboardShortcutsInhibitManagerGlobal(name string) *KeyboardShortcutsInhibitManagerGlobal {
	return &KeyboardShortcutsInhibitManagerGlobal{name: name}
}

func (g *KeyboardShortcutsInhibitManagerGlobal) Interface() string {
	return "zwp_keyboard_shortcuts_inhibit_manager_v1"
}
func (g *KeyboardShortcutsInhibitManagerGlobal) Version() uint32 { return 1 }
func (g *KeyboardShortcutsInhibitManagerGlobal) Name() string    { return g.name }

func (g *KeyboardShortcutsInhibitManagerGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &shortcutsInhibitManagerResource{objID: id})
	return nil
}

type shortcutsInhibitManagerResource struct{ objID wire.ObjectID }

func (r *shortcutsInhibitManagerResource) Interface() string {
	return "zwp_keyboard_shortcuts_inhibit_manager_v1"
}

func (r *shortcutsInhibitManagerResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	if opcode != keyboardShortcutsInhibitManagerInhibitShortcuts {
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "zwp_keyboard_shortcuts_inhibit_manager_v1: unknown opcode %d", opcode)
	}
	id, err := args.NewID()
	if err != nil {
		return err
	}
	surfID, err := args.Object()
	if err != nil {
		return err
	}
	if _, err := args.Object(); err != nil { // seat
		return err
	}
	sres, ok := conn.Lookup(surfID).(*SurfaceResource)
	if !ok {
		return NewError(id, wire.DisplayErrorInvalidObject, "inhibit_shortcuts: %d is not a wl_surface", surfID)
	}
	conn.Register(id, &shortcutsInhibitorResource{objID: id, surface: sres.Surface.ID})
	return nil
}

type shortcutsInhibitorResource struct {
	objID   wire.ObjectID
	surface surface.ID
}

func (r *shortcutsInhibitorResource) Interface() string { return "zwp_keyboard_shortcuts_inhibitor_v1" }

func (r *shortcutsInhibitorResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	return nil // destroy
}
