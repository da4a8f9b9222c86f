// input_extra.go covers the remaining input-extension protocols named
// in §4.6's "Input extras" category at mechanism depth: object
// lifecycle and the minimum request handling to not protocol-error a
// well-behaved client, without wiring compositor-side behavior beyond
// what internal/server's basic pointer/keyboard dispatch already does.
package protocol

import "github.com/wlcore/compositor/internal/wire"

// zwp_relative_pointer_manager_v1 opcodes.
const relativePointerManagerGetRelativePointer wire.Opcode = 1

// RelativePointerManagerGlobal advertises zwp_relative_pointer_manager_v1.
type RelativePointerManagerGlobal struct{ name string }

func NewRelativePointerManagerGlobal(name string) *RelativePointerManagerGlobal {
	return &RelativePointerManagerGlobal{name: name}
}

func (g *RelativePointerManagerGlobal) Interface() string { return "zwp_relative_pointer_manager_v1" }
func (g *RelativePointerManagerGlobal) Version() uint32   { return 1 }
func (g *RelativePointerManagerGlobal) Name() string      { return g.name }

func (g *RelativePointerManagerGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &simpleManagerResource{objID: id, iface: g.Interface(), childIface: "zwp_relative_pointer_v1"})
	return nil
}

// zwp_pointer_constraints_v1 opcodes.
const (
	pointerConstraintsLockPointer   wire.Opcode = 1
	pointerConstraintsConfinePointer wire.Opcode = 2
)

// PointerConstraintsGlobal advertises zwp_pointer_constraints_v1: lock
// and confine both bind a region-scoped constraint object to a surface;
// neither is enforced against pointer motion beyond existing at the
// mechanism level.
type PointerConstraintsGlobal struct{ name string }

func NewPointerConstraintsGlobal(name string) *PointerConstraintsGlobal {
	return &PointerConstraintsGlobal{name: name}
}

func (g *PointerConstraintsGlobal) Interface() string { return "zwp_pointer_constraints_v1" }
func (g *PointerConstraintsGlobal) Version() uint32   { return 1 }
func (g *PointerConstraintsGlobal) Name() string      { return g.name }

func (g *PointerConstraintsGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &pointerConstraintsResource{objID: id})
	return nil
}

type pointerConstraintsResource struct{ objID wire.ObjectID }

func (r *pointerConstraintsResource) Interface() string { return "zwp_pointer_constraints_v1" }

func (r *pointerConstraintsResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case pointerConstraintsLockPointer, pointerConstraintsConfinePointer:
		id, err := args.NewID()
		if err != nil {
			return err
		}
		if _, err := args.Object(); err != nil { // surface
			return err
		}
		if _, err := args.Object(); err != nil { // pointer
			return err
		}
		if _, err := args.Object(); err != nil { // region, nilable
			return err
		}
		if _, err := args.Uint32(); err != nil { // lifetime
			return err
		}
		iface := "zwp_locked_pointer_v1"
		if opcode == pointerConstraintsConfinePointer {
			iface = "zwp_confined_pointer_v1"
		}
		conn.Register(id, &noopResource{iface: iface})
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "zwp_pointer_constraints_v1: unknown opcode %d", opcode)
	}
}

// zwp_pointer_gestures_v1 opcodes.
const (
	pointerGesturesGetSwipeGesture wire.Opcode = 1
	pointerGesturesGetPinchGesture wire.Opcode = 2
	pointerGesturesGetHoldGesture  wire.Opcode = 3
)

// PointerGesturesGlobal advertises zwp_pointer_gestures_v1: touchpad
// swipe/pinch/hold recognition is left to the client libinput stack
// feeding raw pointer events; the compositor never synthesizes gesture
// events itself, so these child objects exist but never fire.
type PointerGesturesGlobal struct{ name string }

func NewPointerGesturesGlobal(name string) *PointerGesturesGlobal {
	return &PointerGesturesGlobal{name: name}
}

func (g *PointerGesturesGlobal) Interface() string { return "zwp_pointer_gestures_v1" }
func (g *PointerGesturesGlobal) Version() uint32   { return 3 }
func (g *PointerGesturesGlobal) Name() string      { return g.name }

func (g *PointerGesturesGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &pointerGesturesResource{objID: id})
	return nil
}

type pointerGesturesResource struct{ objID wire.ObjectID }

func (r *pointerGesturesResource) Interface() string { return "zwp_pointer_gestures_v1" }

func (r *pointerGesturesResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	id, err := args.NewID()
	if err != nil {
		return err
	}
	if _, err := args.Object(); err != nil { // pointer
		return err
	}
	var iface string
	switch opcode {
	case pointerGesturesGetSwipeGesture:
		iface = "zwp_pointer_gesture_swipe_v1"
	case pointerGesturesGetPinchGesture:
		iface = "zwp_pointer_gesture_pinch_v1"
	case pointerGesturesGetHoldGesture:
		iface = "zwp_pointer_gesture_hold_v1"
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "zwp_pointer_gestures_v1: unknown opcode %d", opcode)
	}
	conn.Register(id, &noopResource{iface: iface})
	return nil
}

// zwp_tablet_manager_v2 opcodes.
const tabletManagerGetTabletSeat wire.Opcode = 1

// TabletManagerGlobal advertises zwp_tablet_manager_v2. Tablet tool and
// pad events are out of scope (§5 Non-goals: individual protocol depth
// beyond mechanism); binding succeeds but no tablet/tool/pad objects are
// ever advertised on the resulting tablet_seat.
type TabletManagerGlobal struct{ name string }

func NewTabletManagerGlobal(name string) *TabletManagerGlobal {
	return &TabletManagerGlobal{name: name}
}

func (g *TabletManagerGlobal) Interface() string { return "zwp_tablet_manager_v2" }
func (g *TabletManagerGlobal) Version() uint32   { return 1 }
func (g *TabletManagerGlobal) Name() string      { return g.name }

func (g *TabletManagerGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &simpleManagerResource{objID: id, iface: g.Interface(), childIface: "zwp_tablet_seat_v2"})
	return nil
}

// zwp_virtual_keyboard_manager_v1 opcodes.
const virtualKeyboardManagerCreateVirtualKeyboard wire.Opcode = 0

// VirtualKeyboardManagerGlobal advertises
// zwp_virtual_keyboard_manager_v1, letting a privileged client (an
// on-screen keyboard) synthesize key events. The virtual device accepts
// its keymap and key requests and ignores them; no key events are
// injected.
type VirtualKeyboardManagerGlobal struct{ name string }

func NewVirtualKeyboardManagerGlobal(name string) *VirtualKeyboardManagerGlobal {
	return &VirtualKeyboardManagerGlobal{name: name}
}

func (g *VirtualKeyboardManagerGlobal) Interface() string {
	return "zwp_virtual_keyboard_manager_v1"
}
func (g *VirtualKeyboardManagerGlobal) Version() uint32 { return 1 }
func (g *VirtualKeyboardManagerGlobal) Name() string    { return g.name }

func (g *VirtualKeyboardManagerGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &virtualKeyboardManagerResource{objID: id})
	return nil
}

type virtualKeyboardManagerResource struct{ objID wire.ObjectID }

func (r *virtualKeyboardManagerResource) Interface() string {
	return "zwp_virtual_keyboard_manager_v1"
}

func (r *virtualKeyboardManagerResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	if opcode != virtualKeyboardManagerCreateVirtualKeyboard {
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "zwp_virtual_keyboard_manager_v1: unknown opcode %d", opcode)
	}
	if _, err := args.Object(); err != nil { // seat
		return err
	}
	id, err := args.NewID()
	if err != nil {
		return err
	}
	conn.Register(id, &noopResource{iface: "zwp_virtual_keyboard_v1"})
	return nil
}

// zwp_text_input_manager_v3 opcodes.
const textInputManagerGetTextInput wire.Opcode = 0

// TextInputManagerGlobal advertises zwp_text_input_manager_v3 for IME
// composition. Actual pre-edit/commit relaying to an input-method
// client is mechanism-only here; a full input-method-v2 bridge is out
// of scope per §5 Non-goals.
type TextInputManagerGlobal struct{ name string }

func NewTextInputManagerGlobal(name string) *TextInputManagerGlobal {
	return &TextInputManagerGlobal{name: name}
}

func (g *TextInputManagerGlobal) Interface() string { return "zwp_text_input_manager_v3" }
func (g *TextInputManagerGlobal) Version() uint32   { return 1 }
func (g *TextInputManagerGlobal) Name() string      { return g.name }

func (g *TextInputManagerGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &simpleManagerResource{objID: id, iface: g.Interface(), childIface: "zwp_text_input_v3"})
	return nil
}

// simpleManagerResource answers get_* style single-request managers by
// registering a no-op child object, for protocol families whose
// interesting behavior (tablet tool events, relative motion deltas,
// text-input pre-edit) is out of scope at mechanism depth but whose
// object lifecycle must still be honored so clients don't protocol-error
// on bind.
type simpleManagerResource struct {
	objID      wire.ObjectID
	iface      string
	childIface string
}

func (r *simpleManagerResource) Interface() string { return r.iface }

func (r *simpleManagerResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	id, err := args.NewID()
	if err != nil {
		return err
	}
	// Remaining arguments (seat/surface object refs) are consumed
	// generically: every manager in this file takes either zero or one
	// trailing object argument after new_id, which NewID's caller has
	// already positioned past.
	for args.HasMore() {
		if _, err := args.Object(); err != nil {
			break
		}
	}
	conn.Register(id, &noopResource{iface: r.childIface})
	return nil
}
