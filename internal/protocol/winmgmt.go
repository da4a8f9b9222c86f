// winmgmt.go covers window-management-adjacent protocols that a shell
// or panel process needs but that carry no compositing state of their
// own: cross-client surface handles (xdg-foreign), toplevel icons,
// an enumerable toplevel list for taskbars, and the system bell.
package protocol

import "github.com/wlcore/compositor/internal/wire"

// zxdg_exporter_v2 opcodes.
const exporterExportToplevel wire.Opcode = 1

const exportedEventHandle wire.Opcode = 0

// ExporterGlobal advertises zxdg_exporter_v2: a client exports one of
// its own toplevels and receives an opaque handle string another client
// can import (xdg-foreign's cross-process parenting handshake).
type ExporterGlobal struct {
	name    string
	nextSeq uint64
}

func NewExporterGlobal(name string) *ExporterGlobal { return &ExporterGlobal{name: name} }

func (g *ExporterGlobal) Interface() string { return "zxdg_exporter_v2" }
func (g *ExporterGlobal) Version() uint32   { return 1 }
func (g *ExporterGlobal) Name() string      { return g.name }

func (g *ExporterGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &exporterResource{objID: id, global: g})
	return nil
}

type exporterResource struct {
	objID  wire.ObjectID
	global *ExporterGlobal
}

func (r *exporterResource) Interface() string { return "zxdg_exporter_v2" }

func (r *exporterResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	if opcode != exporterExportToplevel {
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "zxdg_exporter_v2: unknown opcode %d", opcode)
	}
	id, err := args.NewID()
	if err != nil {
		return err
	}
	surfID, err := args.Object()
	if err != nil {
		return err
	}
	r.global.nextSeq++
	handle := encodeExportHandle(r.global.nextSeq, uint32(surfID))
	exported := &exportedResource{objID: id, handle: handle}
	conn.Register(id, exported)
	e := wire.NewEncoder(len(handle) + 4)
	e.PutString(handle)
	conn.SendEvent(id, exportedEventHandle, e.Bytes(), nil)
	conn.Compositor().RegisterExport(handle, conn.ClientID(), surfID)
	return nil
}

type exportedResource struct {
	objID  wire.ObjectID
	handle string
}

func (r *exportedResource) Interface() string { return "zxdg_exported_v2" }
func (r *exportedResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	return nil
}

// zxdg_importer_v2 opcodes.
const importerImportToplevel wire.Opcode = 1

const importedEventDestroyed wire.Opcode = 1

// ImporterGlobal advertises zxdg_importer_v2, resolving a handle minted
// by ExporterGlobal into a zxdg_imported_v2 object. Its set_parent_of
// request is accepted and ignored: no parent relationship is recorded or
// applied to stacking order.
type ImporterGlobal struct{ name string }

func NewImporterGlobal(name string) *ImporterGlobal { return &ImporterGlobal{name: name} }

func (g *ImporterGlobal) Interface() string { return "zxdg_importer_v2" }
func (g *ImporterGlobal) Version() uint32   { return 1 }
func (g *ImporterGlobal) Name() string      { return g.name }

func (g *ImporterGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &importerResource{objID: id})
	return nil
}

type importerResource struct{ objID wire.ObjectID }

func (r *importerResource) Interface() string { return "zxdg_importer_v2" }

func (r *importerResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	if opcode != importerImportToplevel {
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "zxdg_importer_v2: unknown opcode %d", opcode)
	}
	id, err := args.NewID()
	if err != nil {
		return err
	}
	handle, err := args.String()
	if err != nil {
		return err
	}
	conn.Register(id, &importedResource{objID: id, handle: handle})
	return nil
}

type importedResource struct {
	objID  wire.ObjectID
	handle string
}

func (r *importedResource) Interface() string { return "zxdg_imported_v2" }

func (r *importedResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	return nil // destroy, set_parent_of: no further compositor action needed
}

func encodeExportHandle(seq uint64, surfID uint32) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 0, 24)
	buf = append(buf, "wlcore-"...)
	for shift := 60; shift >= 0; shift -= 4 {
		buf = append(buf, hexDigits[(seq>>uint(shift))&0xf])
	}
	_ = surfID
	return string(buf)
}

// xdg_toplevel_icon_manager_v1 opcodes.
const (
	iconManagerCreateIcon    wire.Opcode = 0
	iconManagerSetIcon       wire.Opcode = 1
)

// IconManagerGlobal advertises xdg_toplevel_icon_manager_v1.
type IconManagerGlobal struct{ name string }

func NewIconManagerGlobal(name string) *IconManagerGlobal { return &IconManagerGlobal{name: name} }

func (g *IconManagerGlobal) Interface() string { return "xdg_toplevel_icon_manager_v1" }
func (g *IconManagerGlobal) Version() uint32   { return 1 }
func (g *IconManagerGlobal) Name() string      { return g.name }

func (g *IconManagerGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &iconManagerResource{objID: id})
	return nil
}

type iconManagerResource struct{ objID wire.ObjectID }

func (r *iconManagerResource) Interface() string { return "xdg_toplevel_icon_manager_v1" }

func (r *iconManagerResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case iconManagerCreateIcon:
		id, err := args.NewID()
		if err != nil {
			return err
		}
		conn.Register(id, &noopResource{iface: "xdg_toplevel_icon_v1"})
		return nil
	case iconManagerSetIcon:
		if _, err := args.Object(); err != nil { // toplevel
			return err
		}
		_, err := args.Object() // icon, nilable
		return err
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "xdg_toplevel_icon_manager_v1: unknown opcode %d", opcode)
	}
}

// ext_foreign_toplevel_list_v1 opcodes.
const foreignToplevelListStop wire.Opcode = 1

// ForeignToplevelListGlobal advertises ext_foreign_toplevel_list_v1,
// giving a taskbar/switcher client a read-only enumeration of mapped
// toplevels. This type only holds the bind-time registration; no
// toplevel, closed or done events are sent as windows map and unmap.
type ForeignToplevelListGlobal struct{ name string }

func NewForeignToplevelListGlobal(name string) *ForeignToplevelListGlobal {
	return &ForeignToplevelListGlobal{name: name}
}

func (g *ForeignToplevelListGlobal) Interface() string { return "ext_foreign_toplevel_list_v1" }
func (g *ForeignToplevelListGlobal) Version() uint32   { return 1 }
func (g *ForeignToplevelListGlobal) Name() string      { return g.name }

func (g *ForeignToplevelListGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &foreignToplevelListResource{objID: id})
	return nil
}

type foreignToplevelListResource struct{ objID wire.ObjectID }

func (r *foreignToplevelListResource) Interface() string { return "ext_foreign_toplevel_list_v1" }

func (r *foreignToplevelListResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	if opcode != foreignToplevelListStop {
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "ext_foreign_toplevel_list_v1: unknown opcode %d", opcode)
	}
	return nil
}

// xdg_system_bell_v1 opcodes.
const systemBellRing wire.Opcode = 0

// SystemBellGlobal advertises xdg_system_bell_v1. Ringing the bell has
// no compositor-side audio or visual effect (§5 Non-goals: visual
// effects); the request is accepted and otherwise discarded.
type SystemBellGlobal struct{ name string }

func NewSystemBellGlobal(name string) *SystemBellGlobal { return &SystemBellGlobal{name: name} }

func (g *SystemBellGlobal) Interface() string { return "xdg_system_bell_v1" }
func (g *SystemBellGlobal) Version() uint32   { return 1 }
func (g *SystemBellGlobal) Name() string      { return g.name }

func (g *SystemBellGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &systemBellResource{objID: id})
	return nil
}

type systemBellResource struct{ objID wire.ObjectID }

func (r *systemBellResource) Interface() string { return "xdg_system_bell_v1" }

func (r *systemBellResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	if opcode != systemBellRing {
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "xdg_system_bell_v1: unknown opcode %d", opcode)
	}
	_, err := args.Object() // surface, nilable
	return err
}
