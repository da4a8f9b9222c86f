// selection.go implements clipboard and drag-and-drop at the mechanism
// level described in §4.6's "Input extras" category: object lifecycle
// only. Requests are parsed and accepted, but no selection is stored,
// no data offers are created or relayed, and a drag has no target.
package protocol

import "github.com/wlcore/compositor/internal/wire"

// wl_data_device_manager opcodes.
const (
	dataDeviceManagerCreateDataSource wire.Opcode = 0
	dataDeviceManagerGetDataDevice    wire.Opcode = 1
)

// wl_data_source opcodes.
const (
	dataSourceOffer     wire.Opcode = 0
	dataSourceDestroy   wire.Opcode = 1
	dataSourceSetActions wire.Opcode = 2
)

const (
	dataSourceEventTarget         wire.Opcode = 0
	dataSourceEventSend           wire.Opcode = 1
	dataSourceEventCancelled      wire.Opcode = 2
	dataSourceEventDndDropPerformed wire.Opcode = 3
	dataSourceEventDndFinished    wire.Opcode = 4
	dataSourceEventAction         wire.Opcode = 5
)

// wl_data_device opcodes.
const (
	dataDeviceStartDrag    wire.Opcode = 0
	dataDeviceSetSelection wire.Opcode = 1
	dataDeviceRelease      wire.Opcode = 2
)

const (
	dataDeviceEventDataOffer wire.Opcode = 0
	dataDeviceEventSelection wire.Opcode = 5
)

// wl_data_offer opcodes.
const (
	dataOfferAccept        wire.Opcode = 0
	dataOfferReceive       wire.Opcode = 1
	dataOfferDestroy       wire.Opcode = 2
	dataOfferFinish        wire.Opcode = 3
	dataOfferSetActions    wire.Opcode = 4
)

const dataOfferEventOffer wire.Opcode = 0

// DataDeviceManagerGlobal advertises wl_data_device_manager: clipboard
// and drag-and-drop share one data-source/offer object model, differing
// only in which event (set_selection vs start_drag) introduces the
// offer to a peer.
type DataDeviceManagerGlobal struct{ name string }

// NewDataDeviceManagerGlobal creates the data-device-manager global.
func NewDataDeviceManagerGlobal(name string) *DataDeviceManagerGlobal {
	return &DataDeviceManagerGlobal{name: name}
}

func (g *DataDeviceManagerGlobal) Interface() string { return "wl_data_device_manager" }
func (g *DataDeviceManagerGlobal) Version() uint32   { return 3 }
func (g *DataDeviceManagerGlobal) Name() string      { return g.name }

func (g *DataDeviceManagerGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &dataDeviceManagerResource{objID: id})
	return nil
}

type dataDeviceManagerResource struct{ objID wire.ObjectID }

func (r *dataDeviceManagerResource) Interface() string { return "wl_data_device_manager" }

func (r *dataDeviceManagerResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case dataDeviceManagerCreateDataSource:
		id, err := args.NewID()
		if err != nil {
			return err
		}
		conn.Register(id, &dataSourceResource{objID: id})
		return nil
	case dataDeviceManagerGetDataDevice:
		id, err := args.NewID()
		if err != nil {
			return err
		}
		if _, err := args.Object(); err != nil { // seat
			return err
		}
		conn.Register(id, &dataDeviceResource{objID: id})
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wl_data_device_manager: unknown opcode %d", opcode)
	}
}

type dataSourceResource struct {
	objID   wire.ObjectID
	mimes   []string
	actions uint32
}

func (r *dataSourceResource) Interface() string { return "wl_data_source" }

func (r *dataSourceResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case dataSourceOffer:
		mime, err := args.String()
		if err != nil {
			return err
		}
		r.mimes = append(r.mimes, mime)
		return nil
	case dataSourceDestroy:
		return nil
	case dataSourceSetActions:
		actions, err := args.Uint32()
		if err != nil {
			return err
		}
		r.actions = actions
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wl_data_source: unknown opcode %d", opcode)
	}
}

// dataDeviceResource is a client's wl_data_device. It parses
// set_selection and start_drag and discards their arguments; it sends no
// selection, offer or drag events to the client.
type dataDeviceResource struct {
	objID wire.ObjectID
}

func (r *dataDeviceResource) Interface() string { return "wl_data_device" }

func (r *dataDeviceResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case dataDeviceStartDrag:
		if _, err := args.Object(); err != nil { // source (nilable)
			return err
		}
		if _, err := args.Object(); err != nil { // origin surface
			return err
		}
		if _, err := args.Object(); err != nil { // icon surface (nilable)
			return err
		}
		_, err := args.Uint32() // serial
		return err
	case dataDeviceSetSelection:
		if _, err := args.Object(); err != nil { // source (nilable)
			return err
		}
		_, err := args.Uint32() // serial
		return err
	case dataDeviceRelease:
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wl_data_device: unknown opcode %d", opcode)
	}
}

type dataOfferResource struct {
	objID   wire.ObjectID
	source  *dataSourceResource
	actions uint32
}

func (r *dataOfferResource) Interface() string { return "wl_data_offer" }

func (r *dataOfferResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case dataOfferAccept:
		if _, err := args.Uint32(); err != nil { // serial
			return err
		}
		_, err := args.String() // mime type, nilable
		return err
	case dataOfferReceive:
		mime, err := args.String()
		if err != nil {
			return err
		}
		fd, err := args.FD()
		if err != nil {
			return err
		}
		_ = mime
		_ = fd
		return nil
	case dataOfferDestroy:
		return nil
	case dataOfferFinish:
		return nil
	case dataOfferSetActions:
		if _, err := args.Uint32(); err != nil { // actions
			return err
		}
		_, err := args.Uint32() // preferred action
		return err
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wl_data_offer: unknown opcode %d", opcode)
	}
}

// zwp_primary_selection_device_manager_v1: same shape as wl_data_device,
// restricted to the primary (middle-click paste) selection, with no
// drag-and-drop support.
const (
	primarySelectionManagerCreateSource wire.Opcode = 0
	primarySelectionManagerGetDevice    wire.Opcode = 1
)

// PrimarySelectionManagerGlobal advertises
// zwp_primary_selection_device_manager_v1.
type PrimarySelectionManagerGlobal struct{ name string }

// NewPrimarySelectionManagerGlobal creates the primary-selection global.
func NewPrimarySelectionManagerGlobal(name string) *PrimarySelectionManagerGlobal {
	return &PrimarySelectionManagerGlobal{name: name}
}

func (g *PrimarySelectionManagerGlobal) Interface() string {
	return "zwp_primary_selection_device_manager_v1"
}
func (g *PrimarySelectionManagerGlobal) Version() uint32 { return 1 }
func (g *PrimarySelectionManagerGlobal) Name() string    { return g.name }

func (g *PrimarySelectionManagerGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &primarySelectionManagerResource{objID: id})
	return nil
}

type primarySelectionManagerResource struct{ objID wire.ObjectID }

func (r *primarySelectionManagerResource) Interface() string {
	return "zwp_primary_selection_device_manager_v1"
}

func (r *primarySelectionManagerResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case primarySelectionManagerCreateSource:
		id, err := args.NewID()
		if err != nil {
			return err
		}
		conn.Register(id, &noopResource{iface: "zwp_primary_selection_source_v1"})
		return nil
	case primarySelectionManagerGetDevice:
		id, err := args.NewID()
		if err != nil {
			return err
		}
		if _, err := args.Object(); err != nil { // seat
			return err
		}
		conn.Register(id, &noopResource{iface: "zwp_primary_selection_device_v1"})
		return nil
	default:
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "zwp_primary_selection_device_manager_v1: unknown opcode %d", opcode)
	}
}
