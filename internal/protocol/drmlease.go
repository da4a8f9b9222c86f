// drmlease.go implements wp_drm_lease_device_v1 at mechanism depth
// (§4.6, §5 Non-goals: individual protocol depth beyond mechanism): a
// VR headset or other direct-scanout consumer finds zero lease-eligible
// connectors advertised, since this compositor never owns more than one
// scanout path; a lease request object accepts its requests and does
// nothing with them, and no DRM master lease fd is ever handed off.
package protocol

import "github.com/wlcore/compositor/internal/wire"

// wp_drm_lease_device_v1 opcodes.
const drmLeaseDeviceCreateLeaseRequest wire.Opcode = 1

const (
	drmLeaseDeviceEventConnector wire.Opcode = 1
	drmLeaseDeviceEventDone      wire.Opcode = 2
)

// DrmLeaseDeviceGlobal advertises wp_drm_lease_device_v1.
type DrmLeaseDeviceGlobal struct{ name string }

// NewDrmLeaseDeviceGlobal creates the drm-lease-device global.
func NewDrmLeaseDeviceGlobal(name string) *DrmLeaseDeviceGlobal {
	return &DrmLeaseDeviceGlobal{name: name}
}

func (g *DrmLeaseDeviceGlobal) Interface() string { return "wp_drm_lease_device_v1" }
func (g *DrmLeaseDeviceGlobal) Version() uint32   { return 1 }
func (g *DrmLeaseDeviceGlobal) Name() string      { return g.name }

func (g *DrmLeaseDeviceGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error {
	conn.Register(id, &drmLeaseDeviceResource{objID: id})
	// No connectors are offered for lease: every output stays owned by
	// the compositor's own scanout path. done with zero connectors tells
	// a well-behaved client there is nothing to request.
	conn.SendEvent(id, drmLeaseDeviceEventDone, nil, nil)
	return nil
}

type drmLeaseDeviceResource struct{ objID wire.ObjectID }

func (r *drmLeaseDeviceResource) Interface() string { return "wp_drm_lease_device_v1" }

func (r *drmLeaseDeviceResource) Dispatch(conn Conn, opcode wire.Opcode, args *wire.Decoder) error {
	if opcode != drmLeaseDeviceCreateLeaseRequest {
		return NewError(r.objID, wire.DisplayErrorInvalidMethod, "wp_drm_lease_device_v1: unknown opcode %d", opcode)
	}
	id, err := args.NewID()
	if err != nil {
		return err
	}
	conn.Register(id, &noopResource{iface: "wp_drm_lease_request_v1"})
	return nil
}
