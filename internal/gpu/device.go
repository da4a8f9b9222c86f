package gpu

// Features represents optional GPU features an adapter may expose.
type Features struct {
	TextureCompressionBC bool
	Float32Filterable    bool
	BGRA8UnormStorage    bool
}

// Limits represents GPU resource limits relevant to compositing: texture
// dimensions (bounded by the largest output resolution) and the number
// of bind groups a draw call may reference (the surface pipeline only
// ever needs one, for its combined image+sampler).
type Limits struct {
	MaxTextureDimension2D uint32
	MaxBindGroups         uint32
	MaxVertexBuffers      uint32
	MaxBufferSize         uint64
}

// DefaultLimits returns conservative limits sufficient for any display
// up to 8K and a handful of bound resources per draw.
func DefaultLimits() Limits {
	return Limits{
		MaxTextureDimension2D: 8192,
		MaxBindGroups:         4,
		MaxVertexBuffers:      8,
		MaxBufferSize:         256 << 20,
	}
}

// AdapterInfo describes a physical GPU as reported by the backend.
type AdapterInfo struct {
	Name            string
	Vendor          string
	IsDiscrete      bool
	IsSoftware      bool
	Features        Features
	Limits          Limits
	handle          Adapter
	backend         Backend
}

// Handle returns the backend-specific adapter handle.
func (a *AdapterInfo) Handle() Adapter { return a.handle }

// DeviceInfo wraps a logical device created from an adapter.
type DeviceInfo struct {
	Label   string
	handle  Device
	backend Backend
	queue   Queue
}

// Handle returns the backend-specific device handle.
func (d *DeviceInfo) Handle() Device { return d.handle }

// Queue returns the device's graphics queue.
func (d *DeviceInfo) Queue() Queue { return d.queue }

// SelectAdapter reports whether the single adapter a Backend reported
// (most backends expose only the adapter the system picked) passes the
// preference filter; it enumerates nothing itself. Preferring discrete over
// integrated over software is applied at the instance.RequestAdapter
// call via AdapterOptions.PowerPreference; SelectAdapter exists for
// callers that need to reject a software adapter outright when the
// config demands "discrete".
func SelectAdapter(info AdapterInfo, preferDiscreteOnly bool) bool {
	if preferDiscreteOnly && !info.IsDiscrete {
		return false
	}
	return true
}
