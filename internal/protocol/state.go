package protocol

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wlcore/compositor/internal/gmath"
	"github.com/wlcore/compositor/internal/layout"
	"github.com/wlcore/compositor/internal/surface"
	"github.com/wlcore/compositor/internal/texture"
	"github.com/wlcore/compositor/internal/wire"
)

// Export records one xdg-foreign export: the client and wire object id
// of the exported toplevel's wl_surface, keyed by the opaque handle
// string handed to the importing client.
type Export struct {
	ClientID uint32
	Surface  wire.ObjectID
}

// Output is a logical display, bound to at most one swapchain once a
// backend claims it (internal/render owns the swapchain; this struct
// carries only the geometry and mode protocol managers advertise).
type Output struct {
	ID          layout.OutputID
	Name        string
	PhysicalMM  gmath.Vec2 // physical size in millimetres
	Position    gmath.Vec2 // position in the global coordinate space
	Width       int32
	Height      int32
	RefreshMHz  int32 // milli-Hz, matching wl_output.mode's refresh units
	Scale       int32
	Subpixel    int32
	Transform   int32
}

// Bounds returns the output's rectangle in the global coordinate space.
func (o *Output) Bounds() gmath.Rect {
	return gmath.NewRect(int32(o.Position.X), int32(o.Position.Y), o.Width, o.Height)
}

// PointerCapability/KeyboardCapability/TouchCapability are wl_seat
// capability bits.
const (
	PointerCapability  uint32 = 1
	KeyboardCapability uint32 = 2
	TouchCapability    uint32 = 4
)

// PopupGrab tracks one popup grab chain rooted at a toplevel. Per §4.6,
// nested popups must all belong to a single chain; input outside the
// topmost popup dismisses it, and dismissing the root dismisses the
// whole chain.
type PopupGrab struct {
	Seat     uint32
	Root     surface.ID
	Chain    []surface.ID // root-to-leaf order
}

// Seat is the aggregate input-capability state described in §3: exactly
// one keyboard focus and at most one pointer focus at a time.
type Seat struct {
	mu sync.Mutex

	Capabilities uint32

	PointerFocus  *surface.ID
	KeyboardFocus *surface.ID

	// CursorSurface is the surface (if any) the client has assigned the
	// RoleCursor role via wl_pointer.set_cursor, rendered as a final,
	// always-on-top pass at the last known pointer position.
	CursorSurface *surface.ID
	CursorHotspot gmath.Vec2
	PointerPos    gmath.Vec2

	Grab *PopupGrab

	// IdleInhibitors counts live idle-inhibit objects. Nothing reads it;
	// the session helper runs no DPMS-off timer.
	IdleInhibitors int
}

// SetPointerFocus updates the seat's pointer focus surface.
func (s *Seat) SetPointerFocus(id *surface.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PointerFocus = id
}

// SetKeyboardFocus updates the seat's keyboard focus surface.
func (s *Seat) SetKeyboardFocus(id *surface.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.KeyboardFocus = id
}

// BeginGrab establishes a new popup grab chain rooted at root.
func (s *Seat) BeginGrab(seatName uint32, root surface.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Grab = &PopupGrab{Seat: seatName, Root: root, Chain: []surface.ID{root}}
}

// ExtendGrab appends a child popup to the active chain. Returns false
// only if there is no active grab, which the caller treats as the
// "nested popup chain break" protocol error; the child's parent is not
// checked against the chain.
func (s *Seat) ExtendGrab(child surface.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Grab == nil {
		return false
	}
	s.Grab.Chain = append(s.Grab.Chain, child)
	return true
}

// DismissFrom removes id and everything above it (later in the chain)
// from the active grab, returning the dismissed ids leaf-first. An empty
// chain after dismissal clears the grab entirely.
func (s *Seat) DismissFrom(id surface.ID) []surface.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Grab == nil {
		return nil
	}
	idx := -1
	for i, c := range s.Grab.Chain {
		if c == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	dismissed := make([]surface.ID, 0, len(s.Grab.Chain)-idx)
	for i := len(s.Grab.Chain) - 1; i >= idx; i-- {
		dismissed = append(dismissed, s.Grab.Chain[i])
	}
	s.Grab.Chain = s.Grab.Chain[:idx]
	if len(s.Grab.Chain) == 0 {
		s.Grab = nil
	}
	return dismissed
}

// ActiveGrab returns the current popup grab chain, or nil.
func (s *Seat) ActiveGrab() *PopupGrab {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Grab
}

// SessionLockState tracks ext-session-lock-v1's state machine (§4.6).
type SessionLockState int

const (
	SessionUnlocked SessionLockState = iota
	SessionLocked
	// SessionLockedOrphaned is entered when the locking client destroys
	// its lock object without calling unlock_and_destroy. A locking
	// client that disconnects instead leaves the state at SessionLocked.
	// Either way the compositor stays locked, so normal content stays
	// hidden even though no client holds the lock object.
	SessionLockedOrphaned
)

// Compositor is the cross-client, process-wide state every protocol
// manager reads and mutates: surfaces, outputs, the seat, and the
// surface-to-texture bridge. internal/server constructs one Compositor
// and shares it across all client connections.
type Compositor struct {
	mu sync.Mutex

	nextSurfaceID uint32
	nextOutputID  uint32
	nextGlobalID  uint32

	Surfaces map[surface.ID]*surface.Surface
	Outputs  map[layout.OutputID]*Output
	Layout   *layout.Manager
	Textures *texture.Cache

	// Log is the component logger dispatch handlers use for non-fatal
	// warnings (e.g. a buffer import falling back to a placeholder
	// texture). Zero value is a no-op logger.
	Log zerolog.Logger

	Seat *Seat

	LockState SessionLockState
	// LockSurfaces maps an output id to the lock surface presented on
	// it while LockState != SessionUnlocked.
	LockSurfaces map[layout.OutputID]surface.ID

	// RestrictedClients blocks globals from a sandboxed client per the
	// security-context protocol; keyed by client id.
	RestrictedClients map[uint32]map[string]bool

	nextActivationToken uint64
	// pendingActivations maps an outstanding xdg-activation token to the
	// surface it grants activation to, once redeemed via activate.
	pendingActivations map[string]surface.ID
	// ActivationRequests records surfaces most recently granted
	// activation, for internal/server to raise and focus on its next
	// dispatch pass.
	ActivationRequests []surface.ID

	// Exports holds live xdg-foreign export handles.
	Exports map[string]Export

	// pendingCallbacks holds each surface's frame callbacks queued by its
	// most recent commit, keyed by surface id, until internal/server
	// dispatches them for the frame that actually draws that surface.
	pendingCallbacks map[surface.ID]pendingCallback
}

type pendingCallback struct {
	clientID uint32
	cbs      []surface.FrameCallback
}

// QueueFrameCallbacks records cbs as owed to clientID's connection once
// id's surface is next drawn. Called from the core wl_surface.commit
// handler for every commit, regardless of which role (if any) the
// surface has, since role-specific OnCommit hooks overwrite one another
// and cannot be relied on to forward callbacks themselves.
func (c *Compositor) QueueFrameCallbacks(id surface.ID, clientID uint32, cbs []surface.FrameCallback) {
	if len(cbs) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingCallbacks == nil {
		c.pendingCallbacks = make(map[surface.ID]pendingCallback)
	}
	existing := c.pendingCallbacks[id]
	existing.clientID = clientID
	existing.cbs = append(existing.cbs, cbs...)
	c.pendingCallbacks[id] = existing
}

// TakeFrameCallbacks removes and returns the callbacks queued for id, if
// any, along with the client id that owns them. Called once per drawn
// surface after a frame presents.
func (c *Compositor) TakeFrameCallbacks(id surface.ID) (uint32, []surface.FrameCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pendingCallbacks[id]
	if !ok {
		return 0, nil
	}
	delete(c.pendingCallbacks, id)
	return p.clientID, p.cbs
}

// RestrictToCore marks clientID as sandboxed: only the core interfaces
// a GUI toolkit cannot function without remain bindable, per the
// security-context protocol's intent of keeping a sandboxed process off
// privileged globals (layer-shell, session-lock, virtual-keyboard, ...).
func (c *Compositor) RestrictToCore(clientID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.RestrictedClients == nil {
		c.RestrictedClients = make(map[uint32]map[string]bool)
	}
	c.RestrictedClients[clientID] = map[string]bool{
		"wl_compositor": true, "wl_shm": true, "wl_seat": true, "wl_output": true,
		"xdg_wm_base": true, "zwp_linux_dmabuf_v1": true,
	}
}

// AllowedGlobal reports whether clientID may bind iface, honoring any
// security-context restriction placed on it.
func (c *Compositor) AllowedGlobal(clientID uint32, iface string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	allow, restricted := c.RestrictedClients[clientID]
	if !restricted {
		return true
	}
	return allow[iface]
}

// RegisterExport records an xdg-foreign export handle.
func (c *Compositor) RegisterExport(handle string, clientID uint32, surfID wire.ObjectID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Exports == nil {
		c.Exports = make(map[string]Export)
	}
	c.Exports[handle] = Export{ClientID: clientID, Surface: surfID}
}

// NewCompositor creates the shared compositor state with an empty
// surface table and no outputs bound yet.
func NewCompositor(textures *texture.Cache) *Compositor {
	return &Compositor{
		Surfaces:          make(map[surface.ID]*surface.Surface),
		Outputs:           make(map[layout.OutputID]*Output),
		Layout:            layout.NewManager(),
		Textures:          textures,
		Log:               zerolog.Nop(),
		Seat:              &Seat{Capabilities: PointerCapability | KeyboardCapability},
		LockSurfaces:      make(map[layout.OutputID]surface.ID),
		RestrictedClients: make(map[uint32]map[string]bool),
	}
}

// WithLogger sets the component logger used for dispatch warnings.
// internal/server calls this once after NewCompositor with its own
// "protocol" component logger.
func (c *Compositor) WithLogger(log zerolog.Logger) *Compositor {
	c.Log = log
	return c
}

// NewSurfaceID allocates the next process-wide surface id.
func (c *Compositor) NewSurfaceID() surface.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSurfaceID++
	return surface.ID(c.nextSurfaceID)
}

// NewGlobalName allocates the next wl_registry advertisement name.
func (c *Compositor) NewGlobalName() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextGlobalID++
	return c.nextGlobalID
}

// AddOutput registers a new logical output and creates its layout space.
func (c *Compositor) AddOutput(o *Output) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Outputs[o.ID] = o
	c.Layout.AddOutput(o.ID, o.Bounds())
}

// RemoveOutput tears down an output on disconnect/hot-unplug.
func (c *Compositor) RemoveOutput(id layout.OutputID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Outputs, id)
	c.Layout.RemoveOutput(id)
}

// PutSurface registers a newly-created surface.
func (c *Compositor) PutSurface(s *surface.Surface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Surfaces[s.ID] = s
}

// Surface looks up a surface by id.
func (c *Compositor) Surface(id surface.ID) (*surface.Surface, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.Surfaces[id]
	return s, ok
}

// NewActivationToken mints an opaque xdg-activation token and records it
// as outstanding until a client redeems it via RedeemActivationToken.
func (c *Compositor) NewActivationToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextActivationToken++
	tok := fmt.Sprintf("wlcore-activation-%d", c.nextActivationToken)
	if c.pendingActivations == nil {
		c.pendingActivations = make(map[string]surface.ID)
	}
	c.pendingActivations[tok] = 0
	return tok
}

// RedeemActivationToken consumes a previously minted token and queues id
// for activation. An unknown or already-redeemed token is ignored per
// §4.6: activation requests never fail the caller visibly.
func (c *Compositor) RedeemActivationToken(token string, id surface.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pendingActivations[token]; !ok {
		return
	}
	delete(c.pendingActivations, token)
	c.ActivationRequests = append(c.ActivationRequests, id)
}

// RemoveSurface evicts a destroyed surface from every piece of shared
// state that might still reference its id: the texture cache and every
// output's layout space. Cross-references are by id, never by pointer,
// so this is the only place a surface's lifecycle needs to be unwound.
func (c *Compositor) RemoveSurface(id surface.ID) {
	c.mu.Lock()
	delete(c.Surfaces, id)
	outputs := c.Layout.Outputs()
	c.mu.Unlock()

	c.Textures.Evict(id)
	for _, oid := range outputs {
		if sp := c.Layout.Space(oid); sp != nil {
			sp.Unmap(id)
			sp.UnmapLayer(id)
		}
	}
}
