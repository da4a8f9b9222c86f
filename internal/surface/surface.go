// Package surface implements the client-drawable object model: surfaces,
// their attached buffers, the pending/cached/current double-buffering
// state machine, frame callback queues and damage accumulation.
package surface

import (
	"errors"
	"fmt"

	"github.com/wlcore/compositor/internal/gmath"
)

// ID identifies a surface, stable for its lifetime. Cross-references from
// the texture cache and spatial layout are by ID, never by pointer, so
// that client/surface/texture ownership never forms a cycle.
type ID uint32

// Role is the function assigned to a surface. A surface is assigned at
// most one role, once, for its entire lifetime.
type Role int

const (
	RoleUnassigned Role = iota
	RoleToplevel
	RolePopup
	RoleLayer
	RoleCursor
	RoleLock
	RoleDragIcon
	RoleSubsurface
)

func (r Role) String() string {
	switch r {
	case RoleUnassigned:
		return "unassigned"
	case RoleToplevel:
		return "toplevel"
	case RolePopup:
		return "popup"
	case RoleLayer:
		return "layer"
	case RoleCursor:
		return "cursor"
	case RoleLock:
		return "lock"
	case RoleDragIcon:
		return "drag_icon"
	case RoleSubsurface:
		return "subsurface"
	default:
		return "unknown"
	}
}

// ErrRoleAlreadyAssigned is returned when a client attempts to assign a
// second role to a surface. Per spec this is a fatal protocol error for
// the offending client, not a recoverable condition.
var ErrRoleAlreadyAssigned = errors.New("surface: role already assigned")

// BufferFormat identifies the pixel layout of a shared-memory buffer.
type BufferFormat int

const (
	FormatUnknown BufferFormat = iota
	FormatARGB8888
	FormatXRGB8888
	FormatRGBA8888
	FormatRGBX8888
)

// BufferKind distinguishes the transport a Buffer arrived over.
type BufferKind int

const (
	BufferKindSHM BufferKind = iota
	BufferKindDMABUF
)

// Buffer is a client-provided pixel source. It is owned by the client;
// the compositor holds only a read reference between attach and release.
type Buffer struct {
	Kind   BufferKind
	Format BufferFormat

	// SHM fields.
	Data   []byte
	Stride int32
	Width  int32
	Height int32

	// DMA-BUF fields.
	FD       int
	Modifier uint64
	Offset   int32

	// released becomes true once the compositor has signaled
	// wl_buffer.release back to the client.
	released bool
}

// Released reports whether this buffer has already been handed back.
func (b *Buffer) Released() bool { return b.released }

// Damage is a set of rectangles changed since the last presentation, in
// either surface-local or buffer-local coordinates. Both are unioned on
// commit; damage is an optimization hint, never a correctness constraint.
type Damage struct {
	Surface []gmath.Rect
	Buffer  []gmath.Rect
}

// Union merges other into d.
func (d *Damage) Union(other Damage) {
	d.Surface = append(d.Surface, other.Surface...)
	d.Buffer = append(d.Buffer, other.Buffer...)
}

// Bounds returns the smallest rect covering all accumulated damage, in
// surface coordinates. Buffer-only damage is not reflected since it needs
// the surface's buffer_scale/transform to convert, done by the caller.
func (d *Damage) Bounds() gmath.Rect {
	var b gmath.Rect
	for _, r := range d.Surface {
		b = b.Union(r)
	}
	return b
}

// Clear empties the damage set. Called atomically with the frame latch.
func (d *Damage) Clear() {
	d.Surface = d.Surface[:0]
	d.Buffer = d.Buffer[:0]
}

// FrameCallback is a client request to be notified once the surface's
// next committed frame has presented.
type FrameCallback struct {
	// ID identifies the wl_callback resource to signal.
	ID uint32
}

// State is the mutable, double-buffered surface state: one copy is
// `pending` (mutated by requests), one is `current` (read by the
// texture cache and renderer). Subsurfaces in synchronized mode hold an
// intermediate `cached` copy, applied only when the parent commits.
type State struct {
	Buffer         *Buffer
	Damage         Damage
	FrameCallbacks []FrameCallback
	InputRegion    *gmath.Rect
	OpaqueRegion   *gmath.Rect
	BufferScale    int32
	BufferTransform int32
	ViewportSrc    *gmath.Rect
	ViewportDst    *gmath.Vec2
	ContentType    string

	// Alpha is the wp_alpha_modifier multiplier applied on top of the
	// buffer's own alpha channel, 1.0 when no alpha-modifier object is
	// attached.
	Alpha float32

	// AcquireFenceFD is the explicit-sync (linux-drm-syncobj-v1) acquire
	// fence slot; -1 when the client uses implicit sync. The syncobj
	// handlers never store a fence here, and nothing waits on it.
	AcquireFenceFD int
}

func newState() State {
	return State{BufferScale: 1, Alpha: 1, AcquireFenceFD: -1}
}

// SyncMode controls whether a subsurface's commits apply immediately or
// wait for its parent to commit.
type SyncMode int

const (
	SyncModeSynchronized SyncMode = iota
	SyncModeDesynchronized
)

// Surface is the fundamental client-side drawable.
type Surface struct {
	ID       ID
	ClientID uint32
	Role     Role

	Pending State
	Cached  State
	Current State

	Sync SyncMode

	// Parent is set when Role == RoleSubsurface or RolePopup.
	Parent *ID

	// generation increments on every commit that attaches a new buffer;
	// the texture cache keys eviction/replacement decisions on it so a
	// stale in-flight frame never sees a texture recycled out from under it.
	generation uint64

	destroyed bool
}

// New creates a surface with no role assigned.
func New(id ID, clientID uint32) *Surface {
	return &Surface{
		ID:       id,
		ClientID: clientID,
		Role:     RoleUnassigned,
		Pending:  newState(),
		Cached:   newState(),
		Current:  newState(),
	}
}

// AssignRole assigns role to the surface. Returns ErrRoleAlreadyAssigned
// if a different role (or the same role twice) is already set — role
// assignment is a one-shot, permanent operation.
func (s *Surface) AssignRole(role Role) error {
	if s.Role != RoleUnassigned {
		return fmt.Errorf("%w: surface %d already has role %s, cannot assign %s",
			ErrRoleAlreadyAssigned, s.ID, s.Role, role)
	}
	s.Role = role
	return nil
}

// Attach sets the pending buffer. A nil buffer detaches (the surface
// becomes unmapped on the next commit).
func (s *Surface) Attach(buf *Buffer) {
	s.Pending.Buffer = buf
}

// AddDamageSurface records surface-local damage in pending state.
func (s *Surface) AddDamageSurface(r gmath.Rect) {
	s.Pending.Damage.Surface = append(s.Pending.Damage.Surface, r)
}

// AddDamageBuffer records buffer-local damage in pending state.
func (s *Surface) AddDamageBuffer(r gmath.Rect) {
	s.Pending.Damage.Buffer = append(s.Pending.Damage.Buffer, r)
}

// RequestFrameCallback enqueues a frame callback on the pending state.
func (s *Surface) RequestFrameCallback(cb FrameCallback) {
	s.Pending.FrameCallbacks = append(s.Pending.FrameCallbacks, cb)
}

// SetBufferScale sets the pending buffer scale.
func (s *Surface) SetBufferScale(scale int32) {
	s.Pending.BufferScale = scale
}

// SetBufferTransform sets the pending buffer transform (wl_output.transform value).
func (s *Surface) SetBufferTransform(transform int32) {
	s.Pending.BufferTransform = transform
}

// SetInputRegion sets the pending input region. A nil region means "infinite".
func (s *Surface) SetInputRegion(r *gmath.Rect) {
	s.Pending.InputRegion = r
}

// SetOpaqueRegion sets the pending opaque region.
func (s *Surface) SetOpaqueRegion(r *gmath.Rect) {
	s.Pending.OpaqueRegion = r
}

// CommitResult reports what changed as a result of a Commit call, so the
// protocol dispatch layer can drive the texture cache and renderer.
type CommitResult struct {
	// NewBuffer is true if this commit attached a different buffer than
	// the one currently mirrored in the GPU texture cache.
	NewBuffer     bool
	Buffer        *Buffer
	Generation    uint64
	FrameCallbacks []FrameCallback
	DamageBounds  gmath.Rect
}

// Commit atomically promotes pending state to current, clears the
// pending damage and frame-callback queue, and returns a summary the
// caller uses to drive the texture cache and renderer. It always
// promotes to current: there is no synchronized-subsurface path that
// stops at the cached state.
//
// Sticky attributes (input/opaque region, buffer scale/transform,
// viewport, content type) persist across commits that don't set them
// again — they are never implicitly cleared.
func (s *Surface) Commit() CommitResult {
	prevBuf := s.Current.Buffer
	newBuffer := s.Pending.Buffer != nil && s.Pending.Buffer != prevBuf

	if prevBuf != nil && prevBuf != s.Pending.Buffer {
		prevBuf.released = true
	}

	bounds := s.Pending.Damage.Bounds()

	sticky := s.Current
	s.Current = s.Pending
	if s.Pending.InputRegion == nil {
		s.Current.InputRegion = sticky.InputRegion
	}
	if s.Pending.OpaqueRegion == nil {
		s.Current.OpaqueRegion = sticky.OpaqueRegion
	}

	cbs := s.Current.FrameCallbacks
	if newBuffer {
		s.generation++
	}
	result := CommitResult{
		NewBuffer:      newBuffer,
		Buffer:         s.Current.Buffer,
		Generation:     s.generation,
		FrameCallbacks: cbs,
		DamageBounds:   bounds,
	}

	s.Pending = newState()
	s.Pending.InputRegion = s.Current.InputRegion
	s.Pending.OpaqueRegion = s.Current.OpaqueRegion
	s.Pending.BufferScale = s.Current.BufferScale
	s.Pending.BufferTransform = s.Current.BufferTransform
	s.Pending.Alpha = s.Current.Alpha
	s.Pending.ViewportSrc = s.Current.ViewportSrc
	s.Pending.ViewportDst = s.Current.ViewportDst
	s.Pending.ContentType = s.Current.ContentType
	s.Current.Damage.Clear()

	return result
}

// Generation returns the current buffer generation counter, used by the
// texture cache to detect whether an in-flight frame's texture reference
// is still current.
func (s *Surface) Generation() uint64 { return s.generation }

// Destroy marks the surface as torn down. Callers must still evict it
// from the texture cache and spatial layout.
func (s *Surface) Destroy() {
	s.destroyed = true
}

// Destroyed reports whether Destroy has been called.
func (s *Surface) Destroyed() bool { return s.destroyed }
