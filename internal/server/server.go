// Package server is the top-level dispatch-and-delegate aggregate: it
// owns the listening socket, one object table per connected client, and
// drives every internal/protocol manager, internal/render's renderer
// and internal/session's privilege-separated helper from internal/
// reactor's event loop. It generalizes the teacher's single-window,
// single-device app.go wiring to many clients and many outputs sharing
// one process-wide Compositor, socket framing grounded on
// internal/platform/wayland/display.go turned server-authoritative.
package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/wlcore/compositor/internal/applog"
	"github.com/wlcore/compositor/internal/config"
	"github.com/wlcore/compositor/internal/gmath"
	"github.com/wlcore/compositor/internal/gpu"
	"github.com/wlcore/compositor/internal/layout"
	"github.com/wlcore/compositor/internal/protocol"
	"github.com/wlcore/compositor/internal/reactor"
	"github.com/wlcore/compositor/internal/render"
	"github.com/wlcore/compositor/internal/session"
	"github.com/wlcore/compositor/internal/surface"
	"github.com/wlcore/compositor/internal/texture"
	"github.com/wlcore/compositor/internal/wire"
)

// wl_display request/event opcodes. wl_display is always object id 1 and
// is never registered in a client's object table; Client.dispatchBuffer
// special-cases it.
const (
	displayRequestSync        wire.Opcode = 0
	displayRequestGetRegistry wire.Opcode = 1
	displayEventError         wire.Opcode = 0
	displayEventDeleteID      wire.Opcode = 1
)

// wl_callback event opcode.
const callbackEventDone wire.Opcode = 0

// wl_registry request/event opcodes.
const (
	registryRequestBind      wire.Opcode = 0
	registryEventGlobal      wire.Opcode = 0
	registryEventGlobalRemove wire.Opcode = 1
)

// serverIDBase is the first id in the server-allocated object range, per
// Conn.AllocServerObjectID; clients allocate ids below this.
const serverIDBase uint32 = 0xff000000

// releasable is satisfied by bufferResource (internal/protocol/shm.go).
// The server polls every live client object against it once per tick
// rather than tracking buffer objects in a parallel registry, since the
// client's own object table already holds every bound wl_buffer.
type releasable interface {
	SendRelease(conn protocol.Conn)
}

// Server owns the shared compositor state, the GPU device, the renderer,
// one render.Output/layout.Space pair per display, the session helper,
// and every connected client's object table.
type Server struct {
	log zerolog.Logger
	cfg config.Config

	compositor *protocol.Compositor
	registry   *protocol.Registry

	backend  gpu.Backend
	instance gpu.Instance
	adapter  gpu.Adapter
	device   gpu.Device
	queue    gpu.Queue
	renderer *render.Renderer
	textures *texture.Cache

	sess *session.Helper

	listenFD   int
	socketPath string
	displayName string

	mu         sync.Mutex
	outputs    map[layout.OutputID]*render.Output
	clients    map[int]*Client
	clientByID map[uint32]*Client

	nextClientID uint32
	serial       uint32

	loop *reactor.Loop
}

// New brings up the GPU backend, the shared compositor state, the
// built-in output, and the listening socket, then advertises every
// protocol.Global the package knows about. backendType selects which
// gpu.Backend to request; sess may be nil when no logind session is
// available (e.g. a nested/windowed development run).
func New(log zerolog.Logger, cfg config.Config, backendType gpu.BackendType, sess *session.Helper) (*Server, error) {
	backend, err := gpu.SelectBackend(backendType)
	if err != nil {
		return nil, fmt.Errorf("server: select gpu backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return nil, fmt.Errorf("server: init gpu backend: %w", err)
	}

	instance, err := backend.CreateInstance()
	if err != nil {
		return nil, fmt.Errorf("server: create gpu instance: %w", err)
	}

	power := gpu.PowerPreferenceAny
	switch cfg.Performance.GPUPreference {
	case config.GPUPreferenceDiscrete:
		power = gpu.PowerPreferenceHighPerformance
	case config.GPUPreferenceIntegrated:
		power = gpu.PowerPreferenceLowPower
	}
	adapter, err := backend.RequestAdapter(instance, &gpu.AdapterOptions{PowerPreference: power})
	if err != nil {
		return nil, fmt.Errorf("server: request gpu adapter: %w", err)
	}
	device, err := backend.RequestDevice(adapter, &gpu.DeviceOptions{Label: "compositor"})
	if err != nil {
		return nil, fmt.Errorf("server: request gpu device: %w", err)
	}
	queue := backend.GetQueue(device)

	textures := texture.NewCache(backend, device, queue)
	renderer := render.NewRenderer(backend, device, queue, textures)
	compositor := protocol.NewCompositor(textures).WithLogger(applog.Component(log, "protocol"))

	s := &Server{
		log:        log,
		cfg:        cfg,
		compositor: compositor,
		registry:   protocol.NewRegistry(),
		backend:    backend,
		instance:   instance,
		adapter:    adapter,
		device:     device,
		queue:      queue,
		renderer:   renderer,
		textures:   textures,
		sess:       sess,
		outputs:    make(map[layout.OutputID]*render.Output),
		clients:    make(map[int]*Client),
		clientByID: make(map[uint32]*Client),
	}

	if err := s.addBuiltinOutput(); err != nil {
		backend.Destroy()
		return nil, err
	}
	s.registerGlobals()

	if err := s.bindSocket(); err != nil {
		backend.Destroy()
		return nil, err
	}

	return s, nil
}

// addBuiltinOutput creates the compositor's one logical display from the
// configured resolution. No DRM/KMS binding exists anywhere in the
// available reference stack, so the swapchain targets a zero/opaque
// gpu.SurfaceHandle: an off-screen target the backend renders into every
// tick the same way it would a real connector, documented in DESIGN.md.
func (s *Server) addBuiltinOutput() error {
	out := &protocol.Output{
		ID:         layout.OutputID(1),
		Name:       "WL-1",
		PhysicalMM: gmath.NewVec2(600, 340),
		Width:      int32(s.cfg.Display.Resolution.Width),
		Height:     int32(s.cfg.Display.Resolution.Height),
		RefreshMHz: int32(s.cfg.Display.RefreshRate) * 1000,
		Scale:      int32(s.cfg.Display.ScaleFactor),
	}
	s.compositor.AddOutput(out)

	gpuSurface, err := s.backend.CreateSurface(s.instance, gpu.SurfaceHandle{})
	if err != nil {
		return fmt.Errorf("server: create gpu surface for output %d: %w", out.ID, err)
	}
	renderOut, err := render.NewOutput(s.backend, s.device, s.queue, gpuSurface, out.ID, out.Bounds(), s.cfg.Display.VSync)
	if err != nil {
		return err
	}
	s.outputs[out.ID] = renderOut

	s.addGlobal(func(name string) protocol.Global { return protocol.NewOutputGlobal(name, out) })
	return nil
}

// addGlobal allocates the next wl_registry name, builds the global via
// factory, and adds it to the registry. factory's name argument doubles
// as the wire-protocol numeric name (Registry is keyed by the string
// Global.Name() returns, so constructing every global with its numeric
// name as that string lets Lookup serve wl_registry.bind directly,
// without a second name->Global table).
func (s *Server) addGlobal(factory func(name string) protocol.Global) protocol.Global {
	name := strconv.FormatUint(uint64(s.compositor.NewGlobalName()), 10)
	g := factory(name)
	s.registry.Add(g)
	return g
}

// registerGlobals advertises every protocol manager's global. This is
// the full set internal/protocol implements; nearly all of the pack's
// retrieved domain dependencies (dbus, x/sys, swizzle, webgpu/wgpu) are
// already exercised by the managers these globals bind to.
func (s *Server) registerGlobals() {
	s.addGlobal(func(n string) protocol.Global { return protocol.NewCompositorGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewShmGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewXdgWmBaseGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewLayerShellGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewActivationGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewDecorationGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewDmabufGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewDrmLeaseDeviceGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewViewporterGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewPresentationGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewIdleInhibitManagerGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewRelativePointerManagerGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewPointerConstraintsGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewPointerGesturesGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewTabletManagerGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewVirtualKeyboardManagerGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewTextInputManagerGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewContentTypeManagerGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewAlphaModifierGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewSinglePixelBufferManagerGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewSyncobjManagerGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewSecurityContextManagerGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewKeyboardShortcutsInhibitManagerGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewDataDeviceManagerGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewPrimarySelectionManagerGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewSessionLockManagerGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewExporterGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewImporterGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewIconManagerGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewForeignToplevelListGlobal(n) })
	s.addGlobal(func(n string) protocol.Global { return protocol.NewSystemBellGlobal(n) })

	s.addGlobal(func(n string) protocol.Global { return protocol.NewSeatGlobal(n, s.compositor.Seat) })
	s.addGlobal(func(n string) protocol.Global {
		return protocol.NewFractionalScaleGlobal(n, func() float64 { return s.cfg.Display.ScaleFactor })
	})
}

// bindSocket finds the lowest free wayland-N name under XDG_RUNTIME_DIR,
// binds and listens on it, and exports WAYLAND_DISPLAY for any
// in-process client tooling. Grounded on display.go's net.Dial side;
// inverted here to Bind/Listen/Accept4 using raw fds throughout, so the
// reactor (which already multiplexes on fds) never has to reach back
// into a net.Listener to get one.
func (s *Server) bindSocket() error {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return fmt.Errorf("server: XDG_RUNTIME_DIR not set")
	}

	var lastErr error
	for n := 0; n < 32; n++ {
		name := fmt.Sprintf("wayland-%d", n)
		path := filepath.Join(runtimeDir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}

		fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, 0)
		if err != nil {
			return fmt.Errorf("server: socket: %w", err)
		}
		if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
			_ = unix.Close(fd)
			lastErr = err
			continue
		}
		if err := unix.Listen(fd, 128); err != nil {
			_ = unix.Close(fd)
			return fmt.Errorf("server: listen: %w", err)
		}

		s.listenFD = fd
		s.socketPath = path
		s.displayName = name
		_ = os.Setenv("WAYLAND_DISPLAY", name)
		s.log.Info().Str("socket", path).Msg("server: listening")
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("server: no free wayland-N socket under %s: %w", runtimeDir, lastErr)
	}
	return fmt.Errorf("server: no free wayland-N socket under %s", runtimeDir)
}

// Run drives the reactor loop until a shutdown signal arrives or Stop is
// called. Callers must follow it with Shutdown to release GPU and
// socket resources.
func (s *Server) Run() error {
	loop, err := reactor.New(s.log, s.listenFD, s)
	if err != nil {
		return err
	}
	s.loop = loop
	defer loop.Close()
	return loop.Run()
}

// Shutdown idles the GPU device, tears down every client connection and
// the listening socket, and releases the backend. Called once Run
// returns.
func (s *Server) Shutdown() {
	s.backend.WaitIdle(s.device)
	s.renderer.Destroy()

	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[int]*Client)
	s.clientByID = make(map[uint32]*Client)
	s.mu.Unlock()
	for _, c := range clients {
		_ = unix.Close(c.fd)
	}

	if s.listenFD != 0 {
		_ = unix.Close(s.listenFD)
	}
	if s.socketPath != "" {
		_ = os.Remove(s.socketPath)
	}
	if s.sess != nil {
		_ = s.sess.Close()
	}
	s.backend.Destroy()
}

func (s *Server) nextSerial() uint32 { return atomic.AddUint32(&s.serial, 1) }

func (s *Server) clientFor(fd int) *Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients[fd]
}

func (s *Server) clientForID(id uint32) *Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientByID[id]
}

func (s *Server) globalByNumber(name uint32) (protocol.Global, bool) {
	return s.registry.Lookup(strconv.FormatUint(uint64(name), 10))
}

// AcceptClient drains the listening socket's accept backlog, registering
// each new connection's fd with the reactor and giving it an empty
// object table (wl_display, object id 1, is handled specially and never
// appears in the table).
func (s *Server) AcceptClient() error {
	for {
		fd, _, err := unix.Accept4(s.listenFD, unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK)
		if err != nil {
			if err == unix.EAGAIN {
				return nil
			}
			return fmt.Errorf("server: accept: %w", err)
		}

		s.mu.Lock()
		s.nextClientID++
		id := s.nextClientID
		s.mu.Unlock()

		c := &Client{
			server:  s,
			id:      id,
			fd:      fd,
			log:     s.log.With().Uint32("client", id).Logger(),
			objects: make(map[wire.ObjectID]protocol.Object),
		}
		c.nextServerID.Store(serverIDBase - 1)

		s.mu.Lock()
		s.clients[fd] = c
		s.clientByID[id] = c
		s.mu.Unlock()

		if s.loop != nil {
			if err := s.loop.AddClient(fd); err != nil {
				s.log.Warn().Err(err).Msg("server: failed to register client fd with reactor")
			}
		}
		s.log.Info().Uint32("client", id).Msg("server: client connected")
	}
}

// ReadClient decodes and dispatches every complete message in one
// readable client's pending bytes, flushing any queued events before
// returning. A non-nil return disconnects the client; the reactor calls
// RemoveClient for us, but closing the fd and unwinding the client's
// surfaces from the shared compositor state is this package's job.
func (s *Server) ReadClient(fd int) error {
	c := s.clientFor(fd)
	if c == nil {
		return fmt.Errorf("server: read on unknown client fd %d", fd)
	}

	buf := make([]byte, 1<<16)
	oob := make([]byte, 512)
	n, oobn, _, _, err := unix.Recvmsg(fd, buf, oob, 0)
	if err != nil {
		if err == unix.EAGAIN {
			return nil
		}
		s.closeClient(c)
		return fmt.Errorf("server: recvmsg client %d: %w", c.id, err)
	}
	if n == 0 {
		s.closeClient(c)
		return fmt.Errorf("server: client %d disconnected", c.id)
	}

	fds, err := parseFileDescriptors(oob[:oobn])
	if err != nil {
		s.closeClient(c)
		return fmt.Errorf("server: client %d: %w", c.id, err)
	}

	dispatchErr := c.dispatchBuffer(buf[:n], fds)
	flushErr := c.Flush()

	if dispatchErr != nil || c.isFatal() {
		s.closeClient(c)
		if dispatchErr != nil {
			return dispatchErr
		}
		return fmt.Errorf("server: client %d disconnected after protocol error", c.id)
	}
	return flushErr
}

// closeClient unwinds every surface the client owned from the shared
// compositor state (evicting its textures and layout placement), closes
// its fd, and drops it from the server's client tables.
func (s *Server) closeClient(c *Client) {
	s.mu.Lock()
	delete(s.clients, c.fd)
	delete(s.clientByID, c.id)
	s.mu.Unlock()

	c.mu.Lock()
	owned := make([]surface.ID, 0, len(c.objects))
	for _, obj := range c.objects {
		if sr, ok := obj.(*protocol.SurfaceResource); ok {
			owned = append(owned, sr.Surface.ID)
		}
	}
	c.mu.Unlock()

	for _, id := range owned {
		if surf, ok := s.compositor.Surface(id); ok {
			surf.Destroy()
		}
		s.compositor.RemoveSurface(id)
	}

	_ = unix.Close(c.fd)
	s.log.Info().Uint32("client", c.id).Msg("server: client disconnected")
}

// Tick polls the session helper's event queue every iteration (it has no
// dedicated epoll source) and, when due, renders and presents every
// output, routing each drawn surface's queued frame callbacks and
// sampling every live wl_buffer object for a pending release event. The
// render and release passes share this single per-iteration call
// because both only make sense once per frame, on the same reactor
// thread that also owns every client's object table, so none of this
// needs its own locking.
func (s *Server) Tick(due bool) {
	if s.sess != nil {
		for _, ev := range s.sess.PollEvents() {
			s.handleSessionEvent(ev)
		}
	}
	if !due {
		return
	}
	if s.sess != nil && !s.sess.Active() {
		return
	}

	now := uint32(time.Now().UnixMilli())

	s.mu.Lock()
	outputIDs := make([]layout.OutputID, 0, len(s.outputs))
	for id := range s.outputs {
		outputIDs = append(outputIDs, id)
	}
	s.mu.Unlock()

	for _, id := range outputIDs {
		s.renderOneOutput(id, now)
	}
	s.pollBufferReleases()
}

func (s *Server) renderOneOutput(id layout.OutputID, timestampMS uint32) {
	s.mu.Lock()
	out := s.outputs[id]
	s.mu.Unlock()
	if out == nil {
		return
	}
	space := s.compositor.Layout.Space(id)
	if space == nil {
		return
	}
	if s.compositor.LockState != protocol.SessionUnlocked {
		locked := layout.NewSpace(out.Bounds)
		if sid, ok := s.compositor.LockSurfaces[id]; ok {
			locked.Map(sid, gmath.Vec2{}, gmath.NewVec2(float32(out.Bounds.Width), float32(out.Bounds.Height)), true)
		}
		space = locked
	}

	var cursor *render.Cursor
	seat := s.compositor.Seat
	if seat.CursorSurface != nil {
		cursor = &render.Cursor{
			Surface:  *seat.CursorSurface,
			Position: seat.PointerPos.Sub(gmath.NewVec2(float32(out.Bounds.X), float32(out.Bounds.Y))),
			Hotspot:  seat.CursorHotspot,
		}
	}

	result, err := s.renderer.RenderOutput(out, space, cursor)
	if err != nil {
		s.log.Warn().Err(err).Uint32("output", uint32(id)).Msg("server: render failed")
		return
	}
	if !result.Presented {
		return
	}

	for _, sid := range result.DrawnSurfaces {
		clientID, cbs := s.compositor.TakeFrameCallbacks(sid)
		if len(cbs) == 0 {
			continue
		}
		c := s.clientForID(clientID)
		if c == nil {
			continue
		}
		protocol.SendFrameCallbacks(c, cbs, timestampMS)
		if err := c.Flush(); err != nil {
			s.log.Debug().Err(err).Uint32("client", clientID).Msg("server: flush failed sending frame callbacks")
		}
	}
}

// pollBufferReleases samples every live object in every client's table
// for the releasable interface bufferResource satisfies, matching its
// doc comment's contract that internal/server call SendRelease once per
// dispatch iteration for every live buffer.
func (s *Server) pollBufferReleases() {
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.mu.Lock()
		objs := make([]protocol.Object, 0, len(c.objects))
		for _, o := range c.objects {
			objs = append(objs, o)
		}
		c.mu.Unlock()

		sent := false
		for _, o := range objs {
			if rel, ok := o.(releasable); ok {
				rel.SendRelease(c)
				sent = true
			}
		}
		if sent {
			if err := c.Flush(); err != nil {
				s.log.Debug().Err(err).Uint32("client", c.id).Msg("server: flush failed during buffer release poll")
			}
		}
	}
}

func (s *Server) handleSessionEvent(ev session.Event) {
	switch ev.Type {
	case session.Activated:
		s.log.Info().Msg("server: session became active")
	case session.Deactivated:
		s.log.Info().Msg("server: session became inactive, suspending rendering")
	case session.Terminated:
		s.log.Warn().Msg("server: session terminated, requesting shutdown")
		if s.loop != nil {
			s.loop.Stop()
		}
	case session.OutputsChanged:
		s.log.Info().Str("connector", ev.Connector).Bool("added", ev.Added).
			Msg("server: output hot-plug event (no DRM/KMS binding to act on it)")
	}
}

// Signal treats SIGINT, SIGTERM and SIGHUP identically: there is no live
// config-reload mechanism, so SIGHUP also requests a graceful shutdown
// rather than being a no-op.
func (s *Server) Signal(sig int) bool {
	s.log.Info().Int("signal", sig).Msg("server: received shutdown signal")
	return true
}

// parseFileDescriptors extracts SCM_RIGHTS file descriptors from a
// recvmsg control message buffer, grounded on
// internal/platform/wayland/display.go's function of the same name.
func parseFileDescriptors(oob []byte) ([]int, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("server: parse control message: %w", err)
	}
	var fds []int
	for _, scm := range scms {
		if scm.Header.Level != unix.SOL_SOCKET || scm.Header.Type != unix.SCM_RIGHTS {
			continue
		}
		got, err := unix.ParseUnixRights(&scm)
		if err != nil {
			return nil, fmt.Errorf("server: parse unix rights: %w", err)
		}
		fds = append(fds, got...)
	}
	return fds, nil
}

// Client implements protocol.Conn for one connected Wayland client: an
// object table keyed by wire.ObjectID, a queued-event outbox flushed
// after each dispatch pass, and the server-reserved id counter
// AllocServerObjectID draws from.
type Client struct {
	server *Server
	id     uint32
	fd     int
	log    zerolog.Logger

	nextServerID atomic.Uint32

	mu      sync.Mutex
	objects map[wire.ObjectID]protocol.Object
	outbox  []queuedEvent
	fatal   bool
}

type queuedEvent struct {
	data []byte
	fds  []int
}

// dispatchBuffer decodes and dispatches every message in data using one
// wire.Decoder shared across the whole buffer, so the fds attached to
// this single recvmsg call are consumed in decode order across message
// boundaries exactly as the Decoder's FD() cursor assumes. A handler
// that reads fewer bytes than its message's declared size (an unknown
// opcode's default case, for instance) is resynchronized onto the next
// message by skipping the remainder, rather than requiring every
// Dispatch implementation to consume its argument list exactly.
func (c *Client) dispatchBuffer(data []byte, fds []int) error {
	dec := wire.NewDecoder(data)
	dec.Reset(data, fds)

	for dec.HasMore() {
		objID, opcode, size, err := dec.DecodeHeader()
		if err != nil {
			return fmt.Errorf("server: bad message header: %w", err)
		}
		argsLen := size - 8
		before := dec.Remaining()

		var dispatchErr error
		if objID == wire.DisplayObjectID {
			dispatchErr = c.server.dispatchDisplay(c, opcode, dec)
		} else if obj := c.Lookup(objID); obj != nil {
			dispatchErr = obj.Dispatch(c, opcode, dec)
		} else {
			dispatchErr = protocol.NewError(objID, wire.DisplayErrorInvalidObject, "unknown object %d", objID)
		}

		consumed := before - dec.Remaining()
		if consumed < argsLen {
			if err := dec.Skip(argsLen - consumed); err != nil {
				return fmt.Errorf("server: resync after message on object %d: %w", objID, err)
			}
		}

		if dispatchErr != nil {
			c.handleDispatchError(dispatchErr, objID)
		}
		if c.isFatal() {
			return nil
		}
	}
	return nil
}

func (c *Client) handleDispatchError(err error, objID wire.ObjectID) {
	if protoErr, ok := err.(*protocol.Error); ok {
		c.Fatal(protoErr.Object, protoErr.Code, protoErr.Message)
		return
	}
	c.Fatal(objID, wire.DisplayErrorImplementation, err.Error())
}

func (c *Client) isFatal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatal
}

// SendEvent encodes and queues an event for this client. Flush (called
// once per dispatch pass and once per render/release tick) writes
// whatever has accumulated since the last flush.
func (c *Client) SendEvent(id wire.ObjectID, opcode wire.Opcode, args []byte, fds []int) {
	data, err := wire.EncodeMessage(&wire.Message{ObjectID: id, Opcode: opcode, Args: args})
	if err != nil {
		c.log.Warn().Err(err).Msg("server: failed to encode outgoing event")
		return
	}
	c.mu.Lock()
	c.outbox = append(c.outbox, queuedEvent{data: data, fds: fds})
	c.mu.Unlock()
}

// Flush writes every queued event to the client's socket, via Sendmsg
// with SCM_RIGHTS for any event carrying fds, grounded on
// internal/platform/wayland/display.go's sendWithFDs.
func (c *Client) Flush() error {
	c.mu.Lock()
	pending := c.outbox
	c.outbox = nil
	c.mu.Unlock()

	for _, ev := range pending {
		if len(ev.fds) > 0 {
			rights := unix.UnixRights(ev.fds...)
			if err := unix.Sendmsg(c.fd, ev.data, rights, nil, 0); err != nil {
				return fmt.Errorf("server: sendmsg client %d: %w", c.id, err)
			}
			continue
		}
		if _, err := unix.Write(c.fd, ev.data); err != nil {
			return fmt.Errorf("server: write client %d: %w", c.id, err)
		}
	}
	return nil
}

func (c *Client) Register(id wire.ObjectID, obj protocol.Object) {
	c.mu.Lock()
	c.objects[id] = obj
	c.mu.Unlock()
}

func (c *Client) Lookup(id wire.ObjectID) protocol.Object {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.objects[id]
}

// Unregister removes id from the object table and sends wl_display.
// delete_id, letting the client reuse the id, matching
// internal/platform/wayland/display.go's handleDeleteID counterpart.
func (c *Client) Unregister(id wire.ObjectID) {
	c.mu.Lock()
	_, existed := c.objects[id]
	delete(c.objects, id)
	c.mu.Unlock()
	if !existed {
		return
	}
	e := wire.NewEncoder(4)
	e.PutUint32(uint32(id))
	c.SendEvent(wire.DisplayObjectID, displayEventDeleteID, e.Bytes(), nil)
}

func (c *Client) AllocServerObjectID() wire.ObjectID {
	return wire.ObjectID(c.nextServerID.Add(1))
}

func (c *Client) NextSerial() uint32 { return c.server.nextSerial() }

func (c *Client) ClientID() uint32 { return c.id }

// Fatal queues a wl_display.error event and marks the connection for
// disconnection once dispatchBuffer next checks isFatal.
func (c *Client) Fatal(objectID wire.ObjectID, code wire.DisplayErrorCode, message string) {
	e := wire.NewEncoder(128)
	e.PutObject(objectID)
	e.PutUint32(uint32(code))
	e.PutString(message)
	c.SendEvent(wire.DisplayObjectID, displayEventError, e.Bytes(), nil)

	c.mu.Lock()
	c.fatal = true
	c.mu.Unlock()
	c.log.Warn().Uint32("object", uint32(objectID)).Uint32("code", uint32(code)).
		Str("message", message).Msg("server: protocol error, disconnecting client")
}

func (c *Client) Compositor() *protocol.Compositor { return c.server.compositor }

// dispatchDisplay handles the two wl_display requests. wl_display itself
// is never registered as a regular Object; dispatchBuffer routes object
// id 1 here directly.
func (s *Server) dispatchDisplay(c *Client, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case displayRequestSync:
		cbID, err := args.NewID()
		if err != nil {
			return err
		}
		e := wire.NewEncoder(4)
		e.PutUint32(c.NextSerial())
		c.SendEvent(cbID, callbackEventDone, e.Bytes(), nil)
		de := wire.NewEncoder(4)
		de.PutUint32(uint32(cbID))
		c.SendEvent(wire.DisplayObjectID, displayEventDeleteID, de.Bytes(), nil)
		return nil

	case displayRequestGetRegistry:
		regID, err := args.NewID()
		if err != nil {
			return err
		}
		c.Register(regID, &registryResource{server: s, objID: regID})
		for _, g := range s.registry.All() {
			sendGlobalEvent(c, regID, g)
		}
		return nil

	default:
		return protocol.NewError(wire.DisplayObjectID, wire.DisplayErrorInvalidMethod, "wl_display: unknown opcode %d", opcode)
	}
}

// registryResource is the bound wl_registry object a client receives
// from wl_display.get_registry.
type registryResource struct {
	server *Server
	objID  wire.ObjectID
}

func (r *registryResource) Interface() string { return "wl_registry" }

func (r *registryResource) Dispatch(conn protocol.Conn, opcode wire.Opcode, args *wire.Decoder) error {
	switch opcode {
	case registryRequestBind:
		name, err := args.Uint32()
		if err != nil {
			return err
		}
		iface, err := args.String()
		if err != nil {
			return err
		}
		version, err := args.Uint32()
		if err != nil {
			return err
		}
		newID, err := args.NewID()
		if err != nil {
			return err
		}
		g, ok := r.server.globalByNumber(name)
		if !ok {
			return protocol.NewError(r.objID, wire.DisplayErrorInvalidObject, "wl_registry.bind: unknown name %d", name)
		}
		if !conn.Compositor().AllowedGlobal(conn.ClientID(), iface) {
			return protocol.NewError(r.objID, wire.DisplayErrorInvalidObject, "wl_registry.bind: %s not permitted for this client", iface)
		}
		return g.Bind(conn, newID, version)

	default:
		return protocol.NewError(r.objID, wire.DisplayErrorInvalidMethod, "wl_registry: unknown opcode %d", opcode)
	}
}

func sendGlobalEvent(conn protocol.Conn, registryID wire.ObjectID, g protocol.Global) {
	e := wire.NewEncoder(64)
	e.PutUint32(numericName(g))
	e.PutString(g.Interface())
	e.PutUint32(g.Version())
	conn.SendEvent(registryID, registryEventGlobal, e.Bytes(), nil)
}

func numericName(g protocol.Global) uint32 {
	n, _ := strconv.ParseUint(g.Name(), 10, 32)
	return uint32(n)
}
