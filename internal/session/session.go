// Package session implements the privilege-separated seat helper (§4.1):
// a dedicated goroutine, isolated from the reactor the way a separate
// thread would be, that owns a D-Bus connection to logind, takes and
// releases DRM/input device file descriptors on the compositor's
// behalf, and relays seat activation state across a pair of bounded
// channels. The seat library's callback-driven signal delivery is not
// safe to interleave with the reactor's own dispatch loop, which is why
// the split exists at all (§9: "do not try to unify; the isolation is
// the point").
package session

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// Errors mirroring the acquire_device contract in §4.1.
var (
	ErrNotPermitted = errors.New("session: not permitted")
	ErrNoSuchDevice = errors.New("session: no such device")
	ErrSeatInactive = errors.New("session: seat inactive")
)

// EventType identifies a state transition the helper relays to the
// reactor over the event channel.
type EventType int

const (
	// Activated fires when the session becomes the active seat session
	// (VT switch in, initial login).
	Activated EventType = iota
	// Deactivated fires on VT switch away; DRM access becomes invalid
	// until the next Activated.
	Deactivated
	// Terminated fires when logind tears the session down (logout); the
	// compositor should begin shutdown.
	Terminated
	// OutputsChanged fires when a DRM connector is added or removed,
	// carrying the affected connector in Event.Connector. Supplements
	// §4.6's output enumeration with the original implementation's
	// hot-plug behavior (SPEC_FULL §4).
	OutputsChanged
)

// Event is one state transition or hot-plug notification.
type Event struct {
	Type      EventType
	Connector string // set for OutputsChanged
	Added     bool   // set for OutputsChanged: true if the connector appeared
}

// logindSession is the subset of org.freedesktop.login1.Session the
// helper depends on, narrowed to an interface so tests can substitute a
// fake bus without a running systemd-logind.
type logindSession interface {
	TakeControl() error
	ReleaseControl()
	TakeDevice(major, minor uint32) (fd int, inactive bool, err error)
	ReleaseDevice(major, minor uint32) error
	Active() (bool, error)
	Close() error
	// Signals returns a channel of raw property/device signals the
	// helper's run loop selects on.
	Signals() <-chan *dbus.Signal
}

// Helper is the seat/session actor. One Helper is created per process
// and Run on a dedicated goroutine; the reactor only ever touches the
// command/event channels, never the D-Bus connection directly.
type Helper struct {
	log zerolog.Logger

	bus logindSession

	cmds   chan command
	events chan Event
	stop   chan struct{}
	stopped chan struct{}

	active atomic.Bool

	udev *udevMonitor
}

type cmdKind int

const (
	cmdAcquire cmdKind = iota
	cmdRelease
)

type command struct {
	kind  cmdKind
	path  string
	fd    int
	reply chan acquireResult
}

type acquireResult struct {
	fd  int
	err error
}

// New connects to the session bus, resolves the caller's logind session
// and takes control of it (acquiring the right to TakeDevice/
// ReleaseDevice and to receive PauseDevice/ResumeDevice signals).
func New(log zerolog.Logger) (*Helper, error) {
	bus, err := dialLogind(log)
	if err != nil {
		return nil, err
	}
	if err := bus.TakeControl(); err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("session: take control: %w", err)
	}
	h := &Helper{
		log:     log,
		bus:     bus,
		cmds:    make(chan command, 8),
		events:  make(chan Event, 32),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if active, err := bus.Active(); err == nil {
		h.active.Store(active)
	}
	if mon, err := newUdevMonitor(log); err != nil {
		log.Warn().Err(err).Msg("session: udev hotplug monitor unavailable, output changes won't be detected without a restart")
	} else {
		h.udev = mon
	}
	return h, nil
}

// Run is the helper's dedicated goroutine body. It never returns until
// Close is called; cmd/compositord launches it with `go h.Run()`.
func (h *Helper) Run() {
	defer close(h.stopped)
	sig := h.bus.Signals()

	var udevTick <-chan time.Time
	if h.udev != nil {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		udevTick = ticker.C
		defer func() {
			if err := h.udev.close(); err != nil {
				h.log.Warn().Err(err).Msg("session: closing udev monitor")
			}
		}()
	}

	for {
		select {
		case <-h.stop:
			h.bus.ReleaseControl()
			_ = h.bus.Close()
			return
		case s, ok := <-sig:
			if !ok {
				sig = nil
				continue
			}
			h.handleSignal(s)
		case c := <-h.cmds:
			h.handleCommand(c)
		case <-udevTick:
			for _, e := range h.udev.poll() {
				h.emit(e)
			}
		}
	}
}

func (h *Helper) handleSignal(s *dbus.Signal) {
	switch s.Name {
	case "org.freedesktop.login1.Session.PauseDevice":
		h.active.Store(false)
		h.emit(Event{Type: Deactivated})
	case "org.freedesktop.login1.Session.ResumeDevice":
		h.active.Store(true)
		h.emit(Event{Type: Activated})
	case "org.freedesktop.DBus.Properties.PropertiesChanged":
		if len(s.Body) < 2 {
			return
		}
		changed, ok := s.Body[1].(map[string]dbus.Variant)
		if !ok {
			return
		}
		if v, ok := changed["Active"]; ok {
			active, _ := v.Value().(bool)
			h.active.Store(active)
			if active {
				h.emit(Event{Type: Activated})
			} else {
				h.emit(Event{Type: Deactivated})
			}
		}
	case "org.freedesktop.login1.Manager.SessionRemoved":
		h.emit(Event{Type: Terminated})
	}
}

func (h *Helper) handleCommand(c command) {
	switch c.kind {
	case cmdAcquire:
		fd, err := h.acquire(c.path)
		c.reply <- acquireResult{fd: fd, err: err}
	case cmdRelease:
		if err := h.release(c.fd); err != nil {
			h.log.Warn().Err(err).Int("fd", c.fd).Msg("session: release device failed")
		}
		c.reply <- acquireResult{}
	}
}

func (h *Helper) emit(e Event) {
	select {
	case h.events <- e:
	default:
		h.log.Warn().Str("event", fmt.Sprintf("%d", e.Type)).Msg("session: event channel full, dropping")
	}
}

// AcquireDevice opens path (a DRM render/primary node or an evdev input
// device) on the caller's behalf. The call is synchronous from the
// reactor's perspective but executes on the helper's goroutine, since
// only the helper ever touches the D-Bus connection.
func (h *Helper) AcquireDevice(path string) (int, error) {
	if !h.active.Load() {
		return -1, ErrSeatInactive
	}
	reply := make(chan acquireResult, 1)
	h.cmds <- command{kind: cmdAcquire, path: path, reply: reply}
	r := <-reply
	return r.fd, r.err
}

// ReleaseDevice hands fd back to logind. Idempotent: releasing an
// already-released fd is not an error.
func (h *Helper) ReleaseDevice(fd int) error {
	reply := make(chan acquireResult, 1)
	h.cmds <- command{kind: cmdRelease, fd: fd, reply: reply}
	<-reply
	return nil
}

func (h *Helper) acquire(path string) (int, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return -1, fmt.Errorf("%w: %s", ErrNoSuchDevice, path)
		}
		return -1, fmt.Errorf("session: stat %s: %w", path, err)
	}
	major := unix.Major(uint64(st.Rdev))
	minor := unix.Minor(uint64(st.Rdev))
	fd, inactive, err := h.bus.TakeDevice(major, minor)
	if err != nil {
		return -1, fmt.Errorf("%w: take_device %s: %v", ErrNotPermitted, path, err)
	}
	if inactive {
		_ = h.bus.ReleaseDevice(major, minor)
		return -1, ErrSeatInactive
	}
	return fd, nil
}

func (h *Helper) release(fd int) error {
	if fd < 0 {
		return nil
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return unix.Close(fd)
	}
	major := unix.Major(uint64(st.Rdev))
	minor := unix.Minor(uint64(st.Rdev))
	if err := h.bus.ReleaseDevice(major, minor); err != nil {
		h.log.Warn().Err(err).Msg("session: logind release_device failed, closing fd locally")
	}
	return unix.Close(fd)
}

// PollEvents drains every event queued since the last call. Non-
// blocking: called once per reactor iteration per §4.1.
func (h *Helper) PollEvents() []Event {
	var out []Event
	for {
		select {
		case e := <-h.events:
			out = append(out, e)
		default:
			return out
		}
	}
}

// Active reports the seat's last known activation state.
func (h *Helper) Active() bool { return h.active.Load() }

// WaitActive blocks up to timeout for the seat to report active,
// polling PollEvents at a short interval. Backend init uses this to
// decide between the real backend and the windowed development
// fallback per §4.1's bounded startup window.
func (h *Helper) WaitActive(timeout time.Duration) bool {
	if h.Active() {
		return true
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, e := range h.PollEvents() {
			if e.Type == Activated {
				return true
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	return h.Active()
}

// Close stops the run loop and releases the D-Bus connection. Safe to
// call once; internal/server calls it during shutdown after the
// device-idle wait.
func (h *Helper) Close() error {
	close(h.stop)
	<-h.stopped
	return nil
}

// dialLogind connects to the system bus and resolves the session that
// owns the calling process, matching how a compositor started from a
// login manager or a TTY session discovers its own seat.
func dialLogind(log zerolog.Logger) (logindSession, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("session: connect system bus: %w", err)
	}

	manager := conn.Object("org.freedesktop.login1", dbus.ObjectPath("/org/freedesktop/login1"))
	var sessionPath dbus.ObjectPath
	if err := manager.Call("org.freedesktop.login1.Manager.GetSessionByPID", 0, uint32(os.Getpid())).Store(&sessionPath); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("session: GetSessionByPID: %w", err)
	}

	sig := make(chan *dbus.Signal, 16)
	conn.Signal(sig)
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(sessionPath),
		dbus.WithMatchInterface("org.freedesktop.login1.Session"),
	); err != nil {
		log.Warn().Err(err).Msg("session: failed to subscribe to Session signals")
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(sessionPath),
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		log.Warn().Err(err).Msg("session: failed to subscribe to PropertiesChanged")
	}

	return &dbusSession{conn: conn, obj: conn.Object("org.freedesktop.login1", sessionPath), sig: sig}, nil
}

// dbusSession is the real logindSession backed by github.com/godbus/dbus/v5.
type dbusSession struct {
	conn *dbus.Conn
	obj  dbus.BusObject
	sig  chan *dbus.Signal
}

func (d *dbusSession) TakeControl() error {
	return d.obj.Call("org.freedesktop.login1.Session.TakeControl", 0, false).Err
}

func (d *dbusSession) ReleaseControl() {
	_ = d.obj.Call("org.freedesktop.login1.Session.ReleaseControl", 0).Err
}

func (d *dbusSession) TakeDevice(major, minor uint32) (int, bool, error) {
	var fd dbus.UnixFD
	var inactive bool
	call := d.obj.Call("org.freedesktop.login1.Session.TakeDevice", 0, major, minor)
	if call.Err != nil {
		return -1, false, call.Err
	}
	if err := call.Store(&fd, &inactive); err != nil {
		return -1, false, err
	}
	return int(fd), inactive, nil
}

func (d *dbusSession) ReleaseDevice(major, minor uint32) error {
	return d.obj.Call("org.freedesktop.login1.Session.ReleaseDevice", 0, major, minor).Err
}

func (d *dbusSession) Active() (bool, error) {
	v, err := d.obj.GetProperty("org.freedesktop.login1.Session.Active")
	if err != nil {
		return false, err
	}
	active, _ := v.Value().(bool)
	return active, nil
}

func (d *dbusSession) Close() error {
	return d.conn.Close()
}

func (d *dbusSession) Signals() <-chan *dbus.Signal { return d.sig }
