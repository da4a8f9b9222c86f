package session

import (
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
)

// fakeBus is a logindSession test double, mirroring the fakeBackend
// pattern used for internal/gpu: no live system bus is needed to
// exercise the helper's actor loop.
type fakeBus struct {
	controlled bool
	active     bool
	sig        chan *dbus.Signal

	takeDeviceFD int
	takeErr      error
}

func newFakeBus() *fakeBus {
	return &fakeBus{active: true, sig: make(chan *dbus.Signal, 8), takeDeviceFD: 42}
}

func (f *fakeBus) TakeControl() error  { f.controlled = true; return nil }
func (f *fakeBus) ReleaseControl()     { f.controlled = false }
func (f *fakeBus) Active() (bool, error) { return f.active, nil }
func (f *fakeBus) Close() error        { close(f.sig); return nil }
func (f *fakeBus) Signals() <-chan *dbus.Signal { return f.sig }

func (f *fakeBus) TakeDevice(major, minor uint32) (int, bool, error) {
	if f.takeErr != nil {
		return -1, false, f.takeErr
	}
	return f.takeDeviceFD, !f.active, nil
}

func (f *fakeBus) ReleaseDevice(major, minor uint32) error { return nil }

func newTestHelper(bus *fakeBus) *Helper {
	return &Helper{
		log:     zerolog.Nop(),
		bus:     bus,
		cmds:    make(chan command, 8),
		events:  make(chan Event, 32),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func TestHelperAcquireDeviceRequiresActive(t *testing.T) {
	bus := newFakeBus()
	bus.active = false
	h := newTestHelper(bus)
	h.active.Store(false)
	go h.Run()
	defer h.Close()

	if _, err := h.AcquireDevice("/dev/dri/card0"); err != ErrSeatInactive {
		t.Fatalf("AcquireDevice on inactive seat: got %v, want ErrSeatInactive", err)
	}
}

func TestHelperAcquireReleaseDevice(t *testing.T) {
	bus := newFakeBus()
	h := newTestHelper(bus)
	h.active.Store(true)
	go h.Run()
	defer h.Close()

	fd, err := h.AcquireDevice("/dev/null")
	if err != nil {
		t.Fatalf("AcquireDevice: %v", err)
	}
	if fd < 0 {
		t.Fatalf("AcquireDevice returned invalid fd %d", fd)
	}

	if err := h.ReleaseDevice(fd); err != nil {
		t.Fatalf("ReleaseDevice: %v", err)
	}
}

func TestHelperPropertiesChangedTogglesActive(t *testing.T) {
	bus := newFakeBus()
	h := newTestHelper(bus)
	h.active.Store(true)
	go h.Run()
	defer h.Close()

	bus.sig <- &dbus.Signal{
		Name: "org.freedesktop.DBus.Properties.PropertiesChanged",
		Body: []any{
			"org.freedesktop.login1.Session",
			map[string]dbus.Variant{"Active": dbus.MakeVariant(false)},
		},
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if !h.Active() {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if h.Active() {
		t.Fatalf("expected Active() false after PropertiesChanged signal")
	}

	events := h.PollEvents()
	found := false
	for _, e := range events {
		if e.Type == Deactivated {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a Deactivated event, got %+v", events)
	}
}

func TestHelperWaitActiveTimesOut(t *testing.T) {
	bus := newFakeBus()
	bus.active = false
	h := newTestHelper(bus)
	h.active.Store(false)
	go h.Run()
	defer h.Close()

	if h.WaitActive(20 * time.Millisecond) {
		t.Fatalf("WaitActive should time out when seat never activates")
	}
}

func TestHelperWaitActiveObservesEvent(t *testing.T) {
	bus := newFakeBus()
	bus.active = false
	h := newTestHelper(bus)
	h.active.Store(false)
	go h.Run()
	defer h.Close()

	go func() {
		time.Sleep(5 * time.Millisecond)
		bus.sig <- &dbus.Signal{
			Name: "org.freedesktop.login1.Session.ResumeDevice",
		}
	}()

	if !h.WaitActive(500 * time.Millisecond) {
		t.Fatalf("WaitActive should observe the Activated event")
	}
}
