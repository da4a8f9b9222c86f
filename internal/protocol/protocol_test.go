package protocol

import (
	"testing"

	"github.com/wlcore/compositor/internal/wire"
)

type fakeGlobal struct {
	iface   string
	version uint32
	name    string
}

func (g *fakeGlobal) Interface() string { return g.iface }
func (g *fakeGlobal) Version() uint32   { return g.version }
func (g *fakeGlobal) Name() string      { return g.name }
func (g *fakeGlobal) Bind(conn Conn, id wire.ObjectID, version uint32) error { return nil }

func TestRegistryAddLookupAll(t *testing.T) {
	r := NewRegistry()
	a := &fakeGlobal{iface: "wl_compositor", version: 5, name: "1"}
	b := &fakeGlobal{iface: "wl_shm", version: 1, name: "2"}
	r.Add(a)
	r.Add(b)

	if got := r.All(); len(got) != 2 {
		t.Fatalf("All() returned %d globals, want 2", len(got))
	}
	got, ok := r.Lookup("2")
	if !ok || got.Interface() != "wl_shm" {
		t.Fatalf("Lookup(\"2\") = %v, %v; want wl_shm", got, ok)
	}
	if _, ok := r.Lookup("missing"); ok {
		t.Fatalf("Lookup(\"missing\") should not be found")
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	a := &fakeGlobal{iface: "wl_compositor", version: 5, name: "1"}
	r.Add(a)
	r.Remove("1")
	if _, ok := r.Lookup("1"); ok {
		t.Fatalf("expected global removed from Lookup")
	}
	if got := r.All(); len(got) != 0 {
		t.Fatalf("All() returned %d globals after Remove, want 0", len(got))
	}
}

func TestNewErrorFormatsMessage(t *testing.T) {
	err := NewError(wire.ObjectID(7), wire.DisplayErrorInvalidObject, "bad thing %d", 3)
	protoErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("NewError did not return *Error, got %T", err)
	}
	if protoErr.Object != 7 || protoErr.Code != wire.DisplayErrorInvalidObject {
		t.Fatalf("unexpected Error fields: %+v", protoErr)
	}
	if protoErr.Message != "bad thing 3" {
		t.Fatalf("Message = %q, want %q", protoErr.Message, "bad thing 3")
	}
	if protoErr.Error() == "" {
		t.Fatalf("Error() should not be empty")
	}
}

// fakeConn is a minimal Conn implementation for exercising Global.Bind
// and Object.Dispatch without internal/server's socket plumbing.
type fakeConn struct {
	compositor *Compositor
	objects    map[wire.ObjectID]Object
	events     []fakeEvent
	nextID     uint32
	fatal      bool
}

type fakeEvent struct {
	id     wire.ObjectID
	opcode wire.Opcode
	args   []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		compositor: NewCompositor(nil),
		objects:    make(map[wire.ObjectID]Object),
		nextID:     0xff000000,
	}
}

func (c *fakeConn) SendEvent(id wire.ObjectID, opcode wire.Opcode, args []byte, fds []int) {
	c.events = append(c.events, fakeEvent{id: id, opcode: opcode, args: args})
}
func (c *fakeConn) Register(id wire.ObjectID, obj Object) { c.objects[id] = obj }
func (c *fakeConn) Lookup(id wire.ObjectID) Object        { return c.objects[id] }
func (c *fakeConn) Unregister(id wire.ObjectID)           { delete(c.objects, id) }
func (c *fakeConn) AllocServerObjectID() wire.ObjectID {
	c.nextID++
	return wire.ObjectID(c.nextID)
}
func (c *fakeConn) NextSerial() uint32 { return 1 }
func (c *fakeConn) ClientID() uint32   { return 42 }
func (c *fakeConn) Fatal(objectID wire.ObjectID, code wire.DisplayErrorCode, message string) {
	c.fatal = true
}
func (c *fakeConn) Compositor() *Compositor { return c.compositor }

func TestCompositorGlobalBindCreatesResource(t *testing.T) {
	conn := newFakeConn()
	g := NewCompositorGlobal("1")
	if g.Interface() != "wl_compositor" {
		t.Fatalf("Interface() = %q", g.Interface())
	}

	compID := wire.ObjectID(10)
	if err := g.Bind(conn, compID, g.Version()); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	resource := conn.Lookup(compID)
	if resource == nil {
		t.Fatalf("Bind did not register a wl_compositor resource")
	}

	// wl_compositor.create_surface encodes only a new_id.
	surfaceID := wire.ObjectID(11)
	e := wire.NewEncoder(4)
	e.PutNewID(surfaceID)
	dec := wire.NewDecoder(e.Bytes())

	if err := resource.Dispatch(conn, compositorCreateSurface, dec); err != nil {
		t.Fatalf("Dispatch create_surface: %v", err)
	}

	surfRes, ok := conn.Lookup(surfaceID).(*SurfaceResource)
	if !ok {
		t.Fatalf("expected a *SurfaceResource registered at the new id")
	}
	if surfRes.ClientID != conn.ClientID() {
		t.Fatalf("surface ClientID = %d, want %d", surfRes.ClientID, conn.ClientID())
	}
	if _, ok := conn.Compositor().Surface(surfRes.ID); !ok {
		t.Fatalf("expected the new surface registered with the compositor")
	}
}

func TestFatalSetsFlag(t *testing.T) {
	conn := newFakeConn()
	conn.Fatal(wire.ObjectID(1), wire.DisplayErrorInvalidMethod, "boom")
	if !conn.fatal {
		t.Fatalf("expected fatal flag set")
	}
}
