package reactor

import (
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

func TestSigsetAdd(t *testing.T) {
	var set unix.Sigset_t
	sigsetAdd(&set, int(unix.SIGINT))
	sigsetAdd(&set, int(unix.SIGTERM))

	wantInt := uint64(1) << (uint(unix.SIGINT) - 1)
	wantTerm := uint64(1) << (uint(unix.SIGTERM) - 1)
	if set.Val[0]&wantInt == 0 {
		t.Errorf("SIGINT bit not set in %v", set.Val[0])
	}
	if set.Val[0]&wantTerm == 0 {
		t.Errorf("SIGTERM bit not set in %v", set.Val[0])
	}
}

// fakeHandler records which callbacks fired, for exercising Loop.Run
// against a real epoll instance without a real server.
type fakeHandler struct {
	accepted int
	read     []int
	ticks    int
	signals  []int
	stopOn   int
	loop     *Loop
}

func (f *fakeHandler) AcceptClient() error {
	f.accepted++
	return nil
}

func (f *fakeHandler) ReadClient(fd int) error {
	f.read = append(f.read, fd)
	var buf [64]byte
	_, _ = unix.Read(fd, buf[:])
	return nil
}

func (f *fakeHandler) Tick(due bool) {
	f.ticks++
	if f.ticks >= f.stopOn {
		f.loop.Stop()
	}
}

func (f *fakeHandler) Signal(sig int) bool {
	f.signals = append(f.signals, sig)
	return true
}

func TestLoopDispatchesClientReadability(t *testing.T) {
	listenFDs, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	clientFDs, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer unix.Close(listenFDs[0])
	defer unix.Close(listenFDs[1])
	defer unix.Close(clientFDs[1])

	handler := &fakeHandler{stopOn: 3}
	loop, err := New(zerolog.Nop(), listenFDs[0], handler)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	handler.loop = loop
	defer loop.Close()

	if err := loop.AddClient(clientFDs[0]); err != nil {
		t.Fatalf("AddClient: %v", err)
	}

	if _, err := unix.Write(clientFDs[1], []byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := loop.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(handler.read) == 0 {
		t.Errorf("expected at least one ReadClient call, got none")
	}
	if handler.ticks < handler.stopOn {
		t.Errorf("expected at least %d ticks, got %d", handler.stopOn, handler.ticks)
	}
}
