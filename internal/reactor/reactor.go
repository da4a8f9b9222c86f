// Package reactor implements the single-threaded cooperative event loop
// described in §5: one epoll instance multiplexing the listening
// socket, every client connection, a 16ms frame timer, and a signalfd
// for graceful shutdown. It generalizes the teacher's app.go Run()
// loop (poll events, update, render one window) to an N-client,
// N-output dispatcher, while keeping the same three-phase shape per
// iteration.
package reactor

import (
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// pollTimeoutMillis bounds the idle wait so the renderer still gets a
// chance to run roughly every frame even with no socket activity.
const pollTimeoutMillis = 16

// EventHandler is implemented by internal/server's Server. The loop
// never touches client state directly; it only tells the handler which
// fd became readable and lets it own the object table.
type EventHandler interface {
	// AcceptClient is called when the listening socket is readable.
	AcceptClient() error
	// ReadClient is called when a registered client fd is readable.
	// Returning an error unregisters and closes that client.
	ReadClient(fd int) error
	// Tick is called once per loop iteration, whether or not the frame
	// timer fired, so the handler can poll the session helper's event
	// channel without a dedicated epoll source.
	Tick(due bool)
	// Signal is called when SIGINT, SIGTERM or SIGHUP is delivered via
	// signalfd. Returning true requests loop shutdown.
	Signal(sig int) (shutdown bool)
}

// Loop owns the epoll instance and the timer/signal sources; Server
// owns everything it dispatches to.
type Loop struct {
	log zerolog.Logger

	epfd     int
	listenFD int
	timerFD  int
	sigFD    int

	handler EventHandler

	clients map[int]bool
	running bool
}

// New creates a Loop polling listenFD (the already-bound, already-
// listening Wayland socket) alongside its own timer source. The signal
// source is created lazily in Run, once the calling goroutine is
// pinned to its OS thread, since signal blocking via PthreadSigmask is
// per-thread. handler receives every dispatch callback.
func New(log zerolog.Logger, listenFD int, handler EventHandler) (*Loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}

	timerFD, err := newTimerFD()
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("reactor: timerfd: %w", err)
	}

	l := &Loop{
		log:      log,
		epfd:     epfd,
		listenFD: listenFD,
		timerFD:  timerFD,
		sigFD:    -1,
		handler:  handler,
		clients:  make(map[int]bool),
	}

	for _, fd := range []int{listenFD, timerFD} {
		if err := l.addFD(fd, unix.EPOLLIN); err != nil {
			_ = l.Close()
			return nil, fmt.Errorf("reactor: register fd %d: %w", fd, err)
		}
	}

	return l, nil
}

func (l *Loop) addFD(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// AddClient registers a newly-accepted client connection fd for
// readability events.
func (l *Loop) AddClient(fd int) error {
	if err := l.addFD(fd, unix.EPOLLIN); err != nil {
		return fmt.Errorf("reactor: add client fd %d: %w", fd, err)
	}
	l.clients[fd] = true
	return nil
}

// RemoveClient unregisters a client fd, e.g. on disconnect or protocol
// error disconnection. The caller still owns closing the fd itself.
func (l *Loop) RemoveClient(fd int) error {
	delete(l.clients, fd)
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("reactor: remove client fd %d: %w", fd, err)
	}
	return nil
}

// Run blocks, dispatching events until Stop is called or the handler
// requests shutdown from a signal. Each iteration follows §4.7's
// sequence: dispatch pending client messages, drain timer/signal
// sources, then tick (which drives the renderer when the frame timer
// fired).
func (l *Loop) Run() error {
	// Signal blocking via PthreadSigmask is per-OS-thread; pin this
	// goroutine to its thread for the loop's lifetime so the mask set up
	// below stays in effect for every EpollWait call.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	sigFD, err := newSignalFD()
	if err != nil {
		return fmt.Errorf("reactor: signalfd: %w", err)
	}
	l.sigFD = sigFD
	if err := l.addFD(sigFD, unix.EPOLLIN); err != nil {
		_ = unix.Close(sigFD)
		return fmt.Errorf("reactor: register signalfd: %w", err)
	}

	l.running = true
	events := make([]unix.EpollEvent, 32)

	for l.running {
		n, err := unix.EpollWait(l.epfd, events, pollTimeoutMillis)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("reactor: epoll_wait: %w", err)
		}

		due := n == 0
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			switch fd {
			case l.listenFD:
				if err := l.handler.AcceptClient(); err != nil {
					l.log.Warn().Err(err).Msg("reactor: accept failed")
				}
			case l.timerFD:
				drainTimerFD(l.timerFD)
				due = true
			case l.sigFD:
				sig, err := readSignalFD(l.sigFD)
				if err != nil {
					l.log.Warn().Err(err).Msg("reactor: signalfd read failed")
					continue
				}
				if l.handler.Signal(sig) {
					l.running = false
				}
			default:
				if l.clients[fd] {
					if err := l.handler.ReadClient(fd); err != nil {
						l.log.Debug().Err(err).Int("fd", fd).Msg("reactor: client disconnected")
						_ = l.RemoveClient(fd)
					}
				}
			}
		}

		l.handler.Tick(due)
	}
	return nil
}

// Stop requests the loop exit at the next iteration boundary.
func (l *Loop) Stop() { l.running = false }

// Close releases the epoll instance and its owned timer/signal fds.
// Client fds are the server's responsibility.
func (l *Loop) Close() error {
	_ = unix.Close(l.timerFD)
	_ = unix.Close(l.sigFD)
	return unix.Close(l.epfd)
}

// newTimerFD creates a monotonic timerfd firing every 16ms, matching
// the §4.7 60Hz poll cadence independent of client/socket activity.
func newTimerFD() (int, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return -1, err
	}
	interval := unix.NsecToTimespec(int64(pollTimeoutMillis) * 1e6)
	spec := &unix.ItimerSpec{Interval: interval, Value: interval}
	if err := unix.TimerfdSettime(fd, 0, spec, nil); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// drainTimerFD reads and discards the 8-byte expiration counter a
// readable timerfd always carries.
func drainTimerFD(fd int) {
	var buf [8]byte
	_, _ = unix.Read(fd, buf[:])
}

// newSignalFD blocks SIGINT/SIGTERM/SIGHUP from the default disposition
// and returns a signalfd that reports them instead, so the reactor can
// handle shutdown as just another epoll source rather than an
// asynchronous interrupt.
func newSignalFD() (int, error) {
	var set unix.Sigset_t
	sigsetAdd(&set, int(unix.SIGINT))
	sigsetAdd(&set, int(unix.SIGTERM))
	sigsetAdd(&set, int(unix.SIGHUP))

	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &set, nil); err != nil {
		return -1, fmt.Errorf("pthread_sigmask: %w", err)
	}
	fd, err := unix.Signalfd(-1, &set, unix.SFD_CLOEXEC|unix.SFD_NONBLOCK)
	if err != nil {
		return -1, fmt.Errorf("signalfd: %w", err)
	}
	return fd, nil
}

// sigsetAdd sets sig's bit in a Sigset_t, whose Val field packs signal
// numbers 1..64*len(Val) as a flat bitmask.
func sigsetAdd(set *unix.Sigset_t, sig int) {
	bit := uint(sig - 1)
	set.Val[bit/64] |= 1 << (bit % 64)
}

// readSignalFD reads one signalfd_siginfo record and returns its
// signal number. The struct's first field is always Signo, so reading
// just that uint32 is sufficient.
func readSignalFD(fd int) (int, error) {
	buf := make([]byte, unix.SizeofSignalfdSiginfo)
	n, err := unix.Read(fd, buf)
	if err != nil {
		return 0, err
	}
	if n < 4 {
		return 0, fmt.Errorf("reactor: short signalfd read (%d bytes)", n)
	}
	signo := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	return int(signo), nil
}
