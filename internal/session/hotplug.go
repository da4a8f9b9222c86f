package session

import (
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// udevMonitor watches the kernel uevent netlink socket for DRM connector
// add/remove events, supplementing logind's device hand-off with the
// hot-plug notifications the original daemon surfaced to its output
// manager. It reuses golang.org/x/sys/unix, already a dependency for
// mmap and SCM_RIGHTS elsewhere in the tree, rather than pulling in a
// dedicated udev binding.
type udevMonitor struct {
	log zerolog.Logger
	fd  int
}

// newUdevMonitor opens and binds a NETLINK_KOBJECT_UEVENT socket
// subscribed to the kernel multicast group. Returns an error the caller
// should treat as non-fatal: hot-plug notification is a supplement, not
// a requirement for running.
func newUdevMonitor(log zerolog.Logger) (*udevMonitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, err
	}
	sa := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: 1}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return &udevMonitor{log: log, fd: fd}, nil
}

// poll does one non-blocking read of the netlink socket, returning any
// drm-subsystem add/remove events found in the uevent payload.
func (m *udevMonitor) poll() []Event {
	buf := make([]byte, 4096)
	n, _, err := unix.Recvfrom(m.fd, buf, unix.MSG_DONTWAIT)
	if err != nil {
		return nil
	}
	return parseUevent(buf[:n])
}

// parseUevent splits a kernel uevent payload (NUL-separated KEY=VALUE
// fields, ACTION@DEVPATH first) into OutputsChanged events for the drm
// subsystem.
func parseUevent(payload []byte) []Event {
	fields := strings.Split(string(payload), "\x00")
	if len(fields) == 0 {
		return nil
	}
	var action, subsystem, devpath string
	for i, f := range fields {
		if i == 0 {
			parts := strings.SplitN(f, "@", 2)
			action = parts[0]
			continue
		}
		if v, ok := strings.CutPrefix(f, "SUBSYSTEM="); ok {
			subsystem = v
		}
		if v, ok := strings.CutPrefix(f, "DEVPATH="); ok {
			devpath = v
		}
	}
	if subsystem != "drm" {
		return nil
	}
	switch action {
	case "add", "change":
		return []Event{{Type: OutputsChanged, Connector: devpath, Added: true}}
	case "remove":
		return []Event{{Type: OutputsChanged, Connector: devpath, Added: false}}
	default:
		return nil
	}
}

func (m *udevMonitor) close() error {
	return unix.Close(m.fd)
}
