//go:build linux

package linux

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// =============================================================================
// Directory Events
// =============================================================================

// nodeEvent is one change to the watched device directory.
type nodeEvent struct {
	name    string
	created bool // false for deletion
}

// parseInotify decodes the packed inotify records in buf.
func parseInotify(buf []byte) []nodeEvent {
	var out []nodeEvent
	for off := 0; off+unix.SizeofInotifyEvent <= len(buf); {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[off]))
		nameStart := off + unix.SizeofInotifyEvent
		nameEnd := nameStart + int(raw.Len)
		if nameEnd > len(buf) {
			break
		}
		name := cString(buf[nameStart:nameEnd])
		off = nameEnd

		if name == "" || raw.Mask&unix.IN_ISDIR != 0 {
			continue
		}
		switch {
		case raw.Mask&(unix.IN_DELETE|unix.IN_MOVED_FROM) != 0:
			out = append(out, nodeEvent{name: name})
		case raw.Mask&(unix.IN_CREATE|unix.IN_ATTRIB|unix.IN_MOVED_TO) != 0:
			out = append(out, nodeEvent{name: name, created: true})
		}
	}
	return out
}

// cString returns the NUL-terminated prefix of b.
func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// =============================================================================
// Hotplug Monitor
// =============================================================================

// hotplugMonitor watches a device directory for nodes being created and
// removed.
type hotplugMonitor struct {
	fd  int
	dir string
	buf [InotifyBufferSize]byte
}

// newHotplugMonitor starts watching dir.
func newHotplugMonitor(dir string) (*hotplugMonitor, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, err
	}
	if _, err := unix.InotifyAddWatch(fd, dir, watchMask); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &hotplugMonitor{fd: fd, dir: dir}, nil
}

// close stops watching.
func (h *hotplugMonitor) close() error {
	return unix.Close(h.fd)
}

// read drains every pending directory event.
func (h *hotplugMonitor) read() ([]nodeEvent, error) {
	var out []nodeEvent
	for {
		n, err := unix.Read(h.fd, h.buf[:])
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return out, nil
		case err != nil:
			return out, err
		case n <= 0:
			return out, nil
		}
		out = append(out, parseInotify(h.buf[:n])...)
	}
}
