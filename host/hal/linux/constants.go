//go:build linux

package linux

import "golang.org/x/sys/unix"

// =============================================================================
// Event Limits
// =============================================================================

// MaxEpollEvents is the number of readiness events collected per wait.
const MaxEpollEvents = 8

// InotifyBufferSize holds several directory events, each with a file name.
const InotifyBufferSize = 4096

// =============================================================================
// Readiness Masks
// =============================================================================

// deviceEvents is the interest set of an open device. Edge triggering means
// each readiness transition is reported once; the device is drained until
// EAGAIN after every wake.
const deviceEvents = unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLET

// errorEvents mark a device that can no longer be used.
const errorEvents = unix.EPOLLERR | unix.EPOLLHUP

// watchMask selects the directory events that signal device arrival and
// removal. IN_ATTRIB catches nodes whose permissions are fixed up after
// creation.
const watchMask = unix.IN_CREATE | unix.IN_DELETE | unix.IN_ATTRIB | unix.IN_MOVED_TO | unix.IN_MOVED_FROM

// =============================================================================
// Device Nodes
// =============================================================================

// DefaultDevDir is the directory holding hidraw device nodes.
const DefaultDevDir = "/dev"

// reportIDSize is the leading report id byte on hidraw writes.
const reportIDSize = 1

// deviceOpenFlags opens a device node for non-blocking packet I/O.
const deviceOpenFlags = unix.O_RDWR | unix.O_NONBLOCK | unix.O_CLOEXEC
