// Package linux provides the readiness-based platform for the softhid
// engine using hidraw device nodes.
//
// One epoll instance multiplexes three sources:
//   - an eventfd written by [Platform.Wake] from caller goroutines
//   - an inotify descriptor watching the device directory (normally /dev)
//     for variant nodes such as /dev/signet-hc being created or deleted
//   - the open device node, registered edge triggered for both directions
//
// Device nodes are opened O_RDWR|O_NONBLOCK and serviced until EAGAIN. Every
// write carries a leading zero report id byte; reads return the bare report.
//
// # Requirements
//
// The user running the engine needs read/write access to the device nodes,
// typically granted by a udev rule that creates a named symlink per variant.
package linux
