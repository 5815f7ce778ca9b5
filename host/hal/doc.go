// Package hal defines the platform abstraction between the softhid engine
// and the operating system's HID transport.
//
// The engine is written once against three small interfaces:
//
//   - [Platform] supplies device discovery, the open-by-variant primitive,
//     a cross-goroutine wake and the single blocking wait of the event loop.
//   - [Device] is an open handle that is serviced until it would block.
//   - [PacketHandler] is implemented by the engine and feeds packets to and
//     from [Device.Service].
//
// Readiness-based systems (epoll) and completion-based systems (overlapped
// I/O) both fit behind [Device.Service]: the former reads and writes until
// EAGAIN, the latter harvests finished operations and re-issues new ones.
//
// # Variants
//
// A [Variant] names one known device identity. Node-name backends use
// [MatchNode]; identifier backends use [MatchID].
//
// Backends live in [github.com/ardnew/softhid/host/hal/linux],
// [github.com/ardnew/softhid/host/hal/windows] and the simulated
// [github.com/ardnew/softhid/host/hal/fifo].
package hal
