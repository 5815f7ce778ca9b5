// Package host implements the host side of a packet protocol spoken with a
// USB HID security token.
//
// It is platform-agnostic and reaches the device through the [hal.Platform]
// interface defined in the github.com/ardnew/softhid/host/hal package.
// Platforms for Linux (hidraw with epoll and inotify) and Windows (overlapped
// HID I/O with configuration manager notifications) are selected by
// [DefaultPlatform]; tests use the in-memory platform in host/hal/fifo.
//
// # Architecture
//
// The package is organized into a few layers:
//
//   - Host is the facade. Its methods may be called from any goroutine and
//     post commands to the engine.
//   - The engine is a single goroutine that owns all protocol state. It
//     drains commands, services the open device and blocks in the platform
//     wait until a command, I/O readiness or a hotplug event arrives.
//   - A connection holds the queues and the in-flight transmit and receive
//     state of one open device.
//   - The frame package splits messages into fixed-size packets and
//     reassembles responses.
//
// # Messages
//
// A [Message] carries an opcode and a payload of up to 65535 bytes. It is
// finalized exactly once with a status from the pkg package:
//
//	m, _ := h.Send(0x10, payload, true)
//	resp, err := m.Wait(ctx)
//	if errors.Is(err, pkg.ErrDisconnected) {
//	    // reopen and retry
//	}
//
// Messages are transmitted in submission order, and a message that expects
// a response holds back later normal messages until that response has
// arrived. Interrupts bypass the queue and may be sent while a response is
// pending.
//
// # Cancellation
//
// [Host.Cancel] removes a queued message without sending it. A message that
// is already on the wire is marked cancelled and an interrupt carrying
// [Options.CancelOpcode] is sent; the message then finalizes with
// pkg.StatusCancelled once the device has finished with it.
//
// # Device Lifecycle
//
// [Host.Open] opens the first present device variant. If none is present the
// engine keeps watching for an arrival and reports the eventual open through
// [Options.OnOpen]. Removal, transport errors and protocol errors tear the
// connection down, finalize outstanding messages as disconnected and call
// [Options.OnDisconnect].
//
// # Emulation
//
// While no device is open or pending, [Host.BeginEmulation] routes messages
// to an in-process [Emulator] instead of the transport.
//
// # Example
//
//	h := host.New(host.Options{})
//	if err := h.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer h.Quit()
//
//	if _, err := h.Open(ctx); err != nil && !errors.Is(err, pkg.ErrNoDevice) {
//	    log.Fatal(err)
//	}
package host
