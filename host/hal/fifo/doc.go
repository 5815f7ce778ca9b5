// Package fifo provides an in-memory simulated platform for the softhid
// engine.
//
// The simulated device sits at the far end of two packet FIFOs. Packets the
// engine writes are reassembled with the same codec the engine uses, and
// each complete request is handed to a scripted [Responder]; its answer is
// segmented back into packets and queued for the engine to read.
//
// Besides driving engine tests, the platform backs the hidctl --sim mode so
// the command-line tool can be exercised without hardware.
//
// # Test Hooks
//
// Hooks are safe to call from any goroutine while the engine runs:
//   - [Platform.Plug] and [Platform.Unplug] simulate arrival and removal
//   - [Platform.HoldResponses] keeps a request in its receive phase
//   - [Platform.PauseWrites] keeps packets queued on the host side
//   - [Platform.FailAfter] fails the transport after k packets
//   - [Platform.InjectEvent] and [Platform.InjectPacket] feed the host
//   - [Platform.Written], [Platform.Requests] and [Platform.Delivered]
//     expose what crossed the channel
//
// # Usage
//
//	sim := fifo.New(fifo.Config{Attached: true, Responder: fifo.Echo})
//	h := host.New(host.Options{Platform: sim})
//	if err := h.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer h.Quit()
package fifo
