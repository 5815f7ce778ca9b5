package host

import (
	"fmt"
	"log/slog"

	"github.com/ardnew/softhid/host/frame"
	"github.com/ardnew/softhid/host/hal"
	"github.com/ardnew/softhid/pkg"
)

// =============================================================================
// Transfer State
// =============================================================================

// txState tracks the message currently being written to the device.
type txState struct {
	msg    *Message
	count  int    // Packets required
	sent   int    // Packets accepted by the transport
	buf    []byte // Staged packet
	staged bool   // buf holds packet number sent
}

// rxState tracks the message whose response is being received.
type rxState struct {
	msg *Message
	asm *frame.Reassembler
}

// =============================================================================
// Connection
// =============================================================================

// connection is the state of one open device. It is owned by the engine
// goroutine and implements [hal.PacketHandler] for the device's service pass.
type connection struct {
	dev     hal.Device
	variant hal.Variant
	codec   frame.Codec

	queue   messageQueue // Normal messages
	cancels messageQueue // Interrupts, serviced first

	tx txState
	rx rxState

	onEvent func(code uint8, data []byte)

	txPackets int
	rxPackets int
}

var _ hal.PacketHandler = (*connection)(nil)

func newConnection(dev hal.Device, v hal.Variant, codec frame.Codec) *connection {
	return &connection{
		dev:     dev,
		variant: v,
		codec:   codec,
		tx:      txState{buf: make([]byte, codec.PacketSize())},
		rx:      rxState{asm: frame.NewReassembler(codec)},
	}
}

// enqueue places m on the queue matching its priority.
func (c *connection) enqueue(m *Message) {
	if m.Interrupt {
		c.cancels.push(m)
	} else {
		c.queue.push(m)
	}
}

// idle reports whether nothing is queued or in flight.
func (c *connection) idle() bool {
	return c.tx.msg == nil && c.rx.msg == nil && c.queue.len() == 0 && c.cancels.len() == 0
}

// startNext moves the next eligible message into Tx. The cancellation queue
// always goes first; the normal queue only while no response is pending.
func (c *connection) startNext() bool {
	var m *Message
	switch {
	case c.cancels.len() > 0:
		m = c.cancels.pop()
	case c.rx.msg == nil && c.queue.len() > 0:
		m = c.queue.pop()
	default:
		return false
	}

	c.tx.msg = m
	c.tx.count = c.codec.PacketCount(len(m.Payload))
	c.tx.sent = 0
	c.tx.staged = false

	if m.ExpectResponse {
		c.rx.msg = m
		c.rx.asm.Reset()
	}

	pkg.LogDebug(pkg.ComponentTransfer, "transmit started",
		"id", m.ID,
		"opcode", m.Opcode,
		"bytes", len(m.Payload),
		"packets", c.tx.count,
		"interrupt", m.Interrupt)
	return true
}

// NextPacket implements [hal.PacketHandler].
func (c *connection) NextPacket() []byte {
	for {
		if c.tx.msg == nil && !c.startNext() {
			return nil
		}
		if c.tx.staged {
			return c.tx.buf
		}
		m := c.tx.msg
		err := c.codec.Encode(c.tx.buf, m.Opcode, m.Payload, c.tx.sent)
		if err == nil {
			c.tx.staged = true
			return c.tx.buf
		}
		// Submission validates payloads, so this only guards against
		// messages mutated after submission.
		pkg.LogError(pkg.ComponentTransfer, "encode failed", "id", m.ID, "error", err)
		c.tx.msg = nil
		if c.rx.msg == m {
			c.rx.msg = nil
		}
		m.finalize(pkg.StatusDisconnect, Response{})
	}
}

// PacketSent implements [hal.PacketHandler].
func (c *connection) PacketSent() {
	m := c.tx.msg
	if m == nil || !c.tx.staged {
		return
	}
	c.tx.staged = false
	c.tx.sent++
	c.txPackets++
	tracePacket("tx", c.tx.buf)

	if c.tx.sent < c.tx.count {
		return
	}

	c.tx.msg = nil
	m.sent = len(m.Payload)
	pkg.LogDebug(pkg.ComponentTransfer, "transmit complete",
		"id", m.ID, "packets", c.tx.count, "response", m.ExpectResponse)

	if m.ExpectResponse {
		return
	}
	status := pkg.StatusSuccess
	if m.cancelRequested {
		status = pkg.StatusCancelled
	}
	m.finalize(status, Response{})
}

// PacketReceived implements [hal.PacketHandler].
func (c *connection) PacketReceived(pkt []byte) error {
	c.rxPackets++
	tracePacket("rx", pkt)

	if frame.IsEvent(pkt) {
		code, data, err := c.codec.DecodeEvent(pkt)
		if err != nil {
			return err
		}
		pkg.LogDebug(pkg.ComponentTransfer, "device event", "code", code, "bytes", len(data))
		if c.onEvent != nil {
			c.onEvent(code, data)
		}
		return nil
	}

	m := c.rx.msg
	if m == nil {
		return fmt.Errorf("%w: unsolicited packet", pkg.ErrProtocol)
	}

	done, err := c.rx.asm.Push(pkt)
	if err != nil {
		return err
	}
	if !done {
		return nil
	}
	if c.tx.msg == m {
		return fmt.Errorf("%w: response before request was sent", pkg.ErrProtocol)
	}

	code, payload := c.rx.asm.Message()
	c.rx.msg = nil
	c.rx.asm.Reset()

	pkg.LogDebug(pkg.ComponentTransfer, "response received",
		"id", m.ID, "code", code, "bytes", len(payload))

	status := pkg.StatusSuccess
	if m.cancelRequested {
		status = pkg.StatusCancelled
	}
	m.finalize(status, Response{Code: code, Payload: payload})
	return nil
}

// =============================================================================
// Cancellation
// =============================================================================

// cancel applies a cancellation request for m. A queued message, or one
// staged in Tx whose first packet the transport has not accepted, is
// finalized without ever reaching the device. A message already on the
// wire is marked and an interrupt carrying cancelOpcode is queued ahead of
// all other work; m then completes as cancelled when the device is done
// with it.
func (c *connection) cancel(m *Message, cancelOpcode uint8) {
	if c.queue.remove(m) || c.cancels.remove(m) {
		pkg.LogDebug(pkg.ComponentTransfer, "cancelled before transmit", "id", m.ID)
		m.finalize(pkg.StatusCancelled, Response{})
		return
	}
	if c.tx.msg == m && c.tx.sent == 0 {
		// Staged but never accepted by the transport: the device has not
		// seen it.
		c.tx.msg = nil
		c.tx.staged = false
		if c.rx.msg == m {
			c.rx.msg = nil
			c.rx.asm.Reset()
		}
		pkg.LogDebug(pkg.ComponentTransfer, "cancelled before first packet", "id", m.ID)
		m.finalize(pkg.StatusCancelled, Response{})
		return
	}
	if c.tx.msg != m && c.rx.msg != m {
		return
	}
	if m.cancelRequested {
		return
	}
	m.cancelRequested = true
	if m.Interrupt {
		return
	}

	intr := NewInterrupt(cancelOpcode, nil)
	c.cancels.push(intr)
	pkg.LogDebug(pkg.ComponentTransfer, "cancel requested in flight",
		"id", m.ID, "interrupt", intr.ID)
}

// =============================================================================
// Teardown
// =============================================================================

// teardown closes the device and finalizes every outstanding message with
// status. Tx goes first, then Rx, then the cancellation and normal queues.
func (c *connection) teardown(status pkg.Status) {
	if err := c.dev.Close(); err != nil {
		pkg.LogWarn(pkg.ComponentTransfer, "device close failed", "error", err)
	}

	var pending []*Message
	if c.tx.msg != nil {
		pending = append(pending, c.tx.msg)
	}
	if c.rx.msg != nil && c.rx.msg != c.tx.msg {
		pending = append(pending, c.rx.msg)
	}
	c.tx.msg = nil
	c.tx.staged = false
	c.rx.msg = nil
	c.rx.asm.Reset()

	pending = append(pending, c.cancels.drain()...)
	pending = append(pending, c.queue.drain()...)

	pkg.LogDebug(pkg.ComponentTransfer, "connection torn down",
		"status", status,
		"outstanding", len(pending),
		"tx_packets", c.txPackets,
		"rx_packets", c.rxPackets)

	for _, m := range pending {
		m.finalize(status, Response{})
	}
}

// tracePacket logs raw packet bytes. Formatting is skipped unless debug
// output is enabled.
func tracePacket(dir string, pkt []byte) {
	if !pkg.LogEnabled(slog.LevelDebug) {
		return
	}
	pkg.LogDebug(pkg.ComponentTransfer, "packet", "dir", dir, "data", fmt.Sprintf("% x", pkt))
}
