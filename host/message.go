package host

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ardnew/softhid/pkg"
)

// Response is the device's answer to a message.
type Response struct {
	Code    uint8  // Response code from the first response packet
	Payload []byte // Reassembled response payload
}

// Message is one request submitted to the device.
//
// A message is owned by the caller until it is submitted. From then on the
// engine owns its lifecycle and finalizes it exactly once; the completion
// fields may only be read after Done is closed.
type Message struct {
	ID             uuid.UUID // Correlation id, assigned on creation
	Opcode         uint8     // Command opcode
	Payload        []byte    // Request payload, at most frame.MaxPayload bytes
	ExpectResponse bool      // Arm a receive for the device's response
	Interrupt      bool      // Send ahead of all queued messages

	// OnComplete, if set, is called on the engine goroutine right after the
	// message is finalized. It must not block or call synchronous Host
	// methods.
	OnComplete func(*Message)

	once      sync.Once
	done      chan struct{}
	submitted atomic.Bool
	finalized atomic.Bool

	status pkg.Status
	resp   Response

	// Engine-owned until finalized.
	sent            int
	cancelRequested bool
}

// NewMessage returns a message ready for submission.
func NewMessage(opcode uint8, payload []byte, expectResponse bool) *Message {
	m := &Message{
		Opcode:         opcode,
		Payload:        payload,
		ExpectResponse: expectResponse,
	}
	m.init()
	return m
}

// NewInterrupt returns an interrupt message. Interrupts never expect a
// response.
func NewInterrupt(opcode uint8, payload []byte) *Message {
	m := NewMessage(opcode, payload, false)
	m.Interrupt = true
	return m
}

func (m *Message) init() {
	m.once.Do(func() {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		m.done = make(chan struct{})
	})
}

// Done returns a channel closed once the message is finalized.
func (m *Message) Done() <-chan struct{} {
	m.init()
	return m.done
}

// IsDone reports whether the message has been finalized.
func (m *Message) IsDone() bool {
	select {
	case <-m.Done():
		return true
	default:
		return false
	}
}

// Status returns the completion status. It is only meaningful after Done is
// closed.
func (m *Message) Status() pkg.Status {
	if !m.IsDone() {
		return pkg.StatusSuccess
	}
	return m.status
}

// Result returns the completion status and the response.
func (m *Message) Result() (pkg.Status, Response) {
	if !m.IsDone() {
		return pkg.StatusSuccess, Response{}
	}
	return m.status, m.resp
}

// Err returns the error corresponding to the completion status, or nil if the
// message succeeded or has not completed.
func (m *Message) Err() error {
	if !m.IsDone() {
		return nil
	}
	return m.status.Error()
}

// Sent returns the number of payload bytes accepted by the transport.
func (m *Message) Sent() int {
	if !m.IsDone() {
		return 0
	}
	return m.sent
}

// Wait blocks until the message is finalized or ctx is done.
func (m *Message) Wait(ctx context.Context) (Response, error) {
	select {
	case <-m.Done():
		return m.resp, m.status.Error()
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// finalize writes the completion slot. Only the first call has an effect.
func (m *Message) finalize(status pkg.Status, resp Response) bool {
	m.init()
	if !m.finalized.CompareAndSwap(false, true) {
		pkg.LogWarn(pkg.ComponentEngine, "message finalized twice",
			"id", m.ID, "status", status)
		return false
	}
	m.status = status
	m.resp = resp
	close(m.done)

	pkg.LogDebug(pkg.ComponentEngine, "message finalized",
		"id", m.ID,
		"opcode", m.Opcode,
		"status", status,
		"response", len(resp.Payload))

	if m.OnComplete != nil {
		m.OnComplete(m)
	}
	return true
}
