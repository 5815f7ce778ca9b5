package host

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ardnew/softhid/host/frame"
	"github.com/ardnew/softhid/host/hal"
	"github.com/ardnew/softhid/pkg"
)

// Options configures a [Host].
type Options struct {
	// PacketSize is the payload capacity of one packet, excluding the frame
	// header. Zero selects frame.DefaultPayloadSize.
	PacketSize int

	// Variants lists the device identities to open, in preferred order.
	// Nil selects hal.DefaultVariants.
	Variants []hal.Variant

	// CancelOpcode is the opcode of the interrupt sent when an in-flight
	// message is cancelled. Zero selects DefaultCancelOpcode, so opcode 0
	// is never sent as an interrupt.
	CancelOpcode uint8

	// DevDir is the device node directory watched on Linux. Empty selects
	// DefaultDevDir.
	DevDir string

	// Platform overrides the OS platform chosen by DefaultPlatform.
	Platform hal.Platform

	// Emulator handles messages while emulation is active.
	Emulator Emulator

	// OnOpen is called on the engine goroutine when a device that arrived
	// while an open was pending has been opened.
	OnOpen func(hal.Variant)

	// OnDisconnect is called on the engine goroutine when the connection is
	// lost to a transport error, a protocol error or device removal. It is
	// not called for Close or Quit.
	OnDisconnect func(error)

	// OnEvent receives unsolicited device events on the engine goroutine.
	OnEvent func(code uint8, data []byte)
}

// withDefaults returns a copy of o with zero fields replaced by defaults.
func (o Options) withDefaults() Options {
	if o.PacketSize == 0 {
		o.PacketSize = frame.DefaultPayloadSize
	}
	if o.Variants == nil {
		o.Variants = hal.DefaultVariants()
	}
	if o.CancelOpcode == 0 {
		o.CancelOpcode = DefaultCancelOpcode
	}
	if o.DevDir == "" {
		o.DevDir = DefaultDevDir
	}
	return o
}

// =============================================================================
// Host
// =============================================================================

// Host is the command dispatch facade of the engine. All methods are safe
// for concurrent use. Commands are executed by a single engine goroutine in
// the order they were submitted.
type Host struct {
	opts     Options
	platform hal.Platform

	mu      sync.Mutex
	pending []command
	started bool
	closed  bool

	syncMu   sync.Mutex // Serializes synchronous commands
	quitOnce sync.Once
	stopCtx  func() bool
	done     chan struct{}
	runErr   error

	state     atomic.Int32
	emulating atomic.Bool
	variant   atomic.Pointer[hal.Variant]
}

// New returns a host configured by opts. Call Start to run the engine.
func New(opts Options) *Host {
	return &Host{
		opts: opts.withDefaults(),
		done: make(chan struct{}),
	}
}

// Start launches the engine goroutine. The engine quits when ctx is done or
// Quit is called.
func (h *Host) Start(ctx context.Context) error {
	codec, err := frame.New(h.opts.PacketSize)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return pkg.ErrAlreadyRunning
	}
	if h.closed {
		return pkg.ErrShutdown
	}

	p := h.opts.Platform
	if p == nil {
		if p, err = DefaultPlatform(h.opts); err != nil {
			return fmt.Errorf("platform: %w", err)
		}
	}
	h.platform = p
	h.started = true

	eng := newEngine(h, p, codec)
	go func() {
		h.finish(eng.run())
	}()
	h.stopCtx = context.AfterFunc(ctx, func() {
		_ = h.post(command{kind: cmdQuit})
	})

	pkg.LogInfo(pkg.ComponentHost, "host started",
		"packet_size", h.opts.PacketSize,
		"variants", len(h.opts.Variants))
	return nil
}

// finish runs on the engine goroutine after the loop exits.
func (h *Host) finish(err error) {
	h.mu.Lock()
	h.closed = true
	h.runErr = err
	leftover := h.pending
	h.pending = nil
	stop := h.stopCtx
	h.mu.Unlock()

	if stop != nil {
		stop()
	}
	for _, cmd := range leftover {
		reject(cmd)
	}
	close(h.done)
}

// =============================================================================
// Command Dispatch
// =============================================================================

// post hands cmd to the engine and wakes it. The wake happens under h.mu,
// so it cannot race the engine closing the platform.
func (h *Host) post(cmd command) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		reject(cmd)
		return pkg.ErrShutdown
	}
	if cmd.kind == cmdQuit {
		h.closed = true
	}
	h.pending = append(h.pending, cmd)

	var err error
	if h.started {
		err = h.platform.Wake()
	}
	h.mu.Unlock()

	if err != nil {
		pkg.LogError(pkg.ComponentHost, "engine wake failed", "error", err)
		return err
	}
	return nil
}

// markClosed stops further wakes. Called by the engine before it closes the
// platform; commands already pending are rejected by finish.
func (h *Host) markClosed() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}

// takePending moves posted commands into buf. Called by the engine.
func (h *Host) takePending(buf []command) []command {
	h.mu.Lock()
	defer h.mu.Unlock()
	buf = append(buf[:0], h.pending...)
	clear(h.pending)
	h.pending = h.pending[:0]
	return buf
}

// reject completes a command that will never reach the engine.
func reject(cmd command) {
	switch cmd.kind {
	case cmdSend:
		cmd.msg.finalize(pkg.StatusShutdown, Response{})
	case cmdOpen, cmdBeginEmulation:
		cmd.reply <- result{err: pkg.ErrShutdown}
	}
}

// call posts a synchronous command and waits for its result.
func (h *Host) call(ctx context.Context, kind commandKind) (result, error) {
	h.syncMu.Lock()
	defer h.syncMu.Unlock()

	h.mu.Lock()
	started := h.started
	h.mu.Unlock()
	if !started {
		return result{}, pkg.ErrNotRunning
	}

	reply := make(chan result, 1)
	if err := h.post(command{kind: kind, reply: reply}); err != nil {
		return result{}, err
	}
	select {
	case r := <-reply:
		return r, r.err
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

// =============================================================================
// Facade Operations
// =============================================================================

// Open opens the first present device variant and returns it. If no device
// is present it returns an error wrapping pkg.ErrNoDevice and the engine
// keeps waiting for one to arrive; OnOpen reports the eventual open.
func (h *Host) Open(ctx context.Context) (hal.Variant, error) {
	r, err := h.call(ctx, cmdOpen)
	return r.variant, err
}

// Close closes the device or abandons a pending open. Outstanding messages
// finalize with pkg.StatusDisconnect.
func (h *Host) Close() {
	_ = h.post(command{kind: cmdClose})
}

// Send creates and submits a message.
func (h *Host) Send(opcode uint8, payload []byte, expectResponse bool) (*Message, error) {
	m := NewMessage(opcode, payload, expectResponse)
	return m, h.Submit(m)
}

// Interrupt creates and submits an interrupt message. Interrupts are sent
// ahead of every queued message, even while a response is pending.
func (h *Host) Interrupt(opcode uint8, payload []byte) (*Message, error) {
	m := NewInterrupt(opcode, payload)
	return m, h.Submit(m)
}

// Submit hands m to the engine. On success the engine owns m's lifecycle and
// will finalize it exactly once. A message submitted after Quit is finalized
// with pkg.StatusShutdown before Submit returns.
func (h *Host) Submit(m *Message) error {
	if m == nil {
		return pkg.ErrInvalidParameter
	}
	if len(m.Payload) > frame.MaxPayload {
		return pkg.ErrPayloadTooLarge
	}
	if m.Interrupt && m.ExpectResponse {
		return fmt.Errorf("%w: interrupt cannot expect a response", pkg.ErrInvalidParameter)
	}
	if !m.submitted.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: message already submitted", pkg.ErrInvalidState)
	}
	m.init()
	return h.post(command{kind: cmdSend, msg: m})
}

// Cancel requests cancellation of m. It has no effect on a finalized
// message.
func (h *Host) Cancel(m *Message) {
	if m == nil || m.IsDone() {
		return
	}
	_ = h.post(command{kind: cmdCancel, msg: m})
}

// BeginEmulation routes messages to the configured emulator. It fails if no
// emulator is configured, a device is open or an open is pending.
func (h *Host) BeginEmulation() bool {
	r, err := h.call(context.Background(), cmdBeginEmulation)
	return err == nil && r.ok
}

// EndEmulation returns to routing messages to the device.
func (h *Host) EndEmulation() {
	_ = h.post(command{kind: cmdEndEmulation})
}

// Quit stops the engine, finalizing outstanding messages with
// pkg.StatusShutdown, and waits for the engine goroutine to exit. It is safe
// to call more than once. Quit must not be called from an engine callback.
func (h *Host) Quit() error {
	h.mu.Lock()
	if !h.started {
		h.closed = true
		leftover := h.pending
		h.pending = nil
		h.mu.Unlock()
		for _, cmd := range leftover {
			reject(cmd)
		}
		h.quitOnce.Do(func() { close(h.done) })
		return nil
	}
	h.mu.Unlock()

	h.quitOnce.Do(func() {
		_ = h.post(command{kind: cmdQuit})
	})
	<-h.done
	return h.runErr
}

// Done returns a channel closed when the engine goroutine has exited.
func (h *Host) Done() <-chan struct{} {
	return h.done
}

// State returns the last published connection state.
func (h *Host) State() State {
	return State(h.state.Load())
}

// Emulating reports whether emulation is active.
func (h *Host) Emulating() bool {
	return h.emulating.Load()
}

// Variant returns the open device variant, if any.
func (h *Host) Variant() (hal.Variant, bool) {
	v := h.variant.Load()
	if v == nil {
		return hal.Variant{}, false
	}
	return *v, true
}
