package host

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/ardnew/softhid/host/frame"
	"github.com/ardnew/softhid/host/hal"
	"github.com/ardnew/softhid/pkg"
)

// command is an envelope crossing from a caller goroutine into the engine.
type command struct {
	kind  commandKind
	msg   *Message    // cmdSend, cmdCancel
	reply chan result // Synchronous commands only
}

// result is posted back to a synchronous caller.
type result struct {
	variant hal.Variant
	ok      bool
	err     error
}

// engine owns all protocol state. Every method runs on the engine goroutine.
type engine struct {
	host     *Host
	opts     Options
	platform hal.Platform
	codec    frame.Codec

	conn      *connection
	opening   bool
	emulating bool
	quit      bool

	cmds   []command
	events []hal.Event
}

func newEngine(h *Host, p hal.Platform, codec frame.Codec) *engine {
	return &engine{
		host:     h,
		opts:     h.opts,
		platform: p,
		codec:    codec,
		events:   make([]hal.Event, maxWaitEvents),
	}
}

// run is the event loop. It returns after quit or a fatal platform error,
// with every outstanding message finalized.
func (e *engine) run() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	pkg.LogInfo(pkg.ComponentEngine, "engine started")
	defer pkg.LogInfo(pkg.ComponentEngine, "engine stopped")

	for {
		e.drainCommands()
		if e.quit {
			e.shutdown()
			return nil
		}

		e.service()

		n, err := e.platform.Wait(e.events)
		if err != nil {
			pkg.LogError(pkg.ComponentEngine, "platform wait failed", "error", err)
			e.shutdown()
			return fmt.Errorf("platform wait: %w", err)
		}

		// Commands posted before the wait returned precede its events, so
		// a Close that already returned is applied before an arrival.
		e.drainCommands()
		if e.quit {
			e.shutdown()
			return nil
		}
		for _, ev := range e.events[:n] {
			e.handleEvent(ev)
		}
	}
}

// =============================================================================
// State
// =============================================================================

func (e *engine) state() State {
	switch {
	case e.conn != nil:
		return StateOpen
	case e.opening:
		return StateOpening
	default:
		return StateDisconnected
	}
}

// publish makes the connection state visible to the facade.
func (e *engine) publish() {
	e.host.state.Store(int32(e.state()))
	e.host.emulating.Store(e.emulating)
	if e.conn != nil {
		v := e.conn.variant
		e.host.variant.Store(&v)
	} else {
		e.host.variant.Store(nil)
	}
}

// =============================================================================
// Commands
// =============================================================================

// drainCommands handles every envelope posted since the last iteration, in
// submission order.
func (e *engine) drainCommands() {
	e.cmds = e.host.takePending(e.cmds)
	for i := range e.cmds {
		e.handleCommand(e.cmds[i])
		e.cmds[i] = command{}
	}
}

func (e *engine) handleCommand(cmd command) {
	pkg.LogDebug(pkg.ComponentEngine, "command", "kind", cmd.kind)

	var r result
	switch cmd.kind {
	case cmdOpen:
		r.variant, r.err = e.open()
		r.ok = r.err == nil
	case cmdClose:
		e.close()
	case cmdSend:
		e.send(cmd.msg)
	case cmdCancel:
		e.cancel(cmd.msg)
	case cmdQuit:
		e.quit = true
	case cmdBeginEmulation:
		r.ok = e.beginEmulation()
	case cmdEndEmulation:
		if e.emulating {
			pkg.LogInfo(pkg.ComponentEngine, "emulation ended")
		}
		e.emulating = false
	}
	e.publish()

	if cmd.reply != nil {
		cmd.reply <- r
	}
}

// open opens a matching device now, or leaves the engine waiting for one to
// arrive.
func (e *engine) open() (hal.Variant, error) {
	if e.conn != nil {
		return e.conn.variant, nil
	}
	if e.emulating {
		return hal.Variant{}, fmt.Errorf("%w: emulation active", pkg.ErrInvalidState)
	}
	if err := e.tryOpen(); err != nil {
		e.opening = true
		pkg.LogInfo(pkg.ComponentEngine, "waiting for device", "reason", err)
		return hal.Variant{}, err
	}
	return e.conn.variant, nil
}

func (e *engine) tryOpen() error {
	dev, v, err := e.platform.Open(e.opts.Variants, e.codec.PacketSize())
	if err != nil {
		return err
	}
	e.conn = newConnection(dev, v, e.codec)
	e.conn.onEvent = e.opts.OnEvent
	e.opening = false
	pkg.LogInfo(pkg.ComponentEngine, "device opened", "variant", v.Name)
	return nil
}

// close tears down the connection, or abandons a pending open. No
// disconnect callback is made.
func (e *engine) close() {
	e.opening = false
	if e.conn == nil {
		return
	}
	c := e.conn
	e.conn = nil
	c.teardown(pkg.StatusDisconnect)
	pkg.LogInfo(pkg.ComponentEngine, "device closed", "variant", c.variant.Name)
}

// disconnect tears down the connection after a transport or protocol error
// and notifies the owner.
func (e *engine) disconnect(err error) {
	if e.conn == nil {
		return
	}
	c := e.conn
	e.conn = nil
	e.opening = false
	pkg.LogWarn(pkg.ComponentEngine, "device disconnected", "variant", c.variant.Name, "error", err)
	c.teardown(pkg.StatusDisconnect)
	e.publish()
	if e.opts.OnDisconnect != nil {
		e.opts.OnDisconnect(err)
	}
}

func (e *engine) send(m *Message) {
	switch {
	case e.emulating:
		e.emulate(m)
	case e.conn == nil:
		pkg.LogDebug(pkg.ComponentEngine, "send without device", "id", m.ID)
		m.finalize(pkg.StatusDisconnect, Response{})
	default:
		e.conn.enqueue(m)
	}
}

func (e *engine) cancel(m *Message) {
	if m.IsDone() || e.conn == nil {
		// Emulated messages complete during send, so there is nothing left
		// to cancel once emulation is active.
		return
	}
	e.conn.cancel(m, e.opts.CancelOpcode)
}

// =============================================================================
// Emulation
// =============================================================================

func (e *engine) beginEmulation() bool {
	if e.opts.Emulator == nil || e.conn != nil || e.opening {
		pkg.LogDebug(pkg.ComponentEngine, "emulation refused",
			"emulator", e.opts.Emulator != nil, "state", e.state())
		return false
	}
	if !e.emulating {
		pkg.LogInfo(pkg.ComponentEngine, "emulation started")
	}
	e.emulating = true
	return true
}

func (e *engine) emulate(m *Message) {
	code, resp, err := e.opts.Emulator.Exchange(m.Opcode, m.Payload)
	if err != nil {
		pkg.LogWarn(pkg.ComponentEngine, "emulator failed", "id", m.ID, "error", err)
		m.finalize(pkg.StatusOf(err), Response{})
		return
	}
	m.sent = len(m.Payload)
	if !m.ExpectResponse {
		m.finalize(pkg.StatusSuccess, Response{})
		return
	}
	m.finalize(pkg.StatusSuccess, Response{Code: code, Payload: resp})
}

// =============================================================================
// Device I/O and Events
// =============================================================================

// service runs one device service pass. Idle Tx picks up queued work here.
func (e *engine) service() {
	if e.conn == nil {
		return
	}
	if err := e.conn.dev.Service(e.conn); err != nil {
		e.disconnect(err)
	}
}

func (e *engine) handleEvent(ev hal.Event) {
	switch ev.Kind {
	case hal.EventCommand, hal.EventIO:
		// Commands were drained after the wait; I/O is serviced next pass.
	case hal.EventArrival:
		if e.conn != nil || !e.opening {
			return
		}
		pkg.LogDebug(pkg.ComponentEngine, "device arrival", "name", ev.Name)
		if err := e.tryOpen(); err != nil {
			if !errors.Is(err, pkg.ErrNoDevice) {
				pkg.LogWarn(pkg.ComponentEngine, "open on arrival failed", "name", ev.Name, "error", err)
			}
			return
		}
		e.publish()
		if e.opts.OnOpen != nil {
			e.opts.OnOpen(e.conn.variant)
		}
	case hal.EventRemoval:
		e.disconnect(fmt.Errorf("%w: device removed", pkg.ErrDisconnected))
	case hal.EventDeviceError:
		e.disconnect(fmt.Errorf("%w: device error", pkg.ErrDisconnected))
	}
}

// shutdown finalizes every outstanding message with the shutdown status and
// releases the platform.
func (e *engine) shutdown() {
	if e.conn != nil {
		c := e.conn
		e.conn = nil
		c.teardown(pkg.StatusShutdown)
	}
	e.opening = false
	e.emulating = false
	e.publish()

	// No caller may wake the platform once it is closed.
	e.host.markClosed()
	if err := e.platform.Close(); err != nil {
		pkg.LogWarn(pkg.ComponentEngine, "platform close failed", "error", err)
	}
}
