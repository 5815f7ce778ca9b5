package fifo

import (
	"fmt"
	"slices"
	"sync"

	"github.com/ardnew/softhid/host/frame"
	"github.com/ardnew/softhid/host/hal"
	"github.com/ardnew/softhid/pkg"
)

// =============================================================================
// Simulated Device Behavior
// =============================================================================

// Responder is the scripted behavior of the simulated device. It is called
// once per complete request; reply false means the device sends nothing
// back.
type Responder func(opcode uint8, payload []byte) (code uint8, resp []byte, reply bool)

// Echo answers each request with its opcode and payload.
func Echo(opcode uint8, payload []byte) (uint8, []byte, bool) {
	return opcode, slices.Clone(payload), true
}

// Silent never answers.
func Silent(uint8, []byte) (uint8, []byte, bool) {
	return 0, nil, false
}

// Request is one message reassembled by the simulated device.
type Request struct {
	Opcode  uint8
	Payload []byte
}

// Config configures a simulated platform.
type Config struct {
	// Variant is the identity of the simulated device. The zero value
	// selects the first default variant.
	Variant hal.Variant

	// Responder scripts the device. Nil selects Echo.
	Responder Responder

	// Attached makes the device present from the start.
	Attached bool
}

// =============================================================================
// Platform
// =============================================================================

// Platform implements [hal.Platform] with in-memory packet FIFOs between the
// engine and a scripted device. Test hooks may be called from any goroutine.
type Platform struct {
	variant hal.Variant
	signal  chan struct{}

	mu        sync.Mutex
	responder Responder
	attached  bool
	closed    bool
	woken     bool
	events    []hal.Event
	dev       *Device

	codec frame.Codec
	asm   *frame.Reassembler

	inbox        [][]byte // Device to host
	held         [][]byte // Responses withheld by HoldResponses
	holding      bool
	writesPaused bool
	failAfter    int

	written   [][]byte
	requests  []Request
	delivered int
	opens     int
	stalls    int
}

var _ hal.Platform = (*Platform)(nil)

// New returns a simulated platform.
func New(cfg Config) *Platform {
	if cfg.Variant.IsZero() {
		cfg.Variant = hal.DefaultVariants()[0]
	}
	if cfg.Responder == nil {
		cfg.Responder = Echo
	}
	return &Platform{
		variant:   cfg.Variant,
		responder: cfg.Responder,
		attached:  cfg.Attached,
		signal:    make(chan struct{}, 1),
		failAfter: -1,
	}
}

// notify wakes a blocked Wait.
func (p *Platform) notify() {
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// Open implements [hal.Platform].
func (p *Platform) Open(variants []hal.Variant, frameSize int) (hal.Device, hal.Variant, error) {
	codec, err := frame.New(frameSize - frame.HeaderSize)
	if err != nil {
		return nil, hal.Variant{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.closed:
		return nil, hal.Variant{}, pkg.ErrNotRunning
	case p.dev != nil:
		return nil, hal.Variant{}, pkg.ErrBusy
	case !p.attached:
		return nil, hal.Variant{}, pkg.ErrNoDevice
	}

	i := slices.IndexFunc(variants, func(v hal.Variant) bool {
		return v == p.variant || v.MatchesNode(p.variant.DevName) || v.MatchesID(p.variant.VendorID, p.variant.ProductID)
	})
	if i < 0 {
		return nil, hal.Variant{}, fmt.Errorf("%w: simulated %s not requested", pkg.ErrNoDevice, p.variant.Name)
	}

	p.codec = codec
	p.asm = frame.NewReassembler(codec)
	p.dev = &Device{p: p}
	p.opens++
	pkg.LogDebug(pkg.ComponentHAL, "simulated device opened", "variant", variants[i].Name)
	return p.dev, variants[i], nil
}

// Wake implements [hal.Platform].
func (p *Platform) Wake() error {
	p.mu.Lock()
	p.woken = true
	p.mu.Unlock()
	p.notify()
	return nil
}

// Wait implements [hal.Platform].
func (p *Platform) Wait(events []hal.Event) (int, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return 0, pkg.ErrNotRunning
		}
		n := 0
		if p.woken && n < len(events) {
			events[n] = hal.Event{Kind: hal.EventCommand}
			n++
			p.woken = false
		}
		for len(p.events) > 0 && n < len(events) {
			events[n] = p.events[0]
			p.events = p.events[1:]
			n++
		}
		if p.dev != nil && len(p.inbox) > 0 && n < len(events) {
			events[n] = hal.Event{Kind: hal.EventIO}
			n++
		}
		p.mu.Unlock()

		if n > 0 {
			return n, nil
		}
		<-p.signal
	}
}

// Close implements [hal.Platform].
func (p *Platform) Close() error {
	p.mu.Lock()
	p.closed = true
	p.dev = nil
	p.mu.Unlock()
	p.notify()
	return nil
}

// =============================================================================
// Device
// =============================================================================

// Device is the engine's handle on the simulated device.
type Device struct {
	p         *Platform
	closed    bool
	unplugged bool
}

var _ hal.Device = (*Device)(nil)

// Service implements [hal.Device].
func (d *Device) Service(h hal.PacketHandler) error {
	for {
		progress := false

		for {
			pkt, err := d.p.nextInbound(d)
			if err != nil {
				return err
			}
			if pkt == nil {
				break
			}
			if err := h.PacketReceived(pkt); err != nil {
				return err
			}
			progress = true
		}

		for {
			pkt := h.NextPacket()
			if pkt == nil || d.p.stalled() {
				break
			}
			if err := d.p.accept(d, pkt); err != nil {
				return err
			}
			h.PacketSent()
			progress = true
		}

		if !progress {
			return nil
		}
	}
}

// Close implements [hal.Device].
func (d *Device) Close() error {
	d.p.mu.Lock()
	defer d.p.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.p.dev == d {
		d.p.dev = nil
		d.p.inbox = nil
		d.p.held = nil
		d.p.asm = nil
	}
	return nil
}

// usable reports why d can no longer do I/O. Called with p.mu held.
func (d *Device) usable() error {
	switch {
	case d.closed:
		return pkg.ErrDisconnected
	case d.unplugged:
		return fmt.Errorf("%w: simulated device unplugged", pkg.ErrNoDevice)
	}
	return nil
}

// nextInbound pops the next packet for the host.
func (p *Platform) nextInbound(d *Device) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := d.usable(); err != nil {
		return nil, err
	}
	if len(p.inbox) == 0 {
		return nil, nil
	}
	pkt := p.inbox[0]
	p.inbox[0] = nil
	p.inbox = p.inbox[1:]
	p.delivered++
	return pkt, nil
}

// stalled reports whether the staged packet's write would block.
func (p *Platform) stalled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writesPaused {
		p.stalls++
	}
	return p.writesPaused
}

// accept takes one packet written by the host and runs the device side.
func (p *Platform) accept(d *Device, pkt []byte) error {
	p.mu.Lock()
	if err := d.usable(); err != nil {
		p.mu.Unlock()
		return err
	}
	if p.failAfter >= 0 && len(p.written) >= p.failAfter {
		p.mu.Unlock()
		return fmt.Errorf("%w: simulated write failure", pkg.ErrDisconnected)
	}
	p.written = append(p.written, slices.Clone(pkt))

	done, err := p.asm.Push(pkt)
	if err != nil {
		p.asm.Reset()
		p.mu.Unlock()
		return fmt.Errorf("simulated device: %w", err)
	}
	if !done {
		p.mu.Unlock()
		return nil
	}
	opcode, payload := p.asm.Message()
	p.asm.Reset()
	p.requests = append(p.requests, Request{Opcode: opcode, Payload: payload})
	respond := p.responder
	codec := p.codec
	p.mu.Unlock()

	code, resp, reply := respond(opcode, payload)
	if !reply {
		return nil
	}
	pkts, err := codec.Segment(code, resp)
	if err != nil {
		return fmt.Errorf("simulated device response: %w", err)
	}

	p.mu.Lock()
	if p.holding {
		p.held = append(p.held, pkts...)
	} else {
		p.inbox = append(p.inbox, pkts...)
	}
	p.mu.Unlock()
	p.notify()
	return nil
}

// =============================================================================
// Test Hooks
// =============================================================================

// Plug attaches the device and reports an arrival.
func (p *Platform) Plug() {
	p.mu.Lock()
	p.attached = true
	p.events = append(p.events, hal.Event{Kind: hal.EventArrival, Name: p.variant.DevName})
	p.mu.Unlock()
	p.notify()
}

// Unplug detaches the device and reports a removal. The open handle fails
// all further I/O.
func (p *Platform) Unplug() {
	p.mu.Lock()
	p.attached = false
	if p.dev != nil {
		p.dev.unplugged = true
		p.events = append(p.events, hal.Event{Kind: hal.EventRemoval, Name: p.variant.DevName})
	}
	p.mu.Unlock()
	p.notify()
}

// SetResponder replaces the device script.
func (p *Platform) SetResponder(r Responder) {
	p.mu.Lock()
	p.responder = r
	p.mu.Unlock()
}

// HoldResponses withholds device responses while on. Turning it off
// releases every withheld packet in order.
func (p *Platform) HoldResponses(on bool) {
	p.mu.Lock()
	p.holding = on
	if !on {
		p.inbox = append(p.inbox, p.held...)
		p.held = nil
	}
	p.mu.Unlock()
	p.notify()
}

// PauseWrites makes every host write would-block while on. The host still
// stages its next packet, as it does against a full hidraw queue.
func (p *Platform) PauseWrites(on bool) {
	p.mu.Lock()
	p.writesPaused = on
	p.mu.Unlock()
	if !on {
		// The engine services the device on any wake.
		p.Wake()
	}
}

// FailAfter makes the write after the first k accepted packets fail. A
// negative k disables failure injection.
func (p *Platform) FailAfter(k int) {
	p.mu.Lock()
	p.failAfter = k
	p.mu.Unlock()
}

// InjectPacket queues a raw packet for the host.
func (p *Platform) InjectPacket(pkt []byte) error {
	p.mu.Lock()
	if p.dev == nil {
		p.mu.Unlock()
		return pkg.ErrNoDevice
	}
	p.inbox = append(p.inbox, slices.Clone(pkt))
	p.mu.Unlock()
	p.notify()
	return nil
}

// InjectEvent queues an unsolicited device event.
func (p *Platform) InjectEvent(code uint8, data []byte) error {
	p.mu.Lock()
	if p.dev == nil {
		p.mu.Unlock()
		return pkg.ErrNoDevice
	}
	pkt := make([]byte, p.codec.PacketSize())
	if err := p.codec.EncodeEvent(pkt, code, data); err != nil {
		p.mu.Unlock()
		return err
	}
	p.inbox = append(p.inbox, pkt)
	p.mu.Unlock()
	p.notify()
	return nil
}

// Written returns every packet the host wrote, in order.
func (p *Platform) Written() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.written)
}

// Requests returns every message the device reassembled, in order.
func (p *Platform) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.requests)
}

// Delivered returns the number of packets read by the host.
func (p *Platform) Delivered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delivered
}

// Opens returns the number of successful opens.
func (p *Platform) Opens() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opens
}

// Stalls returns the number of writes that would have blocked.
func (p *Platform) Stalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stalls
}
