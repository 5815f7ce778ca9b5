package fifo

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/ardnew/softhid/host/frame"
	"github.com/ardnew/softhid/host/hal"
	"github.com/ardnew/softhid/pkg"
)

// =============================================================================
// Test Helpers
// =============================================================================

const testPayloadSize = 8

var testCodec = frame.Must(testPayloadSize)

// mockHandler sends pre-segmented packets and records what it receives.
type mockHandler struct {
	out      [][]byte
	sent     int
	peeks    int
	received [][]byte
}

func (m *mockHandler) NextPacket() []byte {
	m.peeks++
	if m.sent >= len(m.out) {
		return nil
	}
	return m.out[m.sent]
}

func (m *mockHandler) PacketSent() { m.sent++ }

func (m *mockHandler) PacketReceived(pkt []byte) error {
	m.received = append(m.received, bytes.Clone(pkt))
	return nil
}

func openSim(t *testing.T, cfg Config) (*Platform, hal.Device) {
	t.Helper()
	cfg.Attached = true
	p := New(cfg)
	dev, _, err := p.Open(hal.DefaultVariants(), testCodec.PacketSize())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return p, dev
}

func waitEvents(t *testing.T, p *Platform) []hal.Event {
	t.Helper()
	ch := make(chan []hal.Event, 1)
	go func() {
		buf := make([]hal.Event, 8)
		n, _ := p.Wait(buf)
		ch <- buf[:n]
	}()
	select {
	case evs := <-ch:
		return evs
	case <-time.After(2 * time.Second):
		t.Fatal("Wait timed out")
		return nil
	}
}

// =============================================================================
// Platform Tests
// =============================================================================

func TestPlatform_OpenAndPlug(t *testing.T) {
	p := New(Config{})
	variants := hal.DefaultVariants()

	if _, _, err := p.Open(variants, testCodec.PacketSize()); !errors.Is(err, pkg.ErrNoDevice) {
		t.Fatalf("Open while detached = %v, want ErrNoDevice", err)
	}

	p.Plug()
	evs := waitEvents(t, p)
	if len(evs) != 1 || evs[0].Kind != hal.EventArrival || evs[0].Name != "signet-hc" {
		t.Fatalf("events = %+v, want arrival of signet-hc", evs)
	}

	_, v, err := p.Open(variants, testCodec.PacketSize())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if v.Name != "hc" {
		t.Errorf("variant = %q, want hc", v.Name)
	}
	if _, _, err := p.Open(variants, testCodec.PacketSize()); !errors.Is(err, pkg.ErrBusy) {
		t.Errorf("second Open = %v, want ErrBusy", err)
	}
	if p.Opens() != 1 {
		t.Errorf("Opens() = %d, want 1", p.Opens())
	}
}

func TestPlatform_OpenUnrequestedVariant(t *testing.T) {
	p := New(Config{Attached: true})
	only := []hal.Variant{hal.DefaultVariants()[1]}
	if _, _, err := p.Open(only, testCodec.PacketSize()); !errors.Is(err, pkg.ErrNoDevice) {
		t.Errorf("Open = %v, want ErrNoDevice", err)
	}
}

func TestPlatform_Wake(t *testing.T) {
	p := New(Config{})
	p.Wake()
	p.Wake()
	evs := waitEvents(t, p)
	if len(evs) != 1 || evs[0].Kind != hal.EventCommand {
		t.Errorf("events = %+v, want one command event", evs)
	}
}

func TestPlatform_CloseUnblocksWait(t *testing.T) {
	p := New(Config{})
	done := make(chan error, 1)
	go func() {
		_, err := p.Wait(make([]hal.Event, 1))
		done <- err
	}()
	p.Close()
	select {
	case err := <-done:
		if !errors.Is(err, pkg.ErrNotRunning) {
			t.Errorf("Wait after Close = %v, want ErrNotRunning", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait not unblocked by Close")
	}
}

// =============================================================================
// Device Tests
// =============================================================================

func TestDevice_EchoExchange(t *testing.T) {
	p, dev := openSim(t, Config{Responder: Echo})

	payload := []byte("twelve bytes")
	pkts, _ := testCodec.Segment(0x10, payload)
	h := &mockHandler{out: pkts}

	if err := dev.Service(h); err != nil {
		t.Fatalf("Service failed: %v", err)
	}
	if h.sent != 2 || len(p.Written()) != 2 {
		t.Fatalf("sent = %d, written = %d, want 2", h.sent, len(p.Written()))
	}

	reqs := p.Requests()
	if len(reqs) != 1 || reqs[0].Opcode != 0x10 || !bytes.Equal(reqs[0].Payload, payload) {
		t.Fatalf("requests = %+v", reqs)
	}

	// The response was read in the same service pass
	r := frame.NewReassembler(testCodec)
	for _, pkt := range h.received {
		if _, err := r.Push(pkt); err != nil {
			t.Fatalf("response Push failed: %v", err)
		}
	}
	code, got := r.Message()
	if code != 0x10 || !bytes.Equal(got, payload) {
		t.Errorf("response = 0x%02x %q", code, got)
	}
	if p.Delivered() != 2 {
		t.Errorf("Delivered() = %d, want 2", p.Delivered())
	}
}

func TestDevice_HoldResponses(t *testing.T) {
	p, dev := openSim(t, Config{Responder: Echo})
	p.HoldResponses(true)

	pkts, _ := testCodec.Segment(1, []byte{1})
	h := &mockHandler{out: pkts}
	if err := dev.Service(h); err != nil {
		t.Fatalf("Service failed: %v", err)
	}
	if len(h.received) != 0 {
		t.Fatalf("received %d packets while holding", len(h.received))
	}

	p.HoldResponses(false)
	if err := dev.Service(h); err != nil {
		t.Fatalf("Service failed: %v", err)
	}
	if len(h.received) != 1 {
		t.Errorf("received %d packets after release, want 1", len(h.received))
	}
}

func TestDevice_PauseWrites(t *testing.T) {
	p, dev := openSim(t, Config{Responder: Silent})
	p.PauseWrites(true)

	pkts, _ := testCodec.Segment(1, nil)
	h := &mockHandler{out: pkts}
	if err := dev.Service(h); err != nil {
		t.Fatalf("Service failed: %v", err)
	}
	if h.sent != 0 {
		t.Fatalf("sent %d packets while paused", h.sent)
	}
	if h.peeks == 0 || p.Stalls() != 1 {
		t.Fatalf("peeks = %d, stalls = %d, want a staged packet that would block", h.peeks, p.Stalls())
	}

	p.PauseWrites(false)
	if err := dev.Service(h); err != nil {
		t.Fatalf("Service failed: %v", err)
	}
	if h.sent != 1 {
		t.Errorf("sent = %d after resume, want 1", h.sent)
	}
}

func TestDevice_FailAfter(t *testing.T) {
	p, dev := openSim(t, Config{Responder: Silent})
	p.FailAfter(1)

	pkts, _ := testCodec.Segment(1, make([]byte, 3*testPayloadSize))
	h := &mockHandler{out: pkts}
	err := dev.Service(h)
	if !errors.Is(err, pkg.ErrDisconnected) {
		t.Fatalf("Service error = %v, want ErrDisconnected", err)
	}
	if h.sent != 1 || len(p.Written()) != 1 {
		t.Errorf("sent = %d, written = %d, want 1", h.sent, len(p.Written()))
	}
}

func TestDevice_Unplug(t *testing.T) {
	p, dev := openSim(t, Config{})
	p.Unplug()

	evs := waitEvents(t, p)
	if len(evs) != 1 || evs[0].Kind != hal.EventRemoval {
		t.Fatalf("events = %+v, want removal", evs)
	}
	if err := dev.Service(&mockHandler{}); !errors.Is(err, pkg.ErrNoDevice) {
		t.Errorf("Service after unplug = %v, want ErrNoDevice", err)
	}
	if _, _, err := p.Open(hal.DefaultVariants(), testCodec.PacketSize()); err == nil {
		t.Error("Open succeeded while the old handle is still open")
	}

	dev.Close()
	if _, _, err := p.Open(hal.DefaultVariants(), testCodec.PacketSize()); !errors.Is(err, pkg.ErrNoDevice) {
		t.Errorf("Open after unplug = %v, want ErrNoDevice", err)
	}
}

func TestDevice_InjectEvent(t *testing.T) {
	p, dev := openSim(t, Config{})

	if err := p.InjectEvent(0x42, []byte{7}); err != nil {
		t.Fatalf("InjectEvent failed: %v", err)
	}
	evs := waitEvents(t, p)
	if len(evs) != 1 || evs[0].Kind != hal.EventIO {
		t.Fatalf("events = %+v, want io", evs)
	}

	h := &mockHandler{}
	if err := dev.Service(h); err != nil {
		t.Fatalf("Service failed: %v", err)
	}
	if len(h.received) != 1 || !frame.IsEvent(h.received[0]) {
		t.Fatalf("received = %v, want one event packet", h.received)
	}
	code, data, err := testCodec.DecodeEvent(h.received[0])
	if err != nil || code != 0x42 || !bytes.Equal(data, []byte{7}) {
		t.Errorf("DecodeEvent = 0x%02x % x, %v", code, data, err)
	}
}

func TestDevice_CloseDropsInbox(t *testing.T) {
	p, dev := openSim(t, Config{})
	p.InjectPacket(make([]byte, testCodec.PacketSize()))
	dev.Close()

	if err := dev.Service(&mockHandler{}); !errors.Is(err, pkg.ErrDisconnected) {
		t.Errorf("Service after Close = %v, want ErrDisconnected", err)
	}
	if err := p.InjectPacket([]byte{1}); !errors.Is(err, pkg.ErrNoDevice) {
		t.Errorf("InjectPacket without device = %v, want ErrNoDevice", err)
	}
}
