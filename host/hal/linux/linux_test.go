//go:build linux

package linux

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ardnew/softhid/host/hal"
	"github.com/ardnew/softhid/pkg"
)

// waitFor waits on p until an event of the given kind arrives.
func waitFor(t *testing.T, p *Platform, kind hal.EventKind) hal.Event {
	t.Helper()
	type result struct {
		events []hal.Event
		err    error
	}
	for i := 0; i < 4; i++ {
		ch := make(chan result, 1)
		go func() {
			buf := make([]hal.Event, 8)
			n, err := p.Wait(buf)
			ch <- result{buf[:n], err}
		}()
		select {
		case r := <-ch:
			if r.err != nil {
				t.Fatalf("Wait failed: %v", r.err)
			}
			for _, ev := range r.events {
				if ev.Kind == kind {
					return ev
				}
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %v", kind)
		}
	}
	t.Fatalf("no %v event", kind)
	return hal.Event{}
}

func newTestPlatform(t *testing.T) (*Platform, string) {
	t.Helper()
	dir := t.TempDir()
	p, err := New(Config{DevDir: dir})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p, dir
}

// =============================================================================
// Platform Tests (requires Linux)
// =============================================================================

func TestPlatform_OpenMissing(t *testing.T) {
	p, _ := newTestPlatform(t)

	_, _, err := p.Open(hal.DefaultVariants(), 64)
	if !errors.Is(err, pkg.ErrNoDevice) {
		t.Errorf("Open error = %v, want ErrNoDevice", err)
	}
}

func TestPlatform_Wake(t *testing.T) {
	p, _ := newTestPlatform(t)

	if err := p.Wake(); err != nil {
		t.Fatalf("Wake failed: %v", err)
	}
	waitFor(t, p, hal.EventCommand)
}

func TestPlatform_ArrivalOpenRemoval(t *testing.T) {
	p, dir := newTestPlatform(t)
	variants := hal.DefaultVariants()

	if _, _, err := p.Open(variants, 64); !errors.Is(err, pkg.ErrNoDevice) {
		t.Fatalf("Open error = %v, want ErrNoDevice", err)
	}

	// Unrelated nodes produce no arrival
	if err := os.WriteFile(filepath.Join(dir, "hidraw0"), nil, 0o600); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	node := filepath.Join(dir, "signet")
	if err := unix.Mkfifo(node, 0o600); err != nil {
		t.Fatalf("mkfifo failed: %v", err)
	}

	ev := waitFor(t, p, hal.EventArrival)
	if ev.Name != "signet" {
		t.Errorf("arrival name = %q, want signet", ev.Name)
	}

	dev, v, err := p.Open(variants, 64)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if v.Name != "original" {
		t.Errorf("variant = %q, want original", v.Name)
	}
	if _, _, err := p.Open(variants, 64); !errors.Is(err, pkg.ErrBusy) {
		t.Errorf("second Open error = %v, want ErrBusy", err)
	}

	if err := os.Remove(node); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	ev = waitFor(t, p, hal.EventRemoval)
	if ev.Name != "signet" {
		t.Errorf("removal name = %q, want signet", ev.Name)
	}

	if err := dev.Close(); err != nil {
		t.Errorf("device Close failed: %v", err)
	}
}

func TestPlatform_OpenPreference(t *testing.T) {
	p, dir := newTestPlatform(t)
	for _, name := range []string{"signet", "signet-hc"} {
		if err := unix.Mkfifo(filepath.Join(dir, name), 0o600); err != nil {
			t.Fatalf("mkfifo failed: %v", err)
		}
	}

	dev, v, err := p.Open(hal.DefaultVariants(), 64)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer dev.Close()
	if v.Name != "hc" {
		t.Errorf("variant = %q, want hc", v.Name)
	}
}
