//go:build windows

package windows

import (
	"errors"
	"fmt"
	"strings"

	win "golang.org/x/sys/windows"

	"github.com/ardnew/softhid/host/hal"
	"github.com/ardnew/softhid/pkg"
)

// =============================================================================
// Platform
// =============================================================================

// Config configures a Windows platform. It is currently empty and reserved
// for interface selection options.
type Config struct{}

// Platform implements [hal.Platform] with WaitForMultipleObjects over a fixed
// set of objects: the command event, the notification event and, while a
// device is open, its read and write completion events.
type Platform struct {
	command win.Handle // Auto-reset, set by Wake
	notify  *notifier

	variants []hal.Variant
	dev      *Device
}

var _ hal.Platform = (*Platform)(nil)

// New creates a platform and registers for HID interface notifications.
func New(cfg Config) (*Platform, error) {
	command, err := win.CreateEvent(nil, 0, 0, nil)
	if err != nil {
		return nil, fmt.Errorf("CreateEvent: %w", err)
	}
	n, err := newNotifier()
	if err != nil {
		win.CloseHandle(command)
		return nil, err
	}
	pkg.LogDebug(pkg.ComponentHAL, "windows platform created")
	return &Platform{command: command, notify: n}, nil
}

// Open implements [hal.Platform]. Every present HID interface is inspected;
// the one matching the earliest variant whose report size equals the frame
// plus its report id is opened.
func (p *Platform) Open(variants []hal.Variant, frameSize int) (hal.Device, hal.Variant, error) {
	p.variants = variants
	if p.dev != nil && !p.dev.closed {
		return nil, hal.Variant{}, fmt.Errorf("%w: %s already open", pkg.ErrBusy, p.dev.path)
	}

	paths, err := listInterfaces()
	if err != nil {
		return nil, hal.Variant{}, fmt.Errorf("%w: list interfaces: %w", pkg.ErrNoDevice, err)
	}

	best := -1
	var (
		bestHandle win.Handle
		bestPath   string
	)
	for _, path := range paths {
		if !pathMayMatch(variants, path) {
			continue
		}
		h, err := openInterface(path)
		if err != nil {
			pkg.LogDebug(pkg.ComponentHAL, "interface open failed", "path", path, "error", err)
			continue
		}
		idx := -1
		if vid, pid, err := attributes(h); err == nil {
			idx = variantIndex(variants, vid, pid)
		}
		if idx < 0 || (best >= 0 && idx >= best) {
			win.CloseHandle(h)
			continue
		}
		in, out, err := reportLengths(h)
		if err != nil || in != frameSize+reportIDSize || out != frameSize+reportIDSize {
			win.CloseHandle(h)
			continue
		}
		if best >= 0 {
			win.CloseHandle(bestHandle)
		}
		best, bestHandle, bestPath = idx, h, path
	}
	if best < 0 {
		return nil, hal.Variant{}, pkg.ErrNoDevice
	}

	d, err := newDevice(bestHandle, bestPath, frameSize)
	if err != nil {
		win.CloseHandle(bestHandle)
		return nil, hal.Variant{}, err
	}
	d.variant = variants[best]
	p.dev = d

	pkg.LogInfo(pkg.ComponentHAL, "interface opened", "path", bestPath, "variant", d.variant.Name)
	return d, d.variant, nil
}

// Wake implements [hal.Platform].
func (p *Platform) Wake() error {
	return win.SetEvent(p.command)
}

// Wait implements [hal.Platform].
func (p *Platform) Wait(events []hal.Event) (int, error) {
	for {
		handles := []win.Handle{p.command, p.notify.event}
		if p.dev != nil && !p.dev.closed {
			handles = append(handles, p.dev.readOv.HEvent, p.dev.writeOv.HEvent)
		}

		r, err := win.WaitForMultipleObjects(handles, false, win.INFINITE)
		if err != nil {
			return 0, fmt.Errorf("WaitForMultipleObjects: %w", err)
		}
		idx := int(r - win.WAIT_OBJECT_0)
		if idx < 0 || idx >= len(handles) {
			return 0, fmt.Errorf("WaitForMultipleObjects: unexpected result 0x%x", r)
		}

		switch idx {
		case waitCommand:
			return fill(events, hal.Event{Kind: hal.EventCommand}), nil
		case waitRead, waitWrite:
			return fill(events, hal.Event{Kind: hal.EventIO}), nil
		case waitNotify:
			if n := p.notifications(events); n > 0 {
				return n, nil
			}
		}
	}
}

// notifications converts recorded callback events. Arrivals are limited to
// interfaces of requested variants and removals to the open interface.
func (p *Platform) notifications(events []hal.Event) int {
	count := 0
	for _, ev := range p.notify.take() {
		if count == len(events) {
			break
		}
		switch ev.Kind {
		case hal.EventArrival:
			if !pathMayMatch(p.variants, ev.Name) {
				continue
			}
		case hal.EventRemoval:
			if p.dev == nil || p.dev.closed || !strings.EqualFold(p.dev.path, ev.Name) {
				continue
			}
		}
		pkg.LogDebug(pkg.ComponentHAL, "interface notification", "kind", ev.Kind, "path", ev.Name)
		events[count] = ev
		count++
	}
	return count
}

func fill(events []hal.Event, ev hal.Event) int {
	if len(events) == 0 {
		return 0
	}
	events[0] = ev
	return 1
}

// Close implements [hal.Platform].
func (p *Platform) Close() error {
	var errs []error
	if p.dev != nil {
		errs = append(errs, p.dev.Close())
		p.dev = nil
	}
	errs = append(errs, p.notify.close(), win.CloseHandle(p.command))
	return errors.Join(errs...)
}
