//go:build linux

package linux

import (
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/ardnew/softhid/host/hal"
	"github.com/ardnew/softhid/pkg"
)

// =============================================================================
// Platform
// =============================================================================

// Config configures a Linux platform.
type Config struct {
	// DevDir is the directory holding device nodes. Empty selects
	// DefaultDevDir.
	DevDir string
}

// Platform implements [hal.Platform] with epoll. A single wait multiplexes
// the wake eventfd, the inotify descriptor of the device directory and the
// open device.
type Platform struct {
	devDir  string
	poller  *poller
	hotplug *hotplugMonitor

	variants []hal.Variant // Last requested open set, for arrival filtering
	dev      *Device

	events [MaxEpollEvents]unix.EpollEvent
}

var _ hal.Platform = (*Platform)(nil)

// New creates a platform watching cfg.DevDir.
func New(cfg Config) (*Platform, error) {
	if cfg.DevDir == "" {
		cfg.DevDir = DefaultDevDir
	}

	p, err := newPoller()
	if err != nil {
		return nil, fmt.Errorf("epoll: %w", err)
	}

	hp, err := newHotplugMonitor(cfg.DevDir)
	if err != nil {
		p.close()
		return nil, fmt.Errorf("inotify %s: %w", cfg.DevDir, err)
	}

	if err := p.add(hp.fd, unix.EPOLLIN); err != nil {
		hp.close()
		p.close()
		return nil, fmt.Errorf("epoll add inotify: %w", err)
	}

	pkg.LogDebug(pkg.ComponentHAL, "linux platform created", "dir", cfg.DevDir)
	return &Platform{
		devDir:  cfg.DevDir,
		poller:  p,
		hotplug: hp,
	}, nil
}

// Open implements [hal.Platform]. Variants are tried in order by node name.
func (p *Platform) Open(variants []hal.Variant, frameSize int) (hal.Device, hal.Variant, error) {
	p.variants = variants
	if p.dev != nil && !p.dev.closed {
		return nil, hal.Variant{}, fmt.Errorf("%w: %s already open", pkg.ErrBusy, p.dev.path)
	}

	var errs []error
	for _, v := range variants {
		if v.DevName == "" {
			continue
		}
		path := filepath.Join(p.devDir, v.DevName)
		d, err := openDevice(path, frameSize)
		if err != nil {
			if !errors.Is(err, unix.ENOENT) {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
			}
			continue
		}
		if err := p.poller.add(d.fd, deviceEvents); err != nil {
			unix.Close(d.fd)
			errs = append(errs, fmt.Errorf("epoll add %s: %w", path, err))
			continue
		}
		d.variant = v
		d.onClose = func(fd int) { p.poller.del(fd) }
		p.dev = d

		pkg.LogInfo(pkg.ComponentHAL, "device node opened", "path", path, "variant", v.Name)
		return d, v, nil
	}

	if len(errs) > 0 {
		return nil, hal.Variant{}, fmt.Errorf("%w: %w", pkg.ErrNoDevice, errors.Join(errs...))
	}
	return nil, hal.Variant{}, pkg.ErrNoDevice
}

// Wake implements [hal.Platform].
func (p *Platform) Wake() error {
	return p.poller.wake()
}

// Wait implements [hal.Platform].
func (p *Platform) Wait(events []hal.Event) (int, error) {
	for {
		n, err := p.poller.wait(p.events[:], -1)
		if err != nil {
			return 0, fmt.Errorf("epoll wait: %w", err)
		}

		count := 0
		emit := func(ev hal.Event) {
			if count < len(events) {
				events[count] = ev
				count++
			}
		}

		for i := 0; i < n; i++ {
			fd := int(p.events[i].Fd)
			mask := p.events[i].Events

			switch {
			case fd == p.poller.wakefd:
				p.poller.drainWake()
				emit(hal.Event{Kind: hal.EventCommand})

			case fd == p.hotplug.fd:
				changes, err := p.hotplug.read()
				if err != nil {
					return 0, fmt.Errorf("inotify read: %w", err)
				}
				for _, c := range changes {
					if ev, ok := p.classify(c); ok {
						emit(ev)
					}
				}

			case p.dev != nil && !p.dev.closed && fd == p.dev.fd:
				if mask&errorEvents != 0 {
					emit(hal.Event{Kind: hal.EventDeviceError, Name: p.dev.Name()})
				} else {
					emit(hal.Event{Kind: hal.EventIO})
				}
			}
		}

		if count > 0 {
			return count, nil
		}
	}
}

// classify turns a directory change into an engine event. Only nodes of a
// requested variant produce arrivals, and only the open node produces a
// removal.
func (p *Platform) classify(c nodeEvent) (hal.Event, bool) {
	if c.created {
		if _, ok := hal.MatchNode(p.variants, c.name); ok {
			pkg.LogDebug(pkg.ComponentHAL, "device node appeared", "name", c.name)
			return hal.Event{Kind: hal.EventArrival, Name: c.name}, true
		}
		return hal.Event{}, false
	}
	if p.dev != nil && !p.dev.closed && p.dev.Name() == c.name {
		pkg.LogDebug(pkg.ComponentHAL, "device node removed", "name", c.name)
		return hal.Event{Kind: hal.EventRemoval, Name: c.name}, true
	}
	return hal.Event{}, false
}

// Close implements [hal.Platform].
func (p *Platform) Close() error {
	var errs []error
	if p.dev != nil {
		errs = append(errs, p.dev.Close())
		p.dev = nil
	}
	errs = append(errs, p.hotplug.close(), p.poller.close())
	return errors.Join(errs...)
}
