//go:build windows

package windows

import (
	"errors"
	"fmt"

	win "golang.org/x/sys/windows"

	"github.com/ardnew/softhid/host/hal"
	"github.com/ardnew/softhid/pkg"
)

// =============================================================================
// Device
// =============================================================================

// Device is an open HID interface using overlapped I/O. One read is kept
// outstanding at all times; at most one write is outstanding.
type Device struct {
	handle  win.Handle
	path    string
	variant hal.Variant

	readOv  win.Overlapped
	writeOv win.Overlapped

	rbuf []byte
	wbuf []byte

	readPending  bool
	writePending bool
	closed       bool
}

var _ hal.Device = (*Device)(nil)

// newDevice takes ownership of handle. Each direction gets a manual-reset
// event that the platform waits on.
func newDevice(handle win.Handle, path string, frameSize int) (*Device, error) {
	readEvent, err := win.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		return nil, fmt.Errorf("CreateEvent: %w", err)
	}
	writeEvent, err := win.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		win.CloseHandle(readEvent)
		return nil, fmt.Errorf("CreateEvent: %w", err)
	}

	d := &Device{
		handle: handle,
		path:   path,
		rbuf:   make([]byte, frameSize+reportIDSize),
		wbuf:   make([]byte, frameSize+reportIDSize),
	}
	d.readOv.HEvent = readEvent
	d.writeOv.HEvent = writeEvent
	return d, nil
}

// Path returns the interface path.
func (d *Device) Path() string {
	return d.path
}

// Variant returns the variant the device was opened as.
func (d *Device) Variant() hal.Variant {
	return d.variant
}

// Service implements [hal.Device]. Completed operations are harvested
// without blocking and new ones are issued until neither direction can
// advance. A write is reported sent once it is issued: from then on the
// system owns the frame and the host may not take it back.
func (d *Device) Service(h hal.PacketHandler) error {
	if d.closed {
		return pkg.ErrDisconnected
	}

	for {
		progress := false

		if d.readPending {
			var n uint32
			err := d.ioError("read", win.GetOverlappedResult(d.handle, &d.readOv, &n, false))
			switch {
			case errors.Is(err, pkg.ErrWouldBlock):
			case err != nil:
				d.readPending = false
				return err
			default:
				d.readPending = false
				if int(n) != len(d.rbuf) {
					return fmt.Errorf("%w: %s: read %d bytes, want %d", pkg.ErrProtocol, d.path, n, len(d.rbuf))
				}
				if err := h.PacketReceived(d.rbuf[reportIDSize:]); err != nil {
					return err
				}
				progress = true
			}
		}
		if !d.readPending {
			err := d.ioError("read", win.ReadFile(d.handle, d.rbuf, nil, &d.readOv))
			if err != nil && !errors.Is(err, pkg.ErrWouldBlock) {
				return err
			}
			// A synchronous completion is harvested on the next pass.
			d.readPending = true
			if err == nil {
				progress = true
			}
		}

		if d.writePending {
			var n uint32
			err := d.ioError("write", win.GetOverlappedResult(d.handle, &d.writeOv, &n, false))
			switch {
			case errors.Is(err, pkg.ErrWouldBlock):
			case err != nil:
				d.writePending = false
				return err
			default:
				d.writePending = false
				// The event stays signaled until the next write starts.
				win.ResetEvent(d.writeOv.HEvent)
				if int(n) != len(d.wbuf) {
					return fmt.Errorf("%w: %s: wrote %d bytes, want %d", pkg.ErrDisconnected, d.path, n, len(d.wbuf))
				}
				progress = true
			}
		}
		if !d.writePending {
			if pkt := h.NextPacket(); pkt != nil {
				d.wbuf[0] = 0
				copy(d.wbuf[reportIDSize:], pkt)
				err := d.ioError("write", win.WriteFile(d.handle, d.wbuf, nil, &d.writeOv))
				if err != nil && !errors.Is(err, pkg.ErrWouldBlock) {
					return err
				}
				d.writePending = true
				h.PacketSent()
				progress = true
			}
		}

		if !progress {
			return nil
		}
	}
}

// ioError classifies an I/O result. An operation still in flight becomes
// pkg.ErrWouldBlock; every other failure ends the connection.
func (d *Device) ioError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, win.ERROR_IO_PENDING), errors.Is(err, win.ERROR_IO_INCOMPLETE):
		return fmt.Errorf("%w: %s %s", pkg.ErrWouldBlock, op, d.path)
	case errors.Is(err, win.ERROR_DEVICE_NOT_CONNECTED), errors.Is(err, win.ERROR_FILE_NOT_FOUND):
		return fmt.Errorf("%w: %s %s: %w", pkg.ErrNoDevice, op, d.path, err)
	}
	return fmt.Errorf("%w: %s %s: %w", pkg.ErrDisconnected, op, d.path, err)
}

// Close implements [hal.Device]. Outstanding operations are cancelled and
// reaped before the buffers are released.
func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	if d.readPending || d.writePending {
		win.CancelIoEx(d.handle, nil)
		var n uint32
		if d.readPending {
			win.GetOverlappedResult(d.handle, &d.readOv, &n, true)
		}
		if d.writePending {
			win.GetOverlappedResult(d.handle, &d.writeOv, &n, true)
		}
		d.readPending, d.writePending = false, false
	}

	return errors.Join(
		win.CloseHandle(d.handle),
		win.CloseHandle(d.readOv.HEvent),
		win.CloseHandle(d.writeOv.HEvent),
	)
}
