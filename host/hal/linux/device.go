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
// Device
// =============================================================================

// Device is an open hidraw node. Reads return one logical packet; writes
// carry a leading report id byte.
type Device struct {
	fd      int
	path    string
	variant hal.Variant

	rbuf []byte
	wbuf []byte

	// onClose unregisters the descriptor from the platform.
	onClose func(fd int)
	closed  bool
}

var _ hal.Device = (*Device)(nil)

// openDevice opens path for non-blocking packet I/O of frameSize bytes.
func openDevice(path string, frameSize int) (*Device, error) {
	fd, err := unix.Open(path, deviceOpenFlags, 0)
	if err != nil {
		return nil, err
	}
	return newDevice(fd, path, frameSize), nil
}

// newDevice wraps an already open non-blocking descriptor.
func newDevice(fd int, path string, frameSize int) *Device {
	return &Device{
		fd:   fd,
		path: path,
		rbuf: make([]byte, frameSize+reportIDSize),
		wbuf: make([]byte, frameSize+reportIDSize),
	}
}

// Name returns the device node name.
func (d *Device) Name() string {
	return filepath.Base(d.path)
}

// Variant returns the variant the device was opened as.
func (d *Device) Variant() hal.Variant {
	return d.variant
}

// Service implements [hal.Device]. It reads until EAGAIN, then writes until
// the handler has nothing more or the descriptor would block, and repeats
// while either direction made progress.
func (d *Device) Service(h hal.PacketHandler) error {
	if d.closed {
		return pkg.ErrDisconnected
	}
	frameSize := len(d.wbuf) - reportIDSize

	for {
		progress := false

		for {
			n, err := unix.Read(d.fd, d.rbuf)
			if err == unix.EINTR {
				continue
			}
			if err := d.ioError("read", err); errors.Is(err, pkg.ErrWouldBlock) {
				break
			} else if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("%w: %s: end of file", pkg.ErrDisconnected, d.path)
			}
			if n < frameSize {
				return fmt.Errorf("%w: %s: short read of %d bytes", pkg.ErrProtocol, d.path, n)
			}
			if err := h.PacketReceived(d.rbuf[:frameSize]); err != nil {
				return err
			}
			progress = true
		}

		for {
			pkt := h.NextPacket()
			if pkt == nil {
				break
			}
			d.wbuf[0] = 0
			copy(d.wbuf[reportIDSize:], pkt)

			n, err := unix.Write(d.fd, d.wbuf)
			if err == unix.EINTR {
				continue
			}
			if err := d.ioError("write", err); errors.Is(err, pkg.ErrWouldBlock) {
				// The handler keeps the packet staged for the next pass.
				break
			} else if err != nil {
				return err
			}
			if n != len(d.wbuf) {
				return fmt.Errorf("%w: %s: short write of %d bytes", pkg.ErrDisconnected, d.path, n)
			}
			h.PacketSent()
			progress = true
		}

		if !progress {
			return nil
		}
	}
}

// ioError classifies a descriptor error. EAGAIN becomes pkg.ErrWouldBlock;
// every other failure ends the connection, with the errno kept for logging.
func (d *Device) ioError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EAGAIN):
		return fmt.Errorf("%w: %s %s", pkg.ErrWouldBlock, op, d.path)
	}
	if errors.Is(err, unix.ENODEV) || errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("%w: %s %s: %w", pkg.ErrNoDevice, op, d.path, err)
	}
	return fmt.Errorf("%w: %s %s: %w", pkg.ErrDisconnected, op, d.path, err)
}

// Close implements [hal.Device].
func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.onClose != nil {
		d.onClose(d.fd)
	}
	return unix.Close(d.fd)
}
