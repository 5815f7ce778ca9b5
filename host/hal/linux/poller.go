//go:build linux

package linux

import (
	"errors"
	"sync"

	"golang.org/x/sys/unix"
)

// =============================================================================
// Poller
// =============================================================================

// poller wraps an epoll instance with an eventfd used to wake a blocked wait
// from another goroutine.
type poller struct {
	epfd   int
	wakefd int

	mu     sync.Mutex
	closed bool
}

// newPoller creates a new poller instance.
func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}

	p := &poller{epfd: epfd, wakefd: wakefd}

	if err := p.add(wakefd, unix.EPOLLIN); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, err
	}
	return p, nil
}

// close releases the epoll instance and the eventfd. Closing twice is a
// no-op.
func (p *poller) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return errors.Join(unix.Close(p.wakefd), unix.Close(p.epfd))
}

// add registers fd for the given events.
func (p *poller) add(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// del removes fd from the interest set.
func (p *poller) del(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// wake makes a blocked or subsequent wait return. Safe from any goroutine.
func (p *poller) wake() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return unix.EBADF
	}
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(p.wakefd, buf[:])
	if err == unix.EAGAIN {
		// Counter saturated; a wake is already pending.
		return nil
	}
	return err
}

// drainWake resets the eventfd counter.
func (p *poller) drainWake() {
	var buf [8]byte
	unix.Read(p.wakefd, buf[:])
}

// wait blocks for readiness events. timeout is in milliseconds, -1 for
// infinite. Interrupted waits are retried.
func (p *poller) wait(events []unix.EpollEvent, timeout int) (int, error) {
	for {
		n, err := unix.EpollWait(p.epfd, events, timeout)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}
