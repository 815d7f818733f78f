//go:build linux

package poller

import (
	"slices"

	"golang.org/x/sys/unix"
)

const (
	pollReadable = unix.POLLIN | unix.POLLPRI
	pollHangup   = unix.POLLHUP | unix.POLLERR | unix.POLLNVAL
)

// pollPoller 以 pollfd 数组代替位图，去掉 FD_SETSIZE 限制，但保留容量上限
type pollPoller struct {
	w      *waker
	pfds   []unix.PollFd // [0] 固定为唤醒 fd
	cap    int
	closed bool
}

func newPollPoller(capacity int) (*pollPoller, error) {
	w, err := newWaker()
	if err != nil {
		return nil, err
	}
	p := &pollPoller{w: w, cap: capacity}
	p.pfds = append(p.pfds, unix.PollFd{Fd: int32(w.fd), Events: unix.POLLIN})
	return p, nil
}

func (p *pollPoller) Kind() Kind { return Poll }
func (p *pollPoller) Len() int   { return len(p.pfds) - 1 }
func (p *pollPoller) Cap() int   { return p.cap }

func (p *pollPoller) find(fd FD) int {
	for i := 1; i < len(p.pfds); i++ {
		if int(p.pfds[i].Fd) == fd {
			return i
		}
	}
	return -1
}

func (p *pollPoller) Add(fd FD) error {
	if p.closed {
		return ErrClosed
	}
	if fd < 0 {
		return unix.EBADF
	}
	if p.find(fd) >= 0 {
		return ErrExists
	}
	if p.cap > 0 && p.Len() >= p.cap {
		return ErrFull
	}
	p.pfds = append(p.pfds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	return nil
}

func (p *pollPoller) Remove(fd FD) error {
	i := p.find(fd)
	if i < 0 {
		return ErrNotWatched
	}
	p.pfds = slices.Delete(p.pfds, i, i+1)
	return nil
}

func (p *pollPoller) Wait(events []Event) (int, error) {
	if p.closed {
		return 0, ErrClosed
	}
	if len(events) == 0 {
		return 0, ErrNoRoom
	}
	for {
		_, err := unix.Poll(p.pfds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		break
	}
	if p.pfds[0].Revents != 0 {
		p.w.drain()
	}
	n := 0
	for i := 1; i < len(p.pfds) && n < len(events); i++ {
		rev := p.pfds[i].Revents
		if rev&(pollReadable|pollHangup) == 0 {
			continue
		}
		events[n] = Event{Fd: int(p.pfds[i].Fd), Hangup: rev&pollHangup != 0}
		n++
	}
	return n, nil
}

func (p *pollPoller) Wake() error { return p.w.wake() }

func (p *pollPoller) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.pfds = nil
	return p.w.close()
}
