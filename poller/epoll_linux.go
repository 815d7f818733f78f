//go:build linux

package poller

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// epollPoller 通过 epoll_ctl 显式注册/注销，兴趣集无固定上限（cap 为 0 时）。
// 连接 fd 以水平触发注册：未读走的数据会在下一轮继续报告，
// 因此调用方必须先 Remove 再分发。
type epollPoller struct {
	efd     int
	w       *waker
	watched map[int]struct{}
	cap     int
	raw     []unix.EpollEvent
	closed  bool
}

func newEpollPoller(capacity int) (*epollPoller, error) {
	efd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	w, err := newWaker()
	if err != nil {
		unix.Close(efd)
		return nil, err
	}
	// 注册 wakeup fd
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(w.fd)}
	if err := unix.EpollCtl(efd, unix.EPOLL_CTL_ADD, w.fd, ev); err != nil {
		w.close()
		unix.Close(efd)
		return nil, err
	}
	return &epollPoller{efd: efd, w: w, watched: make(map[int]struct{}), cap: capacity}, nil
}

func (p *epollPoller) Kind() Kind { return Epoll }
func (p *epollPoller) Len() int   { return len(p.watched) }
func (p *epollPoller) Cap() int   { return p.cap }

func (p *epollPoller) Add(fd FD) error {
	if p.closed {
		return ErrClosed
	}
	if _, ok := p.watched[fd]; ok {
		return ErrExists
	}
	if p.cap > 0 && len(p.watched) >= p.cap {
		return ErrFull
	}
	ev := &unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLRDHUP, Fd: int32(fd)}
	if err := unix.EpollCtl(p.efd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return err
	}
	p.watched[fd] = struct{}{}
	return nil
}

func (p *epollPoller) Remove(fd FD) error {
	if _, ok := p.watched[fd]; !ok {
		return ErrNotWatched
	}
	delete(p.watched, fd)
	return unix.EpollCtl(p.efd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) Wait(events []Event) (int, error) {
	defer runtime.KeepAlive(p)
	if p.closed {
		return 0, ErrClosed
	}
	if len(events) == 0 {
		return 0, ErrNoRoom
	}
	if cap(p.raw) < len(events) {
		p.raw = make([]unix.EpollEvent, len(events))
	}
	raw := p.raw[:len(events)]
	var nr int
	for {
		var err error
		nr, err = unix.EpollWait(p.efd, raw, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		break
	}
	n := 0
	for i := 0; i < nr; i++ {
		ev := raw[i]
		fd := int(ev.Fd)
		if fd == p.w.fd {
			p.w.drain()
			continue
		}
		events[n] = Event{Fd: fd, Hangup: ev.Events&(unix.EPOLLHUP|unix.EPOLLERR|unix.EPOLLRDHUP) != 0}
		n++
	}
	return n, nil
}

func (p *epollPoller) Wake() error { return p.w.wake() }

func (p *epollPoller) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.watched = nil
	p.w.close()
	return unix.Close(p.efd)
}
