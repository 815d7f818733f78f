//go:build linux

package poller

import (
	"slices"
	"unsafe"

	"golang.org/x/sys/unix"
)

// FdSetSize 为 select 位图能表示的描述符上限（FD_SETSIZE）
const FdSetSize = int(unsafe.Sizeof(unix.FdSet{}) * 8)

type selectPoller struct {
	w      *waker
	fds    []int // 按加入顺序
	index  map[int]struct{}
	cap    int
	rset   unix.FdSet
	closed bool
}

func newSelectPoller(capacity int) (*selectPoller, error) {
	w, err := newWaker()
	if err != nil {
		return nil, err
	}
	if w.fd >= FdSetSize {
		w.close()
		return nil, ErrFdRange
	}
	return &selectPoller{w: w, index: make(map[int]struct{}), cap: capacity}, nil
}

func (p *selectPoller) Kind() Kind { return Select }
func (p *selectPoller) Len() int   { return len(p.fds) }
func (p *selectPoller) Cap() int   { return p.cap }

func (p *selectPoller) Add(fd FD) error {
	if p.closed {
		return ErrClosed
	}
	if fd < 0 || fd >= FdSetSize {
		return ErrFdRange
	}
	if _, ok := p.index[fd]; ok {
		return ErrExists
	}
	if p.cap > 0 && len(p.fds) >= p.cap {
		return ErrFull
	}
	p.index[fd] = struct{}{}
	p.fds = append(p.fds, fd)
	return nil
}

func (p *selectPoller) Remove(fd FD) error {
	if _, ok := p.index[fd]; !ok {
		return ErrNotWatched
	}
	delete(p.index, fd)
	if i := slices.Index(p.fds, fd); i >= 0 {
		p.fds = slices.Delete(p.fds, i, i+1)
	}
	return nil
}

func (p *selectPoller) Wait(events []Event) (int, error) {
	if p.closed {
		return 0, ErrClosed
	}
	if len(events) == 0 {
		return 0, ErrNoRoom
	}
	for {
		// select 会改写位图，每轮从监视集重建
		p.rset.Zero()
		p.rset.Set(p.w.fd)
		maxfd := p.w.fd
		for _, fd := range p.fds {
			p.rset.Set(fd)
			if fd > maxfd {
				maxfd = fd
			}
		}
		_, err := unix.Select(maxfd+1, &p.rset, nil, nil, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		break
	}
	if p.rset.IsSet(p.w.fd) {
		p.w.drain()
	}
	n := 0
	for _, fd := range p.fds {
		if n == len(events) {
			break
		}
		if p.rset.IsSet(fd) {
			events[n] = Event{Fd: fd}
			n++
		}
	}
	return n, nil
}

func (p *selectPoller) Wake() error { return p.w.wake() }

func (p *selectPoller) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.fds = nil
	return p.w.close()
}
