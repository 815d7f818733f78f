//go:build linux

package poller

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// waker 基于 eventfd，用于跨 goroutine 唤醒阻塞中的 Wait
type waker struct {
	fd int
}

func newWaker() (*waker, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &waker{fd: fd}, nil
}

func (w *waker) wake() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(w.fd, buf[:])
	if err == unix.EAGAIN {
		// 计数器已满，说明已有未消费的唤醒
		return nil
	}
	return err
}

// drain 清空 eventfd 计数
func (w *waker) drain() {
	var buf [8]byte
	for {
		_, err := unix.Read(w.fd, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return
		}
	}
}

func (w *waker) close() error { return unix.Close(w.fd) }

func newPoller(kind Kind, capacity int) (Poller, error) {
	switch kind {
	case Select:
		return newSelectPoller(capacity)
	case Poll:
		return newPollPoller(capacity)
	case Epoll:
		return newEpollPoller(capacity)
	}
	return nil, unix.EINVAL
}
