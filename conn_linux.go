//go:build linux

package sockd

import (
	"io"
	"net/netip"
	"os"
	"time"

	"github.com/legamerdc/sockd/internal/netutil"
	"golang.org/x/sys/unix"
)

// Read 阻塞读取；对端关闭时返回 io.EOF，读超时返回 os.ErrDeadlineExceeded
func (c *Conn) Read(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, ErrConnClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(c.fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, connErr("read", c.peer, os.ErrDeadlineExceeded)
		case err != nil:
			return 0, connErr("read", c.peer, err)
		case n == 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

// Write 写完全部数据或返回错误
func (c *Conn) Write(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, ErrConnClosed
	}
	written := 0
	for written < len(p) {
		n, err := unix.Write(c.fd, p[written:])
		if n > 0 {
			written += n
		}
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return written, connErr("write", c.peer, os.ErrDeadlineExceeded)
		case err != nil:
			return written, connErr("write", c.peer, err)
		case n == 0:
			return written, connErr("write", c.peer, io.ErrShortWrite)
		}
	}
	return written, nil
}

// CloseWrite 半关闭写方向，对端读到 EOF
func (c *Conn) CloseWrite() error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	if err := unix.Shutdown(c.fd, unix.SHUT_WR); err != nil {
		return connErr("shutdown", c.peer, err)
	}
	return nil
}

// LocalAddr 返回本端地址
func (c *Conn) LocalAddr() netip.AddrPort {
	ap, _ := netutil.LocalAddr(c.fd)
	return ap
}

// SetReadTimeout 设置 SO_RCVTIMEO，d <= 0 取消超时
func (c *Conn) SetReadTimeout(d time.Duration) error {
	if err := netutil.SetRecvTimeout(c.fd, d); err != nil {
		return connErr("setsockopt", c.peer, err)
	}
	return nil
}

// SetWriteTimeout 设置 SO_SNDTIMEO，d <= 0 取消超时
func (c *Conn) SetWriteTimeout(d time.Duration) error {
	if err := netutil.SetSendTimeout(c.fd, d); err != nil {
		return connErr("setsockopt", c.peer, err)
	}
	return nil
}

func (c *Conn) SetOption(level, opt, value int) error {
	if err := netutil.SetOption(c.fd, level, opt, value); err != nil {
		return connErr("setsockopt", c.peer, err)
	}
	return nil
}

func (c *Conn) GetOption(level, opt int) (int, error) {
	v, err := netutil.GetOption(c.fd, level, opt)
	if err != nil {
		return 0, connErr("getsockopt", c.peer, err)
	}
	return v, nil
}

// refreshPeer 通过 getpeername 重新查询对端地址
func (c *Conn) refreshPeer() error {
	ap, err := netutil.PeerAddr(c.fd)
	if err != nil {
		return connErr("getpeername", c.peer, err)
	}
	c.peer = ap
	return nil
}
