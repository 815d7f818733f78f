package sockd

import (
	"net/netip"
	"strconv"

	"go.uber.org/atomic"
)

// Conn 表示一条已接受的连接：fd + 对端地址
// 所有权只转移一次；fd 只关闭一次
type Conn struct {
	ID uint64

	fd     int
	peer   netip.AddrPort
	closed atomic.Bool

	// 关闭时回调（统计用），在 fd 真正关闭后调用一次
	onClose func(*Conn)
}

func newConn(id uint64, fd int, peer netip.AddrPort, onClose func(*Conn)) *Conn {
	return &Conn{ID: id, fd: fd, peer: peer, onClose: onClose}
}

// Fd 返回底层描述符，仅供 sockopt 等透传使用
func (c *Conn) Fd() int { return c.fd }

// RemoteAddr 返回对端地址
func (c *Conn) RemoteAddr() netip.AddrPort { return c.peer }

// Closed 报告连接是否已被关闭
func (c *Conn) Closed() bool { return c.closed.Load() }

func (c *Conn) String() string {
	return "conn#" + strconv.FormatUint(c.ID, 10) + "(" + c.peer.String() + ")"
}

// release 关闭 fd；第二次调用返回 ErrConnClosed 且不再触碰 fd
func (c *Conn) release() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrConnClosed
	}
	err := closeFD(c.fd)
	if c.onClose != nil {
		c.onClose(c)
	}
	return err
}
