package sockd

import (
	"net/netip"
	"sync"
)

// Listener 为已绑定并处于监听状态的 TCP socket
type Listener struct {
	fd      int
	addr    netip.AddrPort
	family  int
	backlog int

	closeOnce sync.Once
	closeErr  error
}

// Fd 返回监听 socket 的描述符
func (l *Listener) Fd() int { return l.fd }

// Addr 返回实际绑定的地址；端口 0 时为内核分配的端口
func (l *Listener) Addr() netip.AddrPort { return l.addr }

// Family 返回协议族（AF_INET / AF_INET6）
func (l *Listener) Family() int { return l.family }

// Backlog 返回截断后实际生效的 backlog
func (l *Listener) Backlog() int { return l.backlog }

// Close 关闭监听 socket，多次调用只关闭一次
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		if err := closeFD(l.fd); err != nil {
			l.closeErr = listenerErr("close", l.addr, err)
		}
	})
	return l.closeErr
}
