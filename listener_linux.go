//go:build linux

package sockd

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/legamerdc/sockd/internal/netutil"
	"golang.org/x/sys/unix"
)

// Listen 解析地址、校验参数、绑定并开始监听。失败时返回 *OpError，从不退出进程。
func Listen(address string, port, backlog int) (*Listener, error) {
	ip, err := netip.ParseAddr(address)
	if err != nil {
		return nil, &OpError{Op: "listen", Scope: ScopeConfig, Err: fmt.Errorf("%w: %q", ErrInvalidAddress, address)}
	}
	if port < 0 || port > 65535 {
		return nil, &OpError{Op: "listen", Scope: ScopeConfig, Err: fmt.Errorf("%w: %d", ErrInvalidPort, port)}
	}
	if backlog <= 0 {
		return nil, &OpError{Op: "listen", Scope: ScopeConfig, Err: fmt.Errorf("%w: %d", ErrInvalidBacklog, backlog)}
	}
	ap := netip.AddrPortFrom(ip, uint16(port))
	sa, family := netutil.AddrPortToSockaddr(ap)

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, listenerErr("socket", ap, err)
	}
	if err := netutil.SetReuseAddr(fd, true); err != nil {
		unix.Close(fd)
		return nil, listenerErr("setsockopt", ap, err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, listenerErr("bind", ap, bindError(err))
	}
	effective := netutil.ClampBacklog(backlog)
	if err := unix.Listen(fd, effective); err != nil {
		unix.Close(fd)
		return nil, listenerErr("listen", ap, err)
	}
	// 端口 0 时查询内核实际分配的端口
	bound, err := netutil.LocalAddr(fd)
	if err != nil {
		unix.Close(fd)
		return nil, listenerErr("getsockname", ap, err)
	}
	return &Listener{fd: fd, addr: bound, family: family, backlog: effective}, nil
}

func bindError(err error) error {
	switch {
	case errors.Is(err, unix.EADDRINUSE):
		return fmt.Errorf("%w: %w", ErrAddressInUse, err)
	case errors.Is(err, unix.EACCES):
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	case errors.Is(err, unix.EADDRNOTAVAIL):
		return fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	return err
}

// Accept 接受一个连接，返回阻塞模式、带 CLOEXEC 的连接 fd 及对端地址。
// 只影响单个连接的错误以 ScopeConn 返回，其余视为监听 socket 故障。
func (l *Listener) Accept() (int, netip.AddrPort, error) {
	for {
		fd, sa, err := unix.Accept4(l.fd, unix.SOCK_CLOEXEC)
		if err == nil {
			return fd, netutil.SockaddrToAddrPort(sa), nil
		}
		if err == unix.EINTR {
			continue
		}
		if connLevelAccept(err) {
			return -1, netip.AddrPort{}, connErr("accept", l.addr, err)
		}
		return -1, netip.AddrPort{}, listenerErr("accept", l.addr, err)
	}
}

func connLevelAccept(err error) bool {
	switch err {
	case unix.EAGAIN, unix.ECONNABORTED, unix.EPROTO, unix.EPERM,
		unix.EMFILE, unix.ENFILE, unix.ENOBUFS, unix.ENOMEM,
		unix.ENETDOWN, unix.ENOPROTOOPT, unix.EHOSTDOWN, unix.ENONET,
		unix.EHOSTUNREACH, unix.EOPNOTSUPP, unix.ENETUNREACH, unix.ETIMEDOUT:
		return true
	}
	return false
}

// resourceExhausted 报告 accept 是否因 fd/内存耗尽而失败，此时需要退避
func resourceExhausted(err error) bool {
	return errors.Is(err, unix.EMFILE) || errors.Is(err, unix.ENFILE) ||
		errors.Is(err, unix.ENOBUFS) || errors.Is(err, unix.ENOMEM)
}

func wouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN)
}

// SetOption / GetOption 透传整型 socket 选项
func (l *Listener) SetOption(level, opt, value int) error {
	if err := netutil.SetOption(l.fd, level, opt, value); err != nil {
		return listenerErr("setsockopt", l.addr, err)
	}
	return nil
}

func (l *Listener) GetOption(level, opt int) (int, error) {
	v, err := netutil.GetOption(l.fd, level, opt)
	if err != nil {
		return 0, listenerErr("getsockopt", l.addr, err)
	}
	return v, nil
}

func (l *Listener) setNonblock(nonblock bool) error {
	return netutil.SetNonblock(l.fd, nonblock)
}

// shutdown 唤醒阻塞在 accept 上的 goroutine（返回 EINVAL），fd 本身稍后由 Close 释放
func (l *Listener) shutdown() {
	_ = unix.Shutdown(l.fd, unix.SHUT_RDWR)
}

func closeFD(fd int) error { return unix.Close(fd) }
