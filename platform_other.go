//go:build !linux

package sockd

import (
	"context"
	"net/netip"
	"time"
)

func Listen(address string, port, backlog int) (*Listener, error) {
	return nil, ErrPlatformNotSupported
}

func (l *Listener) Accept() (int, netip.AddrPort, error) {
	return -1, netip.AddrPort{}, ErrPlatformNotSupported
}

func (l *Listener) SetOption(level, opt, value int) error { return ErrPlatformNotSupported }

func (l *Listener) GetOption(level, opt int) (int, error) { return 0, ErrPlatformNotSupported }

func (c *Conn) Read(p []byte) (int, error) { return 0, ErrPlatformNotSupported }

func (c *Conn) Write(p []byte) (int, error) { return 0, ErrPlatformNotSupported }

func (c *Conn) CloseWrite() error { return ErrPlatformNotSupported }

func (c *Conn) LocalAddr() netip.AddrPort { return netip.AddrPort{} }

func (c *Conn) SetReadTimeout(d time.Duration) error { return ErrPlatformNotSupported }

func (c *Conn) SetWriteTimeout(d time.Duration) error { return ErrPlatformNotSupported }

func (c *Conn) SetOption(level, opt, value int) error { return ErrPlatformNotSupported }

func (c *Conn) GetOption(level, opt int) (int, error) { return 0, ErrPlatformNotSupported }

// Listen 在非 Linux 平台返回占位错误
func (s *Server) Listen() error { return ErrPlatformNotSupported }

func (s *Server) Serve(ctx context.Context) error { return ErrPlatformNotSupported }

func ChildConn() (*Conn, error) { return nil, ErrPlatformNotSupported }

func ServeChild(ctx context.Context, h Handler) (bool, error) {
	return IsChild(), ErrPlatformNotSupported
}

func closeFD(fd int) error { return ErrPlatformNotSupported }

func resourceExhausted(error) bool { return false }
