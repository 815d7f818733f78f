package sockd

import (
	"errors"
	"net/netip"
)

var (
	// ErrPlatformNotSupported 非 Linux 平台的占位错误（需要 epoll/accept4）
	ErrPlatformNotSupported = errors.New("sockd: platform not supported (requires Linux)")

	// ErrInvalidArgument 参数非法
	ErrInvalidArgument = errors.New("sockd: invalid argument")

	ErrInvalidAddress   = errors.New("sockd: invalid bind address")
	ErrInvalidPort      = errors.New("sockd: port out of range")
	ErrInvalidBacklog   = errors.New("sockd: backlog must be positive")
	ErrInvalidStrategy  = errors.New("sockd: unknown concurrency strategy")
	ErrInvalidCapacity  = errors.New("sockd: watch capacity must be positive")
	ErrAddressInUse     = errors.New("sockd: address already in use")
	ErrPermissionDenied = errors.New("sockd: permission denied")

	// ErrServerClosed 由 Serve 在 Close 或 ctx 取消后返回
	ErrServerClosed = errors.New("sockd: server closed")

	ErrConnClosed   = errors.New("sockd: connection already closed")
	ErrHandlerPanic = errors.New("sockd: handler panicked")
	ErrWatchSetFull = errors.New("sockd: watch set full")

	// ErrNotChild 当前进程不是 ProcessPerConnection 派生的子进程
	ErrNotChild = errors.New("sockd: not a connection child process")
)

// Scope 区分错误影响的范围：配置、监听 socket（终止服务）、单个连接（记录后继续）。
type Scope int

const (
	ScopeConfig Scope = iota
	ScopeListener
	ScopeConn
)

func (s Scope) String() string {
	switch s {
	case ScopeConfig:
		return "config"
	case ScopeListener:
		return "listener"
	case ScopeConn:
		return "conn"
	default:
		return "unknown"
	}
}

// OpError 描述一次失败的 socket 操作。
type OpError struct {
	Op    string
	Scope Scope
	Addr  netip.AddrPort
	Err   error
}

func (e *OpError) Error() string {
	s := "sockd: " + e.Op
	if e.Addr.IsValid() {
		s += " " + e.Addr.String()
	}
	return s + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

// IsConnError 报告 err 是否只影响单个连接。
func IsConnError(err error) bool {
	var oe *OpError
	return errors.As(err, &oe) && oe.Scope == ScopeConn
}

func connErr(op string, peer netip.AddrPort, err error) error {
	return &OpError{Op: op, Scope: ScopeConn, Addr: peer, Err: err}
}

func listenerErr(op string, addr netip.AddrPort, err error) error {
	return &OpError{Op: op, Scope: ScopeListener, Addr: addr, Err: err}
}
