//go:build linux

package netutil

import (
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

func boolInt(enable bool) int {
	if enable {
		return 1
	}
	return 0
}

func SetNonblock(fd int, nonblock bool) error {
	return unix.SetNonblock(fd, nonblock)
}

func SetReusePort(fd int, enable bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, boolInt(enable))
}

func SetReuseAddr(fd int, enable bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolInt(enable))
}

func SetNoDelay(fd int, enable bool) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolInt(enable))
}

func SetKeepAlive(fd int, enable bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolInt(enable))
}

func SetRecvBuf(fd int, n int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, n)
}

func SetSendBuf(fd int, n int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, n)
}

// SetOption / GetOption 为整型选项的通用透传
func SetOption(fd, level, opt, value int) error {
	return unix.SetsockoptInt(fd, level, opt, value)
}

func GetOption(fd, level, opt int) (int, error) {
	return unix.GetsockoptInt(fd, level, opt)
}

// SetRecvTimeout 设置 SO_RCVTIMEO；d <= 0 表示不超时
func SetRecvTimeout(fd int, d time.Duration) error {
	tv := durationTimeval(d)
	return unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

// SetSendTimeout 设置 SO_SNDTIMEO；d <= 0 表示不超时
func SetSendTimeout(fd int, d time.Duration) error {
	tv := durationTimeval(d)
	return unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv)
}

func durationTimeval(d time.Duration) unix.Timeval {
	if d <= 0 {
		return unix.Timeval{}
	}
	return unix.NsecToTimeval(d.Nanoseconds())
}

// SockaddrToAddrPort 将 accept/getpeername 返回的地址转为 netip.AddrPort
func SockaddrToAddrPort(sa unix.Sockaddr) netip.AddrPort {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(a.Addr), uint16(a.Port))
	case *unix.SockaddrInet6:
		ip := netip.AddrFrom16(a.Addr)
		if a.ZoneId != 0 {
			ip = ip.WithZone(strconv.Itoa(int(a.ZoneId)))
		}
		return netip.AddrPortFrom(ip, uint16(a.Port))
	}
	return netip.AddrPort{}
}

// AddrPortToSockaddr 返回 bind 需要的 sockaddr 及协议族
func AddrPortToSockaddr(ap netip.AddrPort) (unix.Sockaddr, int) {
	ip := ap.Addr()
	if ip.Is4() || ip.Is4In6() {
		sa := &unix.SockaddrInet4{Port: int(ap.Port()), Addr: ip.Unmap().As4()}
		return sa, unix.AF_INET
	}
	sa := &unix.SockaddrInet6{Port: int(ap.Port()), Addr: ip.As16()}
	if z := ip.Zone(); z != "" {
		if id, err := strconv.Atoi(z); err == nil {
			sa.ZoneId = uint32(id)
		}
	}
	return sa, unix.AF_INET6
}

// PeerAddr 通过 getpeername 查询对端地址
func PeerAddr(fd int) (netip.AddrPort, error) {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return SockaddrToAddrPort(sa), nil
}

// LocalAddr 通过 getsockname 查询本端地址
func LocalAddr(fd int) (netip.AddrPort, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return SockaddrToAddrPort(sa), nil
}

var somaxconnPath = "/proc/sys/net/core/somaxconn"

// Somaxconn 读取系统允许的最大 backlog，读取失败时回退到 unix.SOMAXCONN
func Somaxconn() int {
	b, err := os.ReadFile(somaxconnPath)
	if err != nil {
		return unix.SOMAXCONN
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || n <= 0 {
		return unix.SOMAXCONN
	}
	return n
}

// ClampBacklog 将 backlog 截断到系统上限
func ClampBacklog(backlog int) int {
	if limit := Somaxconn(); backlog > limit {
		return limit
	}
	return backlog
}
