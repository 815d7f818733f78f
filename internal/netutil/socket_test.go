//go:build linux

package netutil

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSockaddrRoundTrip(t *testing.T) {
	for _, s := range []string{"127.0.0.1:8080", "[::1]:443", "0.0.0.0:0"} {
		ap := netip.MustParseAddrPort(s)
		sa, fam := AddrPortToSockaddr(ap)
		assert.Equal(t, ap, SockaddrToAddrPort(sa), s)
		if ap.Addr().Is4() {
			assert.Equal(t, unix.AF_INET, fam)
		} else {
			assert.Equal(t, unix.AF_INET6, fam)
		}
	}
}

func TestSomaxconnFallback(t *testing.T) {
	old := somaxconnPath
	t.Cleanup(func() { somaxconnPath = old })

	dir := t.TempDir()
	somaxconnPath = filepath.Join(dir, "missing")
	assert.Equal(t, unix.SOMAXCONN, Somaxconn())

	somaxconnPath = filepath.Join(dir, "somaxconn")
	require.NoError(t, os.WriteFile(somaxconnPath, []byte("64\n"), 0o644))
	assert.Equal(t, 64, Somaxconn())
	assert.Equal(t, 64, ClampBacklog(4096))
	assert.Equal(t, 10, ClampBacklog(10))
}

func TestOptionPassThrough(t *testing.T) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(fd)

	require.NoError(t, SetReuseAddr(fd, true))
	v, err := GetOption(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR)
	require.NoError(t, err)
	assert.NotZero(t, v)

	require.NoError(t, SetNoDelay(fd, true))
	v, err = GetOption(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY)
	require.NoError(t, err)
	assert.NotZero(t, v)

	require.NoError(t, SetKeepAlive(fd, false))
	v, err = GetOption(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE)
	require.NoError(t, err)
	assert.Zero(t, v)

	require.NoError(t, SetRecvTimeout(fd, time.Second))
	tv, err := unix.GetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO)
	require.NoError(t, err)
	assert.Equal(t, int64(time.Second), tv.Nano())
}

func TestPortForScheme(t *testing.T) {
	assert.Equal(t, PortHTTPS, PortForScheme("HTTPS"))
	assert.Equal(t, PortSSH, PortForScheme("ssh"))
	assert.Zero(t, PortForScheme("gopher"))
}
