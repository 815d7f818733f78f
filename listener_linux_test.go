//go:build linux

package sockd

import (
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestListenEphemeralPort(t *testing.T) {
	l, err := Listen("127.0.0.1", 0, 16)
	require.NoError(t, err)
	defer l.Close()

	assert.NotZero(t, l.Addr().Port())
	assert.Equal(t, unix.AF_INET, l.Family())
	assert.Equal(t, 16, l.Backlog())

	v, err := l.GetOption(unix.SOL_SOCKET, unix.SO_REUSEADDR)
	require.NoError(t, err)
	assert.NotZero(t, v)
	flags, err := unix.FcntlInt(uintptr(l.Fd()), unix.F_GETFD, 0)
	require.NoError(t, err)
	assert.NotZero(t, flags&unix.FD_CLOEXEC)

	// 再次关闭不会触碰 fd
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
}

func TestListenIPv6(t *testing.T) {
	l, err := Listen("::1", 0, 8)
	if err != nil {
		t.Skipf("ipv6 loopback unavailable: %v", err)
	}
	defer l.Close()
	assert.Equal(t, unix.AF_INET6, l.Family())
	assert.True(t, l.Addr().Addr().Is6())
}

func TestListenErrors(t *testing.T) {
	_, err := Listen("not-an-ip", 0, 1)
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = Listen("127.0.0.1", -1, 1)
	assert.ErrorIs(t, err, ErrInvalidPort)
	_, err = Listen("127.0.0.1", 0, 0)
	assert.ErrorIs(t, err, ErrInvalidBacklog)

	l, err := Listen("127.0.0.1", 0, 1)
	require.NoError(t, err)
	defer l.Close()
	_, err = Listen("127.0.0.1", int(l.Addr().Port()), 1)
	assert.ErrorIs(t, err, ErrAddressInUse)
	assert.ErrorIs(t, err, unix.EADDRINUSE)
	assert.False(t, IsConnError(err))

	// TEST-NET-1 不属于本机
	_, err = Listen("192.0.2.1", 0, 1)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestListenClampsBacklog(t *testing.T) {
	l, err := Listen("127.0.0.1", 0, 1<<30)
	require.NoError(t, err)
	defer l.Close()
	assert.Less(t, l.Backlog(), 1<<30)
}

func TestAcceptAndConnIO(t *testing.T) {
	l, err := Listen("127.0.0.1", 0, 4)
	require.NoError(t, err)
	defer l.Close()

	nc, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer nc.Close()

	fd, peer, err := l.Accept()
	require.NoError(t, err)
	assert.Equal(t, nc.LocalAddr().String(), peer.String())

	closed := 0
	c := newConn(1, fd, peer, func(*Conn) { closed++ })
	assert.Equal(t, l.Addr(), c.LocalAddr())
	require.NoError(t, c.refreshPeer())
	assert.Equal(t, peer, c.RemoteAddr())

	_, err = nc.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 8)
	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))

	_, err = c.Write([]byte("pong"))
	require.NoError(t, err)
	require.NoError(t, c.CloseWrite())
	got := make([]byte, 8)
	n, _ = nc.Read(got)
	assert.Equal(t, "pong", string(got[:n]))

	require.NoError(t, c.SetReadTimeout(20*time.Millisecond))
	_, err = c.Read(buf)
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)

	require.NoError(t, c.SetOption(unix.IPPROTO_TCP, unix.TCP_NODELAY, 1))
	v, err := c.GetOption(unix.IPPROTO_TCP, unix.TCP_NODELAY)
	require.NoError(t, err)
	assert.NotZero(t, v)

	require.NoError(t, c.release())
	assert.ErrorIs(t, c.release(), ErrConnClosed)
	assert.Equal(t, 1, closed)
	_, err = c.Read(buf)
	assert.ErrorIs(t, err, ErrConnClosed)
}

func TestAcceptWokenByShutdown(t *testing.T) {
	l, err := Listen("127.0.0.1", 0, 4)
	require.NoError(t, err)
	defer l.Close()

	done := make(chan error, 1)
	go func() {
		_, _, err := l.Accept()
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	l.shutdown()
	select {
	case err := <-done:
		assert.Error(t, err)
		assert.False(t, IsConnError(err))
	case <-time.After(2 * time.Second):
		t.Fatal("accept not woken by shutdown")
	}
}
