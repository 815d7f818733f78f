//go:build linux

package handlers

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/legamerdc/sockd"
	"github.com/legamerdc/sockd/client"
	"github.com/legamerdc/sockd/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h sockd.Handler) string {
	t.Helper()
	cfg := sockd.DefaultConfig()
	cfg.Address = "127.0.0.1"
	cfg.Port = 0
	cfg.Strategy = sockd.ThreadPerConnection
	s, err := sockd.NewServer(cfg, h)
	require.NoError(t, err)
	require.NoError(t, s.Listen())
	go func() { _ = s.Serve(context.Background()) }()
	t.Cleanup(func() { _ = s.Close() })
	return s.Addr().String()
}

func dial(t *testing.T, addr string, opts ...client.Option) *client.Client {
	t.Helper()
	c, err := client.Dial(context.Background(), addr, opts...)
	require.NoError(t, err)
	require.NoError(t, c.SetDeadline(time.Now().Add(5*time.Second)))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestEcho(t *testing.T) {
	addr := serve(t, Echo())
	payload := bytes.Repeat([]byte("abc"), 2000)
	reply, err := dial(t, addr).Exchange(payload)
	require.NoError(t, err)
	assert.Equal(t, payload, reply)
}

func TestPingPong(t *testing.T) {
	addr := serve(t, PingPong())
	for msg, want := range map[string]string{"ping": "pong", "ping\n": "pong", "hello": "unknown"} {
		reply, err := dial(t, addr).Exchange([]byte(msg))
		require.NoError(t, err)
		assert.Equal(t, want, string(reply), msg)
	}
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestGreeter(t *testing.T) {
	var out syncBuffer
	addr := serve(t, Greeter(&out))
	reply, err := dial(t, addr).Exchange([]byte("hello server"))
	require.NoError(t, err)
	assert.Equal(t, Greeting, string(reply))
	assert.True(t, strings.HasSuffix(out.String(), ": hello server\n"), out.String())
}

func TestFrameEcho(t *testing.T) {
	addr := serve(t, FrameEcho(64))
	c := dial(t, addr, client.WithCompressThreshold(64))

	_, err := c.Ping([]byte("hi"))
	require.NoError(t, err)

	big := bytes.Repeat([]byte("z"), 4096)
	require.NoError(t, c.WriteBatch([]protocol.Frame{
		{Op: protocol.OpData, Payload: []byte("one")},
		{Op: protocol.OpData, Payload: big},
	}))
	f, err := c.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "one", string(f.Payload))
	f, err = c.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, big, f.Payload)

	require.NoError(t, c.WriteFrame(protocol.Frame{Op: 99}))
	f, err = c.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, protocol.OpError, f.Op)
}

func TestLookup(t *testing.T) {
	for _, name := range Names() {
		h, err := Lookup(name)
		require.NoError(t, err, name)
		assert.NotNil(t, h)
	}
	_, err := Lookup("nope")
	assert.ErrorIs(t, err, sockd.ErrInvalidArgument)
	assert.Contains(t, Names(), "echo")
}
