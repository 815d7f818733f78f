package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/legamerdc/sockd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestDefault(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.NoError(t, c.Validate())
}

func TestLoadYAML(t *testing.T) {
	p := writeFile(t, "sockd.yaml", `
address: 127.0.0.1
port: 9000
strategy: poll
watch_capacity: 16
overflow: defer
handoff: baton
log:
  level: debug
  format: json
`)
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", c.Address)
	assert.Equal(t, 9000, c.Port)
	assert.Equal(t, sockd.PollMultiplexed, c.Strategy)
	assert.Equal(t, 16, c.WatchCapacity)
	assert.Equal(t, sockd.OverflowDefer, c.Overflow)
	assert.Equal(t, sockd.HandoffBaton, c.Handoff)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "json", c.Log.Format)
	// 未出现的字段保持默认值
	assert.Equal(t, sockd.DefaultBacklog, c.Backlog)

	sc := c.ServerConfig()
	assert.Equal(t, sockd.PollMultiplexed, sc.Strategy)
	assert.NoError(t, sc.Validate())
}

func TestLoadUnknownField(t *testing.T) {
	p := writeFile(t, "bad.yaml", "prot: 80\n")
	_, err := Load(p)
	assert.Error(t, err)

	p = writeFile(t, "bad.yaml", "strategy: kqueue\n")
	_, err = Load(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown concurrency strategy")
}

func TestEnvOverrides(t *testing.T) {
	p := writeFile(t, "sockd.yaml", "port: 9000\nstrategy: select\n")
	t.Setenv("SOCKD_PORT", "9100")
	t.Setenv("SOCKD_STRATEGY", "EPOLL_TPC")
	t.Setenv("SOCKD_LOG_LEVEL", "warn")

	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 9100, c.Port)
	assert.Equal(t, sockd.EpollMultiplexed, c.Strategy)
	assert.Equal(t, "warn", c.Log.Level)
}

func TestDotenv(t *testing.T) {
	// 注册清理，godotenv 直接写进程环境
	t.Setenv("SOCKD_WORKERS", "0")
	require.NoError(t, os.Unsetenv("SOCKD_WORKERS"))

	p := writeFile(t, ".env", "SOCKD_WORKERS=7\n")
	c, err := Load("", p, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 7, c.Workers)
}

func TestEncodeRoundTrip(t *testing.T) {
	c := Default()
	c.Strategy = sockd.ProcessPerConnection
	c.Overflow = sockd.OverflowDefer
	b, err := c.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(b), "strategy: process")

	var back Config
	require.NoError(t, Decode(bytes.NewReader(b), &back))
	assert.Equal(t, c, back)
}
