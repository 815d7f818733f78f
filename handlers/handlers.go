// Package handlers 提供 sockd 的示例连接处理器，供 CLI 与测试使用。
package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/legamerdc/sockd"
	"github.com/legamerdc/sockd/protocol"
)

const bufSize = 1024

// Greeting 为 Greeter 的固定回复
const Greeting = "server message : hello client"

// Echo 原样回写直到对端关闭写方向
func Echo() sockd.Handler {
	return sockd.HandlerFunc(func(ctx context.Context, c *sockd.Conn) {
		buf := make([]byte, bufSize)
		for ctx.Err() == nil {
			n, err := c.Read(buf)
			if n > 0 {
				if _, werr := c.Write(buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	})
}

// PingPong 读取一条消息，收到 "ping" 回复 "pong"，否则回复 "unknown"
func PingPong() sockd.Handler {
	return sockd.HandlerFunc(func(ctx context.Context, c *sockd.Conn) {
		buf := make([]byte, bufSize)
		n, err := c.Read(buf)
		if err != nil {
			return
		}
		if string(bytes.TrimSpace(buf[:n])) == "ping" {
			_, _ = c.Write([]byte("pong"))
			return
		}
		_, _ = c.Write([]byte("unknown"))
	})
}

// Greeter 读取一条消息并打印，回复固定问候语
func Greeter(out io.Writer) sockd.Handler {
	var mu sync.Mutex
	return sockd.HandlerFunc(func(ctx context.Context, c *sockd.Conn) {
		buf := make([]byte, bufSize)
		n, err := c.Read(buf)
		if err != nil {
			return
		}
		mu.Lock()
		fmt.Fprintf(out, "%s: %s\n", c.RemoteAddr(), bytes.TrimRight(buf[:n], "\x00"))
		mu.Unlock()
		_, _ = c.Write([]byte(Greeting))
	})
}

// Print 逐条打印收到的数据直到对端关闭
func Print(out io.Writer) sockd.Handler {
	var mu sync.Mutex
	return sockd.HandlerFunc(func(ctx context.Context, c *sockd.Conn) {
		buf := make([]byte, bufSize)
		for ctx.Err() == nil {
			n, err := c.Read(buf)
			if n > 0 {
				mu.Lock()
				fmt.Fprintf(out, "%s: %s\n", c.RemoteAddr(), bytes.TrimRight(buf[:n], "\x00"))
				mu.Unlock()
			}
			if err != nil {
				return
			}
		}
	})
}

// Discard 读取并丢弃所有数据
func Discard() sockd.Handler {
	return sockd.HandlerFunc(func(ctx context.Context, c *sockd.Conn) {
		_, _ = io.Copy(io.Discard, c)
	})
}

// FrameEcho 使用 protocol 帧：Ping 回 Pong，Data 原样回写，其余回 Error
func FrameEcho(threshold int) sockd.Handler {
	return sockd.HandlerFunc(func(ctx context.Context, c *sockd.Conn) {
		r := protocol.NewReader(c, 0)
		w := protocol.NewWriter(c, threshold)
		for ctx.Err() == nil {
			f, err := r.ReadFrame()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					_ = w.WriteFrame(protocol.Frame{Op: protocol.OpError, Payload: []byte(err.Error())})
				}
				return
			}
			switch f.Op {
			case protocol.OpPing:
				err = w.WriteFrame(protocol.Frame{Op: protocol.OpPong, Payload: f.Payload})
			case protocol.OpData:
				err = w.WriteFrame(f)
			default:
				err = w.WriteFrame(protocol.Frame{Op: protocol.OpError, Payload: []byte(fmt.Sprintf("unknown op %d", f.Op))})
			}
			if err != nil {
				return
			}
		}
	})
}

var registry = map[string]func() sockd.Handler{
	"echo":     Echo,
	"pingpong": PingPong,
	"greet":    func() sockd.Handler { return Greeter(os.Stdout) },
	"print":    func() sockd.Handler { return Print(os.Stdout) },
	"discard":  Discard,
	"frame":    func() sockd.Handler { return FrameEcho(256) },
}

// Lookup 按名称返回处理器
func Lookup(name string) (sockd.Handler, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown handler %q", sockd.ErrInvalidArgument, name)
	}
	return f(), nil
}

// Names 返回所有可用处理器名称
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
