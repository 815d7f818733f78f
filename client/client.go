// Package client 为 sockd 服务端的简单 TCP 客户端：原始字节收发与 protocol 帧收发。
package client

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/legamerdc/sockd/protocol"
)

type options struct {
	timeout   time.Duration
	threshold int
	maxFrame  int
}

type Option func(*options)

// WithTimeout 设置连接超时
func WithTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

// WithCompressThreshold payload 不小于 n 字节的帧被压缩，0 表示不压缩
func WithCompressThreshold(n int) Option { return func(o *options) { o.threshold = n } }

// WithMaxFrame 限制可接收的帧大小
func WithMaxFrame(n int) Option { return func(o *options) { o.maxFrame = n } }

// Client 不要在同一连接上混用原始读取（Recv/RecvAll）与 ReadFrame，后者带缓冲
type Client struct {
	conn *net.TCPConn

	rmu sync.Mutex
	r   *protocol.Reader

	wmu sync.Mutex
	w   *protocol.Writer
}

// Dial 连接到 address（host:port）
func Dial(ctx context.Context, address string, opts ...Option) (*Client, error) {
	o := options{timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	d := net.Dialer{Timeout: o.timeout}
	nc, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	tc := nc.(*net.TCPConn)
	return &Client{
		conn: tc,
		r:    protocol.NewReader(tc, o.maxFrame),
		w:    protocol.NewWriter(tc, o.threshold),
	}, nil
}

func (c *Client) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *Client) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// SetDeadline 同时设置读写截止时间
func (c *Client) SetDeadline(t time.Time) error { return c.conn.SetDeadline(t) }

// Send 写出全部数据；halfClose 为 true 时随后关闭写方向，服务端读到 EOF
func (c *Client) Send(p []byte, halfClose bool) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	n, err := c.conn.Write(p)
	if err != nil {
		return n, err
	}
	if halfClose {
		return n, c.conn.CloseWrite()
	}
	return n, nil
}

// Recv 单次读取
func (c *Client) Recv(p []byte) (int, error) { return c.conn.Read(p) }

// RecvAll 读取直到服务端关闭连接
func (c *Client) RecvAll() ([]byte, error) { return io.ReadAll(c.conn) }

// Exchange 发送请求、半关闭，再读取完整响应
func (c *Client) Exchange(req []byte) ([]byte, error) {
	if _, err := c.Send(req, true); err != nil {
		return nil, err
	}
	return c.RecvAll()
}

func (c *Client) WriteFrame(f protocol.Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.w.WriteFrame(f)
}

func (c *Client) WriteBatch(frames []protocol.Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.w.WriteBatch(frames)
}

func (c *Client) ReadFrame() (protocol.Frame, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	return c.r.ReadFrame()
}

// Ping 发送 Ping 帧并等待 Pong，返回往返时间
func (c *Client) Ping(payload []byte) (time.Duration, error) {
	start := time.Now()
	if err := c.WriteFrame(protocol.Frame{Op: protocol.OpPing, Payload: payload}); err != nil {
		return 0, err
	}
	f, err := c.ReadFrame()
	if err != nil {
		return 0, err
	}
	if f.Op != protocol.OpPong {
		return 0, errors.New("client: unexpected reply to ping")
	}
	return time.Since(start), nil
}

func (c *Client) Close() error { return c.conn.Close() }
