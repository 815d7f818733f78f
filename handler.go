package sockd

import "context"

// Handler 为用户的连接回调接口
// ServeConn 返回即表示处理结束，之后由分发器或 worker 关闭连接；实现不得自行关闭 c
type Handler interface {
	ServeConn(ctx context.Context, c *Conn)
}

// HandlerFunc 允许普通函数（含闭包）作为 Handler
type HandlerFunc func(ctx context.Context, c *Conn)

func (f HandlerFunc) ServeConn(ctx context.Context, c *Conn) { f(ctx, c) }
