package sockd

import "go.uber.org/atomic"

// Stats 为 Server 计数器的快照
type Stats struct {
	Accepted   uint64 // accept 成功的连接数
	Dispatched uint64 // 交给 handler（或子进程）的连接数
	Handled    uint64 // handler 返回（含 panic）的次数
	Closed     uint64 // 已关闭的连接 fd 数
	Rejected   uint64 // 监视集满而被立即关闭的连接数
	ConnErrors uint64 // 单连接错误数
	Panics     uint64
	Children   uint64 // 派生的子进程数
}

type counters struct {
	accepted   atomic.Uint64
	dispatched atomic.Uint64
	handled    atomic.Uint64
	closed     atomic.Uint64
	rejected   atomic.Uint64
	connErrors atomic.Uint64
	panics     atomic.Uint64
	children   atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Accepted:   c.accepted.Load(),
		Dispatched: c.dispatched.Load(),
		Handled:    c.handled.Load(),
		Closed:     c.closed.Load(),
		Rejected:   c.rejected.Load(),
		ConnErrors: c.connErrors.Load(),
		Panics:     c.panics.Load(),
		Children:   c.children.Load(),
	}
}
