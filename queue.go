package sockd

import (
	"context"
	"sync"

	"github.com/eapache/queue"
)

// record 为交接记录：handler 引用 + 连接
type record struct {
	h Handler
	c *Conn
}

// connQueue 为 pool 交接使用的 FIFO；push 只由分发循环调用，close 之后不再 push
type connQueue interface {
	push(ctx context.Context, r record) error
	// pop 阻塞直到取到记录；队列关闭且为空时返回 false
	pop() (record, bool)
	close()
}

func newConnQueue(size int) connQueue {
	if size > 0 {
		return &chanQueue{ch: make(chan record, size)}
	}
	return newUnboundedQueue()
}

// chanQueue 有界队列，满时 push 阻塞（背压传导到 accept）
type chanQueue struct {
	ch chan record
}

func (q *chanQueue) push(ctx context.Context, r record) error {
	select {
	case q.ch <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *chanQueue) pop() (record, bool) {
	r, ok := <-q.ch
	return r, ok
}

func (q *chanQueue) close() { close(q.ch) }

// unboundedQueue 无界队列，push 从不阻塞
type unboundedQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	q      *queue.Queue
	closed bool
}

func newUnboundedQueue() *unboundedQueue {
	u := &unboundedQueue{q: queue.New()}
	u.cond = sync.NewCond(&u.mu)
	return u
}

func (u *unboundedQueue) push(_ context.Context, r record) error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return ErrServerClosed
	}
	u.q.Add(r)
	u.mu.Unlock()
	u.cond.Signal()
	return nil
}

func (u *unboundedQueue) pop() (record, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for u.q.Length() == 0 && !u.closed {
		u.cond.Wait()
	}
	if u.q.Length() == 0 {
		return record{}, false
	}
	return u.q.Remove().(record), true
}

func (u *unboundedQueue) close() {
	u.mu.Lock()
	u.closed = true
	u.mu.Unlock()
	u.cond.Broadcast()
}
