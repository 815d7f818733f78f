package sockd

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// handoff 将一个已接受的连接交给执行者。submit 成功后连接归执行者所有；
// 失败时连接仍归调用方，由调用方关闭。
type handoff interface {
	submit(ctx context.Context, c *Conn) error
	// close 停止接收新连接并等待所有在途执行者结束
	close() error
}

// newWorkerHandoff 根据配置为 goroutine 型策略选择交接方式
func (s *Server) newWorkerHandoff(ctx context.Context) handoff {
	if s.cfg.Handoff == HandoffBaton {
		return newBatonHandoff(s)
	}
	return newPoolHandoff(ctx, s, s.cfg.Workers, s.cfg.QueueSize)
}

// inlineHandoff 在分发循环所在 goroutine 上直接执行 handler
type inlineHandoff struct {
	s *Server
}

func (i inlineHandoff) submit(ctx context.Context, c *Conn) error {
	i.s.serveConn(ctx, i.s.h, c)
	return nil
}

func (inlineHandoff) close() error { return nil }

// batonHandoff 单槽共享记录 + 互斥锁接力：
// 分发方加锁写入记录后启动 worker，worker 拷贝记录后解锁。
// 下一次 submit 会阻塞到上一个 worker 完成拷贝，所以派生是串行的。
type batonHandoff struct {
	s *Server

	mu  sync.Mutex
	rec record

	writes atomic.Uint64
	reads  atomic.Uint64
	wg     sync.WaitGroup
}

func newBatonHandoff(s *Server) *batonHandoff {
	return &batonHandoff{s: s}
}

func (b *batonHandoff) submit(ctx context.Context, c *Conn) error {
	b.mu.Lock()
	b.rec = record{h: b.s.h, c: c}
	b.writes.Inc()
	b.wg.Add(1)
	go b.work(ctx)
	return nil
}

func (b *batonHandoff) work(ctx context.Context) {
	defer b.wg.Done()
	rec := b.rec
	b.rec = record{}
	b.reads.Inc()
	b.mu.Unlock()
	b.s.serveConn(ctx, rec.h, rec.c)
}

func (b *batonHandoff) close() error {
	b.wg.Wait()
	if w, r := b.writes.Load(), b.reads.Load(); w != r {
		return fmt.Errorf("sockd: baton handoff lost records: writes=%d reads=%d", w, r)
	}
	return nil
}

// poolHandoff 一条队列 + 弹性 worker：没有空闲 worker 接手时就新起一个，
// 并发处理的连接数不设上限。floor 为常驻空闲 worker 数，0 表示每个连接一个 goroutine。
type poolHandoff struct {
	s     *Server
	q     connQueue
	g     *errgroup.Group
	floor int

	// idle >= pending 恒成立：队列中的每条记录都有一个空闲 worker 负责取走
	mu      sync.Mutex
	idle    int
	pending int
	spawned atomic.Uint64
}

func newPoolHandoff(ctx context.Context, s *Server, floor, size int) *poolHandoff {
	if floor < 0 {
		floor = 0
	}
	p := &poolHandoff{s: s, q: newConnQueue(size), g: new(errgroup.Group), floor: floor}
	p.mu.Lock()
	for i := 0; i < floor; i++ {
		p.spawn(ctx)
	}
	p.mu.Unlock()
	s.log.Debug("worker pool started", zap.Int("idle_workers", floor), zap.Int("queue", size))
	return p
}

// spawn 需持有 p.mu
func (p *poolHandoff) spawn(ctx context.Context) {
	p.idle++
	p.spawned.Inc()
	p.g.Go(func() error {
		p.work(ctx)
		return nil
	})
}

func (p *poolHandoff) work(ctx context.Context) {
	for {
		r, ok := p.q.pop()
		if !ok {
			return
		}
		p.mu.Lock()
		p.idle--
		p.pending--
		p.mu.Unlock()

		p.s.serveConn(ctx, r.h, r.c)

		p.mu.Lock()
		if p.idle >= p.floor && p.idle >= p.pending {
			p.mu.Unlock()
			return
		}
		p.idle++
		p.mu.Unlock()
	}
}

func (p *poolHandoff) submit(ctx context.Context, c *Conn) error {
	p.mu.Lock()
	p.pending++
	if p.idle < p.pending {
		p.spawn(ctx)
	}
	p.mu.Unlock()

	if err := p.q.push(ctx, record{h: p.s.h, c: c}); err != nil {
		p.mu.Lock()
		p.pending--
		p.mu.Unlock()
		return err
	}
	return nil
}

// close 关闭队列；worker 处理完队列中剩余的连接后退出
func (p *poolHandoff) close() error {
	p.q.close()
	err := p.g.Wait()
	p.s.log.Debug("worker pool stopped", zap.Uint64("spawned", p.spawned.Load()))
	return err
}
