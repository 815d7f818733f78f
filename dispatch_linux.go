//go:build linux

package sockd

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/legamerdc/sockd/poller"
	"go.uber.org/zap"
)

// Listen 打开监听 socket（Idle -> Listening）
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return &OpError{Op: "listen", Scope: ScopeConfig, Err: fmt.Errorf("%w: server is %s", ErrInvalidArgument, s.state)}
	}
	ln, err := Listen(s.cfg.Address, s.cfg.Port, s.cfg.Backlog)
	if err != nil {
		s.state = StateFailed
		return err
	}
	s.ln = ln
	s.state = StateListening
	s.log.Info("listening",
		zap.Stringer("addr", ln.Addr()),
		zap.Int("backlog", ln.Backlog()),
		zap.Int("fd", ln.Fd()))
	return nil
}

// Serve 按策略运行分发循环。Blocking 处理一个连接后返回 nil；
// 其余策略持续运行，直到 Close 或 ctx 取消（返回 ErrServerClosed）
// 或监听级错误（返回 ScopeListener 的 *OpError，状态变为 Failed）。
func (s *Server) Serve(ctx context.Context) error {
	ctx, ln, err := s.beginServe(ctx)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, s.interrupt)
	defer stop()
	return s.finish(ln, s.run(ctx, ln))
}

func (s *Server) run(ctx context.Context, ln *Listener) error {
	switch s.cfg.Strategy {
	case Blocking:
		return s.acceptLoop(ctx, ln, inlineHandoff{s: s}, true)
	case ProcessPerConnection:
		ho, err := newProcessHandoff(s)
		if err != nil {
			return listenerErr("spawn", ln.Addr(), err)
		}
		return s.acceptLoop(ctx, ln, ho, false)
	case ThreadPerConnection:
		return s.acceptLoop(ctx, ln, s.newWorkerHandoff(ctx), false)
	default:
		return s.serveMultiplexed(ctx, ln)
	}
}

func (s *Server) accept(ln *Listener) (*Conn, error) {
	fd, peer, err := ln.Accept()
	if err != nil {
		return nil, err
	}
	return s.newConn(fd, peer), nil
}

// acceptLoop 为 Blocking/Process/Thread 共用的 accept 循环；once 为 true 时处理一个连接后返回
func (s *Server) acceptLoop(ctx context.Context, ln *Listener, ho handoff, once bool) (err error) {
	defer func() { err = appendErr(err, ho.close()) }()

	s.setWake(ln.shutdown)
	var bo backoff
	for !s.closing.Load() {
		c, aerr := s.accept(ln)
		if aerr != nil {
			if s.closing.Load() {
				break
			}
			if ferr := s.connFailure(ctx, aerr, &bo); ferr != nil {
				return ferr
			}
			continue
		}
		bo.reset()
		s.log.Debug("accepted", zap.Uint64("conn", c.ID), zap.Stringer("peer", c.peer), zap.Int("fd", c.fd))
		if ferr := s.dispatch(ctx, ho, c); ferr != nil {
			return ferr
		}
		if once {
			return nil
		}
	}
	return ErrServerClosed
}

func pollerKind(st Strategy) poller.Kind {
	switch st {
	case SelectMultiplexed:
		return poller.Select
	case PollMultiplexed:
		return poller.Poll
	default:
		return poller.Epoll
	}
}

// muxLoop 为 Select/Poll/Epoll 共用的就绪循环，监视集只由本循环所在 goroutine 访问
type muxLoop struct {
	s  *Server
	ln *Listener
	p  poller.Poller
	ho handoff

	capacity  int
	watched   map[int]*Conn
	listening bool
	bo        backoff
}

const defaultEventBatch = 256

func (s *Server) serveMultiplexed(ctx context.Context, ln *Listener) (err error) {
	capacity := s.cfg.WatchCapacity
	pcap := 0
	if capacity > 0 {
		// 监听 socket 额外占一个位置
		pcap = capacity + 1
	}
	p, err := poller.New(pollerKind(s.cfg.Strategy), pcap)
	if err != nil {
		return listenerErr("poller", ln.Addr(), err)
	}
	if err := ln.setNonblock(true); err != nil {
		p.Close()
		return listenerErr("fcntl", ln.Addr(), err)
	}
	if err := p.Add(ln.Fd()); err != nil {
		p.Close()
		return listenerErr("watch", ln.Addr(), err)
	}
	m := &muxLoop{
		s:         s,
		ln:        ln,
		p:         p,
		ho:        s.newWorkerHandoff(ctx),
		capacity:  capacity,
		watched:   make(map[int]*Conn),
		listening: true,
	}
	defer func() { err = m.teardown(err) }()

	s.setWake(func() { _ = p.Wake() })
	return m.run(ctx)
}

func (m *muxLoop) run(ctx context.Context) error {
	batch := defaultEventBatch
	if m.capacity > 0 && m.capacity+1 < batch {
		batch = m.capacity + 1
	}
	events := make([]poller.Event, batch)
	for !m.s.closing.Load() {
		n, err := m.p.Wait(events)
		if err != nil {
			if m.s.closing.Load() {
				break
			}
			return listenerErr("wait", m.ln.Addr(), err)
		}
		// 按 poller 报告的顺序处理
		for _, ev := range events[:n] {
			if m.s.closing.Load() {
				break
			}
			if ev.Fd == m.ln.Fd() {
				err = m.acceptReady(ctx)
			} else {
				err = m.dispatchReady(ctx, ev.Fd)
			}
			if err != nil {
				return err
			}
		}
	}
	return ErrServerClosed
}

func (m *muxLoop) full() bool {
	return m.capacity > 0 && len(m.watched) >= m.capacity
}

func (m *muxLoop) acceptReady(ctx context.Context) error {
	c, err := m.s.accept(m.ln)
	if err != nil {
		if wouldBlock(err) {
			return nil
		}
		return m.s.connFailure(ctx, err, &m.bo)
	}
	m.bo.reset()
	if m.full() {
		return m.reject(c, ErrWatchSetFull)
	}
	if err := m.p.Add(c.fd); err != nil {
		if errors.Is(err, poller.ErrFull) || errors.Is(err, poller.ErrFdRange) {
			return m.reject(c, err)
		}
		_ = c.release()
		return m.s.connFailure(ctx, connErr("watch", c.peer, err), nil)
	}
	m.watched[c.fd] = c
	m.s.log.Debug("watching", zap.Uint64("conn", c.ID), zap.Int("fd", c.fd), zap.Int("watched", len(m.watched)))
	if m.s.cfg.Overflow == OverflowDefer && m.full() {
		return m.pauseAccept()
	}
	return nil
}

func (m *muxLoop) reject(c *Conn, cause error) error {
	m.s.stats.rejected.Inc()
	m.s.log.Warn("connection rejected",
		zap.Uint64("conn", c.ID),
		zap.Stringer("peer", c.peer),
		zap.Int("watched", len(m.watched)),
		zap.Error(cause))
	_ = c.release()
	return nil
}

// pauseAccept 监视集满时停止监听 socket 的就绪通知，新连接留在内核 backlog
func (m *muxLoop) pauseAccept() error {
	if !m.listening {
		return nil
	}
	if err := m.p.Remove(m.ln.Fd()); err != nil {
		return listenerErr("unwatch", m.ln.Addr(), err)
	}
	m.listening = false
	m.s.log.Debug("watch set full, accept paused", zap.Int("watched", len(m.watched)))
	return nil
}

func (m *muxLoop) resumeAccept() error {
	if m.listening || m.full() {
		return nil
	}
	if err := m.p.Add(m.ln.Fd()); err != nil {
		return listenerErr("watch", m.ln.Addr(), err)
	}
	m.listening = true
	return nil
}

// dispatchReady 先移出监视集再分发，保证同一连接只被分发一次
func (m *muxLoop) dispatchReady(ctx context.Context, fd int) error {
	c, ok := m.watched[fd]
	if !ok {
		return nil
	}
	delete(m.watched, fd)
	if err := m.p.Remove(fd); err != nil {
		_ = c.release()
		return listenerErr("unwatch", m.ln.Addr(), err)
	}
	if err := m.resumeAccept(); err != nil {
		_ = c.release()
		return err
	}
	if err := c.refreshPeer(); err != nil {
		_ = c.release()
		return m.s.connFailure(ctx, err, nil)
	}
	return m.s.dispatch(ctx, m.ho, c)
}

// teardown 关闭仍在监视集中（未分发）的连接、poller，并等待 worker
func (m *muxLoop) teardown(err error) error {
	m.s.setWake(nil)
	if n := len(m.watched); n > 0 {
		m.s.log.Info("closing undispatched connections", zap.Int("count", n))
	}
	for fd, c := range m.watched {
		delete(m.watched, fd)
		_ = c.release()
	}
	var merr *multierror.Error
	if cerr := m.p.Close(); cerr != nil {
		merr = multierror.Append(merr, cerr)
	}
	if cerr := m.ho.close(); cerr != nil {
		merr = multierror.Append(merr, cerr)
	}
	return appendErr(err, merr.ErrorOrNil())
}
