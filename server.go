package sockd

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// State 为 Server 的生命周期状态
type State int32

const (
	StateIdle State = iota
	StateListening
	StateServing
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateServing:
		return "serving"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Server 持有监听 socket，并按选定策略把每个连接交给 Handler
type Server struct {
	cfg Config
	h   Handler
	id  uuid.UUID
	log *zap.Logger

	mu     sync.Mutex
	state  State
	ln     *Listener
	cancel context.CancelFunc
	done   chan struct{}
	// wake 由当前分发循环安装，用于唤醒其阻塞点（accept 或就绪等待）
	wake func()

	closing atomic.Bool
	nextID  atomic.Uint64
	stats   counters
}

// NewServer 校验配置并构造未监听的 Server
func NewServer(cfg Config, h Handler) (*Server, error) {
	if h == nil {
		return nil, &OpError{Op: "config", Scope: ScopeConfig, Err: fmt.Errorf("%w: nil handler", ErrInvalidArgument)}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{cfg: cfg, h: h, id: uuid.New()}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s.log = log.With(zap.String("server", s.id.String()), zap.Stringer("strategy", cfg.Strategy))
	return s, nil
}

// ID 返回实例标识
func (s *Server) ID() string { return s.id.String() }

// Config 返回生效的配置副本
func (s *Server) Config() Config { return s.cfg }

// ListenAndServe 依次调用 Listen 与 Serve
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Addr 返回监听地址，未监听时为零值
func (s *Server) Addr() netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return netip.AddrPort{}
	}
	return s.ln.Addr()
}

func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats 返回计数器快照
func (s *Server) Stats() Stats { return s.stats.snapshot() }

// Close 停止服务：唤醒分发循环、关闭监听 socket 与仍在监视集中的连接，
// 并等待在途 worker 结束。不得在 handler 内调用。
func (s *Server) Close() error {
	s.closing.Store(true)
	s.mu.Lock()
	switch s.state {
	case StateServing:
		cancel, done := s.cancel, s.done
		s.mu.Unlock()
		cancel()
		<-done
		return nil
	case StateListening:
		s.state = StateStopped
		ln := s.ln
		s.mu.Unlock()
		return ln.Close()
	case StateIdle:
		s.state = StateStopped
	}
	s.mu.Unlock()
	return nil
}

// interrupt 在 ctx 取消时调用
func (s *Server) interrupt() {
	s.closing.Store(true)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wake != nil {
		s.wake()
	}
}

// setWake 安装唤醒函数；安装后调用方需再次检查 closing
func (s *Server) setWake(f func()) {
	s.mu.Lock()
	s.wake = f
	s.mu.Unlock()
}

// beginServe 检查状态并切换到 Serving
func (s *Server) beginServe(ctx context.Context) (context.Context, *Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateListening:
	case StateStopped:
		return nil, nil, ErrServerClosed
	default:
		return nil, nil, &OpError{Op: "serve", Scope: ScopeConfig, Err: fmt.Errorf("%w: server is %s", ErrInvalidArgument, s.state)}
	}
	ctx, cancel := context.WithCancel(ctx)
	s.state = StateServing
	s.cancel = cancel
	s.done = make(chan struct{})
	return ctx, s.ln, nil
}

// finish 关闭监听 socket 并确定终态
func (s *Server) finish(ln *Listener, err error) error {
	s.mu.Lock()
	s.wake = nil
	done := s.done
	s.mu.Unlock()

	err = appendErr(err, ln.Close())

	s.mu.Lock()
	if err == nil || errors.Is(err, ErrServerClosed) {
		s.state = StateStopped
	} else {
		s.state = StateFailed
	}
	state := s.state
	s.mu.Unlock()

	st := s.stats.snapshot()
	fields := []zap.Field{
		zap.Uint64("accepted", st.Accepted),
		zap.Uint64("handled", st.Handled),
		zap.Uint64("rejected", st.Rejected),
		zap.Uint64("conn_errors", st.ConnErrors),
	}
	if state == StateFailed {
		s.log.Error("server failed", append(fields, zap.Error(err))...)
	} else {
		s.log.Info("server stopped", fields...)
	}
	s.cancel()
	close(done)
	return err
}

func (s *Server) newConn(fd int, peer netip.AddrPort) *Conn {
	s.stats.accepted.Inc()
	return newConn(s.nextID.Inc(), fd, peer, s.onConnClose)
}

func (s *Server) onConnClose(*Conn) { s.stats.closed.Inc() }

// serveConn 为所有执行者共用的连接处理流程：执行 handler、恢复 panic、关闭连接
func (s *Server) serveConn(ctx context.Context, h Handler, c *Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.stats.panics.Inc()
			s.log.Error("handler panic",
				zap.Uint64("conn", c.ID),
				zap.Stringer("peer", c.peer),
				zap.Error(fmt.Errorf("%w: %v", ErrHandlerPanic, r)),
				zap.Stack("stack"))
		}
		s.stats.handled.Inc()
		if err := c.release(); err != nil && !errors.Is(err, ErrConnClosed) {
			s.log.Debug("close connection", zap.Uint64("conn", c.ID), zap.Error(err))
		}
	}()
	h.ServeConn(ctx, c)
}

// dispatch 将连接交给 ho；失败时关闭连接并按单连接错误处理。
// 返回非 nil 表示分发循环应当终止。
func (s *Server) dispatch(ctx context.Context, ho handoff, c *Conn) error {
	s.stats.dispatched.Inc()
	err := ho.submit(ctx, c)
	if err == nil {
		return nil
	}
	s.stats.dispatched.Dec()
	_ = c.release()
	if s.closing.Load() {
		return nil
	}
	return s.connFailure(ctx, connErr("dispatch", c.peer, err), nil)
}

// connFailure 处理 accept/分发中的错误：监听级错误直接返回；
// 单连接错误记录后继续（StrictErrors 时返回）。
func (s *Server) connFailure(ctx context.Context, err error, bo *backoff) error {
	var oe *OpError
	if errors.As(err, &oe) && oe.Scope == ScopeListener {
		return err
	}
	s.stats.connErrors.Inc()
	s.log.Warn("connection error", zap.Error(err))
	if s.cfg.StrictErrors {
		return err
	}
	if bo != nil && resourceExhausted(err) {
		bo.wait(ctx)
	}
	return nil
}

func appendErr(err, other error) error {
	switch {
	case other == nil:
		return err
	case err == nil:
		return other
	}
	return multierror.Append(err, other)
}

// backoff 为 fd 耗尽时的 accept 退避：5ms 起翻倍，上限 1s
type backoff struct {
	d time.Duration
}

const (
	minBackoff = 5 * time.Millisecond
	maxBackoff = time.Second
)

func (b *backoff) next() time.Duration {
	if b.d == 0 {
		b.d = minBackoff
	} else if b.d *= 2; b.d > maxBackoff {
		b.d = maxBackoff
	}
	return b.d
}

func (b *backoff) reset() { b.d = 0 }

func (b *backoff) wait(ctx context.Context) {
	t := time.NewTimer(b.next())
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
