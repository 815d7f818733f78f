//go:build linux

package sockd

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/legamerdc/sockd/internal/netutil"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// processHandoff 重新执行当前二进制，把连接作为 fd 3 交给子进程。
// 监听 socket 带 CLOEXEC，子进程不会持有它。
type processHandoff struct {
	s    *Server
	exe  string
	args []string
	wg   sync.WaitGroup
}

func newProcessHandoff(s *Server) (*processHandoff, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	args := s.cfg.ChildArgs
	if args == nil {
		args = os.Args[1:]
	}
	return &processHandoff{s: s, exe: exe, args: args}, nil
}

func (p *processHandoff) submit(_ context.Context, c *Conn) error {
	// 复制一份带 CLOEXEC 的 fd 给 os.File 持有，父进程的 c.fd 仍由 release 关闭
	dup, err := unix.FcntlInt(uintptr(c.fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return err
	}
	f := os.NewFile(uintptr(dup), "conn-"+strconv.FormatUint(c.ID, 10))
	defer f.Close()

	cmd := exec.Command(p.exe, p.args...)
	cmd.ExtraFiles = []*os.File{f}
	cmd.Env = append(os.Environ(),
		ChildEnv+"=1",
		ChildPeerEnv+"="+c.peer.String(),
		ChildConnEnv+"="+strconv.FormatUint(c.ID, 10),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	p.s.stats.children.Inc()
	log := p.s.log.With(zap.Uint64("conn", c.ID), zap.Int("pid", cmd.Process.Pid))
	log.Debug("child started", zap.Stringer("peer", c.peer))

	// 每个子进程一个回收 goroutine，避免僵尸进程
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		err := cmd.Wait()
		p.s.stats.handled.Inc()
		var ee *exec.ExitError
		switch {
		case err == nil:
			log.Debug("child exited")
		case errors.As(err, &ee):
			log.Warn("child exited abnormally", zap.Int("code", ee.ExitCode()), zap.Error(err))
		default:
			log.Error("child wait", zap.Error(err))
		}
	}()

	// 父进程的副本到此为止
	_ = c.release()
	return nil
}

// close 等待所有子进程退出
func (p *processHandoff) close() error {
	p.wg.Wait()
	return nil
}

// ChildConn 在子进程中取回继承的连接
func ChildConn() (*Conn, error) {
	if !IsChild() {
		return nil, ErrNotChild
	}
	var peer netip.AddrPort
	if v := os.Getenv(ChildPeerEnv); v != "" {
		peer, _ = netip.ParseAddrPort(v)
	}
	id, _ := strconv.ParseUint(os.Getenv(ChildConnEnv), 10, 64)
	c := newConn(id, childConnFd, peer, nil)
	if _, err := unix.GetsockoptInt(childConnFd, unix.SOL_SOCKET, unix.SO_TYPE); err != nil {
		c.closed.Store(true)
		return nil, connErr("inherit", peer, fmt.Errorf("fd %d: %w", childConnFd, err))
	}
	unix.CloseOnExec(childConnFd)
	// 对端已重置时沿用父进程传来的地址
	if ap, err := netutil.PeerAddr(childConnFd); err == nil {
		c.peer = ap
	}
	return c, nil
}

// ServeChild 在子进程中对继承的连接执行 h，结束后关闭连接。
// 非子进程返回 (false, nil)；调用方在返回 true 后应退出进程。
func ServeChild(ctx context.Context, h Handler) (bool, error) {
	c, err := ChildConn()
	if errors.Is(err, ErrNotChild) {
		return false, nil
	}
	if err != nil {
		return true, err
	}
	defer c.release()
	h.ServeConn(ctx, c)
	return true, nil
}
