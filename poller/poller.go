package poller

import (
	"errors"
	"fmt"
	"strings"
)

// FD 表示文件描述符。
type FD = int

// Kind 为就绪多路复用的底层原语，按可扩展性递增。
type Kind int

const (
	Select Kind = iota
	Poll
	Epoll
)

func (k Kind) String() string {
	switch k {
	case Select:
		return "select"
	case Poll:
		return "poll"
	case Epoll:
		return "epoll"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind 解析原语名称。
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "select":
		return Select, nil
	case "poll":
		return Poll, nil
	case "epoll":
		return Epoll, nil
	}
	return 0, fmt.Errorf("poller: unknown kind %q", s)
}

var (
	ErrFull       = errors.New("poller: watch set full")
	ErrFdRange    = errors.New("poller: descriptor outside select range")
	ErrExists     = errors.New("poller: descriptor already watched")
	ErrNotWatched = errors.New("poller: descriptor not watched")
	ErrClosed     = errors.New("poller: closed")
	ErrNoRoom     = errors.New("poller: empty event buffer")
)

// Event 为一次就绪通知。Hangup 表示对端挂断或出错（select 无法区分，恒为 false）。
type Event struct {
	Fd     FD
	Hangup bool
}

// Poller 为水平触发的读就绪多路复用器。
// 仅由一个 goroutine 驱动 Add/Remove/Wait；Wake 可从任意 goroutine 调用。
type Poller interface {
	// Add 将 fd 加入读就绪监视集。
	Add(fd FD) error
	// Remove 将 fd 移出监视集，之后的 Wait 不会再报告它。
	Remove(fd FD) error
	// Wait 无限期阻塞，直到至少一个 fd 就绪或被 Wake 唤醒。
	// 返回写入 events 的数量，被唤醒时可能为 0。
	Wait(events []Event) (int, error)
	// Wake 使阻塞中的（或下一次）Wait 立即返回。
	Wake() error
	// Len 返回当前监视的 fd 数量（不含内部唤醒 fd）。
	Len() int
	// Cap 返回容量上限，0 表示不限。
	Cap() int
	Kind() Kind
	Close() error
}

// New 创建指定原语的 poller。capacity 为 0 表示不限（select 仍受 FD_SETSIZE 约束）。
func New(kind Kind, capacity int) (Poller, error) {
	if capacity < 0 {
		return nil, fmt.Errorf("poller: negative capacity %d", capacity)
	}
	return newPoller(kind, capacity)
}
