package sockd

import (
	"fmt"
	"net/netip"
	"strings"

	"go.uber.org/zap"
)

// Strategy 为连接分发的并发策略，启动时选定，运行期间不可变
type Strategy int

const (
	Blocking Strategy = iota
	ProcessPerConnection
	ThreadPerConnection
	SelectMultiplexed
	PollMultiplexed
	EpollMultiplexed
)

var strategyNames = [...]string{
	Blocking:             "blocking",
	ProcessPerConnection: "process",
	ThreadPerConnection:  "thread",
	SelectMultiplexed:    "select",
	PollMultiplexed:      "poll",
	EpollMultiplexed:     "epoll",
}

// 兼容原有的缩写（BLOCK/PPC/TPC/SELECT_TPC/POLL_TPC/EPOLL_TPC）
var strategyAliases = map[string]Strategy{
	"block":      Blocking,
	"none":       Blocking,
	"ppc":        ProcessPerConnection,
	"tpc":        ThreadPerConnection,
	"select_tpc": SelectMultiplexed,
	"poll_tpc":   PollMultiplexed,
	"epoll_tpc":  EpollMultiplexed,
}

func (s Strategy) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
	return strategyNames[s]
}

// Multiplexed 报告该策略是否经由就绪多路复用器
func (s Strategy) Multiplexed() bool {
	return s == SelectMultiplexed || s == PollMultiplexed || s == EpollMultiplexed
}

func (s Strategy) valid() bool { return s >= Blocking && s <= EpollMultiplexed }

// ParseStrategy 解析策略名，大小写不敏感
func ParseStrategy(name string) (Strategy, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", "_")
	for i, v := range strategyNames {
		if n == v {
			return Strategy(i), nil
		}
	}
	if s, ok := strategyAliases[n]; ok {
		return s, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStrategy, name)
}

func (s Strategy) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Strategy) UnmarshalText(b []byte) error {
	v, err := ParseStrategy(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// OverflowPolicy 决定 Select/Poll 监视集满时的行为
type OverflowPolicy int

const (
	// OverflowReject 先 accept 再立即关闭
	OverflowReject OverflowPolicy = iota
	// OverflowDefer 暂停监听 socket 的就绪事件，连接留在内核 backlog 中直到腾出空位
	OverflowDefer
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowReject:
		return "reject"
	case OverflowDefer:
		return "defer"
	default:
		return fmt.Sprintf("OverflowPolicy(%d)", int(p))
	}
}

func (p OverflowPolicy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *OverflowPolicy) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "reject", "":
		*p = OverflowReject
	case "defer", "starve":
		*p = OverflowDefer
	default:
		return fmt.Errorf("%w: overflow policy %q", ErrInvalidArgument, string(b))
	}
	return nil
}

// HandoffMode 决定已接受连接如何交给 worker
type HandoffMode int

const (
	// HandoffPool 每个 Server 一条队列 + 固定数量的 worker
	HandoffPool HandoffMode = iota
	// HandoffBaton 单槽共享记录 + 互斥锁接力：下一次分发阻塞到上一个 worker 拷贝完记录。
	// 派生吞吐被串行化在拷贝步骤上。
	HandoffBaton
)

func (m HandoffMode) String() string {
	switch m {
	case HandoffPool:
		return "pool"
	case HandoffBaton:
		return "baton"
	default:
		return fmt.Sprintf("HandoffMode(%d)", int(m))
	}
}

func (m HandoffMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *HandoffMode) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "pool", "":
		*m = HandoffPool
	case "baton":
		*m = HandoffBaton
	default:
		return fmt.Errorf("%w: handoff mode %q", ErrInvalidArgument, string(b))
	}
	return nil
}

// Config 为服务端配置
type Config struct {
	Address       string         // 绑定地址（IPv4/IPv6 文本），如 "127.0.0.1"
	Port          int            // 0..65535，0 表示由内核分配
	Backlog       int            // listen 队列长度，超过 somaxconn 时被截断
	Strategy      Strategy       // 并发策略
	WatchCapacity int            // Select/Poll 必填；Epoll 为 0 表示不限
	Overflow      OverflowPolicy // 监视集满时的策略
	Handoff       HandoffMode    // Thread/Select/Poll/Epoll 的交接方式
	Workers       int            // HandoffPool 常驻的空闲 worker 数；忙时按需新增，0 表示每个连接一个 goroutine
	QueueSize     int            // HandoffPool 队列容量，0 表示无界
	StrictErrors  bool           // 单连接错误也终止 Serve（保留原有的致命语义）
	ChildArgs     []string       // ProcessPerConnection 子进程参数，nil 时沿用 os.Args[1:]
	Logger        *zap.Logger
}

const (
	DefaultBacklog       = 128
	DefaultWatchCapacity = 128
	DefaultWorkers       = 64
)

// DefaultConfig 提供一组可工作的默认值
func DefaultConfig() Config {
	return Config{
		Address:       "0.0.0.0",
		Port:          8080,
		Backlog:       DefaultBacklog,
		Strategy:      ThreadPerConnection,
		WatchCapacity: DefaultWatchCapacity,
		Overflow:      OverflowReject,
		Handoff:       HandoffPool,
		Workers:       DefaultWorkers,
	}
}

// Validate 在开始监听之前检查配置错误
func (c *Config) Validate() error {
	if _, err := netip.ParseAddr(c.Address); err != nil {
		return &OpError{Op: "config", Scope: ScopeConfig, Err: fmt.Errorf("%w: %q", ErrInvalidAddress, c.Address)}
	}
	if c.Port < 0 || c.Port > 65535 {
		return &OpError{Op: "config", Scope: ScopeConfig, Err: fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)}
	}
	if c.Backlog <= 0 {
		return &OpError{Op: "config", Scope: ScopeConfig, Err: fmt.Errorf("%w: %d", ErrInvalidBacklog, c.Backlog)}
	}
	if !c.Strategy.valid() {
		return &OpError{Op: "config", Scope: ScopeConfig, Err: fmt.Errorf("%w: %d", ErrInvalidStrategy, int(c.Strategy))}
	}
	switch c.Strategy {
	case SelectMultiplexed, PollMultiplexed:
		if c.WatchCapacity <= 0 {
			return &OpError{Op: "config", Scope: ScopeConfig, Err: fmt.Errorf("%w: %d", ErrInvalidCapacity, c.WatchCapacity)}
		}
	case EpollMultiplexed:
		if c.WatchCapacity < 0 {
			return &OpError{Op: "config", Scope: ScopeConfig, Err: fmt.Errorf("%w: %d", ErrInvalidCapacity, c.WatchCapacity)}
		}
	}
	if c.Handoff != HandoffPool && c.Handoff != HandoffBaton {
		return &OpError{Op: "config", Scope: ScopeConfig, Err: fmt.Errorf("%w: handoff %d", ErrInvalidArgument, int(c.Handoff))}
	}
	if c.Overflow != OverflowReject && c.Overflow != OverflowDefer {
		return &OpError{Op: "config", Scope: ScopeConfig, Err: fmt.Errorf("%w: overflow %d", ErrInvalidArgument, int(c.Overflow))}
	}
	if c.Workers < 0 {
		return &OpError{Op: "config", Scope: ScopeConfig, Err: fmt.Errorf("%w: workers %d", ErrInvalidArgument, c.Workers)}
	}
	if c.QueueSize < 0 {
		return &OpError{Op: "config", Scope: ScopeConfig, Err: fmt.Errorf("%w: queue size %d", ErrInvalidArgument, c.QueueSize)}
	}
	return nil
}
