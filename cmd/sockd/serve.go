package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/legamerdc/sockd"
	"github.com/legamerdc/sockd/config"
	"github.com/legamerdc/sockd/handlers"
	"github.com/legamerdc/sockd/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type serveFlags struct {
	configPath string
	envFiles   []string

	address   string
	port      int
	backlog   int
	strategy  string
	capacity  int
	overflow  string
	handoff   string
	workers   int
	queueSize int
	strict    bool
	handler   string
	daemon    bool

	logLevel  string
	logFormat string
	logFile   string
}

func newServeCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Listen and dispatch connections to a built-in handler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load(cmd.Flags())
			if err != nil {
				return err
			}
			h, err := handlers.Lookup(cfg.Handler)
			if err != nil {
				return err
			}
			// ProcessPerConnection 派生的子进程以相同参数重新进入这里
			if served, err := sockd.ServeChild(cmd.Context(), h); served {
				return err
			}
			if cfg.Daemon {
				if !daemonized() {
					pid, err := daemonize(os.Args[1:])
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "sockd: running in background, pid %d\n", pid)
					return nil
				}
				if err := detach(&cfg); err != nil {
					return err
				}
			}
			return serve(cmd, cfg, h)
		},
	}
	f.register(cmd.Flags())
	return cmd
}

func (f *serveFlags) register(fl *pflag.FlagSet) {
	fl.StringVarP(&f.configPath, "config", "c", "", "YAML config file")
	fl.StringSliceVar(&f.envFiles, "env-file", []string{".env"}, "dotenv files (missing files are ignored)")
	fl.StringVarP(&f.address, "address", "a", "", "bind address (IPv4 or IPv6 literal)")
	fl.IntVarP(&f.port, "port", "p", 0, "port, 0 lets the kernel choose")
	fl.IntVar(&f.backlog, "backlog", 0, "listen backlog, clamped to somaxconn")
	fl.StringVarP(&f.strategy, "strategy", "s", "", "blocking|process|thread|select|poll|epoll")
	fl.IntVar(&f.capacity, "capacity", 0, "watch set capacity for select/poll/epoll")
	fl.StringVar(&f.overflow, "overflow", "", "reject|defer when the watch set is full")
	fl.StringVar(&f.handoff, "handoff", "", "pool|baton")
	fl.IntVar(&f.workers, "workers", 0, "idle pool workers kept warm (0: one goroutine per connection)")
	fl.IntVar(&f.queueSize, "queue", 0, "pool queue size, 0 is unbounded")
	fl.BoolVar(&f.strict, "strict", false, "stop serving on any per-connection error")
	fl.StringVar(&f.handler, "handler", "", fmt.Sprintf("handler %v", handlers.Names()))
	fl.BoolVarP(&f.daemon, "daemon", "d", false, "detach from the terminal and run in the background")
	fl.StringVar(&f.logLevel, "log-level", "", "debug|info|warn|error")
	fl.StringVar(&f.logFormat, "log-format", "", "console|json")
	fl.StringVar(&f.logFile, "log-file", "", "log file with rotation, stderr when empty")
}

// load 按 默认值 <- 文件 <- 环境变量 <- 命令行 的顺序合并配置
func (f *serveFlags) load(fl *pflag.FlagSet) (config.Config, error) {
	cfg, err := config.Load(f.configPath, f.envFiles...)
	if err != nil {
		return cfg, err
	}
	if fl.Changed("address") {
		cfg.Address = f.address
	}
	if fl.Changed("port") {
		cfg.Port = f.port
	}
	if fl.Changed("backlog") {
		cfg.Backlog = f.backlog
	}
	if fl.Changed("strategy") {
		if err := cfg.Strategy.UnmarshalText([]byte(f.strategy)); err != nil {
			return cfg, err
		}
	}
	if fl.Changed("capacity") {
		cfg.WatchCapacity = f.capacity
	}
	if fl.Changed("overflow") {
		if err := cfg.Overflow.UnmarshalText([]byte(f.overflow)); err != nil {
			return cfg, err
		}
	}
	if fl.Changed("handoff") {
		if err := cfg.Handoff.UnmarshalText([]byte(f.handoff)); err != nil {
			return cfg, err
		}
	}
	if fl.Changed("workers") {
		cfg.Workers = f.workers
	}
	if fl.Changed("queue") {
		cfg.QueueSize = f.queueSize
	}
	if fl.Changed("strict") {
		cfg.StrictErrors = f.strict
	}
	if fl.Changed("handler") {
		cfg.Handler = f.handler
	}
	if fl.Changed("daemon") {
		cfg.Daemon = f.daemon
	}
	if fl.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if fl.Changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if fl.Changed("log-file") {
		cfg.Log.File = f.logFile
	}
	return cfg, cfg.Validate()
}

func serve(cmd *cobra.Command, cfg config.Config, h sockd.Handler) error {
	log, closeLog, err := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return err
	}
	defer closeLog()

	sc := cfg.ServerConfig()
	sc.Logger = log
	s, err := sockd.NewServer(sc, h)
	if err != nil {
		return err
	}
	if err := s.Listen(); err != nil {
		return err
	}
	log.Info("sockd started",
		zap.Stringer("addr", s.Addr()),
		zap.String("handler", cfg.Handler),
		zap.Stringer("handoff", cfg.Handoff))

	err = s.Serve(cmd.Context())
	st := s.Stats()
	log.Info("sockd exiting",
		zap.Uint64("accepted", st.Accepted),
		zap.Uint64("closed", st.Closed),
		zap.Uint64("children", st.Children))
	if errors.Is(err, sockd.ErrServerClosed) {
		return nil
	}
	return err
}
