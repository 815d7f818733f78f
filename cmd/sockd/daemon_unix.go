//go:build unix

package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/legamerdc/sockd/config"
)

// daemonEnv 标记已脱离终端的进程，避免重复 daemonize
const daemonEnv = "SOCKD_DAEMONIZED"

func daemonized() bool { return os.Getenv(daemonEnv) == "1" }

// daemonCommand 在新会话中以 / 为工作目录执行 exe，标准输入输出接到 null
func daemonCommand(exe string, args []string, null *os.File) *exec.Cmd {
	cmd := exec.Command(exe, args...)
	cmd.Env = append(os.Environ(), daemonEnv+"=1")
	cmd.Dir = "/"
	cmd.Stdin = null
	cmd.Stdout = null
	cmd.Stderr = null
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd
}

// daemonize 以相同参数重新执行自身并立即返回子进程 pid，不等待其退出
func daemonize(args []string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}
	null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, err
	}
	defer null.Close()

	cmd := daemonCommand(exe, args, null)
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	return pid, cmd.Process.Release()
}

// detach 在后台进程中切换到 /；相对路径的日志文件先转为绝对路径
func detach(cfg *config.Config) error {
	if cfg.Log.File != "" {
		abs, err := filepath.Abs(cfg.Log.File)
		if err != nil {
			return err
		}
		cfg.Log.File = abs
	}
	return os.Chdir("/")
}
