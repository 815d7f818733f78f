// Command sockd 运行 TCP 连接分发服务端，并提供 dial/resolve/ports 等辅助子命令。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
