package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/legamerdc/sockd/client"
	"github.com/legamerdc/sockd/protocol"
	"github.com/spf13/cobra"
)

func newDialCmd() *cobra.Command {
	var (
		timeout   time.Duration
		halfClose bool
		frame     bool
		threshold int
	)
	cmd := &cobra.Command{
		Use:   "dial ADDR [MESSAGE...]",
		Short: "Connect to a server, send a message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			c, err := client.Dial(ctx, args[0], client.WithTimeout(timeout), client.WithCompressThreshold(threshold))
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.SetDeadline(time.Now().Add(timeout)); err != nil {
				return err
			}

			msg := []byte(strings.Join(args[1:], " "))
			out := cmd.OutOrStdout()
			label := color.New(color.FgCyan)
			label.Fprintf(out, "%s -> %s\n", c.LocalAddr(), c.RemoteAddr())

			if frame {
				rtt, err := c.Ping(msg)
				if err != nil {
					return err
				}
				label.Fprint(out, "pong ")
				fmt.Fprintln(out, rtt)
				return nil
			}

			if _, err := c.Send(msg, halfClose); err != nil {
				return err
			}
			var reply []byte
			if halfClose {
				reply, err = c.RecvAll()
			} else {
				buf := make([]byte, 64<<10)
				var n int
				n, err = c.Recv(buf)
				reply = buf[:n]
			}
			if err != nil {
				return err
			}
			label.Fprint(out, "reply ")
			color.New(color.FgGreen).Fprintf(out, "%q\n", reply)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.DurationVarP(&timeout, "timeout", "t", 5*time.Second, "connect and I/O timeout")
	fl.BoolVar(&halfClose, "half-close", true, "shut down the write side after sending and read until EOF")
	fl.BoolVar(&frame, "frame", false, "send a framed ping instead of raw bytes")
	fl.IntVar(&threshold, "compress", 0, fmt.Sprintf("compress frames of at least N bytes (max %d)", protocol.MaxLen))
	return cmd
}
