package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/legamerdc/sockd/urlinfo"
	"github.com/spf13/cobra"
)

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve URL...",
		Short: "Resolve URLs or host names into canonical name, aliases and addresses",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			key := color.New(color.FgYellow)
			for _, raw := range args {
				info, err := urlinfo.Resolve(cmd.Context(), nil, raw)
				if err != nil {
					return err
				}
				color.New(color.Bold).Fprintln(out, info.Raw)
				key.Fprint(out, "  host      ")
				fmt.Fprintln(out, info.Host)
				key.Fprint(out, "  canonical ")
				fmt.Fprintln(out, info.Canonical)
				key.Fprint(out, "  aliases   ")
				fmt.Fprintln(out, strings.Join(info.Aliases, ", "))
				key.Fprint(out, "  type      ")
				fmt.Fprintln(out, info.Family)
				key.Fprint(out, "  port      ")
				fmt.Fprintln(out, info.Port)
				for _, ap := range info.AddrPorts() {
					key.Fprint(out, "  addr      ")
					fmt.Fprintln(out, ap)
				}
			}
			return nil
		},
	}
}
