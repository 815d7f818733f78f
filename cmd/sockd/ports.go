package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/legamerdc/sockd/internal/netutil"
	"github.com/spf13/cobra"
)

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List well-known ports by scheme",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			names := make([]string, 0, len(netutil.WellKnownPorts))
			for n := range netutil.WellKnownPorts {
				names = append(names, n)
			}
			sort.Slice(names, func(i, j int) bool {
				pi, pj := netutil.WellKnownPorts[names[i]], netutil.WellKnownPorts[names[j]]
				if pi != pj {
					return pi < pj
				}
				return names[i] < names[j]
			})
			out := cmd.OutOrStdout()
			c := color.New(color.FgCyan)
			for _, n := range names {
				c.Fprintf(out, "%-9s", n)
				fmt.Fprintln(out, netutil.WellKnownPorts[n])
			}
		},
	}
}
