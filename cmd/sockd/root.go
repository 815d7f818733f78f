package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sockd",
		Short:         "TCP connection-acceptance server with selectable concurrency strategies",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newDialCmd(), newResolveCmd(), newPortsCmd())
	return root
}
