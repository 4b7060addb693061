package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configured servers:")
			for _, s := range opts.cfg.Servers {
				fmt.Fprintf(out, "  - %s (iDRAC: %s, Target: %s)\n", s.Name, s.IDRACHost, s.TargetHost)
			}
			return nil
		},
	}
}
