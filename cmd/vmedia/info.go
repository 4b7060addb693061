package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/jacobweinstock/vmedia/info"
)

func newInfoCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info NAME",
		Short: "Print hardware, boot and virtual media information for a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := opts.cfg.Target(args[0])
			if err != nil {
				return err
			}
			gw := opts.gateway(t)
			defer gw.Close(cmd.Context())

			var doc info.Document
			if err := gw.Open(cmd.Context()); err != nil {
				opts.log.Error(err, "management endpoint unavailable", "target", t.Name)
				doc = info.Unavailable(t.Name, err)
			} else {
				doc = info.Query(cmd.Context(), gw, t.Name, opts.log)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		},
	}
}
