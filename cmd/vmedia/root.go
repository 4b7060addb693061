package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jacobweinstock/vmedia/config"
)

// rootOptions are shared by every subcommand.
type rootOptions struct {
	configFile string
	logLevel   string

	cfg *config.Config
	log logr.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "vmedia",
		Short:         "Install operating systems over BMC virtual media",
		Long:          `vmedia mounts an install image on a server's virtual CD through its Redfish management controller, boots it once and optionally waits for the installed host.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log, err := defaultLogger(cmd.ErrOrStderr(), opts.logLevel)
			if err != nil {
				return err
			}
			opts.log = log
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "path to the configuration file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level, debug or info")
	_ = cmd.MarkPersistentFlagRequired("config")

	cmd.AddCommand(newListCmd(opts), newInfoCmd(opts), newInstallCmd(opts))
	return cmd
}

func defaultLogger(w io.Writer, level string) (logr.Logger, error) {
	var l zerolog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = zerolog.DebugLevel
	case "info", "":
		l = zerolog.InfoLevel
	default:
		return logr.Discard(), fmt.Errorf("unknown log level %q", level)
	}
	zl := zerolog.New(w).Level(l).With().Caller().Timestamp().Logger()
	return zerologr.New(&zl), nil
}
