package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/danmuck/apductl/internal/config"
	"github.com/danmuck/apductl/internal/logging"
)

var version = [3]byte{0, 1, 0}

// rootOptions holds global flags for all commands.
type rootOptions struct {
	Verbose    bool
	ConfigPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "apductl",
		Short:         "APDU device emulator and host tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.ConfigureRuntime()
			if opts.Verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to apductl.toml")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newSendCommand(opts))
	cmd.AddCommand(newConfigCommand(opts))
	return cmd
}

// loadConfig returns defaults when no config path was given.
func (o *rootOptions) loadConfig() (config.Config, error) {
	if o.ConfigPath == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(o.ConfigPath)
}
