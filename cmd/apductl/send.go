package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/danmuck/apductl/internal/script"
	"github.com/danmuck/apductl/internal/transport"
)

type sendOptions struct {
	Addr    string
	Script  string
	Timeout time.Duration
}

func newSendCommand(root *rootOptions) *cobra.Command {
	opts := &sendOptions{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Play a YAML exchange script against a running device",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			addr := opts.Addr
			if addr == "" {
				addr = cfg.ListenAddr
			}
			s, err := script.Load(opts.Script)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if opts.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
				defer cancel()
			}
			client, err := transport.Dial(ctx, addr, cfg.Limits())
			if err != nil {
				return fmt.Errorf("dial %s: %w", addr, err)
			}
			defer client.Close()

			report, err := script.Play(ctx, client, s)
			printReport(cmd.OutOrStdout(), report)
			return err
		},
	}
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "device address (defaults to listen_addr)")
	cmd.Flags().StringVarP(&opts.Script, "script", "s", "", "path to a YAML exchange script")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "overall timeout, 0 waits for user approval indefinitely")
	_ = cmd.MarkFlagRequired("script")
	return cmd
}

func printReport(w io.Writer, report script.Report) {
	for _, step := range report.Steps {
		mark := "ok  "
		if !step.Passed {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "%s %-24s > %x < %x", mark, step.Name, step.Command, step.Response)
		if step.Reason != "" {
			fmt.Fprintf(w, " (%s)", step.Reason)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%s: %d passed, %d failed\n", report.Script, report.Passed, report.Failed)
}
