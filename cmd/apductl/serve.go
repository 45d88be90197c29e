package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/danmuck/apductl/internal/admin"
	"github.com/danmuck/apductl/internal/commands"
	"github.com/danmuck/apductl/internal/config"
	"github.com/danmuck/apductl/internal/dispatch"
	"github.com/danmuck/apductl/internal/supervisor"
	"github.com/danmuck/apductl/internal/transport"
	"github.com/danmuck/apductl/internal/ux"
)

type serveOptions struct {
	Listen      string
	AdminAddr   string
	AutoApprove string
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the device and accept one host at a time",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if opts.Listen != "" {
				cfg.ListenAddr = opts.Listen
			}
			if opts.AdminAddr != "" {
				cfg.MetricsAddr = opts.AdminAddr
			}
			if opts.AutoApprove != "" {
				cfg.AutoApprove = ux.Policy(opts.AutoApprove)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "host listen address (overrides listen_addr)")
	cmd.Flags().StringVar(&opts.AdminAddr, "admin", "", "admin HTTP address (overrides metrics_addr)")
	cmd.Flags().StringVar(&opts.AutoApprove, "auto-approve", "", "manual|approve|reject")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ln := transport.NewListener(cfg.ListenAddr, cfg.Limits())
	if err := ln.Listen(ctx); err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}
	defer ln.Shutdown()

	queue := ux.NewQueue(8)
	console := ux.NewConsole(queue, ux.ConsoleOptions{
		Out:    out,
		Policy: cfg.AutoApprove,
		Delay:  cfg.ApproveDelay,
	})
	reg := dispatch.NewRegistry()
	if err := commands.Register(reg, console, commands.Options{Version: version}); err != nil {
		return err
	}
	sup, err := supervisor.New(cfg.Supervisor(), ln, reg, console, queue)
	if err != nil {
		return err
	}

	adminErr := make(chan error, 1)
	if cfg.MetricsAddr != "" {
		srv := admin.New(cfg.MetricsAddr, cfg.CORSOrigins, sup, console)
		go func() {
			adminErr <- srv.Serve(ctx)
		}()
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- sup.Run(ctx)
	}()
	log.Info().
		Str("listen", ln.Addr().String()).
		Str("admin", cfg.MetricsAddr).
		Str("approve", string(cfg.AutoApprove)).
		Msg("apductl.serve ready")

	select {
	case err := <-runErr:
		return err
	case err := <-adminErr:
		if err != nil {
			cancel()
			<-runErr
			return fmt.Errorf("admin server: %w", err)
		}
		return <-runErr
	}
}
