package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pipeerp/internal/auth"
	"pipeerp/internal/server"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, event hub and background sweeps",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()

			if created, err := auth.EnsureAdmin(e.db, e.cfg.Business.AdminPassword); err != nil {
				e.log.Warn("no admin user", zap.Error(err))
			} else if created {
				e.log.Info("created admin user")
			}

			a, err := server.New(e.cfg, e.db, e.log)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			note(cmd, "%s listening on %s", e.cfg.Business.CompanyName, color.YellowString(e.cfg.Server.Addr))
			return a.Run(ctx)
		},
	}
}
