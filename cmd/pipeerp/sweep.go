package main

import (
	"strings"

	"github.com/spf13/cobra"

	"pipeerp/internal/server"
)

func newSweepCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire stale quotations, mark late invoices overdue and drop old sessions",
		Long: `Run the background sweeps once. The server runs the same sweeps on the
jobs.sweep_interval schedule; use this from cron when the server is not running.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()

			a, err := server.New(e.cfg, e.db, e.log)
			if err != nil {
				return err
			}
			res, err := a.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			ok(cmd, "%d quotations expired", len(res.ExpiredQuotations))
			if len(res.ExpiredQuotations) > 0 {
				note(cmd, "%s", strings.Join(res.ExpiredQuotations, ", "))
			}
			ok(cmd, "%d invoices overdue", len(res.OverdueInvoices))
			if len(res.OverdueInvoices) > 0 {
				note(cmd, "%s", strings.Join(res.OverdueInvoices, ", "))
			}
			ok(cmd, "%d expired sessions removed", res.ExpiredSessions)
			return nil
		},
	}
}
