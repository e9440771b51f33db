// Command pipeerp runs the pipe-trading ERP service and its maintenance tasks.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pipeerp/internal/config"
	"pipeerp/internal/database"
	"pipeerp/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("✗")+" "+err.Error())
		os.Exit(1)
	}
}

type options struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "pipeerp",
		Short:         "ERP service for pipe and fittings trading",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "pipeerp.yaml", "path to the YAML config file")

	root.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newUserCmd(opts),
		newSweepCmd(opts),
	)
	return root
}

// env is what every subcommand needs: settings, a logger and a migrated database.
type env struct {
	cfg config.Config
	log *zap.Logger
	db  *sqlx.DB
}

func (e *env) Close() {
	e.db.Close()
	e.log.Sync()
}

func (o *options) open() (*env, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg.Database.Path, cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &env{cfg: cfg, log: log, db: db}, nil
}

func ok(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("✓")+" "+fmt.Sprintf(format, args...))
}

func note(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintln(cmd.OutOrStdout(), color.CyanString("→")+" "+fmt.Sprintf(format, args...))
}
