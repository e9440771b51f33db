package main

import (
	"github.com/spf13/cobra"

	"pipeerp/internal/auth"
)

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the schema and seed role permissions",
		Long: `Create every missing table and index, seed the default role permission
matrix when it is empty and, on an empty users table, create the "admin"
user with the configured admin password (PIPEERP_ADMIN_PASSWORD).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()
			ok(cmd, "schema up to date in %s", e.cfg.Database.Path)

			if err := auth.InitPermissions(e.db, auth.NewPermCache()); err != nil {
				return err
			}
			ok(cmd, "role permissions ready")

			created, err := auth.EnsureAdmin(e.db, e.cfg.Business.AdminPassword)
			if err != nil {
				return err
			}
			if created {
				ok(cmd, "created user admin")
			}
			return nil
		},
	}
}
