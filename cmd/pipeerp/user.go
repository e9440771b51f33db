package main

import (
	"errors"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pipeerp/internal/auth"
)

func newUserCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(newUserAddCmd(opts))
	return cmd
}

func newUserAddCmd(opts *options) *cobra.Command {
	var displayName, role, password string
	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user with a role",
		Example: `  pipeerp user add ravi --role stores --password 'Pipes-and-Flanges1'
  pipeerp user add meena --name "Meena Iyer" --role accounts --password "$PW"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := strings.TrimSpace(args[0])
			if username == "" {
				return errors.New("username is required")
			}
			if password == "" {
				return errors.New("--password is required")
			}
			if displayName == "" {
				displayName = username
			}

			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()

			var exists int
			if err := e.db.Get(&exists, "SELECT COUNT(*) FROM users WHERE username = ?", username); err != nil {
				return err
			}
			if exists > 0 {
				return errors.New("user " + username + " already exists")
			}
			if _, err := auth.CreateUser(e.db, username, displayName, password, role); err != nil {
				return err
			}
			ok(cmd, "created user %s with role %s", color.YellowString(username), color.CyanString(role))
			return nil
		},
	}
	cmd.Flags().StringVar(&displayName, "name", "", "display name (defaults to the username)")
	cmd.Flags().StringVar(&role, "role", auth.RoleViewer, "one of "+strings.Join(auth.AllRoles, ", "))
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	return cmd
}
