package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the Authgate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authgate",
		Short: "Authgate - A username/password web authentication gateway",
		Long: `Authgate is a small web authentication gateway providing
registration, login, and cookie-based session validation backed by
PostgreSQL.`,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewBanCmd())

	return cmd
}
