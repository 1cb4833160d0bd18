// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package main

import (
	"os"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	authpg "github.com/authgate/authgate/internal/auth/postgres"
	"github.com/authgate/authgate/internal/store"
)

// banConfig holds configuration for the ban command.
type banConfig struct {
	unban         bool
	revokeSession bool
}

// NewBanCmd creates the ban subcommand.
func NewBanCmd() *cobra.Command {
	cfg := &banConfig{}

	cmd := &cobra.Command{
		Use:   "ban <user-id>",
		Short: "Ban or unban a user",
		Long: `Mark a user as banned by their external ID. A banned user's
existing session resolves to a forbidden response on every guarded
request. Pass --revoke-session to also invalidate the stored token.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBan(cmd, args[0], cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.unban, "unban", false, "lift the ban instead of imposing it")
	cmd.Flags().BoolVar(&cfg.revokeSession, "revoke-session", false, "also invalidate the user's stored session token")

	return cmd
}

func runBan(cmd *cobra.Command, rawID string, cfg *banConfig) error {
	externalID, err := ulid.Parse(rawID)
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("user_id", rawID).Errorf("user ID must be a valid ULID")
	}
	if cfg.unban && cfg.revokeSession {
		return oops.Code("CONFIG_INVALID").Errorf("--revoke-session cannot be combined with --unban")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable is required")
	}

	ctx := cmd.Context()

	cmd.Println("Connecting to database...")
	pool, err := store.NewPool(ctx, databaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	repo := authpg.NewUserRepository(pool)

	if err := repo.SetBanned(ctx, externalID, !cfg.unban); err != nil {
		return oops.Code("BAN_FAILED").With("user_id", externalID.String()).Wrap(err)
	}

	if cfg.revokeSession {
		if err := repo.ClearToken(ctx, externalID); err != nil {
			return oops.Code("BAN_FAILED").With("user_id", externalID.String()).Wrap(err)
		}
	}

	if cfg.unban {
		cmd.Printf("User %s unbanned\n", externalID)
	} else {
		cmd.Printf("User %s banned\n", externalID)
	}
	return nil
}
