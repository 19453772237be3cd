package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/auth"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/db"
	"golang.org/x/term"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage Switchboard users",
	}

	cmd.AddCommand(newUserCreateRootCmd())
	return cmd
}

func newUserCreateRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "create-root",
		Short: "Create the root user and print a session token",
		Long:  "Creates the configured root user with its roles and issues a session token for it. Requires auth.root_allow in the config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserCreateRoot(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "path to Switchboard config file")
	return cmd
}

func runUserCreateRoot(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Auth.RootAllow {
		return fmt.Errorf("user: root creation is disabled (set auth.root_allow)")
	}

	gormDB, err := db.Connect(cfg.Storage)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	if err := db.SeedRoles(gormDB, defaultRoles); err != nil {
		return err
	}

	store, err := auth.NewStore(gormDB)
	if err != nil {
		return err
	}

	roles := cfg.Auth.RootRoles
	if len(roles) == 0 {
		roles = []string{"root"}
	}

	ctx := context.Background()
	user, err := store.CreateUser(ctx, cfg.Auth.RootName, roles)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", user.Name, user.ID)

	// Session tokens need a signing secret. Prompt rather than requiring it
	// in a file on disk.
	secret := cfg.Controllers.Account.Token.Secret
	if secret == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "signing secret: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return fmt.Errorf("user: read secret: %w", err)
		}
		secret = string(raw)
	}
	if secret == "" {
		fmt.Fprintf(os.Stderr, "no signing secret; skipping session token\n")
		return nil
	}

	issuer, err := auth.NewIssuer(auth.IssuerOpts{
		Store:       store,
		Secret:      secret,
		IssuerName:  cfg.Controllers.Account.Token.Issuer,
		Audience:    cfg.Controllers.Account.Token.Audience,
		DurationSec: cfg.Controllers.Account.Token.DurationSec,
	})
	if err != nil {
		return err
	}

	signed, token, err := issuer.CreateSession(ctx, user)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "session token (expires %s):\n%s\n", token.ExpiresAt.Format("2006-01-02 15:04"), signed)
	return nil
}
