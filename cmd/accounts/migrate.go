package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"nrkgo.com/accounts/internal/migrate"
	"nrkgo.com/accounts/internal/obs"
	"nrkgo.com/accounts/internal/store/pg"
)

var migrateTimeout time.Duration

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|status|seed]",
	Short:     "Apply or inspect database migrations",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down", "status", "seed"},
	RunE:      runMigrate,
}

func init() {
	migrateCmd.Flags().DurationVar(&migrateTimeout, "timeout", 30*time.Second, "overall deadline")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.DSN == "" {
		return errors.New("database.dsn is required for migrations")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), migrateTimeout)
	defer cancel()

	store, err := pg.Open(cfg.Database.DSN, pg.PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	mgr := migrate.NewManager(store.DB(), nil, migrate.WithLogger(obs.Logger()))
	switch args[0] {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		for _, item := range history {
			fmt.Fprintln(cmd.OutOrStdout(), item)
		}
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", args[0], err)
	}
	return nil
}
