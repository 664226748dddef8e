package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	corecmd "github.com/m3rciful/stateful/core/cmd"
	coreconfig "github.com/m3rciful/stateful/core/config"
	coredatabase "github.com/m3rciful/stateful/core/database"
	"github.com/m3rciful/stateful/core/logger"
	"github.com/m3rciful/stateful/internal/lunch"
)

type migrateFunc func(ctx context.Context, cmd *cobra.Command, m *coredatabase.Migrator, args []string) error

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres conversation state schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(ctx context.Context, _ *cobra.Command, m *coredatabase.Migrator, _ []string) error {
			return m.Up(ctx)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (one step by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: withMigrator(func(ctx context.Context, _ *cobra.Command, m *coredatabase.Migrator, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid steps %q: %w", args[0], err)
				}
				steps = n
			}
			return m.Down(ctx, steps)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(ctx context.Context, cmd *cobra.Command, m *coredatabase.Migrator, _ []string) error {
			v, dirty, err := m.Version(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
			return err
		}),
	})
	return cmd
}

func withMigrator(fn migrateFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		path, err := corecmd.ResolveConfigPath(configFlag(cmd), configEnvVar, defaultConfigPath)
		if err != nil {
			return err
		}
		cfg, err := lunch.LoadConfig(path)
		if err != nil {
			return err
		}
		core := cfg.CoreConfig()
		if core.Store.Backend != coreconfig.StorePostgres {
			return fmt.Errorf("migrate: store.backend is %q, migrations apply to %q only", core.Store.Backend, coreconfig.StorePostgres)
		}
		if err := logger.InitLogger(core); err != nil {
			return err
		}
		defer func() { _ = logger.Shutdown() }()

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return fn(ctx, cmd, coredatabase.NewMigrator(core.Database, core.Store.ConnectTimeout), args)
	}
}
