package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/arvalo/arvalo/internal/migration"
	"github.com/arvalo/arvalo/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// =============================================================================
// 🗄️ migrate 命令
// =============================================================================

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
	}

	var all bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration (or all with --all)",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withMigrator(c, opts, func(ctx context.Context, cli *migration.CLI) error { return cli.Down(ctx, all) })
		},
	}
	down.Flags().BoolVar(&all, "all", false, "roll back every migration")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(c *cobra.Command, _ []string) error {
				return withMigrator(c, opts, func(ctx context.Context, cli *migration.CLI) error { return cli.Up(ctx) })
			},
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether they are applied",
			Args:  cobra.NoArgs,
			RunE: func(c *cobra.Command, _ []string) error {
				return withMigrator(c, opts, func(ctx context.Context, cli *migration.CLI) error { return cli.Status(ctx) })
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(c *cobra.Command, _ []string) error {
				return withMigrator(c, opts, func(ctx context.Context, cli *migration.CLI) error { return cli.Version(ctx) })
			},
		},
		&cobra.Command{
			Use:   "goto <version>",
			Short: "Migrate up or down to a specific version",
			Args:  cobra.ExactArgs(1),
			RunE: func(c *cobra.Command, args []string) error {
				v, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return withMigrator(c, opts, func(ctx context.Context, cli *migration.CLI) error { return cli.Goto(ctx, uint(v)) })
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the schema version without running migrations (clears the dirty flag)",
			Args:  cobra.ExactArgs(1),
			RunE: func(c *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return withMigrator(c, opts, func(ctx context.Context, cli *migration.CLI) error { return cli.Force(ctx, v) })
			},
		},
	)
	return cmd
}

// withMigrator 只打开数据库，不构建 Agent
func withMigrator(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, cli *migration.CLI) error) error {
	cfg, _, err := opts.loadConfig()
	if err != nil {
		return err
	}
	cfg.Log.OutputPaths = []string{"stderr"}
	logger, _ := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN(), logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	m, err := migration.NewMigratorFromGorm(db, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn("close migrator", zap.Error(err))
		}
	}()
	return fn(cmd.Context(), migration.NewCLI(m, cmd.OutOrStdout()))
}
