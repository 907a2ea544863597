// Package cli implements the operator command-line interface.
package cli

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"delegated-groups/internal/app"
	"delegated-groups/internal/config"
	internaldb "delegated-groups/internal/db"
	"delegated-groups/internal/directory"
)

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "dgown",
		Short:         "Delegated group ownership operations",
		Long:          "Operator commands for the delegated-group ownership service: membership sync, stale-group pruning and CSV import.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newPruneCmd())
	rootCmd.AddCommand(newImportCmd())
	return rootCmd
}

// bootstrap loads config, opens the store and wires the application. The
// returned cleanup closes the database pools.
func bootstrap() (*app.App, *slog.Logger, func(), error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("warning: could not load .env: %v", err)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	for _, warning := range cfg.Warnings {
		logger.Warn(warning)
	}

	writeDB, readDB, err := internaldb.OpenSQLitePair(cfg.DBPath, 4)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	cleanup := func() {
		_ = writeDB.Close()
		_ = readDB.Close()
	}
	if err := internaldb.RunMigrations(writeDB); err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("migrations: %w", err)
	}

	gateway := directory.NewClient(directory.Config{
		Jira: directory.SystemConfig{
			BaseURL: cfg.Directory.Jira.BaseURL,
			Token:   cfg.Directory.Jira.Token,
		},
		Confluence: directory.SystemConfig{
			BaseURL: cfg.Directory.Confluence.BaseURL,
			Token:   cfg.Directory.Confluence.Token,
		},
		RequestTimeout:    cfg.Directory.RequestTimeout,
		MaxPages:          cfg.Directory.MaxPages,
		RequestsPerSecond: cfg.Directory.RequestsPerSecond,
		EmailMapTTL:       cfg.Directory.EmailMapTTL,
	}, logger.With("component", "directory"))

	application := app.New(app.Deps{
		Cfg:     cfg,
		WriteDB: writeDB,
		ReadDB:  readDB,
		Gateway: gateway,
		Logger:  logger,
	})
	return application, logger, cleanup, nil
}
