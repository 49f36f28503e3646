package main

import (
	"errors"
	"fmt"
	"strings"

	pg "medication-reminder/internal/adapters/storage/postgres"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending Postgres migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if strings.TrimSpace(cfg.Database.DSN) == "" {
			return errors.New("database.dsn is required to migrate")
		}

		db, err := pg.Open(cmd.Context(), cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		n, err := pg.ApplyMigrations(cmd.Context(), db)
		if err != nil {
			return err
		}
		log.Info("migrations applied", map[string]any{"count": n})
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
		return nil
	},
}
