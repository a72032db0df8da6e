package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/Portunus/controller/internal/db"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store != "sqlite" {
				return fmt.Errorf("migrate needs PORTUNUS_STORE=sqlite, got %q", cfg.Store)
			}

			// Open applies migrations before returning.
			conn, err := db.Open(cmd.Context(), db.Config{Path: cfg.DBPath, Env: cfg.Env, Logger: logger})
			if err != nil {
				return err
			}
			return conn.Close()
		},
	}
}
