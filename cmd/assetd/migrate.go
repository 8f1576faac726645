package main

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"

	dbembed "github.com/memohai/assetd/db"
	"github.com/memohai/assetd/internal/boot"
	"github.com/memohai/assetd/internal/config"
	"github.com/memohai/assetd/internal/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <up|down|version|force N>",
	Short: "Apply or roll back the PostgreSQL asset schema",
	Long: `Run schema migrations against the configured PostgreSQL database.

SQLite databases are created with the current schema when the server opens
them, so this command only applies to the postgres driver.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logger.Init(cfg.Log.Level, cfg.Log.Format)
		if strings.EqualFold(strings.TrimSpace(cfg.Database.Driver), boot.DriverSQLite) {
			return fmt.Errorf("migrate is not needed for the %s driver", boot.DriverSQLite)
		}
		return runMigrations(log, cfg.Postgres, args[0], args[1:])
	},
}

func migrationsFS() (fs.FS, error) {
	return fs.Sub(dbembed.MigrationsFS, "migrations")
}
