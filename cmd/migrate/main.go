package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"tiendapos/backend/internal/config"
	pgstore "tiendapos/backend/internal/store/postgres"
)

// Usage:
//
//	migrate            apply pending migrations
//	migrate -down 1    roll back one migration (0 rolls back everything)
//	migrate -version   print the applied version
func main() {
	down := flag.Int("down", -1, "roll back N migrations; 0 rolls back all")
	version := flag.Bool("version", false, "print the current schema version")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(2)
	}

	switch {
	case *version:
		v, dirty, err := pgstore.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to read migration version", zap.Error(err))
		}
		fmt.Printf("version=%d dirty=%t\n", v, dirty)
	case *down >= 0:
		if err := pgstore.MigrateDown(cfg.DatabaseURL, *down); err != nil {
			logger.Fatal("migration rollback failed", zap.Error(err))
		}
		logger.Info("migrations rolled back", zap.Int("steps", *down))
	default:
		if err := pgstore.MigrateUp(cfg.DatabaseURL); err != nil {
			logger.Fatal("migration failed", zap.Error(err))
		}
		logger.Info("migrations applied")
	}
}
