package main

// Manage the results cache schema:
//   go run ./cmd/migrate            apply pending migrations
//   go run ./cmd/migrate -status    print the applied version
//   go run ./cmd/migrate -down      roll back the latest migration

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"proposal-prepper/internal/shared/config"
	"proposal-prepper/internal/shared/storage/db"
)

func main() {
	status := flag.Bool("status", false, "print the applied schema version and exit")
	down := flag.Bool("down", false, "roll back the most recent migration")
	flag.Parse()

	if err := run(context.Background(), *status, *down); err != nil {
		log.Printf("migrate: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, status, down bool) error {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultMigrateOptions()))
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer sqlDB.Close()

	switch {
	case status:
	case down:
		if err := db.RollbackMigration(ctx, sqlDB); err != nil {
			return err
		}
	default:
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			return err
		}
	}
	version, err := db.SchemaVersion(ctx, sqlDB)
	if err != nil {
		return err
	}
	fmt.Printf("analysis_reports schema at version %d\n", version)
	return nil
}
