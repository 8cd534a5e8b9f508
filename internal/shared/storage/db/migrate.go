package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"

	"proposal-prepper/internal/shared/telemetry"
)

// migrationsDir holds the analysis_reports schema that backs the Postgres
// results cache.
const migrationsDir = "migrations"

//go:embed migrations/*.sql
var migrationFiles embed.FS

// goose keeps its FS, dialect and logger in package globals.
var gooseMu sync.Mutex

// RunMigrations brings the results cache schema up to date. A nil database
// means the service runs with the in-memory cache and there is nothing to do.
func RunMigrations(ctx context.Context, database *sql.DB) error {
	if database == nil {
		return nil
	}
	return withGoose(func() error {
		before, _ := goose.GetDBVersionContext(ctx, database)
		if err := goose.UpContext(ctx, database, migrationsDir); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		after, err := goose.GetDBVersionContext(ctx, database)
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		telemetry.Info("db.migrated", map[string]any{
			"from_version": before,
			"to_version":   after,
		})
		return nil
	})
}

// RollbackMigration undoes the most recent results cache migration.
func RollbackMigration(ctx context.Context, database *sql.DB) error {
	if database == nil {
		return nil
	}
	return withGoose(func() error {
		if err := goose.DownContext(ctx, database, migrationsDir); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		return nil
	})
}

// SchemaVersion reports the applied migration version, 0 on a fresh database.
func SchemaVersion(ctx context.Context, database *sql.DB) (int64, error) {
	if database == nil {
		return 0, nil
	}
	var version int64
	err := withGoose(func() error {
		v, err := goose.GetDBVersionContext(ctx, database)
		version = v
		return err
	})
	return version, err
}

func withGoose(fn func() error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()
	goose.SetBaseFS(migrationFiles)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return fn()
}

// gooseLogger routes goose output through telemetry instead of the
// standard logger.
type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...any) {
	telemetry.Debug("db.goose", map[string]any{"message": fmt.Sprintf(format, v...)})
}

func (gooseLogger) Fatalf(format string, v ...any) {
	telemetry.Error("db.goose", map[string]any{"message": fmt.Sprintf(format, v...)})
}
