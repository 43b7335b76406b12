package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/compozy/blockgate/pkg/logger"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"

	// Register pgx stdlib driver for database/sql usage in migrations.
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	migrationsDriverName   = "pgx"
	migrationsEmbeddedPath = "migrations"
)

// Lock polling: 5s period, 9 attempts.
const (
	migrationLockID       int64  = 0x626c6b67617465 // "blkgate"
	migrationLockPeriod   uint64 = 5
	migrationLockAttempts uint64 = 9
)

func newMigrationProvider(db *sql.DB, locked bool) (*goose.Provider, error) {
	sub, err := fs.Sub(migrationsFS, migrationsEmbeddedPath)
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	var opts []goose.ProviderOption
	if locked {
		locker, err := lock.NewPostgresSessionLocker(
			lock.WithLockID(migrationLockID),
			lock.WithLockTimeout(migrationLockPeriod, migrationLockAttempts),
		)
		if err != nil {
			return nil, fmt.Errorf("create migration locker: %w", err)
		}
		opts = append(opts, goose.WithSessionLocker(locker))
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, sub, opts...)
	if err != nil {
		return nil, fmt.Errorf("create migration provider: %w", err)
	}
	return provider, nil
}

// ApplyMigrationsWithLock applies pending migrations while holding a session
// advisory lock, so replicas starting together migrate once.
func ApplyMigrationsWithLock(ctx context.Context, dsn string) error {
	db, err := sql.Open(migrationsDriverName, dsn)
	if err != nil {
		return fmt.Errorf("open db for migrations: %w", err)
	}
	defer db.Close()
	provider, err := newMigrationProvider(db, true)
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	log := logger.FromContext(ctx)
	for _, r := range results {
		log.Info("Applied migration", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

// MigrationStatus reports the current schema version.
func MigrationStatus(ctx context.Context, dsn string) (int64, error) {
	db, err := sql.Open(migrationsDriverName, dsn)
	if err != nil {
		return 0, fmt.Errorf("open db for migrations: %w", err)
	}
	defer db.Close()
	provider, err := newMigrationProvider(db, false)
	if err != nil {
		return 0, err
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
