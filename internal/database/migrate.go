package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrator applies the embedded schema for one dialect. It owns a dedicated
// connection so closing it never touches the application pool.
type Migrator struct {
	migrate *migrate.Migrate
}

// NewMigrator creates a migrator for db's dialect.
func (db *DB) NewMigrator(ctx context.Context) (*Migrator, error) {
	migrationsDir, err := fs.Sub(migrationsFS, "migrations/"+db.Dialect.MigrationsSubdir())
	if err != nil {
		return nil, fmt.Errorf("failed to access migrations directory: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsDir, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	conn, err := sql.Open(db.Dialect.DriverName(), db.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open migration connection: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping migration connection: %w", err)
	}

	driver, err := db.Dialect.MigrationDriver(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, db.Dialect.MigrationsSubdir(), driver)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}

	return &Migrator{migrate: m}, nil
}

// Up applies all pending migrations.
func (mm *Migrator) Up() error {
	err := mm.migrate.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Down rolls back every migration.
func (mm *Migrator) Down() error {
	err := mm.migrate.Down()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to rollback migrations: %w", err)
	}
	return nil
}

// Version returns the current migration version and dirty state.
func (mm *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = mm.migrate.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// Close releases the migration connection.
func (mm *Migrator) Close() error {
	srcErr, dbErr := mm.migrate.Close()
	if srcErr != nil {
		return fmt.Errorf("failed to close source: %w", srcErr)
	}
	if dbErr != nil {
		return fmt.Errorf("failed to close database: %w", dbErr)
	}
	return nil
}

// Migrate applies all pending migrations and seeds reference data.
func (db *DB) Migrate(ctx context.Context) error {
	m, err := db.NewMigrator(ctx)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		return err
	}
	return db.SeedBlockedTerms(ctx, DefaultBlockedTerms())
}
