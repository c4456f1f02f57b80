package database

import (
	"errors"
	"fmt"
	"os"

	"github.com/RubachokBoss/plagiarism-ledger/internal/config"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

type Migrator struct {
	migrate *migrate.Migrate
}

// NewMigrator connects to postgres and prepares the file based migration
// source. SQLite databases apply their schema on open instead.
func NewMigrator(cfg config.DatabaseConfig) (*Migrator, error) {
	if cfg.Driver != "postgres" {
		return nil, fmt.Errorf("migrations are only supported for postgres, got %q", cfg.Driver)
	}

	db, err := NewPostgres(cfg)
	if err != nil {
		return nil, err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	migrationPath := cfg.MigrationsPath
	if migrationPath == "" {
		migrationPath = "file://migrations"
		if _, err := os.Stat("migrations"); os.IsNotExist(err) {
			migrationPath = "file://./migrations"
		}
	}

	m, err := migrate.NewWithDatabaseInstance(migrationPath, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return &Migrator{migrate: m}, nil
}

func (m *Migrator) Up() error {
	defer func() { _, _ = m.migrate.Close() }()
	if err := m.migrate.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func (m *Migrator) Down() error {
	defer func() { _, _ = m.migrate.Close() }()
	if err := m.migrate.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to rollback migrations: %w", err)
	}
	return nil
}

func (m *Migrator) Force(version int) error {
	defer func() { _, _ = m.migrate.Close() }()
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("failed to force migration version to %d: %w", version, err)
	}
	return nil
}

// Version reports the applied version and whether the last migration failed
// halfway. An empty schema is version 0.
func (m *Migrator) Version() (uint, bool, error) {
	defer func() { _, _ = m.migrate.Close() }()
	version, dirty, err := m.migrate.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, fmt.Errorf("failed to read migration version: %w", err)
	}
	return version, dirty, nil
}
