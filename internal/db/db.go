// Package db opens the products database and keeps its schema current.
package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "pgx"
)

//go:embed migrations
var migrations embed.FS

// DriverFor picks PostgreSQL for postgres:// URLs and SQLite for anything
// else, which is then treated as a file path or SQLite DSN.
func DriverFor(url string) Driver {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

func Open(ctx context.Context, url string, connectTimeout time.Duration) (*sql.DB, Driver, error) {
	driver := DriverFor(url)

	db, err := sql.Open(string(driver), url)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serialises writers on the file lock; one connection also keeps
	// a ":memory:" database alive for the lifetime of the pool.
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, driver, nil
}

// Migrate applies the embedded migrations for driver. The caller keeps
// ownership of db.
func Migrate(db *sql.DB, driver Driver) error {
	var (
		dir      string
		instance database.Driver
		err      error
	)

	switch driver {
	case DriverSQLite:
		dir = "migrations/sqlite"
		instance, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	case DriverPostgres:
		dir = "migrations/postgres"
		instance, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		return fmt.Errorf("unsupported driver %q", driver)
	}
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}
	// The postgres driver pins one pooled connection; closing it releases
	// that connection only. The sqlite driver would close db itself.
	if driver == DriverPostgres {
		defer func() { _ = instance.Close() }()
	}

	src, err := iofs.New(migrations, dir)
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(driver), instance)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}
