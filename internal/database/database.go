// Package database handles database connections and migrations.
package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/tursodatabase/go-libsql"

	"github.com/jmylchreest/consult-billing/internal/database/migrations"
)

// busyTimeoutMillis is how long a connection waits on a locked database
// before reporting SQLITE_BUSY.
const busyTimeoutMillis = 2000

// New creates a new database connection using libsql.
// Supports:
//   - Local files: DATABASE_URL="file:path/to/consult.db"
//   - Embedded replica: set TURSO_URL + TURSO_AUTH_TOKEN for sync with Turso cloud
//   - Local libsql server: run `turso dev` and use DATABASE_URL="http://127.0.0.1:8080"
//
// Every pooled connection to a local database gets the busy timeout, so a
// writer waits for the lock instead of failing at once.
func New(dsn string) (*sql.DB, error) {
	tursoURL := os.Getenv("TURSO_URL")
	tursoToken := os.Getenv("TURSO_AUTH_TOKEN")

	var connector driver.Connector

	if tursoURL != "" && tursoToken != "" {
		dbPath := strings.TrimPrefix(dsn, "file:")
		dbPath = strings.Split(dbPath, "?")[0]

		c, err := libsql.NewEmbeddedReplicaConnector(dbPath, tursoURL,
			libsql.WithAuthToken(tursoToken),
			libsql.WithReadYourWrites(true),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Turso connector: %w", err)
		}
		connector = c
	} else {
		c, err := dsnConnector(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		connector = c
	}

	if !isRemote(dsn) {
		connector = &pragmaConnector{
			Connector: connector,
			pragmas:   []string{fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMillis)},
		}
	}
	db := sql.OpenDB(connector)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// isRemote reports whether dsn points at a libsql server rather than a
// local file.
func isRemote(dsn string) bool {
	for _, scheme := range []string{"http://", "https://", "libsql://", "ws://", "wss://"} {
		if strings.HasPrefix(dsn, scheme) {
			return true
		}
	}
	return false
}

// dsnConnector resolves the registered libsql driver into a connector.
func dsnConnector(dsn string) (driver.Connector, error) {
	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, err
	}
	drv := db.Driver()
	_ = db.Close()

	if dc, ok := drv.(driver.DriverContext); ok {
		return dc.OpenConnector(dsn)
	}
	return openConnector{driver: drv, dsn: dsn}, nil
}

type openConnector struct {
	driver driver.Driver
	dsn    string
}

func (c openConnector) Connect(context.Context) (driver.Conn, error) { return c.driver.Open(c.dsn) }
func (c openConnector) Driver() driver.Driver { return c.driver }

// pragmaConnector runs its pragmas on every new connection. SQLite pragmas
// such as busy_timeout are per connection, not per database.
type pragmaConnector struct {
	driver.Connector
	pragmas []string
}

func (c *pragmaConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.Connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range c.pragmas {
		if err := runPragma(ctx, conn, p); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return conn, nil
}

// runPragma queries rather than executes; libsql rejects Exec for
// statements that return a row.
func runPragma(ctx context.Context, conn driver.Conn, pragma string) error {
	q, ok := conn.(driver.QueryerContext)
	if !ok {
		return errors.New("connection does not support queries")
	}
	rows, err := q.QueryContext(ctx, pragma, nil)
	if err != nil {
		return err
	}
	defer rows.Close()

	dest := make([]driver.Value, len(rows.Columns()))
	if err := rows.Next(dest); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// MigrateWithLogger runs database migrations with a custom logger.
func MigrateWithLogger(db *sql.DB, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return migrations.RunContext(ctx, db, logger)
}

// GetAppliedMigrations returns information about applied migrations.
func GetAppliedMigrations(db *sql.DB) ([]migrations.AppliedMigration, error) {
	return migrations.GetAppliedMigrations(db)
}
