//go:build integration

// Package testdb provides a migrated Postgres database for integration tests.
//
// When DATABASE_URL is set the tests use that database. Otherwise a
// disposable container is started. Either way the embedded migrations are
// applied before the first use. Tests are skipped when neither database is
// available.
package testdb

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/onnwee/matchfeed/internal/db"
)

const image = "postgres:16-alpine"

// URL returns the connection string of a migrated database.
func URL(t *testing.T) string {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = startContainer(t)
	}

	m, err := db.NewMigrator(dsn)
	if err != nil {
		t.Fatalf("failed to create migrator: %v", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return dsn
}

// Open returns a handle to a migrated database and closes it on cleanup.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := db.Open(ctx, URL(t), db.DefaultPoolConfig())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// Truncate empties the given tables.
func Truncate(t *testing.T, conn *sql.DB, tables ...string) {
	t.Helper()
	for _, table := range tables {
		if _, err := conn.Exec("TRUNCATE TABLE " + table + " CASCADE"); err != nil {
			t.Fatalf("failed to truncate %s: %v", table, err)
		}
	}
}

func startContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, image,
		postgres.WithDatabase("matchfeed"),
		postgres.WithUsername("matchfeed"),
		postgres.WithPassword("matchfeed"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("DATABASE_URL not set and postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	return dsn
}
