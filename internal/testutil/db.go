package testutil

import (
	"database/sql"
	"os"
	"testing"

	"github.com/xxxsen/booktutor/internal/config"
	"github.com/xxxsen/booktutor/internal/db"
)

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// OpenTestDB connects to the postgres named by TEST_DB_HOST and applies
// migrations. The test is skipped when TEST_DB_HOST is unset.
func OpenTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping postgres test")
	}
	conn, err := db.Open(config.DatabaseConfig{
		Host:     host,
		Port:     5432,
		User:     env("TEST_DB_USER", "booktutor"),
		Password: env("TEST_DB_PASSWORD", "booktutor_pass"),
		DBName:   env("TEST_DB_NAME", "booktutor_test"),
		SSLMode:  "disable",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return conn, func() {
		_ = conn.Close()
	}
}
