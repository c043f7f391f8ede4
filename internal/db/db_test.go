package db

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/booktutor/internal/config"
)

func TestBuildDSN(t *testing.T) {
	require.Equal(t, "postgres://x", BuildDSN(config.DatabaseConfig{DSN: "postgres://x"}))
	require.Equal(t,
		"host=db port=5432 user=u password=p dbname=n sslmode=disable",
		BuildDSN(config.DatabaseConfig{Host: "db", User: "u", Password: "p", DBName: "n"}),
	)
}

func TestEmbeddedMigrationsSplit(t *testing.T) {
	content, err := fs.ReadFile(migrationsFS, "migrations/001_init.sql")
	require.NoError(t, err)
	stmts := splitStatements(string(content))
	require.NotEmpty(t, stmts)
	require.Contains(t, stmts[0], "CREATE EXTENSION")
	for _, stmt := range stmts {
		require.NotEmpty(t, stmt)
	}
}
