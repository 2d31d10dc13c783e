package repository

import (
	"io"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestEmbeddedMigrations(t *testing.T) {
	src, err := iofs.New(migrationsFS, "migrations")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	up, identifier, err := src.ReadUp(first)
	require.NoError(t, err)
	defer up.Close()
	assert.Equal(t, "create_posts", identifier)

	ddl, err := io.ReadAll(up)
	require.NoError(t, err)
	for _, column := range postColumns {
		assert.True(t, strings.Contains(string(ddl), column), "migration is missing column %s", column)
	}

	down, _, err := src.ReadDown(first)
	require.NoError(t, err)
	down.Close()
}

func TestMigrateDown_RejectsNonPositiveSteps(t *testing.T) {
	err := MigrateDown("postgres://localhost/unused", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps must be positive")
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]logger.LogLevel{
		"info":   logger.Info,
		"WARN":   logger.Warn,
		"error":  logger.Error,
		"silent": logger.Silent,
		"":       logger.Silent,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}
