package db

import (
	"fmt"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFilesOrderAndFilter(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_rewards.up.sql":  {Data: []byte("SELECT 2;")},
		"0001_init.up.sql":     {Data: []byte("SELECT 1;")},
		"0001_init.down.sql":   {Data: []byte("SELECT 0;")},
		"README.md":            {Data: []byte("notes")},
		"nested/0003_x.up.sql": {Data: []byte("SELECT 3;")},
	}
	files, err := MigrationFiles(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_init.up.sql", "0002_rewards.up.sql"}, files)
}

func TestErrorClassification(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsCheckViolation(assert.AnError))
}

func TestPgErrorCodes(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsCheckViolation(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23514"})))
	assert.True(t, IsNotFound(fmt.Errorf("load: %w", pgx.ErrNoRows)))
}
