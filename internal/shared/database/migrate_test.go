package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingMigrationsSkipsApplied(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_indexes.sql":     {Data: []byte("CREATE INDEX b;")},
		"migrations/001_cohort_runs.sql": {Data: []byte("CREATE TABLE a;")},
		"migrations/003_views.sql":       {Data: []byte("CREATE VIEW c;")},
		"migrations/README.md":           {Data: []byte("notes")},
	}

	pending, err := pendingMigrations(fsys, []string{"002_indexes"})
	require.NoError(t, err)

	require.Len(t, pending, 2)
	assert.Equal(t, "001_cohort_runs", pending[0].version)
	assert.Equal(t, "CREATE TABLE a;", pending[0].sql)
	assert.Equal(t, "003_views", pending[1].version)
}

func TestPendingMigrationsEmbedded(t *testing.T) {
	pending, err := pendingMigrations(migrationsFS, nil)
	require.NoError(t, err)
	require.NotEmpty(t, pending)
	assert.Equal(t, "001_cohort_runs", pending[0].version)
	assert.Contains(t, pending[0].sql, "num_movements")

	none, err := pendingMigrations(migrationsFS, []string{"001_cohort_runs"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPendingMigrationsMissingDirectory(t *testing.T) {
	_, err := pendingMigrations(fstest.MapFS{}, nil)
	assert.Error(t, err)
}
