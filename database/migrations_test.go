package database

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsAreEmbedded(t *testing.T) {
	t.Parallel()

	ups, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationsFS, "migrations/*.down.sql")
	require.NoError(t, err)

	assert.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups), "every up migration needs a matching down migration")
}

func TestMigrationsSourceLoads(t *testing.T) {
	t.Parallel()

	d, err := migrationsFromSource()
	require.NoError(t, err)

	first, err := d.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)
}
