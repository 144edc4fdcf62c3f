package sqlitemigrate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestApplyRunsEachFileOnce(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	fsys := fstest.MapFS{
		"001_a.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE a (id INTEGER);\n-- +migrate Down\nDROP TABLE a;\n")},
		"002_b.sql": {Data: []byte("CREATE TABLE b (id INTEGER);")},
		"README.md": {Data: []byte("ignored")},
	}

	applied, err := Apply(ctx, db, fsys, ".")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a.sql", "002_b.sql"}, applied)

	applied, err = Apply(ctx, db, fsys, "")
	require.NoError(t, err)
	assert.Empty(t, applied)

	_, err = db.ExecContext(ctx, "INSERT INTO a (id) VALUES (1)")
	require.NoError(t, err)
}

func TestApplyFailsOnBrokenSQL(t *testing.T) {
	db := openDB(t)
	fsys := fstest.MapFS{"001_bad.sql": {Data: []byte("CREATE TABL nope")}}

	_, err := Apply(context.Background(), db, fsys, ".")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_bad.sql")
}

func TestUpSection(t *testing.T) {
	assert.Equal(t, "\nUP\n", UpSection("-- +migrate Up\nUP\n-- +migrate Down\nDOWN"))
	assert.Equal(t, "PLAIN", UpSection("PLAIN"))
}
