package query

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/labelflow/internal/faults"
)

func openTestDB(t *testing.T) *SQLite {
	t.Helper()

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "lookup.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	for _, stmt := range []string{
		`CREATE TABLE wines (name TEXT, vintage INTEGER, price TEXT, volume TEXT)`,
		`INSERT INTO wines VALUES ('Rose', 2019, '9.99', '0.75')`,
		`INSERT INTO wines VALUES ('Riesling', 2019, '12.50', NULL)`,
	} {
		_, err := db.db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	return db
}

func TestQueryList(t *testing.T) {
	db := openTestDB(t)

	rows, err := db.QueryList(context.Background(),
		`SELECT name, price, volume FROM wines WHERE vintage = 2019 ORDER BY name`)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Riesling", rows[0]["name"])
	assert.Equal(t, "", rows[0]["volume"], "NULL scans to empty string")
	assert.Equal(t, "Rose", rows[1]["name"])
	assert.Equal(t, "0.75", rows[1]["volume"])
}

func TestQueryListEmpty(t *testing.T) {
	db := openTestDB(t)

	rows, err := db.QueryList(context.Background(),
		`SELECT name FROM wines WHERE vintage = 1900`)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestQueryListBadSQL(t *testing.T) {
	db := openTestDB(t)

	_, err := db.QueryList(context.Background(), `SELECT nope FROM nothing`)
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.ErrDataQuery)
}

func TestQueryRow(t *testing.T) {
	db := openTestDB(t)

	row, err := db.QueryRow(context.Background(),
		`SELECT name, price FROM wines WHERE name = 'Rose'`)
	require.NoError(t, err)
	assert.Equal(t, "9.99", row["price"])

	row, err = db.QueryRow(context.Background(),
		`SELECT name FROM wines WHERE name = 'Nothing'`)
	require.NoError(t, err)
	assert.Nil(t, row)
}
