package database

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/dialect"
)

func TestOpen_SQLiteMemory(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetLevel(logrus.DebugLevel)

	db, err := Open(ctx, "sqlite", ":memory:", log)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, dialect.SQLite, db.Dialect().Name())
	assert.Equal(t, 1, db.DB.Stats().MaxOpenConnections)

	var one int
	require.NoError(t, db.NewRaw("SELECT 1").Scan(ctx, &one))
	assert.Equal(t, 1, one)
	assert.Contains(t, buf.String(), "SELECT 1")
}

func TestOpen_UnsupportedType(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "whatever", nil)
	assert.ErrorContains(t, err, "unsupported database type")
}

func TestDialectFor(t *testing.T) {
	assert.Equal(t, dialect.PG, dialectFor("postgres").Name())
	assert.Equal(t, dialect.MySQL, dialectFor("mysql").Name())
	assert.Equal(t, dialect.SQLite, dialectFor("sqlite").Name())
}

func TestIsMemoryDSN(t *testing.T) {
	assert.True(t, isMemoryDSN(":memory:"))
	assert.True(t, isMemoryDSN("file:test?mode=memory&cache=shared"))
	assert.True(t, isMemoryDSN("file::memory:?cache=shared"))
	assert.False(t, isMemoryDSN("file:passhport.db"))
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, ":memory:", sqliteDSN(":memory:"))
	assert.Equal(t, "file:p.db?_pragma=busy_timeout(5000)", sqliteDSN("file:p.db"))
	assert.Equal(t, "file:p.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", sqliteDSN("file:p.db?_pragma=foreign_keys(1)"))
	assert.Equal(t, "file:p.db?_pragma=busy_timeout(100)", sqliteDSN("file:p.db?_pragma=busy_timeout(100)"))
}

func TestOpen_SQLiteFileSingleConnection(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, "sqlite", filepath.Join(t.TempDir(), "passhport.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, 1, db.DB.Stats().MaxOpenConnections)

	var timeout int
	require.NoError(t, db.NewRaw("PRAGMA busy_timeout").Scan(ctx, &timeout))
	assert.Equal(t, 5000, timeout)
}
