package db

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/seamline/ingest/errors"
)

func TestIsDatabaseClosed(t *testing.T) {
	assert.False(t, IsDatabaseClosed(nil))
	assert.False(t, IsDatabaseClosed(errors.New("disk I/O error")))

	assert.True(t, IsDatabaseClosed(ErrDatabaseClosed))
	assert.True(t, IsDatabaseClosed(errors.Wrap(ErrDatabaseClosed, "syncing item")))
	assert.True(t, IsDatabaseClosed(errors.New("sql: database is closed")))
}

func TestIsDatabaseClosedOnClosedConnection(t *testing.T) {
	conn, err := Open(":memory:", nil)
	assert.NoError(t, err)
	assert.NoError(t, conn.Close())

	_, err = conn.Exec("SELECT 1")
	assert.True(t, IsDatabaseClosed(err))
}
