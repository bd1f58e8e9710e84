package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/clubdesk/internal/store"
)

func TestMapErr(t *testing.T) {
	assert.NoError(t, mapErr(nil))
	assert.ErrorIs(t, mapErr(sql.ErrNoRows), store.ErrNotFound)
	assert.ErrorIs(t, mapErr(fmt.Errorf("scan lane: %w", sql.ErrNoRows)), store.ErrNotFound)

	deadlock := &mysql.MySQLError{Number: errDeadlock, Message: "Deadlock found when trying to get lock"}
	assert.ErrorIs(t, mapErr(deadlock), store.ErrSerialization)

	timeout := &mysql.MySQLError{Number: errLockWaitTimeout, Message: "Lock wait timeout exceeded"}
	assert.ErrorIs(t, mapErr(timeout), store.ErrSerialization)

	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	err := mapErr(dup)
	assert.False(t, errors.Is(err, store.ErrSerialization))
	assert.Equal(t, dup, err)
}

func TestTableFor(t *testing.T) {
	tbl, err := tableFor("ROOM")
	assert.NoError(t, err)
	assert.Equal(t, "rooms", tbl)

	tbl, err = tableFor("LOCKER")
	assert.NoError(t, err)
	assert.Equal(t, "lockers", tbl)

	_, err = tableFor("CABANA")
	assert.Error(t, err)
}
