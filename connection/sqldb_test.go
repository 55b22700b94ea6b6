package connection_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/shibukawa/sqlcycle"
	"github.com/shibukawa/sqlcycle/connection"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *connection.SQLHandle {
	t.Helper()

	target := sqlcycle.Target{Driver: sqlcycle.DriverSQLite, DSN: filepath.Join(t.TempDir(), "test.db")}
	h, err := connection.OpenSQL(context.Background(), target)
	require.NoError(t, err)

	t.Cleanup(func() { h.Close(context.Background()) })

	return h
}

func TestSQLHandleLastResultSet(t *testing.T) {
	ctx := context.Background()
	h := openSQLite(t)

	rs, err := h.Exec(ctx, "create table t (id integer, name text)")
	require.NoError(t, err)
	assert.Nil(t, rs)

	rs, err = h.Exec(ctx, "insert into t values (1, 'a'); insert into t values (2, null); select id, name from t order by id")
	require.NoError(t, err)
	require.NotNil(t, rs)
	assert.Equal(t, []string{"id", "name"}, rs.Columns)
	assert.Equal(t, [][]any{{int64(1), "a"}, {int64(2), nil}}, rs.Rows)

	rs, err = h.Exec(ctx, "select id from t where id > 10")
	require.NoError(t, err)
	require.NotNil(t, rs)
	assert.Empty(t, rs.Rows)
	assert.Equal(t, []map[string]any{}, rs.Maps())

	// the last statement has no result set
	rs, err = h.Exec(ctx, "select 1; delete from t where id = 2")
	require.NoError(t, err)
	assert.Nil(t, rs)
}

func TestSQLHandleTxStatus(t *testing.T) {
	ctx := context.Background()
	h := openSQLite(t)

	assert.Equal(t, connection.TxIdle, h.TxStatus(ctx))

	_, err := h.Exec(ctx, "begin")
	require.NoError(t, err)
	assert.Equal(t, connection.TxActive, h.TxStatus(ctx))

	_, err = h.Exec(ctx, "rollback")
	require.NoError(t, err)
	assert.Equal(t, connection.TxIdle, h.TxStatus(ctx))
}

func TestSQLHandleQueryError(t *testing.T) {
	h := openSQLite(t)

	_, err := h.Exec(context.Background(), "select * from missing_table")
	require.Error(t, err)

	var sqliteErr sqlite3.Error
	assert.True(t, errors.As(err, &sqliteErr))
}

func TestSQLHandleClosed(t *testing.T) {
	ctx := context.Background()
	h := openSQLite(t)
	require.NoError(t, h.Close(ctx))

	_, err := h.Exec(ctx, "select 1")
	assert.ErrorIs(t, err, connection.ErrHandleClosed)
	assert.Equal(t, connection.TxUnknown, h.TxStatus(ctx))
	assert.Equal(t, uint32(0), h.PID())
	assert.Nil(t, h.DrainNotices())
}

func TestConvertMySQLTextValues(t *testing.T) {
	assert.True(t, decimal.NewFromInt(42).Equal(connection.ConvertSQLValue("BIGINT", []byte("42")).(decimal.Decimal)))
	assert.True(t, decimal.RequireFromString("1.50").Equal(connection.ConvertSQLValue("DECIMAL", []byte("1.50")).(decimal.Decimal)))
	assert.Equal(t, map[string]any{"a": float64(1)}, connection.ConvertSQLValue("JSON", []byte(`{"a":1}`)))
	assert.Equal(t, `{"a":1}`, connection.ConvertSQLValue("VARCHAR", []byte(`{"a":1}`)))
	assert.Equal(t, "", connection.ConvertSQLValue("TEXT", []byte{}))
	assert.Equal(t, int64(7), connection.ConvertSQLValue("INTEGER", int64(7)))
}

func TestTrackTransaction(t *testing.T) {
	tests := []struct {
		name     string
		inTx     bool
		text     string
		expected bool
	}{
		{name: "begin", text: "BEGIN", expected: true},
		{name: "start transaction", text: "start transaction read write", expected: true},
		{name: "plain statement keeps idle", text: "insert into t values (1)", expected: false},
		{name: "plain statement keeps active", inTx: true, text: "insert into t values (1)", expected: true},
		{name: "commit", inTx: true, text: "commit", expected: false},
		{name: "rollback", inTx: true, text: "rollback", expected: false},
		{name: "rollback to savepoint", inTx: true, text: "rollback to savepoint s1", expected: true},
		{name: "begin and commit in one text", text: "begin; insert into t values (1); commit", expected: false},
		{name: "keyword in literal", text: "insert into t values ('begin; x')", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, connection.TrackTransaction(tt.inTx, tt.text))
		})
	}
}
