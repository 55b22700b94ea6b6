package executor_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shibukawa/sqlcycle/connection"
	"github.com/shibukawa/sqlcycle/executor"
	"github.com/shibukawa/sqlcycle/testhelper"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestExecuteTransactional(t *testing.T) {
	ctx := context.Background()
	h := testhelper.NewFakeHandle(map[string]testhelper.FakeResponse{
		"select 1": {Result: testhelper.Rows([]string{"?column?"}, []any{int32(1)})},
	})

	var notices bytes.Buffer
	exec := executor.New(&notices, zaptest.NewLogger(t))

	outcome, err := exec.Execute(ctx, h, "select 1", executor.Options{})
	require.NoError(t, err)

	assert.True(t, outcome.Success)
	assert.Equal(t, executor.OriginNone, outcome.Origin)
	require.Len(t, outcome.Rows, 1)
	assert.True(t, decimal.NewFromInt(1).Equal(outcome.Rows[0]["?column?"].(decimal.Decimal)))
	assert.Equal(t, []string{"begin", "select 1", "commit"}, h.Executed)
	assert.Equal(t, connection.TxIdle, h.Status)
}

// blindHandle cannot tell its transaction state
type blindHandle struct {
	*testhelper.FakeHandle
}

func (blindHandle) TxStatus(context.Context) connection.TxStatus {
	return connection.TxUnknown
}

func TestExecuteUnknownStatusCommits(t *testing.T) {
	fake := testhelper.NewFakeHandle(nil)
	h := blindHandle{fake}

	outcome, err := executor.New(nil, nil).Execute(context.Background(), h, "insert into t values (1)", executor.Options{})
	require.NoError(t, err)

	assert.True(t, outcome.Success)
	assert.Equal(t, []string{"begin", "insert into t values (1)", "commit"}, fake.Executed)
}

func TestExecuteAutocommit(t *testing.T) {
	h := testhelper.NewFakeHandle(nil)
	exec := executor.New(nil, nil)

	outcome, err := exec.Execute(context.Background(), h, "create table t (id int)", executor.Options{Autocommit: true})
	require.NoError(t, err)

	assert.True(t, outcome.Success)
	assert.Nil(t, outcome.Rows)
	assert.Equal(t, []string{"create table t (id int)"}, h.Executed)
}

func TestExecuteEmptyResultIsNotNone(t *testing.T) {
	h := testhelper.NewFakeHandle(map[string]testhelper.FakeResponse{
		"select * from t": {Result: testhelper.Rows([]string{"id"})},
	})

	outcome, err := executor.New(nil, nil).Execute(context.Background(), h, "select * from t", executor.Options{})
	require.NoError(t, err)

	assert.NotNil(t, outcome.Rows)
	assert.Empty(t, outcome.Rows)
}

func TestExecuteQueryError(t *testing.T) {
	ctx := context.Background()
	h := testhelper.NewFakeHandle(map[string]testhelper.FakeResponse{
		"select 1/0": {Err: testhelper.PgError("division by zero", ""), Notices: []string{"about to divide"}},
	})

	var notices bytes.Buffer
	exec := executor.New(&notices, nil)

	outcome, err := exec.Execute(ctx, h, "select 1/0", executor.Options{})
	require.NoError(t, err)

	assert.False(t, outcome.Success)
	assert.Nil(t, outcome.Rows)
	assert.Equal(t, "ERROR:  division by zero", outcome.ErrorText)
	assert.Equal(t, executor.OriginExecute, outcome.Origin)
	assert.Equal(t, "NOTICE:  about to divide\n", notices.String(), "notices are drained even on failure")
	assert.Equal(t, connection.TxFailed, h.Status, "no commit after a failure")

	require.NoError(t, exec.Rollback(ctx, h))
	assert.Equal(t, connection.TxIdle, h.Status)
}

func TestExecuteCommitError(t *testing.T) {
	h := testhelper.NewFakeHandle(map[string]testhelper.FakeResponse{
		"select deferred()": {Result: testhelper.Rows([]string{"deferred"}, []any{nil})},
	})
	h.CommitErr = &pgconn.PgError{
		Severity: "ERROR",
		Message:  `duplicate key value violates unique constraint "uni_id"`,
		Detail:   "Key (id)=(1) already exists.",
	}

	outcome, err := executor.New(nil, nil).Execute(context.Background(), h, "select deferred()", executor.Options{})
	require.NoError(t, err)

	assert.False(t, outcome.Success)
	assert.Equal(t, executor.OriginCommit, outcome.Origin)
	assert.Equal(t, "ERROR:  duplicate key value violates unique constraint \"uni_id\"\nDETAIL:  Key (id)=(1) already exists.", outcome.ErrorText)
}

func TestExecuteFatal(t *testing.T) {
	boom := errors.New("unexpected EOF")
	h := testhelper.NewFakeHandle(map[string]testhelper.FakeResponse{
		"select 1": {Err: boom},
	})

	outcome, err := executor.New(nil, nil).Execute(context.Background(), h, "select 1", executor.Options{})
	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.ErrorIs(t, err, boom)

	fe, ok := executor.AsFatal(err)
	require.True(t, ok)
	assert.Equal(t, "execute", fe.Op)
	assert.True(t, strings.HasPrefix(fe.Diagnostic(), "FATAL: execute failed\ntarget: postgres:fake\nerror: unexpected EOF"))
}

func TestExecuteOnClosedHandleIsFatal(t *testing.T) {
	h := testhelper.NewFakeHandle(nil)
	h.Closed = true

	_, err := executor.New(nil, nil).Execute(context.Background(), h, "select 1", executor.Options{Autocommit: true})

	_, ok := executor.AsFatal(err)
	assert.True(t, ok)
	assert.ErrorIs(t, err, connection.ErrHandleClosed)
}
