package testhelper

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shibukawa/sqlcycle"
	"github.com/shibukawa/sqlcycle/connection"
)

// FakeResponse is the scripted reaction of a FakeHandle to one text
type FakeResponse struct {
	Result  *connection.ResultSet
	Err     error
	Notices []string
}

// FakeHandle is a scripted connection.Handle that follows the PostgreSQL
// transaction state machine: a query error inside a transaction block aborts
// it until rollback or commit.
type FakeHandle struct {
	TargetValue sqlcycle.Target
	Responses   map[string]FakeResponse
	Status      connection.TxStatus
	Pid         uint32

	// CommitErr is returned once by the next commit of an open transaction.
	CommitErr error

	Executed []string
	Closed   bool
	notices  []connection.Notice
}

var _ connection.Handle = (*FakeHandle)(nil)

// NewFakeHandle returns an idle handle with the given responses
func NewFakeHandle(responses map[string]FakeResponse) *FakeHandle {
	if responses == nil {
		responses = map[string]FakeResponse{}
	}

	return &FakeHandle{
		TargetValue: sqlcycle.Target{Driver: sqlcycle.DriverPostgres, DSN: "fake"},
		Responses:   responses,
		Status:      connection.TxIdle,
		Pid:         4242,
	}
}

// Rows builds a single-row-per-entry result set
func Rows(columns []string, rows ...[]any) *connection.ResultSet {
	if rows == nil {
		rows = [][]any{}
	}

	return &connection.ResultSet{Columns: columns, Rows: rows}
}

// PgError builds an ERROR-level server error
func PgError(message, detail string) *pgconn.PgError {
	return &pgconn.PgError{Severity: "ERROR", Code: "XX000", Message: message, Detail: detail}
}

func (f *FakeHandle) Target() sqlcycle.Target {
	return f.TargetValue
}

func (f *FakeHandle) Exec(_ context.Context, text string) (*connection.ResultSet, error) {
	if f.Closed {
		return nil, connection.ErrHandleClosed
	}

	f.Executed = append(f.Executed, text)

	switch strings.ToLower(strings.TrimSpace(text)) {
	case "begin":
		f.Status = connection.TxActive
		return nil, nil
	case "rollback":
		f.Status = connection.TxIdle
		return nil, nil
	case "commit":
		if f.Status == connection.TxActive && f.CommitErr != nil {
			err := f.CommitErr
			f.CommitErr = nil
			f.Status = connection.TxIdle

			return nil, err
		}

		f.Status = connection.TxIdle

		return nil, nil
	}

	if f.Status == connection.TxFailed {
		return nil, PgError("current transaction is aborted, commands ignored until end of transaction block", "")
	}

	resp := f.Responses[text]
	for _, n := range resp.Notices {
		f.notices = append(f.notices, connection.Notice{Severity: "NOTICE", Message: n})
	}

	if resp.Err != nil {
		if _, ok := resp.Err.(*pgconn.PgError); ok && f.Status == connection.TxActive {
			f.Status = connection.TxFailed
		}

		return nil, resp.Err
	}

	return resp.Result, nil
}

func (f *FakeHandle) TxStatus(_ context.Context) connection.TxStatus {
	return f.Status
}

func (f *FakeHandle) DrainNotices() []connection.Notice {
	notices := f.notices
	f.notices = nil

	return notices
}

func (f *FakeHandle) PID() uint32 {
	return f.Pid
}

func (f *FakeHandle) Close(_ context.Context) error {
	f.Closed = true
	return nil
}

// FakeOpener hands out FakeHandles and remembers each of them
type FakeOpener struct {
	Responses map[string]FakeResponse
	Err       error
	// Configure, when set, adjusts every handle before it is handed out.
	Configure func(h *FakeHandle)
	Opened    []*FakeHandle
}

// Open implements connection.Opener
func (o *FakeOpener) Open(_ context.Context, target sqlcycle.Target) (connection.Handle, error) {
	if o.Err != nil {
		return nil, o.Err
	}

	h := NewFakeHandle(o.Responses)
	h.TargetValue = target
	h.Pid = uint32(4242 + len(o.Opened))

	if o.Configure != nil {
		o.Configure(h)
	}

	o.Opened = append(o.Opened, h)

	return h, nil
}
