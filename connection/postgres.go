package connection

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shibukawa/sqlcycle"
)

// PostgresHandle is a Handle on a single pgx connection.
//
// Statements are sent through the simple query protocol so that a text may
// carry several statements, including transaction control.
type PostgresHandle struct {
	target  sqlcycle.Target
	conn    *pgx.Conn
	notices []Notice
	closed  bool
}

var _ Handle = (*PostgresHandle)(nil)

// OpenPostgres connects to a PostgreSQL target
func OpenPostgres(ctx context.Context, target sqlcycle.Target) (*PostgresHandle, error) {
	cfg, err := pgx.ParseConfig(target.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, target, err)
	}

	h := &PostgresHandle{target: target}
	cfg.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		h.notices = append(h.notices, Notice{
			Severity: n.Severity,
			Message:  n.Message,
			Detail:   n.Detail,
			Hint:     n.Hint,
		})
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, target, err)
	}

	h.conn = conn

	return h, nil
}

func (h *PostgresHandle) Target() sqlcycle.Target {
	return h.target
}

// Exec runs text and decodes the result set of its last statement.
// A server error is returned as *pgconn.PgError.
func (h *PostgresHandle) Exec(ctx context.Context, text string) (*ResultSet, error) {
	if h.closed {
		return nil, ErrHandleClosed
	}

	results, err := h.conn.PgConn().Exec(ctx, text).ReadAll()
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return nil, nil
	}

	last := results[len(results)-1]
	if len(last.FieldDescriptions) == 0 {
		return nil, nil
	}

	return decodeResult(h.conn.TypeMap(), last), nil
}

func (h *PostgresHandle) TxStatus(_ context.Context) TxStatus {
	if h.closed {
		return TxUnknown
	}

	return TxStatus(h.conn.PgConn().TxStatus())
}

func (h *PostgresHandle) DrainNotices() []Notice {
	notices := h.notices
	h.notices = nil

	return notices
}

func (h *PostgresHandle) PID() uint32 {
	return h.conn.PgConn().PID()
}

func (h *PostgresHandle) Close(ctx context.Context) error {
	if h.closed {
		return nil
	}

	h.closed = true

	return h.conn.Close(ctx)
}

func decodeResult(m *pgtype.Map, result *pgconn.Result) *ResultSet {
	rs := &ResultSet{
		Columns: make([]string, len(result.FieldDescriptions)),
		Rows:    make([][]any, 0, len(result.Rows)),
	}

	for i, fd := range result.FieldDescriptions {
		rs.Columns[i] = fd.Name
	}

	for _, raw := range result.Rows {
		row := make([]any, len(raw))
		for i, src := range raw {
			row[i] = decodeValue(m, result.FieldDescriptions[i], src)
		}

		rs.Rows = append(rs.Rows, row)
	}

	return rs
}

// decodeValue decodes one column value. Types without a registered codec
// (enums, composites, domains over unknown types) stay in their text form.
func decodeValue(m *pgtype.Map, fd pgconn.FieldDescription, src []byte) any {
	if src == nil {
		return nil
	}

	if t, ok := m.TypeForOID(fd.DataTypeOID); ok {
		v, err := t.Codec.DecodeValue(m, fd.DataTypeOID, fd.Format, src)
		if err == nil {
			return v
		}
	}

	if fd.Format == pgtype.BinaryFormatCode {
		return append([]byte(nil), src...)
	}

	return string(src)
}
