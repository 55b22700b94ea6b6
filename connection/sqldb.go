package connection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"github.com/shibukawa/sqlcycle"
	"github.com/shopspring/decimal"
)

// SQLHandle is a Handle on one dedicated database/sql connection.
// It serves the MySQL and SQLite targets.
type SQLHandle struct {
	target sqlcycle.Target
	db     *sql.DB
	conn   *sql.Conn
	pid    uint32
	closed bool

	// inTx is the MySQL transaction state as seen from the statements sent
	inTx bool
}

var _ Handle = (*SQLHandle)(nil)

// OpenSQL connects to a MySQL or SQLite target
func OpenSQL(ctx context.Context, target sqlcycle.Target) (*SQLHandle, error) {
	dsn := target.DSN

	if target.Driver == sqlcycle.DriverMySQL {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrConnect, target, err)
		}

		// a test query may carry several statements
		cfg.MultiStatements = true
		dsn = cfg.FormatDSN()
	}

	db, err := sql.Open(target.Driver.SQLDriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, target, err)
	}

	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, target, err)
	}

	h := &SQLHandle{target: target, db: db, conn: conn}

	if target.Driver == sqlcycle.DriverMySQL {
		var id uint64
		if err := conn.QueryRowContext(ctx, "SELECT CONNECTION_ID()").Scan(&id); err != nil {
			h.Close(ctx)
			return nil, fmt.Errorf("%w: %s: %w", ErrConnect, target, err)
		}

		h.pid = uint32(id)
	}

	return h, nil
}

func (h *SQLHandle) Target() sqlcycle.Target {
	return h.target
}

// Exec runs text and decodes the result set of its last statement
func (h *SQLHandle) Exec(ctx context.Context, text string) (*ResultSet, error) {
	if h.closed {
		return nil, ErrHandleClosed
	}

	// go-sqlite3 only steps the last statement of a multi-statement query
	if h.target.Driver == sqlcycle.DriverSQLite {
		var last *ResultSet

		for _, stmt := range sqlcycle.SplitStatements(text) {
			rs, err := h.query(ctx, stmt)
			if err != nil {
				return nil, err
			}

			last = rs
		}

		return last, nil
	}

	rs, err := h.query(ctx, text)
	if err == nil {
		h.inTx = trackTransaction(h.inTx, text)
	}

	return rs, err
}

// trackTransaction returns the transaction state after text ran successfully
// in a session whose state was inTx. Statements that commit implicitly are
// not followed; a redundant commit is a no-op on MySQL.
func trackTransaction(inTx bool, text string) bool {
	for _, stmt := range sqlcycle.SplitStatements(text) {
		words := strings.Fields(strings.ToLower(stmt))
		if len(words) == 0 {
			continue
		}

		switch words[0] {
		case "begin":
			inTx = true
		case "start":
			if len(words) > 1 && words[1] == "transaction" {
				inTx = true
			}
		case "commit":
			inTx = false
		case "rollback":
			if len(words) == 1 || words[1] != "to" {
				inTx = false
			}
		}
	}

	return inTx
}

func (h *SQLHandle) query(ctx context.Context, text string) (*ResultSet, error) {
	rows, err := h.conn.QueryContext(ctx, text)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var last *ResultSet

	for {
		last, err = scanResultSet(rows)
		if err != nil {
			return nil, err
		}

		if !rows.NextResultSet() {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return last, nil
}

func scanResultSet(rows *sql.Rows) (*ResultSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get column names: %w", err)
	}

	if len(columns) == 0 {
		for rows.Next() {
		}

		return nil, rows.Err()
	}

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	rs := &ResultSet{Columns: columns, Rows: [][]any{}}
	values := make([]any, len(columns))
	scanArgs := make([]any, len(columns))

	for i := range values {
		scanArgs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make([]any, len(columns))
		for i, v := range values {
			row[i] = convertSQLValue(types[i].DatabaseTypeName(), v)
		}

		rs.Rows = append(rs.Rows, row)
	}

	return rs, rows.Err()
}

// convertSQLValue converts text-protocol values to Go types according to the
// column type reported by the driver.
func convertSQLValue(typeName string, v any) any {
	value, ok := v.([]byte)
	if !ok {
		return v
	}

	str := string(value)

	switch strings.ToUpper(typeName) {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT",
		"UNSIGNED TINYINT", "UNSIGNED SMALLINT", "UNSIGNED MEDIUMINT", "UNSIGNED INT", "UNSIGNED BIGINT",
		"DECIMAL", "NUMERIC", "FLOAT", "DOUBLE", "REAL", "YEAR":
		if d, err := decimal.NewFromString(str); err == nil {
			return d
		}
	case "JSON":
		var jsonValue any
		if err := json.Unmarshal(value, &jsonValue); err == nil {
			return jsonValue
		}
	}

	return str
}

// TxStatus probes the session. SQLite reports its autocommit flag directly;
// MySQL has no portable probe, so the tracked state is returned.
func (h *SQLHandle) TxStatus(ctx context.Context) TxStatus {
	if h.closed {
		return TxUnknown
	}

	switch h.target.Driver {
	case sqlcycle.DriverSQLite:
		status := TxUnknown
		err := h.conn.Raw(func(driverConn any) error {
			c, ok := driverConn.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("unexpected driver connection %T", driverConn)
			}

			if c.AutoCommit() {
				status = TxIdle
			} else {
				status = TxActive
			}

			return nil
		})
		if err != nil {
			return TxUnknown
		}

		return status
	case sqlcycle.DriverMySQL:
		if h.inTx {
			return TxActive
		}

		return TxIdle
	default:
		return TxUnknown
	}
}

// DrainNotices always returns nil; neither MySQL nor SQLite sends notices.
func (h *SQLHandle) DrainNotices() []Notice {
	return nil
}

func (h *SQLHandle) PID() uint32 {
	return h.pid
}

func (h *SQLHandle) Close(_ context.Context) error {
	if h.closed {
		return nil
	}

	h.closed = true

	err := h.conn.Close()
	if dbErr := h.db.Close(); err == nil {
		err = dbErr
	}

	return err
}
