// Package executor runs one statement group on a connection handle and
// classifies what happened.
package executor

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shibukawa/sqlcycle/connection"
	"go.uber.org/zap"
)

// Origin tells at which point a statement group failed
type Origin string

const (
	OriginNone    Origin = ""
	OriginExecute Origin = "execute"
	OriginCommit  Origin = "commit"
)

// Options control transaction handling of one execution
type Options struct {
	// Autocommit runs the text without opening a transaction block, so every
	// statement commits on its own. Otherwise a block is opened when the
	// session is idle and committed after a successful execution.
	Autocommit bool
}

// Outcome is the result of executing one statement group
type Outcome struct {
	// Rows of the last statement, normalized; nil when it produced no result set.
	Rows      []map[string]any
	ErrorText string
	Success   bool
	Origin    Origin
	Elapsed   time.Duration
}

// Executor executes statement groups and reports server notices
type Executor struct {
	notices io.Writer
	logger  *zap.Logger
}

// New creates an executor. Notices are written to w as libpq prints them.
func New(w io.Writer, logger *zap.Logger) *Executor {
	if w == nil {
		w = io.Discard
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Executor{notices: w, logger: logger}
}

// Execute sends text to h. A query-level error is captured in the returned
// Outcome. Any other failure is returned as *FatalError and the outcome is nil.
func (e *Executor) Execute(ctx context.Context, h connection.Handle, text string, opts Options) (*Outcome, error) {
	start := time.Now()

	if !opts.Autocommit {
		switch h.TxStatus(ctx) {
		case connection.TxActive, connection.TxFailed:
		default:
			_, err := h.Exec(ctx, "begin")
			e.drainNotices(h)

			if err != nil {
				return e.failed(h, "begin", OriginExecute, err, start)
			}
		}
	}

	rs, err := h.Exec(ctx, text)
	e.drainNotices(h)

	if err != nil {
		return e.failed(h, "execute", OriginExecute, err, start)
	}

	outcome := &Outcome{
		Rows:    NormalizeRows(rs.Maps()),
		Success: true,
	}

	if !opts.Autocommit && needsCommit(h.TxStatus(ctx)) {
		_, err := h.Exec(ctx, "commit")
		e.drainNotices(h)

		if err != nil {
			return e.failed(h, "commit", OriginCommit, err, start)
		}
	}

	outcome.Elapsed = time.Since(start)

	return outcome, nil
}

// needsCommit reports whether a commit must follow a successful statement.
// An unknown status is committed too; commit outside a transaction is harmless.
func needsCommit(status connection.TxStatus) bool {
	return status == connection.TxActive || status == connection.TxUnknown
}

func (e *Executor) failed(h connection.Handle, op string, origin Origin, err error, start time.Time) (*Outcome, error) {
	if !IsQueryError(err) {
		return nil, Fatal(op, h.Target(), err)
	}

	text := ErrorText(err)
	e.logger.Debug("query error", zap.String("op", op), zap.String("error", text))

	return &Outcome{
		ErrorText: text,
		Origin:    origin,
		Elapsed:   time.Since(start),
	}, nil
}

// Rollback ends the current transaction block of h. Only connection level
// failures are reported.
func (e *Executor) Rollback(ctx context.Context, h connection.Handle) error {
	_, err := h.Exec(ctx, "rollback")
	e.drainNotices(h)

	if err != nil && !IsQueryError(err) {
		return Fatal("rollback", h.Target(), err)
	}

	if err != nil {
		e.logger.Warn("rollback failed", zap.String("error", ErrorText(err)))
	}

	return nil
}

// drainNotices prints and forgets the notices accumulated on h
func (e *Executor) drainNotices(h connection.Handle) {
	for _, n := range h.DrainNotices() {
		fmt.Fprintln(e.notices, n.String())
		e.logger.Debug("server notice", zap.String("severity", n.Severity), zap.String("message", n.Message))
	}
}
