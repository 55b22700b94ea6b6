// Package phase runs the init and final provisioning phases.
//
// Every statement runs with autocommit semantics. Failures of individual
// statements are logged and collected but never stop the phase; only
// connection level failures abort.
package phase

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/shibukawa/sqlcycle"
	"github.com/shibukawa/sqlcycle/connection"
	"github.com/shibukawa/sqlcycle/executor"
	"go.uber.org/zap"
)

// Summary describes one finished phase
type Summary struct {
	Phase      sqlcycle.Phase
	Statements int
	Failed     int
	// Failures collects statement and script failures; nil when there were none.
	Failures *multierror.Error
}

// Runner executes phase actions
type Runner struct {
	config   *sqlcycle.Config
	provider *connection.Provider
	exec     *executor.Executor
	logger   *zap.Logger
}

// NewRunner creates a phase runner. The provider decides whether statements
// share a session; the original tool opened one per statement.
func NewRunner(config *sqlcycle.Config, provider *connection.Provider, exec *executor.Executor, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{config: config, provider: provider, exec: exec, logger: logger}
}

// Run executes actions strictly in order. The returned error is non-nil only
// for fatal failures.
func (r *Runner) Run(ctx context.Context, phase sqlcycle.Phase, actions []sqlcycle.PhaseAction) (*Summary, error) {
	summary := &Summary{Phase: phase}

	for i, action := range actions {
		target, err := r.config.ActionTarget(action)
		if err != nil {
			summary.fail(fmt.Errorf("%s[%d]: %w", phase, i, err))
			continue
		}

		statements, err := r.statements(action)
		if err != nil {
			r.logger.Warn("phase action skipped",
				zap.String("phase", string(phase)),
				zap.Int("action", i),
				zap.Error(err))
			summary.fail(fmt.Errorf("%s[%d]: %w", phase, i, err))

			continue
		}

		for j, stmt := range statements {
			outcome, err := r.execute(ctx, target, stmt)
			if err != nil {
				return summary, err
			}

			summary.Statements++

			if !outcome.Success {
				r.logger.Warn("phase statement failed",
					zap.String("phase", string(phase)),
					zap.Int("action", i),
					zap.Int("statement", j),
					zap.Stringer("target", target),
					zap.String("error", outcome.ErrorText))
				summary.fail(fmt.Errorf("%s[%d] statement %d: %s", phase, i, j, outcome.ErrorText))
			}
		}
	}

	r.logger.Info("phase finished",
		zap.String("phase", string(phase)),
		zap.Int("statements", summary.Statements),
		zap.Int("failed", summary.Failed))

	return summary, nil
}

func (r *Runner) statements(action sqlcycle.PhaseAction) ([]string, error) {
	if action.Script == "" {
		return sqlcycle.SplitStatements(action.SQL), nil
	}

	text, err := LoadScript(r.config.ResolvePath(action.Script), action.Params)
	if err != nil {
		return nil, err
	}

	return ScriptBlocks(text), nil
}

func (r *Runner) execute(ctx context.Context, target sqlcycle.Target, stmt string) (*executor.Outcome, error) {
	h, release, err := r.provider.Acquire(ctx, target)
	if err != nil {
		return nil, executor.Fatal("connect", target, err)
	}
	defer release()

	return r.exec.Execute(ctx, h, stmt, executor.Options{Autocommit: true})
}

func (s *Summary) fail(err error) {
	s.Failed++
	s.Failures = multierror.Append(s.Failures, err)
}
