// Package testrunner runs the test phase: the filtered case list, repeated for
// a number of cycles, against one target.
package testrunner

import (
	"context"
	"io"
	"time"

	"github.com/shibukawa/sqlcycle/connection"
	"github.com/shibukawa/sqlcycle/executor"
	"github.com/shibukawa/sqlcycle/matcher"
	"github.com/shibukawa/sqlcycle/report"
	"go.uber.org/zap"
)

// DebugHook captures diagnostics of a server backend after a cycle
type DebugHook interface {
	Run(ctx context.Context, pid uint32, cycle int) error
}

// Runner executes a Suite. Cycles and cases run strictly sequentially since
// cases depend on session state left by earlier cases.
type Runner struct {
	suite    *Suite
	provider *connection.Provider
	exec     *executor.Executor
	reporter *report.Reporter
	hook     DebugHook
	logger   *zap.Logger
}

// NewRunner creates a runner. The runner owns provider and closes it when
// Run returns.
func NewRunner(suite *Suite, provider *connection.Provider, exec *executor.Executor, reporter *report.Reporter, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}

	if reporter == nil {
		reporter, _ = report.New(io.Discard, report.Formats{})
	}

	return &Runner{
		suite:    suite,
		provider: provider,
		exec:     exec,
		reporter: reporter,
		logger:   logger,
	}
}

// SetDebugHook sets the hook invoked after the cycles listed in the suite
func (r *Runner) SetDebugHook(hook DebugHook) {
	r.hook = hook
}

// Run executes every cycle. The returned error is a *executor.FatalError;
// assertion mismatches only show up in the result. The partial result is
// returned together with a fatal error.
func (r *Runner) Run(ctx context.Context) (*report.RunResult, error) {
	run := &report.RunResult{}
	start := time.Now()

	defer func() {
		if cerr := r.provider.Close(ctx); cerr != nil {
			r.logger.Warn("failed to close connections", zap.Error(cerr))
		}
	}()

	var pid uint32

	if r.provider.Mode() == connection.ModeSingle {
		h, release, err := r.provider.Acquire(ctx, r.suite.Target)
		if err != nil {
			return run, executor.Fatal("connect", r.suite.Target, err)
		}

		release()

		if len(r.suite.GDBAfter) > 0 {
			pid = h.PID()
			r.logger.Info("captured backend pid", zap.Uint32("pid", pid))
		}
	}

	for cycle := 1; cycle <= r.suite.Cycles; cycle++ {
		cr, err := r.runCycle(ctx, cycle)
		if err != nil {
			run.AddCycle(cr)
			run.Elapsed = time.Since(start)

			return run, err
		}

		if r.suite.GDBAfter[cycle] {
			r.debug(ctx, cycle, pid)
		}

		if err := r.reporter.Cycle(cr); err != nil {
			r.logger.Warn("failed to format cycle summary", zap.Error(err))
		}

		run.AddCycle(cr)
	}

	run.Elapsed = time.Since(start)

	if err := r.reporter.Run(run); err != nil {
		r.logger.Warn("failed to format run summary", zap.Error(err))
	}

	return run, nil
}

func (r *Runner) runCycle(ctx context.Context, cycle int) (*report.CycleResult, error) {
	cr := &report.CycleResult{Cycle: cycle}
	start := time.Now()

	defer func() {
		cr.Elapsed = time.Since(start)
	}()

	for i := range r.suite.Cases {
		result, err := r.runCase(ctx, cycle, &r.suite.Cases[i])
		if err != nil {
			return cr, err
		}

		cr.Add(result)

		if err := r.reporter.Case(result, cr); err != nil {
			r.logger.Warn("failed to format case line", zap.Error(err))
		}
	}

	return cr, nil
}

func (r *Runner) runCase(ctx context.Context, cycle int, c *Case) (report.CaseResult, error) {
	if c.Pre != "" {
		if _, err := r.execute(ctx, c.Pre); err != nil {
			return report.CaseResult{}, err
		}
	}

	outcome, err := r.execute(ctx, c.Query)
	if err != nil {
		return report.CaseResult{}, err
	}

	result := report.CaseResult{
		N:               c.N,
		Cycle:           cycle,
		Query:           c.Query,
		Rows:            outcome.Rows,
		ErrorText:       outcome.ErrorText,
		Origin:          outcome.Origin,
		Elapsed:         outcome.Elapsed,
		ExpectResult:    c.ExpectResult,
		HasExpectResult: c.HasExpectResult(),
		ExpectError:     c.ExpectError,
		ExpectCheck:     c.ExpectCheck,
	}

	evaluate(&result, c, outcome)

	r.logger.Debug("case evaluated",
		zap.Int("cycle", cycle),
		zap.Int("n", c.N),
		zap.Bool("passed", result.Passed),
		zap.String("origin", string(outcome.Origin)),
		zap.Duration("elapsed", outcome.Elapsed))

	return result, nil
}

// evaluate decides pass or fail of one case
func evaluate(result *report.CaseResult, c *Case, outcome *executor.Outcome) {
	switch {
	case !outcome.Success && c.HasExpectError():
		result.Passed = matcher.MatchError(outcome.ErrorText, c.ExpectError)
		if !result.Passed {
			result.Reason = "error text mismatch"
			result.Message = matcher.FormatErrorDiff(outcome.ErrorText, c.ExpectError)
		}
	case !outcome.Success:
		result.Reason = "unexpected error"
		if outcome.Origin == executor.OriginCommit {
			result.Reason = "unexpected error at commit"
		}

		result.Message = outcome.ErrorText
	case c.HasExpectError():
		result.Reason = "expected error but statement succeeded"
		result.Message = matcher.FormatErrorDiff("", c.ExpectError)
	case c.HasExpectResult():
		result.Passed = matcher.MatchResult(outcome.Rows, c.Expected)
		if !result.Passed {
			result.Reason = "result mismatch"
			result.Message = matcher.FormatResultDiff(outcome.Rows, c.Expected)
		}
	default:
		result.Passed = true
	}

	if !result.Passed || c.Check == nil {
		return
	}

	ok, err := c.Check.Eval(outcome)

	switch {
	case err != nil:
		result.Passed = false
		result.Reason = "check failed"
		result.Message = err.Error()
	case !ok:
		result.Passed = false
		result.Reason = "check failed"
		result.Message = "expect_check is false: " + c.Check.String()
	}
}

// execute runs text on a handle from the provider. A failed statement group
// is rolled back on the same handle so that the next case starts clean.
func (r *Runner) execute(ctx context.Context, text string) (*executor.Outcome, error) {
	h, release, err := r.provider.Acquire(ctx, r.suite.Target)
	if err != nil {
		return nil, executor.Fatal("connect", r.suite.Target, err)
	}
	defer release()

	outcome, err := r.exec.Execute(ctx, h, text, executor.Options{})
	if err != nil {
		return nil, err
	}

	if !outcome.Success {
		if err := r.exec.Rollback(ctx, h); err != nil {
			return nil, err
		}
	}

	return outcome, nil
}

func (r *Runner) debug(ctx context.Context, cycle int, pid uint32) {
	switch {
	case r.hook == nil:
		return
	case r.provider.Mode() != connection.ModeSingle:
		r.logger.Warn("debugger hook needs single connection mode, skipped", zap.Int("cycle", cycle))
		return
	case pid == 0:
		r.logger.Warn("backend pid unknown, debugger hook skipped", zap.Int("cycle", cycle))
		return
	}

	if err := r.hook.Run(ctx, pid, cycle); err != nil {
		r.logger.Warn("debugger hook failed", zap.Int("cycle", cycle), zap.Uint32("pid", pid), zap.Error(err))
	}
}
