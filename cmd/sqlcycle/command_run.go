package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/fatih/color"
	"github.com/shibukawa/sqlcycle"
	"github.com/shibukawa/sqlcycle/connection"
	"github.com/shibukawa/sqlcycle/debughook"
	"github.com/shibukawa/sqlcycle/executor"
	"github.com/shibukawa/sqlcycle/phase"
	"github.com/shibukawa/sqlcycle/report"
	"github.com/shibukawa/sqlcycle/testrunner"
	"go.uber.org/zap"
)

// RunCmd represents the run command
type RunCmd struct {
	Cycles         int      `help:"Override the number of cycles"`
	Key            string   `help:"Run only test cases whose query contains this text" short:"k"`
	Phases         []string `help:"Phases to run (init, test, final)" sep:","`
	ConnectionMode string   `help:"Connection mode of the test phase: single or per-call" name:"connection-mode"`
	JUnit          string   `help:"Write a JUnit XML report to this path" name:"junit" type:"path"`
	Metrics        string   `help:"Write a Prometheus metrics textfile to this path" type:"path"`
	Strict         bool     `help:"Exit with status 2 when any test case failed"`
}

// Run executes the run command
func (cmd *RunCmd) Run(ctx *Context) error {
	config, err := sqlcycle.LoadConfig(ctx.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cmd.apply(config); err != nil {
		return err
	}

	logger := ctx.logger()
	logger.Info("starting run",
		zap.String("config", config.Path),
		zap.Int("cycles", config.Cycles),
		zap.Strings("phases", config.Phases),
		zap.Bool("single_connection", config.IsSingleConnection()))

	run, err := runSuite(context.Background(), ctx, config)
	if err != nil {
		return err
	}

	if cmd.Strict && run != nil && run.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrCasesFailed, run.Failed, run.Passed+run.Failed)
	}

	return nil
}

// apply merges command line overrides into config
func (cmd *RunCmd) apply(config *sqlcycle.Config) error {
	if cmd.Cycles != 0 {
		if cmd.Cycles < 1 {
			return fmt.Errorf("%w: --cycles must be >= 1, got %d", ErrInvalidOverride, cmd.Cycles)
		}

		config.Cycles = cmd.Cycles

		for _, cycle := range config.RunGDBAfter {
			if cycle > config.Cycles {
				return fmt.Errorf("%w: run_gdb_after: %w: %d not in 1..%d", ErrInvalidOverride, sqlcycle.ErrCycleOutOfRange, cycle, config.Cycles)
			}
		}
	}

	if cmd.Key != "" {
		config.Key = cmd.Key
	}

	if len(cmd.Phases) > 0 {
		for _, p := range cmd.Phases {
			if !slices.Contains(sqlcycle.AllPhases, sqlcycle.Phase(p)) {
				return fmt.Errorf("%w: %w '%s'", ErrInvalidOverride, sqlcycle.ErrUnknownPhase, p)
			}
		}

		config.Phases = cmd.Phases
	}

	if cmd.ConnectionMode != "" {
		mode, err := connection.ParseMode(cmd.ConnectionMode)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidOverride, err)
		}

		single := mode == connection.ModeSingle
		config.SingleConnection = &single
	}

	if cmd.JUnit != "" {
		config.JUnitReport = cmd.JUnit
	}

	if cmd.Metrics != "" {
		config.MetricsFile = cmd.Metrics
	}

	return nil
}

// runSuite runs the enabled phases in order: init, test, final.
// The run result is nil when the test phase is disabled.
func runSuite(ctx context.Context, app *Context, config *sqlcycle.Config) (*report.RunResult, error) {
	logger := app.logger()
	exec := executor.New(app.Stdout, logger)

	if config.RunsPhase(sqlcycle.PhaseInit) {
		if err := runPhase(ctx, app, config, exec, sqlcycle.PhaseInit, config.Init); err != nil {
			return nil, err
		}
	}

	var run *report.RunResult

	if config.RunsPhase(sqlcycle.PhaseTest) {
		var err error

		run, err = runTests(ctx, app, config, exec)
		if err != nil {
			return run, err
		}
	}

	if config.RunsPhase(sqlcycle.PhaseFinal) {
		if err := runPhase(ctx, app, config, exec, sqlcycle.PhaseFinal, config.Final); err != nil {
			return run, err
		}
	}

	return run, nil
}

func runPhase(ctx context.Context, app *Context, config *sqlcycle.Config, exec *executor.Executor, p sqlcycle.Phase, actions []sqlcycle.PhaseAction) error {
	logger := app.logger()

	provider := connection.NewProvider(app.Opener, connection.ModePerCall, logger)
	defer closeProvider(ctx, provider, logger, p)

	summary, err := phase.NewRunner(config, provider, exec, logger).Run(ctx, p, actions)
	if err != nil {
		return err
	}

	if summary.Failed > 0 {
		color.New(color.FgYellow).Fprintf(app.Stdout, "%s: %d of %d statements failed\n", p, summary.Failed, summary.Statements)
	}

	return nil
}

func runTests(ctx context.Context, app *Context, config *sqlcycle.Config, exec *executor.Executor) (*report.RunResult, error) {
	logger := app.logger()

	suite, err := testrunner.NewSuite(config)
	if err != nil {
		return nil, err
	}

	reporter, err := report.New(app.Stdout, report.Formats{
		Case:  config.CaseFormat,
		Cycle: config.CycleFormat,
		Run:   config.RunFormat,
	})
	if err != nil {
		return nil, err
	}

	mode := connection.ModePerCall
	if config.IsSingleConnection() {
		mode = connection.ModeSingle
	}

	runner := testrunner.NewRunner(suite, connection.NewProvider(app.Opener, mode, logger), exec, reporter, logger)

	if config.GDBMacros != "" && len(config.RunGDBAfter) > 0 {
		runner.SetDebugHook(debughook.NewGDB(config.GDBBinary, config.ResolvePath(config.GDBMacros), config.ArtifactPath, logger))
	}

	run, runErr := runner.Run(ctx)

	if err := writeReports(config, suite.Name, run); err != nil {
		if runErr != nil {
			logger.Warn("failed to write reports", zap.Error(err))
			return run, runErr
		}

		return run, err
	}

	return run, runErr
}

func writeReports(config *sqlcycle.Config, name string, run *report.RunResult) error {
	if config.JUnitReport != "" {
		if err := report.WriteJUnit(config.ResolvePath(config.JUnitReport), name, run); err != nil {
			return err
		}
	}

	if config.MetricsFile != "" {
		if err := report.WriteMetrics(config.ResolvePath(config.MetricsFile), run); err != nil {
			return err
		}
	}

	return nil
}

func (c *Context) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}

	return c.Logger
}

type closer interface {
	Close(ctx context.Context) error
}

// closeProvider closes c and logs a failure as a warning
func closeProvider(ctx context.Context, c closer, logger *zap.Logger, p sqlcycle.Phase) {
	if err := c.Close(ctx); err != nil {
		logger.Warn("failed to close connections", zap.String("phase", string(p)), zap.Error(err))
	}
}
