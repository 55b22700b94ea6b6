package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/shibukawa/sqlcycle"
	"github.com/shibukawa/sqlcycle/phase"
	"github.com/shibukawa/sqlcycle/report"
	"github.com/shibukawa/sqlcycle/testrunner"
)

// ValidateCmd represents the validate command
type ValidateCmd struct{}

// Run loads the configuration, compiles templates and checks, and renders
// every script. No connection is opened.
func (cmd *ValidateCmd) Run(ctx *Context) error {
	config, err := sqlcycle.LoadConfig(ctx.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cases := 0

	if config.RunsPhase(sqlcycle.PhaseTest) {
		suite, err := testrunner.NewSuite(config)
		if err != nil {
			return err
		}

		cases = len(suite.Cases)

		if _, err := report.New(io.Discard, report.Formats{Case: config.CaseFormat, Cycle: config.CycleFormat, Run: config.RunFormat}); err != nil {
			return err
		}
	}

	for name, actions := range map[sqlcycle.Phase][]sqlcycle.PhaseAction{
		sqlcycle.PhaseInit:  config.Init,
		sqlcycle.PhaseFinal: config.Final,
	} {
		for i, action := range actions {
			if action.Script == "" {
				continue
			}

			if _, err := phase.LoadScript(config.ResolvePath(action.Script), action.Params); err != nil {
				return fmt.Errorf("%s[%d]: %w", name, i, err)
			}
		}
	}

	color.New(color.FgGreen).Fprintf(ctx.Stdout, "%s is valid: %d test cases, %d init actions, %d final actions, %d cycles\n",
		config.Path, cases, len(config.Init), len(config.Final), config.Cycles)

	return nil
}
