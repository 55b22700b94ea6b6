package testrunner

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shibukawa/sqlcycle"
	"github.com/shibukawa/sqlcycle/executor"
	"github.com/shibukawa/sqlcycle/matcher"
)

// Case is a test case prepared for execution
type Case struct {
	sqlcycle.TestCase

	// N is the position in the filtered list.
	N int
	// Expected rows in canonical form; nil when expect_result is not declared.
	Expected []map[string]any
	Check    *matcher.Check
}

// Suite is the test phase of a configuration after key filtering
type Suite struct {
	Name     string
	Target   sqlcycle.Target
	Cycles   int
	Cases    []Case
	GDBAfter map[int]bool
}

// NewSuite prepares the test phase of config. Cases whose query does not
// contain config.Key are dropped; order is preserved.
func NewSuite(config *sqlcycle.Config) (*Suite, error) {
	target, err := config.TestTarget()
	if err != nil {
		return nil, err
	}

	suite := &Suite{
		Name:     "sqlcycle",
		Target:   target,
		Cycles:   config.Cycles,
		GDBAfter: make(map[int]bool, len(config.RunGDBAfter)),
	}

	if config.Path != "" {
		suite.Name = strings.TrimSuffix(filepath.Base(config.Path), filepath.Ext(config.Path))
	}

	for _, cycle := range config.RunGDBAfter {
		suite.GDBAfter[cycle] = true
	}

	for i, tc := range config.Tests {
		if !strings.Contains(tc.Query, config.Key) {
			continue
		}

		c := Case{TestCase: tc, N: len(suite.Cases)}
		if tc.HasExpectResult() {
			c.Expected = executor.NormalizeRows(tc.ExpectResult)
		}

		if tc.ExpectCheck != "" {
			check, err := matcher.CompileCheck(tc.ExpectCheck)
			if err != nil {
				return nil, fmt.Errorf("tests[%d]: %w", i, err)
			}

			c.Check = check
		}

		suite.Cases = append(suite.Cases, c)
	}

	if len(suite.Cases) == 0 && config.Key != "" {
		return nil, fmt.Errorf("%w: %q", sqlcycle.ErrNoTestCasesFound, config.Key)
	}

	return suite, nil
}
