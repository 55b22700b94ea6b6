package report

import (
	"fmt"
	"time"

	"github.com/shibukawa/sqlcycle/executor"
)

// CaseResult is the evaluated outcome of one test case in one cycle
type CaseResult struct {
	// N is the position of the case in the filtered list, starting at 0.
	N     int
	Cycle int
	Query string

	Passed    bool
	Rows      []map[string]any
	ErrorText string
	Origin    executor.Origin
	Elapsed   time.Duration

	ExpectResult    []map[string]any
	HasExpectResult bool
	ExpectError     string
	ExpectCheck     string

	// Reason is a one line failure summary; Message holds the details (a diff,
	// a check failure or an unexpected error).
	Reason  string
	Message string
}

// CycleResult accumulates the cases of one cycle
type CycleResult struct {
	Cycle   int
	Cases   []CaseResult
	Passed  int
	Failed  int
	Elapsed time.Duration
}

// Add records a case result
func (c *CycleResult) Add(cr CaseResult) {
	c.Cases = append(c.Cases, cr)

	if cr.Passed {
		c.Passed++
	} else {
		c.Failed++
	}
}

// CheckStat renders the pass/fail counts as "ok: N, fail: M"
func (c *CycleResult) CheckStat() string {
	return fmt.Sprintf("ok: %d, fail: %d", c.Passed, c.Failed)
}

// RunResult aggregates all cycles of a run. It is created fresh for every run.
type RunResult struct {
	Cycles  []*CycleResult
	Passed  int
	Failed  int
	Elapsed time.Duration
}

// AddCycle records a finished cycle
func (r *RunResult) AddCycle(c *CycleResult) {
	r.Cycles = append(r.Cycles, c)
	r.Passed += c.Passed
	r.Failed += c.Failed
}

// CheckStat renders the run totals as "ok: N, fail: M"
func (r *RunResult) CheckStat() string {
	return fmt.Sprintf("ok: %d, fail: %d", r.Passed, r.Failed)
}
