package report_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shibukawa/sqlcycle/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	color.NoColor = true

	os.Exit(m.Run())
}

func sampleRun() *report.RunResult {
	run := &report.RunResult{Elapsed: 3 * time.Second}

	for cycle := 1; cycle <= 2; cycle++ {
		c := &report.CycleResult{Cycle: cycle, Elapsed: time.Second}
		c.Add(report.CaseResult{N: 0, Cycle: cycle, Query: "select 1", Passed: true, Elapsed: time.Millisecond})
		c.Add(report.CaseResult{
			N:           1,
			Cycle:       cycle,
			Query:       "select 1/0\n-- second line",
			ErrorText:   "ERROR:  division by zero",
			ExpectError: "ERROR:  other",
			Reason:      "error text mismatch",
			Message:     "+ ERROR:  other\n- ERROR:  division by zero",
			Elapsed:     2 * time.Millisecond,
		})
		run.AddCycle(c)
	}

	return run
}

func TestStatsInvariant(t *testing.T) {
	run := sampleRun()

	for _, c := range run.Cycles {
		assert.Equal(t, len(c.Cases), c.Passed+c.Failed)
		assert.Equal(t, "ok: 1, fail: 1", c.CheckStat())
	}

	assert.Equal(t, 2, run.Passed)
	assert.Equal(t, 2, run.Failed)
}

func TestReporterLines(t *testing.T) {
	var out bytes.Buffer

	r, err := report.New(&out, report.Formats{
		Case:  "{{.check}} {{.mark}} [{{.cycle}}:{{.n}}] {{.query}} {{.pgerror}} | {{.check_stat}}",
		Cycle: `cycle {{printf "%2d" .cycle}}: {{.check_stat}}`,
		Run:   "total {{.cycles}} cycles, {{.passed}} passed, {{.failed}} failed",
	})
	require.NoError(t, err)

	run := sampleRun()
	cycle := run.Cycles[0]

	require.NoError(t, r.Case(cycle.Cases[0], cycle))
	require.NoError(t, r.Case(cycle.Cases[1], cycle))
	require.NoError(t, r.Cycle(cycle))
	require.NoError(t, r.Run(run))

	assert.Equal(t, ""+
		"T PASS [1:0] select 1  | ok: 1, fail: 1\n"+
		"F FAIL [1:1] select 1/0\n-- second line ERROR:  division by zero | ok: 1, fail: 1\n"+
		"cycle  1: ok: 1, fail: 1\n"+
		"total 2 cycles, 2 passed, 2 failed\n", out.String())
}

func TestReporterDisabledFormats(t *testing.T) {
	var out bytes.Buffer

	r, err := report.New(&out, report.Formats{})
	require.NoError(t, err)

	run := sampleRun()
	require.NoError(t, r.Case(run.Cycles[0].Cases[0], run.Cycles[0]))
	require.NoError(t, r.Cycle(run.Cycles[0]))
	require.NoError(t, r.Run(run))
	assert.Empty(t, out.String())
}

func TestReporterTemplateErrors(t *testing.T) {
	_, err := report.New(&bytes.Buffer{}, report.Formats{Case: "{{.query"})
	assert.ErrorIs(t, err, report.ErrTemplate)

	r, err := report.New(&bytes.Buffer{}, report.Formats{Cycle: "{{.cycle.Missing}}"})
	require.NoError(t, err)

	run := sampleRun()
	assert.ErrorIs(t, r.Cycle(run.Cycles[0]), report.ErrTemplate)
}

func TestJUnitDocument(t *testing.T) {
	doc := report.JUnitDocument("suite", sampleRun())

	root := doc.SelectElement("testsuites")
	require.NotNil(t, root)
	assert.Equal(t, "4", root.SelectAttrValue("tests", ""))
	assert.Equal(t, "2", root.SelectAttrValue("failures", ""))

	suites := root.SelectElements("testsuite")
	require.Len(t, suites, 2)
	assert.Equal(t, "suite cycle 2", suites[1].SelectAttrValue("name", ""))

	cases := suites[0].SelectElements("testcase")
	require.Len(t, cases, 2)
	assert.Nil(t, cases[0].SelectElement("failure"))
	assert.Equal(t, "1: select 1/0 ...", cases[1].SelectAttrValue("name", ""))

	failure := cases[1].SelectElement("failure")
	require.NotNil(t, failure)
	assert.Equal(t, "error text mismatch", failure.SelectAttrValue("message", ""))
	assert.Contains(t, failure.Text(), "division by zero")
}

func TestWriteJUnit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junit.xml")
	require.NoError(t, report.WriteJUnit(path, "suite", sampleRun()))

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromFile(path))
	assert.Len(t, doc.FindElements("//testcase"), 4)
}

func TestMetrics(t *testing.T) {
	m := report.NewMetrics()
	m.Observe(sampleRun())

	expected := `
# HELP sqlcycle_cases_total Evaluated test cases by cycle and result
# TYPE sqlcycle_cases_total counter
sqlcycle_cases_total{cycle="1",result="failed"} 1
sqlcycle_cases_total{cycle="1",result="passed"} 1
sqlcycle_cases_total{cycle="2",result="failed"} 1
sqlcycle_cases_total{cycle="2",result="passed"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "sqlcycle_cases_total"))

	path := filepath.Join(t.TempDir(), "sqlcycle.prom")
	require.NoError(t, report.WriteMetrics(path, sampleRun()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sqlcycle_run_duration_seconds 3")
	assert.Contains(t, string(data), "sqlcycle_cycles 2")
}
