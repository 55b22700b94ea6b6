package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/shibukawa/sqlcycle"
	"github.com/shibukawa/sqlcycle/executor"
	"github.com/shibukawa/sqlcycle/testhelper"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func writeSuite(t *testing.T, body string) (string, string) {
	t.Helper()

	dir := t.TempDir()
	db := filepath.Join(dir, "suite.db")
	body = strings.ReplaceAll(body, "@DB@", db)

	path := filepath.Join(dir, "suite.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	return path, dir
}

const sqliteSuite = `
driver: sqlite
dsn: "@DB@"
cycles: 2
case_format: "{{.mark}} {{.n}} {{.query}}"
cycle_format: "cycle {{.cycle}}: {{.check_stat}}"
run_format: "total: {{.check_stat}}"
junit_report: report.xml
metrics_file: metrics.prom
init:
  - sql: "create table person (id integer primary key, name text not null); create table log (msg text)"
    dsn: "@DB@"
  - script: seed.sql
    dsn: "@DB@"
    params:
      name: alice
tests:
  - pre: "delete from log"
    query: "insert into log values ('a'); insert into log values ('b')"
  - query: "select count(*) as n from log"
    expect_result:
      - n: 2
  - query: "select name from person where id = 1"
    expect_result:
      - name: alice
    expect_check: "size(rows) == 1 && success"
  - query: "select * from missing"
    expect_error: "no such table: missing"
  - query: "select 1 as one"
    expect_result:
      - one: 2
final:
  - sql: "drop table log; drop table person"
    dsn: "@DB@"
`

func TestRunCmdSQLite(t *testing.T) {
	path, dir := writeSuite(t, sqliteSuite)
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "seed.sql"), []byte(
		"-- seed rows\ninsert into person values (1, '{{.name}}')\n\n-- comment only block\n"), 0o644))

	var stdout bytes.Buffer

	app := &Context{Config: path, Stdout: &stdout, Logger: zaptest.NewLogger(t)}
	err := (&RunCmd{}).Run(app)
	assert.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	assert.Equal(t, []string{
		"PASS 0 insert into log values ('a'); insert into log values ('b')",
		"PASS 1 select count(*) as n from log",
		"PASS 2 select name from person where id = 1",
		"PASS 3 select * from missing",
		"FAIL 4 select 1 as one",
		"cycle 1: ok: 4, fail: 1",
		"PASS 0 insert into log values ('a'); insert into log values ('b')",
		"PASS 1 select count(*) as n from log",
		"PASS 2 select name from person where id = 1",
		"PASS 3 select * from missing",
		"FAIL 4 select 1 as one",
		"cycle 2: ok: 4, fail: 1",
		"total: ok: 8, fail: 2",
	}, lines)

	junit, err := os.ReadFile(filepath.Join(dir, "report.xml"))
	assert.NoError(t, err)
	assert.Contains(t, string(junit), `<testsuites name="suite" tests="10" failures="2"`)

	metrics, err := os.ReadFile(filepath.Join(dir, "metrics.prom"))
	assert.NoError(t, err)
	assert.Contains(t, string(metrics), `sqlcycle_cases_total{cycle="1",result="passed"} 4`)
}

func TestRunCmdStrict(t *testing.T) {
	path, dir := writeSuite(t, sqliteSuite)
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "seed.sql"), []byte("insert into person values (1, '{{.name}}')\n"), 0o644))

	var stdout bytes.Buffer

	err := (&RunCmd{Strict: true, Cycles: 1, Key: "select 1"}).Run(&Context{Config: path, Stdout: &stdout})
	assert.IsError(t, err, ErrCasesFailed)
	assert.Equal(t, 2, exitCode(err))
	assert.Contains(t, stdout.String(), "cycle 1: ok: 0, fail: 1")
}

func TestRunCmdPhaseSelection(t *testing.T) {
	path, _ := writeSuite(t, sqliteSuite)

	var stdout bytes.Buffer

	// without init the tables do not exist; the failing cases are reported, not fatal
	err := (&RunCmd{Phases: []string{"test"}, Cycles: 1, ConnectionMode: "per-call"}).Run(&Context{Config: path, Stdout: &stdout})
	assert.NoError(t, err)
	assert.Contains(t, stdout.String(), "FAIL 0 insert into log")
	assert.Contains(t, stdout.String(), "PASS 3 select * from missing")
}

func TestRunCmdFatal(t *testing.T) {
	path, _ := writeSuite(t, `
dsn: "dbname=proxy"
tests:
  - query: "select 1"
`)

	var stdout bytes.Buffer

	opener := &testhelper.FakeOpener{Err: errors.New("connection refused")}
	err := (&RunCmd{}).Run(&Context{Config: path, Stdout: &stdout, Opener: opener.Open})

	fe, ok := executor.AsFatal(err)
	assert.True(t, ok)
	assert.Equal(t, "connect", fe.Op)
	assert.Equal(t, 1, exitCode(err))
}

func TestRunCmdApply(t *testing.T) {
	tests := []struct {
		name     string
		cmd      RunCmd
		expected error
	}{
		{"unknown phase", RunCmd{Phases: []string{"setup"}}, sqlcycle.ErrUnknownPhase},
		{"bad connection mode", RunCmd{ConnectionMode: "pooled"}, ErrInvalidOverride},
		{"negative cycles", RunCmd{Cycles: -2}, ErrInvalidOverride},
		{"gdb cycle beyond override", RunCmd{Cycles: 1}, sqlcycle.ErrCycleOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &sqlcycle.Config{Cycles: 3, GDBMacros: "m.gdb", RunGDBAfter: []int{3}}
			assert.IsError(t, tt.cmd.apply(config), tt.expected)
		})
	}

	config := &sqlcycle.Config{Cycles: 1}
	cmd := RunCmd{Cycles: 4, Key: "person", Phases: []string{"init", "test"}, ConnectionMode: "per-call"}
	assert.NoError(t, cmd.apply(config))
	assert.Equal(t, 4, config.Cycles)
	assert.Equal(t, "person", config.Key)
	assert.Equal(t, []string{"init", "test"}, config.Phases)
	assert.False(t, config.IsSingleConnection())
}

func TestValidateCmd(t *testing.T) {
	path, dir := writeSuite(t, sqliteSuite)
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "seed.sql"), []byte("insert into person values (1, '{{.name}}')\n"), 0o644))

	var stdout bytes.Buffer

	err := (&ValidateCmd{}).Run(&Context{Config: path, Stdout: &stdout})
	assert.NoError(t, err)
	assert.Contains(t, stdout.String(), "is valid: 5 test cases, 2 init actions, 1 final actions, 2 cycles")

	assert.NoError(t, os.WriteFile(filepath.Join(dir, "seed.sql"), []byte("insert into person values (1, '{{.missing}}')\n"), 0o644))

	err = (&ValidateCmd{}).Run(&Context{Config: path, Stdout: &stdout})
	assert.IsError(t, err, sqlcycle.ErrScriptRender)
}

func TestValidateCmdBadCheck(t *testing.T) {
	path, _ := writeSuite(t, `
dsn: "dbname=proxy"
tests:
  - query: "select 1"
    expect_check: "rows[0] +"
`)

	err := (&ValidateCmd{}).Run(&Context{Config: path, Stdout: &bytes.Buffer{}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "tests[0]")
}

func TestValidateExample(t *testing.T) {
	var stdout bytes.Buffer

	path := filepath.Join("..", "..", "examples", "plexor", "sqlcycle.yaml")

	err := (&ValidateCmd{}).Run(&Context{Config: path, Stdout: &stdout})
	assert.NoError(t, err)
	assert.Contains(t, stdout.String(), "is valid: 6 test cases, 8 init actions, 4 final actions, 3 cycles")
}

type failingCloser struct{}

func (failingCloser) Close(context.Context) error {
	return errors.New("close bob: broken pipe")
}

func TestCloseProviderLogsFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	closeProvider(context.Background(), failingCloser{}, zap.New(core), sqlcycle.PhaseFinal)

	entries := logs.FilterMessage("failed to close connections").All()
	assert.Equal(t, 1, len(entries))
	assert.Equal(t, "final", entries[0].ContextMap()["phase"])
	assert.Equal(t, "close bob: broken pipe", entries[0].ContextMap()["error"])
}
