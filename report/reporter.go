// Package report formats run statistics: per case, per cycle and per run
// template lines, JUnit XML and a Prometheus textfile.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/fatih/color"
)

// ErrTemplate indicates a report format could not be parsed or executed
var ErrTemplate = errors.New("invalid report template")

var (
	passMarkFmt = color.New(color.FgGreen, color.Bold).SprintFunc()
	failMarkFmt = color.New(color.FgRed, color.Bold).SprintFunc()
)

// Formats holds the text/template sources. An empty format disables the line.
type Formats struct {
	Case  string
	Cycle string
	Run   string
}

// Reporter writes the formatted report lines
type Reporter struct {
	out   io.Writer
	cases *template.Template
	cycle *template.Template
	run   *template.Template
}

// New parses the formats
func New(out io.Writer, formats Formats) (*Reporter, error) {
	r := &Reporter{out: out}

	var err error

	if r.cases, err = parse("case_format", formats.Case); err != nil {
		return nil, err
	}

	if r.cycle, err = parse("cycle_format", formats.Cycle); err != nil {
		return nil, err
	}

	if r.run, err = parse("run_format", formats.Run); err != nil {
		return nil, err
	}

	return r, nil
}

func parse(name, text string) (*template.Template, error) {
	if text == "" {
		return nil, nil
	}

	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTemplate, name, err)
	}

	return tmpl, nil
}

// Mark returns the colored PASS/FAIL marker
func Mark(passed bool) string {
	if passed {
		return passMarkFmt("PASS")
	}

	return failMarkFmt("FAIL")
}

// Case writes the per case line. cycle holds the counts so far, including cr.
func (r *Reporter) Case(cr CaseResult, cycle *CycleResult) error {
	if r.cases == nil {
		return nil
	}

	check := "F"
	if cr.Passed {
		check = "T"
	}

	var expectResult any
	if cr.HasExpectResult {
		expectResult = cr.ExpectResult
	}

	return r.write(r.cases, map[string]any{
		"query":          cr.Query,
		"n":              cr.N,
		"cycle":          cr.Cycle,
		"result":         cr.Rows,
		"pgerror":        cr.ErrorText,
		"check":          check,
		"expect_result":  expectResult,
		"expect_pgerror": cr.ExpectError,
		"time":           cr.Elapsed,
		"check_stat":     cycle.CheckStat(),
		"mark":           Mark(cr.Passed),
		"origin":         string(cr.Origin),
	})
}

// Cycle writes the per cycle summary line
func (r *Reporter) Cycle(c *CycleResult) error {
	if r.cycle == nil {
		return nil
	}

	return r.write(r.cycle, map[string]any{
		"cycle":      c.Cycle,
		"check_stat": c.CheckStat(),
		"time":       c.Elapsed,
		"passed":     c.Passed,
		"failed":     c.Failed,
		"mark":       Mark(c.Failed == 0),
	})
}

// Run writes the total run summary line
func (r *Reporter) Run(run *RunResult) error {
	if r.run == nil {
		return nil
	}

	return r.write(r.run, map[string]any{
		"time":       run.Elapsed,
		"cycles":     len(run.Cycles),
		"passed":     run.Passed,
		"failed":     run.Failed,
		"check_stat": run.CheckStat(),
		"mark":       Mark(run.Failed == 0),
	})
}

func (r *Reporter) write(tmpl *template.Template, data map[string]any) error {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTemplate, tmpl.Name(), err)
	}

	line := b.String()
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}

	_, err := io.WriteString(r.out, line)

	return err
}
