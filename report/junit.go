package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/shibukawa/sqlcycle/executor"
)

// JUnitDocument builds a JUnit XML report: one testsuite per cycle and one
// testcase per executed case.
func JUnitDocument(name string, run *RunResult) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	suites := doc.CreateElement("testsuites")
	suites.CreateAttr("name", name)
	suites.CreateAttr("tests", strconv.Itoa(run.Passed+run.Failed))
	suites.CreateAttr("failures", strconv.Itoa(run.Failed))
	suites.CreateAttr("time", seconds(run.Elapsed.Seconds()))

	for _, cycle := range run.Cycles {
		suite := suites.CreateElement("testsuite")
		suite.CreateAttr("name", fmt.Sprintf("%s cycle %d", name, cycle.Cycle))
		suite.CreateAttr("tests", strconv.Itoa(len(cycle.Cases)))
		suite.CreateAttr("failures", strconv.Itoa(cycle.Failed))
		suite.CreateAttr("time", seconds(cycle.Elapsed.Seconds()))

		for _, cr := range cycle.Cases {
			tc := suite.CreateElement("testcase")
			tc.CreateAttr("classname", fmt.Sprintf("cycle%d", cr.Cycle))
			tc.CreateAttr("name", fmt.Sprintf("%d: %s", cr.N, firstLine(cr.Query)))
			tc.CreateAttr("time", seconds(cr.Elapsed.Seconds()))

			if cr.Passed {
				continue
			}

			failure := tc.CreateElement("failure")
			failure.CreateAttr("message", failureMessage(cr))
			failure.SetText(cr.Message)
		}
	}

	doc.Indent(2)

	return doc
}

// WriteJUnit writes the JUnit report of run to path
func WriteJUnit(path, name string, run *RunResult) error {
	if err := JUnitDocument(name, run).WriteToFile(path); err != nil {
		return fmt.Errorf("failed to write junit report: %w", err)
	}

	return nil
}

func failureMessage(cr CaseResult) string {
	if cr.Reason != "" {
		return cr.Reason
	}

	if cr.Origin == executor.OriginCommit {
		return "unexpected error at commit"
	}

	return "case failed"
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}

	return s
}

func seconds(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}
