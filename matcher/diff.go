package matcher

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"
	"github.com/shibukawa/sqlcycle/executor"
	"github.com/shopspring/decimal"
)

var (
	legendExpectedFmt = color.New(color.FgGreen).SprintFunc()
	legendActualFmt   = color.New(color.FgRed).SprintFunc()
	rowLabelFmt       = color.New(color.FgBlue, color.Bold).SprintfFunc()
	expectPrefixFmt   = color.New(color.BgGreen, color.FgBlack).SprintFunc()
	actualPrefixFmt   = color.New(color.BgRed, color.FgBlack).SprintFunc()
	expectFieldFmt    = color.New(color.FgGreen).SprintfFunc()
	actualFieldFmt    = color.New(color.FgRed).SprintfFunc()
)

// FormatResultDiff renders the differences between expected and actual rows,
// row by row. It returns "" when they match.
func FormatResultDiff(actual, expected []map[string]any) string {
	if MatchResult(actual, expected) {
		return ""
	}

	actual = executor.NormalizeRows(actual)
	expected = executor.NormalizeRows(expected)

	var b strings.Builder

	b.WriteString(legendExpectedFmt("+ Expected\n"))
	b.WriteString(legendActualFmt("- Actual\n"))

	if actual == nil {
		b.WriteString(actualFieldFmt("- (no result set)\n"))
	}

	if len(actual) != len(expected) {
		b.WriteString(expectFieldFmt("+ rows: %d\n", len(expected)))
		b.WriteString(actualFieldFmt("- rows: %d\n", len(actual)))
	}

	for i := 0; i < max(len(actual), len(expected)); i++ {
		switch {
		case i >= len(actual):
			b.WriteString(rowLabelFmt("row #%d [missing]\n", i+1))
			writeFieldLine(&b, expectPrefixFmt("+"), expectFieldFmt, expected[i])
		case i >= len(expected):
			b.WriteString(rowLabelFmt("row #%d [unexpected]\n", i+1))
			writeFieldLine(&b, actualPrefixFmt("-"), actualFieldFmt, actual[i])
		case !cmp.Equal(actual[i], expected[i], compareOptions...):
			b.WriteString(rowLabelFmt("row #%d [mismatch]\n", i+1))
			writeFieldLine(&b, expectPrefixFmt("+"), expectFieldFmt, expected[i])
			writeFieldLine(&b, actualPrefixFmt("-"), actualFieldFmt, actual[i])
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// FormatErrorDiff renders an error text mismatch
func FormatErrorDiff(actual, expected string) string {
	if MatchError(actual, expected) {
		return ""
	}

	var b strings.Builder

	b.WriteString(legendExpectedFmt("+ Expected\n"))
	b.WriteString(legendActualFmt("- Actual\n"))

	for _, line := range strings.Split(expected, "\n") {
		b.WriteString(expectPrefixFmt("+") + " " + expectFieldFmt("%s", line) + "\n")
	}

	if actual == "" {
		b.WriteString(actualPrefixFmt("-") + " " + actualFieldFmt("(no error)") + "\n")
	} else {
		for _, line := range strings.Split(actual, "\n") {
			b.WriteString(actualPrefixFmt("-") + " " + actualFieldFmt("%s", line) + "\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func writeFieldLine(b *strings.Builder, prefix string, field func(string, ...any) string, row map[string]any) {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	fields := make([]string, len(keys))
	for i, k := range keys {
		fields[i] = field("%s: %s", k, formatDiffScalar(row[k]))
	}

	b.WriteString(prefix)
	b.WriteString(" ")
	b.WriteString(strings.Join(fields, ", "))
	b.WriteString("\n")
}

func formatDiffScalar(v any) string {
	switch value := v.(type) {
	case nil:
		return "<nil>"
	case decimal.Decimal:
		return value.String()
	case string:
		return fmt.Sprintf("%q", value)
	default:
		return fmt.Sprintf("%v", value)
	}
}
