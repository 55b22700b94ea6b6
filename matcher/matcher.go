// Package matcher compares execution outcomes with test case expectations.
package matcher

import (
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shibukawa/sqlcycle/executor"
	"github.com/shopspring/decimal"
)

var compareOptions = []cmp.Option{
	cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) }),
	cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) }),
}

// MatchResult reports whether actual is structurally identical to expected:
// same length, same order, same columns and values, including nulls.
// Numbers compare by value regardless of their Go type; nothing else is
// coerced. A nil actual (no result set) never equals a declared list.
func MatchResult(actual, expected []map[string]any) bool {
	if (actual == nil) != (expected == nil) {
		return false
	}

	return cmp.Equal(executor.NormalizeRows(actual), executor.NormalizeRows(expected), compareOptions...)
}

// MatchError reports whether the captured error text equals the expectation
// character for character. All coupling to engine emitted error text lives here.
func MatchError(actual, expected string) bool {
	return actual == expected
}
