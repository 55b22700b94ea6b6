package matcher

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/shibukawa/sqlcycle/executor"
	"github.com/shopspring/decimal"
)

// Sentinel errors for check expressions
var (
	ErrCheckCompile = errors.New("failed to compile check expression")
	ErrCheckEval    = errors.New("failed to evaluate check expression")
	ErrCheckType    = errors.New("check expression must evaluate to bool")
)

var checkEnv = mustCheckEnv()

func mustCheckEnv() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable("rows", cel.ListType(cel.MapType(cel.StringType, cel.DynType))),
		cel.Variable("error", cel.StringType),
		cel.Variable("success", cel.BoolType),
	)
	if err != nil {
		panic(err)
	}

	return env
}

// Check is a compiled boolean expression over an outcome. The expression
// sees rows (list of maps), error (string) and success (bool).
type Check struct {
	source  string
	program cel.Program
}

// CompileCheck parses and type-checks expr
func CompileCheck(expr string) (*Check, error) {
	ast, issues := checkEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrCheckCompile, expr, issues.Err())
	}

	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: %q has type %s", ErrCheckType, expr, ast.OutputType())
	}

	program, err := checkEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrCheckCompile, expr, err)
	}

	return &Check{source: expr, program: program}, nil
}

func (c *Check) String() string {
	return c.source
}

// Eval evaluates the check against an outcome
func (c *Check) Eval(outcome *executor.Outcome) (bool, error) {
	rows := make([]any, 0, len(outcome.Rows))
	for _, row := range outcome.Rows {
		rows = append(rows, celValue(row))
	}

	val, _, err := c.program.Eval(map[string]any{
		"rows":    rows,
		"error":   outcome.ErrorText,
		"success": outcome.Success,
	})
	if err != nil {
		return false, fmt.Errorf("%w: %q: %w", ErrCheckEval, c.source, err)
	}

	result, ok := val.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q returned %T", ErrCheckType, c.source, val.Value())
	}

	return result, nil
}

// celValue converts normalized values to types the CEL adapter understands.
// Integral decimals become int64, others float64.
func celValue(v any) any {
	switch value := v.(type) {
	case decimal.Decimal:
		if value.IsInteger() && value.Cmp(decimal.NewFromInt(value.IntPart())) == 0 {
			return value.IntPart()
		}

		f, _ := value.Float64()

		return f
	case []any:
		out := make([]any, len(value))
		for i, e := range value {
			out[i] = celValue(e)
		}

		return out
	case map[string]any:
		out := make(map[string]any, len(value))
		for k, e := range value {
			out[k] = celValue(e)
		}

		return out
	default:
		return v
	}
}
