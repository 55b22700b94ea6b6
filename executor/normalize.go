package executor

import (
	"math"
	"math/big"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Normalize converts a decoded column value, or a value read from an
// expectation, to the canonical form used for comparison:
//
//   - every finite number becomes a decimal.Decimal
//   - UUIDs and byte strings become strings
//   - arrays become []any and objects become map[string]any, recursively
//
// nil stays nil.
func Normalize(v any) any {
	switch value := v.(type) {
	case nil:
		return nil
	case string, bool, decimal.Decimal:
		return value
	case int:
		return decimal.NewFromInt(int64(value))
	case int8:
		return decimal.NewFromInt(int64(value))
	case int16:
		return decimal.NewFromInt(int64(value))
	case int32:
		return decimal.NewFromInt(int64(value))
	case int64:
		return decimal.NewFromInt(value)
	case uint:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(value)), 0)
	case uint8:
		return decimal.NewFromInt(int64(value))
	case uint16:
		return decimal.NewFromInt(int64(value))
	case uint32:
		return decimal.NewFromInt(int64(value))
	case uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(value), 0)
	case float32:
		if math.IsNaN(float64(value)) || math.IsInf(float64(value), 0) {
			return float64(value)
		}

		return decimal.NewFromFloat32(value)
	case float64:
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return value
		}

		return decimal.NewFromFloat(value)
	case pgtype.Numeric:
		return normalizeNumeric(value)
	case [16]byte:
		return uuid.UUID(value).String()
	case uuid.UUID:
		return value.String()
	case []byte:
		return string(value)
	case time.Time:
		return value
	case []any:
		out := make([]any, len(value))
		for i, e := range value {
			out[i] = Normalize(e)
		}

		return out
	case map[string]any:
		out := make(map[string]any, len(value))
		for k, e := range value {
			out[k] = Normalize(e)
		}

		return out
	}

	return normalizeReflect(v)
}

func normalizeNumeric(n pgtype.Numeric) any {
	switch {
	case !n.Valid:
		return nil
	case n.NaN:
		return "NaN"
	case n.InfinityModifier == pgtype.Infinity:
		return "Infinity"
	case n.InfinityModifier == pgtype.NegativeInfinity:
		return "-Infinity"
	}

	return decimal.NewFromBigInt(n.Int, n.Exp)
}

// normalizeReflect handles typed slices and maps that YAML or a codec may produce
func normalizeReflect(v any) any {
	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}

		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}

		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()

		for iter.Next() {
			out[iter.Key().String()] = Normalize(iter.Value().Interface())
		}

		return out
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}

		return Normalize(rv.Elem().Interface())
	default:
		return v
	}
}

// NormalizeRows normalizes every value of every row. nil (no result set) is
// kept distinct from an empty row list.
func NormalizeRows(rows []map[string]any) []map[string]any {
	if rows == nil {
		return nil
	}

	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		m := make(map[string]any, len(row))
		for k, v := range row {
			m[k] = Normalize(v)
		}

		out[i] = m
	}

	return out
}
