// internal/rules/coercion.go
package rules

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/leadworks/qualifier/internal/types"
)

/*
 * Value coercion for rule compilation and evaluation.
 *
 * Converts JSON-decoded values into the canonical comparison form for each
 * declared value type: string, float64, bool, time.Time. Both the
 * condition's authored comparison value (at compile time) and the record's
 * runtime values (at evaluation time) pass through the same functions, so
 * validation and evaluation cannot disagree on what a type accepts.
 *
 * Strictness: equality is strict type-matched comparison per value type.
 * The only cross-representation leniency is for dates, which arrive as
 * RFC 3339 strings, date-only strings, epoch seconds, or time.Time
 * depending on the producer.
 */

// errCoercion marks a value that cannot be represented in the declared type.
var errCoercion = errors.New("value does not match declared type")

// coerceValue converts v to the canonical form for vt.
// nil is rejected; absence is handled by the existence operators upstream.
func coerceValue(v any, vt types.ValueType) (any, error) {
	if v == nil {
		return nil, errCoercion
	}
	switch vt {
	case types.ValueString:
		s, ok := v.(string)
		if !ok {
			return nil, errCoercion
		}
		return s, nil
	case types.ValueNumber:
		return coerceNumber(v)
	case types.ValueBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, errCoercion
		}
		return b, nil
	case types.ValueDate:
		return coerceDate(v)
	default:
		return nil, errCoercion
	}
}

// coerceNumber accepts the numeric shapes JSON decoding produces.
// Strings are not numbers; "42" equals nothing in a number field.
func coerceNumber(v any) (any, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, errCoercion
		}
		return f, nil
	default:
		return nil, errCoercion
	}
}

// coerceDate accepts time.Time, RFC 3339 strings, date-only strings, and
// epoch seconds.
func coerceDate(v any) (any, error) {
	switch d := v.(type) {
	case time.Time:
		return d, nil
	case string:
		if t, err := time.Parse(time.RFC3339, d); err == nil {
			return t, nil
		}
		if t, err := time.Parse("2006-01-02", d); err == nil {
			return t, nil
		}
		return nil, errCoercion
	case float64:
		return time.Unix(int64(d), 0).UTC(), nil
	case int64:
		return time.Unix(d, 0).UTC(), nil
	case int:
		return time.Unix(int64(d), 0).UTC(), nil
	default:
		return nil, errCoercion
	}
}
