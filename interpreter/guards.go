package interpreter

import (
	"strconv"
	"strings"

	"github.com/comalice/machinestore/chart"
)

// DefaultGuardEvaluator evaluates inline guards. Unresolved names fail closed.
type DefaultGuardEvaluator struct{}

// Eval evaluates a guard condition.
func (e *DefaultGuardEvaluator) Eval(ctx *chart.Context, guard chart.GuardRef, event chart.Event) bool {
	switch g := guard.(type) {
	case nil:
		return true
	case chart.GuardFunc:
		return g(ctx, event)
	case func(*chart.Context, chart.Event) bool:
		return g(ctx, event)
	default:
		return false
	}
}

// ExpressionGuardEvaluator evaluates simple string expressions like
// "temp > 30" or "loggedIn == true" against the context. Non-string guards
// are delegated to DefaultGuardEvaluator.
type ExpressionGuardEvaluator struct {
	fallback DefaultGuardEvaluator
}

// NewExpressionGuardEvaluator creates a new ExpressionGuardEvaluator.
func NewExpressionGuardEvaluator() *ExpressionGuardEvaluator {
	return &ExpressionGuardEvaluator{}
}

// Eval parses and evaluates "key op value" expressions.
// Supported operators: == != > >= < <=.
func (e *ExpressionGuardEvaluator) Eval(ctx *chart.Context, guard chart.GuardRef, event chart.Event) bool {
	str, ok := guard.(string)
	if !ok {
		return e.fallback.Eval(ctx, guard, event)
	}
	parts := strings.Fields(str)
	if len(parts) != 3 {
		return false
	}
	key, op, valStr := parts[0], parts[1], parts[2]

	v, hasKey := ctx.Get(key)
	if !hasKey {
		return false
	}

	switch op {
	case "==":
		return equalsLiteral(v, valStr)
	case "!=":
		return !equalsLiteral(v, valStr)
	case ">", ">=", "<", "<=":
		want, err := strconv.ParseFloat(valStr, 64)
		if err != nil {
			return false
		}
		got, ok := toFloat(v)
		if !ok {
			return false
		}
		switch op {
		case ">":
			return got > want
		case ">=":
			return got >= want
		case "<":
			return got < want
		default:
			return got <= want
		}
	default:
		return false
	}
}

func equalsLiteral(v any, lit string) bool {
	switch lit {
	case "true":
		return v == true
	case "false":
		return v == false
	case "nil":
		return v == nil
	}
	if want, err := strconv.ParseFloat(lit, 64); err == nil {
		if got, ok := toFloat(v); ok {
			return got == want
		}
	}
	if s, ok := v.(string); ok {
		return s == strings.Trim(lit, `"'`)
	}
	return false
}

// toFloat converts the numeric types produced by Go code and by YAML/JSON
// decoding.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
