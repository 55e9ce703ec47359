package emulator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Expression is a simple predicate (field op value) over top-level payload fields.
type Expression struct {
	Field string
	Op    string // "eq", "neq", "gt", "gte", "lt", "lte"
	Value any
}

var validOps = map[string]bool{"eq": true, "neq": true, "gt": true, "gte": true, "lt": true, "lte": true}

// ParseExpression parses "field op value". The value is read as JSON when it
// parses, otherwise as a bare string.
func ParseExpression(s string) (Expression, error) {
	fields := strings.SplitN(strings.TrimSpace(s), " ", 3)
	if len(fields) != 3 {
		return Expression{}, fmt.Errorf("expression %q: want \"field op value\"", s)
	}
	expr := Expression{Field: fields[0], Op: fields[1]}
	if !validOps[expr.Op] {
		return Expression{}, fmt.Errorf("expression %q: unknown operator %q", s, expr.Op)
	}
	if err := json.Unmarshal([]byte(fields[2]), &expr.Value); err != nil {
		expr.Value = fields[2]
	}
	return expr, nil
}

// IsZero reports whether the expression matches everything.
func (e Expression) IsZero() bool { return e.Field == "" }

// Matches evaluates the expression against a JSON object payload.
func (e Expression) Matches(payload json.RawMessage) bool {
	if e.IsZero() {
		return true
	}
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return false
	}
	val, ok := doc[e.Field]
	if !ok {
		return e.Op == "neq"
	}
	cmp := compareValues(val, e.Value)
	switch e.Op {
	case "eq":
		return cmp == 0
	case "neq":
		return cmp != 0
	case "gt":
		return cmp > 0
	case "gte":
		return cmp >= 0
	case "lt":
		return cmp < 0
	case "lte":
		return cmp <= 0
	default:
		return false
	}
}

func (e Expression) String() string {
	if e.IsZero() {
		return "true"
	}
	v, _ := json.Marshal(e.Value)
	return fmt.Sprintf("%s %s %s", e.Field, e.Op, v)
}

func compareValues(a, b any) int {
	fa, oka := toFloat(a)
	fb, okb := toFloat(b)
	if oka && okb {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	sa, oka := a.(string)
	sb, okb := b.(string)
	if oka && okb {
		return strings.Compare(sa, sb)
	}
	ba, oka := a.(bool)
	bb, okb := b.(bool)
	if oka && okb {
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	}
	if a == nil && b == nil {
		return 0
	}
	// Mismatched types never compare equal.
	return 1
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
