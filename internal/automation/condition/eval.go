package condition

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

func eval(n node, env Env) (any, error) {
	switch n := n.(type) {
	case literalNode:
		return n.value, nil
	case fieldNode:
		v, ok := env.Resolve(n.name, n.path)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, n)
		}
		return normalize(v), nil
	case notNode:
		v, err := eval(n.x, env)
		if err != nil {
			return nil, err
		}
		b, ok := v.(bool)
		if !ok {
			return nil, typeError("!", v)
		}
		return !b, nil
	case logicalNode:
		return evalLogical(n, env)
	case compareNode:
		left, err := eval(n.left, env)
		if err != nil {
			return nil, err
		}
		right, err := eval(n.right, env)
		if err != nil {
			return nil, err
		}
		return compare(n.op, left, right)
	}
	return nil, fmt.Errorf("%w: unknown node %T", ErrTypeMismatch, n)
}

func evalLogical(n logicalNode, env Env) (any, error) {
	left, err := eval(n.left, env)
	if err != nil {
		return nil, err
	}
	lb, ok := left.(bool)
	if !ok {
		return nil, typeError(n.op.String(), left)
	}
	if n.op == tokAnd && !lb {
		return false, nil
	}
	if n.op == tokOr && lb {
		return true, nil
	}
	right, err := eval(n.right, env)
	if err != nil {
		return nil, err
	}
	rb, ok := right.(bool)
	if !ok {
		return nil, typeError(n.op.String(), right)
	}
	return rb, nil
}

func compare(op tokenKind, left, right any) (bool, error) {
	switch op {
	case tokEq:
		return equal(left, right)
	case tokNeq:
		eq, err := equal(left, right)
		return !eq, err
	}

	if l, r, ok := numericPair(left, right); ok {
		switch op {
		case tokLt:
			return l < r, nil
		case tokLte:
			return l <= r, nil
		case tokGt:
			return l > r, nil
		case tokGte:
			return l >= r, nil
		}
	}
	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		c := strings.Compare(ls, rs)
		switch op {
		case tokLt:
			return c < 0, nil
		case tokLte:
			return c <= 0, nil
		case tokGt:
			return c > 0, nil
		case tokGte:
			return c >= 0, nil
		}
	}
	return false, fmt.Errorf("%w: cannot order %T and %T", ErrTypeMismatch, left, right)
}

func equal(left, right any) (bool, error) {
	if left == nil || right == nil {
		return left == nil && right == nil, nil
	}
	if l, r, ok := numericPair(left, right); ok {
		return l == r, nil
	}
	switch l := left.(type) {
	case string:
		r, ok := right.(string)
		return ok && l == r, nil
	case bool:
		r, ok := right.(bool)
		return ok && l == r, nil
	case float64:
		return false, nil
	}
	return false, fmt.Errorf("%w: cannot compare %T", ErrTypeMismatch, left)
}

// numericPair succeeds when both sides are numbers, or one is a number and
// the other a string holding one.
func numericPair(left, right any) (float64, float64, bool) {
	l, lnum := left.(float64)
	r, rnum := right.(float64)
	switch {
	case lnum && rnum:
		return l, r, true
	case lnum:
		if s, ok := right.(string); ok {
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return l, parsed, true
			}
		}
	case rnum:
		if s, ok := left.(string); ok {
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return parsed, r, true
			}
		}
	}
	return 0, 0, false
}

func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case string, bool, float64, nil:
		return v
	case fmt.Stringer:
		return n.String()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return v
}

func typeError(op string, v any) error {
	return fmt.Errorf("%w: %s needs a boolean, got %T", ErrTypeMismatch, op, v)
}
