package automation

import (
	"encoding/json"
	"fmt"
	"reflect"
	"shopfloor/domain"
	"shopfloor/session"
	"strconv"
	"strings"
	"time"
)

// ExecutionContext is what a rule is evaluated against. Batch and Task are optional.
type ExecutionContext struct {
	Batch *domain.Batch
	Task  *domain.Task
	Actor *session.Session
}

// EvaluateConditions evaluates every condition, it never stops at the first failing one.
func EvaluateConditions(conditions []domain.Condition, ec ExecutionContext, now time.Time) (evaluated, met domain.ConditionResults) {
	evaluated = domain.ConditionResults{}
	met = domain.ConditionResults{}
	for _, c := range conditions {
		r := EvaluateCondition(c, ec, now)
		evaluated = append(evaluated, r)
		if r.Result {
			met = append(met, r)
		}
	}
	return evaluated, met
}

func EvaluateCondition(c domain.Condition, ec ExecutionContext, now time.Time) domain.ConditionResult {
	r := domain.ConditionResult{ConditionType: c.Type, Config: c}
	switch c.Type {
	case domain.ConditionBatchSize:
		if ec.Batch == nil {
			r.Details = "no batch in execution context"
			return r
		}
		size := len(ec.Batch.OrderItemIDs)
		ok, err := Compare(size, c.Operator, c.Value)
		if err != nil {
			r.Details = err.Error()
			return r
		}
		r.Result = ok
		r.Details = fmt.Sprintf("batch size %d %s %s: %t", size, c.Operator, formatValue(c.Value), ok)
	case domain.ConditionWorkerAvailable:
		r.Result = true
		r.Details = "worker availability is not checked, assumed available"
	case domain.ConditionTimeOfDay:
		hour := now.Hour()
		ok, err := Compare(hour, c.Operator, c.Value)
		if err != nil {
			r.Details = err.Error()
			return r
		}
		r.Result = ok
		r.Details = fmt.Sprintf("hour %d %s %s: %t", hour, c.Operator, formatValue(c.Value), ok)
	default:
		r.Result = true
		r.Details = fmt.Sprintf("unknown condition type '%s', defaulted to true", c.Type)
	}
	return r
}

// Compare applies op to actual and expected. Ordering operators need numbers, contains compares the
// string forms and between takes an inclusive [low, high] pair.
func Compare(actual interface{}, op domain.Operator, expected interface{}) (bool, error) {
	switch op {
	case domain.OpEquals:
		a, aErr := toFloat(actual)
		e, eErr := toFloat(expected)
		if aErr == nil && eErr == nil {
			return a == e, nil
		}
		return fmt.Sprint(actual) == fmt.Sprint(expected), nil
	case domain.OpGreaterThan, domain.OpLessThan, domain.OpGreaterThanOrEqual, domain.OpLessThanOrEqual:
		a, err := toFloat(actual)
		if err != nil {
			return false, err
		}
		e, err := toFloat(expected)
		if err != nil {
			return false, err
		}
		switch op {
		case domain.OpGreaterThan:
			return a > e, nil
		case domain.OpLessThan:
			return a < e, nil
		case domain.OpGreaterThanOrEqual:
			return a >= e, nil
		default:
			return a <= e, nil
		}
	case domain.OpContains:
		return strings.Contains(fmt.Sprint(actual), fmt.Sprint(expected)), nil
	case domain.OpBetween:
		low, high, err := toRange(expected)
		if err != nil {
			return false, err
		}
		a, err := toFloat(actual)
		if err != nil {
			return false, err
		}
		return a >= low && a <= high, nil
	}
	return false, fmt.Errorf("unsupported operator '%s'", op)
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("value '%s' is not a number", n)
		}
		return f, nil
	}
	return 0, fmt.Errorf("value '%v' is not a number", v)
}

func toRange(v interface{}) (float64, float64, error) {
	rv := reflect.ValueOf(v)
	if v == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) || rv.Len() != 2 {
		return 0, 0, fmt.Errorf("between expects a [low, high] pair, got %s", formatValue(v))
	}
	low, err := toFloat(rv.Index(0).Interface())
	if err != nil {
		return 0, 0, err
	}
	high, err := toFloat(rv.Index(1).Interface())
	if err != nil {
		return 0, 0, err
	}
	return low, high, nil
}

func formatValue(v interface{}) string {
	bytes, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(bytes)
}
