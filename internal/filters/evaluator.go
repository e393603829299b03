// internal/filters/evaluator.go
package filters

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Evaluator decides whether an event payload should produce a delivery for
// an endpoint. Compiled regexes and expressions are cached across
// evaluations since rule sets are small and change rarely.
type Evaluator struct {
	regexCache sync.Map // pattern -> *regexp.Regexp
	exprCache  sync.Map // source -> *vm.Program
}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Matches combines all active rules for one endpoint. With no active rules
// the event always matches. IncludeOnMatch=false inverts a rule's
// contribution: a raw match means "exclude this event".
func (e *Evaluator) Matches(payload map[string]interface{}, rules []Rule, conjunction Conjunction) bool {
	active := 0
	anyIncluded := false

	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		active++

		matched := e.evalRule(payload, rule)
		include := matched == rule.IncludeOnMatch

		if conjunction == ConjunctionAll && !include {
			return false
		}
		if include {
			anyIncluded = true
		}
	}

	if active == 0 {
		return true
	}
	if conjunction == ConjunctionAny {
		return anyIncluded
	}
	return true
}

// evalRule returns the raw match outcome, before the include/exclude flag
// is applied. A missing field is a non-match for every operator except
// not_exists.
func (e *Evaluator) evalRule(payload map[string]interface{}, rule Rule) bool {
	if rule.Operator == OpExpression {
		return e.evalExpression(payload, rule.Value)
	}

	value, found := Extract(payload, rule.FieldPath)

	switch rule.Operator {
	case OpExists:
		return found
	case OpNotExists:
		return !found
	}

	if !found {
		return false
	}

	switch rule.Operator {
	case OpEquals:
		return valueEquals(value, rule.Value)
	case OpNotEquals:
		return !valueEquals(value, rule.Value)
	case OpContains:
		return valueContains(value, rule.Value)
	case OpNotContains:
		return !valueContains(value, rule.Value)
	case OpGT, OpGTE, OpLT, OpLTE:
		return compareNumeric(value, rule.Value, rule.Operator)
	case OpIn:
		return valueIn(value, rule.Values)
	case OpNotIn:
		return !valueIn(value, rule.Values)
	case OpRegex:
		return e.matchRegex(value, rule.Value)
	default:
		return false
	}
}

// Extract resolves a dot path into a decoded JSON payload. Numeric path
// segments index into arrays, so "lines.0.amount" works.
func Extract(payload map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}

	var current interface{} = payload
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]interface{}:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = value
		case []interface{}:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return nil, false
			}
			current = node[index]
		default:
			return nil, false
		}
	}
	return current, true
}

func (e *Evaluator) matchRegex(value interface{}, pattern string) bool {
	cached, ok := e.regexCache.Load(pattern)
	if !ok {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		cached, _ = e.regexCache.LoadOrStore(pattern, compiled)
	}
	return cached.(*regexp.Regexp).MatchString(stringify(value))
}

func (e *Evaluator) evalExpression(payload map[string]interface{}, source string) bool {
	cached, ok := e.exprCache.Load(source)
	if !ok {
		program, err := expr.Compile(source, expr.AllowUndefinedVariables(), expr.AsBool())
		if err != nil {
			return false
		}
		cached, _ = e.exprCache.LoadOrStore(source, program)
	}

	result, err := expr.Run(cached.(*vm.Program), payload)
	if err != nil {
		return false
	}
	matched, ok := result.(bool)
	return ok && matched
}

func valueEquals(value interface{}, expected string) bool {
	if left, right, ok := bothNumeric(value, expected); ok {
		return left == right
	}
	return stringify(value) == expected
}

func valueContains(value interface{}, needle string) bool {
	switch v := value.(type) {
	case string:
		return strings.Contains(v, needle)
	case []interface{}:
		for _, item := range v {
			if stringify(item) == needle {
				return true
			}
		}
		return false
	default:
		return strings.Contains(stringify(value), needle)
	}
}

func valueIn(value interface{}, values []string) bool {
	str := stringify(value)
	for _, candidate := range values {
		if str == candidate {
			return true
		}
	}
	return false
}

func compareNumeric(value interface{}, expected string, op Operator) bool {
	left, right, ok := bothNumeric(value, expected)
	if !ok {
		return false
	}
	switch op {
	case OpGT:
		return left > right
	case OpGTE:
		return left >= right
	case OpLT:
		return left < right
	case OpLTE:
		return left <= right
	}
	return false
}

func bothNumeric(value interface{}, expected string) (float64, float64, bool) {
	right, err := strconv.ParseFloat(expected, 64)
	if err != nil {
		return 0, 0, false
	}
	switch v := value.(type) {
	case float64:
		return v, right, true
	case int:
		return float64(v), right, true
	case int64:
		return float64(v), right, true
	case string:
		left, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, 0, false
		}
		return left, right, true
	default:
		return 0, 0, false
	}
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
