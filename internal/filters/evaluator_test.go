// internal/filters/evaluator_test.go
package filters

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodePayload(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	return payload
}

func rule(path string, op Operator, value string) Rule {
	return Rule{FieldPath: path, Operator: op, Value: value, IncludeOnMatch: true, Active: true}
}

func TestEvaluatorOperators(t *testing.T) {
	payload := decodePayload(t, `{
		"customer_id": "c-123",
		"plan": "fiber_100",
		"amount": 49.99,
		"region": "north",
		"tags": ["residential", "fiber"],
		"contact": {"email": "jo@example.com"},
		"lines": [{"amount": 10}, {"amount": 25}]
	}`)

	tests := []struct {
		name     string
		rule     Rule
		expected bool
	}{
		{"equals string match", rule("plan", OpEquals, "fiber_100"), true},
		{"equals string mismatch", rule("plan", OpEquals, "fiber_500"), false},
		{"equals numeric match", rule("amount", OpEquals, "49.99"), true},
		{"not_equals", rule("region", OpNotEquals, "south"), true},
		{"contains substring", rule("plan", OpContains, "fiber"), true},
		{"contains array element", rule("tags", OpContains, "residential"), true},
		{"contains array miss", rule("tags", OpContains, "business"), false},
		{"not_contains", rule("plan", OpNotContains, "cable"), true},
		{"gt true", rule("amount", OpGT, "40"), true},
		{"gt false", rule("amount", OpGT, "50"), false},
		{"gte boundary", rule("amount", OpGTE, "49.99"), true},
		{"lt true", rule("amount", OpLT, "100"), true},
		{"lte boundary", rule("amount", OpLTE, "49.99"), true},
		{"gt non-numeric field", rule("plan", OpGT, "10"), false},
		{"in match", Rule{FieldPath: "region", Operator: OpIn, Values: []string{"north", "east"}, IncludeOnMatch: true, Active: true}, true},
		{"in miss", Rule{FieldPath: "region", Operator: OpIn, Values: []string{"south", "west"}, IncludeOnMatch: true, Active: true}, false},
		{"not_in", Rule{FieldPath: "region", Operator: OpNotIn, Values: []string{"south"}, IncludeOnMatch: true, Active: true}, true},
		{"regex match", rule("contact.email", OpRegex, `@example\.com$`), true},
		{"regex miss", rule("contact.email", OpRegex, `@corp\.net$`), false},
		{"regex invalid pattern is non-match", rule("contact.email", OpRegex, `([`), false},
		{"exists nested", rule("contact.email", OpExists, ""), true},
		{"exists miss", rule("contact.phone", OpExists, ""), false},
		{"not_exists on missing field", rule("contact.phone", OpNotExists, ""), true},
		{"array index path", rule("lines.1.amount", OpEquals, "25"), true},
		{"array index out of range", rule("lines.5.amount", OpExists, ""), false},
		{"expression true", Rule{Operator: OpExpression, Value: `amount > 40 && plan == "fiber_100"`, IncludeOnMatch: true, Active: true}, true},
		{"expression false", Rule{Operator: OpExpression, Value: `amount > 100`, IncludeOnMatch: true, Active: true}, false},
		{"expression invalid source is non-match", Rule{Operator: OpExpression, Value: `amount >`, IncludeOnMatch: true, Active: true}, false},
		{"expression undefined variable is non-match", Rule{Operator: OpExpression, Value: `missing_field == "x"`, IncludeOnMatch: true, Active: true}, false},
	}

	e := NewEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Matches(payload, []Rule{tt.rule}, ConjunctionAll)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestEvaluatorMissingFieldIsNonMatch(t *testing.T) {
	payload := decodePayload(t, `{"plan": "fiber_100"}`)
	e := NewEvaluator()

	for _, op := range []Operator{OpEquals, OpContains, OpGT, OpRegex, OpIn} {
		r := Rule{FieldPath: "absent", Operator: op, Value: "anything", Values: []string{"anything"}, IncludeOnMatch: true, Active: true}
		assert.False(t, e.Matches(payload, []Rule{r}, ConjunctionAll), "operator %s", op)
	}
}

func TestEvaluatorIncludeOnMatchInversion(t *testing.T) {
	payload := decodePayload(t, `{"region": "north"}`)
	e := NewEvaluator()

	// A matching rule with IncludeOnMatch=false excludes the event.
	exclude := Rule{FieldPath: "region", Operator: OpEquals, Value: "north", IncludeOnMatch: false, Active: true}
	assert.False(t, e.Matches(payload, []Rule{exclude}, ConjunctionAll))

	// The same rule passes events it does not match.
	payload2 := decodePayload(t, `{"region": "south"}`)
	assert.True(t, e.Matches(payload2, []Rule{exclude}, ConjunctionAll))
}

func TestEvaluatorConjunctions(t *testing.T) {
	payload := decodePayload(t, `{"plan": "fiber_100", "region": "north"}`)
	e := NewEvaluator()

	matching := rule("plan", OpEquals, "fiber_100")
	failing := rule("region", OpEquals, "south")

	assert.False(t, e.Matches(payload, []Rule{matching, failing}, ConjunctionAll))
	assert.True(t, e.Matches(payload, []Rule{matching, failing}, ConjunctionAny))
	assert.False(t, e.Matches(payload, []Rule{failing}, ConjunctionAny))
	assert.True(t, e.Matches(payload, []Rule{matching, matching}, ConjunctionAll))
}

func TestEvaluatorNoActiveRulesAlwaysMatches(t *testing.T) {
	payload := decodePayload(t, `{"plan": "fiber_100"}`)
	e := NewEvaluator()

	assert.True(t, e.Matches(payload, nil, ConjunctionAll))

	inactive := Rule{FieldPath: "plan", Operator: OpEquals, Value: "nope", IncludeOnMatch: true, Active: false}
	assert.True(t, e.Matches(payload, []Rule{inactive}, ConjunctionAll))
	assert.True(t, e.Matches(payload, []Rule{inactive}, ConjunctionAny))
}

func TestExtract(t *testing.T) {
	payload := decodePayload(t, `{
		"a": {"b": {"c": 7}},
		"items": [{"id": "first"}, {"id": "second"}]
	}`)

	value, found := Extract(payload, "a.b.c")
	require.True(t, found)
	assert.Equal(t, float64(7), value)

	value, found = Extract(payload, "items.1.id")
	require.True(t, found)
	assert.Equal(t, "second", value)

	_, found = Extract(payload, "a.b.missing")
	assert.False(t, found)

	_, found = Extract(payload, "items.x.id")
	assert.False(t, found)

	_, found = Extract(payload, "")
	assert.False(t, found)

	// Descending through a scalar fails rather than panics.
	_, found = Extract(payload, "a.b.c.d")
	assert.False(t, found)
}
