// internal/filters/types.go
package filters

import (
	"time"

	"github.com/google/uuid"
)

// Operator identifies how a rule compares the extracted payload value.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpGT          Operator = "gt"
	OpGTE         Operator = "gte"
	OpLT          Operator = "lt"
	OpLTE         Operator = "lte"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpRegex       Operator = "regex"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "not_exists"
	// OpExpression evaluates Value as a boolean expr-lang expression with
	// the event payload bound as the environment.
	OpExpression Operator = "expression"
)

// Conjunction controls how multiple rules on one endpoint combine.
type Conjunction string

const (
	ConjunctionAll Conjunction = "all"
	ConjunctionAny Conjunction = "any"
)

// Rule is one per-endpoint predicate over the event payload.
type Rule struct {
	ID             uuid.UUID `json:"id"`
	EndpointID     uuid.UUID `json:"endpoint_id"`
	FieldPath      string    `json:"field_path"`
	Operator       Operator  `json:"operator"`
	Value          string    `json:"value,omitempty"`
	Values         []string  `json:"values,omitempty"`
	IncludeOnMatch bool      `json:"include_on_match"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

// ValidOperators lists every supported operator, for request validation.
var ValidOperators = []Operator{
	OpEquals, OpNotEquals, OpContains, OpNotContains,
	OpGT, OpGTE, OpLT, OpLTE,
	OpIn, OpNotIn, OpRegex, OpExists, OpNotExists, OpExpression,
}

func IsValidOperator(op Operator) bool {
	for _, valid := range ValidOperators {
		if op == valid {
			return true
		}
	}
	return false
}
