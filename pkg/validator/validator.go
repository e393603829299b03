// pkg/validator/validator.go
package validator

import (
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
	dv "github.com/sblackstone/shopspring-decimal-validators"
)

var (
	validate *validator.Validate
	once     sync.Once
)

// Event type names look like "customer.created" or "billing.invoice.paid".
var eventTypeNameRegex = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_]+)+$`)

// GetValidator returns a singleton validator instance with all custom rules registered
func GetValidator() *validator.Validate {
	once.Do(func() {
		v := validator.New()

		// Register shopspring decimal validations (used by typed event payloads)
		dv.RegisterDecimalValidators(v)

		_ = v.RegisterValidation("event_type_name", func(fl validator.FieldLevel) bool {
			return eventTypeNameRegex.MatchString(fl.Field().String())
		})

		validate = v
	})
	return validate
}
