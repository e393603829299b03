// internal/events/payloads_test.go
package events

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cV "github.com/ispnexus/webhook-service/pkg/validator"
)

func TestInvoicePaidPayloadValidation(t *testing.T) {
	v := cV.GetValidator()

	valid := InvoicePaidPayload{
		InvoiceID:  "inv-1001",
		CustomerID: "c-42",
		Amount:     decimal.NewFromFloat(49.99),
		Currency:   "EUR",
		PaidAt:     time.Now(),
	}
	assert.NoError(t, v.Struct(valid))

	zeroAmount := valid
	zeroAmount.Amount = decimal.Zero
	assert.Error(t, v.Struct(zeroAmount), "amount must be strictly positive")

	badCurrency := valid
	badCurrency.Currency = "EURO"
	assert.Error(t, v.Struct(badCurrency))
}

func TestMarshalPayloadRoundTrip(t *testing.T) {
	raw, err := MarshalPayload(TicketCreatedPayload{
		TicketID: "t-7",
		Subject:  "no sync on line",
		Priority: "high",
	})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"ticket_id":"t-7"`)
}
