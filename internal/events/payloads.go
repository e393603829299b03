// internal/events/payloads.go
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Well-known event type names emitted by the back-office services.
const (
	EventTypeCustomerCreated  = "customer.created"
	EventTypeCustomerUpdated  = "customer.updated"
	EventTypeInvoicePaid      = "billing.invoice.paid"
	EventTypeInvoiceOverdue   = "billing.invoice.overdue"
	EventTypeTicketCreated    = "ticket.created"
	EventTypeTicketResolved   = "ticket.resolved"
	EventTypeServiceSuspended = "service.suspended"
	EventTypeServiceRestored  = "service.restored"
)

// CustomerCreatedPayload announces a new customer account.
type CustomerCreatedPayload struct {
	CustomerID string    `json:"customer_id" validate:"required"`
	Email      string    `json:"email" validate:"required,email"`
	FullName   string    `json:"full_name,omitempty"`
	PlanCode   string    `json:"plan_code,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// InvoicePaidPayload announces a settled invoice.
type InvoicePaidPayload struct {
	InvoiceID     string          `json:"invoice_id" validate:"required"`
	CustomerID    string          `json:"customer_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount" validate:"dgt=0"`
	Currency      string          `json:"currency" validate:"required,len=3"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	PaidAt        time.Time       `json:"paid_at"`
}

// TicketCreatedPayload announces a new support ticket.
type TicketCreatedPayload struct {
	TicketID   string `json:"ticket_id" validate:"required"`
	CustomerID string `json:"customer_id,omitempty"`
	Subject    string `json:"subject" validate:"required"`
	Priority   string `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
}

// ServiceSuspendedPayload announces a suspended subscription.
type ServiceSuspendedPayload struct {
	CustomerID  string          `json:"customer_id" validate:"required"`
	ServiceID   string          `json:"service_id" validate:"required"`
	Reason      string          `json:"reason,omitempty"`
	Outstanding decimal.Decimal `json:"outstanding_balance"`
	SuspendedAt time.Time       `json:"suspended_at"`
}

// MarshalPayload serializes a typed payload for Emit.
func MarshalPayload(payload interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize event payload: %w", err)
	}
	return data, nil
}
