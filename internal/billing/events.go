// Package billing syncs subscription state from the payment provider's
// webhook events and answers entitlement checks for the paid tier.
package billing

import "encoding/json"

// Webhook event types the processor acts on. Anything else is acknowledged
// and ignored so the provider stops retrying.
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventSubscriptionCreated  = "customer.subscription.created"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventInvoicePaid          = "invoice.paid"
	EventInvoicePaymentFailed = "invoice.payment_failed"
)

// Subscription statuses as the provider reports them.
const (
	StatusActive   = "active"
	StatusTrialing = "trialing"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
)

// Envelope is the outer webhook payload.
type Envelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// CheckoutSession is the object inside checkout.session.completed. The
// checkout link carries our user id as the client reference.
type CheckoutSession struct {
	ID                string `json:"id"`
	ClientReferenceID string `json:"client_reference_id"`
	Customer          string `json:"customer"`
	Subscription      string `json:"subscription"`
}

// SubscriptionObject is the object inside customer.subscription.* events.
type SubscriptionObject struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	Plan              struct {
		Nickname string `json:"nickname"`
	} `json:"plan"`
	Metadata map[string]string `json:"metadata"`
}

// InvoiceObject is the object inside invoice.* events.
type InvoiceObject struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	PeriodEnd    int64  `json:"period_end"`
	Paid         bool   `json:"paid"`
}

// PlanName extracts a human plan label, falling back to "pro".
func (s SubscriptionObject) PlanName() string {
	if s.Plan.Nickname != "" {
		return s.Plan.Nickname
	}
	if p, ok := s.Metadata["plan"]; ok && p != "" {
		return p
	}
	return "pro"
}
