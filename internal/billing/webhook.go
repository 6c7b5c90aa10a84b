package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"wheeltracker/internal/events"
	"wheeltracker/pkg/db"
)

// ErrBadPayload marks a webhook body the processor could not parse. The
// handler maps it to a 400 so the provider does not retry garbage forever.
var ErrBadPayload = errors.New("unparseable webhook payload")

// Processor consumes provider webhook events and keeps the subscriptions
// table in sync. Every event id passes through the idempotency ledger first;
// replays are acknowledged without re-applying.
type Processor struct {
	queries *db.UserQueries
	bus     *events.Bus
	log     zerolog.Logger
}

func NewProcessor(queries *db.UserQueries, bus *events.Bus, log zerolog.Logger) *Processor {
	return &Processor{queries: queries, bus: bus, log: log.With().Str("component", "billing").Logger()}
}

// Process handles one raw webhook body. Returns (duplicate, err): duplicate
// is true when the event id was already in the ledger. Unknown event types
// are recorded and acknowledged without state changes.
func (p *Processor) Process(ctx context.Context, body []byte) (bool, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil || env.ID == "" || env.Type == "" {
		return false, ErrBadPayload
	}

	err := p.queries.RecordWebhookEvent(ctx, db.WebhookEvent{
		ID:        env.ID,
		EventType: env.Type,
		Payload:   string(body),
	})
	if errors.Is(err, db.ErrDuplicateEvent) {
		p.log.Info().Str("event_id", env.ID).Str("type", env.Type).Msg("duplicate webhook event, skipping")
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if err := p.apply(ctx, env); err != nil {
		// Release the ledger entry so the provider's retry is applied
		// instead of being acknowledged as a duplicate.
		if delErr := p.queries.DeleteWebhookEvent(ctx, env.ID); delErr != nil {
			p.log.Error().Err(delErr).Str("event_id", env.ID).Msg("could not release webhook event after failed sync")
		}
		return false, err
	}

	if err := p.queries.MarkWebhookProcessed(ctx, env.ID, time.Now().UTC()); err != nil {
		return false, err
	}

	p.log.Info().Str("event_id", env.ID).Str("type", env.Type).Msg("webhook event processed")
	return false, nil
}

func (p *Processor) apply(ctx context.Context, env Envelope) error {
	switch env.Type {
	case EventCheckoutCompleted:
		return p.applyCheckout(ctx, env)

	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return p.applySubscription(ctx, env, "")

	case EventSubscriptionDeleted:
		return p.applySubscription(ctx, env, StatusCanceled)

	case EventInvoicePaid:
		return p.applyInvoice(ctx, env, StatusActive)

	case EventInvoicePaymentFailed:
		return p.applyInvoice(ctx, env, StatusPastDue)

	default:
		p.log.Debug().Str("type", env.Type).Msg("ignoring unhandled webhook event type")
		return nil
	}
}

// applyCheckout establishes the user-to-customer mapping. The checkout link
// carries our user id as the client reference, so this is the only event
// that can create the subscription row.
func (p *Processor) applyCheckout(ctx context.Context, env Envelope) error {
	var sess CheckoutSession
	if err := json.Unmarshal(env.Data.Object, &sess); err != nil {
		return ErrBadPayload
	}
	if sess.ClientReferenceID == "" {
		p.log.Warn().Str("event_id", env.ID).Msg("checkout session without client reference, cannot map user")
		return nil
	}

	err := p.queries.UpsertSubscription(ctx, db.Subscription{
		UserID:         sess.ClientReferenceID,
		CustomerID:     sess.Customer,
		SubscriptionID: sess.Subscription,
		Plan:           "pro",
		Status:         StatusActive,
	})
	if err != nil {
		return fmt.Errorf("sync checkout session: %w", err)
	}

	p.publish(sess.ClientReferenceID, StatusActive)
	return nil
}

func (p *Processor) applySubscription(ctx context.Context, env Envelope, statusOverride string) error {
	var sub SubscriptionObject
	if err := json.Unmarshal(env.Data.Object, &sub); err != nil {
		return ErrBadPayload
	}

	userID, err := p.queries.FindUserByCustomerID(ctx, sub.Customer)
	if errors.Is(err, db.ErrNotFound) {
		// Checkout hasn't landed yet; the provider will retry the next
		// subscription update after it does.
		p.log.Warn().Str("customer_id", sub.Customer).Str("event_id", env.ID).Msg("subscription event for unknown customer")
		return nil
	}
	if err != nil {
		return err
	}

	status := sub.Status
	if statusOverride != "" {
		status = statusOverride
	}

	record := db.Subscription{
		UserID:            userID,
		CustomerID:        sub.Customer,
		SubscriptionID:    sub.ID,
		Plan:              sub.PlanName(),
		Status:            status,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.CurrentPeriodEnd > 0 {
		record.CurrentPeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}
	if err := p.queries.UpsertSubscription(ctx, record); err != nil {
		return fmt.Errorf("sync subscription state: %w", err)
	}

	p.publish(userID, status)
	return nil
}

func (p *Processor) applyInvoice(ctx context.Context, env Envelope, status string) error {
	var inv InvoiceObject
	if err := json.Unmarshal(env.Data.Object, &inv); err != nil {
		return ErrBadPayload
	}

	userID, err := p.queries.FindUserByCustomerID(ctx, inv.Customer)
	if errors.Is(err, db.ErrNotFound) {
		p.log.Warn().Str("customer_id", inv.Customer).Str("event_id", env.ID).Msg("invoice event for unknown customer")
		return nil
	}
	if err != nil {
		return err
	}

	plan := "pro"
	if existing, err := p.queries.GetSubscription(ctx, userID); err == nil && existing != nil && existing.Plan != "" {
		plan = existing.Plan
	}

	record := db.Subscription{
		UserID:         userID,
		CustomerID:     inv.Customer,
		SubscriptionID: inv.Subscription,
		Plan:           plan,
		Status:         status,
	}
	if status == StatusActive && inv.PeriodEnd > 0 {
		record.CurrentPeriodEnd = time.Unix(inv.PeriodEnd, 0).UTC()
	}
	if err := p.queries.UpsertSubscription(ctx, record); err != nil {
		return fmt.Errorf("sync invoice state: %w", err)
	}

	p.publish(userID, status)
	return nil
}

func (p *Processor) publish(userID, status string) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(events.EventSubscriptionUpdated, map[string]string{
		"user_id": userID,
		"status":  status,
	})
}
