package billing

import (
	"context"
	"time"

	"wheeltracker/pkg/db"
)

// Entitlement answers whether a user currently has the paid tier.
type Entitlement struct {
	queries   *db.UserQueries
	graceDays int
	now       func() time.Time
}

func NewEntitlement(queries *db.UserQueries, graceDays int) *Entitlement {
	return &Entitlement{queries: queries, graceDays: graceDays, now: time.Now}
}

// IsPro reports whether the user is entitled to paid features: an active or
// trialing subscription, or past_due within the grace window after the last
// paid period ended. No subscription row means free tier, not an error.
func (e *Entitlement) IsPro(ctx context.Context, userID string) (bool, error) {
	sub, err := e.queries.GetSubscription(ctx, userID)
	if err != nil {
		return false, err
	}
	if sub == nil {
		return false, nil
	}

	switch sub.Status {
	case StatusActive, StatusTrialing:
		return true, nil

	case StatusPastDue:
		if sub.CurrentPeriodEnd.IsZero() {
			return false, nil
		}
		graceEnd := sub.CurrentPeriodEnd.AddDate(0, 0, e.graceDays)
		return e.now().Before(graceEnd), nil
	}
	return false, nil
}
