// Package db provides user-isolated database queries for the tracker.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	ErrUserIDRequired = errors.New("user_id is required for data isolation")
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEvent = errors.New("webhook event already recorded")
)

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// UserQueries provides user-isolated database queries.
type UserQueries struct {
	db *sql.DB
}

// NewUserQueries creates a new UserQueries instance.
func NewUserQueries(db *sql.DB) *UserQueries {
	return &UserQueries{db: db}
}

// ----------------------------------------
// Option trade queries
// ----------------------------------------

// ListOptionTrades returns a user's option journal in trade-date order.
func (q *UserQueries) ListOptionTrades(ctx context.Context, userID string) ([]OptionTrade, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, position_id, trade_date, action, symbol, option_type,
		       strike, expiry, contracts, COALESCE(premium, 0), COALESCE(stock_price, 0),
		       COALESCE(commission, 0), COALESCE(notes, ''), created_at
		FROM option_trades
		WHERE user_id = ?
		ORDER BY trade_date ASC, created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query option trades: %w", err)
	}
	defer rows.Close()

	var trades []OptionTrade
	for rows.Next() {
		var t OptionTrade
		if err := rows.Scan(&t.ID, &t.UserID, &t.PositionID, &t.TradeDate, &t.Action, &t.Symbol,
			&t.OptionType, &t.Strike, &t.Expiry, &t.Contracts, &t.Premium, &t.StockPrice,
			&t.Commission, &t.Notes, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan option trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// CreateOptionTrade inserts a new option journal row.
func (q *UserQueries) CreateOptionTrade(ctx context.Context, t OptionTrade) error {
	if t.UserID == "" {
		return ErrUserIDRequired
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO option_trades (
			id, user_id, position_id, trade_date, action, symbol, option_type,
			strike, expiry, contracts, premium, stock_price, commission, notes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`, t.ID, t.UserID, t.PositionID, t.TradeDate, t.Action, t.Symbol, t.OptionType,
		t.Strike, t.Expiry, t.Contracts, t.Premium, t.StockPrice, t.Commission, t.Notes, t.CreatedAt)
	return err
}

// DeleteOptionTrade removes a journal row, verifying user ownership.
func (q *UserQueries) DeleteOptionTrade(ctx context.Context, userID, id string) error {
	if userID == "" {
		return ErrUserIDRequired
	}

	res, err := q.db.ExecContext(ctx,
		`DELETE FROM option_trades WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ----------------------------------------
// Stock trade queries
// ----------------------------------------

// ListStockTrades returns a user's share journal in trade-date order.
func (q *UserQueries) ListStockTrades(ctx context.Context, userID string) ([]StockTrade, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, trade_date, side, symbol, shares, price, amount,
		       COALESCE(commission, 0), created_at
		FROM stock_trades
		WHERE user_id = ?
		ORDER BY trade_date ASC, created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query stock trades: %w", err)
	}
	defer rows.Close()

	var trades []StockTrade
	for rows.Next() {
		var t StockTrade
		if err := rows.Scan(&t.ID, &t.UserID, &t.TradeDate, &t.Side, &t.Symbol,
			&t.Shares, &t.Price, &t.Amount, &t.Commission, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stock trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// CreateStockTrade inserts a new share journal row.
func (q *UserQueries) CreateStockTrade(ctx context.Context, t StockTrade) error {
	if t.UserID == "" {
		return ErrUserIDRequired
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO stock_trades (
			id, user_id, trade_date, side, symbol, shares, price, amount, commission, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`, t.ID, t.UserID, t.TradeDate, t.Side, t.Symbol, t.Shares, t.Price, t.Amount, t.Commission, t.CreatedAt)
	return err
}

// DeleteStockTrade removes a journal row, verifying user ownership.
func (q *UserQueries) DeleteStockTrade(ctx context.Context, userID, id string) error {
	if userID == "" {
		return ErrUserIDRequired
	}

	res, err := q.db.ExecContext(ctx,
		`DELETE FROM stock_trades WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ----------------------------------------
// Cash flow queries
// ----------------------------------------

// ListCashFlows returns a user's deposits/withdrawals in date order.
func (q *UserQueries) ListCashFlows(ctx context.Context, userID string) ([]CashFlow, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, flow_date, kind, amount, created_at
		FROM cash_flows
		WHERE user_id = ?
		ORDER BY flow_date ASC, created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query cash flows: %w", err)
	}
	defer rows.Close()

	var flows []CashFlow
	for rows.Next() {
		var f CashFlow
		if err := rows.Scan(&f.ID, &f.UserID, &f.FlowDate, &f.Kind, &f.Amount, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cash flow: %w", err)
		}
		flows = append(flows, f)
	}
	return flows, rows.Err()
}

// CreateCashFlow inserts a deposit or withdrawal row.
func (q *UserQueries) CreateCashFlow(ctx context.Context, f CashFlow) error {
	if f.UserID == "" {
		return ErrUserIDRequired
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO cash_flows (id, user_id, flow_date, kind, amount, created_at)
		VALUES (?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`, f.ID, f.UserID, f.FlowDate, f.Kind, f.Amount, f.CreatedAt)
	return err
}

// ----------------------------------------
// Subscription queries
// ----------------------------------------

// GetSubscription returns the user's subscription row, or nil when the user
// has never been through billing.
func (q *UserQueries) GetSubscription(ctx context.Context, userID string) (*Subscription, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	var (
		s         Subscription
		periodEnd sql.NullTime
		cancel    int
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT user_id, COALESCE(customer_id, ''), COALESCE(subscription_id, ''),
		       COALESCE(plan, 'free'), COALESCE(status, 'none'),
		       current_period_end, COALESCE(cancel_at_period_end, 0), updated_at
		FROM subscriptions WHERE user_id = ?
	`, userID).Scan(&s.UserID, &s.CustomerID, &s.SubscriptionID, &s.Plan, &s.Status,
		&periodEnd, &cancel, &s.UpdatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query subscription: %w", err)
	}
	if periodEnd.Valid {
		s.CurrentPeriodEnd = periodEnd.Time
	}
	s.CancelAtPeriodEnd = cancel != 0
	return &s, nil
}

// UpsertSubscription stores the billing provider's latest view of the user.
func (q *UserQueries) UpsertSubscription(ctx context.Context, s Subscription) error {
	if s.UserID == "" {
		return ErrUserIDRequired
	}

	var periodEnd any
	if !s.CurrentPeriodEnd.IsZero() {
		periodEnd = s.CurrentPeriodEnd
	}
	cancel := 0
	if s.CancelAtPeriodEnd {
		cancel = 1
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO subscriptions (
			user_id, customer_id, subscription_id, plan, status,
			current_period_end, cancel_at_period_end, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			customer_id = CASE WHEN excluded.customer_id != '' THEN excluded.customer_id ELSE subscriptions.customer_id END,
			subscription_id = CASE WHEN excluded.subscription_id != '' THEN excluded.subscription_id ELSE subscriptions.subscription_id END,
			plan = excluded.plan,
			status = excluded.status,
			current_period_end = COALESCE(excluded.current_period_end, subscriptions.current_period_end),
			cancel_at_period_end = excluded.cancel_at_period_end,
			updated_at = CURRENT_TIMESTAMP
	`, s.UserID, s.CustomerID, s.SubscriptionID, s.Plan, s.Status, periodEnd, cancel)
	return err
}

// FindUserByCustomerID resolves a billing customer id to the local user.
func (q *UserQueries) FindUserByCustomerID(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", ErrNotFound
	}

	var userID string
	err := q.db.QueryRowContext(ctx,
		`SELECT user_id FROM subscriptions WHERE customer_id = ?`, customerID).Scan(&userID)
	if isNoRows(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query customer mapping: %w", err)
	}
	return userID, nil
}

// ----------------------------------------
// Webhook event queries (idempotency ledger)
// ----------------------------------------

// RecordWebhookEvent inserts the event id before processing. A duplicate id
// returns ErrDuplicateEvent so the caller can acknowledge and skip.
func (q *UserQueries) RecordWebhookEvent(ctx context.Context, e WebhookEvent) error {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO webhook_events (id, event_type, payload, received_at)
		VALUES (?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
		ON CONFLICT(id) DO NOTHING
	`, e.ID, e.EventType, e.Payload, e.ReceivedAt)
	if err != nil {
		return fmt.Errorf("record webhook event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDuplicateEvent
	}
	return nil
}

// DeleteWebhookEvent releases a recorded event id. Called when the state
// sync failed after recording, so the provider's retry of the same id is not
// swallowed as a duplicate.
func (q *UserQueries) DeleteWebhookEvent(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM webhook_events WHERE id = ?`, id)
	return err
}

// MarkWebhookProcessed stamps the event after its state sync committed.
func (q *UserQueries) MarkWebhookProcessed(ctx context.Context, id string, at time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE webhook_events SET processed_at = ? WHERE id = ?`, at, id)
	return err
}
