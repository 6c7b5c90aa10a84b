package db

import (
	"context"
	"strings"
	"time"
)

// Option trade actions as stored in the journal.
const (
	ActionSellToOpen = "Sell to Open"
	ActionBuyToClose = "Buy to Close"
	ActionExpired    = "Expired"
	ActionAssigned   = "Assigned"
	ActionExercised  = "Exercised"
)

// Cash flow kinds.
const (
	FlowDeposit    = "DEPOSIT"
	FlowWithdrawal = "WITHDRAWAL"
)

// OptionTrade is one row of the options journal. Dates use "2006-01-02".
type OptionTrade struct {
	ID         string
	UserID     string
	PositionID string
	TradeDate  string
	Action     string
	Symbol     string
	OptionType string // "Call" or "Put"
	Strike     float64
	Expiry     string
	Contracts  int
	Premium    float64 // positive credit, negative debit
	StockPrice float64 // underlying at time of trade
	Commission float64
	Notes      string
	CreatedAt  time.Time
}

// StockTrade is one row of the share journal.
type StockTrade struct {
	ID         string
	UserID     string
	TradeDate  string
	Side       string // "Buy" or "Sell"
	Symbol     string
	Shares     float64
	Price      float64
	Amount     float64
	Commission float64
	CreatedAt  time.Time
}

// CashFlow is a deposit or withdrawal into the brokerage account.
type CashFlow struct {
	ID        string
	UserID    string
	FlowDate  string
	Kind      string
	Amount    float64
	CreatedAt time.Time
}

// Quote is the latest known price for a symbol.
type Quote struct {
	Symbol    string
	Price     float64
	Sector    string
	UpdatedAt time.Time
}

// BenchmarkPrice is a dated close for the benchmark symbol.
type BenchmarkPrice struct {
	Symbol    string
	PriceDate string
	Close     float64
}

// Subscription mirrors the billing provider's view of a user.
type Subscription struct {
	UserID            string
	CustomerID        string
	SubscriptionID    string
	Plan              string
	Status            string
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
	UpdatedAt         time.Time
}

// WebhookEvent is one received billing event; the table doubles as the
// idempotency ledger.
type WebhookEvent struct {
	ID          string
	EventType   string
	Payload     string
	ReceivedAt  time.Time
	ProcessedAt time.Time
}

// User represents an application user.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateUser inserts a new user row.
func (d *Database) CreateUser(ctx context.Context, u User) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP), COALESCE(?, CURRENT_TIMESTAMP))
	`, u.ID, strings.ToLower(u.Email), u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	return err
}

// GetUserByEmail returns a user by email or nil if not found.
func (d *Database) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE email = ?
	`, strings.ToLower(email))
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// UpsertQuote stores the latest price for a symbol.
func (d *Database) UpsertQuote(ctx context.Context, q Quote) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO quotes (symbol, price, sector, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(symbol) DO UPDATE SET
			price = excluded.price,
			sector = CASE WHEN excluded.sector != '' THEN excluded.sector ELSE quotes.sector END,
			updated_at = CURRENT_TIMESTAMP
	`, strings.ToUpper(q.Symbol), q.Price, q.Sector)
	return err
}

// ListQuotes returns all known quotes.
func (d *Database) ListQuotes(ctx context.Context) ([]Quote, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT symbol, price, COALESCE(sector, ''), updated_at FROM quotes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Quote
	for rows.Next() {
		var q Quote
		if err := rows.Scan(&q.Symbol, &q.Price, &q.Sector, &q.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, q)
	}
	return res, rows.Err()
}

// UpsertBenchmarkPrice stores a dated close for the benchmark symbol.
func (d *Database) UpsertBenchmarkPrice(ctx context.Context, p BenchmarkPrice) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO benchmark_prices (symbol, price_date, close)
		VALUES (?, ?, ?)
		ON CONFLICT(symbol, price_date) DO UPDATE SET close = excluded.close
	`, strings.ToUpper(p.Symbol), p.PriceDate, p.Close)
	return err
}

// ListBenchmarkPrices returns dated closes for a symbol in ascending date order.
func (d *Database) ListBenchmarkPrices(ctx context.Context, symbol string) ([]BenchmarkPrice, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT symbol, price_date, close
		FROM benchmark_prices WHERE symbol = ?
		ORDER BY price_date ASC
	`, strings.ToUpper(symbol))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []BenchmarkPrice
	for rows.Next() {
		var p BenchmarkPrice
		if err := rows.Scan(&p.Symbol, &p.PriceDate, &p.Close); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
