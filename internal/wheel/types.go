// Package wheel contains the pure calculation engine for wheel-strategy
// bookkeeping: option position aggregation, FIFO stock lots, and the
// portfolio analytics derived from them. Everything here is deterministic
// over its inputs; callers pass the clock in.
package wheel

// Option position lifecycle statuses.
const (
	StatusOpen        = "Open"
	StatusExpired     = "Expired"
	StatusAssigned    = "Assigned"
	StatusExercised   = "Exercised"
	StatusClosedEarly = "Closed Early"
	StatusRolled      = "Rolled"
)

// OptionPosition is an aggregated option position built from journal rows
// sharing a position id.
type OptionPosition struct {
	PositionID       string  `json:"position_id"`
	Symbol           string  `json:"symbol"`
	OptionType       string  `json:"option_type"`
	Strike           float64 `json:"strike"`
	Expiry           string  `json:"expiry"`
	Contracts        int     `json:"contracts"`
	Status           string  `json:"status"`
	OpenDate         string  `json:"open_date"`
	CloseDate        string  `json:"close_date"`
	PremiumCollected float64 `json:"premium_collected"`
	PremiumPaid      float64 `json:"premium_paid"`
	NetPremium       float64 `json:"net_premium"`
	Commissions      float64 `json:"commissions"`
	MaxProfit        float64 `json:"max_profit"`
	DaysHeld         int     `json:"days_held"`
	DaysToExpiry     int     `json:"days_to_expiry"`
	PercentReturn    float64 `json:"percent_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Capital          float64 `json:"capital"`
}

// Lot is one FIFO purchase lot of shares.
type Lot struct {
	Date      string
	Shares    float64
	Price     float64
	CostBasis float64
}

// StockPosition is either a closed round trip or the current open holding
// of a symbol.
type StockPosition struct {
	Symbol         string  `json:"symbol"`
	Type           string  `json:"type"` // "open" or "closed"
	Shares         float64 `json:"shares"`
	AvgBuyPrice    float64 `json:"avg_buy_price"`
	AvgSellPrice   float64 `json:"avg_sell_price,omitempty"`
	CostBasis      float64 `json:"cost_basis"`
	SaleProceeds   float64 `json:"sale_proceeds,omitempty"`
	RealizedPnL    float64 `json:"realized_pnl"`
	ReturnPercent  float64 `json:"return_percent"`
	OpenDate       string  `json:"open_date"`
	CloseDate      string  `json:"close_date,omitempty"`
	CurrentPrice   float64 `json:"current_price,omitempty"`
	MarketValue    float64 `json:"market_value,omitempty"`
	UnrealizedPnL  float64 `json:"unrealized_pnl,omitempty"`
	UnrealizedPerc float64 `json:"unrealized_percent,omitempty"`
	HasQuote       bool    `json:"has_quote"`
}

// Summary is the dashboard read model for one user.
type Summary struct {
	TotalPremiums      float64 `json:"total_premiums"`
	TotalCapital       float64 `json:"total_capital"`
	TotalActiveCapital float64 `json:"total_active_capital"`
	PremiumPerDay      float64 `json:"premium_per_day"`
	ROIPercent         float64 `json:"roi_percent"`
	AvgReturnPerTrade  float64 `json:"avg_return_per_trade"`
	AveragePremium     float64 `json:"average_premium"`
	LargestPremium     float64 `json:"largest_premium"`
	SmallestPremium    float64 `json:"smallest_premium"`
	WinRate            float64 `json:"win_rate"`
	DecidedPositions   int     `json:"decided_positions"`
	OptionTradesCount  int     `json:"option_trades_count"`
	StockTradesCount   int     `json:"stock_trades_count"`
	TotalTradesCount   int     `json:"total_trades_count"`

	TotalDeposits    float64 `json:"total_deposits"`
	TotalWithdrawals float64 `json:"total_withdrawals"`

	StockRealizedPL   float64 `json:"stock_realized_pl"`
	StockUnrealizedPL float64 `json:"stock_unrealized_pl"`

	PortfolioValue         float64 `json:"portfolio_value"`
	PortfolioProfit        float64 `json:"portfolio_profit"`
	PortfolioProfitPercent float64 `json:"portfolio_profit_percent"`

	FirstTradeDate string `json:"first_trade_date,omitempty"`
}

// WeeklyPerformance reports the current Monday-to-Sunday window.
type WeeklyPerformance struct {
	WeekStartDate       string  `json:"week_start_date"`
	WeeklyPL            float64 `json:"weekly_pl"`
	WeeklyReturnPercent float64 `json:"weekly_return_percent"`
	DaysRemainingInWeek int     `json:"days_remaining_in_week"`
	Status              string  `json:"status"` // "compliant", "warning", "violation"
	TargetWeeklyReturn  float64 `json:"target_weekly_return"`
}
