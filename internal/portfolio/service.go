// Package portfolio is the read model over the trade journals: it assembles
// positions, the dashboard summary, the weekly window and the benchmark
// comparison, and owns journal mutations so every write invalidates the
// cached view and publishes an update.
package portfolio

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wheeltracker/internal/benchmark"
	"wheeltracker/internal/events"
	"wheeltracker/internal/monitor"
	"wheeltracker/internal/wheel"
	"wheeltracker/pkg/db"
	"wheeltracker/pkg/prices"
)

// Positions bundles both journals' derived positions.
type Positions struct {
	Options []wheel.OptionPosition `json:"options"`
	Stocks  []wheel.StockPosition  `json:"stocks"`
}

// Service computes portfolio views for one request at a time. Summaries are
// cached per user with a short TTL; any journal write drops the cache entry.
type Service struct {
	queries         *db.UserQueries
	database        *db.Database
	cache           *prices.Cache
	bus             *events.Bus
	metrics         *monitor.SystemMetrics
	log             zerolog.Logger
	benchmarkSymbol string
	ttl             time.Duration
	now             func() time.Time

	mu        sync.Mutex
	summaries map[string]cachedSummary
}

type cachedSummary struct {
	summary  wheel.Summary
	cachedAt time.Time
}

func NewService(database *db.Database, cache *prices.Cache, bus *events.Bus, metrics *monitor.SystemMetrics, log zerolog.Logger, benchmarkSymbol string, ttl time.Duration) *Service {
	return &Service{
		queries:         database.Queries(),
		database:        database,
		cache:           cache,
		bus:             bus,
		metrics:         metrics,
		log:             log.With().Str("component", "portfolio").Logger(),
		benchmarkSymbol: benchmarkSymbol,
		ttl:             ttl,
		now:             time.Now,
		summaries:       make(map[string]cachedSummary),
	}
}

// Queries exposes the underlying user-scoped queries for handlers that only
// need raw journal rows.
func (s *Service) Queries() *db.UserQueries {
	return s.queries
}

// ----------------------------------------
// Read models
// ----------------------------------------

// Summary returns the dashboard summary, served from cache inside the TTL.
func (s *Service) Summary(ctx context.Context, userID string) (wheel.Summary, error) {
	s.mu.Lock()
	if entry, ok := s.summaries[userID]; ok && s.now().Sub(entry.cachedAt) < s.ttl {
		s.mu.Unlock()
		return entry.summary, nil
	}
	s.mu.Unlock()

	summary, err := s.recompute(ctx, userID)
	if err != nil {
		return wheel.Summary{}, err
	}

	s.mu.Lock()
	s.summaries[userID] = cachedSummary{summary: summary, cachedAt: s.now()}
	s.mu.Unlock()
	return summary, nil
}

// Positions rebuilds both journals' positions, always fresh.
func (s *Service) Positions(ctx context.Context, userID string) (Positions, error) {
	optionTrades, stockTrades, _, err := s.loadJournals(ctx, userID)
	if err != nil {
		return Positions{}, err
	}

	quotes := s.cache.Snapshot()
	basis := wheel.StockCostBasisPerShare(stockTrades)
	return Positions{
		Options: wheel.BuildOptionPositions(optionTrades, basis, s.now()),
		Stocks:  wheel.BuildStockPositions(stockTrades, quotes),
	}, nil
}

// Weekly reports the current Monday-to-Sunday performance window.
func (s *Service) Weekly(ctx context.Context, userID string) (wheel.WeeklyPerformance, error) {
	summary, err := s.Summary(ctx, userID)
	if err != nil {
		return wheel.WeeklyPerformance{}, err
	}
	positions, err := s.Positions(ctx, userID)
	if err != nil {
		return wheel.WeeklyPerformance{}, err
	}
	return wheel.CalculateWeekly(positions.Options, positions.Stocks, summary.PortfolioValue, s.now()), nil
}

// Benchmark compares the portfolio against the shadow index position.
func (s *Service) Benchmark(ctx context.Context, userID string) (benchmark.Comparison, error) {
	summary, err := s.Summary(ctx, userID)
	if err != nil {
		return benchmark.Comparison{}, err
	}
	flows, err := s.queries.ListCashFlows(ctx, userID)
	if err != nil {
		return benchmark.Comparison{}, err
	}
	history, err := s.database.ListBenchmarkPrices(ctx, s.benchmarkSymbol)
	if err != nil {
		return benchmark.Comparison{}, err
	}
	return benchmark.Compare(flows, history, s.benchmarkSymbol, summary.PortfolioValue, summary.PortfolioProfit), nil
}

// Account summarizes the state the scanner judges candidates against.
type Account struct {
	AvailableCapital float64
	NetWorth         float64
	SectorExposure   map[string]float64
}

// Account derives available capital, net worth and per-sector exposure for
// the scanner. Exposure counts open option capital by the underlying's
// sector plus open stock cost basis.
func (s *Service) Account(ctx context.Context, userID string) (Account, error) {
	summary, err := s.Summary(ctx, userID)
	if err != nil {
		return Account{}, err
	}
	positions, err := s.Positions(ctx, userID)
	if err != nil {
		return Account{}, err
	}
	sectors, err := s.sectorBySymbol(ctx)
	if err != nil {
		return Account{}, err
	}

	exposure := make(map[string]float64)
	for _, pos := range positions.Options {
		if pos.Status != wheel.StatusOpen {
			continue
		}
		if sector := sectors[pos.Symbol]; sector != "" {
			exposure[sector] += pos.Capital
		}
	}
	for _, pos := range positions.Stocks {
		if pos.Type != "open" {
			continue
		}
		if sector := sectors[pos.Symbol]; sector != "" {
			exposure[sector] += pos.CostBasis
		}
	}

	available := summary.PortfolioValue - summary.TotalActiveCapital
	if available < 0 {
		available = 0
	}
	return Account{
		AvailableCapital: available,
		NetWorth:         summary.PortfolioValue,
		SectorExposure:   exposure,
	}, nil
}

// ----------------------------------------
// Journal mutations
// ----------------------------------------

// AddOptionTrade journals an option trade. A blank position id starts a new
// position keyed by the trade's own id.
func (s *Service) AddOptionTrade(ctx context.Context, t db.OptionTrade) (db.OptionTrade, error) {
	t.ID = uuid.NewString()
	if t.PositionID == "" {
		t.PositionID = t.ID
	}
	if err := s.queries.CreateOptionTrade(ctx, t); err != nil {
		return db.OptionTrade{}, err
	}
	s.afterWrite(ctx, t.UserID, events.EventTradeRecorded)
	return t, nil
}

func (s *Service) DeleteOptionTrade(ctx context.Context, userID, id string) error {
	if err := s.queries.DeleteOptionTrade(ctx, userID, id); err != nil {
		return err
	}
	s.afterWrite(ctx, userID, events.EventTradeRecorded)
	return nil
}

// AddStockTrade journals a share trade; a zero amount is derived from
// shares times price.
func (s *Service) AddStockTrade(ctx context.Context, t db.StockTrade) (db.StockTrade, error) {
	t.ID = uuid.NewString()
	if t.Amount == 0 {
		t.Amount = t.Shares * t.Price
	}
	if err := s.queries.CreateStockTrade(ctx, t); err != nil {
		return db.StockTrade{}, err
	}
	s.afterWrite(ctx, t.UserID, events.EventTradeRecorded)
	return t, nil
}

func (s *Service) DeleteStockTrade(ctx context.Context, userID, id string) error {
	if err := s.queries.DeleteStockTrade(ctx, userID, id); err != nil {
		return err
	}
	s.afterWrite(ctx, userID, events.EventTradeRecorded)
	return nil
}

func (s *Service) AddCashFlow(ctx context.Context, f db.CashFlow) (db.CashFlow, error) {
	f.ID = uuid.NewString()
	if err := s.queries.CreateCashFlow(ctx, f); err != nil {
		return db.CashFlow{}, err
	}
	s.afterWrite(ctx, f.UserID, events.EventCashFlowRecorded)
	return f, nil
}

// UpdateQuote stores a quote and refreshes the price cache. Quotes are
// shared; every user's summary cache is dropped.
func (s *Service) UpdateQuote(ctx context.Context, q db.Quote) error {
	if err := s.database.UpsertQuote(ctx, q); err != nil {
		return err
	}
	s.cache.Set(q.Symbol, q.Price)

	s.mu.Lock()
	s.summaries = make(map[string]cachedSummary)
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(events.EventQuoteUpdated, q)
	}
	return nil
}

// Invalidate drops a user's cached summary.
func (s *Service) Invalidate(userID string) {
	s.mu.Lock()
	delete(s.summaries, userID)
	s.mu.Unlock()
}

// ----------------------------------------
// Internals
// ----------------------------------------

func (s *Service) afterWrite(ctx context.Context, userID string, event events.Event) {
	s.Invalidate(userID)

	if s.bus != nil {
		s.bus.Publish(event, userID)
	}

	summary, err := s.Summary(ctx, userID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("summary recompute after write failed")
		return
	}
	if s.bus != nil {
		s.bus.Publish(events.EventSummaryUpdated, SummaryUpdate{UserID: userID, Summary: summary})
	}
}

// SummaryUpdate is the payload published on summary changes.
type SummaryUpdate struct {
	UserID  string        `json:"user_id"`
	Summary wheel.Summary `json:"summary"`
}

func (s *Service) recompute(ctx context.Context, userID string) (wheel.Summary, error) {
	start := s.now()

	optionTrades, stockTrades, flows, err := s.loadJournals(ctx, userID)
	if err != nil {
		return wheel.Summary{}, err
	}

	quotes := s.cache.Snapshot()
	basis := wheel.StockCostBasisPerShare(stockTrades)
	optionPositions := wheel.BuildOptionPositions(optionTrades, basis, s.now())
	stockPositions := wheel.BuildStockPositions(stockTrades, quotes)
	summary := wheel.Summarize(optionPositions, stockPositions, flows, len(optionTrades), len(stockTrades), s.now())

	if s.metrics != nil {
		s.metrics.RecalcLatency.RecordDuration(s.now().Sub(start))
	}
	return summary, nil
}

func (s *Service) loadJournals(ctx context.Context, userID string) ([]db.OptionTrade, []db.StockTrade, []db.CashFlow, error) {
	optionTrades, err := s.queries.ListOptionTrades(ctx, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	stockTrades, err := s.queries.ListStockTrades(ctx, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	flows, err := s.queries.ListCashFlows(ctx, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	return optionTrades, stockTrades, flows, nil
}

func (s *Service) sectorBySymbol(ctx context.Context) (map[string]string, error) {
	quotes, err := s.database.ListQuotes(ctx)
	if err != nil {
		return nil, err
	}
	sectors := make(map[string]string, len(quotes))
	for _, q := range quotes {
		if q.Sector != "" {
			sectors[q.Symbol] = q.Sector
		}
	}
	return sectors, nil
}
