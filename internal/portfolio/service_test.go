package portfolio

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"wheeltracker/internal/events"
	"wheeltracker/internal/monitor"
	"wheeltracker/pkg/db"
	"wheeltracker/pkg/prices"
)

func newTestService(t *testing.T) (*Service, *events.Bus) {
	t.Helper()

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	bus := events.NewBus()
	svc := NewService(database, prices.NewCache(), bus, monitor.NewSystemMetrics(), zerolog.Nop(), "SPY", 5*time.Second)
	return svc, bus
}

func seedJournal(t *testing.T, svc *Service, userID string) {
	t.Helper()
	ctx := context.Background()

	if _, err := svc.AddCashFlow(ctx, db.CashFlow{
		UserID: userID, FlowDate: "2025-05-01", Kind: db.FlowDeposit, Amount: 20000,
	}); err != nil {
		t.Fatalf("AddCashFlow: %v", err)
	}
	if _, err := svc.AddOptionTrade(ctx, db.OptionTrade{
		UserID: userID, TradeDate: "2025-06-02", Action: db.ActionSellToOpen,
		Symbol: "SOFI", OptionType: "Put", Strike: 8, Expiry: "2099-01-15",
		Contracts: 1, Premium: 25,
	}); err != nil {
		t.Fatalf("AddOptionTrade: %v", err)
	}
	if _, err := svc.AddStockTrade(ctx, db.StockTrade{
		UserID: userID, TradeDate: "2025-06-05", Side: "Buy",
		Symbol: "F", Shares: 100, Price: 12,
	}); err != nil {
		t.Fatalf("AddStockTrade: %v", err)
	}
}

func TestServiceSummary(t *testing.T) {
	svc, _ := newTestService(t)
	seedJournal(t, svc, "user-1")

	summary, err := svc.Summary(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.TotalPremiums != 25 {
		t.Errorf("premiums = %v, want 25", summary.TotalPremiums)
	}
	if summary.TotalDeposits != 20000 {
		t.Errorf("deposits = %v, want 20000", summary.TotalDeposits)
	}
	if summary.TotalTradesCount != 2 {
		t.Errorf("trade count = %d, want 2", summary.TotalTradesCount)
	}
	if summary.PortfolioValue != 20025 {
		t.Errorf("portfolio value = %v, want 20025", summary.PortfolioValue)
	}
}

func TestServiceSummaryCaching(t *testing.T) {
	svc, _ := newTestService(t)
	seedJournal(t, svc, "user-1")
	ctx := context.Background()

	first, err := svc.Summary(ctx, "user-1")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}

	// A write through the raw queries bypasses invalidation; the cached
	// summary must still be served inside the TTL.
	if err := svc.Queries().CreateCashFlow(ctx, db.CashFlow{
		ID: "raw-1", UserID: "user-1", FlowDate: "2025-07-01", Kind: db.FlowDeposit, Amount: 500,
	}); err != nil {
		t.Fatalf("CreateCashFlow: %v", err)
	}

	cached, _ := svc.Summary(ctx, "user-1")
	if cached.TotalDeposits != first.TotalDeposits {
		t.Errorf("cache miss inside TTL: deposits %v != %v", cached.TotalDeposits, first.TotalDeposits)
	}

	svc.Invalidate("user-1")
	fresh, _ := svc.Summary(ctx, "user-1")
	if fresh.TotalDeposits != first.TotalDeposits+500 {
		t.Errorf("deposits after invalidate = %v, want %v", fresh.TotalDeposits, first.TotalDeposits+500)
	}
}

func TestServiceWritesPublishSummaryUpdates(t *testing.T) {
	svc, bus := newTestService(t)
	ch, unsub := bus.Subscribe(events.EventSummaryUpdated, 8)
	defer unsub()

	seedJournal(t, svc, "user-1")

	select {
	case payload := <-ch:
		update, ok := payload.(SummaryUpdate)
		if !ok {
			t.Fatalf("payload type %T, want SummaryUpdate", payload)
		}
		if update.UserID != "user-1" {
			t.Errorf("user = %q, want user-1", update.UserID)
		}
	default:
		t.Fatal("no summary update published after writes")
	}
}

func TestServicePositionsUseQuoteCache(t *testing.T) {
	svc, _ := newTestService(t)
	seedJournal(t, svc, "user-1")
	ctx := context.Background()

	if err := svc.UpdateQuote(ctx, db.Quote{Symbol: "F", Price: 13, Sector: "Consumer Cyclical"}); err != nil {
		t.Fatalf("UpdateQuote: %v", err)
	}

	positions, err := svc.Positions(ctx, "user-1")
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if len(positions.Stocks) != 1 {
		t.Fatalf("expected 1 stock position, got %d", len(positions.Stocks))
	}
	pos := positions.Stocks[0]
	if !pos.HasQuote || pos.MarketValue != 1300 {
		t.Errorf("position not priced from cache: %+v", pos)
	}
}

func TestServiceBenchmark(t *testing.T) {
	svc, _ := newTestService(t)
	seedJournal(t, svc, "user-1")
	ctx := context.Background()

	// No history yet: unavailable, not an error.
	cmp, err := svc.Benchmark(ctx, "user-1")
	if err != nil {
		t.Fatalf("Benchmark: %v", err)
	}
	if cmp.Available {
		t.Error("benchmark should be unavailable without price history")
	}

	if err := svc.database.UpsertBenchmarkPrice(ctx, db.BenchmarkPrice{
		Symbol: "SPY", PriceDate: "2025-04-01", Close: 500,
	}); err != nil {
		t.Fatalf("UpsertBenchmarkPrice: %v", err)
	}

	cmp, err = svc.Benchmark(ctx, "user-1")
	if err != nil {
		t.Fatalf("Benchmark: %v", err)
	}
	if !cmp.Available {
		t.Fatal("benchmark should be available with history")
	}
	if cmp.Shares != 40 {
		t.Errorf("shares = %v, want 40 (20000 at 500)", cmp.Shares)
	}
}

func TestServiceAccount(t *testing.T) {
	svc, _ := newTestService(t)
	seedJournal(t, svc, "user-1")
	ctx := context.Background()

	if err := svc.UpdateQuote(ctx, db.Quote{Symbol: "SOFI", Price: 8.5, Sector: "Financial Services"}); err != nil {
		t.Fatalf("UpdateQuote: %v", err)
	}

	account, err := svc.Account(ctx, "user-1")
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if account.NetWorth != 20025 {
		t.Errorf("net worth = %v, want 20025", account.NetWorth)
	}
	// Portfolio value minus the open put's 800 reserved.
	if account.AvailableCapital != 19225 {
		t.Errorf("available = %v, want 19225", account.AvailableCapital)
	}
	if account.SectorExposure["Financial Services"] != 800 {
		t.Errorf("sector exposure = %v, want 800", account.SectorExposure["Financial Services"])
	}
}

func TestServiceOwnershipOnDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	trade, err := svc.AddOptionTrade(ctx, db.OptionTrade{
		UserID: "user-1", TradeDate: "2025-06-02", Action: db.ActionSellToOpen,
		Symbol: "SOFI", OptionType: "Put", Strike: 8, Expiry: "2099-01-15",
		Contracts: 1, Premium: 25,
	})
	if err != nil {
		t.Fatalf("AddOptionTrade: %v", err)
	}

	if err := svc.DeleteOptionTrade(ctx, "user-2", trade.ID); err != db.ErrNotFound {
		t.Errorf("cross-user delete err = %v, want ErrNotFound", err)
	}
	if err := svc.DeleteOptionTrade(ctx, "user-1", trade.ID); err != nil {
		t.Errorf("owner delete err = %v", err)
	}
}
