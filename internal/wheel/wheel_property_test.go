package wheel

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"wheeltracker/pkg/db"
)

// TestProperty_NetPremiumIdentity checks that for any open/close premium pair
// the position's net premium equals collected minus paid minus commissions.
func TestProperty_NetPremiumIdentity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("Net premium equals collected - paid - commissions", prop.ForAll(
		func(collected, paid, openComm, closeComm float64) bool {
			trades := []db.OptionTrade{
				{
					PositionID: "p", TradeDate: "2025-06-02", Action: db.ActionSellToOpen,
					Symbol: "AAPL", OptionType: "Put", Strike: 180, Expiry: "2025-07-18",
					Contracts: 1, Premium: collected, Commission: openComm,
				},
				{
					PositionID: "p", TradeDate: "2025-07-01", Action: db.ActionBuyToClose,
					Symbol: "AAPL", OptionType: "Put", Strike: 180, Expiry: "2025-07-18",
					Contracts: 1, Premium: -paid, Commission: closeComm,
				},
			}

			positions := BuildOptionPositions(trades, nil, testNow)
			if len(positions) != 1 {
				return false
			}
			want := collected - paid - openComm - closeComm
			return math.Abs(positions[0].NetPremium-want) < 1e-6
		},
		gen.Float64Range(1, 5000),
		gen.Float64Range(0, 5000),
		gen.Float64Range(0, 10),
		gen.Float64Range(0, 10),
	))

	properties.TestingRun(t)
}

// TestProperty_FIFOShareConservation checks that shares never leak: for any
// buy/sell sequence, shares bought equal shares still open plus shares closed.
func TestProperty_FIFOShareConservation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	parameters.MaxShrinkCount = 0

	properties := gopter.NewProperties(parameters)

	properties.Property("Shares bought = open shares + closed shares", prop.ForAll(
		func(buys []float64, sellFraction float64) bool {
			var trades []db.StockTrade
			totalBought := 0.0
			for i, shares := range buys {
				shares = math.Trunc(shares)
				if shares < 1 {
					shares = 1
				}
				totalBought += shares
				trades = append(trades, db.StockTrade{
					Symbol:    "XYZ",
					TradeDate: fmt.Sprintf("2025-05-%02d", i+1),
					Side:      "Buy",
					Shares:    shares,
					Price:     10,
					Amount:    shares * 10,
				})
			}

			sellShares := math.Trunc(totalBought * sellFraction)
			if sellShares > 0 {
				trades = append(trades, db.StockTrade{
					Symbol:    "XYZ",
					TradeDate: "2025-06-01",
					Side:      "Sell",
					Shares:    sellShares,
					Price:     12,
					Amount:    sellShares * 12,
				})
			}

			positions := BuildStockPositions(trades, nil)
			openShares := 0.0
			closedShares := 0.0
			for _, pos := range positions {
				switch pos.Type {
				case "open":
					openShares += pos.Shares
				case "closed":
					closedShares += pos.Shares
				}
			}
			return math.Abs(totalBought-(openShares+closedShares)) < 1e-6
		},
		gen.SliceOfN(5, gen.Float64Range(1, 500)),
		gen.Float64Range(0, 0.99),
	))

	properties.TestingRun(t)
}

// TestProperty_RealizedPnLMatchesProceeds checks the round-trip accounting:
// realized P&L equals sale proceeds minus the cost basis actually sold.
func TestProperty_RealizedPnLMatchesProceeds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("Realized P&L = proceeds - cost basis sold", prop.ForAll(
		func(buyPrice, sellPrice float64, shares int) bool {
			s := float64(shares)
			trades := []db.StockTrade{
				{Symbol: "XYZ", TradeDate: "2025-05-01", Side: "Buy", Shares: s, Price: buyPrice, Amount: s * buyPrice},
				{Symbol: "XYZ", TradeDate: "2025-06-01", Side: "Sell", Shares: s, Price: sellPrice, Amount: s * sellPrice},
			}

			positions := BuildStockPositions(trades, nil)
			if len(positions) != 1 || positions[0].Type != "closed" {
				return false
			}
			want := s*sellPrice - s*buyPrice
			return math.Abs(positions[0].RealizedPnL-want) < 1e-6
		},
		gen.Float64Range(1, 1000),
		gen.Float64Range(1, 1000),
		gen.IntRange(1, 1000),
	))

	properties.TestingRun(t)
}

// TestProperty_WeeklyStatusMatchesThresholds checks the status banding for any
// P&L and portfolio value combination.
func TestProperty_WeeklyStatusMatchesThresholds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("Weekly status follows the return thresholds", prop.ForAll(
		func(premium, portfolioValue float64) bool {
			now := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
			open := []OptionPosition{{PositionID: "a", OpenDate: "2025-07-29", PremiumCollected: premium}}

			perf := CalculateWeekly(open, nil, portfolioValue, now)

			switch {
			case perf.WeeklyReturnPercent >= 1.0:
				return perf.Status == "compliant"
			case perf.WeeklyReturnPercent >= 0.5:
				return perf.Status == "warning"
			default:
				return perf.Status == "violation"
			}
		},
		gen.Float64Range(0, 2000),
		gen.Float64Range(100, 100000),
	))

	properties.TestingRun(t)
}
