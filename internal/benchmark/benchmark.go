// Package benchmark answers "what if every deposit had bought the index
// instead". It replays the cash flow ledger against dated benchmark closes to
// build a shadow share position, then compares its value to the portfolio.
package benchmark

import (
	"sort"

	"wheeltracker/pkg/db"
)

// Comparison is the benchmark read model returned to the dashboard.
type Comparison struct {
	Symbol              string  `json:"symbol"`
	Available           bool    `json:"available"`
	Shares              float64 `json:"shares"`
	Invested            float64 `json:"invested"`
	BenchmarkValue      float64 `json:"benchmark_value"`
	BenchmarkProfit     float64 `json:"benchmark_profit"`
	BenchmarkReturnPerc float64 `json:"benchmark_return_percent"`
	PortfolioValue      float64 `json:"portfolio_value"`
	PortfolioProfit     float64 `json:"portfolio_profit"`
	AlphaDollar         float64 `json:"alpha_dollar"`
	AlphaPercent        float64 `json:"alpha_percent"`
	LatestPriceDate     string  `json:"latest_price_date,omitempty"`
}

// Ledger is the shadow position built from the cash flows.
type Ledger struct {
	Symbol   string
	Shares   float64
	Invested float64
}

// BuildLedger replays deposits as benchmark buys and withdrawals as sells at
// the close on or before each flow date. Selling is clamped at zero shares.
// Flows dated before the first known close are skipped; a ledger built from
// no usable flows reports zero shares.
func BuildLedger(flows []db.CashFlow, prices []db.BenchmarkPrice, symbol string) Ledger {
	ledger := Ledger{Symbol: symbol}
	if len(prices) == 0 {
		return ledger
	}

	sorted := make([]db.CashFlow, len(flows))
	copy(sorted, flows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FlowDate < sorted[j].FlowDate
	})

	for _, f := range sorted {
		price, ok := closeOnOrBefore(prices, f.FlowDate)
		if !ok || price <= 0 {
			continue
		}

		switch f.Kind {
		case db.FlowDeposit:
			ledger.Shares += f.Amount / price
			ledger.Invested += f.Amount

		case db.FlowWithdrawal:
			shares := f.Amount / price
			if shares > ledger.Shares {
				shares = ledger.Shares
			}
			ledger.Shares -= shares
			ledger.Invested -= f.Amount
			if ledger.Invested < 0 {
				ledger.Invested = 0
			}
		}
	}
	return ledger
}

// Compare values the shadow position at the latest close and measures the
// portfolio against it. With no price history the comparison comes back with
// Available false rather than an error.
func Compare(flows []db.CashFlow, prices []db.BenchmarkPrice, symbol string, portfolioValue, portfolioProfit float64) Comparison {
	cmp := Comparison{
		Symbol:          symbol,
		PortfolioValue:  portfolioValue,
		PortfolioProfit: portfolioProfit,
	}
	if len(prices) == 0 {
		return cmp
	}

	ledger := BuildLedger(flows, prices, symbol)
	latest := prices[len(prices)-1]

	cmp.Available = true
	cmp.Shares = ledger.Shares
	cmp.Invested = ledger.Invested
	cmp.BenchmarkValue = ledger.Shares * latest.Close
	cmp.BenchmarkProfit = cmp.BenchmarkValue - ledger.Invested
	cmp.LatestPriceDate = latest.PriceDate
	if ledger.Invested > 0 {
		cmp.BenchmarkReturnPerc = cmp.BenchmarkProfit / ledger.Invested * 100
	}

	cmp.AlphaDollar = portfolioProfit - cmp.BenchmarkProfit
	if ledger.Invested > 0 {
		portfolioReturn := portfolioProfit / ledger.Invested * 100
		cmp.AlphaPercent = portfolioReturn - cmp.BenchmarkReturnPerc
	}
	return cmp
}

// closeOnOrBefore finds the last close dated on or before d. prices must be in
// ascending date order, as ListBenchmarkPrices returns them.
func closeOnOrBefore(prices []db.BenchmarkPrice, d string) (float64, bool) {
	idx := sort.Search(len(prices), func(i int) bool {
		return prices[i].PriceDate > d
	})
	if idx == 0 {
		return 0, false
	}
	return prices[idx-1].Close, true
}
