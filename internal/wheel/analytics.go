package wheel

import (
	"time"

	"wheeltracker/pkg/db"
)

// Summarize derives the dashboard summary from aggregated positions and the
// cash flow ledger.
func Summarize(optionPositions []OptionPosition, stockPositions []StockPosition, flows []db.CashFlow, optionTradeCount, stockTradeCount int, now time.Time) Summary {
	var s Summary
	var earliest time.Time
	var totalReturns float64
	var returnCount int
	var premiumCount int
	var wins, decided int

	for _, pos := range optionPositions {
		if pos.PremiumCollected > 0 {
			s.TotalPremiums += pos.NetPremium
			premiumCount++
			if pos.NetPremium > s.LargestPremium {
				s.LargestPremium = pos.NetPremium
			}
			if premiumCount == 1 || pos.NetPremium < s.SmallestPremium {
				s.SmallestPremium = pos.NetPremium
			}
		}

		s.TotalCapital += pos.Capital
		if pos.Status == StatusOpen {
			s.TotalActiveCapital += pos.Capital
		} else {
			decided++
			if pos.NetPremium > 0 {
				wins++
			}
		}

		if pos.Capital > 0 {
			totalReturns += pos.PercentReturn
			returnCount++
		}

		if pos.OpenDate != "" {
			if d, err := time.Parse(dateLayout, pos.OpenDate); err == nil {
				if earliest.IsZero() || d.Before(earliest) {
					earliest = d
				}
			}
		}
	}

	if !earliest.IsZero() {
		s.FirstTradeDate = earliest.Format(dateLayout)
		if days := now.Sub(earliest).Hours() / 24; days > 0 {
			s.PremiumPerDay = s.TotalPremiums / days
		}
	}
	if s.TotalCapital > 0 {
		s.ROIPercent = (s.TotalPremiums / s.TotalCapital) * 100
	}
	if returnCount > 0 {
		s.AvgReturnPerTrade = totalReturns / float64(returnCount)
	}
	if premiumCount > 0 {
		s.AveragePremium = s.TotalPremiums / float64(premiumCount)
	}
	s.DecidedPositions = decided
	if decided > 0 {
		s.WinRate = float64(wins) / float64(decided) * 100
	}

	for _, pos := range stockPositions {
		if pos.Type == "closed" {
			s.StockRealizedPL += pos.RealizedPnL
		} else if pos.HasQuote {
			s.StockUnrealizedPL += pos.UnrealizedPnL
		}
	}

	for _, f := range flows {
		switch f.Kind {
		case db.FlowDeposit:
			s.TotalDeposits += f.Amount
		case db.FlowWithdrawal:
			s.TotalWithdrawals += f.Amount
		}
	}

	s.OptionTradesCount = optionTradeCount
	s.StockTradesCount = stockTradeCount
	s.TotalTradesCount = optionTradeCount + stockTradeCount

	netDeposits := s.TotalDeposits - s.TotalWithdrawals
	s.PortfolioValue = netDeposits + s.TotalPremiums + s.StockRealizedPL
	s.PortfolioProfit = s.TotalPremiums + s.StockRealizedPL
	if netDeposits > 0 {
		s.PortfolioProfitPercent = (s.PortfolioProfit / netDeposits) * 100
	}

	return s
}
