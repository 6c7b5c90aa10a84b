package wheel

import (
	"sort"

	"wheeltracker/pkg/db"
)

// BuildStockPositions replays the share journal with FIFO lot tracking.
// Sells close the oldest lots first (pro-rata cost basis on partial lots)
// and emit a closed round trip; whatever lots remain become the open
// position, priced from quotes when available.
func BuildStockPositions(trades []db.StockTrade, quotes map[string]float64) []StockPosition {
	var positions []StockPosition
	symbolLots := make(map[string][]Lot)

	for _, tx := range trades {
		switch tx.Side {
		case "Buy":
			symbolLots[tx.Symbol] = append(symbolLots[tx.Symbol], Lot{
				Date:      tx.TradeDate,
				Shares:    tx.Shares,
				Price:     tx.Price,
				CostBasis: tx.Amount + tx.Commission,
			})

		case "Sell":
			lots := symbolLots[tx.Symbol]
			remainingToSell := tx.Shares
			saleProceeds := tx.Amount - tx.Commission

			var closedLots []Lot
			var newLots []Lot
			totalCostBasisSold := 0.0

			for _, lot := range lots {
				if remainingToSell <= 0 {
					newLots = append(newLots, lot)
					continue
				}

				if lot.Shares <= remainingToSell {
					closedLots = append(closedLots, lot)
					totalCostBasisSold += lot.CostBasis
					remainingToSell -= lot.Shares
				} else {
					shareFraction := remainingToSell / lot.Shares
					costBasisFraction := lot.CostBasis * shareFraction

					closedLots = append(closedLots, Lot{
						Date:      lot.Date,
						Shares:    remainingToSell,
						Price:     lot.Price,
						CostBasis: costBasisFraction,
					})
					totalCostBasisSold += costBasisFraction

					lot.Shares -= remainingToSell
					lot.CostBasis -= costBasisFraction
					newLots = append(newLots, lot)
					remainingToSell = 0
				}
			}

			symbolLots[tx.Symbol] = newLots

			if len(closedLots) > 0 {
				positions = append(positions, closeRoundTrip(tx, closedLots, totalCostBasisSold, saleProceeds))
			}
		}
	}

	for symbol, lots := range symbolLots {
		if pos, ok := openHolding(symbol, lots, quotes); ok {
			positions = append(positions, pos)
		}
	}

	sort.Slice(positions, func(i, j int) bool {
		if positions[i].Symbol != positions[j].Symbol {
			return positions[i].Symbol < positions[j].Symbol
		}
		if positions[i].Type != positions[j].Type {
			return positions[i].Type == "open"
		}
		return positions[i].OpenDate < positions[j].OpenDate
	})

	return positions
}

func closeRoundTrip(tx db.StockTrade, closedLots []Lot, costBasisSold, saleProceeds float64) StockPosition {
	totalShares := 0.0
	weightedBuy := 0.0
	openDate := closedLots[0].Date

	for _, lot := range closedLots {
		totalShares += lot.Shares
		weightedBuy += lot.Price * lot.Shares
		if lot.Date < openDate {
			openDate = lot.Date
		}
	}

	pnl := saleProceeds - costBasisSold
	returnPerc := 0.0
	if costBasisSold > 0 {
		returnPerc = (pnl / costBasisSold) * 100
	}

	return StockPosition{
		Symbol:        tx.Symbol,
		Type:          "closed",
		Shares:        totalShares,
		AvgBuyPrice:   weightedBuy / totalShares,
		AvgSellPrice:  tx.Price,
		CostBasis:     costBasisSold,
		SaleProceeds:  saleProceeds,
		RealizedPnL:   pnl,
		ReturnPercent: returnPerc,
		OpenDate:      openDate,
		CloseDate:     tx.TradeDate,
	}
}

func openHolding(symbol string, lots []Lot, quotes map[string]float64) (StockPosition, bool) {
	if len(lots) == 0 {
		return StockPosition{}, false
	}

	totalShares := 0.0
	totalCostBasis := 0.0
	openDate := lots[0].Date

	for _, lot := range lots {
		totalShares += lot.Shares
		totalCostBasis += lot.CostBasis
		if lot.Date < openDate {
			openDate = lot.Date
		}
	}
	if totalShares <= 0 {
		return StockPosition{}, false
	}

	pos := StockPosition{
		Symbol:      symbol,
		Type:        "open",
		Shares:      totalShares,
		AvgBuyPrice: totalCostBasis / totalShares,
		CostBasis:   totalCostBasis,
		OpenDate:    openDate,
	}

	if price, ok := quotes[symbol]; ok && price > 0 {
		pos.HasQuote = true
		pos.CurrentPrice = price
		pos.MarketValue = price * totalShares
		pos.UnrealizedPnL = pos.MarketValue - totalCostBasis
		if totalCostBasis > 0 {
			pos.UnrealizedPerc = (pos.UnrealizedPnL / totalCostBasis) * 100
		}
	}
	return pos, true
}

// StockCostBasisPerShare returns the average cost per share of the current
// holdings, for covered-call capital attribution.
func StockCostBasisPerShare(trades []db.StockTrade) map[string]float64 {
	symbolLots := make(map[string][]Lot)

	for _, tx := range trades {
		switch tx.Side {
		case "Buy":
			symbolLots[tx.Symbol] = append(symbolLots[tx.Symbol], Lot{
				Date:      tx.TradeDate,
				Shares:    tx.Shares,
				Price:     tx.Price,
				CostBasis: tx.Amount + tx.Commission,
			})

		case "Sell":
			lots := symbolLots[tx.Symbol]
			remainingToSell := tx.Shares
			var newLots []Lot

			for _, lot := range lots {
				if remainingToSell <= 0 {
					newLots = append(newLots, lot)
					continue
				}
				if lot.Shares <= remainingToSell {
					remainingToSell -= lot.Shares
				} else {
					shareFraction := remainingToSell / lot.Shares
					lot.CostBasis -= lot.CostBasis * shareFraction
					lot.Shares -= remainingToSell
					newLots = append(newLots, lot)
					remainingToSell = 0
				}
			}
			symbolLots[tx.Symbol] = newLots
		}
	}

	basis := make(map[string]float64)
	for symbol, lots := range symbolLots {
		totalShares := 0.0
		totalCostBasis := 0.0
		for _, lot := range lots {
			totalShares += lot.Shares
			totalCostBasis += lot.CostBasis
		}
		if totalShares > 0 {
			basis[symbol] = totalCostBasis / totalShares
		}
	}
	return basis
}
