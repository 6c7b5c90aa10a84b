package wheel

import (
	"math"
	"sort"
	"strings"
	"time"

	"wheeltracker/pkg/db"
)

const dateLayout = "2006-01-02"

// BuildOptionPositions aggregates journal rows into positions keyed by
// position id. stockCostBasis supplies per-share cost for covered-call
// capital; now decides whether an unclosed position is past expiry.
func BuildOptionPositions(trades []db.OptionTrade, stockCostBasis map[string]float64, now time.Time) []OptionPosition {
	positionMap := make(map[string]*OptionPosition)
	var order []string

	for _, tx := range trades {
		if tx.PositionID == "" {
			continue
		}

		pos, exists := positionMap[tx.PositionID]
		if !exists {
			pos = &OptionPosition{
				PositionID: tx.PositionID,
				Symbol:     tx.Symbol,
				OptionType: tx.OptionType,
				Strike:     tx.Strike,
				Expiry:     tx.Expiry,
				Contracts:  tx.Contracts,
				Status:     StatusOpen,
			}
			positionMap[tx.PositionID] = pos
			order = append(order, tx.PositionID)
		}

		switch tx.Action {
		case db.ActionSellToOpen:
			pos.OpenDate = tx.TradeDate
			pos.PremiumCollected += tx.Premium
			pos.Commissions += tx.Commission
			pos.Capital = capitalRequirement(tx, stockCostBasis)

		case db.ActionBuyToClose:
			pos.PremiumPaid += math.Abs(tx.Premium)
			pos.Commissions += tx.Commission
			pos.CloseDate = tx.TradeDate
			// A roll is a close that immediately reopens at a new strike or
			// expiry; the journal marks it in the notes.
			if strings.Contains(strings.ToLower(tx.Notes), "roll") {
				pos.Status = StatusRolled
			} else {
				pos.Status = StatusClosedEarly
			}

		case db.ActionExpired:
			pos.CloseDate = tx.TradeDate
			pos.Status = StatusExpired

		case db.ActionAssigned:
			pos.CloseDate = tx.TradeDate
			pos.Status = StatusAssigned

		case db.ActionExercised:
			pos.CloseDate = tx.TradeDate
			pos.Status = StatusExercised
		}
	}

	positions := make([]OptionPosition, 0, len(order))
	for _, id := range order {
		pos := positionMap[id]
		finalizeOptionPosition(pos, now)
		positions = append(positions, *pos)
	}

	sort.SliceStable(positions, func(i, j int) bool {
		if positions[i].OpenDate != positions[j].OpenDate {
			return positions[i].OpenDate < positions[j].OpenDate
		}
		return positions[i].PositionID < positions[j].PositionID
	})
	return positions
}

// capitalRequirement computes the capital backing one position: cash-secured
// puts reserve the strike, covered calls are backed by the shares' cost basis
// (spot at entry when the shares aren't in the journal).
func capitalRequirement(tx db.OptionTrade, stockCostBasis map[string]float64) float64 {
	contracts := float64(tx.Contracts)
	if strings.EqualFold(tx.OptionType, "Put") {
		return tx.Strike * contracts * 100
	}
	if basis, ok := stockCostBasis[tx.Symbol]; ok && basis > 0 {
		return basis * contracts * 100
	}
	return tx.StockPrice * contracts * 100
}

func finalizeOptionPosition(pos *OptionPosition, now time.Time) {
	pos.NetPremium = pos.PremiumCollected - pos.PremiumPaid - pos.Commissions
	pos.MaxProfit = pos.PremiumCollected

	if pos.OpenDate != "" && pos.CloseDate != "" {
		if open, err := time.Parse(dateLayout, pos.OpenDate); err == nil {
			if closed, err := time.Parse(dateLayout, pos.CloseDate); err == nil {
				pos.DaysHeld = int(closed.Sub(open).Hours() / 24)
			}
		}
	}

	if pos.OpenDate != "" && pos.Expiry != "" {
		if open, err := time.Parse(dateLayout, pos.OpenDate); err == nil {
			if expiry, err := time.Parse(dateLayout, pos.Expiry); err == nil {
				pos.DaysToExpiry = int(expiry.Sub(open).Hours() / 24)
				if pos.DaysToExpiry < 1 {
					pos.DaysToExpiry = 1
				}
			}
		}
	}

	if pos.Capital > 0 {
		pos.PercentReturn = (pos.NetPremium / pos.Capital) * 100
		// Annualize over the option's lifetime, not days held: an early close
		// does not inflate the rate the position was underwritten at.
		if pos.DaysToExpiry > 0 {
			pos.AnnualizedReturn = (pos.PercentReturn / float64(pos.DaysToExpiry)) * 365
		}
	}

	// An open position past its expiry just hasn't been journaled yet.
	if pos.Status == StatusOpen && pos.CloseDate == "" && pos.Expiry != "" {
		if expiry, err := time.Parse(dateLayout, pos.Expiry); err == nil && now.After(expiry.Add(24*time.Hour)) {
			pos.Status = StatusExpired
			pos.CloseDate = pos.Expiry
		}
	}
}

// AnnualizedReturn converts a premium on capital held for days into a yearly
// rate, in percent.
func AnnualizedReturn(premium, capital float64, days int) float64 {
	if days <= 0 || capital <= 0 {
		return 0
	}
	returnPercent := (premium / capital) * 100
	return (returnPercent / float64(days)) * 365
}

// DaysToExpiry counts days from now until the contract stops trading
// (market close on expiry day, 4 PM ET). Expired contracts report 0.
func DaysToExpiry(expiry string, now time.Time) int {
	expiryDay, err := time.Parse(dateLayout, expiry)
	if err != nil {
		return 0
	}
	cutoff := time.Date(expiryDay.Year(), expiryDay.Month(), expiryDay.Day(),
		16, 0, 0, 0, time.FixedZone("EST", -5*3600))

	days := int(math.Round(cutoff.Sub(now).Hours() / 24))
	if days < 0 {
		return 0
	}
	return days
}
