// Package scanner ranks option candidates for the next wheel entry. Hard
// limits eliminate candidates the account cannot responsibly take; the rest
// get a 0-100 composite score from the configured weights.
package scanner

import (
	"math"
	"sort"
	"strings"

	"wheeltracker/internal/wheel"
)

// Candidate is one option the user is considering selling.
type Candidate struct {
	Symbol     string  `json:"symbol"`
	OptionType string  `json:"option_type"` // "Call" or "Put"
	Strike     float64 `json:"strike"`
	Expiry     string  `json:"expiry"`
	Premium    float64 `json:"premium"` // per contract, at the bid
	Delta      float64 `json:"delta"`
	DTE        int     `json:"dte"`
	StockPrice float64 `json:"stock_price"`
	Sector     string  `json:"sector"`
	Contracts  int     `json:"contracts"`
}

// Account is the state the eliminations are judged against.
type Account struct {
	AvailableCapital float64
	NetWorth         float64
	SectorExposure   map[string]float64 // current dollars at risk per sector
}

// Result is a scored (or eliminated) candidate.
type Result struct {
	Candidate        Candidate          `json:"candidate"`
	Capital          float64            `json:"capital"`
	AnnualizedReturn float64            `json:"annualized_return"`
	PremiumPercent   float64            `json:"premium_percent"`
	Score            float64            `json:"score"`
	Components       map[string]float64 `json:"components,omitempty"`
	Eliminated       bool               `json:"eliminated"`
	Reason           string             `json:"reason,omitempty"`
}

// Scanner scores candidates against one account's state.
type Scanner struct {
	cfg Config
}

func New(cfg Config) *Scanner {
	return &Scanner{cfg: cfg}
}

// Scan evaluates all candidates and returns them ordered best-first, with
// eliminated candidates after the scored ones.
func (s *Scanner) Scan(candidates []Candidate, account Account) []Result {
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, s.Evaluate(c, account))
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Eliminated != results[j].Eliminated {
			return !results[i].Eliminated
		}
		return results[i].Score > results[j].Score
	})
	return results
}

// Evaluate runs the eliminations and, if the candidate survives, scores it.
func (s *Scanner) Evaluate(c Candidate, account Account) Result {
	contracts := c.Contracts
	if contracts < 1 {
		contracts = 1
	}

	capital := candidateCapital(c, contracts)
	res := Result{Candidate: c, Capital: capital}

	if reason := s.eliminate(c, capital, account); reason != "" {
		res.Eliminated = true
		res.Reason = reason
		return res
	}

	premium := c.Premium * float64(contracts)
	res.AnnualizedReturn = wheel.AnnualizedReturn(premium, capital, c.DTE)
	if capital > 0 {
		res.PremiumPercent = premium / capital * 100
	}

	res.Components = map[string]float64{
		"annualized_return": clampScore(res.AnnualizedReturn / s.cfg.Targets.AnnualizedReturn * 100),
		"premium_percent":   clampScore(res.PremiumPercent / s.cfg.Targets.PremiumPercent * 100),
		"dte_fit":           s.dteFit(c.DTE),
		"delta_proximity":   s.deltaProximity(c.Delta),
	}

	w := s.cfg.Weights
	totalWeight := w.AnnualizedReturn + w.PremiumPercent + w.DTEFit + w.DeltaProximity
	res.Score = (res.Components["annualized_return"]*w.AnnualizedReturn +
		res.Components["premium_percent"]*w.PremiumPercent +
		res.Components["dte_fit"]*w.DTEFit +
		res.Components["delta_proximity"]*w.DeltaProximity) / totalWeight

	return res
}

func (s *Scanner) eliminate(c Candidate, capital float64, account Account) string {
	if capital <= 0 {
		return "no capital requirement could be computed"
	}
	if capital > account.AvailableCapital {
		return "insufficient capital"
	}
	if account.NetWorth > 0 {
		if capital/account.NetWorth*100 > s.cfg.Limits.MaxPositionPercent {
			return "position exceeds size limit"
		}
		sector := strings.TrimSpace(c.Sector)
		if sector != "" {
			exposure := account.SectorExposure[sector] + capital
			if exposure/account.NetWorth*100 > s.cfg.Limits.MaxSectorPercent {
				return "sector concentration limit"
			}
		}
	}
	if c.DTE < s.cfg.Targets.MinDTE || c.DTE > s.cfg.Targets.MaxDTE {
		return "expiry outside the dte window"
	}
	return ""
}

// dteFit is 100 at the ideal DTE, falling off linearly with distance.
func (s *Scanner) dteFit(dte int) float64 {
	ideal := float64(s.cfg.Targets.IdealDTE)
	distance := math.Abs(float64(dte) - ideal)
	return clampScore(100 - distance/ideal*100)
}

// deltaProximity is 100 at the target delta, falling off linearly.
func (s *Scanner) deltaProximity(delta float64) float64 {
	target := s.cfg.Targets.Delta
	distance := math.Abs(math.Abs(delta) - target)
	return clampScore(100 - distance/target*100)
}

// candidateCapital mirrors position accounting: puts reserve the strike,
// calls are backed by shares at the current price.
func candidateCapital(c Candidate, contracts int) float64 {
	if strings.EqualFold(c.OptionType, "Put") {
		return c.Strike * float64(contracts) * 100
	}
	return c.StockPrice * float64(contracts) * 100
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
