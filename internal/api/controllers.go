package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"wheeltracker/internal/billing"
	"wheeltracker/internal/scanner"
	"wheeltracker/pkg/db"
)

const dateLayout = "2006-01-02"

func validDate(s string) bool {
	_, err := time.Parse(dateLayout, s)
	return err == nil
}

func badRequest(c *gin.Context, code, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": code, "error": msg})
}

func internalError(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
}

// ----------------------------------------
// Option trades
// ----------------------------------------

var validActions = map[string]bool{
	db.ActionSellToOpen: true,
	db.ActionBuyToClose: true,
	db.ActionExpired:    true,
	db.ActionAssigned:   true,
	db.ActionExercised:  true,
}

func (s *Server) listOptionTrades(c *gin.Context) {
	trades, err := s.Portfolio.Queries().ListOptionTrades(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

func (s *Server) createOptionTrade(c *gin.Context) {
	var req struct {
		PositionID string  `json:"position_id"`
		TradeDate  string  `json:"trade_date"`
		Action     string  `json:"action"`
		Symbol     string  `json:"symbol"`
		OptionType string  `json:"option_type"`
		Strike     float64 `json:"strike"`
		Expiry     string  `json:"expiry"`
		Contracts  int     `json:"contracts"`
		Premium    float64 `json:"premium"`
		StockPrice float64 `json:"stock_price"`
		Commission float64 `json:"commission"`
		Notes      string  `json:"notes"`
	}
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "INVALID_PAYLOAD", "invalid request payload")
		return
	}

	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	switch {
	case req.Symbol == "":
		badRequest(c, "MISSING_SYMBOL", "symbol is required")
		return
	case !validDate(req.TradeDate):
		badRequest(c, "INVALID_DATE", "trade_date must be YYYY-MM-DD")
		return
	case !validActions[req.Action]:
		badRequest(c, "INVALID_ACTION", "unknown trade action")
		return
	case req.Action == db.ActionSellToOpen && (req.Contracts <= 0 || req.Strike <= 0 || !validDate(req.Expiry)):
		badRequest(c, "INVALID_CONTRACT", "opening trades need contracts, strike and expiry")
		return
	}

	trade, err := s.Portfolio.AddOptionTrade(c.Request.Context(), db.OptionTrade{
		UserID:     CurrentUserID(c),
		PositionID: req.PositionID,
		TradeDate:  req.TradeDate,
		Action:     req.Action,
		Symbol:     req.Symbol,
		OptionType: req.OptionType,
		Strike:     req.Strike,
		Expiry:     req.Expiry,
		Contracts:  req.Contracts,
		Premium:    req.Premium,
		StockPrice: req.StockPrice,
		Commission: req.Commission,
		Notes:      req.Notes,
	})
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusCreated, trade)
}

func (s *Server) deleteOptionTrade(c *gin.Context) {
	err := s.Portfolio.DeleteOptionTrade(c.Request.Context(), CurrentUserID(c), c.Param("id"))
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": "trade not found"})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

// ----------------------------------------
// Stock trades
// ----------------------------------------

func (s *Server) listStockTrades(c *gin.Context) {
	trades, err := s.Portfolio.Queries().ListStockTrades(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

func (s *Server) createStockTrade(c *gin.Context) {
	var req struct {
		TradeDate  string  `json:"trade_date"`
		Side       string  `json:"side"`
		Symbol     string  `json:"symbol"`
		Shares     float64 `json:"shares"`
		Price      float64 `json:"price"`
		Commission float64 `json:"commission"`
	}
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "INVALID_PAYLOAD", "invalid request payload")
		return
	}

	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	switch {
	case req.Symbol == "":
		badRequest(c, "MISSING_SYMBOL", "symbol is required")
		return
	case !validDate(req.TradeDate):
		badRequest(c, "INVALID_DATE", "trade_date must be YYYY-MM-DD")
		return
	case req.Side != "Buy" && req.Side != "Sell":
		badRequest(c, "INVALID_SIDE", `side must be "Buy" or "Sell"`)
		return
	case req.Shares <= 0 || req.Price <= 0:
		badRequest(c, "INVALID_QUANTITY", "shares and price must be positive")
		return
	}

	trade, err := s.Portfolio.AddStockTrade(c.Request.Context(), db.StockTrade{
		UserID:     CurrentUserID(c),
		TradeDate:  req.TradeDate,
		Side:       req.Side,
		Symbol:     req.Symbol,
		Shares:     req.Shares,
		Price:      req.Price,
		Commission: req.Commission,
	})
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusCreated, trade)
}

func (s *Server) deleteStockTrade(c *gin.Context) {
	err := s.Portfolio.DeleteStockTrade(c.Request.Context(), CurrentUserID(c), c.Param("id"))
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": "trade not found"})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

// ----------------------------------------
// Cash flows
// ----------------------------------------

func (s *Server) listCashFlows(c *gin.Context) {
	flows, err := s.Portfolio.Queries().ListCashFlows(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cash_flows": flows, "count": len(flows)})
}

func (s *Server) createCashFlow(c *gin.Context) {
	var req struct {
		FlowDate string  `json:"flow_date"`
		Kind     string  `json:"kind"`
		Amount   float64 `json:"amount"`
	}
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "INVALID_PAYLOAD", "invalid request payload")
		return
	}

	req.Kind = strings.ToUpper(strings.TrimSpace(req.Kind))
	switch {
	case !validDate(req.FlowDate):
		badRequest(c, "INVALID_DATE", "flow_date must be YYYY-MM-DD")
		return
	case req.Kind != db.FlowDeposit && req.Kind != db.FlowWithdrawal:
		badRequest(c, "INVALID_KIND", "kind must be DEPOSIT or WITHDRAWAL")
		return
	case req.Amount <= 0:
		badRequest(c, "INVALID_AMOUNT", "amount must be positive")
		return
	}

	flow, err := s.Portfolio.AddCashFlow(c.Request.Context(), db.CashFlow{
		UserID:   CurrentUserID(c),
		FlowDate: req.FlowDate,
		Kind:     req.Kind,
		Amount:   req.Amount,
	})
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusCreated, flow)
}

// ----------------------------------------
// Read models
// ----------------------------------------

func (s *Server) getDashboard(c *gin.Context) {
	summary, err := s.Portfolio.Summary(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) getPositions(c *gin.Context) {
	positions, err := s.Portfolio.Positions(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, positions)
}

func (s *Server) getWeekly(c *gin.Context) {
	weekly, err := s.Portfolio.Weekly(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, weekly)
}

func (s *Server) getBenchmark(c *gin.Context) {
	cmp, err := s.Portfolio.Benchmark(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

// ----------------------------------------
// Quotes and benchmark prices
// ----------------------------------------

func (s *Server) listQuotes(c *gin.Context) {
	quotes, err := s.DB.ListQuotes(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quotes": quotes, "count": len(quotes)})
}

func (s *Server) upsertQuote(c *gin.Context) {
	var req struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
		Sector string  `json:"sector"`
	}
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "INVALID_PAYLOAD", "invalid request payload")
		return
	}
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" || req.Price <= 0 {
		badRequest(c, "INVALID_QUOTE", "symbol and a positive price are required")
		return
	}

	if err := s.Portfolio.UpdateQuote(c.Request.Context(), db.Quote{
		Symbol: req.Symbol,
		Price:  req.Price,
		Sector: req.Sector,
	}); err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": req.Symbol, "price": req.Price})
}

func (s *Server) upsertBenchmarkPrice(c *gin.Context) {
	var req struct {
		Symbol    string  `json:"symbol"`
		PriceDate string  `json:"price_date"`
		Close     float64 `json:"close"`
	}
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "INVALID_PAYLOAD", "invalid request payload")
		return
	}
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" || req.Close <= 0 || !validDate(req.PriceDate) {
		badRequest(c, "INVALID_PRICE", "symbol, price_date and a positive close are required")
		return
	}

	if err := s.DB.UpsertBenchmarkPrice(c.Request.Context(), db.BenchmarkPrice{
		Symbol:    req.Symbol,
		PriceDate: req.PriceDate,
		Close:     req.Close,
	}); err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": req.Symbol, "price_date": req.PriceDate})
}

// ----------------------------------------
// Billing
// ----------------------------------------

func (s *Server) getSubscription(c *gin.Context) {
	userID := CurrentUserID(c)
	sub, err := s.Portfolio.Queries().GetSubscription(c.Request.Context(), userID)
	if err != nil {
		internalError(c, err)
		return
	}

	pro, err := s.Entitlement.IsPro(c.Request.Context(), userID)
	if err != nil {
		internalError(c, err)
		return
	}

	if sub == nil {
		c.JSON(http.StatusOK, gin.H{"plan": "free", "status": "none", "pro": pro})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"plan":                 sub.Plan,
		"status":               sub.Status,
		"pro":                  pro,
		"current_period_end":   sub.CurrentPeriodEnd,
		"cancel_at_period_end": sub.CancelAtPeriodEnd,
	})
}

func (s *Server) billingWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		badRequest(c, "INVALID_PAYLOAD", "unreadable request body")
		return
	}

	duplicate, err := s.Billing.Process(c.Request.Context(), body)
	if errors.Is(err, billing.ErrBadPayload) {
		badRequest(c, "INVALID_EVENT", "unparseable webhook event")
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}

	if s.Metrics != nil {
		s.Metrics.IncrementWebhook(duplicate)
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": duplicate})
}

// ----------------------------------------
// Scanner (paid tier)
// ----------------------------------------

func (s *Server) scanCandidates(c *gin.Context) {
	var req struct {
		Candidates []scanner.Candidate `json:"candidates"`
	}
	if err := c.BindJSON(&req); err != nil {
		badRequest(c, "INVALID_PAYLOAD", "invalid request payload")
		return
	}
	if len(req.Candidates) == 0 {
		badRequest(c, "NO_CANDIDATES", "at least one candidate is required")
		return
	}

	account, err := s.Portfolio.Account(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		internalError(c, err)
		return
	}

	results := s.Scanner.Scan(req.Candidates, scanner.Account{
		AvailableCapital: account.AvailableCapital,
		NetWorth:         account.NetWorth,
		SectorExposure:   account.SectorExposure,
	})
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}
