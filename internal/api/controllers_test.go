package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"wheeltracker/internal/billing"
	"wheeltracker/internal/events"
	"wheeltracker/internal/monitor"
	"wheeltracker/internal/portfolio"
	"wheeltracker/internal/scanner"
	"wheeltracker/pkg/db"
	"wheeltracker/pkg/prices"
)

func newTestAPIServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}

	bus := events.NewBus()
	metrics := monitor.NewSystemMetrics()
	log := zerolog.Nop()

	svc := portfolio.NewService(database, prices.NewCache(), bus, metrics, log, "SPY", 5*time.Second)
	queries := database.Queries()
	proc := billing.NewProcessor(queries, bus, log)
	ent := billing.NewEntitlement(queries, 3)
	scn := scanner.New(scanner.DefaultConfig())

	server := NewServer(bus, database, svc, scn, proc, ent, metrics, log, "test-secret")

	httpServer := httptest.NewServer(server.Router)

	cleanup := func() {
		httpServer.Close()
		_ = database.Close()
	}
	return httpServer, cleanup
}

func doJSONRequest(t *testing.T, client *http.Client, method, url, token string, payload any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func registerAndLogin(t *testing.T, client *http.Client, baseURL string) (string, string) {
	t.Helper()
	var regResp struct {
		UserID string `json:"user_id"`
	}
	status := doJSONRequest(t, client, http.MethodPost, baseURL+"/api/v1/auth/register", "", map[string]string{
		"email":    "tester@example.com",
		"password": "StrongPass123!",
	}, &regResp)
	if status != http.StatusCreated {
		t.Fatalf("register status=%d resp=%+v", status, regResp)
	}

	var loginResp struct {
		Token string `json:"token"`
	}
	status = doJSONRequest(t, client, http.MethodPost, baseURL+"/api/v1/auth/login", "", map[string]string{
		"email":    "tester@example.com",
		"password": "StrongPass123!",
	}, &loginResp)
	if status != http.StatusOK || loginResp.Token == "" {
		t.Fatalf("login failed status=%d resp=%+v", status, loginResp)
	}
	return loginResp.Token, regResp.UserID
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	ts, cleanup := newTestAPIServer(t)
	defer cleanup()

	client := ts.Client()
	status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/v1/dashboard", "", nil, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}
}

func TestCreateOptionTradeValidation(t *testing.T) {
	ts, cleanup := newTestAPIServer(t)
	defer cleanup()

	client := ts.Client()
	token, _ := registerAndLogin(t, client, ts.URL)

	var resp struct {
		Code string `json:"code"`
	}
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/v1/trades/options", token, map[string]any{
		"trade_date": "2025-06-02",
		"action":     "Sell to Open",
		"symbol":     "SOFI",
		// no contracts / strike / expiry
	}, &resp)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if resp.Code != "INVALID_CONTRACT" {
		t.Fatalf("expected code INVALID_CONTRACT, got %s", resp.Code)
	}

	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/v1/trades/options", token, map[string]any{
		"trade_date": "2025-06-02",
		"action":     "Shorted",
		"symbol":     "SOFI",
	}, &resp)
	if status != http.StatusBadRequest || resp.Code != "INVALID_ACTION" {
		t.Fatalf("expected INVALID_ACTION, got status=%d code=%s", status, resp.Code)
	}
}

func TestOptionTradeLifecycleAndDashboard(t *testing.T) {
	ts, cleanup := newTestAPIServer(t)
	defer cleanup()

	client := ts.Client()
	token, _ := registerAndLogin(t, client, ts.URL)

	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/v1/cashflows", token, map[string]any{
		"flow_date": "2025-05-01",
		"kind":      "DEPOSIT",
		"amount":    20000,
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("create cash flow status=%d", status)
	}

	var created struct {
		ID         string `json:"ID"`
		PositionID string `json:"PositionID"`
	}
	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/v1/trades/options", token, map[string]any{
		"trade_date":  "2025-06-02",
		"action":      "Sell to Open",
		"symbol":      "SOFI",
		"option_type": "Put",
		"strike":      8,
		"expiry":      "2099-01-15",
		"contracts":   1,
		"premium":     25,
	}, &created)
	if status != http.StatusCreated || created.ID == "" {
		t.Fatalf("create trade status=%d resp=%+v", status, created)
	}
	if created.PositionID != created.ID {
		t.Errorf("blank position id should default to the trade id")
	}

	var listResp struct {
		Count int `json:"count"`
	}
	status = doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/v1/trades/options", token, nil, &listResp)
	if status != http.StatusOK || listResp.Count != 1 {
		t.Fatalf("list status=%d count=%d", status, listResp.Count)
	}

	var dashboard struct {
		TotalPremiums  float64 `json:"total_premiums"`
		PortfolioValue float64 `json:"portfolio_value"`
	}
	status = doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/v1/dashboard", token, nil, &dashboard)
	if status != http.StatusOK {
		t.Fatalf("dashboard status=%d", status)
	}
	if dashboard.TotalPremiums != 25 {
		t.Errorf("premiums = %v, want 25", dashboard.TotalPremiums)
	}
	if dashboard.PortfolioValue != 20025 {
		t.Errorf("portfolio value = %v, want 20025", dashboard.PortfolioValue)
	}

	status = doJSONRequest(t, client, http.MethodDelete, ts.URL+"/api/v1/trades/options/"+created.ID, token, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("delete status=%d", status)
	}

	status = doJSONRequest(t, client, http.MethodDelete, ts.URL+"/api/v1/trades/options/"+created.ID, token, nil, nil)
	if status != http.StatusNotFound {
		t.Fatalf("second delete status=%d, want 404", status)
	}
}

func TestWeeklyAndPositionsEndpoints(t *testing.T) {
	ts, cleanup := newTestAPIServer(t)
	defer cleanup()

	client := ts.Client()
	token, _ := registerAndLogin(t, client, ts.URL)

	today := time.Now().Format("2006-01-02")
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/v1/trades/options", token, map[string]any{
		"trade_date":  today,
		"action":      "Sell to Open",
		"symbol":      "SOFI",
		"option_type": "Put",
		"strike":      8,
		"expiry":      "2099-01-15",
		"contracts":   1,
		"premium":     25,
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("create trade status=%d", status)
	}

	var positions struct {
		Options []json.RawMessage `json:"options"`
	}
	status = doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/v1/positions", token, nil, &positions)
	if status != http.StatusOK || len(positions.Options) != 1 {
		t.Fatalf("positions status=%d options=%d", status, len(positions.Options))
	}

	var weekly struct {
		WeeklyPL float64 `json:"weekly_pl"`
		Status   string  `json:"status"`
	}
	status = doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/v1/weekly", token, nil, &weekly)
	if status != http.StatusOK {
		t.Fatalf("weekly status=%d", status)
	}
	if weekly.WeeklyPL != 25 {
		t.Errorf("weekly P&L = %v, want 25 (trade opened today)", weekly.WeeklyPL)
	}
}

func TestBenchmarkEndpoint(t *testing.T) {
	ts, cleanup := newTestAPIServer(t)
	defer cleanup()

	client := ts.Client()
	token, _ := registerAndLogin(t, client, ts.URL)

	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/v1/benchmark/prices", token, map[string]any{
		"symbol":     "SPY",
		"price_date": "2025-04-01",
		"close":      500,
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("benchmark price status=%d", status)
	}

	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/v1/cashflows", token, map[string]any{
		"flow_date": "2025-05-01",
		"kind":      "DEPOSIT",
		"amount":    10000,
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("cash flow status=%d", status)
	}

	var cmp struct {
		Available bool    `json:"available"`
		Shares    float64 `json:"shares"`
	}
	status = doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/v1/benchmark", token, nil, &cmp)
	if status != http.StatusOK {
		t.Fatalf("benchmark status=%d", status)
	}
	if !cmp.Available || cmp.Shares != 20 {
		t.Errorf("comparison = %+v, want 20 shares available", cmp)
	}
}

func webhookEvent(id, userID string) map[string]any {
	return map[string]any{
		"id":      id,
		"type":    "checkout.session.completed",
		"created": 1735689600,
		"data": map[string]any{
			"object": map[string]any{
				"id":                  "cs_1",
				"client_reference_id": userID,
				"customer":            "cus_9",
				"subscription":        "sub_1",
			},
		},
	}
}

func TestScannerGatedBySubscription(t *testing.T) {
	ts, cleanup := newTestAPIServer(t)
	defer cleanup()

	client := ts.Client()
	token, userID := registerAndLogin(t, client, ts.URL)

	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/v1/cashflows", token, map[string]any{
		"flow_date": "2025-05-01",
		"kind":      "DEPOSIT",
		"amount":    20000,
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("cash flow status=%d", status)
	}

	scanPayload := map[string]any{
		"candidates": []map[string]any{{
			"symbol":      "SOFI",
			"option_type": "Put",
			"strike":      8,
			"expiry":      "2099-01-15",
			"premium":     25,
			"delta":       -0.30,
			"dte":         30,
			"stock_price": 8.5,
		}},
	}

	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/v1/scanner/scan", token, scanPayload, nil)
	if status != http.StatusPaymentRequired {
		t.Fatalf("free-tier scan status=%d, want 402", status)
	}

	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/v1/billing/webhook", "", webhookEvent("evt_1", userID), nil)
	if status != http.StatusOK {
		t.Fatalf("webhook status=%d", status)
	}

	var scanResp struct {
		Count   int `json:"count"`
		Results []struct {
			Score      float64 `json:"score"`
			Eliminated bool    `json:"eliminated"`
		} `json:"results"`
	}
	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/v1/scanner/scan", token, scanPayload, &scanResp)
	if status != http.StatusOK {
		t.Fatalf("pro scan status=%d", status)
	}
	if scanResp.Count != 1 || scanResp.Results[0].Eliminated {
		t.Fatalf("scan resp = %+v, want one scored result", scanResp)
	}
}

func TestWebhookIdempotencyAndSubscriptionView(t *testing.T) {
	ts, cleanup := newTestAPIServer(t)
	defer cleanup()

	client := ts.Client()
	token, userID := registerAndLogin(t, client, ts.URL)

	var whResp struct {
		Received  bool `json:"received"`
		Duplicate bool `json:"duplicate"`
	}
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/v1/billing/webhook", "", webhookEvent("evt_1", userID), &whResp)
	if status != http.StatusOK || whResp.Duplicate {
		t.Fatalf("first webhook status=%d resp=%+v", status, whResp)
	}

	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/v1/billing/webhook", "", webhookEvent("evt_1", userID), &whResp)
	if status != http.StatusOK || !whResp.Duplicate {
		t.Fatalf("replay webhook status=%d resp=%+v, want duplicate ack", status, whResp)
	}

	var sub struct {
		Plan   string `json:"plan"`
		Status string `json:"status"`
		Pro    bool   `json:"pro"`
	}
	status = doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/v1/billing/subscription", token, nil, &sub)
	if status != http.StatusOK {
		t.Fatalf("subscription status=%d", status)
	}
	if !sub.Pro || sub.Status != "active" {
		t.Errorf("subscription = %+v, want active pro", sub)
	}
}

func TestWebhookRejectsGarbage(t *testing.T) {
	ts, cleanup := newTestAPIServer(t)
	defer cleanup()

	client := ts.Client()
	resp, err := client.Post(ts.URL+"/api/v1/billing/webhook", "application/json", bytes.NewBufferString("not json"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("garbage webhook status=%d, want 400", resp.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts, cleanup := newTestAPIServer(t)
	defer cleanup()

	client := ts.Client()
	var health struct {
		Status string `json:"status"`
	}
	if status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/health", "", nil, &health); status != http.StatusOK || health.Status != "ok" {
		t.Fatalf("health status=%d body=%+v", status, health)
	}

	var metrics struct {
		APIRequests uint64 `json:"api_requests"`
	}
	if status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/v1/metrics", "", nil, &metrics); status != http.StatusOK {
		t.Fatalf("metrics status=%d", status)
	}
	if metrics.APIRequests == 0 {
		t.Error("api request counter should have counted the health check")
	}
}

func TestDataIsolationBetweenUsers(t *testing.T) {
	ts, cleanup := newTestAPIServer(t)
	defer cleanup()

	client := ts.Client()
	tokenA, _ := registerAndLogin(t, client, ts.URL)

	// Second user.
	var reg struct {
		UserID string `json:"user_id"`
	}
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/v1/auth/register", "", map[string]string{
		"email":    "other@example.com",
		"password": "StrongPass123!",
	}, &reg)
	if status != http.StatusCreated {
		t.Fatalf("second register status=%d", status)
	}
	var login struct {
		Token string `json:"token"`
	}
	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/v1/auth/login", "", map[string]string{
		"email":    "other@example.com",
		"password": "StrongPass123!",
	}, &login)
	if status != http.StatusOK {
		t.Fatalf("second login status=%d", status)
	}
	tokenB := login.Token

	status = doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/v1/trades/stocks", tokenA, map[string]any{
		"trade_date": "2025-06-05",
		"side":       "Buy",
		"symbol":     "F",
		"shares":     100,
		"price":      12,
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("create stock trade status=%d", status)
	}

	var listResp struct {
		Count int `json:"count"`
	}
	status = doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/v1/trades/stocks", tokenB, nil, &listResp)
	if status != http.StatusOK {
		t.Fatalf("list status=%d", status)
	}
	if listResp.Count != 0 {
		t.Fatalf("user B sees %d of user A's trades", listResp.Count)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ts, cleanup := newTestAPIServer(t)
	defer cleanup()

	client := ts.Client()
	registerAndLogin(t, client, ts.URL)

	var resp struct {
		Code string `json:"code"`
	}
	status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/v1/auth/register", "", map[string]string{
		"email":    "tester@example.com",
		"password": "AnotherPass456!",
	}, &resp)
	if status != http.StatusConflict {
		t.Fatalf("duplicate register status=%d, want 409", status)
	}
	if resp.Code != "EMAIL_ALREADY_REGISTERED" {
		t.Fatalf("code = %s", resp.Code)
	}
}
