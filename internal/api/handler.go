package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"wheeltracker/internal/billing"
	"wheeltracker/internal/events"
	"wheeltracker/internal/monitor"
	"wheeltracker/internal/portfolio"
	"wheeltracker/internal/scanner"
	"wheeltracker/pkg/db"
)

// Server wires HTTP endpoints around the portfolio service and event bus.
type Server struct {
	Router      *gin.Engine
	Bus         *events.Bus
	DB          *db.Database
	Portfolio   *portfolio.Service
	Scanner     *scanner.Scanner
	Billing     *billing.Processor
	Entitlement *billing.Entitlement
	Metrics     *monitor.SystemMetrics
	JWTSecret   string
	Log         zerolog.Logger
}

func NewServer(bus *events.Bus, database *db.Database, svc *portfolio.Service, scn *scanner.Scanner, proc *billing.Processor, ent *billing.Entitlement, metrics *monitor.SystemMetrics, log zerolog.Logger, jwtSecret string) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(log, metrics))
	r.Use(RateLimitMiddleware(log))
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:      r,
		Bus:         bus,
		DB:          database,
		Portfolio:   svc,
		Scanner:     scn,
		Billing:     proc,
		Entitlement: ent,
		Metrics:     metrics,
		JWTSecret:   jwtSecret,
		Log:         log.With().Str("component", "api").Logger(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api/v1")
	{
		api.GET("/metrics", s.getMetrics)

		// Auth endpoints (no auth required)
		auth := api.Group("/auth")
		{
			auth.POST("/register", s.registerUser)
			auth.POST("/login", s.loginUser)
		}

		// The provider calls this; it carries no user token.
		api.POST("/billing/webhook", s.billingWebhook)

		// Protected API
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/trades/options", s.listOptionTrades)
			protected.POST("/trades/options", s.createOptionTrade)
			protected.DELETE("/trades/options/:id", s.deleteOptionTrade)

			protected.GET("/trades/stocks", s.listStockTrades)
			protected.POST("/trades/stocks", s.createStockTrade)
			protected.DELETE("/trades/stocks/:id", s.deleteStockTrade)

			protected.GET("/cashflows", s.listCashFlows)
			protected.POST("/cashflows", s.createCashFlow)

			protected.GET("/dashboard", s.getDashboard)
			protected.GET("/positions", s.getPositions)
			protected.GET("/weekly", s.getWeekly)
			protected.GET("/benchmark", s.getBenchmark)

			protected.GET("/quotes", s.listQuotes)
			protected.POST("/quotes", s.upsertQuote)
			protected.POST("/benchmark/prices", s.upsertBenchmarkPrice)

			protected.GET("/billing/subscription", s.getSubscription)

			// Paid tier
			pro := protected.Group("")
			pro.Use(s.RequireProMiddleware())
			{
				pro.POST("/scanner/scan", s.scanCandidates)
			}
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.Metrics.Snapshot())
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
