package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wheeltracker/internal/api"
	"wheeltracker/internal/billing"
	"wheeltracker/internal/events"
	"wheeltracker/internal/monitor"
	"wheeltracker/internal/portfolio"
	"wheeltracker/internal/scanner"
	"wheeltracker/pkg/config"
	"wheeltracker/pkg/db"
	"wheeltracker/pkg/logging"
	"wheeltracker/pkg/prices"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logging.New(logging.Config{
		Level:      cfg.LogLevel,
		Console:    cfg.LogConsole,
		FilePath:   cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	})

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open database")
	}
	defer database.Close()

	if err := db.ApplyMigrations(database); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}
	log.Info().Str("path", cfg.DBPath).Msg("database ready")

	bus := events.NewBus()
	metrics := monitor.NewSystemMetrics()

	// Seed the quote cache from the last stored prices so positions are
	// valued before the first quote update arrives.
	cache := prices.NewCache()
	if quotes, err := database.ListQuotes(context.Background()); err != nil {
		log.Warn().Err(err).Msg("could not seed quote cache")
	} else {
		for _, q := range quotes {
			cache.Set(q.Symbol, q.Price)
		}
		log.Info().Int("quotes", len(quotes)).Msg("quote cache seeded")
	}

	svc := portfolio.NewService(database, cache, bus, metrics, log, cfg.BenchmarkSymbol,
		time.Duration(cfg.SummaryCacheTTLSeconds)*time.Second)

	queries := database.Queries()
	processor := billing.NewProcessor(queries, bus, log)
	entitlement := billing.NewEntitlement(queries, cfg.BillingGraceDays)

	scannerCfg, err := scanner.LoadConfig(cfg.ScannerConfigPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.ScannerConfigPath).Msg("invalid scanner config")
	}
	scn := scanner.New(scannerCfg)

	server := api.NewServer(bus, database, svc, scn, processor, entitlement, metrics, log, cfg.JWTSecret)

	go func() {
		addr := ":" + cfg.Port
		log.Info().Str("addr", addr).Msg("http server listening")
		if err := server.Start(addr); err != nil {
			log.Fatal().Err(err).Msg("http server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")
}
