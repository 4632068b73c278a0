package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/sapp/margin-engine/internal/ledger"
	"github.com/sapp/margin-engine/internal/market"
	"github.com/sapp/margin-engine/internal/metrics"
	"github.com/sapp/margin-engine/internal/oracle"
	"github.com/sapp/margin-engine/internal/spread"
	"github.com/sapp/margin-engine/internal/store"
	"github.com/sapp/margin-engine/internal/stream"
	"github.com/sapp/margin-engine/internal/treasury"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize stores ---
	var st store.Store
	var ephemeral store.EphemeralPriceStore
	var tr treasury.Treasury = treasury.NewLogTreasury()
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		tr = treasury.NewJournalTreasury(pool)
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		ephemeral = store.NewRedisPriceStore(rdb)
		slog.Info("Redis exclusive-price tier enabled")
	} else {
		slog.Warn("REDIS_URL not set, using in-memory exclusive-price tier")
		ephemeral = store.NewMemoryPriceStore(nil)
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- WebSocket hub ---
	hub := stream.NewHub()
	go hub.Run()

	// --- Engine services ---
	gateway := oracle.NewGateway(st, ephemeral, hub, nil)
	registry := market.NewRegistry(st, gateway)
	ledgerSvc := ledger.NewService(st, gateway, tr, hub, nil)
	spreadSvc := spread.NewService(st, registry, tr, hub, nil)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"margin-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time price and position events.
		r.Get("/ws", hub.HandleWS)

		// One-time bootstrap and admin queries.
		r.Post("/initialize", ledgerSvc.HandleInitialize)
		r.Get("/admin", ledgerSvc.HandleAdmin)

		// Oracle price surface.
		r.Post("/prices", gateway.HandleUpdatePrice)
		r.Get("/prices/{asset}", gateway.HandleAssetPrice)

		// Single-asset positions.
		r.Post("/positions", ledgerSvc.HandleOpen)
		r.Get("/positions", ledgerSvc.HandleActivePositions)
		r.Get("/positions/{positionID}", ledgerSvc.HandleGetPosition)
		r.Get("/positions/{positionID}/risk", ledgerSvc.HandleAtRisk)
		r.Post("/positions/{positionID}/close", ledgerSvc.HandleClose)
		r.Post("/positions/{positionID}/liquidate", ledgerSvc.HandleLiquidate)
		r.Get("/users/{userID}/positions", ledgerSvc.HandleUserPositions)

		// Exclusive derivative markets and spreads.
		r.Post("/exclusive/markets", registry.HandleRegister)
		r.Post("/exclusive/prices", gateway.HandleUpdateExclusivePrice)
		r.Get("/exclusive/prices/{market}", gateway.HandleExclusivePrice)
		r.Get("/exclusive/spread", registry.HandleSpreadPrice)
		r.Post("/spreads", spreadSvc.HandleOpen)
		r.Get("/spreads/{spreadID}", spreadSvc.HandleGet)
		r.Post("/spreads/{spreadID}/close", spreadSvc.HandleClose)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("margin-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down margin-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("margin-engine stopped")
}
