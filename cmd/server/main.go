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
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stockgame/engine/internal/api"
	"github.com/stockgame/engine/internal/config"
	"github.com/stockgame/engine/internal/game"
	"github.com/stockgame/engine/internal/ledger"
	"github.com/stockgame/engine/internal/market"
	"github.com/stockgame/engine/internal/metrics"
	"github.com/stockgame/engine/internal/provider"
	"github.com/stockgame/engine/internal/store"
	"github.com/stockgame/engine/internal/symbol"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	var cleanup []func()
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	kv, err := openStore(ctx, cfg, &cleanup)
	if err != nil {
		slog.Error("store initialization failed", "err", err)
		os.Exit(1)
	}

	// --- Symbols and market simulation ---
	catalog := symbol.NewCatalog(symbol.All())
	if len(cfg.Symbols) > 0 {
		if catalog, err = symbol.Universe(cfg.Symbols); err != nil {
			slog.Error("invalid SYMBOLS", "err", err)
			os.Exit(1)
		}
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gen := market.NewGenerator(market.NewRNG(seed), catalog)

	// --- Quote/news provider ---
	// The synthetic fallback draws from its own generator so it never
	// shares the session's random stream across goroutines.
	synthetic := provider.NewSynthetic(market.NewGenerator(market.NewRNG(seed+1), catalog), catalog)
	var primary provider.Provider
	switch {
	case cfg.AlpacaEnabled():
		primary = provider.NewAlpaca(cfg.AlpacaKeyID, cfg.AlpacaSecretKey)
		slog.Info("using Alpaca market data")
	case cfg.FinnhubAPIKey != "":
		primary = provider.NewFinnhub(cfg.FinnhubAPIKey, cfg.FinnhubBaseURL, &http.Client{Timeout: provider.DefaultTimeout})
		slog.Info("using Finnhub market data")
	default:
		slog.Info("no market data credentials, using synthetic quotes and news")
	}
	quotes := provider.NewFallback(primary, synthetic, logger)

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run(ctx)

	// --- Game session ---
	states := store.NewStateStore(kv, store.Defaults{
		StartingBalance: cfg.StartingBalance,
		PlayerName:      cfg.PlayerName,
		NewID:           func() string { return uuid.New().String() },
		Now:             func() time.Time { return time.Now().UTC() },
	}, logger)

	session := game.New(game.Config{
		StartingBalance: cfg.StartingBalance,
		HistoryDays:     cfg.HistoryDays,
	}, game.Deps{
		Catalog:   catalog,
		Generator: gen,
		Ledger:    ledger.New(cfg.TransactionFee, ledger.WithFeePolicy(cfg.FeePolicy)),
		Store:     states,
		Provider:  quotes,
		Notifier:  wsHub,
		Logger:    logger,
	})
	session.Load(ctx)

	sched := market.NewScheduler(cfg.UpdateInterval, session.Tick)
	sched.Start(ctx)
	defer sched.Stop()

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"stockgame"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", api.NewService(session, wsHub).Routes)

	// --- Server ---
	srv := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("stockgame listening", "addr", cfg.Addr(),
			"tick", cfg.UpdateInterval.String(),
			"fee", cfg.TransactionFee.String(),
			"fee_policy", cfg.FeePolicy.String(),
			"symbols", len(catalog.Tickers()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	<-ctx.Done()
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down stockgame...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("stockgame stopped")
}

// openStore picks the persistence backend from configuration: PostgreSQL
// or MongoDB as the primary (optionally behind a Redis read cache), Redis
// alone, or memory.
func openStore(ctx context.Context, cfg *config.Config, cleanup *[]func()) (store.KV, error) {
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opt)
		*cleanup = append(*cleanup, func() { rdb.Close() })
	}

	var primary store.KV
	switch {
	case cfg.DatabaseURL != "":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database connection: %w", err)
		}
		*cleanup = append(*cleanup, pool.Close)
		pg := store.NewPostgresKV(pool)
		if err := pg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("database migration: %w", err)
		}
		primary = pg
		slog.Info("connected to PostgreSQL")

	case cfg.MongoURI != "":
		mkv, err := store.NewMongoKV(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		*cleanup = append(*cleanup, func() {
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			mkv.Close(cctx)
		})
		primary = mkv
		slog.Info("connected to MongoDB")

	case rdb != nil:
		slog.Info("using Redis as the game store")
		return store.NewRedisKV(rdb), nil

	default:
		slog.Warn("no DATABASE_URL, MONGO_URI or REDIS_URL set, using in-memory store (data will not persist)")
		return store.NewMemoryKV(), nil
	}

	// Wrap with Redis read-through cache if configured.
	if rdb != nil {
		slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL.String())
		return store.NewCachedKV(primary, rdb, cfg.CacheTTL), nil
	}
	return primary, nil
}
