// Package metrics provides Prometheus instrumentation for the game engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts executed trades, partitioned by action.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockgame_trades_total",
		Help: "Total number of trades executed",
	}, []string{"action"})

	// TradeRejections counts trades refused by validation, by reason.
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockgame_trade_rejections_total",
		Help: "Trades rejected before execution",
	}, []string{"reason"})

	// TradeLatency observes trade command latency including persistence.
	TradeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockgame_trade_latency_seconds",
		Help:    "Trade execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	// PriceTicks counts scheduler price update cycles.
	PriceTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockgame_price_ticks_total",
		Help: "Price update cycles applied",
	})

	// PortfolioValue tracks the player's total account value.
	PortfolioValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stockgame_portfolio_value",
		Help: "Player cash plus holdings at current prices",
	})

	// PlayerLevel tracks the player's level.
	PlayerLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stockgame_player_level",
		Help: "Current player level",
	})

	// AchievementsUnlocked counts achievements earned, by id.
	AchievementsUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockgame_achievements_unlocked_total",
		Help: "Achievements unlocked",
	}, []string{"achievement"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stockgame_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// PersistenceFailures counts state saves that failed.
	PersistenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockgame_persistence_failures_total",
		Help: "State save failures",
	})

	// ProviderFallbacks counts external provider calls answered synthetically.
	ProviderFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockgame_provider_fallbacks_total",
		Help: "External provider failures recovered by the synthetic provider",
	}, []string{"op"})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockgame_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockgame_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Label by route pattern so /stocks/{symbol} is one series.
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if pattern := rc.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
