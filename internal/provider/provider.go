// Package provider fetches quotes and news for a symbol from an external
// market data service, falling back to synthetic data whenever the
// service is unavailable.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stockgame/engine/internal/metrics"
	"github.com/stockgame/engine/internal/model"
)

// ErrProviderUnavailable means the external service could not answer:
// network failure, bad status, unknown symbol, or no credentials.
var ErrProviderUnavailable = errors.New("provider: unavailable")

const (
	// MaxNews caps the headlines returned for a symbol.
	MaxNews = 5
	// NewsLookback is how far back news is fetched.
	NewsLookback = 30 * 24 * time.Hour
	// DefaultTimeout bounds a single external request.
	DefaultTimeout = 5 * time.Second
)

// Provider supplies quotes and recent news for one symbol.
type Provider interface {
	GetQuote(ctx context.Context, symbol string) (*model.ExternalQuote, error)
	GetNews(ctx context.Context, symbol string) ([]model.NewsItem, error)
}

// Fallback answers from Primary and, on any error, from Secondary. The
// primary failure is logged and never surfaced to the caller.
type Fallback struct {
	Primary   Provider
	Secondary Provider
	Timeout   time.Duration
	Logger    *slog.Logger
}

// NewFallback chains primary in front of secondary. A nil primary makes
// every call go straight to secondary.
func NewFallback(primary, secondary Provider, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{Primary: primary, Secondary: secondary, Timeout: DefaultTimeout, Logger: logger}
}

func (f *Fallback) GetQuote(ctx context.Context, symbol string) (*model.ExternalQuote, error) {
	if f.Primary != nil {
		pctx, cancel := f.primaryContext(ctx)
		q, err := f.Primary.GetQuote(pctx, symbol)
		cancel()
		if err == nil {
			return q, nil
		}
		f.recordFallback("quote", symbol, err)
	}
	return f.Secondary.GetQuote(ctx, symbol)
}

func (f *Fallback) GetNews(ctx context.Context, symbol string) ([]model.NewsItem, error) {
	if f.Primary != nil {
		pctx, cancel := f.primaryContext(ctx)
		items, err := f.Primary.GetNews(pctx, symbol)
		cancel()
		if err == nil {
			return items, nil
		}
		f.recordFallback("news", symbol, err)
	}
	return f.Secondary.GetNews(ctx, symbol)
}

func (f *Fallback) primaryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.Timeout)
}

func (f *Fallback) recordFallback(op, symbol string, err error) {
	if !errors.Is(err, ErrProviderUnavailable) {
		err = fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	metrics.ProviderFallbacks.WithLabelValues(op).Inc()
	f.Logger.Warn("provider fallback", "op", op, "symbol", symbol, "err", err)
}

// trimNews keeps items that carry a headline, summary and url, newest
// first as given, up to MaxNews.
func trimNews(items []model.NewsItem) []model.NewsItem {
	out := make([]model.NewsItem, 0, MaxNews)
	for _, it := range items {
		if it.Headline == "" || it.Summary == "" || it.URL == "" {
			continue
		}
		out = append(out, it)
		if len(out) == MaxNews {
			break
		}
	}
	return out
}
