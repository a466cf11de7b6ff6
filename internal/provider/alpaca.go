package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"github.com/stockgame/engine/internal/model"
)

// Alpaca reads snapshots and news from the Alpaca market data API.
type Alpaca struct {
	mdClient *marketdata.Client
	now      func() time.Time
}

// NewAlpaca creates a provider with the given API credentials. Each HTTP
// request is bounded by DefaultTimeout and retried at most once.
func NewAlpaca(apiKey, apiSecret string) *Alpaca {
	return &Alpaca{
		mdClient: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:     apiKey,
			APISecret:  apiSecret,
			RetryLimit: 1,
			RetryDelay: 200 * time.Millisecond,
			HTTPClient: &http.Client{Timeout: DefaultTimeout},
		}),
		now: time.Now,
	}
}

// await runs fn in the background and returns early if ctx ends first. The
// marketdata client takes no context, so an abandoned call finishes on its
// own within the HTTP client timeout.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// GetQuote builds a quote from the latest trade and daily bars.
func (a *Alpaca) GetQuote(ctx context.Context, symbol string) (*model.ExternalQuote, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	snap, err := await(ctx, func() (*marketdata.Snapshot, error) {
		return a.mdClient.GetSnapshot(symbol, marketdata.GetSnapshotRequest{})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot %s: %v", ErrProviderUnavailable, symbol, err)
	}
	if snap == nil || snap.LatestTrade == nil || snap.LatestTrade.Price == 0 {
		return nil, fmt.Errorf("%w: no snapshot for %s", ErrProviderUnavailable, symbol)
	}

	price := decimal.NewFromFloat(snap.LatestTrade.Price)
	q := &model.ExternalQuote{CurrentPrice: price}
	if bar := snap.DailyBar; bar != nil {
		q.Open = decimal.NewFromFloat(bar.Open)
		q.DayHigh = decimal.NewFromFloat(bar.High)
		q.DayLow = decimal.NewFromFloat(bar.Low)
	}
	if prev := snap.PrevDailyBar; prev != nil && prev.Close > 0 {
		pc := decimal.NewFromFloat(prev.Close)
		q.PreviousClose = pc
		q.Change = model.RoundMoney(price.Sub(pc))
		q.ChangePercent = model.RoundMoney(price.Sub(pc).Div(pc).Mul(decimal.NewFromInt(100)))
	}
	return q, nil
}

// GetNews returns recent headlines for the symbol.
func (a *Alpaca) GetNews(ctx context.Context, symbol string) ([]model.NewsItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	now := a.now()
	news, err := await(ctx, func() ([]marketdata.News, error) {
		return a.mdClient.GetNews(marketdata.GetNewsRequest{
			Symbols:    []string{symbol},
			Start:      now.Add(-NewsLookback),
			End:        now,
			TotalLimit: MaxNews * 2,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: news %s: %v", ErrProviderUnavailable, symbol, err)
	}

	items := make([]model.NewsItem, 0, len(news))
	for _, n := range news {
		items = append(items, model.NewsItem{
			Headline:  n.Headline,
			Summary:   n.Summary,
			URL:       n.URL,
			Timestamp: n.CreatedAt,
		})
	}
	return trimNews(items), nil
}
