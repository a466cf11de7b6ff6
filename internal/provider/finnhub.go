package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/stockgame/engine/internal/model"
)

// FinnhubBaseURL is the public Finnhub REST endpoint.
const FinnhubBaseURL = "https://finnhub.io/api/v1"

// Finnhub queries the Finnhub REST API.
type Finnhub struct {
	baseURL string
	apiKey  string
	client  *http.Client
	now     func() time.Time
}

// NewFinnhub creates a client. An empty baseURL uses FinnhubBaseURL.
func NewFinnhub(apiKey, baseURL string, client *http.Client) *Finnhub {
	if baseURL == "" {
		baseURL = FinnhubBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Finnhub{baseURL: baseURL, apiKey: apiKey, client: client, now: time.Now}
}

type finnhubNews struct {
	Datetime int64  `json:"datetime"`
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

// GetQuote returns the latest quote. Finnhub answers unknown symbols with
// a zero current price, which is reported as unavailable.
func (f *Finnhub) GetQuote(ctx context.Context, symbol string) (*model.ExternalQuote, error) {
	var q model.ExternalQuote
	if err := f.get(ctx, "/quote", url.Values{"symbol": {symbol}}, &q); err != nil {
		return nil, err
	}
	if q.CurrentPrice.IsZero() {
		return nil, fmt.Errorf("%w: no quote for %s", ErrProviderUnavailable, symbol)
	}
	return &q, nil
}

// GetNews returns up to MaxNews company headlines from the last 30 days.
func (f *Finnhub) GetNews(ctx context.Context, symbol string) ([]model.NewsItem, error) {
	now := f.now()
	params := url.Values{
		"symbol": {symbol},
		"from":   {now.Add(-NewsLookback).Format(time.DateOnly)},
		"to":     {now.Format(time.DateOnly)},
	}
	var raw []finnhubNews
	if err := f.get(ctx, "/company-news", params, &raw); err != nil {
		return nil, err
	}

	items := make([]model.NewsItem, 0, len(raw))
	for _, n := range raw {
		items = append(items, model.NewsItem{
			Headline:  n.Headline,
			Summary:   n.Summary,
			URL:       n.URL,
			Timestamp: time.Unix(n.Datetime, 0).UTC(),
		})
	}
	return trimNews(items), nil
}

func (f *Finnhub) get(ctx context.Context, path string, params url.Values, dst any) error {
	if f.apiKey == "" {
		return fmt.Errorf("%w: no api key", ErrProviderUnavailable)
	}
	params.Set("token", f.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrProviderUnavailable, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrProviderUnavailable, path, err)
	}
	return nil
}
