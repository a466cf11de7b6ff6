package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stockgame/engine/internal/market"
	"github.com/stockgame/engine/internal/model"
	"github.com/stockgame/engine/internal/symbol"
)

// Synthetic answers every request locally: quotes come from the market
// generator and news is a pair of canned headlines.
type Synthetic struct {
	mu      sync.Mutex
	gen     *market.Generator
	catalog *symbol.Catalog
}

// NewSynthetic creates a provider over gen. Calls are serialized because
// the generator's random source is not safe for concurrent use.
func NewSynthetic(gen *market.Generator, catalog *symbol.Catalog) *Synthetic {
	return &Synthetic{gen: gen, catalog: catalog}
}

func (s *Synthetic) GetQuote(_ context.Context, ticker string) (*model.ExternalQuote, error) {
	s.mu.Lock()
	q := s.gen.GenerateQuote(ticker)
	s.mu.Unlock()

	return &model.ExternalQuote{
		CurrentPrice:  q.Price,
		Change:        q.Change,
		ChangePercent: q.ChangePercent,
		DayHigh:       q.DayHigh,
		DayLow:        q.DayLow,
		Open:          q.Open,
		PreviousClose: q.PreviousClose,
	}, nil
}

func (s *Synthetic) GetNews(_ context.Context, ticker string) ([]model.NewsItem, error) {
	name := s.catalog.Lookup(ticker).Name
	now := s.gen.Now()
	return []model.NewsItem{
		{
			Headline:  fmt.Sprintf("%s announces quarterly earnings", name),
			Summary:   fmt.Sprintf("%s reported quarterly results in line with analyst expectations.", name),
			URL:       "#",
			Timestamp: now.Add(-24 * time.Hour),
		},
		{
			Headline:  fmt.Sprintf("Analysts raise price target for %s", name),
			Summary:   fmt.Sprintf("Several analysts raised their price targets for %s following strong performance.", name),
			URL:       "#",
			Timestamp: now.Add(-48 * time.Hour),
		},
	}, nil
}
