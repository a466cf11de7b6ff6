// Package market produces and evolves synthetic market data: initial quotes,
// random-walk price history, and the periodic price tick.
//
// Prices are simulated in float64 and rounded into decimal at the point they
// are stored on a Quote or HistoryPoint.
package market

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockgame/engine/internal/model"
	"github.com/stockgame/engine/internal/symbol"
)

const (
	// DateLayout is the calendar-date format used by history points.
	DateLayout = "2006-01-02"

	// DefaultHistoryWindow is the rolling cap on history points per symbol.
	DefaultHistoryWindow = 30

	quoteSwingPct   = 4.0  // quote/tick delta is (U-0.5)*4 percent → [-2%, +2%)
	historySwingPct = 0.02 // daily walk (U-0.5)*0.02 → [-1%, +1%)
	maxRangeSpread  = 5.0  // day high/low spread off the price
	openSpread      = 2.0  // open = base + (U-0.5)*2
	minVolume       = 1_000_000
	volumeSpan      = 10_000_000
	tickVolumeSpan  = 1_000_000
)

var minPrice = decimal.New(1, -2) // 0.01 floor

// Generator creates quotes and history and applies random-walk ticks.
type Generator struct {
	rng     Source
	catalog *symbol.Catalog
	now     func() time.Time
	window  int
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the wall clock used for dates and timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithWindow sets the rolling history window. Values < 1 are ignored.
func WithWindow(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.window = n
		}
	}
}

// NewGenerator creates a generator over the given catalog and random source.
func NewGenerator(rng Source, catalog *symbol.Catalog, opts ...Option) *Generator {
	g := &Generator{
		rng:     rng,
		catalog: catalog,
		now:     time.Now,
		window:  DefaultHistoryWindow,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Window returns the rolling history cap.
func (g *Generator) Window() int { return g.window }

// Now returns the generator's current time.
func (g *Generator) Now() time.Time { return g.now() }

// GenerateQuote builds a fresh quote around the symbol's base price.
func (g *Generator) GenerateQuote(ticker string) model.Quote {
	sym := g.catalog.Lookup(ticker)
	base := sym.BasePrice.InexactFloat64()

	changePct := (g.rng.Float64() - 0.5) * quoteSwingPct
	change := base * changePct / 100
	price := base + change

	dayHigh := price + g.rng.Float64()*maxRangeSpread
	dayLow := price - g.rng.Float64()*maxRangeSpread
	volume := int64(math.Floor(g.rng.Float64()*volumeSpan)) + minVolume
	open := base + (g.rng.Float64()-0.5)*openSpread

	stored := money(price)
	pct := decimal.Zero
	if sym.BasePrice.IsPositive() {
		pct = model.RoundMoney(stored.Sub(sym.BasePrice).Div(sym.BasePrice).Mul(decimal.NewFromInt(100)))
	}

	return model.Quote{
		Symbol:        sym.Ticker,
		Name:          sym.Name,
		Price:         stored,
		Change:        money(change),
		ChangePercent: pct,
		DayHigh:       money(dayHigh),
		DayLow:        money(dayLow),
		Open:          money(open),
		PreviousClose: sym.BasePrice,
		Volume:        volume,
		UpdatedAt:     g.now(),
	}
}

// GenerateHistory builds days+1 chronological points ending today. The last
// point is pinned to the base price so the series meets the live quote.
func (g *Generator) GenerateHistory(ticker string, days int) []model.HistoryPoint {
	if days < 0 {
		days = 0
	}
	base := g.catalog.Lookup(ticker).BasePrice.InexactFloat64()
	today := g.now()
	out := make([]model.HistoryPoint, 0, days+1)

	prev := base
	for i := days; i >= 0; i-- {
		date := today.AddDate(0, 0, -i).Format(DateLayout)

		walk := (g.rng.Float64() - 0.5) * historySwingPct
		price := prev * (1 + walk)
		if i == 0 {
			price = base
		}
		price = round2(price)

		volume := int64(math.Floor(g.rng.Float64()*volumeSpan)) + minVolume
		open := price * (1 + (g.rng.Float64()-0.5)*0.01)
		high := price * (1 + g.rng.Float64()*0.02)
		low := price * (1 - g.rng.Float64()*0.02)

		out = append(out, model.HistoryPoint{
			Date:   date,
			Price:  money(price),
			Open:   money(open),
			High:   money(high),
			Low:    money(low),
			Close:  money(price),
			Volume: volume,
		})
		prev = price
	}
	return out
}

// Step applies one random-walk tick to q in place. The delta is drawn off
// the current price; PreviousClose is never touched.
func (g *Generator) Step(q *model.Quote) {
	price := q.Price.InexactFloat64()
	changePct := (g.rng.Float64() - 0.5) * quoteSwingPct
	delta := price * changePct / 100

	newPrice := money(price + delta)
	if newPrice.LessThan(minPrice) {
		newPrice = minPrice
	}
	q.Change = model.RoundMoney(q.Change.Add(decimal.NewFromFloat(delta)))
	q.Price = newPrice
	if q.PreviousClose.IsPositive() {
		q.ChangePercent = model.RoundMoney(
			newPrice.Sub(q.PreviousClose).Div(q.PreviousClose).Mul(decimal.NewFromInt(100)))
	}
	if newPrice.GreaterThan(q.DayHigh) {
		q.DayHigh = newPrice
	}
	if newPrice.LessThan(q.DayLow) {
		q.DayLow = newPrice
	}
	q.Volume += int64(math.Floor(g.rng.Float64() * tickVolumeSpan))
	q.UpdatedAt = g.now()
}

// RecordTick merges the quote's current price into series for today's date.
func (g *Generator) RecordTick(series []model.HistoryPoint, q model.Quote) []model.HistoryPoint {
	return MergeHistory(series, q.UpdatedAt.Format(DateLayout), q.Price, q.Volume, g.window)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(model.MoneyScale)
}
