// Package game owns the state of one trading session and exposes the
// commands a player issues: select, trade, search, view and reset.
//
// All mutable state sits behind a single mutex. A trade and a price tick
// each hold it for their whole ledger, progression, leaderboard and persist
// sequence, so neither ever observes the other half-applied.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockgame/engine/internal/leaderboard"
	"github.com/stockgame/engine/internal/ledger"
	"github.com/stockgame/engine/internal/market"
	"github.com/stockgame/engine/internal/metrics"
	"github.com/stockgame/engine/internal/model"
	"github.com/stockgame/engine/internal/progression"
	"github.com/stockgame/engine/internal/provider"
	"github.com/stockgame/engine/internal/store"
	"github.com/stockgame/engine/internal/symbol"
)

var (
	ErrUnknownSymbol    = errors.New("game: unknown symbol")
	ErrNoSymbolSelected = errors.New("game: no symbol selected")
	ErrStaleQuote       = errors.New("game: price changed since confirmation")
	ErrInvalidAction    = errors.New("game: action must be buy or sell")
)

// Config holds the session's economic parameters.
type Config struct {
	StartingBalance decimal.Decimal
	HistoryDays     int
	// QuoteTimeout bounds the provider lookups made while seeding quotes
	// on load and reset. Defaults to provider.DefaultTimeout.
	QuoteTimeout time.Duration
}

// Deps are the collaborators a Session drives. Provider and Notifier are
// optional.
type Deps struct {
	Catalog   *symbol.Catalog
	Generator *market.Generator
	Ledger    *ledger.Ledger
	Store     *store.StateStore
	Provider  provider.Provider
	Notifier  Notifier
	Logger    *slog.Logger
}

// Session is the single owner of a game's state.
type Session struct {
	cfg      Config
	catalog  *symbol.Catalog
	gen      *market.Generator
	ledger   *ledger.Ledger
	states   *store.StateStore
	provider provider.Provider
	notifier Notifier
	log      *slog.Logger

	mu       sync.Mutex
	state    model.GameState
	selected string
}

// New creates a session. Call Load before issuing commands.
func New(cfg Config, deps Deps) *Session {
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = market.DefaultHistoryWindow
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = provider.DefaultTimeout
	}
	s := &Session{
		cfg:      cfg,
		catalog:  deps.Catalog,
		gen:      deps.Generator,
		ledger:   deps.Ledger,
		states:   deps.Store,
		provider: deps.Provider,
		notifier: deps.Notifier,
		log:      deps.Logger,
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Load restores persisted state, fills in anything missing (quotes,
// history, leaderboard) and saves the result. Provider lookups for missing
// quotes happen before the session lock is taken.
func (s *Session) Load(ctx context.Context) {
	res := s.states.Load(ctx)
	var missing []string
	for _, t := range s.catalog.Tickers() {
		if _, ok := res.State.Quotes[t]; !ok {
			missing = append(missing, t)
		}
	}
	ext := s.fetchQuotes(ctx, missing)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(ctx, res, ext)
}

// apply installs a loaded state. Caller holds s.mu.
func (s *Session) apply(ctx context.Context, res store.LoadResult, ext map[string]*model.ExternalQuote) {
	s.state = res.State
	s.selected = ""
	s.fillMarket(ext)
	s.refreshStandings()
	s.persist(ctx)

	s.log.Info("session loaded",
		"player", s.state.Player.ID,
		"fresh", res.Fresh,
		"defaulted", len(res.Defaulted),
		"balance", s.state.Player.Balance.String(),
		"symbols", len(s.state.Quotes),
	)
}

// fillMarket seeds a quote and history for every catalog symbol lacking
// one. Caller holds s.mu.
func (s *Session) fillMarket(ext map[string]*model.ExternalQuote) {
	window := s.gen.Window()
	for _, t := range s.catalog.Tickers() {
		if _, ok := s.state.Quotes[t]; !ok {
			s.state.Quotes[t] = s.seedQuote(t, ext[t])
		}
		if len(s.state.History[t]) == 0 {
			h := s.gen.GenerateHistory(t, s.cfg.HistoryDays)
			if len(h) > window {
				h = h[len(h)-window:]
			}
			s.state.History[t] = h
		}
	}
}

// fetchQuotes asks the provider for every ticker concurrently under one
// deadline and returns the usable answers that arrived in time.
func (s *Session) fetchQuotes(ctx context.Context, tickers []string) map[string]*model.ExternalQuote {
	if s.provider == nil || len(tickers) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QuoteTimeout)
	defer cancel()

	var (
		mu  sync.Mutex
		got = make(map[string]*model.ExternalQuote, len(tickers))
		wg  sync.WaitGroup
	)
	for _, t := range tickers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ext, err := s.provider.GetQuote(ctx, t)
			if err != nil || ext == nil || !ext.CurrentPrice.IsPositive() {
				return
			}
			mu.Lock()
			got[t] = ext
			mu.Unlock()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("quote lookup deadline reached, using generated quotes",
			"requested", len(tickers), "err", ctx.Err())
	}

	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]*model.ExternalQuote, len(got))
	for t, q := range got {
		out[t] = q
	}
	return out
}

// seedQuote generates a quote and overlays the provider's figures when
// present. Change and percent are derived from the final price and
// previous close.
func (s *Session) seedQuote(ticker string, ext *model.ExternalQuote) model.Quote {
	q := s.gen.GenerateQuote(ticker)
	if ext == nil || !ext.CurrentPrice.IsPositive() {
		return q
	}
	q.Price = model.RoundMoney(ext.CurrentPrice)
	if ext.PreviousClose.IsPositive() {
		q.PreviousClose = ext.PreviousClose
	}
	if ext.Open.IsPositive() {
		q.Open = model.RoundMoney(ext.Open)
	}
	q.DayHigh = decimal.Max(model.RoundMoney(ext.DayHigh), q.Price)
	q.DayLow = q.Price
	if ext.DayLow.IsPositive() {
		q.DayLow = decimal.Min(model.RoundMoney(ext.DayLow), q.Price)
	}

	diff := q.Price.Sub(q.PreviousClose)
	q.Change = model.RoundMoney(diff)
	q.ChangePercent = decimal.Zero
	if q.PreviousClose.IsPositive() {
		q.ChangePercent = model.RoundMoney(diff.Div(q.PreviousClose).Mul(decimal.NewFromInt(100)))
	}
	return q
}

// Tick applies one price update to every quote and records it in history.
func (s *Session) Tick(ctx context.Context) {
	s.mu.Lock()
	for _, t := range s.catalog.Tickers() {
		q, ok := s.state.Quotes[t]
		if !ok {
			continue
		}
		s.gen.Step(&q)
		s.state.Quotes[t] = q
		s.state.History[t] = s.gen.RecordTick(s.state.History[t], q)
	}
	unlocks := s.refreshStandings()
	s.persist(ctx)
	quotes := s.quotesLocked()
	s.mu.Unlock()

	metrics.PriceTicks.Inc()
	s.notifier.Publish(Event{Type: EventPriceTick, Data: quotes})
	s.publishUnlocks(unlocks)
}

// refreshStandings re-ranks the player and awards any achievements now met.
// Caller holds s.mu.
func (s *Session) refreshStandings() []progression.Unlock {
	p := &s.state.Player
	value := ledger.PortfolioValue(p, s.state.Quotes)
	profit := value.Sub(s.cfg.StartingBalance)

	var rank int
	s.state.Leaderboard, rank = leaderboard.UpdatePlayer(s.state.Leaderboard, p, value, profit)
	p.Rank = rank

	unlocks := progression.Evaluate(p, progression.Facts{TotalProfit: profit, Rank: rank}, s.gen.Now())
	if len(unlocks) > 0 {
		// Achievement XP can change the level shown on the board.
		s.state.Leaderboard, p.Rank = leaderboard.UpdatePlayer(s.state.Leaderboard, p, value, profit)
	}

	metrics.PortfolioValue.Set(value.InexactFloat64())
	metrics.PlayerLevel.Set(float64(p.Level))
	for _, u := range unlocks {
		metrics.AchievementsUnlocked.WithLabelValues(u.Achievement.ID).Inc()
		s.log.Info("achievement unlocked", "id", u.Achievement.ID, "xp", u.Achievement.XP)
	}
	return unlocks
}

func (s *Session) publishUnlocks(unlocks []progression.Unlock) {
	for _, u := range unlocks {
		s.notifier.Publish(Event{Type: EventAchievementUnlocked, Data: u.Achievement})
		if u.LevelsGained > 0 {
			s.notifier.Publish(Event{Type: EventLevelUp, Data: map[string]int{"levels": u.LevelsGained}})
		}
	}
}

// persist saves the full state. Failures are logged and counted, never
// returned. Caller holds s.mu.
func (s *Session) persist(ctx context.Context) {
	if err := s.states.Save(ctx, &s.state); err != nil {
		metrics.PersistenceFailures.Inc()
		s.log.Error("persist state failed", "err", err)
	}
}

// ResetSession wipes stored state and starts a fresh game. Fresh quotes
// are fetched before the session lock is taken.
func (s *Session) ResetSession(ctx context.Context) error {
	ext := s.fetchQuotes(ctx, s.catalog.Tickers())

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.states.Reset(ctx); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	s.apply(ctx, s.states.Load(ctx), ext)
	s.log.Info("session reset")
	return nil
}

// ToggleTheme flips between dark and light and returns the new theme.
func (s *Session) ToggleTheme(ctx context.Context) model.Theme {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Theme == model.ThemeLight {
		s.state.Theme = model.ThemeDark
	} else {
		s.state.Theme = model.ThemeLight
	}
	s.persist(ctx)
	return s.state.Theme
}

// Selected returns the currently selected symbol, if any.
func (s *Session) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// resolve maps an explicit or selected ticker to a known symbol. Caller
// holds s.mu.
func (s *Session) resolve(ticker string) (string, model.Quote, error) {
	if ticker == "" {
		if s.selected == "" {
			return "", model.Quote{}, ErrNoSymbolSelected
		}
		ticker = s.selected
	}
	t, err := symbol.Normalize(ticker)
	if err != nil {
		return "", model.Quote{}, fmt.Errorf("%w: %v", ErrUnknownSymbol, err)
	}
	q, ok := s.state.Quotes[t]
	if !ok {
		return "", model.Quote{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, t)
	}
	return t, q, nil
}
