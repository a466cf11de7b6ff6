package game

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockgame/engine/internal/indicators"
	"github.com/stockgame/engine/internal/leaderboard"
	"github.com/stockgame/engine/internal/ledger"
	"github.com/stockgame/engine/internal/model"
	"github.com/stockgame/engine/internal/progression"
	"github.com/stockgame/engine/internal/symbol"
)

// Detail is the full view of one symbol.
type Detail struct {
	Quote      model.Quote          `json:"quote"`
	Info       symbol.Symbol        `json:"info"`
	History    []model.HistoryPoint `json:"history"`
	Indicators *indicators.Set      `json:"indicators,omitempty"`
	News       []model.NewsItem     `json:"news"`
	Holding    *model.Holding       `json:"holding,omitempty"`
}

// SelectSymbol makes ticker the target of subsequent trades and returns
// its detail view. News is fetched after the lock is released.
func (s *Session) SelectSymbol(ctx context.Context, ticker string) (Detail, error) {
	if ticker == "" {
		return Detail{}, ErrUnknownSymbol
	}
	s.mu.Lock()
	t, q, err := s.resolve(ticker)
	if err != nil {
		s.mu.Unlock()
		return Detail{}, err
	}
	s.selected = t
	d := s.detailLocked(t, q)
	s.mu.Unlock()

	d.News = []model.NewsItem{}
	if s.provider != nil {
		if news, err := s.provider.GetNews(ctx, t); err == nil && news != nil {
			d.News = news
		} else if err != nil {
			s.log.Warn("news unavailable", "symbol", t, "err", err)
		}
	}
	return d, nil
}

// Stock returns the detail view of ticker without selecting it or
// fetching news.
func (s *Session) Stock(ticker string) (Detail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ticker == "" {
		return Detail{}, ErrUnknownSymbol
	}
	t, q, err := s.resolve(ticker)
	if err != nil {
		return Detail{}, err
	}
	d := s.detailLocked(t, q)
	d.News = []model.NewsItem{}
	return d, nil
}

func (s *Session) detailLocked(t string, q model.Quote) Detail {
	d := Detail{
		Quote:   q,
		Info:    s.catalog.Lookup(t),
		History: append([]model.HistoryPoint(nil), s.state.History[t]...),
	}
	if set, err := indicators.Compute(d.History); err == nil {
		d.Indicators = &set
	} else if !errors.Is(err, indicators.ErrInsufficientHistory) {
		s.log.Warn("indicators failed", "symbol", t, "err", err)
	}
	if h, ok := s.state.Player.Portfolio[t]; ok {
		d.Holding = &h
	}
	return d
}

// Search returns quotes whose symbol or company name contains term,
// case-insensitively. An empty term matches everything.
func (s *Session) Search(term string) []model.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.Quote{}
	for _, sym := range s.catalog.Search(term) {
		if q, ok := s.state.Quotes[sym.Ticker]; ok {
			out = append(out, q)
		}
	}
	return out
}

// Quotes returns every live quote in catalog order.
func (s *Session) Quotes() []model.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quotesLocked()
}

func (s *Session) quotesLocked() []model.Quote {
	out := make([]model.Quote, 0, len(s.state.Quotes))
	for _, t := range s.catalog.Tickers() {
		if q, ok := s.state.Quotes[t]; ok {
			out = append(out, q)
		}
	}
	return out
}

// Position is one holding valued at the live price.
type Position struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Shares        int64           `json:"shares"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
	TotalInvested decimal.Decimal `json:"total_invested"`
	Price         decimal.Decimal `json:"price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	Gain          decimal.Decimal `json:"gain"`
	GainPercent   decimal.Decimal `json:"gain_percent"`
	DayChange     decimal.Decimal `json:"day_change"`
}

// Portfolio is the account summary.
type Portfolio struct {
	Balance       decimal.Decimal `json:"balance"`
	HoldingsValue decimal.Decimal `json:"holdings_value"`
	TotalValue    decimal.Decimal `json:"total_value"`
	DailyChange   decimal.Decimal `json:"daily_change"`
	TotalProfit   decimal.Decimal `json:"total_profit"`
	Positions     []Position      `json:"positions"`
}

// ViewPortfolio values the account at current prices.
func (s *Session) ViewPortfolio() Portfolio {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &s.state.Player
	quotes := s.state.Quotes
	out := Portfolio{
		Balance:       p.Balance,
		HoldingsValue: ledger.HoldingsValue(p, quotes),
		TotalValue:    ledger.PortfolioValue(p, quotes),
		DailyChange:   ledger.DailyChange(p, quotes),
		TotalProfit:   ledger.TotalProfit(p, quotes, s.cfg.StartingBalance),
		Positions:     make([]Position, 0, len(p.Portfolio)),
	}
	for t, h := range p.Portfolio {
		q := quotes[t]
		shares := decimal.NewFromInt(h.Shares)
		mv := model.RoundMoney(q.Price.Mul(shares))
		gain := mv.Sub(h.TotalInvested)
		pct := decimal.Zero
		if h.TotalInvested.IsPositive() {
			pct = gain.Div(h.TotalInvested).Mul(decimal.NewFromInt(100)).Round(model.MoneyScale)
		}
		out.Positions = append(out.Positions, Position{
			Symbol:        t,
			Name:          s.catalog.Lookup(t).Name,
			Shares:        h.Shares,
			AvgPrice:      h.AvgPrice,
			TotalInvested: h.TotalInvested,
			Price:         q.Price,
			MarketValue:   mv,
			Gain:          gain,
			GainPercent:   pct,
			DayChange:     model.RoundMoney(q.Change.Mul(shares)),
		})
	}
	sort.Slice(out.Positions, func(i, j int) bool { return out.Positions[i].Symbol < out.Positions[j].Symbol })
	return out
}

// ViewLeaderboard returns the ranked board.
func (s *Session) ViewLeaderboard() []model.LeaderboardEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return leaderboard.Clone(s.state.Leaderboard)
}

// Profile is the player's progression summary and status line.
type Profile struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	JoinedAt     time.Time           `json:"joined_at"`
	Level        int                 `json:"level"`
	XP           int                 `json:"xp"`
	XPToNext     int                 `json:"xp_to_next"`
	Rank         int                 `json:"rank"`
	Balance      decimal.Decimal     `json:"balance"`
	TotalValue   decimal.Decimal     `json:"total_value"`
	DailyChange  decimal.Decimal     `json:"daily_change"`
	TradeCount   int                 `json:"trade_count"`
	Holdings     int                 `json:"holdings"`
	Earned       int                 `json:"achievements_earned"`
	Achievements []model.Achievement `json:"achievements"`
	Theme        model.Theme         `json:"theme"`
	Selected     string              `json:"selected,omitempty"`
}

// ViewProfile summarizes the player's progress.
func (s *Session) ViewProfile() Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &s.state.Player
	return Profile{
		ID:           p.ID,
		Name:         p.Name,
		JoinedAt:     p.JoinedAt,
		Level:        p.Level,
		XP:           p.XP,
		XPToNext:     progression.XPToNext(p),
		Rank:         p.Rank,
		Balance:      p.Balance,
		TotalValue:   ledger.PortfolioValue(p, s.state.Quotes),
		DailyChange:  ledger.DailyChange(p, s.state.Quotes),
		TradeCount:   len(p.Trades),
		Holdings:     len(p.Portfolio),
		Earned:       progression.EarnedCount(p),
		Achievements: append([]model.Achievement(nil), p.Achievements...),
		Theme:        s.state.Theme,
		Selected:     s.selected,
	}
}

// Trades returns the trade log, newest first.
func (s *Session) Trades() []model.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()

	trades := s.state.Player.Trades
	out := make([]model.Trade, len(trades))
	for i, t := range trades {
		out[len(trades)-1-i] = t
	}
	return out
}

// Player returns a copy of the player record.
func (s *Session) Player() model.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Player.Clone()
}

// History returns a copy of ticker's price history.
func (s *Session) History(ticker string) []model.HistoryPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.HistoryPoint(nil), s.state.History[ticker]...)
}
