// Package model defines the core domain types shared across the game engine.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// MoneyScale is the number of decimal places for balances, totals and fees.
	MoneyScale int32 = 2

	// PriceScale is the precision kept for average cost per share.
	PriceScale int32 = 8

	// SchemaVersion is the current version of the persisted GameState layout.
	SchemaVersion = 2
)

// Action is the side of a trade.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Valid reports whether a is a known trade action.
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell
}

// Quote is the live simulated market snapshot for one symbol.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	DayHigh       decimal.Decimal `json:"day_high"`
	DayLow        decimal.Decimal `json:"day_low"`
	Open          decimal.Decimal `json:"open"`
	PreviousClose decimal.Decimal `json:"previous_close"` // fixed for the session
	Volume        int64           `json:"volume"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// HistoryPoint is one day of OHLC data for a symbol.
// Series are ordered ascending by Date with at most one point per date.
type HistoryPoint struct {
	Date   string          `json:"date"` // YYYY-MM-DD
	Price  decimal.Decimal `json:"price"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// Holding is a player's position in one symbol.
// TotalInvested == AvgPrice * Shares; a holding never has zero shares.
type Holding struct {
	Shares        int64           `json:"shares"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
	TotalInvested decimal.Decimal `json:"total_invested"`
}

// Trade is an immutable record of a completed buy or sell.
type Trade struct {
	ID            string           `json:"id"`
	Action        Action           `json:"action"`
	Symbol        string           `json:"symbol"`
	Quantity      int64            `json:"quantity"`
	Price         decimal.Decimal  `json:"price"`
	Total         decimal.Decimal  `json:"total"` // quantity * price
	Fee           decimal.Decimal  `json:"fee"`
	Profit        *decimal.Decimal `json:"profit,omitempty"`         // sell only
	ProfitPercent *decimal.Decimal `json:"profit_percent,omitempty"` // sell only
	Timestamp     time.Time        `json:"timestamp"`
}

// Achievement is a one-shot milestone. Earned achievements are never re-awarded.
type Achievement struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	XP          int        `json:"xp"`
	Earned      bool       `json:"earned"`
	EarnedAt    *time.Time `json:"earned_at,omitempty"`
}

// Player is the real player's account.
type Player struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	JoinedAt     time.Time          `json:"joined_at"`
	Balance      decimal.Decimal    `json:"balance"`
	Portfolio    map[string]Holding `json:"portfolio"`
	Trades       []Trade            `json:"trades"`
	XP           int                `json:"xp"`
	Level        int                `json:"level"`
	Achievements []Achievement      `json:"achievements"`
	Rank         int                `json:"rank"`
}

// Clone returns a deep copy of the player so snapshots can leave the session lock.
func (p *Player) Clone() Player {
	c := *p
	c.Portfolio = make(map[string]Holding, len(p.Portfolio))
	for k, v := range p.Portfolio {
		c.Portfolio[k] = v
	}
	c.Trades = append([]Trade(nil), p.Trades...)
	c.Achievements = append([]Achievement(nil), p.Achievements...)
	return c
}

// LeaderboardEntry ranks one participant by portfolio value (rank 1 = highest).
type LeaderboardEntry struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	Profit         decimal.Decimal `json:"profit"`
	Trades         int             `json:"trades"`
	Level          int             `json:"level"`
	Rank           int             `json:"rank"`
	IsPlayer       bool            `json:"is_player"`
}

// ExternalQuote is the quote shape returned by an external market data provider.
type ExternalQuote struct {
	CurrentPrice  decimal.Decimal `json:"c"`
	Change        decimal.Decimal `json:"d"`
	ChangePercent decimal.Decimal `json:"dp"`
	DayHigh       decimal.Decimal `json:"h"`
	DayLow        decimal.Decimal `json:"l"`
	Open          decimal.Decimal `json:"o"`
	PreviousClose decimal.Decimal `json:"pc"`
}

// NewsItem is a headline about a symbol.
type NewsItem struct {
	Headline  string    `json:"headline"`
	Summary   string    `json:"summary"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
}

// Theme is the presentation theme preference.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// GameState is the whole persisted aggregate of one session.
type GameState struct {
	Version     int                       `json:"version"`
	Player      Player                    `json:"player"`
	Quotes      map[string]Quote          `json:"quotes"`
	History     map[string][]HistoryPoint `json:"history"`
	Leaderboard []LeaderboardEntry        `json:"leaderboard"`
	Theme       Theme                     `json:"theme"`
}

// RoundMoney rounds a monetary value to MoneyScale places.
func RoundMoney(v decimal.Decimal) decimal.Decimal {
	return v.Round(MoneyScale)
}
