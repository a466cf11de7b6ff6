package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockgame/engine/internal/ledger"
	"github.com/stockgame/engine/internal/metrics"
	"github.com/stockgame/engine/internal/model"
	"github.com/stockgame/engine/internal/progression"
)

// TradeRequest is a player order. An empty Symbol trades the selected
// symbol. When ConfirmedPrice is set the order is refused if the live
// price has moved away from it.
type TradeRequest struct {
	Action         model.Action
	Symbol         string
	Quantity       int64
	ConfirmedPrice *decimal.Decimal
}

// TradeResult is everything a completed trade changed.
type TradeResult struct {
	Trade        model.Trade         `json:"trade"`
	Balance      decimal.Decimal     `json:"balance"`
	Holding      *model.Holding      `json:"holding,omitempty"`
	XPGained     int                 `json:"xp_gained"`
	Level        int                 `json:"level"`
	LevelsGained int                 `json:"levels_gained"`
	Rank         int                 `json:"rank"`
	Achievements []model.Achievement `json:"achievements_unlocked,omitempty"`
}

// ExecuteTrade runs an order through the ledger, awards experience,
// refreshes the leaderboard and achievements, and persists.
func (s *Session) ExecuteTrade(ctx context.Context, req TradeRequest) (TradeResult, error) {
	start := time.Now()
	if !req.Action.Valid() {
		metrics.TradeRejections.WithLabelValues("invalid_action").Inc()
		return TradeResult{}, fmt.Errorf("%w: %q", ErrInvalidAction, req.Action)
	}

	s.mu.Lock()
	ticker, quote, err := s.resolve(req.Symbol)
	if err != nil {
		s.mu.Unlock()
		metrics.TradeRejections.WithLabelValues(rejectReason(err)).Inc()
		return TradeResult{}, err
	}
	if req.ConfirmedPrice != nil && !req.ConfirmedPrice.Equal(quote.Price) {
		s.mu.Unlock()
		metrics.TradeRejections.WithLabelValues(rejectReason(ErrStaleQuote)).Inc()
		return TradeResult{}, fmt.Errorf("%w: confirmed %s, now %s", ErrStaleQuote, req.ConfirmedPrice, quote.Price)
	}

	p := &s.state.Player
	var trade model.Trade
	if req.Action == model.ActionBuy {
		trade, err = s.ledger.Buy(p, ticker, req.Quantity, quote.Price)
	} else {
		trade, err = s.ledger.Sell(p, ticker, req.Quantity, quote.Price)
	}
	if err != nil {
		s.mu.Unlock()
		metrics.TradeRejections.WithLabelValues(rejectReason(err)).Inc()
		s.log.Info("trade rejected", "symbol", ticker, "action", req.Action, "qty", req.Quantity, "err", err)
		return TradeResult{}, err
	}

	xp := progression.TradeXP(trade)
	levels := progression.AddXP(p, xp)
	unlocks := s.refreshStandings()
	s.persist(ctx)

	res := TradeResult{
		Trade:        trade,
		Balance:      p.Balance,
		XPGained:     xp,
		Level:        p.Level,
		LevelsGained: levels,
		Rank:         p.Rank,
	}
	if h, ok := p.Portfolio[ticker]; ok {
		res.Holding = &h
	}
	for _, u := range unlocks {
		res.XPGained += u.Achievement.XP
		res.LevelsGained += u.LevelsGained
		res.Achievements = append(res.Achievements, u.Achievement)
	}
	res.Level = p.Level
	s.mu.Unlock()

	metrics.TradesTotal.WithLabelValues(string(trade.Action)).Inc()
	metrics.TradeLatency.WithLabelValues(string(trade.Action)).Observe(time.Since(start).Seconds())
	s.log.Info("trade executed",
		"trade_id", trade.ID,
		"symbol", ticker,
		"action", trade.Action,
		"qty", trade.Quantity,
		"price", trade.Price.String(),
		"total", trade.Total.String(),
		"balance", res.Balance.String(),
	)

	s.notifier.Publish(Event{Type: EventTradeExecuted, Symbol: ticker, Data: trade})
	if levels > 0 {
		s.notifier.Publish(Event{Type: EventLevelUp, Data: map[string]int{"levels": levels, "level": res.Level}})
	}
	s.publishUnlocks(unlocks)
	return res, nil
}

// PreviewTrade prices an order at the live quote without executing it.
func (s *Session) PreviewTrade(action model.Action, ticker string, quantity int64) (ledger.Preview, error) {
	if !action.Valid() {
		return ledger.Preview{}, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, q, err := s.resolve(ticker)
	if err != nil {
		return ledger.Preview{}, err
	}
	return s.ledger.Preview(&s.state.Player, action, t, quantity, q.Price), nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, ledger.ErrNoSuchHolding):
		return "no_holding"
	case errors.Is(err, ErrUnknownSymbol):
		return "unknown_symbol"
	case errors.Is(err, ErrNoSymbolSelected):
		return "no_symbol"
	case errors.Is(err, ErrStaleQuote):
		return "stale_quote"
	}
	return "other"
}
