// Package ledger applies buy and sell orders to a player's cash balance and
// holdings, and values portfolios against live quotes.
//
// All monetary values use shopspring/decimal. Balances, totals and fees are
// kept at model.MoneyScale; average cost per share keeps model.PriceScale so
// that TotalInvested stays within a cent of AvgPrice * Shares.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockgame/engine/internal/model"
)

var (
	ErrInvalidQuantity    = errors.New("ledger: quantity must be at least 1")
	ErrInsufficientFunds  = errors.New("ledger: insufficient funds")
	ErrInsufficientShares = errors.New("ledger: insufficient shares")
	ErrNoSuchHolding      = errors.New("ledger: no holding for symbol")
)

// DefaultFee is the flat commission charged on every trade.
var DefaultFee = decimal.RequireFromString("4.99")

var hundred = decimal.NewFromInt(100)

// FeePolicy controls how the commission is taken from sell proceeds.
type FeePolicy int

const (
	// FeeDeducted credits gross - fee, even when that is negative. A sell
	// whose gross is below the fee can leave the balance negative; the
	// non-negative balance guarantee holds for buys only.
	FeeDeducted FeePolicy = iota
	// FeeFloored credits max(0, gross - fee).
	FeeFloored
)

func (p FeePolicy) String() string {
	if p == FeeFloored {
		return "floor"
	}
	return "deduct"
}

// ParseFeePolicy accepts "deduct" or "floor" (case-insensitive).
func ParseFeePolicy(s string) (FeePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "deduct":
		return FeeDeducted, nil
	case "floor":
		return FeeFloored, nil
	}
	return FeeDeducted, fmt.Errorf("ledger: unknown fee policy %q", s)
}

// Ledger executes trades against a player. It holds no player state itself;
// callers serialize access to the player they pass in.
type Ledger struct {
	fee    decimal.Decimal
	policy FeePolicy
	now    func() time.Time
	newID  func() string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithFeePolicy selects how sell proceeds absorb the fee.
func WithFeePolicy(p FeePolicy) Option {
	return func(l *Ledger) { l.policy = p }
}

// WithClock overrides the trade timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator overrides trade ID generation.
func WithIDGenerator(f func() string) Option {
	return func(l *Ledger) { l.newID = f }
}

// New creates a ledger charging fee per trade. A negative fee is treated as zero.
func New(fee decimal.Decimal, opts ...Option) *Ledger {
	if fee.IsNegative() {
		fee = decimal.Zero
	}
	l := &Ledger{
		fee:    model.RoundMoney(fee),
		policy: FeeDeducted,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Fee returns the per-trade commission.
func (l *Ledger) Fee() decimal.Decimal { return l.fee }

// Policy returns the sell fee policy.
func (l *Ledger) Policy() FeePolicy { return l.policy }

// Buy debits quantity*price + fee from the player's balance and adds the
// shares to the holding at volume-weighted average cost. On error the player
// is left untouched.
func (l *Ledger) Buy(p *model.Player, symbol string, quantity int64, price decimal.Decimal) (model.Trade, error) {
	if quantity < 1 {
		return model.Trade{}, ErrInvalidQuantity
	}
	gross := model.RoundMoney(price.Mul(decimal.NewFromInt(quantity)))
	charge := gross.Add(l.fee)
	if p.Balance.LessThan(charge) {
		return model.Trade{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, charge, p.Balance)
	}

	if p.Portfolio == nil {
		p.Portfolio = make(map[string]model.Holding)
	}
	h := p.Portfolio[symbol]
	h.Shares += quantity
	h.TotalInvested = h.TotalInvested.Add(gross)
	h.AvgPrice = h.TotalInvested.DivRound(decimal.NewFromInt(h.Shares), model.PriceScale)
	p.Portfolio[symbol] = h
	p.Balance = p.Balance.Sub(charge)

	t := model.Trade{
		ID:        l.newID(),
		Action:    model.ActionBuy,
		Symbol:    symbol,
		Quantity:  quantity,
		Price:     price,
		Total:     gross,
		Fee:       l.fee,
		Timestamp: l.now(),
	}
	p.Trades = append(p.Trades, t)
	return t, nil
}

// Sell removes quantity shares from the holding at its average cost and
// credits the proceeds according to the fee policy. Average cost is
// unchanged by a sell; a holding that reaches zero shares is deleted.
func (l *Ledger) Sell(p *model.Player, symbol string, quantity int64, price decimal.Decimal) (model.Trade, error) {
	if quantity < 1 {
		return model.Trade{}, ErrInvalidQuantity
	}
	h, ok := p.Portfolio[symbol]
	if !ok {
		return model.Trade{}, fmt.Errorf("%w: %s", ErrNoSuchHolding, symbol)
	}
	if h.Shares < quantity {
		return model.Trade{}, fmt.Errorf("%w: have %d, selling %d", ErrInsufficientShares, h.Shares, quantity)
	}

	gross := model.RoundMoney(price.Mul(decimal.NewFromInt(quantity)))
	costBasis := model.RoundMoney(h.AvgPrice.Mul(decimal.NewFromInt(quantity)))
	profit := gross.Sub(costBasis)
	profitPct := decimal.Zero
	if !costBasis.IsZero() {
		profitPct = profit.Div(costBasis).Mul(hundred).Round(model.MoneyScale)
	}

	p.Balance = p.Balance.Add(l.proceeds(gross))
	h.Shares -= quantity
	if h.Shares == 0 {
		delete(p.Portfolio, symbol)
	} else {
		h.TotalInvested = model.RoundMoney(h.AvgPrice.Mul(decimal.NewFromInt(h.Shares)))
		p.Portfolio[symbol] = h
	}

	t := model.Trade{
		ID:            l.newID(),
		Action:        model.ActionSell,
		Symbol:        symbol,
		Quantity:      quantity,
		Price:         price,
		Total:         gross,
		Fee:           l.fee,
		Profit:        &profit,
		ProfitPercent: &profitPct,
		Timestamp:     l.now(),
	}
	p.Trades = append(p.Trades, t)
	return t, nil
}

func (l *Ledger) proceeds(gross decimal.Decimal) decimal.Decimal {
	net := gross.Sub(l.fee)
	if l.policy == FeeFloored && net.IsNegative() {
		return decimal.Zero
	}
	return net
}

// PortfolioValue is cash plus the market value of every holding. Holdings
// without a quote contribute nothing.
func PortfolioValue(p *model.Player, quotes map[string]model.Quote) decimal.Decimal {
	total := p.Balance
	for sym, h := range p.Portfolio {
		if q, ok := quotes[sym]; ok {
			total = total.Add(q.Price.Mul(decimal.NewFromInt(h.Shares)))
		}
	}
	return model.RoundMoney(total)
}

// HoldingsValue is the market value of the holdings alone.
func HoldingsValue(p *model.Player, quotes map[string]model.Quote) decimal.Decimal {
	total := decimal.Zero
	for sym, h := range p.Portfolio {
		if q, ok := quotes[sym]; ok {
			total = total.Add(q.Price.Mul(decimal.NewFromInt(h.Shares)))
		}
	}
	return model.RoundMoney(total)
}

// DailyChange sums shares * quote change across holdings.
func DailyChange(p *model.Player, quotes map[string]model.Quote) decimal.Decimal {
	total := decimal.Zero
	for sym, h := range p.Portfolio {
		if q, ok := quotes[sym]; ok {
			total = total.Add(q.Change.Mul(decimal.NewFromInt(h.Shares)))
		}
	}
	return model.RoundMoney(total)
}

// TotalProfit is the account's gain over the starting balance.
func TotalProfit(p *model.Player, quotes map[string]model.Quote, startingBalance decimal.Decimal) decimal.Decimal {
	return PortfolioValue(p, quotes).Sub(startingBalance)
}
