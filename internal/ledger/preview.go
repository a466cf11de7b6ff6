package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/stockgame/engine/internal/model"
)

// Preview is the order summary shown before a trade is confirmed.
type Preview struct {
	Action       model.Action     `json:"action"`
	Symbol       string           `json:"symbol"`
	Quantity     int64            `json:"quantity"`
	Price        decimal.Decimal  `json:"price"`
	Gross        decimal.Decimal  `json:"gross"`
	Fee          decimal.Decimal  `json:"fee"`
	Net          decimal.Decimal  `json:"net"` // debit for a buy, credit for a sell
	BalanceAfter decimal.Decimal  `json:"balance_after"`
	Profit       *decimal.Decimal `json:"estimated_profit,omitempty"`
	Valid        bool             `json:"valid"`
	Reason       string           `json:"reason,omitempty"`

	Err error `json:"-"`
}

// Preview prices an order without touching the player. Err carries the
// error Buy or Sell would return.
func (l *Ledger) Preview(p *model.Player, action model.Action, symbol string, quantity int64, price decimal.Decimal) Preview {
	gross := model.RoundMoney(price.Mul(decimal.NewFromInt(quantity)))
	pv := Preview{
		Action:   action,
		Symbol:   symbol,
		Quantity: quantity,
		Price:    price,
		Gross:    gross,
		Fee:      l.fee,
	}

	switch action {
	case model.ActionBuy:
		pv.Net = gross.Add(l.fee)
		pv.BalanceAfter = p.Balance.Sub(pv.Net)
		switch {
		case quantity < 1:
			pv.Err = ErrInvalidQuantity
		case p.Balance.LessThan(pv.Net):
			pv.Err = fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, pv.Net, p.Balance)
		}
	case model.ActionSell:
		pv.Net = l.proceeds(gross)
		pv.BalanceAfter = p.Balance.Add(pv.Net)
		h, ok := p.Portfolio[symbol]
		switch {
		case quantity < 1:
			pv.Err = ErrInvalidQuantity
		case !ok:
			pv.Err = fmt.Errorf("%w: %s", ErrNoSuchHolding, symbol)
		case h.Shares < quantity:
			pv.Err = fmt.Errorf("%w: have %d, selling %d", ErrInsufficientShares, h.Shares, quantity)
		default:
			profit := gross.Sub(model.RoundMoney(h.AvgPrice.Mul(decimal.NewFromInt(quantity))))
			pv.Profit = &profit
		}
	default:
		pv.Err = fmt.Errorf("ledger: unknown action %q", action)
	}

	pv.Valid = pv.Err == nil
	if pv.Err != nil {
		pv.Reason = pv.Err.Error()
		pv.BalanceAfter = p.Balance
	}
	return pv
}
