package ledger_test

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/stockgame/engine/internal/ledger"
	"github.com/stockgame/engine/internal/model"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var fixedNow = time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)

func newLedger(opts ...ledger.Option) *ledger.Ledger {
	n := 0
	base := []ledger.Option{
		ledger.WithClock(func() time.Time { return fixedNow }),
		ledger.WithIDGenerator(func() string { n++; return "t" + strconv.Itoa(n) }),
	}
	return ledger.New(ledger.DefaultFee, append(base, opts...)...)
}

func newPlayer(balance string) *model.Player {
	return &model.Player{
		ID:        "p1",
		Balance:   d(balance),
		Portfolio: map[string]model.Holding{},
	}
}

func TestBuy_Scenario(t *testing.T) {
	l := newLedger()
	p := newPlayer("10000")

	tr, err := l.Buy(p, "AAPL", 10, d("182.00"))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	if !p.Balance.Equal(d("8175.01")) {
		t.Errorf("balance = %s, want 8175.01", p.Balance)
	}
	h := p.Portfolio["AAPL"]
	if h.Shares != 10 || !h.AvgPrice.Equal(d("182")) || !h.TotalInvested.Equal(d("1820")) {
		t.Errorf("holding = %+v, want {10 182 1820}", h)
	}
	if tr.Action != model.ActionBuy || !tr.Total.Equal(d("1820")) || !tr.Fee.Equal(d("4.99")) {
		t.Errorf("unexpected trade: %+v", tr)
	}
	if tr.Profit != nil {
		t.Error("buy trades carry no profit")
	}
	if tr.ID != "t1" || !tr.Timestamp.Equal(fixedNow) {
		t.Errorf("id/timestamp not from injected sources: %s %s", tr.ID, tr.Timestamp)
	}
	if len(p.Trades) != 1 {
		t.Errorf("expected 1 trade in log, got %d", len(p.Trades))
	}
}

func TestSell_Scenario(t *testing.T) {
	l := newLedger()
	p := newPlayer("10000")
	if _, err := l.Buy(p, "AAPL", 10, d("182.00")); err != nil {
		t.Fatal(err)
	}

	tr, err := l.Sell(p, "AAPL", 5, d("200.00"))
	if err != nil {
		t.Fatalf("sell: %v", err)
	}

	if !tr.Total.Equal(d("1000")) {
		t.Errorf("gross = %s, want 1000", tr.Total)
	}
	if tr.Profit == nil || !tr.Profit.Equal(d("90")) {
		t.Errorf("profit = %v, want 90", tr.Profit)
	}
	if tr.ProfitPercent == nil || !tr.ProfitPercent.Equal(d("9.89")) {
		t.Errorf("profit percent = %v, want 9.89", tr.ProfitPercent)
	}
	if !p.Balance.Equal(d("9170.02")) { // 8175.01 + 995.01
		t.Errorf("balance = %s, want 9170.02", p.Balance)
	}
	h := p.Portfolio["AAPL"]
	if h.Shares != 5 || !h.AvgPrice.Equal(d("182")) || !h.TotalInvested.Equal(d("910")) {
		t.Errorf("holding = %+v, want {5 182 910}", h)
	}
}

func TestBuy_VWAP(t *testing.T) {
	l := newLedger()
	p := newPlayer("10000")
	l.Buy(p, "AMD", 1, d("100"))
	l.Buy(p, "AMD", 2, d("130"))

	h := p.Portfolio["AMD"]
	if h.Shares != 3 || !h.TotalInvested.Equal(d("360")) || !h.AvgPrice.Equal(d("120")) {
		t.Errorf("holding = %+v, want {3 120 360}", h)
	}
}

func TestBuy_Rejections(t *testing.T) {
	l := newLedger()

	tests := []struct {
		name    string
		balance string
		qty     int64
		price   string
		want    error
	}{
		{"zero quantity", "10000", 0, "10", ledger.ErrInvalidQuantity},
		{"negative quantity", "10000", -3, "10", ledger.ErrInvalidQuantity},
		{"insufficient funds", "100", 10, "10", ledger.ErrInsufficientFunds},
		{"fee tips it over", "100", 10, "9.60", ledger.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPlayer(tt.balance)
			_, err := l.Buy(p, "INTC", tt.qty, d(tt.price))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if !p.Balance.Equal(d(tt.balance)) {
				t.Errorf("balance changed to %s", p.Balance)
			}
			if len(p.Portfolio) != 0 || len(p.Trades) != 0 {
				t.Error("rejected buy mutated the player")
			}
		})
	}
}

func TestBuy_ExactBalanceAllowed(t *testing.T) {
	l := newLedger()
	p := newPlayer("104.99")
	if _, err := l.Buy(p, "INTC", 10, d("10")); err != nil {
		t.Fatalf("buy with exact balance: %v", err)
	}
	if !p.Balance.IsZero() {
		t.Errorf("balance = %s, want 0", p.Balance)
	}
}

func TestSell_Rejections(t *testing.T) {
	l := newLedger()
	p := newPlayer("10000")
	l.Buy(p, "NVDA", 3, d("600"))
	before := p.Clone()

	if _, err := l.Sell(p, "NVDA", 0, d("600")); !errors.Is(err, ledger.ErrInvalidQuantity) {
		t.Errorf("zero qty: %v", err)
	}
	if _, err := l.Sell(p, "META", 1, d("350")); !errors.Is(err, ledger.ErrNoSuchHolding) {
		t.Errorf("no holding: %v", err)
	}
	if _, err := l.Sell(p, "NVDA", 4, d("600")); !errors.Is(err, ledger.ErrInsufficientShares) {
		t.Errorf("oversell: %v", err)
	}

	if !p.Balance.Equal(before.Balance) || p.Portfolio["NVDA"] != before.Portfolio["NVDA"] || len(p.Trades) != 1 {
		t.Error("rejected sell mutated the player")
	}
}

func TestSell_FullLiquidationRemovesHolding(t *testing.T) {
	l := newLedger()
	p := newPlayer("10000")
	l.Buy(p, "TSLA", 4, d("242"))
	if _, err := l.Sell(p, "TSLA", 4, d("240")); err != nil {
		t.Fatal(err)
	}
	if _, ok := p.Portfolio["TSLA"]; ok {
		t.Error("holding should be removed at zero shares")
	}
}

func TestSell_FeePolicy(t *testing.T) {
	for _, tt := range []struct {
		policy ledger.FeePolicy
		want   string
	}{
		{ledger.FeeDeducted, "18.01"}, // 20 + (3 - 4.99)
		{ledger.FeeFloored, "20"},
	} {
		t.Run(tt.policy.String(), func(t *testing.T) {
			l := newLedger(ledger.WithFeePolicy(tt.policy))
			p := newPlayer("20")
			p.Portfolio["INTC"] = model.Holding{Shares: 1, AvgPrice: d("1"), TotalInvested: d("1")}
			if _, err := l.Sell(p, "INTC", 1, d("3")); err != nil {
				t.Fatal(err)
			}
			if !p.Balance.Equal(d(tt.want)) {
				t.Errorf("balance = %s, want %s", p.Balance, tt.want)
			}
		})
	}
}

func TestSell_DustBelowFee(t *testing.T) {
	for _, tt := range []struct {
		policy ledger.FeePolicy
		want   string
	}{
		{ledger.FeeDeducted, "-4.98"}, // 0 + (0.01 - 4.99)
		{ledger.FeeFloored, "0"},
	} {
		t.Run(tt.policy.String(), func(t *testing.T) {
			l := newLedger(ledger.WithFeePolicy(tt.policy))
			p := newPlayer("0")
			p.Portfolio["INTC"] = model.Holding{Shares: 1, AvgPrice: d("0.01"), TotalInvested: d("0.01")}
			if _, err := l.Sell(p, "INTC", 1, d("0.01")); err != nil {
				t.Fatal(err)
			}
			if !p.Balance.Equal(d(tt.want)) {
				t.Errorf("balance = %s, want %s", p.Balance, tt.want)
			}
			if _, ok := p.Portfolio["INTC"]; ok {
				t.Error("holding should be removed")
			}
		})
	}
}

func TestParseFeePolicy(t *testing.T) {
	for in, want := range map[string]ledger.FeePolicy{
		"": ledger.FeeDeducted, "deduct": ledger.FeeDeducted, "FLOOR": ledger.FeeFloored,
	} {
		got, err := ledger.ParseFeePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseFeePolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ledger.ParseFeePolicy("waive"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestValuation(t *testing.T) {
	p := newPlayer("1000")
	p.Portfolio["AAPL"] = model.Holding{Shares: 10, AvgPrice: d("180"), TotalInvested: d("1800")}
	p.Portfolio["GONE"] = model.Holding{Shares: 5, AvgPrice: d("10"), TotalInvested: d("50")}
	quotes := map[string]model.Quote{
		"AAPL": {Symbol: "AAPL", Price: d("190.50"), Change: d("-1.25")},
	}

	if v := ledger.PortfolioValue(p, quotes); !v.Equal(d("2905")) {
		t.Errorf("portfolio value = %s, want 2905", v)
	}
	if v := ledger.HoldingsValue(p, quotes); !v.Equal(d("1905")) {
		t.Errorf("holdings value = %s, want 1905", v)
	}
	if v := ledger.DailyChange(p, quotes); !v.Equal(d("-12.5")) {
		t.Errorf("daily change = %s, want -12.5", v)
	}
	if v := ledger.TotalProfit(p, quotes, d("10000")); !v.Equal(d("-7095")) {
		t.Errorf("total profit = %s, want -7095", v)
	}
}

func TestPreview(t *testing.T) {
	l := newLedger()
	p := newPlayer("10000")

	pv := l.Preview(p, model.ActionBuy, "AAPL", 10, d("182"))
	if !pv.Valid || !pv.Net.Equal(d("1824.99")) || !pv.BalanceAfter.Equal(d("8175.01")) {
		t.Errorf("buy preview = %+v", pv)
	}
	if !p.Balance.Equal(d("10000")) || len(p.Trades) != 0 {
		t.Error("preview mutated the player")
	}

	pv = l.Preview(p, model.ActionSell, "AAPL", 1, d("182"))
	if pv.Valid || !errors.Is(pv.Err, ledger.ErrNoSuchHolding) {
		t.Errorf("sell preview without holding = %+v", pv)
	}

	l.Buy(p, "AAPL", 10, d("182"))
	pv = l.Preview(p, model.ActionSell, "AAPL", 5, d("200"))
	if !pv.Valid || !pv.Net.Equal(d("995.01")) || pv.Profit == nil || !pv.Profit.Equal(d("90")) {
		t.Errorf("sell preview = %+v", pv)
	}
}

// --- properties ---

func TestProperty_CostBasisAfterBuys(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l := newLedger()
		p := newPlayer("1000000")
		n := rapid.IntRange(1, 20).Draw(t, "buys")
		for i := 0; i < n; i++ {
			qty := rapid.Int64Range(1, 500).Draw(t, "qty")
			cents := rapid.Int64Range(1, 100_000).Draw(t, "cents")
			before := p.Balance
			_, err := l.Buy(p, "X", qty, decimal.New(cents, -2))
			if err != nil {
				if !errors.Is(err, ledger.ErrInsufficientFunds) {
					t.Fatalf("unexpected error: %v", err)
				}
				if !p.Balance.Equal(before) {
					t.Fatalf("rejected buy changed balance %s -> %s", before, p.Balance)
				}
				continue
			}
			if p.Balance.IsNegative() {
				t.Fatalf("balance went negative: %s", p.Balance)
			}
			h := p.Portfolio["X"]
			diff := h.TotalInvested.Sub(h.AvgPrice.Mul(decimal.NewFromInt(h.Shares))).Abs()
			if diff.GreaterThan(d("0.01")) {
				t.Fatalf("cost basis drift %s: %+v", diff, h)
			}
		}
	})
}

func TestProperty_PartialSellKeepsAverage(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l := newLedger()
		p := newPlayer("1000000")
		shares := rapid.Int64Range(2, 1000).Draw(t, "shares")
		cents := rapid.Int64Range(1, 50_000).Draw(t, "cents")
		if _, err := l.Buy(p, "X", shares, decimal.New(cents, -2)); err != nil {
			t.Fatalf("buy: %v", err)
		}
		before := p.Portfolio["X"]

		k := rapid.Int64Range(1, shares-1).Draw(t, "sell")
		if _, err := l.Sell(p, "X", k, decimal.New(cents, -2)); err != nil {
			t.Fatalf("sell: %v", err)
		}
		after := p.Portfolio["X"]
		if after.Shares != before.Shares-k {
			t.Fatalf("shares = %d, want %d", after.Shares, before.Shares-k)
		}
		if !after.AvgPrice.Equal(before.AvgPrice) {
			t.Fatalf("avg price changed %s -> %s", before.AvgPrice, after.AvgPrice)
		}
	})
}

func TestProperty_FullLiquidation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l := newLedger()
		p := newPlayer("1000000")
		var total int64
		for i := rapid.IntRange(1, 5).Draw(t, "lots"); i > 0; i-- {
			q := rapid.Int64Range(1, 100).Draw(t, "qty")
			if _, err := l.Buy(p, "X", q, d("12.34")); err != nil {
				t.Fatal(err)
			}
			total += q
		}
		if _, err := l.Sell(p, "X", total, d("15")); err != nil {
			t.Fatal(err)
		}
		if _, ok := p.Portfolio["X"]; ok {
			t.Fatal("holding should be gone")
		}
	})
}
