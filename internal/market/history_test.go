package market_test

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/stockgame/engine/internal/market"
	"github.com/stockgame/engine/internal/model"
)

func dateN(n int) string {
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n).Format(market.DateLayout)
}

func TestMergeHistory_AppendNewDay(t *testing.T) {
	var h []model.HistoryPoint
	h = market.MergeHistory(h, dateN(0), d(10), 100, 30)
	h = market.MergeHistory(h, dateN(1), d(11), 200, 30)

	if len(h) != 2 {
		t.Fatalf("expected 2 points, got %d", len(h))
	}
	p := h[1]
	if p.Date != dateN(1) || !p.Open.Equal(d(11)) || !p.High.Equal(d(11)) ||
		!p.Low.Equal(d(11)) || !p.Close.Equal(d(11)) || p.Volume != 200 {
		t.Errorf("unexpected new point: %+v", p)
	}
}

func TestMergeHistory_SameDayUpdatesInPlace(t *testing.T) {
	h := market.MergeHistory(nil, dateN(0), d(10), 100, 30)
	h = market.MergeHistory(h, dateN(0), d(12), 150, 30)
	h = market.MergeHistory(h, dateN(0), d(9), 175, 30)

	if len(h) != 1 {
		t.Fatalf("same-day merges must not append, got %d points", len(h))
	}
	p := h[0]
	if !p.Close.Equal(d(9)) || !p.High.Equal(d(12)) || !p.Low.Equal(d(9)) || p.Volume != 175 {
		t.Errorf("unexpected merged point: %+v", p)
	}
	if !p.Open.Equal(d(10)) {
		t.Errorf("open should stay at first observation, got %s", p.Open)
	}
}

func TestMergeHistory_OutOfOrderInsertKeepsOrder(t *testing.T) {
	h := market.MergeHistory(nil, dateN(0), d(10), 1, 30)
	h = market.MergeHistory(h, dateN(2), d(12), 1, 30)
	h = market.MergeHistory(h, dateN(1), d(11), 1, 30)

	for i, want := range []string{dateN(0), dateN(1), dateN(2)} {
		if h[i].Date != want {
			t.Errorf("h[%d].Date = %s, want %s", i, h[i].Date, want)
		}
	}
}

func TestMergeHistory_EvictsOldest(t *testing.T) {
	var h []model.HistoryPoint
	for i := 0; i < 35; i++ {
		h = market.MergeHistory(h, dateN(i), d(float64(100+i)), int64(i), 30)
	}
	if len(h) != 30 {
		t.Fatalf("expected 30 points, got %d", len(h))
	}
	if h[0].Date != dateN(5) {
		t.Errorf("oldest kept = %s, want %s", h[0].Date, dateN(5))
	}
	if h[29].Date != dateN(34) {
		t.Errorf("newest = %s, want %s", h[29].Date, dateN(34))
	}
}

func TestProperty_RollingWindow(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		window := rapid.IntRange(1, 40).Draw(t, "window")
		days := rapid.IntRange(1, 120).Draw(t, "days")

		var h []model.HistoryPoint
		for i := 0; i < days; i++ {
			h = market.MergeHistory(h, dateN(i), d(100), 1, window)
			// Re-observe the same day sometimes; it must never grow the series.
			if rapid.Bool().Draw(t, "repeat") {
				h = market.MergeHistory(h, dateN(i), d(101), 2, window)
			}
		}

		want := days
		if want > window {
			want = window
		}
		if len(h) != want {
			t.Fatalf("len = %d, want %d", len(h), want)
		}
		if h[len(h)-1].Date != dateN(days-1) {
			t.Fatalf("newest = %s, want %s", h[len(h)-1].Date, dateN(days-1))
		}
		for i := 1; i < len(h); i++ {
			if h[i].Date <= h[i-1].Date {
				t.Fatalf("not strictly ascending at %d", i)
			}
		}
	})
}

func TestRecordTick_UsesQuoteDate(t *testing.T) {
	gen := newGen(fixedSource(0.5))
	h := gen.GenerateHistory("AAPL", 30)
	q := gen.GenerateQuote("AAPL")
	q.Price = d(190)

	h = gen.RecordTick(h, q)
	if len(h) != 31 {
		t.Fatalf("same-day tick should merge, got %d points", len(h))
	}
	if !h[30].Close.Equal(d(190)) || !h[30].High.Equal(d(190)) {
		t.Errorf("today's point not updated: %+v", h[30])
	}

	q.UpdatedAt = testNow.AddDate(0, 0, 1)
	h = gen.RecordTick(h, q)
	if len(h) != 30 {
		t.Fatalf("next-day tick should trim to window, got %d", len(h))
	}
}
