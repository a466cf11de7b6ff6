package indicators_test

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/stockgame/engine/internal/indicators"
	"github.com/stockgame/engine/internal/model"
)

func series(prices []float64, volume int64) []model.HistoryPoint {
	out := make([]model.HistoryPoint, len(prices))
	for i, p := range prices {
		v := decimal.NewFromFloat(p)
		out[i] = model.HistoryPoint{Price: v, Close: v, Volume: volume}
	}
	return out
}

func ramp(start float64, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestCompute_TooShort(t *testing.T) {
	_, err := indicators.Compute(series(ramp(100, 1, 19), 1000))
	if !errors.Is(err, indicators.ErrInsufficientHistory) {
		t.Fatalf("err = %v", err)
	}
}

func TestCompute_RisingSeries(t *testing.T) {
	s, err := indicators.Compute(series(ramp(100, 1, 30), 1000))
	if err != nil {
		t.Fatal(err)
	}
	if !near(s.SMA20, 119.5) {
		t.Errorf("sma20 = %f, want 119.5", s.SMA20)
	}
	std := math.Sqrt(399.0 / 12.0)
	if !near(s.UpperBand, 119.5+2*std) || !near(s.LowerBand, 119.5-2*std) {
		t.Errorf("bands = %f/%f", s.UpperBand, s.LowerBand)
	}
	if !near(s.RSI, 100) || s.Momentum != indicators.MomentumOverbought {
		t.Errorf("rsi = %f momentum %s", s.RSI, s.Momentum)
	}
	if s.Trend != indicators.TrendUp {
		t.Errorf("trend = %s", s.Trend)
	}
	if s.MACD == nil || *s.MACD <= 0 {
		t.Errorf("macd = %v, want positive", s.MACD)
	}
	if !near(s.VolumeRatio, 1) {
		t.Errorf("volume ratio = %f", s.VolumeRatio)
	}
}

func TestCompute_FallingSeries(t *testing.T) {
	s, err := indicators.Compute(series(ramp(200, -1, 30), 1000))
	if err != nil {
		t.Fatal(err)
	}
	if s.Momentum != indicators.MomentumOversold || s.Trend != indicators.TrendDown {
		t.Errorf("momentum %s trend %s", s.Momentum, s.Trend)
	}
	if s.MACD == nil || *s.MACD >= 0 {
		t.Errorf("macd = %v, want negative", s.MACD)
	}
}

func TestCompute_FlatSeriesIsNeutral(t *testing.T) {
	s, err := indicators.Compute(series(ramp(50, 0, 20), 1000))
	if err != nil {
		t.Fatal(err)
	}
	if s.RSI != 50 || s.Momentum != indicators.MomentumNeutral {
		t.Errorf("rsi = %f momentum %s", s.RSI, s.Momentum)
	}
	if !near(s.UpperBand, 50) || !near(s.LowerBand, 50) {
		t.Errorf("bands should collapse onto sma, got %f/%f", s.UpperBand, s.LowerBand)
	}
	if s.MACD != nil {
		t.Error("macd needs 26 points")
	}
	if s.Trend != indicators.TrendDown {
		t.Errorf("price equal to sma reads down, got %s", s.Trend)
	}
}

func TestCompute_VolumeRatio(t *testing.T) {
	h := series(ramp(100, 0.5, 25), 1000)
	h[len(h)-1].Volume = 2900 // 20-day avg = (19*1000 + 2900) / 20 = 1095
	s, err := indicators.Compute(h)
	if err != nil {
		t.Fatal(err)
	}
	if !near(s.VolumeRatio, 2900.0/1095.0) {
		t.Errorf("volume ratio = %f", s.VolumeRatio)
	}
}
