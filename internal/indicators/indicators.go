// Package indicators derives technical analysis figures from a symbol's
// daily history.
package indicators

import (
	"errors"
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"github.com/stockgame/engine/internal/model"
)

const (
	// MinPoints is the shortest history indicators are computed for.
	MinPoints = 20

	smaPeriod     = 20
	rsiPeriod     = 14
	macdFast      = 12
	macdSlow      = 26
	bandDeviation = 2.0

	overbought = 70.0
	oversold   = 30.0
)

// ErrInsufficientHistory is returned for series shorter than MinPoints.
var ErrInsufficientHistory = errors.New("indicators: insufficient history")

// Trend is the price position relative to SMA20.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
)

// Momentum classifies RSI.
type Momentum string

const (
	MomentumOverbought Momentum = "overbought"
	MomentumOversold   Momentum = "oversold"
	MomentumNeutral    Momentum = "neutral"
)

// Set is the indicator snapshot for one symbol. MACD is nil when the
// series is shorter than the slow EMA period.
type Set struct {
	SMA20       float64  `json:"sma20"`
	RSI         float64  `json:"rsi"`
	MACD        *float64 `json:"macd,omitempty"`
	UpperBand   float64  `json:"upper_band"`
	LowerBand   float64  `json:"lower_band"`
	VolumeRatio float64  `json:"volume_ratio"`
	Trend       Trend    `json:"trend"`
	Momentum    Momentum `json:"momentum"`
}

// Compute derives the indicator set from an ascending history series.
func Compute(history []model.HistoryPoint) (Set, error) {
	if len(history) < MinPoints {
		return Set{}, ErrInsufficientHistory
	}
	closes := make([]float64, len(history))
	volumes := make([]float64, len(history))
	for i, p := range history {
		closes[i] = p.Close.InexactFloat64()
		if closes[i] == 0 {
			closes[i] = p.Price.InexactFloat64()
		}
		volumes[i] = float64(p.Volume)
	}
	last := closes[len(closes)-1]

	var s Set
	s.SMA20 = lastOf(talib.Sma(closes, smaPeriod))

	_, std := stat.PopMeanStdDev(closes[len(closes)-smaPeriod:], nil)
	s.UpperBand = s.SMA20 + bandDeviation*std
	s.LowerBand = s.SMA20 - bandDeviation*std

	s.RSI = rsi(closes)

	if len(closes) >= macdSlow {
		macd := lastOf(talib.Ema(closes, macdFast)) - lastOf(talib.Ema(closes, macdSlow))
		s.MACD = &macd
	}

	s.VolumeRatio = 1
	if avg := stat.Mean(volumes[len(volumes)-smaPeriod:], nil); avg > 0 {
		s.VolumeRatio = volumes[len(volumes)-1] / avg
	}

	s.Trend = TrendDown
	if last > s.SMA20 {
		s.Trend = TrendUp
	}
	switch {
	case s.RSI > overbought:
		s.Momentum = MomentumOverbought
	case s.RSI < oversold:
		s.Momentum = MomentumOversold
	default:
		s.Momentum = MomentumNeutral
	}
	return s, nil
}

// rsi is the 14-period RSI over the last 15 closes. A window with no price
// movement reads 50.
func rsi(closes []float64) float64 {
	window := closes[len(closes)-rsiPeriod-1:]
	flat := true
	for i := 1; i < len(window); i++ {
		if window[i] != window[i-1] {
			flat = false
			break
		}
	}
	if flat {
		return 50
	}
	return lastOf(talib.Rsi(window, rsiPeriod))
}

func lastOf(v []float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	return v[len(v)-1]
}
