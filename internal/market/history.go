package market

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/stockgame/engine/internal/model"
)

// MergeHistory folds a price observation for date into series.
//
// If a point for date exists its close, high, low and volume are updated in
// place. Otherwise a new point is inserted in date order and the oldest
// points are evicted so that at most window points remain. The returned
// slice may share storage with series.
func MergeHistory(series []model.HistoryPoint, date string, price decimal.Decimal, volume int64, window int) []model.HistoryPoint {
	i := sort.Search(len(series), func(i int) bool { return series[i].Date >= date })

	if i < len(series) && series[i].Date == date {
		p := &series[i]
		p.Close = price
		p.Price = price
		p.Volume = volume
		if price.GreaterThan(p.High) {
			p.High = price
		}
		if price.LessThan(p.Low) {
			p.Low = price
		}
		return series
	}

	point := model.HistoryPoint{
		Date:   date,
		Price:  price,
		Open:   price,
		High:   price,
		Low:    price,
		Close:  price,
		Volume: volume,
	}
	series = append(series, model.HistoryPoint{})
	copy(series[i+1:], series[i:])
	series[i] = point

	if window > 0 && len(series) > window {
		series = append([]model.HistoryPoint(nil), series[len(series)-window:]...)
	}
	return series
}
