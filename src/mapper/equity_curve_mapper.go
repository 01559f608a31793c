package mapper

import (
	"github.com/shopspring/decimal"

	"backtestapi/src/model"
)

const dateLayout = "2006-01-02"

// MapEquityCurveToSeries converts stored curve points into the parallel
// array shape the charting frontend consumes. An empty input maps to
// empty arrays, never null.
func MapEquityCurveToSeries(points []model.EquityCurvePoint) *model.EquityCurveSeries {
	series := &model.EquityCurveSeries{
		Dates:          make([]string, 0, len(points)),
		Equity:         make([]decimal.Decimal, 0, len(points)),
		Cash:           make([]decimal.Decimal, 0, len(points)),
		PositionsValue: make([]decimal.Decimal, 0, len(points)),
		DailyReturns:   make([]float64, 0, len(points)),
		Drawdowns:      make([]float64, 0, len(points)),
	}

	for _, point := range points {
		series.Dates = append(series.Dates, point.Date.Format(dateLayout))
		series.Equity = append(series.Equity, point.Equity)
		series.Cash = append(series.Cash, point.Cash)
		series.PositionsValue = append(series.PositionsValue, point.PositionsValue)
		series.DailyReturns = append(series.DailyReturns, point.DailyReturn)
		series.Drawdowns = append(series.Drawdowns, point.Drawdown)
	}

	return series
}
