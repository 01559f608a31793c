package pricedata

import (
	"context"
	"fmt"
	"time"

	"backtestapi/src/model"
	"backtestapi/src/repository"
)

// Provider supplies the daily bars a backtest consumes. Bars come back
// ascending by date, one per trading day the venue was open.
type Provider interface {
	FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]model.PriceBar, error)
}

type barSource interface {
	FindRange(ctx context.Context, symbol string, from, to time.Time) ([]model.PriceBar, error)
}

// DBProvider serves bars previously ingested into the price_bars table.
type DBProvider struct {
	source barSource
}

// NewDBProvider creates a provider backed by the main database.
func NewDBProvider() *DBProvider {
	return &DBProvider{source: repository.NewPriceBarRepository()}
}

// NewDBProviderWithSource allows overriding the bar source, for tests.
func NewDBProviderWithSource(source barSource) *DBProvider {
	return &DBProvider{source: source}
}

// FetchDailyBars returns the stored bars for the range. A symbol with
// no bars at all in the range is an error so a run referencing it fails
// with a message naming the symbol instead of silently trading nothing.
func (p *DBProvider) FetchDailyBars(
	ctx context.Context,
	symbol string,
	start time.Time,
	end time.Time,
) ([]model.PriceBar, error) {

	bars, err := p.source.FindRange(ctx, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch bars for %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf(
			"symbol %s has no price data between %s and %s",
			symbol,
			start.Format("2006-01-02"),
			end.Format("2006-01-02"),
		)
	}

	return bars, nil
}
