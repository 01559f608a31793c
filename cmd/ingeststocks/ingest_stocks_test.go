package ingeststocks

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"backtestapi/src/connectors"
	"backtestapi/src/model"
)

type stubFeed struct {
	meta     map[string]*connectors.TiingoTickerMeta
	bars     map[string][]connectors.TiingoDailyBar
	lastFrom time.Time
	lastTo   time.Time
}

func (f *stubFeed) GetDailyBars(_ context.Context, symbol string, start, end time.Time) ([]connectors.TiingoDailyBar, error) {
	f.lastFrom, f.lastTo = start, end
	return f.bars[strings.ToUpper(symbol)], nil
}

func (f *stubFeed) GetTickerMeta(_ context.Context, symbol string) (*connectors.TiingoTickerMeta, error) {
	m, ok := f.meta[strings.ToUpper(symbol)]
	if !ok {
		return nil, fmt.Errorf("HTTP 404: ticker %s not found", symbol)
	}
	return m, nil
}

func setupSQLiteDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.PriceBar{}))
	return db
}

func coveredSince(start string) *connectors.TiingoTickerMeta {
	return &connectors.TiingoTickerMeta{Ticker: "AAPL", StartDate: start, EndDate: "2027-01-31"}
}

func feedBar(day int, close float64) connectors.TiingoDailyBar {
	return connectors.TiingoDailyBar{
		Date:   time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC),
		Open:   close - 1,
		High:   close + 1,
		Low:    close - 2,
		Close:  close,
		Volume: 1000,
	}
}

func TestIngestStocksUpsertsBars(t *testing.T) {
	t.Setenv("SYMBOLS", "AAPL")
	t.Setenv("START_DATE", "2024-01-01T00:00:00Z")
	t.Setenv("END_DATE", "2024-06-30T00:00:00Z")
	t.Setenv("AUTO_MODE", "false")

	db := setupSQLiteDB(t)
	feed := &stubFeed{
		meta: map[string]*connectors.TiingoTickerMeta{"AAPL": coveredSince("1980-12-12")},
		bars: map[string][]connectors.TiingoDailyBar{"AAPL": {feedBar(4, 185.5), feedBar(5, 186.25)}},
	}

	ingest := &IngestStocks{Log: logrus.NewEntry(logrus.New()), DB: db, feed: feed}
	require.NoError(t, ingest.Start(context.Background()))

	var count int64
	require.NoError(t, db.Model(&model.PriceBar{}).Count(&count).Error)
	require.EqualValues(t, 2, count)

	// A second run with a corrected close must update, not duplicate.
	feed.bars["AAPL"] = []connectors.TiingoDailyBar{feedBar(5, 187.0)}
	require.NoError(t, ingest.Start(context.Background()))

	require.NoError(t, db.Model(&model.PriceBar{}).Count(&count).Error)
	require.EqualValues(t, 2, count)

	var bar model.PriceBar
	require.NoError(t, db.Where("symbol = ? AND date = ?", "AAPL", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)).Take(&bar).Error)
	require.True(t, bar.Close.Equal(decimal.NewFromFloat(187.0)), "expected the close to be corrected, got %s", bar.Close)
}

func TestIngestStocksSkipsUncoveredSymbols(t *testing.T) {
	t.Setenv("SYMBOLS", "AAPL,NOPE")
	t.Setenv("START_DATE", "2024-01-01T00:00:00Z")
	t.Setenv("END_DATE", "2024-06-30T00:00:00Z")
	t.Setenv("AUTO_MODE", "false")

	db := setupSQLiteDB(t)
	feed := &stubFeed{
		meta: map[string]*connectors.TiingoTickerMeta{"AAPL": coveredSince("1980-12-12")},
		bars: map[string][]connectors.TiingoDailyBar{"AAPL": {feedBar(4, 185.5)}},
	}

	ingest := &IngestStocks{Log: logrus.NewEntry(logrus.New()), DB: db, feed: feed}
	require.NoError(t, ingest.Start(context.Background()))

	var symbols []string
	require.NoError(t, db.Model(&model.PriceBar{}).Distinct("symbol").Pluck("symbol", &symbols).Error)
	require.Equal(t, []string{"AAPL"}, symbols)
}

func TestIngestStocksFailsWhenNothingIngestable(t *testing.T) {
	t.Setenv("SYMBOLS", "NOPE")
	t.Setenv("AUTO_MODE", "false")

	db := setupSQLiteDB(t)
	feed := &stubFeed{meta: map[string]*connectors.TiingoTickerMeta{}}

	ingest := &IngestStocks{Log: logrus.NewEntry(logrus.New()), DB: db, feed: feed}
	err := ingest.Start(context.Background())
	require.EqualError(t, err, "no symbol could be ingested")
}

func TestIngestStocksClampsToCoverage(t *testing.T) {
	t.Setenv("SYMBOLS", "AAPL")
	t.Setenv("START_DATE", "2024-01-01T00:00:00Z")
	t.Setenv("END_DATE", "2024-06-30T00:00:00Z")
	t.Setenv("AUTO_MODE", "false")

	db := setupSQLiteDB(t)
	feed := &stubFeed{
		meta: map[string]*connectors.TiingoTickerMeta{"AAPL": coveredSince("2024-02-01")},
		bars: map[string][]connectors.TiingoDailyBar{"AAPL": {feedBar(4, 185.5)}},
	}

	ingest := &IngestStocks{Log: logrus.NewEntry(logrus.New()), DB: db, feed: feed}
	require.NoError(t, ingest.Start(context.Background()))

	require.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), feed.lastFrom,
		"request should start at the feed's coverage start")
}

func TestIngestStocksAutoModeResumesFromStoredBars(t *testing.T) {
	t.Setenv("SYMBOLS", "AAPL")
	t.Setenv("START_DATE", "2024-01-01T00:00:00Z")
	t.Setenv("AUTO_MODE", "true")

	db := setupSQLiteDB(t)
	stored := model.PriceBar{
		Symbol: "AAPL",
		Date:   time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
		Open:   decimal.NewFromFloat(184),
		High:   decimal.NewFromFloat(186),
		Low:    decimal.NewFromFloat(183),
		Close:  decimal.NewFromFloat(185),
		Volume: decimal.NewFromFloat(1000),
	}
	require.NoError(t, db.Create(&stored).Error)

	feed := &stubFeed{
		meta: map[string]*connectors.TiingoTickerMeta{"AAPL": coveredSince("1980-12-12")},
		bars: map[string][]connectors.TiingoDailyBar{"AAPL": {feedBar(8, 185.5)}},
	}

	ingest := &IngestStocks{Log: logrus.NewEntry(logrus.New()), DB: db, feed: feed}
	require.NoError(t, ingest.Start(context.Background()))

	require.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), feed.lastFrom,
		"auto mode should refetch from the last stored day")
	require.True(t, feed.lastTo.After(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		"auto mode should fetch through the present")
}
