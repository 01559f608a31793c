package ingeststocks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"backtestapi/src/connectors"
	"backtestapi/src/model"
	"backtestapi/src/repository"
	"backtestapi/src/security"
	"backtestapi/src/utils"
)

const isoDateLayout = "2006-01-02"

type dailyBarFeed interface {
	GetDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]connectors.TiingoDailyBar, error)
	GetTickerMeta(ctx context.Context, symbol string) (*connectors.TiingoTickerMeta, error)
}

type barStore interface {
	UpsertBatch(ctx context.Context, bars []model.PriceBar) error
	LatestDate(ctx context.Context, symbol string) (*time.Time, error)
}

// IngestStocks pulls end-of-day stock bars from the market data feed and
// upserts them into price_bars, keyed on (symbol, date). Symbols the feed
// does not cover are skipped, not fatal.
type IngestStocks struct {
	Log    *logger.Entry
	DB     *gorm.DB
	Config *Config
	feed   dailyBarFeed
	bars   barStore
}

func (s *IngestStocks) Start(ctx context.Context) error {
	s.Config = GetConfig()

	if s.feed == nil {
		feed, err := newConfiguredFeed()
		if err != nil {
			return err
		}
		s.feed = feed
	}
	if s.bars == nil {
		s.bars = repository.NewPriceBarRepository().WithDB(s.DB)
	}

	var ingested int
	for _, symbol := range s.Config.Symbols {
		if err := s.ingestSymbol(ctx, symbol); err != nil {
			s.Log.WithError(err).WithField("symbol", symbol).Error("Failed to ingest symbol")
			continue
		}
		ingested++
	}

	if ingested == 0 && len(s.Config.Symbols) > 0 {
		return errors.New("no symbol could be ingested")
	}

	return nil
}

// newConfiguredFeed builds the production feed client. The API key is
// stored encrypted and decrypted only here.
func newConfiguredFeed() (dailyBarFeed, error) {
	cfg := connectors.GetConfig()

	apiKey, err := security.DecryptString(cfg.TiingoAPIKeyEncrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt market data API key: %w", err)
	}

	return connectors.NewTiingoClient(apiKey, cfg.TiingoBaseURL), nil
}

func (s *IngestStocks) ingestSymbol(ctx context.Context, symbol string) error {
	meta, err := s.feed.GetTickerMeta(ctx, symbol)
	if err != nil {
		return fmt.Errorf("feed does not cover %s: %w", symbol, err)
	}

	storedSymbol := strings.ToUpper(symbol)

	start, end := s.Config.StartDt, s.Config.EndDt
	if s.Config.AutoMode {
		latest, err := s.bars.LatestDate(ctx, storedSymbol)
		if err != nil {
			return err
		}
		if latest != nil {
			// Refetch the most recent stored day so a bar written
			// mid-session gets corrected on the next run.
			start = utils.TradingDay(*latest)
		}
		end = time.Now().UTC()
	}

	// The feed 404s on dates before its coverage window; clamp instead.
	if coverageStart, err := time.Parse(isoDateLayout, meta.StartDate); err == nil && start.Before(coverageStart) {
		start = coverageStart
	}

	feedBars, err := s.feed.GetDailyBars(ctx, symbol, start, end)
	if err != nil {
		return err
	}

	batch := make([]model.PriceBar, 0, len(feedBars))
	for i := range feedBars {
		batch = append(batch, model.PriceBar{
			Symbol: storedSymbol,
			Date:   utils.TradingDay(feedBars[i].Date),
			Open:   decimal.NewFromFloat(feedBars[i].Open),
			High:   decimal.NewFromFloat(feedBars[i].High),
			Low:    decimal.NewFromFloat(feedBars[i].Low),
			Close:  decimal.NewFromFloat(feedBars[i].Close),
			Volume: decimal.NewFromFloat(feedBars[i].Volume),
		})
	}
	if err := s.bars.UpsertBatch(ctx, batch); err != nil {
		s.Log.WithError(err).Error("ingestSymbol, UpsertBatch, ")
		return err
	}

	s.Log.WithFields(logger.Fields{
		"symbol": storedSymbol,
		"bars":   len(batch),
		"start":  start.Format(isoDateLayout),
		"end":    end.Format(isoDateLayout),
	}).Info("Daily bars inserted or updated in database")

	return nil
}
