package ingestcrypto

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"backtestapi/src/model"
	"backtestapi/src/utils"
)

// IngestCrypto pulls daily klines from the exchange and upserts them into
// price_bars, keyed on (symbol, date).
type IngestCrypto struct {
	Log      *logger.Entry
	DB       *gorm.DB
	Config   *Config
	exchange goex.API
}

func (o *IngestCrypto) Start() error {
	o.Config = GetConfig()

	if o.exchange == nil {
		o.exchange = newBinanceInstance()
	}

	if o.Config.AutoMode {
		if err := o.determineStartPoint(); err != nil {
			return err
		}
	}

	return o.fetchAndUpsert()
}

func newBinanceInstance() *binance.Binance {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return binance.NewWithConfig(apiConfig)
}

func (o *IngestCrypto) symbol() string {
	return o.Config.Symbol + "_" + o.Config.Quote
}

// determineStartPoint moves StartDt to the most recent stored day for the
// symbol. The last day is refetched so a bar stored mid-session gets
// corrected on the next run.
func (o *IngestCrypto) determineStartPoint() error {
	o.Config.EndDt = time.Now().UTC()

	var latestDate sql.NullTime
	result := o.DB.Model(&model.PriceBar{}).
		Select("MAX(date)").
		Where("symbol = ?", o.symbol()).
		Take(&latestDate)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			o.Log.
				WithField("StartDt", o.Config.StartDt.String()).
				WithField("EndDt", o.Config.EndDt.String()).
				Info("no stored bars, starting from the configured StartDt")
			return nil
		}
		o.Log.WithError(result.Error).Error("Failed to query latest bar date")
		return result.Error
	}

	if latestDate.Valid {
		o.Config.StartDt = utils.TradingDay(latestDate.Time)
		o.Log.
			WithField("StartDt", o.Config.StartDt.String()).
			WithField("EndDt", o.Config.EndDt.String()).
			Info("determineStartPoint resuming from last stored day")
	} else {
		o.Log.
			WithField("StartDt", o.Config.StartDt.String()).
			WithField("EndDt", o.Config.EndDt.String()).
			Info("no stored bars, starting from the configured StartDt")
	}

	return nil
}

func (o *IngestCrypto) fetchAndUpsert() error {
	klines, err := o.fetchDailyKlines()
	if err != nil {
		return err
	}

	for i := range klines {
		k := klines[i]

		bar := &model.PriceBar{
			Symbol: k.Pair.String(),
			Date:   utils.TradingDay(time.Unix(k.Timestamp, 0).UTC()),
			Open:   decimal.NewFromFloat(k.Open),
			High:   decimal.NewFromFloat(k.High),
			Low:    decimal.NewFromFloat(k.Low),
			Close:  decimal.NewFromFloat(k.Close),
			Volume: decimal.NewFromFloat(k.Vol),
		}

		// Upsert: on conflict on (symbol, date) do update
		if err := o.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume"}),
		}).Create(bar).Error; err != nil {
			o.Log.WithError(err).Error("fetchAndUpsert, Create, ")
			return err
		}
	}

	o.Log.WithFields(logger.Fields{
		"symbol": o.symbol(),
		"bars":   len(klines),
	}).Info("Daily bars inserted or updated in database")

	return nil
}

func (o *IngestCrypto) fetchDailyKlines() ([]goex.Kline, error) {
	targetSymbol := goex.NewCurrencyPair(goex.Currency{Symbol: o.Config.Symbol}, goex.Currency{Symbol: o.Config.Quote})

	const millis = 1000
	klines, err := o.exchange.GetKlineRecords(
		targetSymbol,
		goex.KLINE_PERIOD_1DAY,
		o.Config.Limit,
		goex.OptionalParameter{}.
			Optional("startTime", o.Config.StartDt.Unix()*millis).
			Optional("endTime", o.Config.EndDt.Unix()*millis),
	)
	if err != nil {
		return nil, err
	}

	return klines, nil
}
