package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceBar is one day's OHLCV record for a symbol, unique per
// symbol/date. Bars are kept ascending by date per symbol; the
// ingestion commands upsert on the composite key.
type PriceBar struct {
	ID     uint            `gorm:"primaryKey"`
	Symbol string          `json:"symbol" gorm:"type:varchar(50);not null;uniqueIndex:ux_price_bars_symbol_date,priority:1;index:idx_price_bars_symbol_date,priority:1"`
	Date   time.Time       `json:"date"   gorm:"not null;uniqueIndex:ux_price_bars_symbol_date,priority:2;index:idx_price_bars_symbol_date,priority:2"`
	Open   decimal.Decimal `json:"open"   gorm:"type:double precision;not null"`
	High   decimal.Decimal `json:"high"   gorm:"type:double precision;not null"`
	Low    decimal.Decimal `json:"low"    gorm:"type:double precision;not null"`
	Close  decimal.Decimal `json:"close"  gorm:"type:double precision;not null"`
	Volume decimal.Decimal `json:"volume" gorm:"type:double precision;not null"`
}

func (PriceBar) TableName() string {
	return "price_bars"
}
