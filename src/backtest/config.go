package backtest

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	MaxConcurrentSymbols int     `envconfig:"MAX_CONCURRENT_SYMBOLS" default:"8"`
	CommissionBps        float64 `envconfig:"COMMISSION_BPS" default:"0"`
	AllowPartialSymbols  bool    `envconfig:"ALLOW_PARTIAL_SYMBOLS" default:"false"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
