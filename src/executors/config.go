package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	LoopPeriod      time.Duration `envconfig:"LOOP_PERIOD" default:"5s"`
	MaxParallelRuns int           `envconfig:"MAX_PARALLEL_RUNS" default:"2"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
