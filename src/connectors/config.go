package connectors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	TiingoBaseURL         string `envconfig:"TIINGO_BASE_URL" default:"https://api.tiingo.com"`
	TiingoAPIKeyEncrypted string `envconfig:"TIINGO_API_KEY_ENCRYPTED"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
