package session

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	TokenTTL      time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	SweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"12h"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
