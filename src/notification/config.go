package notification

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	GeneralChatURL string        `envconfig:"WHOP_GENERAL_CHAT_URL"`
	DegenChatURL   string        `envconfig:"WHOP_DEGEN_CHAT_URL"`
	PremiumChatURL string        `envconfig:"WHOP_PREMIUM_CHAT_URL"`
	Timezone       string        `envconfig:"NOTIFY_TIMEZONE" default:"America/New_York"`
	Timeout        time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"10s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// Location resolves Timezone, UTC when it cannot be loaded.
func (c Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
