package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	TopstepBaseURL   string        `envconfig:"TOPSTEPX_BASE_URL" default:"https://api.topstepx.com/api"`
	TopstepTimeout   time.Duration `envconfig:"TOPSTEPX_TIMEOUT" default:"15s"`
	UserHubURL       string        `envconfig:"TOPSTEPX_USER_HUB_URL" default:"https://rtc.topstepx.com/hubs/user"`
	UserHubEnabled   bool          `envconfig:"TOPSTEPX_USER_HUB_ENABLED" default:"false"`
	UserHubReconnect time.Duration `envconfig:"TOPSTEPX_USER_HUB_RECONNECT" default:"5s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
