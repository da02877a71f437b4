package auth

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AccessPassword     string `envconfig:"ACCESS_PASSWORD"`
	AccessPasswordHash string `envconfig:"ACCESS_PASSWORD_HASH"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
