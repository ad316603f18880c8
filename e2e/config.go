package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	NatsURL   string `envconfig:"NATS_URL" default:"nats://127.0.0.1:4222"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
