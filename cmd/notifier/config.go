package main

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the push settings. Store and logging settings come from internal.Config.
type Config struct {
	// PUSH_ACKNOWLEDGE waits for the gateway reply to each push, which is how dead tokens are detected
	Acknowledge        bool          `envconfig:"PUSH_ACKNOWLEDGE" default:"true"`
	BreakerMaxFailures uint32        `envconfig:"PUSH_BREAKER_MAX_FAILURES" default:"5"`
	BreakerTimeout     time.Duration `envconfig:"PUSH_BREAKER_TIMEOUT" default:"30s"`
	BreakerInterval    time.Duration `envconfig:"PUSH_BREAKER_INTERVAL" default:"1m"`
	BaseURL            string        `envconfig:"PUSH_BASE_URL" default:"https://messenger.local/"`
	CleanupInterval    time.Duration `envconfig:"TOKEN_CLEANUP_INTERVAL" default:"24h"`
	TokenMaxAge        time.Duration `envconfig:"TOKEN_MAX_AGE" default:"720h"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
