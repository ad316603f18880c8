package internal

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"messenger/infrastructure/storage"
	"messenger/services"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

const (
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

type Config struct {
	StoreBackend      string        `env:"STORE_BACKEND,default=badger"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,default=./data/messenger"`
	RedisAddr         string        `env:"REDIS_ADDR,default=localhost:6379"`
	RedisPassword     string        `env:"REDIS_PASSWORD"`
	RedisDB           int           `env:"REDIS_DB,default=0"`
	RedisNamespace    string        `env:"REDIS_NAMESPACE,default=messenger:"`
	NatsURL           string        `env:"NATS_URL,default=nats://127.0.0.1:4222"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
	CounterMode       string        `env:"COUNTER_MODE,default=transactional"`
	TxnMaxAttempts    int           `env:"TXN_MAX_ATTEMPTS,default=50"`
	TxnRetryDelay     time.Duration `env:"TXN_RETRY_DELAY,default=2ms"`
	MessageWindow     int           `env:"MESSAGE_WINDOW,default=50"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=720h"`
	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	EventBufferSize   int           `env:"EVENT_BUFFER_SIZE,default=256"`
	SinkTimeout       time.Duration `env:"SINK_TIMEOUT,default=2s"`
	MetricInterval    time.Duration `env:"METRIC_INTERVAL,default=1m"`
}

// Load reads the environment, after the given .env files (".env" when none).
// Missing files are ignored and variables already set win over the files.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("reading env file: %w", err)
	}
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) Validate() error {
	if c.StoreBackend != BackendBadger && c.StoreBackend != BackendRedis {
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendBadger, BackendRedis, c.StoreBackend)
	}
	if _, err := services.ParseCounterMode(c.CounterMode); err != nil {
		return err
	}
	if c.MessageWindow <= 0 {
		return fmt.Errorf("MESSAGE_WINDOW must be positive, got %d", c.MessageWindow)
	}
	if c.TxnMaxAttempts <= 0 {
		return fmt.Errorf("TXN_MAX_ATTEMPTS must be positive, got %d", c.TxnMaxAttempts)
	}
	if c.EventBufferSize <= 0 {
		return fmt.Errorf("EVENT_BUFFER_SIZE must be positive, got %d", c.EventBufferSize)
	}
	return nil
}

func (c Config) RetryPolicy() storage.RetryPolicy {
	return storage.RetryPolicy{MaxAttempts: c.TxnMaxAttempts, BaseDelay: c.TxnRetryDelay}
}

// Mode is only meaningful on a validated config.
func (c Config) Mode() services.CounterMode {
	mode, _ := services.ParseCounterMode(c.CounterMode)
	return mode
}
