package main

import (
	"context"
	"fmt"
	"messenger/domain"
	"messenger/internal"
	"messenger/notify"
	"messenger/repositories"
	"messenger/runtime/workers"
	"os"
	"os/signal"
	"syscall"

	"github.com/mama165/sdk-go/logs"
	"github.com/nats-io/nats.go"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Notifier terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Configuration & Logger
	config, err := internal.Load()
	if err != nil {
		return exitConfig, err
	}
	pushConfig, err := LoadConfig()
	if err != nil {
		return exitConfig, fmt.Errorf("push config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Store
	store, closeStore, err := internal.OpenStore(ctx, config, log)
	if err != nil {
		return exitRuntime, err
	}
	defer closeStore()

	// 3. Push gateway
	conn, err := nats.Connect(config.NatsURL,
		nats.Name("messenger-notifier"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return exitRuntime, fmt.Errorf("nats connection failed: %w", err)
	}
	defer conn.Close()

	sender := notify.NewNatsSender(conn, log, pushConfig.Acknowledge, notify.BreakerSettings{
		MaxFailures: pushConfig.BreakerMaxFailures,
		Timeout:     pushConfig.BreakerTimeout,
		Interval:    pushConfig.BreakerInterval,
	})

	users := repositories.NewUserRepository(store, log)
	dispatcher := notify.NewDispatcher(
		users,
		repositories.NewGroupRepository(store, log),
		repositories.NewConversationRepository(store, log),
		sender, log, pushConfig.BaseURL,
	)

	// 4. Workers
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		workers.NewPushFanout(log, store, dispatcher, domain.DirectMessagesRoot+"/"),
		workers.NewPushFanout(log, store, dispatcher, domain.GroupMessagesRoot+"/"),
		workers.NewTokenCleanup(log, users, pushConfig.CleanupInterval, pushConfig.TokenMaxAge),
	)

	log.Info("Notifier started", "backend", config.StoreBackend, "nats", config.NatsURL)
	sup.Run(ctx)

	log.Info("Program stopped cleanly")
	return exitOK, nil
}
