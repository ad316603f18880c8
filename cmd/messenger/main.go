package main

import (
	"context"
	"fmt"
	"messenger/auth"
	"messenger/domain/event"
	"messenger/infrastructure/search"
	"messenger/internal"
	"messenger/repositories"
	"messenger/runtime"
	"messenger/runtime/workers"
	"messenger/services"
	"messenger/sink"
	"os"
	"os/signal"
	"syscall"

	"github.com/mama165/sdk-go/logs"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Messenger terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Configuration & Logger
	config, err := internal.Load()
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Store & index
	store, closeStore, err := internal.OpenStore(ctx, config, log)
	if err != nil {
		return exitRuntime, err
	}
	defer closeStore()

	index, err := search.NewInMemoryUserIndex(log)
	if err != nil {
		return exitRuntime, err
	}
	defer func() { _ = index.Close() }()

	// 3. Repositories & services
	users := repositories.NewUserRepository(store, log)
	groups := repositories.NewGroupRepository(store, log)
	messages := repositories.NewMessageRepository(store, log, config.MessageWindow)
	conversations := repositories.NewConversationRepository(store, log)

	profiles := services.NewProfileService(users, conversations, groups, index, log)
	if err = profiles.Reindex(ctx); err != nil {
		log.Warn("User index is incomplete", "error", err)
	}
	chat := services.NewChatService(messages, groups, services.NewUnreadTracker(store, log, config.Mode()), log)
	authService := services.NewAuthService(
		repositories.NewAccountRepository(store, log),
		auth.NewTokenIssuer(config.JWTSecret, config.AuthTokenDuration),
		log,
	)

	// 4. Event pipeline under supervision
	term := sink.NewTerminal(os.Stdout)
	telemetry := make(chan event.DomainEvent, config.EventBufferSize)
	fanout := workers.NewEventFanout(log, config.EventBufferSize, telemetry, config.SinkTimeout, term)
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		fanout,
		workers.NewTelemetryWorker(log, config.MetricInterval, telemetry, event.NewCounter(), event.NewAlertHandler(log)),
	)
	go sup.Run(ctx)
	defer sup.Stop()

	// 5. Session owner
	app := runtime.NewApp(log, authService, runtime.SessionDeps{
		Chat:          chat,
		Profiles:      profiles,
		Messages:      messages,
		Conversations: conversations,
		Groups:        groups,
		Users:         users,
		Events:        fanout,
		Log:           log,
	})
	app.Start()
	defer app.Stop()

	cli := newCLI(app, authService,
		services.NewGroupService(groups, users, messages, log),
		services.NewNotificationSettingsService(users, log),
		profiles, users, term)
	if err = cli.Run(ctx, os.Stdin); err != nil {
		return exitRuntime, err
	}
	log.Info("Program stopped cleanly")
	return exitOK, nil
}
