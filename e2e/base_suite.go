package e2e

import (
	"context"
	"fmt"
	"log/slog"
	"messenger/domain/event"
	"messenger/infrastructure/search"
	"messenger/infrastructure/storage"
	"messenger/repositories"
	"messenger/runtime"
	"messenger/runtime/workers"
	"messenger/services"
	"messenger/sink"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

// BaseSuite runs several messenger processes against one Redis server.
// Every test gets its own key namespace.
type BaseSuite struct {
	suite.Suite
	Config    Config
	client    *redis.Client
	namespace string
}

// SetupSuite loads the environment configuration and skips when Redis is down.
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)

	s.client = redis.NewClient(&redis.Options{Addr: s.Config.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err = s.client.Ping(ctx).Err(); err != nil {
		_ = s.client.Close()
		s.T().Skipf("redis not reachable on %s: %v", s.Config.RedisAddr, err)
	}
}

func (s *BaseSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
}

func (s *BaseSuite) SetupTest() {
	s.namespace = "e2e:" + uuid.NewString() + ":"
}

func (s *BaseSuite) TearDownTest() {
	ctx := context.Background()
	keys, _ := s.client.Keys(ctx, s.namespace+"*").Result()
	if len(keys) > 0 {
		s.client.Del(ctx, keys...)
	}
}

// Step prints a header for a scenario step.
func (s *BaseSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Process is one running client: its own store connection, services and event pipeline.
type Process struct {
	Store         *storage.Store
	Log           *slog.Logger
	Users         repositories.UserRepository
	Groups        repositories.GroupRepository
	Conversations repositories.ConversationRepository
	Settings      *services.NotificationSettingsService
	Transcript    *sink.Transcript
	deps          runtime.SessionDeps
}

// NewProcess starts a process sharing the suite namespace. It is stopped with the test.
func (s *BaseSuite) NewProcess(name string) *Process {
	log := logs.GetLoggerFromLevel(slog.LevelDebug).With("process", name)
	store, err := storage.NewRedisStore(context.Background(), s.client, log, storage.RedisOptions{Namespace: s.namespace})
	s.Require().NoError(err)
	index, err := search.NewInMemoryUserIndex(log)
	s.Require().NoError(err)

	users := repositories.NewUserRepository(store, log)
	groups := repositories.NewGroupRepository(store, log)
	messages := repositories.NewMessageRepository(store, log, repositories.DefaultMessageWindow)
	conversations := repositories.NewConversationRepository(store, log)
	transcript := sink.NewTranscript()

	telemetry := make(chan event.DomainEvent, 64)
	fanout := workers.NewEventFanout(log, 64, telemetry, workers.DefaultSinkTimeout, transcript)
	sup := workers.NewSupervisor(log, workers.DefaultRestartInterval)
	sup.Add(fanout, workers.NewTelemetryWorker(log, time.Minute, telemetry, event.NewCounter()))
	ctx, cancel := context.WithCancel(context.Background())
	go sup.Run(ctx)

	s.T().Cleanup(func() {
		cancel()
		sup.Stop()
		_ = index.Close()
		_ = store.Close()
	})
	return &Process{
		Store:         store,
		Log:           log,
		Users:         users,
		Groups:        groups,
		Conversations: conversations,
		Settings:      services.NewNotificationSettingsService(users, log),
		Transcript:    transcript,
		deps: runtime.SessionDeps{
			Chat:          services.NewChatService(messages, groups, services.NewUnreadTracker(store, log, services.ModeTransactional), log),
			Profiles:      services.NewProfileService(users, conversations, groups, index, log),
			Messages:      messages,
			Conversations: conversations,
			Groups:        groups,
			Users:         users,
			Events:        fanout,
			Log:           log,
		},
	}
}

// SignIn opens a session for userID and claims its username.
func (s *BaseSuite) SignIn(p *Process, userID, username string) *runtime.Session {
	session := runtime.NewSession(p.deps, userID, userID+"@e2e.io")
	_, err := session.ClaimUsername(context.Background(), username)
	s.Require().NoError(err)
	s.T().Cleanup(session.Logout)
	return session
}
