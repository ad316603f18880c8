package workers

import (
	"context"
	"log/slog"
	"messenger/contract"
	"messenger/domain"
	"messenger/domain/event"
	"messenger/mocks"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestEventFanout_Delivers_To_Every_Sink_In_Order(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	sink1 := mocks.NewMockEventSink(ctrl)
	sink2 := mocks.NewMockEventSink(ctrl)
	telemetry := make(chan event.DomainEvent, 10)
	fanout := NewEventFanout(log, 10, telemetry, time.Second, sink1, sink2)

	ref := domain.DirectRef("u1", "u2")
	first := event.ConversationOpened{Ref: ref}
	second := event.ConversationClosed{Ref: ref}
	done := make(chan struct{})

	// Given both sinks expect both events in order
	gomock.InOrder(
		sink1.EXPECT().Consume(gomock.Any(), first).Return(nil),
		sink1.EXPECT().Consume(gomock.Any(), second).Return(nil),
	)
	gomock.InOrder(
		sink2.EXPECT().Consume(gomock.Any(), first).Return(nil),
		sink2.EXPECT().Consume(gomock.Any(), second).DoAndReturn(func(context.Context, event.DomainEvent) error {
			close(done)
			return nil
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = fanout.Run(ctx) }()

	// When two events are published
	req.True(fanout.Publish(first))
	req.True(fanout.Publish(second))

	// Then every sink sees them and telemetry gets a copy
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Events were not fanned out in time")
	}
	req.Eventually(func() bool { return len(telemetry) == 2 }, time.Second, 5*time.Millisecond)
}

func TestEventFanout_SinkTimeout(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	slow := mocks.NewMockEventSink(ctrl)
	fast := mocks.NewMockEventSink(ctrl)
	fanout := NewEventFanout(log, 1, nil, 20*time.Millisecond, slow, fast)

	// Given a sink waiting for its deadline
	slow.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, e event.DomainEvent) error {
			<-ctx.Done()
			return ctx.Err()
		})
	fast.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil)

	start := time.Now()
	fanout.Fanout(context.Background(), event.SessionEnded{UserID: "u1"})

	// Then the next sink is served once the deadline expired
	req.Less(time.Since(start), 500*time.Millisecond)
}

func TestEventFanout_Publish_Drops_When_Full(t *testing.T) {
	req := require.New(t)
	fanout := NewEventFanout(logs.GetLoggerFromLevel(slog.LevelDebug), 1, nil, 0, []contract.EventSink{}...)

	req.True(fanout.Publish(event.SessionEnded{}))
	req.False(fanout.Publish(event.SessionEnded{}))
}
