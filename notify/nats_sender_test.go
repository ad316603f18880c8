package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"messenger/contract"
	"messenger/errors"
	"os"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

func TestNatsSender_Breaker_Opens_After_Failures(t *testing.T) {
	req := require.New(t)
	calls := 0
	sender := newNatsSender(logs.GetLoggerFromLevel(slog.LevelDebug), BreakerSettings{MaxFailures: 2, Timeout: time.Minute},
		func(context.Context, string, []byte) ([]byte, error) {
			calls++
			return nil, fmt.Errorf("connection refused")
		})
	ctx := context.Background()

	req.Error(sender.Send(ctx, contract.PushMessage{UserID: "u1"}))
	req.Error(sender.Send(ctx, contract.PushMessage{UserID: "u1"}))

	// Then the gateway is not called while the breaker is open
	err := sender.Send(ctx, contract.PushMessage{UserID: "u1"})
	req.ErrorIs(err, errors.ErrPushUnavailable)
	req.Equal(2, calls)
}

func TestNatsSender_Invalid_Token_Reply(t *testing.T) {
	req := require.New(t)
	var subject string
	sender := newNatsSender(logs.GetLoggerFromLevel(slog.LevelDebug), BreakerSettings{MaxFailures: 1},
		func(_ context.Context, s string, _ []byte) ([]byte, error) {
			subject = s
			return []byte(`{"status":"invalid-token"}`), nil
		})

	err := sender.Send(context.Background(), contract.PushMessage{UserID: "u1", Token: "t"})
	req.ErrorIs(err, errors.ErrInvalidDeviceToken)
	req.Equal("push.u1", subject)

	// An unregistered device does not trip the breaker
	err = sender.Send(context.Background(), contract.PushMessage{UserID: "u1", Token: "t"})
	req.ErrorIs(err, errors.ErrInvalidDeviceToken)
}

// Needs a reachable server (NATS_URL, nats://localhost:4222 by default).
func TestNatsSender_Publishes_On_User_Subject(t *testing.T) {
	req := require.New(t)
	addr := os.Getenv("NATS_URL")
	if addr == "" {
		addr = nats.DefaultURL
	}
	conn, err := nats.Connect(addr, nats.Timeout(500*time.Millisecond))
	if err != nil {
		t.Skipf("nats not reachable on %s: %v", addr, err)
	}
	defer conn.Close()

	received := make(chan *nats.Msg, 1)
	sub, err := conn.ChanSubscribe(Subject("u1"), received)
	req.NoError(err)
	defer func() { _ = sub.Unsubscribe() }()
	req.NoError(conn.Flush())

	sender := NewNatsSender(conn, logs.GetLoggerFromLevel(slog.LevelDebug), false, BreakerSettings{})
	req.NoError(sender.Send(context.Background(), contract.PushMessage{UserID: "u1", Token: "t", Title: "hi"}))

	select {
	case msg := <-received:
		var push contract.PushMessage
		req.NoError(json.Unmarshal(msg.Data, &push))
		req.Equal("hi", push.Title)
		req.Equal("t", push.Token)
	case <-time.After(2 * time.Second):
		req.Fail("push not received")
	}
}
