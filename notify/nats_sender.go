package notify

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"messenger/contract"
	"messenger/errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"
)

const (
	SubjectPrefix = "push."
	// StatusInvalidToken is replied by the push gateway for a device that is gone.
	StatusInvalidToken = "invalid-token"
)

// Subject is where the pushes of one user are published.
func Subject(userID string) string {
	return SubjectPrefix + userID
}

type BreakerSettings struct {
	MaxFailures uint32
	Timeout     time.Duration
	Interval    time.Duration
}

type gatewayReply struct {
	Status string `json:"status"`
}

// NatsSender hands pushes to a gateway over NATS.
// With acknowledgements the gateway replies to each push, which is how
// unregistered devices are learnt; without them pushes are fire and forget.
type NatsSender struct {
	log     *slog.Logger
	breaker *gobreaker.CircuitBreaker
	publish func(ctx context.Context, subject string, data []byte) ([]byte, error)
}

func NewNatsSender(conn *nats.Conn, log *slog.Logger, acknowledge bool, settings BreakerSettings) *NatsSender {
	publish := func(_ context.Context, subject string, data []byte) ([]byte, error) {
		return nil, conn.Publish(subject, data)
	}
	if acknowledge {
		publish = func(ctx context.Context, subject string, data []byte) ([]byte, error) {
			msg, err := conn.RequestWithContext(ctx, subject, data)
			if err != nil {
				return nil, err
			}
			return msg.Data, nil
		}
	}
	return newNatsSender(log, settings, publish)
}

func newNatsSender(log *slog.Logger, settings BreakerSettings, publish func(context.Context, string, []byte) ([]byte, error)) *NatsSender {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "push",
		MaxRequests: 1,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || stderrors.Is(err, errors.ErrInvalidDeviceToken)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("Circuit breaker state", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return &NatsSender{log: log, breaker: breaker, publish: publish}
}

func (s *NatsSender) Send(ctx context.Context, msg contract.PushMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding push: %w", err)
	}
	_, err = s.breaker.Execute(func() (any, error) {
		reply, err := s.publish(ctx, Subject(msg.UserID), data)
		if err != nil || len(reply) == 0 {
			return nil, err
		}
		var r gatewayReply
		if err = json.Unmarshal(reply, &r); err != nil {
			return nil, fmt.Errorf("decoding gateway reply: %w", err)
		}
		if r.Status == StatusInvalidToken {
			return nil, errors.ErrInvalidDeviceToken
		}
		return nil, nil
	})
	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", errors.ErrPushUnavailable, err)
	}
	return err
}
