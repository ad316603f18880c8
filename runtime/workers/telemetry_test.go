package workers

import (
	"context"
	"log/slog"
	"messenger/domain/event"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestTelemetryWorker_Counts_Events(t *testing.T) {
	req := require.New(t)
	telemetry := make(chan event.DomainEvent, 10)
	counter := event.NewCounter()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	worker := NewTelemetryWorker(log, 10*time.Millisecond, telemetry, counter, event.NewAlertHandler(log))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	telemetry <- event.MessageAppended{}
	telemetry <- event.MessageAppended{}
	telemetry <- event.Alert{Operation: "send"}

	req.Eventually(func() bool {
		return counter.Get(event.MessageAppendedKind) == 2 && counter.Get(event.AlertKind) == 1
	}, time.Second, 5*time.Millisecond)
	req.Equal(map[string]int{"MESSAGE_APPENDED": 2, "ALERT": 1}, counter.Snapshot())
}
