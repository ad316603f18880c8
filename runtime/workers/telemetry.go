package workers

import (
	"context"
	"log/slog"
	"messenger/domain/event"
	"time"
)

// TelemetryWorker runs the telemetry handlers over every fanned out event
// and logs the counter every metric interval.
type TelemetryWorker struct {
	log            *slog.Logger
	metricInterval time.Duration
	telemetryChan  chan event.DomainEvent
	counter        *event.Counter
	handlers       []event.Handler
}

func NewTelemetryWorker(log *slog.Logger,
	metricInterval time.Duration,
	telemetryChan chan event.DomainEvent,
	counter *event.Counter,
	handlers ...event.Handler) *TelemetryWorker {
	return &TelemetryWorker{
		log:            log,
		metricInterval: metricInterval,
		telemetryChan:  telemetryChan,
		counter:        counter,
		handlers:       append([]event.Handler{event.NewCountingHandler(counter)}, handlers...),
	}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-w.telemetryChan:
			w.handle(evt)
		case <-ticker.C:
			w.log.Debug("Session events", "counts", w.counter.Snapshot())
		}
	}
}

func (w *TelemetryWorker) handle(e event.DomainEvent) {
	for _, h := range w.handlers {
		h.Handle(e)
	}
}
