package workers

import (
	"context"
	"log/slog"
	"messenger/contract"
	"messenger/domain/event"
	"time"
)

const DefaultSinkTimeout = 2 * time.Second

// EventFanout broadcasts session events to multiple in-process consumers.
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// durability, or retries. EventFanout is not a message broker.
// Events of one publisher reach each sink in publish order.
//
// Every event is also offered to the telemetry channel, dropped when it is full.
type EventFanout struct {
	log         *slog.Logger
	events      chan event.DomainEvent
	telemetry   chan event.DomainEvent
	sinks       []contract.EventSink
	sinkTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, capacity int, telemetry chan event.DomainEvent, sinkTimeout time.Duration, sinks ...contract.EventSink) *EventFanout {
	if sinkTimeout <= 0 {
		sinkTimeout = DefaultSinkTimeout
	}
	return &EventFanout{
		log:         log,
		events:      make(chan event.DomainEvent, capacity),
		telemetry:   telemetry,
		sinks:       sinks,
		sinkTimeout: sinkTimeout,
	}
}

// Publish queues an event without blocking the caller.
// It reports false when the queue is full and the event was dropped.
func (w *EventFanout) Publish(e event.DomainEvent) bool {
	select {
	case w.events <- e:
		return true
	default:
		w.log.Warn("Event queue full, event dropped", "kind", e.Kind().String())
		return false
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.events:
			w.Fanout(ctx, evt)
			if w.telemetry == nil {
				continue
			}
			select {
			case w.telemetry <- evt:
			default:
				w.log.Debug("Observability telemetry event lost")
			}
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		}
	}
}

// Fanout hands the event to every sink, each one bounded by the sink timeout.
func (w *EventFanout) Fanout(ctx context.Context, e event.DomainEvent) {
	for _, sink := range w.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(sinkCtx, e); err != nil {
			w.log.Warn("Sink failed to consume event", "kind", e.Kind().String(), "error", err)
		}
		cancel()
	}
}
