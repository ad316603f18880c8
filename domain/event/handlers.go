package event

import (
	"log/slog"
	"sync"
)

// Handler Each kind of event has his own handler
// Based on the Chain of responsibility pattern
type Handler interface {
	Handle(event DomainEvent)
}

// Counter keeps how many events of each kind went through.
type Counter struct {
	mu     sync.Mutex
	counts map[Kind]int
}

func NewCounter() *Counter {
	return &Counter{counts: make(map[Kind]int)}
}

func (c *Counter) Increment(kind Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[kind]++
}

func (c *Counter) Get(kind Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[kind]
}

// Snapshot returns a copy keyed by kind name, ready to be logged.
func (c *Counter) Snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k.String()] = v
	}
	return out
}

// CountingHandler counts every event.
type CountingHandler struct {
	counter *Counter
}

func NewCountingHandler(counter *Counter) *CountingHandler {
	return &CountingHandler{counter: counter}
}

func (h *CountingHandler) Handle(e DomainEvent) {
	h.counter.Increment(e.Kind())
}

// AlertHandler logs backend failures surfaced to the user.
type AlertHandler struct {
	log *slog.Logger
}

func NewAlertHandler(log *slog.Logger) *AlertHandler {
	return &AlertHandler{log: log}
}

func (h *AlertHandler) Handle(e DomainEvent) {
	if alert, ok := e.(Alert); ok {
		h.log.Warn("Backend call failed",
			"operation", alert.Operation,
			"conversation", alert.Ref.String(),
			"error", alert.Err)
	}
}
