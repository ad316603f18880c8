package storage

import (
	"sync"
	"time"
)

// serverClock assigns commit times. Values are strictly increasing
// milliseconds so that documents written in a row never share a timestamp.
type serverClock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func newServerClock(now func() time.Time) *serverClock {
	if now == nil {
		now = time.Now
	}
	return &serverClock{now: now}
}

// next reads now outside the lock, it may be a network round trip.
func (c *serverClock) next() float64 {
	ms := c.now().UnixMilli()
	c.mu.Lock()
	defer c.mu.Unlock()
	if ms <= c.last {
		ms = c.last + 1
	}
	c.last = ms
	return float64(ms)
}
