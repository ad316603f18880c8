// Package runtime drives a signed in user: live subscriptions, the open conversation
// and the events published to the UI. It contains no business rules.
package runtime

import (
	"messenger/contract"
	"sync"
)

// Registry keeps the live subscriptions of a session by name,
// so that each one can be cancelled on its own or all at once.
type Registry struct {
	mu   sync.Mutex
	subs map[string]contract.Subscription
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]contract.Subscription)}
}

// Swap stores sub under key and returns the subscription it replaces, not stopped yet.
func (r *Registry) Swap(key string, sub contract.Subscription) contract.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous := r.subs[key]
	r.subs[key] = sub
	return previous
}

// Track stores sub under key and stops the one it replaces.
func (r *Registry) Track(key string, sub contract.Subscription) {
	if previous := r.Swap(key, sub); previous != nil {
		previous.Stop()
	}
}

// Cancel stops and forgets the subscription under key, if any.
func (r *Registry) Cancel(key string) {
	r.mu.Lock()
	sub := r.subs[key]
	delete(r.subs, key)
	r.mu.Unlock()
	if sub != nil {
		sub.Stop()
	}
}

// CancelAll stops every subscription, nil ones included.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[string]contract.Subscription)
	r.mu.Unlock()
	for _, sub := range subs {
		if sub != nil {
			sub.Stop()
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *Registry) Has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subs[key]
	return ok
}
