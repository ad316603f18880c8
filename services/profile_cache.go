package services

import (
	"context"
	"messenger/domain"
	"messenger/repositories"
	"sync"
)

// ProfileCache remembers profiles by user id for the lifetime of a session.
// Entries are never evicted nor refreshed: ids are immutable and a stale
// username only affects display.
type ProfileCache struct {
	users repositories.IUserRepository

	mu       sync.RWMutex
	profiles map[string]domain.User
}

func NewProfileCache(users repositories.IUserRepository) *ProfileCache {
	return &ProfileCache{users: users, profiles: make(map[string]domain.User)}
}

// Get returns the cached profile or loads it. Missing profiles are not cached.
func (c *ProfileCache) Get(ctx context.Context, userID string) (domain.User, bool, error) {
	c.mu.RLock()
	user, ok := c.profiles[userID]
	c.mu.RUnlock()
	if ok {
		return user, true, nil
	}

	user, found, err := c.users.Get(ctx, userID)
	if err != nil || !found {
		return user, false, err
	}
	c.mu.Lock()
	if existing, ok := c.profiles[userID]; ok {
		user = existing
	} else {
		c.profiles[userID] = user
	}
	c.mu.Unlock()
	return user, true, nil
}

// Put adds a profile already read elsewhere, keeping an existing entry.
func (c *ProfileCache) Put(user domain.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.profiles[user.ID]; !ok {
		c.profiles[user.ID] = user
	}
}

// Username falls back to the id when the profile is unknown.
func (c *ProfileCache) Username(ctx context.Context, userID string) string {
	user, found, err := c.Get(ctx, userID)
	if err != nil || !found || user.Username == "" {
		return userID
	}
	return user.Username
}

func (c *ProfileCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.profiles)
}
