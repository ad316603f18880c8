// Package domain contains core concepts of the messenger.
// This file defines user profiles and their device registrations.
package domain

import (
	"fmt"
	"messenger/errors"
	"regexp"
	"strings"
	"time"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 20
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// User is the profile stored under users/{id}.
type User struct {
	ID                   string
	Username             string
	Email                string
	CreatedAt            *time.Time
	DeviceTokens         map[string]DeviceToken
	NotificationsEnabled bool
	Settings             NotificationSettings
}

type DeviceToken struct {
	Token    string
	LastUsed *time.Time
}

// NormalizeUsername lower-cases and trims the username and checks its shape.
func NormalizeUsername(username string) (string, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
		return "", fmt.Errorf("%w: got %d characters", errors.ErrInvalidUsername, len(username))
	}
	if !usernamePattern.MatchString(username) {
		return "", fmt.Errorf("%w: %q", errors.ErrInvalidUsername, username)
	}
	return username, nil
}

// StaleTokens lists the device tokens not used since cutoff.
// Tokens without a usage date are kept.
func (u User) StaleTokens(cutoff time.Time) []string {
	var stale []string
	for token, d := range u.DeviceTokens {
		if d.LastUsed != nil && d.LastUsed.Before(cutoff) {
			stale = append(stale, token)
		}
	}
	return stale
}
