package domain

import (
	"fmt"
	"messenger/errors"
	"time"
)

// MuteForever is the mute deadline stored for an indefinite mute: 9999-12-31T23:59:59Z.
// Every reader compares deadlines the same way, so no separate flag exists.
var MuteForever = time.UnixMilli(253402300799000).UTC()

type MuteDuration string

const (
	MuteOneHour    MuteDuration = "1h"
	MuteEightHours MuteDuration = "8h"
	MuteOneDay     MuteDuration = "1d"
	MuteOneWeek    MuteDuration = "1w"
	MuteIndefinite MuteDuration = "forever"
)

func ParseMuteDuration(s string) (MuteDuration, error) {
	switch d := MuteDuration(s); d {
	case MuteOneHour, MuteEightHours, MuteOneDay, MuteOneWeek, MuteIndefinite:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", errors.ErrInvalidMute, s)
	}
}

// Until is the mute deadline when muting at now.
func (d MuteDuration) Until(now time.Time) time.Time {
	switch d {
	case MuteOneHour:
		return now.Add(time.Hour)
	case MuteEightHours:
		return now.Add(8 * time.Hour)
	case MuteOneDay:
		return now.Add(24 * time.Hour)
	case MuteOneWeek:
		return now.Add(7 * 24 * time.Hour)
	default:
		return MuteForever
	}
}

func IsMuteForever(until time.Time) bool {
	return !until.Before(MuteForever)
}

type NotificationSettings struct {
	Enabled           bool
	Sound             bool
	ChatMuted         map[string]time.Time
	DoNotDisturb      bool
	DoNotDisturbUntil *time.Time
}

func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{Enabled: true, Sound: true, ChatMuted: map[string]time.Time{}}
}

// IsMuted is false once the deadline has passed.
func (s NotificationSettings) IsMuted(chatID string, now time.Time) bool {
	until, ok := s.ChatMuted[chatID]
	return ok && now.Before(until)
}

// DoNotDisturbActive treats a missing end as indefinite.
func (s NotificationSettings) DoNotDisturbActive(now time.Time) bool {
	if !s.DoNotDisturb {
		return false
	}
	return s.DoNotDisturbUntil == nil || now.Before(*s.DoNotDisturbUntil)
}

type SkipReason string

const (
	Deliver                  SkipReason = ""
	SkipNotificationsDisable SkipReason = "notifications-disabled"
	SkipSettingsDisabled     SkipReason = "settings-disabled"
	SkipMuted                SkipReason = "muted"
	SkipDoNotDisturb         SkipReason = "do-not-disturb"
	SkipNoDevice             SkipReason = "no-device"
)

// ShouldNotify decides whether recipient gets a push for a message in chatID.
func ShouldNotify(recipient User, chatID string, now time.Time) SkipReason {
	switch {
	case !recipient.NotificationsEnabled:
		return SkipNotificationsDisable
	case !recipient.Settings.Enabled:
		return SkipSettingsDisabled
	case recipient.Settings.IsMuted(chatID, now):
		return SkipMuted
	case recipient.Settings.DoNotDisturbActive(now):
		return SkipDoNotDisturb
	case len(recipient.DeviceTokens) == 0:
		return SkipNoDevice
	default:
		return Deliver
	}
}
