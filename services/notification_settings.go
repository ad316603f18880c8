package services

import (
	"context"
	"fmt"
	"log/slog"
	"messenger/domain"
	"messenger/errors"
	"messenger/repositories"
	"strings"
	"time"
)

type INotificationSettingsService interface {
	Mute(ctx context.Context, userID, chatID string, duration domain.MuteDuration) (time.Time, error)
	Unmute(ctx context.Context, userID, chatID string) error
	IsMuted(ctx context.Context, userID, chatID string) (bool, error)
	SetDoNotDisturb(ctx context.Context, userID string, enabled bool, until *time.Time) error
	SetEnabled(ctx context.Context, userID string, enabled bool) error
	SetSound(ctx context.Context, userID string, enabled bool) error
	RegisterDeviceToken(ctx context.Context, userID, token string) error
	RemoveDeviceTokens(ctx context.Context, userID string, tokens ...string) error
}

type NotificationSettingsService struct {
	users repositories.IUserRepository
	log   *slog.Logger
	now   func() time.Time
}

func NewNotificationSettingsService(users repositories.IUserRepository, log *slog.Logger) *NotificationSettingsService {
	return &NotificationSettingsService{users: users, log: log, now: time.Now}
}

// Mute silences chatID until the returned deadline. MuteIndefinite stores domain.MuteForever.
func (s *NotificationSettingsService) Mute(ctx context.Context, userID, chatID string, duration domain.MuteDuration) (time.Time, error) {
	if _, err := domain.ParseMuteDuration(string(duration)); err != nil {
		return time.Time{}, err
	}
	if strings.TrimSpace(chatID) == "" {
		return time.Time{}, fmt.Errorf("%w: empty conversation", errors.ErrInvalidMute)
	}
	until := duration.Until(s.now())
	if err := s.users.UpdateFields(ctx, userID, repositories.MuteFields(chatID, until)); err != nil {
		return time.Time{}, err
	}
	s.log.Debug("Conversation muted", "user", userID, "conversation", chatID, "until", until)
	return until, nil
}

func (s *NotificationSettingsService) Unmute(ctx context.Context, userID, chatID string) error {
	return s.users.UpdateFields(ctx, userID, repositories.UnmuteFields(chatID))
}

// IsMuted treats an expired deadline as unmuted.
func (s *NotificationSettingsService) IsMuted(ctx context.Context, userID, chatID string) (bool, error) {
	user, found, err := s.users.Get(ctx, userID)
	if err != nil || !found {
		return false, err
	}
	return user.Settings.IsMuted(chatID, s.now()), nil
}

func (s *NotificationSettingsService) SetDoNotDisturb(ctx context.Context, userID string, enabled bool, until *time.Time) error {
	return s.users.UpdateFields(ctx, userID, repositories.DoNotDisturbFields(enabled, until))
}

func (s *NotificationSettingsService) SetEnabled(ctx context.Context, userID string, enabled bool) error {
	return s.users.UpdateFields(ctx, userID, repositories.NotificationsEnabledFields(enabled))
}

func (s *NotificationSettingsService) SetSound(ctx context.Context, userID string, enabled bool) error {
	return s.users.UpdateFields(ctx, userID, repositories.SoundFields(enabled))
}

// RegisterDeviceToken records a push token, or refreshes its last use.
func (s *NotificationSettingsService) RegisterDeviceToken(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, "./") {
		return errors.ErrEmptyToken
	}
	return s.users.UpdateFields(ctx, userID, repositories.DeviceTokenFields(token, s.now()))
}

func (s *NotificationSettingsService) RemoveDeviceTokens(ctx context.Context, userID string, tokens ...string) error {
	if len(tokens) == 0 {
		return nil
	}
	return s.users.UpdateFields(ctx, userID, repositories.RemoveDeviceTokensFields(tokens...))
}
