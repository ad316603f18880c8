package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"messenger/contract"
	"messenger/domain"
	"messenger/domain/document"
	"messenger/errors"
	"time"
)

// UsernamesCollection reserves usernames: usernames/{username} = {uid}.
const UsernamesCollection = "usernames"

type IUserRepository interface {
	Get(ctx context.Context, userID string) (domain.User, bool, error)
	ClaimUsername(ctx context.Context, userID, email, username string) error
	FindByUsername(ctx context.Context, username string) (domain.User, bool, error)
	List(ctx context.Context) ([]domain.User, error)
	UpdateFields(ctx context.Context, userID string, fields document.Fields) error
}

type UserRepository struct {
	store contract.IDocumentStore
	log   *slog.Logger
}

func NewUserRepository(store contract.IDocumentStore, log *slog.Logger) UserRepository {
	return UserRepository{store: store, log: log}
}

func (r UserRepository) Get(ctx context.Context, userID string) (domain.User, bool, error) {
	doc, err := r.store.Get(ctx, domain.UsersCollection, userID)
	if err != nil {
		return domain.User{}, false, fmt.Errorf("reading user %s: %w", userID, err)
	}
	if !doc.Exists {
		return domain.User{ID: userID}, false, nil
	}
	return toUser(doc), true, nil
}

// ClaimUsername reserves username and writes the profile in one transaction.
// A previous username of the same user is released.
func (r UserRepository) ClaimUsername(ctx context.Context, userID, email, username string) error {
	return r.store.RunTransaction(ctx, func(tx contract.ITransaction) error {
		reservation, err := tx.Get(UsernamesCollection, username)
		if err != nil {
			return err
		}
		if reservation.Exists && reservation.Fields.String(fieldUID) != userID {
			return fmt.Errorf("%w: %s", errors.ErrUsernameTaken, username)
		}
		profile, err := tx.Get(domain.UsersCollection, userID)
		if err != nil {
			return err
		}
		if previous := profile.Fields.String(fieldUsername); profile.Exists && previous != "" && previous != username {
			if err = tx.Delete(UsernamesCollection, previous); err != nil {
				return err
			}
		}
		if err = tx.Set(UsernamesCollection, username, document.Fields{fieldUID: userID}, false); err != nil {
			return err
		}
		if profile.Exists {
			return tx.Update(domain.UsersCollection, userID, document.Fields{fieldUsername: username})
		}
		defaults := domain.DefaultNotificationSettings()
		return tx.Set(domain.UsersCollection, userID, document.Fields{
			fieldUsername:             username,
			fieldEmail:                email,
			fieldCreatedAt:            document.ServerTimestamp(),
			fieldNotificationsEnabled: true,
			fieldFcmTokens:            map[string]any{},
			fieldSettings: map[string]any{
				"enabled":      defaults.Enabled,
				"sound":        defaults.Sound,
				"chatMuted":    map[string]any{},
				"doNotDisturb": false,
			},
		}, false)
	})
}

func (r UserRepository) FindByUsername(ctx context.Context, username string) (domain.User, bool, error) {
	docs, err := r.store.Query(ctx, document.NewQuery(domain.UsersCollection).
		Where(fieldUsername, document.OpEqual, username).
		WithLimit(1))
	if err != nil {
		return domain.User{}, false, fmt.Errorf("looking up username %s: %w", username, err)
	}
	if len(docs) == 0 {
		return domain.User{}, false, nil
	}
	return toUser(docs[0]), true, nil
}

// List returns every profile ordered by username.
func (r UserRepository) List(ctx context.Context) ([]domain.User, error) {
	docs, err := r.store.Query(ctx, document.NewQuery(domain.UsersCollection).Order(fieldUsername, document.Ascending))
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	users := make([]domain.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, toUser(d))
	}
	return users, nil
}

func (r UserRepository) UpdateFields(ctx context.Context, userID string, fields document.Fields) error {
	if err := r.store.Update(ctx, domain.UsersCollection, userID, fields); err != nil {
		return fmt.Errorf("updating user %s: %w", userID, err)
	}
	return nil
}

func MuteFields(chatID string, until time.Time) document.Fields {
	return document.Fields{fieldSettings + ".chatMuted." + chatID: millis(until)}
}

func UnmuteFields(chatID string) document.Fields {
	return document.Fields{fieldSettings + ".chatMuted." + chatID: document.DeleteField()}
}

// DoNotDisturbFields stores no end date when until is nil.
func DoNotDisturbFields(enabled bool, until *time.Time) document.Fields {
	fields := document.Fields{fieldSettings + ".doNotDisturb": enabled}
	if until != nil && enabled {
		fields[fieldSettings+".doNotDisturbUntil"] = millis(*until)
	} else {
		fields[fieldSettings+".doNotDisturbUntil"] = document.DeleteField()
	}
	return fields
}

func NotificationsEnabledFields(enabled bool) document.Fields {
	return document.Fields{fieldSettings + ".enabled": enabled}
}

func SoundFields(enabled bool) document.Fields {
	return document.Fields{fieldSettings + ".sound": enabled}
}

func DeviceTokenFields(token string, lastUsed time.Time) document.Fields {
	return document.Fields{fieldFcmTokens + "." + token: map[string]any{"lastUsed": millis(lastUsed)}}
}

func RemoveDeviceTokensFields(tokens ...string) document.Fields {
	fields := document.Fields{}
	for _, token := range tokens {
		fields[fieldFcmTokens+"."+token] = document.DeleteField()
	}
	return fields
}
