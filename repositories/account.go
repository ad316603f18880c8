//go:generate go run go.uber.org/mock/mockgen -source=account.go -destination=../mocks/mock_account_repository.go -package=mocks
package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"messenger/contract"
	"messenger/domain/document"
	"time"

	"github.com/google/uuid"
)

// AccountsCollection holds credentials keyed by normalized e-mail.
const AccountsCollection = "accounts"

type IAccountRepository interface {
	Create(ctx context.Context, email, passwordHash string) (string, bool, error)
	GetByEmail(ctx context.Context, email string) (Account, bool, error)
}

type AccountRepository struct {
	store contract.IDocumentStore
	log   *slog.Logger
}

func NewAccountRepository(store contract.IDocumentStore, log *slog.Logger) AccountRepository {
	return AccountRepository{store: store, log: log}
}

type Account struct {
	UserID       string
	Email        string
	PasswordHash string
	CreatedAt    *time.Time
}

// Create stores a new account and returns its generated user id.
// created is false when the e-mail is already registered.
func (r AccountRepository) Create(ctx context.Context, email, passwordHash string) (string, bool, error) {
	userID := uuid.NewString()
	created := false
	err := r.store.RunTransaction(ctx, func(tx contract.ITransaction) error {
		created = false
		existing, err := tx.Get(AccountsCollection, email)
		if err != nil {
			return err
		}
		if existing.Exists {
			return nil
		}
		created = true
		return tx.Set(AccountsCollection, email, document.Fields{
			fieldUID:       userID,
			"passwordHash": passwordHash,
			fieldCreatedAt: document.ServerTimestamp(),
		}, false)
	})
	if err != nil {
		return "", false, fmt.Errorf("creating account: %w", err)
	}
	if !created {
		return "", false, nil
	}
	return userID, true, nil
}

func (r AccountRepository) GetByEmail(ctx context.Context, email string) (Account, bool, error) {
	doc, err := r.store.Get(ctx, AccountsCollection, email)
	if err != nil {
		return Account{}, false, fmt.Errorf("reading account: %w", err)
	}
	if !doc.Exists {
		return Account{}, false, nil
	}
	return Account{
		UserID:       doc.Fields.String(fieldUID),
		Email:        email,
		PasswordHash: doc.Fields.String("passwordHash"),
		CreatedAt:    doc.Fields.Time(fieldCreatedAt),
	}, true, nil
}
