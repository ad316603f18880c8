package services

import (
	"context"
	"log/slog"
	"messenger/auth"
	"messenger/errors"
	"messenger/mocks"
	"messenger/repositories"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newAuthService(t *testing.T) (*AuthService, *mocks.MockIAccountRepository) {
	ctrl := gomock.NewController(t)
	accounts := mocks.NewMockIAccountRepository(ctrl)
	svc := NewAuthService(accounts, auth.NewTokenIssuer("test-secret", time.Hour), logs.GetLoggerFromLevel(slog.LevelDebug))
	return svc, accounts
}

func TestAuthService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("should register and sign in when input is valid", func(t *testing.T) {
		req := require.New(t)
		svc, accounts := newAuthService(t)

		// Expect the hash, never the plain password
		accounts.EXPECT().
			Create(gomock.Any(), "test@example.com", gomock.Not("secret1")).
			Return("user-uuid", true, nil)

		session, err := svc.Register(ctx, "  Test@Example.com ", "secret1")

		req.NoError(err)
		req.Equal("user-uuid", session.UserID)
		req.Equal("test@example.com", session.Email)
		req.NotEmpty(session.Token)
		current, ok := svc.Current()
		req.True(ok)
		req.Equal(session, current)
	})

	t.Run("should reject a weak password before touching the accounts", func(t *testing.T) {
		req := require.New(t)
		svc, accounts := newAuthService(t)
		accounts.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.Register(ctx, "test@example.com", "123")

		req.ErrorIs(err, errors.NewAuthError(errors.AuthWeakPassword))
		_, ok := svc.Current()
		req.False(ok)
	})

	t.Run("should reject an email already in use", func(t *testing.T) {
		req := require.New(t)
		svc, accounts := newAuthService(t)
		accounts.EXPECT().Create(gomock.Any(), "taken@example.com", gomock.Any()).Return("", false, nil)

		_, err := svc.Register(ctx, "taken@example.com", "secret1")

		req.ErrorIs(err, errors.NewAuthError(errors.AuthEmailInUse))
	})
}

func TestAuthService_Authenticate(t *testing.T) {
	ctx := context.Background()
	hash, err := auth.HashPassword("secret1")
	require.NoError(t, err)
	account := repositories.Account{UserID: "u1", Email: "a@b.io", PasswordHash: hash}

	t.Run("should fail when no account exists", func(t *testing.T) {
		req := require.New(t)
		svc, accounts := newAuthService(t)
		accounts.EXPECT().GetByEmail(gomock.Any(), "nobody@b.io").Return(repositories.Account{}, false, nil)

		_, err := svc.Authenticate(ctx, "nobody@b.io", "secret1")

		req.ErrorIs(err, errors.NewAuthError(errors.AuthUserNotFound))
	})

	t.Run("should fail on a wrong password", func(t *testing.T) {
		req := require.New(t)
		svc, accounts := newAuthService(t)
		accounts.EXPECT().GetByEmail(gomock.Any(), "a@b.io").Return(account, true, nil)

		_, err := svc.Authenticate(ctx, "a@b.io", "wrong-one")

		req.ErrorIs(err, errors.NewAuthError(errors.AuthWrongPassword))
	})

	t.Run("should fail on an unreadable hash", func(t *testing.T) {
		req := require.New(t)
		svc, accounts := newAuthService(t)
		accounts.EXPECT().GetByEmail(gomock.Any(), "a@b.io").Return(repositories.Account{UserID: "u1", PasswordHash: "garbage"}, true, nil)

		_, err := svc.Authenticate(ctx, "a@b.io", "secret1")

		req.ErrorIs(err, errors.NewAuthError(errors.AuthInvalidCredential))
	})

	t.Run("should sign in with the right password", func(t *testing.T) {
		req := require.New(t)
		svc, accounts := newAuthService(t)
		accounts.EXPECT().GetByEmail(gomock.Any(), "a@b.io").Return(account, true, nil)

		session, err := svc.Authenticate(ctx, "A@B.io", "secret1")

		req.NoError(err)
		req.Equal("u1", session.UserID)
	})
}

func TestAuthService_Session_Listeners(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc, accounts := newAuthService(t)
	accounts.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Return("u1", true, nil)

	// Given a listener registered while signed out
	var seen []*AuthSession
	unsubscribe := svc.OnSessionChange(func(s *AuthSession) { seen = append(seen, s) })

	// Then it is called right away with no session
	req.Len(seen, 1)
	req.Nil(seen[0])

	// When the user registers then signs out
	session, err := svc.Register(ctx, "a@b.io", "secret1")
	req.NoError(err)
	svc.SignOut()

	req.Len(seen, 3)
	req.Equal("u1", seen[1].UserID)
	req.Nil(seen[2])

	// When the token is resumed after unsubscribing
	unsubscribe()
	resumed, err := svc.Resume(session.Token)
	req.NoError(err)
	req.Equal("u1", resumed.UserID)
	req.Len(seen, 3)
	current, ok := svc.Current()
	req.True(ok)
	req.Equal("a@b.io", current.Email)
}

func TestAuthService_Resume_Rejects_Bad_Token(t *testing.T) {
	req := require.New(t)
	svc, _ := newAuthService(t)

	_, err := svc.Resume("not-a-token")

	req.ErrorIs(err, errors.ErrInvalidToken)
	_, ok := svc.Current()
	req.False(ok)
}
