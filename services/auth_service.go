package services

import (
	"context"
	"fmt"
	"log/slog"
	"messenger/auth"
	"messenger/errors"
	"messenger/repositories"
	"sync"
)

type IAuthService interface {
	Register(ctx context.Context, email, password string) (AuthSession, error)
	Authenticate(ctx context.Context, email, password string) (AuthSession, error)
	Resume(token string) (AuthSession, error)
	SignOut()
	Current() (AuthSession, bool)
	OnSessionChange(fn func(session *AuthSession)) (unsubscribe func())
}

// AuthSession identifies the signed in user.
type AuthSession struct {
	UserID string
	Email  string
	Token  string
}

// AuthService is the local identity provider.
// Session changes are broadcast to every registered listener.
type AuthService struct {
	accounts repositories.IAccountRepository
	tokens   *auth.TokenIssuer
	log      *slog.Logger

	mu        sync.Mutex
	current   *AuthSession
	nextID    int
	listeners map[int]func(*AuthSession)
}

func NewAuthService(accounts repositories.IAccountRepository, tokens *auth.TokenIssuer, log *slog.Logger) *AuthService {
	return &AuthService{
		accounts:  accounts,
		tokens:    tokens,
		log:       log,
		listeners: make(map[int]func(*AuthSession)),
	}
}

func (s *AuthService) Register(ctx context.Context, email, password string) (AuthSession, error) {
	email = auth.NormalizeEmail(email)
	// Validation comes before any expensive hashing.
	if err := auth.ValidateRegistration(auth.Credentials{Email: email, Password: password}); err != nil {
		return AuthSession{}, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return AuthSession{}, fmt.Errorf("hashing failed: %w", err)
	}
	userID, created, err := s.accounts.Create(ctx, email, hash)
	if err != nil {
		return AuthSession{}, err
	}
	if !created {
		return AuthSession{}, errors.NewAuthError(errors.AuthEmailInUse)
	}
	s.log.Info("Account registered", "user", userID)
	return s.signIn(userID, email)
}

func (s *AuthService) Authenticate(ctx context.Context, email, password string) (AuthSession, error) {
	email = auth.NormalizeEmail(email)
	if err := auth.ValidateLogin(auth.Credentials{Email: email, Password: password}); err != nil {
		return AuthSession{}, err
	}
	account, found, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return AuthSession{}, err
	}
	if !found {
		return AuthSession{}, errors.NewAuthError(errors.AuthUserNotFound)
	}
	match, err := auth.ComparePassword(password, account.PasswordHash)
	if err != nil {
		s.log.Warn("Stored password hash is unreadable", "user", account.UserID, "error", err)
		return AuthSession{}, errors.NewAuthError(errors.AuthInvalidCredential)
	}
	if !match {
		return AuthSession{}, errors.NewAuthError(errors.AuthWrongPassword)
	}
	return s.signIn(account.UserID, email)
}

// Resume restores a session from a token issued earlier.
func (s *AuthService) Resume(token string) (AuthSession, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return AuthSession{}, err
	}
	session := AuthSession{UserID: claims.UserID, Email: claims.Email, Token: token}
	s.change(&session)
	return session, nil
}

func (s *AuthService) signIn(userID, email string) (AuthSession, error) {
	token, err := s.tokens.Issue(userID, email)
	if err != nil {
		return AuthSession{}, err
	}
	session := AuthSession{UserID: userID, Email: email, Token: token}
	s.change(&session)
	return session, nil
}

func (s *AuthService) SignOut() {
	s.change(nil)
}

func (s *AuthService) Current() (AuthSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return AuthSession{}, false
	}
	return *s.current, true
}

// OnSessionChange calls fn with the current state right away, then on every change.
// A nil session means signed out.
func (s *AuthService) OnSessionChange(fn func(session *AuthSession)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	current := s.current
	s.mu.Unlock()

	fn(copySession(current))
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// change notifies listeners outside the lock so they may call back into the service.
func (s *AuthService) change(session *AuthSession) {
	s.mu.Lock()
	s.current = copySession(session)
	listeners := make([]func(*AuthSession), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(copySession(session))
	}
}

func copySession(session *AuthSession) *AuthSession {
	if session == nil {
		return nil
	}
	c := *session
	return &c
}
