package errors

import "fmt"

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	// Document store
	ErrNotFound         = fmt.Errorf("document not found")
	ErrTxnConflict      = fmt.Errorf("transaction conflict")
	ErrStoreClosed      = fmt.Errorf("store closed")
	ErrInvalidFieldPath = fmt.Errorf("invalid field path")

	// Validation
	ErrInvalidUsername  = fmt.Errorf("username must be 3-20 characters: lowercase letters, numbers and underscores")
	ErrUsernameTaken    = fmt.Errorf("username already taken")
	ErrInvalidUserID    = fmt.Errorf("user id must not be empty nor contain the conversation separator")
	ErrInvalidGroupName = fmt.Errorf("group name must be 3-50 characters")
	ErrEmptyMessage     = fmt.Errorf("message is empty")
	ErrInvalidMute      = fmt.Errorf("unknown mute duration")
	ErrEmptyToken       = fmt.Errorf("device token is empty or malformed")

	// Conversations and groups
	ErrNoOpenConversation = fmt.Errorf("no conversation is open")
	ErrNotParticipant     = fmt.Errorf("user is not a participant of the conversation")
	ErrPermissionDenied   = fmt.Errorf("permission denied")
	ErrCreatorImmune      = fmt.Errorf("the group creator cannot be removed nor demoted")
	ErrCreatorCannotLeave = fmt.Errorf("the group creator cannot leave the group")
	ErrNotMember          = fmt.Errorf("user is not a member of the group")
	ErrAlreadyMember      = fmt.Errorf("user is already a member of the group")
	ErrNotAdmin           = fmt.Errorf("user is not an admin of the group")
	ErrSelfRemoval        = fmt.Errorf("use leave to remove yourself from a group")

	// Session
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenGeneration  = fmt.Errorf("token generation failed")
	ErrInvalidToken     = fmt.Errorf("invalid session token")
	ErrNoProfile        = fmt.Errorf("user has no profile yet")

	// Push delivery
	ErrInvalidDeviceToken = fmt.Errorf("device token is no longer registered")
	ErrPushUnavailable    = fmt.Errorf("push delivery unavailable")
)

// AuthCode is the identity provider error vocabulary.
type AuthCode string

const (
	AuthEmailInUse        AuthCode = "email-in-use"
	AuthInvalidEmail      AuthCode = "invalid-email"
	AuthWeakPassword      AuthCode = "weak-password"
	AuthUserNotFound      AuthCode = "user-not-found"
	AuthWrongPassword     AuthCode = "wrong-password"
	AuthInvalidCredential AuthCode = "invalid-credential"
)

// AuthError is returned by the identity provider on register and login.
type AuthError struct {
	Code AuthCode
}

func (e *AuthError) Error() string {
	switch e.Code {
	case AuthEmailInUse:
		return "email already in use"
	case AuthInvalidEmail:
		return "invalid email address"
	case AuthWeakPassword:
		return "password should be at least 6 characters"
	case AuthUserNotFound:
		return "no account found with this email"
	case AuthWrongPassword:
		return "incorrect password"
	default:
		return "invalid email or password"
	}
}

// Is makes errors.Is(err, &AuthError{Code: x}) compare codes.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Code == e.Code
}

func NewAuthError(code AuthCode) error {
	return &AuthError{Code: code}
}
