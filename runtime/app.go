package runtime

import (
	"log/slog"
	"messenger/domain/event"
	"messenger/services"
	"sync"
	"time"
)

// App owns the session of the signed in user.
// A session is built when the identity provider reports a sign in
// and torn down when it reports a sign out or another user.
type App struct {
	log  *slog.Logger
	auth services.IAuthService
	deps SessionDeps

	mu          sync.Mutex
	session     *Session
	unsubscribe func()
}

func NewApp(log *slog.Logger, auth services.IAuthService, deps SessionDeps) *App {
	return &App{log: log, auth: auth, deps: deps}
}

// Start follows the session changes of the identity provider.
func (a *App) Start() {
	unsubscribe := a.auth.OnSessionChange(a.onSessionChange)
	a.mu.Lock()
	a.unsubscribe = unsubscribe
	a.mu.Unlock()
}

func (a *App) onSessionChange(auth *services.AuthSession) {
	a.mu.Lock()
	previous := a.session
	if previous != nil && auth != nil && previous.UserID() == auth.UserID {
		a.mu.Unlock()
		return
	}
	a.session = nil
	if auth != nil {
		a.session = NewSession(a.deps, auth.UserID, auth.Email)
	}
	current := a.session
	a.mu.Unlock()

	if previous != nil {
		previous.Logout()
	}
	if current != nil {
		a.log.Info("Session started", "user", current.UserID())
		if a.deps.Events != nil {
			a.deps.Events.Publish(event.SessionStarted{UserID: current.UserID(), At: time.Now()})
		}
	}
}

// Session returns the session of the signed in user.
func (a *App) Session() (*Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session, a.session != nil
}

// Stop stops following the identity provider and ends the current session.
func (a *App) Stop() {
	a.mu.Lock()
	unsubscribe := a.unsubscribe
	a.unsubscribe = nil
	session := a.session
	a.session = nil
	a.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if session != nil {
		session.Logout()
	}
}
