// Package auth is the public face of the session lifecycle: login, logout,
// silent rehydration, permission checks, and the listeners that terminate
// a session when the backend deactivates the account or one of its roles.
package auth

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/nuvocrm/go-session-client/api"
	"github.com/nuvocrm/go-session-client/credstore"
	"github.com/nuvocrm/go-session-client/events"
	"github.com/nuvocrm/go-session-client/internal/config"
	"github.com/nuvocrm/go-session-client/scheduler"
	"github.com/nuvocrm/go-session-client/session"
	"github.com/nuvocrm/go-session-client/users"
)

const deactivatedMessage = "Your account has been deactivated."

// Credentials are the login inputs.
type Credentials struct {
	Email    string
	Password string
}

// Deps holds all collaborator dependencies for the Manager.
type Deps struct {
	Store    credstore.Store
	API      *api.Client
	Sessions *session.Store
	Bus      *events.Bus
}

// ManagerOption modifies the Manager during construction.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = nowFunc
		m.schedulerOpts = append(m.schedulerOpts, scheduler.WithNowTime(nowFunc))
	}
}

// WithLogger sets the logger for the manager and its scheduler.
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// Manager owns the session lifecycle. It is safe for concurrent use; the
// underlying session store serialises all state transitions.
type Manager struct {
	deps      Deps
	scheduler *scheduler.Scheduler
	logger    zerolog.Logger
	now       func() time.Time

	schedulerOpts []scheduler.Option
	subscriptions []string
	loginInFlight atomic.Bool
}

// NewManager wires the facade and subscribes the forced-termination
// listeners. Callers must Close it to release the subscriptions and
// timers.
func NewManager(deps Deps, cfg config.SchedulerConfig, options ...ManagerOption) (*Manager, error) {
	if deps.Store == nil {
		return nil, pkgerrors.Wrap(MissingDependencyErr, "[NewManager] Store is required")
	}
	if deps.API == nil {
		return nil, pkgerrors.Wrap(MissingDependencyErr, "[NewManager] API client is required")
	}
	if deps.Sessions == nil {
		return nil, pkgerrors.Wrap(MissingDependencyErr, "[NewManager] Sessions store is required")
	}
	if deps.Bus == nil {
		return nil, pkgerrors.Wrap(MissingDependencyErr, "[NewManager] Bus is required")
	}

	m := &Manager{
		deps:   deps,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	m.logger = m.logger.With().Str("component", "auth").Logger()

	m.scheduler = scheduler.New(
		deps.Store,
		deps.Bus,
		func(ctx context.Context) error { return m.Refresh(ctx) },
		cfg,
		m.logger,
		m.schedulerOpts...,
	)

	m.subscriptions = append(m.subscriptions,
		deps.Bus.SubscribeTokenExpired(m.onTokenExpired),
		deps.Bus.SubscribeAccountDeactivated(m.onAccountDeactivated),
		deps.Bus.SubscribeRoleDeactivated(m.onRoleDeactivated),
	)
	return m, nil
}

// Close unsubscribes the listeners and stops the scheduler. The session
// state is left as-is.
func (m *Manager) Close() {
	for _, id := range m.subscriptions {
		m.deps.Bus.Unsubscribe(id)
	}
	m.subscriptions = nil
	m.scheduler.Stop()
}

// Session returns a snapshot of the current session state.
func (m *Manager) Session() session.Session {
	return m.deps.Sessions.State()
}

// Login authenticates against the backend, persists the credential record
// and arms the refresh scheduler. The returned LoginData is the full
// server response; callers must check User.MustChangePassword and redirect
// accordingly. Concurrent logins are rejected while one is in flight.
func (m *Manager) Login(ctx context.Context, creds Credentials) (*api.LoginData, error) {
	if !m.loginInFlight.CompareAndSwap(false, true) {
		return nil, pkgerrors.Wrap(LoginInProgressErr, "[Manager.Login]")
	}
	defer m.loginInFlight.Store(false)

	m.deps.Sessions.Dispatch(session.Action{Type: session.LoginStart})

	data, err := m.deps.API.Login(ctx, creds.Email, creds.Password)
	if err != nil {
		m.deps.Sessions.Dispatch(session.Action{
			Type:    session.LoginFailure,
			Message: userMessage(err),
		})
		return nil, pkgerrors.Wrap(err, "[Manager.Login] login failed")
	}

	if data.User == nil || data.User.ID == "" {
		// A success envelope without a user is a malformed payload; never
		// persist tokens whose owner is unknown.
		m.deps.Sessions.Dispatch(session.Action{Type: session.LoginFailure, Message: "Login failed"})
		return nil, pkgerrors.Wrap(MissingUserErr, "[Manager.Login]")
	}

	rec := credstore.Record{
		AccessToken:  data.AccessToken,
		RefreshToken: data.RefreshToken,
		TokenExpiry:  data.TokenExpiry,
		UserID:       data.User.ID,
		User:         data.User,
	}
	if err := m.deps.Store.Save(rec); err != nil {
		// Without persisted credentials the session cannot be kept alive;
		// fail the login rather than limp along memory-only.
		m.deps.Sessions.Dispatch(session.Action{Type: session.LoginFailure, Message: "Login failed"})
		return nil, pkgerrors.Wrap(err, "[Manager.Login] persisting credentials")
	}

	m.deps.Sessions.Dispatch(session.Action{
		Type:         session.LoginSuccess,
		User:         data.User,
		AccessToken:  data.AccessToken,
		RefreshToken: data.RefreshToken,
		TokenExpiry:  data.TokenExpiry,
	})
	m.scheduler.Arm()

	m.logger.Info().Str("userId", data.User.ID).Msg("login succeeded")
	return data, nil
}

// Logout ends the session. The server notification is best-effort: local
// state is always cleared, and calling Logout on an already-ended session
// is a no-op.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.deps.API.Logout(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("server logout failed, clearing local session anyway")
	}

	m.scheduler.Stop()
	if err := m.deps.Store.Clear(); err != nil {
		m.logger.Warn().Err(err).Msg("credential store clear failed")
	}
	m.deps.Sessions.Dispatch(session.Action{Type: session.Logout})
	return nil
}

// AutoLogin rehydrates the session from the credential store at
// application start. It returns false on any failure, leaving the session
// unauthenticated with no error message: a first visit without a stored
// session is expected, not exceptional.
func (m *Manager) AutoLogin(ctx context.Context) bool {
	rec, err := m.deps.Store.Read()
	if err != nil {
		m.logger.Warn().Err(err).Msg("autologin: store read failed")
		m.deps.Sessions.Dispatch(session.Action{Type: session.CheckAuthFailure})
		return false
	}
	if !rec.HasToken() || rec.UserID == "" || rec.RefreshToken == "" {
		if rec.HasToken() || rec.UserID != "" || rec.RefreshToken != "" {
			// Partially populated storage is inconsistent; wipe it.
			_ = m.deps.Store.Clear()
		}
		m.deps.Sessions.Dispatch(session.Action{Type: session.CheckAuthFailure})
		return false
	}

	if rec.Expired(m.now()) {
		// One silent recovery attempt before giving up.
		if err := m.Refresh(ctx); err != nil {
			m.logger.Debug().Err(err).Msg("autologin: refresh of expired token failed")
			return m.failAutoLogin()
		}
		rec, _ = m.deps.Store.Read()
	}

	user, err := m.deps.API.Profile(ctx)
	if err != nil {
		m.logger.Debug().Err(err).Msg("autologin: profile fetch failed")
		return m.failAutoLogin()
	}

	rec.User = user
	if err := m.deps.Store.Save(rec); err != nil {
		m.logger.Warn().Err(err).Msg("autologin: store save failed")
	}

	m.deps.Sessions.Dispatch(session.Action{
		Type:         session.CheckAuthSuccess,
		User:         user,
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		TokenExpiry:  rec.TokenExpiry,
	})
	m.scheduler.Arm()

	m.logger.Info().Str("userId", user.ID).Msg("session rehydrated")
	return true
}

func (m *Manager) failAutoLogin() bool {
	_ = m.deps.Store.Clear()
	// CheckAuthFailure resets any error a mid-flight expiry handler set;
	// bootstrap failures stay silent.
	m.deps.Sessions.Dispatch(session.Action{Type: session.CheckAuthFailure})
	return false
}

// CheckAuth re-fetches the profile to validate the session and refresh the
// in-memory user. Failure silently demotes to unauthenticated.
func (m *Manager) CheckAuth(ctx context.Context) bool {
	user, err := m.deps.API.Profile(ctx)
	if err != nil {
		m.logger.Debug().Err(err).Msg("checkauth: profile fetch failed")
		_ = m.deps.Store.Clear()
		m.deps.Sessions.Dispatch(session.Action{Type: session.CheckAuthFailure})
		return false
	}

	if rec, readErr := m.deps.Store.Read(); readErr == nil && rec.HasToken() {
		rec.User = user
		_ = m.deps.Store.Save(rec)
	}
	m.deps.Sessions.Dispatch(session.Action{Type: session.UpdateUser, User: user})
	return true
}

// UpdateUser replaces the in-memory user after a profile edit. Partial
// updates should be merged with users.Merge before dispatching.
func (m *Manager) UpdateUser(user *users.User) {
	m.deps.Sessions.Dispatch(session.Action{Type: session.UpdateUser, User: user})
}

// Refresh exchanges the stored refresh token for a new access token and
// persists it. The scheduler uses it on its proactive timer.
func (m *Manager) Refresh(ctx context.Context) error {
	rec, err := m.deps.Store.Read()
	if err != nil {
		return pkgerrors.Wrap(err, "[Manager.Refresh] store read")
	}
	if rec.RefreshToken == "" {
		return pkgerrors.Wrap(NoRefreshTokenErr, "[Manager.Refresh]")
	}

	data, err := m.deps.API.RefreshToken(ctx, rec.RefreshToken)
	if err != nil {
		return pkgerrors.Wrap(err, "[Manager.Refresh] token exchange")
	}
	if err := m.deps.Store.SaveAccess(data.AccessToken, data.TokenExpiry); err != nil {
		return pkgerrors.Wrap(err, "[Manager.Refresh] persisting access token")
	}

	m.deps.Sessions.Dispatch(session.Action{
		Type:        session.TokenRefreshed,
		AccessToken: data.AccessToken,
	})
	// Timers must track the new expiry; a timer armed against the old one
	// would fire a redundant refresh.
	m.scheduler.Arm()
	return nil
}

// HasPermission reports whether the current user holds the permission key
// or carries an admin-override role.
func (m *Manager) HasPermission(key string) bool {
	return m.deps.Sessions.State().User.HasPermission(key)
}

// HasRole reports whether the current user holds the exact role name.
func (m *Manager) HasRole(name string) bool {
	return m.deps.Sessions.State().User.HasRole(name)
}

// onTokenExpired handles expiry detected by the transport or the
// scheduler: the session degrades to unauthenticated with the expired
// message. Safe to run repeatedly.
func (m *Manager) onTokenExpired(events.TokenExpired) {
	m.scheduler.Stop()
	if err := m.deps.Store.Clear(); err != nil {
		m.logger.Warn().Err(err).Msg("credential store clear failed")
	}
	m.deps.Sessions.Dispatch(session.Action{Type: session.TokenExpired})
	m.deps.Bus.PublishNotice(events.Notice{
		Level:   events.NoticeWarning,
		Message: session.ExpiredMessage,
	})
}

// onAccountDeactivated logs the session out unconditionally.
func (m *Manager) onAccountDeactivated(ev events.AccountDeactivated) {
	message := ev.Message
	if message == "" {
		message = deactivatedMessage
	}
	m.logger.Info().Msg("account deactivated, terminating session")
	m.deps.Bus.PublishNotice(events.Notice{Level: events.NoticeWarning, Message: message})
	_ = m.Logout(context.Background())
}

// onRoleDeactivated logs out only when the current session's user is
// named in the event. Other users' deactivations are ignored.
func (m *Manager) onRoleDeactivated(ev events.RoleDeactivated) {
	state := m.deps.Sessions.State()
	if state.User == nil {
		return
	}
	affected := false
	for _, id := range ev.UserIDs {
		if id == state.User.ID {
			affected = true
			break
		}
	}
	if !affected {
		return
	}

	m.logger.Info().Str("role", ev.RoleName).Msg("role deactivated for current user, terminating session")
	m.deps.Bus.PublishNotice(events.Notice{
		Level:   events.NoticeWarning,
		Message: "Your role '" + ev.RoleName + "' has been deactivated.",
	})
	_ = m.Logout(context.Background())
}

// userMessage extracts the display message for a failed operation.
func userMessage(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "Login failed"
}
