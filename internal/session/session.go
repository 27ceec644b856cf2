package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fieldline/internal/backend"
	"fieldline/internal/domain"
	"fieldline/internal/events"
	"fieldline/internal/repo"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLoginInProgress    = errors.New("login already in progress")
	ErrNoSession          = errors.New("not logged in")
)

// Journal event types.
const (
	EventLogin   = "session.login"
	EventLogout  = "session.logout"
	EventExpired = "session.expired"
)

type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Backend is the subset of the REST client the manager drives.
type Backend interface {
	SetToken(token string)
	Login(ctx context.Context, email, password string) (domain.AuthResponse, error)
	Register(ctx context.Context, in domain.RegisterInput) (domain.AuthResponse, error)
	Me(ctx context.Context) (domain.User, error)
	UpdateProfile(ctx context.Context, in domain.ProfileInput) (domain.User, error)
}

// CredentialStore persists the token between launches. repo.Repo satisfies it.
type CredentialStore interface {
	LoadCredentials(ctx context.Context) (domain.Credentials, error)
	SaveCredentials(ctx context.Context, c domain.Credentials) error
	SaveUser(ctx context.Context, u domain.User) error
	ClearCredentials(ctx context.Context) error
}

type Journal interface {
	Append(ctx context.Context, evtType, entityKind, entityID, actorID string, payload events.EventPayload) error
}

// Manager owns the session token: bootstrap from disk, login, logout and
// recovery from rejected requests.
type Manager struct {
	Client         Backend
	Store          CredentialStore
	Journal        Journal
	Logger         *log.Logger
	Now            func() time.Time
	BootstrapDelay time.Duration

	mu        sync.Mutex
	state     State
	token     *domain.SessionToken
	listeners []func(State)

	recoverMu sync.Mutex
}

func New(client Backend, store CredentialStore) *Manager {
	return &Manager{Client: client, Store: store}
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Manager) logger() *log.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return log.Default()
}

// OnChange registers fn to observe state transitions. fn runs on the
// goroutine that caused the change, without locks held.
func (m *Manager) OnChange(fn func(State)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns a copy of the live token, or nil.
func (m *Manager) Session() *domain.SessionToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil {
		return nil
	}
	tok := *m.token
	return &tok
}

func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil {
		return ""
	}
	return m.token.Value
}

func (m *Manager) User() (domain.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil {
		return domain.User{}, false
	}
	return m.token.User, true
}

// UserID is the journal actor; empty without a session.
func (m *Manager) UserID() string {
	u, _ := m.User()
	return u.ID
}

// Bootstrap restores the persisted session. It returns nil, nil when there is
// nothing usable on disk. A transport failure keeps the stored credentials for
// the next launch and is returned.
func (m *Manager) Bootstrap(ctx context.Context) (*domain.SessionToken, error) {
	creds, err := m.Store.LoadCredentials(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	tok := m.tokenFor(creds.Token, creds.User)
	if tok.Expired(m.now()) {
		m.logger().Printf("session: stored token for %s expired, discarding", creds.User.Email)
		m.clearStored(ctx)
		m.record(ctx, EventExpired, creds.User.ID, events.EventPayload{"reason": "expired"})
		return nil, nil
	}
	if !m.begin() {
		return nil, ErrLoginInProgress
	}
	m.Client.SetToken(tok.Value)
	user, err := m.Client.Me(ctx)
	if err != nil {
		m.Client.SetToken("")
		m.setState(Unauthenticated, nil)
		if rejected(err) {
			m.logger().Printf("session: stored token rejected: %v", err)
			m.clearStored(ctx)
			m.record(ctx, EventExpired, creds.User.ID, events.EventPayload{"reason": "rejected"})
			return nil, nil
		}
		return nil, err
	}
	tok.User = user
	if err := m.Store.SaveUser(ctx, user); err != nil {
		m.logger().Printf("session: persist user failed: %v", err)
	}
	if m.BootstrapDelay > 0 {
		t := time.NewTimer(m.BootstrapDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			m.Client.SetToken("")
			m.setState(Unauthenticated, nil)
			return nil, ctx.Err()
		}
	}
	m.setState(Authenticated, &tok)
	out := tok
	return &out, nil
}

// Login exchanges credentials for a token and persists it.
func (m *Manager) Login(ctx context.Context, email, password string) (*domain.SessionToken, error) {
	return m.authenticate(ctx, func() (domain.AuthResponse, error) {
		return m.Client.Login(ctx, email, password)
	})
}

// Register creates an account and logs it in.
func (m *Manager) Register(ctx context.Context, in domain.RegisterInput) (*domain.SessionToken, error) {
	return m.authenticate(ctx, func() (domain.AuthResponse, error) {
		return m.Client.Register(ctx, in)
	})
}

func (m *Manager) authenticate(ctx context.Context, call func() (domain.AuthResponse, error)) (*domain.SessionToken, error) {
	m.mu.Lock()
	if m.state == Authenticating {
		m.mu.Unlock()
		return nil, ErrLoginInProgress
	}
	prevState, prevToken := m.state, m.token
	m.state = Authenticating
	m.mu.Unlock()
	m.notify(Authenticating)

	resp, err := call()
	if err != nil {
		m.setState(prevState, prevToken)
		if rejected(err) {
			if detail := backend.Detail(err); detail != "" {
				return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, detail)
			}
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	tok := m.tokenFor(resp.Token, resp.User)
	creds := domain.Credentials{Token: tok.Value, User: tok.User, SavedAt: m.now().UTC()}
	if err := m.Store.SaveCredentials(ctx, creds); err != nil {
		m.logger().Printf("session: persist credentials failed: %v", err)
	}
	m.Client.SetToken(tok.Value)
	m.setState(Authenticated, &tok)
	m.record(ctx, EventLogin, tok.User.ID, events.EventPayload{"email": tok.User.Email})
	out := tok
	return &out, nil
}

// UpdateProfile saves profile changes and refreshes the cached user.
func (m *Manager) UpdateProfile(ctx context.Context, in domain.ProfileInput) (domain.User, error) {
	if m.State() != Authenticated {
		return domain.User{}, ErrNoSession
	}
	user, err := m.Client.UpdateProfile(ctx, in)
	if err != nil {
		return domain.User{}, err
	}
	m.mu.Lock()
	if m.token != nil {
		m.token.User = user
	}
	m.mu.Unlock()
	if err := m.Store.SaveUser(ctx, user); err != nil && !errors.Is(err, repo.ErrNotFound) {
		m.logger().Printf("session: persist user failed: %v", err)
	}
	return user, nil
}

// Recover handles a 401 from the backend client. A first failure re-validates
// the token and asks for a retry if it still holds; a repeat failure, or a
// token the server no longer accepts, ends the session. When the check itself
// cannot reach the server the request fails and the session stays.
func (m *Manager) Recover(ctx context.Context, req backend.Request) backend.Recovery {
	if req.Retried {
		m.expire(ctx, fmt.Sprintf("%s /%s rejected after retry", req.Method, req.Path))
		return backend.RecoveryLogout
	}
	m.recoverMu.Lock()
	defer m.recoverMu.Unlock()
	if m.Token() == "" {
		return backend.RecoveryLogout
	}
	user, err := m.Client.Me(ctx)
	if err == nil {
		m.mu.Lock()
		if m.token != nil {
			m.token.User = user
		}
		m.mu.Unlock()
		return backend.RecoveryRetry
	}
	if !rejected(err) {
		// Validation itself did not reach the server; keep the session and
		// let the original request fail.
		m.logger().Printf("session: token check for %s /%s failed: %v", req.Method, req.Path, err)
		return backend.RecoveryFail
	}
	m.expire(ctx, fmt.Sprintf("token rejected on %s /%s", req.Method, req.Path))
	return backend.RecoveryLogout
}

// Logout clears the token, the persisted credentials and the client's default
// authorization.
func (m *Manager) Logout(ctx context.Context) error {
	userID := m.UserID()
	m.Client.SetToken("")
	m.setState(Unauthenticated, nil)
	if err := m.Store.ClearCredentials(ctx); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	m.record(ctx, EventLogout, userID, nil)
	return nil
}

func (m *Manager) expire(ctx context.Context, reason string) {
	userID := m.UserID()
	if userID == "" && m.State() == Unauthenticated {
		return
	}
	m.logger().Printf("session: expired: %s", reason)
	m.Client.SetToken("")
	m.setState(Unauthenticated, nil)
	m.clearStored(ctx)
	m.record(ctx, EventExpired, userID, events.EventPayload{"reason": reason})
}

func (m *Manager) clearStored(ctx context.Context) {
	if err := m.Store.ClearCredentials(context.WithoutCancel(ctx)); err != nil {
		m.logger().Printf("session: clear credentials failed: %v", err)
	}
}

func (m *Manager) begin() bool {
	m.mu.Lock()
	if m.state == Authenticating {
		m.mu.Unlock()
		return false
	}
	m.state = Authenticating
	m.mu.Unlock()
	m.notify(Authenticating)
	return true
}

func (m *Manager) setState(s State, tok *domain.SessionToken) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	m.token = tok
	m.mu.Unlock()
	if changed {
		m.notify(s)
	}
}

func (m *Manager) notify(s State) {
	m.mu.Lock()
	listeners := append([]func(State){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(s)
	}
}

func (m *Manager) record(ctx context.Context, evtType, userID string, payload events.EventPayload) {
	if m.Journal == nil {
		return
	}
	if err := m.Journal.Append(context.WithoutCancel(ctx), evtType, "session", userID, userID, payload); err != nil {
		m.logger().Printf("session: journal %s failed: %v", evtType, err)
	}
}

// tokenFor reads iat/exp from the JWT without verifying it; the server is the
// authority on validity. Opaque tokens fall back to the local clock.
func (m *Manager) tokenFor(value string, user domain.User) domain.SessionToken {
	tok := domain.SessionToken{Value: value, User: user, IssuedAt: m.now().UTC()}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(value, claims); err != nil {
		return tok
	}
	if claims.IssuedAt != nil {
		tok.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time.UTC()
		tok.ExpiresAt = &exp
	}
	return tok
}

// rejected reports a definitive 4xx answer, as opposed to a transport failure
// or a server error.
func rejected(err error) bool {
	code := backend.StatusCode(err)
	return code >= http.StatusBadRequest && code < http.StatusInternalServerError
}
