package session_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"fieldline/internal/backend"
	"fieldline/internal/db"
	"fieldline/internal/domain"
	"fieldline/internal/migrate"
	"fieldline/internal/repo"
	"fieldline/internal/server"
	"fieldline/internal/server/servertest"
	"fieldline/internal/session"
)

type testEnv struct {
	backend *servertest.Backend
	client  *backend.Client
	store   repo.Repo
	mgr     *session.Manager
}

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func newTestEnv(t *testing.T, b *servertest.Backend) *testEnv {
	t.Helper()
	if b == nil {
		b = servertest.New(t)
	}
	client := backend.New(b.URL)
	client.Timeout = 2 * time.Second
	store := newRepo(t)
	mgr := session.New(client, store)
	client.SetRecoverer(mgr)
	return &testEnv{backend: b, client: client, store: store, mgr: mgr}
}

func (e *testEnv) storeToken(t *testing.T, token string, u domain.User) {
	t.Helper()
	if err := e.store.SaveCredentials(context.Background(), domain.Credentials{Token: token, User: u}); err != nil {
		t.Fatalf("save credentials: %v", err)
	}
}

func (e *testEnv) hasStoredCredentials(t *testing.T) bool {
	t.Helper()
	_, err := e.store.LoadCredentials(context.Background())
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("load credentials: %v", err)
	}
	return err == nil
}

func TestLoginPersistsCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	tok, err := env.mgr.Login(context.Background(), "streife@example.org", servertest.Password)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if tok.User.ID != env.backend.Officer.ID || tok.ExpiresAt == nil {
		t.Fatalf("unexpected session token: %+v", tok)
	}
	if env.mgr.State() != session.Authenticated {
		t.Fatalf("unexpected state %v", env.mgr.State())
	}
	if env.client.Token() != tok.Value {
		t.Fatalf("client authorization not installed")
	}
	creds, err := env.store.LoadCredentials(context.Background())
	if err != nil || creds.Token != tok.Value {
		t.Fatalf("credentials not persisted: %+v err=%v", creds, err)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.mgr.Login(context.Background(), "streife@example.org", "falsch")
	if !errors.Is(err, session.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if env.mgr.State() != session.Unauthenticated {
		t.Fatalf("unexpected state %v", env.mgr.State())
	}
	if env.hasStoredCredentials(t) {
		t.Fatalf("failed login persisted credentials")
	}
}

func TestSecondLoginWhileAuthenticatingIsRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	env.backend.DelayNext(http.MethodPost, "/api/auth/login", 300*time.Millisecond)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		env.mgr.Login(context.Background(), "streife@example.org", servertest.Password)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for env.mgr.State() != session.Authenticating {
		if time.Now().After(deadline) {
			t.Fatalf("first login never started")
		}
		time.Sleep(2 * time.Millisecond)
	}
	if _, err := env.mgr.Login(context.Background(), "leitung@example.org", servertest.Password); !errors.Is(err, session.ErrLoginInProgress) {
		t.Fatalf("expected ErrLoginInProgress, got %v", err)
	}
	wg.Wait()
	if u, _ := env.mgr.User(); u.ID != env.backend.Officer.ID {
		t.Fatalf("first login did not win: %+v", u)
	}
}

func TestBootstrapRestoresValidToken(t *testing.T) {
	env := newTestEnv(t, nil)
	env.storeToken(t, env.backend.Token(t, env.backend.Admin), env.backend.Admin)
	tok, err := env.mgr.Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if tok == nil || tok.User.ID != env.backend.Admin.ID {
		t.Fatalf("unexpected token %+v", tok)
	}
	if env.mgr.State() != session.Authenticated {
		t.Fatalf("unexpected state %v", env.mgr.State())
	}
}

func TestBootstrapDropsExpiredTokenWithoutNetwork(t *testing.T) {
	past := servertest.NewWithConfig(t, server.Config{
		TokenTTL: time.Hour,
		Now:      func() time.Time { return time.Now().Add(-48 * time.Hour) },
	})
	env := newTestEnv(t, past)
	env.storeToken(t, past.Token(t, past.Officer), past.Officer)

	tok, err := env.mgr.Bootstrap(context.Background())
	if err != nil || tok != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", tok, err)
	}
	if n := past.Requests(http.MethodGet, "/api/auth/me"); n != 0 {
		t.Fatalf("expired token was validated over the network (%d calls)", n)
	}
	if env.hasStoredCredentials(t) {
		t.Fatalf("expired credentials kept")
	}
}

func TestBootstrapClearsRejectedToken(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.backend.Token(t, env.backend.Officer)
	env.backend.Revoke(token)
	env.storeToken(t, token, env.backend.Officer)

	tok, err := env.mgr.Bootstrap(context.Background())
	if err != nil || tok != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", tok, err)
	}
	if env.hasStoredCredentials(t) {
		t.Fatalf("rejected credentials kept")
	}
	if env.client.Token() != "" {
		t.Fatalf("client kept rejected token")
	}
}

func TestBootstrapKeepsCredentialsOnTransportFailure(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	client := backend.New("http://" + addr)
	client.Timeout = time.Second
	store := newRepo(t)
	mgr := session.New(client, store)
	if err := store.SaveCredentials(context.Background(), domain.Credentials{Token: "opaque", User: domain.User{ID: "u1"}}); err != nil {
		t.Fatalf("save credentials: %v", err)
	}

	tok, err := mgr.Bootstrap(context.Background())
	if !errors.Is(err, backend.ErrNetworkUnavailable) || tok != nil {
		t.Fatalf("expected network error, got %+v, %v", tok, err)
	}
	if mgr.State() != session.Unauthenticated {
		t.Fatalf("unexpected state %v", mgr.State())
	}
	if _, err := store.LoadCredentials(context.Background()); err != nil {
		t.Fatalf("credentials dropped on transport failure: %v", err)
	}
}

func TestRecoverRetriesOnceWhenTokenStillValid(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.mgr.Login(context.Background(), "streife@example.org", servertest.Password); err != nil {
		t.Fatalf("login: %v", err)
	}
	env.backend.FailNext(http.MethodGet, "/api/incidents", http.StatusUnauthorized)

	if _, err := env.client.Incidents(context.Background()); err != nil {
		t.Fatalf("expected retried request to succeed, got %v", err)
	}
	if n := env.backend.Requests(http.MethodGet, "/api/incidents"); n != 2 {
		t.Fatalf("expected exactly one retry, got %d requests", n)
	}
	if env.mgr.State() != session.Authenticated {
		t.Fatalf("session lost: %v", env.mgr.State())
	}
}

func TestRecoverLogsOutOnRevokedToken(t *testing.T) {
	env := newTestEnv(t, nil)
	tok, err := env.mgr.Login(context.Background(), "streife@example.org", servertest.Password)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	var mu sync.Mutex
	var seen []session.State
	env.mgr.OnChange(func(s session.State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	env.backend.Revoke(tok.Value)

	_, err = env.client.Incidents(context.Background())
	if !errors.Is(err, backend.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if n := env.backend.Requests(http.MethodGet, "/api/incidents"); n != 1 {
		t.Fatalf("request must not be retried with a dead token, got %d", n)
	}
	if env.mgr.State() != session.Unauthenticated || env.client.Token() != "" {
		t.Fatalf("session not cleared")
	}
	if env.hasStoredCredentials(t) {
		t.Fatalf("credentials kept after expiry")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != session.Unauthenticated {
		t.Fatalf("unexpected state notifications %v", seen)
	}
}

func TestRecoverLogsOutWhenRetryFails(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.mgr.Login(context.Background(), "streife@example.org", servertest.Password); err != nil {
		t.Fatalf("login: %v", err)
	}
	env.backend.FailNext(http.MethodGet, "/api/reports", http.StatusUnauthorized)
	env.backend.FailNext(http.MethodGet, "/api/reports", http.StatusUnauthorized)

	if _, err := env.client.Reports(context.Background()); !errors.Is(err, backend.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if env.mgr.State() != session.Unauthenticated {
		t.Fatalf("expected logout after failed retry, got %v", env.mgr.State())
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.mgr.Login(context.Background(), "leitung@example.org", servertest.Password); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := env.mgr.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if env.mgr.Session() != nil || env.client.Token() != "" || env.hasStoredCredentials(t) {
		t.Fatalf("logout left state behind")
	}
}

func TestUpdateProfileRefreshesUser(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.mgr.Login(context.Background(), "streife@example.org", servertest.Password); err != nil {
		t.Fatalf("login: %v", err)
	}
	status := "Pause"
	u, err := env.mgr.UpdateProfile(context.Background(), domain.ProfileInput{Status: &status})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if u.Status != "Pause" {
		t.Fatalf("unexpected user %+v", u)
	}
	creds, err := env.store.LoadCredentials(context.Background())
	if err != nil || creds.User.Status != "Pause" {
		t.Fatalf("stored user not refreshed: %+v err=%v", creds.User, err)
	}
}

func TestRecoverKeepsSessionWhenTokenCheckFails(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.mgr.Login(context.Background(), "streife@example.org", servertest.Password); err != nil {
		t.Fatalf("login: %v", err)
	}
	env.backend.FailNext(http.MethodGet, "/api/auth/me", http.StatusServiceUnavailable)

	got := env.mgr.Recover(context.Background(), backend.Request{Method: http.MethodGet, Path: "api/incidents"})
	if got != backend.RecoveryFail {
		t.Fatalf("expected RecoveryFail, got %v", got)
	}
	if env.mgr.State() != session.Authenticated || env.client.Token() == "" {
		t.Fatalf("session dropped on failed token check")
	}
	if !env.hasStoredCredentials(t) {
		t.Fatalf("credentials dropped on failed token check")
	}

	env.backend.FailNext(http.MethodGet, "/api/reports", http.StatusUnauthorized)
	env.backend.FailNext(http.MethodGet, "/api/auth/me", http.StatusServiceUnavailable)
	if _, err := env.client.Reports(context.Background()); !errors.Is(err, backend.ErrUnauthorized) {
		t.Fatalf("expected original 401, got %v", err)
	}
	if n := env.backend.Requests(http.MethodGet, "/api/reports"); n != 1 {
		t.Fatalf("request retried without a verified token: %d requests", n)
	}
	if env.mgr.State() != session.Authenticated {
		t.Fatalf("session dropped: %v", env.mgr.State())
	}
}
