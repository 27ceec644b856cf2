// Package servertest runs the mock backend on a loopback listener for tests.
package servertest

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"fieldline/internal/domain"
	"fieldline/internal/server"
)

// Password is shared by the seeded accounts.
const Password = "einsatz123"

type Backend struct {
	*server.Server
	URL     string
	Admin   domain.User
	Officer domain.User
}

// New starts a backend seeded with one admin and one officer. It is shut down
// when the test ends.
func New(t testing.TB) *Backend {
	t.Helper()
	return NewWithConfig(t, server.Config{})
}

func NewWithConfig(t testing.TB, cfg server.Config) *Backend {
	t.Helper()
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "test-secret"
	}
	if cfg.PasswordCost == 0 {
		cfg.PasswordCost = bcrypt.MinCost
	}
	srv, err := server.New(cfg)
	if err != nil {
		t.Fatalf("build backend: %v", err)
	}
	admin, err := srv.SeedUser("leitung@example.org", Password, "Petra Leitung", domain.RoleAdmin)
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	officer, err := srv.SeedUser("streife@example.org", Password, "Tom Streife", domain.RoleUser)
	if err != nil {
		t.Fatalf("seed officer: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	httpSrv := &http.Server{Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go httpSrv.Serve(ln)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(ctx)
		ln.Close()
	})
	return &Backend{
		Server:  srv,
		URL:     "http://" + ln.Addr().String(),
		Admin:   admin,
		Officer: officer,
	}
}

// Token mints a valid bearer token for u.
func (b *Backend) Token(t testing.TB, u domain.User) string {
	t.Helper()
	token, err := b.IssueToken(u.ID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}
