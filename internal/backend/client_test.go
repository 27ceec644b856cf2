package backend_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"fieldline/internal/backend"
	"fieldline/internal/domain"
	"fieldline/internal/server/servertest"
)

func newClient(t *testing.T, b *servertest.Backend, u domain.User) *backend.Client {
	t.Helper()
	c := backend.New(b.URL)
	c.Timeout = 2 * time.Second
	if u.ID != "" {
		c.SetToken(b.Token(t, u))
	}
	return c
}

func TestLoginAndListIncidents(t *testing.T) {
	b := servertest.New(t)
	b.SeedIncident(domain.Incident{Title: "Ölspur", Priority: domain.PriorityHigh})
	c := newClient(t, b, domain.User{})
	resp, err := c.Login(context.Background(), "streife@example.org", servertest.Password)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Token == "" || resp.User.Role != domain.RoleUser {
		t.Fatalf("unexpected auth response %+v", resp)
	}
	c.SetToken(resp.Token)
	list, err := c.Incidents(context.Background())
	if err != nil {
		t.Fatalf("incidents: %v", err)
	}
	if len(list) != 1 || list[0].Title != "Ölspur" || list[0].Status != domain.IncidentOpen {
		t.Fatalf("unexpected incidents %+v", list)
	}
}

func TestUnauthorizedWithoutRecoverer(t *testing.T) {
	b := servertest.New(t)
	c := newClient(t, b, domain.User{})
	_, err := c.Reports(context.Background())
	if !errors.Is(err, backend.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if backend.StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", backend.StatusCode(err))
	}
	if backend.IsValidation(err) {
		t.Fatalf("401 must not count as validation error")
	}
}

type countingRecoverer struct {
	calls []backend.Request
	out   backend.Recovery
}

func (r *countingRecoverer) Recover(_ context.Context, req backend.Request) backend.Recovery {
	r.calls = append(r.calls, req)
	return r.out
}

func TestRecovererIsConsultedOncePerAttempt(t *testing.T) {
	b := servertest.New(t)
	c := newClient(t, b, b.Officer)
	rec := &countingRecoverer{out: backend.RecoveryRetry}
	c.SetRecoverer(rec)
	b.FailNext(http.MethodGet, "/api/persons", http.StatusUnauthorized)
	b.FailNext(http.MethodGet, "/api/persons", http.StatusUnauthorized)

	_, err := c.Persons(context.Background())
	if !errors.Is(err, backend.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after the single retry, got %v", err)
	}
	if len(rec.calls) != 2 || rec.calls[0].Retried || !rec.calls[1].Retried {
		t.Fatalf("unexpected recover calls %+v", rec.calls)
	}
	if n := b.Requests(http.MethodGet, "/api/persons"); n != 2 {
		t.Fatalf("expected 2 requests, got %d", n)
	}
}

func TestMeNeverTriggersRecovery(t *testing.T) {
	b := servertest.New(t)
	c := newClient(t, b, domain.User{})
	rec := &countingRecoverer{out: backend.RecoveryRetry}
	c.SetRecoverer(rec)
	if _, err := c.Me(context.Background()); !errors.Is(err, backend.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if len(rec.calls) != 0 {
		t.Fatalf("me consulted the recoverer")
	}
}

func TestValidationErrorCarriesDetail(t *testing.T) {
	b := servertest.New(t)
	c := newClient(t, b, b.Officer)
	_, err := c.CreateIncident(context.Background(), domain.IncidentInput{Description: "ohne Titel"})
	if !backend.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if d := backend.Detail(err); !strings.Contains(d, "title") {
		t.Fatalf("expected server detail, got %q", d)
	}
}

func TestTimeoutMatchesNetworkUnavailable(t *testing.T) {
	b := servertest.New(t)
	c := newClient(t, b, b.Officer)
	c.Timeout = 50 * time.Millisecond
	b.DelayNext(http.MethodGet, "/api/admin/stats", 500*time.Millisecond)
	_, err := c.AdminStats(context.Background())
	if !errors.Is(err, backend.ErrTimeout) || !errors.Is(err, backend.ErrNetworkUnavailable) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestConnectionRefusedIsNetworkUnavailable(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	c := backend.New("http://" + addr)
	c.Timeout = time.Second
	_, err = c.Incidents(context.Background())
	if !errors.Is(err, backend.ErrNetworkUnavailable) || errors.Is(err, backend.ErrTimeout) {
		t.Fatalf("expected plain network error, got %v", err)
	}
}

func TestAPIErrorDetailFormats(t *testing.T) {
	cases := []struct{ body, want string }{
		{`{"error":{"code":"conflict","message":"bereits vergeben"}}`, "bereits vergeben"},
		{`{"message":"kaputt"}`, "kaputt"},
		{`<html>502</html>`, ""},
	}
	for _, tc := range cases {
		e := &backend.APIError{StatusCode: 409, Body: tc.body}
		if got := e.Detail(); got != tc.want {
			t.Fatalf("Detail(%s) = %q, want %q", tc.body, got, tc.want)
		}
	}
}

func TestPrivateMessagesRoundTrip(t *testing.T) {
	b := servertest.New(t)
	officer := newClient(t, b, b.Officer)
	admin := newClient(t, b, b.Admin)
	if _, err := officer.SendMessage(context.Background(), domain.MessageInput{RecipientID: b.Admin.ID, Content: "Lagebericht folgt"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	msgs, err := admin.PrivateMessages(context.Background(), b.Officer.ID)
	if err != nil {
		t.Fatalf("private messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].SenderID != b.Officer.ID {
		t.Fatalf("unexpected conversation %+v", msgs)
	}
	general, err := admin.ChannelMessages(context.Background(), "")
	if err != nil {
		t.Fatalf("channel messages: %v", err)
	}
	if len(general) != 0 {
		t.Fatalf("private message leaked into channel: %+v", general)
	}
}
