package app_test

import (
	"context"
	"errors"
	"io"
	"log"
	"reflect"
	"testing"
	"time"

	"fieldline/internal/app"
	"fieldline/internal/backend"
	"fieldline/internal/cache"
	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/domain"
	"fieldline/internal/gate"
	"fieldline/internal/migrate"
	"fieldline/internal/server/servertest"
	"fieldline/internal/session"
)

func newTestApp(t *testing.T) (*app.App, *servertest.Backend) {
	t.Helper()
	b := servertest.New(t)
	conn, err := db.Open(db.Config{InMemory: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Backend.BaseURL = b.URL
	cfg.Backend.Timeout = 2 * time.Second
	cfg.Session.BootstrapDelay = 0
	cfg.Gate.SettleDelay = 5 * time.Millisecond
	cfg.Vacations.RefetchDelay = 0
	a := app.New(conn, cfg, log.New(io.Discard, "", 0))
	t.Cleanup(func() { a.Close() })
	return a, b
}

func login(t *testing.T, a *app.App, email string) {
	t.Helper()
	if err := a.Login(context.Background(), email, servertest.Password); err != nil {
		t.Fatalf("login: %v", err)
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestLoginStartsHomeChannels(t *testing.T) {
	a, b := newTestApp(t)
	b.SeedIncident(domain.Incident{Title: "Verkehrskontrolle"})
	if got := a.Poll.Names(); len(got) != 0 {
		t.Fatalf("channels running before login: %v", got)
	}
	login(t, a, "streife@example.org")
	if got := a.Poll.Names(); !reflect.DeepEqual(got, []string{app.ChannelHeartbeat, app.ChannelHome}) {
		t.Fatalf("unexpected channels %v", got)
	}
	eventually(t, func() bool {
		_, ok := a.Store.Stats.Get()
		return ok && a.Store.Incidents.Len() == 1
	})
}

func TestSwitchTabMovesChannels(t *testing.T) {
	a, _ := newTestApp(t)
	login(t, a, "streife@example.org")
	a.SwitchTab(app.TabTeam)
	if got := a.Poll.Names(); !reflect.DeepEqual(got, []string{app.ChannelHeartbeat, app.ChannelRoster}) {
		t.Fatalf("unexpected channels %v", got)
	}
	eventually(t, func() bool { return a.Store.Users.Len() == 2 })
}

func TestOpenChatSwitchesPeer(t *testing.T) {
	a, b := newTestApp(t)
	login(t, a, "streife@example.org")
	b.SeedMessage(domain.ChatMessage{SenderID: b.Admin.ID, RecipientID: b.Officer.ID, Content: "Bitte melden"})

	a.OpenChat(b.Admin.ID)
	if !a.Poll.Running(app.ChannelPrivateChat) || a.Poll.Running(app.ChannelHome) {
		t.Fatalf("unexpected channels %v", a.Poll.Names())
	}
	eventually(t, func() bool { return a.Store.Conversation(cache.PrivateKey(b.Admin.ID)).Len() == 1 })

	a.OpenChannel("")
	ui := a.UI()
	if ui.ChatPeer != "" || ui.Channel != "general" {
		t.Fatalf("unexpected ui state %+v", ui)
	}
	if a.Poll.Running(app.ChannelPrivateChat) || !a.Poll.Running(app.ChannelBroadcast) {
		t.Fatalf("unexpected channels %v", a.Poll.Names())
	}
	a.CloseChat()
	if a.Poll.Running(app.ChannelBroadcast) {
		t.Fatalf("channel chat kept running after close")
	}
}

func TestLogoutStopsChannelsAndClearsCache(t *testing.T) {
	a, _ := newTestApp(t)
	login(t, a, "leitung@example.org")
	if err := a.InitialLoad(context.Background()); err != nil {
		t.Fatalf("initial load: %v", err)
	}
	a.SwitchTab(app.TabTeam)
	if err := a.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if got := a.Poll.Names(); len(got) != 0 {
		t.Fatalf("channels still running: %v", got)
	}
	if _, ok := a.Store.Stats.Get(); ok {
		t.Fatalf("cache kept after logout")
	}
	if a.UI().Tab != app.TabHome {
		t.Fatalf("ui not reset")
	}
}

func TestRevokedTokenEndsSessionEverywhere(t *testing.T) {
	a, b := newTestApp(t)
	login(t, a, "streife@example.org")
	b.Revoke(a.Session.Token())

	err := a.Engine.RefreshReports(context.Background())
	if !errors.Is(err, backend.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if a.SessionState() != session.Unauthenticated {
		t.Fatalf("session survived revoked token")
	}
	if got := a.Poll.Names(); len(got) != 0 {
		t.Fatalf("channels still running: %v", got)
	}
	events, err := a.Journal.Tail(context.Background(), 5)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(events) == 0 || events[len(events)-1].Type != session.EventExpired {
		t.Fatalf("expiry not journaled: %+v", events)
	}
}

func TestBootstrapRestoresPersistedSession(t *testing.T) {
	a, b := newTestApp(t)
	if ok, err := a.Bootstrap(context.Background()); ok || err != nil {
		t.Fatalf("empty workspace bootstrapped: %v %v", ok, err)
	}
	if err := a.Repo.SaveCredentials(context.Background(), domain.Credentials{Token: b.Token(t, b.Officer), User: b.Officer}); err != nil {
		t.Fatalf("save credentials: %v", err)
	}
	ok, err := a.Bootstrap(context.Background())
	if !ok || err != nil {
		t.Fatalf("bootstrap: %v %v", ok, err)
	}
	if !a.Poll.Running(app.ChannelHeartbeat) {
		t.Fatalf("heartbeat not started after bootstrap")
	}
}

func TestShowModalDropsConcurrentRequest(t *testing.T) {
	a, _ := newTestApp(t)
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.ShowModal(context.Background(), "incident-detail", func(context.Context) error {
			<-release
			return nil
		})
	}()
	eventually(t, func() bool { return a.Gate.State() == gate.Transitioning })
	ran, err := a.ShowModal(context.Background(), "report-detail", nil)
	if ran || err != nil {
		t.Fatalf("concurrent modal not dropped: %v %v", ran, err)
	}
	close(release)
	<-done
	if got := a.UI().Modal; got != "incident-detail" {
		t.Fatalf("unexpected modal %q", got)
	}
}

func TestScheduleModalKeepsLatest(t *testing.T) {
	a, _ := newTestApp(t)
	a.ScheduleModal("first", nil)
	res := a.ScheduleModal("second", nil)
	select {
	case err := <-res:
		if err != nil {
			t.Fatalf("scheduled modal failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduled modal never opened")
	}
	if got := a.UI().Modal; got != "second" {
		t.Fatalf("unexpected modal %q", got)
	}
}

func TestLogoutDropsLateMutationOutcome(t *testing.T) {
	a, b := newTestApp(t)
	login(t, a, "streife@example.org")
	inc := b.SeedIncident(domain.Incident{Title: "Ruhestörung", Status: domain.IncidentInProgress, AssignedTo: b.Officer.ID})
	if err := a.Engine.RefreshIncidents(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	b.DelayNext("PUT", "/api/incidents/"+inc.ID+"/complete", 300*time.Millisecond)

	h, err := a.Engine.CompleteIncident(context.Background(), inc.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := a.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, _ = h.Wait(ctx)
	if ctx.Err() != nil {
		t.Fatalf("mutation did not settle")
	}

	if n := a.Store.Incidents.Len(); n != 0 {
		t.Fatalf("late outcome repopulated the cache: %+v", a.Store.Incidents.Items())
	}
	if a.Store.Incidents.InFlight(inc.ID) {
		t.Fatalf("incident still marked in flight")
	}
}
