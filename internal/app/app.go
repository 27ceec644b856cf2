package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"fieldline/internal/backend"
	"fieldline/internal/cache"
	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/engine"
	"fieldline/internal/events"
	"fieldline/internal/gate"
	"fieldline/internal/migrate"
	"fieldline/internal/mutation"
	"fieldline/internal/poll"
	"fieldline/internal/repo"
	"fieldline/internal/session"
)

// App wires the client components of one workspace together.
type App struct {
	Config  *config.Config
	DB      *sql.DB
	Repo    repo.Repo
	Journal events.Writer
	Client  *backend.Client
	Session *session.Manager
	Store   *cache.Store
	Poll    *poll.Scheduler
	Engine  engine.Engine
	Gate    *gate.Gate
	Logger  *log.Logger
	// Passive leaves poll channels to the caller instead of starting them
	// on login.
	Passive bool

	mu sync.RWMutex
	ui UIState
}

// Open opens the workspace database, applies migrations and wires an App.
func Open(ctx context.Context, workspace string, cfg *config.Config, logger *log.Logger) (*App, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return New(conn, cfg, logger), nil
}

// New wires an App on an already migrated database.
func New(conn *sql.DB, cfg *config.Config, logger *log.Logger) *App {
	if logger == nil {
		logger = log.Default()
	}
	a := &App{
		Config:  cfg,
		DB:      conn,
		Repo:    repo.Repo{DB: conn},
		Journal: events.Writer{DB: conn},
		Store:   cache.NewStore(),
		Poll:    poll.New(logger),
		Gate:    gate.New(cfg.Gate.SettleDelay),
		Logger:  logger,
		ui:      UIState{Tab: TabHome},
	}
	a.Client = backend.New(cfg.Backend.BaseURL)
	a.Client.Timeout = cfg.Backend.Timeout
	a.Client.Logger = logger

	a.Session = session.New(a.Client, a.Repo)
	a.Session.Journal = a.Journal
	a.Session.Logger = logger
	a.Session.BootstrapDelay = cfg.Session.BootstrapDelay
	a.Client.SetRecoverer(a.Session)

	pipeline := &mutation.Pipeline{
		Timeout: cfg.Backend.Timeout,
		Logger:  logger,
		Journal: a.Journal,
		Actor:   a.Session.UserID,
	}
	a.Engine = engine.New(a.Client, a.Store, pipeline, a.Session)
	a.Engine.Logger = logger
	a.Engine.RefetchDelay = cfg.Vacations.RefetchDelay
	a.Engine.Timeout = cfg.Backend.Timeout

	a.Session.OnChange(a.sessionChanged)
	return a
}

// Close stops every channel and closes the database.
func (a *App) Close() error {
	a.Poll.StopAll()
	a.Gate.Cancel()
	return a.DB.Close()
}

func (a *App) SessionState() session.State { return a.Session.State() }

// Bootstrap restores a persisted session, if any, and starts polling.
func (a *App) Bootstrap(ctx context.Context) (bool, error) {
	tok, err := a.Session.Bootstrap(ctx)
	if err != nil {
		return false, err
	}
	return tok != nil, nil
}

func (a *App) Login(ctx context.Context, email, password string) error {
	_, err := a.Session.Login(ctx, email, password)
	return err
}

func (a *App) Logout(ctx context.Context) error {
	return a.Session.Logout(ctx)
}

// InitialLoad fills every collection the first screens show.
func (a *App) InitialLoad(ctx context.Context) error {
	u, ok := a.Session.User()
	if !ok {
		return session.ErrNoSession
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Engine.RefreshHome(ctx) })
	g.Go(func() error { return a.Engine.RefreshReports(ctx) })
	g.Go(func() error { return a.Engine.RefreshPersons(ctx) })
	g.Go(func() error { return a.Engine.RefreshPersonStats(ctx) })
	g.Go(func() error { return a.Engine.RefreshVacations(ctx) })
	if u.IsAdmin() {
		g.Go(func() error { return a.Engine.RefreshAdminVacations(ctx) })
	}
	return g.Wait()
}

func (a *App) sessionChanged(s session.State) {
	switch s {
	case session.Authenticated:
		if !a.Passive {
			a.SyncChannels()
		}
	case session.Unauthenticated:
		a.Poll.StopAll()
		a.Gate.Cancel()
		a.Store.Reset()
		a.mu.Lock()
		a.ui = UIState{Tab: TabHome}
		a.mu.Unlock()
	}
}
