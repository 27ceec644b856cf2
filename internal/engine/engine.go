package engine

import (
	"context"
	"log"
	"time"

	"fieldline/internal/backend"
	"fieldline/internal/cache"
	"fieldline/internal/domain"
	"fieldline/internal/mutation"
	"fieldline/internal/session"
)

// Session is the part of the session manager the engine relies on.
type Session interface {
	User() (domain.User, bool)
	UpdateProfile(ctx context.Context, in domain.ProfileInput) (domain.User, error)
}

// Engine validates entity lifecycle changes and routes them through the
// mutation pipeline into the cache.
type Engine struct {
	Client   *backend.Client
	Store    *cache.Store
	Pipeline *mutation.Pipeline
	Session  Session
	Logger   *log.Logger
	Now      func() time.Time
	// RefetchDelay postpones the admin vacation refetch after a decision.
	RefetchDelay time.Duration
	// Timeout bounds follow-up refreshes that run detached from the caller.
	Timeout time.Duration
}

func New(client *backend.Client, store *cache.Store, pipeline *mutation.Pipeline, sess Session) Engine {
	return Engine{
		Client:   client,
		Store:    store,
		Pipeline: pipeline,
		Session:  sess,
		Now:      time.Now,
		Timeout:  client.Timeout,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

func (e Engine) user() (domain.User, error) {
	if e.Session == nil {
		return domain.User{}, session.ErrNoSession
	}
	u, ok := e.Session.User()
	if !ok {
		return domain.User{}, session.ErrNoSession
	}
	return u, nil
}

// cached returns the entry for id, loading it from the backend when the
// collection does not hold it yet.
func cached[T any](ctx context.Context, coll *cache.Collection[T], id string, fetch func(context.Context, string) (T, error)) (T, error) {
	if e, ok := coll.Get(id); ok {
		return e.Value, nil
	}
	v, err := fetch(ctx, id)
	if err != nil {
		return v, err
	}
	if err := ctx.Err(); err != nil {
		return v, err
	}
	coll.Put(v)
	return v, nil
}

// afterSuccess runs fn once h settles without error, after delay.
func afterSuccess[T any](e Engine, h *mutation.Handle[T], delay time.Duration, what string, fn func(context.Context) error) {
	go func() {
		if _, err := h.Wait(context.Background()); err != nil {
			return
		}
		if delay > 0 {
			time.Sleep(delay)
		}
		ctx := context.Background()
		if e.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.Timeout)
			defer cancel()
		}
		if err := fn(ctx); err != nil {
			e.logger().Printf("engine: %s failed: %v", what, err)
		}
	}()
}
