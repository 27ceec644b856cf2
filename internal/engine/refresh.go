package engine

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"fieldline/internal/cache"
	"fieldline/internal/domain"
)

// Refresh functions fetch a server snapshot and install it unless ctx was
// cancelled meanwhile. Entries with an unresolved mutation are left alone by
// the collections.

// RefreshHome loads the dashboard counters and the incident list. Both are
// fetched even if one fails.
func (e Engine) RefreshHome(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return e.RefreshStats(ctx) })
	g.Go(func() error { return e.RefreshIncidents(ctx) })
	return g.Wait()
}

func (e Engine) RefreshStats(ctx context.Context) error {
	st, err := e.Client.AdminStats(ctx)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e.Store.Stats.Set(st)
	return nil
}

func (e Engine) RefreshPersonStats(ctx context.Context) error {
	st, err := e.Client.PersonStats(ctx)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e.Store.PersonStats.Set(st)
	return nil
}

func (e Engine) RefreshIncidents(ctx context.Context) error {
	return replace(ctx, e.Store.Incidents, e.Client.Incidents)
}

func (e Engine) RefreshReports(ctx context.Context) error {
	return replace(ctx, e.Store.Reports, e.Client.Reports)
}

func (e Engine) RefreshPersons(ctx context.Context) error {
	return replace(ctx, e.Store.Persons, e.Client.Persons)
}

func (e Engine) RefreshVacations(ctx context.Context) error {
	return replace(ctx, e.Store.MyVacations, e.Client.MyVacations)
}

func (e Engine) RefreshAdminVacations(ctx context.Context) error {
	return replace(ctx, e.Store.AdminVacations, e.Client.AdminVacations)
}

// RefreshRoster flattens the status groups into the user collection, ordered
// by status and then display name.
func (e Engine) RefreshRoster(ctx context.Context) error {
	return replace(ctx, e.Store.Users, func(ctx context.Context) ([]domain.User, error) {
		r, err := e.Client.UsersByStatus(ctx)
		if err != nil {
			return nil, err
		}
		users := r.Users()
		sort.SliceStable(users, func(i, j int) bool {
			if users[i].Status != users[j].Status {
				return users[i].Status < users[j].Status
			}
			return users[i].DisplayName() < users[j].DisplayName()
		})
		return users, nil
	})
}

func (e Engine) RefreshPrivateChat(ctx context.Context, peerID string) error {
	return replace(ctx, e.Store.Conversation(cache.PrivateKey(peerID)), func(ctx context.Context) ([]domain.ChatMessage, error) {
		return e.Client.PrivateMessages(ctx, peerID)
	})
}

func (e Engine) RefreshChannel(ctx context.Context, channel string) error {
	return replace(ctx, e.Store.Conversation(cache.ChannelKey(channel)), func(ctx context.Context) ([]domain.ChatMessage, error) {
		return e.Client.ChannelMessages(ctx, channel)
	})
}

// Heartbeat marks the current user as online.
func (e Engine) Heartbeat(ctx context.Context) error {
	return e.Client.Heartbeat(ctx)
}

func replace[T any](ctx context.Context, coll *cache.Collection[T], fetch func(context.Context) ([]T, error)) error {
	items, err := fetch(ctx)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	coll.ReplaceAll(items)
	return nil
}
