package mutation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"fieldline/internal/cache"
	"fieldline/internal/domain"
	"fieldline/internal/events"
)

var (
	// ErrInFlight rejects a mutation on an id that already has one pending.
	ErrInFlight = errors.New("a change to this entry is still being saved")
	// ErrNotCached is returned when an update targets an id the collection
	// does not hold.
	ErrNotCached = errors.New("entry not loaded")
)

const (
	EventConfirmed  = "mutation.confirmed"
	EventRolledBack = "mutation.rolled_back"
)

// Journal records mutation outcomes. events.Writer satisfies it.
type Journal interface {
	Append(ctx context.Context, evtType, entityKind, entityID, actorID string, payload events.EventPayload) error
}

// Pipeline applies changes to a collection optimistically and reconciles them
// with the server response.
type Pipeline struct {
	Timeout time.Duration
	Logger  *log.Logger
	Journal Journal
	// Actor names the user for journal entries.
	Actor func() string
}

// Draft builds the optimistic value. On create, ref is the fresh temp ref and
// current is the zero value; on update, current is the cached value.
type Draft[T any] func(ref domain.Ref, current T) T

// Send performs the network call and returns the canonical entity.
type Send[T any] func(ctx context.Context) (T, error)

// Handle tracks one submitted mutation.
type Handle[T any] struct {
	ref  domain.Ref
	done chan struct{}
	val  T
	err  error
}

func newHandle[T any](ref domain.Ref) *Handle[T] {
	return &Handle[T]{ref: ref, done: make(chan struct{})}
}

// Ref is the temp ref for a create and the confirmed ref otherwise.
func (h *Handle[T]) Ref() domain.Ref { return h.ref }

func (h *Handle[T]) Done() <-chan struct{} { return h.done }

// Wait blocks until the mutation settles or ctx is done.
func (h *Handle[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-h.done:
		return h.val, h.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (h *Handle[T]) finish(v T, err error) {
	h.val, h.err = v, err
	close(h.done)
}

// Completed returns a handle that is already settled.
func Completed[T any](ref domain.Ref, v T, err error) *Handle[T] {
	h := newHandle[T](ref)
	h.finish(v, err)
	return h
}

// Submit creates (empty id) or updates an entity. The draft is visible in coll
// immediately; send runs in the background. Outcomes that settle after the
// collection was cleared are not written back.
func Submit[T any](ctx context.Context, p *Pipeline, coll *cache.Collection[T], id string, draft Draft[T], send Send[T]) (*Handle[T], error) {
	if id == "" {
		return create(ctx, p, coll, draft, send)
	}
	lease, ok := coll.Lease(id)
	if !ok {
		return nil, ErrInFlight
	}
	prev, ok := coll.Get(id)
	if !ok {
		lease.Release()
		return nil, fmt.Errorf("%s %s: %w", coll.Name(), id, ErrNotCached)
	}
	lease.Put(draft(prev.Ref, prev.Value))
	h := newHandle[T](prev.Ref)
	go func() {
		v, err := run(ctx, p.timeout(), send)
		if err != nil {
			lease.Put(prev.Value)
			lease.Release()
			p.rolledBack(ctx, coll.Name(), id, "update", err)
			h.finish(v, err)
			return
		}
		lease.Put(v)
		lease.Release()
		p.confirmed(ctx, coll.Name(), id, "update")
		h.finish(v, nil)
	}()
	return h, nil
}

func create[T any](ctx context.Context, p *Pipeline, coll *cache.Collection[T], draft Draft[T], send Send[T]) (*Handle[T], error) {
	ref := domain.NewTempID()
	lease, _ := coll.Lease(ref.ID)
	var zero T
	lease.InsertPending(ref, draft(ref, zero))
	h := newHandle[T](ref)
	go func() {
		v, err := run(ctx, p.timeout(), send)
		if err != nil {
			lease.Remove(ref.ID)
			lease.Release()
			p.rolledBack(ctx, coll.Name(), ref.ID, "create", err)
			h.finish(v, err)
			return
		}
		lease.Promote(ref.ID, v)
		lease.Release()
		p.confirmed(ctx, coll.Name(), ref.ID, "create")
		h.finish(v, nil)
	}()
	return h, nil
}

// Delete removes id from coll right away and restores it at its old position
// if the server refuses.
func Delete[T any](ctx context.Context, p *Pipeline, coll *cache.Collection[T], id string, send func(ctx context.Context) error) (*Handle[struct{}], error) {
	lease, ok := coll.Lease(id)
	if !ok {
		return nil, ErrInFlight
	}
	removed, idx, had := lease.Remove(id)
	h := newHandle[struct{}](domain.Confirmed(id))
	go func() {
		_, err := run[struct{}](ctx, p.timeout(), func(ctx context.Context) (struct{}, error) {
			return struct{}{}, send(ctx)
		})
		if err != nil {
			if had {
				lease.Restore(removed, idx)
			}
			lease.Release()
			p.rolledBack(ctx, coll.Name(), id, "delete", err)
			h.finish(struct{}{}, err)
			return
		}
		lease.Release()
		p.confirmed(ctx, coll.Name(), id, "delete")
		h.finish(struct{}{}, nil)
	}()
	return h, nil
}

func run[T any](ctx context.Context, timeout time.Duration, send Send[T]) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return send(ctx)
}

func (p *Pipeline) timeout() time.Duration {
	if p == nil {
		return 0
	}
	return p.Timeout
}

func (p *Pipeline) logger() *log.Logger {
	if p != nil && p.Logger != nil {
		return p.Logger
	}
	return log.Default()
}

func (p *Pipeline) actor() string {
	if p == nil || p.Actor == nil {
		return ""
	}
	return p.Actor()
}

func (p *Pipeline) confirmed(ctx context.Context, kind, id, op string) {
	p.record(ctx, EventConfirmed, kind, id, events.EventPayload{"op": op})
}

func (p *Pipeline) rolledBack(ctx context.Context, kind, id, op string, cause error) {
	p.logger().Printf("mutation: %s %s %s rolled back: %v", op, kind, id, cause)
	p.record(ctx, EventRolledBack, kind, id, events.EventPayload{"op": op, "error": cause.Error()})
}

func (p *Pipeline) record(ctx context.Context, evtType, kind, id string, payload events.EventPayload) {
	if p == nil || p.Journal == nil {
		return
	}
	if err := p.Journal.Append(context.WithoutCancel(ctx), evtType, kind, id, p.actor(), payload); err != nil {
		p.logger().Printf("mutation: journal %s failed: %v", evtType, err)
	}
}
