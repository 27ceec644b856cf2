package engine

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"fieldline/internal/domain"
	"fieldline/internal/mutation"
)

func (e Engine) CreatePerson(ctx context.Context, in domain.PersonInput) (*mutation.Handle[domain.Person], error) {
	if strings.TrimSpace(in.LastName) == "" {
		return nil, FieldError{Field: "last_name"}
	}
	now := e.now().UTC()
	return mutation.Submit(ctx, e.Pipeline, e.Store.Persons, "",
		func(ref domain.Ref, _ domain.Person) domain.Person {
			p := domain.Person{
				ID:               ref.ID,
				FirstName:        in.FirstName,
				LastName:         in.LastName,
				Status:           domain.PersonMissing,
				Priority:         in.Priority,
				CaseNumber:       in.CaseNumber,
				Description:      in.Description,
				LastSeenLocation: in.LastSeenLocation,
				CreatedAt:        now,
			}
			if in.Status != nil {
				p.Status = *in.Status
			}
			if p.Priority == "" {
				p.Priority = domain.PriorityMedium
			}
			return p
		},
		func(ctx context.Context) (domain.Person, error) {
			return e.Client.CreatePerson(ctx, in)
		})
}

// SetPersonStatus moves a case along its graph. Resolving a case refreshes
// the dashboard and case counters once confirmed.
func (e Engine) SetPersonStatus(ctx context.Context, id string, status domain.PersonStatus) (*mutation.Handle[domain.Person], error) {
	cur, err := cached(ctx, e.Store.Persons, id, e.Client.Person)
	if err != nil {
		return nil, err
	}
	if err := ensurePersonTransition(cur.Status, status); err != nil {
		return nil, err
	}
	h, err := mutation.Submit(ctx, e.Pipeline, e.Store.Persons, id,
		func(_ domain.Ref, p domain.Person) domain.Person {
			p.Status = status
			return p
		},
		func(ctx context.Context) (domain.Person, error) {
			return e.Client.UpdatePerson(ctx, id, domain.PersonInput{Status: &status})
		})
	if err != nil {
		return nil, err
	}
	if status == domain.PersonResolved {
		afterSuccess(e, h, 0, "refresh case counters", func(ctx context.Context) error {
			var g errgroup.Group
			g.Go(func() error { return e.RefreshStats(ctx) })
			g.Go(func() error { return e.RefreshPersonStats(ctx) })
			return g.Wait()
		})
	}
	return h, nil
}

func (e Engine) ResolvePerson(ctx context.Context, id string) (*mutation.Handle[domain.Person], error) {
	return e.SetPersonStatus(ctx, id, domain.PersonResolved)
}

func (e Engine) DeletePerson(ctx context.Context, id string) (*mutation.Handle[struct{}], error) {
	return mutation.Delete(ctx, e.Pipeline, e.Store.Persons, id, func(ctx context.Context) error {
		return e.Client.DeletePerson(ctx, id)
	})
}
