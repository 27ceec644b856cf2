package engine

import (
	"context"
	"strings"

	"fieldline/internal/domain"
	"fieldline/internal/mutation"
)

func (e Engine) CreateIncident(ctx context.Context, in domain.IncidentInput) (*mutation.Handle[domain.Incident], error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, FieldError{Field: "title"}
	}
	u, err := e.user()
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()
	return mutation.Submit(ctx, e.Pipeline, e.Store.Incidents, "",
		func(ref domain.Ref, _ domain.Incident) domain.Incident {
			inc := domain.Incident{
				ID:          ref.ID,
				Title:       in.Title,
				Description: in.Description,
				Location:    in.Location,
				Status:      domain.IncidentOpen,
				Priority:    in.Priority,
				ReportedBy:  u.ID,
				CreatedAt:   now,
			}
			if inc.Priority == "" {
				inc.Priority = domain.PriorityMedium
			}
			return inc
		},
		func(ctx context.Context) (domain.Incident, error) {
			return e.Client.CreateIncident(ctx, in)
		})
}

// AssignIncident takes over the incident for the current user, moving it to
// in_progress.
func (e Engine) AssignIncident(ctx context.Context, id string) (*mutation.Handle[domain.Incident], error) {
	u, err := e.user()
	if err != nil {
		return nil, err
	}
	cur, err := cached(ctx, e.Store.Incidents, id, e.Client.Incident)
	if err != nil {
		return nil, err
	}
	if err := ensureAssignable(cur, u); err != nil {
		return nil, err
	}
	now := e.now().UTC()
	return mutation.Submit(ctx, e.Pipeline, e.Store.Incidents, id,
		func(_ domain.Ref, inc domain.Incident) domain.Incident {
			inc.AssignedTo = u.ID
			inc.AssignedToName = u.DisplayName()
			inc.AssignedAt = &now
			inc.Status = domain.IncidentInProgress
			return inc
		},
		func(ctx context.Context) (domain.Incident, error) {
			return e.Client.AssignIncident(ctx, id)
		})
}

// SetIncidentStatus moves the incident to status through the generic update
// endpoint. Starting work on an unassigned incident assigns it to the current
// user, as the backend does.
func (e Engine) SetIncidentStatus(ctx context.Context, id string, status domain.IncidentStatus) (*mutation.Handle[domain.Incident], error) {
	u, err := e.user()
	if err != nil {
		return nil, err
	}
	cur, err := cached(ctx, e.Store.Incidents, id, e.Client.Incident)
	if err != nil {
		return nil, err
	}
	if err := ensureIncidentTransition(cur.Status, status); err != nil {
		return nil, err
	}
	now := e.now().UTC()
	h, err := mutation.Submit(ctx, e.Pipeline, e.Store.Incidents, id,
		func(_ domain.Ref, inc domain.Incident) domain.Incident {
			inc.Status = status
			switch status {
			case domain.IncidentInProgress:
				if inc.AssignedTo == "" {
					inc.AssignedTo = u.ID
					inc.AssignedToName = u.DisplayName()
					inc.AssignedAt = &now
				}
			case domain.IncidentCompleted:
				inc.CompletedAt = &now
			}
			return inc
		},
		func(ctx context.Context) (domain.Incident, error) {
			return e.Client.UpdateIncident(ctx, id, domain.IncidentInput{Status: &status})
		})
	if err != nil {
		return nil, err
	}
	if status == domain.IncidentCompleted {
		afterSuccess(e, h, 0, "refresh stats", e.RefreshStats)
	}
	return h, nil
}

// CompleteIncident closes the incident and refreshes the dashboard counters
// once the backend confirms.
func (e Engine) CompleteIncident(ctx context.Context, id string) (*mutation.Handle[domain.Incident], error) {
	cur, err := cached(ctx, e.Store.Incidents, id, e.Client.Incident)
	if err != nil {
		return nil, err
	}
	if err := ensureIncidentTransition(cur.Status, domain.IncidentCompleted); err != nil {
		return nil, err
	}
	now := e.now().UTC()
	h, err := mutation.Submit(ctx, e.Pipeline, e.Store.Incidents, id,
		func(_ domain.Ref, inc domain.Incident) domain.Incident {
			inc.Status = domain.IncidentCompleted
			inc.CompletedAt = &now
			return inc
		},
		func(ctx context.Context) (domain.Incident, error) {
			return e.Client.CompleteIncident(ctx, id)
		})
	if err != nil {
		return nil, err
	}
	afterSuccess(e, h, 0, "refresh stats", e.RefreshStats)
	return h, nil
}

func (e Engine) DeleteIncident(ctx context.Context, id string) (*mutation.Handle[struct{}], error) {
	return mutation.Delete(ctx, e.Pipeline, e.Store.Incidents, id, func(ctx context.Context) error {
		return e.Client.DeleteIncident(ctx, id)
	})
}
