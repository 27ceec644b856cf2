package engine

import (
	"context"
	"fmt"
	"strings"

	"fieldline/internal/domain"
	"fieldline/internal/mutation"
)

const permDecideVacation = "vacation.decide"

func (e Engine) ApproveVacation(ctx context.Context, id string) (*mutation.Handle[domain.VacationRequest], error) {
	return e.decideVacation(ctx, id, domain.VacationApproved, "")
}

// RejectVacation declines the request; reason is mandatory.
func (e Engine) RejectVacation(ctx context.Context, id, reason string) (*mutation.Handle[domain.VacationRequest], error) {
	return e.decideVacation(ctx, id, domain.VacationRejected, reason)
}

// decideVacation applies an admin decision. The request leaves the pending
// view right away; the admin list is fetched again RefetchDelay after the
// backend confirms.
func (e Engine) decideVacation(ctx context.Context, id string, status domain.VacationStatus, reason string) (*mutation.Handle[domain.VacationRequest], error) {
	u, err := e.user()
	if err != nil {
		return nil, err
	}
	if !u.IsAdmin() {
		return nil, ForbiddenError{Permission: permDecideVacation}
	}
	reason = strings.TrimSpace(reason)
	if status == domain.VacationRejected && reason == "" {
		return nil, ErrReasonRequired
	}
	cur, ok := e.Store.AdminVacations.Get(id)
	if !ok {
		if err := e.RefreshAdminVacations(ctx); err != nil {
			return nil, err
		}
		if cur, ok = e.Store.AdminVacations.Get(id); !ok {
			return nil, fmt.Errorf("vacation %s: %w", id, mutation.ErrNotCached)
		}
	}
	if err := ensureVacationTransition(cur.Value.Status, status); err != nil {
		return nil, err
	}
	decision := domain.VacationDecision{Action: domain.DecisionApprove}
	if status == domain.VacationRejected {
		decision = domain.VacationDecision{Action: domain.DecisionReject, Reason: reason}
	}
	now := e.now().UTC()
	h, err := mutation.Submit(ctx, e.Pipeline, e.Store.AdminVacations, id,
		func(_ domain.Ref, v domain.VacationRequest) domain.VacationRequest {
			v.Status = status
			v.DecisionReason = reason
			v.DecidedAt = &now
			return v
		},
		func(ctx context.Context) (domain.VacationRequest, error) {
			return e.Client.DecideVacation(ctx, id, decision)
		})
	if err != nil {
		return nil, err
	}
	afterSuccess(e, h, e.RefetchDelay, "refetch admin vacations", e.RefreshAdminVacations)
	return h, nil
}
