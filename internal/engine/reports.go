package engine

import (
	"context"
	"strings"

	"fieldline/internal/domain"
	"fieldline/internal/mutation"
)

func (e Engine) CreateReport(ctx context.Context, in domain.ReportInput) (*mutation.Handle[domain.Report], error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, FieldError{Field: "title"}
	}
	u, err := e.user()
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()
	return mutation.Submit(ctx, e.Pipeline, e.Store.Reports, "",
		func(ref domain.Ref, _ domain.Report) domain.Report {
			r := domain.Report{
				ID:         ref.ID,
				Title:      in.Title,
				Content:    in.Content,
				Status:     domain.ReportDraft,
				Images:     in.Images,
				AuthorID:   u.ID,
				AuthorName: u.DisplayName(),
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if in.Status != nil {
				r.Status = *in.Status
			}
			return r
		},
		func(ctx context.Context) (domain.Report, error) {
			return e.Client.CreateReport(ctx, in)
		})
}

// EditReport changes the content of a report. A status carried by in must be
// a forward move.
func (e Engine) EditReport(ctx context.Context, id string, in domain.ReportInput) (*mutation.Handle[domain.Report], error) {
	cur, err := cached(ctx, e.Store.Reports, id, e.Client.Report)
	if err != nil {
		return nil, err
	}
	if in.Status != nil && *in.Status != cur.Status {
		if err := ensureReportTransition(cur.Status, *in.Status); err != nil {
			return nil, err
		}
	}
	now := e.now().UTC()
	return mutation.Submit(ctx, e.Pipeline, e.Store.Reports, id,
		func(_ domain.Ref, r domain.Report) domain.Report {
			if in.Title != "" {
				r.Title = in.Title
			}
			if in.Content != "" {
				r.Content = in.Content
			}
			if in.Images != nil {
				r.Images = in.Images
			}
			if in.Status != nil {
				r.Status = *in.Status
			}
			r.UpdatedAt = now
			return r
		},
		func(ctx context.Context) (domain.Report, error) {
			return e.Client.UpdateReport(ctx, id, in)
		})
}

func (e Engine) SetReportStatus(ctx context.Context, id string, status domain.ReportStatus) (*mutation.Handle[domain.Report], error) {
	cur, err := cached(ctx, e.Store.Reports, id, e.Client.Report)
	if err != nil {
		return nil, err
	}
	if err := ensureReportTransition(cur.Status, status); err != nil {
		return nil, err
	}
	return e.EditReport(ctx, id, domain.ReportInput{Status: &status})
}

func (e Engine) DeleteReport(ctx context.Context, id string) (*mutation.Handle[struct{}], error) {
	return mutation.Delete(ctx, e.Pipeline, e.Store.Reports, id, func(ctx context.Context) error {
		return e.Client.DeleteReport(ctx, id)
	})
}
