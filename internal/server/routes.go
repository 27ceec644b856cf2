package server

import (
	"context"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/crypto/bcrypt"

	"fieldline/internal/domain"
)

type body[T any] struct {
	Body T `json:"body"`
}

func reply[T any](v T) *body[T] { return &body[T]{Body: v} }

type idPath struct {
	ID string `path:"id"`
}

var writeErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
}

func badRequest(msg string) huma.StatusError {
	return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
}

func conflict(msg string) huma.StatusError {
	return newAPIError(http.StatusConflict, "conflict", msg, nil)
}

func (s *Server) currentUser(ctx context.Context) (domain.User, huma.StatusError) {
	p, err := principalFromContext(ctx)
	if err != nil {
		return domain.User{}, err
	}
	u, ok := s.store.user(p.UserID)
	if !ok {
		return domain.User{}, newAPIError(http.StatusUnauthorized, "unauthorized", "unknown user", nil)
	}
	return u, nil
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*body[map[string]string], error) {
		return reply(map[string]string{"status": "ok"}), nil
	})
}

func registerAuth(api huma.API, s *Server) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a token",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *body[domain.LoginInput]) (*body[domain.AuthResponse], error) {
		rec, ok := s.store.userByEmail(input.Body.Email)
		if !ok || bcrypt.CompareHashAndPassword(rec.passHash, []byte(input.Body.Password)) != nil {
			return nil, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid email or password", nil)
		}
		token, err := s.signToken(rec.user)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "", err.Error(), nil)
		}
		return reply(domain.AuthResponse{Token: token, User: rec.user}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Summary:       "Create an account",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *body[domain.RegisterInput]) (*body[domain.AuthResponse], error) {
		in := input.Body
		if _, err := mail.ParseAddress(in.Email); err != nil {
			return nil, badRequest("valid email is required")
		}
		if len(in.Password) < 6 {
			return nil, badRequest("password must have at least 6 characters")
		}
		if strings.TrimSpace(in.Username) == "" {
			return nil, badRequest("username is required")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.PasswordCost)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "", err.Error(), nil)
		}
		u := domain.User{
			ID:       newID(),
			Email:    strings.ToLower(strings.TrimSpace(in.Email)),
			Username: strings.TrimSpace(in.Username),
			Name:     in.Name,
			Phone:    in.Phone,
			Role:     domain.RoleUser,
			Status:   "Im Dienst",
		}
		if !s.store.addUser(u, hash) {
			return nil, conflict("email already registered")
		}
		token, err := s.signToken(u)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "", err.Error(), nil)
		}
		return reply(domain.AuthResponse{Token: token, User: u}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/auth/me",
		Summary:     "Current user",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*body[domain.User], error) {
		u, err := s.currentUser(ctx)
		if err != nil {
			return nil, err
		}
		return reply(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-profile",
		Method:      http.MethodPut,
		Path:        "/auth/profile",
		Summary:     "Update the current user's profile",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *body[domain.ProfileInput]) (*body[domain.User], error) {
		u, err := s.currentUser(ctx)
		if err != nil {
			return nil, err
		}
		in := input.Body
		if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
			return nil, badRequest("name must not be empty")
		}
		updated, _ := s.store.updateUser(u.ID, func(u *domain.User) {
			if in.Name != nil {
				u.Name = strings.TrimSpace(*in.Name)
			}
			if in.Phone != nil {
				u.Phone = strings.TrimSpace(*in.Phone)
			}
			if in.Status != nil {
				u.Status = strings.TrimSpace(*in.Status)
			}
		})
		return reply(updated), nil
	})
}

func registerIncidents(api huma.API, s *Server) {
	huma.Register(api, huma.Operation{
		OperationID: "list-incidents",
		Method:      http.MethodGet,
		Path:        "/incidents",
		Summary:     "List incidents, newest first",
	}, func(ctx context.Context, _ *struct{}) (*body[[]domain.Incident], error) {
		return reply(listEntities(s.store, s.store.incidents, nil, func(a, b domain.Incident) bool {
			return a.CreatedAt.After(b.CreatedAt)
		})), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-incident",
		Method:      http.MethodGet,
		Path:        "/incidents/{id}",
		Summary:     "Get incident",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*body[domain.Incident], error) {
		inc, ok := getEntity(s.store, s.store.incidents, input.ID)
		if !ok {
			return nil, notFound("incident")
		}
		return reply(inc), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-incident",
		Method:        http.MethodPost,
		Path:          "/incidents",
		Summary:       "Report an incident",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *body[domain.IncidentInput]) (*body[domain.Incident], error) {
		u, err := s.currentUser(ctx)
		if err != nil {
			return nil, err
		}
		in := input.Body
		if strings.TrimSpace(in.Title) == "" {
			return nil, badRequest("title is required")
		}
		inc := domain.Incident{
			ID:          newID(),
			Title:       strings.TrimSpace(in.Title),
			Description: in.Description,
			Location:    in.Location,
			Status:      domain.IncidentOpen,
			Priority:    in.Priority,
			ReportedBy:  u.ID,
			CreatedAt:   s.now().UTC(),
		}
		if inc.Priority == "" {
			inc.Priority = domain.PriorityMedium
		}
		putEntity(s.store, s.store.incidents, inc.ID, inc)
		return reply(inc), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-incident",
		Method:      http.MethodPut,
		Path:        "/incidents/{id}",
		Summary:     "Update incident",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body domain.IncidentInput `json:"body"`
	}) (*body[domain.Incident], error) {
		u, authErr := s.currentUser(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in := input.Body
		now := s.now().UTC()
		inc, ok, err := updateEntity(s.store, s.store.incidents, input.ID, func(inc *domain.Incident) error {
			if in.Title != "" {
				inc.Title = in.Title
			}
			if in.Description != "" {
				inc.Description = in.Description
			}
			if in.Location != "" {
				inc.Location = in.Location
			}
			if in.Priority != "" {
				inc.Priority = in.Priority
			}
			if in.Status != nil && *in.Status != inc.Status {
				if inc.Status == domain.IncidentCompleted {
					return conflict("incident already completed")
				}
				inc.Status = *in.Status
				switch inc.Status {
				case domain.IncidentInProgress:
					if inc.AssignedTo == "" {
						assignIncident(inc, u, now)
					}
				case domain.IncidentCompleted:
					inc.CompletedAt = &now
				}
			}
			return nil
		})
		if !ok {
			return nil, notFound("incident")
		}
		if err != nil {
			return nil, err
		}
		return reply(inc), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-incident",
		Method:        http.MethodDelete,
		Path:          "/incidents/{id}",
		Summary:       "Delete incident",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		if !deleteEntity(s.store, s.store.incidents, input.ID) {
			return nil, notFound("incident")
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-incident",
		Method:      http.MethodPut,
		Path:        "/incidents/{id}/complete",
		Summary:     "Complete incident",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *idPath) (*body[domain.Incident], error) {
		now := s.now().UTC()
		inc, ok, err := updateEntity(s.store, s.store.incidents, input.ID, func(inc *domain.Incident) error {
			if inc.Status == domain.IncidentCompleted {
				return conflict("incident already completed")
			}
			inc.Status = domain.IncidentCompleted
			inc.CompletedAt = &now
			return nil
		})
		if !ok {
			return nil, notFound("incident")
		}
		if err != nil {
			return nil, err
		}
		return reply(inc), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-incident",
		Method:      http.MethodPut,
		Path:        "/incidents/{id}/assign",
		Summary:     "Assign incident to the current user",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *idPath) (*body[domain.Incident], error) {
		u, authErr := s.currentUser(ctx)
		if authErr != nil {
			return nil, authErr
		}
		now := s.now().UTC()
		inc, ok, err := updateEntity(s.store, s.store.incidents, input.ID, func(inc *domain.Incident) error {
			if inc.Status == domain.IncidentCompleted {
				return conflict("incident already completed")
			}
			if inc.AssignedTo != "" && inc.AssignedTo != u.ID {
				return conflict("incident already assigned to " + inc.AssignedToName)
			}
			assignIncident(inc, u, now)
			return nil
		})
		if !ok {
			return nil, notFound("incident")
		}
		if err != nil {
			return nil, err
		}
		return reply(inc), nil
	})
}

func assignIncident(inc *domain.Incident, u domain.User, now time.Time) {
	inc.AssignedTo = u.ID
	inc.AssignedToName = u.DisplayName()
	inc.AssignedAt = &now
	inc.Status = domain.IncidentInProgress
}

func registerReports(api huma.API, s *Server) {
	huma.Register(api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/reports",
		Summary:     "List reports, most recently updated first",
	}, func(ctx context.Context, _ *struct{}) (*body[[]domain.Report], error) {
		return reply(listEntities(s.store, s.store.reports, nil, func(a, b domain.Report) bool {
			return a.UpdatedAt.After(b.UpdatedAt)
		})), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/reports/{id}",
		Summary:     "Get report",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*body[domain.Report], error) {
		r, ok := getEntity(s.store, s.store.reports, input.ID)
		if !ok {
			return nil, notFound("report")
		}
		return reply(r), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-report",
		Method:        http.MethodPost,
		Path:          "/reports",
		Summary:       "Create report",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *body[domain.ReportInput]) (*body[domain.Report], error) {
		u, err := s.currentUser(ctx)
		if err != nil {
			return nil, err
		}
		in := input.Body
		if strings.TrimSpace(in.Title) == "" {
			return nil, badRequest("title is required")
		}
		now := s.now().UTC()
		r := domain.Report{
			ID:         newID(),
			Title:      strings.TrimSpace(in.Title),
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
		putEntity(s.store, s.store.reports, r.ID, r)
		return reply(r), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-report",
		Method:      http.MethodPut,
		Path:        "/reports/{id}",
		Summary:     "Update report",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body domain.ReportInput `json:"body"`
	}) (*body[domain.Report], error) {
		in := input.Body
		now := s.now().UTC()
		r, ok, _ := updateEntity(s.store, s.store.reports, input.ID, func(r *domain.Report) error {
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
			return nil
		})
		if !ok {
			return nil, notFound("report")
		}
		return reply(r), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-report",
		Method:        http.MethodDelete,
		Path:          "/reports/{id}",
		Summary:       "Delete report",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		if !deleteEntity(s.store, s.store.reports, input.ID) {
			return nil, notFound("report")
		}
		return &struct{}{}, nil
	})
}

func registerPersons(api huma.API, s *Server) {
	huma.Register(api, huma.Operation{
		OperationID: "list-persons",
		Method:      http.MethodGet,
		Path:        "/persons",
		Summary:     "List missing and wanted persons",
	}, func(ctx context.Context, _ *struct{}) (*body[[]domain.Person], error) {
		return reply(listEntities(s.store, s.store.persons, nil, func(a, b domain.Person) bool {
			return a.CreatedAt.After(b.CreatedAt)
		})), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "person-stats",
		Method:      http.MethodGet,
		Path:        "/persons/stats/overview",
		Summary:     "Person case counters",
	}, func(ctx context.Context, _ *struct{}) (*body[domain.PersonStats], error) {
		var st domain.PersonStats
		for _, p := range listEntities(s.store, s.store.persons, nil, func(a, b domain.Person) bool { return a.ID < b.ID }) {
			st.Total++
			switch p.Status {
			case domain.PersonMissing:
				st.Missing++
			case domain.PersonWanted:
				st.Wanted++
			case domain.PersonResolved:
				st.Resolved++
			}
		}
		return reply(st), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-person",
		Method:      http.MethodGet,
		Path:        "/persons/{id}",
		Summary:     "Get person",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*body[domain.Person], error) {
		p, ok := getEntity(s.store, s.store.persons, input.ID)
		if !ok {
			return nil, notFound("person")
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-person",
		Method:        http.MethodPost,
		Path:          "/persons",
		Summary:       "Open a person case",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *body[domain.PersonInput]) (*body[domain.Person], error) {
		in := input.Body
		if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" {
			return nil, badRequest("first_name and last_name are required")
		}
		p := domain.Person{
			ID:               newID(),
			FirstName:        strings.TrimSpace(in.FirstName),
			LastName:         strings.TrimSpace(in.LastName),
			Status:           domain.PersonMissing,
			Priority:         in.Priority,
			CaseNumber:       in.CaseNumber,
			Description:      in.Description,
			LastSeenLocation: in.LastSeenLocation,
			CreatedAt:        s.now().UTC(),
		}
		if in.Status != nil {
			p.Status = *in.Status
		}
		if p.Priority == "" {
			p.Priority = domain.PriorityMedium
		}
		putEntity(s.store, s.store.persons, p.ID, p)
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-person",
		Method:      http.MethodPut,
		Path:        "/persons/{id}",
		Summary:     "Update person",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body domain.PersonInput `json:"body"`
	}) (*body[domain.Person], error) {
		in := input.Body
		p, ok, err := updateEntity(s.store, s.store.persons, input.ID, func(p *domain.Person) error {
			if in.Status != nil && *in.Status != p.Status {
				if p.Status == domain.PersonResolved {
					return conflict("case already resolved")
				}
				p.Status = *in.Status
			}
			if in.FirstName != "" {
				p.FirstName = in.FirstName
			}
			if in.LastName != "" {
				p.LastName = in.LastName
			}
			if in.Priority != "" {
				p.Priority = in.Priority
			}
			if in.CaseNumber != "" {
				p.CaseNumber = in.CaseNumber
			}
			if in.Description != "" {
				p.Description = in.Description
			}
			if in.LastSeenLocation != "" {
				p.LastSeenLocation = in.LastSeenLocation
			}
			return nil
		})
		if !ok {
			return nil, notFound("person")
		}
		if err != nil {
			return nil, err
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-person",
		Method:        http.MethodDelete,
		Path:          "/persons/{id}",
		Summary:       "Delete person",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		if !deleteEntity(s.store, s.store.persons, input.ID) {
			return nil, notFound("person")
		}
		return &struct{}{}, nil
	})
}

func registerVacations(api huma.API, s *Server) {
	byStart := func(a, b domain.VacationRequest) bool {
		if a.StartDate == b.StartDate {
			return a.ID < b.ID
		}
		return a.StartDate < b.StartDate
	}

	huma.Register(api, huma.Operation{
		OperationID: "my-vacations",
		Method:      http.MethodGet,
		Path:        "/vacations",
		Summary:     "List the current user's vacation requests",
	}, func(ctx context.Context, _ *struct{}) (*body[[]domain.VacationRequest], error) {
		p, err := principalFromContext(ctx)
		if err != nil {
			return nil, err
		}
		mine := func(v domain.VacationRequest) bool { return v.RequesterID == p.UserID }
		return reply(listEntities(s.store, s.store.vacations, mine, byStart)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-vacations",
		Method:      http.MethodGet,
		Path:        "/admin/vacations",
		Summary:     "List all vacation requests",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*body[[]domain.VacationRequest], error) {
		if _, err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		return reply(listEntities(s.store, s.store.vacations, nil, byStart)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decide-vacation",
		Method:      http.MethodPut,
		Path:        "/admin/vacations/{id}/approve",
		Summary:     "Approve or reject a vacation request",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                  `path:"id"`
		Body domain.VacationDecision `json:"body"`
	}) (*body[domain.VacationRequest], error) {
		if _, err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		decision := input.Body
		var target domain.VacationStatus
		switch decision.Action {
		case domain.DecisionApprove:
			target = domain.VacationApproved
		case domain.DecisionReject:
			target = domain.VacationRejected
			if strings.TrimSpace(decision.Reason) == "" {
				return nil, badRequest("reason is required for rejection")
			}
		default:
			return nil, badRequest("action must be approve or reject")
		}
		now := s.now().UTC()
		v, ok, err := updateEntity(s.store, s.store.vacations, input.ID, func(v *domain.VacationRequest) error {
			if v.Status != domain.VacationPending {
				return conflict("request already decided")
			}
			v.Status = target
			v.DecisionReason = strings.TrimSpace(decision.Reason)
			v.DecidedAt = &now
			return nil
		})
		if !ok {
			return nil, notFound("vacation request")
		}
		if err != nil {
			return nil, err
		}
		return reply(v), nil
	})
}

func registerMessages(api huma.API, s *Server) {
	oldestFirst := func(a, b domain.ChatMessage) bool { return a.CreatedAt.Before(b.CreatedAt) }

	huma.Register(api, huma.Operation{
		OperationID: "channel-messages",
		Method:      http.MethodGet,
		Path:        "/messages",
		Summary:     "List broadcast messages of a channel",
	}, func(ctx context.Context, input *struct {
		Channel string `query:"channel"`
	}) (*body[[]domain.ChatMessage], error) {
		channel := strings.TrimSpace(input.Channel)
		if channel == "" {
			channel = defaultChannel
		}
		keep := func(m domain.ChatMessage) bool { return m.RecipientID == "" && m.Channel == channel }
		return reply(listEntities(s.store, s.store.messages, keep, oldestFirst)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "private-messages",
		Method:      http.MethodGet,
		Path:        "/messages/private",
		Summary:     "List the conversation with one user",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		UserID string `query:"user_id" required:"true"`
	}) (*body[[]domain.ChatMessage], error) {
		p, err := principalFromContext(ctx)
		if err != nil {
			return nil, err
		}
		peer := input.UserID
		keep := func(m domain.ChatMessage) bool {
			return (m.SenderID == p.UserID && m.RecipientID == peer) ||
				(m.SenderID == peer && m.RecipientID == p.UserID)
		}
		return reply(listEntities(s.store, s.store.messages, keep, oldestFirst)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "send-message",
		Method:        http.MethodPost,
		Path:          "/messages",
		Summary:       "Send a private or channel message",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *body[domain.MessageInput]) (*body[domain.ChatMessage], error) {
		u, err := s.currentUser(ctx)
		if err != nil {
			return nil, err
		}
		in := input.Body
		if strings.TrimSpace(in.Content) == "" {
			return nil, badRequest("content is required")
		}
		m := domain.ChatMessage{
			ID:         newID(),
			SenderID:   u.ID,
			SenderName: u.DisplayName(),
			Content:    in.Content,
			CreatedAt:  s.now().UTC(),
		}
		switch {
		case in.RecipientID != "":
			if _, ok := s.store.user(in.RecipientID); !ok {
				return nil, notFound("recipient")
			}
			m.RecipientID = in.RecipientID
		case strings.TrimSpace(in.Channel) != "":
			m.Channel = strings.TrimSpace(in.Channel)
		default:
			m.Channel = defaultChannel
		}
		putEntity(s.store, s.store.messages, m.ID, m)
		return reply(m), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-message",
		Method:        http.MethodDelete,
		Path:          "/messages/{id}",
		Summary:       "Delete a message",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		p, err := principalFromContext(ctx)
		if err != nil {
			return nil, err
		}
		m, ok := getEntity(s.store, s.store.messages, input.ID)
		if !ok {
			return nil, notFound("message")
		}
		if m.SenderID != p.UserID && !p.IsAdmin() {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "only the sender may delete a message", nil)
		}
		deleteEntity(s.store, s.store.messages, input.ID)
		return &struct{}{}, nil
	})
}

func registerUsers(api huma.API, s *Server) {
	huma.Register(api, huma.Operation{
		OperationID: "users-by-status",
		Method:      http.MethodGet,
		Path:        "/users/by-status",
		Summary:     "Team roster grouped by duty status",
	}, func(ctx context.Context, _ *struct{}) (*body[domain.Roster], error) {
		return reply(s.store.roster()), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "heartbeat",
		Method:        http.MethodPost,
		Path:          "/users/heartbeat",
		Summary:       "Mark the current user as online",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		p, err := principalFromContext(ctx)
		if err != nil {
			return nil, err
		}
		now := s.now().UTC()
		s.store.updateUser(p.UserID, func(u *domain.User) { u.LastSeen = &now })
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-stats",
		Method:      http.MethodGet,
		Path:        "/admin/stats",
		Summary:     "Dashboard counters",
	}, func(ctx context.Context, _ *struct{}) (*body[domain.Stats], error) {
		now := s.now()
		var st domain.Stats
		st.TotalUsers, st.OnlineUsers = s.store.userCount(func(u domain.User) bool {
			return u.LastSeen != nil && now.Sub(*u.LastSeen) < onlineWindow
		})
		for _, inc := range listEntities(s.store, s.store.incidents, nil, func(a, b domain.Incident) bool { return a.ID < b.ID }) {
			st.TotalIncidents++
			switch inc.Status {
			case domain.IncidentOpen:
				st.OpenIncidents++
			case domain.IncidentInProgress:
				st.InProgressIncidents++
			case domain.IncidentCompleted:
				st.CompletedIncidents++
			}
		}
		st.TotalReports = len(listEntities(s.store, s.store.reports, nil, func(a, b domain.Report) bool { return a.ID < b.ID }))
		pending := func(v domain.VacationRequest) bool { return v.Status == domain.VacationPending }
		st.PendingVacations = len(listEntities(s.store, s.store.vacations, pending, func(a, b domain.VacationRequest) bool { return a.ID < b.ID }))
		return reply(st), nil
	})
}
