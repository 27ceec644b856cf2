package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"fieldline/internal/domain"
)

// Config for the mock backend.
type Config struct {
	JWTSecret    string
	TokenTTL     time.Duration
	PasswordCost int
	Logger       *log.Logger
	Now          func() time.Time
}

// Server is an in-memory implementation of the field operations REST API.
// It backs the test suites and `fieldline mock-backend`.
type Server struct {
	cfg     Config
	store   *store
	handler http.Handler
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"incident not found"`
	Details map[string]any `json:"details,omitempty"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

const defaultChannel = "general"

// onlineWindow is how recent a heartbeat must be for a user to count as online.
const onlineWindow = 2 * time.Minute

// New builds the mock backend.
func New(cfg Config) (*Server, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("jwt secret required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.PasswordCost == 0 {
		cfg.PasswordCost = bcrypt.DefaultCost
	}
	s := &Server{cfg: cfg, store: newStore()}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// Decode and schema failures are plain bad requests for the client.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(s.faultMiddleware)
	router.Use(s.authMiddleware)
	hcfg := huma.DefaultConfig("Field Operations API (mock)", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, "/api")

	registerHealth(group)
	registerAuth(group, s)
	registerIncidents(group, s)
	registerReports(group, s)
	registerPersons(group, s)
	registerVacations(group, s)
	registerMessages(group, s)
	registerUsers(group, s)
	s.handler = router
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) now() time.Time {
	if s.cfg.Now != nil {
		return s.cfg.Now()
	}
	return time.Now()
}

func (s *Server) logger() *log.Logger {
	if s.cfg.Logger != nil {
		return s.cfg.Logger
	}
	return log.Default()
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func notFound(kind string) huma.StatusError {
	return newAPIError(http.StatusNotFound, "not_found", kind+" not found", nil)
}

func requireAdmin(ctx context.Context) (Principal, huma.StatusError) {
	p, err := principalFromContext(ctx)
	if err != nil {
		return p, err
	}
	if !p.IsAdmin() {
		return p, newAPIError(http.StatusForbidden, "forbidden", "admin role required", nil)
	}
	return p, nil
}

// Seeding and inspection helpers.

// SeedUser registers an account directly.
func (s *Server) SeedUser(email, password, name string, role domain.Role) (domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.PasswordCost)
	if err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		ID:       newID(),
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Username: strings.Split(email, "@")[0],
		Name:     name,
		Role:     role,
		Status:   "Im Dienst",
	}
	if !s.store.addUser(u, hash) {
		return domain.User{}, fmt.Errorf("email %s already registered", email)
	}
	return u, nil
}

// IssueToken mints a bearer token for an existing user.
func (s *Server) IssueToken(userID string) (string, error) {
	u, ok := s.store.user(userID)
	if !ok {
		return "", fmt.Errorf("user %s not found", userID)
	}
	return s.signToken(u)
}

// Revoke makes token fail authentication from now on.
func (s *Server) Revoke(token string) { s.store.revoke(token) }

// FailNext makes the next request to method+path answer with status.
func (s *Server) FailNext(method, path string, status int) {
	s.store.addFault(routeKey(method, path), fault{status: status})
}

// DelayNext holds the next request to method+path for d before serving it.
func (s *Server) DelayNext(method, path string, d time.Duration) {
	s.store.addFault(routeKey(method, path), fault{delay: d})
}

// Requests returns how many requests reached method+path.
func (s *Server) Requests(method, path string) int {
	return s.store.requestCount(routeKey(method, path))
}

func (s *Server) SeedIncident(inc domain.Incident) domain.Incident {
	if inc.ID == "" {
		inc.ID = newID()
	}
	if inc.Status == "" {
		inc.Status = domain.IncidentOpen
	}
	if inc.Priority == "" {
		inc.Priority = domain.PriorityMedium
	}
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = s.now().UTC()
	}
	putEntity(s.store, s.store.incidents, inc.ID, inc)
	return inc
}

func (s *Server) Incident(id string) (domain.Incident, bool) {
	return getEntity(s.store, s.store.incidents, id)
}

func (s *Server) SeedReport(r domain.Report) domain.Report {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.Status == "" {
		r.Status = domain.ReportDraft
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
		r.UpdatedAt = r.CreatedAt
	}
	putEntity(s.store, s.store.reports, r.ID, r)
	return r
}

func (s *Server) SeedPerson(p domain.Person) domain.Person {
	if p.ID == "" {
		p.ID = newID()
	}
	if p.Status == "" {
		p.Status = domain.PersonMissing
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	putEntity(s.store, s.store.persons, p.ID, p)
	return p
}

func (s *Server) SeedVacation(v domain.VacationRequest) domain.VacationRequest {
	if v.ID == "" {
		v.ID = newID()
	}
	if v.Status == "" {
		v.Status = domain.VacationPending
	}
	putEntity(s.store, s.store.vacations, v.ID, v)
	return v
}

func (s *Server) Vacation(id string) (domain.VacationRequest, bool) {
	return getEntity(s.store, s.store.vacations, id)
}

func (s *Server) SeedMessage(m domain.ChatMessage) domain.ChatMessage {
	if m.ID == "" {
		m.ID = newID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now().UTC()
	}
	putEntity(s.store, s.store.messages, m.ID, m)
	return m
}

// Messages returns every stored message, oldest first.
func (s *Server) Messages() []domain.ChatMessage {
	return listEntities(s.store, s.store.messages, nil, func(a, b domain.ChatMessage) bool {
		return a.CreatedAt.Before(b.CreatedAt)
	})
}
