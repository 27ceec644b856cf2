package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"fieldline/internal/domain"
)

// Recovery is the outcome of the single-shot 401 handler.
type Recovery int

const (
	// RecoveryLogout fails the request; the session has ended.
	RecoveryLogout Recovery = iota
	// RecoveryRetry re-issues the request once.
	RecoveryRetry
	// RecoveryFail fails the request and keeps the session, for when the
	// token could not be checked.
	RecoveryFail
)

// Request describes the call that hit a 401. Retried is set on the second
// attempt so the handler can tell a repeat failure from a first one.
type Request struct {
	Method  string
	Path    string
	Retried bool
}

// Recoverer decides whether a request rejected with 401 may be re-issued.
type Recoverer interface {
	Recover(ctx context.Context, req Request) Recovery
}

// Client talks to the field operations REST backend.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *log.Logger

	mu        sync.RWMutex
	token     string
	recoverer Recoverer
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 12 * time.Second,
	}
}

// SetToken installs the default bearer authorization for all requests. An
// empty token removes it.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetRecoverer registers the 401 handler, normally the session manager.
func (c *Client) SetRecoverer(r Recoverer) {
	c.mu.Lock()
	c.recoverer = r
	c.mu.Unlock()
}

func (c *Client) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

// Auth

func (c *Client) Login(ctx context.Context, email, password string) (domain.AuthResponse, error) {
	var resp domain.AuthResponse
	err := c.call(ctx, Request{Method: http.MethodPost, Path: "api/auth/login"}, domain.LoginInput{Email: email, Password: password}, &resp, false)
	return resp, err
}

func (c *Client) Register(ctx context.Context, in domain.RegisterInput) (domain.AuthResponse, error) {
	var resp domain.AuthResponse
	err := c.call(ctx, Request{Method: http.MethodPost, Path: "api/auth/register"}, in, &resp, false)
	return resp, err
}

// Me validates the current token. It never triggers 401 recovery since it is
// the call recovery itself relies on.
func (c *Client) Me(ctx context.Context) (domain.User, error) {
	var resp domain.User
	err := c.call(ctx, Request{Method: http.MethodGet, Path: "api/auth/me"}, nil, &resp, false)
	return resp, err
}

func (c *Client) UpdateProfile(ctx context.Context, in domain.ProfileInput) (domain.User, error) {
	var resp domain.User
	err := c.do(ctx, http.MethodPut, "api/auth/profile", in, &resp)
	return resp, err
}

// Incidents

func (c *Client) Incidents(ctx context.Context) ([]domain.Incident, error) {
	var resp []domain.Incident
	err := c.do(ctx, http.MethodGet, "api/incidents", nil, &resp)
	return resp, err
}

func (c *Client) Incident(ctx context.Context, id string) (domain.Incident, error) {
	var resp domain.Incident
	err := c.do(ctx, http.MethodGet, entityPath("api/incidents", id), nil, &resp)
	return resp, err
}

func (c *Client) CreateIncident(ctx context.Context, in domain.IncidentInput) (domain.Incident, error) {
	var resp domain.Incident
	err := c.do(ctx, http.MethodPost, "api/incidents", in, &resp)
	return resp, err
}

func (c *Client) UpdateIncident(ctx context.Context, id string, in domain.IncidentInput) (domain.Incident, error) {
	var resp domain.Incident
	err := c.do(ctx, http.MethodPut, entityPath("api/incidents", id), in, &resp)
	return resp, err
}

func (c *Client) DeleteIncident(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, entityPath("api/incidents", id), nil, nil)
}

func (c *Client) CompleteIncident(ctx context.Context, id string) (domain.Incident, error) {
	var resp domain.Incident
	err := c.do(ctx, http.MethodPut, entityPath("api/incidents", id)+"/complete", nil, &resp)
	return resp, err
}

// AssignIncident assigns the incident to the authenticated user.
func (c *Client) AssignIncident(ctx context.Context, id string) (domain.Incident, error) {
	var resp domain.Incident
	err := c.do(ctx, http.MethodPut, entityPath("api/incidents", id)+"/assign", nil, &resp)
	return resp, err
}

// Reports

func (c *Client) Reports(ctx context.Context) ([]domain.Report, error) {
	var resp []domain.Report
	err := c.do(ctx, http.MethodGet, "api/reports", nil, &resp)
	return resp, err
}

func (c *Client) Report(ctx context.Context, id string) (domain.Report, error) {
	var resp domain.Report
	err := c.do(ctx, http.MethodGet, entityPath("api/reports", id), nil, &resp)
	return resp, err
}

func (c *Client) CreateReport(ctx context.Context, in domain.ReportInput) (domain.Report, error) {
	var resp domain.Report
	err := c.do(ctx, http.MethodPost, "api/reports", in, &resp)
	return resp, err
}

func (c *Client) UpdateReport(ctx context.Context, id string, in domain.ReportInput) (domain.Report, error) {
	var resp domain.Report
	err := c.do(ctx, http.MethodPut, entityPath("api/reports", id), in, &resp)
	return resp, err
}

func (c *Client) DeleteReport(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, entityPath("api/reports", id), nil, nil)
}

// Persons

func (c *Client) Persons(ctx context.Context) ([]domain.Person, error) {
	var resp []domain.Person
	err := c.do(ctx, http.MethodGet, "api/persons", nil, &resp)
	return resp, err
}

func (c *Client) Person(ctx context.Context, id string) (domain.Person, error) {
	var resp domain.Person
	err := c.do(ctx, http.MethodGet, entityPath("api/persons", id), nil, &resp)
	return resp, err
}

func (c *Client) CreatePerson(ctx context.Context, in domain.PersonInput) (domain.Person, error) {
	var resp domain.Person
	err := c.do(ctx, http.MethodPost, "api/persons", in, &resp)
	return resp, err
}

func (c *Client) UpdatePerson(ctx context.Context, id string, in domain.PersonInput) (domain.Person, error) {
	var resp domain.Person
	err := c.do(ctx, http.MethodPut, entityPath("api/persons", id), in, &resp)
	return resp, err
}

func (c *Client) DeletePerson(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, entityPath("api/persons", id), nil, nil)
}

func (c *Client) PersonStats(ctx context.Context) (domain.PersonStats, error) {
	var resp domain.PersonStats
	err := c.do(ctx, http.MethodGet, "api/persons/stats/overview", nil, &resp)
	return resp, err
}

// Vacations

// MyVacations lists the authenticated user's own requests.
func (c *Client) MyVacations(ctx context.Context) ([]domain.VacationRequest, error) {
	var resp []domain.VacationRequest
	err := c.do(ctx, http.MethodGet, "api/vacations", nil, &resp)
	return resp, err
}

// AdminVacations lists every request; admin only.
func (c *Client) AdminVacations(ctx context.Context) ([]domain.VacationRequest, error) {
	var resp []domain.VacationRequest
	err := c.do(ctx, http.MethodGet, "api/admin/vacations", nil, &resp)
	return resp, err
}

func (c *Client) DecideVacation(ctx context.Context, id string, decision domain.VacationDecision) (domain.VacationRequest, error) {
	var resp domain.VacationRequest
	err := c.do(ctx, http.MethodPut, entityPath("api/admin/vacations", id)+"/approve", decision, &resp)
	return resp, err
}

// Messages

// ChannelMessages lists broadcast messages of one channel.
func (c *Client) ChannelMessages(ctx context.Context, channel string) ([]domain.ChatMessage, error) {
	var resp []domain.ChatMessage
	endpoint := "api/messages"
	if channel != "" {
		endpoint += "?channel=" + url.QueryEscape(channel)
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// PrivateMessages lists the conversation between the authenticated user and
// peerID.
func (c *Client) PrivateMessages(ctx context.Context, peerID string) ([]domain.ChatMessage, error) {
	var resp []domain.ChatMessage
	endpoint := "api/messages/private?user_id=" + url.QueryEscape(peerID)
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) SendMessage(ctx context.Context, in domain.MessageInput) (domain.ChatMessage, error) {
	var resp domain.ChatMessage
	err := c.do(ctx, http.MethodPost, "api/messages", in, &resp)
	return resp, err
}

func (c *Client) DeleteMessage(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, entityPath("api/messages", id), nil, nil)
}

// Users and stats

func (c *Client) UsersByStatus(ctx context.Context) (domain.Roster, error) {
	var resp domain.Roster
	err := c.do(ctx, http.MethodGet, "api/users/by-status", nil, &resp)
	return resp, err
}

func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "api/users/heartbeat", nil, nil)
}

func (c *Client) AdminStats(ctx context.Context) (domain.Stats, error) {
	var resp domain.Stats
	err := c.do(ctx, http.MethodGet, "api/admin/stats", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	return c.call(ctx, Request{Method: method, Path: endpoint}, body, out, true)
}

// call performs req and, when recoverable, routes a 401 through the
// registered Recoverer at most once per request.
func (c *Client) call(ctx context.Context, req Request, body any, out any, recoverable bool) error {
	err := c.roundTrip(ctx, req.Method, req.Path, body, out)
	if err == nil || !recoverable || !errors.Is(err, ErrUnauthorized) {
		return err
	}
	c.mu.RLock()
	rec := c.recoverer
	c.mu.RUnlock()
	if rec == nil {
		return err
	}
	c.logger().Printf("backend: %s /%s unauthorized (retried=%t)", req.Method, req.Path, req.Retried)
	if rec.Recover(ctx, req) == RecoveryRetry && !req.Retried {
		req.Retried = true
		return c.call(ctx, req, body, out, recoverable)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return classifyTransport(err)
		}
		return fmt.Errorf("decode %s /%s: %w", method, endpoint, err)
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return c.HTTPClient
}

func entityPath(collection, id string) string {
	return fmt.Sprintf("%s/%s", collection, url.PathEscape(id))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
