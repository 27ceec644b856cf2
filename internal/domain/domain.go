package domain

import (
	"strings"
	"time"
)

type User struct {
	ID       string     `json:"id"`
	Email    string     `json:"email"`
	Username string     `json:"username"`
	Name     string     `json:"name,omitempty"`
	Role     Role       `json:"role"`
	Status   string     `json:"status,omitempty"`
	Phone    string     `json:"phone,omitempty"`
	LastSeen *time.Time `json:"last_seen,omitempty" format:"date-time"`
}

// DisplayName prefers the full name and falls back to the username.
func (u User) DisplayName() string {
	if strings.TrimSpace(u.Name) != "" {
		return u.Name
	}
	return u.Username
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// SessionToken is the live bearer credential together with its owner.
type SessionToken struct {
	Value     string     `json:"token"`
	User      User       `json:"user"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the token carries an expiry that lies before now.
func (t SessionToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

type Incident struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Location       string         `json:"location,omitempty"`
	Status         IncidentStatus `json:"status"`
	Priority       Priority       `json:"priority"`
	AssignedTo     string         `json:"assigned_to,omitempty"`
	AssignedToName string         `json:"assigned_to_name,omitempty"`
	AssignedAt     *time.Time     `json:"assigned_at,omitempty" format:"date-time"`
	ReportedBy     string         `json:"reported_by,omitempty"`
	CreatedAt      time.Time      `json:"created_at" format:"date-time"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty" format:"date-time"`
}

type Report struct {
	ID         string       `json:"id"`
	Title      string       `json:"title"`
	Content    string       `json:"content"`
	Status     ReportStatus `json:"status"`
	Images     []string     `json:"images,omitempty"`
	AuthorID   string       `json:"author_id,omitempty"`
	AuthorName string       `json:"author_name,omitempty"`
	CreatedAt  time.Time    `json:"created_at" format:"date-time"`
	UpdatedAt  time.Time    `json:"updated_at" format:"date-time"`
}

type Person struct {
	ID               string       `json:"id"`
	FirstName        string       `json:"first_name"`
	LastName         string       `json:"last_name"`
	Status           PersonStatus `json:"status"`
	Priority         Priority     `json:"priority,omitempty"`
	CaseNumber       string       `json:"case_number,omitempty"`
	Description      string       `json:"description,omitempty"`
	LastSeenLocation string       `json:"last_seen_location,omitempty"`
	CreatedAt        time.Time    `json:"created_at" format:"date-time"`
}

func (p Person) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

type VacationRequest struct {
	ID             string         `json:"id"`
	RequesterID    string         `json:"requester_id"`
	RequesterName  string         `json:"requester_name,omitempty"`
	StartDate      string         `json:"start_date" format:"date"`
	EndDate        string         `json:"end_date" format:"date"`
	Reason         string         `json:"reason,omitempty"`
	Status         VacationStatus `json:"status"`
	DecisionReason string         `json:"decision_reason,omitempty"`
	DecidedAt      *time.Time     `json:"decided_at,omitempty" format:"date-time"`
}

// ChatMessage is either addressed to a single recipient or posted to a
// broadcast channel.
type ChatMessage struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	SenderName  string    `json:"sender_name,omitempty"`
	RecipientID string    `json:"recipient_id,omitempty"`
	Channel     string    `json:"channel,omitempty"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at" format:"date-time"`
}

type Stats struct {
	TotalIncidents      int `json:"total_incidents"`
	OpenIncidents       int `json:"open_incidents"`
	InProgressIncidents int `json:"in_progress_incidents"`
	CompletedIncidents  int `json:"completed_incidents"`
	TotalReports        int `json:"total_reports"`
	TotalUsers          int `json:"total_users"`
	OnlineUsers         int `json:"online_users"`
	PendingVacations    int `json:"pending_vacations"`
}

type PersonStats struct {
	Total    int `json:"total"`
	Missing  int `json:"missing"`
	Wanted   int `json:"wanted"`
	Resolved int `json:"resolved"`
}

// Roster groups team members by their duty status.
type Roster map[string][]User

// Users flattens the roster, stamping each user with the status it was
// listed under.
func (r Roster) Users() []User {
	var out []User
	for status, users := range r {
		for _, u := range users {
			if u.Status == "" {
				u.Status = status
			}
			out = append(out, u)
		}
	}
	return out
}

// Credentials is what the client persists between launches.
type Credentials struct {
	Token   string    `json:"token"`
	User    User      `json:"user"`
	SavedAt time.Time `json:"saved_at"`
}

// Event is a sync journal entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id,omitempty"`
	Payload    string `json:"payload_json"`
}
