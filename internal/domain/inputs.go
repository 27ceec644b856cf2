package domain

// Request payloads shared by the backend client and the mock backend.

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

type ProfileInput struct {
	Name   *string `json:"name,omitempty"`
	Phone  *string `json:"phone,omitempty"`
	Status *string `json:"status,omitempty"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type IncidentInput struct {
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Location    string          `json:"location,omitempty"`
	Priority    Priority        `json:"priority,omitempty"`
	Status      *IncidentStatus `json:"status,omitempty"`
}

type ReportInput struct {
	Title   string        `json:"title,omitempty"`
	Content string        `json:"content,omitempty"`
	Images  []string      `json:"images,omitempty"`
	Status  *ReportStatus `json:"status,omitempty"`
}

type PersonInput struct {
	FirstName        string        `json:"first_name,omitempty"`
	LastName         string        `json:"last_name,omitempty"`
	Priority         Priority      `json:"priority,omitempty"`
	CaseNumber       string        `json:"case_number,omitempty"`
	Description      string        `json:"description,omitempty"`
	LastSeenLocation string        `json:"last_seen_location,omitempty"`
	Status           *PersonStatus `json:"status,omitempty"`
}

// VacationDecision is the body of the admin approve endpoint. Action is
// "approve" or "reject".
type VacationDecision struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

type MessageInput struct {
	RecipientID string `json:"recipient_id,omitempty"`
	Channel     string `json:"channel,omitempty"`
	Content     string `json:"content"`
}
