package domain

import (
	"encoding/json"
	"fmt"
)

type IncidentStatus string

const (
	IncidentOpen       IncidentStatus = "open"
	IncidentInProgress IncidentStatus = "in_progress"
	IncidentCompleted  IncidentStatus = "completed"
)

type ReportStatus string

const (
	ReportDraft      ReportStatus = "draft"
	ReportInProgress ReportStatus = "in_progress"
	ReportCompleted  ReportStatus = "completed"
	ReportArchived   ReportStatus = "archived"
)

// PersonStatus values are the case states used by the field units.
type PersonStatus string

const (
	PersonMissing  PersonStatus = "vermisst"
	PersonWanted   PersonStatus = "gesucht"
	PersonResolved PersonStatus = "erledigt"
)

type VacationStatus string

const (
	VacationPending  VacationStatus = "pending"
	VacationApproved VacationStatus = "approved"
	VacationRejected VacationStatus = "rejected"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

var (
	incidentStatuses = []IncidentStatus{IncidentOpen, IncidentInProgress, IncidentCompleted}
	reportStatuses   = []ReportStatus{ReportDraft, ReportInProgress, ReportCompleted, ReportArchived}
	personStatuses   = []PersonStatus{PersonMissing, PersonWanted, PersonResolved}
	vacationStatuses = []VacationStatus{VacationPending, VacationApproved, VacationRejected}
	priorities       = []Priority{PriorityLow, PriorityMedium, PriorityHigh}
	roles            = []Role{RoleAdmin, RoleUser}
)

func (s IncidentStatus) Valid() bool { return oneOf(s, incidentStatuses) }
func (s ReportStatus) Valid() bool { return oneOf(s, reportStatuses) }
func (s PersonStatus) Valid() bool { return oneOf(s, personStatuses) }
func (s VacationStatus) Valid() bool { return oneOf(s, vacationStatuses) }
func (p Priority) Valid() bool { return oneOf(p, priorities) }
func (r Role) Valid() bool { return oneOf(r, roles) }

// Rank orders report statuses along their lifecycle.
func (s ReportStatus) Rank() int {
	for i, v := range reportStatuses {
		if v == s {
			return i
		}
	}
	return -1
}

func (s *IncidentStatus) UnmarshalJSON(b []byte) error {
	return decodeEnum(b, s, incidentStatuses, "incident status")
}

func (s *ReportStatus) UnmarshalJSON(b []byte) error {
	return decodeEnum(b, s, reportStatuses, "report status")
}

func (s *PersonStatus) UnmarshalJSON(b []byte) error {
	return decodeEnum(b, s, personStatuses, "person status")
}

func (s *VacationStatus) UnmarshalJSON(b []byte) error {
	return decodeEnum(b, s, vacationStatuses, "vacation status")
}

// UnmarshalJSON accepts an empty priority; the backend omits it on legacy rows.
func (p *Priority) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == "" {
		*p = ""
		return nil
	}
	return decodeEnum(b, p, priorities, "priority")
}

// UnmarshalJSON defaults unknown or missing roles to RoleUser.
func (r *Role) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if !Role(raw).Valid() {
		*r = RoleUser
		return nil
	}
	*r = Role(raw)
	return nil
}

func decodeEnum[T ~string](b []byte, dst *T, allowed []T, what string) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if !oneOf(T(raw), allowed) {
		return fmt.Errorf("invalid %s %q", what, raw)
	}
	*dst = T(raw)
	return nil
}

func oneOf[T comparable](v T, allowed []T) bool {
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}

// ReportStatuses lists report statuses in lifecycle order.
func ReportStatuses() []ReportStatus { return append([]ReportStatus(nil), reportStatuses...) }

func IncidentStatuses() []IncidentStatus { return append([]IncidentStatus(nil), incidentStatuses...) }
func PersonStatuses() []PersonStatus { return append([]PersonStatus(nil), personStatuses...) }
