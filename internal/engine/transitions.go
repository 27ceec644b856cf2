package engine

import (
	"fieldline/internal/domain"
)

var incidentTransitions = map[domain.IncidentStatus][]domain.IncidentStatus{
	domain.IncidentOpen:       {domain.IncidentInProgress, domain.IncidentCompleted},
	domain.IncidentInProgress: {domain.IncidentCompleted},
}

var personTransitions = map[domain.PersonStatus][]domain.PersonStatus{
	domain.PersonMissing: {domain.PersonResolved},
	domain.PersonWanted:  {domain.PersonResolved},
}

var vacationTransitions = map[domain.VacationStatus][]domain.VacationStatus{
	domain.VacationPending: {domain.VacationApproved, domain.VacationRejected},
}

// NextIncidentStatuses lists the statuses an incident in from may move to.
func NextIncidentStatuses(from domain.IncidentStatus) []domain.IncidentStatus {
	return append([]domain.IncidentStatus(nil), incidentTransitions[from]...)
}

// NextReportStatuses lists every status further along the report lifecycle
// than from.
func NextReportStatuses(from domain.ReportStatus) []domain.ReportStatus {
	if !from.Valid() {
		return nil
	}
	var out []domain.ReportStatus
	for _, s := range domain.ReportStatuses() {
		if s.Rank() > from.Rank() {
			out = append(out, s)
		}
	}
	return out
}

func NextPersonStatuses(from domain.PersonStatus) []domain.PersonStatus {
	return append([]domain.PersonStatus(nil), personTransitions[from]...)
}

func NextVacationStatuses(from domain.VacationStatus) []domain.VacationStatus {
	return append([]domain.VacationStatus(nil), vacationTransitions[from]...)
}

func ensureIncidentTransition(from, to domain.IncidentStatus) error {
	if allowed(incidentTransitions[from], to) {
		return nil
	}
	return &TransitionError{Entity: "incident", From: string(from), To: string(to)}
}

func ensureReportTransition(from, to domain.ReportStatus) error {
	if from.Valid() && to.Valid() && to.Rank() > from.Rank() {
		return nil
	}
	return &TransitionError{Entity: "report", From: string(from), To: string(to)}
}

func ensurePersonTransition(from, to domain.PersonStatus) error {
	if allowed(personTransitions[from], to) {
		return nil
	}
	return &TransitionError{Entity: "person", From: string(from), To: string(to)}
}

func ensureVacationTransition(from, to domain.VacationStatus) error {
	if allowed(vacationTransitions[from], to) {
		return nil
	}
	return &TransitionError{Entity: "vacation", From: string(from), To: string(to)}
}

// ensureAssignable checks that u may take over inc. Re-assigning an incident
// the user already holds is accepted.
func ensureAssignable(inc domain.Incident, u domain.User) error {
	if inc.AssignedTo != "" && inc.AssignedTo != u.ID {
		return &AssignedError{AssigneeName: inc.AssignedToName}
	}
	if inc.Status == domain.IncidentInProgress {
		return nil
	}
	return ensureIncidentTransition(inc.Status, domain.IncidentInProgress)
}

func allowed[S comparable](targets []S, to S) bool {
	for _, t := range targets {
		if t == to {
			return true
		}
	}
	return false
}
