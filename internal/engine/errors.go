package engine

import (
	"errors"
	"fmt"
	"net/http"

	"fieldline/internal/backend"
	"fieldline/internal/mutation"
	"fieldline/internal/session"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrReasonRequired    = errors.New("reason required to reject a request")
	ErrForbidden         = errors.New("forbidden")
	ErrAlreadyAssigned   = errors.New("incident already assigned")
)

// TransitionError names a status change outside the entity's graph.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid %s status transition %s -> %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// AssignedError is returned when an incident belongs to another officer.
type AssignedError struct {
	AssigneeName string
}

func (e *AssignedError) Error() string {
	if e.AssigneeName == "" {
		return ErrAlreadyAssigned.Error()
	}
	return fmt.Sprintf("%s to %s", ErrAlreadyAssigned, e.AssigneeName)
}

func (e *AssignedError) Unwrap() error { return ErrAlreadyAssigned }

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

func (e ForbiddenError) Is(target error) bool { return target == ErrForbidden }

// FieldError reports a missing required input.
type FieldError struct {
	Field string
}

func (e FieldError) Error() string { return e.Field + " is required" }

var statusLabels = map[string]string{
	"open":        "Offen",
	"in_progress": "In Bearbeitung",
	"completed":   "Abgeschlossen",
	"draft":       "Entwurf",
	"archived":    "Archiviert",
	"vermisst":    "Vermisst",
	"gesucht":     "Gesucht",
	"erledigt":    "Erledigt",
	"pending":     "Ausstehend",
	"approved":    "Genehmigt",
	"rejected":    "Abgelehnt",
}

var fieldLabels = map[string]string{
	"title":     "einen Titel",
	"content":   "einen Text",
	"last_name": "einen Nachnamen",
	"peer":      "einen Empfänger",
	"channel":   "einen Kanal",
	"reason":    "einen Grund",
}

// StatusLabel returns the German display name of a status value.
func StatusLabel(status string) string {
	if l, ok := statusLabels[status]; ok {
		return l
	}
	return status
}

// UserMessage turns err into a German message fit for display.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var te *TransitionError
	var ae *AssignedError
	var fe FieldError
	switch {
	case errors.As(err, &te):
		return fmt.Sprintf("Statuswechsel von %q nach %q ist nicht erlaubt.", StatusLabel(te.From), StatusLabel(te.To))
	case errors.As(err, &ae):
		if ae.AssigneeName != "" {
			return fmt.Sprintf("Der Einsatz ist bereits %s zugewiesen.", ae.AssigneeName)
		}
		return "Der Einsatz ist bereits zugewiesen."
	case errors.As(err, &fe):
		if l, ok := fieldLabels[fe.Field]; ok {
			return fmt.Sprintf("Bitte %s angeben.", l)
		}
		return fmt.Sprintf("Pflichtfeld %s fehlt.", fe.Field)
	case errors.Is(err, ErrReasonRequired):
		return "Bitte einen Grund für die Ablehnung angeben."
	case errors.Is(err, ErrForbidden):
		return "Dafür fehlt die Berechtigung."
	case errors.Is(err, mutation.ErrInFlight):
		return "Die letzte Änderung wird noch gespeichert. Bitte kurz warten."
	case errors.Is(err, mutation.ErrNotCached):
		return "Der Eintrag ist nicht geladen. Bitte neu laden."
	case errors.Is(err, session.ErrInvalidCredentials):
		return "E-Mail oder Passwort ist falsch."
	case errors.Is(err, session.ErrLoginInProgress):
		return "Die Anmeldung läuft bereits."
	case errors.Is(err, session.ErrNoSession), errors.Is(err, backend.ErrUnauthorized):
		return "Die Sitzung ist abgelaufen. Bitte erneut anmelden."
	case errors.Is(err, backend.ErrTimeout):
		return "Der Server antwortet nicht. Bitte später erneut versuchen."
	case errors.Is(err, backend.ErrNetworkUnavailable):
		return "Keine Verbindung zum Server. Bitte Netzwerk prüfen."
	}
	switch code := backend.StatusCode(err); {
	case code == http.StatusForbidden:
		return "Dafür fehlt die Berechtigung."
	case code == http.StatusNotFound:
		return "Der Eintrag existiert nicht mehr."
	case code == http.StatusConflict:
		if d := backend.Detail(err); d != "" {
			return d
		}
		return "Der Eintrag wurde zwischenzeitlich geändert."
	case backend.IsValidation(err):
		if d := backend.Detail(err); d != "" {
			return d
		}
		return "Die Eingaben wurden vom Server abgelehnt."
	case code >= 500:
		return "Serverfehler. Bitte später erneut versuchen."
	}
	return "Unerwarteter Fehler: " + err.Error()
}
