package domain

import (
	"strings"

	"github.com/google/uuid"
)

// TempIDPrefix marks client generated ids in logs and on screen. Code paths
// decide on Ref.Kind, never on the prefix.
const TempIDPrefix = "tmp-"

type RefKind int

const (
	RefConfirmed RefKind = iota
	RefPending
)

func (k RefKind) String() string {
	if k == RefPending {
		return "pending"
	}
	return "confirmed"
}

// Ref identifies an entity that is either awaiting server acknowledgement
// (pending, temp id) or known to the server (confirmed, server id).
type Ref struct {
	Kind RefKind
	ID   string
}

func Pending(tempID string) Ref { return Ref{Kind: RefPending, ID: tempID} }
func Confirmed(id string) Ref { return Ref{Kind: RefConfirmed, ID: id} }
func (r Ref) IsPending() bool { return r.Kind == RefPending }
func (r Ref) String() string { return r.Kind.String() + ":" + r.ID }
func (r Ref) Matches(id string) bool { return r.ID == strings.TrimSpace(id) }

// NewTempID returns a fresh pending ref.
func NewTempID() Ref {
	return Pending(TempIDPrefix + uuid.NewString())
}
