package domain

import "time"

type SessionID string
type EmployeeID string

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Actor is the authenticated caller of a session operation.
type Actor struct {
	EmployeeID EmployeeID
	Role       Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanAccess reports whether the actor may read or mutate a session owned by owner.
func (a Actor) CanAccess(owner EmployeeID) bool {
	return a.IsAdmin() || a.EmployeeID == owner
}

// PhaseKind names one half of a lend cycle.
type PhaseKind string

const (
	PhaseHandout  PhaseKind = "handout"
	PhaseHandover PhaseKind = "handover"
)

type Timestamp = time.Time
