package models

import (
	"time"

	"github.com/google/uuid"
)

// Project roles, resolved from project_members.
type Role string

const (
	RoleOwner        Role = "owner"
	RoleAdmin        Role = "admin"
	RoleCollaborator Role = "collaborator"
	RoleReader       Role = "reader"
	RoleNone         Role = ""
)

// CanApproveRequests reports whether the role may approve, reject and
// final-review regeneration requests.
func (r Role) CanApproveRequests() bool {
	return r == RoleOwner || r == RoleAdmin
}

// CanRequestRegeneration reports whether the role may file regeneration
// requests. Admins regenerate directly and must not self-approve, so they
// do not hold this capability.
func (r Role) CanRequestRegeneration() bool {
	return r == RoleCollaborator
}

func (r Role) IsMember() bool {
	return r != RoleNone
}

type ProjectMember struct {
	ProjectID uuid.UUID
	UserID    uuid.UUID
	Role      Role
	CreatedAt time.Time
}
