package session

import (
	"context"

	"github.com/fundwit/go-commons/types"
)

const (
	RoleManager    = "manager"
	RoleSupervisor = "supervisor"
	RoleWorker     = "worker"
)

var privilegedRoles = map[string]bool{RoleManager: true, RoleSupervisor: true}

// Session is the caller of a domain operation, as described by the identity collaborator.
type Session struct {
	Context  context.Context `json:"-"`
	Token    string          `json:"token"`
	Identity Identity        `json:"identity"`
}

type Identity struct {
	ID     types.ID `json:"id"`
	Name   string   `json:"name"`
	Role   string   `json:"role"`
	Active bool     `json:"active"`
}

func (s *Session) Clone() Session {
	return Session{Context: s.Context, Token: s.Token, Identity: s.Identity}
}

// IsActive reports whether the caller may use the read and task-completion operations.
func (s *Session) IsActive() bool {
	return s != nil && s.Identity.Active
}

// IsPrivileged reports whether the caller may edit templates and rules and initiate transitions.
func (s *Session) IsPrivileged() bool {
	return s.IsActive() && privilegedRoles[s.Identity.Role]
}

func (s *Session) Ctx() context.Context {
	if s == nil || s.Context == nil {
		return context.Background()
	}
	return s.Context
}

// ActorID is the caller id, zero for automated callers.
func (s *Session) ActorID() types.ID {
	if s == nil {
		return 0
	}
	return s.Identity.ID
}

func IsPrivilegedRole(role string) bool {
	return privilegedRoles[role]
}

// System is the session of automated callers; its actor id is zero.
func System(ctx context.Context) *Session {
	return &Session{Context: ctx, Identity: Identity{Name: "automation", Role: RoleManager, Active: true}}
}
