package accesscontrol

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrDuplicateRole = errors.New("user already holds this role")
	ErrRoleNotFound  = errors.New("role not found for user")
	ErrUnknownRole   = errors.New("unknown role")

	QueryTimeoutDuration = time.Second * 5
)

// Role is a privilege tier. The string values are part of the wire contract.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleCore   Role = "CORE"
	RoleClient Role = "CLIENT"
	RoleGuest  Role = "GUEST"
)

// Hierarchy lists every role from most to least privileged.
var Hierarchy = []Role{RoleAdmin, RoleCore, RoleClient, RoleGuest}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	return r.Rank() > 0
}

// Rank is 4 for ADMIN down to 1 for GUEST, and 0 for anything else.
func (r Role) Rank() int {
	for i, h := range Hierarchy {
		if r == h {
			return len(Hierarchy) - i
		}
	}
	return 0
}

// AtLeast reports whether r is floor or a more privileged role.
func (r Role) AtLeast(floor Role) bool {
	return r.Valid() && r.Rank() >= floor.Rank()
}

func (r Role) String() string { return string(r) }

// RoleAssignment is one row of the role ledger. AssignedBy is nil for system
// assignments and after the assigning user was deleted.
type RoleAssignment struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Role       Role      `json:"role"`
	AssignedBy *int64    `json:"assigned_by"`
	AssignedAt time.Time `json:"assigned_at"`
}
