package adminview

import "time"

// DTOs shared by admin handlers, kept apart from the stores to avoid import
// cycles.

type UserDTO struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Company     string     `json:"company"`
	IsActive    bool       `json:"is_active"`
	IsVerified  bool       `json:"is_verified"`
	PrimaryRole *string    `json:"primary_role"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLogin   *time.Time `json:"last_login"`
}

type RoleDTO struct {
	Role       string    `json:"role"`
	AssignedBy *int64    `json:"assigned_by"`
	AssignedAt time.Time `json:"assigned_at"`
}

type UserRolesDTO struct {
	UserID      int64     `json:"user_id"`
	PrimaryRole *string   `json:"primary_role"`
	Roles       []RoleDTO `json:"roles"`
}
