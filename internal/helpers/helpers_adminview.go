package helpers

import (
	"portal/internal/domain/accesscontrol"
	"portal/internal/domain/adminview"
	"portal/internal/domain/profiles"
	"portal/internal/domain/users"
)

func rolePtr(r accesscontrol.Role, ok bool) *string {
	if !ok {
		return nil
	}
	s := r.String()
	return &s
}

// ToAdminUserDTO flattens a user, its optional profile and its primary role.
func ToAdminUserDTO(u users.User, p *profiles.Profile, primary accesscontrol.Role, hasRole bool) adminview.UserDTO {
	dto := adminview.UserDTO{
		ID:          u.ID,
		Email:       u.Email,
		IsActive:    u.IsActive,
		IsVerified:  u.IsVerified,
		PrimaryRole: rolePtr(primary, hasRole),
		CreatedAt:   u.CreatedAt,
		LastLogin:   u.LastLogin,
	}
	if p != nil {
		dto.Name = p.Name
		dto.Company = p.Company
	}
	return dto
}

// ToUserRolesDTO orders assignments from most to least privileged; the first
// one is the primary role.
func ToUserRolesDTO(userID int64, assignments []accesscontrol.RoleAssignment) adminview.UserRolesDTO {
	sorted := make([]accesscontrol.RoleAssignment, len(assignments))
	copy(sorted, assignments)
	accesscontrol.SortByHierarchy(sorted)

	out := adminview.UserRolesDTO{UserID: userID, Roles: make([]adminview.RoleDTO, 0, len(sorted))}
	for _, a := range sorted {
		out.Roles = append(out.Roles, adminview.RoleDTO{
			Role:       a.Role.String(),
			AssignedBy: a.AssignedBy,
			AssignedAt: a.AssignedAt,
		})
	}
	if len(sorted) > 0 {
		out.PrimaryRole = rolePtr(sorted[0].Role, true)
	}
	return out
}
