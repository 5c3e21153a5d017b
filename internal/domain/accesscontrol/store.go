package accesscontrol

import (
	"context"
	"fmt"

	"portal/internal/infra/dbx"
)

// RoleView is the read side of the ledger the resolver depends on.
type RoleView interface {
	HasRole(ctx context.Context, userID int64, role Role) (bool, error)
}

// Store is the role ledger. Assign and Revoke are the only ways privilege
// changes.
type Store interface {
	RoleView
	Assign(ctx context.Context, userID int64, role Role, assignedBy *int64) (*RoleAssignment, error)
	Revoke(ctx context.Context, userID int64, role Role) error
	ListRoles(ctx context.Context, userID int64) ([]Role, error)
	ListAssignments(ctx context.Context, userID int64) ([]RoleAssignment, error)
	GetAssignment(ctx context.Context, userID int64, role Role) (*RoleAssignment, error)
	// RolesFor returns the roles of every listed user in one read. Users
	// without roles are absent from the map.
	RolesFor(ctx context.Context, userIDs []int64) (map[int64][]Role, error)
	// DetachUser applies the ledger side of deleting userID: rows about the
	// user go away, rows the user assigned keep existing without an assigner.
	DetachUser(ctx context.Context, userID int64) error
}

type Repository struct {
	db dbx.Querier
}

func NewRepository(db dbx.Querier) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Assign(ctx context.Context, userID int64, role Role, assignedBy *int64) (*RoleAssignment, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	query := `
        INSERT INTO user_roles (user_id, role, assigned_by)
        VALUES ($1, $2, $3)
        RETURNING id, assigned_at
    `

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	a := &RoleAssignment{UserID: userID, Role: role, AssignedBy: assignedBy}
	err := r.db.QueryRow(ctx, query, userID, string(role), assignedBy).Scan(&a.ID, &a.AssignedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, "user_roles_user_id_role_key") {
			return nil, ErrDuplicateRole
		}
		return nil, fmt.Errorf("assign role: %w", err)
	}
	return a, nil
}

func (r *Repository) Revoke(ctx context.Context, userID int64, role Role) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	result, err := r.db.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role = $2`, userID, string(role))
	if err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrRoleNotFound
	}
	return nil
}

func (r *Repository) HasRole(ctx context.Context, userID int64, role Role) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)`
	err := r.db.QueryRow(ctx, query, userID, string(role)).Scan(&exists)
	return exists, err
}

func (r *Repository) ListRoles(ctx context.Context, userID int64) ([]Role, error) {
	assignments, err := r.ListAssignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	roles := make([]Role, len(assignments))
	for i, a := range assignments {
		roles[i] = a.Role
	}
	return roles, nil
}

func (r *Repository) RolesFor(ctx context.Context, userIDs []int64) (map[int64][]Role, error) {
	out := make(map[int64][]Role, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	query := `
        SELECT user_id, role
        FROM user_roles
        WHERE user_id = ANY($1)
    `

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := r.db.Query(ctx, query, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			userID int64
			role   string
		)
		if err := rows.Scan(&userID, &role); err != nil {
			return nil, err
		}
		out[userID] = append(out[userID], Role(role))
	}
	return out, rows.Err()
}

func (r *Repository) ListAssignments(ctx context.Context, userID int64) ([]RoleAssignment, error) {
	query := `
        SELECT id, user_id, role, assigned_by, assigned_at
        FROM user_roles
        WHERE user_id = $1
    `

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RoleAssignment
	for rows.Next() {
		var a RoleAssignment
		var role string
		if err := rows.Scan(&a.ID, &a.UserID, &role, &a.AssignedBy, &a.AssignedAt); err != nil {
			return nil, err
		}
		a.Role = Role(role)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	SortByHierarchy(out)
	return out, nil
}

func (r *Repository) GetAssignment(ctx context.Context, userID int64, role Role) (*RoleAssignment, error) {
	query := `
        SELECT id, user_id, role, assigned_by, assigned_at
        FROM user_roles
        WHERE user_id = $1 AND role = $2
    `

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var a RoleAssignment
	var tag string
	err := r.db.QueryRow(ctx, query, userID, string(role)).Scan(&a.ID, &a.UserID, &tag, &a.AssignedBy, &a.AssignedAt)
	if err != nil {
		if dbx.IsNoRows(err) {
			return nil, ErrRoleNotFound
		}
		return nil, err
	}
	a.Role = Role(tag)
	return &a, nil
}

func (r *Repository) DetachUser(ctx context.Context, userID int64) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	if _, err := r.db.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete subject roles: %w", err)
	}
	if _, err := r.db.Exec(ctx, `UPDATE user_roles SET assigned_by = NULL WHERE assigned_by = $1`, userID); err != nil {
		return fmt.Errorf("clear assigner: %w", err)
	}
	return nil
}

var (
	_ Store = (*Repository)(nil)
	_ Store = (*MemoryStore)(nil)
)
