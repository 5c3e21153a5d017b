package accesscontrol

import (
	"context"
	"sort"
)

// PrimaryRole walks Hierarchy from ADMIN down and returns the first role the
// user holds. ok is false when the user holds none, which callers must treat
// as least privileged rather than as a failure. Nothing is cached: every call
// reads the ledger.
func PrimaryRole(ctx context.Context, view RoleView, userID int64) (Role, bool, error) {
	for _, r := range Hierarchy {
		has, err := view.HasRole(ctx, userID, r)
		if err != nil {
			return "", false, err
		}
		if has {
			return r, true, nil
		}
	}
	return "", false, nil
}

// Highest picks the most privileged role in roles.
func Highest(roles []Role) (Role, bool) {
	var best Role
	for _, r := range roles {
		if r.Rank() > best.Rank() {
			best = r
		}
	}
	return best, best.Valid()
}

// SortByHierarchy orders assignments from most to least privileged.
func SortByHierarchy(a []RoleAssignment) {
	sort.SliceStable(a, func(i, j int) bool { return a[i].Role.Rank() > a[j].Role.Rank() })
}
