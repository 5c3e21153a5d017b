package main

import (
	"errors"
	"net/http"

	"portal/internal/domain/accesscontrol"
	"portal/internal/domain/profiles"
	"portal/internal/domain/users"
)

type provisioner struct {
	ID      int64  `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Company string `json:"company"`
}

type workspaceResponse struct {
	UserID        int64        `json:"user_id"`
	ProvisionedBy *provisioner `json:"provisioned_by"`
}

// clientWorkspaceHandler reports who provisioned the caller's client
// account. The answer is null for system assignments, for callers that are
// not clients and once the provisioning account was deleted.
func (app *application) clientWorkspaceHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	ctx := r.Context()

	resp := workspaceResponse{UserID: user.ID}

	assignment, err := app.store.AccessControl.GetAssignment(ctx, user.ID, accesscontrol.RoleClient)
	switch {
	case errors.Is(err, accesscontrol.ErrRoleNotFound):
	case err != nil:
		app.internalServerError(w, r, err)
		return
	case assignment.AssignedBy != nil:
		owner, err := app.store.Users.GetByID(ctx, *assignment.AssignedBy)
		if err != nil && !errors.Is(err, users.ErrNotFound) {
			app.internalServerError(w, r, err)
			return
		}
		if owner != nil {
			resp.ProvisionedBy = &provisioner{ID: owner.ID, Email: owner.Email}
			if p, err := app.store.Profiles.Get(ctx, owner.ID); err == nil {
				resp.ProvisionedBy.Name = p.Name
				resp.ProvisionedBy.Company = p.Company
			} else if !errors.Is(err, profiles.ErrNotFound) {
				app.internalServerError(w, r, err)
				return
			}
		}
	}

	if err := app.jsonResponse(w, http.StatusOK, resp); err != nil {
		app.internalServerError(w, r, err)
	}
}
