package main

import (
	"errors"
	"net/http"

	"portal/internal/domain/accesscontrol"
	"portal/internal/domain/adminview"
	"portal/internal/domain/users"
	"portal/internal/helpers"
	"portal/internal/params"
)

type adminUserList struct {
	Users      []adminview.UserDTO `json:"users"`
	Pagination params.Pagination   `json:"pagination"`
}

func (app *application) adminListUsersHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page := params.ParsePagination(r.URL.Query())

	list, total, err := app.store.Users.List(ctx, page.Limit, page.Offset)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	ids := make([]int64, len(list))
	for i, u := range list {
		ids[i] = u.ID
	}

	profilesByUser, err := app.store.Profiles.GetMany(ctx, ids)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	rolesByUser, err := app.store.AccessControl.RolesFor(ctx, ids)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	out := adminUserList{Users: make([]adminview.UserDTO, 0, len(list))}
	for _, u := range list {
		role, hasRole := accesscontrol.Highest(rolesByUser[u.ID])
		out.Users = append(out.Users, helpers.ToAdminUserDTO(u, profilesByUser[u.ID], role, hasRole))
	}

	page.ComputeMeta(total)
	out.Pagination = page

	if err := app.jsonResponse(w, http.StatusOK, out); err != nil {
		app.internalServerError(w, r, err)
	}
}

// adminDeleteUserHandler removes a user and everything that hangs off it in
// one unit of work. Assignments the user made for others are kept with the
// assigner cleared.
func (app *application) adminDeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	subject, ok := app.targetUser(w, r)
	if !ok {
		return
	}

	actor := getUserFromContext(r)
	if actor.ID == subject.ID {
		app.forbiddenResponse(w, r, "You cannot delete your own account.")
		return
	}

	if err := app.store.DeleteUser(r.Context(), subject.ID); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			app.notFoundResponse(w, r, "User not found.", err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	app.logger.Infow("user deleted",
		"actor_id", actor.ID,
		"subject_id", subject.ID,
		"ip", helpers.ClientIP(r),
		"user_agent", helpers.UserAgent(r),
	)

	w.WriteHeader(http.StatusNoContent)
}
