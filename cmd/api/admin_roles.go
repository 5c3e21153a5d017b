package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"portal/internal/domain/accesscontrol"
	"portal/internal/domain/users"
	"portal/internal/helpers"

	"github.com/go-chi/chi/v5"
)

type assignRoleRequest struct {
	Role string `json:"role" validate:"required,role"`
}

// targetUser loads the user named by the {userID} path parameter and writes
// the error response itself when it cannot.
func (app *application) targetUser(w http.ResponseWriter, r *http.Request) (*users.User, bool) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		app.notFoundResponse(w, r, "User not found.", fmt.Errorf("invalid userID"))
		return nil, false
	}

	user, err := app.store.Users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			app.notFoundResponse(w, r, "User not found.", err)
			return nil, false
		}
		app.internalServerError(w, r, err)
		return nil, false
	}
	return user, true
}

func (app *application) auditRoleChange(r *http.Request, action string, actorID, subjectID int64, role accesscontrol.Role) {
	app.logger.Infow(action,
		"actor_id", actorID,
		"subject_id", subjectID,
		"role", role,
		"ip", helpers.ClientIP(r),
		"user_agent", helpers.UserAgent(r),
	)
}

// adminAssignUserRoleHandler grants a role with the caller as assigner.
func (app *application) adminAssignUserRoleHandler(w http.ResponseWriter, r *http.Request) {
	subject, ok := app.targetUser(w, r)
	if !ok {
		return
	}

	var in assignRoleRequest
	if err := readJSON(w, r, &in); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(in); err != nil {
		app.validationErrorResponse(w, r, err)
		return
	}

	role, err := accesscontrol.ParseRole(in.Role)
	if err != nil {
		app.fieldErrorResponse(w, r, "role", fmt.Sprintf("%q is not a valid choice.", in.Role))
		return
	}

	actor := getUserFromContext(r)

	assignment, err := app.store.AccessControl.Assign(r.Context(), subject.ID, role, &actor.ID)
	if err != nil {
		switch {
		case errors.Is(err, accesscontrol.ErrDuplicateRole):
			app.fieldErrorResponse(w, r, "role", fmt.Sprintf("User already holds the %s role.", role))
		case errors.Is(err, accesscontrol.ErrUnknownRole):
			app.fieldErrorResponse(w, r, "role", fmt.Sprintf("%q is not a valid choice.", in.Role))
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	app.auditRoleChange(r, "role assigned", actor.ID, subject.ID, role)

	if err := app.jsonResponse(w, http.StatusCreated, assignment); err != nil {
		app.internalServerError(w, r, err)
	}
}

// adminRemoveUserRoleHandler revokes a role. The row is deleted; the audit
// trail is the log line.
func (app *application) adminRemoveUserRoleHandler(w http.ResponseWriter, r *http.Request) {
	subject, ok := app.targetUser(w, r)
	if !ok {
		return
	}

	role, err := accesscontrol.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		app.fieldErrorResponse(w, r, "role", fmt.Sprintf("%q is not a valid choice.", chi.URLParam(r, "role")))
		return
	}

	actor := getUserFromContext(r)

	if err := app.store.AccessControl.Revoke(r.Context(), subject.ID, role); err != nil {
		if errors.Is(err, accesscontrol.ErrRoleNotFound) {
			app.notFoundResponse(w, r, "User does not hold that role.", err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	app.auditRoleChange(r, "role revoked", actor.ID, subject.ID, role)

	if err := app.jsonResponse(w, http.StatusOK, map[string]string{
		"message": "role revoked",
	}); err != nil {
		app.internalServerError(w, r, err)
	}
}

// adminGetUserRolesHandler lists a user's assignments, most privileged first.
func (app *application) adminGetUserRolesHandler(w http.ResponseWriter, r *http.Request) {
	subject, ok := app.targetUser(w, r)
	if !ok {
		return
	}

	assignments, err := app.store.AccessControl.ListAssignments(r.Context(), subject.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, helpers.ToUserRolesDTO(subject.ID, assignments)); err != nil {
		app.internalServerError(w, r, err)
	}
}
