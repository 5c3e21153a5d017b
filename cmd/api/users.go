package main

import (
	"errors"
	"net/http"
	"strings"

	"portal/internal/domain/accesscontrol"
	"portal/internal/domain/profiles"
	"portal/internal/domain/users"
)

type meResponse struct {
	User        *users.User       `json:"user"`
	Roles       []string          `json:"roles"`
	PrimaryRole *string           `json:"primary_role"`
	Profile     *profiles.Profile `json:"profile"`
}

// getCurrentUserHandler returns the caller with its roles and profile.
func (app *application) getCurrentUserHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	ctx := r.Context()

	held, err := app.store.AccessControl.ListRoles(ctx, user.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	resp := meResponse{User: user, Roles: make([]string, 0, len(held))}
	for _, role := range accesscontrol.Hierarchy {
		for _, h := range held {
			if h == role {
				resp.Roles = append(resp.Roles, role.String())
			}
		}
	}

	primary, ok, err := accesscontrol.PrimaryRole(ctx, app.store.AccessControl, user.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	if ok {
		s := primary.String()
		resp.PrimaryRole = &s
	}

	profile, err := app.store.Profiles.Get(ctx, user.ID)
	switch {
	case err == nil:
		resp.Profile = profile
	case !errors.Is(err, profiles.ErrNotFound):
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, resp); err != nil {
		app.internalServerError(w, r, err)
	}
}

// UpdateProfilePayload has no privilege fields; unknown keys such as "role"
// are rejected by the decoder.
type UpdateProfilePayload struct {
	Name    *string `json:"name" validate:"omitempty,min=1,max=100"`
	Company *string `json:"company" validate:"omitempty,max=100"`
	Phone   *string `json:"phone" validate:"omitempty,phone"`
}

func (app *application) updateProfileHandler(w http.ResponseWriter, r *http.Request) {
	var payload UpdateProfilePayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.validationErrorResponse(w, r, err)
		return
	}

	user := getUserFromContext(r)
	ctx := r.Context()

	profile, err := app.store.Profiles.Get(ctx, user.ID)
	exists := err == nil
	if err != nil && !errors.Is(err, profiles.ErrNotFound) {
		app.internalServerError(w, r, err)
		return
	}
	if !exists {
		profile = &profiles.Profile{UserID: user.ID}
	}

	if payload.Name != nil {
		profile.Name = strings.TrimSpace(*payload.Name)
	}
	if payload.Company != nil {
		profile.Company = strings.TrimSpace(*payload.Company)
	}
	if payload.Phone != nil {
		profile.Phone = *payload.Phone
	}

	if exists {
		err = app.store.Profiles.Update(ctx, profile)
	} else {
		err = app.store.Profiles.Create(ctx, profile)
	}
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, profile); err != nil {
		app.internalServerError(w, r, err)
	}
}
