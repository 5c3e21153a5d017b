package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"portal/internal/domain/accesscontrol"
	"portal/internal/domain/credentials"
	"portal/internal/domain/profiles"
	"portal/internal/domain/storage"
	"portal/internal/domain/users"
	"portal/internal/helpers"
	"portal/internal/mailer"
)

type CreateClientPayload struct {
	Email   string `json:"email" validate:"required,email,max=255"`
	Name    string `json:"name" validate:"required,max=100"`
	Company string `json:"company" validate:"omitempty,max=100"`
	Phone   string `json:"phone" validate:"omitempty,phone"`
}

type clientResponse struct {
	User       *users.User       `json:"user"`
	Profile    *profiles.Profile `json:"profile"`
	AccessCode string            `json:"access_code"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

// createClientHandler provisions a CLIENT account owned by the caller. The
// account has no password until the mailed access code is redeemed.
func (app *application) createClientHandler(w http.ResponseWriter, r *http.Request) {
	var payload CreateClientPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.validationErrorResponse(w, r, err)
		return
	}

	actor := getUserFromContext(r)
	ctx := r.Context()

	code, err := app.tokens.AccessCode(0)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	expiresAt := app.tokens.AccessExpiry(app.config.mail.accessCodeExp)

	client := &users.User{Email: payload.Email, IsActive: true}
	profile := &profiles.Profile{
		Name:    strings.TrimSpace(payload.Name),
		Company: strings.TrimSpace(payload.Company),
		Phone:   payload.Phone,
	}

	err = app.store.WithTx(ctx, func(tx *storage.Container) error {
		if err := tx.Users.Create(ctx, client); err != nil {
			return err
		}
		profile.UserID = client.ID
		if err := tx.Profiles.Create(ctx, profile); err != nil {
			return err
		}
		if _, err := tx.AccessControl.Assign(ctx, client.ID, accesscontrol.RoleClient, &actor.ID); err != nil {
			return err
		}
		return tx.Credentials.Put(ctx, &credentials.Credential{
			UserID:    client.ID,
			Purpose:   credentials.PurposeClientAccess,
			TokenHash: credentials.HashToken(code),
			ExpiresAt: expiresAt,
		})
	})
	if err != nil {
		if errors.Is(err, users.ErrDuplicateEmail) {
			app.fieldErrorResponse(w, r, "email", "A user with that email already exists.")
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	if err := app.sendClientInvitation(actor.Email, profile.Name, client.Email, code, expiresAt); err != nil {
		app.logger.Errorw("error sending client invitation", "error", err)

		// rollback provisioning if email fails (SAGA pattern)
		if err := app.store.DeleteUser(ctx, client.ID); err != nil {
			app.logger.Errorw("error deleting user", "error", err)
		}

		app.internalServerError(w, r, err)
		return
	}

	app.logger.Infow("client provisioned",
		"actor_id", actor.ID,
		"subject_id", client.ID,
		"role", accesscontrol.RoleClient,
		"ip", helpers.ClientIP(r),
		"user_agent", helpers.UserAgent(r),
	)

	if err := app.jsonResponse(w, http.StatusCreated, clientResponse{
		User:       client,
		Profile:    profile,
		AccessCode: code,
		ExpiresAt:  expiresAt,
	}); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) sendClientInvitation(invitedBy, name, email, code string, expiresAt time.Time) error {
	vars := struct {
		Username  string
		InvitedBy string
		Code      string
		LoginURL  string
		ExpiresAt string
	}{
		Username:  name,
		InvitedBy: invitedBy,
		Code:      code,
		LoginURL:  app.config.frontendURL + "/access",
		ExpiresAt: expiresAt.Format(time.RFC1123),
	}
	return app.mailer.Send(mailer.ClientInvitationTemplate, name, email, vars)
}

type accessCodeResponse struct {
	AccessCode string    `json:"access_code"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// reissueAccessCodeHandler replaces a client's access code, clearing any
// failed attempts. Only the provisioning account or an admin may do this;
// anyone else sees not_found.
func (app *application) reissueAccessCodeHandler(w http.ResponseWriter, r *http.Request) {
	client, ok := app.targetUser(w, r)
	if !ok {
		return
	}

	actor := getUserFromContext(r)
	ctx := r.Context()

	assignment, err := app.store.AccessControl.GetAssignment(ctx, client.ID, accesscontrol.RoleClient)
	if err != nil {
		if errors.Is(err, accesscontrol.ErrRoleNotFound) {
			app.notFoundResponse(w, r, "Client not found.", err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	role, _ := getPrimaryRoleFromContext(r)
	ownsClient := assignment.AssignedBy != nil && *assignment.AssignedBy == actor.ID
	if !ownsClient && !role.AtLeast(accesscontrol.RoleAdmin) {
		app.notFoundResponse(w, r, "Client not found.", fmt.Errorf("user %d did not provision client %d", actor.ID, client.ID))
		return
	}

	code, err := app.tokens.AccessCode(0)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	expiresAt := app.tokens.AccessExpiry(app.config.mail.accessCodeExp)

	err = app.store.Credentials.Put(ctx, &credentials.Credential{
		UserID:    client.ID,
		Purpose:   credentials.PurposeClientAccess,
		TokenHash: credentials.HashToken(code),
		ExpiresAt: expiresAt,
	})
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	name := client.Email
	if p, err := app.store.Profiles.Get(ctx, client.ID); err == nil && p.Name != "" {
		name = p.Name
	}
	if err := app.sendClientInvitation(actor.Email, name, client.Email, code, expiresAt); err != nil {
		app.logger.Errorw("error sending client invitation", "error", err)
		app.internalServerError(w, r, err)
		return
	}

	app.logger.Infow("client access code reissued",
		"actor_id", actor.ID,
		"subject_id", client.ID,
		"ip", helpers.ClientIP(r),
		"user_agent", helpers.UserAgent(r),
	)

	if err := app.jsonResponse(w, http.StatusOK, accessCodeResponse{AccessCode: code, ExpiresAt: expiresAt}); err != nil {
		app.internalServerError(w, r, err)
	}
}
