package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"portal/internal/auth"
	"portal/internal/domain/accesscontrol"
	"portal/internal/domain/credentials"
	"portal/internal/domain/profiles"
	"portal/internal/domain/storage"
	"portal/internal/domain/users"
	"portal/internal/helpers"
	"portal/internal/mailer"
)

type RegisterUserPayload struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required,max=100"`
	Company  string `json:"company" validate:"omitempty,max=100"`
	Phone    string `json:"phone" validate:"omitempty,phone"`
}

type registerResponse struct {
	User        *users.User       `json:"user"`
	Profile     *profiles.Profile `json:"profile"`
	PrimaryRole string            `json:"primary_role"`
}

// registerUserHandler creates an unverified CORE account and mails it a
// verification code.
func (app *application) registerUserHandler(w http.ResponseWriter, r *http.Request) {
	var payload RegisterUserPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.validationErrorResponse(w, r, err)
		return
	}

	user := &users.User{
		Email:    payload.Email,
		IsActive: true,
	}
	// hash the user password.
	if err := user.Password.Set(payload.Password); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	profile := &profiles.Profile{
		Name:    strings.TrimSpace(payload.Name),
		Company: strings.TrimSpace(payload.Company),
		Phone:   payload.Phone,
	}

	otp, err := app.tokens.OTP(0)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	expiresAt := app.tokens.OTPExpiry(app.config.mail.otpExp)

	ctx := r.Context()

	err = app.store.WithTx(ctx, func(tx *storage.Container) error {
		if err := tx.Users.Create(ctx, user); err != nil {
			return err
		}
		profile.UserID = user.ID
		if err := tx.Profiles.Create(ctx, profile); err != nil {
			return err
		}
		if _, err := tx.AccessControl.Assign(ctx, user.ID, accesscontrol.RoleCore, nil); err != nil {
			return err
		}
		return tx.Credentials.Put(ctx, &credentials.Credential{
			UserID:    user.ID,
			Purpose:   credentials.PurposeEmailVerification,
			TokenHash: credentials.HashToken(otp),
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

	if err := app.sendVerificationEmail(user.Email, profile.Name, otp, expiresAt); err != nil {
		app.logger.Errorw("error sending verification email", "error", err)

		// rollback user creation if email fails (SAGA pattern)
		if err := app.store.DeleteUser(ctx, user.ID); err != nil {
			app.logger.Errorw("error deleting user", "error", err)
		}

		app.internalServerError(w, r, err)
		return
	}

	app.logger.Infow("user registered", "user_id", user.ID, "role", accesscontrol.RoleCore)

	if err := app.jsonResponse(w, http.StatusCreated, registerResponse{
		User:        user,
		Profile:     profile,
		PrimaryRole: accesscontrol.RoleCore.String(),
	}); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) sendVerificationEmail(email, name, otp string, expiresAt time.Time) error {
	vars := struct {
		Username  string
		Code      string
		ExpiresAt string
	}{
		Username:  name,
		Code:      otp,
		ExpiresAt: expiresAt.Format(time.RFC1123),
	}
	return app.mailer.Send(mailer.VerifyEmailTemplate, name, email, vars)
}

type CreateUserTokenPayload struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
}

// createTokenHandler logs a user in with email and password.
func (app *application) createTokenHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := app.passwordLogin(w, r)
	if !ok {
		return
	}

	app.issueTokens(w, r, user.ID)
}

// passwordLogin decodes an email and password payload and returns the active
// user it identifies. It writes the error response itself when it fails.
func (app *application) passwordLogin(w http.ResponseWriter, r *http.Request) (*users.User, bool) {
	var payload CreateUserTokenPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return nil, false
	}

	if err := Validate.Struct(payload); err != nil {
		app.validationErrorResponse(w, r, err)
		return nil, false
	}

	user, err := app.store.Users.GetByEmail(r.Context(), payload.Email)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrNotFound):
			app.unauthorizedErrorResponse(w, r, "Invalid email or password.", err)
		default:
			app.internalServerError(w, r, err)
		}
		return nil, false
	}

	if err := user.Password.Compare(payload.Password); err != nil {
		app.unauthorizedErrorResponse(w, r, "Invalid email or password.", err)
		return nil, false
	}

	if !user.IsActive {
		app.unauthorizedErrorResponse(w, r, "User account is disabled.", nil)
		return nil, false
	}

	return user, true
}

// startSession generates a token pair, stores the refresh token and records
// the login.
func (app *application) startSession(ctx context.Context, userID int64) (string, string, error) {
	accessToken, refreshToken, err := app.authenticator.GenerateTokens(userID)
	if err != nil {
		return "", "", err
	}

	if err := app.store.Users.SaveRefreshToken(ctx, userID, refreshToken); err != nil {
		return "", "", err
	}

	if err := app.store.Users.SetLastLogin(ctx, userID, app.tokens.Now()); err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}

func (app *application) issueTokens(w http.ResponseWriter, r *http.Request, userID int64) {
	accessToken, refreshToken, err := app.startSession(r.Context(), userID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	response := TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UserID:       strconv.FormatInt(userID, 10),
	}

	if err := app.jsonResponse(w, http.StatusOK, response); err != nil {
		app.internalServerError(w, r, err)
	}
}

// logoutHandler nullifies the stored refresh token.
func (app *application) logoutHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	if err := app.store.Users.DeleteRefreshToken(r.Context(), user.ID); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type RefreshPayload struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// refreshTokenHandler rotates the token pair against the stored refresh
// token.
func (app *application) refreshTokenHandler(w http.ResponseWriter, r *http.Request) {
	var payload RefreshPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.validationErrorResponse(w, r, err)
		return
	}

	user, ok := app.refreshSubject(w, r, payload.RefreshToken)
	if !ok {
		return
	}

	app.issueTokens(w, r, user.ID)
}

// refreshSubject checks a refresh token against the stored one and returns
// its active user. It writes the error response itself when it fails.
func (app *application) refreshSubject(w http.ResponseWriter, r *http.Request, raw string) (*users.User, bool) {
	token, err := app.authenticator.ValidateRefreshToken(raw)
	if err != nil {
		app.unauthorizedErrorResponse(w, r, "Token is invalid or expired.", err)
		return nil, false
	}

	userID, err := auth.UserID(token)
	if err != nil {
		app.unauthorizedErrorResponse(w, r, "Token is invalid or expired.", err)
		return nil, false
	}

	ctx := r.Context()

	savedToken, err := app.store.Users.GetRefreshToken(ctx, userID)
	if err != nil && !errors.Is(err, users.ErrNotFound) {
		app.internalServerError(w, r, err)
		return nil, false
	}
	if savedToken == "" || subtle.ConstantTimeCompare([]byte(savedToken), []byte(raw)) != 1 {
		app.unauthorizedErrorResponse(w, r, "Token is invalid or expired.", errors.New("refresh token mismatch"))
		return nil, false
	}

	user, err := app.store.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			app.unauthorizedErrorResponse(w, r, "User not found.", err)
			return nil, false
		}
		app.internalServerError(w, r, err)
		return nil, false
	}
	if !user.IsActive {
		app.unauthorizedErrorResponse(w, r, "User account is disabled.", nil)
		return nil, false
	}

	return user, true
}

type VerifyEmailPayload struct {
	Email string `json:"email" validate:"required,email,max=255"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// verifyEmailHandler redeems an email verification code.
func (app *application) verifyEmailHandler(w http.ResponseWriter, r *http.Request) {
	var payload VerifyEmailPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.validationErrorResponse(w, r, err)
		return
	}

	ctx := r.Context()

	user, err := app.store.Users.GetByEmail(ctx, payload.Email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			app.notFoundResponse(w, r, "No account with that email.", err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	cred, err := app.store.Credentials.Get(ctx, user.ID, credentials.PurposeEmailVerification)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			app.notFoundResponse(w, r, "No pending verification for this account.", err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	if app.tokens.IsExpired(&cred.ExpiresAt) {
		app.fieldErrorResponse(w, r, "code", "The verification code has expired.")
		return
	}
	if cred.Locked() {
		app.fieldErrorResponse(w, r, "code", "Too many failed attempts. Request a new code.")
		return
	}
	if !cred.Matches(payload.Code) {
		if !app.recordCredentialFailure(w, r, cred) {
			return
		}
		app.fieldErrorResponse(w, r, "code", "Invalid verification code.")
		return
	}

	err = app.store.WithTx(ctx, func(tx *storage.Container) error {
		if err := tx.Users.MarkVerified(ctx, user.ID); err != nil {
			return err
		}
		return tx.Credentials.Delete(ctx, user.ID, credentials.PurposeEmailVerification)
	})
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, map[string]string{"message": "email verified"}); err != nil {
		app.internalServerError(w, r, err)
	}
}

type ResendVerificationPayload struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

// resendVerificationHandler replaces the pending verification code with a
// fresh one.
func (app *application) resendVerificationHandler(w http.ResponseWriter, r *http.Request) {
	var payload ResendVerificationPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.validationErrorResponse(w, r, err)
		return
	}

	ctx := r.Context()

	user, err := app.store.Users.GetByEmail(ctx, payload.Email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			app.notFoundResponse(w, r, "No account with that email.", err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}
	if user.IsVerified {
		app.fieldErrorResponse(w, r, "email", "This email is already verified.")
		return
	}

	otp, err := app.tokens.OTP(0)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	expiresAt := app.tokens.OTPExpiry(app.config.mail.otpExp)

	if err := app.store.Credentials.Put(ctx, &credentials.Credential{
		UserID:    user.ID,
		Purpose:   credentials.PurposeEmailVerification,
		TokenHash: credentials.HashToken(otp),
		ExpiresAt: expiresAt,
	}); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	name := user.Email
	if p, err := app.store.Profiles.Get(ctx, user.ID); err == nil && p.Name != "" {
		name = p.Name
	}

	if err := app.sendVerificationEmail(user.Email, name, otp, expiresAt); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, map[string]string{"message": "verification code sent"}); err != nil {
		app.internalServerError(w, r, err)
	}
}

type AccessCodePayload struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Code     string `json:"code" validate:"required,len=8,alphanum"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// accessCodeLoginHandler is the first login of a provisioned client: the
// access code is exchanged for a password and a token pair.
func (app *application) accessCodeLoginHandler(w http.ResponseWriter, r *http.Request) {
	var payload AccessCodePayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.validationErrorResponse(w, r, err)
		return
	}

	ctx := r.Context()

	user, err := app.store.Users.GetByEmail(ctx, payload.Email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			app.unauthorizedErrorResponse(w, r, "Invalid email or access code.", err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	cred, err := app.store.Credentials.Get(ctx, user.ID, credentials.PurposeClientAccess)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			app.unauthorizedErrorResponse(w, r, "Invalid email or access code.", err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	if app.tokens.IsExpired(&cred.ExpiresAt) {
		app.fieldErrorResponse(w, r, "code", "The access code has expired. Ask for a new one.")
		return
	}
	if cred.Locked() {
		app.fieldErrorResponse(w, r, "code", "Too many failed attempts. Ask for a new access code.")
		return
	}
	if !cred.Matches(strings.ToUpper(payload.Code)) {
		if !app.recordCredentialFailure(w, r, cred) {
			return
		}
		app.unauthorizedErrorResponse(w, r, "Invalid email or access code.", nil)
		return
	}
	if !user.IsActive {
		app.unauthorizedErrorResponse(w, r, "User account is disabled.", nil)
		return
	}

	if err := user.Password.Set(payload.Password); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	err = app.store.WithTx(ctx, func(tx *storage.Container) error {
		if err := tx.Users.UpdatePassword(ctx, user); err != nil {
			return err
		}
		if err := tx.Users.MarkVerified(ctx, user.ID); err != nil {
			return err
		}
		return tx.Credentials.Delete(ctx, user.ID, credentials.PurposeClientAccess)
	})
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	app.issueTokens(w, r, user.ID)
}

// recordCredentialFailure counts a wrong guess against cred. It reports false
// after writing a response when the count could not be stored.
func (app *application) recordCredentialFailure(w http.ResponseWriter, r *http.Request, cred *credentials.Credential) bool {
	n, err := app.store.Credentials.RecordFailure(r.Context(), cred.UserID, cred.Purpose)
	if err != nil && !errors.Is(err, credentials.ErrNotFound) {
		app.internalServerError(w, r, err)
		return false
	}
	if n == credentials.MaxAttempts {
		app.logger.Warnw("credential locked after failed attempts",
			"user_id", cred.UserID,
			"purpose", cred.Purpose,
			"ip", helpers.ClientIP(r),
		)
	}
	return true
}
