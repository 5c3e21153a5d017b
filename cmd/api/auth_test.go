package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"portal/internal/domain/accesscontrol"
	"portal/internal/domain/credentials"
	"portal/internal/domain/users"
	"portal/internal/mailer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mailField(t *testing.T, m sentMail, field string) string {
	t.Helper()
	raw, err := json.Marshal(m.data)
	require.NoError(t, err)
	var fields map[string]string
	require.NoError(t, json.Unmarshal(raw, &fields))
	return fields[field]
}

func register(t *testing.T, ta *testApp, email string) {
	t.Helper()
	rr := ta.do(t, http.MethodPost, "/v1/authentication/user", "", map[string]any{
		"email":    email,
		"password": "correct-horse",
		"name":     "Ana Lima",
		"company":  "Acme",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func TestRegister_CreatesCoreUserAndMailsCode(t *testing.T) {
	ta := newTestApplication(t, config{})
	register(t, ta, "Ana@Example.com")

	ctx := context.Background()
	u, err := ta.store.Users.GetByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.True(t, u.IsActive)
	assert.False(t, u.IsVerified)

	role, ok, err := accesscontrol.PrimaryRole(ctx, ta.store.AccessControl, u.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, accesscontrol.RoleCore, role)

	a, err := ta.store.AccessControl.GetAssignment(ctx, u.ID, accesscontrol.RoleCore)
	require.NoError(t, err)
	assert.Nil(t, a.AssignedBy)

	m := ta.mail.last(t)
	assert.Equal(t, mailer.VerifyEmailTemplate, m.template)
	assert.Len(t, mailField(t, m, "Code"), 6)

	cred, err := ta.store.Credentials.Get(ctx, u.ID, credentials.PurposeEmailVerification)
	require.NoError(t, err)
	assert.True(t, cred.Matches(mailField(t, m, "Code")))
}

func TestRegister_DuplicateEmail(t *testing.T) {
	ta := newTestApplication(t, config{})
	register(t, ta, "dup@example.com")

	rr := ta.do(t, http.MethodPost, "/v1/authentication/user", "", map[string]any{
		"email": "DUP@example.com", "password": "correct-horse", "name": "Other",
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	body := decodeError(t, rr)
	assert.Equal(t, "validation_error", body.Error)
	assert.Contains(t, body.Details, "email")
	assert.Equal(t, "email: A user with that email already exists.", body.Message)
}

func TestRegister_ValidationAndParseErrors(t *testing.T) {
	ta := newTestApplication(t, config{})

	rr := ta.do(t, http.MethodPost, "/v1/authentication/user", "", map[string]any{
		"email": "not-an-email", "password": "short", "name": "X", "phone": "12",
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeError(t, rr)
	assert.Equal(t, "validation_error", body.Error)
	assert.Contains(t, body.Details, "email")
	assert.Contains(t, body.Details, "password")
	assert.Contains(t, body.Details, "phone")

	rr = ta.do(t, http.MethodPost, "/v1/authentication/user", "", `{"email":`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "error", decodeError(t, rr).Error)
}

func TestRegister_MailFailureRollsBack(t *testing.T) {
	ta := newTestApplication(t, config{})
	ta.mail.err = errors.New("smtp: connection refused")

	rr := ta.do(t, http.MethodPost, "/v1/authentication/user", "", map[string]any{
		"email": "gone@example.com", "password": "correct-horse", "name": "Gone",
	})
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decodeError(t, rr)
	assert.Equal(t, "server_error", body.Error)
	assert.NotContains(t, rr.Body.String(), "smtp")

	_, err := ta.store.Users.GetByEmail(context.Background(), "gone@example.com")
	assert.ErrorIs(t, err, users.ErrNotFound)
}

func TestVerifyEmail(t *testing.T) {
	ta := newTestApplication(t, config{})
	register(t, ta, "verify@example.com")
	code := mailField(t, ta.mail.last(t), "Code")

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	rr := ta.do(t, http.MethodPost, "/v1/authentication/verify", "", map[string]string{"email": "verify@example.com", "code": wrong})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeError(t, rr).Details, "code")

	rr = ta.do(t, http.MethodPost, "/v1/authentication/verify", "", map[string]string{"email": "verify@example.com", "code": code})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	u, err := ta.store.Users.GetByEmail(context.Background(), "verify@example.com")
	require.NoError(t, err)
	assert.True(t, u.IsVerified)

	// consumed
	rr = ta.do(t, http.MethodPost, "/v1/authentication/verify", "", map[string]string{"email": "verify@example.com", "code": code})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found", decodeError(t, rr).Error)
}

func TestVerifyEmail_Expired(t *testing.T) {
	ta := newTestApplication(t, config{})
	register(t, ta, "late@example.com")
	code := mailField(t, ta.mail.last(t), "Code")

	ta.clock.Advance(11 * time.Minute)

	rr := ta.do(t, http.MethodPost, "/v1/authentication/verify", "", map[string]string{"email": "late@example.com", "code": code})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeError(t, rr)
	assert.Equal(t, "validation_error", body.Error)
	assert.Equal(t, "code: The verification code has expired.", body.Message)

	rr = ta.do(t, http.MethodPost, "/v1/authentication/verify/resend", "", map[string]string{"email": "late@example.com"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	fresh := mailField(t, ta.mail.last(t), "Code")

	rr = ta.do(t, http.MethodPost, "/v1/authentication/verify", "", map[string]string{"email": "late@example.com", "code": fresh})
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestVerifyEmail_LockedAfterFailedAttempts(t *testing.T) {
	ta := newTestApplication(t, config{})
	register(t, ta, "guess@example.com")
	code := mailField(t, ta.mail.last(t), "Code")

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	for i := 0; i < credentials.MaxAttempts; i++ {
		rr := ta.do(t, http.MethodPost, "/v1/authentication/verify", "", map[string]string{"email": "guess@example.com", "code": wrong})
		require.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "code: Invalid verification code.", decodeError(t, rr).Message)
	}

	// the right code no longer helps
	rr := ta.do(t, http.MethodPost, "/v1/authentication/verify", "", map[string]string{"email": "guess@example.com", "code": code})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "code: Too many failed attempts. Request a new code.", decodeError(t, rr).Message)

	rr = ta.do(t, http.MethodPost, "/v1/authentication/verify/resend", "", map[string]string{"email": "guess@example.com"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	fresh := mailField(t, ta.mail.last(t), "Code")

	rr = ta.do(t, http.MethodPost, "/v1/authentication/verify", "", map[string]string{"email": "guess@example.com", "code": fresh})
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestLoginRefreshAndMe(t *testing.T) {
	ta := newTestApplication(t, config{})
	register(t, ta, "login@example.com")

	rr := ta.do(t, http.MethodPost, "/v1/authentication/token", "", map[string]string{"email": "login@example.com", "password": "wrong-password"})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "authentication_failed", decodeError(t, rr).Error)

	rr = ta.do(t, http.MethodPost, "/v1/authentication/token", "", map[string]string{"email": "login@example.com", "password": "correct-horse"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var tokensResp TokenResponse
	decodeData(t, rr, &tokensResp)
	require.NotEmpty(t, tokensResp.AccessToken)

	rr = ta.do(t, http.MethodGet, "/v1/users/me", "Bearer "+tokensResp.AccessToken, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var me struct {
		User struct {
			Email     string     `json:"email"`
			LastLogin *time.Time `json:"last_login"`
		} `json:"user"`
		Roles       []string `json:"roles"`
		PrimaryRole *string  `json:"primary_role"`
		Profile     struct {
			Name string `json:"name"`
		} `json:"profile"`
	}
	decodeData(t, rr, &me)
	assert.Equal(t, "login@example.com", me.User.Email)
	assert.NotNil(t, me.User.LastLogin)
	assert.Equal(t, []string{"CORE"}, me.Roles)
	require.NotNil(t, me.PrimaryRole)
	assert.Equal(t, "CORE", *me.PrimaryRole)
	assert.Equal(t, "Ana Lima", me.Profile.Name)

	rr = ta.do(t, http.MethodPost, "/v1/authentication/refresh", "", map[string]string{"refresh_token": tokensResp.RefreshToken})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var rotated TokenResponse
	decodeData(t, rr, &rotated)
	assert.NotEqual(t, tokensResp.RefreshToken, rotated.RefreshToken)

	// the old refresh token was replaced
	rr = ta.do(t, http.MethodPost, "/v1/authentication/refresh", "", map[string]string{"refresh_token": tokensResp.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ta.do(t, http.MethodPost, "/v1/users/logout", "Bearer "+rotated.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ta.do(t, http.MethodPost, "/v1/authentication/refresh", "", map[string]string{"refresh_token": rotated.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestUpdateProfile_CannotTouchPrivilege(t *testing.T) {
	ta := newTestApplication(t, config{})
	u := ta.seedUser(t, "self@example.com", "password123", accesscontrol.RoleClient)
	authz := ta.bearer(t, u.ID)

	rr := ta.do(t, http.MethodPatch, "/v1/users/me/profile", authz, map[string]string{"name": "Me", "role": "ADMIN"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "error", decodeError(t, rr).Error)

	roles, err := ta.store.AccessControl.ListRoles(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, []accesscontrol.Role{accesscontrol.RoleClient}, roles)

	rr = ta.do(t, http.MethodPatch, "/v1/users/me/profile", authz, map[string]string{"phone": "abc"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeError(t, rr).Details, "phone")

	rr = ta.do(t, http.MethodPatch, "/v1/users/me/profile", authz, map[string]string{"name": "Me", "phone": "+1 415-555-0100"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	p, err := ta.store.Profiles.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Me", p.Name)
}
