package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"portal/internal/domain/accesscontrol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (ta *testApp) doWithCookies(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	rr := httptest.NewRecorder()
	ta.mux.ServeHTTP(rr, req)
	return rr
}

func cookieNamed(t *testing.T, rr *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func TestWebSession_LoginSetsCookies(t *testing.T) {
	ta := newTestApplication(t, config{cookieDomain: "portal.test"})
	u := ta.seedUser(t, "web@example.com", "correct-horse", accesscontrol.RoleCore)

	rr := ta.doWithCookies(t, http.MethodPost, "/v1/authentication/web/token", map[string]string{
		"email": "web@example.com", "password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var session SessionResponse
	decodeData(t, rr, &session)
	require.NotNil(t, session.PrimaryRole)
	assert.Equal(t, "CORE", *session.PrimaryRole)

	access := cookieNamed(t, rr, accessCookie)
	refresh := cookieNamed(t, rr, refreshCookie)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, "portal.test", access.Domain)
	assert.Equal(t, refreshPath, refresh.Path)
	assert.False(t, access.Secure)

	// the access cookie authenticates without an Authorization header
	rr = ta.doWithCookies(t, http.MethodGet, "/v1/authentication/session", nil, access)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	decodeData(t, rr, &session)
	assert.NotZero(t, session.ExpiresAt)

	// role changes show up on the next request
	_, err := ta.store.AccessControl.Assign(context.Background(), u.ID, accesscontrol.RoleAdmin, nil)
	require.NoError(t, err)
	rr = ta.doWithCookies(t, http.MethodGet, "/v1/authentication/session", nil, access)
	require.Equal(t, http.StatusOK, rr.Code)
	decodeData(t, rr, &session)
	assert.Equal(t, "ADMIN", *session.PrimaryRole)
}

func TestWebSession_NoRoleIsForbidden(t *testing.T) {
	ta := newTestApplication(t, config{})
	ta.seedUser(t, "norole@example.com", "correct-horse")

	rr := ta.doWithCookies(t, http.MethodPost, "/v1/authentication/web/token", map[string]string{
		"email": "norole@example.com", "password": "correct-horse",
	})
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "permission_denied", decodeError(t, rr).Error)
	assert.Empty(t, rr.Result().Cookies())
}

func TestWebSession_RefreshAndLogout(t *testing.T) {
	ta := newTestApplication(t, config{})
	ta.seedUser(t, "rot@example.com", "correct-horse", accesscontrol.RoleClient)

	rr := ta.doWithCookies(t, http.MethodPost, "/v1/authentication/web/token", map[string]string{
		"email": "rot@example.com", "password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	access := cookieNamed(t, rr, accessCookie)
	refresh := cookieNamed(t, rr, refreshCookie)

	rr = ta.doWithCookies(t, http.MethodPost, "/v1/authentication/web/refresh", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "not_authenticated", decodeError(t, rr).Error)

	rr = ta.doWithCookies(t, http.MethodPost, "/v1/authentication/web/refresh", nil, refresh)
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())
	newRefresh := cookieNamed(t, rr, refreshCookie)
	assert.NotEqual(t, refresh.Value, newRefresh.Value)

	// the rotated-out refresh token no longer works
	rr = ta.doWithCookies(t, http.MethodPost, "/v1/authentication/web/refresh", nil, refresh)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ta.doWithCookies(t, http.MethodPost, "/v1/users/web/logout", nil, access)
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, -1, cookieNamed(t, rr, accessCookie).MaxAge)
	assert.Equal(t, -1, cookieNamed(t, rr, refreshCookie).MaxAge)

	rr = ta.doWithCookies(t, http.MethodPost, "/v1/authentication/web/refresh", nil, newRefresh)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestWebSession_HeaderWinsOverCookie(t *testing.T) {
	ta := newTestApplication(t, config{})
	u := ta.seedUser(t, "hdr@example.com", "correct-horse", accesscontrol.RoleCore)

	req := httptest.NewRequest(http.MethodGet, "/v1/users/me", nil)
	req.Header.Set("Authorization", "Token abc")
	req.AddCookie(&http.Cookie{Name: accessCookie, Value: ta.bearer(t, u.ID)[len("Bearer "):]})

	rr := httptest.NewRecorder()
	ta.mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "not_authenticated", decodeError(t, rr).Error)
}
