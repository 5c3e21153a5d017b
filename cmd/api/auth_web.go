package main

import (
	"net/http"
	"strconv"

	"portal/internal/domain/accesscontrol"
)

const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
	refreshPath   = "/v1/authentication/web"
)

// setAuthCookies sets access + refresh tokens as HttpOnly cookies.
// Web browsers store/send these automatically; JS cannot read them (HttpOnly).
func (app *application) setAuthCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	secure := app.config.env == "production"

	http.SetCookie(w, &http.Cookie{
		Name:     accessCookie,
		Value:    accessToken,
		Path:     "/",
		Domain:   app.config.cookieDomain,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(app.config.auth.token.accessTokenExp.Seconds()),
	})

	// refresh token only travels to the web auth endpoints
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    refreshToken,
		Path:     refreshPath,
		Domain:   app.config.cookieDomain,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(app.config.auth.token.refreshTokenExp.Seconds()),
	})
}

func (app *application) clearAuthCookies(w http.ResponseWriter) {
	expire := func(name, path string) {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     path,
			Domain:   app.config.cookieDomain,
			HttpOnly: true,
			Secure:   app.config.env == "production",
			SameSite: http.SameSiteLaxMode,
			MaxAge:   -1,
		})
	}

	expire(accessCookie, "/")
	expire(refreshCookie, refreshPath)
}

type SessionResponse struct {
	UserID      string  `json:"user_id"`
	PrimaryRole *string `json:"primary_role"`
	ExpiresAt   int64   `json:"expires_at,omitempty"`
}

func (app *application) sessionFor(r *http.Request, userID int64) (SessionResponse, error) {
	resp := SessionResponse{UserID: strconv.FormatInt(userID, 10)}

	role, ok, err := accesscontrol.PrimaryRole(r.Context(), app.store.AccessControl, userID)
	if err != nil {
		return resp, err
	}
	if ok {
		s := role.String()
		resp.PrimaryRole = &s
	}
	return resp, nil
}

// createTokenCookieHandler is the browser login: same credential check as the
// token endpoint, but the tokens are set as cookies. Accounts without any
// role cannot open a web session.
func (app *application) createTokenCookieHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := app.passwordLogin(w, r)
	if !ok {
		return
	}

	session, err := app.sessionFor(r, user.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	if session.PrimaryRole == nil {
		app.forbiddenResponse(w, r, "This account has no portal access.")
		return
	}

	accessToken, refreshToken, err := app.startSession(r.Context(), user.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	app.setAuthCookies(w, accessToken, refreshToken)

	if err := app.jsonResponse(w, http.StatusOK, session); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) refreshTokenCookieHandler(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(refreshCookie)
	if err != nil || c.Value == "" {
		app.notAuthenticatedResponse(w, r)
		return
	}

	user, ok := app.refreshSubject(w, r, c.Value)
	if !ok {
		return
	}

	accessToken, refreshToken, err := app.startSession(r.Context(), user.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	app.setAuthCookies(w, accessToken, refreshToken)

	w.WriteHeader(http.StatusNoContent)
}

func (app *application) logoutCookieHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	if err := app.store.Users.DeleteRefreshToken(r.Context(), user.ID); err != nil {
		app.logger.Warnw("failed to delete refresh token on logout", "user_id", user.ID, "error", err)
	}

	// Always clear cookies
	app.clearAuthCookies(w)

	w.WriteHeader(http.StatusNoContent)
}

// sessionHandler reports the cookie session. The role is resolved from the
// ledger, not from the token.
func (app *application) sessionHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	session, err := app.sessionFor(r, user.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if c, err := r.Cookie(accessCookie); err == nil {
		if tok, err := app.authenticator.ValidateAccessToken(c.Value); err == nil {
			if exp, err := tok.Claims.GetExpirationTime(); err == nil && exp != nil {
				session.ExpiresAt = exp.Unix()
			}
		}
	}

	if err := app.jsonResponse(w, http.StatusOK, session); err != nil {
		app.internalServerError(w, r, err)
	}
}

// bearerOrCookie returns the access token from the Authorization header or,
// when there is no header, from the access cookie.
func bearerOrCookie(r *http.Request) (header string, fromCookie bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		return h, false
	}
	if c, err := r.Cookie(accessCookie); err == nil && c.Value != "" {
		return "Bearer " + c.Value, true
	}
	return "", false
}
