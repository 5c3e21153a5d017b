package main

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"portal/internal/apierror"
	"portal/internal/auth"
	"portal/internal/domain/accesscontrol"
	"portal/internal/domain/users"
	"portal/internal/helpers"

	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey string

const (
	userCtx ctxKey = "user"
	roleCtx ctxKey = "primary_role"
)

func (app *application) BasicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// read the auth header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				app.unauthorizedBasicErrorResponse(w, r, fmt.Errorf("authorization header is missing"))
				return
			}

			// parse it -> get the base64
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Basic" {
				app.unauthorizedBasicErrorResponse(w, r, fmt.Errorf("authorization header is malformed"))
				return
			}

			decoded, err := base64.StdEncoding.DecodeString(parts[1])
			if err != nil {
				app.unauthorizedBasicErrorResponse(w, r, err)
				return
			}

			username := app.config.auth.basic.user
			pass := app.config.auth.basic.pass

			creds := strings.SplitN(string(decoded), ":", 2)
			if username == "" || len(creds) != 2 ||
				subtle.ConstantTimeCompare([]byte(creds[0]), []byte(username)) != 1 ||
				subtle.ConstantTimeCompare([]byte(creds[1]), []byte(pass)) != 1 {
				app.unauthorizedBasicErrorResponse(w, r, fmt.Errorf("invalid credentials"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuthTokenMiddleware resolves the bearer token to an active user. A request
// without bearer credentials is not_authenticated; one with bad credentials
// is authentication_failed.
func (app *application) AuthTokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader, _ := bearerOrCookie(r)
		scheme, token, _ := strings.Cut(authHeader, " ")
		if authHeader == "" || !strings.EqualFold(scheme, "Bearer") {
			app.notAuthenticatedResponse(w, r)
			return
		}

		token = strings.TrimSpace(token)
		if token == "" || strings.Contains(token, " ") {
			app.unauthorizedErrorResponse(w, r, "Invalid token header.", fmt.Errorf("authorization header is malformed"))
			return
		}

		jwtToken, err := app.authenticator.ValidateAccessToken(token)
		if err != nil {
			app.unauthorizedErrorResponse(w, r, "Given token not valid for any token type.", err)
			return
		}

		userID, err := auth.UserID(jwtToken)
		if err != nil {
			app.unauthorizedErrorResponse(w, r, "Given token not valid for any token type.", err)
			return
		}

		ctx := r.Context()

		user, err := app.store.Users.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, users.ErrNotFound) {
				app.unauthorizedErrorResponse(w, r, "User not found.", err)
				return
			}
			app.internalServerError(w, r, err)
			return
		}
		if !user.IsActive {
			app.unauthorizedErrorResponse(w, r, "User is inactive.", nil)
			return
		}

		ctx = context.WithValue(ctx, userCtx, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireTier admits callers whose primary role ranks at or above floor. The
// role is read from the ledger on every request; a caller with no role is
// denied.
func (app *application) RequireTier(floor accesscontrol.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := getUserFromContext(r)
			if user == nil {
				app.notAuthenticatedResponse(w, r)
				return
			}

			role, ok, err := accesscontrol.PrimaryRole(r.Context(), app.store.AccessControl, user.ID)
			if err != nil {
				app.internalServerError(w, r, err)
				return
			}
			if !ok || !role.AtLeast(floor) {
				app.logger.Infow("tier check denied",
					"user_id", user.ID,
					"primary_role", role,
					"required", floor,
					"path", r.URL.Path,
				)
				app.forbiddenResponse(w, r, "")
				return
			}

			ctx := context.WithValue(r.Context(), roleCtx, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (app *application) RateLimiterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if allow, retryAfter := app.rateLimiter.Allow(helpers.ClientIP(r)); !allow {
			app.rateLimitExceededResponse(w, r, retryAfter)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestTimeout cancels the request context after d. A handler that gives up
// on the deadline without writing anything gets a 504 envelope.
func (app *application) requestTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			if errors.Is(ctx.Err(), context.DeadlineExceeded) && ww.Status() == 0 {
				app.errorResponse(ww, r, apierror.Timeout().WithCause(ctx.Err()))
			}
		})
	}
}

// recoverPanic turns a panic in any later handler into a server_error
// envelope.
func (app *application) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			w.Header().Set("Connection", "close")
			app.internalServerError(w, r, fmt.Errorf("panic: %v", rec))
		}()

		next.ServeHTTP(w, r)
	})
}

func getUserFromContext(r *http.Request) *users.User {
	if user, ok := r.Context().Value(userCtx).(*users.User); ok {
		return user
	}
	return nil
}

func getPrimaryRoleFromContext(r *http.Request) (accesscontrol.Role, bool) {
	role, ok := r.Context().Value(roleCtx).(accesscontrol.Role)
	return role, ok
}
