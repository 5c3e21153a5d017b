package main

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portal/internal/auth"
	"portal/internal/domain/accesscontrol"
	"portal/internal/domain/sharing"
	"portal/internal/domain/storage"
	"portal/internal/mailer"
	"portal/internal/ratelimiter"
	"portal/internal/tokens"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type application struct {
	config        config
	store         *storage.Container
	logger        *zap.SugaredLogger
	mailer        mailer.Client
	authenticator auth.Authenticator
	rateLimiter   ratelimiter.Limiter
	tokens        *tokens.Generator
	shareIDs      *sharing.IDCodec
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	// forwarded headers are only honoured behind a proxy that overwrites them
	if app.config.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Logger)
	r.Use(app.recoverPanic)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{app.config.frontendURL},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	//Set a timeout value on the request context (ctx), that will signal through ctx.Done() that the request has timed out and further processing should be stopped
	r.Use(app.requestTimeout(app.config.requestTimeout))

	if app.config.rateLimiter.Enabled {
		r.Use(app.RateLimiterMiddleware)
	}

	r.NotFound(app.notFoundHandler)
	r.MethodNotAllowed(app.methodNotAllowedHandler)

	r.Route("/v1", func(r chi.Router) {
		r.With(app.BasicAuthMiddleware()).Get("/health", app.healthCheckHandler)
		r.With(app.BasicAuthMiddleware()).Get("/debug/vars", expvar.Handler().ServeHTTP)

		// Public routes
		r.Route("/authentication", func(r chi.Router) {
			r.Post("/user", app.registerUserHandler)
			r.Post("/token", app.createTokenHandler)
			r.Post("/refresh", app.refreshTokenHandler)
			r.Post("/verify", app.verifyEmailHandler)
			r.Post("/verify/resend", app.resendVerificationHandler)
			r.Post("/access-code", app.accessCodeLoginHandler)

			// browser session, tokens live in HttpOnly cookies
			r.Post("/web/token", app.createTokenCookieHandler)
			r.Post("/web/refresh", app.refreshTokenCookieHandler)
			r.With(app.AuthTokenMiddleware).Get("/session", app.sessionHandler)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(app.AuthTokenMiddleware)
			r.Get("/me", app.getCurrentUserHandler)
			r.Patch("/me/profile", app.updateProfileHandler)
			r.Post("/logout", app.logoutHandler)
			r.Post("/web/logout", app.logoutCookieHandler)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(app.AuthTokenMiddleware)
			r.Use(app.RequireTier(accesscontrol.RoleAdmin))

			r.Get("/users", app.adminListUsersHandler)
			r.Route("/users/{userID}", func(r chi.Router) {
				r.Delete("/", app.adminDeleteUserHandler)
				r.Get("/roles", app.adminGetUserRolesHandler)
				r.Post("/roles", app.adminAssignUserRoleHandler)
				r.Delete("/roles/{role}", app.adminRemoveUserRoleHandler)
			})
		})

		r.Route("/core", func(r chi.Router) {
			r.Use(app.AuthTokenMiddleware)
			r.Use(app.RequireTier(accesscontrol.RoleCore))

			r.Post("/clients", app.createClientHandler)
			r.Post("/clients/{userID}/access-code", app.reissueAccessCodeHandler)
			r.Route("/shares", func(r chi.Router) {
				r.Post("/", app.createShareHandler)
				r.Get("/", app.listSharesHandler)
				r.Delete("/{shareID}", app.deleteShareHandler)
			})
		})

		r.Route("/client", func(r chi.Router) {
			r.Use(app.AuthTokenMiddleware)
			r.Use(app.RequireTier(accesscontrol.RoleClient))

			r.Get("/workspace", app.clientWorkspaceHandler)
		})

		r.Route("/guest", func(r chi.Router) {
			r.Get("/shares/{token}", app.resolveShareHandler)
		})
	})

	return r
}

func (app *application) run(mux http.Handler) error {
	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Infow("server has started", "addr", app.config.addr, "env", app.config.env, "version", version)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", app.config.addr, "env", app.config.env)

	return nil
}
