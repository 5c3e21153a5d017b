package main

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"portal/internal/apierror"

	"github.com/go-playground/validator/v10"
)

// errorResponse is the single exit for failed requests: every handler and
// middleware failure goes through here and leaves as an apierror envelope.
func (app *application) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status, env := apierror.Normalize(err)

	if status >= http.StatusInternalServerError {
		app.logger.Errorw("server error", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		app.logger.Warnw("request failed", "method", r.Method, "path", r.URL.Path, "code", env.Error, "error", err)
	}

	var apiErr *apierror.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(apiErr.RetryAfter.Seconds()))))
	}

	if err := writeJSON(w, status, env); err != nil {
		app.logger.Errorw("write error response", "error", err)
	}
}

func (app *application) internalServerError(w http.ResponseWriter, r *http.Request, err error) {
	if _, ok := apierror.KindOf(err); ok {
		err = fmt.Errorf("unhandled: %v", err)
	}
	app.errorResponse(w, r, err)
}

// badRequestResponse reports a body that could not be decoded.
func (app *application) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.errorResponse(w, r, apierror.Parse(err))
}

func (app *application) validationErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		app.errorResponse(w, r, apierror.Validation(err.Error()).WithCause(err))
		return
	}

	fields := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = append(fields[fe.Field()], validationMessage(fe))
	}
	app.errorResponse(w, r, apierror.FieldErrors(fields).WithCause(err))
}

func (app *application) fieldErrorResponse(w http.ResponseWriter, r *http.Request, field, message string) {
	app.errorResponse(w, r, apierror.FieldErrors(map[string][]string{field: {message}}))
}

func (app *application) unauthorizedErrorResponse(w http.ResponseWriter, r *http.Request, detail string, err error) {
	app.errorResponse(w, r, apierror.AuthenticationFailed(detail).WithCause(err))
}

func (app *application) notAuthenticatedResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, apierror.NotAuthenticated())
}

func (app *application) unauthorizedBasicErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("WWW-Authenticate", `Basic realm="restricted", charset="UTF-8"`)
	app.errorResponse(w, r, apierror.AuthenticationFailed("").WithCause(err))
}

func (app *application) forbiddenResponse(w http.ResponseWriter, r *http.Request, detail string) {
	app.errorResponse(w, r, apierror.PermissionDenied(detail))
}

func (app *application) notFoundResponse(w http.ResponseWriter, r *http.Request, detail string, err error) {
	app.errorResponse(w, r, apierror.NotFound(detail).WithCause(err))
}

func (app *application) rateLimitExceededResponse(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	app.errorResponse(w, r, apierror.RateLimited(retryAfter))
}

func (app *application) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, apierror.NotFound(""))
}

func (app *application) methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, apierror.MethodNotAllowed(r.Method))
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min":
		return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "len":
		return fmt.Sprintf("Ensure this field has exactly %s characters.", fe.Param())
	case "numeric", "alphanum":
		return "Enter a valid code."
	case "phone":
		return "Enter a valid phone number."
	case "role":
		return fmt.Sprintf("%q is not a valid choice.", fe.Value())
	case "gt", "gte", "lt", "lte":
		return fmt.Sprintf("Value is out of range (%s %s).", fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("Failed on the %q rule.", fe.Tag())
	}
}
