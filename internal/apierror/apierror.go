// Package apierror turns every failure raised while serving a request into the
// uniform {error, message, details} envelope returned to API consumers.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Kind classifies a failure. The zero value is a generic failure that has no
// dedicated code.
type Kind int

const (
	KindOther Kind = iota
	KindValidation
	KindAuthenticationFailed
	KindNotAuthenticated
	KindPermissionDenied
	KindNotFound
	KindMethodNotAllowed
	KindRateLimited
)

const (
	CodeGeneric     = "error"
	CodeServerError = "server_error"

	ServerErrorMessage = "An unexpected error occurred. Please try again later."
)

var codes = map[Kind]string{
	KindValidation:           "validation_error",
	KindAuthenticationFailed: "authentication_failed",
	KindNotAuthenticated:     "not_authenticated",
	KindPermissionDenied:     "permission_denied",
	KindNotFound:             "not_found",
	KindMethodNotAllowed:     "method_not_allowed",
	KindRateLimited:          "rate_limit_exceeded",
}

var statuses = map[Kind]int{
	KindOther:                http.StatusBadRequest,
	KindValidation:           http.StatusBadRequest,
	KindAuthenticationFailed: http.StatusUnauthorized,
	KindNotAuthenticated:     http.StatusUnauthorized,
	KindPermissionDenied:     http.StatusForbidden,
	KindNotFound:             http.StatusNotFound,
	KindMethodNotAllowed:     http.StatusMethodNotAllowed,
	KindRateLimited:          http.StatusTooManyRequests,
}

// Code returns the wire code of k, or "error" when k has none.
func (k Kind) Code() string {
	if c, ok := codes[k]; ok {
		return c
	}
	return CodeGeneric
}

func (k Kind) String() string { return k.Code() }

// Error is a failure raised through the normal failure path. Payload is what
// the caller gets to see; Err is the underlying cause and is only logged.
type Error struct {
	Kind    Kind
	Status  int
	Payload any
	Err     error

	// RetryAfter is set for rate limited failures.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	msg := messageFrom(e.Payload)
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Code(), msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Code(), msg)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus returns the explicit status or the default for the kind.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	if s, ok := statuses[e.Kind]; ok {
		return s
	}
	return http.StatusBadRequest
}

// Envelope is the response body of every failed request.
type Envelope struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

// Normalize maps err to a status code and an envelope. Errors that were not
// raised as *Error are reported as server_error and never leak their text.
func Normalize(err error) (int, Envelope) {
	var apiErr *Error
	if err == nil || !errors.As(err, &apiErr) {
		return http.StatusInternalServerError, Envelope{
			Error:   CodeServerError,
			Message: ServerErrorMessage,
			Details: map[string]any{},
		}
	}

	return apiErr.HTTPStatus(), Envelope{
		Error:   apiErr.Kind.Code(),
		Message: messageFrom(apiErr.Payload),
		Details: detailsFrom(apiErr.Payload),
	}
}

// KindOf reports the kind of err, and false for unhandled failures.
func KindOf(err error) (Kind, bool) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return KindOther, false
	}
	return apiErr.Kind, true
}

func detailsFrom(payload any) map[string]any {
	switch p := payload.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return p
	case map[string][]string:
		out := make(map[string]any, len(p))
		for k, v := range p {
			out[k] = v
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(p))
		for k, v := range p {
			out[k] = v
		}
		return out
	default:
		return map[string]any{"detail": p}
	}
}

// messageFrom prefers a "detail" entry, then per-field error lists joined as
// "field: a, b; other: c", then the first value, then the payload itself.
// Map keys are visited in sorted order so the message is stable.
func messageFrom(payload any) string {
	if payload == nil {
		return ""
	}

	details, isMap := asMap(payload)
	if !isMap {
		return stringify(payload)
	}

	if d, ok := details["detail"]; ok {
		return stringify(d)
	}

	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var fieldErrors []string
	for _, k := range keys {
		if list, ok := asList(details[k]); ok {
			fieldErrors = append(fieldErrors, fmt.Sprintf("%s: %s", k, strings.Join(list, ", ")))
		}
	}
	if len(fieldErrors) > 0 {
		return strings.Join(fieldErrors, "; ")
	}

	if len(keys) > 0 {
		return stringify(details[keys[0]])
	}
	return ""
}

func asMap(payload any) (map[string]any, bool) {
	switch p := payload.(type) {
	case map[string]any:
		return p, true
	case map[string][]string, map[string]string:
		return detailsFrom(p), true
	}
	return nil, false
}

func asList(v any) ([]string, bool) {
	switch l := v.(type) {
	case []string:
		return l, true
	case []any:
		out := make([]string, len(l))
		for i, item := range l {
			out[i] = stringify(item)
		}
		return out, true
	}
	return nil, false
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return strings.Join(t, ", ")
	case error:
		return t.Error()
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}
