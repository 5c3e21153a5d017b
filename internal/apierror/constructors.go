package apierror

import (
	"fmt"
	"math"
	"net/http"
	"time"
)

func New(kind Kind, status int, payload any) *Error {
	return &Error{Kind: kind, Status: status, Payload: payload}
}

func detailOr(detail, fallback string) map[string]any {
	if detail == "" {
		detail = fallback
	}
	return map[string]any{"detail": detail}
}

// Validation reports malformed input described by a single message.
func Validation(detail string) *Error {
	return &Error{Kind: KindValidation, Payload: detailOr(detail, "Invalid input.")}
}

// FieldErrors reports malformed input as per-field message lists.
func FieldErrors(fields map[string][]string) *Error {
	return &Error{Kind: KindValidation, Payload: fields}
}

// Parse reports a request body that could not be decoded at all. It has no
// dedicated code and surfaces as the generic "error".
func Parse(err error) *Error {
	detail := "Malformed request."
	if err != nil {
		detail = fmt.Sprintf("Malformed request. %s", err)
	}
	return &Error{Kind: KindOther, Status: http.StatusBadRequest, Payload: map[string]any{"detail": detail}, Err: err}
}

func AuthenticationFailed(detail string) *Error {
	return &Error{Kind: KindAuthenticationFailed, Payload: detailOr(detail, "Incorrect authentication credentials.")}
}

func NotAuthenticated() *Error {
	return &Error{Kind: KindNotAuthenticated, Payload: detailOr("", "Authentication credentials were not provided.")}
}

func PermissionDenied(detail string) *Error {
	return &Error{Kind: KindPermissionDenied, Payload: detailOr(detail, "You do not have permission to perform this action.")}
}

func NotFound(detail string) *Error {
	return &Error{Kind: KindNotFound, Payload: detailOr(detail, "Not found.")}
}

func MethodNotAllowed(method string) *Error {
	return &Error{Kind: KindMethodNotAllowed, Payload: map[string]any{"detail": fmt.Sprintf("Method %q not allowed.", method)}}
}

func RateLimited(wait time.Duration) *Error {
	secs := int(math.Ceil(wait.Seconds()))
	detail := "Request was throttled."
	if secs > 0 {
		detail = fmt.Sprintf("Request was throttled. Expected available in %d seconds.", secs)
	}
	return &Error{Kind: KindRateLimited, Payload: map[string]any{"detail": detail}, RetryAfter: wait}
}

// WithCause attaches the underlying error for logging.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// Timeout reports a request that ran past its deadline.
func Timeout() *Error {
	return &Error{Kind: KindOther, Status: http.StatusGatewayTimeout, Payload: detailOr("", "Request timed out.")}
}
