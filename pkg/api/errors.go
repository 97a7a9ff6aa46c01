package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	DetailAuthRequired     = "Authentication required"
	DetailInternalError    = "Internal server error"
	DetailRateLimited      = "rate limit exceeded, try again later"
	DetailFileRequired     = "File is required"
	DetailConversationGone = "Conversation deleted successfully"
	DetailMessageGone      = "Message deleted successfully"
)

// ErrorResponse is the only error body shape on the wire.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Kind is the classified cause of a failed auth or data call.
type Kind string

const (
	KindUnknown            Kind = "unknown"
	KindMissingSession     Kind = "missing_session"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindAccountNotFound    Kind = "account_not_found"
	KindEmailTaken         Kind = "email_taken"
	KindUsernameTaken      Kind = "username_taken"
	KindSamePassword       Kind = "same_password"
	KindRateLimited        Kind = "rate_limited"
	KindSessionExpired     Kind = "session_expired"
	KindTransport          Kind = "transport"
)

// Classify maps an HTTP status and the backend's free-text detail to a Kind.
// The backend exposes no machine-readable codes, so this is the one place
// that interprets wording. Status 0 means the request never got an answer.
func Classify(status int, detail string) Kind {
	d := strings.ToLower(detail)

	switch {
	case status == 0:
		return KindTransport
	case status == http.StatusUnauthorized && detail == DetailAuthRequired:
		return KindMissingSession
	case status == http.StatusTooManyRequests || strings.Contains(d, "rate limit"):
		return KindRateLimited
	case strings.Contains(d, "already exists") || strings.Contains(d, "taken"):
		if strings.Contains(d, "email") {
			return KindEmailTaken
		}
		return KindUsernameTaken
	case strings.Contains(d, "incorrect") || strings.Contains(d, "wrong") || strings.Contains(d, "invalid credentials"):
		return KindInvalidCredentials
	case strings.Contains(d, "same"):
		return KindSamePassword
	case strings.Contains(d, "not found") || strings.Contains(d, "doesn't exist") || strings.Contains(d, "does not exist"):
		return KindAccountNotFound
	case status == http.StatusUnauthorized || strings.Contains(d, "unauthorized"):
		return KindSessionExpired
	case status >= 500 && detail == DetailInternalError:
		return KindTransport
	default:
		return KindUnknown
	}
}

// Message is the user-facing text for a Kind.
func (k Kind) Message() string {
	switch k {
	case KindMissingSession:
		return "You are not logged in."
	case KindInvalidCredentials:
		return "The email or password is incorrect."
	case KindAccountNotFound:
		return "No account exists for that email."
	case KindEmailTaken:
		return "An account with this email already exists."
	case KindUsernameTaken:
		return "That username is already taken."
	case KindSamePassword:
		return "The new password must differ from the current one."
	case KindRateLimited:
		return "Too many attempts. Please wait and try again."
	case KindSessionExpired:
		return "Your session has expired. Please log in again."
	case KindTransport:
		return "Connection error. Please try again."
	default:
		return "Something went wrong."
	}
}

// Retryable reports whether repeating the same call may succeed.
func (k Kind) Retryable() bool {
	return k == KindTransport || k == KindRateLimited
}

// Error is a failed call as seen by consumers: the relayed status, the raw
// detail text and its classification.
type Error struct {
	Status int
	Detail string
	Kind   Kind
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return e.Detail
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Detail)
}

// NewError builds an Error from a response status and raw body. The body's
// detail field is used when it parses; otherwise the raw text is kept.
func NewError(status int, body []byte) *Error {
	detail := strings.TrimSpace(string(body))
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Detail != "" {
		detail = resp.Detail
	}
	if detail == "" {
		detail = http.StatusText(status)
	}
	return &Error{Status: status, Detail: detail, Kind: Classify(status, detail)}
}

// TransportError wraps a failure that produced no HTTP response.
func TransportError(err error) *Error {
	return &Error{Detail: err.Error(), Kind: KindTransport}
}

// KindOf extracts the Kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}
