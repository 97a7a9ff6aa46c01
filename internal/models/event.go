package models

import "time"

type AuthOperation string

const (
	OpLogin              AuthOperation = "login"
	OpSignup             AuthOperation = "signup"
	OpMe                 AuthOperation = "me"
	OpRefresh            AuthOperation = "refresh"
	OpLogout             AuthOperation = "logout"
	OpChangePassword     AuthOperation = "change_password"
	OpForgotPassword     AuthOperation = "forgot_password"
	OpResetPassword      AuthOperation = "reset_password"
	OpValidateResetToken AuthOperation = "validate_reset_token"
)

type Outcome string

const (
	OutcomeRelayed        Outcome = "relayed"
	OutcomeMissingSession Outcome = "missing_session"
	OutcomeRateLimited    Outcome = "rate_limited"
	OutcomeFailed         Outcome = "failed"
)

// AuthEvent is one proxied auth operation as recorded in the audit trail.
// It never carries the token itself.
type AuthEvent struct {
	ID               string
	Operation        AuthOperation
	Status           int
	Outcome          Outcome
	RequestID        string
	ClientIP         string
	TokenFingerprint string
	Subject          string
	CreatedAt        time.Time
}
