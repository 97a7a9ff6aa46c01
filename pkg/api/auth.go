// Package api holds the wire contracts shared by the gateway, the auth state
// store and the terminal client.
package api

import "strings"

// User mirrors the backend's UserResponse.
type User struct {
	ID        string         `json:"id"`
	Username  string         `json:"username"`
	Email     string         `json:"email"`
	Profile   map[string]any `json:"profile"`
	CreatedAt string         `json:"created_at"`
}

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is returned by login, signup and refresh.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	User        User   `json:"user"`
}

type LogoutResponse struct {
	Message string `json:"message"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type PasswordResetResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success,omitempty"`
}

type UpdateProfileRequest struct {
	ProfileUpdates map[string]any `json:"profile_updates"`
}

type UserProfileResponse struct {
	UserID  string         `json:"user_id"`
	Profile map[string]any `json:"profile"`
	Updated bool           `json:"updated"`
}

// ResetTokenState is the lifecycle of a password reset token.
type ResetTokenState string

const (
	ResetTokenValid   ResetTokenState = "valid"
	ResetTokenExpired ResetTokenState = "expired"
	ResetTokenInvalid ResetTokenState = "invalid"
)

type ValidateResetTokenResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// State folds the backend answer into one of the three token states. Used
// tokens are reported by the backend as invalid.
func (r ValidateResetTokenResponse) State() ResetTokenState {
	if r.Valid {
		return ResetTokenValid
	}
	text := strings.ToLower(r.Message + " " + r.Detail)
	if strings.Contains(text, "expired") {
		return ResetTokenExpired
	}
	return ResetTokenInvalid
}
