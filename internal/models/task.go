package models

const TaskLogoutRetry = "logout_retry"

// LogoutRetryTask asks the worker to repeat a backend logout that the
// gateway could not deliver. Fields stay strings: stream values come back
// from Redis as strings.
type LogoutRetryTask struct {
	Type        string `json:"type"`
	Token       string `json:"token"`
	Fingerprint string `json:"fingerprint"`
	RequestID   string `json:"request_id"`
	EnqueuedAt  string `json:"enqueued_at"`
}
