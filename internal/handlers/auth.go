package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"docchat/gateway/internal/middleware"
	"docchat/gateway/internal/models"
	"docchat/gateway/internal/security"
	"docchat/gateway/internal/upstream"
	"docchat/gateway/pkg/api"
)

const jsonBody = "application/json"

func (h HandlerSet) Login(c *gin.Context) {
	body, ok := h.readJSON(c)
	if !ok {
		return
	}

	resp, ok := h.call(c, upstream.Call{
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Body:        body,
		ContentType: jsonBody,
	})
	if !ok {
		return
	}

	h.issueSession(c, resp, resp.Status, h.cfg.Session.LoginTTL)
}

func (h HandlerSet) Signup(c *gin.Context) {
	body, ok := h.readJSON(c)
	if !ok {
		return
	}

	resp, ok := h.call(c, upstream.Call{
		Method:      http.MethodPost,
		Path:        "/auth/signup",
		Body:        body,
		ContentType: jsonBody,
	})
	if !ok {
		return
	}

	h.issueSession(c, resp, http.StatusCreated, h.cfg.Session.SignupTTL)
}

func (h HandlerSet) Me(c *gin.Context) {
	resp, ok := h.call(c, upstream.Call{
		Method:      http.MethodGet,
		Path:        "/auth/me",
		BearerToken: middleware.SessionToken(c),
	})
	if !ok {
		return
	}
	h.relay(c, resp.Status, resp)
}

// Refresh re-sets the cookie on success. A backend 401 is relayed and the
// cookie is left alone; clearing it is logout's job.
func (h HandlerSet) Refresh(c *gin.Context) {
	resp, ok := h.call(c, upstream.Call{
		Method:      http.MethodGet,
		Path:        "/auth/refresh",
		BearerToken: middleware.SessionToken(c),
	})
	if !ok {
		return
	}

	h.issueSession(c, resp, resp.Status, h.cfg.Session.RefreshTTL)
}

// Logout clears the cookie on every path, including a missing cookie and an
// unreachable backend. Undelivered backend logouts go to the retry queue.
func (h HandlerSet) Logout(c *gin.Context) {
	token := h.cookies.Token(c.Request)
	h.cookies.Clear(c.Writer)

	if token == "" {
		c.Set(auditOutcomeKey, string(models.OutcomeMissingSession))
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Detail: api.DetailAuthRequired})
		return
	}

	requestID := middleware.RequestIDFrom(c)
	resp, err := h.upstream.Do(c.Request.Context(), upstream.Call{
		Method:      http.MethodPost,
		Path:        "/auth/logout",
		BearerToken: token,
		RequestID:   requestID,
	})
	if err != nil {
		h.log.Error().
			Err(err).
			Str("request_id", requestID).
			Str("token_fp", security.Fingerprint(token)).
			Msg("backend logout failed")
		h.enqueueLogout(c, token, requestID)
		h.fail(c)
		return
	}

	// a 5xx or an HTML error page from a proxy means the session may still be live
	if resp.Status >= http.StatusInternalServerError || !resp.IsJSON() {
		h.log.Warn().
			Int("status", resp.Status).
			Str("request_id", requestID).
			Str("token_fp", security.Fingerprint(token)).
			Msg("backend logout not confirmed")
		h.enqueueLogout(c, token, requestID)
	}

	h.relay(c, resp.Status, resp)
}

func (h HandlerSet) enqueueLogout(c *gin.Context, token, requestID string) {
	if h.retry == nil {
		return
	}

	task := models.LogoutRetryTask{
		Token:       token,
		Fingerprint: security.Fingerprint(token),
		RequestID:   requestID,
	}
	if err := h.retry.EnqueueLogout(c.Request.Context(), task); err != nil {
		h.log.Error().
			Err(err).
			Str("request_id", requestID).
			Str("token_fp", task.Fingerprint).
			Msg("enqueue logout retry failed")
		return
	}

	h.log.Info().
		Str("request_id", requestID).
		Str("token_fp", task.Fingerprint).
		Msg("backend logout queued for retry")
}

func (h HandlerSet) ChangePassword(c *gin.Context) {
	body, ok := h.readJSON(c)
	if !ok {
		return
	}

	resp, ok := h.call(c, upstream.Call{
		Method:      http.MethodPost,
		Path:        "/auth/change-password",
		Body:        body,
		ContentType: jsonBody,
		BearerToken: middleware.SessionToken(c),
	})
	if !ok {
		return
	}
	h.relay(c, resp.Status, resp)
}

func (h HandlerSet) ForgotPassword(c *gin.Context) {
	body, ok := h.readJSON(c)
	if !ok {
		return
	}

	resp, ok := h.call(c, upstream.Call{
		Method:      http.MethodPost,
		Path:        "/auth/forgot-password",
		Body:        body,
		ContentType: jsonBody,
	})
	if !ok {
		return
	}
	h.relay(c, resp.Status, resp)
}

// resetPasswordBody keeps the raw values so the backend sees exactly what the
// browser sent for these two fields and nothing else.
type resetPasswordBody struct {
	Token       json.RawMessage `json:"token,omitempty"`
	NewPassword json.RawMessage `json:"new_password,omitempty"`
}

func (h HandlerSet) ResetPassword(c *gin.Context) {
	body, ok := h.readJSON(c)
	if !ok {
		return
	}

	var in resetPasswordBody
	if err := json.Unmarshal(body, &in); err != nil {
		h.fail(c)
		return
	}
	out, err := json.Marshal(in)
	if err != nil {
		h.fail(c)
		return
	}

	resp, ok := h.call(c, upstream.Call{
		Method:      http.MethodPost,
		Path:        "/auth/reset-password",
		Body:        out,
		ContentType: jsonBody,
	})
	if !ok {
		return
	}
	h.relay(c, resp.Status, resp)
}

// ValidateResetToken answers local failures with a body the reset page can
// render as an invalid token.
func (h HandlerSet) ValidateResetToken(c *gin.Context) {
	requestID := middleware.RequestIDFrom(c)
	resp, err := h.upstream.Do(c.Request.Context(), upstream.Call{
		Method:      http.MethodGet,
		Path:        "/auth/validate-reset-token/" + url.PathEscape(c.Param("token")),
		ContentType: jsonBody,
		RequestID:   requestID,
	})
	if err == nil && resp.IsJSON() {
		c.Data(resp.Status, jsonContentType, resp.Body)
		return
	}

	event := h.log.Error().Str("request_id", requestID)
	if err != nil {
		event = event.Err(err)
	} else {
		event = event.Int("status", resp.Status)
	}
	event.Msg("validate reset token failed")

	c.Set(auditOutcomeKey, string(models.OutcomeFailed))
	c.JSON(http.StatusInternalServerError, api.ValidateResetTokenResponse{
		Valid:   false,
		Message: api.DetailInternalError,
		Detail:  api.DetailInternalError,
	})
}

// issueSession relays a token-bearing answer. On 2xx the cookie is set to
// the returned access_token and the body goes out with okStatus.
func (h HandlerSet) issueSession(c *gin.Context, resp upstream.Response, okStatus int, ttl time.Duration) {
	if !resp.OK() {
		h.relay(c, resp.Status, resp)
		return
	}

	var token api.TokenResponse
	if err := resp.Decode(&token); err != nil {
		h.log.Error().
			Err(err).
			Str("request_id", middleware.RequestIDFrom(c)).
			Msg("backend token response unreadable")
		h.fail(c)
		return
	}

	if token.AccessToken != "" {
		h.cookies.Set(c.Writer, token.AccessToken, ttl)
		c.Set(auditTokenKey, token.AccessToken)
	}
	c.Data(okStatus, jsonContentType, resp.Body)
}
