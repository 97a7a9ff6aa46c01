package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"docchat/gateway/internal/middleware"
	"docchat/gateway/internal/models"
	"docchat/gateway/internal/security"
	"docchat/gateway/internal/upstream"
	"docchat/gateway/pkg/api"
)

const (
	jsonContentType = "application/json; charset=utf-8"

	auditOutcomeKey = "audit_outcome"
	auditTokenKey   = "audit_token"
	auditTimeout    = 2 * time.Second
)

// readJSON returns the raw request body when it is a JSON document. Anything
// else answers the uniform 500 and returns false.
func (h HandlerSet) readJSON(c *gin.Context) ([]byte, bool) {
	body, err := c.GetRawData()
	if err != nil || !json.Valid(body) {
		h.log.Warn().
			Str("request_id", middleware.RequestIDFrom(c)).
			Str("path", c.FullPath()).
			Msg("request body is not json")
		h.fail(c)
		return nil, false
	}
	return body, true
}

// call performs the backend exchange with the request id attached. Transport
// failures are answered with the uniform 500.
func (h HandlerSet) call(c *gin.Context, call upstream.Call) (upstream.Response, bool) {
	call.RequestID = middleware.RequestIDFrom(c)
	resp, err := h.upstream.Do(c.Request.Context(), call)
	if err != nil {
		h.log.Error().
			Err(err).
			Str("request_id", call.RequestID).
			Str("path", call.Path).
			Msg("backend call failed")
		h.fail(c)
		return upstream.Response{}, false
	}
	return resp, true
}

// relay writes the backend body byte-for-byte. Bodies that are not JSON are
// treated like a parse failure.
func (h HandlerSet) relay(c *gin.Context, status int, resp upstream.Response) {
	if !resp.IsJSON() {
		h.log.Error().
			Int("status", resp.Status).
			Str("request_id", middleware.RequestIDFrom(c)).
			Msg("backend answered with a non-json body")
		h.fail(c)
		return
	}
	c.Data(status, jsonContentType, resp.Body)
}

func (h HandlerSet) fail(c *gin.Context) {
	c.Set(auditOutcomeKey, string(models.OutcomeFailed))
	c.AbortWithStatusJSON(http.StatusInternalServerError, api.ErrorResponse{
		Detail: api.DetailInternalError,
	})
}

// audit records one auth event after the rest of the chain has answered.
func (h HandlerSet) audit(op models.AuthOperation) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if h.events == nil {
			return
		}

		status := c.Writer.Status()
		outcome := models.Outcome(c.GetString(auditOutcomeKey))
		if outcome == "" {
			switch {
			case status == http.StatusUnauthorized && c.IsAborted():
				outcome = models.OutcomeMissingSession
			case status == http.StatusTooManyRequests && c.IsAborted():
				outcome = models.OutcomeRateLimited
			default:
				outcome = models.OutcomeRelayed
			}
		}

		token := c.GetString(auditTokenKey)
		if token == "" {
			token = h.cookies.Token(c.Request)
		}

		event := models.AuthEvent{
			Operation:        op,
			Status:           status,
			Outcome:          outcome,
			RequestID:        middleware.RequestIDFrom(c),
			ClientIP:         c.ClientIP(),
			TokenFingerprint: security.Fingerprint(token),
			Subject:          security.SubjectHint(token),
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), auditTimeout)
		defer cancel()
		if err := h.events.Record(ctx, event); err != nil {
			h.log.Warn().
				Err(err).
				Str("operation", string(op)).
				Str("request_id", event.RequestID).
				Msg("record auth event failed")
		}
	}
}
