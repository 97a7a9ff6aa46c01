package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"docchat/gateway/internal/cache"
)

const (
	statusOK       = "ok"
	statusError    = "error"
	statusDisabled = "disabled"
)

type healthResponse struct {
	Status      string `json:"status"`
	Cache       string `json:"cache"`
	Database    string `json:"database"`
	Backend     string `json:"backend"`
	Environment string `json:"environment"`
}

func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := statusDisabled
	if h.db != nil {
		dbStatus = statusOK
		if err := h.db.Ping(ctx); err != nil {
			dbStatus = statusError
			h.log.Error().Err(err).Msg("database ping failed")
		}
	}

	cacheStatus := statusDisabled
	if h.cache != nil {
		cacheStatus = statusOK
		if err := h.cache.Ping(ctx).Err(); err != nil {
			cacheStatus = statusError
			h.log.Error().Err(err).Msg("redis ping failed")
		}
	}

	overall := statusOK
	backend := h.backendHealth(ctx, cacheStatus == statusOK)
	for _, s := range []string{dbStatus, cacheStatus, backend} {
		if s == statusError {
			overall = "degraded"
		}
	}

	c.JSON(http.StatusOK, healthResponse{
		Status:      overall,
		Cache:       cacheStatus,
		Database:    dbStatus,
		Backend:     backend,
		Environment: h.cfg.Environment,
	})
}

// backendHealth prefers the result of the scheduled probe and probes directly
// when there is none.
func (h HandlerSet) backendHealth(ctx context.Context, cacheUp bool) string {
	if cacheUp {
		status, err := cache.BackendHealth(ctx, h.cache)
		if err != nil {
			h.log.Warn().Err(err).Msg("read cached backend health failed")
		}
		if status != "" {
			return status
		}
	}

	if err := h.upstream.Probe(ctx, "/health"); err != nil {
		h.log.Warn().Err(err).Msg("backend probe failed")
		return statusError
	}
	return statusOK
}
