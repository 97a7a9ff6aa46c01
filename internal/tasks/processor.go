package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"docchat/gateway/internal/config"
	"docchat/gateway/internal/models"
)

// Processor replays backend logouts that the gateway failed to deliver.
type Processor struct {
	logger  zerolog.Logger
	baseURL string
	client  *retryablehttp.Client
}

func NewProcessor(cfg *config.AppConfig, logger zerolog.Logger) *Processor {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.Worker.RetryMax
	client.RetryWaitMin = cfg.Worker.RetryWaitMin
	client.RetryWaitMax = cfg.Worker.RetryWaitMax
	client.HTTPClient.Timeout = cfg.Upstream.Timeout
	client.Logger = leveledLogger{logger: logger}

	return &Processor{
		logger:  logger,
		baseURL: cfg.Upstream.BaseURL,
		client:  client,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var task models.LogoutRetryTask
	if err := decodePayload(msg.Values, &task); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch task.Type {
	case models.TaskLogoutRetry:
		return p.handleLogoutRetry(ctx, task)
	default:
		p.logger.Warn().Str("type", task.Type).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func decodePayload(values map[string]interface{}, out *models.LogoutRetryTask) error {
	bytes, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

func (p *Processor) handleLogoutRetry(ctx context.Context, task models.LogoutRetryTask) error {
	if task.Token == "" {
		p.logger.Warn().Str("request_id", task.RequestID).Msg("logout retry without token, skipping")
		return nil
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/auth/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+task.Token)
	if task.RequestID != "" {
		req.Header.Set("X-Request-Id", task.RequestID)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend logout: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		p.logger.Info().Str("fingerprint", task.Fingerprint).Msg("backend logout replayed")
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		// token already invalid upstream; nothing left to revoke
		p.logger.Info().Str("fingerprint", task.Fingerprint).Msg("token already rejected by backend")
		return nil
	default:
		return fmt.Errorf("backend logout: status %d", resp.StatusCode)
	}
}

// leveledLogger routes retryablehttp's logging into zerolog.
type leveledLogger struct {
	logger zerolog.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}
