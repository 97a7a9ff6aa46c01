package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"docchat/gateway/internal/ids"
	"docchat/gateway/internal/models"
)

type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func (r *EventRepository) Record(ctx context.Context, event models.AuthEvent) error {
	if event.ID == "" {
		event.ID = ids.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO auth_events (
			id, operation, status, outcome, request_id, client_ip, token_fingerprint, subject, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.Operation,
		event.Status,
		event.Outcome,
		event.RequestID,
		event.ClientIP,
		event.TokenFingerprint,
		event.Subject,
		event.CreatedAt,
	)
	return err
}

// DeleteBefore prunes events older than cutoff and returns how many went.
func (r *EventRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM auth_events WHERE created_at < $1`
	cmd, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
