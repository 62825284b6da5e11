package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"nftmarket/apps/market/internal/model"
)

type OutboxRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewOutboxRepository(db *sql.DB, logger *zap.Logger) *OutboxRepository {
	return &OutboxRepository{db: db, logger: logger}
}

// GetUnsentEventsForProcessing claims up to limit unsent events. Claimed rows
// move to 'processing' so concurrent publishers skip them.
func (o *OutboxRepository) GetUnsentEventsForProcessing(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() // Will be ignored if tx.Commit() succeeds

	rows, err := tx.QueryContext(ctx, `
		SELECT id, order_id, event_type, status, event_blob, created_at
		FROM event_outbox
		WHERE status = 'unsent'
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		events []model.OutboxEvent
		ids    []int64
	)
	for rows.Next() {
		var event model.OutboxEvent
		if err := rows.Scan(&event.ID, &event.OrderID, &event.EventType, &event.Status, &event.EventBlob, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
		ids = append(ids, event.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE event_outbox
		SET status = 'processing', claimed_at = NOW()
		WHERE id = ANY($1) AND status = 'unsent'
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox events: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return events, nil
}

func (o *OutboxRepository) MarkEventAsSent(ctx context.Context, id int64) error {
	_, err := o.db.ExecContext(ctx, `
		UPDATE event_outbox
		SET status = 'sent'
		WHERE id = $1
	`, id)
	return err
}

// MarkEventAsFailed returns a claimed event to 'unsent' for the next run
func (o *OutboxRepository) MarkEventAsFailed(ctx context.Context, id int64) error {
	_, err := o.db.ExecContext(ctx, `
		UPDATE event_outbox
		SET status = 'unsent', claimed_at = NULL
		WHERE id = $1 AND status = 'processing'
	`, id)
	return err
}

// ReclaimStaleEvents returns events claimed more than olderThan ago to
// 'unsent'. A publisher that stops between claiming and marking leaves them
// in 'processing'.
func (o *OutboxRepository) ReclaimStaleEvents(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := o.db.ExecContext(ctx, `
		UPDATE event_outbox
		SET status = 'unsent', claimed_at = NULL
		WHERE status = 'processing' AND claimed_at <= NOW() - ($1::float8 * INTERVAL '1 second')
	`, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim outbox events: %w", err)
	}

	reclaimed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		o.logger.Warn("Reclaimed stale outbox events", zap.Int64("count", reclaimed))
	}
	return reclaimed, nil
}
