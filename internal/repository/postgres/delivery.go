package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/trendlens/admin-api/internal/model"
	"github.com/trendlens/admin-api/internal/repository"
)

type deliveryRepository struct {
	BaseRepository
}

func NewDeliveryRepository(base BaseRepository) repository.DeliveryRepository {
	return &deliveryRepository{base}
}

func (r *deliveryRepository) Record(ctx context.Context, rec *model.DeliveryRecord) error {
	query := `
		INSERT INTO telegram_deliveries (
			id, alert_id, type, account_id, delivery_status,
			delivery_reason, target, sent_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.GetDB().ExecContext(ctx, query,
		rec.ID,
		rec.AlertID,
		rec.Type,
		rec.AccountID,
		rec.DeliveryStatus,
		rec.DeliveryReason,
		rec.Target,
		rec.SentAt,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

// LastSentAt relies on the composite index on
// (account_id, type, delivery_status, sent_at DESC).
func (r *deliveryRepository) LastSentAt(ctx context.Context, accountID string, t model.AlertType) (*time.Time, error) {
	query := `
		SELECT sent_at
		FROM telegram_deliveries
		WHERE account_id = $1
		AND type = $2
		AND delivery_status = $3
		AND sent_at IS NOT NULL
		ORDER BY sent_at DESC
		LIMIT 1
	`

	var sentAt time.Time
	err := r.GetDB().GetContext(ctx, &sentAt, query, accountID, t, model.DeliveryStatusSent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last sent delivery: %w", err)
	}
	return &sentAt, nil
}

func (r *deliveryRepository) List(ctx context.Context, limit int) ([]*model.DeliveryRecord, error) {
	query := `
		SELECT id, alert_id, type, account_id, delivery_status,
		       delivery_reason, target, sent_at, created_at
		FROM telegram_deliveries
		ORDER BY created_at DESC
		LIMIT $1
	`

	var records []*model.DeliveryRecord
	if err := r.GetDB().SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	return records, nil
}

func (r *deliveryRepository) Stats(ctx context.Context, since time.Time) (*model.DeliveryStats, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE delivery_status = 'SENT') AS sent,
			COUNT(*) FILTER (WHERE delivery_status = 'SKIPPED') AS skipped,
			COUNT(*) FILTER (WHERE delivery_status = 'FAILED') AS failed
		FROM telegram_deliveries
		WHERE created_at >= $1
	`

	var stats model.DeliveryStats
	if err := r.GetDB().GetContext(ctx, &stats, query, since); err != nil {
		return nil, fmt.Errorf("failed to aggregate delivery stats: %w", err)
	}
	return &stats, nil
}
