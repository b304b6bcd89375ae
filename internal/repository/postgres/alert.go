package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trendlens/admin-api/internal/model"
	"github.com/trendlens/admin-api/internal/repository"
)

type alertRepository struct {
	BaseRepository
}

func NewAlertRepository(base BaseRepository) repository.AlertRepository {
	return &alertRepository{base}
}

func (r *alertRepository) ListByStatus(ctx context.Context, status model.AlertStatus, limit int) ([]*model.AlertEvent, error) {
	query := `
		SELECT id, type, account_id, username, severity, status, metrics_snapshot, created_at
		FROM alerts
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	var alerts []*model.AlertEvent
	if err := r.GetDB().SelectContext(ctx, &alerts, query, status, limit); err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}

	for _, a := range alerts {
		if err := a.DecodeMetrics(); err != nil {
			return nil, fmt.Errorf("failed to decode metrics for alert %s: %w", a.ID, err)
		}
	}
	return alerts, nil
}

func (r *alertRepository) Create(ctx context.Context, alert *model.AlertEvent) error {
	query := `
		INSERT INTO alerts (id, type, account_id, username, severity, status, metrics_snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.GetDB().ExecContext(ctx, query,
		alert.ID,
		alert.Type,
		alert.AccountID,
		alert.Username,
		alert.Severity,
		alert.Status,
		alert.RawMetric,
		alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

func (r *alertRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.AlertStatus) error {
	query := `
		UPDATE alerts
		SET status = $2, updated_at = $3
		WHERE id = $1
	`

	result, err := r.GetDB().ExecContext(ctx, query, id, status, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update alert status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("alert %s not found", id)
	}
	return nil
}
