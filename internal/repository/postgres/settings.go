package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trendlens/admin-api/internal/model"
	"github.com/trendlens/admin-api/internal/repository"
)

// settingsRepository stores the single delivery settings record as one
// jsonb row. Patch is read-modify-write inside a transaction.
type settingsRepository struct {
	BaseRepository
}

func NewSettingsRepository(base BaseRepository) repository.SettingsRepository {
	return &settingsRepository{base}
}

const settingsRowID = 1

func (r *settingsRepository) Get(ctx context.Context) (*model.DeliverySettings, error) {
	var raw []byte
	query := `SELECT settings FROM telegram_settings WHERE id = $1`
	err := r.GetDB().GetContext(ctx, &raw, query, settingsRowID)
	if errors.Is(err, sql.ErrNoRows) {
		s := model.DefaultDeliverySettings()
		return &s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	var s model.DeliverySettings
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	s.Normalize()
	return &s, nil
}

func (r *settingsRepository) Patch(ctx context.Context, patch model.DeliverySettingsPatch) (*model.DeliverySettings, error) {
	var updated *model.DeliverySettings

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var raw []byte
		s := model.DefaultDeliverySettings()

		query := `SELECT settings FROM telegram_settings WHERE id = $1 FOR UPDATE`
		err := tx.GetContext(ctx, &raw, query, settingsRowID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to load settings: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("failed to decode settings: %w", err)
			}
			s.Normalize()
		}

		patch.Apply(&s)
		s.UpdatedAt = time.Now()

		encoded, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to encode settings: %w", err)
		}

		upsert := `
			INSERT INTO telegram_settings (id, settings, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE
			SET settings = $2, updated_at = $3
		`
		if _, err := tx.ExecContext(ctx, upsert, settingsRowID, encoded, s.UpdatedAt); err != nil {
			return fmt.Errorf("failed to store settings: %w", err)
		}

		updated = &s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
