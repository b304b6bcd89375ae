package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trendlens/admin-api/internal/model"
	"github.com/trendlens/admin-api/internal/repository"
	apperrors "github.com/trendlens/admin-api/pkg/errors"
)

type connectionRepository struct {
	BaseRepository
}

func NewConnectionRepository(base BaseRepository) repository.ConnectionRepository {
	return &connectionRepository{base}
}

// connectionRow adapts the jsonb subscription column for sqlx scanning.
type connectionRow struct {
	ID                 uuid.UUID  `db:"id"`
	UserID             string     `db:"user_id"`
	DestinationID      string     `db:"destination_id"`
	Username           string     `db:"username"`
	IsActive           bool       `db:"is_active"`
	Subscription       []byte     `db:"subscription"`
	PendingLinkToken   *string    `db:"pending_link_token"`
	PendingLinkExpires *time.Time `db:"pending_link_expires"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}

func (row *connectionRow) toModel() (*model.Connection, error) {
	conn := &model.Connection{
		ID:                 row.ID,
		UserID:             row.UserID,
		DestinationID:      row.DestinationID,
		Username:           row.Username,
		IsActive:           row.IsActive,
		PendingLinkToken:   row.PendingLinkToken,
		PendingLinkExpires: row.PendingLinkExpires,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
	if len(row.Subscription) > 0 {
		if err := json.Unmarshal(row.Subscription, &conn.Subscription); err != nil {
			return nil, fmt.Errorf("failed to decode subscription for %s: %w", row.UserID, err)
		}
	}
	return conn, nil
}

const connectionColumns = `
	id, user_id, destination_id, username, is_active,
	subscription, pending_link_token, pending_link_expires,
	created_at, updated_at
`

func (r *connectionRepository) Upsert(ctx context.Context, conn *model.Connection) error {
	sub, err := json.Marshal(conn.Subscription)
	if err != nil {
		return fmt.Errorf("failed to encode subscription: %w", err)
	}

	// Existing preference keys survive a relink: the stored subscription
	// is merged with the incoming block, not replaced by it.
	query := `
		INSERT INTO telegram_connections (
			id, user_id, destination_id, username, is_active,
			subscription, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET destination_id = $3,
		    username = $4,
		    is_active = $5,
		    subscription = telegram_connections.subscription || EXCLUDED.subscription,
		    pending_link_token = NULL,
		    pending_link_code = NULL,
		    pending_link_expires = NULL,
		    updated_at = NOW()
	`

	_, err = r.GetDB().ExecContext(ctx, query,
		conn.ID,
		conn.UserID,
		conn.DestinationID,
		conn.Username,
		conn.IsActive,
		sub,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert connection: %w", err)
	}
	return nil
}

func (r *connectionRepository) GetByUser(ctx context.Context, userID string) (*model.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM telegram_connections WHERE user_id = $1`

	var row connectionRow
	err := r.GetDB().GetContext(ctx, &row, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("connection", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return row.toModel()
}

func (r *connectionRepository) GetByDestination(ctx context.Context, destinationID string) (*model.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM telegram_connections WHERE destination_id = $1`

	var row connectionRow
	err := r.GetDB().GetContext(ctx, &row, query, destinationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("connection", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return row.toModel()
}

func (r *connectionRepository) ListActive(ctx context.Context) ([]*model.Connection, error) {
	// The per-user master flag defaults to on when absent; only an
	// explicit false excludes the row. Per-type filtering happens in the
	// dispatcher against the decoded subscription.
	query := `
		SELECT ` + connectionColumns + `
		FROM telegram_connections
		WHERE is_active = TRUE
		AND COALESCE((subscription->>'enabled')::boolean, TRUE)
		ORDER BY created_at ASC
	`

	var rows []connectionRow
	if err := r.GetDB().SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list active connections: %w", err)
	}

	conns := make([]*model.Connection, 0, len(rows))
	for i := range rows {
		conn, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, nil
}

func (r *connectionRepository) StorePendingLink(ctx context.Context, userID, token, code string, expires time.Time) error {
	query := `
		INSERT INTO telegram_connections (
			id, user_id, destination_id, username, is_active,
			subscription, pending_link_token, pending_link_code, pending_link_expires,
			created_at, updated_at
		) VALUES ($1, $2, '', '', FALSE, '{}', $3, $4, $5, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET pending_link_token = $3,
		    pending_link_code = $4,
		    pending_link_expires = $5,
		    updated_at = NOW()
	`

	_, err := r.GetDB().ExecContext(ctx, query, uuid.New(), userID, token, code, expires)
	if err != nil {
		return fmt.Errorf("failed to store pending link: %w", err)
	}
	return nil
}

// RedeemPendingLink consumes the credential atomically; expiry is checked
// at redemption time, there is no background sweep. Token and short code
// redeem the same pending state.
func (r *connectionRepository) RedeemPendingLink(ctx context.Context, credential string, now time.Time) (string, error) {
	var userID string
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE telegram_connections
			SET pending_link_token = NULL,
			    pending_link_code = NULL,
			    pending_link_expires = NULL,
			    updated_at = NOW()
			WHERE (pending_link_token = $1 OR pending_link_code = $1)
			AND pending_link_expires > $2
			RETURNING user_id
		`
		err := tx.GetContext(ctx, &userID, query, credential, now)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.ErrInvalidOrExpired
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (r *connectionRepository) SetActive(ctx context.Context, userID string, active bool) error {
	query := `
		UPDATE telegram_connections
		SET is_active = $2, updated_at = NOW()
		WHERE user_id = $1
	`

	result, err := r.GetDB().ExecContext(ctx, query, userID, active)
	if err != nil {
		return fmt.Errorf("failed to update connection state: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("connection", nil)
	}
	return nil
}

func (r *connectionRepository) UpdateSubscription(ctx context.Context, userID string, sub model.Subscription) error {
	encoded, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to encode subscription: %w", err)
	}

	query := `
		UPDATE telegram_connections
		SET subscription = $2, updated_at = NOW()
		WHERE user_id = $1
	`

	result, err := r.GetDB().ExecContext(ctx, query, userID, encoded)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("connection", nil)
	}
	return nil
}
