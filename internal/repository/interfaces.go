package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trendlens/admin-api/internal/model"
)

// AlertRepository is the dispatcher's view of the alert source. The source
// owns ordering and priority; readers never re-sort.
type AlertRepository interface {
	ListByStatus(ctx context.Context, status model.AlertStatus, limit int) ([]*model.AlertEvent, error)
	Create(ctx context.Context, alert *model.AlertEvent) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.AlertStatus) error
}

// SettingsRepository stores the single delivery settings record.
type SettingsRepository interface {
	// Get returns stored settings, or synthesized defaults when no record
	// exists yet. Absence is not an error.
	Get(ctx context.Context) (*model.DeliverySettings, error)
	// Patch merges the given fields into the stored record and returns the
	// result. Unspecified nested map keys are preserved.
	Patch(ctx context.Context, patch model.DeliverySettingsPatch) (*model.DeliverySettings, error)
}

// DeliveryRepository is the append-only delivery history log.
type DeliveryRepository interface {
	Record(ctx context.Context, rec *model.DeliveryRecord) error
	// LastSentAt returns the sent_at of the most recent SENT record for the
	// account/type pair, or nil when none exists.
	LastSentAt(ctx context.Context, accountID string, t model.AlertType) (*time.Time, error)
	List(ctx context.Context, limit int) ([]*model.DeliveryRecord, error)
	Stats(ctx context.Context, since time.Time) (*model.DeliveryStats, error)
}

// ConnectionRepository is the durable registry of platform user to
// messaging destination mappings.
type ConnectionRepository interface {
	// Upsert creates or updates the connection owned by conn.UserID,
	// merging the subscription block rather than replacing it.
	Upsert(ctx context.Context, conn *model.Connection) error
	GetByUser(ctx context.Context, userID string) (*model.Connection, error)
	GetByDestination(ctx context.Context, destinationID string) (*model.Connection, error)
	// ListActive returns every active connection whose subscription does
	// not opt out entirely.
	ListActive(ctx context.Context) ([]*model.Connection, error)
	// StorePendingLink attaches one-shot link credentials (a deep-link
	// token and a short code, both redeeming the same pending state) to
	// the user's connection row, creating a pending row if none exists.
	StorePendingLink(ctx context.Context, userID, token, code string, expires time.Time) error
	// RedeemPendingLink consumes an unexpired credential (token or code)
	// and returns the owner's user id. Expired or unknown credentials fail
	// with "invalid or expired".
	RedeemPendingLink(ctx context.Context, credential string, now time.Time) (string, error)
	SetActive(ctx context.Context, userID string, active bool) error
	UpdateSubscription(ctx context.Context, userID string, sub model.Subscription) error
}
