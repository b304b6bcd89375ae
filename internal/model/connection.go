package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Subscription holds a user's notification preferences. Enabled is the
// master per-user override; per-type entries are optional and only an
// explicit false suppresses that type. TEST alerts bypass type filtering.
type Subscription struct {
	Enabled *bool              `json:"enabled,omitempty"`
	ByType  map[AlertType]bool `json:"by_type,omitempty"`
}

// WantsAlerts reports whether the subscription opts in at all. A missing
// master flag defaults to true.
func (s Subscription) WantsAlerts() bool {
	return s.Enabled == nil || *s.Enabled
}

// WantsType reports whether the subscription accepts the given alert type.
func (s Subscription) WantsType(t AlertType) bool {
	if !s.WantsAlerts() {
		return false
	}
	if t == AlertTypeTest {
		return true
	}
	if v, ok := s.ByType[t]; ok {
		return v
	}
	return true
}

// Connection maps a platform user to a messaging destination, with its
// onboarding and subscription state. Lifecycle:
// PENDING_LINK -> ACTIVE -> DEACTIVATED -> ACTIVE (relink).
type Connection struct {
	ID                 uuid.UUID    `json:"id" db:"id"`
	UserID             string       `json:"user_id" db:"user_id"`
	DestinationID      string       `json:"destination_id" db:"destination_id"`
	Username           string       `json:"username" db:"username"`
	IsActive           bool         `json:"is_active" db:"is_active"`
	Subscription       Subscription `json:"subscription" db:"-"`
	PendingLinkToken   *string      `json:"-" db:"pending_link_token"`
	PendingLinkExpires *time.Time   `json:"-" db:"pending_link_expires"`
	CreatedAt          time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at" db:"updated_at"`
}

// MaskedDestination renders the destination for admin views, keeping only
// the last four characters.
func (c Connection) MaskedDestination() string {
	d := c.DestinationID
	if len(d) <= 4 {
		return "***" + d
	}
	return "***" + d[len(d)-4:]
}

// LinkToken is the transient deep-link onboarding state handed to the
// frontend. The token is redeemed exactly once via the bot /start payload.
type LinkToken struct {
	Token       string `json:"token"`
	Code        string `json:"code"`
	Link        string `json:"link"`
	ExpiresIn   int    `json:"expiresIn"`
	BotUsername string `json:"botUsername"`
}

// ConnectionStatus is the admin-facing view of a user's connection.
type ConnectionStatus struct {
	Connected   bool               `json:"connected"`
	Username    string             `json:"username,omitempty"`
	ChatID      string             `json:"chatId,omitempty"`
	Preferences map[AlertType]bool `json:"eventPreferences,omitempty"`
}

// DeepLink builds the t.me start link for a pending token.
func DeepLink(botUsername, token string) string {
	return fmt.Sprintf("https://t.me/%s?start=link_%s", botUsername, token)
}
