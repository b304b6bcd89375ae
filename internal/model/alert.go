package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AlertType is the closed set of alert categories produced by the scoring
// engine. Unknown types are rejected at the boundary, never defaulted.
type AlertType string

const (
	AlertTypeEarlyBreakout      AlertType = "EARLY_BREAKOUT"
	AlertTypeStrongAcceleration AlertType = "STRONG_ACCELERATION"
	AlertTypeTrendReversal      AlertType = "TREND_REVERSAL"
	AlertTypeTest               AlertType = "TEST"
)

// AlertTypes lists every valid type. Order matters for deterministic
// iteration in settings normalization and message rendering.
var AlertTypes = []AlertType{
	AlertTypeEarlyBreakout,
	AlertTypeStrongAcceleration,
	AlertTypeTrendReversal,
	AlertTypeTest,
}

// ParseAlertType validates a raw type string against the closed enumeration.
func ParseAlertType(s string) (AlertType, error) {
	t := AlertType(s)
	for _, known := range AlertTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown alert type: %q", s)
}

type AlertStatus string

const (
	AlertStatusPreview AlertStatus = "PREVIEW"
	AlertStatusSent    AlertStatus = "SENT"
)

// MetricsSnapshot is the scoring payload attached to an alert. The
// dispatcher treats it as opaque input for message formatting only.
type MetricsSnapshot struct {
	InfluenceScore float64 `json:"influence_score" db:"-"`
	Velocity       float64 `json:"velocity" db:"-"`
	Acceleration   float64 `json:"acceleration" db:"-"`
	Risk           float64 `json:"risk" db:"-"`
	TrendState     string  `json:"trend_state" db:"-"`
}

// AlertEvent is a scored event about an account, pending a delivery
// decision. The alert source owns the status lifecycle; the dispatcher only
// reads PREVIEW alerts and marks them SENT.
type AlertEvent struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Type      AlertType       `json:"type" db:"type"`
	AccountID string          `json:"account_id" db:"account_id"`
	Username  string          `json:"username" db:"username"`
	Severity  float64         `json:"severity" db:"severity"`
	Status    AlertStatus     `json:"status" db:"status"`
	Metrics   MetricsSnapshot `json:"metrics_snapshot" db:"-"`
	RawMetric json.RawMessage `json:"-" db:"metrics_snapshot"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// DecodeMetrics fills Metrics from the stored jsonb column.
func (a *AlertEvent) DecodeMetrics() error {
	if len(a.RawMetric) == 0 {
		return nil
	}
	return json.Unmarshal(a.RawMetric, &a.Metrics)
}
