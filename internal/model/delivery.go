package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultCooldown applies when a type is missing from the cooldown map.
// Filled in explicitly by Normalize, never left implicit at dispatch time.
const DefaultCooldown = 12 * time.Hour

// DeliverySettings is the single admin-tunable configuration record for
// alert delivery. Field names follow the admin API contract.
type DeliverySettings struct {
	Enabled     bool                  `json:"enabled"`
	PreviewOnly bool                  `json:"preview_only"`
	ChatID      string                `json:"chat_id"`
	CooldownHrs map[AlertType]float64 `json:"cooldown_hours"`
	TypeEnabled map[AlertType]bool    `json:"type_enabled"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// DefaultDeliverySettings synthesizes the configuration used when no record
// has been stored yet. Absence of the record is not an error.
func DefaultDeliverySettings() DeliverySettings {
	s := DeliverySettings{
		Enabled:     false,
		PreviewOnly: true,
		CooldownHrs: map[AlertType]float64{},
		TypeEnabled: map[AlertType]bool{},
	}
	s.Normalize()
	return s
}

// Normalize makes both per-type maps total over the enumeration. Missing
// cooldown entries get the explicit default; missing enablement entries
// default to on (TEST included, it is only reachable via the test endpoint).
func (s *DeliverySettings) Normalize() {
	if s.CooldownHrs == nil {
		s.CooldownHrs = map[AlertType]float64{}
	}
	if s.TypeEnabled == nil {
		s.TypeEnabled = map[AlertType]bool{}
	}
	for _, t := range AlertTypes {
		if _, ok := s.CooldownHrs[t]; !ok {
			s.CooldownHrs[t] = DefaultCooldown.Hours()
		}
		if _, ok := s.TypeEnabled[t]; !ok {
			s.TypeEnabled[t] = true
		}
	}
}

// Cooldown returns the minimum interval between two delivered alerts of the
// same type for the same account.
func (s *DeliverySettings) Cooldown(t AlertType) time.Duration {
	hrs, ok := s.CooldownHrs[t]
	if !ok || hrs <= 0 {
		return DefaultCooldown
	}
	return time.Duration(hrs * float64(time.Hour))
}

// DeliverySettingsPatch carries a partial admin update. Nil pointers and nil
// maps mean "leave unchanged"; map entries merge per key.
type DeliverySettingsPatch struct {
	Enabled     *bool                 `json:"enabled,omitempty"`
	PreviewOnly *bool                 `json:"preview_only,omitempty"`
	ChatID      *string               `json:"chat_id,omitempty"`
	CooldownHrs map[AlertType]float64 `json:"cooldown_hours,omitempty"`
	TypeEnabled map[AlertType]bool    `json:"type_enabled,omitempty"`
}

// Apply merges the patch into s. Unspecified nested keys are preserved.
func (p DeliverySettingsPatch) Apply(s *DeliverySettings) {
	if p.Enabled != nil {
		s.Enabled = *p.Enabled
	}
	if p.PreviewOnly != nil {
		s.PreviewOnly = *p.PreviewOnly
	}
	if p.ChatID != nil {
		s.ChatID = *p.ChatID
	}
	for t, h := range p.CooldownHrs {
		s.CooldownHrs[t] = h
	}
	for t, on := range p.TypeEnabled {
		s.TypeEnabled[t] = on
	}
}

type DeliveryStatus string

const (
	DeliveryStatusPreview    DeliveryStatus = "PREVIEW"
	DeliveryStatusSent       DeliveryStatus = "SENT"
	DeliveryStatusSkipped    DeliveryStatus = "SKIPPED"
	DeliveryStatusSuppressed DeliveryStatus = "SUPPRESSED"
	DeliveryStatusFailed     DeliveryStatus = "FAILED"
)

// Skip reason codes recorded on SKIPPED deliveries.
const (
	SkipReasonTypeDisabled  = "type_disabled"
	SkipReasonCooldown      = "cooldown"
	SkipReasonNoSubscribers = "no_subscribers"
)

// DeliveryRecord is one append-only row of delivery history. Exactly one
// record per alert per dispatch attempt; rows are never mutated.
type DeliveryRecord struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	AlertID        uuid.UUID      `json:"alert_id" db:"alert_id"`
	Type           AlertType      `json:"type" db:"type"`
	AccountID      string         `json:"account_id" db:"account_id"`
	DeliveryStatus DeliveryStatus `json:"delivery_status" db:"delivery_status"`
	DeliveryReason *string        `json:"delivery_reason,omitempty" db:"delivery_reason"`
	Target         *string        `json:"target,omitempty" db:"target"`
	SentAt         *time.Time     `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// DeliveryStats aggregates history over a time window for the admin UI.
type DeliveryStats struct {
	Total   int `json:"total" db:"total"`
	Sent    int `json:"sent" db:"sent"`
	Skipped int `json:"skipped" db:"skipped"`
	Failed  int `json:"failed" db:"failed"`
}

// DispatchResult is the aggregate outcome of one dispatch pass.
type DispatchResult struct {
	Sent    int    `json:"sent"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
	Reason  string `json:"reason,omitempty"`
}

// Dispatch no-op reasons, distinguishable for operator diagnosis.
const (
	DispatchReasonDisabled    = "disabled"
	DispatchReasonPreviewOnly = "preview_only"
)
