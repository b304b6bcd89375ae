package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trendlens/admin-api/internal/model"
	"github.com/trendlens/admin-api/internal/repository"
	apperrors "github.com/trendlens/admin-api/pkg/errors"
	"github.com/trendlens/admin-api/pkg/logger"
	"github.com/trendlens/admin-api/pkg/messaging"
	"github.com/trendlens/admin-api/pkg/metrics"
)

// Sender is the transport the dispatcher fans out through.
type Sender interface {
	Send(ctx context.Context, destination, text string) error
}

// SettingsProvider yields the current delivery settings.
type SettingsProvider interface {
	Get(ctx context.Context) (*model.DeliverySettings, error)
}

// Service evaluates delivery policy for pending alerts and performs the
// fan-out send. One active caller is assumed; the cooldown check and the
// upstream status mark are the only de-duplication.
type Service struct {
	settings    SettingsProvider
	alerts      repository.AlertRepository
	deliveries  repository.DeliveryRepository
	connections repository.ConnectionRepository
	sender      Sender
	broker      messaging.Broker
	metrics     *metrics.Metrics
	logger      *logger.Logger

	// now is swappable for cooldown tests.
	now func() time.Time
}

func NewService(
	settings SettingsProvider,
	alerts repository.AlertRepository,
	deliveries repository.DeliveryRepository,
	connections repository.ConnectionRepository,
	sender Sender,
	broker messaging.Broker,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	return &Service{
		settings:    settings,
		alerts:      alerts,
		deliveries:  deliveries,
		connections: connections,
		sender:      sender,
		broker:      broker,
		metrics:     m,
		logger:      log.WithComponent("dispatch"),
		now:         time.Now,
	}
}

// DispatchPending pulls up to limit PREVIEW alerts and evaluates each one
// against the delivery policy. Alerts are processed in source order; a
// failure on one alert never aborts the rest of the batch.
func (s *Service) DispatchPending(ctx context.Context, dryRun bool, limit int) (*model.DispatchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	start := s.now()
	if s.metrics != nil {
		s.metrics.DispatchPasses.Inc()
		defer func() {
			s.metrics.DispatchLatency.Observe(time.Since(start).Seconds())
		}()
	}

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load delivery settings: %w", err)
	}

	// The two no-op modes are distinguishable on purpose: "disabled" means
	// the operator turned delivery off, "preview_only" means alerts are
	// being staged but not delivered.
	if !cfg.Enabled {
		return &model.DispatchResult{Reason: model.DispatchReasonDisabled}, nil
	}
	if cfg.PreviewOnly {
		return &model.DispatchResult{Reason: model.DispatchReasonPreviewOnly}, nil
	}

	alerts, err := s.alerts.ListByStatus(ctx, model.AlertStatusPreview, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to pull pending alerts: %w", err)
	}

	result := &model.DispatchResult{}
	for _, alert := range alerts {
		s.evaluate(ctx, cfg, alert, dryRun, result)
	}

	s.logger.Info("dispatch pass complete",
		"dry_run", dryRun,
		"sent", result.Sent,
		"skipped", result.Skipped,
		"failed", result.Failed)
	return result, nil
}

// evaluate runs one alert through the policy gates in order: type gate,
// cooldown gate, subscriber resolution, then fan-out.
func (s *Service) evaluate(ctx context.Context, cfg *model.DeliverySettings, alert *model.AlertEvent, dryRun bool, result *model.DispatchResult) {
	if !cfg.TypeEnabled[alert.Type] {
		s.recordSkip(ctx, alert, model.SkipReasonTypeDisabled, dryRun)
		result.Skipped++
		return
	}

	last, err := s.deliveries.LastSentAt(ctx, alert.AccountID, alert.Type)
	if err != nil {
		s.logger.Error(err, "cooldown lookup failed", "alert_id", alert.ID.String())
		s.recordFailure(ctx, alert, err, dryRun)
		result.Failed++
		return
	}
	if last != nil && s.now().Sub(*last) < cfg.Cooldown(alert.Type) {
		s.recordSkip(ctx, alert, model.SkipReasonCooldown, dryRun)
		result.Skipped++
		return
	}

	destinations, err := s.resolveSubscribers(ctx, cfg, alert.Type)
	if err != nil {
		s.logger.Error(err, "subscriber resolution failed", "alert_id", alert.ID.String())
		s.recordFailure(ctx, alert, err, dryRun)
		result.Failed++
		return
	}
	if len(destinations) == 0 {
		s.recordSkip(ctx, alert, model.SkipReasonNoSubscribers, dryRun)
		result.Skipped++
		return
	}

	// Dry run is a policy preview: no sends, no history, no status mark.
	if dryRun {
		result.Skipped++
		return
	}

	text := FormatAlert(alert)
	succeeded := s.fanOut(ctx, destinations, text)

	if succeeded > 0 {
		// Raw chat ids stay out of history; the log keeps a count only.
		target := fmt.Sprintf("%d/%d subscribers", succeeded, len(destinations))
		s.record(ctx, alert, model.DeliveryStatusSent, nil, &target, true)

		if err := s.alerts.UpdateStatus(ctx, alert.ID, model.AlertStatusSent); err != nil {
			// The alert stays PREVIEW upstream and may be re-evaluated next
			// pass; the cooldown window bounds the duplication.
			s.logger.Error(err, "failed to mark alert sent", "alert_id", alert.ID.String())
		}
		result.Sent++
		return
	}

	reason := fmt.Sprintf("all %d sends failed", len(destinations))
	s.record(ctx, alert, model.DeliveryStatusFailed, &reason, nil, false)
	result.Failed++
}

// resolveSubscribers returns every eligible destination for the alert type,
// with the admin destination appended when configured.
func (s *Service) resolveSubscribers(ctx context.Context, cfg *model.DeliverySettings, t model.AlertType) ([]string, error) {
	conns, err := s.connections.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var destinations []string
	for _, conn := range conns {
		if !conn.Subscription.WantsType(t) {
			continue
		}
		if conn.DestinationID == "" || seen[conn.DestinationID] {
			continue
		}
		seen[conn.DestinationID] = true
		destinations = append(destinations, conn.DestinationID)
	}

	if cfg.ChatID != "" && !seen[cfg.ChatID] {
		destinations = append(destinations, cfg.ChatID)
	}
	return destinations, nil
}

// fanOut sends to every destination concurrently and reports how many
// succeeded. Per-subscriber failures are logged, never propagated: partial
// success is success.
func (s *Service) fanOut(ctx context.Context, destinations []string, text string) int {
	var wg sync.WaitGroup
	results := make([]bool, len(destinations))

	for i, dest := range destinations {
		wg.Add(1)
		go func(i int, dest string) {
			defer wg.Done()
			if err := s.sender.Send(ctx, dest, text); err != nil {
				s.logger.Warn("send failed", "destination", dest, "error", err.Error())
				return
			}
			results[i] = true
		}(i, dest)
	}
	wg.Wait()

	succeeded := 0
	for _, ok := range results {
		if ok {
			succeeded++
		}
	}
	return succeeded
}

// SendTestMessage delivers one synthetic TEST alert to the preferred
// destination. Configuration problems fail fast with distinct errors; no
// send is attempted.
func (s *Service) SendTestMessage(ctx context.Context) (string, error) {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load delivery settings: %w", err)
	}
	if !cfg.Enabled {
		return "", apperrors.ErrDeliveryDisabled
	}
	if cfg.PreviewOnly {
		return "", apperrors.ErrPreviewOnly
	}

	destination := cfg.ChatID
	if destination == "" {
		conns, err := s.connections.ListActive(ctx)
		if err != nil {
			return "", err
		}
		for _, conn := range conns {
			if conn.Subscription.WantsType(model.AlertTypeTest) && conn.DestinationID != "" {
				destination = conn.DestinationID
				break
			}
		}
	}
	if destination == "" {
		return "", apperrors.ErrNoDestination
	}

	text := FormatTestMessage(s.now())
	if err := s.sender.Send(ctx, destination, text); err != nil {
		return "", fmt.Errorf("test message send failed: %w", err)
	}

	// Synthetic TEST events land in history for audit parity with real
	// alerts.
	now := s.now()
	masked := model.Connection{DestinationID: destination}.MaskedDestination()
	rec := &model.DeliveryRecord{
		ID:             uuid.New(),
		AlertID:        uuid.New(),
		Type:           model.AlertTypeTest,
		AccountID:      "test",
		DeliveryStatus: model.DeliveryStatusSent,
		Target:         &masked,
		SentAt:         &now,
		CreatedAt:      now,
	}
	if err := s.deliveries.Record(ctx, rec); err != nil {
		s.logger.Error(err, "failed to record test delivery")
	}
	s.publish(ctx, rec)

	return text, nil
}

func (s *Service) recordSkip(ctx context.Context, alert *model.AlertEvent, reason string, dryRun bool) {
	if dryRun {
		return
	}
	s.record(ctx, alert, model.DeliveryStatusSkipped, &reason, nil, false)
}

// recordFailure keeps gate errors visible in history so every evaluated
// alert leaves exactly one record per pass.
func (s *Service) recordFailure(ctx context.Context, alert *model.AlertEvent, cause error, dryRun bool) {
	if dryRun {
		return
	}
	reason := cause.Error()
	s.record(ctx, alert, model.DeliveryStatusFailed, &reason, nil, false)
}

func (s *Service) record(ctx context.Context, alert *model.AlertEvent, status model.DeliveryStatus, reason, target *string, sent bool) {
	now := s.now()
	rec := &model.DeliveryRecord{
		ID:             uuid.New(),
		AlertID:        alert.ID,
		Type:           alert.Type,
		AccountID:      alert.AccountID,
		DeliveryStatus: status,
		DeliveryReason: reason,
		Target:         target,
		CreatedAt:      now,
	}
	if sent {
		rec.SentAt = &now
	}

	if err := s.deliveries.Record(ctx, rec); err != nil {
		s.logger.Error(err, "failed to record delivery",
			"alert_id", alert.ID.String(),
			"status", string(status))
	}
	if s.metrics != nil {
		s.metrics.AlertsDispatched.WithLabelValues(string(status)).Inc()
	}
	s.publish(ctx, rec)
}

// publish is best-effort observability fan-out; a broker failure never
// affects the dispatch outcome.
func (s *Service) publish(ctx context.Context, rec *model.DeliveryRecord) {
	if s.broker == nil {
		return
	}
	msg := messaging.Message{Type: "delivery_recorded", Payload: rec}
	if err := s.broker.Publish(ctx, messaging.ChannelDeliveries, msg); err != nil {
		s.logger.Warn("failed to publish delivery event", "error", err.Error())
	}
}
