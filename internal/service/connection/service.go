package connection

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trendlens/admin-api/internal/model"
	"github.com/trendlens/admin-api/internal/repository"
	apperrors "github.com/trendlens/admin-api/pkg/errors"
	"github.com/trendlens/admin-api/pkg/logger"
)

// Service owns the connection lifecycle:
// PENDING_LINK -> ACTIVE -> DEACTIVATED -> ACTIVE (relink).
// Both redemption paths (deep-link token, short code) converge on
// CompleteLink, so there is exactly one authoritative transition.
type Service struct {
	repo        repository.ConnectionRepository
	botUsername string
	linkTTL     time.Duration
	logger      *logger.Logger
}

func NewService(repo repository.ConnectionRepository, botUsername string, linkTTL time.Duration, log *logger.Logger) *Service {
	if linkTTL <= 0 {
		linkTTL = 10 * time.Minute
	}
	return &Service{
		repo:        repo,
		botUsername: botUsername,
		linkTTL:     linkTTL,
		logger:      log.WithComponent("connection"),
	}
}

// CreateLinkToken issues fresh link credentials for the user and returns
// the deep link the frontend renders. Re-issuing replaces any previous
// unredeemed credentials.
func (s *Service) CreateLinkToken(ctx context.Context, userID string) (*model.LinkToken, error) {
	token := strings.ReplaceAll(uuid.New().String(), "-", "")
	code, err := shortCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate link code: %w", err)
	}

	expires := time.Now().Add(s.linkTTL)
	if err := s.repo.StorePendingLink(ctx, userID, token, code, expires); err != nil {
		return nil, err
	}

	return &model.LinkToken{
		Token:       token,
		Code:        code,
		Link:        model.DeepLink(s.botUsername, token),
		ExpiresIn:   int(s.linkTTL.Seconds()),
		BotUsername: s.botUsername,
	}, nil
}

// RedeemCredential consumes a link token or short code and establishes the
// connection for its owner. Expired or unknown credentials fail with
// "invalid or expired" and leave the connection unestablished.
func (s *Service) RedeemCredential(ctx context.Context, credential, destinationID, username string) (*model.Connection, error) {
	userID, err := s.repo.RedeemPendingLink(ctx, credential, time.Now())
	if err != nil {
		return nil, err
	}
	return s.CompleteLink(ctx, userID, destinationID, username)
}

// CompleteLink is the single transition into ACTIVE, used by both
// redemption adapters. Relinking the same user overwrites the destination
// but merges the preference block.
func (s *Service) CompleteLink(ctx context.Context, userID, destinationID, username string) (*model.Connection, error) {
	conn := &model.Connection{
		ID:            uuid.New(),
		UserID:        userID,
		DestinationID: destinationID,
		Username:      username,
		IsActive:      true,
	}
	if err := s.repo.Upsert(ctx, conn); err != nil {
		return nil, err
	}

	s.logger.Info("connection established", "user_id", userID)
	return s.repo.GetByUser(ctx, userID)
}

// ByDestination resolves the connection owning a messaging destination.
// Used by the bot side, where only the chat is known.
func (s *Service) ByDestination(ctx context.Context, destinationID string) (*model.Connection, error) {
	return s.repo.GetByDestination(ctx, destinationID)
}

// Disconnect deactivates the connection; the row and its preferences
// survive for relinking. Already-inactive connections disconnect cleanly,
// which keeps replayed bot commands harmless.
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	if err := s.repo.SetActive(ctx, userID, false); err != nil {
		return err
	}
	s.logger.Info("connection deactivated", "user_id", userID)
	return nil
}

// Status renders the admin-facing view, masking the destination id.
func (s *Service) Status(ctx context.Context, userID string) (*model.ConnectionStatus, error) {
	conn, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrNotFound) {
			return &model.ConnectionStatus{Connected: false}, nil
		}
		return nil, err
	}
	if !conn.IsActive || conn.DestinationID == "" {
		return &model.ConnectionStatus{Connected: false}, nil
	}

	prefs := make(map[model.AlertType]bool, len(model.AlertTypes))
	for _, t := range model.AlertTypes {
		if t == model.AlertTypeTest {
			continue
		}
		prefs[t] = conn.Subscription.WantsType(t)
	}

	return &model.ConnectionStatus{
		Connected:   true,
		Username:    conn.Username,
		ChatID:      conn.MaskedDestination(),
		Preferences: prefs,
	}, nil
}

// GetPreferences returns the per-type preferences of an active connection.
func (s *Service) GetPreferences(ctx context.Context, userID string) (map[model.AlertType]bool, error) {
	conn, err := s.activeConnection(ctx, userID)
	if err != nil {
		return nil, err
	}

	prefs := make(map[model.AlertType]bool, len(model.AlertTypes))
	for _, t := range model.AlertTypes {
		if t == model.AlertTypeTest {
			continue
		}
		prefs[t] = conn.Subscription.WantsType(t)
	}
	return prefs, nil
}

// UpdatePreferences merges raw preference updates. Unknown keys are
// ignored; an update carrying no valid keys is an error.
func (s *Service) UpdatePreferences(ctx context.Context, userID string, raw map[string]bool) (map[model.AlertType]bool, error) {
	conn, err := s.activeConnection(ctx, userID)
	if err != nil {
		return nil, err
	}

	sub := conn.Subscription
	if sub.ByType == nil {
		sub.ByType = map[model.AlertType]bool{}
	}

	applied := 0
	for key, val := range raw {
		t, err := model.ParseAlertType(key)
		if err != nil || t == model.AlertTypeTest {
			continue
		}
		sub.ByType[t] = val
		applied++
	}
	if applied == 0 {
		return nil, apperrors.ErrEmptyPreferencePut
	}

	if err := s.repo.UpdateSubscription(ctx, userID, sub); err != nil {
		return nil, err
	}
	return s.GetPreferences(ctx, userID)
}

// SetMuted flips the per-user master flag (mute all) or a single type.
func (s *Service) SetMuted(ctx context.Context, userID string, t *model.AlertType, muted bool) error {
	conn, err := s.activeConnection(ctx, userID)
	if err != nil {
		return err
	}

	sub := conn.Subscription
	if t == nil {
		enabled := !muted
		sub.Enabled = &enabled
	} else {
		if sub.ByType == nil {
			sub.ByType = map[model.AlertType]bool{}
		}
		sub.ByType[*t] = !muted
	}
	return s.repo.UpdateSubscription(ctx, userID, sub)
}

func (s *Service) activeConnection(ctx context.Context, userID string) (*model.Connection, error) {
	conn, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNoConnection
		}
		return nil, err
	}
	if !conn.IsActive {
		return nil, apperrors.ErrNoConnection
	}
	return conn, nil
}

// shortCode generates the 6-digit redemption code for the /link command.
func shortCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
