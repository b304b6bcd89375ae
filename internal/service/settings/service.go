package settings

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/trendlens/admin-api/internal/model"
	"github.com/trendlens/admin-api/internal/repository"
)

const (
	cacheKey = "delivery_settings"
	cacheTTL = 30 * time.Second
)

// Service fronts the settings store with a short-lived cache. The dispatcher
// reads settings on every pass; the admin patches them rarely.
type Service struct {
	repo  repository.SettingsRepository
	cache *gocache.Cache
}

func NewService(repo repository.SettingsRepository) *Service {
	return &Service{
		repo:  repo,
		cache: gocache.New(cacheTTL, 2*cacheTTL),
	}
}

func (s *Service) Get(ctx context.Context) (*model.DeliverySettings, error) {
	if cached, ok := s.cache.Get(cacheKey); ok {
		settings := cached.(model.DeliverySettings)
		return &settings, nil
	}

	settings, err := s.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set(cacheKey, *settings, cacheTTL)
	return settings, nil
}

func (s *Service) Patch(ctx context.Context, patch model.DeliverySettingsPatch) (*model.DeliverySettings, error) {
	updated, err := s.repo.Patch(ctx, patch)
	if err != nil {
		return nil, err
	}
	s.cache.Set(cacheKey, *updated, cacheTTL)
	return updated, nil
}
