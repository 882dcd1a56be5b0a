package cache

import (
	"context"
	"time"

	"fuelstation/backend/internal/domain"
)

// NozzleCache holds resolved nozzle contexts keyed by caller-chosen keys.
// Nozzle reference data changes rarely, so entries only expire by TTL.
type NozzleCache interface {
	Get(ctx context.Context, key string) (*domain.NozzleContext, bool, error)
	Set(ctx context.Context, key string, value *domain.NozzleContext, ttl time.Duration) error
}

type NoopNozzleCache struct{}

func (NoopNozzleCache) Get(_ context.Context, _ string) (*domain.NozzleContext, bool, error) {
	return nil, false, nil
}

func (NoopNozzleCache) Set(_ context.Context, _ string, _ *domain.NozzleContext, _ time.Duration) error {
	return nil
}
