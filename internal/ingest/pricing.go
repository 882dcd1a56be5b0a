package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/store"
)

const (
	PriceScopeStation = "station"
	PriceScopeDefault = "default"
)

// ResolvePrice returns the price per litre in effect at asOf. The latest
// station-specific row wins; the latest station-agnostic default is used
// only when the station has none. Ties on valid_from go to the newest row.
func ResolvePrice(ctx context.Context, prices store.PriceReader, stationID string, fuelType domain.FuelType, asOf time.Time) (*domain.FuelPrice, error) {
	if !fuelType.Valid() {
		return nil, fmt.Errorf("%w: unknown fuel type %q", store.ErrValidation, fuelType)
	}

	if stationID != "" {
		price, err := prices.LatestPrice(ctx, stationID, fuelType, asOf)
		if err == nil {
			return price, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("resolve station price: %w", err)
		}
	}

	price, err := prices.LatestPrice(ctx, "", fuelType, asOf)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrPriceNotFound
		}
		return nil, fmt.Errorf("resolve default price: %w", err)
	}
	return price, nil
}

func PriceScope(price domain.FuelPrice) string {
	if price.IsDefault() {
		return PriceScopeDefault
	}
	return PriceScopeStation
}
