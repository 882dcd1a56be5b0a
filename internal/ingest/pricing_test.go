package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/store"
)

func TestResolvePricePicksLatestEffectiveRow(t *testing.T) {
	f := newFixture(t)
	f.addPrice(t, "", domain.FuelPetrol, "95.00", fixedNow.Add(-72*time.Hour))
	f.addPrice(t, "", domain.FuelPetrol, "97.00", fixedNow.Add(-48*time.Hour))
	f.addPrice(t, "", domain.FuelPetrol, "99.00", fixedNow.Add(-24*time.Hour))
	f.addPrice(t, "", domain.FuelPetrol, "120.00", fixedNow.Add(24*time.Hour))

	price, err := ResolvePrice(context.Background(), f.repo, "st-1", domain.FuelPetrol, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "99.00", price.PricePerLitre.StringFixed(2))
	assert.Equal(t, PriceScopeDefault, PriceScope(*price))
}

func TestResolvePricePrefersStationOverNewerDefault(t *testing.T) {
	f := newFixture(t)
	f.addPrice(t, "st-1", domain.FuelPetrol, "101.00", fixedNow.Add(-72*time.Hour))
	f.addPrice(t, "", domain.FuelPetrol, "99.00", fixedNow.Add(-time.Hour))

	price, err := ResolvePrice(context.Background(), f.repo, "st-1", domain.FuelPetrol, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "101.00", price.PricePerLitre.StringFixed(2))
	assert.Equal(t, PriceScopeStation, PriceScope(*price))

	fallback, err := ResolvePrice(context.Background(), f.repo, "st-2", domain.FuelPetrol, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "99.00", fallback.PricePerLitre.StringFixed(2))
}

func TestResolvePriceIgnoresFutureStationRow(t *testing.T) {
	f := newFixture(t)
	f.addPrice(t, "st-1", domain.FuelPetrol, "101.00", fixedNow.Add(time.Hour))
	f.addPrice(t, "", domain.FuelPetrol, "99.00", fixedNow.Add(-time.Hour))

	price, err := ResolvePrice(context.Background(), f.repo, "st-1", domain.FuelPetrol, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "99.00", price.PricePerLitre.StringFixed(2))
}

func TestResolvePriceNotFound(t *testing.T) {
	f := newFixture(t)
	f.addPrice(t, "", domain.FuelPetrol, "99.00", fixedNow.Add(-time.Hour))

	_, err := ResolvePrice(context.Background(), f.repo, "st-1", domain.FuelDiesel, fixedNow)
	assert.ErrorIs(t, err, store.ErrPriceNotFound)

	_, err = ResolvePrice(context.Background(), f.repo, "st-1", domain.FuelType("LPG"), fixedNow)
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestCurrentPriceUsesPipelineClock(t *testing.T) {
	f := newFixture(t)
	f.addPrice(t, "", domain.FuelCNG, "70.00", fixedNow.Add(-time.Minute))
	f.addPrice(t, "", domain.FuelCNG, "75.00", fixedNow.Add(time.Minute))

	price, err := f.pipeline.CurrentPrice(context.Background(), "st-1", domain.FuelCNG)
	require.NoError(t, err)
	assert.Equal(t, "70.00", price.PricePerLitre.StringFixed(2))
}
