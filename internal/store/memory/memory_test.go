package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"fuelstation/backend/internal/domain"
)

func TestListFuelPricesBreaksValidFromTiesByCreatedAt(t *testing.T) {
	s := New()
	s.AddStation(domain.Station{ID: "st-1", Name: "North"})
	ctx := context.Background()
	validFrom := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for _, p := range []struct {
		id        string
		price     string
		createdAt time.Time
	}{
		{"fp-early", "100.00", validFrom.Add(time.Minute)},
		{"fp-late", "101.00", validFrom.Add(time.Hour)},
		{"fp-middle", "100.50", validFrom.Add(10 * time.Minute)},
	} {
		_, err := s.CreateFuelPrice(ctx, domain.FuelPrice{
			ID:            p.id,
			StationID:     "st-1",
			FuelType:      domain.FuelPetrol,
			PricePerLitre: decimal.RequireFromString(p.price),
			ValidFrom:     validFrom,
			CreatedAt:     p.createdAt,
		})
		require.NoError(t, err)
	}

	prices, err := s.ListFuelPrices(ctx, "st-1", domain.FuelPetrol, 0)
	require.NoError(t, err)
	require.Len(t, prices, 3)
	assert.Equal(t, []string{"fp-late", "fp-middle", "fp-early"}, []string{prices[0].ID, prices[1].ID, prices[2].ID})

	latest, err := s.LatestPrice(ctx, "st-1", domain.FuelPetrol, validFrom.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, prices[0].ID, latest.ID)
}

func TestNewSeededWarnsAboutDefaultCredentials(t *testing.T) {
	t.Setenv("SEED_SUPERADMIN_PASSWORD", "")
	t.Setenv("SEED_OWNER_PASSWORD", "")
	t.Setenv("SEED_EMPLOYEE_PASSWORD", "")

	core, logs := observer.New(zapcore.InfoLevel)
	s, err := NewSeeded(zap.New(core))
	require.NoError(t, err)

	warnings := logs.FilterMessage("using default dev credentials, set SEED_*_PASSWORD to override").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, zapcore.WarnLevel, warnings[0].Level)
	assert.Equal(t, "memory-store", warnings[0].LoggerName)

	users, err := s.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 3)
}

func TestNewSeededUsesConfiguredPasswords(t *testing.T) {
	t.Setenv("SEED_SUPERADMIN_PASSWORD", "root-secret")
	t.Setenv("SEED_OWNER_PASSWORD", "owner-secret")
	t.Setenv("SEED_EMPLOYEE_PASSWORD", "employee-secret")

	core, logs := observer.New(zapcore.InfoLevel)
	s, err := NewSeeded(zap.New(core))
	require.NoError(t, err)
	assert.Zero(t, logs.Len())

	users, err := s.ListUsers(context.Background())
	require.NoError(t, err)
	for _, user := range users {
		if user.Username != "owner" {
			continue
		}
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("owner-secret")))
		assert.Equal(t, "st-001", user.StationID)
	}

	_, err = NewSeeded(nil)
	require.NoError(t, err)
}
