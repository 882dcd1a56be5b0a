package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/ingest"
	"fuelstation/backend/internal/store"
)

// CreateFuelPrice appends a price row. Owners price their own station;
// station-agnostic defaults are reserved for superadmins.
func (s *Service) CreateFuelPrice(ctx context.Context, req domain.FuelPriceCreateRequest) (domain.FuelPrice, error) {
	if err := s.validateStruct(req); err != nil {
		return domain.FuelPrice{}, err
	}
	if !req.PricePerLitre.IsPositive() {
		return domain.FuelPrice{}, fmt.Errorf("%w: price_per_litre must be positive", store.ErrValidation)
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.FuelPrice{}, store.ErrForbidden
	}
	stationID := strings.TrimSpace(req.StationID)
	if stationID == "" {
		if actor.Role != domain.RoleSuperadmin {
			return domain.FuelPrice{}, store.ErrForbidden
		}
	} else {
		if _, _, err := s.stationScope(ctx, stationID); err != nil {
			return domain.FuelPrice{}, err
		}
		if err := requireRole(actor, domain.RoleSuperadmin, domain.RoleOwner); err != nil {
			return domain.FuelPrice{}, err
		}
		if _, err := s.repo.GetStation(ctx, stationID); err != nil {
			return domain.FuelPrice{}, err
		}
	}

	validFrom := s.pipeline.Now()
	if req.ValidFrom != nil && !req.ValidFrom.IsZero() {
		validFrom = req.ValidFrom.UTC()
	}

	created, err := s.repo.CreateFuelPrice(ctx, domain.FuelPrice{
		StationID:     stationID,
		FuelType:      req.FuelType,
		PricePerLitre: req.PricePerLitre.Round(2),
		ValidFrom:     validFrom,
		CreatedBy:     actor.Username,
		CreatedAt:     s.pipeline.Now(),
	})
	if err != nil {
		return domain.FuelPrice{}, err
	}

	s.logEvent(ctx, stationID, "price_create", "fuel_price", created.ID,
		fmt.Sprintf("fuel_type=%s,price=%s,valid_from=%s,scope=%s", created.FuelType, created.PricePerLitre.StringFixed(2), created.ValidFrom.Format(time.RFC3339), ingest.PriceScope(*created)))
	return *created, nil
}

// ListFuelPrices returns the price history visible to a station: its own
// rows plus the defaults. Superadmins may omit the station to see all rows.
func (s *Service) ListFuelPrices(ctx context.Context, stationID string, fuelType string, limit int) (domain.FuelPriceListResponse, error) {
	ft := domain.FuelType(strings.ToUpper(strings.TrimSpace(fuelType)))
	if ft != "" && !ft.Valid() {
		return domain.FuelPriceListResponse{}, fmt.Errorf("%w: unknown fuel_type", store.ErrValidation)
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.FuelPriceListResponse{}, store.ErrForbidden
	}
	scope := strings.TrimSpace(stationID)
	if scope != "" || actor.Role != domain.RoleSuperadmin {
		var err error
		if _, scope, err = s.stationScope(ctx, scope); err != nil {
			return domain.FuelPriceListResponse{}, err
		}
	}

	prices, err := s.repo.ListFuelPrices(ctx, scope, ft, limit)
	if err != nil {
		return domain.FuelPriceListResponse{}, err
	}
	return domain.FuelPriceListResponse{Prices: prices}, nil
}

func (s *Service) CurrentPrice(ctx context.Context, stationID string, fuelType string) (domain.CurrentPriceResponse, error) {
	_, scope, err := s.stationScope(ctx, stationID)
	if err != nil {
		return domain.CurrentPriceResponse{}, err
	}
	ft := domain.FuelType(strings.ToUpper(strings.TrimSpace(fuelType)))

	price, err := s.pipeline.CurrentPrice(ctx, scope, ft)
	if err != nil {
		return domain.CurrentPriceResponse{}, err
	}
	return domain.CurrentPriceResponse{
		StationID: scope,
		FuelType:  ft,
		Price:     *price,
		Scope:     ingest.PriceScope(*price),
		AsOf:      s.pipeline.Now().Format(time.RFC3339),
	}, nil
}

func (s *Service) ListReadings(ctx context.Context, filter domain.ReadingFilter) ([]domain.Reading, error) {
	_, scope, err := s.stationScope(ctx, filter.StationID)
	if err != nil {
		return nil, err
	}
	if filter.Date != "" {
		if filter.Date, _, err = parseDay(filter.Date, s.pipeline.Now()); err != nil {
			return nil, err
		}
	}
	filter.StationID = scope
	filter.Limit = clampLimit(filter.Limit)
	return s.repo.ListReadings(ctx, filter)
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	_, scope, err := s.stationScope(ctx, filter.StationID)
	if err != nil {
		return nil, err
	}
	if filter.Date != "" {
		if filter.Date, _, err = parseDay(filter.Date, s.pipeline.Now()); err != nil {
			return nil, err
		}
	}
	filter.StationID = scope
	filter.Limit = clampLimit(filter.Limit)
	return s.repo.ListSales(ctx, filter)
}

// DailyClosure totals the sales derived from readings taken on date,
// per fuel type and per nozzle. An empty date means today.
func (s *Service) DailyClosure(ctx context.Context, stationID string, date string) (domain.DailyClosure, error) {
	_, scope, err := s.stationScope(ctx, stationID)
	if err != nil {
		return domain.DailyClosure{}, err
	}
	day, _, err := parseDay(date, s.pipeline.Now())
	if err != nil {
		return domain.DailyClosure{}, err
	}

	closure, err := s.repo.GetDailyClosure(ctx, scope, day)
	if err != nil {
		return domain.DailyClosure{}, err
	}
	closure.StationID = scope
	closure.Date = day
	return closure, nil
}

func (s *Service) ListNozzles(ctx context.Context, stationID string) ([]domain.NozzleContext, error) {
	_, scope, err := s.stationScope(ctx, stationID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetStation(ctx, scope); err != nil {
		return nil, err
	}
	return s.repo.ListNozzles(ctx, scope)
}

// ListEventLogs lists one station's events. A superadmin who names no station
// gets the events written outside any station, such as default price changes.
func (s *Service) ListEventLogs(ctx context.Context, stationID string, date string, limit int) ([]domain.EventLog, error) {
	actor, scope, err := s.eventLogScope(ctx, stationID)
	if err != nil {
		return nil, err
	}
	if err := requireRole(actor, domain.RoleSuperadmin, domain.RoleOwner); err != nil {
		return nil, err
	}

	now := s.pipeline.Now()
	from, to := now.Add(-24*time.Hour), now.Add(time.Second)
	if strings.TrimSpace(date) != "" {
		if _, from, err = parseDay(date, now); err != nil {
			return nil, err
		}
		to = from.AddDate(0, 0, 1)
	}
	return s.repo.ListEventLogs(ctx, scope, from, to, clampLimit(limit))
}

func (s *Service) eventLogScope(ctx context.Context, stationID string) (domain.Actor, string, error) {
	actor, ok := ActorFromContext(ctx)
	if ok && actor.Role == domain.RoleSuperadmin && strings.TrimSpace(stationID) == "" {
		return actor, "", nil
	}
	return s.stationScope(ctx, stationID)
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 100
	}
	if limit > 500 {
		return 500
	}
	return limit
}
