package store

import (
	"context"
	"errors"
	"time"

	"fuelstation/backend/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation failed")
	ErrPriceNotFound = errors.New("price not found")
	ErrNegativeDelta = errors.New("negative delta detected")
	ErrForbidden     = errors.New("forbidden")
	ErrConflict      = errors.New("conflict")
)

// PriceReader returns the latest price row whose scope matches stationID
// exactly ("" selects the station-agnostic default) with valid_from <= asOf.
type PriceReader interface {
	LatestPrice(ctx context.Context, stationID string, fuelType domain.FuelType, asOf time.Time) (*domain.FuelPrice, error)
}

type NozzleReader interface {
	GetNozzleContext(ctx context.Context, nozzleID string) (*domain.NozzleContext, error)
}

// Tx is the unit of work a reading is ingested in. Everything written
// through it commits or rolls back together.
type Tx interface {
	PriceReader
	NozzleReader
	InsertReading(ctx context.Context, reading domain.Reading) (*domain.Reading, error)
	FindPriorReading(ctx context.Context, stationID string, nozzleID string, excludingReadingID string) (*domain.Reading, error)
	InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	CreateEventLog(ctx context.Context, entry domain.EventLog) error
}

type Repository interface {
	PriceReader
	NozzleReader
	// WithinNozzleLock runs fn in a single unit of work holding an exclusive
	// lock on the nozzle. A non-nil error from fn rolls everything back.
	WithinNozzleLock(ctx context.Context, nozzleID string, fn func(ctx context.Context, tx Tx) error) error
	GetStation(ctx context.Context, stationID string) (*domain.Station, error)
	FindNozzleByPump(ctx context.Context, stationID string, pumpSerial string, nozzleNumber int) (*domain.NozzleContext, error)
	ListNozzles(ctx context.Context, stationID string) ([]domain.NozzleContext, error)
	CreateFuelPrice(ctx context.Context, price domain.FuelPrice) (*domain.FuelPrice, error)
	ListFuelPrices(ctx context.Context, stationID string, fuelType domain.FuelType, limit int) ([]domain.FuelPrice, error)
	ListReadings(ctx context.Context, filter domain.ReadingFilter) ([]domain.Reading, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
	GetDailyClosure(ctx context.Context, stationID string, date string) (domain.DailyClosure, error)
	CreateEventLog(ctx context.Context, entry domain.EventLog) error
	ListEventLogs(ctx context.Context, stationID string, from time.Time, to time.Time, limit int) ([]domain.EventLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
