package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type FuelType string

const (
	FuelPetrol FuelType = "PETROL"
	FuelDiesel FuelType = "DIESEL"
	FuelCNG    FuelType = "CNG"
	FuelEV     FuelType = "EV"
)

func (f FuelType) Valid() bool {
	switch f {
	case FuelPetrol, FuelDiesel, FuelCNG, FuelEV:
		return true
	default:
		return false
	}
}

type ReadingSource string

const (
	SourceOCR    ReadingSource = "ocr"
	SourceManual ReadingSource = "manual"
)

const (
	RoleSuperadmin = "superadmin"
	RoleOwner      = "owner"
	RoleEmployee   = "employee"
)

// Reasons reported by the sale deriver for every ingested reading.
const (
	ReasonSaleCreated   = "sale_created"
	ReasonBaseline      = "baseline"
	ReasonZeroDelta     = "zero_delta"
	ReasonNegativeDelta = "negative_delta"
	ReasonPriceNotFound = "price_not_found"
)

const (
	ReadingDateLayout = "2006-01-02"
	ReadingTimeLayout = "15:04:05"
)

type Station struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Pump struct {
	ID           string `json:"id"`
	StationID    string `json:"station_id"`
	SerialNumber string `json:"serial_number"`
}

type Nozzle struct {
	ID           string   `json:"id"`
	PumpID       string   `json:"pump_id"`
	StationID    string   `json:"station_id"`
	NozzleNumber int      `json:"nozzle_number"`
	FuelType     FuelType `json:"fuel_type"`
}

// NozzleContext is the resolved nozzle -> pump -> station view every entry
// point works from.
type NozzleContext struct {
	NozzleID     string   `json:"nozzle_id"`
	StationID    string   `json:"station_id"`
	PumpID       string   `json:"pump_id"`
	PumpSerial   string   `json:"pump_serial"`
	NozzleNumber int      `json:"nozzle_number"`
	FuelType     FuelType `json:"fuel_type"`
}

type Reading struct {
	ID               string          `json:"id"`
	Seq              int64           `json:"-"`
	StationID        string          `json:"station_id"`
	NozzleID         string          `json:"nozzle_id"`
	CumulativeVolume decimal.Decimal `json:"cumulative_volume"`
	ReadingDate      string          `json:"reading_date"`
	ReadingTime      string          `json:"reading_time"`
	Source           ReadingSource   `json:"source"`
	CreatedBy        string          `json:"created_by,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

type FuelPrice struct {
	ID            string          `json:"id"`
	StationID     string          `json:"station_id,omitempty"`
	FuelType      FuelType        `json:"fuel_type"`
	PricePerLitre decimal.Decimal `json:"price_per_litre"`
	ValidFrom     time.Time       `json:"valid_from"`
	CreatedBy     string          `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// IsDefault reports whether the price applies to every station.
func (p FuelPrice) IsDefault() bool {
	return p.StationID == ""
}

type Sale struct {
	ID            string          `json:"id"`
	StationID     string          `json:"station_id"`
	NozzleID      string          `json:"nozzle_id"`
	ReadingID     string          `json:"reading_id"`
	FuelType      FuelType        `json:"fuel_type"`
	DeltaVolumeL  decimal.Decimal `json:"delta_volume_l"`
	PricePerLitre decimal.Decimal `json:"price_per_litre"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	CreatedAt     time.Time       `json:"created_at"`
}

type EventLog struct {
	ID            string    `json:"id"`
	StationID     string    `json:"station_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type Actor struct {
	Username  string
	Role      string
	StationID string
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	StationID   string `json:"station_id,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

type UserCreateRequest struct {
	Username  string `json:"username" validate:"required,min=4,max=64"`
	Password  string `json:"password" validate:"required,min=6"`
	Role      string `json:"role" validate:"required,oneof=owner employee"`
	StationID string `json:"station_id"`
}

type StationUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	StationID string    `json:"station_id,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	StationID string
	Active    bool
	CreatedAt time.Time
}

// CumulativeVolume is a pointer so an omitted counter fails validation
// instead of decoding to zero.
type ManualReadingRequest struct {
	StationID        string           `json:"station_id" validate:"required"`
	NozzleID         string           `json:"nozzle_id" validate:"required"`
	CumulativeVolume *decimal.Decimal `json:"cumulative_volume" validate:"required"`
	ReadingDate      string           `json:"reading_date" validate:"omitempty,datetime=2006-01-02"`
	ReadingTime      string           `json:"reading_time" validate:"omitempty,datetime=15:04:05"`
}

type VolumeEntryRequest struct {
	StationID        string           `json:"station_id" validate:"required"`
	NozzleID         string           `json:"nozzle_id" validate:"required"`
	CumulativeVolume *decimal.Decimal `json:"cumulative_volume" validate:"required"`
	ReadingDate      string           `json:"reading_date" validate:"omitempty,datetime=2006-01-02"`
	ReadingTime      string           `json:"reading_time" validate:"omitempty,datetime=15:04:05"`
	Notes            string           `json:"notes" validate:"max=500"`
}

type ReadingResponse struct {
	Reading        Reading         `json:"reading"`
	Sale           *Sale           `json:"sale,omitempty"`
	Reason         string          `json:"reason"`
	PreviousVolume decimal.Decimal `json:"previous_volume"`
	DeltaVolumeL   decimal.Decimal `json:"delta_volume_l"`
	Flagged        bool            `json:"flagged"`
	// Warning carries the policy error of an accepted reading.
	Warning        string          `json:"warning,omitempty"`
}

type OCRUploadRequest struct {
	StationID   string `validate:"required"`
	ReadingDate string `validate:"omitempty,datetime=2006-01-02"`
	ReadingTime string `validate:"omitempty,datetime=15:04:05"`
	Image       []byte `validate:"required,min=1"`
	ContentType string
}

type OCRNozzleResult struct {
	NozzleNumber     int              `json:"nozzle_number"`
	NozzleID         string           `json:"nozzle_id,omitempty"`
	CumulativeVolume *decimal.Decimal `json:"cumulative_volume,omitempty"`
	Status           string           `json:"status"`
	Error            string           `json:"error,omitempty"`
	Result           *ReadingResponse `json:"result,omitempty"`
}

type OCRUploadResponse struct {
	StationID  string            `json:"station_id"`
	PumpSerial string            `json:"pump_serial"`
	Total      int               `json:"total"`
	Processed  int               `json:"processed"`
	Summary    string            `json:"summary"`
	Results    []OCRNozzleResult `json:"results"`
}

const (
	OCRNozzleProcessed = "processed"
	OCRNozzleFailed    = "failed"
)

type FuelPriceCreateRequest struct {
	StationID     string          `json:"station_id"`
	FuelType      FuelType        `json:"fuel_type" validate:"required,oneof=PETROL DIESEL CNG EV"`
	PricePerLitre decimal.Decimal `json:"price_per_litre"`
	ValidFrom     *time.Time      `json:"valid_from,omitempty"`
}

type FuelPriceListResponse struct {
	Prices []FuelPrice `json:"prices"`
}

type CurrentPriceResponse struct {
	StationID string    `json:"station_id"`
	FuelType  FuelType  `json:"fuel_type"`
	Price     FuelPrice `json:"price"`
	Scope     string    `json:"scope"`
	AsOf      string    `json:"as_of"`
}

type ReadingFilter struct {
	StationID string
	NozzleID  string
	Date      string
	Limit     int
}

// SaleFilter matches sales by the business date of their triggering reading.
type SaleFilter struct {
	StationID string
	NozzleID  string
	Date      string
	Limit     int
}

type DailyClosureFuel struct {
	FuelType    FuelType        `json:"fuel_type"`
	Sales       int64           `json:"sales"`
	VolumeL     decimal.Decimal `json:"volume_l"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type DailyClosureNozzle struct {
	NozzleID    string          `json:"nozzle_id"`
	Sales       int64           `json:"sales"`
	VolumeL     decimal.Decimal `json:"volume_l"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type DailyClosure struct {
	StationID   string               `json:"station_id"`
	Date        string               `json:"date"`
	Readings    int64                `json:"readings"`
	Sales       int64                `json:"sales"`
	VolumeL     decimal.Decimal      `json:"volume_l"`
	TotalAmount decimal.Decimal      `json:"total_amount"`
	ByFuelType  []DailyClosureFuel   `json:"by_fuel_type"`
	ByNozzle    []DailyClosureNozzle `json:"by_nozzle"`
}
