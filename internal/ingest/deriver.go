package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/metrics"
	"fuelstation/backend/internal/store"
)

const (
	volumePlaces = 3
	amountPlaces = 2
)

// Pipeline records readings and derives sales from them. Every entry point
// goes through the same Pipeline so the derivation rules live in one place.
type Pipeline struct {
	repo    store.Repository
	logger  *zap.Logger
	metrics *metrics.Recorder
	now     func() time.Time
}

type Option func(*Pipeline)

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func WithMetrics(recorder *metrics.Recorder) Option {
	return func(p *Pipeline) {
		p.metrics = recorder
	}
}

func New(repo store.Repository, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		repo:   repo,
		logger: logger.Named("ingest"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Now() time.Time {
	return p.now()
}

// Input is one cumulative meter reading as handed over by an entry adapter.
// Empty ReadingDate or ReadingTime default to the pipeline clock.
type Input struct {
	StationID        string
	NozzleID         string
	CumulativeVolume decimal.Decimal
	ReadingDate      string
	ReadingTime      string
	Source           domain.ReadingSource
	CreatedBy        string
}

// Hook runs inside the reading's unit of work after derivation. Returning an
// error rolls back the reading and any derived sale.
type Hook func(ctx context.Context, tx store.Tx, outcome *Outcome) error

type Outcome struct {
	Nozzle         domain.NozzleContext
	Reading        domain.Reading
	Sale           *domain.Sale
	Reason         string
	PreviousVolume decimal.Decimal
	Delta          decimal.Decimal
	// Flagged marks a reading that went backwards against its predecessor.
	Flagged bool
}

// Err reports the policy error carried by an accepted reading, if any.
func (o Outcome) Err() error {
	if o.Reason == domain.ReasonNegativeDelta {
		return store.ErrNegativeDelta
	}
	return nil
}

func (o Outcome) Response() domain.ReadingResponse {
	resp := domain.ReadingResponse{
		Reading:        o.Reading,
		Sale:           o.Sale,
		Reason:         o.Reason,
		PreviousVolume: o.PreviousVolume,
		DeltaVolumeL:   o.Delta,
		Flagged:        o.Flagged,
	}
	if err := o.Err(); err != nil {
		resp.Warning = err.Error()
	}
	return resp
}

// Ingest persists the reading and derives its sale in one unit of work that
// holds the nozzle lock. A nozzle that does not belong to the station fails
// with store.ErrValidation and nothing is written.
func (p *Pipeline) Ingest(ctx context.Context, in Input, hooks ...Hook) (Outcome, error) {
	started := time.Now()
	reading, err := p.normalize(in)
	if err != nil {
		return Outcome{}, err
	}

	var outcome Outcome
	err = p.repo.WithinNozzleLock(ctx, reading.NozzleID, func(ctx context.Context, tx store.Tx) error {
		nc, err := tx.GetNozzleContext(ctx, reading.NozzleID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: unknown nozzle %s", store.ErrValidation, reading.NozzleID)
			}
			return err
		}
		if nc.StationID != reading.StationID {
			return fmt.Errorf("%w: nozzle %s does not belong to station %s", store.ErrValidation, reading.NozzleID, reading.StationID)
		}

		inserted, err := tx.InsertReading(ctx, reading)
		if err != nil {
			return fmt.Errorf("record reading: %w", err)
		}

		outcome, err = p.derive(ctx, tx, *nc, *inserted)
		if err != nil {
			return err
		}

		for _, hook := range hooks {
			if err := hook(ctx, tx, &outcome); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Outcome{}, fmt.Errorf("%w: unknown nozzle %s", store.ErrValidation, reading.NozzleID)
		}
		return Outcome{}, err
	}

	p.metrics.ReadingIngested(string(outcome.Reading.Source), outcome.Reason, time.Since(started))
	if outcome.Sale != nil {
		litres, _ := outcome.Sale.DeltaVolumeL.Float64()
		p.metrics.SaleDerived(string(outcome.Sale.FuelType), litres)
	}
	p.logger.Info("reading ingested",
		zap.String("reading_id", outcome.Reading.ID),
		zap.String("station_id", outcome.Reading.StationID),
		zap.String("nozzle_id", outcome.Reading.NozzleID),
		zap.String("source", string(outcome.Reading.Source)),
		zap.String("reason", outcome.Reason),
		zap.Stringer("delta_l", outcome.Delta),
	)
	return outcome, nil
}

// CurrentPrice resolves the price in effect now for the station.
func (p *Pipeline) CurrentPrice(ctx context.Context, stationID string, fuelType domain.FuelType) (*domain.FuelPrice, error) {
	return ResolvePrice(ctx, p.repo, stationID, fuelType, p.now())
}

func (p *Pipeline) derive(ctx context.Context, tx store.Tx, nc domain.NozzleContext, reading domain.Reading) (Outcome, error) {
	outcome := Outcome{
		Nozzle:         nc,
		Reading:        reading,
		PreviousVolume: decimal.Zero,
		Delta:          decimal.Zero,
	}

	prior, err := tx.FindPriorReading(ctx, reading.StationID, reading.NozzleID, reading.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return Outcome{}, fmt.Errorf("find prior reading: %w", err)
		}
		outcome.Reason = domain.ReasonBaseline
		return outcome, nil
	}

	outcome.PreviousVolume = prior.CumulativeVolume
	outcome.Delta = reading.CumulativeVolume.Sub(prior.CumulativeVolume).Round(volumePlaces)

	switch outcome.Delta.Sign() {
	case 0:
		outcome.Reason = domain.ReasonZeroDelta
		return outcome, nil
	case -1:
		outcome.Reason = domain.ReasonNegativeDelta
		outcome.Flagged = true
		p.logger.Warn("negative delta, sale skipped",
			zap.String("reading_id", reading.ID),
			zap.String("prior_reading_id", prior.ID),
			zap.String("nozzle_id", reading.NozzleID),
			zap.Stringer("previous_volume", prior.CumulativeVolume),
			zap.Stringer("cumulative_volume", reading.CumulativeVolume),
		)
		return outcome, nil
	}

	price, err := ResolvePrice(ctx, tx, reading.StationID, nc.FuelType, p.now())
	if err != nil {
		if errors.Is(err, store.ErrPriceNotFound) {
			outcome.Reason = domain.ReasonPriceNotFound
			p.logger.Warn("no fuel price in effect, sale skipped",
				zap.String("reading_id", reading.ID),
				zap.String("station_id", reading.StationID),
				zap.String("fuel_type", string(nc.FuelType)),
			)
			return outcome, nil
		}
		return Outcome{}, err
	}

	sale, err := tx.InsertSale(ctx, domain.Sale{
		StationID:     reading.StationID,
		NozzleID:      reading.NozzleID,
		ReadingID:     reading.ID,
		FuelType:      nc.FuelType,
		DeltaVolumeL:  outcome.Delta,
		PricePerLitre: price.PricePerLitre,
		TotalAmount:   outcome.Delta.Mul(price.PricePerLitre).Round(amountPlaces),
		CreatedAt:     p.now(),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("insert sale: %w", err)
	}

	outcome.Sale = sale
	outcome.Reason = domain.ReasonSaleCreated
	return outcome, nil
}

func (p *Pipeline) normalize(in Input) (domain.Reading, error) {
	stationID := strings.TrimSpace(in.StationID)
	nozzleID := strings.TrimSpace(in.NozzleID)
	if stationID == "" || nozzleID == "" {
		return domain.Reading{}, fmt.Errorf("%w: station_id and nozzle_id are required", store.ErrValidation)
	}
	if in.CumulativeVolume.IsNegative() {
		return domain.Reading{}, fmt.Errorf("%w: cumulative volume must be non-negative", store.ErrValidation)
	}
	if in.Source != domain.SourceOCR && in.Source != domain.SourceManual {
		return domain.Reading{}, fmt.Errorf("%w: unknown reading source %q", store.ErrValidation, in.Source)
	}

	now := p.now()
	readingDate := strings.TrimSpace(in.ReadingDate)
	if readingDate == "" {
		readingDate = now.Format(domain.ReadingDateLayout)
	} else if _, err := time.Parse(domain.ReadingDateLayout, readingDate); err != nil {
		return domain.Reading{}, fmt.Errorf("%w: reading_date must be YYYY-MM-DD", store.ErrValidation)
	}
	readingTime := strings.TrimSpace(in.ReadingTime)
	if readingTime == "" {
		readingTime = now.Format(domain.ReadingTimeLayout)
	} else if _, err := time.Parse(domain.ReadingTimeLayout, readingTime); err != nil {
		return domain.Reading{}, fmt.Errorf("%w: reading_time must be HH:MM:SS", store.ErrValidation)
	}

	return domain.Reading{
		StationID:        stationID,
		NozzleID:         nozzleID,
		CumulativeVolume: in.CumulativeVolume.Round(volumePlaces),
		ReadingDate:      readingDate,
		ReadingTime:      readingTime,
		Source:           in.Source,
		CreatedBy:        strings.TrimSpace(in.CreatedBy),
		CreatedAt:        now,
	}, nil
}
