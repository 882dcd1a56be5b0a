package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/ingest"
	"fuelstation/backend/internal/ocr"
	"fuelstation/backend/internal/store"
)

// SubmitManualReading records one hand-typed meter reading.
func (s *Service) SubmitManualReading(ctx context.Context, req domain.ManualReadingRequest) (domain.ReadingResponse, error) {
	if err := s.validateStruct(req); err != nil {
		return domain.ReadingResponse{}, err
	}
	volume, err := requireVolume(req.CumulativeVolume)
	if err != nil {
		return domain.ReadingResponse{}, err
	}
	actor, stationID, err := s.stationScope(ctx, req.StationID)
	if err != nil {
		return domain.ReadingResponse{}, err
	}

	outcome, err := s.pipeline.Ingest(ctx, ingest.Input{
		StationID:        stationID,
		NozzleID:         req.NozzleID,
		CumulativeVolume: volume,
		ReadingDate:      req.ReadingDate,
		ReadingTime:      req.ReadingTime,
		Source:           domain.SourceManual,
		CreatedBy:        actor.Username,
	})
	if err != nil {
		return domain.ReadingResponse{}, err
	}
	return outcome.Response(), nil
}

// SubmitVolumeEntry records a manual reading and, in the same unit of work,
// an event log row with the derived delta, price and amount.
func (s *Service) SubmitVolumeEntry(ctx context.Context, req domain.VolumeEntryRequest) (domain.ReadingResponse, error) {
	if err := s.validateStruct(req); err != nil {
		return domain.ReadingResponse{}, err
	}
	volume, err := requireVolume(req.CumulativeVolume)
	if err != nil {
		return domain.ReadingResponse{}, err
	}
	actor, stationID, err := s.stationScope(ctx, req.StationID)
	if err != nil {
		return domain.ReadingResponse{}, err
	}

	notes := strings.TrimSpace(req.Notes)
	outcome, err := s.pipeline.Ingest(ctx, ingest.Input{
		StationID:        stationID,
		NozzleID:         req.NozzleID,
		CumulativeVolume: volume,
		ReadingDate:      req.ReadingDate,
		ReadingTime:      req.ReadingTime,
		Source:           domain.SourceManual,
		CreatedBy:        actor.Username,
	}, func(ctx context.Context, tx store.Tx, outcome *ingest.Outcome) error {
		entry := newEventLog(ctx, stationID, "volume_entry", "reading", outcome.Reading.ID, volumeEntryDetail(*outcome, notes), s.pipeline.Now())
		if err := tx.CreateEventLog(ctx, entry); err != nil {
			return fmt.Errorf("write volume entry event log: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.ReadingResponse{}, err
	}
	return outcome.Response(), nil
}

func volumeEntryDetail(outcome ingest.Outcome, notes string) string {
	price, amount := "-", "-"
	if outcome.Sale != nil {
		price = outcome.Sale.PricePerLitre.StringFixed(2)
		amount = outcome.Sale.TotalAmount.StringFixed(2)
	}
	detail := fmt.Sprintf("nozzle=%s,volume=%s,previous=%s,delta=%s,price=%s,amount=%s,reason=%s",
		outcome.Reading.NozzleID,
		outcome.Reading.CumulativeVolume.StringFixed(3),
		outcome.PreviousVolume.StringFixed(3),
		outcome.Delta.StringFixed(3),
		price,
		amount,
		outcome.Reason,
	)
	if notes != "" {
		detail += ",notes=" + notes
	}
	return detail
}

// ProcessOCRUpload reads every nozzle counter off a pump photo and ingests
// each one in its own unit of work. One nozzle failing never stops the
// others; failures are reported per nozzle.
func (s *Service) ProcessOCRUpload(ctx context.Context, req domain.OCRUploadRequest) (domain.OCRUploadResponse, error) {
	if err := s.validateStruct(req); err != nil {
		return domain.OCRUploadResponse{}, err
	}
	actor, stationID, err := s.stationScope(ctx, req.StationID)
	if err != nil {
		return domain.OCRUploadResponse{}, err
	}
	if s.extractor == nil {
		return domain.OCRUploadResponse{}, ocr.ErrNotConfigured
	}

	extracted, err := s.extractor.Extract(ctx, req.Image, req.ContentType)
	if err != nil {
		return domain.OCRUploadResponse{}, fmt.Errorf("extract meter readings: %w", err)
	}

	resp := domain.OCRUploadResponse{
		StationID:  stationID,
		PumpSerial: extracted.PumpSerial,
		Total:      len(extracted.Nozzles),
		Results:    make([]domain.OCRNozzleResult, 0, len(extracted.Nozzles)),
	}
	for _, reading := range extracted.Nozzles {
		result := domain.OCRNozzleResult{
			NozzleNumber:     reading.NozzleNumber,
			CumulativeVolume: reading.CumulativeVolume,
			Status:           domain.OCRNozzleFailed,
		}

		if reading.CumulativeVolume == nil {
			result.Error = fmt.Sprintf("nozzle %d: cumulative volume not read", reading.NozzleNumber)
			resp.Results = append(resp.Results, result)
			continue
		}
		volume := *reading.CumulativeVolume

		nc, err := s.resolvePumpNozzle(ctx, stationID, extracted.PumpSerial, reading.NozzleNumber)
		if err != nil {
			result.Error = s.nozzleError(err, reading.NozzleNumber)
			resp.Results = append(resp.Results, result)
			continue
		}
		result.NozzleID = nc.NozzleID

		outcome, err := s.pipeline.Ingest(ctx, ingest.Input{
			StationID:        stationID,
			NozzleID:         nc.NozzleID,
			CumulativeVolume: volume,
			ReadingDate:      req.ReadingDate,
			ReadingTime:      req.ReadingTime,
			Source:           domain.SourceOCR,
			CreatedBy:        actor.Username,
		})
		if err != nil {
			result.Error = s.nozzleError(err, reading.NozzleNumber)
			resp.Results = append(resp.Results, result)
			continue
		}

		response := outcome.Response()
		result.Status = domain.OCRNozzleProcessed
		result.Result = &response
		resp.Processed++
		resp.Results = append(resp.Results, result)
	}
	resp.Summary = fmt.Sprintf("processed %d of %d nozzle readings", resp.Processed, resp.Total)

	s.logger.Info("ocr upload processed",
		zap.String("station_id", stationID),
		zap.String("pump_serial", extracted.PumpSerial),
		zap.Int("processed", resp.Processed),
		zap.Int("total", resp.Total),
	)
	return resp, nil
}

// requireVolume rejects an unread counter. A missing value must never be
// stored as zero, since it would become the baseline for the next sale.
func requireVolume(volume *decimal.Decimal) (decimal.Decimal, error) {
	if volume == nil {
		return decimal.Decimal{}, fmt.Errorf("%w: cumulative_volume is required", store.ErrValidation)
	}
	return *volume, nil
}

func (s *Service) resolvePumpNozzle(ctx context.Context, stationID string, pumpSerial string, nozzleNumber int) (*domain.NozzleContext, error) {
	if strings.TrimSpace(pumpSerial) == "" {
		return nil, fmt.Errorf("%w: pump serial not recognised", store.ErrValidation)
	}
	key := fmt.Sprintf("%s:%s:%d", stationID, strings.ToUpper(strings.TrimSpace(pumpSerial)), nozzleNumber)

	cached, ok, err := s.nozzles.Get(ctx, key)
	if err != nil {
		s.logger.Warn("nozzle cache read failed", zap.String("key", key), zap.Error(err))
	}
	if ok && cached != nil {
		return cached, nil
	}

	nc, err := s.repo.FindNozzleByPump(ctx, stationID, pumpSerial, nozzleNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: no nozzle %d on pump %s", store.ErrNotFound, nozzleNumber, pumpSerial)
		}
		return nil, err
	}
	if err := s.nozzles.Set(ctx, key, nc, s.cacheTTL); err != nil {
		s.logger.Warn("nozzle cache write failed", zap.String("key", key), zap.Error(err))
	}
	return nc, nil
}

// nozzleError turns a per-nozzle failure into a client-safe message.
func (s *Service) nozzleError(err error, nozzleNumber int) string {
	switch {
	case errors.Is(err, store.ErrValidation), errors.Is(err, store.ErrNotFound):
		return err.Error()
	default:
		s.logger.Error("ocr nozzle ingest failed", zap.Int("nozzle_number", nozzleNumber), zap.Error(err))
		return "internal error"
	}
}
