package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/store"
)

func TestNozzleUnitOfWorkRecordsReadingAndSale(t *testing.T) {
	databaseURL := os.Getenv("FUELSTATION_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set FUELSTATION_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	stamp := time.Now().UnixNano()
	stationID := fmt.Sprintf("st-it-%d", stamp)
	pumpID := fmt.Sprintf("pump-it-%d", stamp)
	nozzleID := fmt.Sprintf("nz-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE station_id = $1`, stationID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM readings WHERE station_id = $1`, stationID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM event_logs WHERE station_id = $1`, stationID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM fuel_prices WHERE station_id = $1`, stationID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM nozzles WHERE id = $1`, nozzleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM pumps WHERE id = $1`, pumpID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stations WHERE id = $1`, stationID)
	})

	if _, err := s.db.ExecContext(ctx, `INSERT INTO stations (id, name) VALUES ($1, 'Integration Station')`, stationID); err != nil {
		t.Fatalf("insert station: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO pumps (id, station_id, serial_number) VALUES ($1, $2, 'IT-PUMP')`, pumpID, stationID); err != nil {
		t.Fatalf("insert pump: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO nozzles (id, pump_id, station_id, nozzle_number, fuel_type)
		VALUES ($1, $2, $3, 1, 'DIESEL')
	`, nozzleID, pumpID, stationID); err != nil {
		t.Fatalf("insert nozzle: %v", err)
	}
	if _, err := s.CreateFuelPrice(ctx, domain.FuelPrice{
		StationID:     stationID,
		FuelType:      domain.FuelDiesel,
		PricePerLitre: decimal.RequireFromString("100.00"),
		ValidFrom:     time.Now().UTC().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("create price: %v", err)
	}

	nc, err := s.FindNozzleByPump(ctx, stationID, "it-pump", 1)
	if err != nil {
		t.Fatalf("find nozzle by pump: %v", err)
	}
	if nc.NozzleID != nozzleID || nc.FuelType != domain.FuelDiesel {
		t.Fatalf("unexpected nozzle context: %+v", nc)
	}

	insert := func(volume string, readingTime string) *domain.Reading {
		t.Helper()
		var created *domain.Reading
		err := s.WithinNozzleLock(ctx, nozzleID, func(ctx context.Context, tx store.Tx) error {
			var err error
			created, err = tx.InsertReading(ctx, domain.Reading{
				StationID:        stationID,
				NozzleID:         nozzleID,
				CumulativeVolume: decimal.RequireFromString(volume),
				ReadingDate:      "2024-05-01",
				ReadingTime:      readingTime,
				Source:           domain.SourceManual,
			})
			return err
		})
		if err != nil {
			t.Fatalf("insert reading: %v", err)
		}
		return created
	}

	first := insert("1000.000", "08:00:00")
	second := insert("1050.500", "09:00:00")

	err = s.WithinNozzleLock(ctx, nozzleID, func(ctx context.Context, tx store.Tx) error {
		prior, err := tx.FindPriorReading(ctx, stationID, nozzleID, second.ID)
		if err != nil {
			return err
		}
		if prior.ID != first.ID {
			return fmt.Errorf("expected prior %s, got %s", first.ID, prior.ID)
		}
		price, err := tx.LatestPrice(ctx, stationID, domain.FuelDiesel, time.Now().UTC())
		if err != nil {
			return err
		}
		_, err = tx.InsertSale(ctx, domain.Sale{
			StationID:     stationID,
			NozzleID:      nozzleID,
			ReadingID:     second.ID,
			FuelType:      domain.FuelDiesel,
			DeltaVolumeL:  decimal.RequireFromString("50.500"),
			PricePerLitre: price.PricePerLitre,
			TotalAmount:   decimal.RequireFromString("5050.00"),
		})
		return err
	})
	if err != nil {
		t.Fatalf("derive sale in unit of work: %v", err)
	}

	rollback := errors.New("rollback")
	err = s.WithinNozzleLock(ctx, nozzleID, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.InsertReading(ctx, domain.Reading{
			StationID:        stationID,
			NozzleID:         nozzleID,
			CumulativeVolume: decimal.RequireFromString("1100.000"),
			ReadingDate:      "2024-05-01",
			ReadingTime:      "10:00:00",
			Source:           domain.SourceManual,
		}); err != nil {
			return err
		}
		return rollback
	})
	if !errors.Is(err, rollback) {
		t.Fatalf("expected rollback error, got %v", err)
	}

	readings, err := s.ListReadings(ctx, domain.ReadingFilter{StationID: stationID, Date: "2024-05-01"})
	if err != nil {
		t.Fatalf("list readings: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("expected 2 committed readings, got %d", len(readings))
	}

	closure, err := s.GetDailyClosure(ctx, stationID, "2024-05-01")
	if err != nil {
		t.Fatalf("daily closure: %v", err)
	}
	if closure.Sales != 1 || !closure.TotalAmount.Equal(decimal.RequireFromString("5050.00")) {
		t.Fatalf("unexpected closure: %+v", closure)
	}
}
