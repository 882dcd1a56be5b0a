package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/store"
	"fuelstation/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) WithinNozzleLock(ctx context.Context, nozzleID string, fn func(ctx context.Context, tx store.Tx) error) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	var locked string
	err = pgTx.QueryRowContext(ctx, `
		SELECT id
		FROM nozzles
		WHERE id = $1
		FOR UPDATE
	`, nozzleID).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	if err := fn(ctx, &txStore{q: pgTx}); err != nil {
		return err
	}
	return pgTx.Commit()
}

func (s *Store) GetNozzleContext(ctx context.Context, nozzleID string) (*domain.NozzleContext, error) {
	return getNozzleContext(ctx, s.db, nozzleID)
}

func (s *Store) LatestPrice(ctx context.Context, stationID string, fuelType domain.FuelType, asOf time.Time) (*domain.FuelPrice, error) {
	return latestPrice(ctx, s.db, stationID, fuelType, asOf)
}

func (s *Store) GetStation(ctx context.Context, stationID string) (*domain.Station, error) {
	var station domain.Station
	var ownerID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, owner_id, created_at
		FROM stations
		WHERE id = $1
	`, stationID).Scan(&station.ID, &station.Name, &ownerID, &station.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	station.OwnerID = ownerID.String
	station.CreatedAt = station.CreatedAt.UTC()
	return &station, nil
}

func (s *Store) FindNozzleByPump(ctx context.Context, stationID string, pumpSerial string, nozzleNumber int) (*domain.NozzleContext, error) {
	var nc domain.NozzleContext
	var fuelType string
	err := s.db.QueryRowContext(ctx, `
		SELECT n.id, n.station_id, p.id, p.serial_number, n.nozzle_number, n.fuel_type
		FROM nozzles n
		JOIN pumps p ON p.id = n.pump_id
		WHERE p.station_id = $1
			AND lower(p.serial_number) = lower($2)
			AND n.nozzle_number = $3
	`, stationID, strings.TrimSpace(pumpSerial), nozzleNumber).Scan(
		&nc.NozzleID, &nc.StationID, &nc.PumpID, &nc.PumpSerial, &nc.NozzleNumber, &fuelType,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	nc.FuelType = domain.FuelType(fuelType)
	return &nc, nil
}

func (s *Store) ListNozzles(ctx context.Context, stationID string) ([]domain.NozzleContext, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.station_id, p.id, p.serial_number, n.nozzle_number, n.fuel_type
		FROM nozzles n
		JOIN pumps p ON p.id = n.pump_id
		WHERE n.station_id = $1
		ORDER BY p.serial_number, n.nozzle_number
	`, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.NozzleContext, 0, 8)
	for rows.Next() {
		var nc domain.NozzleContext
		var fuelType string
		if err := rows.Scan(&nc.NozzleID, &nc.StationID, &nc.PumpID, &nc.PumpSerial, &nc.NozzleNumber, &fuelType); err != nil {
			return nil, err
		}
		nc.FuelType = domain.FuelType(fuelType)
		result = append(result, nc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateFuelPrice(ctx context.Context, price domain.FuelPrice) (*domain.FuelPrice, error) {
	if !price.FuelType.Valid() || !price.PricePerLitre.IsPositive() || price.ValidFrom.IsZero() {
		return nil, store.ErrValidation
	}
	if price.ID == "" {
		price.ID = xid.New("fp")
	}
	if price.CreatedAt.IsZero() {
		price.CreatedAt = time.Now().UTC()
	}
	price.ValidFrom = price.ValidFrom.UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fuel_prices (id, station_id, fuel_type, price_per_litre, valid_from, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, price.ID, nullIfEmpty(price.StationID), string(price.FuelType), price.PricePerLitre, price.ValidFrom, nullIfEmpty(price.CreatedBy), price.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := price
	return &created, nil
}

// ListFuelPrices lists the station's own rows plus the defaults, newest
// valid_from first. An empty stationID lists every row.
func (s *Store) ListFuelPrices(ctx context.Context, stationID string, fuelType domain.FuelType, limit int) ([]domain.FuelPrice, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, station_id, fuel_type, price_per_litre, valid_from, created_by, created_at
		FROM fuel_prices
		WHERE ($1::text = '' OR station_id IS NULL OR station_id = $1)
			AND ($2::text = '' OR fuel_type = $2)
		ORDER BY valid_from DESC, created_at DESC
		LIMIT $3
	`, stationID, string(fuelType), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prices := make([]domain.FuelPrice, 0, limit)
	for rows.Next() {
		price, err := scanFuelPrice(rows)
		if err != nil {
			return nil, err
		}
		prices = append(prices, *price)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return prices, nil
}

func (s *Store) ListReadings(ctx context.Context, filter domain.ReadingFilter) ([]domain.Reading, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+readingColumns+`
		FROM readings
		WHERE ($1::text = '' OR station_id = $1)
			AND ($2::text = '' OR nozzle_id = $2)
			AND ($3::text = '' OR reading_date = NULLIF($3::text, '')::date)
		ORDER BY reading_date DESC, reading_time DESC, seq DESC
		LIMIT $4
	`, filter.StationID, filter.NozzleID, filter.Date, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readings := make([]domain.Reading, 0, limit)
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, *reading)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return readings, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.station_id, s.nozzle_id, s.reading_id, s.fuel_type,
			s.delta_volume_l, s.price_per_litre, s.total_amount, s.created_at
		FROM sales s
		JOIN readings r ON r.id = s.reading_id
		WHERE ($1::text = '' OR s.station_id = $1)
			AND ($2::text = '' OR s.nozzle_id = $2)
			AND ($3::text = '' OR r.reading_date = NULLIF($3::text, '')::date)
		ORDER BY s.created_at DESC
		LIMIT $4
	`, filter.StationID, filter.NozzleID, filter.Date, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		var sale domain.Sale
		var fuelType string
		if err := rows.Scan(
			&sale.ID, &sale.StationID, &sale.NozzleID, &sale.ReadingID, &fuelType,
			&sale.DeltaVolumeL, &sale.PricePerLitre, &sale.TotalAmount, &sale.CreatedAt,
		); err != nil {
			return nil, err
		}
		sale.FuelType = domain.FuelType(fuelType)
		sale.CreatedAt = sale.CreatedAt.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) GetDailyClosure(ctx context.Context, stationID string, date string) (domain.DailyClosure, error) {
	closure := domain.DailyClosure{
		StationID:  stationID,
		Date:       date,
		ByFuelType: make([]domain.DailyClosureFuel, 0, 4),
		ByNozzle:   make([]domain.DailyClosureNozzle, 0, 8),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint
		FROM readings
		WHERE station_id = $1 AND reading_date = $2::date
	`, stationID, date).Scan(&closure.Readings)
	if err != nil {
		return domain.DailyClosure{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*)::bigint,
			COALESCE(SUM(s.delta_volume_l),0),
			COALESCE(SUM(s.total_amount),0)
		FROM sales s
		JOIN readings r ON r.id = s.reading_id
		WHERE s.station_id = $1 AND r.reading_date = $2::date
	`, stationID, date).Scan(&closure.Sales, &closure.VolumeL, &closure.TotalAmount)
	if err != nil {
		return domain.DailyClosure{}, err
	}

	fuelRows, err := s.db.QueryContext(ctx, `
		SELECT s.fuel_type, COUNT(*)::bigint, SUM(s.delta_volume_l), SUM(s.total_amount)
		FROM sales s
		JOIN readings r ON r.id = s.reading_id
		WHERE s.station_id = $1 AND r.reading_date = $2::date
		GROUP BY s.fuel_type
		ORDER BY s.fuel_type
	`, stationID, date)
	if err != nil {
		return domain.DailyClosure{}, err
	}
	for fuelRows.Next() {
		var row domain.DailyClosureFuel
		var fuelType string
		if err := fuelRows.Scan(&fuelType, &row.Sales, &row.VolumeL, &row.TotalAmount); err != nil {
			_ = fuelRows.Close()
			return domain.DailyClosure{}, err
		}
		row.FuelType = domain.FuelType(fuelType)
		closure.ByFuelType = append(closure.ByFuelType, row)
	}
	if err := fuelRows.Err(); err != nil {
		_ = fuelRows.Close()
		return domain.DailyClosure{}, err
	}
	_ = fuelRows.Close()

	nozzleRows, err := s.db.QueryContext(ctx, `
		SELECT s.nozzle_id, COUNT(*)::bigint, SUM(s.delta_volume_l), SUM(s.total_amount)
		FROM sales s
		JOIN readings r ON r.id = s.reading_id
		WHERE s.station_id = $1 AND r.reading_date = $2::date
		GROUP BY s.nozzle_id
		ORDER BY s.nozzle_id
	`, stationID, date)
	if err != nil {
		return domain.DailyClosure{}, err
	}
	defer nozzleRows.Close()
	for nozzleRows.Next() {
		var row domain.DailyClosureNozzle
		if err := nozzleRows.Scan(&row.NozzleID, &row.Sales, &row.VolumeL, &row.TotalAmount); err != nil {
			return domain.DailyClosure{}, err
		}
		closure.ByNozzle = append(closure.ByNozzle, row)
	}
	if err := nozzleRows.Err(); err != nil {
		return domain.DailyClosure{}, err
	}

	return closure, nil
}

func (s *Store) CreateEventLog(ctx context.Context, entry domain.EventLog) error {
	return insertEventLog(ctx, s.db, entry)
}

func (s *Store) ListEventLogs(ctx context.Context, stationID string, from time.Time, to time.Time, limit int) ([]domain.EventLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, station_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM event_logs
		WHERE station_id = $1
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, stationID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.EventLog, 0, limit)
	for rows.Next() {
		var entry domain.EventLog
		if err := rows.Scan(&entry.ID, &entry.StationID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if user.Role == "" {
		user.Role = domain.RoleEmployee
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, station_id, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, user.Username, user.Password, user.Role, nullIfEmpty(user.StationID), user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, station_id, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		var stationID sql.NullString
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &stationID, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.StationID = stationID.String
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// txStore runs the unit-of-work operations on an open transaction whose
// nozzle row is already locked.
type txStore struct {
	q querier
}

func (t *txStore) GetNozzleContext(ctx context.Context, nozzleID string) (*domain.NozzleContext, error) {
	return getNozzleContext(ctx, t.q, nozzleID)
}

func (t *txStore) LatestPrice(ctx context.Context, stationID string, fuelType domain.FuelType, asOf time.Time) (*domain.FuelPrice, error) {
	return latestPrice(ctx, t.q, stationID, fuelType, asOf)
}

func (t *txStore) InsertReading(ctx context.Context, reading domain.Reading) (*domain.Reading, error) {
	if reading.StationID == "" || reading.NozzleID == "" || reading.CumulativeVolume.IsNegative() {
		return nil, store.ErrValidation
	}
	if reading.ID == "" {
		reading.ID = xid.New("rd")
	}
	if reading.CreatedAt.IsZero() {
		reading.CreatedAt = time.Now().UTC()
	}

	err := t.q.QueryRowContext(ctx, `
		INSERT INTO readings (
			id, station_id, nozzle_id, cumulative_volume, reading_date, reading_time, source, created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5::date,$6::time,$7,$8,$9)
		RETURNING seq
	`, reading.ID, reading.StationID, reading.NozzleID, reading.CumulativeVolume, reading.ReadingDate, reading.ReadingTime,
		string(reading.Source), nullIfEmpty(reading.CreatedBy), reading.CreatedAt).Scan(&reading.Seq)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := reading
	return &created, nil
}

func (t *txStore) FindPriorReading(ctx context.Context, stationID string, nozzleID string, excludingReadingID string) (*domain.Reading, error) {
	row := t.q.QueryRowContext(ctx, `
		SELECT `+readingColumns+`
		FROM readings
		WHERE station_id = $1
			AND nozzle_id = $2
			AND id <> $3
		ORDER BY reading_date DESC, reading_time DESC, seq DESC
		LIMIT 1
	`, stationID, nozzleID, excludingReadingID)
	reading, err := scanReading(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return reading, nil
}

func (t *txStore) InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ReadingID == "" || !sale.DeltaVolumeL.IsPositive() || !sale.PricePerLitre.IsPositive() {
		return nil, store.ErrValidation
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	_, err := t.q.ExecContext(ctx, `
		INSERT INTO sales (
			id, station_id, nozzle_id, reading_id, fuel_type, delta_volume_l, price_per_litre, total_amount, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, sale.ID, sale.StationID, sale.NozzleID, sale.ReadingID, string(sale.FuelType),
		sale.DeltaVolumeL, sale.PricePerLitre, sale.TotalAmount, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := sale
	return &created, nil
}

func (t *txStore) CreateEventLog(ctx context.Context, entry domain.EventLog) error {
	return insertEventLog(ctx, t.q, entry)
}

const readingColumns = `id, seq, station_id, nozzle_id, cumulative_volume,
			to_char(reading_date, 'YYYY-MM-DD'), to_char(reading_time, 'HH24:MI:SS'),
			source, created_by, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReading(row rowScanner) (*domain.Reading, error) {
	var reading domain.Reading
	var source string
	var createdBy sql.NullString
	if err := row.Scan(
		&reading.ID, &reading.Seq, &reading.StationID, &reading.NozzleID, &reading.CumulativeVolume,
		&reading.ReadingDate, &reading.ReadingTime, &source, &createdBy, &reading.CreatedAt,
	); err != nil {
		return nil, err
	}
	reading.Source = domain.ReadingSource(source)
	reading.CreatedBy = createdBy.String
	reading.CreatedAt = reading.CreatedAt.UTC()
	return &reading, nil
}

func scanFuelPrice(row rowScanner) (*domain.FuelPrice, error) {
	var price domain.FuelPrice
	var stationID, createdBy sql.NullString
	var fuelType string
	if err := row.Scan(&price.ID, &stationID, &fuelType, &price.PricePerLitre, &price.ValidFrom, &createdBy, &price.CreatedAt); err != nil {
		return nil, err
	}
	price.StationID = stationID.String
	price.FuelType = domain.FuelType(fuelType)
	price.CreatedBy = createdBy.String
	price.ValidFrom = price.ValidFrom.UTC()
	price.CreatedAt = price.CreatedAt.UTC()
	return &price, nil
}

func getNozzleContext(ctx context.Context, q querier, nozzleID string) (*domain.NozzleContext, error) {
	var nc domain.NozzleContext
	var fuelType string
	err := q.QueryRowContext(ctx, `
		SELECT n.id, n.station_id, p.id, p.serial_number, n.nozzle_number, n.fuel_type
		FROM nozzles n
		JOIN pumps p ON p.id = n.pump_id
		WHERE n.id = $1
	`, nozzleID).Scan(&nc.NozzleID, &nc.StationID, &nc.PumpID, &nc.PumpSerial, &nc.NozzleNumber, &fuelType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	nc.FuelType = domain.FuelType(fuelType)
	return &nc, nil
}

func latestPrice(ctx context.Context, q querier, stationID string, fuelType domain.FuelType, asOf time.Time) (*domain.FuelPrice, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, station_id, fuel_type, price_per_litre, valid_from, created_by, created_at
		FROM fuel_prices
		WHERE fuel_type = $1
			AND station_id IS NOT DISTINCT FROM $2
			AND valid_from <= $3
		ORDER BY valid_from DESC, created_at DESC
		LIMIT 1
	`, string(fuelType), nullIfEmpty(stationID), asOf)
	price, err := scanFuelPrice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return price, nil
}

func insertEventLog(ctx context.Context, q querier, entry domain.EventLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("evt")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO event_logs (
			id, station_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StationID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
