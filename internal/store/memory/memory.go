package memory

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/store"
	"fuelstation/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	seq             int64
	stations        map[string]domain.Station
	pumps           map[string]domain.Pump
	nozzles         map[string]domain.Nozzle
	prices          []domain.FuelPrice
	readings        []domain.Reading
	readingsByID    map[string]domain.Reading
	sales           []domain.Sale
	saleByReading   map[string]string
	eventLogs       []domain.EventLog
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		stations:        make(map[string]domain.Station),
		pumps:           make(map[string]domain.Pump),
		nozzles:         make(map[string]domain.Nozzle),
		prices:          make([]domain.FuelPrice, 0, 16),
		readings:        make([]domain.Reading, 0, 128),
		readingsByID:    make(map[string]domain.Reading),
		sales:           make([]domain.Sale, 0, 128),
		saleByReading:   make(map[string]string),
		eventLogs:       make([]domain.EventLog, 0, 64),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Passwords come from SEED_SUPERADMIN_PASSWORD, SEED_OWNER_PASSWORD and
// SEED_EMPLOYEE_PASSWORD; hardcoded dev defaults are used when unset. These
// accounts never exist in production, where DATABASE_URL selects Postgres.
func seedUsers(logger *zap.Logger) (map[string]domain.UserAccount, error) {
	superPwd := envOr("SEED_SUPERADMIN_PASSWORD", "superadmin123")
	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	employeePwd := envOr("SEED_EMPLOYEE_PASSWORD", "employee123")
	if os.Getenv("SEED_SUPERADMIN_PASSWORD") == "" || os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_EMPLOYEE_PASSWORD") == "" {
		logger.Warn("using default dev credentials, set SEED_*_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username  string
		password  string
		role      string
		stationID string
	}{
		{"superadmin", superPwd, domain.RoleSuperadmin, ""},
		{"owner", ownerPwd, domain.RoleOwner, "st-001"},
		{"employee", employeePwd, domain.RoleEmployee, "st-001"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash seed password for %s: %w", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			StationID: u.stationID,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with two stations, their pumps and nozzles,
// default prices and the dev accounts. A nil logger discards the
// default-credentials warning.
func NewSeeded(logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := New()
	now := time.Now().UTC()

	s.AddStation(domain.Station{ID: "st-001", Name: "Highway 7 Fuel Centre", OwnerID: "owner", CreatedAt: now})
	s.AddStation(domain.Station{ID: "st-002", Name: "Lakeside Service Station", CreatedAt: now})

	s.AddPump(domain.Pump{ID: "pump-001", StationID: "st-001", SerialNumber: "PX-1001"})
	s.AddPump(domain.Pump{ID: "pump-002", StationID: "st-001", SerialNumber: "PX-1002"})
	s.AddPump(domain.Pump{ID: "pump-101", StationID: "st-002", SerialNumber: "PX-2001"})

	for _, n := range []domain.Nozzle{
		{ID: "nz-001-1", PumpID: "pump-001", NozzleNumber: 1, FuelType: domain.FuelPetrol},
		{ID: "nz-001-2", PumpID: "pump-001", NozzleNumber: 2, FuelType: domain.FuelDiesel},
		{ID: "nz-002-1", PumpID: "pump-002", NozzleNumber: 1, FuelType: domain.FuelPetrol},
		{ID: "nz-002-2", PumpID: "pump-002", NozzleNumber: 2, FuelType: domain.FuelCNG},
		{ID: "nz-101-1", PumpID: "pump-101", NozzleNumber: 1, FuelType: domain.FuelDiesel},
	} {
		if err := s.AddNozzle(n); err != nil {
			return nil, fmt.Errorf("seed nozzle %s: %w", n.ID, err)
		}
	}

	validFrom := now.AddDate(0, 0, -30)
	for _, p := range []domain.FuelPrice{
		{FuelType: domain.FuelPetrol, PricePerLitre: decimal.RequireFromString("102.50")},
		{FuelType: domain.FuelDiesel, PricePerLitre: decimal.RequireFromString("89.75")},
		{FuelType: domain.FuelCNG, PricePerLitre: decimal.RequireFromString("76.00")},
	} {
		p.ValidFrom = validFrom
		p.CreatedBy = "superadmin"
		if _, err := s.CreateFuelPrice(context.Background(), p); err != nil {
			return nil, fmt.Errorf("seed price %s: %w", p.FuelType, err)
		}
	}

	users, err := seedUsers(logger.Named("memory-store"))
	if err != nil {
		return nil, err
	}
	s.usersByUsername = users
	return s, nil
}

func (s *Store) AddStation(station domain.Station) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stations[station.ID] = station
}

func (s *Store) AddPump(pump domain.Pump) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pumps[pump.ID] = pump
}

// AddNozzle registers a nozzle; its station is taken from the pump.
func (s *Store) AddNozzle(nozzle domain.Nozzle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pump, ok := s.pumps[nozzle.PumpID]
	if !ok || !nozzle.FuelType.Valid() || nozzle.NozzleNumber < 1 {
		return store.ErrValidation
	}
	nozzle.StationID = pump.StationID
	s.nozzles[nozzle.ID] = nozzle
	return nil
}

func (s *Store) WithinNozzleLock(ctx context.Context, nozzleID string, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nozzles[nozzleID]; !ok {
		return store.ErrNotFound
	}

	tx := &memTx{s: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) GetNozzleContext(_ context.Context, nozzleID string) (*domain.NozzleContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nozzleContextLocked(nozzleID)
}

func (s *Store) LatestPrice(_ context.Context, stationID string, fuelType domain.FuelType, asOf time.Time) (*domain.FuelPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestPriceLocked(stationID, fuelType, asOf)
}

func (s *Store) GetStation(_ context.Context, stationID string) (*domain.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	station, ok := s.stations[stationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &station, nil
}

func (s *Store) FindNozzleByPump(_ context.Context, stationID string, pumpSerial string, nozzleNumber int) (*domain.NozzleContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pumpSerial = strings.TrimSpace(pumpSerial)
	for _, pump := range s.pumps {
		if pump.StationID != stationID || !strings.EqualFold(pump.SerialNumber, pumpSerial) {
			continue
		}
		for _, nozzle := range s.nozzles {
			if nozzle.PumpID == pump.ID && nozzle.NozzleNumber == nozzleNumber {
				return s.nozzleContextLocked(nozzle.ID)
			}
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListNozzles(_ context.Context, stationID string) ([]domain.NozzleContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.NozzleContext, 0, 8)
	for id, nozzle := range s.nozzles {
		if nozzle.StationID != stationID {
			continue
		}
		nc, err := s.nozzleContextLocked(id)
		if err != nil {
			return nil, err
		}
		result = append(result, *nc)
	}
	slices.SortFunc(result, func(a, b domain.NozzleContext) int {
		if a.PumpSerial == b.PumpSerial {
			return a.NozzleNumber - b.NozzleNumber
		}
		return strings.Compare(a.PumpSerial, b.PumpSerial)
	})
	return result, nil
}

func (s *Store) CreateFuelPrice(_ context.Context, price domain.FuelPrice) (*domain.FuelPrice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !price.FuelType.Valid() || !price.PricePerLitre.IsPositive() || price.ValidFrom.IsZero() {
		return nil, store.ErrValidation
	}
	if price.StationID != "" {
		if _, ok := s.stations[price.StationID]; !ok {
			return nil, store.ErrValidation
		}
	}
	if price.ID == "" {
		price.ID = xid.New("fp")
	}
	if price.CreatedAt.IsZero() {
		price.CreatedAt = time.Now().UTC()
	}
	price.ValidFrom = price.ValidFrom.UTC()
	s.prices = append(s.prices, price)
	created := price
	return &created, nil
}

// ListFuelPrices lists the station's own rows plus the defaults, newest
// valid_from first and newest created_at among equal valid_from. An empty
// stationID lists every row.
func (s *Store) ListFuelPrices(_ context.Context, stationID string, fuelType domain.FuelType, limit int) ([]domain.FuelPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.FuelPrice, 0, len(s.prices))
	for _, p := range s.prices {
		if stationID != "" && p.StationID != "" && p.StationID != stationID {
			continue
		}
		if fuelType != "" && p.FuelType != fuelType {
			continue
		}
		result = append(result, p)
	}
	slices.SortFunc(result, func(a, b domain.FuelPrice) int {
		return cmp.Or(b.ValidFrom.Compare(a.ValidFrom), b.CreatedAt.Compare(a.CreatedAt))
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListReadings(_ context.Context, filter domain.ReadingFilter) ([]domain.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit < 1 {
		limit = 100
	}
	result := make([]domain.Reading, 0, 32)
	for _, r := range s.readings {
		if filter.StationID != "" && r.StationID != filter.StationID {
			continue
		}
		if filter.NozzleID != "" && r.NozzleID != filter.NozzleID {
			continue
		}
		if filter.Date != "" && r.ReadingDate != filter.Date {
			continue
		}
		result = append(result, r)
	}
	slices.SortFunc(result, compareReadingDesc)
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit < 1 {
		limit = 100
	}
	result := make([]domain.Sale, 0, 32)
	for _, sale := range s.sales {
		if filter.StationID != "" && sale.StationID != filter.StationID {
			continue
		}
		if filter.NozzleID != "" && sale.NozzleID != filter.NozzleID {
			continue
		}
		if filter.Date != "" && s.readingsByID[sale.ReadingID].ReadingDate != filter.Date {
			continue
		}
		result = append(result, sale)
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetDailyClosure(_ context.Context, stationID string, date string) (domain.DailyClosure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	closure := domain.DailyClosure{
		StationID:   stationID,
		Date:        date,
		VolumeL:     decimal.Zero,
		TotalAmount: decimal.Zero,
	}
	for _, r := range s.readings {
		if r.StationID == stationID && r.ReadingDate == date {
			closure.Readings++
		}
	}

	byFuel := make(map[domain.FuelType]*domain.DailyClosureFuel)
	byNozzle := make(map[string]*domain.DailyClosureNozzle)
	for _, sale := range s.sales {
		if sale.StationID != stationID || s.readingsByID[sale.ReadingID].ReadingDate != date {
			continue
		}
		closure.Sales++
		closure.VolumeL = closure.VolumeL.Add(sale.DeltaVolumeL)
		closure.TotalAmount = closure.TotalAmount.Add(sale.TotalAmount)

		fuel, ok := byFuel[sale.FuelType]
		if !ok {
			fuel = &domain.DailyClosureFuel{FuelType: sale.FuelType}
			byFuel[sale.FuelType] = fuel
		}
		fuel.Sales++
		fuel.VolumeL = fuel.VolumeL.Add(sale.DeltaVolumeL)
		fuel.TotalAmount = fuel.TotalAmount.Add(sale.TotalAmount)

		nozzle, ok := byNozzle[sale.NozzleID]
		if !ok {
			nozzle = &domain.DailyClosureNozzle{NozzleID: sale.NozzleID}
			byNozzle[sale.NozzleID] = nozzle
		}
		nozzle.Sales++
		nozzle.VolumeL = nozzle.VolumeL.Add(sale.DeltaVolumeL)
		nozzle.TotalAmount = nozzle.TotalAmount.Add(sale.TotalAmount)
	}

	closure.ByFuelType = make([]domain.DailyClosureFuel, 0, len(byFuel))
	for _, fuel := range byFuel {
		closure.ByFuelType = append(closure.ByFuelType, *fuel)
	}
	slices.SortFunc(closure.ByFuelType, func(a, b domain.DailyClosureFuel) int {
		return strings.Compare(string(a.FuelType), string(b.FuelType))
	})
	closure.ByNozzle = make([]domain.DailyClosureNozzle, 0, len(byNozzle))
	for _, nozzle := range byNozzle {
		closure.ByNozzle = append(closure.ByNozzle, *nozzle)
	}
	slices.SortFunc(closure.ByNozzle, func(a, b domain.DailyClosureNozzle) int {
		return strings.Compare(a.NozzleID, b.NozzleID)
	})
	return closure, nil
}

func (s *Store) CreateEventLog(_ context.Context, entry domain.EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventLogs = append(s.eventLogs, normalizeEventLog(entry))
	return nil
}

func (s *Store) ListEventLogs(_ context.Context, stationID string, from time.Time, to time.Time, limit int) ([]domain.EventLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.EventLog, 0, limit)
	for i := len(s.eventLogs) - 1; i >= 0; i-- {
		entry := s.eventLogs[i]
		if entry.StationID != stationID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Username = username
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) nozzleContextLocked(nozzleID string) (*domain.NozzleContext, error) {
	nozzle, ok := s.nozzles[nozzleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	pump := s.pumps[nozzle.PumpID]
	return &domain.NozzleContext{
		NozzleID:     nozzle.ID,
		StationID:    nozzle.StationID,
		PumpID:       nozzle.PumpID,
		PumpSerial:   pump.SerialNumber,
		NozzleNumber: nozzle.NozzleNumber,
		FuelType:     nozzle.FuelType,
	}, nil
}

func (s *Store) latestPriceLocked(stationID string, fuelType domain.FuelType, asOf time.Time) (*domain.FuelPrice, error) {
	var best *domain.FuelPrice
	for i := range s.prices {
		p := s.prices[i]
		if p.StationID != stationID || p.FuelType != fuelType || p.ValidFrom.After(asOf) {
			continue
		}
		if best == nil || p.ValidFrom.After(best.ValidFrom) ||
			(p.ValidFrom.Equal(best.ValidFrom) && p.CreatedAt.After(best.CreatedAt)) {
			best = &p
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	found := *best
	return &found, nil
}

// memTx stages writes and applies them only when the unit of work succeeds.
// The store mutex is held for its whole lifetime.
type memTx struct {
	s         *Store
	readings  []domain.Reading
	sales     []domain.Sale
	eventLogs []domain.EventLog
}

func (t *memTx) GetNozzleContext(_ context.Context, nozzleID string) (*domain.NozzleContext, error) {
	return t.s.nozzleContextLocked(nozzleID)
}

func (t *memTx) LatestPrice(_ context.Context, stationID string, fuelType domain.FuelType, asOf time.Time) (*domain.FuelPrice, error) {
	return t.s.latestPriceLocked(stationID, fuelType, asOf)
}

func (t *memTx) InsertReading(_ context.Context, reading domain.Reading) (*domain.Reading, error) {
	if reading.StationID == "" || reading.NozzleID == "" || reading.CumulativeVolume.IsNegative() {
		return nil, store.ErrValidation
	}
	if reading.ID == "" {
		reading.ID = xid.New("rd")
	}
	if reading.CreatedAt.IsZero() {
		reading.CreatedAt = time.Now().UTC()
	}
	t.s.seq++
	reading.Seq = t.s.seq
	t.readings = append(t.readings, reading)
	created := reading
	return &created, nil
}

func (t *memTx) FindPriorReading(_ context.Context, stationID string, nozzleID string, excludingReadingID string) (*domain.Reading, error) {
	var prior *domain.Reading
	consider := func(r domain.Reading) {
		if r.StationID != stationID || r.NozzleID != nozzleID || r.ID == excludingReadingID {
			return
		}
		if prior == nil || compareReadingDesc(r, *prior) < 0 {
			candidate := r
			prior = &candidate
		}
	}
	for _, r := range t.s.readings {
		consider(r)
	}
	for _, r := range t.readings {
		consider(r)
	}
	if prior == nil {
		return nil, store.ErrNotFound
	}
	return prior, nil
}

func (t *memTx) InsertSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ReadingID == "" || !sale.DeltaVolumeL.IsPositive() || !sale.PricePerLitre.IsPositive() {
		return nil, store.ErrValidation
	}
	if _, exists := t.s.saleByReading[sale.ReadingID]; exists {
		return nil, store.ErrConflict
	}
	for _, staged := range t.sales {
		if staged.ReadingID == sale.ReadingID {
			return nil, store.ErrConflict
		}
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	t.sales = append(t.sales, sale)
	created := sale
	return &created, nil
}

func (t *memTx) CreateEventLog(_ context.Context, entry domain.EventLog) error {
	t.eventLogs = append(t.eventLogs, normalizeEventLog(entry))
	return nil
}

func (t *memTx) commit() {
	for _, r := range t.readings {
		t.s.readings = append(t.s.readings, r)
		t.s.readingsByID[r.ID] = r
	}
	for _, sale := range t.sales {
		t.s.sales = append(t.s.sales, sale)
		t.s.saleByReading[sale.ReadingID] = sale.ID
	}
	t.s.eventLogs = append(t.s.eventLogs, t.eventLogs...)
}

// compareReadingDesc orders readings newest first by date, time, then
// insertion sequence.
func compareReadingDesc(a, b domain.Reading) int {
	if c := strings.Compare(b.ReadingDate, a.ReadingDate); c != 0 {
		return c
	}
	if c := strings.Compare(b.ReadingTime, a.ReadingTime); c != 0 {
		return c
	}
	switch {
	case a.Seq > b.Seq:
		return -1
	case a.Seq < b.Seq:
		return 1
	default:
		return 0
	}
}

func normalizeEventLog(entry domain.EventLog) domain.EventLog {
	if entry.ID == "" {
		entry.ID = xid.New("evt")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return entry
}
