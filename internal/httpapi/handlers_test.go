package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/ingest"
	"fuelstation/backend/internal/metrics"
	"fuelstation/backend/internal/ocr"
	"fuelstation/backend/internal/service"
	"fuelstation/backend/internal/store/memory"
)

type stubExtractor struct {
	result *ocr.Result
	err    error
}

func (s stubExtractor) Extract(_ context.Context, _ []byte, _ string) (*ocr.Result, error) {
	return s.result, s.err
}

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	return newTestAPIWithExtractor(t, stubExtractor{result: &ocr.Result{
		PumpSerial: "PX-1001",
		Nozzles: []ocr.NozzleReading{
			{NozzleNumber: 1, CumulativeVolume: volume("500.000")},
			{NozzleNumber: 9, CumulativeVolume: volume("12.000")},
		},
	}})
}

func volume(value string) *decimal.Decimal {
	d := decimal.RequireFromString(value)
	return &d
}

func newTestAPIWithExtractor(t *testing.T, extractor service.Extractor) *API {
	t.Helper()

	repo, err := memory.NewSeeded(nil)
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	recorder := metrics.New()
	pipeline := ingest.New(repo, nil, ingest.WithMetrics(recorder))
	svc := service.New(repo, pipeline, service.WithExtractor(extractor))
	auth := NewAuthManager("test-secret-key", time.Hour, repo, nil)

	return New(svc, auth, "*", nil, recorder)
}

func login(t *testing.T, api *API, username string, password string) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("%s login failed, status %d", username, res.Code)
	}

	var payload domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response failed: %v", err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		t.Fatalf("expected access token in login response")
	}
	return payload.AccessToken
}

func doJSON(t *testing.T, api *API, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	return res
}

func decodeBody[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	res := doJSON(t, api, http.MethodGet, "/healthz", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	body := decodeBody[map[string]any](t, res)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin(t *testing.T) {
	api := newTestAPI(t)

	res := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "employee", Password: "employee123"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	resp := decodeBody[domain.LoginResponse](t, res)
	if resp.Role != domain.RoleEmployee || resp.StationID != "st-001" {
		t.Fatalf("unexpected login response %+v", resp)
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "employee", Password: "nope"})
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/auth/login", "", nil)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestManualReadingFlow(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "employee", "employee123")

	first := doJSON(t, api, http.MethodPost, "/api/v1/readings", token, map[string]any{
		"station_id":        "st-001",
		"nozzle_id":         "nz-001-2",
		"cumulative_volume": "1000",
		"reading_date":      "2024-05-01",
		"reading_time":      "08:00:00",
	})
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", first.Code, first.Body.String())
	}
	baseline := decodeBody[domain.ReadingResponse](t, first)
	if baseline.Reason != domain.ReasonBaseline || baseline.Sale != nil {
		t.Fatalf("expected baseline without sale, got %+v", baseline)
	}

	second := doJSON(t, api, http.MethodPost, "/api/v1/readings", token, map[string]any{
		"station_id":        "st-001",
		"nozzle_id":         "nz-001-2",
		"cumulative_volume": "1010.5",
		"reading_date":      "2024-05-01",
		"reading_time":      "09:00:00",
	})
	if second.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", second.Code, second.Body.String())
	}
	derived := decodeBody[domain.ReadingResponse](t, second)
	if derived.Sale == nil {
		t.Fatalf("expected sale on second reading, reason %s", derived.Reason)
	}
	if got := derived.Sale.TotalAmount.StringFixed(2); got != "942.38" {
		t.Fatalf("expected 10.5 L x 89.75 = 942.38, got %s", got)
	}

	list := doJSON(t, api, http.MethodGet, "/api/v1/readings?nozzle_id=nz-001-2&date=2024-05-01", token, nil)
	if list.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", list.Code)
	}
	readings := decodeBody[map[string][]domain.Reading](t, list)["readings"]
	if len(readings) != 2 || readings[0].ReadingTime != "09:00:00" {
		t.Fatalf("expected 2 readings newest first, got %+v", readings)
	}

	sales := doJSON(t, api, http.MethodGet, "/api/v1/sales?date=2024-05-01", token, nil)
	if got := decodeBody[map[string][]domain.Sale](t, sales)["sales"]; len(got) != 1 {
		t.Fatalf("expected 1 sale, got %d", len(got))
	}

	closure := doJSON(t, api, http.MethodGet, "/api/v1/reports/daily-closure?date=2024-05-01", token, nil)
	if closure.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", closure.Code)
	}
	if got := decodeBody[domain.DailyClosure](t, closure); got.Sales != 1 || got.TotalAmount.StringFixed(2) != "942.38" {
		t.Fatalf("unexpected closure %+v", got)
	}
}

func TestManualReadingRejections(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "employee", "employee123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/readings", "", map[string]any{"station_id": "st-001"})
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/readings", token, map[string]any{
		"station_id":        "st-002",
		"nozzle_id":         "nz-101-1",
		"cumulative_volume": "5",
	})
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another station, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/readings", token, map[string]any{
		"station_id":        "st-001",
		"nozzle_id":         "nz-101-1",
		"cumulative_volume": "5",
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for nozzle of another station, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/readings", token, map[string]any{
		"station_id":        "st-001",
		"nozzle_id":         "nz-001-1",
		"cumulative_volume": "5",
		"pump":              "extra",
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/readings", token, map[string]any{
		"station_id":        "st-001",
		"nozzle_id":         "nz-404",
		"cumulative_volume": "5",
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown nozzle, got %d", res.Code)
	}
}

func TestManualReadingMissingVolumeIsRejected(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "employee", "employee123")

	post := func(body map[string]any) *httptest.ResponseRecorder {
		body["station_id"] = "st-001"
		body["nozzle_id"] = "nz-001-1"
		body["reading_date"] = "2024-05-01"
		return doJSON(t, api, http.MethodPost, "/api/v1/readings", token, body)
	}

	if res := post(map[string]any{"cumulative_volume": "1000", "reading_time": "08:00:00"}); res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}

	res := post(map[string]any{"reading_time": "09:00:00"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without cumulative_volume, got %d (body: %s)", res.Code, res.Body.String())
	}
	if !strings.Contains(res.Body.String(), "cumulative_volume is required") {
		t.Fatalf("expected required message, got %s", res.Body.String())
	}
	if res := post(map[string]any{"cumulative_volume": nil, "reading_time": "09:30:00"}); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for null cumulative_volume, got %d", res.Code)
	}

	res = post(map[string]any{"cumulative_volume": "1010", "reading_time": "10:00:00"})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}
	derived := decodeBody[domain.ReadingResponse](t, res)
	if derived.Sale == nil {
		t.Fatalf("expected sale, reason %s", derived.Reason)
	}
	if got := derived.Sale.DeltaVolumeL.StringFixed(3); got != "10.000" {
		t.Fatalf("expected 10 L since the 08:00 reading, got %s", got)
	}
	if got := derived.Sale.TotalAmount.StringFixed(2); got != "1025.00" {
		t.Fatalf("expected 10 L x 102.50 = 1025.00, got %s", got)
	}
}

func TestVolumeEntryAppearsInEventLogs(t *testing.T) {
	api := newTestAPI(t)
	ownerToken := login(t, api, "owner", "owner123")
	employeeToken := login(t, api, "employee", "employee123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/volume-entries", employeeToken, map[string]any{
		"station_id":        "st-001",
		"nozzle_id":         "nz-002-2",
		"cumulative_volume": "300.000",
		"notes":             "opening",
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/event-logs", employeeToken, nil)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for employee event logs, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/event-logs?station_id=st-001", ownerToken, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	logs := decodeBody[map[string][]domain.EventLog](t, res)["event_logs"]
	if len(logs) != 1 || logs[0].Action != "volume_entry" || logs[0].ActorUsername != "employee" {
		t.Fatalf("unexpected event logs %+v", logs)
	}
	if !strings.Contains(logs[0].Detail, "notes=opening") {
		t.Fatalf("expected notes in detail, got %s", logs[0].Detail)
	}
}

func TestPriceEndpoints(t *testing.T) {
	api := newTestAPI(t)
	ownerToken := login(t, api, "owner", "owner123")
	employeeToken := login(t, api, "employee", "employee123")

	price := map[string]any{"station_id": "st-001", "fuel_type": "PETROL", "price_per_litre": "104.25"}
	if res := doJSON(t, api, http.MethodPost, "/api/v1/prices", employeeToken, price); res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for employee price create, got %d", res.Code)
	}
	if res := doJSON(t, api, http.MethodPost, "/api/v1/prices", ownerToken, price); res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}

	res := doJSON(t, api, http.MethodGet, "/api/v1/prices/current?fuel_type=petrol", employeeToken, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	current := decodeBody[domain.CurrentPriceResponse](t, res)
	if current.Scope != ingest.PriceScopeStation || current.Price.PricePerLitre.StringFixed(2) != "104.25" {
		t.Fatalf("unexpected current price %+v", current)
	}

	if res := doJSON(t, api, http.MethodGet, "/api/v1/prices/current", employeeToken, nil); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without fuel_type, got %d", res.Code)
	}
	if res := doJSON(t, api, http.MethodGet, "/api/v1/prices/current?fuel_type=EV", employeeToken, nil); res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unpriced fuel, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/prices?fuel_type=PETROL", employeeToken, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if list := decodeBody[domain.FuelPriceListResponse](t, res); len(list.Prices) != 2 {
		t.Fatalf("expected station row plus default, got %d", len(list.Prices))
	}

	superToken := login(t, api, "superadmin", "superadmin123")
	defaultPrice := map[string]any{"fuel_type": "CNG", "price_per_litre": "77.10"}
	if res := doJSON(t, api, http.MethodPost, "/api/v1/prices", superToken, defaultPrice); res.Code != http.StatusCreated {
		t.Fatalf("expected 201 for default price, got %d (body: %s)", res.Code, res.Body.String())
	}
	res = doJSON(t, api, http.MethodGet, "/api/v1/event-logs", superToken, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	logs := decodeBody[map[string][]domain.EventLog](t, res)["event_logs"]
	if len(logs) != 1 || logs[0].Action != "price_create" || !strings.Contains(logs[0].Detail, "scope=default") {
		t.Fatalf("expected default price event for superadmin, got %+v", logs)
	}
}

func postImage(t *testing.T, api *API, token string, fields map[string]string, image []byte) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if image != nil {
		part, err := writer.CreateFormFile("image", "pump.jpg")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(image); err != nil {
			t.Fatalf("write image: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ocr/readings", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	return res
}

func TestOCRUploadReportsPerNozzleOutcome(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "employee", "employee123")

	res := postImage(t, api, token, map[string]string{"station_id": "st-001", "reading_date": "2024-05-01"}, []byte{0xff, 0xd8, 0xff})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	resp := decodeBody[domain.OCRUploadResponse](t, res)
	if resp.Summary != "processed 1 of 2 nozzle readings" {
		t.Fatalf("unexpected summary %q", resp.Summary)
	}
	if resp.Results[0].Status != domain.OCRNozzleProcessed || resp.Results[0].NozzleID != "nz-001-1" {
		t.Fatalf("unexpected first result %+v", resp.Results[0])
	}
	if resp.Results[1].Status != domain.OCRNozzleFailed || resp.Results[1].Error == "" {
		t.Fatalf("expected second nozzle to fail with a message, got %+v", resp.Results[1])
	}

	if res := postImage(t, api, token, map[string]string{"station_id": "st-001"}, nil); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without image, got %d", res.Code)
	}
}

func TestOCRUploadVisionFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"poll exhausted", ocr.ErrPollExhausted, http.StatusBadGateway},
		{"analysis failed", ocr.ErrAnalysisFailed, http.StatusBadGateway},
		{"not configured", ocr.ErrNotConfigured, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := newTestAPIWithExtractor(t, stubExtractor{err: tc.err})
			token := login(t, api, "employee", "employee123")

			res := postImage(t, api, token, map[string]string{"station_id": "st-001"}, []byte{1, 2, 3})
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
		})
	}
}

func TestStationNozzles(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "employee", "employee123")

	res := doJSON(t, api, http.MethodGet, "/api/v1/stations/st-001/nozzles", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if nozzles := decodeBody[map[string][]domain.NozzleContext](t, res)["nozzles"]; len(nozzles) != 4 {
		t.Fatalf("expected 4 nozzles, got %d", len(nozzles))
	}

	if res := doJSON(t, api, http.MethodGet, "/api/v1/stations/st-002/nozzles", token, nil); res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another station, got %d", res.Code)
	}
}

func TestUsersEndpoint(t *testing.T) {
	api := newTestAPI(t)
	ownerToken := login(t, api, "owner", "owner123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/users", ownerToken, domain.UserCreateRequest{
		Username: "nightshift",
		Password: "night123",
		Role:     domain.RoleEmployee,
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/users", ownerToken, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	users := decodeBody[map[string][]domain.StationUser](t, res)["users"]
	if len(users) != 3 {
		t.Fatalf("expected owner, employee and nightshift, got %d", len(users))
	}

	token := login(t, api, "nightshift", "night123")
	if res := doJSON(t, api, http.MethodGet, "/api/v1/users", token, nil); res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for employee, got %d", res.Code)
	}

	superToken := login(t, api, "superadmin", "superadmin123")
	res = doJSON(t, api, http.MethodPost, "/api/v1/users", superToken, domain.UserCreateRequest{
		Username:  "ghostowner",
		Password:  "ghost123",
		Role:      domain.RoleOwner,
		StationID: "st-404",
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown station, got %d (body: %s)", res.Code, res.Body.String())
	}
	if !strings.Contains(res.Body.String(), "unknown station st-404") {
		t.Fatalf("expected unknown station message, got %s", res.Body.String())
	}
}

func TestMetricsEndpointExposesCounters(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "employee", "employee123")
	doJSON(t, api, http.MethodPost, "/api/v1/readings", token, map[string]any{
		"station_id":        "st-001",
		"nozzle_id":         "nz-001-1",
		"cumulative_volume": "10",
	})

	res := doJSON(t, api, http.MethodGet, "/metrics", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	body := res.Body.String()
	for _, want := range []string{
		`fuelstation_readings_ingested_total{reason="baseline",source="manual"} 1`,
		`route="/api/v1/readings"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected metrics to contain %s", want)
		}
	}
}
