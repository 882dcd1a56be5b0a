package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.ReadingIngested("manual", "baseline", time.Millisecond)
	r.SaleDerived("PETROL", 10)
	r.OCRPoll("pending")
	r.HTTPStarted()("GET", "/healthz", 200)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecorderCountsAndServes(t *testing.T) {
	r := New()
	r.ReadingIngested("ocr", "sale_created", 5*time.Millisecond)
	r.ReadingIngested("ocr", "sale_created", 5*time.Millisecond)
	r.SaleDerived("DIESEL", 50.5)
	r.HTTPStarted()("POST", "/api/v1/readings", 201)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.readingsTotal.WithLabelValues("ocr", "sale_created")))
	assert.Equal(t, 50.5, testutil.ToFloat64(r.saleLitres.WithLabelValues("DIESEL")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.httpInFlight))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "fuelstation_sales_derived_total"))
}
