package ocr

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type visionStub struct {
	pendingPolls int32
	final        string
	polls        atomic.Int32
	gotKey       atomic.Value
	gotImage     atomic.Value
}

func (s *visionStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /analyze", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.gotImage.Store(string(body))
		s.gotKey.Store(r.Header.Get("Ocp-Apim-Subscription-Key"))
		w.Header().Set("Operation-Location", "/operations/op-1")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /operations/op-1", func(w http.ResponseWriter, _ *http.Request) {
		n := s.polls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if n <= s.pendingPolls {
			_, _ = w.Write([]byte(`{"status":"running"}`))
			return
		}
		_, _ = w.Write([]byte(s.final))
	})
	return mux
}

func TestExtractPollsUntilSucceeded(t *testing.T) {
	stub := &visionStub{
		pendingPolls: 2,
		final:        `{"status":"succeeded","result":{"pump_serial":"SN-100","nozzles":[{"nozzle_number":1,"cumulative_volume":"1050.500"},{"nozzle_number":2,"cumulative_volume":734.25},{"nozzle_number":3,"cumulative_volume":null},{"nozzle_number":4}]}}`,
	}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	client := New(srv.URL, "secret", WithPolling(5, time.Millisecond))
	result, err := client.Extract(context.Background(), []byte("jpeg-bytes"), "image/jpeg")
	require.NoError(t, err)

	assert.Equal(t, "SN-100", result.PumpSerial)
	require.Len(t, result.Nozzles, 4)
	require.NotNil(t, result.Nozzles[0].CumulativeVolume)
	assert.Equal(t, "1050.500", result.Nozzles[0].CumulativeVolume.StringFixed(3))
	assert.Equal(t, 2, result.Nozzles[1].NozzleNumber)
	assert.Nil(t, result.Nozzles[2].CumulativeVolume, "null counter stays unread")
	assert.Nil(t, result.Nozzles[3].CumulativeVolume, "absent counter stays unread")
	assert.Equal(t, int32(3), stub.polls.Load())
	assert.Equal(t, "secret", stub.gotKey.Load())
	assert.Equal(t, "jpeg-bytes", stub.gotImage.Load())
}

func TestExtractStopsAfterPollCap(t *testing.T) {
	stub := &visionStub{pendingPolls: 100}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	client := New(srv.URL, "", WithPolling(3, time.Millisecond))
	_, err := client.Extract(context.Background(), []byte("img"), "")
	require.ErrorIs(t, err, ErrPollExhausted)
	assert.Equal(t, int32(3), stub.polls.Load())
}

func TestExtractReportsFailedAnalysis(t *testing.T) {
	stub := &visionStub{final: `{"status":"failed","error":"image too blurry"}`}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	client := New(srv.URL, "", WithPolling(3, 0))
	_, err := client.Extract(context.Background(), []byte("img"), "image/png")
	require.ErrorIs(t, err, ErrAnalysisFailed)
	assert.Contains(t, err.Error(), "image too blurry")
}

func TestExtractRejectsUnexpectedSubmitStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").Extract(context.Background(), []byte("img"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestExtractHonoursContextCancellation(t *testing.T) {
	stub := &visionStub{pendingPolls: 100}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := New(srv.URL, "", WithPolling(50, 10*time.Millisecond)).Extract(ctx, []byte("img"), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestExtractWithoutEndpoint(t *testing.T) {
	_, err := New("", "").Extract(context.Background(), []byte("img"), "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
