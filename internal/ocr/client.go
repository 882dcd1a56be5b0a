package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fuelstation/backend/internal/metrics"
)

var (
	ErrNotConfigured  = errors.New("ocr: vision endpoint not configured")
	ErrPollExhausted  = errors.New("ocr: analysis did not finish within poll attempts")
	ErrAnalysisFailed = errors.New("ocr: analysis failed")
)

const (
	statusSucceeded = "succeeded"
	statusFailed    = "failed"

	defaultPollAttempts = 10
	defaultPollInterval = time.Second
	maxErrorBody        = 512
)

// HTTPDoer is the subset of *http.Client the vision client needs.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// NozzleReading is one counter read off the photo. CumulativeVolume is nil
// when the service returned no value for the nozzle.
type NozzleReading struct {
	NozzleNumber     int              `json:"nozzle_number"`
	CumulativeVolume *decimal.Decimal `json:"cumulative_volume"`
}

// Result is what the vision service read off one pump photo.
type Result struct {
	PumpSerial string          `json:"pump_serial"`
	Nozzles    []NozzleReading `json:"nozzles"`
}

type operationStatus struct {
	Status string  `json:"status"`
	Error  string  `json:"error,omitempty"`
	Result *Result `json:"result,omitempty"`
}

type Client struct {
	baseURL  string
	apiKey   string
	http     HTTPDoer
	attempts int
	interval time.Duration
	logger   *zap.Logger
	metrics  *metrics.Recorder
}

type Option func(*Client)

func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

// WithPolling caps the number of status polls and the delay before each.
func WithPolling(attempts int, interval time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if interval >= 0 {
			c.interval = interval
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.Named("ocr")
		}
	}
}

func WithMetrics(recorder *metrics.Recorder) Option {
	return func(c *Client) {
		c.metrics = recorder
	}
}

func New(baseURL string, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 15 * time.Second},
		attempts: defaultPollAttempts,
		interval: defaultPollInterval,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Extract submits the image for analysis and polls the returned operation
// until it succeeds, fails, or the attempt cap is reached.
func (c *Client) Extract(ctx context.Context, image []byte, contentType string) (*Result, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(image))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocr: submit image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("ocr: submit image: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	operation := c.resolveURL(resp.Header.Get("Operation-Location"))
	if operation == "" {
		return nil, errors.New("ocr: submit image: missing Operation-Location header")
	}

	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err := sleep(ctx, c.interval); err != nil {
			return nil, err
		}

		status, err := c.poll(ctx, operation)
		if err != nil {
			c.metrics.OCRPoll("error")
			return nil, err
		}
		switch strings.ToLower(status.Status) {
		case statusSucceeded:
			c.metrics.OCRPoll(statusSucceeded)
			if status.Result == nil {
				return nil, fmt.Errorf("%w: empty result", ErrAnalysisFailed)
			}
			return status.Result, nil
		case statusFailed:
			c.metrics.OCRPoll(statusFailed)
			return nil, fmt.Errorf("%w: %s", ErrAnalysisFailed, status.Error)
		default:
			c.metrics.OCRPoll("pending")
			c.logger.Debug("analysis pending", zap.Int("attempt", attempt), zap.String("status", status.Status))
		}
	}

	c.logger.Warn("analysis poll attempts exhausted", zap.Int("attempts", c.attempts))
	return nil, ErrPollExhausted
}

func (c *Client) poll(ctx context.Context, operation string) (*operationStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, operation, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocr: poll: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("ocr: poll: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var status operationStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("ocr: poll: decode: %w", err)
	}
	return &status, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	}
}

func (c *Client) resolveURL(location string) string {
	location = strings.TrimSpace(location)
	if location == "" || strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return location
	}
	if !strings.HasPrefix(location, "/") {
		location = "/" + location
	}
	return c.baseURL + location
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
