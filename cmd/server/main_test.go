package main

import (
	"testing"
	"time"

	"fuelstation/backend/internal/config"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: strongSecret})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidateSecurityConfigChecksVisionEndpoint(t *testing.T) {
	cases := []struct {
		name    string
		cfg     config.Config
		wantErr bool
	}{
		{"https with key", config.Config{AuthSecret: strongSecret, OCREndpoint: "https://vision.example.com", OCRAPIKey: "k"}, false},
		{"loopback http", config.Config{AuthSecret: strongSecret, OCREndpoint: "http://127.0.0.1:9000", OCRAPIKey: "k"}, false},
		{"plain http", config.Config{AuthSecret: strongSecret, OCREndpoint: "http://vision.example.com", OCRAPIKey: "k"}, true},
		{"missing key", config.Config{AuthSecret: strongSecret, OCREndpoint: "https://vision.example.com"}, true},
		{"relative url", config.Config{AuthSecret: strongSecret, OCREndpoint: "/analyze", OCRAPIKey: "k"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateSecurityConfig(tc.cfg)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestWriteTimeoutCoversPolling(t *testing.T) {
	short := writeTimeout(config.Config{OCRPollAttempts: 2, OCRPollIntervalMS: 500})
	if short != 30*time.Second {
		t.Fatalf("expected 30s floor, got %s", short)
	}
	long := writeTimeout(config.Config{OCRPollAttempts: 30, OCRPollIntervalMS: 2000})
	if long != 80*time.Second {
		t.Fatalf("expected 80s, got %s", long)
	}
}
