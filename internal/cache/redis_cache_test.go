package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"fuelstation/backend/internal/domain"
)

func TestNoopNozzleCacheAlwaysMisses(t *testing.T) {
	var c NozzleCache = NoopNozzleCache{}
	if err := c.Set(context.Background(), "k", &domain.NozzleContext{NozzleID: "nz-1"}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, err := c.Get(context.Background(), "k"); ok || err != nil {
		t.Fatalf("expected miss without error, got ok=%v err=%v", ok, err)
	}
}

func TestRedisNozzleCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("FUELSTATION_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set FUELSTATION_TEST_REDIS_ADDR to run redis integration test")
	}

	ctx := context.Background()
	c := NewRedisNozzleCache(addr, "", 0)
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	key := fmt.Sprintf("it-%d", time.Now().UnixNano())
	if _, ok, err := c.Get(ctx, key); ok || err != nil {
		t.Fatalf("expected cold miss, got ok=%v err=%v", ok, err)
	}

	want := &domain.NozzleContext{NozzleID: "nz-1", StationID: "st-1", PumpSerial: "SN-1", NozzleNumber: 2, FuelType: domain.FuelDiesel}
	if err := c.Set(ctx, key, want, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if *got != *want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}
