package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/keke-hail/internal/models"
)

// fakeUpdater implements RedisUpdater for tests
type fakeUpdater struct {
	failIncr  int // number of times to fail HIncrBy before succeeding
	failH     int // number of times to fail HSet before succeeding
	incrCalls int
	hCalls    int
}

func (f *fakeUpdater) HIncrBy(ctx context.Context, key, field string, incr int64) error {
	f.incrCalls++
	if f.incrCalls <= f.failIncr {
		return errors.New("incr fail")
	}
	return nil
}

func (f *fakeUpdater) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.hCalls++
	if f.hCalls <= f.failH {
		return errors.New("hset fail")
	}
	return nil
}

func TestUpdateRedisWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeUpdater{failIncr: 1, failH: 1}
	ev := &models.RideEvent{Type: models.EventUpdate, RideID: "r1", PassengerID: "p1", Status: models.StatusAccepted}
	ctx := context.Background()
	start := time.Now()
	if err := updateRedisWithRetry(ctx, f, ev, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.incrCalls < 2 || f.hCalls < 2 {
		t.Fatalf("expected retries, got incr=%d h=%d", f.incrCalls, f.hCalls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
}

func TestUpdateRedisWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeUpdater{failIncr: 5, failH: 0}
	ev := &models.RideEvent{Type: models.EventInsert, RideID: "r1", PassengerID: "p1", Status: models.StatusPending}
	ctx := context.Background()
	if err := updateRedisWithRetry(ctx, f, ev, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}
