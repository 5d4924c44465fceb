package services

import (
	"context"
	"testing"
	"time"
)

func TestRateLimitAdmitsUpToLimit(t *testing.T) {
	svc := NewRateLimitService(newTestDB(t), nil, 10, time.Minute)
	ctx := context.Background()
	userID := int64(100)

	for i := 0; i < 10; i++ {
		if !svc.Check(ctx, userID) {
			t.Fatalf("Request %d should be allowed", i+1)
		}
		svc.Record(ctx, userID)
	}

	if svc.Check(ctx, userID) {
		t.Error("Request 11 should be denied within the window")
	}
}

func TestRateLimitWindowReset(t *testing.T) {
	now := time.Now()
	svc := NewRateLimitService(newTestDB(t), nil, 10, time.Minute)
	svc.now = func() time.Time { return now }

	ctx := context.Background()
	userID := int64(200)

	for i := 0; i < 10; i++ {
		svc.Record(ctx, userID)
	}
	if svc.Check(ctx, userID) {
		t.Fatal("Expected denial at the limit")
	}

	now = now.Add(61 * time.Second)
	if !svc.Check(ctx, userID) {
		t.Fatal("Expected a fresh budget after the window elapsed")
	}

	// The rollover must actually clear the counter, not just report allowed
	svc.Record(ctx, userID)
	if !svc.Check(ctx, userID) {
		t.Error("Expected budget to be nearly full after reset")
	}
}

func TestRateLimitOtherUserUnaffected(t *testing.T) {
	svc := NewRateLimitService(newTestDB(t), nil, 10, time.Minute)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		svc.Record(ctx, int64(300))
	}

	if !svc.Check(ctx, int64(301)) {
		t.Error("Another user's budget must be independent")
	}
}
