package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisReplyGuard(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	guard := NewRedisReplyGuard(client, time.Hour)
	ctx := context.Background()

	ok, err := guard.Claim(ctx, "100", "<p>@xAttitude hi</p>")
	if err != nil || !ok {
		t.Fatalf("Expected first claim to succeed, got %v (%v)", ok, err)
	}
	ok, err = guard.Claim(ctx, "100", "<p>@xAttitude hi</p>")
	if err != nil || ok {
		t.Errorf("Expected duplicate claim to fail, got %v (%v)", ok, err)
	}
	ok, _ = guard.Claim(ctx, "101", "<p>@xAttitude hi</p>")
	if !ok {
		t.Errorf("Expected claim in another topic to succeed")
	}

	if err := guard.Release(ctx, "100", "<p>@xAttitude hi</p>"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	ok, _ = guard.Claim(ctx, "100", "<p>@xAttitude hi</p>")
	if !ok {
		t.Errorf("Expected claim after release to succeed")
	}

	mr.FastForward(2 * time.Hour)
	ok, _ = guard.Claim(ctx, "100", "<p>@xAttitude hi</p>")
	if !ok {
		t.Errorf("Expected claim after expiry to succeed")
	}
}

func TestMemoryReplyGuardSingleWinner(t *testing.T) {
	guard := NewMemoryReplyGuard(time.Hour)
	ctx := context.Background()

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := guard.Claim(ctx, "100", "same"); ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("Expected exactly one winner, got %d", winners)
	}
}

func TestMemoryReplyGuardExpiry(t *testing.T) {
	guard := NewMemoryReplyGuard(time.Minute)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, _ := guard.Claim(ctx, "1", "c"); !ok {
		t.Fatalf("Expected first claim to succeed")
	}
	now = now.Add(2 * time.Minute)
	if ok, _ := guard.Claim(ctx, "1", "c"); !ok {
		t.Errorf("Expected claim after ttl to succeed")
	}
}

func TestMemoryReplyGuardSweepsExpiredClaims(t *testing.T) {
	guard := NewMemoryReplyGuard(time.Minute)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if ok, _ := guard.Claim(ctx, "1", fmt.Sprintf("mention %d", i)); !ok {
			t.Fatalf("Expected claim %d to succeed", i)
		}
	}
	if got := guard.Len(); got != 50 {
		t.Fatalf("Expected 50 claims, got %d", got)
	}

	now = now.Add(5 * time.Minute)
	if ok, _ := guard.Claim(ctx, "1", "fresh"); !ok {
		t.Fatalf("Expected fresh claim to succeed")
	}
	if got := guard.Len(); got != 1 {
		t.Errorf("Expected expired claims to be swept, %d left", got)
	}
}
