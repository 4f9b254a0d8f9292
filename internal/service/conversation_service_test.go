package service

import (
	"context"
	"testing"
	"time"

	"forum-bot-service/internal/models"
	"forum-bot-service/internal/repository"
)

func TestActiveConversationBoundary(t *testing.T) {
	testCases := []struct {
		name     string
		idle     time.Duration
		expected bool
	}{
		{"fresh", 0, true},
		{"idle fourteen minutes", 14 * time.Minute, true},
		{"exactly at timeout", 15 * time.Minute, true},
		{"one second past timeout", 15*time.Minute + time.Second, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clock := newFakeClock()
			svc := NewConversationService(repository.NewMemoryConversationRepository(), 15*time.Minute, clock.Now)
			ctx := context.Background()

			id, err := svc.CreateConversation(ctx, "100", "alice")
			if err != nil {
				t.Fatalf("CreateConversation failed: %v", err)
			}
			clock.Advance(tc.idle)

			got, ok, err := svc.ActiveConversation(ctx, "100", "alice")
			if err != nil {
				t.Fatalf("ActiveConversation failed: %v", err)
			}
			if ok != tc.expected {
				t.Errorf("ActiveConversation() ok = %v, expected %v", ok, tc.expected)
			}
			if ok && got != id {
				t.Errorf("Expected conversation %s, got %s", id, got)
			}
		})
	}
}

func TestCheckAndExpireBoundary(t *testing.T) {
	clock := newFakeClock()
	svc := NewConversationService(repository.NewMemoryConversationRepository(), 15*time.Minute, clock.Now)
	ctx := context.Background()

	id, _ := svc.CreateConversation(ctx, "100", "alice")

	clock.Advance(15 * time.Minute)
	expired, err := svc.CheckAndExpire(ctx, id)
	if err != nil || expired {
		t.Fatalf("Expected conversation at the boundary to stay active, got %v (%v)", expired, err)
	}

	clock.Advance(time.Second)
	expired, err = svc.CheckAndExpire(ctx, id)
	if err != nil || !expired {
		t.Fatalf("Expected conversation to expire, got %v (%v)", expired, err)
	}

	if _, ok, _ := svc.ActiveConversation(ctx, "100", "alice"); ok {
		t.Errorf("Expected no active conversation after expiry")
	}
}

func TestAppendMessageKeepsConversationAlive(t *testing.T) {
	clock := newFakeClock()
	svc := NewConversationService(repository.NewMemoryConversationRepository(), 15*time.Minute, clock.Now)
	ctx := context.Background()

	id, _ := svc.CreateConversation(ctx, "100", "alice")
	clock.Advance(10 * time.Minute)
	if err := svc.AppendMessage(ctx, id, models.AuthorUser, "Kto wygrał Royal Rumble 1992?", "alice"); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	clock.Advance(10 * time.Minute)

	if _, ok, _ := svc.ActiveConversation(ctx, "100", "alice"); !ok {
		t.Errorf("Expected conversation to be active ten minutes after the last message")
	}
}

func TestConversationsArePerTopicAndUser(t *testing.T) {
	svc := NewConversationService(repository.NewMemoryConversationRepository(), 0, newFakeClock().Now)
	ctx := context.Background()

	a, _ := svc.CreateConversation(ctx, "100", "alice")
	b, _ := svc.CreateConversation(ctx, "100", "bob")
	c, _ := svc.CreateConversation(ctx, "200", "alice")
	if a == b || a == c || b == c {
		t.Fatalf("Expected distinct ids, got %s %s %s", a, b, c)
	}

	got, ok, _ := svc.ActiveConversation(ctx, "100", "bob")
	if !ok || got != b {
		t.Errorf("Expected bob's conversation %s, got %s (%v)", b, got, ok)
	}
}

func TestHistoryOrderAndMarkInactive(t *testing.T) {
	clock := newFakeClock()
	svc := NewConversationService(repository.NewMemoryConversationRepository(), 15*time.Minute, clock.Now)
	ctx := context.Background()

	id, _ := svc.CreateConversation(ctx, "100", "alice")
	_ = svc.AppendMessage(ctx, id, models.AuthorUser, "pierwsze", "alice")
	// Same timestamp: insertion order decides
	_ = svc.AppendMessage(ctx, id, models.AuthorAI, "drugie", "xAttitude")
	clock.Advance(time.Second)
	_ = svc.AppendMessage(ctx, id, models.AuthorUser, "trzecie", "alice")

	history, err := svc.History(ctx, id)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	expected := []string{"pierwsze", "drugie", "trzecie"}
	if len(history) != len(expected) {
		t.Fatalf("Expected %d messages, got %d", len(expected), len(history))
	}
	for i, content := range expected {
		if history[i].Content != content {
			t.Errorf("Message %d: expected %q, got %q", i, content, history[i].Content)
		}
	}

	for i := 0; i < 2; i++ {
		if err := svc.MarkInactive(ctx, id); err != nil {
			t.Fatalf("MarkInactive call %d failed: %v", i+1, err)
		}
	}
	if _, ok, _ := svc.ActiveConversation(ctx, "100", "alice"); ok {
		t.Errorf("Expected conversation to be inactive")
	}
}
