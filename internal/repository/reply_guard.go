package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const replyClaimKeyPrefix = "forumbot:reply:"

// ReplyGuard hands out one claim per (topic, mention content) so that racing
// deliveries of the same mention cannot both produce a reply.
type ReplyGuard interface {
	// Claim returns true when the caller owns the mention and should reply
	Claim(ctx context.Context, topicID, content string) (bool, error)
	// Release gives the claim back when no reply was produced
	Release(ctx context.Context, topicID, content string) error
}

func replyClaimKey(topicID, content string) string {
	sum := sha256.Sum256([]byte(content))
	return replyClaimKeyPrefix + topicID + ":" + hex.EncodeToString(sum[:])
}

// RedisReplyGuard claims mentions with SET NX and a TTL
type RedisReplyGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisReplyGuard creates a new RedisReplyGuard whose claims expire after ttl
func NewRedisReplyGuard(client *redis.Client, ttl time.Duration) *RedisReplyGuard {
	return &RedisReplyGuard{
		client: client,
		ttl:    ttl,
	}
}

// Claim takes the reply slot for content in topicID with SET NX. It reports false when another replica holds it.
func (g *RedisReplyGuard) Claim(ctx context.Context, topicID, content string) (bool, error) {
	ok, err := g.client.SetNX(ctx, replyClaimKey(topicID, content), time.Now().UTC().Unix(), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim reply: %w", err)
	}
	return ok, nil
}

// Release drops a claim so a failed reply can be retried
func (g *RedisReplyGuard) Release(ctx context.Context, topicID, content string) error {
	if err := g.client.Del(ctx, replyClaimKey(topicID, content)).Err(); err != nil {
		return fmt.Errorf("error deleting reply claim: %w", err)
	}
	return nil
}

// memorySweepInterval bounds how often Claim scans for expired claims
const memorySweepInterval = time.Minute

// MemoryReplyGuard is a process-local ReplyGuard. Expired claims are swept on Claim.
type MemoryReplyGuard struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	claims    map[string]time.Time
	lastSweep time.Time
}

// NewMemoryReplyGuard creates a guard whose claims live for ttl
func NewMemoryReplyGuard(ttl time.Duration) *MemoryReplyGuard {
	return &MemoryReplyGuard{
		ttl:    ttl,
		now:    time.Now,
		claims: make(map[string]time.Time),
	}
}

// Claim takes the mention unless an unexpired claim already holds it
func (g *MemoryReplyGuard) Claim(ctx context.Context, topicID, content string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.sweep(now)

	key := replyClaimKey(topicID, content)
	if expires, ok := g.claims[key]; ok && now.Before(expires) {
		return false, nil
	}
	g.claims[key] = now.Add(g.ttl)
	return true, nil
}

func (g *MemoryReplyGuard) sweep(now time.Time) {
	if now.Sub(g.lastSweep) < memorySweepInterval {
		return
	}
	for key, expires := range g.claims {
		if !now.Before(expires) {
			delete(g.claims, key)
		}
	}
	g.lastSweep = now
}

// Len returns the number of claims currently held, expired or not
func (g *MemoryReplyGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.claims)
}

// Release drops the claim so a later delivery can retry
func (g *MemoryReplyGuard) Release(ctx context.Context, topicID, content string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.claims, replyClaimKey(topicID, content))
	return nil
}
