// Package redis provides a Redis-backed login token store. Tokens are
// kept as JSON values under per-token keys with a per-user pointer to the
// most recent one; state transitions run as Lua scripts so each token
// record keeps the same compare-and-set behavior as the MongoDB store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/webmaker/logind/domain"
)

// TokenStore implements domain.LoginTokenRepository using Redis.
type TokenStore struct {
	client *redis.Client
	prefix string
	// ttl is applied to every key: the redemption window plus slack so
	// expired tokens remain observable for a while before Redis drops
	// them. Once a key is gone, redemption reports NOT_FOUND instead of
	// EXPIRED; both are terminal and collapse to the same external error.
	ttl time.Duration
}

// NewTokenStore creates a TokenStore. ttl should exceed the redemption
// window.
func NewTokenStore(client *redis.Client, prefix string, ttl time.Duration) *TokenStore {
	return &TokenStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *TokenStore) tokenKey(id string) string {
	return fmt.Sprintf("%s:token:%s", r.prefix, id)
}

func (r *TokenStore) userKey(userID string) string {
	return fmt.Sprintf("%s:user:%s", r.prefix, userID)
}

func (r *TokenStore) codeKey(code string) string {
	return fmt.Sprintf("%s:code:%s", r.prefix, code)
}

// record is the wire form of a token in Redis. Timestamps are unix
// milliseconds so the Lua scripts can compare them numerically.
type record struct {
	ID             string `json:"id"`
	Code           string `json:"code"`
	UserID         string `json:"user_id"`
	Audience       string `json:"audience"`
	FailedAttempts int    `json:"failed_attempts"`
	Used           bool   `json:"used"`
	Invalidated    bool   `json:"invalidated"`
	CreatedAtMS    int64  `json:"created_at_ms"`
}

func toRecord(t *domain.LoginToken) *record {
	return &record{
		ID:             t.ID,
		Code:           t.Code,
		UserID:         t.UserID,
		Audience:       t.Audience,
		FailedAttempts: t.FailedAttempts,
		Used:           t.Used,
		Invalidated:    t.Invalidated,
		CreatedAtMS:    t.CreatedAt.UnixMilli(),
	}
}

func (rec *record) toToken() *domain.LoginToken {
	return &domain.LoginToken{
		ID:             rec.ID,
		Code:           rec.Code,
		UserID:         rec.UserID,
		Audience:       rec.Audience,
		FailedAttempts: rec.FailedAttempts,
		Used:           rec.Used,
		Invalidated:    rec.Invalidated,
		CreatedAt:      time.UnixMilli(rec.CreatedAtMS).UTC(),
	}
}

// consumeScript flips used to true iff the token is still redeemable.
// Returns 1 on success, 0 when the guard fails or the key is gone.
var consumeScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return 0 end
local t = cjson.decode(v)
if t.used or t.invalidated then return 0 end
if t.failed_attempts >= tonumber(ARGV[1]) then return 0 end
if t.created_at_ms < tonumber(ARGV[2]) then return 0 end
t.used = true
redis.call('SET', KEYS[1], cjson.encode(t), 'KEEPTTL')
return 1
`)

// failScript increments failed_attempts unless the token is used.
// Returns the new count, or -1 when the token is missing or used.
var failScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return -1 end
local t = cjson.decode(v)
if t.used then return -1 end
t.failed_attempts = t.failed_attempts + 1
redis.call('SET', KEYS[1], cjson.encode(t), 'KEEPTTL')
return t.failed_attempts
`)

// invalidateScript marks the token superseded iff it matches the audience
// and is neither used nor already invalidated. A used token is never
// touched, so invalidation can never resurrect or mask a redeemed token.
var invalidateScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return 0 end
local t = cjson.decode(v)
if t.audience ~= ARGV[1] or t.used or t.invalidated then return 0 end
t.invalidated = true
redis.call('SET', KEYS[1], cjson.encode(t), 'KEEPTTL')
return 1
`)

func (r *TokenStore) CreateToken(ctx context.Context, token *domain.LoginToken) error {
	payload, err := json.Marshal(toRecord(token))
	if err != nil {
		return fmt.Errorf("failed to marshal login token: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.tokenKey(token.ID), payload, r.ttl)
	pipe.Set(ctx, r.userKey(token.UserID), token.ID, r.ttl)
	pipe.Set(ctx, r.codeKey(token.Code), token.ID, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store login token in redis: %w", err)
	}
	return nil
}

func (r *TokenStore) LatestTokenForUser(ctx context.Context, userID string) (*domain.LoginToken, error) {
	id, err := r.client.Get(ctx, r.userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve latest token: %w", err)
	}

	payload, err := r.client.Get(ctx, r.tokenKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load login token: %w", err)
	}

	var rec record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal login token: %w", err)
	}
	t := rec.toToken()
	if t.Invalidated {
		return nil, domain.ErrTokenNotFound
	}
	return t, nil
}

func (r *TokenStore) CodeInUse(ctx context.Context, code string, _ time.Time) (bool, error) {
	n, err := r.client.Exists(ctx, r.codeKey(code)).Result()
	if err != nil {
		return false, fmt.Errorf("code collision probe failed: %w", err)
	}
	return n > 0, nil
}

func (r *TokenStore) InvalidateTokens(ctx context.Context, userID, audience string) (int64, error) {
	id, err := r.client.Get(ctx, r.userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve token for invalidation: %w", err)
	}

	n, err := invalidateScript.Run(ctx, r.client, []string{r.tokenKey(id)}, audience).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate prior token: %w", err)
	}
	return n, nil
}

func (r *TokenStore) RecordFailedAttempt(ctx context.Context, tokenID string) (int, error) {
	n, err := failScript.Run(ctx, r.client, []string{r.tokenKey(tokenID)}).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to record failed attempt: %w", err)
	}
	if n < 0 {
		return 0, domain.ErrTokenNotFound
	}
	return n, nil
}

func (r *TokenStore) ConsumeToken(ctx context.Context, tokenID string, notBefore time.Time, maxAttempts int) (bool, error) {
	n, err := consumeScript.Run(ctx, r.client,
		[]string{r.tokenKey(tokenID)},
		maxAttempts, notBefore.UnixMilli(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to consume login token: %w", err)
	}
	return n == 1, nil
}

// DeleteExpiredTokens is a no-op: Redis expires keys by TTL.
func (r *TokenStore) DeleteExpiredTokens(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}
