package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoginToken_Expired(t *testing.T) {
	now := time.Date(2015, 6, 1, 12, 0, 0, 0, time.UTC)
	tok := &LoginToken{CreatedAt: now.Add(-20 * time.Minute)}

	assert.False(t, tok.Expired(30*time.Minute, now))
	assert.True(t, tok.Expired(10*time.Minute, now))

	// The boundary instant is still inside the window.
	edge := &LoginToken{CreatedAt: now.Add(-30 * time.Minute)}
	assert.False(t, edge.Expired(30*time.Minute, now))
	assert.True(t, edge.Expired(30*time.Minute, now.Add(time.Nanosecond)))
}

func TestLoginToken_Exhausted(t *testing.T) {
	tok := &LoginToken{FailedAttempts: 4}
	assert.False(t, tok.Exhausted(5))

	tok.FailedAttempts = 5
	assert.True(t, tok.Exhausted(5))

	tok.FailedAttempts = 9
	assert.True(t, tok.Exhausted(5))
}

func TestLoginToken_Redeemable(t *testing.T) {
	now := time.Date(2015, 6, 1, 12, 0, 0, 0, time.UTC)
	fresh := func() *LoginToken {
		return &LoginToken{CreatedAt: now.Add(-time.Minute), FailedAttempts: 1}
	}

	assert.True(t, fresh().Redeemable(30*time.Minute, 5, now))

	used := fresh()
	used.Used = true
	assert.False(t, used.Redeemable(30*time.Minute, 5, now))

	superseded := fresh()
	superseded.Invalidated = true
	assert.False(t, superseded.Redeemable(30*time.Minute, 5, now))

	stale := fresh()
	stale.CreatedAt = now.Add(-time.Hour)
	assert.False(t, stale.Redeemable(30*time.Minute, 5, now))

	burnt := fresh()
	burnt.FailedAttempts = 5
	assert.False(t, burnt.Redeemable(30*time.Minute, 5, now))
}

func TestNormalizeUsername(t *testing.T) {
	assert.Equal(t, "webmaker", NormalizeUsername("  WebMaker "))
	assert.Equal(t, "webmaker", NormalizeUsername("webmaker"))
}
