package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/webmaker/logind/domain"
)

// TokenPolicy holds the token engine tunables. Code length and charset
// are deliberately parameters: whoever changes them must keep the
// keyspace large enough relative to MaxAttempts for guessing to stay
// negligible.
type TokenPolicy struct {
	CodeLength         int
	CodeCharset        string
	MaxAttempts        int
	Window             time.Duration
	MaxGenerateRetries int
}

const defaultCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func (p TokenPolicy) withDefaults() TokenPolicy {
	if p.CodeLength == 0 {
		p.CodeLength = 5
	}
	if p.CodeCharset == "" {
		p.CodeCharset = defaultCharset
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 5
	}
	if p.Window == 0 {
		p.Window = 30 * time.Minute
	}
	if p.MaxGenerateRetries == 0 {
		p.MaxGenerateRetries = 5
	}
	return p
}

// TokenService is the login token engine: it generates codes and redeems
// them, enforcing the expiry, attempt and single-use invariants. All
// state transitions are delegated to the store's atomic operations; the
// engine holds no locks across store calls.
type TokenService struct {
	tokens domain.LoginTokenRepository
	policy TokenPolicy
	now    func() time.Time
}

func NewTokenService(tokens domain.LoginTokenRepository, policy TokenPolicy) *TokenService {
	return &TokenService{
		tokens: tokens,
		policy: policy.withDefaults(),
		now:    time.Now,
	}
}

// Policy returns the effective (defaulted) policy.
func (s *TokenService) Policy() TokenPolicy {
	return s.policy
}

// GenerateToken issues a fresh login code for the user and audience. Any
// prior active token for the same pair is invalidated first, so at most
// one token per pair can ever be redeemed. The code is returned for
// out-of-band delivery and must never be echoed to the requesting caller.
func (s *TokenService) GenerateToken(ctx context.Context, userID, audience string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("cannot generate token without a user")
	}
	if audience == "" {
		return "", fmt.Errorf("cannot generate token without an audience")
	}

	now := s.now().UTC()
	windowStart := now.Add(-s.policy.Window)

	var code string
	for attempt := 0; ; attempt++ {
		if attempt >= s.policy.MaxGenerateRetries {
			return "", fmt.Errorf("could not generate a unique login code after %d attempts", attempt)
		}
		candidate, err := randomCode(s.policy.CodeCharset, s.policy.CodeLength)
		if err != nil {
			return "", fmt.Errorf("failed to generate login code: %w", err)
		}
		inUse, err := s.tokens.CodeInUse(ctx, candidate, windowStart)
		if err != nil {
			return "", fmt.Errorf("code collision check failed: %w", err)
		}
		if !inUse {
			code = candidate
			break
		}
		log.Debug().Str("user_id", userID).Msg("login code collision, regenerating")
	}

	superseded, err := s.tokens.InvalidateTokens(ctx, userID, audience)
	if err != nil {
		return "", fmt.Errorf("failed to supersede prior tokens: %w", err)
	}
	if superseded > 0 {
		log.Info().
			Str("user_id", userID).
			Str("audience", audience).
			Int64("count", superseded).
			Msg("superseded prior active login tokens")
	}

	token := &domain.LoginToken{
		ID:        uuid.NewString(),
		Code:      code,
		UserID:    userID,
		Audience:  audience,
		CreatedAt: now,
	}
	if err := s.tokens.CreateToken(ctx, token); err != nil {
		return "", fmt.Errorf("failed to persist login token: %w", err)
	}
	return code, nil
}

// RedeemToken attempts to redeem code for the user's most recent token.
// The lookup is scoped to the claimed user; the submitted code is the
// identity check, compared in constant time. On success the consumed
// token is returned. Failures come back as the internal kinds
// (ErrTokenNotFound, ErrTokenExpired, ErrTokenExhausted, ErrTokenUsed);
// the boundary is responsible for collapsing them.
func (s *TokenService) RedeemToken(ctx context.Context, userID, code string) (*domain.LoginToken, error) {
	token, err := s.tokens.LatestTokenForUser(ctx, userID)
	if errors.Is(err, domain.ErrTokenNotFound) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("token lookup failed: %w", err)
	}

	now := s.now().UTC()
	switch {
	case token.Expired(s.policy.Window, now):
		return nil, domain.ErrTokenExpired
	case token.Used:
		// Replay of an already redeemed token. Externally this is
		// indistinguishable from no token at all.
		log.Warn().Str("user_id", userID).Msg("replay attempt against redeemed login token")
		return nil, domain.ErrTokenUsed
	case token.Exhausted(s.policy.MaxAttempts):
		return nil, domain.ErrTokenExhausted
	}

	if subtle.ConstantTimeCompare([]byte(token.Code), []byte(code)) != 1 {
		attempts, err := s.tokens.RecordFailedAttempt(ctx, token.ID)
		if errors.Is(err, domain.ErrTokenNotFound) {
			// Token was consumed between lookup and increment.
			return nil, domain.ErrTokenUsed
		}
		if err != nil {
			return nil, fmt.Errorf("failed to record attempt: %w", err)
		}
		if attempts >= s.policy.MaxAttempts {
			log.Warn().Str("user_id", userID).Int("attempts", attempts).Msg("login token exhausted")
			return nil, domain.ErrTokenExhausted
		}
		return nil, domain.ErrTokenNotFound
	}

	ok, err := s.tokens.ConsumeToken(ctx, token.ID, now.Add(-s.policy.Window), s.policy.MaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to consume token: %w", err)
	}
	if !ok {
		// Lost the race against a concurrent redemption (or a
		// supersede/limit transition). Same replay semantics.
		log.Warn().Str("user_id", userID).Msg("concurrent redemption lost compare-and-set")
		return nil, domain.ErrTokenUsed
	}

	token.Used = true
	return token, nil
}

// ReapExpired deletes tokens that fell out of the window long enough ago
// that they no longer need to be observable as EXPIRED. Correctness of
// redemption never depends on this running.
func (s *TokenService) ReapExpired(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-2 * s.policy.Window)
	return s.tokens.DeleteExpiredTokens(ctx, cutoff)
}

func randomCode(charset string, length int) (string, error) {
	max := big.NewInt(int64(len(charset)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = charset[n.Int64()]
	}
	return string(buf), nil
}
