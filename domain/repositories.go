package domain

import (
	"context"
	"time"
)

// UserRepository defines the user lookups the login protocol needs. The
// lookups are an explicit enumerated set; there is intentionally no
// generic "find by field" entry point.
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, user *User) error
	// TouchLastLoggedIn stamps the user's last successful login. Callers
	// treat a failure here as non-fatal.
	TouchLastLoggedIn(ctx context.Context, userID string, at time.Time) error
}

// ApplicationRepository is the audience registry backing store.
type ApplicationRepository interface {
	GetApplication(ctx context.Context, audience string) (*Application, error)
	CreateApplication(ctx context.Context, app *Application) error
}

// LoginTokenRepository is the token store. Implementations must make
// RecordFailedAttempt and ConsumeToken atomic per token record: two
// concurrent ConsumeToken calls for the same token must never both
// return true.
type LoginTokenRepository interface {
	CreateToken(ctx context.Context, token *LoginToken) error

	// LatestTokenForUser returns the user's most recent token that has
	// not been superseded, including used and exhausted ones so replay
	// attempts stay observable. Returns ErrTokenNotFound when the user
	// has no such token.
	LatestTokenForUser(ctx context.Context, userID string) (*LoginToken, error)

	// CodeInUse reports whether code is held by any token created at or
	// after since. Used as the collision probe during generation.
	CodeInUse(ctx context.Context, code string, since time.Time) (bool, error)

	// InvalidateTokens marks every unused token for the (user, audience)
	// pair as superseded and reports how many were affected. Tokens with
	// Used set are left untouched.
	InvalidateTokens(ctx context.Context, userID, audience string) (int64, error)

	// RecordFailedAttempt atomically increments the token's failed
	// attempt counter, provided the token is still unused, and returns
	// the new count.
	RecordFailedAttempt(ctx context.Context, tokenID string) (int, error)

	// ConsumeToken atomically flips Used to true if and only if the token
	// is unused, not invalidated, was created at or after notBefore and
	// is under maxAttempts. Returns false when the guard fails.
	ConsumeToken(ctx context.Context, tokenID string, notBefore time.Time, maxAttempts int) (bool, error)

	// DeleteExpiredTokens reaps tokens created before the cutoff. The
	// reaper is an optimization only; redemption correctness never
	// depends on it running.
	DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error)
}
