package domain

import "errors"

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrApplicationNotFound = errors.New("application not found")
	ErrInvalidSecret       = errors.New("invalid application secret")
	ErrAudienceNotAllowed  = errors.New("audience not allowed")
	ErrVerificationFailed  = errors.New("identity verification failed")

	// Token redemption outcomes. These are internal kinds; at the wire
	// boundary they all collapse into ErrInvalidToken so a caller cannot
	// distinguish wrong code, expiry, exhaustion or replay.
	ErrTokenNotFound  = errors.New("login token not found")
	ErrTokenExpired   = errors.New("login token expired")
	ErrTokenExhausted = errors.New("login token attempt limit reached")
	ErrTokenUsed      = errors.New("login token already used")

	// ErrInvalidToken is the only redemption failure exposed to callers.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// RedemptionFailure reports whether err is one of the internal token
// redemption failure kinds.
func RedemptionFailure(err error) bool {
	return errors.Is(err, ErrTokenNotFound) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenExhausted) ||
		errors.Is(err, ErrTokenUsed)
}
