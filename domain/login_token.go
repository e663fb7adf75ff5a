package domain

import "time"

// LoginToken is a short-lived, single-use login code bound to one user and
// one audience. It is mutated only through the token store's atomic
// operations: FailedAttempts only grows, Used only flips false to true,
// and Invalidated is set once when a newer token supersedes this one.
type LoginToken struct {
	ID             string    `bson:"_id"`
	Code           string    `bson:"code"`
	UserID         string    `bson:"user_id"`
	Audience       string    `bson:"audience"`
	FailedAttempts int       `bson:"failed_attempts"`
	Used           bool      `bson:"used"`
	Invalidated    bool      `bson:"invalidated"`
	CreatedAt      time.Time `bson:"created_at"`
}

// Expired reports whether the token's validity window has passed at now.
func (t *LoginToken) Expired(window time.Duration, now time.Time) bool {
	return now.After(t.CreatedAt.Add(window))
}

// Exhausted reports whether the token has burned through its wrong-code
// allowance. An exhausted token can never be redeemed again.
func (t *LoginToken) Exhausted(maxAttempts int) bool {
	return t.FailedAttempts >= maxAttempts
}

// Redeemable reports whether the token is still a candidate for
// redemption: unused, not superseded, inside its window and under the
// attempt limit.
func (t *LoginToken) Redeemable(window time.Duration, maxAttempts int, now time.Time) bool {
	return !t.Used && !t.Invalidated && !t.Expired(window, now) && !t.Exhausted(maxAttempts)
}
