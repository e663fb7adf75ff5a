package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/webmaker/logind/domain"
	"github.com/webmaker/logind/internal/audit"
	"github.com/webmaker/logind/internal/mailer"
	"github.com/webmaker/logind/internal/verifier"
)

// LoginService orchestrates the two halves of the cross-application
// login handshake: turning a verified identity assertion into an issued
// token, and turning a submitted code into an authenticated session.
type LoginService struct {
	users     domain.UserRepository
	engine    *TokenService
	verifier  verifier.Verifier
	notifier  mailer.Notifier
	whitelist []string
	now       func() time.Time
}

func NewLoginService(
	users domain.UserRepository,
	engine *TokenService,
	v verifier.Verifier,
	notifier mailer.Notifier,
	audienceWhitelist []string,
) *LoginService {
	return &LoginService{
		users:     users,
		engine:    engine,
		verifier:  v,
		notifier:  notifier,
		whitelist: audienceWhitelist,
		now:       time.Now,
	}
}

func (s *LoginService) audienceAllowed(audience string) bool {
	for _, allowed := range s.whitelist {
		if allowed == "*" || allowed == audience {
			return true
		}
	}
	return false
}

// RequestToken verifies the assertion for the audience, resolves the
// asserted email to a user and issues a login token, delivered to the
// user out-of-band. The whitelist gate runs before anything else; a
// disallowed audience never reaches the verifier. The issued code is
// never returned to the caller.
func (s *LoginService) RequestToken(ctx context.Context, assertion, audience string) error {
	if !s.audienceAllowed(audience) {
		audit.Log("token.request", "", audience, false, domain.ErrAudienceNotAllowed)
		return domain.ErrAudienceNotAllowed
	}

	email, err := s.verifier.Verify(ctx, assertion, audience)
	if err != nil {
		// Wrap the cause but flatten it: raw verifier transport errors
		// never cross this boundary.
		audit.Log("token.request", "", audience, false, err)
		return fmt.Errorf("%w: %v", domain.ErrVerificationFailed, err)
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		audit.Log("token.request", email, audience, false, err)
		return domain.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("user lookup failed: %w", err)
	}

	code, err := s.engine.GenerateToken(ctx, user.ID, audience)
	if err != nil {
		return fmt.Errorf("token generation failed: %w", err)
	}

	if err := s.notifier.Notify(ctx, user.Email, code); err != nil {
		// Delivery is best-effort; the token stands either way.
		log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to deliver login code")
	}

	audit.Log("token.request", user.ID, audience, true, nil)
	return nil
}

// SubmitToken redeems code for the user and, on success, establishes the
// session identity and stamps the user's last login (best-effort). Every
// redemption failure collapses to domain.ErrInvalidToken at this boundary;
// the specific kind is kept in the audit log only.
func (s *LoginService) SubmitToken(ctx context.Context, userID, code string) (domain.SessionView, error) {
	token, err := s.engine.RedeemToken(ctx, userID, code)
	if err != nil {
		audit.Log("token.redeem", userID, "", false, err)
		if domain.RedemptionFailure(err) {
			return domain.SessionView{}, domain.ErrInvalidToken
		}
		return domain.SessionView{}, fmt.Errorf("token redemption failed: %w", err)
	}

	user, err := s.users.GetUserByID(ctx, token.UserID)
	if err != nil {
		return domain.SessionView{}, fmt.Errorf("failed to load token owner: %w", err)
	}

	if err := s.users.TouchLastLoggedIn(ctx, user.ID, s.now().UTC()); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to update last logged in")
	}

	audit.Log("token.redeem", user.ID, token.Audience, true, nil)
	return user.ForSession(), nil
}
