package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/webmaker/logind/domain"
)

// ApplicationService is the audience registry. It generates application
// secrets at registration, stores only their bcrypt hashes, and checks
// caller credentials for the protocol endpoints.
type ApplicationService struct {
	apps domain.ApplicationRepository
}

func NewApplicationService(apps domain.ApplicationRepository) *ApplicationService {
	return &ApplicationService{apps: apps}
}

// RegisterApplication registers an audience and returns its freshly
// generated secret. This is the only time the raw secret exists; only
// its hash is persisted.
func (s *ApplicationService) RegisterApplication(ctx context.Context, audience string) (string, error) {
	if audience == "" {
		return "", fmt.Errorf("audience must not be empty")
	}

	secret := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash application secret: %w", err)
	}

	app := &domain.Application{
		Audience:   audience,
		SecretHash: hash,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.apps.CreateApplication(ctx, app); err != nil {
		return "", fmt.Errorf("failed to register application: %w", err)
	}
	return secret, nil
}

// VerifySecret checks a caller's credentials against the registry.
func (s *ApplicationService) VerifySecret(ctx context.Context, audience, secret string) error {
	app, err := s.apps.GetApplication(ctx, audience)
	if errors.Is(err, domain.ErrApplicationNotFound) {
		return domain.ErrApplicationNotFound
	}
	if err != nil {
		return fmt.Errorf("application lookup failed: %w", err)
	}

	if bcrypt.CompareHashAndPassword(app.SecretHash, []byte(secret)) != nil {
		return domain.ErrInvalidSecret
	}
	return nil
}
