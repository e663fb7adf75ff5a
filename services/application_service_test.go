package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/webmaker/logind/domain"
)

type mockAppRepo struct {
	mock.Mock
}

func (m *mockAppRepo) GetApplication(ctx context.Context, audience string) (*domain.Application, error) {
	args := m.Called(ctx, audience)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Application), args.Error(1)
}

func (m *mockAppRepo) CreateApplication(ctx context.Context, app *domain.Application) error {
	args := m.Called(ctx, app)
	return args.Error(0)
}

func TestRegisterApplication_SecretRoundTrip(t *testing.T) {
	repo := new(mockAppRepo)
	svc := NewApplicationService(repo)

	var stored *domain.Application
	repo.On("CreateApplication", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*domain.Application) }).
		Return(nil)

	secret, err := svc.RegisterApplication(context.Background(), "https://webmaker.org/")
	require.NoError(t, err)
	require.NotEmpty(t, secret)
	require.NotNil(t, stored)

	// Only the hash is persisted.
	assert.NotContains(t, string(stored.SecretHash), secret)

	repo.On("GetApplication", mock.Anything, "https://webmaker.org/").Return(stored, nil)
	assert.NoError(t, svc.VerifySecret(context.Background(), "https://webmaker.org/", secret))
	assert.ErrorIs(t,
		svc.VerifySecret(context.Background(), "https://webmaker.org/", "wrong-secret"),
		domain.ErrInvalidSecret)
}

func TestRegisterApplication_EmptyAudience(t *testing.T) {
	svc := NewApplicationService(new(mockAppRepo))

	_, err := svc.RegisterApplication(context.Background(), "")
	assert.Error(t, err)
}

func TestVerifySecret_UnknownAudience(t *testing.T) {
	repo := new(mockAppRepo)
	svc := NewApplicationService(repo)

	repo.On("GetApplication", mock.Anything, "https://unknown.example/").
		Return(nil, domain.ErrApplicationNotFound)

	err := svc.VerifySecret(context.Background(), "https://unknown.example/", "whatever")
	assert.ErrorIs(t, err, domain.ErrApplicationNotFound)
}
