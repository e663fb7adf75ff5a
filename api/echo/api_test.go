package echo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/webmaker/logind/domain"
	"github.com/webmaker/logind/internal/health"
)

type mockLogin struct {
	mock.Mock
}

func (m *mockLogin) RequestToken(ctx context.Context, assertion, audience string) error {
	args := m.Called(ctx, assertion, audience)
	return args.Error(0)
}

func (m *mockLogin) SubmitToken(ctx context.Context, userID, code string) (domain.SessionView, error) {
	args := m.Called(ctx, userID, code)
	return args.Get(0).(domain.SessionView), args.Error(1)
}

type mockUsers struct {
	mock.Mock
}

func (m *mockUsers) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUsers) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUsers) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUsers) CreateUser(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockUsers) UpdateUser(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockUsers) TouchLastLoggedIn(ctx context.Context, userID string, at time.Time) error {
	return m.Called(ctx, userID, at).Error(0)
}

type stubSecrets struct {
	err error
}

func (s stubSecrets) VerifySecret(context.Context, string, string) error {
	return s.err
}

var webmakerUser = &domain.User{
	ID:       "1",
	Email:    "webmaker@example.com",
	Username: "webmaker",
	Verified: true,
}

func newTestServer(t *testing.T, login *mockLogin, users *mockUsers, secrets SecretVerifier, healthErr error) *echo.Echo {
	t.Helper()
	checker := health.CheckerFunc(func(context.Context) error { return healthErr })
	api := NewLoginAPI(login, users, secrets, checker)

	e := echo.New()
	api.RegisterRoutes(e)
	return e
}

func doJSON(e *echo.Echo, method, path, body string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if authed {
		req.SetBasicAuth("https://webmaker.org/", "app-secret")
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRequestTokenHandler(t *testing.T) {
	login := new(mockLogin)
	e := newTestServer(t, login, new(mockUsers), stubSecrets{}, nil)

	login.On("RequestToken", mock.Anything, "the-assertion", "https://webmaker.org/").Return(nil)

	rec := doJSON(e, http.MethodPost, "/api/v3/login/token",
		`{"audience":"https://webmaker.org/","assertion":"the-assertion"}`, true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"sent"}`, rec.Body.String())
}

func TestRequestTokenHandler_MissingFields(t *testing.T) {
	login := new(mockLogin)
	e := newTestServer(t, login, new(mockUsers), stubSecrets{}, nil)

	rec := doJSON(e, http.MethodPost, "/api/v3/login/token", `{"assertion":"x"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/v3/login/token", `{"audience":"https://webmaker.org/"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	login.AssertNotCalled(t, "RequestToken", mock.Anything, mock.Anything, mock.Anything)
}

func TestRequestTokenHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"audience not allowed", domain.ErrAudienceNotAllowed, http.StatusForbidden},
		{"verification failed", domain.ErrVerificationFailed, http.StatusUnauthorized},
		{"user not found", domain.ErrUserNotFound, http.StatusNotFound},
		{"store failure", errors.New("mongo timeout"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			login := new(mockLogin)
			e := newTestServer(t, login, new(mockUsers), stubSecrets{}, nil)
			login.On("RequestToken", mock.Anything, "a", "https://webmaker.org/").Return(tc.err)

			rec := doJSON(e, http.MethodPost, "/api/v3/login/token",
				`{"audience":"https://webmaker.org/","assertion":"a"}`, true)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestProtocolRoutes_RequireApplicationAuth(t *testing.T) {
	login := new(mockLogin)
	e := newTestServer(t, login, new(mockUsers), stubSecrets{err: domain.ErrInvalidSecret}, nil)

	rec := doJSON(e, http.MethodPost, "/api/v3/login/token",
		`{"audience":"https://webmaker.org/","assertion":"a"}`, true)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/v3/login/verify", `{"uid":"webmaker","token":"x"}`, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	login.AssertNotCalled(t, "RequestToken", mock.Anything, mock.Anything, mock.Anything)
}

func TestProtocolRoutes_UnhealthyStore(t *testing.T) {
	login := new(mockLogin)
	e := newTestServer(t, login, new(mockUsers), stubSecrets{}, errors.New("no reachable servers"))

	rec := doJSON(e, http.MethodPost, "/api/v3/login/token",
		`{"audience":"https://webmaker.org/","assertion":"a"}`, true)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	login.AssertNotCalled(t, "RequestToken", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyTokenHandler_ByUsernameAndEmail(t *testing.T) {
	login := new(mockLogin)
	users := new(mockUsers)
	e := newTestServer(t, login, users, stubSecrets{}, nil)

	users.On("GetUserByUsername", mock.Anything, "webmaker").Return(webmakerUser, nil)
	users.On("GetUserByEmail", mock.Anything, "webmaker@example.com").Return(webmakerUser, nil)
	login.On("SubmitToken", mock.Anything, "1", "Ab3x9").Return(webmakerUser.ForSession(), nil)

	rec := doJSON(e, http.MethodPost, "/api/v3/login/verify", `{"uid":"webmaker","token":"Ab3x9"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"authenticated"`)
	assert.Contains(t, rec.Body.String(), `"username":"webmaker"`)

	rec = doJSON(e, http.MethodPost, "/api/v3/login/verify", `{"uid":"webmaker@example.com","token":"Ab3x9"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	users.AssertCalled(t, "GetUserByEmail", mock.Anything, "webmaker@example.com")
}

func TestVerifyTokenHandler_GenericFailures(t *testing.T) {
	login := new(mockLogin)
	users := new(mockUsers)
	e := newTestServer(t, login, users, stubSecrets{}, nil)

	// Unknown user and invalid token produce the identical response.
	users.On("GetUserByUsername", mock.Anything, "ghost").Return(nil, domain.ErrUserNotFound)
	recGhost := doJSON(e, http.MethodPost, "/api/v3/login/verify", `{"uid":"ghost","token":"x"}`, true)

	users.On("GetUserByUsername", mock.Anything, "webmaker").Return(webmakerUser, nil)
	login.On("SubmitToken", mock.Anything, "1", "x").Return(domain.SessionView{}, domain.ErrInvalidToken)
	recBadToken := doJSON(e, http.MethodPost, "/api/v3/login/verify", `{"uid":"webmaker","token":"x"}`, true)

	assert.Equal(t, http.StatusUnauthorized, recGhost.Code)
	assert.Equal(t, http.StatusUnauthorized, recBadToken.Code)
	assert.JSONEq(t, recGhost.Body.String(), recBadToken.Body.String())
}

func TestHealthcheckHandler(t *testing.T) {
	e := newTestServer(t, new(mockLogin), new(mockUsers), stubSecrets{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthcheck", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	bad := newTestServer(t, new(mockLogin), new(mockUsers), stubSecrets{}, errors.New("down"))
	rec = httptest.NewRecorder()
	bad.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
