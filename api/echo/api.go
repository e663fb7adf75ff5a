package echo

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/webmaker/logind/domain"
	"github.com/webmaker/logind/internal/health"
)

// LoginProtocol is the protocol surface the handlers drive.
type LoginProtocol interface {
	RequestToken(ctx context.Context, assertion, audience string) error
	SubmitToken(ctx context.Context, userID, code string) (domain.SessionView, error)
}

// SecretVerifier checks caller application credentials.
type SecretVerifier interface {
	VerifySecret(ctx context.Context, audience, secret string) error
}

// LoginAPI holds the handler dependencies.
type LoginAPI struct {
	login   LoginProtocol
	users   domain.UserRepository
	apps    SecretVerifier
	checker health.Checker
}

func NewLoginAPI(login LoginProtocol, users domain.UserRepository, apps SecretVerifier, checker health.Checker) *LoginAPI {
	return &LoginAPI{login: login, users: users, apps: apps, checker: checker}
}

// RegisterRoutes registers the login protocol routes. Both protocol
// endpoints require healthy storage and a registered caller application.
func (a *LoginAPI) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v3/login", a.requireHealthy, a.requireApplication())
	g.POST("/token", a.RequestTokenHandler)
	g.POST("/verify", a.VerifyTokenHandler)

	e.GET("/healthcheck", a.HealthcheckHandler)
}

// requireHealthy refuses protocol requests while the backing store is
// unreachable instead of failing one layer deeper.
func (a *LoginAPI) requireHealthy(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := a.checker.Healthy(c.Request().Context()); err != nil {
			log.Error().Err(err).Msg("backing store unhealthy, refusing request")
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "login database error"})
		}
		return next(c)
	}
}

// requireApplication authenticates the calling application with basic
// auth: the audience as username, its registration secret as password.
func (a *LoginAPI) requireApplication() echo.MiddlewareFunc {
	return middleware.BasicAuth(func(audience, secret string, c echo.Context) (bool, error) {
		err := a.apps.VerifySecret(c.Request().Context(), audience, secret)
		if errors.Is(err, domain.ErrApplicationNotFound) || errors.Is(err, domain.ErrInvalidSecret) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	})
}

type requestTokenBody struct {
	Audience  string `json:"audience"`
	Assertion string `json:"assertion"`
}

// RequestTokenHandler handles POST /api/v3/login/token. On success the
// response is an opaque status; the code travels out-of-band only.
func (a *LoginAPI) RequestTokenHandler(c echo.Context) error {
	var body requestTokenBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed request body"})
	}
	if body.Audience == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing audience"})
	}
	if body.Assertion == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing assertion"})
	}

	err := a.login.RequestToken(c.Request().Context(), body.Assertion, body.Audience)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"status": "sent"})
	case errors.Is(err, domain.ErrAudienceNotAllowed):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "audience parameter not allowed"})
	case errors.Is(err, domain.ErrVerificationFailed):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "identity verification failed"})
	case errors.Is(err, domain.ErrUserNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	default:
		log.Error().Err(err).Msg("token request failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login service error"})
	}
}

type verifyTokenBody struct {
	UID   string `json:"uid"`
	Token string `json:"token"`
}

// VerifyTokenHandler handles POST /api/v3/login/verify. The uid resolves
// by email when it contains an @, by username otherwise. Every
// redemption failure maps to the same generic 401 so callers cannot
// probe token state or user existence through this endpoint.
func (a *LoginAPI) VerifyTokenHandler(c echo.Context) error {
	var body verifyTokenBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed request body"})
	}
	if body.UID == "" || body.Token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing uid or token"})
	}

	ctx := c.Request().Context()

	var (
		user *domain.User
		err  error
	)
	if strings.Contains(body.UID, "@") {
		user, err = a.users.GetUserByEmail(ctx, body.UID)
	} else {
		user, err = a.users.GetUserByUsername(ctx, body.UID)
	}
	if errors.Is(err, domain.ErrUserNotFound) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": domain.ErrInvalidToken.Error()})
	}
	if err != nil {
		log.Error().Err(err).Msg("user resolution failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login service error"})
	}

	session, err := a.login.SubmitToken(ctx, user.ID, body.Token)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"status": "authenticated", "user": session})
	case errors.Is(err, domain.ErrInvalidToken):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": domain.ErrInvalidToken.Error()})
	default:
		log.Error().Err(err).Msg("token submission failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login service error"})
	}
}

// HealthcheckHandler reports backing store connectivity.
func (a *LoginAPI) HealthcheckHandler(c echo.Context) error {
	if err := a.checker.Healthy(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"http": "okay", "database": "unreachable"})
	}
	return c.JSON(http.StatusOK, echo.Map{"http": "okay", "database": "okay"})
}
