package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	echoapi "github.com/webmaker/logind/api/echo"
	"github.com/webmaker/logind/config"
	"github.com/webmaker/logind/log"
)

// NewHTTPServer builds the Echo HTTP server with recovery, request
// logging and CORS, and registers the login API routes.
func NewHTTPServer(cfg *config.ServerConfig, appLogger log.Logger, api *echoapi.LoginAPI) *http.Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())

	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			fields := map[string]interface{}{
				"method":  c.Request().Method,
				"path":    c.Request().URL.Path,
				"status":  c.Response().Status,
				"latency": time.Since(start).String(),
				"ip":      c.RealIP(),
			}
			if err != nil {
				appLogger.Error(c.Request().Context(), "http request", err, fields)
			} else {
				appLogger.Info(c.Request().Context(), "http request", fields)
			}
			return err
		}
	})

	if len(cfg.AllowedCORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.AllowedCORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut},
			AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, "X-CSRF-Token"},
			AllowCredentials: true,
		}))
	}

	api.RegisterRoutes(e)

	return &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      e,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
