package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	echoapi "github.com/webmaker/logind/api/echo"
	"github.com/webmaker/logind/cache"
	redisstore "github.com/webmaker/logind/cache/redis"
	"github.com/webmaker/logind/config"
	"github.com/webmaker/logind/domain"
	"github.com/webmaker/logind/internal/health"
	"github.com/webmaker/logind/internal/mailer"
	"github.com/webmaker/logind/internal/server"
	"github.com/webmaker/logind/internal/verifier"
	"github.com/webmaker/logind/log"
	"github.com/webmaker/logind/mongodb"
	"github.com/webmaker/logind/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	appLogger := log.NewZerologAdapter(logLevel, cfg.LogPretty)

	ctx := context.Background()
	appLogger.Info(ctx, "starting logind", map[string]interface{}{
		"http_port":   cfg.HTTPPort,
		"token_store": cfg.TokenStore,
		"log_level":   logLevel.String(),
	})

	// Store unavailability at startup is fatal: the service must refuse
	// to come up rather than accept requests it cannot serve.
	if initErr := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); initErr != nil {
		appLogger.Fatal(ctx, "failed to initialize MongoDB connection", initErr)
	}
	db := mongodb.GetDB()

	userRepo, err := mongodb.NewUserRepository(ctx, db)
	if err != nil {
		appLogger.Fatal(ctx, "failed to initialize user repository", err)
	}
	appRepo := mongodb.NewApplicationRepository(db)

	// Token store selection. The window doubles as the retention slack
	// for the cache stores, keeping expired tokens observable.
	var (
		tokenRepo   domain.LoginTokenRepository
		redisClient *goredis.Client
	)
	policy := services.TokenPolicy{
		CodeLength:  cfg.TokenCodeLength,
		MaxAttempts: cfg.TokenMaxAttempts,
		Window:      cfg.TokenWindow,
	}
	switch cfg.TokenStore {
	case "memory":
		tokenRepo = cache.NewMemoryTokenStore(2 * cfg.TokenWindow)
	case "redis":
		redisClient = goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if pingErr := redisClient.Ping(ctx).Err(); pingErr != nil {
			appLogger.Fatal(ctx, "failed to connect to redis", pingErr)
		}
		tokenRepo = redisstore.NewTokenStore(redisClient, "logind", 2*cfg.TokenWindow)
	default:
		tokenRepo, err = mongodb.NewLoginTokenRepository(ctx, db)
		if err != nil {
			appLogger.Fatal(ctx, "failed to initialize login token repository", err)
		}
	}

	engine := services.NewTokenService(tokenRepo, policy)

	assertionVerifier := verifier.NewHTTPVerifier(cfg.VerifierURL, cfg.VerifierTimeout)

	var notifier mailer.Notifier
	if cfg.SMTPAddr != "" {
		notifier, err = mailer.NewMailer(
			mailer.SMTPSendFunc(cfg.SMTPAddr),
			cfg.MailFrom, cfg.MailSiteName, "", cfg.TokenWindow,
		)
		if err != nil {
			appLogger.Fatal(ctx, "failed to initialize mailer", err)
		}
	} else {
		appLogger.Warn(ctx, "no SMTP address configured, using dev log notifier")
		notifier = mailer.LogNotifier{}
	}

	appService := services.NewApplicationService(appRepo)
	loginService := services.NewLoginService(userRepo, engine, assertionVerifier, notifier, cfg.AudienceWhitelist)

	checker := health.CheckerFunc(func(ctx context.Context) error {
		if err := mongodb.Ping(ctx); err != nil {
			return err
		}
		if redisClient != nil {
			return redisClient.Ping(ctx).Err()
		}
		return nil
	})

	api := echoapi.NewLoginAPI(loginService, userRepo, appService, checker)
	httpServer := server.NewHTTPServer(cfg, appLogger, api)

	// Background reaper. Purely an optimization; expiry is enforced
	// lazily at redemption time either way.
	reaperCtx, stopReaper := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(cfg.TokenReapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, reapErr := engine.ReapExpired(reaperCtx); reapErr != nil {
					appLogger.Warn(reaperCtx, "token reap failed", map[string]interface{}{"error": reapErr.Error()})
				}
			case <-reaperCtx.Done():
				return
			}
		}
	}()

	go func() {
		appLogger.Info(ctx, "HTTP server listening", map[string]interface{}{"addr": httpServer.Addr})
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			appLogger.Fatal(ctx, "HTTP server failed", serveErr)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info(ctx, "shutting down")

	stopReaper()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown error", err)
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			appLogger.Error(shutdownCtx, "redis shutdown error", err)
		}
	}
	if mem, ok := tokenRepo.(*cache.MemoryTokenStore); ok {
		mem.Close()
	}
	mongodb.CloseMongoDB(shutdownCtx)
}
