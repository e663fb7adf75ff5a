package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds all runtime configuration for logind. Values come
// from an optional yaml file, environment variables and defaults, in
// that order of precedence (env wins).
type ServerConfig struct {
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogPretty   bool   `mapstructure:"LOG_PRETTY"`

	// TokenStore picks the login-token backend: "mongo", "redis" or
	// "memory". Mongo is the production default; memory is for dev.
	TokenStore string `mapstructure:"TOKEN_STORE"`
	RedisAddr  string `mapstructure:"REDIS_ADDR"`

	// Login token policy knobs. Code length and charset are tunables,
	// not protocol constants; pick them together with the attempt limit
	// so the brute-force probability stays negligible.
	TokenCodeLength   int           `mapstructure:"TOKEN_CODE_LENGTH"`
	TokenMaxAttempts  int           `mapstructure:"TOKEN_MAX_ATTEMPTS"`
	TokenWindow       time.Duration `mapstructure:"TOKEN_WINDOW"`
	TokenReapInterval time.Duration `mapstructure:"TOKEN_REAP_INTERVAL"`

	// AudienceWhitelist lists the audiences allowed to request tokens.
	// A single "*" entry allows any audience.
	AudienceWhitelist []string `mapstructure:"AUDIENCE_WHITELIST"`

	// VerifierURL is the identity assertion verifier endpoint.
	VerifierURL     string        `mapstructure:"VERIFIER_URL"`
	VerifierTimeout time.Duration `mapstructure:"VERIFIER_TIMEOUT"`

	// Mail settings for token delivery. With no SMTP address configured
	// the service falls back to the dev log notifier.
	MailFrom     string `mapstructure:"MAIL_FROM"`
	MailSiteName string `mapstructure:"MAIL_SITE_NAME"`
	SMTPAddr     string `mapstructure:"SMTP_ADDR"`

	// AllowedCORSOrigins is handed to the CORS middleware.
	AllowedCORSOrigins []string `mapstructure:"ALLOWED_CORS_ORIGINS"`
}

// LoadConfig reads configuration from file, environment and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/logind/")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/logind_dev")
	v.SetDefault("MONGO_DB_NAME", "logind_dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("TOKEN_STORE", "mongo")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("TOKEN_CODE_LENGTH", 5)
	v.SetDefault("TOKEN_MAX_ATTEMPTS", 5)
	v.SetDefault("TOKEN_WINDOW", "30m")
	v.SetDefault("TOKEN_REAP_INTERVAL", "1h")
	v.SetDefault("AUDIENCE_WHITELIST", []string{"https://webmaker.org/"})
	v.SetDefault("VERIFIER_URL", "https://verifier.login.persona.org/verify")
	v.SetDefault("VERIFIER_TIMEOUT", "10s")
	v.SetDefault("MAIL_FROM", "login@webmaker.org")
	v.SetDefault("MAIL_SITE_NAME", "Webmaker")
	v.SetDefault("SMTP_ADDR", "")
	v.SetDefault("ALLOWED_CORS_ORIGINS", []string{})

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, everything has env/defaults.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
