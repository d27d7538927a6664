package config

import (
	"errors"
	"fmt"
	"time"
)

type Config struct {
	HTTPAddr string
	Env      string
	LogLevel string

	DatabaseDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTIssuer            string
	AccessTokenSecret    string
	RefreshTokenSecret   string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	VerificationTokenTTL time.Duration
	RefreshTokenPepper   string

	LockoutThreshold int
	LockoutDuration  time.Duration

	RevocationFailOpen bool
	RevocationTimeout  time.Duration

	SessionTTL        time.Duration
	SessionCookieName string

	BcryptCost int

	APIRateLimitRPM  int
	AuthRateLimitRPM int

	OTELMetricsEnabled        bool
	OTELTracesEnabled         bool
	OTELLogsEnabled           bool
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELServiceName           string
	OTELEnvironment           string
	OTELMetricsExportInterval time.Duration
}

const minSecretLength = 32

func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr: envString("HTTP_ADDR", ":8080"),
		Env:      envString("APP_ENV", "development"),
		LogLevel: envString("LOG_LEVEL", "info"),

		DatabaseDSN: envString("DATABASE_DSN", ""),

		RedisAddr:     envString("REDIS_ADDR", "localhost:6379"),
		RedisPassword: envString("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),

		JWTIssuer:            envString("JWT_ISSUER", "shopcore-backend"),
		AccessTokenSecret:    envString("ACCESS_TOKEN_SECRET", ""),
		RefreshTokenSecret:   envString("REFRESH_TOKEN_SECRET", ""),
		AccessTokenTTL:       envDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:      envDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		VerificationTokenTTL: envDuration("VERIFICATION_TOKEN_TTL", 24*time.Hour),
		RefreshTokenPepper:   envString("REFRESH_TOKEN_PEPPER", ""),

		LockoutThreshold: envInt("LOCKOUT_THRESHOLD", 5),
		LockoutDuration:  envDuration("LOCKOUT_DURATION", 30*time.Minute),

		RevocationFailOpen: envBool("REVOCATION_FAIL_OPEN", true),
		RevocationTimeout:  envDuration("REVOCATION_TIMEOUT", 500*time.Millisecond),

		SessionTTL:        envDuration("SESSION_TTL", 24*time.Hour),
		SessionCookieName: envString("SESSION_COOKIE_NAME", "sid"),

		BcryptCost: envInt("BCRYPT_COST", 0),

		APIRateLimitRPM:  envInt("API_RATE_LIMIT_RPM", 300),
		AuthRateLimitRPM: envInt("AUTH_RATE_LIMIT_RPM", 30),

		OTELMetricsEnabled:        envBool("OTEL_METRICS_ENABLED", false),
		OTELTracesEnabled:         envBool("OTEL_TRACES_ENABLED", false),
		OTELLogsEnabled:           envBool("OTEL_LOGS_ENABLED", false),
		OTELExporterOTLPEndpoint:  envString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure:  envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELServiceName:           envString("OTEL_SERVICE_NAME", "shopcore-backend"),
		OTELEnvironment:           envString("OTEL_ENVIRONMENT", "development"),
		OTELMetricsExportInterval: envDuration("OTEL_METRICS_EXPORT_INTERVAL", 30*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN is required"))
	}
	if len(c.AccessTokenSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("ACCESS_TOKEN_SECRET must be at least %d bytes", minSecretLength))
	}
	if len(c.RefreshTokenSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("REFRESH_TOKEN_SECRET must be at least %d bytes", minSecretLength))
	}
	if c.AccessTokenSecret != "" && c.AccessTokenSecret == c.RefreshTokenSecret {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ"))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		errs = append(errs, errors.New("REFRESH_TOKEN_TTL must exceed ACCESS_TOKEN_TTL"))
	}
	if c.LockoutThreshold < 1 {
		errs = append(errs, errors.New("LOCKOUT_THRESHOLD must be at least 1"))
	}
	if c.LockoutDuration <= 0 {
		errs = append(errs, errors.New("LOCKOUT_DURATION must be positive"))
	}
	if c.RevocationTimeout <= 0 {
		errs = append(errs, errors.New("REVOCATION_TIMEOUT must be positive"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	return errors.Join(errs...)
}
