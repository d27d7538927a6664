package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/shopcore/shopcore-backend/internal/config"
	"github.com/shopcore/shopcore-backend/internal/domain"
	"github.com/shopcore/shopcore-backend/internal/http/handler"
	"github.com/shopcore/shopcore-backend/internal/http/router"
	"github.com/shopcore/shopcore-backend/internal/repository"
	"github.com/shopcore/shopcore-backend/internal/security"
	"github.com/shopcore/shopcore-backend/internal/service"
)

const cleanupInterval = time.Hour

// App owns the process-level resources: database, redis, and the HTTP
// server. Construct with New, drive with Run, release with Close.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	db     *gorm.DB
	rdb    redis.UniversalClient
	server *http.Server
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&domain.Account{}, &domain.RefreshTokenRecord{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	accounts := repository.NewAccountRepository(db)
	hasher := security.NewPasswordHasher(cfg.BcryptCost)
	jwtMgr := security.NewJWTManager(cfg.JWTIssuer, cfg.AccessTokenSecret, cfg.RefreshTokenSecret)

	revocationStore := service.NewRedisRevocationStore(rdb, "revoked", cfg.RevocationTimeout)
	sessions := service.NewRedisSessionStore(rdb, "session", cfg.SessionTTL)
	email := service.LogEmailSender{}

	authSvc := service.NewAuthService(accounts, hasher, jwtMgr, revocationStore, email, service.AuthConfig{
		AccessTokenTTL:       cfg.AccessTokenTTL,
		RefreshTokenTTL:      cfg.RefreshTokenTTL,
		VerificationTokenTTL: cfg.VerificationTokenTTL,
		RefreshTokenPepper:   cfg.RefreshTokenPepper,
		Lockout: domain.LockoutPolicy{
			Threshold:    cfg.LockoutThreshold,
			LockDuration: cfg.LockoutDuration,
		},
		RevocationFailOpen: cfg.RevocationFailOpen,
	})
	revocationSvc := service.NewRevocationService(accounts, revocationStore, cfg.AccessTokenTTL, cfg.RefreshTokenPepper)

	authHandler := handler.NewAuthHandler(authSvc, revocationSvc, sessions, cfg.SessionCookieName, cfg.SessionTTL)

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	mux := router.New(cfg, router.Dependencies{
		Auth:     authHandler,
		Verifier: authSvc,
		Probes: map[string]router.ReadinessProbe{
			"database": func(ctx context.Context) error { return sqlDB.PingContext(ctx) },
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
	})

	return &App{
		cfg:    cfg,
		logger: logger,
		db:     db,
		rdb:    rdb,
		server: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}, nil
}

// Run serves HTTP and sweeps expired refresh token records until ctx is
// cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("http server listening", "addr", a.cfg.HTTPAddr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		a.sweepExpiredTokens(gctx)
		return nil
	})

	return g.Wait()
}

func (a *App) sweepExpiredTokens(ctx context.Context) {
	accounts := repository.NewAccountRepository(a.db)
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := accounts.CleanupExpiredRefreshTokens(ctx, time.Now().UTC())
			if err != nil {
				a.logger.Warn("refresh token sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				a.logger.Info("swept expired refresh tokens", "removed", removed)
			}
		}
	}
}

func (a *App) Close() error {
	var errs []error
	if sqlDB, err := a.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.rdb.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
