package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopcore/shopcore-backend/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "shopcore-backend"

var (
	countersOnce   sync.Once
	repoOpCounter  metric.Int64Counter
	tokenCounter   metric.Int64Counter
	cacheOpCounter metric.Int64Counter
	loginCounter   metric.Int64Counter
	refreshCounter metric.Int64Counter
	logoutCounter  metric.Int64Counter
	lockoutCounter metric.Int64Counter
)

// initCounters resolves counters lazily against the globally installed
// meter provider, so record helpers are safe before InitMetrics and in
// tests (the default provider is a no-op).
func initCounters() {
	countersOnce.Do(func() {
		meter := otel.Meter(meterName)
		repoOpCounter, _ = meter.Int64Counter("repository.operations")
		tokenCounter, _ = meter.Int64Counter("auth.token.validations")
		cacheOpCounter, _ = meter.Int64Counter("auth.revocation.cache.ops")
		loginCounter, _ = meter.Int64Counter("auth.login.attempts")
		refreshCounter, _ = meter.Int64Counter("auth.refresh.attempts")
		logoutCounter, _ = meter.Int64Counter("auth.logout.attempts")
		lockoutCounter, _ = meter.Int64Counter("auth.lockout.transitions")
	})
}

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)
	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func RecordRepositoryOperation(ctx context.Context, entity, op, outcome string) {
	initCounters()
	if repoOpCounter == nil {
		return
	}
	repoOpCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

func RecordTokenValidation(ctx context.Context, outcome string) {
	initCounters()
	if tokenCounter == nil {
		return
	}
	tokenCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordRevocationCacheOp(ctx context.Context, op, outcome string) {
	initCounters()
	if cacheOpCounter == nil {
		return
	}
	cacheOpCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

func RecordAuthLogin(ctx context.Context, outcome string) {
	initCounters()
	if loginCounter == nil {
		return
	}
	loginCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordAuthRefresh(ctx context.Context, outcome string) {
	initCounters()
	if refreshCounter == nil {
		return
	}
	refreshCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordAuthLogout(ctx context.Context, scope, outcome string) {
	initCounters()
	if logoutCounter == nil {
		return
	}
	logoutCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("outcome", outcome),
	))
}

func RecordLockoutTransition(ctx context.Context, transition string) {
	initCounters()
	if lockoutCounter == nil {
		return
	}
	lockoutCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("transition", transition)))
}
