// Package observability sets up the OpenTelemetry meter used by the billing
// engine. Metrics are pushed over OTLP/gRPC when an endpoint is configured;
// otherwise instruments are backed by a no-op provider.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// MeterName is the instrumentation scope for billing metrics.
const MeterName = "consult-billing/billing"

// Config configures metric export.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// OTLPEndpoint is host:port or a URL; export is disabled when empty.
	OTLPEndpoint string
	Insecure     bool
	Interval     time.Duration // push interval, default 15s
}

// Provider owns the meter provider for the process.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	logger        *slog.Logger
}

// New creates the provider. With no endpoint it returns a provider whose
// meter records nothing.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Provider, error) {
	logger = logger.With("component", "observability")

	if cfg.OTLPEndpoint == "" {
		logger.Info("metrics export disabled - no OTLP endpoint configured")
		return &Provider{
			meter:  noop.NewMeterProvider().Meter(MeterName),
			logger: logger,
		}, nil
	}

	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlpmetricgrpc.New(ctx, exporterOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(cfg.Interval),
		)),
	)
	otel.SetMeterProvider(mp)

	logger.Info("metrics export enabled",
		"endpoint", cfg.OTLPEndpoint,
		"interval", cfg.Interval.String(),
		"insecure", cfg.Insecure,
	)

	return &Provider{
		meterProvider: mp,
		meter:         mp.Meter(MeterName, metric.WithInstrumentationVersion(cfg.ServiceVersion)),
		logger:        logger,
	}, nil
}

func exporterOptions(cfg Config) []otlpmetricgrpc.Option {
	var opts []otlpmetricgrpc.Option
	if strings.Contains(cfg.OTLPEndpoint, "://") {
		opts = append(opts, otlpmetricgrpc.WithEndpointURL(cfg.OTLPEndpoint))
	} else {
		opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return opts
}

// Meter returns the billing meter.
func (p *Provider) Meter() metric.Meter {
	return p.meter
}

// Enabled reports whether metrics are exported.
func (p *Provider) Enabled() bool {
	return p.meterProvider != nil
}

// Shutdown flushes pending metrics.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.meterProvider == nil {
		return nil
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		p.logger.Error("failed to shutdown metric provider", "error", err)
		return err
	}
	return nil
}
