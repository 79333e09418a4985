package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/yachtclub/pkg/config"
)

// Tracer returns the named tracer from the global provider. Tracers taken
// before NewProvider installs the SDK provider delegate to it afterwards.
func Tracer(name string) trace.Tracer {
	return otel.Tracer("github.com/fatflowers/yachtclub/" + name)
}

// NewProvider installs an OTLP/HTTP exporting provider when an endpoint is
// configured. Without one the global no-op provider stays in place.
func NewProvider(lc fx.Lifecycle, cfg *config.Config, log *zap.SugaredLogger) (trace.TracerProvider, error) {
	if cfg.Tracing.OTLPEndpoint == "" {
		log.Infow("tracing disabled")
		return otel.GetTracerProvider(), nil
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Tracing.OTLPEndpoint)}
	if cfg.Tracing.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.Tracing.ServiceName),
			attribute.String("deployment.environment", string(cfg.Env)),
		)),
	)
	otel.SetTracerProvider(tp)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Infow("flushing traces")
			return tp.Shutdown(ctx)
		},
	})
	log.Infow("tracing enabled", "endpoint", cfg.Tracing.OTLPEndpoint)
	return tp, nil
}

var Module = fx.Options(
	fx.Provide(NewProvider),
	// install the provider before any span is started
	fx.Invoke(func(trace.TracerProvider) {}),
)
