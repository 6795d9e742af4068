// Package instrumentation provides OpenTelemetry metrics and tracing for the
// files proxy. When disabled it falls back to no-op providers with zero
// overhead, so components can record unconditionally.
package instrumentation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// DefaultServiceVersion is used when no service version is provided.
const DefaultServiceVersion = "unknown"

// scopePrefix namespaces meter and tracer scopes.
const scopePrefix = "github.com/commercekit/files-proxy/"

// Config holds instrumentation configuration.
type Config struct {
	// ServiceName identifies the service in telemetry backends.
	ServiceName string

	// ServiceVersion is the version reported in resource attributes.
	ServiceVersion string

	// Enabled controls whether real providers are installed. When false,
	// no-op providers are used.
	Enabled bool

	// Resource allows custom resource attributes. A default resource with
	// service name and version is created when nil.
	Resource *resource.Resource
}

// Instrumentation provides the proxy's metric instruments and tracers.
// All Record methods are safe to call on a nil receiver, so components may
// hold an optional *Instrumentation without nil checks at call sites.
type Instrumentation struct {
	config   Config
	resource *resource.Resource

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	tokenIssues      metric.Int64Counter
	upstreamCalls    metric.Int64Counter
	upstreamDuration metric.Float64Histogram
	httpRequests     metric.Int64Counter
	httpDuration     metric.Float64Histogram

	shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once
}

// New creates a new instrumentation instance.
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = "files-proxy"
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = DefaultServiceVersion
	}

	res := config.Resource
	if res == nil {
		var err error
		res, err = resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(config.ServiceName),
				semconv.ServiceVersion(config.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}
	}

	inst := &Instrumentation{
		config:         config,
		resource:       res,
		meterProvider:  noop.NewMeterProvider(),
		tracerProvider: tracenoop.NewTracerProvider(),
	}

	if err := inst.initInstruments(); err != nil {
		return nil, fmt.Errorf("failed to create instruments: %w", err)
	}
	return inst, nil
}

func (i *Instrumentation) initInstruments() error {
	meter := i.Meter("proxy")

	var err error
	if i.tokenIssues, err = meter.Int64Counter("auth.token.issues",
		metric.WithDescription("Service token issue operations by source and result")); err != nil {
		return err
	}
	if i.upstreamCalls, err = meter.Int64Counter("upstream.calls.total",
		metric.WithDescription("Upstream API calls by method and status")); err != nil {
		return err
	}
	if i.upstreamDuration, err = meter.Float64Histogram("upstream.call.duration",
		metric.WithDescription("Upstream API call duration in milliseconds"),
		metric.WithUnit("ms")); err != nil {
		return err
	}
	if i.httpRequests, err = meter.Int64Counter("http.requests.total",
		metric.WithDescription("Inbound HTTP requests by endpoint and status")); err != nil {
		return err
	}
	if i.httpDuration, err = meter.Float64Histogram("http.request.duration",
		metric.WithDescription("Inbound HTTP request duration in milliseconds"),
		metric.WithUnit("ms")); err != nil {
		return err
	}
	return nil
}

// Meter returns a named meter for the given scope.
func (i *Instrumentation) Meter(scope string) metric.Meter {
	return i.meterProvider.Meter(scopePrefix + scope)
}

// Tracer returns a named tracer for the given scope.
func (i *Instrumentation) Tracer(scope string) trace.Tracer {
	if i == nil {
		return tracenoop.NewTracerProvider().Tracer(scopePrefix)
	}
	return i.tracerProvider.Tracer(scopePrefix + scope)
}

// RecordTokenIssue records a service token issue operation.
func (i *Instrumentation) RecordTokenIssue(ctx context.Context, cached, failed bool) {
	if i == nil {
		return
	}
	i.tokenIssues.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("cached", cached),
		attribute.Bool("error", failed),
	))
}

// RecordUpstreamCall records an outbound upstream API call.
func (i *Instrumentation) RecordUpstreamCall(ctx context.Context, method string, statusCode int, duration time.Duration) {
	if i == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.Int("status", statusCode),
	)
	i.upstreamCalls.Add(ctx, 1, attrs)
	i.upstreamDuration.Record(ctx, float64(duration.Milliseconds()),
		metric.WithAttributes(attribute.String("method", method)))
}

// RecordHTTPRequest records an inbound HTTP request.
func (i *Instrumentation) RecordHTTPRequest(ctx context.Context, endpoint, method string, statusCode int, duration time.Duration) {
	if i == nil {
		return
	}
	i.httpRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("method", method),
		attribute.Int("status", statusCode),
	))
	i.httpDuration.Record(ctx, float64(duration.Milliseconds()),
		metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// Shutdown gracefully shuts down all registered providers. Safe to call more
// than once.
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	if i == nil {
		return nil
	}
	var shutdownErr error
	i.shutdownOnce.Do(func() {
		for _, fn := range i.shutdownFuncs {
			if err := fn(ctx); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}
	})
	return shutdownErr
}
