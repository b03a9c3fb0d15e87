package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/zatekoja/patientinsights"

// Metrics holds all application metrics
type Metrics struct {
	RequestCount           metric.Int64Counter
	RequestDuration        metric.Float64Histogram
	CacheHitCount          metric.Int64Counter
	CacheMissCount         metric.Int64Counter
	ModelRequestCount      metric.Int64Counter
	ModelRequestDuration   metric.Float64Histogram
	ModelErrorCount        metric.Int64Counter
	ModelTokenCount        metric.Int64Counter
	RateLimitWait          metric.Float64Histogram
	GuardrailInterventions metric.Int64Counter
}

// Setup initializes OpenTelemetry tracing, metric export and runtime
// instrumentation. The returned function flushes and shuts both providers down.
func Setup(ctx context.Context, serviceName, serviceVersion, endpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	// Set up trace exporter
	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Set up metric exporter
	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx)
		return nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(30*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(15 * time.Second)); err != nil {
		GetLogger().Warn().Err(err).Msg("failed to start runtime instrumentation")
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			meterProvider.Shutdown(ctx),
			tracerProvider.Shutdown(ctx),
		)
	}

	return shutdown, nil
}

// InitMetrics initializes application metrics against the global meter
// provider. Without Setup the instruments are no-ops.
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	requestCount, err := meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	cacheHitCount, err := meter.Int64Counter(
		"narrative.cache.hit.count",
		metric.WithDescription("Number of narrative cache hits"),
	)
	if err != nil {
		return nil, err
	}

	cacheMissCount, err := meter.Int64Counter(
		"narrative.cache.miss.count",
		metric.WithDescription("Number of narrative cache misses"),
	)
	if err != nil {
		return nil, err
	}

	modelRequestCount, err := meter.Int64Counter(
		"ai.model.request.count",
		metric.WithDescription("Number of language model requests"),
	)
	if err != nil {
		return nil, err
	}

	modelRequestDuration, err := meter.Float64Histogram(
		"ai.model.request.duration",
		metric.WithDescription("Language model request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	modelErrorCount, err := meter.Int64Counter(
		"ai.model.request.errors",
		metric.WithDescription("Number of failed language model requests"),
	)
	if err != nil {
		return nil, err
	}

	modelTokenCount, err := meter.Int64Counter(
		"ai.model.tokens",
		metric.WithDescription("Tokens consumed by language model requests"),
	)
	if err != nil {
		return nil, err
	}

	rateLimitWait, err := meter.Float64Histogram(
		"ai.model.rate_limit.wait",
		metric.WithDescription("Time spent waiting for the model rate limiter"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	guardrailInterventions, err := meter.Int64Counter(
		"guardrail.intervention.count",
		metric.WithDescription("Number of model outputs modified or replaced by the guardrail"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCount:           requestCount,
		RequestDuration:        requestDuration,
		CacheHitCount:          cacheHitCount,
		CacheMissCount:         cacheMissCount,
		ModelRequestCount:      modelRequestCount,
		ModelRequestDuration:   modelRequestDuration,
		ModelErrorCount:        modelErrorCount,
		ModelTokenCount:        modelTokenCount,
		RateLimitWait:          rateLimitWait,
		GuardrailInterventions: guardrailInterventions,
	}, nil
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, spanName)
}

// RecordError records an error in the current span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
}

// SetSpanAttributes sets attributes on a span
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
}

// RecordRequestMetric records an HTTP request.
func RecordRequestMetric(ctx context.Context, metrics *Metrics, method, path string, statusCode int, duration time.Duration) {
	if metrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.route", path),
		attribute.Int("http.status_code", statusCode),
	}

	metrics.RequestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	metrics.RequestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordCacheHit records a narrative cache hit. Keys carry patient IDs, so
// only the narrative kind is attached.
func RecordCacheHit(ctx context.Context, metrics *Metrics, kind string) {
	if metrics == nil {
		return
	}
	metrics.CacheHitCount.Add(ctx, 1, metric.WithAttributes(attribute.String("narrative.kind", kind)))
}

// RecordCacheMiss records a narrative cache miss
func RecordCacheMiss(ctx context.Context, metrics *Metrics, kind string) {
	if metrics == nil {
		return
	}
	metrics.CacheMissCount.Add(ctx, 1, metric.WithAttributes(attribute.String("narrative.kind", kind)))
}

// RecordModelRequest records one completed or failed model call.
func RecordModelRequest(ctx context.Context, metrics *Metrics, model, outcome string, duration time.Duration, inputTokens, outputTokens int) {
	if metrics == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("ai.model", model),
		attribute.String("ai.outcome", outcome),
	)
	metrics.ModelRequestCount.Add(ctx, 1, attrs)
	metrics.ModelRequestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	if outcome != "success" {
		metrics.ModelErrorCount.Add(ctx, 1, attrs)
	}
	if inputTokens > 0 {
		metrics.ModelTokenCount.Add(ctx, int64(inputTokens), metric.WithAttributes(attribute.String("ai.model", model), attribute.String("ai.token.type", "input")))
	}
	if outputTokens > 0 {
		metrics.ModelTokenCount.Add(ctx, int64(outputTokens), metric.WithAttributes(attribute.String("ai.model", model), attribute.String("ai.token.type", "output")))
	}
}

// RecordRateLimitWait records how long a model call waited for a token.
func RecordRateLimitWait(ctx context.Context, metrics *Metrics, wait time.Duration) {
	if metrics == nil {
		return
	}
	metrics.RateLimitWait.Record(ctx, float64(wait.Milliseconds()))
}

// RecordGuardrailIntervention records an output the guardrail modified.
func RecordGuardrailIntervention(ctx context.Context, metrics *Metrics, kind string, violations []string) {
	if metrics == nil {
		return
	}
	if len(violations) == 0 {
		metrics.GuardrailInterventions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("output.kind", kind),
			attribute.String("guardrail.category", "rewrite"),
		))
		return
	}
	for _, v := range violations {
		metrics.GuardrailInterventions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("output.kind", kind),
			attribute.String("guardrail.category", v),
		))
	}
}
