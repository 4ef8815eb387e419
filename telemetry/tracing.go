// Package telemetry carries the bot's metrics, tracing and correlation helpers.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer names used across the bot.
const (
	TracerChat   = "recapbot/chat"
	TracerLedger = "recapbot/ledger"
	TracerHTTP   = "recapbot/http"
)

var (
	tracerProvider   *sdktrace.TracerProvider
	isTracingEnabled = false
)

// InitTracing exports spans over OTLP/gRPC to OTEL_EXPORTER_OTLP_ENDPOINT.
// Without an endpoint tracing stays a no-op and the returned shutdown does
// nothing. attrs are added to the service resource, e.g. the chat transport.
//
// OTEL_EXPORTER_OTLP_INSECURE=false requires TLS to the collector.
// OTEL_TRACES_SAMPLER_RATIO samples a fraction of new traces (default 1).
func InitTracing(serviceName, serviceVersion string, attrs ...attribute.KeyValue) (func(), error) {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		slog.Info("tracing disabled: OTEL_EXPORTER_OTLP_ENDPOINT not set")
		return func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if !strings.EqualFold(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"), "false") {
		// plaintext unless TLS is asked for
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	resAttrs := append([]attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	}, attrs...)
	if env := os.Getenv("ENV"); env != "" {
		resAttrs = append(resAttrs, attribute.String("deployment.environment", env))
	}
	res, err := resource.New(ctx, resource.WithAttributes(resAttrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	ratio := samplerRatio(os.Getenv("OTEL_TRACES_SAMPLER_RATIO"))
	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		// spans started inside a sampled request stay sampled
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)

	otel.SetTracerProvider(tracerProvider)
	isTracingEnabled = true
	slog.Info("tracing initialized",
		slog.String("service", serviceName),
		slog.String("endpoint", endpoint),
		slog.Float64("sample_ratio", ratio))

	return func() {
		// flush buffered spans before exit
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown tracer provider", slog.Any("err", err))
		}
	}, nil
}

// samplerRatio parses OTEL_TRACES_SAMPLER_RATIO. Anything unparsable or
// outside [0, 1] samples everything.
func samplerRatio(v string) float64 {
	if v == "" {
		return 1
	}
	r, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || r < 0 || r > 1 {
		slog.Warn("ignoring invalid OTEL_TRACES_SAMPLER_RATIO", slog.String("value", v))
		return 1
	}
	return r
}

// IsTracingEnabled returns whether tracing is active.
func IsTracingEnabled() bool {
	return isTracingEnabled
}

// StartSpan starts a span with the given attributes plus the correlation ID,
// so a trace can be found from the X-Correlation-ID in the logs.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	if corr := GetCorrelation(ctx); corr != "" {
		attrs = append(attrs, attribute.String("correlation_id", corr))
	}
	return tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError records an error on the span and sets error status.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// Span and resource attribute helpers.
func TransportAttr(name string) attribute.KeyValue  { return attribute.String("recapbot.transport", name) }
func ChannelAttr(channel string) attribute.KeyValue { return attribute.String("chat.channel", channel) }
func CodeAttr(code string) attribute.KeyValue       { return attribute.String("recap.code", code) }
func SeasonAttr(season int) attribute.KeyValue      { return attribute.Int("recap.season", season) }
func HTTPMethodAttr(m string) attribute.KeyValue    { return attribute.String("http.method", m) }
func HTTPRouteAttr(r string) attribute.KeyValue     { return attribute.String("http.route", r) }
func HTTPStatusAttr(s int) attribute.KeyValue       { return attribute.Int("http.status_code", s) }
