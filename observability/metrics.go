package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/otlptranslator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// InitMetrics installs a global meter provider that exports to a fresh
// Prometheus registry. Serve the registry with promhttp.HandlerFor.
func InitMetrics(ctx context.Context, serviceName string) (*sdkmetric.MeterProvider, *prometheus.Registry, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	registry := prometheus.NewRegistry()
	// Dotted instrument names export as devhub_tool_calls_total.
	exporter, err := otelprom.New(
		otelprom.WithRegisterer(registry),
		otelprom.WithTranslationStrategy(otlptranslator.UnderscoreEscapingWithSuffixes),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)
	return provider, registry, nil
}

// GetMeter returns a meter from the current global meter provider.
func GetMeter() metric.Meter {
	return otel.Meter(TracerName)
}

// Instruments are the DevHub metric instruments.
type Instruments struct {
	toolCalls    metric.Int64Counter
	toolErrors   metric.Int64Counter
	toolLatency  metric.Float64Histogram
	llmCalls     metric.Int64Counter
	llmLatency   metric.Float64Histogram
	queryLatency metric.Float64Histogram
}

// NewInstruments creates the instruments on meter. A nil meter uses the
// global provider.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	if meter == nil {
		meter = GetMeter()
	}

	var (
		in  Instruments
		err error
	)
	if in.toolCalls, err = meter.Int64Counter("devhub.tool.calls",
		metric.WithDescription("Tool calls executed"), metric.WithUnit("1")); err != nil {
		return nil, fmt.Errorf("failed to create tool call counter: %w", err)
	}
	if in.toolErrors, err = meter.Int64Counter("devhub.tool.errors",
		metric.WithDescription("Tool calls that failed"), metric.WithUnit("1")); err != nil {
		return nil, fmt.Errorf("failed to create tool error counter: %w", err)
	}
	if in.toolLatency, err = meter.Float64Histogram("devhub.tool.latency",
		metric.WithDescription("Tool call latency"), metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("failed to create tool latency histogram: %w", err)
	}
	if in.llmCalls, err = meter.Int64Counter("devhub.llm.calls",
		metric.WithDescription("Completion calls by phase"), metric.WithUnit("1")); err != nil {
		return nil, fmt.Errorf("failed to create llm call counter: %w", err)
	}
	if in.llmLatency, err = meter.Float64Histogram("devhub.llm.latency",
		metric.WithDescription("Completion call latency"), metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("failed to create llm latency histogram: %w", err)
	}
	if in.queryLatency, err = meter.Float64Histogram("devhub.query.latency",
		metric.WithDescription("End-to-end query latency"), metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("failed to create query latency histogram: %w", err)
	}
	return &in, nil
}

// RecordTool records one executed tool call. An empty errorKind means
// success.
func (in *Instruments) RecordTool(ctx context.Context, tool, errorKind string, latencyMS float64) {
	if in == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("tool", tool)}
	status := "success"
	if errorKind != "" {
		status = "error"
		in.toolErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", tool), attribute.String("error.kind", errorKind)))
	}
	attrs = append(attrs, attribute.String("status", status))
	in.toolCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
	in.toolLatency.Record(ctx, latencyMS, metric.WithAttributes(attrs...))
}

// RecordLLM records one completion call of the given phase.
func (in *Instruments) RecordLLM(ctx context.Context, phase, model string, err error, latencyMS float64) {
	if in == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("phase", phase),
		attribute.String("model", model),
		attribute.String("status", statusOf(err)),
	)
	in.llmCalls.Add(ctx, 1, attrs)
	in.llmLatency.Record(ctx, latencyMS, attrs)
}

// RecordQuery records one end-to-end query.
func (in *Instruments) RecordQuery(ctx context.Context, err error, latencyMS float64) {
	if in == nil {
		return
	}
	in.queryLatency.Record(ctx, latencyMS, metric.WithAttributes(attribute.String("status", statusOf(err))))
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
