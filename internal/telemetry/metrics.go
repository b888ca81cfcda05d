package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	ProcessingDuration  metric.Float64Histogram
	InferenceRequests   metric.Int64Counter
	CacheLookups        metric.Int64Counter
	ExportsGenerated    metric.Int64Counter
	CircuitBreakerState metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("document-intelligence-platform")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	processingDuration, err := meter.Float64Histogram(
		"document.processing.duration",
		metric.WithDescription("Document pipeline duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	inferenceRequests, err := meter.Int64Counter(
		"inference.requests.total",
		metric.WithDescription("Total inference engine requests"),
	)
	if err != nil {
		return nil, err
	}

	cacheLookups, err := meter.Int64Counter(
		"analysis.cache.lookups",
		metric.WithDescription("Analysis cache lookups by outcome"),
	)
	if err != nil {
		return nil, err
	}

	exportsGenerated, err := meter.Int64Counter(
		"exports.generated.total",
		metric.WithDescription("Exports generated by format"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		ProcessingDuration:  processingDuration,
		InferenceRequests:   inferenceRequests,
		CacheLookups:        cacheLookups,
		ExportsGenerated:    exportsGenerated,
		CircuitBreakerState: circuitBreakerState,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordProcessing records document pipeline metrics
func (m *Metrics) RecordProcessing(duration float64, status string) {
	attrs := []attribute.KeyValue{
		attribute.String("document.status", status),
	}

	m.ProcessingDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordInferenceRequest records an inference engine call by outcome
func (m *Metrics) RecordInferenceRequest(operation, outcome string) {
	attrs := []attribute.KeyValue{
		attribute.String("inference.operation", operation),
		attribute.String("inference.outcome", outcome),
	}

	m.InferenceRequests.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordCacheLookup records an analysis cache lookup
func (m *Metrics) RecordCacheLookup(kind string, hit bool) {
	attrs := []attribute.KeyValue{
		attribute.String("analysis.kind", kind),
		attribute.Bool("cache.hit", hit),
	}

	m.CacheLookups.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordExport records a generated export
func (m *Metrics) RecordExport(format string, documents int64) {
	attrs := []attribute.KeyValue{
		attribute.String("export.format", format),
		attribute.Int64("export.documents", documents),
	}

	m.ExportsGenerated.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("state", state),
	}

	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
