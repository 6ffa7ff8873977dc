// Copyright 2025 James Ross
package obs

import (
	"context"
	"testing"

	"github.com/flyingrobots/go-redis-work-queue/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestMaybeInitTracing(t *testing.T) {
	tests := []struct {
		name          string
		config        *config.Config
		expectNil     bool
		expectEnabled bool
	}{
		{
			name: "tracing disabled",
			config: &config.Config{
				Observability: config.ObservabilityConfig{
					Tracing: config.TracingConfig{
						Enabled: false,
					},
				},
			},
			expectNil: true,
		},
		{
			name: "tracing enabled with endpoint",
			config: &config.Config{
				Observability: config.ObservabilityConfig{
					Tracing: config.TracingConfig{
						Enabled:          true,
						Endpoint:         "http://localhost:4318/v1/traces",
						Environment:      "test",
						SamplingStrategy: "always",
						SamplingRate:     1.0,
					},
				},
			},
			expectNil:     false,
			expectEnabled: true,
		},
		{
			name: "tracing enabled without endpoint",
			config: &config.Config{
				Observability: config.ObservabilityConfig{
					Tracing: config.TracingConfig{
						Enabled: true,
					},
				},
			},
			expectNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			otel.SetTracerProvider(trace.NewNoopTracerProvider())

			tp, err := MaybeInitTracing(tt.config)
			if err != nil {
				t.Fatalf("MaybeInitTracing() error = %v", err)
			}

			if tt.expectNil && tp != nil {
				t.Errorf("Expected nil tracer provider, got %v", tp)
			}

			if !tt.expectNil && tp == nil {
				t.Errorf("Expected non-nil tracer provider, got nil")
			}

			if tt.expectEnabled {
				globalTP := otel.GetTracerProvider()
				if _, ok := globalTP.(*sdktrace.TracerProvider); !ok {
					t.Errorf("Expected SDK tracer provider, got %T", globalTP)
				}

				prop := otel.GetTextMapPropagator()
				if _, ok := prop.(propagation.CompositeTextMapPropagator); !ok {
					t.Errorf("Expected composite propagator, got %T", prop)
				}
			}

			if tp != nil {
				tp.Shutdown(context.Background())
			}
		})
	}
}

func TestStartEnqueueSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	ctx := context.Background()
	ctx, span := StartEnqueueSpan(ctx, "salesforce", "CREATE")

	if span == nil {
		t.Fatal("Expected non-nil span")
	}
	if !span.IsRecording() {
		t.Error("Expected span to be recording")
	}
	span.End()

	if !span.SpanContext().IsValid() {
		t.Error("Expected valid span context")
	}
	_ = ctx
}

func TestStartDispatchSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	ctx := context.Background()
	ctx, span := StartDispatchSpan(ctx, "hubspot", "POST", "https://api.hubapi.com/crm/v3/objects/contacts")

	if span == nil {
		t.Fatal("Expected non-nil span")
	}
	if !span.IsRecording() {
		t.Error("Expected span to be recording")
	}
	span.End()

	if !span.SpanContext().IsValid() {
		t.Error("Expected valid span context")
	}
	_ = ctx
}

func TestRecordError(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	tracer := otel.Tracer("test")
	ctx, span := tracer.Start(context.Background(), "test-span")
	defer span.End()

	testErr := &testError{message: "test error"}
	RecordError(ctx, testErr)
	RecordError(ctx, nil)
	RecordError(context.Background(), testErr)
}

func TestSetSpanSuccess(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	tracer := otel.Tracer("test")
	ctx, span := tracer.Start(context.Background(), "test-span")
	defer span.End()

	SetSpanSuccess(ctx)
	SetSpanSuccess(context.Background())
}

func TestExtractInjectTraceContext(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracer := otel.Tracer("test")
	ctx, span := tracer.Start(context.Background(), "test-span")
	defer span.End()

	carrier := InjectTraceContext(ctx)
	if len(carrier) == 0 {
		t.Error("Expected non-empty carrier after injection")
	}

	newCtx := ExtractTraceContext(context.Background(), carrier)
	if !trace.SpanContextFromContext(newCtx).IsValid() {
		t.Error("Expected valid span context after extraction")
	}

	emptyCtx := ExtractTraceContext(context.Background(), map[string]string{})
	if trace.SpanContextFromContext(emptyCtx).IsValid() {
		t.Error("Expected invalid span context with empty carrier")
	}
}

func TestGetTraceAndSpanID(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	tracer := otel.Tracer("test")
	ctx, span := tracer.Start(context.Background(), "test-span")
	defer span.End()

	traceID, spanID := GetTraceAndSpanID(ctx)

	if traceID == "" {
		t.Error("Expected non-empty trace ID")
	}
	if spanID == "" {
		t.Error("Expected non-empty span ID")
	}
	if len(traceID) != 32 {
		t.Errorf("Expected trace ID length 32, got %d", len(traceID))
	}
	if len(spanID) != 16 {
		t.Errorf("Expected span ID length 16, got %d", len(spanID))
	}

	emptyTraceID, emptySpanID := GetTraceAndSpanID(context.Background())
	if emptyTraceID != "" || emptySpanID != "" {
		t.Error("Expected empty IDs for context without span")
	}
}

func TestAddEvent(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	tracer := otel.Tracer("test")
	ctx, span := tracer.Start(context.Background(), "test-span")
	defer span.End()

	AddEvent(ctx, "test-event",
		attribute.String("key1", "value1"),
		attribute.Int("key2", 42),
	)
	AddEvent(ctx, "simple-event")
	AddEvent(context.Background(), "no-span-event")
}

func TestAddSpanAttributes(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	tracer := otel.Tracer("test")
	ctx, span := tracer.Start(context.Background(), "test-span")
	defer span.End()

	AddSpanAttributes(ctx,
		attribute.String("attr1", "value1"),
		attribute.Int("attr2", 123),
		attribute.Bool("attr3", true),
	)
	AddSpanAttributes(context.Background(), attribute.String("no-span", "value"))
}

func TestTracerShutdown(t *testing.T) {
	err := TracerShutdown(context.Background(), nil)
	if err != nil {
		t.Errorf("Expected no error for nil tracer provider, got %v", err)
	}

	tp := sdktrace.NewTracerProvider()
	err = TracerShutdown(context.Background(), tp)
	if err != nil {
		t.Errorf("Unexpected error shutting down tracer provider: %v", err)
	}
}

func TestKeyValue(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    interface{}
		expected attribute.Type
	}{
		{"string", "key", "value", attribute.STRING},
		{"int", "key", 42, attribute.INT64},
		{"int64", "key", int64(42), attribute.INT64},
		{"float64", "key", 3.14, attribute.FLOAT64},
		{"bool", "key", true, attribute.BOOL},
		{"other", "key", struct{}{}, attribute.STRING},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := KeyValue(tt.key, tt.value)
			if kv.Key != attribute.Key(tt.key) {
				t.Errorf("Expected key %s, got %s", tt.key, kv.Key)
			}
			if kv.Value.Type() != tt.expected {
				t.Errorf("Expected type %v, got %v", tt.expected, kv.Value.Type())
			}
		})
	}
}

func TestTracingSampling(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		rate     float64
	}{
		{"always", "always", 1.0},
		{"never", "never", 0.0},
		{"probabilistic", "probabilistic", 0.5},
		{"default", "unknown", 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				Observability: config.ObservabilityConfig{
					Tracing: config.TracingConfig{
						Enabled:          true,
						Endpoint:         "http://localhost:4318/v1/traces",
						SamplingStrategy: tt.strategy,
						SamplingRate:     tt.rate,
					},
				},
			}

			tp, err := MaybeInitTracing(cfg)
			if err != nil {
				t.Fatalf("MaybeInitTracing() error = %v", err)
			}
			if tp == nil {
				t.Fatal("Expected non-nil tracer provider")
			}
			tp.Shutdown(context.Background())
		})
	}
}

func TestPropagationRoundTrip(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracer := otel.Tracer("test")
	originalCtx, originalSpan := tracer.Start(context.Background(), "original-span")
	defer originalSpan.End()

	originalTraceID, originalSpanID := GetTraceAndSpanID(originalCtx)

	carrier := InjectTraceContext(originalCtx)
	newCtx := ExtractTraceContext(context.Background(), carrier)

	newCtx, childSpan := tracer.Start(newCtx, "child-span")
	defer childSpan.End()

	childTraceID, childSpanID := GetTraceAndSpanID(newCtx)

	if childTraceID != originalTraceID {
		t.Errorf("Expected same trace ID, got original=%s, child=%s", originalTraceID, childTraceID)
	}
	if childSpanID == originalSpanID {
		t.Error("Expected different span IDs for parent and child")
	}

	childSpanCtx := childSpan.SpanContext()
	if !childSpanCtx.IsValid() {
		t.Error("Child span context should be valid")
	}
}

type testError struct {
	message string
}

func (e *testError) Error() string {
	return e.message
}

func BenchmarkStartSpan(b *testing.B) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	ctx := context.Background()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, span := StartEnqueueSpan(ctx, "salesforce", "CREATE")
		span.End()
	}
}

func BenchmarkInjectExtract(b *testing.B) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracer := otel.Tracer("test")
	ctx, span := tracer.Start(context.Background(), "test-span")
	defer span.End()

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		carrier := InjectTraceContext(ctx)
		ExtractTraceContext(context.Background(), carrier)
	}
}
