package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// installRecorder swaps in an in-memory exporter. Tests using it must not run in parallel.
func installRecorder(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, exporter
}

func TestMiddleware_PropagatesTraceContext(t *testing.T) {
	tp, exporter := installRecorder(t)

	r := mux.NewRouter()
	r.Use(Middleware())
	r.HandleFunc("/api/v1/mapping", func(w http.ResponseWriter, r *http.Request) {
		_, span := StartSpan(r.Context(), "presets.load")
		EndSpan(span, nil)
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name        string
		traceParent string
		wantTraceID string
	}{
		{name: "new trace"},
		{
			name:        "inbound traceparent",
			traceParent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
			wantTraceID: "4bf92f3577b34da6a3ce929d0e0e4736",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter.Reset()

			req := httptest.NewRequest(http.MethodGet, "/api/v1/mapping", nil)
			if tt.traceParent != "" {
				req.Header.Set("traceparent", tt.traceParent)
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Errorf("expected status OK, got %d", rr.Code)
			}
			if err := tp.ForceFlush(context.Background()); err != nil {
				t.Errorf("failed to flush tracer provider: %v", err)
			}

			spans := exporter.GetSpans()
			if len(spans) != 2 {
				t.Fatalf("expected request and child spans, got %d", len(spans))
			}
			traceID := spans[0].SpanContext.TraceID()
			if spans[1].SpanContext.TraceID() != traceID {
				t.Error("child span is not part of the request trace")
			}
			if tt.wantTraceID != "" && traceID.String() != tt.wantTraceID {
				t.Errorf("trace id = %s, want %s", traceID, tt.wantTraceID)
			}
		})
	}
}

func TestEndSpan_RecordsError(t *testing.T) {
	tp, exporter := installRecorder(t)

	_, span := StartSpan(context.Background(), "presets.save")
	EndSpan(span, errors.New("store unavailable"))
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("failed to flush: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status.Code)
	}
}
