package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, exporter
}

// Engine spans started inside a request join the request's trace
func TestSpansJoinRequestTrace(t *testing.T) {
	_, exporter := installRecorder(t)

	r := mux.NewRouter()
	r.Use(otelmux.Middleware("smart-meds-api"))
	r.HandleFunc("/api/v1/interactions/check", func(w http.ResponseWriter, r *http.Request) {
		_, span := StartSpan(r.Context(), "interactions.check_all", attribute.String("user.id", "u-1"))
		EndSpan(span, nil)
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodPost)

	const parent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	req := httptest.NewRequest(http.MethodPost, "/api/v1/interactions/check", nil)
	req.Header.Set("traceparent", parent)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %d", rr.Code)
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("Expected 2 spans, got %d", len(spans))
	}
	for _, s := range spans {
		if got := s.SpanContext.TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
			t.Errorf("span %q trace id = %s, want the inbound trace", s.Name, got)
		}
	}
}

func TestEndSpanRecordsError(t *testing.T) {
	_, exporter := installRecorder(t)

	_, span := StartSpan(context.Background(), "reorganize.apply")
	EndSpan(span, errors.New("tx aborted"))
	_, ok := StartSpan(context.Background(), "reorganize.apply")
	EndSpan(ok, nil)

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("Expected 2 spans, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error || spans[0].Status.Description != "tx aborted" {
		t.Errorf("failed span status = %+v, want error", spans[0].Status)
	}
	if len(spans[0].Events) == 0 {
		t.Error("Expected the error to be recorded as an event")
	}
	if spans[1].Status.Code != codes.Unset {
		t.Errorf("ok span status = %+v, want unset", spans[1].Status)
	}
}
