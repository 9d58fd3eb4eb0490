// Package tracing starts an OpenTelemetry server span for each request.
package tracing

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/advtxt/advtxt-db-mongo/pkg/middleware"
	"github.com/advtxt/advtxt-db-mongo/pkg/middleware/requestid"
)

// Tracing extracts the incoming trace context and wraps the request in a
// server span named "HTTP <method> <route>". 5xx responses mark the span
// as failed.
func Tracing(tracerName string) mux.MiddlewareFunc {
	if tracerName == "" {
		tracerName = "http-server"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tracer := otel.Tracer(tracerName)
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			ctx, span := tracer.Start(ctx, fmt.Sprintf("HTTP %s %s", r.Method, route),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.route", route),
					attribute.String("request.id", requestid.GetRequestID(r.Context())),
				),
			)
			defer span.End()

			rec := middleware.NewStatusRecorder(w)
			next.ServeHTTP(rec, r.WithContext(ctx))

			span.SetAttributes(attribute.Int("http.status_code", rec.Status()))
			if rec.Status() >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rec.Status()))
			}
		})
	}
}
