// Package metrics records Prometheus HTTP metrics for each request.
package metrics

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/advtxt/advtxt-db-mongo/pkg/middleware"
	"github.com/advtxt/advtxt-db-mongo/pkg/observability/metrics"
)

// Metrics tracks in-flight requests and records duration and count labelled
// by method, route template and status.
func Metrics() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			metrics.IncrementInFlight()
			defer metrics.DecrementInFlight()

			start := time.Now()
			rec := middleware.NewStatusRecorder(w)
			next.ServeHTTP(rec, r)

			metrics.RecordHTTPMetrics(r.Method, routePath(r), rec.Status(), time.Since(start))
		})
	}
}

func routePath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}
