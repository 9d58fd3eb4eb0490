// Package logging writes one structured log entry per HTTP request.
package logging

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/advtxt/advtxt-db-mongo/pkg/middleware"
	"github.com/advtxt/advtxt-db-mongo/pkg/observability/logger"
)

// Log field names.
const (
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatus     = "status"
	FieldDurationMS = "duration_ms"
	FieldRemoteAddr = "remote_addr"
)

// Logging logs each request at info level, or at error level for 5xx
// responses. Paths in skip are not logged.
func Logging(log logger.Logger, skip ...string) mux.MiddlewareFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skipped[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := middleware.NewStatusRecorder(w)
			next.ServeHTTP(rec, r)

			fields := []any{
				FieldMethod, r.Method,
				FieldPath, r.URL.Path,
				FieldStatus, rec.Status(),
				FieldDurationMS, time.Since(start).Milliseconds(),
				FieldRemoteAddr, r.RemoteAddr,
			}
			reqLog := log.WithContext(r.Context())
			if rec.Status() >= http.StatusInternalServerError {
				reqLog.Error("http request", fields...)
				return
			}
			reqLog.Info("http request", fields...)
		})
	}
}
