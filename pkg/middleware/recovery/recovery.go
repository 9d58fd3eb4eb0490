// Package recovery turns handler panics into 500 responses.
package recovery

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/gorilla/mux"

	"github.com/advtxt/advtxt-db-mongo/pkg/middleware"
	"github.com/advtxt/advtxt-db-mongo/pkg/middleware/requestid"
	"github.com/advtxt/advtxt-db-mongo/pkg/observability/logger"
)

// Recovery logs a recovered panic with its stack and answers 500 when the
// handler has not written a response yet.
func Recovery(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := middleware.NewStatusRecorder(w)
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				requestID := requestid.GetRequestID(r.Context())
				log.Error("panic recovered",
					"request_id", requestID,
					"panic", p,
					"stack", string(debug.Stack()),
				)
				if rec.Written() {
					return
				}
				rec.Header().Set("Content-Type", "application/json")
				rec.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(rec).Encode(map[string]string{
					"error":      "internal_server_error",
					"message":    "an unexpected error occurred",
					"request_id": requestID,
				})
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
