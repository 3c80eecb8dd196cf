package logging

import (
	"net/http"
	"time"
)

// HTTPMiddleware assigns each request a correlation ID, honoring an
// X-Correlation-ID header when the caller supplies one, and logs the
// request with its duration.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = NewCorrelationID()
		}
		ctx := WithCorrelationID(r.Context(), correlationID)
		w.Header().Set("X-Correlation-ID", correlationID)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))

		Timed(ctx, ComponentHTTP, ActionRequest, "HTTP request", time.Since(start), map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		})
	})
}
