package metrics

import (
	"net/http"
	"strings"
	"time"
)

// unmatchedRoute labels requests no registered pattern served.
const unmatchedRoute = "unmatched"

// HTTPMetricsMiddleware records request counts and latency for a ServeMux.
// It must wrap the mux itself: the route label is read from r.Pattern,
// which the mux sets while routing.
func HTTPMetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			m.RecordHTTPRequest(RouteLabel(r.Pattern), r.Method, wrapped.statusCode, time.Since(start).Seconds())
		})
	}
}

// RouteLabel strips the method and host from a mux pattern such as
// "GET /api/v1/transactions/{tx_id}", leaving the path template.
func RouteLabel(pattern string) string {
	if pattern == "" {
		return unmatchedRoute
	}
	if _, rest, ok := strings.Cut(pattern, " "); ok {
		pattern = strings.TrimSpace(rest)
	}
	if i := strings.Index(pattern, "/"); i > 0 {
		pattern = pattern[i:]
	}
	return pattern
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
