package httputil

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wakekeeper/wakekeeper/internal/pkg/metrics"
)

// MetricsMiddleware records request duration per method, route
// pattern and status. The chi route pattern keeps label cardinality
// bounded regardless of path parameters. The chi wrapped writer
// passes Flush and Hijack through, so WebSocket upgrades work behind
// this middleware.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unknown"
		}

		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method,
			route,
			strconv.Itoa(ww.Status()),
		).Observe(time.Since(start).Seconds())
	})
}
