package shipments_api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/BearBump/ShipTrack/internal/metrics"
	"github.com/go-chi/chi/v5"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// AccessLog пишет строку на запрос и метрики по шаблону маршрута chi.
func AccessLog(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}

			next.ServeHTTP(sw, r)

			if sw.status == 0 {
				sw.status = http.StatusOK
			}
			d := time.Since(start)
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			m.ObserveHTTP(r.Method, route, sw.status, d)
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.RequestURI(),
				"status", sw.status,
				"bytes", sw.bytes,
				"dur_ms", d.Milliseconds(),
			)
		})
	}
}
